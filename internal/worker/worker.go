package worker

import (
	"context"
	"sync"
	"sync/atomic"

	"group0-recovery/internal/logger"
)

// Job はワーカーが実行するジョブを表す
type Job func()

// PoolConfig はワーカープールの設定
type PoolConfig struct {
	NumWorkers  int // ワーカー数（0で1）
	QueueFactor int // キューサイズ = NumWorkers * QueueFactor
}

// DefaultPoolConfig はデフォルト設定を返す
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		NumWorkers:  1,
		QueueFactor: 1,
	}
}

// Pool はゴルーチンのプールを管理する
type Pool struct {
	numWorkers int
	jobs       chan Job
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	started    bool
	stopping   atomic.Bool
	mu         sync.Mutex
}

// NewPool は新しいワーカープールを作成する
func NewPool(numWorkers int) *Pool {
	config := DefaultPoolConfig()
	config.NumWorkers = numWorkers
	return NewPoolWithConfig(config)
}

// NewPoolWithConfig は設定を指定してワーカープールを作成する
func NewPoolWithConfig(config PoolConfig) *Pool {
	numWorkers := config.NumWorkers
	if numWorkers <= 0 {
		numWorkers = 1
	}
	queueFactor := config.QueueFactor
	if queueFactor <= 0 {
		queueFactor = 1
	}
	return &Pool{
		numWorkers: numWorkers,
		jobs:       make(chan Job, numWorkers*queueFactor),
	}
}

// Start はワーカープールを起動する
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.started = true

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	logger.Debug("", "WorkerPool started with %d workers", p.numWorkers)
}

// worker は個々のワーカーゴルーチン
func (p *Pool) worker(_ int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			job()
		}
	}
}

// SubmitWait はジョブを送信し、キューに空きがなければブロックする
func (p *Pool) SubmitWait(job Job) bool {
	if p.stopping.Load() {
		return false
	}

	select {
	case <-p.ctx.Done():
		return false
	default:
	}

	select {
	case <-p.ctx.Done():
		return false
	case p.jobs <- job:
		return true
	}
}

// Stop はワーカープールを停止する
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	p.stopping.Store(true)
	p.cancel()
	p.wg.Wait()
	close(p.jobs)

	p.mu.Lock()
	p.started = false
	p.mu.Unlock()

	logger.Debug("", "WorkerPool stopped")
}

// NumWorkers はワーカー数を返す
func (p *Pool) NumWorkers() int {
	return p.numWorkers
}

// ForEach はitemsごとにfnを最大parallelism並列で実行し、全て終わるまで待つ
// parallelismが0以下ならlen(items)並列
// キャンセルはfnに渡すctxで伝え、投入済みのジョブは必ず実行される
func ForEach[T any](ctx context.Context, parallelism int, items []T, fn func(ctx context.Context, item T)) error {
	if len(items) == 0 {
		return ctx.Err()
	}
	if parallelism <= 0 || parallelism > len(items) {
		parallelism = len(items)
	}

	pool := NewPoolWithConfig(PoolConfig{NumWorkers: parallelism, QueueFactor: 1})
	pool.Start(context.WithoutCancel(ctx))
	defer pool.Stop()

	var wg sync.WaitGroup
	for _, item := range items {
		item := item
		wg.Add(1)
		pool.SubmitWait(func() {
			defer wg.Done()
			fn(ctx, item)
		})
	}
	wg.Wait()

	return ctx.Err()
}
