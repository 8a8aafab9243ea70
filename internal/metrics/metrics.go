package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics はメンバー単位の操作（stop, start, check, remove ...）を集計する
type Metrics struct {
	totalOps   atomic.Uint64
	successOps atomic.Uint64
	failedOps  atomic.Uint64

	mu        sync.RWMutex
	startTime time.Time
	byOp      map[string]*opStats
}

type opStats struct {
	success      uint64
	failed       uint64
	totalLatency time.Duration
	maxLatency   time.Duration
}

// New は新しいメトリクスを作成する
func New() *Metrics {
	return &Metrics{
		startTime: time.Now(),
		byOp:      make(map[string]*opStats),
	}
}

// RecordSuccess は成功した操作を記録する
func (m *Metrics) RecordSuccess(op string, latency time.Duration) {
	m.totalOps.Add(1)
	m.successOps.Add(1)
	m.record(op, latency, true)
}

// RecordFailure は失敗した操作を記録する
func (m *Metrics) RecordFailure(op string, latency time.Duration) {
	m.totalOps.Add(1)
	m.failedOps.Add(1)
	m.record(op, latency, false)
}

// Observe はerrの有無に応じて成功/失敗を記録する
func (m *Metrics) Observe(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	latency := time.Since(start)
	if err != nil {
		m.RecordFailure(op, latency)
		return
	}
	m.RecordSuccess(op, latency)
}

func (m *Metrics) record(op string, latency time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.byOp[op]
	if !ok {
		s = &opStats{}
		m.byOp[op] = s
	}
	if success {
		s.success++
	} else {
		s.failed++
	}
	s.totalLatency += latency
	if latency > s.maxLatency {
		s.maxLatency = latency
	}
}

// TotalOps は総操作数を返す
func (m *Metrics) TotalOps() uint64 {
	return m.totalOps.Load()
}

// SuccessOps は成功した操作数を返す
func (m *Metrics) SuccessOps() uint64 {
	return m.successOps.Load()
}

// FailedOps は失敗した操作数を返す
func (m *Metrics) FailedOps() uint64 {
	return m.failedOps.Load()
}

// ErrorRate はエラー率を返す（0.0〜1.0）
func (m *Metrics) ErrorRate() float64 {
	total := m.totalOps.Load()
	if total == 0 {
		return 0
	}
	return float64(m.failedOps.Load()) / float64(total)
}

// OpSnapshot は操作種別ごとの集計
type OpSnapshot struct {
	Op             string        `json:"op"`
	Success        uint64        `json:"success"`
	Failed         uint64        `json:"failed"`
	AverageLatency time.Duration `json:"average_latency"`
	MaxLatency     time.Duration `json:"max_latency"`
}

// Snapshot はメトリクスのスナップショット
type Snapshot struct {
	TotalOps   uint64        `json:"total_ops"`
	SuccessOps uint64        `json:"success_ops"`
	FailedOps  uint64        `json:"failed_ops"`
	ErrorRate  float64       `json:"error_rate"`
	Elapsed    time.Duration `json:"elapsed"`
	Ops        []OpSnapshot  `json:"ops"`
}

// Snapshot は現在のメトリクスのスナップショットを返す（操作名順）
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	ops := make([]OpSnapshot, 0, len(m.byOp))
	for name, s := range m.byOp {
		snap := OpSnapshot{
			Op:         name,
			Success:    s.success,
			Failed:     s.failed,
			MaxLatency: s.maxLatency,
		}
		if n := s.success + s.failed; n > 0 {
			snap.AverageLatency = s.totalLatency / time.Duration(n)
		}
		ops = append(ops, snap)
	}
	m.mu.RUnlock()

	sort.Slice(ops, func(i, j int) bool {
		return ops[i].Op < ops[j].Op
	})

	return Snapshot{
		TotalOps:   m.TotalOps(),
		SuccessOps: m.SuccessOps(),
		FailedOps:  m.FailedOps(),
		ErrorRate:  m.ErrorRate(),
		Elapsed:    time.Since(m.startTime),
		Ops:        ops,
	}
}
