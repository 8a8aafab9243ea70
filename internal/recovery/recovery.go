package recovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"group0-recovery/internal/cluster"
	"group0-recovery/internal/errs"
	"group0-recovery/internal/events"
	"group0-recovery/internal/lifecycle"
	"group0-recovery/internal/logger"
	"group0-recovery/internal/metrics"
	"group0-recovery/internal/node"
	"group0-recovery/internal/nodetool"
	"group0-recovery/internal/purge"
	"group0-recovery/internal/query"
	"group0-recovery/internal/reconcile"
	"group0-recovery/internal/remote"
)

// Config はリカバリー実行の設定
type Config struct {
	LeaderTimeout   time.Duration // リーダーがReadyになるまでの上限
	FollowerTimeout time.Duration // 各フォロワーがReadyになるまでの上限
	Parallelism     int           // メンバー単位の並列数（0で全メンバー同時）
	ResetLocalState bool          // 再起動前にローカルのgroup0状態を消去する
	RemoveMarker    bool          // 完了後にリカバリーマーカーを削除する

	Lifecycle lifecycle.Config
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		LeaderTimeout:   5 * time.Minute,
		FollowerTimeout: 5 * time.Minute,
		Parallelism:     0,
		ResetLocalState: true,
		RemoveMarker:    true,
		Lifecycle:       lifecycle.DefaultConfig(),
	}
}

// Checklist は破壊的な各ステップの完了状況
type Checklist struct {
	StateReset         bool `json:"state_reset"`
	MarkersWritten     bool `json:"markers_written"`
	DeadMembersRemoved bool `json:"dead_members_removed"`
	GroupDataPurged    bool `json:"group_data_purged"`
}

// Plan は1回のリカバリー実行で決まった内容
type Plan struct {
	OldGroupID    node.GroupID  `json:"old_group_id"`
	Leader        node.Member   `json:"leader"`
	LeaderStateID string        `json:"leader_state_id"`
	Live          []node.Member `json:"live"`
	Dead          []node.Member `json:"dead"`
	Observations  int           `json:"observations"`
	Checklist     Checklist     `json:"checklist"`
}

func (p Plan) clone() Plan {
	p.Live = append([]node.Member(nil), p.Live...)
	p.Dead = append([]node.Member(nil), p.Dead...)
	return p
}

// Orchestrator はgroup0のリカバリー手順を順番に実行する
type Orchestrator struct {
	config  Config
	exec    remote.Executor
	querier query.Querier
	admin   nodetool.Admin
	reader  cluster.Reader
	bus     *events.Bus

	running atomic.Bool

	mu      sync.RWMutex
	phase   Phase
	plan    Plan
	lc      *lifecycle.Controller
	metrics *metrics.Metrics
	last    *Report
}

// New は新しいOrchestratorを作成する
func New(exec remote.Executor, querier query.Querier, admin nodetool.Admin, config Config) *Orchestrator {
	return &Orchestrator{
		config:  config,
		exec:    exec,
		querier: querier,
		admin:   admin,
		reader:  cluster.NewStateReader(admin, querier, config.Parallelism),
	}
}

// SetEventBus はイベントバスを設定する
func (o *Orchestrator) SetEventBus(bus *events.Bus) {
	o.bus = bus
}

func (o *Orchestrator) publish(ev events.Event) {
	if o.bus != nil {
		o.bus.Publish(ev)
	}
}

// run は1回分の実行に使うコンポーネント
type run struct {
	o          *Orchestrator
	plan       *Plan
	report     *Report
	lc         *lifecycle.Controller
	reconciler *reconcile.Reconciler
	purger     *purge.Purger
	metrics    *metrics.Metrics
}

func (o *Orchestrator) newRun() *run {
	m := metrics.New()

	lc := lifecycle.New(o.exec, o.querier, o.config.Lifecycle)
	lc.SetMetrics(m)
	rc := reconcile.New(o.admin)
	rc.SetMetrics(m)
	pg := purge.New(o.querier, o.config.Parallelism)
	pg.SetMetrics(m)
	if o.bus != nil {
		lc.SetEventBus(o.bus)
		rc.SetEventBus(o.bus)
		pg.SetEventBus(o.bus)
	}

	o.mu.Lock()
	o.plan = Plan{}
	o.lc = lc
	o.metrics = m
	o.mu.Unlock()

	return &run{
		o:          o,
		plan:       &Plan{},
		report:     &Report{StartTime: time.Now()},
		lc:         lc,
		reconciler: rc,
		purger:     pg,
		metrics:    m,
	}
}

// Run はリカバリーを最後まで実行する
// 致命的な失敗では中断してエラーを返す。非致命的な失敗のみの場合はReportと
// errs.ErrPartialSuccessをラップしたエラーを返す
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	if o.running.Swap(true) {
		return nil, errs.ErrAlreadyRunning
	}
	defer o.running.Store(false)

	r := o.newRun()
	logger.Info("", "=== Group 0 recovery started ===")

	phases := r.phases()
	for i, p := range phases {
		if err := ctx.Err(); err != nil {
			return r.abort(p.name, err)
		}

		o.setPhase(p.name)
		logger.Info("", "--- Phase %d/%d: %s ---", i+1, len(phases), p.name)
		o.publish(events.NewPhaseStartedEvent(string(p.name)))

		if err := p.fn(ctx); err != nil {
			return r.abort(p.name, err)
		}

		o.syncPlan(r.plan)
		o.publish(events.NewPhaseCompletedEvent(string(p.name)))
	}

	return r.finish()
}

func (r *run) abort(phase Phase, err error) (*Report, error) {
	r.report.Outcome = OutcomeAborted
	r.report.AbortPhase = phase
	r.report.AbortErr = err
	r.complete()

	logger.Error("", "Recovery aborted in phase %s: %v", phase, err)
	r.o.publish(events.NewRunAbortedEvent(string(phase), err))
	return r.report, fmt.Errorf("recovery aborted in phase %s: %w", phase, err)
}

func (r *run) finish() (*Report, error) {
	r.report.Outcome = OutcomeSucceeded
	failures := r.report.Failures()
	if len(failures) > 0 {
		r.report.Outcome = OutcomePartialSuccess
	}
	r.complete()

	r.o.publish(events.NewRunCompletedEvent(r.report.Outcome.String()))
	logger.Info("", "=== Group 0 recovery finished: %s ===", r.report.Outcome)

	if len(failures) > 0 {
		return r.report, fmt.Errorf("%w: %w", errs.ErrPartialSuccess, errors.Join(failures...))
	}
	return r.report, nil
}

func (r *run) complete() {
	r.report.EndTime = time.Now()
	r.report.Duration = r.report.EndTime.Sub(r.report.StartTime)
	r.report.Plan = r.plan.clone()
	r.report.MemberStates = r.lc.States()
	r.report.Metrics = r.metrics.Snapshot()

	r.o.mu.Lock()
	r.o.phase = PhaseDone
	r.o.plan = r.plan.clone()
	r.o.last = r.report
	r.o.mu.Unlock()
}

func (o *Orchestrator) setPhase(p Phase) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.phase = p
}

func (o *Orchestrator) syncPlan(p *Plan) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.plan = p.clone()
}

// IsRunning は実行中かどうかを返す
func (o *Orchestrator) IsRunning() bool {
	return o.running.Load()
}

// Phase は現在（または最後）のフェーズを返す
func (o *Orchestrator) Phase() Phase {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.phase
}

// Plan は現在の実行計画のコピーを返す
func (o *Orchestrator) Plan() Plan {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.plan.clone()
}

// MemberStates は現在の実行でのメンバー状態を返す
func (o *Orchestrator) MemberStates() map[string]node.State {
	o.mu.RLock()
	lc := o.lc
	o.mu.RUnlock()
	if lc == nil {
		return map[string]node.State{}
	}
	return lc.States()
}

// Metrics は現在の実行の操作メトリクスを返す
func (o *Orchestrator) Metrics() *metrics.Snapshot {
	o.mu.RLock()
	m := o.metrics
	o.mu.RUnlock()
	if m == nil {
		return nil
	}
	snapshot := m.Snapshot()
	return &snapshot
}

// LastReport は最後に完了した実行のReportを返す（まだなければnil）
func (o *Orchestrator) LastReport() *Report {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.last
}
