// Package purge deletes consensus metadata left behind by the old group 0.
package purge

import (
	"context"
	"errors"
	"sync"
	"time"

	"group0-recovery/internal/errs"
	"group0-recovery/internal/events"
	"group0-recovery/internal/logger"
	"group0-recovery/internal/metrics"
	"group0-recovery/internal/node"
	"group0-recovery/internal/query"
	"group0-recovery/internal/worker"
)

// Purger はメンバーごとのRaftメタデータを削除する
type Purger struct {
	querier     query.Querier
	parallelism int
	bus         events.Publisher
	metrics     *metrics.Metrics
}

// New は新しいPurgerを作成する
// parallelismが0以下なら全メンバー同時に処理する
func New(querier query.Querier, parallelism int) *Purger {
	return &Purger{
		querier:     querier,
		parallelism: parallelism,
	}
}

// SetEventBus は失敗の通知先を設定する
func (p *Purger) SetEventBus(bus events.Publisher) {
	p.bus = bus
}

// SetMetrics は操作メトリクスの記録先を設定する
func (p *Purger) SetMetrics(m *metrics.Metrics) {
	p.metrics = m
}

// Purge は各メンバーからgroupIDのRaftメタデータを削除する
// メンバー単位で並列に処理し、失敗したメンバーをErrPurgeFailedとして返す
func (p *Purger) Purge(ctx context.Context, groupID node.GroupID, members []node.Member) ([]error, error) {
	if groupID == "" {
		return nil, errors.New("group id is empty")
	}

	var (
		mu       sync.Mutex
		failures []error
	)
	err := worker.ForEach(ctx, p.parallelism, members, func(ctx context.Context, m node.Member) {
		if err := p.purgeMember(ctx, groupID, m); err != nil {
			logger.Error(m.Address, "Purge failed: %v", err)
			events.Publish(p.bus, events.NewMemberFailureEvent(m.Address, "purge", err))
			mu.Lock()
			failures = append(failures, err)
			mu.Unlock()
		}
	})
	if err != nil {
		return failures, err
	}

	logger.Info("", "Purged group %s on %d members (%d failed)", groupID, len(members), len(failures))
	return failures, nil
}

// purgeMember は1つが失敗しても全テーブルの削除を試みる
func (p *Purger) purgeMember(ctx context.Context, groupID node.GroupID, m node.Member) error {
	var failed []error
	for _, table := range query.RaftTables {
		start := time.Now()
		err := query.Exec(ctx, p.querier, query.DeleteByGroup(table, string(groupID)), m.Address)
		p.metrics.Observe("purge", start, err)
		if err != nil {
			failed = append(failed, err)
			continue
		}
		logger.Debug(m.Address, "Deleted %s rows of group %s", table, groupID)
	}
	if len(failed) > 0 {
		return errs.Member("purge", m.Address, errs.ErrPurgeFailed, errors.Join(failed...))
	}
	return nil
}

// ResetLocalState は各メンバーのgroup0 IDとディスカバリー状態を消去する
// 1台でも失敗すればErrResetFailedを返す
func (p *Purger) ResetLocalState(ctx context.Context, members []node.Member) error {
	var (
		mu     sync.Mutex
		failed []error
	)
	err := worker.ForEach(ctx, p.parallelism, members, func(ctx context.Context, m node.Member) {
		for _, stmt := range []string{query.DeleteGroup0ID, query.TruncateDiscovery} {
			start := time.Now()
			err := query.Exec(ctx, p.querier, stmt, m.Address)
			p.metrics.Observe("reset", start, err)
			if err != nil {
				mu.Lock()
				failed = append(failed, errs.Member("reset", m.Address, errs.ErrResetFailed, err))
				mu.Unlock()
				return
			}
		}
		logger.Debug(m.Address, "Local group 0 state reset")
	})
	if err != nil {
		return err
	}
	if len(failed) > 0 {
		return errors.Join(failed...)
	}

	logger.Info("", "Reset local group 0 state on %d members", len(members))
	return nil
}
