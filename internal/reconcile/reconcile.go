// Package reconcile removes permanently dead members from the recovered group.
package reconcile

import (
	"context"
	"errors"
	"time"

	"group0-recovery/internal/errs"
	"group0-recovery/internal/events"
	"group0-recovery/internal/logger"
	"group0-recovery/internal/metrics"
	"group0-recovery/internal/node"
	"group0-recovery/internal/nodetool"
)

// Reconciler はデッドメンバーを1台ずつ除去する
type Reconciler struct {
	admin   nodetool.Admin
	bus     events.Publisher
	metrics *metrics.Metrics
}

// New は新しいReconcilerを作成する
func New(admin nodetool.Admin) *Reconciler {
	return &Reconciler{admin: admin}
}

// SetEventBus は失敗の通知先を設定する
func (r *Reconciler) SetEventBus(bus events.Publisher) {
	r.bus = bus
}

// SetMetrics は操作メトリクスの記録先を設定する
func (r *Reconciler) SetMetrics(m *metrics.Metrics) {
	r.metrics = m
}

// Remove はinitiator上でdeadの除去を要求する
func (r *Reconciler) Remove(ctx context.Context, initiator node.Member, dead node.Member, ignore []string) error {
	start := time.Now()
	err := r.admin.Remove(ctx, initiator.Address, dead.HostID, ignore)
	r.metrics.Observe("remove", start, err)
	if err != nil {
		return errs.Member("remove", dead.Address, errs.ErrRemovalFailed, err)
	}
	logger.Info(dead.Address, "Removed %s via %s", dead.HostID, initiator.Address)
	return nil
}

// RemoveAll はdeadを順番に除去し、失敗を集めて返す
// i番目の呼び出しには、それまでに処理したデッドメンバーのアドレスが呼び出し順で渡される
// initiatorsは呼び出しごとにラウンドロビンで使う
func (r *Reconciler) RemoveAll(ctx context.Context, initiators []node.Member, dead []node.Member) ([]error, error) {
	if len(dead) == 0 {
		return nil, nil
	}
	if len(initiators) == 0 {
		return nil, errors.New("no live member to initiate removals")
	}

	var (
		failures []error
		ignore   []string
	)
	for i, d := range dead {
		if err := ctx.Err(); err != nil {
			return failures, err
		}

		initiator := initiators[i%len(initiators)]
		if err := r.Remove(ctx, initiator, d, append([]string(nil), ignore...)); err != nil {
			if ctx.Err() != nil {
				return failures, ctx.Err()
			}
			logger.Error(d.Address, "Removal failed: %v", err)
			events.Publish(r.bus, events.NewMemberFailureEvent(d.Address, "remove", err))
			failures = append(failures, err)
		}
		ignore = append(ignore, d.Address)
	}

	logger.Info("", "Processed %d dead members (%d failed)", len(dead), len(failures))
	return failures, nil
}
