package recovery

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"group0-recovery/internal/errs"
	"group0-recovery/internal/events"
	"group0-recovery/internal/leader"
	"group0-recovery/internal/logger"
	"group0-recovery/internal/node"
	"group0-recovery/internal/worker"
)

// Phase はリカバリー手順の段階
type Phase string

const (
	PhaseCaptureGroup   Phase = "capture-group"
	PhaseSelectLeader   Phase = "select-leader"
	PhaseResetState     Phase = "reset-state"
	PhaseWriteMarkers   Phase = "write-markers"
	PhaseStopMembers    Phase = "stop-members"
	PhaseStartLeader    Phase = "start-leader"
	PhaseStartFollowers Phase = "start-followers"
	PhaseRemoveDead     Phase = "remove-dead"
	PhasePurge          Phase = "purge"
	PhaseCleanupMarkers Phase = "cleanup-markers"
	PhaseDone           Phase = "done"
)

type phase struct {
	name Phase
	fn   func(ctx context.Context) error
}

// phases は実行順に並んだフェーズを返す
func (r *run) phases() []phase {
	return []phase{
		{PhaseCaptureGroup, r.captureGroup},
		{PhaseSelectLeader, r.selectLeader},
		{PhaseResetState, r.resetState},
		{PhaseWriteMarkers, r.writeMarkers},
		{PhaseStopMembers, r.stopMembers},
		{PhaseStartLeader, r.startLeader},
		{PhaseStartFollowers, r.startFollowers},
		{PhaseRemoveDead, r.removeDead},
		{PhasePurge, r.purge},
		{PhaseCleanupMarkers, r.cleanupMarkers},
	}
}

// captureGroup はメンバーシップを取得し、旧group0 IDを記録する
func (r *run) captureGroup(ctx context.Context) error {
	alive, dead, err := r.o.reader.ObserveMembership(ctx)
	if err != nil {
		return err
	}
	if len(alive) == 0 {
		return fmt.Errorf("%w: membership lists no live member", errs.ErrNoReachableMember)
	}
	r.plan.Live, r.plan.Dead = alive, dead

	id, err := r.o.reader.GroupID(ctx, alive)
	if err != nil {
		return err
	}
	r.plan.OldGroupID = id

	logger.Info("", "Old group 0 id %s (%d live, %d dead)", id, len(alive), len(dead))
	return nil
}

// selectLeader は到達できた全メンバーの履歴から最新の状態を持つメンバーを選ぶ
func (r *run) selectLeader(ctx context.Context) error {
	members := make([]node.Member, 0, len(r.plan.Live)+len(r.plan.Dead))
	members = append(members, r.plan.Live...)
	members = append(members, r.plan.Dead...)

	obs := r.o.reader.ObserveHistoryOf(ctx, members)
	if err := ctx.Err(); err != nil {
		return err
	}
	r.plan.Observations = len(obs)

	best, err := leader.Select(obs)
	if err != nil {
		return err
	}
	if !contains(r.plan.Live, best.Member.Address) {
		return fmt.Errorf("%w: %s (state_id %s)", errs.ErrLeaderNotLive, best.Member.Address, best.StateID)
	}

	r.plan.Leader = best.Member.WithRole(node.RoleCandidateLeader)
	r.plan.LeaderStateID = best.StateID.String()
	r.o.publish(events.NewLeaderSelectedEvent(best.Member.Address, best.Member.HostID, best.StateID.String()))
	return nil
}

// resetState はメンバーシップを取り直し、生存メンバーのローカルgroup0状態を消去する
// ここで取り直したメンバーシップがマーカーの書き込み先になる
func (r *run) resetState(ctx context.Context) error {
	alive, dead, err := r.o.reader.ObserveMembership(ctx)
	if err != nil {
		return err
	}
	if !contains(alive, r.plan.Leader.Address) {
		return fmt.Errorf("%w: %s is no longer alive", errs.ErrLeaderNotLive, r.plan.Leader.Address)
	}
	r.plan.Live, r.plan.Dead = alive, dead

	if !r.o.config.ResetLocalState {
		logger.Info("", "Local state reset disabled, skipping")
		return nil
	}
	if err := r.purger.ResetLocalState(ctx, r.plan.Live); err != nil {
		return err
	}
	r.plan.Checklist.StateReset = true
	return nil
}

// writeMarkers は全生存メンバーにリカバリーマーカーを書き込む
// 1台でも失敗すれば再起動に進まない
func (r *run) writeMarkers(ctx context.Context) error {
	errList := r.each(ctx, r.plan.Live, func(ctx context.Context, m node.Member) error {
		return r.lc.WriteRecoveryMarker(ctx, m, r.plan.Leader.HostID)
	})
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(errList) > 0 {
		return errors.Join(errList...)
	}
	r.plan.Checklist.MarkersWritten = true
	return nil
}

// stopMembers は全生存メンバーを停止する
// 一部だけ停止したクラスタは再起動しない
func (r *run) stopMembers(ctx context.Context) error {
	errList := r.each(ctx, r.plan.Live, r.lc.Stop)
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(errList) > 0 {
		return errors.Join(errList...)
	}
	return nil
}

// startLeader はリーダーを起動してReadyを待つ
// 期限切れの場合はフォロワーを起動せずに中断する
func (r *run) startLeader(ctx context.Context) error {
	return r.lc.StartAndWait(ctx, r.plan.Leader, r.o.config.LeaderTimeout)
}

// startFollowers はリーダー以外を並列に起動する
// 起動失敗や期限切れは記録して続行する
func (r *run) startFollowers(ctx context.Context) error {
	followers := make([]node.Member, 0, len(r.plan.Live))
	for _, m := range r.plan.Live {
		if m.Address != r.plan.Leader.Address {
			followers = append(followers, m.WithRole(node.RoleFollower))
		}
	}

	errList := r.each(ctx, followers, func(ctx context.Context, m node.Member) error {
		return r.lc.StartAndWait(ctx, m, r.o.config.FollowerTimeout)
	})
	if err := ctx.Err(); err != nil {
		return err
	}
	r.report.FollowerTimeouts = errList
	return nil
}

// removeDead はメンバーシップを取り直し、デッドメンバーを1台ずつ除去する
// 計画時に生存していたメンバーは、再起動に失敗してデッドに見えても除去しない
func (r *run) removeDead(ctx context.Context) error {
	_, dead, err := r.o.reader.ObserveMembership(ctx)
	if err != nil {
		return err
	}

	var targets []node.Member
	for _, m := range dead {
		if contains(r.plan.Live, m.Address) {
			logger.Warn(m.Address, "Member was live before the restart, not removing it")
			continue
		}
		targets = append(targets, m)
	}

	failures, err := r.reconciler.RemoveAll(ctx, r.ready(), targets)
	r.report.RemovalFailures = failures
	if err != nil {
		return err
	}
	r.plan.Checklist.DeadMembersRemoved = len(failures) == 0
	return nil
}

// purge はメンバーシップを取り直し、旧グループのRaftメタデータを生存メンバーから削除する
// 再起動に失敗して停止したままのメンバーは対象外
func (r *run) purge(ctx context.Context) error {
	alive, _, err := r.o.reader.ObserveMembership(ctx)
	if err != nil {
		return err
	}
	skipped := 0
	for _, m := range r.plan.Live {
		if !contains(alive, m.Address) {
			skipped++
			logger.Warn(m.Address, "Member is not alive after the restart, old group data left in place")
		}
	}

	failures, err := r.purger.Purge(ctx, r.plan.OldGroupID, alive)
	r.report.PurgeFailures = failures
	if err != nil {
		return err
	}
	r.plan.Checklist.GroupDataPurged = len(failures) == 0 && skipped == 0
	return nil
}

// cleanupMarkers はReadyになったメンバーからマーカーを削除する
// Readyにならなかったメンバーは後で手動で再起動できるようにマーカーを残す
func (r *run) cleanupMarkers(ctx context.Context) error {
	if !r.o.config.RemoveMarker {
		logger.Info("", "Marker removal disabled, markers stay in place")
		return nil
	}

	errList := r.each(ctx, r.ready(), r.lc.RemoveMarker)
	if err := ctx.Err(); err != nil {
		return err
	}
	r.report.MarkerCleanupFailures = errList
	return nil
}

// ready はReadyになった生存メンバーを返す（リーダーが先頭）
func (r *run) ready() []node.Member {
	out := []node.Member{r.plan.Leader}
	for _, m := range r.plan.Live {
		if m.Address != r.plan.Leader.Address && r.lc.State(m.Address) == node.StateReady {
			out = append(out, m)
		}
	}
	return out
}

// each はmembersにfnを並列に適用し、失敗を集める
func (r *run) each(ctx context.Context, members []node.Member, fn func(context.Context, node.Member) error) []error {
	var (
		mu      sync.Mutex
		errList []error
	)
	_ = worker.ForEach(ctx, r.o.config.Parallelism, members, func(ctx context.Context, m node.Member) {
		if err := fn(ctx, m); err != nil {
			if ctx.Err() != nil {
				return
			}
			var me *errs.MemberError
			op := "unknown"
			if errors.As(err, &me) {
				op = me.Op
			}
			logger.Error(m.Address, "%s failed: %v", op, err)
			r.o.publish(events.NewMemberFailureEvent(m.Address, op, err))

			mu.Lock()
			errList = append(errList, err)
			mu.Unlock()
		}
	})
	return errList
}

func contains(members []node.Member, addr string) bool {
	for _, m := range members {
		if m.Address == addr {
			return true
		}
	}
	return false
}
