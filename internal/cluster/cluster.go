package cluster

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"

	"group0-recovery/internal/errs"
	"group0-recovery/internal/logger"
	"group0-recovery/internal/node"
	"group0-recovery/internal/nodetool"
	"group0-recovery/internal/query"
	"group0-recovery/internal/timeuuid"
	"group0-recovery/internal/worker"
)

// Observation はメンバーが最後に観測したgroup0履歴のID
type Observation struct {
	StateID timeuuid.ID
	Member  node.Member
}

// Reader はクラスタ状態の読み取り操作を定義するインターフェース
type Reader interface {
	ObserveMembership(ctx context.Context) (alive, dead []node.Member, err error)
	ObserveHistory(ctx context.Context) ([]Observation, error)
	ObserveHistoryOf(ctx context.Context, members []node.Member) []Observation
	GroupID(ctx context.Context, members []node.Member) (node.GroupID, error)
}

// Ensure StateReader implements Reader
var _ Reader = (*StateReader)(nil)

// StateReader は管理ツールとクエリで各メンバーの状態を読み取る
// 読み取り専用で、クラスタを変更しない
type StateReader struct {
	admin       nodetool.Admin
	querier     query.Querier
	parallelism int
}

// NewStateReader は新しいStateReaderを作成する
// parallelismが0以下なら全メンバーに同時に問い合わせる
func NewStateReader(admin nodetool.Admin, querier query.Querier, parallelism int) *StateReader {
	return &StateReader{
		admin:       admin,
		querier:     querier,
		parallelism: parallelism,
	}
}

// ObserveMembership はステータス一覧を生存/デッドに分類する
// 未知のステータスコードの行は警告を出して読み飛ばす
func (r *StateReader) ObserveMembership(ctx context.Context) (alive, dead []node.Member, err error) {
	lines, err := r.admin.Status(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read membership: %w", err)
	}

	for _, line := range lines {
		liveness, err := node.ParseLiveness(line.Code)
		if err != nil {
			logger.Warn(line.Address, "Skipping member %s: %v", line.HostID, err)
			continue
		}
		m := node.Member{
			Address:  line.Address,
			HostID:   line.HostID,
			Liveness: liveness,
		}
		if m.IsAlive() {
			alive = append(alive, m)
		} else {
			dead = append(dead, m)
		}
	}

	slices.SortFunc(alive, node.CompareAddress)
	slices.SortFunc(dead, node.CompareAddress)

	logger.Debug("", "Membership: %d alive, %d dead", len(alive), len(dead))
	return alive, dead, nil
}

// ObserveHistory はメンバーシップ上の全メンバー（デッド含む）の最新履歴IDを取得する
// 判定基準は到達可能かどうかで、ステータスコードではない
func (r *StateReader) ObserveHistory(ctx context.Context) ([]Observation, error) {
	alive, dead, err := r.ObserveMembership(ctx)
	if err != nil {
		return nil, err
	}
	members := make([]node.Member, 0, len(alive)+len(dead))
	members = append(members, alive...)
	members = append(members, dead...)
	return r.ObserveHistoryOf(ctx, members), nil
}

// ObserveHistoryOf はmembersそれぞれの最新履歴IDを取得する
// 応答しないメンバーや不正な値を返したメンバーは結果から除外され、エラーにはならない
// 結果はアドレス順
func (r *StateReader) ObserveHistoryOf(ctx context.Context, members []node.Member) []Observation {
	var (
		mu  sync.Mutex
		obs []Observation
	)

	_ = worker.ForEach(ctx, r.parallelism, members, func(ctx context.Context, m node.Member) {
		id, ok := r.latestStateID(ctx, m)
		if !ok {
			return
		}
		mu.Lock()
		obs = append(obs, Observation{StateID: id, Member: m})
		mu.Unlock()
	})

	slices.SortFunc(obs, func(a, b Observation) int {
		return node.CompareAddress(a.Member, b.Member)
	})

	logger.Info("", "Observed group 0 history on %d of %d members", len(obs), len(members))
	return obs
}

func (r *StateReader) latestStateID(ctx context.Context, m node.Member) (timeuuid.ID, bool) {
	row, ok, err := query.First(ctx, r.querier, query.SelectGroup0History, m.Address)
	if err != nil {
		logger.Warn(m.Address, "History query failed, member omitted: %v", err)
		return timeuuid.ID{}, false
	}
	if !ok {
		logger.Warn(m.Address, "No group 0 history rows, member omitted")
		return timeuuid.ID{}, false
	}

	raw, ok := row.Text("state_id")
	if !ok {
		logger.Warn(m.Address, "History row has no state_id, member omitted")
		return timeuuid.ID{}, false
	}
	id, err := timeuuid.Parse(raw)
	if err != nil {
		logger.Warn(m.Address, "Invalid state_id %q, member omitted: %v", raw, err)
		return timeuuid.ID{}, false
	}

	logger.Debug(m.Address, "Latest group 0 state id %s (%s)", id, id.Time().Format("2006-01-02 15:04:05.000"))
	return id, true
}

// GroupID はmembersを順に試し、最初に応答したメンバーのgroup0 IDを返す
func (r *StateReader) GroupID(ctx context.Context, members []node.Member) (node.GroupID, error) {
	for _, m := range members {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		row, ok, err := query.First(ctx, r.querier, query.SelectGroup0ID, m.Address)
		if err != nil {
			logger.Warn(m.Address, "Failed to read group 0 id: %v", err)
			continue
		}
		if !ok {
			logger.Warn(m.Address, "Group 0 id is not set")
			continue
		}
		value, ok := row.Text("value")
		if !ok || value == "" {
			logger.Warn(m.Address, "Group 0 id is empty")
			continue
		}
		if _, err := uuid.Parse(value); err != nil {
			logger.Warn(m.Address, "Invalid group 0 id %q: %v", value, err)
			continue
		}

		logger.Info(m.Address, "Current group 0 id: %s", value)
		return node.GroupID(value), nil
	}
	return "", fmt.Errorf("%w: could not read group 0 id from %d members", errs.ErrNoReachableMember, len(members))
}
