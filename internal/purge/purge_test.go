package purge

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"group0-recovery/internal/errs"
	"group0-recovery/internal/metrics"
	"group0-recovery/internal/node"
	"group0-recovery/internal/query"
)

type statementLog struct {
	mu    sync.Mutex
	stmts map[string][]string // target -> statements
	fail  func(statement, target string) bool
}

func (l *statementLog) Execute(ctx context.Context, statement, target string) ([]query.Row, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stmts == nil {
		l.stmts = make(map[string][]string)
	}
	l.stmts[target] = append(l.stmts[target], statement)
	if l.fail != nil && l.fail(statement, target) {
		return nil, query.Error(statement, target, errors.New("write timeout"))
	}
	return nil, nil
}

var live = []node.Member{
	{Address: "10.0.0.1", Liveness: node.AliveNormal},
	{Address: "10.0.0.2", Liveness: node.AliveNormal},
	{Address: "10.0.0.3", Liveness: node.AliveNormal},
}

const groupID node.GroupID = "b7c1a8e0-1d2e-11ef-9262-0242ac120002"

func TestPurgeDeletesAllTablesOnEveryMember(t *testing.T) {
	log := &statementLog{}
	m := metrics.New()
	p := New(log, 0)
	p.SetMetrics(m)

	failures, err := p.Purge(context.Background(), groupID, live)
	require.NoError(t, err)
	assert.Empty(t, failures)

	for _, mem := range live {
		assert.Equal(t, []string{
			"DELETE FROM system.raft WHERE group_id = " + string(groupID),
			"DELETE FROM system.raft_snapshots WHERE group_id = " + string(groupID),
			"DELETE FROM system.raft_snapshot_config WHERE group_id = " + string(groupID),
		}, log.stmts[mem.Address])
	}
	assert.Equal(t, uint64(9), m.SuccessOps())
}

func TestPurgeFailureDoesNotBlockOthers(t *testing.T) {
	log := &statementLog{fail: func(statement, target string) bool {
		return target == "10.0.0.2" && strings.Contains(statement, "system.raft ")
	}}

	failures, err := New(log, 1).Purge(context.Background(), groupID, live)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures[0], errs.ErrPurgeFailed)
	assert.ErrorIs(t, failures[0], errs.ErrQuery)

	// 失敗したメンバーでも残りのテーブルは削除を試みる
	assert.Len(t, log.stmts["10.0.0.2"], 3)
	assert.Len(t, log.stmts["10.0.0.3"], 3)
}

func TestPurgeRequiresGroupID(t *testing.T) {
	_, err := New(&statementLog{}, 0).Purge(context.Background(), "", live)
	assert.Error(t, err)
}

func TestResetLocalState(t *testing.T) {
	log := &statementLog{}
	require.NoError(t, New(log, 0).ResetLocalState(context.Background(), live))

	for _, mem := range live {
		assert.Equal(t, []string{query.DeleteGroup0ID, query.TruncateDiscovery}, log.stmts[mem.Address])
	}
}

func TestResetLocalStateFailure(t *testing.T) {
	log := &statementLog{fail: func(statement, target string) bool {
		return target == "10.0.0.3" && statement == query.TruncateDiscovery
	}}

	err := New(log, 0).ResetLocalState(context.Background(), live)
	assert.ErrorIs(t, err, errs.ErrResetFailed)
	assert.Contains(t, err.Error(), "10.0.0.3")
}
