package cluster

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"group0-recovery/internal/errs"
	"group0-recovery/internal/node"
	"group0-recovery/internal/nodetool"
	"group0-recovery/internal/query"
	"group0-recovery/internal/timeuuid"
)

type fakeAdmin struct {
	lines []nodetool.StatusLine
	err   error
}

func (f *fakeAdmin) Status(ctx context.Context) ([]nodetool.StatusLine, error) {
	return f.lines, f.err
}

func (f *fakeAdmin) Remove(ctx context.Context, initiator, hostID string, ignore []string) error {
	return errors.New("not implemented")
}

func stateID(ticks int64) timeuuid.ID {
	return timeuuid.New(uuid.Time(ticks), 1, [6]byte{1, 2, 3, 4, 5, 6})
}

func hostID(i int) string {
	return fmt.Sprintf("00000000-0000-4000-8000-%012d", i)
}

// historyQuerier はaddr→state_idの表から履歴クエリに答える
func historyQuerier(ids map[string]string, failing ...string) query.QuerierFunc {
	down := make(map[string]bool)
	for _, addr := range failing {
		down[addr] = true
	}
	return func(ctx context.Context, statement, target string) ([]query.Row, error) {
		if down[target] {
			return nil, query.Error(statement, target, errors.New("connection refused"))
		}
		id, ok := ids[target]
		if !ok {
			return nil, nil
		}
		return []query.Row{{"state_id": id}}, nil
	}
}

func TestObserveMembershipClassifiesAndSorts(t *testing.T) {
	admin := &fakeAdmin{lines: []nodetool.StatusLine{
		{Code: "UN", Address: "10.0.0.10", HostID: hostID(10)},
		{Code: "DN", Address: "10.0.0.9", HostID: hostID(9)},
		{Code: "UJ", Address: "10.0.0.2", HostID: hostID(2)},
		{Code: "XX", Address: "10.0.0.7", HostID: hostID(7)},
		{Code: "DL", Address: "10.0.0.3", HostID: hostID(3)},
	}}
	r := NewStateReader(admin, historyQuerier(nil), 0)

	alive, dead, err := r.ObserveMembership(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"10.0.0.2", "10.0.0.10"}, node.Addresses(alive))
	assert.Equal(t, []string{"10.0.0.3", "10.0.0.9"}, node.Addresses(dead))
	assert.Equal(t, node.AliveLimited, alive[0].Liveness)
	assert.Equal(t, node.DeadLimited, dead[0].Liveness)
}

func TestObserveMembershipAdminError(t *testing.T) {
	r := NewStateReader(&fakeAdmin{err: errs.ErrTransport}, historyQuerier(nil), 0)

	_, _, err := r.ObserveMembership(context.Background())
	assert.ErrorIs(t, err, errs.ErrTransport)
}

func TestObserveHistoryOfOmitsUnreachableMembers(t *testing.T) {
	members := make([]node.Member, 5)
	ids := make(map[string]string)
	for i := range members {
		addr := fmt.Sprintf("10.0.0.%d", i+1)
		members[i] = node.Member{Address: addr, HostID: hostID(i + 1), Liveness: node.AliveNormal}
		ids[addr] = stateID(int64(100 + i)).String()
	}

	r := NewStateReader(&fakeAdmin{}, historyQuerier(ids, "10.0.0.2", "10.0.0.4"), 0)
	obs := r.ObserveHistoryOf(context.Background(), members)

	require.Len(t, obs, 3)
	var got []string
	for _, o := range obs {
		got = append(got, o.Member.Address)
		assert.Equal(t, ids[o.Member.Address], o.StateID.String())
	}
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.3", "10.0.0.5"}, got)
}

func TestObserveHistoryOfSkipsInvalidValues(t *testing.T) {
	members := []node.Member{
		{Address: "10.0.0.1", Liveness: node.AliveNormal},
		{Address: "10.0.0.2", Liveness: node.AliveNormal},
		{Address: "10.0.0.3", Liveness: node.AliveNormal},
	}
	ids := map[string]string{
		"10.0.0.1": stateID(5).String(),
		"10.0.0.2": uuid.NewString(), // version 4
		// 10.0.0.3 は行なし
	}

	r := NewStateReader(&fakeAdmin{}, historyQuerier(ids), 2)
	obs := r.ObserveHistoryOf(context.Background(), members)

	require.Len(t, obs, 1)
	assert.Equal(t, "10.0.0.1", obs[0].Member.Address)
}

func TestObserveHistoryIncludesDeadMembers(t *testing.T) {
	admin := &fakeAdmin{lines: []nodetool.StatusLine{
		{Code: "UN", Address: "10.0.0.1", HostID: hostID(1)},
		{Code: "DN", Address: "10.0.0.2", HostID: hostID(2)},
	}}
	ids := map[string]string{
		"10.0.0.1": stateID(1).String(),
		"10.0.0.2": stateID(2).String(),
	}
	r := NewStateReader(admin, historyQuerier(ids), 0)

	obs, err := r.ObserveHistory(context.Background())
	require.NoError(t, err)
	require.Len(t, obs, 2)
	assert.True(t, obs[1].Member.IsDead())
}

func TestGroupIDFallsBackToNextMember(t *testing.T) {
	var calls atomic.Int32
	q := query.QuerierFunc(func(ctx context.Context, statement, target string) ([]query.Row, error) {
		calls.Add(1)
		switch target {
		case "10.0.0.1":
			return nil, errors.New("timeout")
		case "10.0.0.2":
			return []query.Row{{"value": ""}}, nil
		default:
			return []query.Row{{"value": "9a2f0c1e-0000-1000-8000-000000000001"}}, nil
		}
	})
	members := []node.Member{{Address: "10.0.0.1"}, {Address: "10.0.0.2"}, {Address: "10.0.0.3"}}

	id, err := NewStateReader(&fakeAdmin{}, q, 0).GroupID(context.Background(), members)
	require.NoError(t, err)
	assert.Equal(t, node.GroupID("9a2f0c1e-0000-1000-8000-000000000001"), id)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGroupIDRejectsMalformedValue(t *testing.T) {
	q := query.QuerierFunc(func(ctx context.Context, statement, target string) ([]query.Row, error) {
		if target == "10.0.0.1" {
			return []query.Row{{"value": "0; DROP TABLE system.raft"}}, nil
		}
		return []query.Row{{"value": "9a2f0c1e-0000-1000-8000-000000000002"}}, nil
	})
	members := []node.Member{{Address: "10.0.0.1"}, {Address: "10.0.0.2"}}

	id, err := NewStateReader(&fakeAdmin{}, q, 0).GroupID(context.Background(), members)
	require.NoError(t, err)
	assert.Equal(t, node.GroupID("9a2f0c1e-0000-1000-8000-000000000002"), id)
}

func TestGroupIDNoReachableMember(t *testing.T) {
	q := query.QuerierFunc(func(ctx context.Context, statement, target string) ([]query.Row, error) {
		return nil, errors.New("unreachable")
	})
	members := []node.Member{{Address: "10.0.0.1"}, {Address: "10.0.0.2"}}

	_, err := NewStateReader(&fakeAdmin{}, q, 0).GroupID(context.Background(), members)
	assert.ErrorIs(t, err, errs.ErrNoReachableMember)
}

func TestGroupIDCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewStateReader(&fakeAdmin{}, historyQuerier(nil), 0).GroupID(ctx, []node.Member{{Address: "10.0.0.1"}})
	assert.ErrorIs(t, err, context.Canceled)
}
