package sim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"group0-recovery/internal/errs"
	"group0-recovery/internal/lifecycle"
	"group0-recovery/internal/nodetool"
	"group0-recovery/internal/query"
	"group0-recovery/internal/remote"
	"group0-recovery/internal/timeuuid"
)

func TestStatusParsesThroughNodetool(t *testing.T) {
	c := EntryLossScenario()
	admin := nodetool.New(c.Executor(), "nodetool", c.Contacts())

	lines, err := admin.Status(context.Background())
	require.NoError(t, err)
	require.Len(t, lines, 5)

	codes := make(map[string]string)
	for _, l := range lines {
		codes[l.Address] = l.Code
		assert.Equal(t, HostIDFor(l.Address), l.HostID)
	}
	assert.Equal(t, "UN", codes["10.0.0.1"])
	assert.Equal(t, "DN", codes["10.0.1.2"])
}

func TestUnreachableMember(t *testing.T) {
	c := EntryLossScenario()
	require.NoError(t, c.Inject("10.0.0.1", FaultUnreachable))

	_, err := remote.Run(context.Background(), c.Executor(), "10.0.0.1", "sudo systemctl stop scylla-server")
	assert.ErrorIs(t, err, errs.ErrTransport)

	_, err = c.Querier().Execute(context.Background(), query.SelectGroup0History, "10.0.0.1")
	assert.ErrorIs(t, err, errs.ErrQuery)

	calls := c.Calls()
	require.Len(t, calls, 2)
	assert.True(t, calls[0].Failed)
	assert.Equal(t, OpStop, calls[0].Op)

	require.NoError(t, c.Heal("10.0.0.1", FaultUnreachable))
	_, err = c.Querier().Execute(context.Background(), query.SelectGroup0History, "10.0.0.1")
	assert.NoError(t, err)
}

func TestHistoryRows(t *testing.T) {
	c := EntryLossScenario()

	row, ok, err := query.First(context.Background(), c.Querier(), query.SelectGroup0History, "10.0.0.3")
	require.NoError(t, err)
	require.True(t, ok)

	raw, ok := row.Text("state_id")
	require.True(t, ok)
	id, err := timeuuid.Parse(raw)
	require.NoError(t, err)
	assert.True(t, presetEpoch.Add(3*time.Second).Equal(id.Time()), "got %s", id.Time())
}

func TestRecoveryRestartJoinsNewGroup(t *testing.T) {
	c := EntryLossScenario()
	ctx := context.Background()
	exec := c.Executor()
	leader := HostIDFor("10.0.0.3")

	content, err := lifecycle.RenderMarker(leader)
	require.NoError(t, err)

	_, err = remote.Run(ctx, exec, "10.0.0.1", lifecycle.WriteMarkerCommand("/etc/scylla.d/recovery.yaml", content))
	require.NoError(t, err)
	_, err = remote.Run(ctx, exec, "10.0.0.1", "sudo systemctl stop scylla-server")
	require.NoError(t, err)

	// 停止中はクエリに応答しない
	err = query.Exec(ctx, c.Querier(), query.SelectTopology, "10.0.0.1")
	assert.Error(t, err)

	_, err = remote.Run(ctx, exec, "10.0.0.1", "sudo systemctl start scylla-server")
	require.NoError(t, err)

	view, ok := c.Member("10.0.0.1")
	require.True(t, ok)
	assert.Equal(t, leader, view.Marker)
	assert.True(t, view.Running)
	assert.Equal(t, string(c.NewGroupID()), view.GroupID)
	assert.NotEqual(t, c.GroupID(), c.NewGroupID())

	calls := c.CallsOf(OpWriteMarker)
	require.Len(t, calls, 1)
	assert.Equal(t, leader, calls[0].Leader)
}

func TestReadyAfterChecks(t *testing.T) {
	c := EntryLossScenario()
	require.NoError(t, c.SetReadyAfter("10.0.0.2", 2))
	ctx := context.Background()

	assert.Error(t, query.Exec(ctx, c.Querier(), query.SelectTopology, "10.0.0.2"))
	assert.Error(t, query.Exec(ctx, c.Querier(), query.SelectTopology, "10.0.0.2"))
	assert.NoError(t, query.Exec(ctx, c.Querier(), query.SelectTopology, "10.0.0.2"))
}

func TestRemoveNode(t *testing.T) {
	c := EntryLossScenario()
	admin := nodetool.New(c.Executor(), "nodetool", c.Contacts())
	ctx := context.Background()

	require.NoError(t, admin.Remove(ctx, "10.0.0.1", HostIDFor("10.0.1.1"), nil))
	require.NoError(t, admin.Remove(ctx, "10.0.0.2", HostIDFor("10.0.1.2"), []string{"10.0.1.1"}))

	// 稼働中のメンバーは除去できない
	assert.Error(t, admin.Remove(ctx, "10.0.0.1", HostIDFor("10.0.0.2"), nil))

	calls := c.CallsOf(OpRemove)
	require.Len(t, calls, 3)
	assert.Nil(t, calls[0].Ignore)
	assert.Equal(t, []string{"10.0.1.1"}, calls[1].Ignore)
	assert.Equal(t, "10.0.0.2", calls[1].Addr)

	view, _ := c.Member("10.0.1.2")
	assert.True(t, view.Removed)

	lines, err := admin.Status(ctx)
	require.NoError(t, err)
	assert.Len(t, lines, 3)
}

func TestPurgeStatements(t *testing.T) {
	c := EntryLossScenario()
	ctx := context.Background()
	group := string(c.GroupID())

	require.Equal(t, 9, c.RaftRows("10.0.0.1", c.GroupID()))
	for _, table := range query.RaftTables {
		require.NoError(t, query.Exec(ctx, c.Querier(), query.DeleteByGroup(table, group), "10.0.0.1"))
	}
	assert.Equal(t, 0, c.RaftRows("10.0.0.1", c.GroupID()))

	require.NoError(t, c.Inject("10.0.0.2", FaultFailPurge))
	err := query.Exec(ctx, c.Querier(), query.DeleteByGroup("system.raft", group), "10.0.0.2")
	assert.ErrorIs(t, err, errs.ErrQuery)
}

func TestUnknownCommand(t *testing.T) {
	c := EntryLossScenario()
	_, err := remote.Run(context.Background(), c.Executor(), "10.0.0.1", "uptime")

	var cmdErr *remote.CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, 127, cmdErr.ExitStatus)
}

func TestPresets(t *testing.T) {
	names := ListPresets()
	assert.Contains(t, names, "entry-loss")
	assert.Contains(t, names, "leader-timeout")

	for _, name := range names {
		p, ok := GetPreset(name)
		require.True(t, ok, name)
		assert.Equal(t, name, p.Name)
		assert.NotEmpty(t, p.Build().Addresses())
	}

	_, ok := GetPreset("nonexistent")
	assert.False(t, ok)
}

func TestSummary(t *testing.T) {
	c := DegradedScenario()
	lines := c.Summary()
	require.Len(t, lines, 6)
	assert.Contains(t, lines[4], "fail-removal")
	assert.Contains(t, lines[3], "dead")
}
