package query

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"group0-recovery/internal/errs"
)

func TestRowText(t *testing.T) {
	id := uuid.MustParse("8d5a8b7e-1dd2-11ef-9b1a-0242ac110002")
	row := Row{
		"value":    "abc",
		"raw":      []byte("bytes"),
		"state_id": id,
		"count":    42,
		"missing":  nil,
	}

	v, ok := row.Text("value")
	assert.True(t, ok)
	assert.Equal(t, "abc", v)

	v, _ = row.Text("raw")
	assert.Equal(t, "bytes", v)

	v, _ = row.Text("state_id")
	assert.Equal(t, id.String(), v)

	v, _ = row.Text("count")
	assert.Equal(t, "42", v)

	_, ok = row.Text("missing")
	assert.False(t, ok)
	_, ok = row.Text("absent")
	assert.False(t, ok)
}

func TestErrorKeepsOriginalMessage(t *testing.T) {
	cause := errors.New("Unauthorized: no SELECT permission")
	err := Error("SELECT *\n  FROM system.topology", "10.0.0.1", cause)

	assert.ErrorIs(t, err, errs.ErrQuery)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "SELECT * FROM system.topology on 10.0.0.1")
	assert.Contains(t, err.Error(), "no SELECT permission")
}

func TestFirst(t *testing.T) {
	q := QuerierFunc(func(_ context.Context, statement, target string) ([]Row, error) {
		if target == "empty" {
			return nil, nil
		}
		return []Row{{"value": target}, {"value": "second"}}, nil
	})

	row, ok, err := First(context.Background(), q, SelectGroup0ID, "10.0.0.1")
	require.NoError(t, err)
	require.True(t, ok)
	v, _ := row.Text("value")
	assert.Equal(t, "10.0.0.1", v)

	_, ok, err = First(context.Background(), q, SelectGroup0ID, "empty")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteByGroup(t *testing.T) {
	stmt := DeleteByGroup("system.raft_snapshots", "11111111-2222-1333-8444-555555555555")
	assert.Equal(t, "DELETE FROM system.raft_snapshots WHERE group_id = 11111111-2222-1333-8444-555555555555", stmt)
	assert.Len(t, RaftTables, 3)
}

func TestIsSelect(t *testing.T) {
	assert.True(t, isSelect("  select * from system.topology"))
	assert.False(t, isSelect(TruncateDiscovery))
	assert.False(t, isSelect(DeleteGroup0ID))
}

func TestNewCQLDefaults(t *testing.T) {
	c := NewCQL(CQLConfig{Username: "cassandra", Password: "cassandra"})
	assert.Equal(t, 9042, c.config.Port)

	cluster := c.newCluster("10.0.0.7")
	assert.Equal(t, []string{"10.0.0.7"}, cluster.Hosts)
	assert.True(t, cluster.DisableInitialHostLookup)
	assert.NotNil(t, cluster.HostFilter)
	assert.NotNil(t, cluster.Authenticator)
}
