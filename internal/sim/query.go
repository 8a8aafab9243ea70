package sim

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"group0-recovery/internal/query"
)

var deleteByGroupPattern = regexp.MustCompile(`^DELETE FROM (\S+) WHERE group_id = (\S+)$`)

// Querier はクラスタをquery.Querierとして返す
func (c *Cluster) Querier() query.Querier {
	return query.QuerierFunc(c.Query)
}

// Query はtarget上でのステートメント実行をシミュレートする
func (c *Cluster) Query(ctx context.Context, statement, target string) ([]query.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.record(Call{Op: OpQuery, Addr: target, Statement: statement})
	rows, err := c.execute(statement, target)
	if err != nil {
		c.markFailed(i)
		return nil, query.Error(statement, target, err)
	}
	return rows, nil
}

func (c *Cluster) execute(statement, target string) ([]query.Row, error) {
	m, ok := c.members[target]
	if !ok {
		return nil, fmt.Errorf("no host available: %s", target)
	}
	if !m.reachable() {
		return nil, errors.New("gocql: no response received from cassandra within timeout period")
	}
	if !m.running {
		return nil, fmt.Errorf("dial tcp %s:9042: connect: connection refused", target)
	}

	switch statement {
	case query.SelectGroup0History:
		if m.faults[FaultHistoryUnavailable] {
			return nil, errors.New("operation timed out for system.group0_history")
		}
		if m.stateID.IsZero() {
			return nil, nil
		}
		return []query.Row{{"state_id": m.stateID.UUID()}}, nil

	case query.SelectGroup0ID:
		v, ok := m.local["raft_group0_id"]
		if !ok {
			return nil, nil
		}
		return []query.Row{{"value": v}}, nil

	case query.SelectTopology:
		if m.faults[FaultNeverReady] {
			return nil, errors.New("group 0 is not ready")
		}
		m.checks++
		if m.checks <= m.readyAfter {
			return nil, errors.New("group 0 is not ready")
		}
		return []query.Row{{"host_id": m.hostID}}, nil

	case query.DeleteGroup0ID:
		delete(m.local, "raft_group0_id")
		return nil, nil

	case query.TruncateDiscovery:
		m.discovery = 0
		return nil, nil
	}

	if match := deleteByGroupPattern.FindStringSubmatch(statement); match != nil {
		if m.faults[FaultFailPurge] {
			return nil, errors.New("operation timed out for " + match[1])
		}
		groups, ok := m.raft[match[1]]
		if !ok {
			return nil, fmt.Errorf("unconfigured table %s", match[1])
		}
		delete(groups, match[2])
		return nil, nil
	}

	return nil, fmt.Errorf("unsupported statement: %s", statement)
}
