package sim

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"group0-recovery/internal/remote"
)

var markerLeaderPattern = regexp.MustCompile(`recovery_leader:\s*["']?([0-9A-Za-z-]+)`)

// Executor はクラスタをremote.Executorとして返す
func (c *Cluster) Executor() remote.Executor {
	return remote.ExecutorFunc(c.Run)
}

// Run はメンバー上でのコマンド実行をシミュレートする
// 管理ツール、systemctl、マーカーの書き込み/削除を理解する
func (c *Cluster) Run(ctx context.Context, addr, command string) (remote.Result, error) {
	if err := ctx.Err(); err != nil {
		return remote.Result{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	call := classify(command)
	call.Addr = addr
	i := c.record(call)

	m, ok := c.members[addr]
	if !ok {
		c.markFailed(i)
		return remote.Result{}, fmt.Errorf("dial tcp %s:22: connect: no route to host", addr)
	}
	if !m.reachable() {
		c.markFailed(i)
		return remote.Result{}, fmt.Errorf("dial tcp %s:22: i/o timeout", addr)
	}

	if call.Op == OpStart && m.faults[FaultHangStart] {
		c.markFailed(i)
		c.mu.Unlock()
		<-ctx.Done()
		c.mu.Lock()
		return remote.Result{}, ctx.Err()
	}

	var res remote.Result
	switch call.Op {
	case OpStatus:
		res = c.status(m)
	case OpRemove:
		res = c.removeNode(m, call.HostID)
	case OpStop:
		res = c.stop(m)
	case OpStart:
		res = c.start(m)
	case OpWriteMarker:
		res = c.writeMarker(m, call.Leader)
	case OpRemoveMarker:
		res = c.removeMarker(m)
	default:
		res = remote.Result{ExitStatus: 127, Stderr: "sh: command not found"}
	}
	if res.ExitStatus != 0 {
		c.markFailed(i)
	}
	return res, nil
}

func classify(command string) Call {
	fields := strings.Fields(command)
	switch {
	case len(fields) >= 2 && strings.HasSuffix(fields[0], "nodetool") && fields[1] == "status":
		return Call{Op: OpStatus}
	case len(fields) >= 3 && strings.HasSuffix(fields[0], "nodetool") && fields[1] == "removenode":
		call := Call{Op: OpRemove, HostID: unquote(fields[len(fields)-1])}
		for j := 2; j < len(fields)-2; j++ {
			if fields[j] == "--ignore-dead-nodes" {
				call.Ignore = strings.Split(unquote(fields[j+1]), ",")
			}
		}
		return call
	case strings.Contains(command, "| sudo tee "):
		call := Call{Op: OpWriteMarker}
		if match := markerLeaderPattern.FindStringSubmatch(command); match != nil {
			call.Leader = match[1]
		}
		return call
	case strings.Contains(command, "rm -f "):
		return Call{Op: OpRemoveMarker}
	case strings.Contains(command, "systemctl stop"):
		return Call{Op: OpStop}
	case strings.Contains(command, "systemctl start"):
		return Call{Op: OpStart}
	default:
		return Call{Op: OpUnknown}
	}
}

func unquote(field string) string {
	return strings.Trim(field, "'")
}

// status は `nodetool status` 相当の出力を作る
func (c *Cluster) status(contact *member) remote.Result {
	if !contact.running {
		return remote.Result{ExitStatus: 1, Stderr: "nodetool: Failed to connect to '127.0.0.1:7199'"}
	}

	var b strings.Builder
	b.WriteString("Datacenter: datacenter1\n")
	b.WriteString("=======================\n")
	b.WriteString("Status=Up/Down\n")
	b.WriteString("|/ State=Normal/Leaving/Joining/Moving\n")
	b.WriteString("--  Address         Load       Tokens  Owns  Host ID                               Rack\n")
	for _, addr := range c.order {
		m := c.members[addr]
		if m.removed {
			continue
		}
		code := "UN"
		if m.dead || !m.running {
			code = "DN"
		}
		fmt.Fprintf(&b, "%s  %-15s %-10s %-7d ?     %s  rack1\n", code, m.address, "1.02 MB", 256, m.hostID)
	}
	return remote.Result{Stdout: b.String()}
}

func (c *Cluster) removeNode(initiator *member, hostID string) remote.Result {
	if !initiator.running {
		return remote.Result{ExitStatus: 1, Stderr: "nodetool: Failed to connect to '127.0.0.1:7199'"}
	}

	var target *member
	for _, m := range c.members {
		if m.hostID == hostID && !m.removed {
			target = m
			break
		}
	}
	switch {
	case target == nil:
		return remote.Result{ExitStatus: 1, Stderr: fmt.Sprintf("error: Host ID not found: %s", hostID)}
	case target.running:
		return remote.Result{ExitStatus: 1, Stderr: fmt.Sprintf("error: Node %s is alive and owns this ID", target.address)}
	case target.faults[FaultFailRemoval]:
		return remote.Result{ExitStatus: 1, Stderr: "error: removenode failed: raft operation timed out"}
	}

	target.removed = true
	return remote.Result{Stdout: fmt.Sprintf("Removed %s\n", hostID)}
}

func (c *Cluster) stop(m *member) remote.Result {
	if m.faults[FaultFailStop] {
		return remote.Result{ExitStatus: 1, Stderr: "Job for scylla-server.service failed"}
	}
	m.running = false
	return remote.Result{}
}

func (c *Cluster) start(m *member) remote.Result {
	if m.faults[FaultFailStart] {
		return remote.Result{ExitStatus: 1, Stderr: "Job for scylla-server.service failed because the control process exited with error code"}
	}
	m.running = true
	m.checks = 0

	// マーカーがあればリカバリーモードで起動し、新しいgroup0に参加する
	if m.marker != "" {
		group := string(c.ensureNewGroup())
		m.local["raft_group0_id"] = group
		for _, table := range m.raft {
			table[group] = 1
		}
	}
	return remote.Result{}
}

func (c *Cluster) removeMarker(m *member) remote.Result {
	if m.faults[FaultFailMarkerRemoval] {
		return remote.Result{ExitStatus: 1, Stderr: "rm: cannot remove '/etc/scylla.d/recovery.yaml': Read-only file system"}
	}
	m.marker = ""
	return remote.Result{}
}

func (c *Cluster) writeMarker(m *member, leader string) remote.Result {
	if m.faults[FaultFailMarker] {
		return remote.Result{ExitStatus: 1, Stderr: "tee: /etc/scylla.d/recovery.yaml: Permission denied"}
	}
	if leader == "" {
		return remote.Result{ExitStatus: 1, Stderr: "malformed recovery marker"}
	}
	m.marker = leader
	return remote.Result{}
}
