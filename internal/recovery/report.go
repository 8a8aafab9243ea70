package recovery

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"group0-recovery/internal/metrics"
	"group0-recovery/internal/node"
)

// Outcome はリカバリー実行の結果
type Outcome int

const (
	OutcomeSucceeded Outcome = iota
	OutcomePartialSuccess
	OutcomeAborted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomePartialSuccess:
		return "partial-success"
	case OutcomeAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Report はリカバリー実行結果
type Report struct {
	Outcome   Outcome
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	Plan Plan

	// 非致命的な失敗
	FollowerTimeouts      []error // フォロワーの起動失敗と期限切れ
	RemovalFailures       []error
	PurgeFailures         []error
	MarkerCleanupFailures []error

	// 中断した場合のみ
	AbortPhase Phase
	AbortErr   error

	MemberStates map[string]node.State
	Metrics      metrics.Snapshot
}

// Leader は選ばれたリカバリーリーダーを返す
func (r *Report) Leader() node.Member {
	return r.Plan.Leader
}

// OldGroupID は置き換えられたgroup0のIDを返す
func (r *Report) OldGroupID() node.GroupID {
	return r.Plan.OldGroupID
}

// Failures は非致命的な失敗をすべて返す
func (r *Report) Failures() []error {
	var out []error
	out = append(out, r.FollowerTimeouts...)
	out = append(out, r.RemovalFailures...)
	out = append(out, r.PurgeFailures...)
	out = append(out, r.MarkerCleanupFailures...)
	return out
}

func checkbox(done bool) string {
	if done {
		return "[x]"
	}
	return "[ ]"
}

// String は結果をフォーマットして返す
func (r *Report) String() string {
	leader := "(none)"
	if r.Plan.Leader.Address != "" {
		leader = fmt.Sprintf("%s (%s)", r.Plan.Leader.Address, r.Plan.Leader.HostID)
	}
	groupID := string(r.Plan.OldGroupID)
	if groupID == "" {
		groupID = "(unknown)"
	}

	var b strings.Builder
	fmt.Fprintf(&b, `
================================================================================
                       GROUP 0 RECOVERY REPORT: %s
================================================================================

EXECUTION SUMMARY
-----------------
  Start Time:     %s
  End Time:       %s
  Duration:       %v
`,
		strings.ToUpper(r.Outcome.String()),
		r.StartTime.Format("2006-01-02 15:04:05"),
		r.EndTime.Format("2006-01-02 15:04:05"),
		r.Duration.Round(time.Millisecond),
	)

	if r.Outcome == OutcomeAborted {
		fmt.Fprintf(&b, "  Aborted In:     %s\n  Error:          %v\n", r.AbortPhase, r.AbortErr)
	}

	fmt.Fprintf(&b, `
RECOVERY PLAN
-------------
  Old Group ID:   %s
  Leader:         %s
  Leader State:   %s
  Observations:   %d
  Live Members:   %s
  Dead Members:   %s

CHECKLIST
---------
  %s local group 0 state reset
  %s recovery markers written
  %s dead members removed
  %s old group data purged
`,
		groupID,
		leader,
		orNone(r.Plan.LeaderStateID),
		r.Plan.Observations,
		orNone(strings.Join(node.Addresses(r.Plan.Live), ", ")),
		orNone(strings.Join(node.Addresses(r.Plan.Dead), ", ")),
		checkbox(r.Plan.Checklist.StateReset),
		checkbox(r.Plan.Checklist.MarkersWritten),
		checkbox(r.Plan.Checklist.DeadMembersRemoved),
		checkbox(r.Plan.Checklist.GroupDataPurged),
	)

	b.WriteString("\nFAILURES\n--------\n")
	failures := []struct {
		label string
		errs  []error
	}{
		{"follower", r.FollowerTimeouts},
		{"removal", r.RemovalFailures},
		{"purge", r.PurgeFailures},
		{"marker", r.MarkerCleanupFailures},
	}
	n := 0
	for _, f := range failures {
		for _, err := range f.errs {
			fmt.Fprintf(&b, "  %-10s %v\n", f.label+":", err)
			n++
		}
	}
	if n == 0 {
		b.WriteString("  (none)\n")
	}

	b.WriteString("\nOPERATIONS\n----------\n")
	if len(r.Metrics.Ops) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, op := range r.Metrics.Ops {
		fmt.Fprintf(&b, "  %-16s ok=%-4d failed=%-4d avg=%-10v max=%v\n",
			op.Op, op.Success, op.Failed,
			op.AverageLatency.Round(time.Microsecond), op.MaxLatency.Round(time.Microsecond))
	}

	b.WriteString("\nFINAL MEMBER STATE\n------------------\n")
	addrs := make([]string, 0, len(r.MemberStates))
	for addr := range r.MemberStates {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)
	for _, addr := range addrs {
		fmt.Fprintf(&b, "  %-20s %s\n", addr+":", r.MemberStates[addr])
	}

	b.WriteString("\n================================================================================")
	return b.String()
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
