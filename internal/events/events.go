// Package events provides progress notifications for a recovery run.
package events

import "time"

// EventType represents the type of event
type EventType string

const (
	// EventPhaseStarted is emitted when the orchestrator enters a phase
	EventPhaseStarted EventType = "phase_started"
	// EventPhaseCompleted is emitted when a phase finishes without a fatal error
	EventPhaseCompleted EventType = "phase_completed"
	// EventLeaderSelected is emitted once the recovery leader is chosen
	EventLeaderSelected EventType = "leader_selected"
	// EventMemberState is emitted on every member lifecycle transition
	EventMemberState EventType = "member_state"
	// EventMemberFailure is emitted when a per-member operation fails
	EventMemberFailure EventType = "member_failure"
	// EventRunCompleted is emitted when the run reaches the report phase
	EventRunCompleted EventType = "run_completed"
	// EventRunAborted is emitted when a fatal error stops the run
	EventRunAborted EventType = "run_aborted"
)

// Event represents a recovery progress event
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Member    string    `json:"member,omitempty"`
	Data      EventData `json:"data,omitempty"`
}

// EventData contains event-specific data
type EventData struct {
	Phase   string `json:"phase,omitempty"`
	State   string `json:"state,omitempty"`
	HostID  string `json:"host_id,omitempty"`
	StateID string `json:"state_id,omitempty"`
	Op      string `json:"op,omitempty"`
	Outcome string `json:"outcome,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewPhaseStartedEvent creates a phase start event
func NewPhaseStartedEvent(phase string) Event {
	return Event{
		Type:      EventPhaseStarted,
		Timestamp: time.Now(),
		Data:      EventData{Phase: phase},
	}
}

// NewPhaseCompletedEvent creates a phase completion event
func NewPhaseCompletedEvent(phase string) Event {
	return Event{
		Type:      EventPhaseCompleted,
		Timestamp: time.Now(),
		Data:      EventData{Phase: phase},
	}
}

// NewLeaderSelectedEvent creates a leader selection event
func NewLeaderSelectedEvent(addr, hostID, stateID string) Event {
	return Event{
		Type:      EventLeaderSelected,
		Timestamp: time.Now(),
		Member:    addr,
		Data: EventData{
			HostID:  hostID,
			StateID: stateID,
		},
	}
}

// NewMemberStateEvent creates a lifecycle transition event
func NewMemberStateEvent(addr, state string) Event {
	return Event{
		Type:      EventMemberState,
		Timestamp: time.Now(),
		Member:    addr,
		Data:      EventData{State: state},
	}
}

// NewMemberFailureEvent creates a per-member failure event
func NewMemberFailureEvent(addr, op string, err error) Event {
	return Event{
		Type:      EventMemberFailure,
		Timestamp: time.Now(),
		Member:    addr,
		Data: EventData{
			Op:    op,
			Error: errString(err),
		},
	}
}

// NewRunCompletedEvent creates a run completion event
func NewRunCompletedEvent(outcome string) Event {
	return Event{
		Type:      EventRunCompleted,
		Timestamp: time.Now(),
		Data:      EventData{Outcome: outcome},
	}
}

// NewRunAbortedEvent creates a run abort event
func NewRunAbortedEvent(phase string, err error) Event {
	return Event{
		Type:      EventRunAborted,
		Timestamp: time.Now(),
		Data: EventData{
			Phase: phase,
			Error: errString(err),
		},
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
