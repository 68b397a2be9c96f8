package events

// Event type constants for kelindar/event.
const (
	TypeTelemetryUpdated uint32 = iota + 1
	TypeTransportStateChanged
	TypeActionExecuted
	TypePollError
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// TelemetryUpdatedEvent is published after every successful poll cycle,
// once the new snapshot has been swapped in.
type TelemetryUpdatedEvent struct {
	CycleID   uint64 `json:"cycle_id" example:"1042" doc:"Monotonic poll cycle identifier"`
	Operator  string `json:"operator,omitempty" example:"TELIA" doc:"Registered operator, if known"`
	RAT       string `json:"rat,omitempty" example:"NR5G-SA" doc:"Radio access technology"`
	Quality   string `json:"quality,omitempty" example:"good" doc:"Bucketed signal quality"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Snapshot capture time"`
}

// Type returns the event type identifier for TelemetryUpdatedEvent.
func (e TelemetryUpdatedEvent) Type() uint32 { return TypeTelemetryUpdated }

// TransportStateChangedEvent tracks the serial channel lifecycle:
// opened, closed, reconnecting.
type TransportStateChangedEvent struct {
	State     string `json:"state" example:"reconnecting" doc:"Channel state: open, closed, reconnecting"`
	Device    string `json:"device" example:"/dev/ttyUSB2" doc:"Resolved serial device path"`
	Attempt   int    `json:"attempt,omitempty" example:"2" doc:"Reconnect attempt number, if reconnecting"`
	Error     string `json:"error,omitempty" doc:"Error that triggered the transition"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for TransportStateChangedEvent.
func (e TransportStateChangedEvent) Type() uint32 { return TypeTransportStateChanged }

// ActionExecutedEvent is published when a control action finishes,
// whether executed, blocked, or failed.
type ActionExecutedEvent struct {
	Action        string `json:"action" example:"roaming" doc:"Action name"`
	Dangerous     bool   `json:"dangerous" example:"false" doc:"Danger classification of the action"`
	Executed      bool   `json:"executed" example:"true" doc:"Whether the plan actually ran to completion"`
	BlockedReason string `json:"blocked_reason,omitempty" example:"dangerous-blocked" doc:"Gate block reason, if any"`
	Error         string `json:"error,omitempty" doc:"Execution error, if any"`
	Timestamp     string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ActionExecutedEvent.
func (e ActionExecutedEvent) Type() uint32 { return TypeActionExecuted }

// PollErrorEvent is published when a query inside a poll cycle fails.
// The cycle continues; this exists for diagnostics surfaces.
type PollErrorEvent struct {
	Query     string `json:"query" example:"AT+QENG=\"servingcell\"" doc:"Query that failed"`
	Error     string `json:"error" doc:"Failure description"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for PollErrorEvent.
func (e PollErrorEvent) Type() uint32 { return TypePollError }
