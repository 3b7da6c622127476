// Package eventbus provides a typed publish/subscribe event bus for
// orchestration lifecycle events. Subscribers never see partial state: the
// engine publishes only after the underlying transition has been persisted,
// and the single dispatch loop preserves causal order.
package eventbus

import (
	"time"

	"github.com/colonyops/foreman/internal/core/agent"
	"github.com/colonyops/foreman/internal/core/gate"
	"github.com/colonyops/foreman/internal/core/session"
	"github.com/colonyops/foreman/internal/core/signal"
	"github.com/colonyops/foreman/internal/core/task"
)

// Event identifies an event type on the bus.
type Event string

// Event names, sorted A-Z.
const (
	EventGateCompleted    Event = "gate.completed"
	EventGateRunning      Event = "gate.running"
	EventIterationStarted Event = "iteration.started"
	EventPhaseChanged     Event = "phase.changed"
	EventSessionEnded     Event = "session.ended"
	EventSessionStarted   Event = "session.started"
	EventSignalDetected   Event = "signal.detected"
	EventTaskCompleted    Event = "task.completed"
	EventTaskStarted      Event = "task.started"
)

// SessionStartedPayload is emitted when a session opens, before the first task.
// Payloads carry plain fields, never the session object itself, so the
// session token can never leak through an event sink.
type SessionStartedPayload struct {
	SessionID string
	TaskCount int
}

// SessionEndedPayload is emitted once per session, after the last task.
type SessionEndedPayload struct {
	SessionID      string
	Status         session.Status
	TasksCompleted int
	TasksFailed    int
	Duration       time.Duration
}

// TaskStartedPayload is emitted when a task is popped from the queue.
type TaskStartedPayload struct {
	Task *task.Task
}

// TaskCompletedPayload is emitted when a task reaches a terminal state.
type TaskCompletedPayload struct {
	Task          *task.Task
	Success       bool
	Iterations    int
	Duration      time.Duration
	FailureReason string
}

// IterationStartedPayload is emitted at the top of each fix/retry iteration.
type IterationStartedPayload struct {
	TaskID        string
	Iteration     int
	MaxIterations int
}

// PhaseChangedPayload is emitted when the engine moves a task between agent phases.
type PhaseChangedPayload struct {
	TaskID        string
	Phase         agent.Phase
	PreviousPhase agent.Phase
}

// GateRunningPayload is emitted immediately before a gate command executes.
type GateRunningPayload struct {
	TaskID string
	Gate   string
	Tier   gate.Tier
}

// GateCompletedPayload is emitted after a gate command finishes.
type GateCompletedPayload struct {
	TaskID string
	Result gate.Result
}

// SignalDetectedPayload is emitted for every signal the verifier judged.
// The claimed token is deliberately absent; only its verdict is carried.
// The claimed checksum is safe to expose and lets sinks correlate a signal
// with the tree state it described.
type SignalDetectedPayload struct {
	TaskID     string
	Type       signal.Type
	Checksum   string
	Valid      bool
	TokenOK    bool
	ChecksumOK bool
	Reason     signal.Reason
}
