package orchestrator

// State is a task's position in the verification loop.
type State string

const (
	StatePending      State = "PENDING"
	StateImplementing State = "IMPLEMENTING"
	StateTestWriting  State = "TEST_WRITING"
	StateGating       State = "GATING"
	StateReviewing    State = "REVIEWING"
	StateFixing       State = "FIX"
	StateCompleted    State = "COMPLETED"
	StateFailed       State = "FAILED"
)

// Failure reasons attached to task_completed events.
const (
	ReasonIterationBudgetExhausted = "iteration_budget_exhausted"
	ReasonFatalGateFailure         = "fatal_gate_failure"
	ReasonTamperingDetected        = "tampering_detected"
	ReasonCancelled                = "cancelled"
)

// Process exit codes for the run result.
const (
	ExitOK           = 0
	ExitTaskFailures = 1
	ExitAborted      = 2
)
