// Package agent invokes the external code agent for each phase of a task and
// enforces phase guardrails on the working tree.
package agent

// Phase is a step in the task loop that requires an agent invocation.
type Phase string

const (
	PhasePlanning       Phase = "planning"
	PhaseImplementation Phase = "implementation"
	PhaseTestWriting    Phase = "test_writing"
	PhaseReview         Phase = "review"
	PhaseFix            Phase = "fix"
)

// Phases lists all phases in loop order.
func Phases() []Phase {
	return []Phase{PhasePlanning, PhaseImplementation, PhaseTestWriting, PhaseReview, PhaseFix}
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	switch p {
	case PhasePlanning, PhaseImplementation, PhaseTestWriting, PhaseReview, PhaseFix:
		return true
	}
	return false
}

func (p Phase) String() string { return string(p) }
