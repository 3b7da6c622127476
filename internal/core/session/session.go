// Package session defines the run-session domain type and its secret token.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// tokenBytes is the entropy of the per-session secret token.
const tokenBytes = 32

// Status represents the lifecycle status of a session.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusAborted   Status = "aborted"
	StatusTampered  Status = "tampered"
)

// Session is one end-to-end run of the task queue.
//
// Token is the per-session secret that binds agent completion signals to this
// run. It is injected into the agent's environment at invocation time only and
// must never be logged, persisted, or echoed back to the agent. The json tag
// excludes it from every serialized form.
type Session struct {
	ID        string    `json:"id"`
	Token     string    `json:"-"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitzero"`
	Status    Status    `json:"status"`

	TasksCompleted int `json:"tasks_completed"`
	TasksFailed    int `json:"tasks_failed"`
}

// New creates an active session with a fresh random token.
func New(now time.Time) (*Session, error) {
	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}

	return &Session{
		ID:        uuid.NewString(),
		Token:     token,
		StartedAt: now,
		Status:    StatusActive,
	}, nil
}

func generateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Active reports whether the session is still processing tasks.
func (s *Session) Active() bool {
	return s.Status == StatusActive
}

// MarkCompleted transitions the session to the completed state.
func (s *Session) MarkCompleted(now time.Time) {
	s.Status = StatusCompleted
	s.EndedAt = now
}

// MarkAborted transitions the session to the aborted state (user stop or
// fatal non-security error).
func (s *Session) MarkAborted(now time.Time) {
	s.Status = StatusAborted
	s.EndedAt = now
}

// MarkTampered transitions the session to the tampered state. Tampering is a
// security condition, kept distinct from ordinary aborts so operators can
// tell a compromised run from a cancelled one.
func (s *Session) MarkTampered(now time.Time) {
	s.Status = StatusTampered
	s.EndedAt = now
}

// Duration returns the session's wall-clock duration, using now for sessions
// that have not ended.
func (s *Session) Duration(now time.Time) time.Duration {
	end := s.EndedAt
	if end.IsZero() {
		end = now
	}
	return end.Sub(s.StartedAt)
}
