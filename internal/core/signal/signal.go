// Package signal parses and verifies agent-emitted completion signals.
//
// Agents claim phase completion by printing a single line to stdout:
//
//	##SIGNAL## {"type":"implementation_done","token":"<session token>","checksum":"<sha256>"}
//
// Extraction (this file) is a parsing step only; judging a signal's validity
// against the session token and the real working-tree state is the Verifier's
// job.
package signal

import (
	"bufio"
	"encoding/json"
	"strings"
)

// Marker prefixes every signal line in agent output.
const Marker = "##SIGNAL##"

// Type identifies what an agent claims to have completed.
type Type string

const (
	TypeImplementationDone Type = "implementation_done"
	TypeTestsWritten       Type = "tests_written"
	TypeReviewPassed       Type = "review_passed"
	TypeGateRequest        Type = "gate_request"
)

// knownTypes guards against arbitrary type strings in agent output.
var knownTypes = map[Type]bool{
	TypeImplementationDone: true,
	TypeTestsWritten:       true,
	TypeReviewPassed:       true,
	TypeGateRequest:        true,
}

// Known reports whether t is a recognized signal type.
func Known(t Type) bool {
	return knownTypes[t]
}

// Signal is an ephemeral completion claim extracted from agent output.
// It is consumed by the Verifier and discarded; only the audit log keeps a
// redacted record.
type Signal struct {
	Type     Type   `json:"type"`
	Token    string `json:"token"`
	Checksum string `json:"checksum"`
	Role     string `json:"role,omitempty"`

	// CriteriaMet and UnmetCriteria carry the review verdict on
	// review_passed signals. CriteriaMet false with listed unmet criteria
	// routes the task into a fix iteration instead of completion.
	CriteriaMet   bool     `json:"criteria_met,omitempty"`
	UnmetCriteria []string `json:"unmet_criteria,omitempty"`
}

// UnmarshalJSON accepts the token under either "token" or "session_token".
// Agents paraphrase the session-token field both ways; a recognized alias
// must not read as an empty (and therefore mismatched) token.
func (s *Signal) UnmarshalJSON(data []byte) error {
	type plain Signal
	aux := struct {
		*plain
		SessionToken string `json:"session_token"`
	}{plain: (*plain)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if s.Token == "" {
		s.Token = aux.SessionToken
	}
	return nil
}

// Extract scans raw agent output for signal lines and returns the parsed
// candidates in order of appearance. Lines carrying the marker but invalid
// JSON or an unknown type are ignored; they are output noise, not signals.
func Extract(output string) []*Signal {
	var signals []*Signal

	scanner := bufio.NewScanner(strings.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, Marker) {
			continue
		}

		payload := strings.TrimSpace(strings.TrimPrefix(line, Marker))
		var sig Signal
		if err := json.Unmarshal([]byte(payload), &sig); err != nil {
			continue
		}
		if !Known(sig.Type) {
			continue
		}

		signals = append(signals, &sig)
	}

	return signals
}

// Find returns the first extracted signal of the given type, or nil.
func Find(signals []*Signal, t Type) *Signal {
	for _, s := range signals {
		if s.Type == t {
			return s
		}
	}
	return nil
}

// Redacted returns a copy safe for audit logging: the token claim is reduced
// to its length so a forged or real token never reaches a log sink.
func (s *Signal) Redacted() map[string]any {
	return map[string]any{
		"type":      string(s.Type),
		"role":      s.Role,
		"checksum":  s.Checksum,
		"token_len": len(s.Token),
	}
}
