package signal

import (
	"bytes"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/colonyops/foreman/internal/core/session"
)

// Reason classifies a verification outcome.
type Reason string

const (
	// ReasonValid means both the token and checksum matched.
	ReasonValid Reason = "valid"

	// ReasonNoSignal means the agent produced no candidate signal at all.
	// Handled as an ordinary retryable failure, not tampering.
	ReasonNoSignal Reason = "no_signal"

	// ReasonInvalid means neither token nor checksum matched; the agent was
	// early, incomplete, or confused rather than adversarial.
	ReasonInvalid Reason = "invalid"

	// ReasonTampering means exactly one of token/checksum matched. A signal
	// that gets one credential right and forges the other indicates a bypass
	// attempt; the session must abort rather than retry.
	ReasonTampering Reason = "tampering_detected"
)

// Result is the outcome of verifying one signal.
type Result struct {
	Valid      bool
	Reason     Reason
	TokenOK    bool
	ChecksumOK bool
}

// Canonicalize normalizes content before hashing: CRLF and lone CR become LF.
// No other transformation is applied, so the checksum is deterministic across
// platforms but still byte-exact over the content itself.
func Canonicalize(content []byte) []byte {
	out := bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	return bytes.ReplaceAll(out, []byte("\r"), []byte("\n"))
}

// Checksum returns the hex-encoded SHA-256 of the canonicalized content.
func Checksum(content []byte) string {
	sum := sha256.Sum256(Canonicalize(content))
	return hex.EncodeToString(sum[:])
}

// Verify judges a completion signal against the session's token and the
// actual content the signal claims to describe. The checksum is recomputed
// here from content the orchestrator observed itself; the agent does not
// control the verification input.
//
// Pure function: identical inputs always yield identical results, and no
// state is mutated. The orchestrator decides what to do with the outcome.
func Verify(sig *Signal, sess *session.Session, content []byte) Result {
	if sig == nil {
		return Result{Reason: ReasonNoSignal}
	}

	tokenOK := constantTimeEqual(sig.Token, sess.Token)
	checksumOK := constantTimeEqual(sig.Checksum, Checksum(content))

	res := Result{TokenOK: tokenOK, ChecksumOK: checksumOK}
	switch {
	case tokenOK && checksumOK:
		res.Valid = true
		res.Reason = ReasonValid
	case tokenOK != checksumOK:
		res.Reason = ReasonTampering
	default:
		res.Reason = ReasonInvalid
	}

	return res
}

// constantTimeEqual compares two strings without leaking timing information
// about the position of the first mismatch.
func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
