package session

import (
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	now := time.Now()
	s, err := New(now)
	require.NoError(t, err)

	assert.NotEmpty(t, s.ID)
	assert.Equal(t, StatusActive, s.Status)
	assert.True(t, s.Active())
	assert.Equal(t, now, s.StartedAt)

	// 32 bytes hex-encoded.
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{64}$`), s.Token)
}

func TestNew_UniqueTokens(t *testing.T) {
	seen := make(map[string]bool)
	for range 50 {
		s, err := New(time.Now())
		require.NoError(t, err)
		assert.False(t, seen[s.Token], "tokens must be unique")
		seen[s.Token] = true
	}
}

func TestTokenNeverSerialized(t *testing.T) {
	s, err := New(time.Now())
	require.NoError(t, err)

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.NotContains(t, string(data), s.Token)
}

func TestTransitions(t *testing.T) {
	now := time.Now()
	end := now.Add(time.Minute)

	t.Run("completed", func(t *testing.T) {
		s, _ := New(now)
		s.MarkCompleted(end)
		assert.Equal(t, StatusCompleted, s.Status)
		assert.False(t, s.Active())
		assert.Equal(t, time.Minute, s.Duration(end.Add(time.Hour)))
	})

	t.Run("aborted", func(t *testing.T) {
		s, _ := New(now)
		s.MarkAborted(end)
		assert.Equal(t, StatusAborted, s.Status)
	})

	t.Run("tampered", func(t *testing.T) {
		s, _ := New(now)
		s.MarkTampered(end)
		assert.Equal(t, StatusTampered, s.Status)
	})
}

func TestDuration_OpenSession(t *testing.T) {
	now := time.Now()
	s, _ := New(now)
	assert.Equal(t, 30*time.Second, s.Duration(now.Add(30*time.Second)))
}
