// Package gate defines quality-gate configuration and results, and runs
// configured gate commands as subprocesses.
package gate

import (
	"time"

	"github.com/colonyops/foreman/pkg/executil"
)

// DefaultTimeout bounds a single gate command when no timeout is configured.
const DefaultTimeout = 120 * time.Second

// Tier groups gates by cost: build gates are fast checks that run first,
// full gates are slower suites (tests, integration).
type Tier string

const (
	TierBuild Tier = "build"
	TierFull  Tier = "full"
)

// Config is one configured gate. The config file is validated before it
// reaches the runner; the runner does not re-check schema.
type Config struct {
	Name           string `yaml:"name"`
	Cmd            string `yaml:"cmd"`
	TimeoutSeconds int    `yaml:"timeout_seconds,omitempty"`
	Fatal          bool   `yaml:"fatal,omitempty"`
	// When is an optional shell condition; a non-zero exit skips the gate
	// silently (skipped gates produce no Result and consume no budget).
	When string `yaml:"when,omitempty"`
}

// Timeout returns the configured timeout or the default.
func (c Config) Timeout() time.Duration {
	if c.TimeoutSeconds > 0 {
		return time.Duration(c.TimeoutSeconds) * time.Second
	}
	return DefaultTimeout
}

// Result is the outcome of one gate invocation. Raw output is attached so a
// failing gate's context can be fed to the fix phase prompt.
type Result struct {
	Name      string        `json:"name"`
	Tier      Tier          `json:"tier"`
	Command   string        `json:"command"`
	ExitCode  int           `json:"exit_code"`
	Duration  time.Duration `json:"duration"`
	Output    string        `json:"output"`
	Truncated bool          `json:"truncated"`
	Fatal     bool          `json:"fatal"`
	TimedOut  bool          `json:"timed_out"`
}

// Passed reports whether the gate exited cleanly.
func (r Result) Passed() bool {
	return r.ExitCode == 0 && !r.TimedOut
}

// Failures filters results down to the failing ones.
func Failures(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed() {
			out = append(out, r)
		}
	}
	return out
}

// AnyFatalFailure reports whether any failing result is configured fatal.
func AnyFatalFailure(results []Result) bool {
	for _, r := range results {
		if !r.Passed() && r.Fatal {
			return true
		}
	}
	return false
}

func resultFrom(cfg Config, tier Tier, res executil.Result) Result {
	return Result{
		Name:      cfg.Name,
		Tier:      tier,
		Command:   cfg.Cmd,
		ExitCode:  res.ExitCode,
		Duration:  res.Duration,
		Output:    string(res.Output),
		Truncated: res.Truncated,
		Fatal:     cfg.Fatal,
		TimedOut:  res.TimedOut,
	}
}
