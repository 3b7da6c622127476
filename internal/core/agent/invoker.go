package agent

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/colonyops/foreman/internal/core/gate"
	"github.com/colonyops/foreman/internal/core/signal"
	"github.com/colonyops/foreman/internal/core/task"
	"github.com/colonyops/foreman/pkg/executil"
	"github.com/colonyops/foreman/pkg/tmpl"
)

const (
	// TokenEnv is the child environment variable carrying the session token.
	// It is set on the agent process only, never on foreman's own environment.
	TokenEnv = "FOREMAN_SESSION_TOKEN"

	// PhaseEnv tells the agent which phase it is being invoked for.
	PhaseEnv = "FOREMAN_PHASE"

	// DefaultTimeout bounds a single agent invocation.
	DefaultTimeout = 10 * time.Minute
)

// PromptData is the template context for phase prompts.
type PromptData struct {
	Task          *task.Task
	Phase         Phase
	Iteration     int
	MaxIterations int
	GateFailures  []gate.Result
	UnmetCriteria []string
}

// Options configures the invoker. Command is a shell command line; the
// rendered prompt is written to the agent's stdin. Tee, when set, receives a
// live copy of the agent's combined output.
type Options struct {
	Command   string
	Prompts   map[Phase]string
	Timeout   time.Duration
	MaxOutput int64
	Tee       io.Writer
}

// Invocation is the outcome of one agent run.
type Invocation struct {
	Phase     Phase
	ExitCode  int
	TimedOut  bool
	Truncated bool
	Duration  time.Duration
	RawOutput []byte
	Signals   []*signal.Signal
}

// Failed reports whether the invocation itself failed, independent of any
// signal verdict.
func (inv Invocation) Failed() bool {
	return inv.TimedOut || inv.ExitCode != 0
}

// Invoker runs the configured agent command for a phase and extracts any
// completion signals from its output.
type Invoker struct {
	exec executil.Executor
	opts Options
	log  zerolog.Logger
}

func NewInvoker(exec executil.Executor, opts Options, log zerolog.Logger) *Invoker {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxOutput <= 0 {
		opts.MaxOutput = executil.DefaultMaxOutput
	}
	return &Invoker{exec: exec, opts: opts, log: log}
}

// Invoke renders the phase prompt, runs the agent in dir with the session
// token injected into the child environment, and scans its output for signal
// lines. The error return is reserved for invoker-level failures (missing
// prompt, template error, spawn failure); an agent that runs and exits
// non-zero is reported through Invocation, not the error.
func (inv *Invoker) Invoke(ctx context.Context, dir, token string, data PromptData) (Invocation, error) {
	prompt, err := inv.renderPrompt(data)
	if err != nil {
		return Invocation{Phase: data.Phase}, err
	}

	inv.log.Debug().
		Str("phase", string(data.Phase)).
		Str("task_id", data.Task.ID).
		Int("iteration", data.Iteration).
		Msg("invoking agent")

	started := time.Now()
	res, err := inv.exec.Shell(ctx, inv.opts.Command, executil.ShellOptions{
		Dir:       dir,
		Env:       childEnv(token, data.Phase),
		Stdin:     strings.NewReader(prompt),
		Timeout:   inv.opts.Timeout,
		MaxOutput: inv.opts.MaxOutput,
		Tee:       inv.opts.Tee,
	})
	if err != nil {
		return Invocation{Phase: data.Phase}, fmt.Errorf("spawn agent: %w", err)
	}

	out := Invocation{
		Phase:     data.Phase,
		ExitCode:  res.ExitCode,
		TimedOut:  res.TimedOut,
		Truncated: res.Truncated,
		Duration:  res.Duration,
		RawOutput: res.Output,
		Signals:   signal.Extract(string(res.Output)),
	}

	inv.log.Debug().
		Str("phase", string(data.Phase)).
		Int("exit_code", out.ExitCode).
		Bool("timed_out", out.TimedOut).
		Int("signals", len(out.Signals)).
		Dur("duration", time.Since(started)).
		Msg("agent finished")

	return out, nil
}

func (inv *Invoker) renderPrompt(data PromptData) (string, error) {
	t, ok := inv.opts.Prompts[data.Phase]
	if !ok || t == "" {
		return "", fmt.Errorf("no prompt configured for phase %q", data.Phase)
	}
	prompt, err := tmpl.Render(t, data)
	if err != nil {
		return "", fmt.Errorf("render %s prompt: %w", data.Phase, err)
	}
	return prompt, nil
}

// childEnv extends the current environment with the token and phase. The
// token travels only this way; it must not appear in argv or logs.
func childEnv(token string, phase Phase) []string {
	env := os.Environ()
	env = append(env, TokenEnv+"="+token)
	env = append(env, PhaseEnv+"="+string(phase))
	return env
}
