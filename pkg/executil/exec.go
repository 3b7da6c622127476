// Package executil provides shell execution utilities.
package executil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"
)

// DefaultMaxOutput caps combined stdout+stderr capture for shell invocations.
// Runaway processes can emit unbounded output; everything past the cap is
// discarded and the result is flagged as truncated.
const DefaultMaxOutput = 64 * 1024

// ExitTimedOut is the sentinel exit code recorded when a process is killed
// before producing its own exit status (timeout or start failure).
const ExitTimedOut = -1

// limitedWriter caps writes to a bytes.Buffer at a maximum byte count.
// Bytes beyond the limit are silently discarded and the writer remembers
// that truncation occurred.
type limitedWriter struct {
	buf       *bytes.Buffer
	n         int64
	max       int64
	truncated bool
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	if w.n >= w.max {
		if len(p) > 0 {
			w.truncated = true
		}
		return len(p), nil
	}
	remaining := w.max - w.n
	origLen := len(p)
	if int64(origLen) > remaining {
		p = p[:remaining]
		w.truncated = true
	}
	n, err := w.buf.Write(p)
	w.n += int64(n)
	if err != nil {
		return n, err
	}
	return origLen, nil
}

// Result captures the outcome of a single shell invocation.
type Result struct {
	// ExitCode is the process exit code, or ExitTimedOut if the process
	// was killed on timeout before reporting one.
	ExitCode int
	// Output is the combined stdout+stderr, capped at the configured maximum.
	Output []byte
	// Truncated reports whether Output was capped.
	Truncated bool
	// Duration is the wall-clock time of the invocation.
	Duration time.Duration
	// TimedOut reports whether the process was killed by the timeout.
	TimedOut bool
}

// Passed reports whether the invocation exited cleanly.
func (r Result) Passed() bool {
	return r.ExitCode == 0 && !r.TimedOut
}

// ShellOptions configures a Shell invocation.
type ShellOptions struct {
	// Dir is the working directory (empty inherits the current directory).
	Dir string
	// Env is appended to the parent environment for the child process.
	Env []string
	// Stdin is the child's standard input (nil means no input).
	Stdin io.Reader
	// Timeout bounds the invocation. Zero means no timeout.
	Timeout time.Duration
	// MaxOutput caps combined output capture. Zero means DefaultMaxOutput.
	MaxOutput int64
	// Tee, when set, receives a live copy of the child's combined output
	// in addition to the capped capture buffer.
	Tee io.Writer
}

// Executor runs shell commands.
type Executor interface {
	// Run executes a command and returns its combined output.
	Run(ctx context.Context, cmd string, args ...string) ([]byte, error)
	// RunDir executes a command in a specific directory.
	RunDir(ctx context.Context, dir, cmd string, args ...string) ([]byte, error)
	// Shell executes a shell command string via `sh -c` with timeout,
	// output capping, and process-group cleanup. The returned error is
	// non-nil only when the process could not be started; non-zero exits
	// and timeouts are reported through the Result.
	Shell(ctx context.Context, command string, opts ShellOptions) (Result, error)
}

// RealExecutor calls actual shell commands.
type RealExecutor struct{}

// Run executes a command and returns its combined output.
func (e *RealExecutor) Run(ctx context.Context, cmd string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, cmd, args...).CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("exec %s: %w", cmd, err)
	}
	return out, nil
}

// RunDir executes a command in a specific directory.
func (e *RealExecutor) RunDir(ctx context.Context, dir, cmd string, args ...string) ([]byte, error) {
	c := exec.CommandContext(ctx, cmd, args...)
	c.Dir = dir
	out, err := c.CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("exec %s in %s: %w", cmd, dir, err)
	}
	return out, nil
}

// Shell executes a shell command string with bounded output and a guaranteed
// process-group kill on timeout or cancellation, so no orphaned children
// survive the invocation.
func (e *RealExecutor) Shell(ctx context.Context, command string, opts ShellOptions) (Result, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	maxOutput := opts.MaxOutput
	if maxOutput <= 0 {
		maxOutput = DefaultMaxOutput
	}

	var buf bytes.Buffer
	lw := &limitedWriter{buf: &buf, max: maxOutput}

	var sink io.Writer = lw
	if opts.Tee != nil {
		sink = io.MultiWriter(lw, opts.Tee)
	}

	c := exec.CommandContext(ctx, "sh", "-c", command)
	c.Dir = opts.Dir
	c.Stdin = opts.Stdin
	c.Stdout = sink
	c.Stderr = sink
	if len(opts.Env) > 0 {
		c.Env = append(os.Environ(), opts.Env...)
	}
	// Kill the whole process group, not just sh, so gate/agent children
	// cannot outlive a timeout.
	setProcessGroup(c)
	c.WaitDelay = 5 * time.Second

	start := time.Now()
	err := c.Run()
	res := Result{
		Output:    buf.Bytes(),
		Truncated: lw.truncated,
		Duration:  time.Since(start),
	}

	switch {
	case err == nil:
		return res, nil
	case ctx.Err() != nil:
		res.TimedOut = true
		res.ExitCode = ExitTimedOut
		return res, nil
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		res.ExitCode = ExitTimedOut
		return res, fmt.Errorf("start %q: %w", command, err)
	}
}
