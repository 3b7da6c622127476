package executil

import (
	"context"
	"sync"
)

// RecordedCommand captures a command that was executed.
type RecordedCommand struct {
	Dir  string
	Cmd  string
	Args []string
}

// RecordedShell captures a Shell invocation.
type RecordedShell struct {
	Command string
	Opts    ShellOptions
}

// RecordingExecutor captures commands for testing.
// Configure Outputs/Errors for Run calls and ShellResults or ShellFunc for
// Shell calls to control return values.
type RecordingExecutor struct {
	mu       sync.Mutex
	Commands []RecordedCommand
	Shells   []RecordedShell

	// Outputs maps command names to their output.
	// Key is the command name (e.g., "git").
	Outputs map[string][]byte

	// Errors maps command names to their error.
	Errors map[string]error

	// ShellResults maps shell command strings to their result.
	ShellResults map[string]Result

	// ShellFunc, when set, computes results for Shell calls not found in
	// ShellResults. Useful for stateful behavior like "fail twice then pass".
	ShellFunc func(command string, opts ShellOptions) Result
}

// Run records the command and returns configured output/error.
func (e *RecordingExecutor) Run(ctx context.Context, cmd string, args ...string) ([]byte, error) {
	return e.record("", cmd, args...)
}

// RunDir records the command with directory and returns configured output/error.
func (e *RecordingExecutor) RunDir(ctx context.Context, dir, cmd string, args ...string) ([]byte, error) {
	return e.record(dir, cmd, args...)
}

// Shell records the invocation and returns the configured result.
// Unconfigured commands succeed with empty output.
func (e *RecordingExecutor) Shell(ctx context.Context, command string, opts ShellOptions) (Result, error) {
	e.mu.Lock()
	e.Shells = append(e.Shells, RecordedShell{Command: command, Opts: opts})
	res, ok := e.ShellResults[command]
	fn := e.ShellFunc
	e.mu.Unlock()

	if ok {
		return res, nil
	}
	if fn != nil {
		return fn(command, opts), nil
	}
	return Result{ExitCode: 0}, nil
}

func (e *RecordingExecutor) record(dir, cmd string, args ...string) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.Commands = append(e.Commands, RecordedCommand{
		Dir:  dir,
		Cmd:  cmd,
		Args: args,
	})

	var out []byte
	var err error

	if e.Outputs != nil {
		out = e.Outputs[cmd]
	}
	if e.Errors != nil {
		err = e.Errors[cmd]
	}

	return out, err
}

// Reset clears recorded commands.
func (e *RecordingExecutor) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Commands = nil
	e.Shells = nil
}
