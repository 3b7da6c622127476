package agent

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colonyops/foreman/internal/core/signal"
	"github.com/colonyops/foreman/internal/core/task"
	"github.com/colonyops/foreman/pkg/executil"
)

func testTask() *task.Task {
	return &task.Task{
		ID:    "task-1",
		Title: "Add retry logic",
		AcceptanceCriteria: []string{
			"retries three times",
			"backs off between attempts",
		},
	}
}

func newTestInvoker(exec executil.Executor, prompts map[Phase]string) *Invoker {
	return NewInvoker(exec, Options{
		Command: "agent-cli",
		Prompts: prompts,
	}, zerolog.Nop())
}

func TestInvokeRendersPromptToStdin(t *testing.T) {
	rec := &executil.RecordingExecutor{}
	inv := newTestInvoker(rec, map[Phase]string{
		PhaseImplementation: "Implement {{ .Task.Title }}\n{{ bullets .Task.AcceptanceCriteria }}",
	})

	_, err := inv.Invoke(context.Background(), "/repo", "tok", PromptData{
		Task:  testTask(),
		Phase: PhaseImplementation,
	})
	require.NoError(t, err)

	require.Len(t, rec.Shells, 1)
	sh := rec.Shells[0]
	assert.Equal(t, "agent-cli", sh.Command)
	assert.Equal(t, "/repo", sh.Opts.Dir)

	prompt, err := io.ReadAll(sh.Opts.Stdin)
	require.NoError(t, err)
	assert.Contains(t, string(prompt), "Implement Add retry logic")
	assert.Contains(t, string(prompt), "- retries three times")
}

func TestInvokeInjectsTokenIntoChildEnv(t *testing.T) {
	rec := &executil.RecordingExecutor{}
	inv := newTestInvoker(rec, map[Phase]string{PhaseReview: "review {{ .Task.ID }}"})

	_, err := inv.Invoke(context.Background(), "/repo", "secret-token", PromptData{
		Task:  testTask(),
		Phase: PhaseReview,
	})
	require.NoError(t, err)

	require.Len(t, rec.Shells, 1)
	assert.Contains(t, rec.Shells[0].Opts.Env, TokenEnv+"=secret-token")
	assert.Contains(t, rec.Shells[0].Opts.Env, PhaseEnv+"=review")
}

func TestInvokeExtractsSignals(t *testing.T) {
	rec := &executil.RecordingExecutor{
		ShellResults: map[string]executil.Result{
			"agent-cli": {
				ExitCode: 0,
				Output:   []byte("working...\n##SIGNAL## {\"type\":\"implementation_done\",\"token\":\"abc\",\"checksum\":\"def\"}\ndone\n"),
			},
		},
	}
	inv := newTestInvoker(rec, map[Phase]string{PhaseImplementation: "go"})

	out, err := inv.Invoke(context.Background(), "/repo", "tok", PromptData{
		Task:  testTask(),
		Phase: PhaseImplementation,
	})
	require.NoError(t, err)
	require.Len(t, out.Signals, 1)
	assert.Equal(t, signal.TypeImplementationDone, out.Signals[0].Type)
	assert.False(t, out.Failed())
}

func TestInvokeReportsAgentFailureViaResult(t *testing.T) {
	rec := &executil.RecordingExecutor{
		ShellResults: map[string]executil.Result{
			"agent-cli": {ExitCode: 3, Output: []byte("boom"), Duration: time.Second},
		},
	}
	inv := newTestInvoker(rec, map[Phase]string{PhaseFix: "fix it"})

	out, err := inv.Invoke(context.Background(), "/repo", "tok", PromptData{
		Task:  testTask(),
		Phase: PhaseFix,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, out.ExitCode)
	assert.True(t, out.Failed())
}

func TestInvokeTimedOutIsFailure(t *testing.T) {
	rec := &executil.RecordingExecutor{
		ShellResults: map[string]executil.Result{
			"agent-cli": {ExitCode: executil.ExitTimedOut, TimedOut: true},
		},
	}
	inv := newTestInvoker(rec, map[Phase]string{PhaseImplementation: "go"})

	out, err := inv.Invoke(context.Background(), "/repo", "tok", PromptData{
		Task:  testTask(),
		Phase: PhaseImplementation,
	})
	require.NoError(t, err)
	assert.True(t, out.TimedOut)
	assert.True(t, out.Failed())
}

func TestInvokeMissingPromptErrors(t *testing.T) {
	inv := newTestInvoker(&executil.RecordingExecutor{}, map[Phase]string{})

	_, err := inv.Invoke(context.Background(), "/repo", "tok", PromptData{
		Task:  testTask(),
		Phase: PhaseImplementation,
	})
	assert.ErrorContains(t, err, "no prompt configured")
}

func TestInvokeBadTemplateErrors(t *testing.T) {
	inv := newTestInvoker(&executil.RecordingExecutor{}, map[Phase]string{
		PhaseImplementation: "{{ .Missing.Field }}",
	})

	_, err := inv.Invoke(context.Background(), "/repo", "tok", PromptData{
		Task:  testTask(),
		Phase: PhaseImplementation,
	})
	assert.Error(t, err)
}
