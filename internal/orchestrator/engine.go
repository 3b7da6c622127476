// Package orchestrator drives tasks through the implement/test/gate/review
// loop, verifying agent signals and enforcing the iteration budget.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/colonyops/foreman/internal/core/agent"
	"github.com/colonyops/foreman/internal/core/eventbus"
	"github.com/colonyops/foreman/internal/core/gate"
	"github.com/colonyops/foreman/internal/core/git"
	"github.com/colonyops/foreman/internal/core/session"
	"github.com/colonyops/foreman/internal/core/signal"
	"github.com/colonyops/foreman/internal/core/task"
	"github.com/colonyops/foreman/pkg/kv"
)

// ErrTampering is returned from Run when a signal failed verification in a
// way that indicates the session token may be compromised.
var ErrTampering = errors.New("signal tampering detected")

// Invoker runs one agent phase. Satisfied by *agent.Invoker.
type Invoker interface {
	Invoke(ctx context.Context, dir, token string, data agent.PromptData) (agent.Invocation, error)
}

// GateRunner executes one tier of gates. Satisfied by *gate.Runner.
type GateRunner interface {
	SetHooks(h gate.Hooks)
	Run(ctx context.Context, tier gate.Tier, gates []gate.Config, dir string) ([]gate.Result, error)
}

// TaskStore loads the queue and persists per-task transitions.
type TaskStore interface {
	Load() ([]*task.Task, error)
	Update(id string, fn func(*task.Task)) error
}

// SessionStore persists the session record.
type SessionStore interface {
	Save(sess *session.Session) error
}

// Options wires an Engine. All fields are required except Now.
type Options struct {
	Dir           string
	MaxIterations int
	BuildGates    []gate.Config
	FullGates     []gate.Config
	Guardrail     agent.Guardrail

	Invoker  Invoker
	Gates    GateRunner
	Git      git.Git
	Tasks    TaskStore
	Sessions SessionStore
	Bus      *eventbus.EventBus
	Logger   zerolog.Logger
	Now      func() time.Time
}

// RunResult is the outcome of one full session.
type RunResult struct {
	Success        bool
	TasksCompleted int
	TasksFailed    int
	SessionID      string
	ExitCode       int
}

// Engine is the orchestration state machine. It is the single writer of task
// and session state; everything else observes through events.
type Engine struct {
	opts Options
	log  zerolog.Logger

	iterations *kv.Store[string, int]

	// currentTaskID feeds gate hook payloads. Tasks run strictly
	// sequentially, so a plain field is safe.
	currentTaskID string
}

// New creates an engine and installs gate lifecycle hooks on the runner.
func New(opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}

	e := &Engine{
		opts:       opts,
		log:        opts.Logger,
		iterations: kv.New[string, int](),
	}

	opts.Gates.SetHooks(gate.Hooks{
		GateStarted: func(name string, tier gate.Tier) {
			e.opts.Bus.PublishGateRunning(eventbus.GateRunningPayload{
				TaskID: e.currentTaskID,
				Gate:   name,
				Tier:   tier,
			})
		},
		GateCompleted: func(result gate.Result) {
			e.opts.Bus.PublishGateCompleted(eventbus.GateCompletedPayload{
				TaskID: e.currentTaskID,
				Result: result,
			})
		},
	})

	return e
}

// Run executes every pending task in priority order under a fresh session.
// The error return is reserved for setup failures and tampering; ordinary
// task failures are reported through the result counts.
func (e *Engine) Run(ctx context.Context) (RunResult, error) {
	tasks, err := e.opts.Tasks.Load()
	if err != nil {
		return RunResult{ExitCode: ExitTaskFailures}, fmt.Errorf("load tasks: %w", err)
	}

	task.SortByPriority(tasks)
	pending := task.Pending(tasks)

	sess, err := session.New(e.opts.Now())
	if err != nil {
		return RunResult{ExitCode: ExitTaskFailures}, err
	}

	if err := e.opts.Sessions.Save(sess); err != nil {
		return RunResult{ExitCode: ExitTaskFailures}, fmt.Errorf("persist session: %w", err)
	}

	e.log.Info().
		Str("session_id", sess.ID).
		Int("pending", len(pending)).
		Msg("session started")

	e.opts.Bus.PublishSessionStarted(eventbus.SessionStartedPayload{
		SessionID: sess.ID,
		TaskCount: len(pending),
	})

	result := RunResult{SessionID: sess.ID}

	for _, t := range pending {
		if ctx.Err() != nil {
			return e.endSession(sess, result, session.StatusAborted)
		}

		out := e.runTask(ctx, sess, t)

		switch {
		case out.tampered:
			// Tampering terminates the whole session: the token may be
			// compromised, so no further task can trust its signals.
			sess.TasksFailed++
			result.TasksFailed++
			e.opts.Bus.PublishTaskCompleted(eventbus.TaskCompletedPayload{
				Task:          t,
				Iterations:    out.iterations,
				Duration:      out.duration,
				FailureReason: out.failureReason,
			})
			res, _ := e.endSession(sess, result, session.StatusTampered)
			return res, ErrTampering

		case out.cancelled:
			return e.endSession(sess, result, session.StatusAborted)

		case out.completed:
			if err := e.opts.Tasks.Update(t.ID, func(tk *task.Task) {
				tk.Passes = true
			}); err != nil {
				e.log.Error().Err(err).Str("task_id", t.ID).Msg("persist task completion")
			}
			sess.TasksCompleted++
			result.TasksCompleted++

		default:
			sess.TasksFailed++
			result.TasksFailed++
		}

		// Event follows the durable write above.
		e.opts.Bus.PublishTaskCompleted(eventbus.TaskCompletedPayload{
			Task:          t,
			Success:       out.completed,
			Iterations:    out.iterations,
			Duration:      out.duration,
			FailureReason: out.failureReason,
		})
	}

	return e.endSession(sess, result, session.StatusCompleted)
}

// endSession closes the session, persists it, and emits session_ended.
func (e *Engine) endSession(sess *session.Session, result RunResult, status session.Status) (RunResult, error) {
	now := e.opts.Now()
	switch status {
	case session.StatusTampered:
		sess.MarkTampered(now)
	case session.StatusAborted:
		sess.MarkAborted(now)
	default:
		sess.MarkCompleted(now)
	}

	if err := e.opts.Sessions.Save(sess); err != nil {
		e.log.Error().Err(err).Msg("persist session end")
	}

	e.opts.Bus.PublishSessionEnded(eventbus.SessionEndedPayload{
		SessionID:      sess.ID,
		Status:         sess.Status,
		TasksCompleted: sess.TasksCompleted,
		TasksFailed:    sess.TasksFailed,
		Duration:       sess.Duration(now),
	})

	e.log.Info().
		Str("session_id", sess.ID).
		Str("status", string(sess.Status)).
		Int("completed", sess.TasksCompleted).
		Int("failed", sess.TasksFailed).
		Msg("session ended")

	switch status {
	case session.StatusCompleted:
		result.Success = result.TasksFailed == 0
		if result.Success {
			result.ExitCode = ExitOK
		} else {
			result.ExitCode = ExitTaskFailures
		}
	default:
		result.ExitCode = ExitAborted
	}

	return result, nil
}

// outcome is the terminal condition of one task.
type outcome struct {
	completed     bool
	tampered      bool
	cancelled     bool
	iterations    int
	duration      time.Duration
	failureReason string
}

// runTask drives one task through the state machine to COMPLETED or FAILED.
func (e *Engine) runTask(ctx context.Context, sess *session.Session, t *task.Task) outcome {
	started := e.opts.Now()
	e.currentTaskID = t.ID
	e.iterations.Set(t.ID, 1)

	log := e.log.With().Str("task_id", t.ID).Logger()
	log.Info().Str("title", t.Title).Msg("task started")

	e.opts.Bus.PublishTaskStarted(eventbus.TaskStartedPayload{Task: t})
	e.opts.Bus.PublishIterationStarted(eventbus.IterationStartedPayload{
		TaskID:        t.ID,
		Iteration:     1,
		MaxIterations: e.opts.MaxIterations,
	})

	fail := func(reason string) outcome {
		log.Warn().Str("reason", reason).Msg("task failed")
		return outcome{
			iterations:    e.iteration(t.ID),
			duration:      e.opts.Now().Sub(started),
			failureReason: reason,
		}
	}

	state := StateImplementing
	phase := agent.Phase("")
	var gateFailures []gate.Result
	var unmetCriteria []string

	for {
		// Cancellation is honored at phase boundaries; the task stays in
		// its last durable state.
		if ctx.Err() != nil {
			return outcome{
				cancelled:  true,
				iterations: e.iteration(t.ID),
				duration:   e.opts.Now().Sub(started),
			}
		}

		switch state {
		case StateImplementing:
			phase = e.changePhase(t.ID, phase, agent.PhaseImplementation)

			check := e.invokeAndVerify(ctx, sess, t, agent.PromptData{
				Task:          t,
				Phase:         agent.PhaseImplementation,
				Iteration:     e.iteration(t.ID),
				MaxIterations: e.opts.MaxIterations,
			}, signal.TypeImplementationDone)

			switch {
			case check.tampered:
				return e.tamperedOutcome(t.ID, started)
			case !check.valid:
				if !e.nextIteration(t.ID) {
					return fail(ReasonIterationBudgetExhausted)
				}
			case t.RequiresTests:
				state = StateTestWriting
			default:
				state = StateGating
			}

		case StateTestWriting:
			phase = e.changePhase(t.ID, phase, agent.PhaseTestWriting)

			// Changed paths before the phase runs. Implementation edits
			// are still uncommitted here and must not be attributed to
			// the test-writing agent.
			before, err := e.opts.Git.ChangedFiles(ctx, e.opts.Dir)
			if err != nil {
				log.Error().Err(err).Msg("snapshot changed files")
			}

			check := e.invokeAndVerify(ctx, sess, t, agent.PromptData{
				Task:          t,
				Phase:         agent.PhaseTestWriting,
				Iteration:     e.iteration(t.ID),
				MaxIterations: e.opts.MaxIterations,
			}, signal.TypeTestsWritten)

			switch {
			case check.tampered:
				return e.tamperedOutcome(t.ID, started)
			case !check.valid:
				if !e.nextIteration(t.ID) {
					return fail(ReasonIterationBudgetExhausted)
				}
			default:
				if err := e.checkGuardrail(ctx, before); err != nil {
					log.Warn().Err(err).Msg("guardrail violation")
					if !e.nextIteration(t.ID) {
						return fail(ReasonIterationBudgetExhausted)
					}
					continue
				}
				state = StateGating
			}

		case StateGating:
			results, err := e.runGates(ctx)
			if err != nil {
				// Context cancellation; loop top handles it.
				continue
			}

			failures := gate.Failures(results)
			switch {
			case gate.AnyFatalFailure(results):
				return fail(ReasonFatalGateFailure)
			case len(failures) == 0:
				state = StateReviewing
			default:
				if !e.nextIteration(t.ID) {
					return fail(ReasonIterationBudgetExhausted)
				}
				gateFailures = failures
				state = StateFixing
			}

		case StateFixing:
			phase = e.changePhase(t.ID, phase, agent.PhaseFix)

			inv, err := e.opts.Invoker.Invoke(ctx, e.opts.Dir, sess.Token, agent.PromptData{
				Task:          t,
				Phase:         agent.PhaseFix,
				Iteration:     e.iteration(t.ID),
				MaxIterations: e.opts.MaxIterations,
				GateFailures:  gateFailures,
				UnmetCriteria: unmetCriteria,
			})
			if err != nil || inv.Failed() {
				if err != nil {
					log.Error().Err(err).Msg("fix phase invocation failed")
				}
				if !e.nextIteration(t.ID) {
					return fail(ReasonIterationBudgetExhausted)
				}
				continue
			}

			gateFailures = nil
			unmetCriteria = nil
			state = StateGating

		case StateReviewing:
			phase = e.changePhase(t.ID, phase, agent.PhaseReview)

			check := e.invokeAndVerify(ctx, sess, t, agent.PromptData{
				Task:          t,
				Phase:         agent.PhaseReview,
				Iteration:     e.iteration(t.ID),
				MaxIterations: e.opts.MaxIterations,
			}, signal.TypeReviewPassed)

			switch {
			case check.tampered:
				return e.tamperedOutcome(t.ID, started)
			case !check.valid:
				if !e.nextIteration(t.ID) {
					return fail(ReasonIterationBudgetExhausted)
				}
			case check.criteriaMet:
				log.Info().Int("iterations", e.iteration(t.ID)).Msg("task completed")
				return outcome{
					completed:  true,
					iterations: e.iteration(t.ID),
					duration:   e.opts.Now().Sub(started),
				}
			default:
				if !e.nextIteration(t.ID) {
					return fail(ReasonIterationBudgetExhausted)
				}
				unmetCriteria = check.unmetCriteria
				state = StateFixing
			}
		}
	}
}

// iteration returns the current iteration counter for a task.
func (e *Engine) iteration(taskID string) int {
	n, _ := e.iterations.Get(taskID)
	return n
}

// nextIteration advances the iteration counter if budget remains. Returns
// false when the budget is exhausted; the task must then fail without another
// retry.
func (e *Engine) nextIteration(taskID string) bool {
	if e.iteration(taskID) >= e.opts.MaxIterations {
		return false
	}

	n := e.iterations.Update(taskID, func(n int) int { return n + 1 })
	e.opts.Bus.PublishIterationStarted(eventbus.IterationStartedPayload{
		TaskID:        taskID,
		Iteration:     n,
		MaxIterations: e.opts.MaxIterations,
	})
	return true
}

// changePhase emits phase.changed and returns the new phase.
func (e *Engine) changePhase(taskID string, prev, next agent.Phase) agent.Phase {
	e.opts.Bus.PublishPhaseChanged(eventbus.PhaseChangedPayload{
		TaskID:        taskID,
		Phase:         next,
		PreviousPhase: prev,
	})
	return next
}

func (e *Engine) tamperedOutcome(taskID string, started time.Time) outcome {
	return outcome{
		tampered:      true,
		iterations:    e.iteration(taskID),
		duration:      e.opts.Now().Sub(started),
		failureReason: ReasonTamperingDetected,
	}
}

// signalCheck is the verdict on one phase's completion signal.
type signalCheck struct {
	valid         bool
	tampered      bool
	criteriaMet   bool
	unmetCriteria []string
}

// invokeAndVerify runs one agent phase and verifies its completion signal
// against the working tree. Invocation failures and missing/invalid signals
// both come back as not-valid; only a token/checksum single mismatch is
// tampering.
func (e *Engine) invokeAndVerify(ctx context.Context, sess *session.Session, t *task.Task, data agent.PromptData, want signal.Type) signalCheck {
	inv, err := e.opts.Invoker.Invoke(ctx, e.opts.Dir, sess.Token, data)
	if err != nil {
		e.log.Error().Err(err).Str("phase", string(data.Phase)).Msg("agent invocation failed")
		return signalCheck{}
	}

	if inv.Failed() {
		e.log.Warn().
			Str("phase", string(data.Phase)).
			Int("exit_code", inv.ExitCode).
			Bool("timed_out", inv.TimedOut).
			Msg("agent phase failed")
		return signalCheck{}
	}

	sig := signal.Find(inv.Signals, want)

	var content []byte
	if sig != nil {
		content, err = e.opts.Git.DiffHead(ctx, e.opts.Dir)
		if err != nil {
			e.log.Error().Err(err).Msg("read working tree state for checksum")
			return signalCheck{}
		}
	}

	res := signal.Verify(sig, sess, content)

	detected := eventbus.SignalDetectedPayload{
		TaskID:     t.ID,
		Type:       want,
		Valid:      res.Valid,
		TokenOK:    res.TokenOK,
		ChecksumOK: res.ChecksumOK,
		Reason:     res.Reason,
	}
	if sig != nil {
		detected.Checksum = sig.Checksum
	}
	e.opts.Bus.PublishSignalDetected(detected)

	check := signalCheck{
		valid:    res.Valid,
		tampered: res.Reason == signal.ReasonTampering,
	}
	if sig != nil {
		check.criteriaMet = sig.CriteriaMet
		check.unmetCriteria = sig.UnmetCriteria
	}
	return check
}

// checkGuardrail verifies the test_writing phase stayed inside its allowed
// paths. Only paths that became dirty during the phase count against it;
// before holds the paths already changed when the phase started.
func (e *Engine) checkGuardrail(ctx context.Context, before []string) error {
	after, err := e.opts.Git.ChangedFiles(ctx, e.opts.Dir)
	if err != nil {
		return fmt.Errorf("list changed files: %w", err)
	}

	prior := make(map[string]bool, len(before))
	for _, p := range before {
		prior[p] = true
	}

	var touched []string
	for _, p := range after {
		if !prior[p] {
			touched = append(touched, p)
		}
	}

	return e.opts.Guardrail.CheckTestWriting(touched)
}

// runGates executes the build tier, then the full tier only when every build
// gate passed. The error return is non-nil only on context cancellation.
func (e *Engine) runGates(ctx context.Context) ([]gate.Result, error) {
	results, err := e.opts.Gates.Run(ctx, gate.TierBuild, e.opts.BuildGates, e.opts.Dir)
	if err != nil {
		return results, err
	}

	if len(gate.Failures(results)) > 0 {
		return results, nil
	}

	full, err := e.opts.Gates.Run(ctx, gate.TierFull, e.opts.FullGates, e.opts.Dir)
	results = append(results, full...)
	return results, err
}
