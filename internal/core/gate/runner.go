package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/colonyops/foreman/pkg/executil"
)

// whenTimeout bounds `when` condition checks; conditions are expected to be
// cheap tests like `test -f Makefile`.
const whenTimeout = 10 * time.Second

// Hooks receives gate lifecycle notifications. Either field may be nil.
type Hooks struct {
	GateStarted   func(name string, tier Tier)
	GateCompleted func(result Result)
}

// Runner executes gates sequentially in configured order.
type Runner struct {
	exec      executil.Executor
	log       zerolog.Logger
	maxOutput int64
	hooks     Hooks
}

// NewRunner creates a gate runner. maxOutput of zero uses the executil default.
func NewRunner(exec executil.Executor, log zerolog.Logger, maxOutput int64) *Runner {
	return &Runner{exec: exec, log: log, maxOutput: maxOutput}
}

// SetHooks installs lifecycle hooks. Call before Run.
func (r *Runner) SetHooks(h Hooks) {
	r.hooks = h
}

// Run executes the tier's gates in declared order within dir.
//
// A fatal failure short-circuits the remaining gates in this run; non-fatal
// failures do not, so the caller sees the full picture for the fix prompt.
// Skipped gates (failed `when` condition) are absent from the results.
// The returned error is non-nil only for context cancellation.
func (r *Runner) Run(ctx context.Context, tier Tier, gates []Config, dir string) ([]Result, error) {
	results := make([]Result, 0, len(gates))

	for _, cfg := range gates {
		if err := ctx.Err(); err != nil {
			return results, fmt.Errorf("gate run cancelled: %w", err)
		}

		if !r.shouldRun(ctx, cfg, dir) {
			r.log.Debug().Str("gate", cfg.Name).Str("when", cfg.When).Msg("gate skipped by condition")
			continue
		}

		if r.hooks.GateStarted != nil {
			r.hooks.GateStarted(cfg.Name, tier)
		}

		r.log.Info().Str("gate", cfg.Name).Str("tier", string(tier)).Msg("running gate")

		res, err := r.exec.Shell(ctx, cfg.Cmd, executil.ShellOptions{
			Dir:       dir,
			Timeout:   cfg.Timeout(),
			MaxOutput: r.maxOutput,
		})
		if err != nil {
			// Could not start at all; fold the error into the result so
			// the caller still sees every configured gate's outcome.
			res.Output = append(res.Output, []byte(err.Error())...)
		}

		result := resultFrom(cfg, tier, res)
		results = append(results, result)

		logEvent := r.log.Info()
		if !result.Passed() {
			logEvent = r.log.Warn()
		}
		logEvent.
			Str("gate", cfg.Name).
			Int("exit_code", result.ExitCode).
			Dur("duration", result.Duration).
			Bool("timed_out", result.TimedOut).
			Msg("gate completed")

		if r.hooks.GateCompleted != nil {
			r.hooks.GateCompleted(result)
		}

		if !result.Passed() && result.Fatal {
			r.log.Warn().Str("gate", cfg.Name).Msg("fatal gate failed, short-circuiting")
			break
		}
	}

	return results, nil
}

// shouldRun evaluates the gate's `when` condition. Missing condition means
// always run; a condition that cannot execute counts as a skip.
func (r *Runner) shouldRun(ctx context.Context, cfg Config, dir string) bool {
	if cfg.When == "" {
		return true
	}

	res, err := r.exec.Shell(ctx, cfg.When, executil.ShellOptions{
		Dir:     dir,
		Timeout: whenTimeout,
	})
	if err != nil {
		return false
	}
	return res.Passed()
}
