package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/colonyops/foreman/internal/core/agent"
	"github.com/colonyops/foreman/internal/core/eventbus"
	"github.com/colonyops/foreman/internal/core/gate"
	"github.com/colonyops/foreman/internal/core/git"
	"github.com/colonyops/foreman/internal/core/logging"
	"github.com/colonyops/foreman/internal/orchestrator"
	"github.com/colonyops/foreman/internal/printer"
	"github.com/colonyops/foreman/internal/store/jsonfile"
	"github.com/colonyops/foreman/internal/store/taskfile"
	"github.com/colonyops/foreman/pkg/executil"
	"github.com/colonyops/foreman/pkg/utils"
)

type RunCmd struct {
	flags *Flags

	// flags
	tasksFile     string
	dir           string
	maxIterations int
	verbose       bool
}

// NewRunCmd creates a new run command.
func NewRunCmd(flags *Flags) *RunCmd {
	return &RunCmd{flags: flags}
}

// Register adds the run command to the application.
func (cmd *RunCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "run",
		Usage:     "Run all pending tasks through the verification loop",
		UsageText: "foreman run [options]",
		Description: `Opens a session and drives each pending task through implementation,
test writing, quality gates, and review. Agent completion claims are verified
against the session token and a working-tree checksum before any task is
marked as passing.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "tasks",
				Usage:       "path to the task file (defaults to tasks_file from config)",
				Destination: &cmd.tasksFile,
			},
			&cli.StringFlag{
				Name:        "dir",
				Usage:       "working directory the agent and gates run in",
				Value:       ".",
				Destination: &cmd.dir,
			},
			&cli.IntFlag{
				Name:        "max-iterations",
				Usage:       "override max fix iterations per task",
				Destination: &cmd.maxIterations,
			},
			&cli.BoolFlag{
				Name:        "verbose",
				Usage:       "print agent output after each phase",
				Destination: &cmd.verbose,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *RunCmd) run(ctx context.Context, c *cli.Command) error {
	p := printer.Ctx(ctx)
	cfg := cmd.flags.Config

	if err := cfg.ValidateDeep(cmd.flags.ConfigPath); err != nil {
		return fmt.Errorf("config not runnable: %w", err)
	}

	tasksFile := cmd.tasksFile
	if tasksFile == "" {
		tasksFile = cfg.TasksFile
	}
	maxIterations := cmd.maxIterations
	if maxIterations <= 0 {
		maxIterations = cfg.MaxIterations
	}

	bus := eventbus.New(64)
	eventbus.RegisterDebugLogger(bus, logging.Component("eventbus"))
	cmd.subscribeReporter(bus, p)

	busCtx, stopBus := context.WithCancel(context.Background())
	busDone := make(chan struct{})
	go func() {
		bus.Start(busCtx)
		close(busDone)
	}()

	var (
		agentOutput *utils.DeferredWriter
		tee         io.Writer
	)
	if cmd.verbose {
		agentOutput = &utils.DeferredWriter{}
		tee = agentOutput
	}

	exec := &executil.RealExecutor{}
	invoker := agent.NewInvoker(exec, agent.Options{
		Command:   cfg.Agent.Command,
		Prompts:   cfg.PromptsByPhase(),
		Timeout:   time.Duration(cfg.Agent.TimeoutSeconds) * time.Second,
		MaxOutput: cfg.Agent.MaxOutputBytes,
		Tee:       tee,
	}, logging.Component("agent"))

	engine := orchestrator.New(orchestrator.Options{
		Dir:           cmd.dir,
		MaxIterations: maxIterations,
		BuildGates:    cfg.Gates.Build,
		FullGates:     cfg.Gates.Full,
		Guardrail:     agent.Guardrail{TestPaths: cfg.Guardrails.TestPaths},
		Invoker:       invoker,
		Gates:         gate.NewRunner(exec, logging.Component("gate"), cfg.Agent.MaxOutputBytes),
		Git:           git.NewExecutor(cfg.GitPath, exec),
		Tasks:         taskfile.NewStore(tasksFile),
		Sessions:      jsonfile.NewSessionStore(cfg.SessionFile()),
		Bus:           bus,
		Logger:        logging.Component("orchestrator"),
	})

	result, runErr := engine.Run(ctx)

	// Let the bus drain before printing the summary.
	stopBus()
	<-busDone

	if agentOutput != nil {
		_ = agentOutput.Flush(os.Stdout)
	}

	p.Printf("")
	switch {
	case errors.Is(runErr, orchestrator.ErrTampering):
		p.Errorf("session aborted: signal verification detected tampering")
		p.Faintf("the session token may be compromised; inspect the agent output before rerunning")
	case runErr != nil:
		return runErr
	case result.Success:
		p.Successf("%d task(s) completed", result.TasksCompleted)
	default:
		p.Errorf("%d task(s) completed, %d failed", result.TasksCompleted, result.TasksFailed)
	}

	if result.ExitCode != 0 {
		return cli.Exit("", result.ExitCode)
	}
	return nil
}

// subscribeReporter prints task progress as events arrive.
func (cmd *RunCmd) subscribeReporter(bus *eventbus.EventBus, p *printer.Printer) {
	bus.SubscribeSessionStarted(func(e eventbus.SessionStartedPayload) {
		p.Infof("session %s started: %d pending task(s)", e.SessionID, e.TaskCount)
	})
	bus.SubscribeTaskStarted(func(e eventbus.TaskStartedPayload) {
		p.Infof("task %s: %s", e.Task.ID, e.Task.Title)
	})
	bus.SubscribeIterationStarted(func(e eventbus.IterationStartedPayload) {
		if e.Iteration > 1 {
			p.Faintf("  iteration %d/%d", e.Iteration, e.MaxIterations)
		}
	})
	bus.SubscribePhaseChanged(func(e eventbus.PhaseChangedPayload) {
		p.Faintf("  phase: %s", e.Phase)
	})
	bus.SubscribeGateCompleted(func(e eventbus.GateCompletedPayload) {
		if e.Result.Passed() {
			p.Faintf("  gate %s passed (%s)", e.Result.Name, e.Result.Duration.Round(time.Millisecond))
			return
		}
		p.Warnf("  gate %s failed (exit %d)", e.Result.Name, e.Result.ExitCode)
	})
	bus.SubscribeSignalDetected(func(e eventbus.SignalDetectedPayload) {
		if !e.Valid {
			p.Warnf("  signal %s rejected: %s", e.Type, e.Reason)
		}
	})
	bus.SubscribeTaskCompleted(func(e eventbus.TaskCompletedPayload) {
		if e.Success {
			p.Successf("task %s completed in %d iteration(s)", e.Task.ID, e.Iterations)
			return
		}
		p.Errorf("task %s failed: %s", e.Task.ID, e.FailureReason)
	})
	bus.SubscribeSessionEnded(func(e eventbus.SessionEndedPayload) {
		p.Infof("session ended: %s (%d completed, %d failed, %s)",
			e.Status, e.TasksCompleted, e.TasksFailed, e.Duration.Round(time.Second))
	})
}
