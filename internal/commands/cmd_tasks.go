package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/colonyops/foreman/internal/core/task"
	"github.com/colonyops/foreman/internal/printer"
	"github.com/colonyops/foreman/internal/store/taskfile"
	"github.com/colonyops/foreman/pkg/iojson"
)

type TasksCmd struct {
	flags *Flags

	// flags
	tasksFile  string
	all        bool
	jsonOutput bool
}

// NewTasksCmd creates a new tasks command.
func NewTasksCmd(flags *Flags) *TasksCmd {
	return &TasksCmd{flags: flags}
}

// Register adds the tasks command to the application.
func (cmd *TasksCmd) Register(app *cli.Command) *cli.Command {
	fileFlag := &cli.StringFlag{
		Name:        "tasks",
		Usage:       "path to the task file (defaults to tasks_file from config)",
		Destination: &cmd.tasksFile,
	}

	app.Commands = append(app.Commands, &cli.Command{
		Name:  "tasks",
		Usage: "Task file commands",
		Commands: []*cli.Command{
			{
				Name:      "list",
				Usage:     "List tasks from the task file",
				UsageText: "foreman tasks list [--all] [--json]",
				Flags: []cli.Flag{
					fileFlag,
					&cli.BoolFlag{
						Name:        "all",
						Usage:       "include tasks that already pass",
						Destination: &cmd.all,
					},
					&cli.BoolFlag{
						Name:        "json",
						Usage:       "output as JSON",
						Destination: &cmd.jsonOutput,
					},
				},
				Action: cmd.list,
			},
			{
				Name:      "validate",
				Usage:     "Validate the task file",
				UsageText: "foreman tasks validate",
				Flags:     []cli.Flag{fileFlag},
				Action:    cmd.validate,
			},
		},
	})

	return app
}

func (cmd *TasksCmd) store() *taskfile.Store {
	path := cmd.tasksFile
	if path == "" {
		path = cmd.flags.Config.TasksFile
	}
	return taskfile.NewStore(path)
}

func (cmd *TasksCmd) list(ctx context.Context, c *cli.Command) error {
	tasks, err := cmd.store().Load()
	if err != nil {
		return err
	}

	task.SortByPriority(tasks)
	if !cmd.all {
		tasks = task.Pending(tasks)
	}

	out := c.Root().Writer

	if cmd.jsonOutput {
		return iojson.WriteWith(out, c.Root().ErrWriter, tasks)
	}

	if len(tasks) == 0 {
		printer.Ctx(ctx).Infof("no pending tasks")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tPRIORITY\tPASSES\tTESTS\tTITLE")
	for _, t := range tasks {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%v\t%v\t%s\n", t.ID, t.Priority, t.Passes, t.RequiresTests, t.Title)
	}
	return w.Flush()
}

func (cmd *TasksCmd) validate(ctx context.Context, c *cli.Command) error {
	p := printer.Ctx(ctx)

	tasks, err := cmd.store().Load()
	if err != nil {
		p.Errorf("task file invalid: %s", err)
		return cli.Exit("", 1)
	}

	p.Successf("%d task(s), %d pending", len(tasks), len(task.Pending(tasks)))
	return nil
}
