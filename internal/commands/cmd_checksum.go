package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/colonyops/foreman/internal/core/git"
	"github.com/colonyops/foreman/internal/core/signal"
	"github.com/colonyops/foreman/pkg/executil"
)

type ChecksumCmd struct {
	flags *Flags
	dir   string
}

// NewChecksumCmd creates a new checksum command.
func NewChecksumCmd(flags *Flags) *ChecksumCmd {
	return &ChecksumCmd{flags: flags}
}

// Register adds the checksum command to the application.
func (cmd *ChecksumCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "checksum",
		Usage:     "Print the working-tree checksum for completion signals",
		UsageText: "foreman checksum [--dir path]",
		Description: `Computes the checksum the verifier expects in a completion signal:
a SHA-256 over the canonicalized git status and diff of the working tree.
Agents run this immediately before emitting a signal line.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "dir",
				Usage:       "working directory to checksum",
				Value:       ".",
				Destination: &cmd.dir,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *ChecksumCmd) run(ctx context.Context, c *cli.Command) error {
	gitExec := git.NewExecutor(cmd.flags.Config.GitPath, &executil.RealExecutor{})

	content, err := gitExec.DiffHead(ctx, cmd.dir)
	if err != nil {
		return fmt.Errorf("read working tree state: %w", err)
	}

	_, err = fmt.Fprintln(c.Root().Writer, signal.Checksum(content))
	return err
}
