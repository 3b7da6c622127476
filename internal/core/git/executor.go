package git

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/colonyops/foreman/pkg/executil"
)

// Executor implements Git using the git command-line tool.
type Executor struct {
	gitPath string
	exec    executil.Executor
}

// NewExecutor creates a new git executor with the specified git binary path.
func NewExecutor(gitPath string, exec executil.Executor) *Executor {
	return &Executor{gitPath: gitPath, exec: exec}
}

// DiffHead composes `git status --porcelain` and `git diff HEAD` into a
// single deterministic byte stream. Status comes first so untracked files
// (which diff HEAD omits) still affect the stream; the NUL separator keeps
// the two sections unambiguous.
func (e *Executor) DiffHead(ctx context.Context, dir string) ([]byte, error) {
	status, err := e.exec.RunDir(ctx, dir, e.gitPath, "status", "--porcelain=v1", "--untracked-files=all")
	if err != nil {
		return nil, fmt.Errorf("git status: %w", err)
	}

	diff, err := e.exec.RunDir(ctx, dir, e.gitPath, "diff", "HEAD")
	if err != nil {
		return nil, fmt.Errorf("git diff: %w", err)
	}

	var buf bytes.Buffer
	buf.Write(status)
	buf.WriteByte(0)
	buf.Write(diff)
	return buf.Bytes(), nil
}

// ChangedFiles returns all modified, added, deleted, and untracked paths.
func (e *Executor) ChangedFiles(ctx context.Context, dir string) ([]string, error) {
	out, err := e.exec.RunDir(ctx, dir, e.gitPath, "status", "--porcelain=v1", "--untracked-files=all")
	if err != nil {
		return nil, fmt.Errorf("git status: %w", err)
	}

	return parsePorcelainPaths(string(out)), nil
}

// IsClean returns true if there are no uncommitted changes in dir.
func (e *Executor) IsClean(ctx context.Context, dir string) (bool, error) {
	out, err := e.exec.RunDir(ctx, dir, e.gitPath, "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("git status: %w", err)
	}
	return len(strings.TrimSpace(string(out))) == 0, nil
}

// parsePorcelainPaths extracts paths from `git status --porcelain=v1` output.
// Lines look like "XY path" or "XY old -> new" for renames, where the
// post-rename path is the one that matters.
func parsePorcelainPaths(output string) []string {
	var paths []string

	for _, line := range strings.Split(output, "\n") {
		if len(line) < 4 {
			continue
		}

		path := line[3:]
		if idx := strings.Index(path, " -> "); idx != -1 {
			path = path[idx+4:]
		}
		path = strings.Trim(path, `"`)
		if path != "" {
			paths = append(paths, path)
		}
	}

	return paths
}
