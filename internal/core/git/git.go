// Package git provides the narrow git abstraction foreman needs: worktree
// diffs for signal checksums and changed-path listings for guardrail checks.
package git

import "context"

// Git defines git operations needed by foreman.
type Git interface {
	// DiffHead returns the full diff of the worktree against HEAD,
	// including untracked file contents. This is the verification input
	// for completion-signal checksums.
	DiffHead(ctx context.Context, dir string) ([]byte, error)
	// ChangedFiles returns the paths of all modified, added, deleted, or
	// untracked files relative to dir.
	ChangedFiles(ctx context.Context, dir string) ([]string, error)
	// IsClean returns true if there are no uncommitted changes in dir.
	IsClean(ctx context.Context, dir string) (bool, error)
}
