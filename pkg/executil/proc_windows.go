//go:build windows

package executil

import "os/exec"

// setProcessGroup is a no-op on Windows; CommandContext's default kill
// terminates the direct child only.
func setProcessGroup(c *exec.Cmd) {}
