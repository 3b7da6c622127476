//go:build !windows

package executil

import (
	"os/exec"
	"syscall"
)

// setProcessGroup places the child in its own process group and arranges for
// the whole group to be killed when the command's context is cancelled.
func setProcessGroup(c *exec.Cmd) {
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	c.Cancel = func() error {
		if c.Process == nil {
			return nil
		}
		// Negative pid signals the process group.
		return syscall.Kill(-c.Process.Pid, syscall.SIGKILL)
	}
}
