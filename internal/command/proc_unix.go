//go:build !windows

package command

import (
	"os/exec"
	"syscall"
)

// configureProcAttr runs the command in its own process group so that the
// whole group can be killed on cancellation.
func configureProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup sends SIGKILL to the process group, falling back to the
// process itself.
func killProcessGroup(pid int) error {
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
		return syscall.Kill(pid, syscall.SIGKILL)
	}
	return nil
}
