//go:build windows

package command

import (
	"os"
	"os/exec"
)

func configureProcAttr(cmd *exec.Cmd) {}

func killProcessGroup(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}
