//go:build !windows

package worker

import (
	"os/exec"
	"syscall"
)

func configureSysProc(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	// Negative PID targets the process group.
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}
