//go:build windows

package worker

import "os/exec"

func configureSysProc(cmd *exec.Cmd) {
	// Windows has no POSIX process groups; the default attributes suffice.
}

func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
}
