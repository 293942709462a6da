//go:build windows

package provider

import (
	"os/exec"
	"syscall"
)

// setupProcessGroup starts the CLI with CREATE_NEW_PROCESS_GROUP.
func setupProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.CreationFlags = syscall.CREATE_NEW_PROCESS_GROUP
}

// terminateProcessGroup has no graceful equivalent for console-less children
// on Windows, so it kills the process outright.
func terminateProcessGroup(cmd *exec.Cmd) {
	killProcessGroup(cmd)
}

func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}
