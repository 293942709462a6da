package provider

import (
	"errors"
	"os/exec"

	"golang.org/x/sys/unix"
)

// watchExit calls onExit as soon as the process terminates, without reaping
// it, so cmd.Wait still collects the status.
func watchExit(cmd *exec.Cmd, onExit func()) {
	pid := cmd.Process.Pid
	go func() {
		var info unix.Siginfo
		for {
			err := unix.Waitid(unix.P_PID, pid, &info, unix.WEXITED|unix.WNOWAIT, nil)
			if errors.Is(err, unix.EINTR) {
				continue
			}
			// ECHILD means cmd.Wait already reaped it.
			if err == nil || errors.Is(err, unix.ECHILD) {
				onExit()
			}
			return
		}
	}()
}
