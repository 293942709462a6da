//go:build !linux

package provider

import "os/exec"

// watchExit is a no-op here; the handle learns of the exit when cmd.Wait
// returns.
func watchExit(*exec.Cmd, func()) {}
