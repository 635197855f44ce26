//go:build !windows

package main

import (
	"os/exec"
	"syscall"
)

// detachProcess starts cmd in its own session so it survives this
// process's exit and is not killed by a signal sent to this process's
// group.
func detachProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
