//go:build windows

package main

import "os/exec"

// detachProcess is a no-op on windows; DETACHED_PROCESS creation flags
// are left to a future port if this CLI ever needs to run there.
func detachProcess(cmd *exec.Cmd) {}
