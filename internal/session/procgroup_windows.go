//go:build windows

package session

import (
	"os/exec"
	"syscall"
)

// Process groups are not used on Windows; callers fall back to signalling
// the shell process itself.
func configureProcessGroup(cmd *exec.Cmd) {
	_ = cmd
}

func processGroupID(cmd *exec.Cmd) int {
	return 0
}

func signalProcessGroup(pgid int, sig syscall.Signal) error {
	return syscall.EWINDOWS
}

var (
	sigInterrupt = syscall.SIGINT
	sigKill      = syscall.SIGKILL
)
