//go:build !unix

package process

import (
	"os"
	"os/exec"
	"syscall"
)

func setProcessGroup(cmd *exec.Cmd) {}

// signalGroup signals proc only. Windows has no SIGTERM, so callers fall
// back to a kill.
func signalGroup(proc *os.Process, sig syscall.Signal) error {
	return proc.Signal(sig)
}
