//go:build unix

package process

import (
	"os"
	"os/exec"
	"syscall"
)

// setProcessGroup makes the command lead its own process group, so that
// workers the host forks are stopped with it.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// signalGroup delivers sig to the process group led by proc. It falls back
// to proc alone when the group is gone.
func signalGroup(proc *os.Process, sig syscall.Signal) error {
	if err := syscall.Kill(-proc.Pid, sig); err == nil {
		return nil
	}
	return proc.Signal(sig)
}
