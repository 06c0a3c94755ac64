//go:build unix

package procattr

import (
	"errors"
	"os"
	"syscall"
)

// Terminate asks the process group of p to exit.
func Terminate(p *os.Process) error {
	return signalGroup(p, syscall.SIGTERM)
}

// Kill forcibly stops the process group of p.
func Kill(p *os.Process) error {
	return signalGroup(p, syscall.SIGKILL)
}

// signalGroup delivers sig to every process in the group led by p.
// A group that is already gone is not an error.
func signalGroup(p *os.Process, sig syscall.Signal) error {
	if p == nil {
		return nil
	}

	err := syscall.Kill(-p.Pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}

	return err
}
