//go:build windows

// Package procattr configures child processes so that the whole process tree
// can be signalled and is not orphaned when the parent dies.
package procattr

import (
	"errors"
	"os"
	"os/exec"
)

// Set is a no-op on Windows.
func Set(_ *exec.Cmd) {}

// Terminate kills the process; Windows has no graceful console signal for
// pipe-attached children.
func Terminate(p *os.Process) error {
	return Kill(p)
}

// Kill forcibly stops the process.
func Kill(p *os.Process) error {
	if p == nil {
		return nil
	}

	if err := p.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}

	return nil
}
