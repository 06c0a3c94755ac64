//go:build unix && !linux

// Package procattr configures child processes so that the whole process tree
// can be signalled and is not orphaned when the parent dies.
package procattr

import (
	"os/exec"
	"syscall"
)

// Set places the child in its own process group. Pdeathsig is Linux-only.
func Set(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}
