//go:build linux

// Package procattr configures child processes so that the whole process tree
// can be signalled and is not orphaned when the parent dies.
package procattr

import (
	"os/exec"
	"syscall"
)

// Set places the child in its own process group and asks the kernel to send
// it SIGTERM if the parent dies.
func Set(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGTERM,
	}
}
