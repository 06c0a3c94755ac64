// Package subprocess provides the subprocess-backed transport.
//
// Supervisor spawns the configured child, speaks newline-delimited JSON over
// its stdin and stdout, drains stderr in the background, and owns the child's
// lifecycle: reaping, exit status, and graceful-then-forced termination of the
// whole process group.
package subprocess
