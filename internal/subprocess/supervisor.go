package subprocess

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/wagiedev/sidecar-go/internal/cli"
	"github.com/wagiedev/sidecar-go/internal/config"
	"github.com/wagiedev/sidecar-go/internal/errors"
	"github.com/wagiedev/sidecar-go/internal/procattr"
	"github.com/wagiedev/sidecar-go/internal/wire"
)

const (
	// maxStderrBufferSize is the maximum size for the stderr buffer.
	// Stderr reading continues indefinitely (callback receives all lines),
	// but the buffer stops growing after this limit.
	maxStderrBufferSize = 1024 * 1024 // 1MB

	// maxStderrLineSize bounds a single stderr line.
	maxStderrLineSize = 1024 * 1024

	// killGrace is how long to wait for the kernel to reap a killed child.
	killGrace = 2 * time.Second

	// reapWait is how long the reader waits for the exit status after the
	// child's output ends, so the status is usually known by the time the
	// stream closes.
	reapWait = 100 * time.Millisecond

	// writeAbandonWait bounds the wait for a write goroutine after stdin was
	// closed to unblock it.
	writeAbandonWait = time.Second
)

// Supervisor implements config.Transport by spawning the child process.
type Supervisor struct {
	log     *slog.Logger
	options *config.Options

	writeMu sync.Mutex // Serializes SendMessage

	mu          sync.Mutex // Protects the fields below
	cmd         *exec.Cmd
	stdin       io.WriteCloser
	enc         *wire.Encoder
	stdinClosed bool
	closing     bool
	reading     bool

	stdout *os.File
	stderr *os.File

	stderrMu   sync.Mutex
	stderrBuf  strings.Builder
	stderrDone chan struct{}

	exited   chan struct{}
	exitCode int

	terminateOnce sync.Once
	terminateErr  error
}

// Compile-time verification that Supervisor implements the Transport interface.
var _ config.Transport = (*Supervisor)(nil)

// NewSupervisor creates a supervisor for the child described by options.
// Executable resolution is deferred to Start.
func NewSupervisor(log *slog.Logger, options *config.Options) *Supervisor {
	return &Supervisor{
		log:        log.With("component", "subprocess"),
		options:    options,
		exited:     make(chan struct{}),
		stderrDone: make(chan struct{}),
		exitCode:   -1,
	}
}

// Start resolves the executable and spawns the child.
//
// Returns *errors.SpawnError if the executable cannot be found or started.
// The child's lifetime is not bound to ctx; it runs until Close.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd != nil {
		return fmt.Errorf("child already started")
	}

	// Terminate already ran; a child started now would never be reaped.
	if s.closing {
		return fmt.Errorf("%w: supervisor is closed", errors.ErrTransportNotConnected)
	}

	discoverer := cli.NewDiscoverer(&cli.Config{
		Command: s.options.Command,
		Cwd:     s.options.Cwd,
		Logger:  s.log,
	})

	path, err := discoverer.Discover(ctx)
	if err != nil {
		return err
	}

	command := cli.BuildCommand(path, s.options)

	//nolint:gosec // G204: launching a configured child is the purpose of this package
	cmd := exec.Command(command.Path, command.Args...)
	cmd.Dir = command.Dir
	cmd.Env = command.Env
	procattr.Set(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &errors.SpawnError{Command: s.options.Command, Err: fmt.Errorf("stdin pipe: %w", err)}
	}

	// Own the read ends so Wait can reap the child without racing readers.
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return &errors.SpawnError{Command: s.options.Command, Err: fmt.Errorf("stdout pipe: %w", err)}
	}

	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		closeAll(stdoutR, stdoutW)

		return &errors.SpawnError{Command: s.options.Command, Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		closeAll(stdoutR, stdoutW, stderrR, stderrW)

		s.log.Error("Failed to start child", "path", command.Path, "error", err)

		return &errors.SpawnError{Command: s.options.Command, Err: err}
	}

	// The child holds its own copies now.
	closeAll(stdoutW, stderrW)

	s.cmd = cmd
	s.stdin = stdin
	s.enc = wire.NewEncoder(stdin)
	s.stdout = stdoutR
	s.stderr = stderrR

	s.log.Info("Child started", "path", command.Path, "pid", cmd.Process.Pid)

	go s.pumpStderr()
	go s.reap()

	return nil
}

// pumpStderr drains the child's stderr so it can never block on a full pipe.
func (s *Supervisor) pumpStderr() {
	defer close(s.stderrDone)

	scanner := bufio.NewScanner(s.stderr)
	scanner.Buffer(make([]byte, 0, 4096), maxStderrLineSize)

	for scanner.Scan() {
		line := scanner.Text()

		s.stderrMu.Lock()

		if s.stderrBuf.Len() < maxStderrBufferSize {
			if s.stderrBuf.Len() > 0 {
				s.stderrBuf.WriteString("\n")
			}

			s.stderrBuf.WriteString(line)
		}

		s.stderrMu.Unlock()

		s.log.Debug("Child stderr", "line", line)

		if s.options.Stderr != nil {
			s.options.Stderr(line)
		}
	}

	if err := scanner.Err(); err != nil && !stderrors.Is(err, os.ErrClosed) {
		s.log.Debug("Stderr scanner error", "error", err)
	}
}

// reap waits for the child and records its exit status.
func (s *Supervisor) reap() {
	err := s.cmd.Wait()

	code := 0
	if err != nil {
		code = -1
		if exitErr, ok := stderrors.AsType[*exec.ExitError](err); ok {
			code = exitErr.ExitCode()
		}
	}

	s.mu.Lock()
	s.exitCode = code
	closing := s.closing
	s.mu.Unlock()

	close(s.exited)

	switch {
	case closing:
		s.log.Debug("Child exited during shutdown", "exit_code", code)
	case code != 0:
		s.log.Warn("Child exited", "exit_code", code, "stderr", s.Stderr())
	default:
		s.log.Info("Child exited", "exit_code", code)
	}
}

// ReadMessages starts decoding the child's stdout.
//
// Messages and non-fatal decode errors are delivered in stream order on
// unbuffered channels. Both channels are closed when the output ends, when
// ctx is cancelled, or when the read side fails. It may be called once.
func (s *Supervisor) ReadMessages(ctx context.Context) (<-chan wire.Message, <-chan error) {
	messages := make(chan wire.Message)
	errs := make(chan error)

	s.mu.Lock()
	started := s.stdout != nil && !s.reading
	s.reading = true
	s.mu.Unlock()

	if !started {
		go func() {
			defer close(messages)
			defer close(errs)

			select {
			case errs <- errors.ErrTransportNotConnected:
			case <-ctx.Done():
			}
		}()

		return messages, errs
	}

	go func() {
		defer close(messages)
		defer close(errs)
		defer s.log.Debug("Reader stopped")

		dec := wire.NewDecoder(s.stdout)
		count := 0

		for {
			msg, err := dec.ReadLine()

			switch {
			case err == nil:
				count++
				s.log.Debug("Received message", "type", msg.Type(), "message_count", count)

				select {
				case messages <- msg:
				case <-ctx.Done():
					return
				}

			case stderrors.Is(err, errors.ErrEndOfStream):
				s.log.Debug("Child output ended", "message_count", count)

				select {
				case <-s.exited:
				case <-time.After(reapWait):
				case <-ctx.Done():
				}

				return

			default:
				_, malformed := stderrors.AsType[*errors.TransportDecodeError](err)

				switch {
				case malformed:
					s.log.Warn("Discarding malformed line from child", "error", err)
				case s.isClosing():
					return
				default:
					s.log.Error("Read from child failed", "error", err)
				}

				select {
				case errs <- err:
				case <-ctx.Done():
					return
				}

				if !malformed {
					return
				}
			}
		}
	}()

	return messages, errs
}

// SendMessage writes one framed message to the child's stdin.
//
// This method is safe for concurrent use and respects context cancellation
// even during blocking writes. If ctx is cancelled during a blocked write,
// stdin is closed to unblock it and later calls return ErrStdinClosed.
func (s *Supervisor) SendMessage(ctx context.Context, msg wire.Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	enc, stdinClosed := s.enc, s.stdinClosed
	s.mu.Unlock()

	if enc == nil {
		return errors.ErrTransportNotConnected
	}

	if stdinClosed {
		return errors.ErrStdinClosed
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	s.log.Debug("Sending message", "type", msg.Type())

	done := make(chan error, 1)

	go func() {
		done <- enc.WriteLine(msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			s.log.Error("Failed to write message", "type", msg.Type(), "error", err)
		}

		return err

	case <-ctx.Done():
		s.log.Debug("Context cancelled during write, closing stdin")

		s.mu.Lock()
		_ = s.closeStdinLocked()
		s.mu.Unlock()

		select {
		case <-done:
		case <-time.After(writeAbandonWait):
			s.log.Warn("Write goroutine did not exit after stdin close")
		}

		return ctx.Err()
	}
}

// IsReady reports whether the child is running with stdin open.
func (s *Supervisor) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd == nil || s.stdinClosed {
		return false
	}

	select {
	case <-s.exited:
		return false
	default:
		return true
	}
}

// EndInput closes the child's stdin, signalling that no more input follows.
func (s *Supervisor) EndInput() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closeStdinLocked()
}

func (s *Supervisor) closeStdinLocked() error {
	if s.stdin == nil || s.stdinClosed {
		return nil
	}

	s.log.Debug("Closing child stdin")

	s.stdinClosed = true

	return s.stdin.Close()
}

// ExitStatus reports, without blocking, whether the child has been reaped.
func (s *Supervisor) ExitStatus() config.ExitStatus {
	select {
	case <-s.exited:
		s.mu.Lock()
		defer s.mu.Unlock()

		return config.ExitStatus{Exited: true, Code: s.exitCode}
	default:
		return config.ExitStatus{}
	}
}

// Exited returns a channel closed once the child has been reaped.
func (s *Supervisor) Exited() <-chan struct{} {
	return s.exited
}

// Stderr returns the captured stderr output, capped at 1MB.
func (s *Supervisor) Stderr() string {
	s.stderrMu.Lock()
	defer s.stderrMu.Unlock()

	return s.stderrBuf.String()
}

// Pid returns the child's process id, or 0 before Start.
func (s *Supervisor) Pid() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}

	return s.cmd.Process.Pid
}

// Terminate stops the child and its process group.
//
// Stdin is closed first so a well-behaved child can exit on its own. If it is
// still running after half of TerminateTimeout it receives SIGTERM, and after
// the other half SIGKILL. Terminate returns once the child has been reaped or
// a *errors.ProcessError if it could not be. It is idempotent.
func (s *Supervisor) Terminate() error {
	s.terminateOnce.Do(func() {
		s.terminateErr = s.terminate()
	})

	return s.terminateErr
}

func (s *Supervisor) terminate() error {
	s.mu.Lock()
	s.closing = true
	cmd := s.cmd
	_ = s.closeStdinLocked()
	s.mu.Unlock()

	if cmd == nil {
		return nil
	}

	defer s.release()

	pid := cmd.Process.Pid
	step := s.options.TerminateTimeout / 2

	if s.waitExited(step) {
		s.log.Debug("Child exited after stdin close", "pid", pid)

		return nil
	}

	s.log.Debug("Sending SIGTERM to child", "pid", pid)

	if err := procattr.Terminate(cmd.Process); err != nil {
		s.log.Debug("SIGTERM failed", "pid", pid, "error", err)
	}

	if s.waitExited(s.options.TerminateTimeout - step) {
		return nil
	}

	s.log.Warn("Child ignored SIGTERM, killing", "pid", pid)

	if err := procattr.Kill(cmd.Process); err != nil {
		s.log.Debug("SIGKILL failed", "pid", pid, "error", err)
	}

	if s.waitExited(killGrace) {
		return nil
	}

	s.log.Error("Child could not be stopped", "pid", pid)

	return &errors.ProcessError{
		ExitCode: -1,
		Stderr:   s.Stderr(),
		Err:      fmt.Errorf("pid %d still running after SIGKILL", pid),
	}
}

func (s *Supervisor) waitExited(d time.Duration) bool {
	if d <= 0 {
		select {
		case <-s.exited:
			return true
		default:
			return false
		}
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-s.exited:
		return true
	case <-timer.C:
		return false
	}
}

// release closes the read ends once the child is gone. The stderr pump gets
// a moment to deliver the child's last lines first.
func (s *Supervisor) release() {
	select {
	case <-s.stderrDone:
	case <-time.After(reapWait):
	}

	closeAll(s.stdout, s.stderr)
}

func (s *Supervisor) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closing
}

// Close terminates the child. It's safe to call Close multiple times.
func (s *Supervisor) Close() error {
	return s.Terminate()
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		if f != nil {
			_ = f.Close()
		}
	}
}
