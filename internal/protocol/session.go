package protocol

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wagiedev/sidecar-go/internal/config"
	"github.com/wagiedev/sidecar-go/internal/errors"
	"github.com/wagiedev/sidecar-go/internal/wire"
)

// Disconnect reasons sent to the child.
const (
	ReasonNormalClosure   = "normal_closure"
	ReasonHandshakeFailed = "handshake_failed"
	ReasonTransportError  = "transport_error"
	ReasonChildExited     = "child_exited"

	// reasonSpawnFailed is only logged; nothing is sent to a child that never started.
	reasonSpawnFailed = "spawn_failed"
)

// disconnectTimeout bounds the best-effort disconnect write during close.
const disconnectTimeout = time.Second

// Session is the protocol state machine bound to one child process.
//
// A Session is single-use: once Closed it cannot be reconnected.
type Session struct {
	log        *slog.Logger
	id         string
	options    *config.Options
	transport  config.Transport
	controller *Controller
	state      *stateManager

	mu          sync.Mutex
	started     bool
	serverInfo  wire.Message
	err         error
	closeReason string
	runLoop     bool

	eg         *errgroup.Group
	cancelRead context.CancelFunc

	closeOnce sync.Once
	closeErr  error
	closed    chan struct{}
}

// NewSession creates a session over transport. options must already carry
// defaults (see config.Options.WithDefaults).
func NewSession(log *slog.Logger, transport config.Transport, options *config.Options) *Session {
	id := uuid.NewString()
	log = log.With("component", "session", "session_id", id)

	controller := NewController(log, transport, options.Correlation)
	controller.SetEventHandler(options.OnEvent)

	return &Session{
		log:        log,
		id:         id,
		options:    options,
		transport:  transport,
		controller: controller,
		state:      newStateManager(),
		closed:     make(chan struct{}),
	}
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string {
	return s.id
}

// State returns the current state.
func (s *Session) State() State {
	return s.state.Current()
}

// ServerInfo returns the "connected" handshake reply, or nil before connect.
func (s *Session) ServerInfo() wire.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.serverInfo.Clone()
}

// Err returns the error that ended the session, if any. It is nil for a
// session that was closed deliberately.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.err
}

// Closed returns a channel that is closed once Close has completed.
func (s *Session) Closed() <-chan struct{} {
	return s.closed
}

// Connect starts the child and performs the handshake: one "connect"
// message, then exactly one read that must yield "connected".
//
// On any failure the session moves to Errored, the child is shut down, and
// the error is returned; *errors.HandshakeError describes protocol failures.
func (s *Session) Connect(ctx context.Context) error {
	if err := s.state.Transition(StateConnecting, StateIdle); err != nil {
		return err
	}

	s.log.Info("Connecting", "protocol", s.options.Protocol, "version", s.options.ProtocolVersion)

	if err := s.transport.Start(ctx); err != nil {
		s.log.Error("Failed to start child", "error", err)
		s.abort(err, reasonSpawnFailed)

		return err
	}

	s.mu.Lock()
	s.started = true
	s.mu.Unlock()

	// The read side lives until Close, not until the caller's ctx expires.
	readCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.cancelRead = cancel
	s.mu.Unlock()

	messages, errs := s.transport.ReadMessages(readCtx)

	reply, err := s.handshake(ctx, messages, errs)
	if err != nil {
		s.log.Error("Handshake failed", "error", err)
		s.abort(err, ReasonHandshakeFailed)

		return err
	}

	s.mu.Lock()
	s.serverInfo = reply
	s.mu.Unlock()

	if err := s.state.Transition(StateConnected, StateConnecting); err != nil {
		// Closed concurrently.
		return err
	}

	eg, egCtx := errgroup.WithContext(readCtx)

	s.mu.Lock()
	s.eg = eg
	s.mu.Unlock()

	eg.Go(func() error {
		err := s.controller.Run(egCtx, messages, errs)
		s.handleStreamEnd(err)

		return nil
	})

	eg.Go(func() error {
		s.controller.DeliverEvents(egCtx)

		return nil
	})

	s.log.Info("Connected")

	return nil
}

func (s *Session) handshake(
	ctx context.Context,
	messages <-chan wire.Message,
	errs <-chan error,
) (wire.Message, error) {
	connect := wire.New(wire.TypeConnect, map[string]any{
		wire.FieldProtocol: s.options.Protocol,
		wire.FieldVersion:  s.options.ProtocolVersion,
	})

	if err := s.transport.SendMessage(ctx, connect); err != nil {
		return nil, &errors.HandshakeError{Reason: "could not send connect", Err: err}
	}

	timer := time.NewTimer(s.options.HandshakeTimeout)
	defer timer.Stop()

	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				return nil, &errors.HandshakeError{
					Reason: "child closed its output before replying",
					Err:    s.childExited(),
				}
			}

			switch msg.Type() {
			case wire.TypeConnected:
				return msg, nil
			case wire.TypeError:
				return nil, &errors.HandshakeError{
					Reason: "child rejected connect",
					Got:    msg.Type(),
					Err:    requestError(wire.TypeConnect, msg),
				}
			default:
				return nil, &errors.HandshakeError{Reason: "unexpected reply", Got: msg.Type()}
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil

				continue
			}

			return nil, &errors.HandshakeError{Reason: "unreadable reply", Err: err}

		case <-timer.C:
			return nil, &errors.HandshakeError{
				Reason: fmt.Sprintf("no reply within %s", s.options.HandshakeTimeout),
				Err:    errors.ErrRequestTimeout,
			}

		case <-ctx.Done():
			return nil, &errors.HandshakeError{Reason: "cancelled", Err: ctx.Err()}
		}
	}
}

// Request sends a <kind>_request carrying payload and waits for the
// matching <kind>_response.
//
// A server "error" reply yields *errors.RequestError and leaves the session
// usable. A write failure moves the session to Errored and closes it.
func (s *Session) Request(ctx context.Context, kind string, payload map[string]any) (*Response, error) {
	if kind == "" {
		return nil, fmt.Errorf("request kind is required")
	}

	if err := s.usable(); err != nil {
		return nil, err
	}

	resp, err := s.controller.SendRequest(ctx, kind, payload, s.options.RequestTimeout)
	if err != nil {
		if isWriteFailure(err) {
			s.fail(err, ReasonTransportError)
		}

		return nil, err
	}

	return resp, nil
}

// RunLoop delivers unsolicited messages to handler until the child closes its
// output, the session is closed, or ctx is cancelled.
//
// It returns nil when the session ended normally (including the child exiting,
// even before RunLoop was called) and ctx.Err() on cancellation. A nil handler
// keeps the configured sink. Events queued before the end are delivered
// before RunLoop returns. Only one RunLoop may be active at a time.
func (s *Session) RunLoop(ctx context.Context, handler config.EventHandler) error {
	if err := s.usable(); err != nil {
		// The child already exited: the loop would have ended normally.
		if stderrors.Is(err, errors.ErrEndOfStream) {
			return nil
		}

		return err
	}

	s.mu.Lock()
	if s.runLoop {
		s.mu.Unlock()

		return fmt.Errorf("%w: run loop already active", errors.ErrInvalidState)
	}

	s.runLoop = true
	s.mu.Unlock()

	if handler != nil {
		prev := s.controller.SetEventHandler(handler)
		defer s.controller.SetEventHandler(prev)
	}

	defer func() {
		s.mu.Lock()
		s.runLoop = false
		s.mu.Unlock()
	}()

	s.log.Debug("Run loop started")
	defer s.log.Debug("Run loop stopped")

	select {
	case <-ctx.Done():
		return ctx.Err()

	case <-s.controller.Done():
		// Let the handler see every event that arrived before the end.
		select {
		case <-s.controller.EventsDelivered():
		case <-ctx.Done():
			return ctx.Err()
		}

		if err := s.Err(); err != nil && !stderrors.Is(err, errors.ErrEndOfStream) {
			return err
		}

		return nil
	}
}

// Close ends the session: a best-effort "disconnect" is sent, the child is
// terminated, and pending requests fail with ErrSessionClosed. It returns
// once the child has been reaped or the termination timeout has passed.
// It's safe to call Close multiple times.
func (s *Session) Close() error {
	s.closeWith(ReasonNormalClosure)

	return s.closeErr
}

func (s *Session) closeWith(reason string) {
	s.closeOnce.Do(func() {
		s.state.BeginClose()

		s.mu.Lock()
		if s.closeReason != "" {
			reason = s.closeReason
		}

		started := s.started
		cancelRead := s.cancelRead
		s.mu.Unlock()

		s.log.Info("Closing session", "reason", reason)

		if started {
			s.sendDisconnect(reason)
		}

		s.controller.Stop()

		if cancelRead != nil {
			cancelRead()
		}

		s.closeErr = s.transport.Close()
		if s.closeErr != nil {
			s.log.Error("Failed to stop child", "error", s.closeErr)
		}

		s.mu.Lock()
		eg := s.eg
		s.mu.Unlock()

		if eg != nil {
			_ = eg.Wait()
		}

		s.state.SetClosed()
		close(s.closed)

		s.log.Info("Session closed")
	})
}

func (s *Session) sendDisconnect(reason string) {
	if !s.transport.IsReady() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()

	msg := wire.New(wire.TypeDisconnect, map[string]any{wire.FieldReason: reason})
	if err := s.transport.SendMessage(ctx, msg); err != nil {
		// The session is terminating anyway.
		s.log.Debug("Disconnect not delivered", "error", err)
	}
}

// usable returns nil if requests may be issued.
func (s *Session) usable() error {
	switch st := s.state.Current(); st {
	case StateConnected:
		return nil
	case StateIdle, StateConnecting:
		return fmt.Errorf("%w: session is %s", errors.ErrInvalidState, st)
	default:
		if err := s.Err(); err != nil {
			return err
		}

		return errors.ErrSessionClosed
	}
}

// abort handles a failed connect: the session is marked Errored and closed
// synchronously.
func (s *Session) abort(err error, reason string) {
	s.state.SetErrored()
	s.record(err, reason)
	s.controller.SetFatalError(err)
	s.closeWith(reason)
}

// fail marks the session Errored and closes it in the background.
func (s *Session) fail(err error, reason string) {
	if !s.state.SetErrored() {
		return
	}

	s.log.Error("Session failed", "error", err)
	s.record(err, reason)
	s.controller.SetFatalError(err)

	go s.closeWith(reason)
}

func (s *Session) record(err error, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err == nil {
		s.err = err
	}

	if s.closeReason == "" {
		s.closeReason = reason
	}
}

// handleStreamEnd runs when the read loop stops.
func (s *Session) handleStreamEnd(err error) {
	if st := s.state.Current(); st == StateClosing || st == StateClosed {
		return
	}

	switch {
	case err == nil:
		return

	case stderrors.Is(err, errors.ErrEndOfStream):
		exited := s.childExited()
		s.log.Warn("Child closed its output", "exit_code", exited.ExitCode, "stderr", exited.Stderr)

		// An unexpected exit is an ordinary path into Closing.
		s.record(exited, ReasonChildExited)
		s.controller.SetFatalError(exited)

		go s.closeWith(ReasonChildExited)

	default:
		s.fail(fmt.Errorf("read from child: %w", err), ReasonTransportError)
	}
}

// childExited describes the child's exit for error reporting.
func (s *Session) childExited() *errors.ChildExitedError {
	exitErr := &errors.ChildExitedError{ExitCode: -1}

	if status := s.transport.ExitStatus(); status.Exited {
		exitErr.ExitCode = status.Code
	}

	if src, ok := s.transport.(interface{ Stderr() string }); ok {
		exitErr.Stderr = src.Stderr()
	}

	return exitErr
}

func isWriteFailure(err error) bool {
	if _, ok := stderrors.AsType[*errors.TransportWriteError](err); ok {
		return true
	}

	return stderrors.Is(err, errors.ErrStdinClosed) || stderrors.Is(err, errors.ErrTransportNotConnected)
}
