package protocol

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/wagiedev/sidecar-go/internal/config"
	"github.com/wagiedev/sidecar-go/internal/errors"
	"github.com/wagiedev/sidecar-go/internal/wire"
)

// responder reacts to a message sent by the session.
type responder func(m *mockTransport, msg wire.Message)

// mockTransport is an in-memory transport with a scripted peer.
type mockTransport struct {
	mu       sync.Mutex
	sent     []wire.Message
	respond  responder
	startErr error
	sendErr  error
	ended    bool
	ready    bool
	closed   int
	exit     config.ExitStatus
	stderr   string

	msgs chan wire.Message
	errs chan error
}

var _ config.Transport = (*mockTransport)(nil)

func newMockTransport(respond responder) *mockTransport {
	return &mockTransport{
		respond: respond,
		msgs:    make(chan wire.Message, 64),
		errs:    make(chan error, 8),
	}
}

func (m *mockTransport) Start(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.startErr != nil {
		return m.startErr
	}

	m.ready = true

	return nil
}

func (m *mockTransport) ReadMessages(context.Context) (<-chan wire.Message, <-chan error) {
	return m.msgs, m.errs
}

func (m *mockTransport) SendMessage(ctx context.Context, msg wire.Message) error {
	m.mu.Lock()

	if m.sendErr != nil {
		err := m.sendErr
		m.mu.Unlock()

		return err
	}

	if err := ctx.Err(); err != nil {
		m.mu.Unlock()

		return err
	}

	m.sent = append(m.sent, msg.Clone())
	respond := m.respond
	m.mu.Unlock()

	if respond != nil {
		respond(m, msg)
	}

	return nil
}

func (m *mockTransport) Close() error {
	m.mu.Lock()
	m.closed++
	m.ready = false
	m.mu.Unlock()

	m.endStream()

	return nil
}

func (m *mockTransport) IsReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.ready
}

func (m *mockTransport) EndInput() error {
	return nil
}

func (m *mockTransport) ExitStatus() config.ExitStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.exit
}

func (m *mockTransport) Stderr() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.stderr
}

// push delivers msg from the peer unless the stream has ended.
func (m *mockTransport) push(msg wire.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.ended {
		m.msgs <- msg
	}
}

// pushErr delivers a read error unless the stream has ended.
func (m *mockTransport) pushErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.ended {
		m.errs <- err
	}
}

// endStream simulates the peer closing its output.
func (m *mockTransport) endStream() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.ended {
		m.ended = true
		close(m.msgs)
		close(m.errs)
	}
}

// exitWith records an exit status and ends the stream.
func (m *mockTransport) exitWith(code int, stderr string) {
	m.mu.Lock()
	m.exit = config.ExitStatus{Exited: true, Code: code}
	m.stderr = stderr
	m.mu.Unlock()

	m.endStream()
}

func (m *mockTransport) sentMessages() []wire.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]wire.Message(nil), m.sent...)
}

func (m *mockTransport) closeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.closed
}

func (m *mockTransport) setSendErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sendErr = err
}

// mapsPeer answers the handshake, location lookups and echo requests.
func mapsPeer(m *mockTransport, msg wire.Message) {
	reply := func(msgType string, fields map[string]any) {
		resp := wire.New(msgType, fields)
		if id := msg.ID(); id != "" {
			resp[wire.FieldID] = id
		}

		m.push(resp)
	}

	switch msg.Type() {
	case wire.TypeConnect:
		m.push(wire.New(wire.TypeConnected, map[string]any{"server": "mock"}))

	case "location_request":
		if msg.String(wire.FieldQuery) != "Tokyo Tower" {
			reply(wire.TypeError, map[string]any{wire.FieldMessage: "no results"})

			return
		}

		reply("location_response", map[string]any{
			wire.FieldLocation: map[string]any{"lat": 35.6586, "lng": 139.7454},
		})

	case "echo_request":
		reply("echo_response", map[string]any{wire.FieldData: msg["n"]})
	}
}

// withConnect wraps a steady-state responder with the handshake.
func withConnect(next responder) responder {
	return func(m *mockTransport, msg wire.Message) {
		if msg.Type() == wire.TypeConnect {
			m.push(wire.New(wire.TypeConnected, nil))

			return
		}

		if next != nil {
			next(m, msg)
		}
	}
}

func testOptions(mutate ...func(*config.Options)) *config.Options {
	opts := &config.Options{
		HandshakeTimeout: 2 * time.Second,
		RequestTimeout:   2 * time.Second,
	}

	for _, fn := range mutate {
		fn(opts)
	}

	return opts.WithDefaults()
}

func newTestSession(t *testing.T, transport *mockTransport, mutate ...func(*config.Options)) *Session {
	t.Helper()

	s := NewSession(slog.Default(), transport, testOptions(mutate...))

	t.Cleanup(func() { _ = s.Close() })

	return s
}

func connectedSession(t *testing.T, transport *mockTransport, mutate ...func(*config.Options)) *Session {
	t.Helper()

	s := newTestSession(t, transport, mutate...)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	return s
}

// writeErr is a transport write failure.
var writeErr = &errors.TransportWriteError{Err: context.Canceled}
