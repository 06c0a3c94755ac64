package protocol

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/wagiedev/sidecar-go/internal/config"
	"github.com/wagiedev/sidecar-go/internal/errors"
	"github.com/wagiedev/sidecar-go/internal/wire"
)

// Transport defines the minimal interface needed for protocol operations.
//
// This interface is satisfied by subprocess.Supervisor but allows for testing
// with mock transports.
type Transport interface {
	ReadMessages(ctx context.Context) (<-chan wire.Message, <-chan error)
	SendMessage(ctx context.Context, msg wire.Message) error
}

// Controller correlates requests with responses and dispatches everything
// else as events.
//
// In ordered mode requests are queued one at a time and responses are matched
// in send order. In id mode every request carries a ULID "id" and any number
// may be in flight; a response carrying an id resolves exactly that request.
// Responses without an id, and every response in ordered mode, go to the
// oldest pending request of the same kind.
type Controller struct {
	log       *slog.Logger
	transport Transport
	mode      config.Correlation

	// Serializes requests in ordered mode.
	reqMu sync.Mutex

	pendingMu sync.Mutex
	pending   []*pendingRequest

	sinkMu sync.RWMutex
	sink   config.EventHandler

	// Events wait here for DeliverEvents so a slow sink never stalls reads.
	eventMu    sync.Mutex
	events     []wire.Message
	eventReady chan struct{}
	delivered  chan struct{}

	// Fatal error handling - stores error and broadcasts via done channel
	errMu    sync.RWMutex
	fatalErr error

	closeOnce sync.Once
	done      chan struct{}
}

// NewController creates a new protocol controller.
func NewController(log *slog.Logger, transport Transport, mode config.Correlation) *Controller {
	if mode == "" {
		mode = config.CorrelationOrdered
	}

	return &Controller{
		log:        log.With("component", "protocol"),
		transport:  transport,
		mode:       mode,
		pending:    make([]*pendingRequest, 0, 4),
		eventReady: make(chan struct{}, 1),
		delivered:  make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// closeDone safely closes the done channel exactly once.
func (c *Controller) closeDone() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// SetFatalError stores a fatal error and broadcasts to all waiters by closing done.
func (c *Controller) SetFatalError(err error) {
	c.errMu.Lock()

	if c.fatalErr == nil {
		c.fatalErr = err
	}

	c.errMu.Unlock()

	c.closeDone()
}

// FatalError returns the fatal error if one occurred.
func (c *Controller) FatalError() error {
	c.errMu.RLock()
	defer c.errMu.RUnlock()

	return c.fatalErr
}

// Done returns a channel that is closed when the controller stops.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Stop fails every waiting request with ErrSessionClosed unless a fatal error
// was already recorded. It's safe to call Stop multiple times.
func (c *Controller) Stop() {
	c.SetFatalError(errors.ErrSessionClosed)
}

// SetEventHandler replaces the event sink and returns the previous one.
func (c *Controller) SetEventHandler(h config.EventHandler) config.EventHandler {
	c.sinkMu.Lock()
	defer c.sinkMu.Unlock()

	prev := c.sink
	c.sink = h

	return prev
}

// Pending returns the number of requests awaiting a response, including
// abandoned ones still holding a queue position.
func (c *Controller) Pending() int {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()

	return len(c.pending)
}

// SendRequest sends a <kind>_request message and waits for its response.
//
// In id mode the request "id" field is owned by the controller and replaces
// any "id" in payload; in ordered mode payload is sent as given. A server
// "error" reply yields *errors.RequestError. If no reply arrives
// within timeout the result wraps errors.ErrRequestTimeout. Write failures are
// returned as they come from the transport.
func (c *Controller) SendRequest(
	ctx context.Context,
	kind string,
	payload map[string]any,
	timeout time.Duration,
) (*Response, error) {
	if c.mode == config.CorrelationOrdered {
		c.reqMu.Lock()
		defer c.reqMu.Unlock()
	}

	select {
	case <-c.done:
		return nil, c.stoppedError()
	default:
	}

	msg := wire.New(wire.RequestType(kind), payload)

	pending := &pendingRequest{
		kind:     kind,
		response: make(chan wire.Message, 1),
	}

	if c.mode == config.CorrelationID {
		pending.id = c.generateRequestID()
		msg[wire.FieldID] = pending.id
	}

	// Register before sending so a fast reply cannot race the bookkeeping.
	c.pendingMu.Lock()
	c.pending = append(c.pending, pending)
	c.pendingMu.Unlock()

	c.log.Debug("Sending request", "kind", kind, "request_id", pending.id)

	if err := c.transport.SendMessage(ctx, msg); err != nil {
		c.remove(pending)
		c.log.Error("Failed to send request", "kind", kind, "error", err)

		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-pending.response:
		if resp.Type() == wire.TypeError {
			reqErr := requestError(kind, resp)
			c.log.Warn("Request returned error", "kind", kind, "request_id", pending.id, "error", reqErr.Message)

			return nil, reqErr
		}

		c.log.Debug("Received response", "kind", kind, "request_id", pending.id)

		return newResponse(kind, resp), nil

	case <-c.done:
		c.remove(pending)

		return nil, c.stoppedError()

	case <-timer.C:
		c.abandon(pending)
		c.log.Warn("Request timed out", "kind", kind, "request_id", pending.id, "timeout", timeout)

		return nil, fmt.Errorf("%s request: %w after %s", kind, errors.ErrRequestTimeout, timeout)

	case <-ctx.Done():
		c.abandon(pending)
		c.log.Debug("Request cancelled", "kind", kind, "request_id", pending.id)

		return nil, ctx.Err()
	}
}

func (c *Controller) stoppedError() error {
	if err := c.FatalError(); err != nil {
		return err
	}

	return errors.ErrSessionClosed
}

func (c *Controller) generateRequestID() string {
	return ulid.Make().String()
}

func (c *Controller) remove(p *pendingRequest) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()

	for i, candidate := range c.pending {
		if candidate == p {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)

			return
		}
	}
}

// abandon gives up on p. Id-correlated requests are forgotten; in ordered
// mode p keeps its place so its late reply is recognised and dropped.
func (c *Controller) abandon(p *pendingRequest) {
	if c.mode == config.CorrelationID {
		c.remove(p)

		return
	}

	c.pendingMu.Lock()
	p.abandoned = true
	c.pendingMu.Unlock()
}

// Run reads from the transport and dispatches messages until the stream ends,
// ctx is cancelled, or the controller stops.
//
// It returns errors.ErrEndOfStream when the child's output closed, nil on
// cancellation or stop, and the read error if the stream failed. Malformed
// lines are logged and skipped.
func (c *Controller) Run(ctx context.Context, messages <-chan wire.Message, errs <-chan error) error {
	defer c.log.Debug("Protocol read loop stopped")

	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				return errors.ErrEndOfStream
			}

			c.handleMessage(msg)

		case err, ok := <-errs:
			if !ok {
				// Drain any message sent before the channels closed.
				errs = nil

				continue
			}

			if _, malformed := stderrors.AsType[*errors.TransportDecodeError](err); malformed {
				c.log.Warn("Skipping malformed message", "error", err)

				continue
			}

			c.log.Debug("Transport error in protocol", "error", err)

			return err

		case <-c.done:
			return nil

		case <-ctx.Done():
			return nil
		}
	}
}

// handleMessage routes a message based on its type.
func (c *Controller) handleMessage(msg wire.Message) {
	msgType := msg.Type()

	if kind, ok := wire.ResponseKind(msgType); ok {
		c.handleResponse(kind, msg)

		return
	}

	if msgType == wire.TypeError {
		c.handleError(msg)

		return
	}

	c.dispatchEvent(msg)
}

func (c *Controller) handleResponse(kind string, msg wire.Message) {
	id := msg.ID()

	c.pendingMu.Lock()

	byID := id != "" && c.mode == config.CorrelationID

	var p *pendingRequest
	if byID {
		p = c.claimByIDLocked(id)
	} else {
		p = c.claimByKindLocked(kind)
	}

	c.pendingMu.Unlock()

	switch {
	case p == nil && byID:
		c.log.Warn("No pending request for response", "type", msg.Type(), "request_id", id)
	case p == nil:
		// Not ours: the response shape matched nothing in flight.
		c.dispatchEvent(msg)
	case p.abandoned:
		c.log.Debug("Discarding late response", "type", msg.Type())
	default:
		// We own p now; the channel is buffered.
		p.response <- msg
	}
}

func (c *Controller) handleError(msg wire.Message) {
	id := msg.ID()

	c.pendingMu.Lock()

	var p *pendingRequest

	switch {
	case id != "" && c.mode == config.CorrelationID:
		p = c.claimByIDLocked(id)
	case len(c.pending) > 0:
		p = c.pending[0]
		c.pending = c.pending[1:]
	}

	c.pendingMu.Unlock()

	switch {
	case p == nil:
		c.log.Error("Server reported error", "message", msg.String(wire.FieldMessage), "request_id", id)
	case p.abandoned:
		c.log.Debug("Discarding late error", "kind", p.kind, "message", msg.String(wire.FieldMessage))
	default:
		p.response <- msg
	}
}

func (c *Controller) claimByIDLocked(id string) *pendingRequest {
	for i, p := range c.pending {
		if p.id == id {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)

			return p
		}
	}

	return nil
}

// claimByKindLocked returns the oldest pending request of kind. Abandoned
// requests queued ahead of it are dropped: their replies would have come first.
func (c *Controller) claimByKindLocked(kind string) *pendingRequest {
	for i, p := range c.pending {
		if p.kind != kind {
			continue
		}

		kept := c.pending[:0:0]
		for _, earlier := range c.pending[:i] {
			if !earlier.abandoned {
				kept = append(kept, earlier)
			}
		}

		c.pending = append(kept, c.pending[i+1:]...)

		return p
	}

	return nil
}

// dispatchEvent queues msg for DeliverEvents.
func (c *Controller) dispatchEvent(msg wire.Message) {
	c.eventMu.Lock()
	c.events = append(c.events, msg)
	c.eventMu.Unlock()

	select {
	case c.eventReady <- struct{}{}:
	default:
	}
}

// DeliverEvents passes queued events to the sink in arrival order until the
// controller stops or ctx is cancelled. Events queued before the stop are
// still delivered. The sink runs on this goroutine, never on the read loop,
// so it may block or issue requests.
func (c *Controller) DeliverEvents(ctx context.Context) {
	defer close(c.delivered)

	for {
		select {
		case <-c.eventReady:
			c.deliverQueued()

		case <-c.done:
			c.deliverQueued()

			return

		case <-ctx.Done():
			return
		}
	}
}

// EventsDelivered is closed once DeliverEvents has returned.
func (c *Controller) EventsDelivered() <-chan struct{} {
	return c.delivered
}

func (c *Controller) deliverQueued() {
	for {
		c.eventMu.Lock()
		batch := c.events
		c.events = nil
		c.eventMu.Unlock()

		if len(batch) == 0 {
			return
		}

		for _, msg := range batch {
			c.deliverEvent(msg)
		}
	}
}

func (c *Controller) deliverEvent(msg wire.Message) {
	c.sinkMu.RLock()
	sink := c.sink
	c.sinkMu.RUnlock()

	if sink == nil {
		c.log.Info("Unhandled event", "type", msg.Type())

		return
	}

	sink(msg)
}
