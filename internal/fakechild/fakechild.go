// Package fakechild implements scripted child processes for tests.
//
// A test binary re-executes itself with EnvVar set to a scenario name and
// calls Main from TestMain:
//
//	func TestMain(m *testing.M) {
//	    fakechild.Main()
//	    os.Exit(m.Run())
//	}
//
// Options built with Options point at the running test binary.
package fakechild

import (
	stderrors "errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/wagiedev/sidecar-go/internal/config"
	"github.com/wagiedev/sidecar-go/internal/errors"
	"github.com/wagiedev/sidecar-go/internal/wire"
)

// EnvVar selects the scenario in the child.
const EnvVar = "SIDECAR_HELPER_CHILD"

// Scenarios.
const (
	// Maps answers the handshake and location, echo, slow and notify requests.
	Maps = "maps"
	// Reject answers the handshake with an error.
	Reject = "reject"
	// Silent reads input but never replies.
	Silent = "silent"
	// ExitAfterConnect completes the handshake and exits with status 1.
	ExitAfterConnect = "exit-after-connect"
	// ExitImmediately writes to stderr and exits with status 2 before reading.
	ExitImmediately = "exit-immediately"
	// Malformed completes the handshake, then writes garbage before each reply.
	Malformed = "malformed"
	// Stubborn ignores SIGTERM and the end of its input.
	Stubborn = "stubborn"
	// Reverse answers requests in pairs, in reverse order.
	Reverse = "reverse"
	// Unordered completes the handshake and answers the first request with a
	// mismatched response kind.
	Unordered = "unordered"
	// Tour answers one location request, reports two location updates and
	// exits with status 0.
	Tour = "tour"
)

// Known locations served by the Maps scenario.
var locations = map[string]map[string]any{
	"Tokyo Tower":  {"lat": 35.6586, "lng": 139.7454},
	"Eiffel Tower": {"lat": 48.8584, "lng": 2.2945},
}

// Main runs the selected scenario and exits if EnvVar is set.
func Main() {
	scenario := os.Getenv(EnvVar)
	if scenario == "" {
		return
	}

	os.Exit(Run(scenario))
}

// Options returns options that launch the current executable as the child
// running scenario.
func Options(scenario string) *config.Options {
	self, err := os.Executable()
	if err != nil {
		panic(fmt.Sprintf("fakechild: resolve executable: %v", err))
	}

	return &config.Options{
		Command: self,
		Args:    []string{"-test.run=^$"},
		Env:     map[string]string{EnvVar: scenario},
	}
}

// Run executes scenario against stdin and stdout and returns the exit status.
func Run(scenario string) int {
	c := &child{
		dec: wire.NewDecoder(os.Stdin),
		enc: wire.NewEncoder(os.Stdout),
	}

	switch scenario {
	case Maps:
		return c.serve(c.answer)
	case Reject:
		return c.reject()
	case Silent:
		return c.silent()
	case ExitAfterConnect:
		return c.exitAfterConnect()
	case ExitImmediately:
		fmt.Fprintln(os.Stderr, "fatal: GOOGLE_MAPS_API_KEY is not set")

		return 2
	case Malformed:
		return c.serve(func(msg wire.Message) bool {
			fmt.Fprintln(os.Stdout, "this is not json")

			return c.answer(msg)
		})
	case Stubborn:
		signal.Ignore(syscall.SIGTERM)
		fmt.Fprintln(os.Stderr, "ignoring SIGTERM")

		for {
			time.Sleep(time.Hour)
		}
	case Reverse:
		return c.reverse()
	case Tour:
		return c.tour()
	case Unordered:
		return c.serve(func(msg wire.Message) bool {
			c.send(wire.New("weather_response", map[string]any{"data": "sunny"}))

			return c.answer(msg)
		})
	default:
		fmt.Fprintf(os.Stderr, "unknown scenario %q\n", scenario)

		return 99
	}
}

type child struct {
	dec *wire.Decoder
	enc *wire.Encoder
}

func (c *child) send(msg wire.Message) {
	if err := c.enc.WriteLine(msg); err != nil {
		os.Exit(98)
	}
}

// next returns the next message, skipping malformed lines. ok is false at
// the end of input.
func (c *child) next() (wire.Message, bool) {
	for {
		msg, err := c.dec.ReadLine()
		if err == nil {
			return msg, true
		}

		if stderrors.Is(err, errors.ErrEndOfStream) {
			return nil, false
		}

		if _, malformed := stderrors.AsType[*errors.TransportDecodeError](err); !malformed {
			return nil, false
		}
	}
}

func (c *child) handshake() bool {
	msg, ok := c.next()
	if !ok || msg.Type() != wire.TypeConnect {
		return false
	}

	c.send(wire.New(wire.TypeConnected, map[string]any{
		wire.FieldProtocol: msg.String(wire.FieldProtocol),
		wire.FieldVersion:  msg.String(wire.FieldVersion),
		"server":           "fake-maps",
	}))

	return true
}

// serve completes the handshake and feeds every later message to handle
// until it returns false or input ends.
func (c *child) serve(handle func(wire.Message) bool) int {
	if !c.handshake() {
		return 1
	}

	for {
		msg, ok := c.next()
		if !ok {
			return 0
		}

		if !handle(msg) {
			return 0
		}
	}
}

func (c *child) reply(req wire.Message, msgType string, fields map[string]any) {
	resp := wire.New(msgType, fields)
	if id := req.ID(); id != "" {
		resp[wire.FieldID] = id
	}

	c.send(resp)
}

// answer handles one message of the Maps scenario.
func (c *child) answer(msg wire.Message) bool {
	switch msg.Type() {
	case wire.TypeDisconnect:
		fmt.Fprintf(os.Stderr, "disconnect: %s\n", msg.String(wire.FieldReason))

		return false

	case "location_request":
		query := msg.String(wire.FieldQuery)

		loc, found := locations[query]
		if !found {
			c.reply(msg, wire.TypeError, map[string]any{
				wire.FieldMessage: "no results for " + query,
			})

			return true
		}

		c.reply(msg, "location_response", map[string]any{wire.FieldLocation: loc})

	case "echo_request":
		c.reply(msg, "echo_response", map[string]any{wire.FieldData: payloadOf(msg)})

	case "slow_request":
		time.Sleep(500 * time.Millisecond)
		c.reply(msg, "slow_response", map[string]any{wire.FieldData: "late"})

	case "notify_request":
		c.send(wire.New(wire.TypeLocationUpdate, map[string]any{
			wire.FieldLocation: locations["Tokyo Tower"],
		}))
		c.reply(msg, "notify_response", map[string]any{wire.FieldData: "sent"})

	case "crash_request":
		fmt.Fprintln(os.Stderr, "crashing on request")
		os.Exit(3)

	default:
		c.reply(msg, wire.TypeError, map[string]any{
			wire.FieldMessage: "unsupported message " + msg.Type(),
		})
	}

	return true
}

func payloadOf(msg wire.Message) map[string]any {
	out := make(map[string]any, len(msg))

	for k, v := range msg {
		if k != wire.FieldType && k != wire.FieldID {
			out[k] = v
		}
	}

	return out
}

func (c *child) reject() int {
	msg, ok := c.next()
	if !ok {
		return 1
	}

	c.send(wire.New(wire.TypeError, map[string]any{
		wire.FieldMessage: fmt.Sprintf("unsupported protocol %q", msg.String(wire.FieldProtocol)),
	}))

	// Wait for the parent to give up.
	for {
		if _, ok := c.next(); !ok {
			return 0
		}
	}
}

func (c *child) silent() int {
	for {
		if _, ok := c.next(); !ok {
			return 0
		}
	}
}

func (c *child) exitAfterConnect() int {
	if !c.handshake() {
		return 1
	}

	fmt.Fprintln(os.Stderr, "boom")

	return 1
}

func (c *child) reverse() int {
	if !c.handshake() {
		return 1
	}

	var held []wire.Message

	for {
		msg, ok := c.next()
		if !ok {
			return 0
		}

		if msg.Type() == wire.TypeDisconnect {
			return 0
		}

		held = append(held, msg)
		if len(held) < 2 {
			continue
		}

		for i := len(held) - 1; i >= 0; i-- {
			kind, _ := strings.CutSuffix(held[i].Type(), "_request")
			c.reply(held[i], wire.ResponseType(kind), map[string]any{wire.FieldData: payloadOf(held[i])})
		}

		held = held[:0]
	}
}

func (c *child) tour() int {
	if !c.handshake() {
		return 1
	}

	msg, ok := c.next()
	if !ok {
		return 1
	}

	c.answer(msg)

	// Updates follow the reply after a pause, as a live feed would.
	time.Sleep(100 * time.Millisecond)

	for _, name := range []string{"Tokyo Tower", "Eiffel Tower"} {
		c.send(wire.New(wire.TypeLocationUpdate, map[string]any{
			wire.FieldLocation: locations[name],
		}))
	}

	return 0
}
