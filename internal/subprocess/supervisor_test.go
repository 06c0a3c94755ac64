package subprocess

import (
	"context"
	stderrors "errors"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wagiedev/sidecar-go/internal/config"
	"github.com/wagiedev/sidecar-go/internal/errors"
	"github.com/wagiedev/sidecar-go/internal/fakechild"
	"github.com/wagiedev/sidecar-go/internal/wire"
)

func TestMain(m *testing.M) {
	fakechild.Main()
	os.Exit(m.Run())
}

func newSupervisor(t *testing.T, scenario string, mutate ...func(*config.Options)) *Supervisor {
	t.Helper()

	opts := fakechild.Options(scenario)
	opts.TerminateTimeout = time.Second

	for _, fn := range mutate {
		fn(opts)
	}

	s := NewSupervisor(slog.Default(), opts.WithDefaults())

	t.Cleanup(func() { _ = s.Close() })

	return s
}

// collect drains both channels until they close or the deadline passes.
func collect(t *testing.T, msgs <-chan wire.Message, errs <-chan error) ([]wire.Message, []error) {
	t.Helper()

	var (
		gotMsgs []wire.Message
		gotErrs []error
	)

	timeout := time.After(10 * time.Second)

	for msgs != nil || errs != nil {
		select {
		case msg, ok := <-msgs:
			if !ok {
				msgs = nil

				continue
			}

			gotMsgs = append(gotMsgs, msg)
		case err, ok := <-errs:
			if !ok {
				errs = nil

				continue
			}

			gotErrs = append(gotErrs, err)
		case <-timeout:
			t.Fatal("timed out waiting for reader to finish")
		}
	}

	return gotMsgs, gotErrs
}

func TestSupervisor_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newSupervisor(t, fakechild.Maps)

	require.NoError(t, s.Start(ctx))
	require.True(t, s.IsReady())
	require.NotZero(t, s.Pid())

	msgs, errs := s.ReadMessages(ctx)

	require.NoError(t, s.SendMessage(ctx, wire.New(wire.TypeConnect, map[string]any{
		wire.FieldProtocol: "google-maps-mcp",
		wire.FieldVersion:  "1.0",
	})))
	require.NoError(t, s.SendMessage(ctx, wire.New("location_request", map[string]any{
		wire.FieldQuery: "Tokyo Tower",
	})))
	require.NoError(t, s.SendMessage(ctx, wire.New(wire.TypeDisconnect, map[string]any{
		wire.FieldReason: "normal_closure",
	})))

	got, gotErrs := collect(t, msgs, errs)
	require.Empty(t, gotErrs)
	require.Len(t, got, 2)
	require.Equal(t, wire.TypeConnected, got[0].Type())
	require.Equal(t, "location_response", got[1].Type())
	require.Equal(t, map[string]any{"lat": 35.6586, "lng": 139.7454}, got[1][wire.FieldLocation])

	select {
	case <-s.Exited():
	case <-time.After(5 * time.Second):
		t.Fatal("child did not exit after disconnect")
	}

	require.Equal(t, config.ExitStatus{Exited: true, Code: 0}, s.ExitStatus())
	require.Eventually(t, func() bool {
		return strings.Contains(s.Stderr(), "disconnect: normal_closure")
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSupervisor_SpawnFailure(t *testing.T) {
	s := newSupervisor(t, fakechild.Maps, func(o *config.Options) {
		o.Command = "/nonexistent/sidecar/server"
	})

	err := s.Start(context.Background())

	_, ok := stderrors.AsType[*errors.SpawnError](err)
	require.True(t, ok)
	require.False(t, s.IsReady())
	require.ErrorIs(t, s.SendMessage(context.Background(), wire.New("x", nil)), errors.ErrTransportNotConnected)
	require.NoError(t, s.Close())
}

func TestSupervisor_ReadBeforeStart(t *testing.T) {
	s := newSupervisor(t, fakechild.Maps)

	msgs, errs := s.ReadMessages(context.Background())

	got, gotErrs := collect(t, msgs, errs)
	require.Empty(t, got)
	require.Len(t, gotErrs, 1)
	require.ErrorIs(t, gotErrs[0], errors.ErrTransportNotConnected)
}

func TestSupervisor_StartAfterTerminateIsRefused(t *testing.T) {
	s := newSupervisor(t, fakechild.Maps)

	require.NoError(t, s.Terminate())

	err := s.Start(context.Background())
	require.ErrorIs(t, err, errors.ErrTransportNotConnected)
	require.False(t, s.IsReady())
}

func TestSupervisor_MalformedLineIsNonFatal(t *testing.T) {
	ctx := context.Background()
	s := newSupervisor(t, fakechild.Malformed)

	require.NoError(t, s.Start(ctx))

	msgs, errs := s.ReadMessages(ctx)

	require.NoError(t, s.SendMessage(ctx, wire.New(wire.TypeConnect, nil)))
	require.NoError(t, s.SendMessage(ctx, wire.New("echo_request", map[string]any{"n": 1})))
	require.NoError(t, s.EndInput())

	got, gotErrs := collect(t, msgs, errs)
	require.Len(t, got, 2)
	require.Equal(t, "echo_response", got[1].Type())
	require.Len(t, gotErrs, 1)

	decodeErr, ok := stderrors.AsType[*errors.TransportDecodeError](gotErrs[0])
	require.True(t, ok)
	require.Equal(t, "this is not json", decodeErr.RawData)
}

func TestSupervisor_ChildExitCapturesStatusAndStderr(t *testing.T) {
	ctx := context.Background()

	var (
		mu    sync.Mutex
		lines []string
	)

	s := newSupervisor(t, fakechild.ExitImmediately, func(o *config.Options) {
		o.Stderr = func(line string) {
			mu.Lock()
			defer mu.Unlock()

			lines = append(lines, line)
		}
	})

	require.NoError(t, s.Start(ctx))

	msgs, errs := s.ReadMessages(ctx)
	got, gotErrs := collect(t, msgs, errs)
	require.Empty(t, got)
	require.Empty(t, gotErrs)

	<-s.Exited()
	require.Equal(t, config.ExitStatus{Exited: true, Code: 2}, s.ExitStatus())
	require.False(t, s.IsReady())
	require.Eventually(t, func() bool {
		return strings.Contains(s.Stderr(), "GOOGLE_MAPS_API_KEY is not set")
	}, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(lines) == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSupervisor_WriteAfterExit(t *testing.T) {
	ctx := context.Background()
	s := newSupervisor(t, fakechild.ExitImmediately)

	require.NoError(t, s.Start(ctx))
	<-s.Exited()

	// The pipe may accept a first write into its buffer; keep writing until
	// the broken pipe surfaces.
	var err error
	for range 100 {
		err = s.SendMessage(ctx, wire.New("echo_request", map[string]any{"pad": strings.Repeat("x", 4096)}))
		if err != nil {
			break
		}
	}

	require.Error(t, err)
}

func TestSupervisor_TerminateGraceful(t *testing.T) {
	ctx := context.Background()
	s := newSupervisor(t, fakechild.Silent)

	require.NoError(t, s.Start(ctx))

	start := time.Now()
	require.NoError(t, s.Terminate())
	require.Less(t, time.Since(start), time.Second)
	require.True(t, s.ExitStatus().Exited)
	require.False(t, s.IsReady())

	// Idempotent.
	require.NoError(t, s.Close())
	require.ErrorIs(t, s.SendMessage(ctx, wire.New("x", nil)), errors.ErrStdinClosed)
}

func TestSupervisor_TerminateEscalatesToKill(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("signals are not delivered on windows")
	}

	ctx := context.Background()
	s := newSupervisor(t, fakechild.Stubborn, func(o *config.Options) {
		o.TerminateTimeout = 400 * time.Millisecond
	})

	require.NoError(t, s.Start(ctx))
	require.Eventually(t, func() bool {
		return strings.Contains(s.Stderr(), "ignoring SIGTERM")
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Terminate())

	status := s.ExitStatus()
	require.True(t, status.Exited)
	require.Equal(t, -1, status.Code)
}

func TestSupervisor_SendRespectsContext(t *testing.T) {
	s := newSupervisor(t, fakechild.Stubborn)

	require.NoError(t, s.Start(context.Background()))

	// The stubborn child never reads, so the pipe eventually fills.
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var err error
	for err == nil {
		err = s.SendMessage(ctx, wire.New("echo_request", map[string]any{"pad": strings.Repeat("x", 64*1024)}))
	}

	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.ErrorIs(t, s.SendMessage(context.Background(), wire.New("x", nil)), errors.ErrStdinClosed)
}

func TestSupervisor_EnvironmentOverlay(t *testing.T) {
	t.Setenv("SIDECAR_TEST_KEY", "from-parent")

	s := newSupervisor(t, fakechild.Maps, func(o *config.Options) {
		o.CredentialVar = "SIDECAR_TEST_KEY"
	})

	require.NoError(t, s.Start(context.Background()))

	env := strings.Join(s.cmd.Env, "\n")
	require.Contains(t, env, "SIDECAR_TEST_KEY=from-parent")
	require.Contains(t, env, fakechild.EnvVar+"="+fakechild.Maps)
}
