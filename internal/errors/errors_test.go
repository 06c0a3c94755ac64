package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSpawnError_NotFound(t *testing.T) {
	err := &SpawnError{
		Command:       "node",
		SearchedPaths: []string{"$PATH"},
	}

	require.Equal(t, `spawn "node": not found in [$PATH]`, err.Error())
	require.True(t, err.IsSidecarError())
}

func TestSpawnError_WithCause(t *testing.T) {
	root := errors.New("permission denied")
	err := &SpawnError{Command: "/opt/child", Err: root}

	require.Equal(t, `spawn "/opt/child": permission denied`, err.Error())
	require.ErrorIs(t, err, root)
}

func TestTransportWriteError(t *testing.T) {
	root := errors.New("broken pipe")
	err := &TransportWriteError{Err: root}

	require.Equal(t, "write to child: broken pipe", err.Error())
	require.ErrorIs(t, err, root)
	require.True(t, err.IsSidecarError())
}

func TestTransportDecodeError(t *testing.T) {
	root := errors.New("unexpected token")
	err := &TransportDecodeError{
		RawData: `{"not":"valid",`,
		Err:     root,
	}

	require.Equal(t, "decode line from child: unexpected token", err.Error())
	require.ErrorIs(t, err, root)
	require.True(t, err.IsSidecarError())
}

func TestHandshakeError(t *testing.T) {
	t.Run("unexpected reply", func(t *testing.T) {
		err := &HandshakeError{Reason: "unexpected reply", Got: "error"}

		require.Equal(t, `handshake failed: unexpected reply (got "error")`, err.Error())
		require.NoError(t, err.Unwrap())
	})

	t.Run("end of stream", func(t *testing.T) {
		err := &HandshakeError{Reason: "no reply", Err: ErrEndOfStream}

		require.Equal(t, "handshake failed: no reply: end of stream", err.Error())
		require.ErrorIs(t, err, ErrEndOfStream)
		require.True(t, err.IsSidecarError())
	})
}

func TestRequestError(t *testing.T) {
	err := &RequestError{Kind: "location", Message: "quota exceeded"}
	require.Equal(t, "location request failed: quota exceeded", err.Error())

	bare := &RequestError{Kind: "location"}
	require.Equal(t, "location request failed", bare.Error())
	require.True(t, bare.IsSidecarError())
}

func TestChildExitedError(t *testing.T) {
	err := &ChildExitedError{ExitCode: 3}

	require.Equal(t, "child exited unexpectedly (exit 3)", err.Error())
	require.ErrorIs(t, err, ErrEndOfStream)

	pending := &ChildExitedError{ExitCode: -1}
	require.Equal(t, "child closed its output unexpectedly", pending.Error())
}

func TestProcessError(t *testing.T) {
	root := errors.New("signal: killed")
	err := &ProcessError{ExitCode: -1, Err: root}

	require.Equal(t, "child process failed (exit -1): signal: killed", err.Error())
	require.ErrorIs(t, err, root)

	stderrOnly := &ProcessError{ExitCode: 2, Stderr: "missing API key"}
	require.Equal(t, "child process failed (exit 2): missing API key", stderrOnly.Error())
	require.NoError(t, stderrOnly.Unwrap())
}
