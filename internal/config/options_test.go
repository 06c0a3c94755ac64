package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWithDefaults(t *testing.T) {
	var opts *Options

	got := opts.WithDefaults()
	require.NotNil(t, got.Logger)
	require.Equal(t, DefaultProtocol, got.Protocol)
	require.Equal(t, DefaultProtocolVersion, got.ProtocolVersion)
	require.Equal(t, DefaultHandshakeTimeout, got.HandshakeTimeout)
	require.Equal(t, DefaultRequestTimeout, got.RequestTimeout)
	require.Equal(t, DefaultTerminateTimeout, got.TerminateTimeout)
	require.Equal(t, CorrelationOrdered, got.Correlation)
}

func TestWithDefaults_KeepsExplicitValuesAndCopies(t *testing.T) {
	opts := &Options{
		Command:        "node",
		Args:           []string{"server.js"},
		Env:            map[string]string{"A": "1"},
		Protocol:       "custom",
		RequestTimeout: time.Second,
		Correlation:    CorrelationID,
	}

	got := opts.WithDefaults()
	require.Equal(t, "custom", got.Protocol)
	require.Equal(t, time.Second, got.RequestTimeout)
	require.Equal(t, CorrelationID, got.Correlation)

	got.Args[0] = "changed"
	got.Env["A"] = "changed"

	require.Equal(t, "server.js", opts.Args[0])
	require.Equal(t, "1", opts.Env["A"])
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		opts    Options
		wantErr string
	}{
		{name: "command set", opts: Options{Command: "node"}},
		{name: "missing command", opts: Options{}, wantErr: "command is required"},
		{
			name:    "unknown correlation",
			opts:    Options{Command: "node", Correlation: "random"},
			wantErr: "unknown correlation mode",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.opts.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)

				return
			}

			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}
