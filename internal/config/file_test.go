package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadFile_TOML(t *testing.T) {
	path := writeFile(t, "sidecar.toml", `
command = "node"
args = ["server.js", "--stdio"]
credential_var = "GOOGLE_MAPS_API_KEY"
correlation = "id"
request_timeout = "2s"

[env]
NODE_ENV = "production"
`)

	f, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, "node", f.Command)
	require.Equal(t, []string{"server.js", "--stdio"}, f.Args)
	require.Equal(t, "GOOGLE_MAPS_API_KEY", f.CredentialVar)
	require.Equal(t, map[string]string{"NODE_ENV": "production"}, f.Env)

	var opts Options
	require.NoError(t, f.Apply(&opts))
	require.Equal(t, CorrelationID, opts.Correlation)
	require.Equal(t, 2*time.Second, opts.RequestTimeout)
}

func TestLoadFile_YAML(t *testing.T) {
	path := writeFile(t, "sidecar.yaml", `
command: python3
args: [maps_server.py]
protocol: google-maps-mcp
protocol_version: "2.0"
terminate_timeout: 750ms
`)

	f, err := LoadFile(path)
	require.NoError(t, err)

	var opts Options
	require.NoError(t, f.Apply(&opts))
	require.Equal(t, "python3", opts.Command)
	require.Equal(t, []string{"maps_server.py"}, opts.Args)
	require.Equal(t, "2.0", opts.ProtocolVersion)
	require.Equal(t, 750*time.Millisecond, opts.TerminateTimeout)
}

func TestLoadFile_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{name: "unknown extension", file: "x.json", content: "{}", wantErr: "unsupported config format"},
		{name: "bad toml", file: "x.toml", content: "command = ", wantErr: "parse"},
		{name: "bad correlation", file: "x.toml", content: `correlation = "fifo"`, wantErr: "correlation must be"},
		{name: "bad duration", file: "x.yml", content: "request_timeout: soon", wantErr: "request_timeout"},
		{name: "negative duration", file: "x.yml", content: "handshake_timeout: -1s", wantErr: "must be positive"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadFile(writeFile(t, tc.file, tc.content))
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.toml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("SIDECAR_COMMAND", "npx")
	t.Setenv("SIDECAR_ARGS", "-y;@modelcontextprotocol/server-google-maps")
	t.Setenv("SIDECAR_HANDSHAKE_TIMEOUT", "10s")

	f, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, "npx", f.Command)
	require.Equal(t, []string{"-y", "@modelcontextprotocol/server-google-maps"}, f.Args)

	var opts Options
	require.NoError(t, f.Apply(&opts))
	require.Equal(t, 10*time.Second, opts.HandshakeTimeout)
}

func TestFromEnv_Empty(t *testing.T) {
	for _, name := range []string{
		"SIDECAR_COMMAND", "SIDECAR_ARGS", "SIDECAR_CREDENTIAL_VAR", "SIDECAR_CWD",
		"SIDECAR_PROTOCOL", "SIDECAR_PROTOCOL_VERSION", "SIDECAR_CORRELATION",
		"SIDECAR_HANDSHAKE_TIMEOUT", "SIDECAR_REQUEST_TIMEOUT", "SIDECAR_TERMINATE_TIMEOUT",
	} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}

	f, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, &File{}, f)
}

func TestApply_OverlayKeepsUnsetFields(t *testing.T) {
	opts := Options{
		Command: "node",
		Env:     map[string]string{"KEEP": "1", "OVERRIDE": "old"},
	}

	f := &File{Env: map[string]string{"OVERRIDE": "new"}, Cwd: "/srv"}
	require.NoError(t, f.Apply(&opts))
	require.Equal(t, "node", opts.Command)
	require.Equal(t, "/srv", opts.Cwd)
	require.Equal(t, map[string]string{"KEEP": "1", "OVERRIDE": "new"}, opts.Env)
}
