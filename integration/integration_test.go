//go:build integration

// Package integration runs the client against a real child configured with
// SIDECAR_* environment variables, for example:
//
//	SIDECAR_COMMAND=npx SIDECAR_ARGS='-y;@modelcontextprotocol/server-google-maps' \
//	SIDECAR_CREDENTIAL_VAR=GOOGLE_MAPS_API_KEY go test -tags integration ./integration
package integration

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	sidecar "github.com/wagiedev/sidecar-go"
)

// childOptions returns options read from the environment, skipping the test
// when no child is configured.
func childOptions(t *testing.T) []sidecar.Option {
	t.Helper()

	if os.Getenv("SIDECAR_COMMAND") == "" {
		t.Skip("SIDECAR_COMMAND not set")
	}

	file, err := sidecar.ConfigFromEnv()
	require.NoError(t, err)

	return []sidecar.Option{
		sidecar.WithConfig(file),
		sidecar.WithLogger(sidecar.NopLogger()),
	}
}

// skipIfNotInstalled skips the test if the child executable was not found.
func skipIfNotInstalled(t *testing.T, err error) {
	t.Helper()

	if _, ok := errors.AsType[*sidecar.SpawnError](err); ok {
		t.Skipf("child not installed: %v", err)
	}
}
