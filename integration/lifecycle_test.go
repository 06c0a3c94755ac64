//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	sidecar "github.com/wagiedev/sidecar-go"
)

// TestLookupLocation_RealChild geocodes a landmark through a real child.
func TestLookupLocation_RealChild(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	client := sidecar.NewClient()

	err := client.Connect(ctx, childOptions(t)...)
	if err != nil {
		skipIfNotInstalled(t, err)
		t.Fatalf("Connect failed: %v", err)
	}

	defer func() { require.NoError(t, client.Close()) }()

	require.Equal(t, sidecar.StateConnected, client.State())

	loc, err := sidecar.LookupLocation(ctx, client, "Tokyo Tower")
	require.NoError(t, err)
	require.InDelta(t, 35.66, loc.Lat, 0.05)
	require.InDelta(t, 139.75, loc.Lng, 0.05)
}

// TestClose_RealChild checks that Close returns promptly and leaves the client
// unusable.
func TestClose_RealChild(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	client := sidecar.NewClient()

	err := client.Connect(ctx, childOptions(t)...)
	if err != nil {
		skipIfNotInstalled(t, err)
		t.Fatalf("Connect failed: %v", err)
	}

	start := time.Now()

	require.NoError(t, client.Close())
	require.Less(t, time.Since(start), sidecar.DefaultTerminateTimeout+5*time.Second)
	require.Equal(t, sidecar.StateClosed, client.State())

	_, err = client.Request(ctx, sidecar.KindLocation, map[string]any{"query": "Tokyo Tower"})
	require.Error(t, err)
}
