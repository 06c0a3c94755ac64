package protocol

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wagiedev/sidecar-go/internal/errors"
)

func TestLookupLocation(t *testing.T) {
	s := connectedSession(t, newMockTransport(mapsPeer))

	loc, err := LookupLocation(context.Background(), s, "  Tokyo Tower ")
	require.NoError(t, err)
	require.Equal(t, &Location{Lat: 35.6586, Lng: 139.7454}, loc)
	require.Equal(t, "35.6586,139.7454", loc.String())
}

func TestLookupLocation_NoResults(t *testing.T) {
	s := connectedSession(t, newMockTransport(mapsPeer))

	_, err := LookupLocation(context.Background(), s, "Atlantis")

	reqErr, ok := stderrors.AsType[*errors.RequestError](err)
	require.True(t, ok)
	require.Equal(t, KindLocation, reqErr.Kind)
}

func TestLookupLocation_EmptyQuery(t *testing.T) {
	transport := newMockTransport(mapsPeer)
	s := connectedSession(t, transport)

	_, err := LookupLocation(context.Background(), s, " ")
	require.ErrorContains(t, err, "query is required")

	// Only the handshake went out.
	require.Len(t, transport.sentMessages(), 1)
}
