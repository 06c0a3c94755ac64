package protocol

import (
	"context"
	"fmt"
	"strings"

	"github.com/wagiedev/sidecar-go/internal/wire"
)

// KindLocation is the request kind of a geocoding lookup.
const KindLocation = "location"

// Location is a geocoded point.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// String formats the location as "lat,lng".
func (l Location) String() string {
	return fmt.Sprintf("%g,%g", l.Lat, l.Lng)
}

// Requester issues kind requests. Session satisfies it.
type Requester interface {
	Request(ctx context.Context, kind string, payload map[string]any) (*Response, error)
}

// LookupLocation sends a location request for query and decodes the reply.
func LookupLocation(ctx context.Context, r Requester, query string) (*Location, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("location query is required")
	}

	resp, err := r.Request(ctx, KindLocation, map[string]any{wire.FieldQuery: query})
	if err != nil {
		return nil, err
	}

	var loc Location
	if err := resp.Decode(&loc); err != nil {
		return nil, err
	}

	return &loc, nil
}
