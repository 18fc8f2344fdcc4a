// Package provider fetches the cheapest qualifying fare for a route from an
// external flight-search backend.
package provider

import (
	"context"
	"fmt"
	"time"

	"farewatch/internal/model"
)

// Provider is the single contract both fare backends implement.
type Provider interface {
	// Name returns the backend's identifier.
	Name() string

	// FetchFare searches the round trip described by the route and returns
	// the cheapest itinerary that clears the denylist, falling back to the
	// cheapest denylisted one (flagged) when nothing clears it.
	FetchFare(ctx context.Context, route model.Route) (model.Fare, error)
}

// validateRoute rejects malformed requests before any network call.
func validateRoute(route model.Route) error {
	if err := route.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	return nil
}

const defaultTimeout = 30 * time.Second
