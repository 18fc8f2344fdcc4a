// Package model defines shared data structures.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Thresholds and bounds used across the refresh pipeline.
const (
	// MaxHistoryEntries bounds the per-route fare history. The oldest
	// observation is evicted when a new fare pushes past the limit.
	MaxHistoryEntries = 30

	// SignificantDropPercent is the change (in percent) at or below which a
	// price drop triggers a notification.
	SignificantDropPercent = -5.0

	// UnchangedEpsilon is the absolute percent change below which a price is
	// treated as unchanged.
	UnchangedEpsilon = 0.01

	// DefaultCurrency is the reporting currency requested from providers.
	DefaultCurrency = "HUF"
)

// Route is one monitored origin→destination round trip.
type Route struct {
	ID              string    `json:"id"`
	Origin          string    `json:"origin"`
	Destination     string    `json:"destination"`
	DestinationName string    `json:"destination_name"`
	DepartDate      string    `json:"depart_date"` // yyyy-MM-dd
	ReturnDate      string    `json:"return_date"` // yyyy-MM-dd
	Enabled         bool      `json:"enabled"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Validate checks the route invariants: non-empty airport codes, parseable
// dates, and a return date after the outbound date.
func (r Route) Validate() error {
	if strings.TrimSpace(r.Origin) == "" {
		return fmt.Errorf("route %s: missing origin", r.ID)
	}
	if strings.TrimSpace(r.Destination) == "" {
		return fmt.Errorf("route %s: missing destination", r.ID)
	}
	depart, err := time.Parse(time.DateOnly, r.DepartDate)
	if err != nil {
		return fmt.Errorf("route %s: bad depart date %q: %w", r.ID, r.DepartDate, err)
	}
	ret, err := time.Parse(time.DateOnly, r.ReturnDate)
	if err != nil {
		return fmt.Errorf("route %s: bad return date %q: %w", r.ID, r.ReturnDate, err)
	}
	if !ret.After(depart) {
		return fmt.Errorf("route %s: return date %s is not after depart date %s", r.ID, r.ReturnDate, r.DepartDate)
	}
	return nil
}

// Fare is one priced itinerary observation for a route at a point in time.
// Fares are immutable once stored; they disappear only through history
// trimming or route deletion.
type Fare struct {
	ID              string  `json:"id"`
	RouteID         string  `json:"route_id"`
	Price           float64 `json:"price"`
	Currency        string  `json:"currency"`
	Airline         string  `json:"airline"`
	DurationMinutes int     `json:"duration_minutes"`
	Stops           int     `json:"stops"`
	// Fallback marks a fare selected from denylisted itineraries only
	// because no compliant alternative existed.
	Fallback  bool      `json:"fallback,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Alert describes one significant price drop on a route.
type Alert struct {
	RouteID         string    `json:"route_id"`
	Origin          string    `json:"origin"`
	Destination     string    `json:"destination"`
	DestinationName string    `json:"destination_name"`
	PreviousPrice   float64   `json:"previous_price"`
	CurrentPrice    float64   `json:"current_price"`
	Currency        string    `json:"currency"`
	DropPercent     float64   `json:"drop_percent"` // magnitude, positive
	TriggeredAt     time.Time `json:"triggered_at"`
}

// Title returns the notification headline.
func (a Alert) Title() string {
	name := a.DestinationName
	if name == "" {
		name = a.Destination
	}
	return fmt.Sprintf("Price drop: %s → %s", a.Origin, name)
}

// Body returns the notification body text.
func (a Alert) Body() string {
	return fmt.Sprintf("%.0f %s → %.0f %s (-%.1f%%)",
		a.PreviousPrice, a.Currency, a.CurrentPrice, a.Currency, a.DropPercent)
}

// DefaultRoutes returns the route catalog seeded on first run. Travel dates
// are placed a couple of months out so a fresh install has something
// searchable immediately.
func DefaultRoutes(now time.Time) []Route {
	depart := now.AddDate(0, 2, 0).Format(time.DateOnly)
	ret := now.AddDate(0, 2, 7).Format(time.DateOnly)
	seed := []struct {
		origin, dest, name string
	}{
		{"BUD", "BCN", "Barcelona"},
		{"BUD", "LIS", "Lisbon"},
		{"BUD", "KEF", "Reykjavik"},
	}
	routes := make([]Route, 0, len(seed))
	for _, s := range seed {
		routes = append(routes, Route{
			ID:              uuid.NewString(),
			Origin:          s.origin,
			Destination:     s.dest,
			DestinationName: s.name,
			DepartDate:      depart,
			ReturnDate:      ret,
			Enabled:         true,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
	}
	return routes
}
