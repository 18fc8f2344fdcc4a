// Package database provides SQLite storage for the fare watcher.
package database

import (
	"errors"
	"time"

	"farewatch/internal/model"
)

// ErrNotFound is returned when the requested route does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the persistence operations shared by the refresh pipeline
// and the presentation layer. The SQLite implementation is the only one in
// production; tests substitute it freely.
type Store interface {
	Close() error

	// Route catalog operations
	ListRoutes() ([]model.Route, error)
	EnabledRoutes() ([]model.Route, error)
	GetRoute(id string) (*model.Route, error)
	CreateRoute(r *model.Route) error
	UpdateRoute(r *model.Route) error
	SetRouteEnabled(id string, enabled bool) error
	// DeleteRoute removes a route and, via FK cascade, its entire fare
	// history.
	DeleteRoute(id string) error
	// SeedDefaultRoutes inserts the given routes only when the catalog is
	// empty.
	SeedDefaultRoutes(routes []model.Route) error

	// Fare history operations
	// AddFare appends an observation and trims the route's history to
	// model.MaxHistoryEntries, evicting the oldest first.
	AddFare(f *model.Fare) error
	// History returns a route's fares ordered newest first.
	History(routeID string) ([]model.Fare, error)
	// LatestFare returns the fare with the highest fetch timestamp, or nil
	// when the route has no observations.
	LatestFare(routeID string) (*model.Fare, error)
	// PreviousFare returns the fare with the second-highest fetch
	// timestamp, or nil when fewer than two observations exist.
	PreviousFare(routeID string) (*model.Fare, error)

	// Settings operations
	GetSetting(key string) (string, error)
	SetSetting(key, value string) error
	LastRefreshedAt() (time.Time, error)
	SetLastRefreshedAt(t time.Time) error
}

// Settings key constants.
const (
	SettingLastRefreshedAt = "last_refreshed_at"
	SettingProvider        = "provider"
)
