// Package catalog handles importing and exporting the route catalog.
package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"farewatch/internal/database"
	"farewatch/internal/model"
)

// Document is the interchange format for a route catalog.
type Document struct {
	Version  int           `json:"version"`
	Exported time.Time     `json:"exported_at"`
	Routes   []model.Route `json:"routes"`
}

// Export serializes every route in the store.
func Export(store database.Store) ([]byte, error) {
	routes, err := store.ListRoutes()
	if err != nil {
		return nil, err
	}
	doc := Document{
		Version:  1,
		Exported: time.Now().UTC(),
		Routes:   routes,
	}
	return json.MarshalIndent(doc, "", "  ")
}

// Import reads a catalog document and creates every route that does not
// already exist. A route counts as existing when another route shares its
// origin, destination, and travel dates. Returns the number of routes added.
func Import(store database.Store, r io.Reader) (int, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return 0, fmt.Errorf("decode catalog: %w", err)
	}

	existing, err := store.ListRoutes()
	if err != nil {
		return 0, err
	}
	seen := make(map[string]struct{}, len(existing))
	for _, route := range existing {
		seen[routeKey(route)] = struct{}{}
	}

	added := 0
	now := time.Now().UTC()
	for _, route := range doc.Routes {
		if _, ok := seen[routeKey(route)]; ok {
			continue
		}
		route.ID = uuid.NewString()
		route.CreatedAt = now
		route.UpdatedAt = now
		if err := route.Validate(); err != nil {
			return added, fmt.Errorf("import route %s-%s: %w", route.Origin, route.Destination, err)
		}
		if err := store.CreateRoute(&route); err != nil {
			return added, err
		}
		seen[routeKey(route)] = struct{}{}
		added++
	}
	return added, nil
}

func routeKey(r model.Route) string {
	return r.Origin + "|" + r.Destination + "|" + r.DepartDate + "|" + r.ReturnDate
}
