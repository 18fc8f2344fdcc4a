package catalog_test

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farewatch/internal/catalog"
	"farewatch/internal/database"
	"farewatch/internal/model"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func addRoute(t *testing.T, db *database.DB, origin, dest, depart, ret string) model.Route {
	t.Helper()
	now := time.Now().UTC()
	route := model.Route{
		ID:          uuid.NewString(),
		Origin:      origin,
		Destination: dest,
		DepartDate:  depart,
		ReturnDate:  ret,
		Enabled:     true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, db.CreateRoute(&route))
	return route
}

func TestExportImport_NewCatalog(t *testing.T) {
	src := openTestDB(t)
	addRoute(t, src, "BUD", "BCN", "2026-10-01", "2026-10-08")
	addRoute(t, src, "BUD", "LIS", "2026-11-01", "2026-11-09")

	data, err := catalog.Export(src)
	require.NoError(t, err)

	dst := openTestDB(t)
	added, err := catalog.Import(dst, bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	routes, err := dst.ListRoutes()
	require.NoError(t, err)
	assert.Len(t, routes, 2)
}

func TestImport_SkipsExistingRoutes(t *testing.T) {
	src := openTestDB(t)
	addRoute(t, src, "BUD", "BCN", "2026-10-01", "2026-10-08")
	addRoute(t, src, "BUD", "LIS", "2026-11-01", "2026-11-09")
	data, err := catalog.Export(src)
	require.NoError(t, err)

	dst := openTestDB(t)
	addRoute(t, dst, "BUD", "BCN", "2026-10-01", "2026-10-08")

	added, err := catalog.Import(dst, bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	routes, err := dst.ListRoutes()
	require.NoError(t, err)
	assert.Len(t, routes, 2)
}

func TestImport_SameRouteDifferentDatesIsNew(t *testing.T) {
	dst := openTestDB(t)
	addRoute(t, dst, "BUD", "BCN", "2026-10-01", "2026-10-08")

	doc := catalog.Document{
		Version: 1,
		Routes: []model.Route{{
			Origin:      "BUD",
			Destination: "BCN",
			DepartDate:  "2026-12-01",
			ReturnDate:  "2026-12-08",
			Enabled:     true,
		}},
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)

	added, err := catalog.Import(dst, bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 1, added)
}

func TestImport_AssignsFreshIDs(t *testing.T) {
	src := openTestDB(t)
	original := addRoute(t, src, "BUD", "KEF", "2026-09-01", "2026-09-10")
	data, err := catalog.Export(src)
	require.NoError(t, err)

	dst := openTestDB(t)
	_, err = catalog.Import(dst, bytes.NewReader(data))
	require.NoError(t, err)

	routes, err := dst.ListRoutes()
	require.NoError(t, err)
	require.Len(t, routes, 1)
	assert.NotEqual(t, original.ID, routes[0].ID)
}

func TestImport_InvalidRouteRejected(t *testing.T) {
	doc := catalog.Document{
		Version: 1,
		Routes: []model.Route{{
			Origin:      "BUD",
			Destination: "BCN",
			DepartDate:  "2026-10-08",
			ReturnDate:  "2026-10-01", // returns before departing
		}},
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)

	dst := openTestDB(t)
	_, err = catalog.Import(dst, bytes.NewReader(data))
	assert.Error(t, err)
}

func TestImport_MalformedDocument(t *testing.T) {
	dst := openTestDB(t)
	_, err := catalog.Import(dst, strings.NewReader("{not json"))
	assert.Error(t, err)
}
