package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"farewatch/internal/model"
	_ "modernc.org/sqlite"
)

// DB wraps the SQLite connection. The refresh daemon is the single writer;
// a widget process may open the same file read-only at any time, which is
// why WAL mode is enabled.
type DB struct {
	conn *sql.DB
}

// New opens or creates an SQLite database at the given path.
func New(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// WAL mode lets the widget read while the daemon writes.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}
	// Needed for ON DELETE CASCADE on the fares table.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS routes (
		id TEXT PRIMARY KEY,
		origin TEXT NOT NULL,
		destination TEXT NOT NULL,
		destination_name TEXT NOT NULL DEFAULT '',
		depart_date TEXT NOT NULL,
		return_date TEXT NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS fares (
		id TEXT PRIMARY KEY,
		route_id TEXT NOT NULL REFERENCES routes(id) ON DELETE CASCADE,
		price REAL NOT NULL,
		currency TEXT NOT NULL,
		airline TEXT NOT NULL DEFAULT '',
		duration_minutes INTEGER NOT NULL DEFAULT 0,
		stops INTEGER NOT NULL DEFAULT 0,
		fallback INTEGER NOT NULL DEFAULT 0,
		fetched_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_fares_route_fetched ON fares(route_id, fetched_at);
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// --- Route Methods ---

const routeColumns = "id, origin, destination, destination_name, depart_date, return_date, enabled, created_at, updated_at"

// ListRoutes returns every route ordered by creation time.
func (db *DB) ListRoutes() ([]model.Route, error) {
	rows, err := db.conn.Query("SELECT " + routeColumns + " FROM routes ORDER BY created_at, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRoutes(rows)
}

// EnabledRoutes returns only routes included in the next refresh.
func (db *DB) EnabledRoutes() ([]model.Route, error) {
	rows, err := db.conn.Query("SELECT " + routeColumns + " FROM routes WHERE enabled = 1 ORDER BY created_at, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRoutes(rows)
}

// GetRoute returns a single route by id.
func (db *DB) GetRoute(id string) (*model.Route, error) {
	row := db.conn.QueryRow("SELECT "+routeColumns+" FROM routes WHERE id = ?", id)
	r, err := scanRoute(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// CreateRoute inserts a new route.
func (db *DB) CreateRoute(r *model.Route) error {
	_, err := db.conn.Exec(`
		INSERT INTO routes (id, origin, destination, destination_name, depart_date, return_date, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Origin, r.Destination, r.DestinationName, r.DepartDate, r.ReturnDate, boolToInt(r.Enabled), r.CreatedAt, r.UpdatedAt)
	return err
}

// UpdateRoute rewrites a route's editable fields.
func (db *DB) UpdateRoute(r *model.Route) error {
	res, err := db.conn.Exec(`
		UPDATE routes SET origin = ?, destination = ?, destination_name = ?, depart_date = ?, return_date = ?, enabled = ?, updated_at = ?
		WHERE id = ?`,
		r.Origin, r.Destination, r.DestinationName, r.DepartDate, r.ReturnDate, boolToInt(r.Enabled), r.UpdatedAt, r.ID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

// SetRouteEnabled flips the enabled flag without touching anything else.
func (db *DB) SetRouteEnabled(id string, enabled bool) error {
	res, err := db.conn.Exec("UPDATE routes SET enabled = ?, updated_at = ? WHERE id = ?",
		boolToInt(enabled), time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

// DeleteRoute removes a route; the fares FK cascade deletes its history.
func (db *DB) DeleteRoute(id string) error {
	res, err := db.conn.Exec("DELETE FROM routes WHERE id = ?", id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

// SeedDefaultRoutes inserts the given routes only when the catalog is empty.
func (db *DB) SeedDefaultRoutes(routes []model.Route) error {
	var count int
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM routes").Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	for i := range routes {
		if err := db.CreateRoute(&routes[i]); err != nil {
			return fmt.Errorf("seed route %s-%s: %w", routes[i].Origin, routes[i].Destination, err)
		}
	}
	return nil
}

func scanRoutes(rows *sql.Rows) ([]model.Route, error) {
	var routes []model.Route
	for rows.Next() {
		var r model.Route
		var enabled int
		if err := rows.Scan(&r.ID, &r.Origin, &r.Destination, &r.DestinationName,
			&r.DepartDate, &r.ReturnDate, &enabled, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.Enabled = enabled != 0
		routes = append(routes, r)
	}
	return routes, rows.Err()
}

func scanRoute(row *sql.Row) (*model.Route, error) {
	var r model.Route
	var enabled int
	if err := row.Scan(&r.ID, &r.Origin, &r.Destination, &r.DestinationName,
		&r.DepartDate, &r.ReturnDate, &enabled, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Enabled = enabled != 0
	return &r, nil
}

// --- Fare Methods ---

const fareColumns = "id, route_id, price, currency, airline, duration_minutes, stops, fallback, fetched_at"

// AddFare appends an observation and trims the route's history to the
// bounded window, evicting the oldest entries first.
func (db *DB) AddFare(f *model.Fare) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`
		INSERT INTO fares (id, route_id, price, currency, airline, duration_minutes, stops, fallback, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.RouteID, f.Price, f.Currency, f.Airline, f.DurationMinutes, f.Stops, boolToInt(f.Fallback), f.FetchedAt); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.Exec(`
		DELETE FROM fares WHERE route_id = ? AND id NOT IN (
			SELECT id FROM fares WHERE route_id = ?
			ORDER BY fetched_at DESC, id DESC LIMIT ?
		)`, f.RouteID, f.RouteID, model.MaxHistoryEntries); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// History returns a route's fares ordered newest first.
func (db *DB) History(routeID string) ([]model.Fare, error) {
	rows, err := db.conn.Query("SELECT "+fareColumns+" FROM fares WHERE route_id = ? ORDER BY fetched_at DESC, id DESC", routeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFares(rows)
}

// LatestFare returns the most recent observation for a route, or nil when
// the route has none.
func (db *DB) LatestFare(routeID string) (*model.Fare, error) {
	return db.fareAtOffset(routeID, 0)
}

// PreviousFare returns the second most recent observation, or nil when fewer
// than two exist.
func (db *DB) PreviousFare(routeID string) (*model.Fare, error) {
	return db.fareAtOffset(routeID, 1)
}

func (db *DB) fareAtOffset(routeID string, offset int) (*model.Fare, error) {
	row := db.conn.QueryRow("SELECT "+fareColumns+" FROM fares WHERE route_id = ? ORDER BY fetched_at DESC, id DESC LIMIT 1 OFFSET ?",
		routeID, offset)
	var f model.Fare
	var fallback int
	err := row.Scan(&f.ID, &f.RouteID, &f.Price, &f.Currency, &f.Airline,
		&f.DurationMinutes, &f.Stops, &fallback, &f.FetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	f.Fallback = fallback != 0
	return &f, nil
}

func scanFares(rows *sql.Rows) ([]model.Fare, error) {
	var fares []model.Fare
	for rows.Next() {
		var f model.Fare
		var fallback int
		if err := rows.Scan(&f.ID, &f.RouteID, &f.Price, &f.Currency, &f.Airline,
			&f.DurationMinutes, &f.Stops, &fallback, &f.FetchedAt); err != nil {
			return nil, err
		}
		f.Fallback = fallback != 0
		fares = append(fares, f)
	}
	return fares, rows.Err()
}

// --- Settings Methods ---

// GetSetting retrieves a setting value. Missing keys return an empty string.
func (db *DB) GetSetting(key string) (string, error) {
	var val string
	err := db.conn.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return val, err
}

// SetSetting saves a setting.
func (db *DB) SetSetting(key, value string) error {
	_, err := db.conn.Exec("INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = ?", key, value, value)
	return err
}

// LastRefreshedAt returns the timestamp of the last completed refresh, or
// the zero time when no refresh has run yet.
func (db *DB) LastRefreshedAt() (time.Time, error) {
	val, err := db.GetSetting(SettingLastRefreshedAt)
	if err != nil || val == "" {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse last refresh timestamp: %w", err)
	}
	return t, nil
}

// SetLastRefreshedAt records the completion of a refresh cycle.
func (db *DB) SetLastRefreshedAt(t time.Time) error {
	return db.SetSetting(SettingLastRefreshedAt, t.UTC().Format(time.RFC3339))
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func affectedOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Compile-time check that DB satisfies Store.
var _ Store = (*DB)(nil)
