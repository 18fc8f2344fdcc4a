// Package server provides the HTTP API read by the widget and settings UI.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"farewatch/internal/catalog"
	"farewatch/internal/database"
	"farewatch/internal/model"
	"farewatch/internal/pricing"
	"farewatch/internal/provider"
	"farewatch/internal/refresh"
)

// Refresher is the orchestrator capability the manual-trigger endpoint
// needs.
type Refresher interface {
	RefreshAll(ctx context.Context) error
	Running() bool
}

// Server is the HTTP API server. All endpoints except the refresh trigger
// are read-only; the widget process tolerates eventually-consistent data.
type Server struct {
	store        database.Store
	refresher    Refresher
	providerName string
	log          *slog.Logger
	router       chi.Router
}

// New creates the API server.
func New(store database.Store, refresher Refresher, providerName string, log *slog.Logger) *Server {
	s := &Server{
		store:        store,
		refresher:    refresher,
		providerName: providerName,
		log:          log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(newSlogLogger(s.log))
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/routes", s.handleListRoutes)
		r.Post("/routes", s.handleCreateRoute)
		r.Route("/routes/{routeID}", func(r chi.Router) {
			r.Put("/", s.handleUpdateRoute)
			r.Delete("/", s.handleDeleteRoute)
			r.Post("/enabled", s.handleSetEnabled)
			r.Get("/history", s.handleHistory)
			r.Get("/change", s.handleChange)
			r.Get("/link", s.handleLink)
		})
		r.Get("/status", s.handleStatus)
		r.Post("/refresh", s.handleRefresh)
		r.Get("/export", s.handleExport)
		r.Post("/import", s.handleImport)
	})

	s.router = r
}

// ServeHTTP makes the server usable as an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start blocks serving the API on addr.
func (s *Server) Start(addr string) error {
	s.log.Info("api server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

// --- Route Handlers ---

func (s *Server) handleListRoutes(w http.ResponseWriter, r *http.Request) {
	routes, err := s.store.ListRoutes()
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if routes == nil {
		routes = []model.Route{}
	}
	s.writeJSON(w, http.StatusOK, routes)
}

type routeRequest struct {
	Origin          string `json:"origin"`
	Destination     string `json:"destination"`
	DestinationName string `json:"destination_name"`
	DepartDate      string `json:"depart_date"`
	ReturnDate      string `json:"return_date"`
	Enabled         *bool  `json:"enabled"`
}

func (s *Server) handleCreateRoute(w http.ResponseWriter, r *http.Request) {
	var req routeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	now := time.Now().UTC()
	route := model.Route{
		ID:              uuid.NewString(),
		Origin:          req.Origin,
		Destination:     req.Destination,
		DestinationName: req.DestinationName,
		DepartDate:      req.DepartDate,
		ReturnDate:      req.ReturnDate,
		Enabled:         req.Enabled == nil || *req.Enabled,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := route.Validate(); err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := s.store.CreateRoute(&route); err != nil {
		s.internalError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, route)
}

func (s *Server) handleUpdateRoute(w http.ResponseWriter, r *http.Request) {
	route, ok := s.loadRoute(w, r)
	if !ok {
		return
	}
	var req routeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	route.Origin = req.Origin
	route.Destination = req.Destination
	route.DestinationName = req.DestinationName
	route.DepartDate = req.DepartDate
	route.ReturnDate = req.ReturnDate
	if req.Enabled != nil {
		route.Enabled = *req.Enabled
	}
	route.UpdatedAt = time.Now().UTC()
	if err := route.Validate(); err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := s.store.UpdateRoute(route); err != nil {
		s.internalError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, route)
}

func (s *Server) handleDeleteRoute(w http.ResponseWriter, r *http.Request) {
	err := s.store.DeleteRoute(chi.URLParam(r, "routeID"))
	if errors.Is(err, database.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "route not found")
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetEnabled(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	err := s.store.SetRouteEnabled(chi.URLParam(r, "routeID"), req.Enabled)
	if errors.Is(err, database.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "route not found")
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- History / Change Handlers ---

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	route, ok := s.loadRoute(w, r)
	if !ok {
		return
	}
	fares, err := s.store.History(route.ID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if fares == nil {
		fares = []model.Fare{}
	}
	s.writeJSON(w, http.StatusOK, fares)
}

type changeResponse struct {
	RouteID  string          `json:"route_id"`
	Current  *model.Fare     `json:"current,omitempty"`
	Previous *model.Fare     `json:"previous,omitempty"`
	Change   *pricing.Change `json:"change,omitempty"`
	Display  string          `json:"display,omitempty"`
	// NoData marks a route with no successful fetch ever; the widget shows
	// an explicit empty state instead of a price.
	NoData bool `json:"no_data,omitempty"`
}

func (s *Server) handleChange(w http.ResponseWriter, r *http.Request) {
	route, ok := s.loadRoute(w, r)
	if !ok {
		return
	}
	latest, err := s.store.LatestFare(route.ID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	resp := changeResponse{RouteID: route.ID}
	if latest == nil {
		resp.NoData = true
		s.writeJSON(w, http.StatusOK, resp)
		return
	}
	resp.Current = latest

	previous, err := s.store.PreviousFare(route.ID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if previous != nil {
		resp.Previous = previous
		change := pricing.Compute(previous.Price, latest.Price)
		resp.Change = &change
		resp.Display = pricing.FormatPercent(change.Percent)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	route, ok := s.loadRoute(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"url": provider.SearchURL(*route)})
}

// --- Status / Refresh Handlers ---

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	last, err := s.store.LastRefreshedAt()
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	resp := map[string]any{
		"provider":   s.providerName,
		"refreshing": s.refresher.Running(),
	}
	if !last.IsZero() {
		resp["last_refreshed_at"] = last
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.refresher.Running() {
		s.writeError(w, http.StatusConflict, "refresh already in progress")
		return
	}
	go func() {
		if err := s.refresher.RefreshAll(context.Background()); err != nil && !errors.Is(err, refresh.ErrAlreadyRunning) {
			s.log.Error("manual refresh failed", "error", err)
		}
	}()
	w.WriteHeader(http.StatusAccepted)
}

// --- Import / Export Handlers ---

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	data, err := catalog.Export(s.store)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="farewatch-routes.json"`)
	w.Write(data)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	added, err := catalog.Import(s.store, r.Body)
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"added": added})
}

// --- Helpers ---

func (s *Server) loadRoute(w http.ResponseWriter, r *http.Request) (*model.Route, bool) {
	route, err := s.store.GetRoute(chi.URLParam(r, "routeID"))
	if errors.Is(err, database.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "route not found")
		return nil, false
	}
	if err != nil {
		s.internalError(w, r, err)
		return nil, false
	}
	return route, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.log.Error("handler error", "path", r.URL.Path, "error", err)
	s.writeError(w, http.StatusInternalServerError, "internal error")
}
