package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farewatch/internal/model"
)

func testRoute() model.Route {
	return model.Route{
		ID:          "route-1",
		Origin:      "BUD",
		Destination: "BCN",
		DepartDate:  "2026-10-01",
		ReturnDate:  "2026-10-08",
		Enabled:     true,
	}
}

const skyPayload = `{
	"best_flights": [
		{"price": 31000, "total_duration": 150,
		 "flights": [{"airline": "Alpha Air", "duration": 150,
		              "departure_airport": {"id": "BUD"}, "arrival_airport": {"id": "BCN"}}],
		 "layovers": []}
	],
	"other_flights": [
		{"price": 28500, "total_duration": 300,
		 "flights": [{"airline": "Beta Wings", "duration": 120,
		              "departure_airport": {"id": "BUD"}, "arrival_airport": {"id": "FRA"}},
		             {"airline": "Beta Wings", "duration": 110,
		              "departure_airport": {"id": "FRA"}, "arrival_airport": {"id": "BCN"}}],
		 "layovers": [{"id": "FRA", "name": "Frankfurt", "duration": 70}]}
	]
}`

func TestSkyQuery_SelectsCheapestAcrossBuckets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BUD", r.URL.Query().Get("departure_id"))
		assert.Equal(t, "BCN", r.URL.Query().Get("arrival_id"))
		assert.Equal(t, "2026-10-01", r.URL.Query().Get("outbound_date"))
		assert.Equal(t, "2026-10-08", r.URL.Query().Get("return_date"))
		assert.Equal(t, "k", r.URL.Query().Get("api_key"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(skyPayload))
	}))
	defer srv.Close()

	p := NewSkyQuery("k", NewDenylist(nil))
	p.BaseURL = srv.URL

	fare, err := p.FetchFare(context.Background(), testRoute())

	require.NoError(t, err)
	assert.Equal(t, 28500.0, fare.Price)
	assert.Equal(t, "Beta Wings", fare.Airline)
	assert.Equal(t, 1, fare.Stops)
	assert.Equal(t, 300, fare.DurationMinutes)
	assert.Equal(t, "route-1", fare.RouteID)
	assert.False(t, fare.Fallback)
	assert.False(t, fare.FetchedAt.IsZero())
}

func TestSkyQuery_DenylistedLayoverFallsBackToCleanItinerary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(skyPayload))
	}))
	defer srv.Close()

	p := NewSkyQuery("k", NewDenylist([]string{"FRA"}))
	p.BaseURL = srv.URL

	fare, err := p.FetchFare(context.Background(), testRoute())

	require.NoError(t, err)
	assert.Equal(t, 31000.0, fare.Price)
	assert.False(t, fare.Fallback)
}

func TestSkyQuery_AllDenylistedReturnsFlaggedFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(skyPayload))
	}))
	defer srv.Close()

	p := NewSkyQuery("k", NewDenylist([]string{"Alpha Air", "Beta Wings"}))
	p.BaseURL = srv.URL

	fare, err := p.FetchFare(context.Background(), testRoute())

	require.NoError(t, err)
	assert.Equal(t, 28500.0, fare.Price)
	assert.True(t, fare.Fallback)
}

func TestSkyQuery_RejectsInvalidRouteBeforeNetwork(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	p := NewSkyQuery("k", NewDenylist(nil))
	p.BaseURL = srv.URL

	bad := testRoute()
	bad.ReturnDate = "2026-09-30" // before depart

	_, err := p.FetchFare(context.Background(), bad)

	assert.ErrorIs(t, err, ErrInvalidQuery)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestSkyQuery_MissingKeyIsAuthError(t *testing.T) {
	p := NewSkyQuery("", NewDenylist(nil))
	_, err := p.FetchFare(context.Background(), testRoute())
	assert.ErrorIs(t, err, ErrAuthRequired)
}

func TestSkyQuery_StatusClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, ErrAuthRequired},
		{"forbidden", http.StatusForbidden, ErrAuthRequired},
		{"rate limited", http.StatusTooManyRequests, ErrRateLimited},
		{"server error", http.StatusInternalServerError, ErrTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			p := NewSkyQuery("k", NewDenylist(nil))
			p.BaseURL = srv.URL

			_, err := p.FetchFare(context.Background(), testRoute())
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSkyQuery_EmptyResponseIsNoFares(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"best_flights": [], "other_flights": []}`))
	}))
	defer srv.Close()

	p := NewSkyQuery("k", NewDenylist(nil))
	p.BaseURL = srv.URL

	_, err := p.FetchFare(context.Background(), testRoute())
	assert.ErrorIs(t, err, ErrNoFares)
}

func TestSkyQuery_MalformedResponseIsDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"best_flights": [{"price": "not a number"}]}`))
	}))
	defer srv.Close()

	p := NewSkyQuery("k", NewDenylist(nil))
	p.BaseURL = srv.URL

	_, err := p.FetchFare(context.Background(), testRoute())

	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Contains(t, decodeErr.Field, "price")
}
