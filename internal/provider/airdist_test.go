package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const airDistPayload = `{
	"data": [
		{"price": {"total": "31000.00", "currency": "HUF"},
		 "itineraries": [
			{"duration": "PT2H30M",
			 "segments": [{"carrierCode": "AA", "departure": {"iataCode": "BUD"}, "arrival": {"iataCode": "BCN"}}]},
			{"duration": "PT2H40M",
			 "segments": [{"carrierCode": "AA", "departure": {"iataCode": "BCN"}, "arrival": {"iataCode": "BUD"}}]}
		 ]},
		{"price": {"total": "28500.00", "currency": "HUF"},
		 "itineraries": [
			{"duration": "PT5H0M",
			 "segments": [{"carrierCode": "BW", "departure": {"iataCode": "BUD"}, "arrival": {"iataCode": "FRA"}},
			              {"carrierCode": "BW", "departure": {"iataCode": "FRA"}, "arrival": {"iataCode": "BCN"}}]},
			{"duration": "PT2H40M",
			 "segments": [{"carrierCode": "BW", "departure": {"iataCode": "BCN"}, "arrival": {"iataCode": "BUD"}}]}
		 ]}
	],
	"dictionaries": {"carriers": {"AA": "Alpha Air", "BW": "Beta Wings"}}
}`

// newAirDistServer serves both the token endpoint and the offer search.
func newAirDistServer(t *testing.T, expiresIn int, tokenCalls, searchCalls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/security/oauth2/token":
			atomic.AddInt32(tokenCalls, 1)
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "client_credentials", r.FormValue("grant_type"))
			fmt.Fprintf(w, `{"access_token": "tok-%d", "expires_in": %d}`, atomic.LoadInt32(tokenCalls), expiresIn)
		case "/v2/shopping/flight-offers":
			atomic.AddInt32(searchCalls, 1)
			assert.NotEmpty(t, r.Header.Get("Authorization"))
			w.Write([]byte(airDistPayload))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
}

func newTestAirDist(baseURL string, deny Denylist) *AirDist {
	p := NewAirDist("id", "secret", deny)
	p.BaseURL = baseURL
	return p
}

func TestAirDist_MapsCheapestOffer(t *testing.T) {
	var tokenCalls, searchCalls int32
	srv := newAirDistServer(t, 1800, &tokenCalls, &searchCalls)
	defer srv.Close()

	p := newTestAirDist(srv.URL, NewDenylist(nil))
	fare, err := p.FetchFare(context.Background(), testRoute())

	require.NoError(t, err)
	assert.Equal(t, 28500.0, fare.Price)
	assert.Equal(t, "HUF", fare.Currency)
	assert.Equal(t, "Beta Wings", fare.Airline) // display name from dictionary
	assert.Equal(t, 1, fare.Stops)              // one FRA layover outbound
	assert.Equal(t, 460, fare.DurationMinutes)  // 5h + 2h40m
}

func TestAirDist_TokenIsCachedAcrossCalls(t *testing.T) {
	var tokenCalls, searchCalls int32
	srv := newAirDistServer(t, 1800, &tokenCalls, &searchCalls)
	defer srv.Close()

	p := newTestAirDist(srv.URL, NewDenylist(nil))
	_, err := p.FetchFare(context.Background(), testRoute())
	require.NoError(t, err)
	_, err = p.FetchFare(context.Background(), testRoute())
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&tokenCalls))
	assert.Equal(t, int32(2), atomic.LoadInt32(&searchCalls))
}

func TestAirDist_TokenWithinExpiryMarginIsRefreshed(t *testing.T) {
	// expires_in below the safety margin means the cached token is already
	// considered stale on the next call.
	var tokenCalls, searchCalls int32
	srv := newAirDistServer(t, 30, &tokenCalls, &searchCalls)
	defer srv.Close()

	p := newTestAirDist(srv.URL, NewDenylist(nil))
	_, err := p.FetchFare(context.Background(), testRoute())
	require.NoError(t, err)
	_, err = p.FetchFare(context.Background(), testRoute())
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&tokenCalls))
}

func TestAirDist_ReauthenticatesOnceOn401(t *testing.T) {
	var tokenCalls, searchCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/security/oauth2/token":
			atomic.AddInt32(&tokenCalls, 1)
			fmt.Fprintf(w, `{"access_token": "tok-%d", "expires_in": 1800}`, atomic.LoadInt32(&tokenCalls))
		case "/v2/shopping/flight-offers":
			n := atomic.AddInt32(&searchCalls, 1)
			if n == 1 {
				// Server-side revocation: first search rejects the token.
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Write([]byte(airDistPayload))
		}
	}))
	defer srv.Close()

	p := newTestAirDist(srv.URL, NewDenylist(nil))
	fare, err := p.FetchFare(context.Background(), testRoute())

	require.NoError(t, err)
	assert.Equal(t, 28500.0, fare.Price)
	assert.Equal(t, int32(2), atomic.LoadInt32(&tokenCalls))
	assert.Equal(t, int32(2), atomic.LoadInt32(&searchCalls))
}

func TestAirDist_MissingCredentialsIsAuthError(t *testing.T) {
	p := NewAirDist("", "", NewDenylist(nil))
	_, err := p.FetchFare(context.Background(), testRoute())
	assert.ErrorIs(t, err, ErrAuthRequired)
}

func TestAirDist_DenylistedCarrierCodeMatchesDictionaryName(t *testing.T) {
	var tokenCalls, searchCalls int32
	srv := newAirDistServer(t, 1800, &tokenCalls, &searchCalls)
	defer srv.Close()

	// The denylist holds the display name; the mapped itinerary carries
	// dictionary-resolved names, so filtering still applies.
	p := newTestAirDist(srv.URL, NewDenylist([]string{"Beta Wings"}))
	fare, err := p.FetchFare(context.Background(), testRoute())

	require.NoError(t, err)
	assert.Equal(t, 31000.0, fare.Price)
	assert.False(t, fare.Fallback)
}

func TestParseISODurationMinutes(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"PT2H30M", 150},
		{"PT45M", 45},
		{"PT12H", 720},
		{"", 0},
		{"garbage", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseISODurationMinutes(tt.in), tt.in)
	}
}
