package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"farewatch/internal/model"
)

// tokenExpiryMargin is subtracted from the reported token lifetime so a
// token is never used right at its expiry instant.
const tokenExpiryMargin = 60 * time.Second

// AirDist is the airline-distribution backend. It authenticates through an
// OAuth2 client-credentials exchange and caches the bearer token until
// shortly before its reported expiry.
type AirDist struct {
	BaseURL  string
	Currency string
	Deny     Denylist
	Client   *http.Client

	tokens *tokenSource
}

// NewAirDist constructs the distribution backend.
func NewAirDist(clientID, clientSecret string, deny Denylist) *AirDist {
	p := &AirDist{
		Currency: model.DefaultCurrency,
		Deny:     deny,
		Client:   &http.Client{Timeout: defaultTimeout},
	}
	p.tokens = &tokenSource{
		clientID:     clientID,
		clientSecret: clientSecret,
		tokenURL:     func() string { return strings.TrimRight(p.baseURL(), "/") + "/v1/security/oauth2/token" },
		client:       func() *http.Client { return p.client() },
	}
	return p
}

// Name returns the backend identifier.
func (p *AirDist) Name() string { return "airdist" }

// tokenSource caches one bearer token and refreshes it when it is within
// the expiry margin.
type tokenSource struct {
	clientID     string
	clientSecret string
	tokenURL     func() string
	client       func() *http.Client

	mu      sync.Mutex
	token   string
	expires time.Time
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (ts *tokenSource) bearer(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.token != "" && time.Now().Before(ts.expires) {
		return ts.token, nil
	}
	if ts.clientID == "" || ts.clientSecret == "" {
		return "", fmt.Errorf("%w: airdist client credentials missing", ErrAuthRequired)
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", ts.clientID)
	form.Set("client_secret", ts.clientSecret)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.tokenURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := ts.client().Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: token exchange: %v", ErrTransient, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: token exchange failed: %s", ErrAuthRequired, resp.Status)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", &DecodeError{Provider: "airdist", Field: decodeField(err), Err: err}
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("%w: token exchange returned no access token", ErrAuthRequired)
	}

	ts.token = tok.AccessToken
	ts.expires = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - tokenExpiryMargin)
	return ts.token, nil
}

// invalidate drops the cached token so the next call re-authenticates.
func (ts *tokenSource) invalidate() {
	ts.mu.Lock()
	ts.token = ""
	ts.expires = time.Time{}
	ts.mu.Unlock()
}

type airDistResponse struct {
	Data         []airDistOffer `json:"data"`
	Dictionaries struct {
		Carriers map[string]string `json:"carriers"`
	} `json:"dictionaries"`
}

type airDistOffer struct {
	Price struct {
		Total    string `json:"total"`
		Currency string `json:"currency"`
	} `json:"price"`
	Itineraries []airDistItinerary `json:"itineraries"`
}

type airDistItinerary struct {
	Duration string           `json:"duration"` // ISO 8601, e.g. PT12H30M
	Segments []airDistSegment `json:"segments"`
}

type airDistSegment struct {
	CarrierCode string `json:"carrierCode"`
	Departure   struct {
		IATACode string `json:"iataCode"`
	} `json:"departure"`
	Arrival struct {
		IATACode string `json:"iataCode"`
	} `json:"arrival"`
}

// FetchFare implements Provider.
func (p *AirDist) FetchFare(ctx context.Context, route model.Route) (model.Fare, error) {
	if err := validateRoute(route); err != nil {
		return model.Fare{}, err
	}

	resp, err := p.search(ctx, route, true)
	if err != nil {
		return model.Fare{}, err
	}

	candidates := make([]itinerary, 0, len(resp.Data))
	for _, offer := range resp.Data {
		it, err := mapAirDistOffer(offer, resp.Dictionaries.Carriers)
		if err != nil {
			return model.Fare{}, err
		}
		candidates = append(candidates, it)
	}

	chosen, fallback, err := selectCheapest(candidates, p.Deny)
	if err != nil {
		return model.Fare{}, fmt.Errorf("%s %s-%s: %w", p.Name(), route.Origin, route.Destination, err)
	}

	currency := chosen.currency
	if currency == "" {
		currency = p.currency()
	}
	return model.Fare{
		ID:              uuid.NewString(),
		RouteID:         route.ID,
		Price:           chosen.price,
		Currency:        currency,
		Airline:         chosen.airline,
		DurationMinutes: chosen.durationMinutes,
		Stops:           chosen.stops,
		Fallback:        fallback,
		FetchedAt:       time.Now().UTC(),
	}, nil
}

// search runs the offer search, re-authenticating once when the cached
// token turns out to be stale server-side.
func (p *AirDist) search(ctx context.Context, route model.Route, retryAuth bool) (*airDistResponse, error) {
	token, err := p.tokens.bearer(ctx)
	if err != nil {
		return nil, err
	}

	v := url.Values{}
	v.Set("originLocationCode", route.Origin)
	v.Set("destinationLocationCode", route.Destination)
	v.Set("departureDate", route.DepartDate)
	v.Set("returnDate", route.ReturnDate)
	v.Set("adults", "1")
	v.Set("currencyCode", p.currency())
	v.Set("max", "20")
	endpoint := strings.TrimRight(p.baseURL(), "/") + "/v2/shopping/flight-offers?" + v.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		p.tokens.invalidate()
		if retryAuth {
			return p.search(ctx, route, false)
		}
	}
	if err := classifyStatus(p.Name(), resp); err != nil {
		return nil, err
	}

	var payload airDistResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &DecodeError{Provider: p.Name(), Field: decodeField(err), Err: err}
	}
	return &payload, nil
}

func mapAirDistOffer(offer airDistOffer, carrierNames map[string]string) (itinerary, error) {
	price, err := strconv.ParseFloat(offer.Price.Total, 64)
	if err != nil {
		return itinerary{}, &DecodeError{Provider: "airdist", Field: "price.total", Err: err}
	}

	it := itinerary{price: price, currency: offer.Price.Currency}
	for _, leg := range offer.Itineraries {
		it.durationMinutes += parseISODurationMinutes(leg.Duration)
		for i, seg := range leg.Segments {
			carrier := seg.CarrierCode
			if name, ok := carrierNames[seg.CarrierCode]; ok && name != "" {
				carrier = name
			}
			it.carriers = append(it.carriers, carrier)
			if it.airline == "" {
				it.airline = carrier
			}
			// Every non-final segment arrival is a layover airport.
			if i < len(leg.Segments)-1 {
				it.layovers = append(it.layovers, seg.Arrival.IATACode)
				it.stops++
			}
		}
	}
	return it, nil
}

// parseISODurationMinutes converts durations like "PT12H30M" to minutes.
// Unparseable input yields zero rather than an error; duration is advisory.
func parseISODurationMinutes(s string) int {
	s = strings.TrimPrefix(strings.ToUpper(s), "PT")
	minutes := 0
	if h := strings.Index(s, "H"); h >= 0 {
		if n, err := strconv.Atoi(s[:h]); err == nil {
			minutes += n * 60
		}
		s = s[h+1:]
	}
	if m := strings.Index(s, "M"); m >= 0 {
		if n, err := strconv.Atoi(s[:m]); err == nil {
			minutes += n
		}
	}
	return minutes
}

func (p *AirDist) baseURL() string {
	if p.BaseURL != "" {
		return p.BaseURL
	}
	return "https://api.amadeus.com"
}

func (p *AirDist) currency() string {
	if p.Currency != "" {
		return p.Currency
	}
	return model.DefaultCurrency
}

func (p *AirDist) client() *http.Client {
	if p.Client != nil {
		return p.Client
	}
	return &http.Client{Timeout: defaultTimeout}
}
