package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"farewatch/internal/model"
)

// SkyQuery is the metasearch aggregator backend. A single static API key
// authenticates every call.
type SkyQuery struct {
	APIKey   string
	BaseURL  string
	Currency string
	Deny     Denylist
	Client   *http.Client
}

// NewSkyQuery constructs the aggregator backend.
func NewSkyQuery(apiKey string, deny Denylist) *SkyQuery {
	return &SkyQuery{
		APIKey:   apiKey,
		Currency: model.DefaultCurrency,
		Deny:     deny,
		Client:   &http.Client{Timeout: defaultTimeout},
	}
}

// Name returns the backend identifier.
func (p *SkyQuery) Name() string { return "skyquery" }

type skyResponse struct {
	BestFlights  []skyItinerary `json:"best_flights"`
	OtherFlights []skyItinerary `json:"other_flights"`
}

type skyItinerary struct {
	Price         float64 `json:"price"`
	TotalDuration int     `json:"total_duration"`
	Flights       []struct {
		Airline  string `json:"airline"`
		Duration int    `json:"duration"`
		Departure struct {
			ID string `json:"id"`
		} `json:"departure_airport"`
		Arrival struct {
			ID string `json:"id"`
		} `json:"arrival_airport"`
	} `json:"flights"`
	Layovers []struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Duration int    `json:"duration"`
	} `json:"layovers"`
}

// FetchFare implements Provider.
func (p *SkyQuery) FetchFare(ctx context.Context, route model.Route) (model.Fare, error) {
	if err := validateRoute(route); err != nil {
		return model.Fare{}, err
	}
	if p.APIKey == "" {
		return model.Fare{}, fmt.Errorf("%w: skyquery api key missing", ErrAuthRequired)
	}

	endpoint := p.buildURL(route)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return model.Fare{}, err
	}
	resp, err := p.client().Do(req)
	if err != nil {
		return model.Fare{}, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(p.Name(), resp); err != nil {
		return model.Fare{}, err
	}

	var payload skyResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return model.Fare{}, &DecodeError{Provider: p.Name(), Field: decodeField(err), Err: err}
	}

	candidates := make([]itinerary, 0, len(payload.BestFlights)+len(payload.OtherFlights))
	for _, raw := range append(payload.BestFlights, payload.OtherFlights...) {
		candidates = append(candidates, mapSkyItinerary(raw))
	}

	chosen, fallback, err := selectCheapest(candidates, p.Deny)
	if err != nil {
		return model.Fare{}, fmt.Errorf("%s %s-%s: %w", p.Name(), route.Origin, route.Destination, err)
	}
	return p.fare(route, chosen, fallback), nil
}

func (p *SkyQuery) buildURL(route model.Route) string {
	v := url.Values{}
	v.Set("engine", "google_flights")
	v.Set("api_key", p.APIKey)
	v.Set("departure_id", route.Origin)
	v.Set("arrival_id", route.Destination)
	v.Set("outbound_date", route.DepartDate)
	v.Set("return_date", route.ReturnDate)
	v.Set("type", "1") // round trip
	v.Set("adults", "1")
	v.Set("currency", p.currency())
	v.Set("hl", "en")
	return strings.TrimRight(p.baseURL(), "/") + "/search.json?" + v.Encode()
}

func mapSkyItinerary(raw skyItinerary) itinerary {
	it := itinerary{
		price:           raw.Price,
		durationMinutes: raw.TotalDuration,
		stops:           len(raw.Layovers),
	}
	legSum := 0
	for _, leg := range raw.Flights {
		it.carriers = append(it.carriers, leg.Airline)
		legSum += leg.Duration
	}
	if it.durationMinutes == 0 {
		it.durationMinutes = legSum
	}
	for _, lay := range raw.Layovers {
		it.layovers = append(it.layovers, lay.ID)
	}
	if len(raw.Flights) > 0 {
		it.airline = raw.Flights[0].Airline
	}
	return it
}

func (p *SkyQuery) fare(route model.Route, it itinerary, fallback bool) model.Fare {
	currency := it.currency
	if currency == "" {
		currency = p.currency()
	}
	return model.Fare{
		ID:              uuid.NewString(),
		RouteID:         route.ID,
		Price:           it.price,
		Currency:        currency,
		Airline:         it.airline,
		DurationMinutes: it.durationMinutes,
		Stops:           it.stops,
		Fallback:        fallback,
		FetchedAt:       time.Now().UTC(),
	}
}

func (p *SkyQuery) baseURL() string {
	if p.BaseURL != "" {
		return p.BaseURL
	}
	return "https://serpapi.com"
}

func (p *SkyQuery) currency() string {
	if p.Currency != "" {
		return p.Currency
	}
	return model.DefaultCurrency
}

func (p *SkyQuery) client() *http.Client {
	if p.Client != nil {
		return p.Client
	}
	return &http.Client{Timeout: defaultTimeout}
}

// classifyStatus maps HTTP error statuses onto the sentinel taxonomy.
func classifyStatus(name string, resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	msg := strings.TrimSpace(string(body))
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s: %s: %s", ErrAuthRequired, name, resp.Status, msg)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s: %s: %s", ErrRateLimited, name, resp.Status, msg)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s: %s: %s", ErrTransient, name, resp.Status, msg)
	default:
		return fmt.Errorf("%s request failed: %s: %s", name, resp.Status, msg)
	}
}

// decodeField extracts the offending field name from a json decode error
// when the standard library exposes one.
func decodeField(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return typeErr.Field
	}
	return ""
}
