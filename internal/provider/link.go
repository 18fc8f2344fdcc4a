package provider

import (
	"net/url"

	"farewatch/internal/model"
)

// SearchURL builds the public flight-search deep link for a route. It is
// handed to the user for navigation and never consumed programmatically.
func SearchURL(route model.Route) string {
	values := url.Values{}
	values.Set("f", route.Origin)
	values.Set("t", route.Destination)
	values.Set("d", route.DepartDate)
	values.Set("r", route.ReturnDate)
	return "https://www.google.com/travel/flights?" + values.Encode()
}
