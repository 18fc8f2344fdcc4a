package provider

import "strings"

// itinerary is the backend-neutral candidate both backends reduce their
// responses to before selection.
type itinerary struct {
	price           float64
	currency        string
	airline         string // display label of the first operating carrier
	carriers        []string
	layovers        []string // airport codes of intermediate stops
	durationMinutes int
	stops           int
}

// Denylist is the fixed set of carriers and transit airports to avoid when
// selecting the cheapest itinerary. Membership is case-insensitive.
type Denylist struct {
	entries map[string]struct{}
}

// NewDenylist builds a denylist from carrier names/codes and airport codes.
func NewDenylist(items []string) Denylist {
	entries := make(map[string]struct{}, len(items))
	for _, item := range items {
		item = strings.ToLower(strings.TrimSpace(item))
		if item != "" {
			entries[item] = struct{}{}
		}
	}
	return Denylist{entries: entries}
}

func (d Denylist) contains(s string) bool {
	_, ok := d.entries[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// Blocks reports whether any of the itinerary's operating carriers or
// layover airports is denylisted.
func (d Denylist) Blocks(it itinerary) bool {
	if len(d.entries) == 0 {
		return false
	}
	for _, c := range it.carriers {
		if d.contains(c) {
			return true
		}
	}
	for _, a := range it.layovers {
		if d.contains(a) {
			return true
		}
	}
	return false
}

// selectCheapest picks the minimum-price itinerary among candidates that
// clear the denylist. When the filter removes everything, it returns the
// cheapest candidate overall with fallback=true so downstream consumers can
// flag it. An empty candidate list yields ErrNoFares.
func selectCheapest(candidates []itinerary, deny Denylist) (itinerary, bool, error) {
	if len(candidates) == 0 {
		return itinerary{}, false, ErrNoFares
	}

	var best *itinerary
	for i := range candidates {
		if deny.Blocks(candidates[i]) {
			continue
		}
		if best == nil || candidates[i].price < best.price {
			best = &candidates[i]
		}
	}
	if best != nil {
		return *best, false, nil
	}

	// Every candidate is denylisted: fall back to the cheapest one.
	best = &candidates[0]
	for i := range candidates[1:] {
		if candidates[i+1].price < best.price {
			best = &candidates[i+1]
		}
	}
	return *best, true, nil
}
