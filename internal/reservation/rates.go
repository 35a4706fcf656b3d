package reservation

import "strings"

// RateTable resolves the per-person price for a venue.
type RateTable interface {
	Rate(venue string) (Money, bool)
}

// StaticRates is a fixed venue → per-person rate table. Lookups ignore case and
// surrounding whitespace.
type StaticRates map[string]Money

// Rate implements RateTable.
func (r StaticRates) Rate(venue string) (Money, bool) {
	key := normalizeVenue(venue)
	for name, rate := range r {
		if normalizeVenue(name) == key {
			return rate, true
		}
	}
	return 0, false
}

func normalizeVenue(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
