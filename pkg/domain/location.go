package domain

import "strings"

// Location is a canonical facility site. Free-text input from kiosks and
// imports is funneled through Normalize so storage only ever sees these
// values.
type Location string

const (
	LocationBarwaTowers Location = "BARWA_TOWERS"
	LocationMarina50    Location = "MARINA_50"
	LocationElement     Location = "ELEMENT"
)

// DefaultLocation is the site unmatched input falls back to. Normalize never
// rejects: unknown strings map here. Deliberate carry-over from the original
// deployment where one site handled the vast majority of traffic.
const DefaultLocation = LocationBarwaTowers

// Locations lists every canonical site.
func Locations() []Location {
	return []Location{LocationBarwaTowers, LocationMarina50, LocationElement}
}

// Valid reports whether l is one of the canonical sites.
func (l Location) Valid() bool {
	switch l {
	case LocationBarwaTowers, LocationMarina50, LocationElement:
		return true
	}
	return false
}

// NormalizeLocation maps a free-text location string to a canonical site by
// case-insensitive substring matching. "elemant" is a misspelling that shows
// up in imported host records often enough to warrant a rule.
func NormalizeLocation(raw string) Location {
	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "barwa"):
		return LocationBarwaTowers
	case strings.Contains(lower, "marina") && strings.Contains(lower, "50"):
		return LocationMarina50
	case strings.Contains(lower, "element") || strings.Contains(lower, "elemant"):
		return LocationElement
	default:
		return DefaultLocation
	}
}

// ParseLocation accepts either a canonical value or free text, returning the
// canonical site. The empty string maps to the default site; callers that
// want "no filter" semantics must check for empty before calling.
func ParseLocation(raw string) Location {
	if l := Location(strings.ToUpper(strings.TrimSpace(raw))); l.Valid() {
		return l
	}
	return NormalizeLocation(raw)
}
