package domain

// Represents a single location a worker must visit on a route.
// Coordinates stay nil until the address has been geocoded.
// Position is the 1-based rank within the route, assigned by optimization
// (0 means not yet sequenced).
type Stop struct {
	StopID   string
	RouteID  string
	Address  string
	Location *Coordinates
	Position int
}

// HasCoordinates reports whether the stop can take part in sequencing.
func (s Stop) HasCoordinates() bool {
	return s.Location != nil && s.Location.Valid()
}

// StopIDs returns the identifiers of stops in slice order.
func StopIDs(stops []Stop) []string {
	ids := make([]string, 0, len(stops))
	for _, s := range stops {
		ids = append(ids, s.StopID)
	}
	return ids
}
