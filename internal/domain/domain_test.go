package domain

import (
	"math"
	"testing"
)

func TestCoordinatesValid(t *testing.T) {
	tests := []struct {
		name string
		c    Coordinates
		want bool
	}{
		{"origin", Coordinates{0, 0}, true},
		{"bounds", Coordinates{90, -180}, true},
		{"lat too high", Coordinates{90.0001, 0}, false},
		{"lon too low", Coordinates{0, -180.5}, false},
		{"nan", Coordinates{math.NaN(), 10}, false},
		{"inf", Coordinates{10, math.Inf(1)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.c.Valid(); got != tt.want {
				t.Errorf("Valid(%v) = %v, want %v", tt.c, got, tt.want)
			}
		})
	}
}

func TestCoordinatesListAndKey(t *testing.T) {
	c := Coordinates{Lat: 40.712776, Lon: -74.005974}

	got := c.CoordsToList()
	if len(got) != 2 || got[0] != c.Lon || got[1] != c.Lat {
		t.Errorf("CoordsToList() = %v, want [lon lat]", got)
	}

	if key := c.Key(); key != "40.71278,-74.00597" {
		t.Errorf("Key() = %q", key)
	}
}

func TestStopHasCoordinates(t *testing.T) {
	// build test data
	located := Stop{StopID: "a", Location: &Coordinates{Lat: 1, Lon: 2}}
	missing := Stop{StopID: "b"}
	invalid := Stop{StopID: "c", Location: &Coordinates{Lat: 200, Lon: 2}}

	if !located.HasCoordinates() {
		t.Errorf("stop %s should have coordinates", located.StopID)
	}
	if missing.HasCoordinates() {
		t.Errorf("stop %s should not have coordinates", missing.StopID)
	}
	if invalid.HasCoordinates() {
		t.Errorf("stop %s has out-of-range coordinates", invalid.StopID)
	}

	ids := StopIDs([]Stop{located, missing, invalid})
	if len(ids) != 3 || ids[0] != "a" || ids[1] != "b" || ids[2] != "c" {
		t.Errorf("StopIDs() = %v", ids)
	}
}
