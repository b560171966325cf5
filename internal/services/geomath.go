package services

import (
	"math"
	"stop-sequencing-service/internal/domain"
)

const (
	earthRadiusMeters = 6371008.8
	feetPerMeter      = 3.28084
	earthRadiusFeet   = earthRadiusMeters * feetPerMeter
)

// DistanceFeet returns the great-circle (haversine) distance between two
// coordinates, rounded to the nearest whole foot.
// NaN components propagate to a NaN result; callers filter invalid input.
func DistanceFeet(a, b domain.Coordinates) float64 {
	return math.Round(haversine(a, b) * earthRadiusFeet)
}

// DistanceMeters is the unrounded haversine distance in metres.
func DistanceMeters(a, b domain.Coordinates) float64 {
	return haversine(a, b) * earthRadiusMeters
}

// haversine returns the central angle between a and b in radians.
func haversine(a, b domain.Coordinates) float64 {
	const rad = math.Pi / 180

	dLat := (b.Lat - a.Lat) * rad
	dLon := (b.Lon - a.Lon) * rad

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*rad)*math.Cos(b.Lat*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}
