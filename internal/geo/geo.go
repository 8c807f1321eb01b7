// Package geo holds the coordinate value type and great-circle math used by
// the travel tracker and the prayer-time calculator.
package geo

import "math"

const earthRadiusKm = 6371.0

// Coordinates is an immutable WGS84-ish lat/lon pair in degrees.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// DistanceKm returns the haversine great-circle distance between a and b in
// kilometers. Pure and total over finite inputs; symmetric; zero iff a == b
// (within floating tolerance).
func DistanceKm(a, b Coordinates) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLon := toRad(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
