package geo

import (
	"errors"
	"math"
)

// EarthRadiusMeters is the mean Earth radius used by the haversine formula.
const EarthRadiusMeters = 6371000.0

// DefaultRadiusMeters is the admission radius applied when none is configured.
const DefaultRadiusMeters = 100.0

var ErrInvalidCoordinates = errors.New("invalid coordinates")

type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (c Coordinates) Valid() bool {
	if math.IsNaN(c.Latitude) || math.IsInf(c.Latitude, 0) {
		return false
	}
	if math.IsNaN(c.Longitude) || math.IsInf(c.Longitude, 0) {
		return false
	}
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

// DistanceMeters returns the great-circle distance between two points.
func DistanceMeters(a Coordinates, b Coordinates) (float64, error) {
	if !a.Valid() || !b.Valid() {
		return 0, ErrInvalidCoordinates
	}

	lat1 := toRadians(a.Latitude)
	lat2 := toRadians(b.Latitude)
	dLat := toRadians(b.Latitude - a.Latitude)
	dLon := toRadians(b.Longitude - a.Longitude)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon
	return 2 * EarthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h))), nil
}

func WithinRadius(distanceMeters float64, radiusMeters float64) bool {
	if radiusMeters <= 0 {
		radiusMeters = DefaultRadiusMeters
	}
	return distanceMeters >= 0 && distanceMeters <= radiusMeters
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
