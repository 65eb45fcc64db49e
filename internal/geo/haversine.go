package geo

import (
	"context"
	"math"

	"github.com/fieldserve/backend/internal/models"
)

const (
	earthRadiusMiles = 3959.0
	fallbackSpeedMph = 30.0
	metersToMiles    = 0.000621371
)

func HaversineMiles(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := degreesToRadians(lat2 - lat1)
	dLon := degreesToRadians(lon2 - lon1)

	lat1R := degreesToRadians(lat1)
	lat2R := degreesToRadians(lat2)

	sLat := math.Sin(dLat / 2)
	sLon := math.Sin(dLon / 2)
	// The cosine product is grouped so swapping the endpoints yields the same bits.
	a := sLat*sLat + sLon*sLon*(math.Cos(lat1R)*math.Cos(lat2R))
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMiles * c
}

// Distance is HaversineMiles over two points.
func Distance(a, b models.GeoPoint) float64 {
	return HaversineMiles(a.Lat, a.Lng, b.Lat, b.Lng)
}

// EstimateTravelMinutes assumes a 30 mph average when no routing provider is available.
func EstimateTravelMinutes(distanceMiles float64) int {
	if distanceMiles <= 0 {
		return 0
	}
	return int(math.Ceil(distanceMiles / fallbackSpeedMph * 60))
}

func MetersToMiles(meters float64) float64 {
	return meters * metersToMiles
}

// SecondsToMinutes rounds up so a 61 second leg counts as two minutes.
func SecondsToMinutes(seconds float64) int {
	if seconds <= 0 {
		return 0
	}
	return int(math.Ceil(seconds / 60))
}

func degreesToRadians(d float64) float64 {
	return d * math.Pi / 180
}

// Estimator answers travel time questions from straight-line distance only.
type Estimator struct{}

func (Estimator) TravelMinutes(_ context.Context, from, to models.GeoPoint) (int, error) {
	return EstimateTravelMinutes(Distance(from, to)), nil
}
