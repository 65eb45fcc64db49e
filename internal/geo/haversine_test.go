package geo

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestHaversineMilesKnownDistance(t *testing.T) {
	// Los Angeles to San Francisco, roughly 347 miles.
	d := HaversineMiles(34.0522, -118.2437, 37.7749, -122.4194)
	if d < 340 || d > 355 {
		t.Fatalf("unexpected distance: %f", d)
	}
}

func TestHaversineMilesSamePoint(t *testing.T) {
	if d := HaversineMiles(40.0, -75.0, 40.0, -75.0); d != 0 {
		t.Fatalf("expected 0 distance, got %f", d)
	}
}

func TestEstimateTravelMinutes(t *testing.T) {
	cases := []struct {
		miles float64
		want  int
	}{
		{0, 0},
		{-3, 0},
		{15, 30},
		{30, 60},
		{10.1, 21},
	}
	for _, c := range cases {
		if got := EstimateTravelMinutes(c.miles); got != c.want {
			t.Fatalf("EstimateTravelMinutes(%v) = %d, want %d", c.miles, got, c.want)
		}
	}
}

func TestUnitConversions(t *testing.T) {
	if got := MetersToMiles(1609.344); math.Abs(got-1) > 1e-3 {
		t.Fatalf("expected ~1 mile, got %f", got)
	}
	if got := SecondsToMinutes(61); got != 2 {
		t.Fatalf("expected 2 minutes, got %d", got)
	}
	if got := SecondsToMinutes(120); got != 2 {
		t.Fatalf("expected 2 minutes, got %d", got)
	}
}

func TestHaversineSymmetry(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("distance(a,b) == distance(b,a)", prop.ForAll(
		func(lat1, lon1, lat2, lon2 float64) bool {
			ab := HaversineMiles(lat1, lon1, lat2, lon2)
			ba := HaversineMiles(lat2, lon2, lat1, lon1)
			return ab == ba && ab >= 0
		},
		gen.Float64Range(-90, 90),
		gen.Float64Range(-180, 180),
		gen.Float64Range(-90, 90),
		gen.Float64Range(-180, 180),
	))

	properties.TestingRun(t)
}

func TestHaversineSymmetryExact(t *testing.T) {
	pairs := [][4]float64{
		{40.7128, -74.0060, 40.7306, -73.9352},
		{-33.8688, 151.2093, 51.5074, -0.1278},
		{89.9, 179.9, -89.9, -179.9},
		{12.345678, 98.765432, 12.345679, 98.765431},
	}
	for _, p := range pairs {
		ab := HaversineMiles(p[0], p[1], p[2], p[3])
		ba := HaversineMiles(p[2], p[3], p[0], p[1])
		if ab != ba {
			t.Fatalf("asymmetric distance for %v: %v vs %v", p, ab, ba)
		}
	}
}
