package directions

import (
	"context"
	"errors"
	"fmt"

	"github.com/fieldserve/backend/internal/models"
)

// ErrNotConfigured means no provider credentials are set. It is the normal
// signal to use the geo estimator, not an operational failure.
var ErrNotConfigured = errors.New("directions provider not configured")

// Provider is an external routing service.
type Provider interface {
	Configured() bool
	TravelTime(ctx context.Context, from, to models.GeoPoint) (minutes int, err error)
	OptimizedOrder(ctx context.Context, req RouteRequest) (RouteResponse, error)
}

// Stop is a request waypoint; Key lets callers map the response back to jobs.
type Stop struct {
	Key   models.JobKey
	Point models.GeoPoint
}

type RouteRequest struct {
	Origin      models.GeoPoint
	Destination models.GeoPoint
	Waypoints   []Stop
	// Optimize lets the provider reorder Waypoints. When false the response
	// describes the route in request order.
	Optimize bool
}

type RouteResponse struct {
	// Order is a permutation of indices into RouteRequest.Waypoints.
	Order           []int
	DistanceMeters  float64
	DurationSeconds float64
	Polyline        string
}

// ProviderUnavailableError wraps a failed or timed out provider call.
type ProviderUnavailableError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *ProviderUnavailableError) Error() string {
	return fmt.Sprintf("directions %s failed after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *ProviderUnavailableError) Unwrap() error {
	return e.Err
}

// Unconfigured is used when no API key is present.
type Unconfigured struct{}

func (Unconfigured) Configured() bool { return false }

func (Unconfigured) TravelTime(context.Context, models.GeoPoint, models.GeoPoint) (int, error) {
	return 0, ErrNotConfigured
}

func (Unconfigured) OptimizedOrder(context.Context, RouteRequest) (RouteResponse, error) {
	return RouteResponse{}, ErrNotConfigured
}

// IsConfigured treats a nil provider as unconfigured.
func IsConfigured(p Provider) bool {
	return p != nil && p.Configured()
}

// ValidatePermutation checks that order is a permutation of 0..n-1.
func ValidatePermutation(order []int, n int) error {
	if len(order) != n {
		return fmt.Errorf("waypoint order has %d entries, want %d", len(order), n)
	}
	seen := make([]bool, n)
	for _, idx := range order {
		if idx < 0 || idx >= n || seen[idx] {
			return fmt.Errorf("waypoint order is not a permutation: %v", order)
		}
		seen[idx] = true
	}
	return nil
}
