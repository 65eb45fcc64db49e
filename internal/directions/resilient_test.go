package directions

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldserve/backend/internal/models"
)

type flakyProvider struct {
	calls    atomic.Int32
	failures int32
	block    bool
}

func (f *flakyProvider) Configured() bool { return true }

func (f *flakyProvider) TravelTime(ctx context.Context, from, to models.GeoPoint) (int, error) {
	n := f.calls.Add(1)
	if f.block {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	if n <= f.failures {
		return 0, errors.New("boom")
	}
	return 12, nil
}

func (f *flakyProvider) OptimizedOrder(ctx context.Context, req RouteRequest) (RouteResponse, error) {
	n := f.calls.Add(1)
	if n <= f.failures {
		return RouteResponse{}, errors.New("boom")
	}
	return RouteResponse{Order: identity(len(req.Waypoints))}, nil
}

func TestResilientRetriesOnce(t *testing.T) {
	p := &flakyProvider{failures: 1}
	r := NewResilient(p, time.Second, 0, zerolog.Nop())
	minutes, err := r.TravelTime(context.Background(), models.GeoPoint{}, models.GeoPoint{})
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if minutes != 12 || p.calls.Load() != 2 {
		t.Fatalf("unexpected result minutes=%d calls=%d", minutes, p.calls.Load())
	}
}

func TestResilientGivesUpAfterSecondFailure(t *testing.T) {
	p := &flakyProvider{failures: 5}
	r := NewResilient(p, time.Second, 0, zerolog.Nop())
	_, err := r.OptimizedOrder(context.Background(), RouteRequest{})
	var unavailable *ProviderUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected ProviderUnavailableError, got %v", err)
	}
	if unavailable.Attempts != 2 || p.calls.Load() != 2 {
		t.Fatalf("expected exactly two attempts, got %d (calls %d)", unavailable.Attempts, p.calls.Load())
	}
}

func TestResilientTimesOut(t *testing.T) {
	p := &flakyProvider{block: true}
	r := NewResilient(p, 20*time.Millisecond, 0, zerolog.Nop())
	start := time.Now()
	_, err := r.TravelTime(context.Background(), models.GeoPoint{}, models.GeoPoint{})
	var unavailable *ProviderUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected ProviderUnavailableError, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline cause, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("timeout not applied")
	}
}

func TestResilientUnconfiguredPassesSentinel(t *testing.T) {
	r := NewResilient(Unconfigured{}, time.Second, 5, zerolog.Nop())
	if r.Configured() {
		t.Fatalf("expected unconfigured")
	}
	_, err := r.TravelTime(context.Background(), models.GeoPoint{}, models.GeoPoint{})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	var unavailable *ProviderUnavailableError
	if errors.As(err, &unavailable) {
		t.Fatalf("not configured must not look like an outage")
	}
}

func TestCachedProviderWithoutRedisPassesThrough(t *testing.T) {
	p := &flakyProvider{}
	c := NewCachedProvider(p, nil, 0, zerolog.Nop())
	minutes, err := c.TravelTime(context.Background(), models.GeoPoint{}, models.GeoPoint{})
	if err != nil || minutes != 12 {
		t.Fatalf("unexpected result %d %v", minutes, err)
	}
	if !c.Configured() {
		t.Fatalf("embedded provider should report configured")
	}
}

func TestTravelKeyRounds(t *testing.T) {
	a := travelKey(models.GeoPoint{Lat: 40.712801, Lng: -74.006}, models.GeoPoint{Lat: 1, Lng: 2})
	b := travelKey(models.GeoPoint{Lat: 40.712849, Lng: -74.006}, models.GeoPoint{Lat: 1, Lng: 2})
	if a != b {
		t.Fatalf("expected nearby points to share a key: %s vs %s", a, b)
	}
}
