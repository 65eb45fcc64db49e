package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldserve/backend/internal/directions"
	"github.com/fieldserve/backend/internal/geo"
	"github.com/fieldserve/backend/internal/metrics"
	"github.com/fieldserve/backend/internal/models"
)

const DefaultBufferMinutes = 15

// TravelTimer returns driving minutes between two points. geo.Estimator
// satisfies it.
type TravelTimer interface {
	TravelMinutes(ctx context.Context, from, to models.GeoPoint) (int, error)
}

// ComputeSchedule walks jobs in order from start, adding travel, duration and
// buffer. Visits never overlap when buffer and durations are non-negative,
// which is why both are rejected otherwise.
func ComputeSchedule(ctx context.Context, jobs []models.Waypoint, start models.GeoPoint, startTime time.Time, bufferMinutes int, timer TravelTimer) ([]models.ScheduledVisit, error) {
	var fields []string
	if bufferMinutes < 0 {
		fields = append(fields, fmt.Sprintf("buffer_minutes %d is negative", bufferMinutes))
	}
	for _, j := range jobs {
		if j.EstimatedMinutes < 0 {
			fields = append(fields, fmt.Sprintf("%s %s estimated_minutes %d is negative", j.JobKind, j.JobID, j.EstimatedMinutes))
		}
	}
	if len(fields) > 0 {
		return nil, &models.InvalidInputError{Entity: "schedule", Fields: fields}
	}
	if timer == nil {
		timer = geo.Estimator{}
	}

	visits := make([]models.ScheduledVisit, 0, len(jobs))
	current := startTime
	location := start
	for i, j := range jobs {
		travel, err := timer.TravelMinutes(ctx, location, j.Point)
		if err != nil {
			return nil, fmt.Errorf("travel time to %s %s: %w", j.JobKind, j.JobID, err)
		}
		if travel < 0 {
			travel = 0
		}
		begin := current.Add(time.Duration(travel) * time.Minute)
		end := begin.Add(time.Duration(j.EstimatedMinutes) * time.Minute)
		visits = append(visits, models.ScheduledVisit{
			JobID:         j.JobID,
			JobKind:       j.JobKind,
			Start:         begin,
			End:           end,
			TravelMinutes: travel,
			Sequence:      i + 1,
		})
		current = end.Add(time.Duration(bufferMinutes) * time.Minute)
		location = j.Point
	}
	return visits, nil
}

// ProviderTimer prefers the directions provider and estimates a leg whenever
// the provider is missing or fails.
type ProviderTimer struct {
	Provider directions.Provider
	Logger   zerolog.Logger

	// Fallbacks counts legs estimated after a provider failure.
	Fallbacks int
}

func (t *ProviderTimer) TravelMinutes(ctx context.Context, from, to models.GeoPoint) (int, error) {
	if directions.IsConfigured(t.Provider) {
		minutes, err := t.Provider.TravelTime(ctx, from, to)
		if err == nil {
			return minutes, nil
		}
		if !errors.Is(err, directions.ErrNotConfigured) {
			t.Fallbacks++
			metrics.DegradedEvents.WithLabelValues("travel_time").Inc()
			t.Logger.Warn().Err(err).Str("op", "travel_time").Msg("directions unavailable, estimating leg")
		}
	}
	return geo.Estimator{}.TravelMinutes(ctx, from, to)
}

// ParseClock turns "HH:MM" into an offset from midnight.
func ParseClock(value string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q, want HH:MM: %w", value, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
