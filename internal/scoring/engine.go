package scoring

import (
	"math"
	"time"

	"github.com/fieldserve/backend/internal/geo"
	"github.com/fieldserve/backend/internal/models"
)

const (
	unknownTechLocationScore = 50.0
	unknownSiteScore         = 60.0
	defaultMetric            = 75.0
)

// Options carries the per-call context the engine needs beyond the two records.
type Options struct {
	// Location decides calendar day and week boundaries. Nil means UTC.
	Location *time.Location
}

func (o Options) location() *time.Location {
	if o.Location == nil {
		return time.UTC
	}
	return o.Location
}

// Engine scores (technician, job) pairs. It holds no mutable state and is safe
// for concurrent use.
type Engine struct {
	weights Weights
}

func NewEngine(w Weights) (*Engine, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &Engine{weights: w}, nil
}

// MustEngine panics on invalid weights; intended for package-level defaults and tests.
func MustEngine(w Weights) *Engine {
	e, err := NewEngine(w)
	if err != nil {
		panic(err)
	}
	return e
}

func (e *Engine) Weights() Weights {
	return e.weights
}

func (e *Engine) Score(tech models.Technician, job models.ServiceJob, reqs []models.SkillRequirement, opts Options) models.ScoreBreakdown {
	loc := opts.location()

	b := models.ScoreBreakdown{
		SkillMatch:   round2(clamp(skillMatchScore(tech, reqs))),
		Availability: round2(clamp(availabilityScore(sameDayBookings(tech, job, loc)))),
		Workload:     round2(clamp(workloadScore(weekBookings(tech, job, loc)))),
		Performance:  round2(clamp(performanceScore(tech.Performance))),
	}

	prox, dist := proximityScore(tech.Location(), job.Site)
	b.Proximity = round2(clamp(prox))
	b.DistanceMiles = dist

	b.Total = round2(e.weights.SkillMatch*b.SkillMatch +
		e.weights.Proximity*b.Proximity +
		e.weights.Availability*b.Availability +
		e.weights.Workload*b.Workload +
		e.weights.Performance*b.Performance)
	b.Reasons = buildReasons(b, len(reqs))
	return b
}

func proximityScore(techLoc *models.GeoPoint, site *models.GeoPoint) (float64, *float64) {
	if techLoc == nil {
		return unknownTechLocationScore, nil
	}
	if site == nil {
		return unknownSiteScore, nil
	}
	d := geo.Distance(*techLoc, *site)
	return distanceBand(d), &d
}

func distanceBand(miles float64) float64 {
	switch {
	case miles <= 5:
		return 100
	case miles <= 10:
		return 90
	case miles <= 20:
		return 75
	case miles <= 50:
		return 50
	default:
		return math.Max(0, 100-miles)
	}
}

func availabilityScore(conflicts int) float64 {
	switch conflicts {
	case 0:
		return 100
	case 1:
		return 80
	case 2:
		return 60
	case 3:
		return 40
	default:
		return math.Max(0, 100-float64(conflicts)*20)
	}
}

func workloadScore(weekly int) float64 {
	switch {
	case weekly <= 15:
		return 100
	case weekly <= 20:
		return 90
	case weekly <= 25:
		return 70
	case weekly <= 30:
		return 50
	default:
		return 30
	}
}

func performanceScore(p models.Performance) float64 {
	return (metricOrDefault(p.CompletionRate) + metricOrDefault(p.QualityScore) + metricOrDefault(p.CustomerSatisfaction)) / 3
}

func metricOrDefault(v *float64) float64 {
	if v == nil {
		return defaultMetric
	}
	return *v
}

func sameDayBookings(tech models.Technician, job models.ServiceJob, loc *time.Location) int {
	day := DayStart(job.ScheduledDate, loc)
	next := day.AddDate(0, 0, 1)
	return countBookings(tech, job, day, next, loc)
}

func weekBookings(tech models.Technician, job models.ServiceJob, loc *time.Location) int {
	start := WeekStart(job.ScheduledDate, loc)
	return countBookings(tech, job, start, start.AddDate(0, 0, 7), loc)
}

func countBookings(tech models.Technician, job models.ServiceJob, from, to time.Time, loc *time.Location) int {
	n := 0
	for _, bk := range tech.Bookings {
		if bk.JobID == job.ID && bk.JobKind == job.Kind {
			continue
		}
		d := bk.Date.In(loc)
		if !d.Before(from) && d.Before(to) {
			n++
		}
	}
	return n
}

// DayStart returns local midnight of t's calendar day in loc.
func DayStart(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}

// WeekStart returns local midnight of the Sunday on or before t.
func WeekStart(t time.Time, loc *time.Location) time.Time {
	day := DayStart(t, loc)
	return day.AddDate(0, 0, -int(day.Weekday()))
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(100, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
