package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/fieldserve/backend/internal/directions"
	"github.com/fieldserve/backend/internal/metrics"
	"github.com/fieldserve/backend/internal/models"
	"github.com/fieldserve/backend/internal/scoring"
)

const (
	StatusAssigned  = "assigned"
	StatusOptimized = "optimized"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
)

const (
	DefaultWorkers      = 8
	DefaultWorkdayStart = 8 * time.Hour
)

// Orchestrator loads inputs through Store, runs the pure scoring, routing and
// scheduling steps, and writes the results back.
type Orchestrator struct {
	Store    Store
	Engine   *scoring.Engine
	Provider directions.Provider
	Logger   zerolog.Logger

	// Location decides day and week boundaries. Nil means UTC.
	Location      *time.Location
	WorkdayStart  time.Duration
	BufferMinutes int
	Workers       int
}

type ItemResult struct {
	JobID        string `json:"job_id,omitempty"`
	JobKind      string `json:"job_kind,omitempty"`
	TechnicianID string `json:"technician_id,omitempty"`
	Status       string `json:"status"`
	Confidence   string `json:"confidence,omitempty"`
	Method       string `json:"method,omitempty"`
	Degraded     bool   `json:"degraded,omitempty"`
	Error        string `json:"error,omitempty"`
}

type BatchResult struct {
	Items  []ItemResult   `json:"items"`
	Counts map[string]int `json:"counts"`
}

// DayPlan is the outcome of optimizing one technician's day.
type DayPlan struct {
	Route  models.RouteOptimizationResult `json:"route"`
	Visits []models.ScheduledVisit        `json:"visits"`
	// Degraded is set when the provider failed and estimates were used.
	Degraded bool `json:"degraded"`
}

func (o *Orchestrator) location() *time.Location {
	if o.Location == nil {
		return time.UTC
	}
	return o.Location
}

func (o *Orchestrator) scoringOptions() scoring.Options {
	return scoring.Options{Location: o.location()}
}

func (o *Orchestrator) workers() int {
	if o.Workers <= 0 {
		return DefaultWorkers
	}
	return o.Workers
}

// AutoAssign assigns every unassigned job of a company. Technicians are loaded
// once per distinct job date and each job is scored against that snapshot.
// Item failures are reported per job and never abort the batch.
func (o *Orchestrator) AutoAssign(ctx context.Context, companyID string) (BatchResult, error) {
	jobs, err := o.Store.GetUnassignedJobs(ctx, companyID)
	if err != nil {
		return BatchResult{}, err
	}

	type snapshot struct {
		techs []models.Technician
		err   error
	}
	loc := o.location()
	byDay := map[time.Time]snapshot{}
	for _, job := range jobs {
		day := scoring.DayStart(job.ScheduledDate, loc)
		if _, ok := byDay[day]; ok {
			continue
		}
		techs, err := o.Store.GetEligibleTechnicians(ctx, companyID, day)
		byDay[day] = snapshot{techs: techs, err: err}
	}

	o.Logger.Info().Str("company_id", companyID).Int("jobs", len(jobs)).Int("days", len(byDay)).Msg("auto-assign started")

	items := make([]ItemResult, len(jobs))
	var g errgroup.Group
	g.SetLimit(o.workers())
	for i, job := range jobs {
		i, job := i, job
		snap := byDay[scoring.DayStart(job.ScheduledDate, loc)]
		g.Go(func() error {
			item := ItemResult{JobID: job.ID, JobKind: job.Kind}
			if snap.err != nil {
				items[i] = o.failItem(item, fmt.Errorf("load technicians: %w", snap.err))
				return nil
			}
			decision, err := o.assign(ctx, job, snap.techs)
			switch {
			case errors.Is(err, ErrNoCandidate):
				item.Status = StatusSkipped
				item.Error = err.Error()
			case err != nil:
				item = o.failItem(item, err)
			default:
				item.Status = StatusAssigned
				item.TechnicianID = decision.TechnicianID
				item.Confidence = decision.Confidence
			}
			items[i] = item
			return nil
		})
	}
	_ = g.Wait()

	result := summarize("auto_assign", items)
	o.Logger.Info().Str("company_id", companyID).Interface("counts", result.Counts).Msg("auto-assign finished")
	return result, nil
}

// AssignJob runs selection for a single job against the technicians eligible
// on its scheduled date.
func (o *Orchestrator) AssignJob(ctx context.Context, jobID, kind string) (models.AssignmentDecision, error) {
	job, err := o.Store.GetJob(ctx, jobID, kind)
	if err != nil {
		return models.AssignmentDecision{}, err
	}
	techs, err := o.Store.GetEligibleTechnicians(ctx, job.CompanyID, scoring.DayStart(job.ScheduledDate, o.location()))
	if err != nil {
		return models.AssignmentDecision{}, err
	}
	return o.assign(ctx, job, techs)
}

// ScoreJob ranks eligible technicians for a job without assigning it.
func (o *Orchestrator) ScoreJob(ctx context.Context, jobID, kind string) ([]Candidate, error) {
	job, err := o.Store.GetJob(ctx, jobID, kind)
	if err != nil {
		return nil, err
	}
	techs, err := o.Store.GetEligibleTechnicians(ctx, job.CompanyID, scoring.DayStart(job.ScheduledDate, o.location()))
	if err != nil {
		return nil, err
	}
	reqs, err := o.requirements(ctx, job)
	if err != nil {
		return nil, err
	}
	return RankCandidates(o.Engine, job, techs, reqs, o.scoringOptions())
}

func (o *Orchestrator) assign(ctx context.Context, job models.ServiceJob, techs []models.Technician) (models.AssignmentDecision, error) {
	if err := ctx.Err(); err != nil {
		return models.AssignmentDecision{}, err
	}
	reqs, err := o.requirements(ctx, job)
	if err != nil {
		return models.AssignmentDecision{}, err
	}
	decision, err := SelectBestTechnician(o.Engine, job, techs, reqs, o.scoringOptions())
	if err != nil {
		return models.AssignmentDecision{}, err
	}
	if err := o.Store.AssignJob(ctx, job.ID, job.Kind, decision.TechnicianID); err != nil {
		return models.AssignmentDecision{}, fmt.Errorf("assign job: %w", err)
	}
	if err := o.Store.AppendAssignmentLog(ctx, decision); err != nil {
		return models.AssignmentDecision{}, fmt.Errorf("append assignment log: %w", err)
	}
	metrics.Assignments.WithLabelValues(decision.Confidence).Inc()
	o.Logger.Info().
		Str("job_id", job.ID).
		Str("job_kind", job.Kind).
		Str("technician_id", decision.TechnicianID).
		Float64("score", decision.Score).
		Str("confidence", decision.Confidence).
		Msg("job assigned")
	return decision, nil
}

func (o *Orchestrator) requirements(ctx context.Context, job models.ServiceJob) ([]models.SkillRequirement, error) {
	reqs, err := o.Store.GetJobRequirements(ctx, job.ID, job.Kind)
	if err != nil {
		return nil, fmt.Errorf("load requirements: %w", err)
	}
	return reqs, nil
}

// OptimizeTechnicianDay orders a technician's jobs for date, builds the
// timetable from the configured workday start and persists both. Provider
// absence or failure falls back to nearest neighbour; only failure is logged
// as degraded.
func (o *Orchestrator) OptimizeTechnicianDay(ctx context.Context, technicianID string, date time.Time, opts RouteOptions) (DayPlan, error) {
	tech, err := o.Store.GetTechnician(ctx, technicianID)
	if err != nil {
		return DayPlan{}, err
	}
	day := scoring.DayStart(date, o.location())
	jobs, err := o.Store.GetTechnicianJobsForDate(ctx, technicianID, day)
	if err != nil {
		return DayPlan{}, err
	}
	waypoints, err := toWaypoints(jobs)
	if err != nil {
		return DayPlan{}, err
	}
	start := startLocation(tech, waypoints)

	plan := DayPlan{}
	route, err := OptimizeRoute(ctx, o.Provider, start, waypoints, opts)
	if err != nil {
		var invalid *models.InvalidInputError
		if errors.As(err, &invalid) {
			return DayPlan{}, err
		}
		if !errors.Is(err, directions.ErrNotConfigured) {
			plan.Degraded = true
			metrics.DegradedEvents.WithLabelValues("optimize_route").Inc()
			o.Logger.Warn().Err(err).Str("op", "optimize_route").Str("technician_id", technicianID).Msg("directions unavailable, using nearest neighbour")
		}
		route = NearestNeighborRoute(start, waypoints, opts)
	}
	metrics.RouteOptimizations.WithLabelValues(route.Method).Inc()

	timer := &ProviderTimer{Provider: o.Provider, Logger: o.Logger.With().Str("technician_id", technicianID).Logger()}
	visits, err := ComputeSchedule(ctx, route.Waypoints, start, day.Add(o.workdayStart()), o.bufferMinutes(), timer)
	if err != nil {
		return DayPlan{}, err
	}
	if timer.Fallbacks > 0 {
		plan.Degraded = true
	}
	for i := range visits {
		visits[i].TechnicianID = technicianID
	}

	plan.Route = models.RouteOptimizationResult{
		TechnicianID:       technicianID,
		Date:               day,
		Waypoints:          route.Waypoints,
		TotalDistanceMiles: route.TotalDistanceMiles,
		TotalMinutes:       route.TotalMinutes,
		Polyline:           route.Polyline,
		Method:             route.Method,
		Savings:            route.Savings,
		OptimizedAt:        time.Now().UTC(),
	}
	plan.Visits = visits

	// Persist even when the caller has gone away.
	writeCtx := context.WithoutCancel(ctx)
	if err := o.Store.SaveRouteOptimizationResult(writeCtx, plan.Route); err != nil {
		return DayPlan{}, fmt.Errorf("save route: %w", err)
	}
	if err := o.Store.SaveScheduledVisits(writeCtx, visits); err != nil {
		return DayPlan{}, fmt.Errorf("save schedule: %w", err)
	}
	return plan, nil
}

// OptimizeAllForDate optimizes every technician of a company that has jobs
// on date, one unit of work per technician.
func (o *Orchestrator) OptimizeAllForDate(ctx context.Context, companyID string, date time.Time, opts RouteOptions) (BatchResult, error) {
	day := scoring.DayStart(date, o.location())
	ids, err := o.Store.ListTechniciansWithJobs(ctx, companyID, day)
	if err != nil {
		return BatchResult{}, err
	}

	items := make([]ItemResult, len(ids))
	var g errgroup.Group
	g.SetLimit(o.workers())
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			item := ItemResult{TechnicianID: id}
			plan, err := o.OptimizeTechnicianDay(ctx, id, day, opts)
			if err != nil {
				items[i] = o.failItem(item, err)
				return nil
			}
			item.Status = StatusOptimized
			item.Method = plan.Route.Method
			item.Degraded = plan.Degraded
			items[i] = item
			return nil
		})
	}
	_ = g.Wait()

	return summarize("optimize_routes", items), nil
}

func (o *Orchestrator) failItem(item ItemResult, err error) ItemResult {
	item.Status = StatusFailed
	item.Error = err.Error()
	o.Logger.Error().Err(err).Str("job_id", item.JobID).Str("technician_id", item.TechnicianID).Msg("batch item failed")
	return item
}

func (o *Orchestrator) workdayStart() time.Duration {
	if o.WorkdayStart <= 0 {
		return DefaultWorkdayStart
	}
	return o.WorkdayStart
}

func (o *Orchestrator) bufferMinutes() int {
	if o.BufferMinutes < 0 {
		return DefaultBufferMinutes
	}
	return o.BufferMinutes
}

func summarize(op string, items []ItemResult) BatchResult {
	counts := map[string]int{"total": len(items)}
	for _, item := range items {
		counts[item.Status]++
		metrics.BatchItems.WithLabelValues(op, item.Status).Inc()
	}
	return BatchResult{Items: items, Counts: counts}
}

func toWaypoints(jobs []models.ServiceJob) ([]models.Waypoint, error) {
	out := make([]models.Waypoint, 0, len(jobs))
	var fields []string
	for _, j := range jobs {
		if j.Site == nil {
			fields = append(fields, fmt.Sprintf("%s %s has no site location", j.Kind, j.ID))
			continue
		}
		out = append(out, models.Waypoint{
			JobID:            j.ID,
			JobKind:          j.Kind,
			Point:            *j.Site,
			EstimatedMinutes: j.EstimatedMinutes,
			Priority:         j.Priority,
		})
	}
	if len(fields) > 0 {
		return nil, &models.InvalidInputError{Entity: "route", Fields: fields}
	}
	return out, nil
}

// startLocation is where the day begins: home base, then the last known
// position, then the first job site.
func startLocation(tech models.Technician, waypoints []models.Waypoint) models.GeoPoint {
	switch {
	case tech.HomeBase != nil:
		return *tech.HomeBase
	case tech.CurrentLocation != nil:
		return *tech.CurrentLocation
	case len(waypoints) > 0:
		return waypoints[0].Point
	}
	return models.GeoPoint{}
}
