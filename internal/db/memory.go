package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fieldserve/backend/internal/models"
)

// Memory is an in-memory store used when no DATABASE_URL is set and in tests.
// Bookings are derived from assigned jobs so that scoring sees the same
// picture the SQL store would return.
type Memory struct {
	mu        sync.Mutex
	techs     map[string]models.Technician
	inactive  map[string]bool
	jobs      map[models.JobKey]models.ServiceJob
	visits    map[models.JobKey]models.ScheduledVisit
	routes    map[routeKey]models.RouteOptimizationResult
	decisions []models.AssignmentDecision
}

type routeKey struct {
	technicianID string
	date         int64
}

func NewMemory() *Memory {
	return &Memory{
		techs:    map[string]models.Technician{},
		inactive: map[string]bool{},
		jobs:     map[models.JobKey]models.ServiceJob{},
		visits:   map[models.JobKey]models.ScheduledVisit{},
		routes:   map[routeKey]models.RouteOptimizationResult{},
	}
}

func (m *Memory) PutTechnician(t models.Technician) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.techs[t.ID] = t
}

func (m *Memory) SetActive(technicianID string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inactive[technicianID] = !active
}

func (m *Memory) PutJob(j models.ServiceJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[j.Key()] = j
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) GetEligibleTechnicians(ctx context.Context, companyID string, date time.Time) ([]models.Technician, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Technician
	for _, t := range m.techs {
		if t.CompanyID != companyID || m.inactive[t.ID] {
			continue
		}
		t.Bookings = m.bookingsLocked(t.ID, date.Add(-bookingWindow), date.Add(bookingWindow))
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) bookingsLocked(technicianID string, from, to time.Time) []models.Booking {
	var out []models.Booking
	for _, j := range m.jobs {
		if j.TechnicianID != technicianID || j.ScheduledDate.Before(from) || !j.ScheduledDate.Before(to) {
			continue
		}
		out = append(out, models.Booking{JobID: j.ID, JobKind: j.Kind, Date: j.ScheduledDate})
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Date.Equal(out[b].Date) {
			return out[a].JobID < out[b].JobID
		}
		return out[a].Date.Before(out[b].Date)
	})
	return out
}

func (m *Memory) GetTechnician(ctx context.Context, technicianID string) (models.Technician, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.techs[technicianID]
	if !ok {
		return models.Technician{}, fmt.Errorf("technician %s: %w", technicianID, ErrNotFound)
	}
	return t, nil
}

func (m *Memory) GetJobRequirements(ctx context.Context, jobID, kind string) ([]models.SkillRequirement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[models.JobKey{ID: jobID, Kind: kind}]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", kind, jobID, ErrNotFound)
	}
	reqs := append([]models.SkillRequirement(nil), j.Skills...)
	sort.SliceStable(reqs, func(a, b int) bool { return reqs[a].Priority > reqs[b].Priority })
	return reqs, nil
}

func (m *Memory) GetJob(ctx context.Context, jobID, kind string) (models.ServiceJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[models.JobKey{ID: jobID, Kind: kind}]
	if !ok {
		return models.ServiceJob{}, fmt.Errorf("%s %s: %w", kind, jobID, ErrNotFound)
	}
	return j, nil
}

func (m *Memory) GetUnassignedJobs(ctx context.Context, companyID string) ([]models.ServiceJob, error) {
	return m.filterJobs(func(j models.ServiceJob) bool {
		return j.CompanyID == companyID && j.TechnicianID == ""
	}), nil
}

func (m *Memory) GetTechnicianJobsForDate(ctx context.Context, technicianID string, date time.Time) ([]models.ServiceJob, error) {
	end := date.AddDate(0, 0, 1)
	return m.filterJobs(func(j models.ServiceJob) bool {
		return j.TechnicianID == technicianID && !j.ScheduledDate.Before(date) && j.ScheduledDate.Before(end)
	}), nil
}

func (m *Memory) ListTechniciansWithJobs(ctx context.Context, companyID string, date time.Time) ([]string, error) {
	end := date.AddDate(0, 0, 1)
	jobs := m.filterJobs(func(j models.ServiceJob) bool {
		return j.CompanyID == companyID && j.TechnicianID != "" && !j.ScheduledDate.Before(date) && j.ScheduledDate.Before(end)
	})
	seen := map[string]bool{}
	var ids []string
	for _, j := range jobs {
		if !seen[j.TechnicianID] {
			seen[j.TechnicianID] = true
			ids = append(ids, j.TechnicianID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// filterJobs returns matches in scheduled order, priority first within the
// same instant.
func (m *Memory) filterJobs(keep func(models.ServiceJob) bool) []models.ServiceJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ServiceJob
	for _, j := range m.jobs {
		if keep(j) {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		x, y := out[a], out[b]
		switch {
		case !x.ScheduledDate.Equal(y.ScheduledDate):
			return x.ScheduledDate.Before(y.ScheduledDate)
		case x.Priority != y.Priority:
			return x.Priority > y.Priority
		case x.Kind != y.Kind:
			return x.Kind < y.Kind
		default:
			return x.ID < y.ID
		}
	})
	return out
}

func (m *Memory) AssignJob(ctx context.Context, jobID, kind, technicianID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := models.JobKey{ID: jobID, Kind: kind}
	j, ok := m.jobs[key]
	if !ok {
		return fmt.Errorf("%s %s: %w", kind, jobID, ErrNotFound)
	}
	j.TechnicianID = technicianID
	m.jobs[key] = j
	return nil
}

func (m *Memory) SaveScheduledVisits(ctx context.Context, visits []models.ScheduledVisit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range visits {
		m.visits[models.JobKey{ID: v.JobID, Kind: v.JobKind}] = v
	}
	return nil
}

func (m *Memory) SaveRouteOptimizationResult(ctx context.Context, result models.RouteOptimizationResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[routeKey{technicianID: result.TechnicianID, date: result.Date.Unix()}] = result
	return nil
}

func (m *Memory) AppendAssignmentLog(ctx context.Context, d models.AssignmentDecision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions = append(m.decisions, d)
	return nil
}

// Decisions returns a copy of the assignment log.
func (m *Memory) Decisions() []models.AssignmentDecision {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.AssignmentDecision(nil), m.decisions...)
}

// Visit returns the stored schedule entry for a job.
func (m *Memory) Visit(jobID, kind string) (models.ScheduledVisit, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.visits[models.JobKey{ID: jobID, Kind: kind}]
	return v, ok
}

func (m *Memory) Route(technicianID string, date time.Time) (models.RouteOptimizationResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routes[routeKey{technicianID: technicianID, date: date.Unix()}]
	return r, ok
}
