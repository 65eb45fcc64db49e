package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldserve/backend/internal/db"
	"github.com/fieldserve/backend/internal/directions"
	"github.com/fieldserve/backend/internal/models"
)

var day = time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)

func newOrchestrator(store *db.Memory, provider directions.Provider) *Orchestrator {
	return &Orchestrator{
		Store:         store,
		Engine:        engine,
		Provider:      provider,
		Logger:        zerolog.Nop(),
		BufferMinutes: 15,
		Workers:       4,
	}
}

func job(id, kind, company string, lat, lng float64, at time.Time) models.ServiceJob {
	return models.ServiceJob{
		ID:               id,
		Kind:             kind,
		CompanyID:        company,
		Site:             &models.GeoPoint{Lat: lat, Lng: lng},
		ScheduledDate:    at,
		EstimatedMinutes: 60,
		Skills:           []models.SkillRequirement{{Skill: "backflow", MinLevel: "intermediate"}},
	}
}

func seedCompany(store *db.Memory) {
	near := techAt("t-near", 0)
	far := techAt("t-far", 0.5)
	store.PutTechnician(near)
	store.PutTechnician(far)
}

func TestAutoAssignIsolatesItems(t *testing.T) {
	store := db.NewMemory()
	seedCompany(store)
	// Same id, different kinds: both must be handled independently.
	store.PutJob(job("100", models.JobKindInspection, "c1", site.Lat, site.Lng, day.Add(9*time.Hour)))
	store.PutJob(job("100", models.JobKindWorkOrder, "c1", site.Lat, site.Lng, day.Add(13*time.Hour)))
	bad := job("101", models.JobKindInspection, "c1", site.Lat, site.Lng, day.Add(10*time.Hour))
	bad.EstimatedMinutes = -1
	store.PutJob(bad)
	store.PutJob(job("200", models.JobKindInspection, "c2", site.Lat, site.Lng, day.Add(9*time.Hour)))

	o := newOrchestrator(store, directions.Unconfigured{})
	res, err := o.AutoAssign(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, res.Items, 3)
	assert.Equal(t, 2, res.Counts[StatusAssigned])
	assert.Equal(t, 1, res.Counts[StatusFailed])
	assert.Equal(t, 3, res.Counts["total"])

	for _, item := range res.Items {
		if item.JobID == "101" {
			assert.Equal(t, StatusFailed, item.Status)
			assert.Contains(t, item.Error, "invalid job")
			continue
		}
		assert.Equal(t, StatusAssigned, item.Status)
		assert.Equal(t, "t-near", item.TechnicianID)
	}

	assigned, err := store.GetJob(context.Background(), "100", models.JobKindWorkOrder)
	require.NoError(t, err)
	assert.Equal(t, "t-near", assigned.TechnicianID)
	assert.Len(t, store.Decisions(), 2)

	other, err := o.AutoAssign(context.Background(), "c2")
	require.NoError(t, err)
	require.Len(t, other.Items, 1)
	assert.Equal(t, StatusSkipped, other.Items[0].Status)
}

func TestAssignJobRecordsDecision(t *testing.T) {
	store := db.NewMemory()
	seedCompany(store)
	store.PutJob(job("300", models.JobKindWorkOrder, "c1", site.Lat, site.Lng, day.Add(9*time.Hour)))

	o := newOrchestrator(store, nil)
	decision, err := o.AssignJob(context.Background(), "300", models.JobKindWorkOrder)
	require.NoError(t, err)
	assert.Equal(t, "t-near", decision.TechnicianID)
	require.Len(t, decision.Alternatives, 1)
	assert.Equal(t, "t-far", decision.Alternatives[0].TechnicianID)
	assert.Equal(t, 100.0, decision.Breakdown.SkillMatch)

	logged := store.Decisions()
	require.Len(t, logged, 1)
	assert.Equal(t, decision.ID, logged[0].ID)

	_, err = o.AssignJob(context.Background(), "missing", models.JobKindWorkOrder)
	assert.True(t, errors.Is(err, db.ErrNotFound))
}

func TestScoreJobDoesNotPersist(t *testing.T) {
	store := db.NewMemory()
	seedCompany(store)
	store.PutJob(job("400", models.JobKindInspection, "c1", site.Lat, site.Lng, day.Add(9*time.Hour)))

	o := newOrchestrator(store, nil)
	ranked, err := o.ScoreJob(context.Background(), "400", models.JobKindInspection)
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, "t-near", ranked[0].TechnicianID)
	assert.GreaterOrEqual(t, ranked[0].Breakdown.Total, ranked[1].Breakdown.Total)

	j, _ := store.GetJob(context.Background(), "400", models.JobKindInspection)
	assert.Empty(t, j.TechnicianID)
	assert.Empty(t, store.Decisions())
}

func seedDay(store *db.Memory) {
	tech := techAt("t1", 0)
	tech.HomeBase = &models.GeoPoint{Lat: 40, Lng: -74}
	store.PutTechnician(tech)
	for _, j := range []models.ServiceJob{
		job("far", models.JobKindInspection, "c1", 40.3, -74, day.Add(9*time.Hour)),
		job("near", models.JobKindInspection, "c1", 40.1, -74, day.Add(10*time.Hour)),
		job("mid", models.JobKindWorkOrder, "c1", 40.2, -74, day.Add(11*time.Hour)),
	} {
		j.TechnicianID = "t1"
		store.PutJob(j)
	}
}

func TestOptimizeTechnicianDayWithoutProvider(t *testing.T) {
	store := db.NewMemory()
	seedDay(store)

	o := newOrchestrator(store, directions.Unconfigured{})
	plan, err := o.OptimizeTechnicianDay(context.Background(), "t1", day.Add(15*time.Hour), RouteOptions{})
	require.NoError(t, err)

	assert.False(t, plan.Degraded)
	assert.Equal(t, models.RouteMethodNearestNeighbor, plan.Route.Method)
	assert.Equal(t, []string{"near", "mid", "far"}, ids(plan.Route.Waypoints))
	require.NotNil(t, plan.Route.Savings)

	require.Len(t, plan.Visits, 3)
	// 6.9 miles from home at 30 mph.
	assert.Equal(t, day.Add(8*time.Hour+14*time.Minute), plan.Visits[0].Start)
	for i, v := range plan.Visits {
		assert.Equal(t, i+1, v.Sequence)
		assert.Equal(t, "t1", v.TechnicianID)
		if i > 0 {
			assert.False(t, plan.Visits[i-1].End.After(v.Start))
		}
	}

	stored, ok := store.Route("t1", day)
	require.True(t, ok)
	assert.Equal(t, plan.Route.Method, stored.Method)
	visit, ok := store.Visit("mid", models.JobKindWorkOrder)
	require.True(t, ok)
	assert.Equal(t, 2, visit.Sequence)
}

func TestOptimizeTechnicianDayUsesProvider(t *testing.T) {
	store := db.NewMemory()
	seedDay(store)

	// Movable stops are [far, near]; "mid" is the fixed destination.
	p := &fakeProvider{order: []int{1, 0}, travel: 20, optimized: directions.RouteResponse{DistanceMeters: 40000, DurationSeconds: 3600}}
	o := newOrchestrator(store, p)
	plan, err := o.OptimizeTechnicianDay(context.Background(), "t1", day, RouteOptions{})
	require.NoError(t, err)

	assert.False(t, plan.Degraded)
	assert.Equal(t, models.RouteMethodProvider, plan.Route.Method)
	assert.Equal(t, []string{"near", "far", "mid"}, ids(plan.Route.Waypoints))
	assert.Equal(t, 60, plan.Route.TotalMinutes)
	assert.Equal(t, day.Add(8*time.Hour+20*time.Minute), plan.Visits[0].Start)
	assert.Equal(t, 3, p.travelCalls)
}

func TestOptimizeTechnicianDayDegradesOnProviderFailure(t *testing.T) {
	store := db.NewMemory()
	seedDay(store)

	o := newOrchestrator(store, &fakeProvider{err: errors.New("503")})
	plan, err := o.OptimizeTechnicianDay(context.Background(), "t1", day, RouteOptions{})
	require.NoError(t, err)
	assert.True(t, plan.Degraded)
	assert.Equal(t, models.RouteMethodNearestNeighbor, plan.Route.Method)
	assert.Len(t, plan.Visits, 3)
}

func TestOptimizeTechnicianDayFallsBackWhenCancelled(t *testing.T) {
	store := db.NewMemory()
	seedDay(store)

	provider := directions.NewResilient(&fakeProvider{order: []int{0, 1}, travel: 5}, time.Second, 0, zerolog.Nop())
	o := newOrchestrator(store, provider)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	plan, err := o.OptimizeTechnicianDay(ctx, "t1", day, RouteOptions{})
	require.NoError(t, err)
	assert.True(t, plan.Degraded)
	assert.Equal(t, models.RouteMethodNearestNeighbor, plan.Route.Method)
	_, ok := store.Route("t1", day)
	assert.True(t, ok)
}

func TestOptimizeTechnicianDayUsesConfiguredTimezone(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	store := db.NewMemory()
	tech := techAt("t1", 0)
	store.PutTechnician(tech)
	// 23:30 in New York on the 12th is already the 13th in UTC.
	late := job("late", models.JobKindInspection, "c1", site.Lat, site.Lng, time.Date(2025, 3, 13, 3, 30, 0, 0, time.UTC))
	late.TechnicianID = "t1"
	store.PutJob(late)

	o := newOrchestrator(store, nil)
	o.Location = ny
	o.WorkdayStart = 9 * time.Hour
	plan, err := o.OptimizeTechnicianDay(context.Background(), "t1", time.Date(2025, 3, 12, 12, 0, 0, 0, ny), RouteOptions{})
	require.NoError(t, err)
	require.Len(t, plan.Visits, 1)
	assert.True(t, plan.Visits[0].Start.Equal(time.Date(2025, 3, 12, 9, 0, 0, 0, ny)))
}

func TestOptimizeAllForDate(t *testing.T) {
	store := db.NewMemory()
	seedDay(store)
	other := techAt("t2", 0)
	store.PutTechnician(other)
	j := job("solo", models.JobKindWorkOrder, "c1", site.Lat, site.Lng, day.Add(9*time.Hour))
	j.TechnicianID = "t2"
	store.PutJob(j)
	ghost := job("ghost", models.JobKindWorkOrder, "c1", site.Lat, site.Lng, day.Add(9*time.Hour))
	ghost.TechnicianID = "t-unknown"
	store.PutJob(ghost)

	o := newOrchestrator(store, directions.Unconfigured{})
	res, err := o.OptimizeAllForDate(context.Background(), "c1", day, RouteOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Counts[StatusOptimized])
	assert.Equal(t, 1, res.Counts[StatusFailed])

	methods := map[string]string{}
	for _, item := range res.Items {
		methods[item.TechnicianID] = item.Method
	}
	assert.Equal(t, models.RouteMethodNearestNeighbor, methods["t1"])
	assert.Equal(t, models.RouteMethodNone, methods["t2"])
}
