package db

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldserve/backend/internal/models"
)

// ErrNotFound is returned when a job or technician does not exist.
var ErrNotFound = errors.New("not found")

//go:embed schema.sql
var schemaSQL string

// bookingWindow bounds the bookings loaded per technician. It covers the
// Sunday-aligned week around a date in any timezone.
const bookingWindow = 8 * 24 * time.Hour

type Store struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

// Migrate applies the embedded schema. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, schemaSQL)
	return err
}

func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const technicianColumns = `id, company_id, name, role,
	current_lat, current_lng, current_address, home_lat, home_lng, home_address,
	completion_rate, quality_score, customer_satisfaction`

func scanTechnician(row pgx.Row) (models.Technician, error) {
	var (
		t                       models.Technician
		curLat, curLng          *float64
		homeLat, homeLng        *float64
		curAddress, homeAddress *string
	)
	err := row.Scan(&t.ID, &t.CompanyID, &t.Name, &t.Role,
		&curLat, &curLng, &curAddress, &homeLat, &homeLng, &homeAddress,
		&t.Performance.CompletionRate, &t.Performance.QualityScore, &t.Performance.CustomerSatisfaction)
	if err != nil {
		return models.Technician{}, err
	}
	t.CurrentLocation = point(curLat, curLng, curAddress)
	t.HomeBase = point(homeLat, homeLng, homeAddress)
	return t, nil
}

func point(lat, lng *float64, address *string) *models.GeoPoint {
	if lat == nil || lng == nil {
		return nil
	}
	p := &models.GeoPoint{Lat: *lat, Lng: *lng}
	if address != nil {
		p.Address = *address
	}
	return p
}

// GetEligibleTechnicians returns active technicians of a company with skills
// and the bookings around date loaded.
func (s *Store) GetEligibleTechnicians(ctx context.Context, companyID string, date time.Time) ([]models.Technician, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+technicianColumns+` FROM technicians WHERE company_id = $1 AND active ORDER BY id`, companyID)
	if err != nil {
		return nil, err
	}
	techs, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (models.Technician, error) {
		return scanTechnician(r)
	})
	if err != nil {
		return nil, err
	}
	if len(techs) == 0 {
		return techs, nil
	}

	ids := make([]string, len(techs))
	index := make(map[string]int, len(techs))
	for i, t := range techs {
		ids[i] = t.ID
		index[t.ID] = i
	}

	skills, err := s.skillsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for id, set := range skills {
		techs[index[id]].Skills = set
	}

	bookRows, err := s.Pool.Query(ctx, `
		SELECT technician_id, id, kind, scheduled_date
		FROM service_jobs
		WHERE technician_id = ANY($1) AND status <> 'cancelled'
		  AND scheduled_date >= $2 AND scheduled_date < $3
		ORDER BY scheduled_date, id`, ids, date.Add(-bookingWindow), date.Add(bookingWindow))
	if err != nil {
		return nil, err
	}
	defer bookRows.Close()
	for bookRows.Next() {
		var techID string
		var b models.Booking
		if err := bookRows.Scan(&techID, &b.JobID, &b.JobKind, &b.Date); err != nil {
			return nil, err
		}
		i := index[techID]
		techs[i].Bookings = append(techs[i].Bookings, b)
	}
	return techs, bookRows.Err()
}

func (s *Store) skillsFor(ctx context.Context, ids []string) (map[string]map[string]models.TechnicianSkill, error) {
	rows, err := s.Pool.Query(ctx, `SELECT technician_id, skill, proficiency, active FROM technician_skills WHERE technician_id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]map[string]models.TechnicianSkill{}
	for rows.Next() {
		var techID, skill string
		var ts models.TechnicianSkill
		if err := rows.Scan(&techID, &skill, &ts.Proficiency, &ts.Active); err != nil {
			return nil, err
		}
		if out[techID] == nil {
			out[techID] = map[string]models.TechnicianSkill{}
		}
		out[techID][skill] = ts
	}
	return out, rows.Err()
}

func (s *Store) GetTechnician(ctx context.Context, technicianID string) (models.Technician, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+technicianColumns+` FROM technicians WHERE id = $1`, technicianID)
	t, err := scanTechnician(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Technician{}, fmt.Errorf("technician %s: %w", technicianID, ErrNotFound)
	}
	if err != nil {
		return models.Technician{}, err
	}
	skills, err := s.skillsFor(ctx, []string{t.ID})
	if err != nil {
		return models.Technician{}, err
	}
	t.Skills = skills[t.ID]
	return t, nil
}

func (s *Store) GetJobRequirements(ctx context.Context, jobID, kind string) ([]models.SkillRequirement, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT skill, min_level, priority
		FROM job_skill_requirements
		WHERE job_id = $1 AND job_kind = $2
		ORDER BY priority DESC, skill`, jobID, kind)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (models.SkillRequirement, error) {
		var req models.SkillRequirement
		err := r.Scan(&req.Skill, &req.MinLevel, &req.Priority)
		return req, err
	})
}

const jobColumns = `id, kind, company_id, site_lat, site_lng, site_address,
	scheduled_date, estimated_minutes, priority, technician_id`

func scanJob(row pgx.Row) (models.ServiceJob, error) {
	var (
		j      models.ServiceJob
		site   models.GeoPoint
		techID *string
	)
	if err := row.Scan(&j.ID, &j.Kind, &j.CompanyID, &site.Lat, &site.Lng, &site.Address,
		&j.ScheduledDate, &j.EstimatedMinutes, &j.Priority, &techID); err != nil {
		return models.ServiceJob{}, err
	}
	j.Site = &site
	if techID != nil {
		j.TechnicianID = *techID
	}
	return j, nil
}

func (s *Store) queryJobs(ctx context.Context, query string, args ...any) ([]models.ServiceJob, error) {
	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (models.ServiceJob, error) {
		return scanJob(r)
	})
}

func (s *Store) GetUnassignedJobs(ctx context.Context, companyID string) ([]models.ServiceJob, error) {
	return s.queryJobs(ctx, `SELECT `+jobColumns+` FROM service_jobs
		WHERE company_id = $1 AND technician_id IS NULL AND status NOT IN ('cancelled', 'completed')
		ORDER BY scheduled_date, priority DESC, kind, id`, companyID)
}

// GetTechnicianJobsForDate expects date at the start of the day in the
// scheduling timezone.
func (s *Store) GetTechnicianJobsForDate(ctx context.Context, technicianID string, date time.Time) ([]models.ServiceJob, error) {
	return s.queryJobs(ctx, `SELECT `+jobColumns+` FROM service_jobs
		WHERE technician_id = $1 AND status <> 'cancelled'
		  AND scheduled_date >= $2 AND scheduled_date < $3
		ORDER BY scheduled_date, priority DESC, kind, id`, technicianID, date, date.AddDate(0, 0, 1))
}

func (s *Store) GetJob(ctx context.Context, jobID, kind string) (models.ServiceJob, error) {
	j, err := scanJob(s.Pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM service_jobs WHERE id = $1 AND kind = $2`, jobID, kind))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ServiceJob{}, fmt.Errorf("%s %s: %w", kind, jobID, ErrNotFound)
	}
	if err != nil {
		return models.ServiceJob{}, err
	}
	j.Skills, err = s.GetJobRequirements(ctx, jobID, kind)
	return j, err
}

func (s *Store) ListTechniciansWithJobs(ctx context.Context, companyID string, date time.Time) ([]string, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT DISTINCT technician_id FROM service_jobs
		WHERE company_id = $1 AND technician_id IS NOT NULL AND status <> 'cancelled'
		  AND scheduled_date >= $2 AND scheduled_date < $3
		ORDER BY technician_id`, companyID, date, date.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *Store) AssignJob(ctx context.Context, jobID, kind, technicianID string) error {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE service_jobs SET technician_id = $1, status = 'scheduled'
		WHERE id = $2 AND kind = $3`, technicianID, jobID, kind)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %s: %w", kind, jobID, ErrNotFound)
	}
	return nil
}

// SaveScheduledVisits replaces any previous schedule of the given jobs.
func (s *Store) SaveScheduledVisits(ctx context.Context, visits []models.ScheduledVisit) error {
	if len(visits) == 0 {
		return nil
	}
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, v := range visits {
			batch.Queue(`
				INSERT INTO scheduled_visits (job_id, job_kind, technician_id, start_at, end_at, travel_minutes, sequence)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (job_id, job_kind) DO UPDATE SET
					technician_id = EXCLUDED.technician_id,
					start_at = EXCLUDED.start_at,
					end_at = EXCLUDED.end_at,
					travel_minutes = EXCLUDED.travel_minutes,
					sequence = EXCLUDED.sequence`,
				v.JobID, v.JobKind, v.TechnicianID, v.Start, v.End, v.TravelMinutes, v.Sequence)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

func (s *Store) SaveRouteOptimizationResult(ctx context.Context, result models.RouteOptimizationResult) error {
	waypoints, err := json.Marshal(result.Waypoints)
	if err != nil {
		return err
	}
	var savings []byte
	if result.Savings != nil {
		if savings, err = json.Marshal(result.Savings); err != nil {
			return err
		}
	}
	_, err = s.Pool.Exec(ctx, `
		INSERT INTO route_optimizations (technician_id, route_date, method, total_distance_miles, total_minutes, polyline, waypoints, savings, optimized_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (technician_id, route_date) DO UPDATE SET
			method = EXCLUDED.method,
			total_distance_miles = EXCLUDED.total_distance_miles,
			total_minutes = EXCLUDED.total_minutes,
			polyline = EXCLUDED.polyline,
			waypoints = EXCLUDED.waypoints,
			savings = EXCLUDED.savings,
			optimized_at = EXCLUDED.optimized_at`,
		result.TechnicianID, result.Date, result.Method, result.TotalDistanceMiles, result.TotalMinutes,
		result.Polyline, waypoints, savings, result.OptimizedAt)
	return err
}

func (s *Store) AppendAssignmentLog(ctx context.Context, d models.AssignmentDecision) error {
	breakdown, err := json.Marshal(d.Breakdown)
	if err != nil {
		return err
	}
	alternatives, err := json.Marshal(d.Alternatives)
	if err != nil {
		return err
	}
	_, err = s.Pool.Exec(ctx, `
		INSERT INTO assignment_logs (id, job_id, job_kind, technician_id, score, confidence, reason, breakdown, alternatives, candidate_count, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		d.ID, d.JobID, d.JobKind, d.TechnicianID, d.Score, d.Confidence, d.Reason, breakdown, alternatives, d.CandidateCount, d.DecidedAt)
	return err
}
