package models

import "time"

const (
	JobKindInspection = "inspection"
	JobKindWorkOrder  = "work_order"
)

const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

const (
	RouteMethodNone            = "none"
	RouteMethodProvider        = "provider"
	RouteMethodNearestNeighbor = "nearest_neighbor"
)

type GeoPoint struct {
	Lat     float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng     float64 `json:"lng" validate:"gte=-180,lte=180"`
	Address string  `json:"address,omitempty"`
}

type SkillRequirement struct {
	Skill    string `json:"skill" validate:"required"`
	MinLevel string `json:"min_level,omitempty"`
	Priority int    `json:"priority"`
}

type ServiceJob struct {
	ID               string             `json:"id" validate:"required"`
	Kind             string             `json:"kind" validate:"required,oneof=inspection work_order"`
	CompanyID        string             `json:"company_id"`
	Site             *GeoPoint          `json:"site" validate:"omitempty"`
	Skills           []SkillRequirement `json:"skills,omitempty" validate:"dive"`
	ScheduledDate    time.Time          `json:"scheduled_date"`
	EstimatedMinutes int                `json:"estimated_minutes" validate:"gte=0"`
	Priority         int                `json:"priority"`
	TechnicianID     string             `json:"technician_id,omitempty"`
}

// Key identifies a job across kinds; inspection and work order ids may collide.
func (j ServiceJob) Key() JobKey {
	return JobKey{ID: j.ID, Kind: j.Kind}
}

type JobKey struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

type TechnicianSkill struct {
	Proficiency string `json:"proficiency"`
	Active      bool   `json:"active"`
}

// Booking is an existing confirmed job on a technician's calendar.
type Booking struct {
	JobID   string    `json:"job_id"`
	JobKind string    `json:"job_kind"`
	Date    time.Time `json:"date"`
}

type Performance struct {
	CompletionRate       *float64 `json:"completion_rate,omitempty" validate:"omitempty,gte=0,lte=100"`
	QualityScore         *float64 `json:"quality_score,omitempty" validate:"omitempty,gte=0,lte=100"`
	CustomerSatisfaction *float64 `json:"customer_satisfaction,omitempty" validate:"omitempty,gte=0,lte=100"`
}

type Technician struct {
	ID              string                     `json:"id" validate:"required"`
	CompanyID       string                     `json:"company_id"`
	Name            string                     `json:"name"`
	Role            string                     `json:"role"`
	CurrentLocation *GeoPoint                  `json:"current_location,omitempty" validate:"omitempty"`
	HomeBase        *GeoPoint                  `json:"home_base,omitempty" validate:"omitempty"`
	Skills          map[string]TechnicianSkill `json:"skills"`
	Bookings        []Booking                  `json:"bookings,omitempty"`
	Performance     Performance                `json:"performance"`
}

// Location returns the last known position, falling back to the home base.
func (t Technician) Location() *GeoPoint {
	if t.CurrentLocation != nil {
		return t.CurrentLocation
	}
	return t.HomeBase
}

type ScoreBreakdown struct {
	SkillMatch    float64  `json:"skill_match"`
	Proximity     float64  `json:"proximity"`
	Availability  float64  `json:"availability"`
	Workload      float64  `json:"workload"`
	Performance   float64  `json:"performance"`
	Total         float64  `json:"total"`
	Reasons       []string `json:"reasons"`
	DistanceMiles *float64 `json:"distance_miles,omitempty"`
}

type Alternative struct {
	TechnicianID string  `json:"technician_id"`
	Score        float64 `json:"score"`
}

type AssignmentDecision struct {
	ID             string         `json:"id"`
	JobID          string         `json:"job_id"`
	JobKind        string         `json:"job_kind"`
	TechnicianID   string         `json:"technician_id"`
	Score          float64        `json:"score"`
	Breakdown      ScoreBreakdown `json:"breakdown"`
	Alternatives   []Alternative  `json:"alternatives"`
	Confidence     string         `json:"confidence"`
	Reason         string         `json:"reason"`
	CandidateCount int            `json:"candidate_count"`
	DecidedAt      time.Time      `json:"decided_at"`
}

type Waypoint struct {
	JobID            string   `json:"job_id"`
	JobKind          string   `json:"job_kind"`
	Point            GeoPoint `json:"point"`
	EstimatedMinutes int      `json:"estimated_minutes"`
	Priority         int      `json:"priority"`
}

func (w Waypoint) Key() JobKey {
	return JobKey{ID: w.JobID, Kind: w.JobKind}
}

type ScheduledVisit struct {
	JobID         string    `json:"job_id"`
	JobKind       string    `json:"job_kind"`
	TechnicianID  string    `json:"technician_id,omitempty"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	TravelMinutes int       `json:"travel_minutes"`
	Sequence      int       `json:"sequence"`
}

type Savings struct {
	DistanceSavedMiles float64 `json:"distance_saved_miles"`
	TimeSavedMinutes   int     `json:"time_saved_minutes"`
	PercentageSaved    float64 `json:"percentage_saved"`
}

type RouteOptimizationResult struct {
	TechnicianID       string     `json:"technician_id"`
	Date               time.Time  `json:"date"`
	Waypoints          []Waypoint `json:"waypoints"`
	TotalDistanceMiles float64    `json:"total_distance_miles"`
	TotalMinutes       int        `json:"total_minutes"`
	Polyline           string     `json:"polyline,omitempty"`
	Method             string     `json:"method"`
	Savings            *Savings   `json:"savings,omitempty"`
	OptimizedAt        time.Time  `json:"optimized_at"`
}
