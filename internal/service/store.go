package service

import (
	"context"
	"time"

	"github.com/fieldserve/backend/internal/models"
)

// Store is the persistence boundary. The orchestrator reads every input up
// front through it and hands plain values to the pure components.
type Store interface {
	GetEligibleTechnicians(ctx context.Context, companyID string, date time.Time) ([]models.Technician, error)
	GetJobRequirements(ctx context.Context, jobID, kind string) ([]models.SkillRequirement, error)
	GetUnassignedJobs(ctx context.Context, companyID string) ([]models.ServiceJob, error)
	GetTechnicianJobsForDate(ctx context.Context, technicianID string, date time.Time) ([]models.ServiceJob, error)
	AssignJob(ctx context.Context, jobID, kind, technicianID string) error
	SaveScheduledVisits(ctx context.Context, visits []models.ScheduledVisit) error
	SaveRouteOptimizationResult(ctx context.Context, result models.RouteOptimizationResult) error
	AppendAssignmentLog(ctx context.Context, decision models.AssignmentDecision) error

	GetJob(ctx context.Context, jobID, kind string) (models.ServiceJob, error)
	GetTechnician(ctx context.Context, technicianID string) (models.Technician, error)
	// ListTechniciansWithJobs returns ids of technicians holding at least one
	// job on date.
	ListTechniciansWithJobs(ctx context.Context, companyID string, date time.Time) ([]string, error)
	Ping(ctx context.Context) error
}
