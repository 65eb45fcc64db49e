package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fieldserve/backend/internal/models"
	"github.com/fieldserve/backend/internal/service"
)

var (
	_ service.Store = (*Memory)(nil)
	_ service.Store = (*Store)(nil)
)

func TestMemoryDerivesBookingsFromAssignedJobs(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	day := time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)
	m.PutTechnician(models.Technician{ID: "t1", CompanyID: "c1"})
	m.PutTechnician(models.Technician{ID: "t2", CompanyID: "c2"})
	m.PutJob(models.ServiceJob{ID: "j1", Kind: models.JobKindInspection, CompanyID: "c1", ScheduledDate: day.Add(9 * time.Hour)})
	m.PutJob(models.ServiceJob{ID: "j2", Kind: models.JobKindWorkOrder, CompanyID: "c1", ScheduledDate: day.Add(30 * 24 * time.Hour)})

	if err := m.AssignJob(ctx, "j1", models.JobKindInspection, "t1"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := m.AssignJob(ctx, "j2", models.JobKindWorkOrder, "t1"); err != nil {
		t.Fatalf("assign: %v", err)
	}

	techs, err := m.GetEligibleTechnicians(ctx, "c1", day)
	if err != nil {
		t.Fatalf("eligible: %v", err)
	}
	if len(techs) != 1 || techs[0].ID != "t1" {
		t.Fatalf("expected only t1, got %+v", techs)
	}
	if len(techs[0].Bookings) != 1 || techs[0].Bookings[0].JobID != "j1" {
		t.Fatalf("expected the in-window booking only, got %+v", techs[0].Bookings)
	}

	m.SetActive("t1", false)
	techs, _ = m.GetEligibleTechnicians(ctx, "c1", day)
	if len(techs) != 0 {
		t.Fatalf("inactive technician must not be eligible")
	}
}

func TestMemoryJobsForDateAndUnassigned(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	day := time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)
	m.PutJob(models.ServiceJob{ID: "a", Kind: models.JobKindInspection, CompanyID: "c1", ScheduledDate: day.Add(10 * time.Hour), TechnicianID: "t1"})
	m.PutJob(models.ServiceJob{ID: "b", Kind: models.JobKindInspection, CompanyID: "c1", ScheduledDate: day.Add(8 * time.Hour), TechnicianID: "t1"})
	m.PutJob(models.ServiceJob{ID: "c", Kind: models.JobKindInspection, CompanyID: "c1", ScheduledDate: day.Add(26 * time.Hour), TechnicianID: "t1"})
	m.PutJob(models.ServiceJob{ID: "d", Kind: models.JobKindWorkOrder, CompanyID: "c1", ScheduledDate: day})

	jobs, _ := m.GetTechnicianJobsForDate(ctx, "t1", day)
	if len(jobs) != 2 || jobs[0].ID != "b" || jobs[1].ID != "a" {
		t.Fatalf("unexpected day jobs: %+v", jobs)
	}
	unassigned, _ := m.GetUnassignedJobs(ctx, "c1")
	if len(unassigned) != 1 || unassigned[0].ID != "d" {
		t.Fatalf("unexpected unassigned jobs: %+v", unassigned)
	}
	ids, _ := m.ListTechniciansWithJobs(ctx, "c1", day)
	if len(ids) != 1 || ids[0] != "t1" {
		t.Fatalf("unexpected technicians: %v", ids)
	}
}

func TestMemoryNotFound(t *testing.T) {
	m := NewMemory()
	if _, err := m.GetJob(context.Background(), "x", models.JobKindInspection); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := m.AssignJob(context.Background(), "x", models.JobKindInspection, "t"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
