package service

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/fieldserve/backend/internal/models"
	"github.com/fieldserve/backend/internal/scoring"
)

var (
	engine  = scoring.MustEngine(scoring.DefaultWeights())
	jobDate = time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC)
	site    = models.GeoPoint{Lat: 40.7128, Lng: -74.0060}
)

func testJob() models.ServiceJob {
	s := site
	return models.ServiceJob{
		ID:               "job-1",
		Kind:             models.JobKindInspection,
		CompanyID:        "c1",
		Site:             &s,
		ScheduledDate:    jobDate,
		EstimatedMinutes: 60,
	}
}

// techAt places a technician latOffset degrees north of the site; one degree
// is roughly 69 miles.
func techAt(id string, latOffset float64) models.Technician {
	return models.Technician{
		ID:              id,
		CompanyID:       "c1",
		CurrentLocation: &models.GeoPoint{Lat: site.Lat + latOffset, Lng: site.Lng},
		Skills:          map[string]models.TechnicianSkill{"backflow": {Proficiency: "expert", Active: true}},
	}
}

func TestSelectBestTechnicianRanksAndBuildsDecision(t *testing.T) {
	candidates := []models.Technician{
		techAt("far", 1.0),
		techAt("near", 0),
		techAt("mid", 0.2),
	}
	decision, err := SelectBestTechnician(engine, testJob(), candidates, nil, scoring.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.TechnicianID != "near" {
		t.Fatalf("expected near to win, got %s", decision.TechnicianID)
	}
	if len(decision.Alternatives) != 2 || decision.Alternatives[0].TechnicianID != "mid" || decision.Alternatives[1].TechnicianID != "far" {
		t.Fatalf("unexpected alternatives: %+v", decision.Alternatives)
	}
	if decision.ID == "" || decision.CandidateCount != 3 || decision.Reason == "" {
		t.Fatalf("decision missing audit fields: %+v", decision)
	}
	if decision.Score != decision.Breakdown.Total {
		t.Fatalf("score and breakdown disagree")
	}
}

func TestSelectBestTechnicianTieBreaksById(t *testing.T) {
	candidates := []models.Technician{techAt("b", 0), techAt("a", 0), techAt("c", 0)}
	decision, err := SelectBestTechnician(engine, testJob(), candidates, nil, scoring.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.TechnicianID != "a" || decision.Alternatives[0].TechnicianID != "b" {
		t.Fatalf("expected id order on ties, got %s then %+v", decision.TechnicianID, decision.Alternatives)
	}
	if decision.Confidence != models.ConfidenceLow {
		t.Fatalf("expected low confidence for a tie, got %s", decision.Confidence)
	}
}

func TestSelectBestTechnicianNoCandidates(t *testing.T) {
	_, err := SelectBestTechnician(engine, testJob(), nil, nil, scoring.Options{})
	if !errors.Is(err, ErrNoCandidate) {
		t.Fatalf("expected ErrNoCandidate, got %v", err)
	}
	var nc *NoCandidateError
	if !errors.As(err, &nc) || nc.JobID != "job-1" {
		t.Fatalf("expected NoCandidateError for job-1, got %v", err)
	}
}

func TestSelectBestTechnicianRejectsInvalidInput(t *testing.T) {
	job := testJob()
	job.EstimatedMinutes = -5
	_, err := SelectBestTechnician(engine, job, []models.Technician{techAt("a", 0)}, nil, scoring.Options{})
	var invalid *models.InvalidInputError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidInputError, got %v", err)
	}

	tech := techAt("a", 0)
	tech.CurrentLocation.Lat = 120
	_, err = SelectBestTechnician(engine, testJob(), []models.Technician{tech}, nil, scoring.Options{})
	if !errors.As(err, &invalid) || invalid.Entity != "technician" {
		t.Fatalf("expected technician InvalidInputError, got %v", err)
	}
}

func TestConfidence(t *testing.T) {
	cases := []struct {
		best float64
		alts []models.Alternative
		want string
	}{
		{85, []models.Alternative{{Score: 60}}, models.ConfidenceHigh},
		{85, nil, models.ConfidenceHigh},
		{85, []models.Alternative{{Score: 65}}, models.ConfidenceHigh},
		{85, []models.Alternative{{Score: 75}}, models.ConfidenceMedium},
		{80.3, []models.Alternative{{Score: 70.3}}, models.ConfidenceMedium},
		{85, []models.Alternative{{Score: 75.01}}, models.ConfidenceLow},
	}
	for _, c := range cases {
		if got := confidence(c.best, c.alts); got != c.want {
			t.Fatalf("confidence(%v, %+v) = %s, want %s", c.best, c.alts, got, c.want)
		}
	}
}

func TestAlternativesProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("alternatives has min(N-1,3) entries sorted descending", prop.ForAll(
		func(offsets []float64) bool {
			if len(offsets) == 0 {
				return true
			}
			candidates := make([]models.Technician, len(offsets))
			for i, off := range offsets {
				candidates[i] = techAt(fmt.Sprintf("t%02d", i), off)
			}
			decision, err := SelectBestTechnician(engine, testJob(), candidates, nil, scoring.Options{})
			if err != nil {
				return false
			}
			want := len(offsets) - 1
			if want > 3 {
				want = 3
			}
			if len(decision.Alternatives) != want {
				return false
			}
			prev := decision.Score
			for _, alt := range decision.Alternatives {
				if alt.Score > prev {
					return false
				}
				prev = alt.Score
			}
			return true
		},
		gen.SliceOf(gen.Float64Range(0, 2)),
	))

	properties.TestingRun(t)
}
