package service

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fieldserve/backend/internal/models"
	"github.com/fieldserve/backend/internal/scoring"
)

const (
	maxAlternatives = 3
	highGap         = 20.0
	mediumGap       = 10.0
)

// Candidate is one scored technician.
type Candidate struct {
	TechnicianID string                `json:"technician_id"`
	Name         string                `json:"name,omitempty"`
	Breakdown    models.ScoreBreakdown `json:"breakdown"`
}

// RankCandidates scores every technician and orders them by total descending,
// ties broken by technician id ascending.
func RankCandidates(engine *scoring.Engine, job models.ServiceJob, candidates []models.Technician, reqs []models.SkillRequirement, opts scoring.Options) ([]Candidate, error) {
	if err := models.ValidateJob(job); err != nil {
		return nil, err
	}
	ranked := make([]Candidate, 0, len(candidates))
	for _, tech := range candidates {
		if err := models.ValidateTechnician(tech); err != nil {
			return nil, err
		}
		ranked = append(ranked, Candidate{
			TechnicianID: tech.ID,
			Name:         tech.Name,
			Breakdown:    engine.Score(tech, job, reqs, opts),
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Breakdown.Total == ranked[j].Breakdown.Total {
			return ranked[i].TechnicianID < ranked[j].TechnicianID
		}
		return ranked[i].Breakdown.Total > ranked[j].Breakdown.Total
	})
	return ranked, nil
}

func SelectBestTechnician(engine *scoring.Engine, job models.ServiceJob, candidates []models.Technician, reqs []models.SkillRequirement, opts scoring.Options) (models.AssignmentDecision, error) {
	if len(candidates) == 0 {
		return models.AssignmentDecision{}, &NoCandidateError{JobID: job.ID, JobKind: job.Kind}
	}
	ranked, err := RankCandidates(engine, job, candidates, reqs, opts)
	if err != nil {
		return models.AssignmentDecision{}, err
	}

	best := ranked[0]
	rest := ranked[1:]
	if len(rest) > maxAlternatives {
		rest = rest[:maxAlternatives]
	}
	alternatives := make([]models.Alternative, 0, len(rest))
	for _, c := range rest {
		alternatives = append(alternatives, models.Alternative{TechnicianID: c.TechnicianID, Score: c.Breakdown.Total})
	}

	return models.AssignmentDecision{
		ID:             uuid.NewString(),
		JobID:          job.ID,
		JobKind:        job.Kind,
		TechnicianID:   best.TechnicianID,
		Score:          best.Breakdown.Total,
		Breakdown:      best.Breakdown,
		Alternatives:   alternatives,
		Confidence:     confidence(best.Breakdown.Total, alternatives),
		Reason:         strings.Join(best.Breakdown.Reasons, "; "),
		CandidateCount: len(ranked),
		DecidedAt:      time.Now().UTC(),
	}, nil
}

func confidence(best float64, alternatives []models.Alternative) string {
	if len(alternatives) == 0 {
		return models.ConfidenceHigh
	}
	// Totals are already rounded; re-round so 79.99999 does not miss a band.
	gap := math.Round((best-alternatives[0].Score)*100) / 100
	switch {
	case gap >= highGap:
		return models.ConfidenceHigh
	case gap >= mediumGap:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}
