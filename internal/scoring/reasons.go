package scoring

import (
	"fmt"

	"github.com/fieldserve/backend/internal/models"
)

func buildReasons(b models.ScoreBreakdown, reqCount int) []string {
	reasons := make([]string, 0, 5)

	switch {
	case reqCount == 0:
		reasons = append(reasons, "No specific skills required")
	case b.SkillMatch >= 90:
		reasons = append(reasons, "Excellent skill match")
	case b.SkillMatch >= 70:
		reasons = append(reasons, "Good skill match")
	default:
		reasons = append(reasons, "Limited skill match, training gap")
	}

	switch {
	case b.DistanceMiles == nil:
		reasons = append(reasons, "Distance unknown")
	case b.Proximity >= 90:
		reasons = append(reasons, fmt.Sprintf("Very close to job site (%.1f mi)", *b.DistanceMiles))
	case b.Proximity >= 70:
		reasons = append(reasons, fmt.Sprintf("Reasonable distance (%.1f mi)", *b.DistanceMiles))
	default:
		reasons = append(reasons, fmt.Sprintf("Far from job site (%.1f mi)", *b.DistanceMiles))
	}

	switch {
	case b.Availability >= 90:
		reasons = append(reasons, "Fully available")
	case b.Availability >= 70:
		reasons = append(reasons, "Good availability")
	default:
		reasons = append(reasons, "Limited availability, busy schedule")
	}

	if b.Workload < 70 {
		reasons = append(reasons, "Heavy weekly workload")
	}
	if b.Performance >= 90 {
		reasons = append(reasons, "Excellent performance record")
	}
	return reasons
}
