package scoring

import (
	"math"
	"strings"

	"github.com/fieldserve/backend/internal/models"
)

const (
	LevelBeginner     = 1
	LevelIntermediate = 2
	LevelAdvanced     = 3
	LevelExpert       = 4

	noRequirementsScore = 70.0
	partialSkillCeiling = 80.0
)

// ProficiencyLevel maps a label to its ordinal. Unknown labels return 0, false.
func ProficiencyLevel(label string) (int, bool) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "beginner":
		return LevelBeginner, true
	case "intermediate":
		return LevelIntermediate, true
	case "advanced":
		return LevelAdvanced, true
	case "expert":
		return LevelExpert, true
	default:
		return 0, false
	}
}

func requiredLevel(label string) int {
	if lvl, ok := ProficiencyLevel(label); ok {
		return lvl
	}
	return LevelIntermediate
}

func skillMatchScore(tech models.Technician, reqs []models.SkillRequirement) float64 {
	if len(reqs) == 0 {
		return noRequirementsScore
	}
	total := 0.0
	for _, req := range reqs {
		total += requirementScore(tech, req)
	}
	return total / float64(len(reqs))
}

func requirementScore(tech models.Technician, req models.SkillRequirement) float64 {
	skill, ok := lookupSkill(tech.Skills, req.Skill)
	if !ok || !skill.Active {
		return 0
	}
	need := requiredLevel(req.MinLevel)
	have, _ := ProficiencyLevel(skill.Proficiency)
	if have >= need {
		return 100
	}
	return math.Max(0, float64(have)/float64(need)*partialSkillCeiling)
}

func lookupSkill(skills map[string]models.TechnicianSkill, name string) (models.TechnicianSkill, bool) {
	if s, ok := skills[name]; ok {
		return s, true
	}
	target := strings.TrimSpace(name)
	for k, s := range skills {
		if strings.EqualFold(strings.TrimSpace(k), target) {
			return s, true
		}
	}
	return models.TechnicianSkill{}, false
}
