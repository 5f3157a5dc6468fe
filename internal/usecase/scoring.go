package usecase

import (
	"math"

	"github.com/shiweiumichedu/autovet-app-pwa/internal/domain"
)

// Score tiers for display. Derived, never persisted.
type ScoreTier string

const (
	TierGood    ScoreTier = "good"
	TierCaution ScoreTier = "caution"
	TierPoor    ScoreTier = "poor"
)

type ScoreResult struct {
	Earned      int
	MaxPossible int
	// Percentage is round(100 * Earned / MaxPossible). Only meaningful when
	// Applicable is true; Applicable is false when no item anywhere carries a
	// weight above zero, which is distinct from scoring 0%.
	Percentage int
	Applicable bool
}

func (r ScoreResult) Tier() ScoreTier {
	switch {
	case r.Percentage >= 70:
		return TierGood
	case r.Percentage >= 40:
		return TierCaution
	default:
		return TierPoor
	}
}

// Score computes the weighted completion score over a snapshot of steps.
// Step 1 carries vehicle info only and is excluded; items with weight 0
// contribute to neither side of the ratio. Pure: the same snapshot always
// yields the same result, in any step order.
func Score(steps []domain.InspectionStep) ScoreResult {
	var earned, maxPossible int
	for _, step := range steps {
		if step.StepNumber == 1 {
			continue
		}
		for _, item := range step.Checklist {
			if item.Weight == domain.WeightExcluded {
				continue
			}
			earned += int(item.Weight) * item.Rating
			maxPossible += int(item.Weight) * 5
		}
	}

	result := ScoreResult{Earned: earned, MaxPossible: maxPossible}
	if maxPossible > 0 {
		result.Applicable = true
		result.Percentage = int(math.Round(100 * float64(earned) / float64(maxPossible)))
	}
	return result
}
