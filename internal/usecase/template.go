package usecase

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shiweiumichedu/autovet-app-pwa/internal/domain"
)

const (
	// MaxActivePerStep caps how many checklist items per step may carry a
	// weight above zero.
	MaxActivePerStep = 5

	// WizardFirstStep is the first navigable step; step 1 is the vehicle
	// info form collected at creation time.
	WizardFirstStep = 2
)

// ResolvedStep is a step template with the user's weights applied, ready to
// be materialized onto a new inspection.
type ResolvedStep struct {
	StepNumber    int
	StepName      string
	Checklist     []domain.ChecklistItem
	Instructions  string
	PhotoRequired bool
	MaxPhotos     int
}

type TemplateUseCase struct {
	repo domain.InspectionRepository
	log  *zap.Logger
}

func NewTemplateUseCase(repo domain.InspectionRepository, log *zap.Logger) *TemplateUseCase {
	return &TemplateUseCase{repo: repo, log: log}
}

// Resolve loads the tenant step templates and the user's saved weights and
// materializes the checklist for a new inspection. The output is a snapshot:
// later preference edits never touch inspections already created from it.
func (u *TemplateUseCase) Resolve(ctx context.Context, userID uuid.UUID) ([]ResolvedStep, error) {
	templates, err := u.repo.GetStepTemplates(ctx)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "get step templates", Err: err}
	}
	if len(templates) == 0 {
		return nil, fmt.Errorf("no step templates configured")
	}

	prefs, err := u.repo.LoadPreferences(ctx, userID)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "load checklist preferences", Err: err}
	}

	return ResolveTemplate(templates, prefs), nil
}

// ResolveTemplate applies saved weights to the step templates. Weight
// defaulting is decided per step: a step with no saved preferences gets the
// first MaxActivePerStep items at normal weight and the rest excluded; once
// a step has any saved preference, unmatched items are excluded.
func ResolveTemplate(templates []domain.StepDefinition, prefs []domain.ChecklistPreference) []ResolvedStep {
	sorted := make([]domain.StepDefinition, len(templates))
	copy(sorted, templates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StepNumber < sorted[j].StepNumber })

	type prefKey struct {
		step int
		item string
	}
	prefMap := make(map[prefKey]domain.Weight, len(prefs))
	stepHasPrefs := make(map[int]bool)
	for _, p := range prefs {
		prefMap[prefKey{p.StepNumber, p.ItemName}] = p.Weight
		stepHasPrefs[p.StepNumber] = true
	}

	steps := make([]ResolvedStep, 0, len(sorted))
	for _, tpl := range sorted {
		step := ResolvedStep{
			StepNumber:    tpl.StepNumber,
			StepName:      tpl.StepName,
			Instructions:  tpl.Instructions,
			PhotoRequired: tpl.PhotoRequired,
			MaxPhotos:     tpl.MaxPhotos,
		}
		for i, name := range tpl.ChecklistItems {
			var weight domain.Weight
			if stepHasPrefs[tpl.StepNumber] {
				weight = prefMap[prefKey{tpl.StepNumber, name}]
			} else if i < MaxActivePerStep {
				weight = domain.WeightNormal
			}
			step.Checklist = append(step.Checklist, domain.ChecklistItem{
				Item:   name,
				Weight: weight,
			})
		}
		steps = append(steps, step)
	}
	return steps
}

func (u *TemplateUseCase) StepTemplates(ctx context.Context) ([]domain.StepDefinition, error) {
	return u.repo.GetStepTemplates(ctx)
}

func (u *TemplateUseCase) Preferences(ctx context.Context, userID uuid.UUID) ([]domain.ChecklistPreference, error) {
	return u.repo.LoadPreferences(ctx, userID)
}

// SavePreferences overwrites the user's weight preferences wholesale after
// validating the per-step active cap.
func (u *TemplateUseCase) SavePreferences(ctx context.Context, userID uuid.UUID, prefs []domain.ChecklistPreference) error {
	if err := ValidatePreferences(prefs); err != nil {
		return err
	}
	if err := u.repo.SavePreferences(ctx, userID, prefs); err != nil {
		return &domain.PersistenceError{Op: "save checklist preferences", Err: err}
	}
	u.log.Info("checklist preferences saved",
		zap.String("user_id", userID.String()),
		zap.Int("count", len(prefs)))
	return nil
}

// ValidatePreferences rejects invalid weights and any step holding more than
// MaxActivePerStep items with weight above zero.
func ValidatePreferences(prefs []domain.ChecklistPreference) error {
	active := make(map[int]int)
	for _, p := range prefs {
		if !p.Weight.Valid() {
			return domain.NewValidationError("weight", fmt.Sprintf("invalid weight %d for %q", p.Weight, p.ItemName))
		}
		if p.Weight > domain.WeightExcluded {
			active[p.StepNumber]++
			if active[p.StepNumber] > MaxActivePerStep {
				return domain.NewValidationError("weight",
					fmt.Sprintf("step %d exceeds %d active items", p.StepNumber, MaxActivePerStep))
			}
		}
	}
	return nil
}

// SetPreferenceWeight updates one item's weight in a preference set,
// rejecting a promotion that would push the step past the active cap. The
// input slice is untouched on error.
func SetPreferenceWeight(prefs []domain.ChecklistPreference, stepNumber int, itemName string, weight domain.Weight) ([]domain.ChecklistPreference, error) {
	if !weight.Valid() {
		return nil, domain.NewValidationError("weight", fmt.Sprintf("invalid weight %d", weight))
	}

	idx := -1
	activeCount := 0
	for i, p := range prefs {
		if p.StepNumber != stepNumber {
			continue
		}
		if p.ItemName == itemName {
			idx = i
		}
		if p.Weight > domain.WeightExcluded {
			activeCount++
		}
	}

	promoting := weight > domain.WeightExcluded &&
		(idx < 0 || prefs[idx].Weight == domain.WeightExcluded)
	if promoting && activeCount >= MaxActivePerStep {
		return nil, domain.NewValidationError("weight",
			fmt.Sprintf("step %d already has %d active items", stepNumber, MaxActivePerStep))
	}

	out := make([]domain.ChecklistPreference, len(prefs))
	copy(out, prefs)
	if idx >= 0 {
		out[idx].Weight = weight
		return out, nil
	}
	return append(out, domain.ChecklistPreference{StepNumber: stepNumber, ItemName: itemName, Weight: weight}), nil
}
