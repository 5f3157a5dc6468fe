package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shiweiumichedu/autovet-app-pwa/internal/domain"
)

// SessionUseCase drives the inspection wizard: creation with template
// resolution and known-issue snapshotting, step navigation, completion, and
// cascading deletion.
type SessionUseCase struct {
	repo      domain.InspectionRepository
	storage   domain.FileStorage
	templates *TemplateUseCase
	log       *zap.Logger
}

func NewSessionUseCase(repo domain.InspectionRepository, storage domain.FileStorage, templates *TemplateUseCase, log *zap.Logger) *SessionUseCase {
	return &SessionUseCase{repo: repo, storage: storage, templates: templates, log: log}
}

// StepInput carries everything the wizard saves for one step.
type StepInput struct {
	Checklist []domain.ChecklistItem
	Notes     string
	Rating    int
}

// Completion is required when advancing off the final step.
type Completion struct {
	OverallRating int
	Decision      domain.Decision
	Notes         string
}

type AdvanceOutcome struct {
	NextStep  int
	Completed bool
}

type RetreatOutcome struct {
	PrevStep int
	// Exit is set when retreating from the first wizard step; the caller
	// should leave the wizard instead of moving the pointer.
	Exit bool
}

// Create starts a new inspection: resolves the step template with the user's
// weights, snapshots known issues matching the vehicle, and persists the
// whole aggregate with status in_progress and the resume pointer at step 1.
func (u *SessionUseCase) Create(ctx context.Context, sess domain.Session, vehicle domain.VehicleDescriptor) (*domain.Inspection, error) {
	if strings.TrimSpace(vehicle.Make) == "" {
		return nil, domain.NewValidationError("make", "vehicle make is required")
	}
	if strings.TrimSpace(vehicle.Model) == "" {
		return nil, domain.NewValidationError("model", "vehicle model is required")
	}

	resolved, err := u.templates.Resolve(ctx, sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve step template: %w", err)
	}

	var issues []domain.VehicleKnownIssue
	if vehicle.Year > 0 {
		issues, err = u.repo.GetKnownIssues(ctx, vehicle.Make, vehicle.Model, vehicle.Year)
		if err != nil {
			return nil, &domain.PersistenceError{Op: "get known issues", Err: err}
		}
	}

	inspection := &domain.Inspection{
		ID:          uuid.New(),
		UserID:      sess.UserID,
		CategoryID:  sess.CategoryID,
		Vehicle:     vehicle,
		Status:      domain.StatusInProgress,
		CurrentStep: 1,
		KnownIssues: issues,
	}
	for _, step := range resolved {
		maxPhotos := step.MaxPhotos
		if maxPhotos <= 0 {
			maxPhotos = DefaultMaxPhotos
		}
		inspection.Steps = append(inspection.Steps, domain.InspectionStep{
			ID:           uuid.New(),
			InspectionID: inspection.ID,
			StepNumber:   step.StepNumber,
			StepName:     step.StepName,
			Status:       domain.StepPending,
			Checklist:    step.Checklist,
			MaxPhotos:    maxPhotos,
		})
	}

	if err := u.repo.CreateInspection(ctx, inspection); err != nil {
		return nil, &domain.PersistenceError{Op: "create inspection", Err: err}
	}

	u.log.Info("inspection created",
		zap.String("inspection_id", inspection.ID.String()),
		zap.String("make", vehicle.Make),
		zap.String("model", vehicle.Model),
		zap.Int("known_issues", len(issues)))
	return inspection, nil
}

// Advance saves the given step as completed and moves the resume pointer
// forward. On the final step it instead completes the whole inspection,
// which requires a non-zero overall rating and a decision.
func (u *SessionUseCase) Advance(ctx context.Context, inspectionID uuid.UUID, stepNumber int, input StepInput, final *Completion) (*AdvanceOutcome, error) {
	inspection, step, err := u.loadEditableStep(ctx, inspectionID, stepNumber)
	if err != nil {
		return nil, err
	}

	lastStep := len(inspection.Steps)
	if stepNumber < lastStep {
		if err := u.saveStep(ctx, step.ID, input, true); err != nil {
			return nil, err
		}
		next := stepNumber + 1
		if err := u.repo.SetCurrentStep(ctx, inspectionID, next); err != nil {
			return nil, &domain.PersistenceError{Op: "set current step", Err: err}
		}
		return &AdvanceOutcome{NextStep: next}, nil
	}

	// Validate completion before touching the step so a rejected attempt
	// leaves the wizard exactly where it was.
	if final == nil || final.OverallRating == 0 {
		return nil, domain.NewValidationError("overall_rating", "an overall rating is required to complete the inspection")
	}
	if final.OverallRating < 1 || final.OverallRating > 5 {
		return nil, domain.NewValidationError("overall_rating", "overall rating must be between 1 and 5")
	}
	if final.Decision != domain.DecisionInterested && final.Decision != domain.DecisionPass {
		return nil, domain.NewValidationError("decision", "a decision is required to complete the inspection")
	}

	if err := u.saveStep(ctx, step.ID, input, true); err != nil {
		return nil, err
	}
	if err := u.repo.CompleteInspection(ctx, inspectionID, final.OverallRating, final.Decision, final.Notes); err != nil {
		return nil, &domain.PersistenceError{Op: "complete inspection", Err: err}
	}

	u.log.Info("inspection completed",
		zap.String("inspection_id", inspectionID.String()),
		zap.String("decision", string(final.Decision)),
		zap.Int("overall_rating", final.OverallRating))
	return &AdvanceOutcome{NextStep: stepNumber, Completed: true}, nil
}

// Retreat saves the step without marking it completed and moves the pointer
// back. Retreating from the first wizard step signals an exit instead.
func (u *SessionUseCase) Retreat(ctx context.Context, inspectionID uuid.UUID, stepNumber int, input StepInput) (*RetreatOutcome, error) {
	_, step, err := u.loadEditableStep(ctx, inspectionID, stepNumber)
	if err != nil {
		return nil, err
	}

	if err := u.saveStep(ctx, step.ID, input, false); err != nil {
		return nil, err
	}

	if stepNumber <= WizardFirstStep {
		return &RetreatOutcome{PrevStep: stepNumber, Exit: true}, nil
	}

	prev := stepNumber - 1
	if err := u.repo.SetCurrentStep(ctx, inspectionID, prev); err != nil {
		return nil, &domain.PersistenceError{Op: "set current step", Err: err}
	}
	return &RetreatOutcome{PrevStep: prev}, nil
}

// Resume returns the inspection together with the step the wizard should
// open at: the persisted pointer, floored at the first wizard step.
func (u *SessionUseCase) Resume(ctx context.Context, inspectionID uuid.UUID) (*domain.Inspection, int, error) {
	inspection, err := u.Get(ctx, inspectionID)
	if err != nil {
		return nil, 0, err
	}
	step := inspection.CurrentStep
	if step < WizardFirstStep {
		step = WizardFirstStep
	}
	if step != inspection.CurrentStep {
		if err := u.repo.SetCurrentStep(ctx, inspectionID, step); err != nil {
			return nil, 0, &domain.PersistenceError{Op: "set current step", Err: err}
		}
		inspection.CurrentStep = step
	}
	return inspection, step, nil
}

func (u *SessionUseCase) Get(ctx context.Context, inspectionID uuid.UUID) (*domain.Inspection, error) {
	inspection, err := u.repo.GetInspection(ctx, inspectionID)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "get inspection", Err: err}
	}
	return inspection, nil
}

func (u *SessionUseCase) List(ctx context.Context, sess domain.Session) ([]domain.Inspection, error) {
	inspections, err := u.repo.ListInspections(ctx, sess.UserID, sess.CategoryID)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "list inspections", Err: err}
	}
	return inspections, nil
}

// Delete removes the inspection and all child rows, then fans out removal of
// the stored files. File cleanup is best effort: the metadata deletion is
// authoritative and a storage failure only gets logged.
func (u *SessionUseCase) Delete(ctx context.Context, inspectionID uuid.UUID) error {
	result, err := u.repo.DeleteInspection(ctx, inspectionID)
	if err != nil {
		return &domain.PersistenceError{Op: "delete inspection", Err: err}
	}
	if !result.Deleted {
		return domain.NewValidationError("inspection_id", "inspection not found")
	}

	// The listing covers everything under the inspection prefix, customer
	// reports and the generated PDF included. The photo paths from the
	// database are kept as a fallback in case the listing fails.
	seen := make(map[string]bool, len(result.PhotoPaths))
	paths := make([]string, 0, len(result.PhotoPaths))
	for _, p := range result.PhotoPaths {
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}
	if stored, err := u.storage.List(ctx, inspectionID.String()+"/"); err == nil {
		for _, p := range stored {
			if !seen[p] {
				seen[p] = true
				paths = append(paths, p)
			}
		}
	} else {
		u.log.Warn("listing stored files for cleanup failed",
			zap.String("inspection_id", inspectionID.String()), zap.Error(err))
	}

	var wg sync.WaitGroup
	for _, path := range paths {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			if err := u.storage.Remove(ctx, []string{p}); err != nil {
				u.log.Warn("file cleanup failed", zap.String("path", p), zap.Error(err))
			}
		}(path)
	}
	wg.Wait()

	u.log.Info("inspection deleted",
		zap.String("inspection_id", inspectionID.String()),
		zap.Int("files_cleaned", len(paths)))
	return nil
}

func (u *SessionUseCase) loadEditableStep(ctx context.Context, inspectionID uuid.UUID, stepNumber int) (*domain.Inspection, *domain.InspectionStep, error) {
	inspection, err := u.Get(ctx, inspectionID)
	if err != nil {
		return nil, nil, err
	}
	if inspection.Status != domain.StatusInProgress {
		return nil, nil, domain.NewValidationError("status", "inspection is no longer editable")
	}
	if stepNumber < WizardFirstStep || stepNumber > len(inspection.Steps) {
		return nil, nil, domain.NewValidationError("step_number", fmt.Sprintf("step %d is outside the wizard range", stepNumber))
	}
	for i := range inspection.Steps {
		if inspection.Steps[i].StepNumber == stepNumber {
			return inspection, &inspection.Steps[i], nil
		}
	}
	return nil, nil, domain.NewValidationError("step_number", fmt.Sprintf("step %d not found", stepNumber))
}

func (u *SessionUseCase) saveStep(ctx context.Context, stepID uuid.UUID, input StepInput, markCompleted bool) error {
	if input.Rating < 0 || input.Rating > 5 {
		return domain.NewValidationError("rating", "step rating must be between 0 and 5")
	}
	for _, item := range input.Checklist {
		if err := item.Validate(); err != nil {
			return err
		}
	}

	// Rating goes out even when zero so a previously saved rating can be
	// cleared by a later save.
	save := domain.StepSave{
		Checklist: input.Checklist,
		Notes:     &input.Notes,
		Rating:    &input.Rating,
	}
	if markCompleted {
		status := domain.StepCompleted
		save.Status = &status
	}
	if err := u.repo.SaveStep(ctx, stepID, save); err != nil {
		return &domain.PersistenceError{Op: "save step", Err: err}
	}
	return nil
}
