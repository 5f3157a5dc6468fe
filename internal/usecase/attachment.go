package usecase

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shiweiumichedu/autovet-app-pwa/internal/domain"
)

const (
	// DefaultMaxPhotos bounds the photo slots per step when the template
	// does not say otherwise.
	DefaultMaxPhotos = 2

	// Analysis calls run detached from the uploading request.
	analysisTimeout = 90 * time.Second
)

// AttachmentUseCase owns the photo and customer-report slots of an
// inspection and the upload-then-analyze pipeline behind them. Uploads are
// idempotent per slot; analysis is fire-and-forget and keyed by the
// attachment id so a late result lands on the right row or nowhere.
type AttachmentUseCase struct {
	repo     domain.InspectionRepository
	storage  domain.FileStorage
	analyzer domain.Analyzer
	log      *zap.Logger

	inflight sync.WaitGroup
}

func NewAttachmentUseCase(repo domain.InspectionRepository, storage domain.FileStorage, analyzer domain.Analyzer, log *zap.Logger) *AttachmentUseCase {
	return &AttachmentUseCase{repo: repo, storage: storage, analyzer: analyzer, log: log}
}

// Wait blocks until all in-flight analysis calls have settled. Used on
// shutdown so detached goroutines do not outlive the process resources.
func (u *AttachmentUseCase) Wait() {
	u.inflight.Wait()
}

// AttachPhoto stores a photo in its slot, records its metadata, and kicks
// off analysis in the background. Re-attaching the same slot replaces the
// file and resets any prior analysis.
func (u *AttachmentUseCase) AttachPhoto(ctx context.Context, inspection *domain.Inspection, stepNumber, photoOrder int, data []byte, mimeType string) (*domain.InspectionPhoto, error) {
	step := findStep(inspection, stepNumber)
	if step == nil {
		return nil, domain.NewValidationError("step_number", fmt.Sprintf("step %d not found", stepNumber))
	}
	if stepNumber < WizardFirstStep || stepNumber >= len(inspection.Steps) {
		// Step 1 is vehicle info and the final step is the test drive;
		// neither takes photos.
		return nil, domain.NewValidationError("step_number", fmt.Sprintf("step %d does not accept photos", stepNumber))
	}
	maxPhotos := step.MaxPhotos
	if maxPhotos <= 0 {
		maxPhotos = DefaultMaxPhotos
	}
	if photoOrder < 1 || photoOrder > maxPhotos {
		return nil, domain.NewValidationError("photo_order", fmt.Sprintf("photo slot must be between 1 and %d", maxPhotos))
	}
	if len(data) == 0 {
		return nil, domain.NewValidationError("file", "empty photo payload")
	}

	key := fmt.Sprintf("%s/%d/%d.jpg", inspection.ID, stepNumber, photoOrder)
	url, err := u.storage.Upload(ctx, key, data, mimeType)
	if err != nil {
		return nil, &domain.AttachmentError{Op: "upload photo", Err: err}
	}

	photo := &domain.InspectionPhoto{
		ID:           uuid.New(),
		InspectionID: inspection.ID,
		StepID:       step.ID,
		PhotoURL:     url,
		PhotoOrder:   photoOrder,
	}
	if err := u.repo.SavePhoto(ctx, photo); err != nil {
		return nil, &domain.AttachmentError{Op: "save photo metadata", Err: err}
	}

	prompt := photoPrompt(inspection.Vehicle, step.StepName)
	u.analyzeAsync(photo.ID.String(), data, mimeType, prompt, func(ctx context.Context, res *domain.AnalysisResult) (bool, error) {
		return u.repo.SavePhotoAnalysis(ctx, photo.ID, res.Analysis, res.Verdict)
	})

	return photo, nil
}

// DetachPhoto removes the metadata row, then best-effort removes the stored
// file; the metadata is the source of truth, a missing file is not an error.
func (u *AttachmentUseCase) DetachPhoto(ctx context.Context, inspectionID, photoID uuid.UUID, stepNumber, photoOrder int) error {
	if err := u.repo.DeletePhoto(ctx, photoID); err != nil {
		return &domain.AttachmentError{Op: "delete photo metadata", Err: err}
	}

	key := fmt.Sprintf("%s/%d/%d.jpg", inspectionID, stepNumber, photoOrder)
	if err := u.storage.Remove(ctx, []string{key}); err != nil {
		u.log.Warn("photo file removal failed", zap.String("key", key), zap.Error(err))
	}
	return nil
}

// AttachReport stores a customer-supplied document (image or PDF) in its
// per-type slot and kicks off the report-type-specific analysis. Files from
// a previous upload of the same type are removed first, since a new upload
// may carry a different extension.
func (u *AttachmentUseCase) AttachReport(ctx context.Context, inspection *domain.Inspection, reportType domain.ReportType, fileName string, data []byte, mimeType string) (*domain.CustomerReport, error) {
	if !reportType.Valid() {
		return nil, domain.NewValidationError("report_type", fmt.Sprintf("unknown report type %q", reportType))
	}
	if len(data) == 0 {
		return nil, domain.NewValidationError("file", "empty report payload")
	}

	prefix := fmt.Sprintf("%s/reports/", inspection.ID)
	if existing, err := u.storage.List(ctx, prefix); err == nil {
		var stale []string
		for _, key := range existing {
			if strings.HasPrefix(path.Base(key), string(reportType)+".") {
				stale = append(stale, key)
			}
		}
		if len(stale) > 0 {
			if err := u.storage.Remove(ctx, stale); err != nil {
				u.log.Warn("stale report removal failed", zap.Strings("keys", stale), zap.Error(err))
			}
		}
	}

	ext := strings.TrimPrefix(path.Ext(fileName), ".")
	if ext == "" {
		ext = "pdf"
	}
	key := fmt.Sprintf("%s%s.%s", prefix, reportType, ext)
	url, err := u.storage.Upload(ctx, key, data, mimeType)
	if err != nil {
		return nil, &domain.AttachmentError{Op: "upload report", Err: err}
	}

	report := &domain.CustomerReport{
		ID:           uuid.New(),
		InspectionID: inspection.ID,
		ReportType:   reportType,
		FileURL:      url,
		FileName:     fileName,
		FileType:     mimeType,
	}
	if err := u.repo.SaveCustomerReport(ctx, report); err != nil {
		return nil, &domain.AttachmentError{Op: "save report metadata", Err: err}
	}

	inspectionID := inspection.ID
	prompt := reportPrompt(inspection.Vehicle, reportType)
	u.analyzeAsync(string(reportType), data, mimeType, prompt, func(ctx context.Context, res *domain.AnalysisResult) (bool, error) {
		return u.repo.SaveReportAnalysis(ctx, inspectionID, reportType, res.Analysis, res.Verdict)
	})

	return report, nil
}

func (u *AttachmentUseCase) DetachReport(ctx context.Context, inspectionID uuid.UUID, reportType domain.ReportType) error {
	if !reportType.Valid() {
		return domain.NewValidationError("report_type", fmt.Sprintf("unknown report type %q", reportType))
	}
	if err := u.repo.DeleteCustomerReport(ctx, inspectionID, reportType); err != nil {
		return &domain.AttachmentError{Op: "delete report metadata", Err: err}
	}

	prefix := fmt.Sprintf("%s/reports/", inspectionID)
	keys, err := u.storage.List(ctx, prefix)
	if err != nil {
		u.log.Warn("listing report files failed", zap.String("prefix", prefix), zap.Error(err))
		return nil
	}
	var stale []string
	for _, key := range keys {
		if strings.HasPrefix(path.Base(key), string(reportType)+".") {
			stale = append(stale, key)
		}
	}
	if len(stale) > 0 {
		if err := u.storage.Remove(ctx, stale); err != nil {
			u.log.Warn("report file removal failed", zap.Strings("keys", stale), zap.Error(err))
		}
	}
	return nil
}

// analyzeAsync runs the external analysis detached from the caller. The
// apply callback reports whether the attachment still exists; a stale
// result is dropped on the floor. All failure modes resolve to analysis
// staying unavailable; nothing propagates back to the wizard.
func (u *AttachmentUseCase) analyzeAsync(tag string, data []byte, mimeType, prompt string, apply func(context.Context, *domain.AnalysisResult) (bool, error)) {
	u.inflight.Add(1)
	go func() {
		defer u.inflight.Done()

		ctx, cancel := context.WithTimeout(context.Background(), analysisTimeout)
		defer cancel()

		result, err := u.analyzer.Analyze(ctx, data, mimeType, prompt)
		if err != nil || result == nil {
			u.log.Warn("analysis unavailable", zap.String("attachment", tag), zap.Error(err))
			return
		}
		if !result.Verdict.Valid() {
			result.Verdict = domain.VerdictOK
		}

		applied, err := apply(ctx, result)
		if err != nil {
			u.log.Warn("saving analysis failed", zap.String("attachment", tag), zap.Error(err))
			return
		}
		if !applied {
			u.log.Info("discarding analysis for removed attachment", zap.String("attachment", tag))
			return
		}
		u.log.Info("analysis stored", zap.String("attachment", tag), zap.String("verdict", string(result.Verdict)))
	}()
}

func findStep(inspection *domain.Inspection, stepNumber int) *domain.InspectionStep {
	for i := range inspection.Steps {
		if inspection.Steps[i].StepNumber == stepNumber {
			return &inspection.Steps[i]
		}
	}
	return nil
}

func vehicleLabel(v domain.VehicleDescriptor) string {
	label := strings.TrimSpace(fmt.Sprintf("%d %s %s %s", v.Year, v.Make, v.Model, v.Trim))
	if v.Mileage > 0 {
		label = fmt.Sprintf("%s with %d miles", label, v.Mileage)
	}
	return label
}

func photoPrompt(v domain.VehicleDescriptor, stepName string) string {
	return fmt.Sprintf(
		"You are assisting a pre-purchase vehicle inspection of a %s. "+
			"This photo was taken during the %q step. Describe the visible condition, "+
			"call out damage, wear, rust, leaks, or missing parts, and respond with a JSON object "+
			`{"analysis": "...", "verdict": "ok|warning|issue"}.`,
		vehicleLabel(v), stepName)
}

func reportPrompt(v domain.VehicleDescriptor, reportType domain.ReportType) string {
	base := fmt.Sprintf("You are assisting a pre-purchase vehicle inspection of a %s. ", vehicleLabel(v))
	var guidance string
	switch reportType {
	case domain.ReportOBD2:
		guidance = "This is an OBD2 scan report. Extract the diagnostic trouble codes (DTCs), " +
			"readiness monitor status, and any pending or stored faults, and assess their severity."
	default: // carfax and autocheck share the history shape
		guidance = fmt.Sprintf("This is a %s vehicle history report. Summarize the ownership history, "+
			"reported accidents, title brands, odometer readings, and service records, and flag inconsistencies.", reportType)
	}
	return base + guidance + ` Respond with a JSON object {"analysis": "...", "verdict": "ok|warning|issue"}.`
}
