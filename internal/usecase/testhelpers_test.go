package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shiweiumichedu/autovet-app-pwa/internal/domain"
)

// fakeRepo is an in-memory domain.InspectionRepository. Methods can be made
// to fail by setting errs["MethodName"].
type fakeRepo struct {
	mu sync.Mutex

	inspections map[uuid.UUID]*domain.Inspection
	templates   []domain.StepDefinition
	prefs       map[uuid.UUID][]domain.ChecklistPreference
	knownIssues []domain.VehicleKnownIssue
	photos      map[uuid.UUID]*domain.InspectionPhoto
	reports     map[string]*domain.CustomerReport

	errs map[string]error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		inspections: make(map[uuid.UUID]*domain.Inspection),
		prefs:       make(map[uuid.UUID][]domain.ChecklistPreference),
		photos:      make(map[uuid.UUID]*domain.InspectionPhoto),
		reports:     make(map[string]*domain.CustomerReport),
		errs:        make(map[string]error),
	}
}

func (r *fakeRepo) fail(method string) error { return r.errs[method] }

func reportKey(inspectionID uuid.UUID, t domain.ReportType) string {
	return inspectionID.String() + "/" + string(t)
}

func (r *fakeRepo) CreateInspection(ctx context.Context, inspection *domain.Inspection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("CreateInspection"); err != nil {
		return err
	}
	inspection.CreatedAt = time.Now()
	inspection.UpdatedAt = inspection.CreatedAt
	r.inspections[inspection.ID] = inspection
	return nil
}

func (r *fakeRepo) GetInspection(ctx context.Context, id uuid.UUID) (*domain.Inspection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("GetInspection"); err != nil {
		return nil, err
	}
	inspection, ok := r.inspections[id]
	if !ok {
		return nil, fmt.Errorf("inspection %s not found", id)
	}
	return inspection, nil
}

func (r *fakeRepo) ListInspections(ctx context.Context, userID, categoryID uuid.UUID) ([]domain.Inspection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Inspection
	for _, ins := range r.inspections {
		if ins.UserID == userID && ins.CategoryID == categoryID {
			out = append(out, *ins)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeRepo) SaveStep(ctx context.Context, stepID uuid.UUID, save domain.StepSave) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("SaveStep"); err != nil {
		return err
	}
	for _, ins := range r.inspections {
		for i := range ins.Steps {
			if ins.Steps[i].ID != stepID {
				continue
			}
			step := &ins.Steps[i]
			if save.Checklist != nil {
				step.Checklist = save.Checklist
			}
			if save.Notes != nil {
				step.Notes = *save.Notes
			}
			if save.Rating != nil {
				step.Rating = *save.Rating
			}
			if save.Status != nil {
				step.Status = *save.Status
			}
			return nil
		}
	}
	return fmt.Errorf("step %s not found", stepID)
}

func (r *fakeRepo) SetCurrentStep(ctx context.Context, inspectionID uuid.UUID, stepNumber int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("SetCurrentStep"); err != nil {
		return err
	}
	ins, ok := r.inspections[inspectionID]
	if !ok {
		return fmt.Errorf("inspection %s not found", inspectionID)
	}
	ins.CurrentStep = stepNumber
	return nil
}

func (r *fakeRepo) CompleteInspection(ctx context.Context, id uuid.UUID, overallRating int, decision domain.Decision, notes string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("CompleteInspection"); err != nil {
		return err
	}
	ins, ok := r.inspections[id]
	if !ok {
		return fmt.Errorf("inspection %s not found", id)
	}
	ins.Status = domain.StatusCompleted
	ins.OverallRating = overallRating
	ins.Decision = &decision
	ins.Notes = notes
	return nil
}

func (r *fakeRepo) DeleteInspection(ctx context.Context, id uuid.UUID) (*domain.DeleteResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("DeleteInspection"); err != nil {
		return nil, err
	}
	ins, ok := r.inspections[id]
	if !ok {
		return &domain.DeleteResult{}, nil
	}
	var paths []string
	for photoID, photo := range r.photos {
		if photo.InspectionID != id {
			continue
		}
		paths = append(paths, strings.TrimPrefix(photo.PhotoURL, "mem://"))
		delete(r.photos, photoID)
	}
	for key, report := range r.reports {
		if report.InspectionID == id {
			delete(r.reports, key)
		}
	}
	delete(r.inspections, ins.ID)
	return &domain.DeleteResult{Deleted: true, PhotoPaths: paths}, nil
}

func (r *fakeRepo) SetReportURL(ctx context.Context, inspectionID uuid.UUID, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ins, ok := r.inspections[inspectionID]
	if !ok {
		return fmt.Errorf("inspection %s not found", inspectionID)
	}
	ins.ReportURL = url
	return nil
}

func (r *fakeRepo) GetKnownIssues(ctx context.Context, make, model string, year int) ([]domain.VehicleKnownIssue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("GetKnownIssues"); err != nil {
		return nil, err
	}
	var out []domain.VehicleKnownIssue
	for _, issue := range r.knownIssues {
		if strings.EqualFold(issue.Make, make) && strings.EqualFold(issue.Model, model) &&
			year >= issue.YearStart && year <= issue.YearEnd {
			out = append(out, issue)
		}
	}
	return out, nil
}

func (r *fakeRepo) CreateKnownIssue(ctx context.Context, issue *domain.VehicleKnownIssue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	issue.ID = uuid.New()
	r.knownIssues = append(r.knownIssues, *issue)
	return nil
}

func (r *fakeRepo) GetStepTemplates(ctx context.Context) ([]domain.StepDefinition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("GetStepTemplates"); err != nil {
		return nil, err
	}
	return r.templates, nil
}

func (r *fakeRepo) CreateStepTemplate(ctx context.Context, tpl *domain.StepDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tpl.ID = uuid.New()
	r.templates = append(r.templates, *tpl)
	return nil
}

func (r *fakeRepo) LoadPreferences(ctx context.Context, userID uuid.UUID) ([]domain.ChecklistPreference, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("LoadPreferences"); err != nil {
		return nil, err
	}
	return r.prefs[userID], nil
}

func (r *fakeRepo) SavePreferences(ctx context.Context, userID uuid.UUID, prefs []domain.ChecklistPreference) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("SavePreferences"); err != nil {
		return err
	}
	r.prefs[userID] = prefs
	return nil
}

func (r *fakeRepo) SavePhoto(ctx context.Context, photo *domain.InspectionPhoto) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("SavePhoto"); err != nil {
		return err
	}
	// Upsert per slot: a re-upload replaces the row and its analysis.
	for id, existing := range r.photos {
		if existing.StepID == photo.StepID && existing.PhotoOrder == photo.PhotoOrder {
			delete(r.photos, id)
		}
	}
	r.photos[photo.ID] = photo
	return nil
}

func (r *fakeRepo) DeletePhoto(ctx context.Context, photoID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("DeletePhoto"); err != nil {
		return err
	}
	delete(r.photos, photoID)
	return nil
}

func (r *fakeRepo) SavePhotoAnalysis(ctx context.Context, photoID uuid.UUID, analysis string, verdict domain.Verdict) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("SavePhotoAnalysis"); err != nil {
		return false, err
	}
	photo, ok := r.photos[photoID]
	if !ok {
		return false, nil
	}
	now := time.Now()
	photo.Analysis = &analysis
	photo.Verdict = &verdict
	photo.AnalyzedAt = &now
	return true, nil
}

func (r *fakeRepo) SaveCustomerReport(ctx context.Context, report *domain.CustomerReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("SaveCustomerReport"); err != nil {
		return err
	}
	report.CreatedAt = time.Now()
	r.reports[reportKey(report.InspectionID, report.ReportType)] = report
	return nil
}

func (r *fakeRepo) DeleteCustomerReport(ctx context.Context, inspectionID uuid.UUID, reportType domain.ReportType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("DeleteCustomerReport"); err != nil {
		return err
	}
	delete(r.reports, reportKey(inspectionID, reportType))
	return nil
}

func (r *fakeRepo) SaveReportAnalysis(ctx context.Context, inspectionID uuid.UUID, reportType domain.ReportType, analysis string, verdict domain.Verdict) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("SaveReportAnalysis"); err != nil {
		return false, err
	}
	report, ok := r.reports[reportKey(inspectionID, reportType)]
	if !ok {
		return false, nil
	}
	now := time.Now()
	report.Analysis = &analysis
	report.Verdict = &verdict
	report.AnalyzedAt = &now
	return true, nil
}

func (r *fakeRepo) getPhoto(id uuid.UUID) *domain.InspectionPhoto {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.photos[id]
}

func (r *fakeRepo) getReport(inspectionID uuid.UUID, t domain.ReportType) *domain.CustomerReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reports[reportKey(inspectionID, t)]
}

// fakeStorage keeps uploaded objects in a map keyed by storage path.
type fakeStorage struct {
	mu sync.Mutex

	objects map[string][]byte
	removed []string

	uploadErr error
	removeErr error
	listErr   error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte)}
}

func (s *fakeStorage) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploadErr != nil {
		return "", s.uploadErr
	}
	s.objects[key] = data
	return "mem://" + key, nil
}

func (s *fakeStorage) Remove(ctx context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removeErr != nil {
		return s.removeErr
	}
	for _, key := range keys {
		delete(s.objects, key)
		s.removed = append(s.removed, key)
	}
	return nil
}

func (s *fakeStorage) List(ctx context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var keys []string
	for key := range s.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *fakeStorage) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

// fakeAnalyzer returns a canned result. When gate is set, Analyze blocks
// until the gate channel is closed, which lets tests order the async
// write-back against other operations.
type fakeAnalyzer struct {
	mu sync.Mutex

	result *domain.AnalysisResult
	err    error
	gate   chan struct{}

	prompts []string
}

func (a *fakeAnalyzer) Analyze(ctx context.Context, payload []byte, mimeType, prompt string) (*domain.AnalysisResult, error) {
	a.mu.Lock()
	gate := a.gate
	a.prompts = append(a.prompts, prompt)
	result, err := a.result, a.err
	a.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if result == nil {
		return &domain.AnalysisResult{Analysis: "looks fine", Verdict: domain.VerdictOK}, nil
	}
	out := *result
	return &out, nil
}

// seedTemplates installs the stock seven-step template: vehicle info, five
// photographable checklist steps, and the test drive.
func seedTemplates(r *fakeRepo) {
	names := []struct {
		name  string
		items []string
	}{
		{"Vehicle Information", nil},
		{"Exterior", []string{"Paint condition", "Body panels aligned", "Glass and mirrors", "Tires and tread", "Lights and lenses", "Rust spots", "Door seals", "Wipers"}},
		{"Interior", []string{"Seat wear", "Odometer plausible", "Dashboard warning lights", "HVAC blows cold and hot", "Power windows and locks", "Headliner", "Carpet and mats", "Infotainment"}},
		{"Engine Bay", []string{"Oil level and color", "Coolant level", "Belt condition", "Battery terminals", "Fluid leaks", "Hoses", "Air filter", "Engine mounts"}},
		{"Undercarriage", []string{"Frame rust", "Exhaust condition", "Suspension bushings", "CV boots", "Brake lines", "Oil pan seepage", "Shock absorbers", "Fuel lines"}},
		{"Electronics", []string{"All lights work", "Horn", "Backup camera", "Parking sensors", "Key fobs", "12V outlets", "Window switches", "Wiper modes"}},
		{"Test Drive", []string{"Cold start", "Idle smoothness", "Acceleration", "Braking straight", "Steering centered", "Transmission shifts", "Road noise", "Cruise control"}},
	}
	for i, def := range names {
		r.templates = append(r.templates, domain.StepDefinition{
			ID:             uuid.New(),
			StepNumber:     i + 1,
			StepName:       def.name,
			ChecklistItems: def.items,
			PhotoRequired:  i > 0 && i < len(names)-1,
			MaxPhotos:      DefaultMaxPhotos,
		})
	}
}

func testSession() domain.Session {
	return domain.Session{UserID: uuid.New(), CategoryID: uuid.New(), Phone: "+15551230000"}
}
