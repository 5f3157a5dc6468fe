package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type InspectionStatus string

const (
	StatusInProgress InspectionStatus = "in_progress"
	StatusCompleted  InspectionStatus = "completed"
	// StatusPassed is never produced by the wizard itself but can exist in
	// data written by other tools. It must render and score like completed.
	StatusPassed InspectionStatus = "passed"
)

type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepCompleted StepStatus = "completed"
	StepSkipped   StepStatus = "skipped"
)

type Decision string

const (
	DecisionInterested Decision = "interested"
	DecisionPass       Decision = "pass"
)

type Verdict string

const (
	VerdictOK      Verdict = "ok"
	VerdictWarning Verdict = "warning"
	VerdictIssue   Verdict = "issue"
)

func (v Verdict) Valid() bool {
	return v == VerdictOK || v == VerdictWarning || v == VerdictIssue
}

type ReportType string

const (
	ReportOBD2      ReportType = "obd2"
	ReportCarfax    ReportType = "carfax"
	ReportAutocheck ReportType = "autocheck"
)

func (t ReportType) Valid() bool {
	return t == ReportOBD2 || t == ReportCarfax || t == ReportAutocheck
}

// Weight is the per-user importance multiplier applied to a checklist
// item's rating: 0 excludes the item from scoring entirely.
type Weight int

const (
	WeightExcluded Weight = 0
	WeightNormal   Weight = 1
	WeightHigh     Weight = 2
)

func (w Weight) Valid() bool {
	return w >= WeightExcluded && w <= WeightHigh
}

type IssueCategory string

const (
	IssueSafety       IssueCategory = "safety"
	IssueEngine       IssueCategory = "engine"
	IssueTransmission IssueCategory = "transmission"
	IssueElectrical   IssueCategory = "electrical"
	IssueBody         IssueCategory = "body"
	IssueOther        IssueCategory = "other"
)

type IssueSeverity string

const (
	SeverityLow      IssueSeverity = "low"
	SeverityMedium   IssueSeverity = "medium"
	SeverityHigh     IssueSeverity = "high"
	SeverityCritical IssueSeverity = "critical"
)

// Session is the already-authenticated caller context. Tenant resolution and
// phone/PIN auth happen upstream; the core only carries the resolved ids.
type Session struct {
	UserID     uuid.UUID
	CategoryID uuid.UUID
	Phone      string
}

type VehicleDescriptor struct {
	Year    int
	Make    string
	Model   string
	Trim    string
	Mileage int
	VIN     string
	Color   string
}

type Inspection struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	CategoryID    uuid.UUID
	Vehicle       VehicleDescriptor
	Status        InspectionStatus
	CurrentStep   int
	OverallRating int
	Decision      *Decision
	Notes         string
	ReportURL     string
	CreatedAt     time.Time
	UpdatedAt     time.Time

	Steps           []InspectionStep
	KnownIssues     []VehicleKnownIssue
	CustomerReports []CustomerReport
}

type InspectionStep struct {
	ID           uuid.UUID
	InspectionID uuid.UUID
	StepNumber   int
	StepName     string
	Status       StepStatus
	Checklist    []ChecklistItem
	Notes        string
	Rating       int
	MaxPhotos    int
	Photos       []InspectionPhoto
}

type ChecklistItem struct {
	Item    string `json:"item"`
	Checked bool   `json:"checked"`
	Note    string `json:"note"`
	Rating  int    `json:"rating"`
	Weight  Weight `json:"weight"`
}

type ChecklistPreference struct {
	StepNumber int
	ItemName   string
	Weight     Weight
}

type InspectionPhoto struct {
	ID           uuid.UUID
	InspectionID uuid.UUID
	StepID       uuid.UUID
	PhotoURL     string
	PhotoOrder   int
	Analysis     *string
	Verdict      *Verdict
	AnalyzedAt   *time.Time
}

type CustomerReport struct {
	ID           uuid.UUID
	InspectionID uuid.UUID
	ReportType   ReportType
	FileURL      string
	FileName     string
	FileType     string
	Analysis     *string
	Verdict      *Verdict
	AnalyzedAt   *time.Time
	CreatedAt    time.Time
}

type VehicleKnownIssue struct {
	ID          uuid.UUID
	Make        string
	Model       string
	YearStart   int
	YearEnd     int
	Category    IssueCategory
	Severity    IssueSeverity
	Title       string
	Description string
	Source      string
}

type StepDefinition struct {
	ID             uuid.UUID
	StepNumber     int
	StepName       string
	ChecklistItems []string
	Instructions   string
	PhotoRequired  bool
	MaxPhotos      int
}

// StepSave is a partial step update: nil fields are left unchanged.
type StepSave struct {
	Checklist []ChecklistItem
	Notes     *string
	Rating    *int
	Status    *StepStatus
}

type DeleteResult struct {
	Deleted    bool
	PhotoPaths []string
}

type AnalysisResult struct {
	Analysis string
	Verdict  Verdict
}

type InspectionRepository interface {
	CreateInspection(ctx context.Context, inspection *Inspection) error
	GetInspection(ctx context.Context, id uuid.UUID) (*Inspection, error)
	ListInspections(ctx context.Context, userID, categoryID uuid.UUID) ([]Inspection, error)
	SaveStep(ctx context.Context, stepID uuid.UUID, save StepSave) error
	SetCurrentStep(ctx context.Context, inspectionID uuid.UUID, stepNumber int) error
	CompleteInspection(ctx context.Context, id uuid.UUID, overallRating int, decision Decision, notes string) error
	DeleteInspection(ctx context.Context, id uuid.UUID) (*DeleteResult, error)
	SetReportURL(ctx context.Context, inspectionID uuid.UUID, url string) error

	GetKnownIssues(ctx context.Context, make, model string, year int) ([]VehicleKnownIssue, error)
	CreateKnownIssue(ctx context.Context, issue *VehicleKnownIssue) error
	GetStepTemplates(ctx context.Context) ([]StepDefinition, error)
	CreateStepTemplate(ctx context.Context, tpl *StepDefinition) error
	LoadPreferences(ctx context.Context, userID uuid.UUID) ([]ChecklistPreference, error)
	SavePreferences(ctx context.Context, userID uuid.UUID, prefs []ChecklistPreference) error

	SavePhoto(ctx context.Context, photo *InspectionPhoto) error
	DeletePhoto(ctx context.Context, photoID uuid.UUID) error
	SavePhotoAnalysis(ctx context.Context, photoID uuid.UUID, analysis string, verdict Verdict) (bool, error)
	SaveCustomerReport(ctx context.Context, report *CustomerReport) error
	DeleteCustomerReport(ctx context.Context, inspectionID uuid.UUID, reportType ReportType) error
	SaveReportAnalysis(ctx context.Context, inspectionID uuid.UUID, reportType ReportType, analysis string, verdict Verdict) (bool, error)
}

type FileStorage interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Remove(ctx context.Context, keys []string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// Analyzer is the external vision/document-analysis capability. Failures are
// returned as errors; the caller decides whether they matter.
type Analyzer interface {
	Analyze(ctx context.Context, payload []byte, mimeType, prompt string) (*AnalysisResult, error)
}

// SessionCache remembers the last session per device so a returning user
// skips the phone prompt.
type SessionCache interface {
	Remember(ctx context.Context, deviceToken string, s Session) error
	Recall(ctx context.Context, deviceToken string) (*Session, error)
	Forget(ctx context.Context, deviceToken string) error
}
