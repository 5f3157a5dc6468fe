package usecase

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jung-kurt/gofpdf"
	"go.uber.org/zap"

	"github.com/shiweiumichedu/autovet-app-pwa/internal/domain"
)

// ReportUseCase renders a finished inspection snapshot to a document and
// stores the generated file back on the inspection.
type ReportUseCase struct {
	repo    domain.InspectionRepository
	storage domain.FileStorage
	log     *zap.Logger
}

func NewReportUseCase(repo domain.InspectionRepository, storage domain.FileStorage, log *zap.Logger) *ReportUseCase {
	return &ReportUseCase{repo: repo, storage: storage, log: log}
}

// GenerateAndStore builds the PDF, uploads it, and records the report URL on
// the inspection. The inspection itself is otherwise immutable once a
// decision is recorded.
func (u *ReportUseCase) GenerateAndStore(ctx context.Context, inspectionID uuid.UUID) (string, error) {
	data, err := u.ExportToPDF(ctx, inspectionID)
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("%s/report.pdf", inspectionID)
	url, err := u.storage.Upload(ctx, key, data, "application/pdf")
	if err != nil {
		return "", &domain.AttachmentError{Op: "upload report pdf", Err: err}
	}
	if err := u.repo.SetReportURL(ctx, inspectionID, url); err != nil {
		return "", &domain.PersistenceError{Op: "set report url", Err: err}
	}

	u.log.Info("inspection report generated", zap.String("inspection_id", inspectionID.String()))
	return url, nil
}

func (u *ReportUseCase) ExportToPDF(ctx context.Context, inspectionID uuid.UUID) ([]byte, error) {
	inspection, err := u.repo.GetInspection(ctx, inspectionID)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "get inspection", Err: err}
	}

	score := Score(inspection.Steps)

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(0, 10, fmt.Sprintf("Pre-Purchase Inspection: %s", vehicleLabel(inspection.Vehicle)))
	pdf.Ln(12)

	pdf.SetFont("Arial", "", 11)
	if inspection.Vehicle.VIN != "" {
		pdf.Cell(0, 7, fmt.Sprintf("VIN: %s", inspection.Vehicle.VIN))
		pdf.Ln(7)
	}
	if inspection.Vehicle.Color != "" {
		pdf.Cell(0, 7, fmt.Sprintf("Color: %s", inspection.Vehicle.Color))
		pdf.Ln(7)
	}
	pdf.Cell(0, 7, fmt.Sprintf("Status: %s", inspection.Status))
	pdf.Ln(7)
	if inspection.Decision != nil {
		pdf.Cell(0, 7, fmt.Sprintf("Decision: %s", *inspection.Decision))
		pdf.Ln(7)
	}
	if inspection.OverallRating > 0 {
		pdf.Cell(0, 7, fmt.Sprintf("Overall rating: %d/5", inspection.OverallRating))
		pdf.Ln(7)
	}
	pdf.Cell(0, 7, fmt.Sprintf("Inspected: %s", inspection.CreatedAt.Format("01/02/2006 15:04")))
	pdf.Ln(10)

	// Weighted score block, tinted by tier like the summary screen.
	pdf.SetFont("Arial", "B", 14)
	if score.Applicable {
		switch score.Tier() {
		case TierGood:
			pdf.SetTextColor(22, 163, 74)
		case TierCaution:
			pdf.SetTextColor(202, 138, 4)
		default:
			pdf.SetTextColor(220, 38, 38)
		}
		pdf.Cell(0, 9, fmt.Sprintf("Weighted score: %d%% (%d / %d points)", score.Percentage, score.Earned, score.MaxPossible))
	} else {
		pdf.SetTextColor(107, 114, 128)
		pdf.Cell(0, 9, "Weighted score: not applicable (no weighted items)")
	}
	pdf.SetTextColor(0, 0, 0)
	pdf.Ln(12)

	if len(inspection.KnownIssues) > 0 {
		pdf.SetFont("Arial", "B", 12)
		pdf.Cell(0, 8, "Known issues for this vehicle")
		pdf.Ln(8)
		pdf.SetFont("Arial", "", 10)
		for _, issue := range inspection.KnownIssues {
			pdf.MultiCell(0, 5, fmt.Sprintf("[%s/%s] %s - %s", issue.Severity, issue.Category, issue.Title, issue.Description), "", "", false)
			pdf.Ln(1)
		}
		pdf.Ln(4)
	}

	for _, step := range inspection.Steps {
		if step.StepNumber == 1 {
			continue
		}
		pdf.SetFont("Arial", "B", 12)
		pdf.Cell(0, 8, fmt.Sprintf("%d. %s (%s)", step.StepNumber, step.StepName, step.Status))
		pdf.Ln(8)

		pdf.SetFont("Arial", "", 10)
		for _, item := range step.Checklist {
			if item.Weight == domain.WeightExcluded {
				continue
			}
			mark := " "
			if item.Checked {
				mark = "x"
			}
			line := fmt.Sprintf("[%s] %s - %d/5", mark, item.Item, item.Rating)
			if item.Note != "" {
				line += " (" + item.Note + ")"
			}
			pdf.MultiCell(0, 5, line, "", "", false)
		}
		if step.Notes != "" {
			pdf.SetFont("Arial", "I", 10)
			pdf.MultiCell(0, 5, "Notes: "+step.Notes, "", "", false)
		}
		for _, photo := range step.Photos {
			if photo.Analysis == nil {
				continue
			}
			verdict := domain.VerdictOK
			if photo.Verdict != nil {
				verdict = *photo.Verdict
			}
			pdf.SetFont("Arial", "", 9)
			setVerdictColor(pdf, verdict)
			pdf.MultiCell(0, 5, fmt.Sprintf("Photo %d [%s]: %s", photo.PhotoOrder, verdict, *photo.Analysis), "", "", false)
			pdf.SetTextColor(0, 0, 0)
		}
		pdf.Ln(4)
	}

	if len(inspection.CustomerReports) > 0 {
		pdf.SetFont("Arial", "B", 12)
		pdf.Cell(0, 8, "Customer-supplied reports")
		pdf.Ln(8)
		for _, report := range inspection.CustomerReports {
			pdf.SetFont("Arial", "B", 10)
			pdf.Cell(0, 6, strings.ToUpper(string(report.ReportType)))
			pdf.Ln(6)
			pdf.SetFont("Arial", "", 9)
			if report.Analysis != nil {
				verdict := domain.VerdictOK
				if report.Verdict != nil {
					verdict = *report.Verdict
				}
				setVerdictColor(pdf, verdict)
				pdf.MultiCell(0, 5, fmt.Sprintf("[%s] %s", verdict, *report.Analysis), "", "", false)
				pdf.SetTextColor(0, 0, 0)
			} else {
				pdf.MultiCell(0, 5, "Analysis not available.", "", "", false)
			}
			pdf.Ln(2)
		}
	}

	if inspection.Notes != "" {
		pdf.SetFont("Arial", "B", 12)
		pdf.Cell(0, 8, "General notes")
		pdf.Ln(8)
		pdf.SetFont("Arial", "", 10)
		pdf.MultiCell(0, 5, inspection.Notes, "", "", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func (u *ReportUseCase) ExportToCSV(ctx context.Context, inspectionID uuid.UUID) ([]byte, error) {
	inspection, err := u.repo.GetInspection(ctx, inspectionID)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "get inspection", Err: err}
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	w.Write([]string{"Year", "Make", "Model", "Trim", "Mileage", "VIN", "Status", "Decision", "Overall Rating"})
	decision := ""
	if inspection.Decision != nil {
		decision = string(*inspection.Decision)
	}
	w.Write([]string{
		strconv.Itoa(inspection.Vehicle.Year),
		inspection.Vehicle.Make,
		inspection.Vehicle.Model,
		inspection.Vehicle.Trim,
		strconv.Itoa(inspection.Vehicle.Mileage),
		inspection.Vehicle.VIN,
		string(inspection.Status),
		decision,
		strconv.Itoa(inspection.OverallRating),
	})

	w.Write([]string{})
	w.Write([]string{"Step", "Item", "Checked", "Rating", "Weight", "Note"})
	for _, step := range inspection.Steps {
		if step.StepNumber == 1 {
			continue
		}
		for _, item := range step.Checklist {
			w.Write([]string{
				step.StepName,
				item.Item,
				strconv.FormatBool(item.Checked),
				strconv.Itoa(item.Rating),
				strconv.Itoa(int(item.Weight)),
				item.Note,
			})
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to write csv: %w", err)
	}
	return buf.Bytes(), nil
}

func setVerdictColor(pdf *gofpdf.Fpdf, verdict domain.Verdict) {
	switch verdict {
	case domain.VerdictIssue:
		pdf.SetTextColor(220, 38, 38)
	case domain.VerdictWarning:
		pdf.SetTextColor(202, 138, 4)
	default:
		pdf.SetTextColor(22, 163, 74)
	}
}
