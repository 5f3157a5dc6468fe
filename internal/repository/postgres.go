package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shiweiumichedu/autovet-app-pwa/internal/domain"
)

type PostgresRepository struct {
	db *pgxpool.Pool
}

func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) CreateInspection(ctx context.Context, inspection *domain.Inspection) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `INSERT INTO inspections
              (id, user_id, category_id, year, make, model, trim, mileage, vin, color, status, current_step)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	v := inspection.Vehicle
	_, err = tx.Exec(ctx, query,
		inspection.ID, inspection.UserID, inspection.CategoryID,
		v.Year, v.Make, v.Model, v.Trim, v.Mileage, v.VIN, v.Color,
		string(inspection.Status), inspection.CurrentStep)
	if err != nil {
		return err
	}

	stepQuery := `INSERT INTO inspection_steps (id, inspection_id, step_number, step_name, status, checklist, max_photos)
                  VALUES ($1, $2, $3, $4, $5, $6, $7)`
	for _, step := range inspection.Steps {
		_, err = tx.Exec(ctx, stepQuery, step.ID, inspection.ID, step.StepNumber, step.StepName, string(domain.StepPending), step.Checklist, step.MaxPhotos)
		if err != nil {
			return err
		}
	}

	// Known issues are copied, not referenced: later changes to the issue
	// database must not alter inspections already created.
	issueQuery := `INSERT INTO inspection_known_issues
                   (inspection_id, category, severity, title, description, source)
                   VALUES ($1, $2, $3, $4, $5, $6)`
	for _, issue := range inspection.KnownIssues {
		_, err = tx.Exec(ctx, issueQuery, inspection.ID,
			string(issue.Category), string(issue.Severity), issue.Title, issue.Description, issue.Source)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *PostgresRepository) GetInspection(ctx context.Context, id uuid.UUID) (*domain.Inspection, error) {
	query := `SELECT id, user_id, category_id, year, make, model, trim, mileage, vin, color,
              status, current_step, overall_rating, decision, notes, report_url, created_at, updated_at
              FROM inspections WHERE id = $1`

	var i domain.Inspection
	var decision *string
	err := r.db.QueryRow(ctx, query, id).Scan(
		&i.ID, &i.UserID, &i.CategoryID,
		&i.Vehicle.Year, &i.Vehicle.Make, &i.Vehicle.Model, &i.Vehicle.Trim,
		&i.Vehicle.Mileage, &i.Vehicle.VIN, &i.Vehicle.Color,
		&i.Status, &i.CurrentStep, &i.OverallRating, &decision, &i.Notes, &i.ReportURL,
		&i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("inspection %s not found", id)
		}
		return nil, err
	}
	if decision != nil {
		d := domain.Decision(*decision)
		i.Decision = &d
	}

	if i.Steps, err = r.getSteps(ctx, id); err != nil {
		return nil, err
	}
	if i.KnownIssues, err = r.getInspectionIssues(ctx, id); err != nil {
		return nil, err
	}
	if i.CustomerReports, err = r.getCustomerReports(ctx, id); err != nil {
		return nil, err
	}
	return &i, nil
}

func (r *PostgresRepository) getSteps(ctx context.Context, inspectionID uuid.UUID) ([]domain.InspectionStep, error) {
	query := `SELECT id, inspection_id, step_number, step_name, status, checklist, notes, rating, max_photos
              FROM inspection_steps WHERE inspection_id = $1 ORDER BY step_number ASC`
	rows, err := r.db.Query(ctx, query, inspectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []domain.InspectionStep
	for rows.Next() {
		var s domain.InspectionStep
		err := rows.Scan(&s.ID, &s.InspectionID, &s.StepNumber, &s.StepName, &s.Status, &s.Checklist, &s.Notes, &s.Rating, &s.MaxPhotos)
		if err != nil {
			return nil, err
		}
		steps = append(steps, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	photoQuery := `SELECT p.id, p.inspection_id, p.step_id, p.photo_url, p.photo_order, p.analysis, p.verdict, p.analyzed_at
                   FROM inspection_photos p WHERE p.inspection_id = $1 ORDER BY p.photo_order ASC`
	photoRows, err := r.db.Query(ctx, photoQuery, inspectionID)
	if err != nil {
		return nil, err
	}
	defer photoRows.Close()

	byStep := make(map[uuid.UUID][]domain.InspectionPhoto)
	for photoRows.Next() {
		var p domain.InspectionPhoto
		err := photoRows.Scan(&p.ID, &p.InspectionID, &p.StepID, &p.PhotoURL, &p.PhotoOrder, &p.Analysis, &p.Verdict, &p.AnalyzedAt)
		if err != nil {
			return nil, err
		}
		byStep[p.StepID] = append(byStep[p.StepID], p)
	}
	if err := photoRows.Err(); err != nil {
		return nil, err
	}

	for idx := range steps {
		steps[idx].Photos = byStep[steps[idx].ID]
	}
	return steps, nil
}

func (r *PostgresRepository) getInspectionIssues(ctx context.Context, inspectionID uuid.UUID) ([]domain.VehicleKnownIssue, error) {
	query := `SELECT id, category, severity, title, description, source
              FROM inspection_known_issues WHERE inspection_id = $1 ORDER BY severity, title`
	rows, err := r.db.Query(ctx, query, inspectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var issues []domain.VehicleKnownIssue
	for rows.Next() {
		var issue domain.VehicleKnownIssue
		err := rows.Scan(&issue.ID, &issue.Category, &issue.Severity, &issue.Title, &issue.Description, &issue.Source)
		if err != nil {
			return nil, err
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

func (r *PostgresRepository) getCustomerReports(ctx context.Context, inspectionID uuid.UUID) ([]domain.CustomerReport, error) {
	query := `SELECT id, inspection_id, report_type, file_url, file_name, file_type, analysis, verdict, analyzed_at, created_at
              FROM customer_reports WHERE inspection_id = $1 ORDER BY report_type`
	rows, err := r.db.Query(ctx, query, inspectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []domain.CustomerReport
	for rows.Next() {
		var rep domain.CustomerReport
		err := rows.Scan(&rep.ID, &rep.InspectionID, &rep.ReportType, &rep.FileURL, &rep.FileName, &rep.FileType,
			&rep.Analysis, &rep.Verdict, &rep.AnalyzedAt, &rep.CreatedAt)
		if err != nil {
			return nil, err
		}
		reports = append(reports, rep)
	}
	return reports, rows.Err()
}

func (r *PostgresRepository) ListInspections(ctx context.Context, userID, categoryID uuid.UUID) ([]domain.Inspection, error) {
	query := `SELECT id, user_id, category_id, year, make, model, trim, mileage, vin, color,
              status, current_step, overall_rating, decision, notes, report_url, created_at, updated_at
              FROM inspections WHERE user_id = $1 AND category_id = $2 ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, userID, categoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var inspections []domain.Inspection
	for rows.Next() {
		var i domain.Inspection
		var decision *string
		err := rows.Scan(
			&i.ID, &i.UserID, &i.CategoryID,
			&i.Vehicle.Year, &i.Vehicle.Make, &i.Vehicle.Model, &i.Vehicle.Trim,
			&i.Vehicle.Mileage, &i.Vehicle.VIN, &i.Vehicle.Color,
			&i.Status, &i.CurrentStep, &i.OverallRating, &decision, &i.Notes, &i.ReportURL,
			&i.CreatedAt, &i.UpdatedAt)
		if err != nil {
			return nil, err
		}
		if decision != nil {
			d := domain.Decision(*decision)
			i.Decision = &d
		}
		inspections = append(inspections, i)
	}
	return inspections, rows.Err()
}

func (r *PostgresRepository) SaveStep(ctx context.Context, stepID uuid.UUID, save domain.StepSave) error {
	query := `UPDATE inspection_steps SET updated_at = now()`
	args := []interface{}{}
	argIdx := 1

	if save.Checklist != nil {
		query += fmt.Sprintf(", checklist = $%d", argIdx)
		args = append(args, save.Checklist)
		argIdx++
	}
	if save.Notes != nil {
		query += fmt.Sprintf(", notes = $%d", argIdx)
		args = append(args, *save.Notes)
		argIdx++
	}
	if save.Rating != nil {
		query += fmt.Sprintf(", rating = $%d", argIdx)
		args = append(args, *save.Rating)
		argIdx++
	}
	if save.Status != nil {
		query += fmt.Sprintf(", status = $%d", argIdx)
		args = append(args, string(*save.Status))
		argIdx++
	}
	query += fmt.Sprintf(" WHERE id = $%d", argIdx)
	args = append(args, stepID)

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("step %s not found", stepID)
	}
	return nil
}

func (r *PostgresRepository) SetCurrentStep(ctx context.Context, inspectionID uuid.UUID, stepNumber int) error {
	query := `UPDATE inspections SET current_step = $1, updated_at = now() WHERE id = $2`
	_, err := r.db.Exec(ctx, query, stepNumber, inspectionID)
	return err
}

func (r *PostgresRepository) CompleteInspection(ctx context.Context, id uuid.UUID, overallRating int, decision domain.Decision, notes string) error {
	query := `UPDATE inspections
              SET status = $1, overall_rating = $2, decision = $3, notes = $4, completed_at = $5, updated_at = now()
              WHERE id = $6`
	tag, err := r.db.Exec(ctx, query, string(domain.StatusCompleted), overallRating, string(decision), notes, time.Now(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("inspection %s not found", id)
	}
	return nil
}

func (r *PostgresRepository) DeleteInspection(ctx context.Context, id uuid.UUID) (*domain.DeleteResult, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// Collect the storage keys before the cascade wipes the rows.
	pathQuery := `SELECT s.step_number, p.photo_order
                  FROM inspection_photos p JOIN inspection_steps s ON p.step_id = s.id
                  WHERE p.inspection_id = $1`
	rows, err := tx.Query(ctx, pathQuery, id)
	if err != nil {
		return nil, err
	}
	var paths []string
	for rows.Next() {
		var stepNumber, photoOrder int
		if err := rows.Scan(&stepNumber, &photoOrder); err != nil {
			rows.Close()
			return nil, err
		}
		paths = append(paths, fmt.Sprintf("%s/%d/%d.jpg", id, stepNumber, photoOrder))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tag, err := tx.Exec(ctx, `DELETE FROM inspections WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return &domain.DeleteResult{}, tx.Commit(ctx)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &domain.DeleteResult{Deleted: true, PhotoPaths: paths}, nil
}

func (r *PostgresRepository) SetReportURL(ctx context.Context, inspectionID uuid.UUID, url string) error {
	query := `UPDATE inspections SET report_url = $1, updated_at = now() WHERE id = $2`
	_, err := r.db.Exec(ctx, query, url, inspectionID)
	return err
}

func (r *PostgresRepository) GetKnownIssues(ctx context.Context, make, model string, year int) ([]domain.VehicleKnownIssue, error) {
	query := `SELECT id, make, model, year_start, year_end, category, severity, title, description, source
              FROM vehicle_known_issues
              WHERE lower(make) = lower($1) AND lower(model) = lower($2) AND $3 BETWEEN year_start AND year_end
              ORDER BY severity DESC, title`

	rows, err := r.db.Query(ctx, query, make, model, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var issues []domain.VehicleKnownIssue
	for rows.Next() {
		var issue domain.VehicleKnownIssue
		err := rows.Scan(&issue.ID, &issue.Make, &issue.Model, &issue.YearStart, &issue.YearEnd,
			&issue.Category, &issue.Severity, &issue.Title, &issue.Description, &issue.Source)
		if err != nil {
			return nil, err
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

func (r *PostgresRepository) CreateKnownIssue(ctx context.Context, issue *domain.VehicleKnownIssue) error {
	if issue.ID == uuid.Nil {
		issue.ID = uuid.New()
	}
	query := `INSERT INTO vehicle_known_issues
              (id, make, model, year_start, year_end, category, severity, title, description, source)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.db.Exec(ctx, query, issue.ID, issue.Make, issue.Model, issue.YearStart, issue.YearEnd,
		string(issue.Category), string(issue.Severity), issue.Title, issue.Description, issue.Source)
	return err
}

func (r *PostgresRepository) GetStepTemplates(ctx context.Context) ([]domain.StepDefinition, error) {
	query := `SELECT id, step_number, step_name, checklist_items, instructions, photo_required, max_photos
              FROM inspection_step_templates ORDER BY step_number ASC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []domain.StepDefinition
	for rows.Next() {
		var tpl domain.StepDefinition
		err := rows.Scan(&tpl.ID, &tpl.StepNumber, &tpl.StepName, &tpl.ChecklistItems,
			&tpl.Instructions, &tpl.PhotoRequired, &tpl.MaxPhotos)
		if err != nil {
			return nil, err
		}
		templates = append(templates, tpl)
	}
	return templates, rows.Err()
}

func (r *PostgresRepository) CreateStepTemplate(ctx context.Context, tpl *domain.StepDefinition) error {
	if tpl.ID == uuid.Nil {
		tpl.ID = uuid.New()
	}
	query := `INSERT INTO inspection_step_templates
              (id, step_number, step_name, checklist_items, instructions, photo_required, max_photos)
              VALUES ($1, $2, $3, $4, $5, $6, $7)
              ON CONFLICT (step_number) DO UPDATE SET
                step_name = EXCLUDED.step_name,
                checklist_items = EXCLUDED.checklist_items,
                instructions = EXCLUDED.instructions,
                photo_required = EXCLUDED.photo_required,
                max_photos = EXCLUDED.max_photos`
	_, err := r.db.Exec(ctx, query, tpl.ID, tpl.StepNumber, tpl.StepName, tpl.ChecklistItems,
		tpl.Instructions, tpl.PhotoRequired, tpl.MaxPhotos)
	return err
}

func (r *PostgresRepository) LoadPreferences(ctx context.Context, userID uuid.UUID) ([]domain.ChecklistPreference, error) {
	query := `SELECT step_number, item_name, weight FROM checklist_preferences
              WHERE user_id = $1 ORDER BY step_number, item_name`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prefs []domain.ChecklistPreference
	for rows.Next() {
		var p domain.ChecklistPreference
		if err := rows.Scan(&p.StepNumber, &p.ItemName, &p.Weight); err != nil {
			return nil, err
		}
		prefs = append(prefs, p)
	}
	return prefs, rows.Err()
}

func (r *PostgresRepository) SavePreferences(ctx context.Context, userID uuid.UUID, prefs []domain.ChecklistPreference) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Full replace: the caller always sends the complete preference set.
	if _, err := tx.Exec(ctx, `DELETE FROM checklist_preferences WHERE user_id = $1`, userID); err != nil {
		return err
	}

	query := `INSERT INTO checklist_preferences (user_id, step_number, item_name, weight) VALUES ($1, $2, $3, $4)`
	for _, p := range prefs {
		if _, err := tx.Exec(ctx, query, userID, p.StepNumber, p.ItemName, int(p.Weight)); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *PostgresRepository) SavePhoto(ctx context.Context, photo *domain.InspectionPhoto) error {
	// One row per slot. Re-uploading replaces the file and clears any
	// analysis from the previous photo.
	query := `INSERT INTO inspection_photos (id, inspection_id, step_id, photo_url, photo_order)
              VALUES ($1, $2, $3, $4, $5)
              ON CONFLICT (step_id, photo_order) DO UPDATE SET
                id = EXCLUDED.id,
                photo_url = EXCLUDED.photo_url,
                analysis = NULL,
                verdict = NULL,
                analyzed_at = NULL`
	_, err := r.db.Exec(ctx, query, photo.ID, photo.InspectionID, photo.StepID, photo.PhotoURL, photo.PhotoOrder)
	return err
}

func (r *PostgresRepository) DeletePhoto(ctx context.Context, photoID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM inspection_photos WHERE id = $1`, photoID)
	return err
}

func (r *PostgresRepository) SavePhotoAnalysis(ctx context.Context, photoID uuid.UUID, analysis string, verdict domain.Verdict) (bool, error) {
	query := `UPDATE inspection_photos SET analysis = $1, verdict = $2, analyzed_at = $3 WHERE id = $4`
	tag, err := r.db.Exec(ctx, query, analysis, string(verdict), time.Now(), photoID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresRepository) SaveCustomerReport(ctx context.Context, report *domain.CustomerReport) error {
	query := `INSERT INTO customer_reports (id, inspection_id, report_type, file_url, file_name, file_type)
              VALUES ($1, $2, $3, $4, $5, $6)
              ON CONFLICT (inspection_id, report_type) DO UPDATE SET
                id = EXCLUDED.id,
                file_url = EXCLUDED.file_url,
                file_name = EXCLUDED.file_name,
                file_type = EXCLUDED.file_type,
                analysis = NULL,
                verdict = NULL,
                analyzed_at = NULL`
	_, err := r.db.Exec(ctx, query, report.ID, report.InspectionID, string(report.ReportType),
		report.FileURL, report.FileName, report.FileType)
	return err
}

func (r *PostgresRepository) DeleteCustomerReport(ctx context.Context, inspectionID uuid.UUID, reportType domain.ReportType) error {
	query := `DELETE FROM customer_reports WHERE inspection_id = $1 AND report_type = $2`
	_, err := r.db.Exec(ctx, query, inspectionID, string(reportType))
	return err
}

func (r *PostgresRepository) SaveReportAnalysis(ctx context.Context, inspectionID uuid.UUID, reportType domain.ReportType, analysis string, verdict domain.Verdict) (bool, error) {
	query := `UPDATE customer_reports SET analysis = $1, verdict = $2, analyzed_at = $3
              WHERE inspection_id = $4 AND report_type = $5`
	tag, err := r.db.Exec(ctx, query, analysis, string(verdict), time.Now(), inspectionID, string(reportType))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
