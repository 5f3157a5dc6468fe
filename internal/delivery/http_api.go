package delivery

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shiweiumichedu/autovet-app-pwa/internal/domain"
	"github.com/shiweiumichedu/autovet-app-pwa/internal/usecase"
)

const maxUploadBytes = 15 << 20

// APIHandler exposes the wizard JSON API consumed by the PWA. Tenant and
// user resolution happen upstream; requests arrive with the resolved ids in
// headers.
type APIHandler struct {
	sessions    *usecase.SessionUseCase
	templates   *usecase.TemplateUseCase
	attachments *usecase.AttachmentUseCase
	reports     *usecase.ReportUseCase
	vinOCR      *usecase.VINOCRUseCase
	cache       domain.SessionCache
	log         *zap.Logger
}

func NewAPIHandler(
	sessions *usecase.SessionUseCase,
	templates *usecase.TemplateUseCase,
	attachments *usecase.AttachmentUseCase,
	reports *usecase.ReportUseCase,
	vinOCR *usecase.VINOCRUseCase,
	cache domain.SessionCache,
	log *zap.Logger,
) *APIHandler {
	return &APIHandler{
		sessions:    sessions,
		templates:   templates,
		attachments: attachments,
		reports:     reports,
		vinOCR:      vinOCR,
		cache:       cache,
		log:         log,
	}
}

func (h *APIHandler) Register(r *gin.Engine) {
	api := r.Group("/api", h.withSession)
	{
		api.GET("/inspections", h.listInspections)
		api.POST("/inspections", h.createInspection)
		api.GET("/inspections/:id", h.getInspection)
		api.DELETE("/inspections/:id", h.deleteInspection)
		api.GET("/inspections/:id/resume", h.resumeInspection)
		api.GET("/inspections/:id/score", h.scoreInspection)

		api.POST("/inspections/:id/steps/:step/advance", h.advanceStep)
		api.POST("/inspections/:id/steps/:step/retreat", h.retreatStep)

		api.POST("/inspections/:id/steps/:step/photos/:order", h.attachPhoto)
		api.DELETE("/inspections/:id/steps/:step/photos/:order", h.detachPhoto)

		api.POST("/inspections/:id/reports/:type", h.attachReport)
		api.DELETE("/inspections/:id/reports/:type", h.detachReport)

		api.POST("/inspections/:id/report", h.generateReport)
		api.GET("/inspections/:id/export/pdf", h.exportPDF)
		api.GET("/inspections/:id/export/csv", h.exportCSV)

		api.GET("/templates", h.listTemplates)
		api.GET("/preferences", h.getPreferences)
		api.PUT("/preferences", h.savePreferences)

		api.POST("/vin-ocr", h.readVIN)
	}

	device := r.Group("/api/session")
	{
		device.GET("", h.recallSession)
		device.POST("", h.rememberSession)
		device.DELETE("", h.forgetSession)
	}
}

const sessionKey = "session"

func (h *APIHandler) withSession(c *gin.Context) {
	userID, err := uuid.Parse(c.GetHeader("X-User-ID"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid X-User-ID header"})
		return
	}
	categoryID, err := uuid.Parse(c.GetHeader("X-Category-ID"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid X-Category-ID header"})
		return
	}
	c.Set(sessionKey, domain.Session{
		UserID:     userID,
		CategoryID: categoryID,
		Phone:      c.GetHeader("X-Phone"),
	})
	c.Next()
}

func session(c *gin.Context) domain.Session {
	return c.MustGet(sessionKey).(domain.Session)
}

// respondError maps domain errors onto HTTP statuses. Validation failures
// carry the offending field back to the client.
func (h *APIHandler) respondError(c *gin.Context, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Message, "field": verr.Field})
		return
	}
	if strings.Contains(err.Error(), "not found") {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func parseID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid %s", name)})
		return uuid.Nil, false
	}
	return id, true
}

func parseStep(c *gin.Context) (int, bool) {
	step, err := strconv.Atoi(c.Param("step"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid step number"})
		return 0, false
	}
	return step, true
}

type createInspectionRequest struct {
	Year    int    `json:"year"`
	Make    string `json:"make"`
	Model   string `json:"model"`
	Trim    string `json:"trim"`
	Mileage int    `json:"mileage"`
	VIN     string `json:"vin"`
	Color   string `json:"color"`
}

func (h *APIHandler) createInspection(c *gin.Context) {
	var req createInspectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	inspection, err := h.sessions.Create(c.Request.Context(), session(c), domain.VehicleDescriptor{
		Year:    req.Year,
		Make:    req.Make,
		Model:   req.Model,
		Trim:    req.Trim,
		Mileage: req.Mileage,
		VIN:     req.VIN,
		Color:   req.Color,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, inspection)
}

func (h *APIHandler) listInspections(c *gin.Context) {
	inspections, err := h.sessions.List(c.Request.Context(), session(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"inspections": inspections})
}

func (h *APIHandler) getInspection(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	inspection, err := h.sessions.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, inspection)
}

func (h *APIHandler) deleteInspection(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.sessions.Delete(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *APIHandler) resumeInspection(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	inspection, step, err := h.sessions.Resume(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"inspection": inspection, "current_step": step})
}

func (h *APIHandler) scoreInspection(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	inspection, err := h.sessions.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	score := usecase.Score(inspection.Steps)
	resp := gin.H{
		"applicable": score.Applicable,
		"earned":     score.Earned,
		"max":        score.MaxPossible,
	}
	if score.Applicable {
		resp["percentage"] = score.Percentage
		resp["tier"] = score.Tier()
	}
	c.JSON(http.StatusOK, resp)
}

type stepRequest struct {
	Checklist  []domain.ChecklistItem `json:"checklist"`
	Notes      string                 `json:"notes"`
	Rating     int                    `json:"rating"`
	Completion *completionRequest     `json:"completion"`
}

type completionRequest struct {
	OverallRating int             `json:"overall_rating"`
	Decision      domain.Decision `json:"decision"`
	Notes         string          `json:"notes"`
}

func (h *APIHandler) advanceStep(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	step, ok := parseStep(c)
	if !ok {
		return
	}
	var req stepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	var completion *usecase.Completion
	if req.Completion != nil {
		completion = &usecase.Completion{
			OverallRating: req.Completion.OverallRating,
			Decision:      req.Completion.Decision,
			Notes:         req.Completion.Notes,
		}
	}

	outcome, err := h.sessions.Advance(c.Request.Context(), id, step, usecase.StepInput{
		Checklist: req.Checklist,
		Notes:     req.Notes,
		Rating:    req.Rating,
	}, completion)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"next_step": outcome.NextStep, "completed": outcome.Completed})
}

func (h *APIHandler) retreatStep(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	step, ok := parseStep(c)
	if !ok {
		return
	}
	var req stepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	outcome, err := h.sessions.Retreat(c.Request.Context(), id, step, usecase.StepInput{
		Checklist: req.Checklist,
		Notes:     req.Notes,
		Rating:    req.Rating,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"prev_step": outcome.PrevStep, "exit": outcome.Exit})
}

func readUpload(c *gin.Context, field string) ([]byte, *multipart.FileHeader, bool) {
	fh, err := c.FormFile(field)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("missing %s upload", field)})
		return nil, nil, false
	}
	if fh.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return nil, nil, false
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable upload"})
		return nil, nil, false
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable upload"})
		return nil, nil, false
	}
	return data, fh, true
}

func (h *APIHandler) attachPhoto(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	step, ok := parseStep(c)
	if !ok {
		return
	}
	order, err := strconv.Atoi(c.Param("order"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid photo slot"})
		return
	}
	data, fh, ok := readUpload(c, "photo")
	if !ok {
		return
	}

	inspection, err := h.sessions.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	mimeType := fh.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	photo, err := h.attachments.AttachPhoto(c.Request.Context(), inspection, step, order, data, mimeType)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, photo)
}

func (h *APIHandler) detachPhoto(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	step, ok := parseStep(c)
	if !ok {
		return
	}
	order, err := strconv.Atoi(c.Param("order"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid photo slot"})
		return
	}
	photoID, err := uuid.Parse(c.Query("photo_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid photo_id"})
		return
	}

	if err := h.attachments.DetachPhoto(c.Request.Context(), id, photoID, step, order); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *APIHandler) attachReport(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	reportType := domain.ReportType(c.Param("type"))
	data, fh, ok := readUpload(c, "file")
	if !ok {
		return
	}

	inspection, err := h.sessions.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	mimeType := fh.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/pdf"
	}
	report, err := h.attachments.AttachReport(c.Request.Context(), inspection, reportType, fh.Filename, data, mimeType)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, report)
}

func (h *APIHandler) detachReport(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.attachments.DetachReport(c.Request.Context(), id, domain.ReportType(c.Param("type"))); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *APIHandler) generateReport(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	url, err := h.reports.GenerateAndStore(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"report_url": url})
}

func (h *APIHandler) exportPDF(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	data, err := h.reports.ExportToPDF(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=inspection_%s.pdf", id))
	c.Data(http.StatusOK, "application/pdf", data)
}

func (h *APIHandler) exportCSV(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	data, err := h.reports.ExportToCSV(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=inspection_%s.csv", id))
	c.Data(http.StatusOK, "text/csv", data)
}

func (h *APIHandler) listTemplates(c *gin.Context) {
	templates, err := h.templates.StepTemplates(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"templates": templates})
}

func (h *APIHandler) getPreferences(c *gin.Context) {
	prefs, err := h.templates.Preferences(c.Request.Context(), session(c).UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"preferences": prefs})
}

type preferenceRequest struct {
	StepNumber int           `json:"step_number"`
	ItemName   string        `json:"item_name"`
	Weight     domain.Weight `json:"weight"`
}

func (h *APIHandler) savePreferences(c *gin.Context) {
	var req struct {
		Preferences []preferenceRequest `json:"preferences"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	prefs := make([]domain.ChecklistPreference, 0, len(req.Preferences))
	for _, p := range req.Preferences {
		prefs = append(prefs, domain.ChecklistPreference{
			StepNumber: p.StepNumber,
			ItemName:   p.ItemName,
			Weight:     p.Weight,
		})
	}
	if err := h.templates.SavePreferences(c.Request.Context(), session(c).UserID, prefs); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *APIHandler) readVIN(c *gin.Context) {
	data, _, ok := readUpload(c, "image")
	if !ok {
		return
	}
	vin, err := h.vinOCR.ReadVIN(data)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"vin": vin})
}

func (h *APIHandler) recallSession(c *gin.Context) {
	token := c.GetHeader("X-Device-Token")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing X-Device-Token header"})
		return
	}
	sess, err := h.cache.Recall(c.Request.Context(), token)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if sess == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":     sess.UserID,
		"category_id": sess.CategoryID,
		"phone":       sess.Phone,
	})
}

func (h *APIHandler) rememberSession(c *gin.Context) {
	token := c.GetHeader("X-Device-Token")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing X-Device-Token header"})
		return
	}
	var req struct {
		UserID     uuid.UUID `json:"user_id"`
		CategoryID uuid.UUID `json:"category_id"`
		Phone      string    `json:"phone"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == uuid.Nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.cache.Remember(c.Request.Context(), token, domain.Session{
		UserID:     req.UserID,
		CategoryID: req.CategoryID,
		Phone:      req.Phone,
	}); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *APIHandler) forgetSession(c *gin.Context) {
	token := c.GetHeader("X-Device-Token")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing X-Device-Token header"})
		return
	}
	if err := h.cache.Forget(c.Request.Context(), token); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
