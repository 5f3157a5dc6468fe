package delivery

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/shiweiumichedu/autovet-app-pwa/internal/domain"
	"github.com/shiweiumichedu/autovet-app-pwa/internal/usecase"
)

// AdminHandler manages tenant-level data: step templates and the known-issue
// database. It sits behind an operator token, not behind the user session
// headers.
type AdminHandler struct {
	repo  domain.InspectionRepository
	token string
	log   *zap.Logger
}

func NewAdminHandler(repo domain.InspectionRepository, token string, log *zap.Logger) *AdminHandler {
	return &AdminHandler{repo: repo, token: token, log: log}
}

func (h *AdminHandler) Register(r *gin.Engine) {
	admin := r.Group("/admin", h.withToken)
	{
		admin.GET("/templates", h.listTemplates)
		admin.POST("/templates", h.upsertTemplate)
		admin.GET("/known-issues", h.listKnownIssues)
		admin.POST("/known-issues", h.createKnownIssue)
	}
}

func (h *AdminHandler) withToken(c *gin.Context) {
	if h.token == "" || c.GetHeader("X-Admin-Token") != h.token {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	c.Next()
}

func (h *AdminHandler) listTemplates(c *gin.Context) {
	templates, err := h.repo.GetStepTemplates(c.Request.Context())
	if err != nil {
		h.log.Error("listing step templates failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"templates": templates})
}

type upsertTemplateRequest struct {
	StepNumber     int      `json:"step_number"`
	StepName       string   `json:"step_name"`
	ChecklistItems []string `json:"checklist_items"`
	Instructions   string   `json:"instructions"`
	PhotoRequired  bool     `json:"photo_required"`
	MaxPhotos      int      `json:"max_photos"`
}

func (h *AdminHandler) upsertTemplate(c *gin.Context) {
	var req upsertTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.StepNumber < 1 || req.StepName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "step_number and step_name are required"})
		return
	}

	tpl := &domain.StepDefinition{
		StepNumber:     req.StepNumber,
		StepName:       req.StepName,
		ChecklistItems: req.ChecklistItems,
		Instructions:   req.Instructions,
		PhotoRequired:  req.PhotoRequired,
		MaxPhotos:      req.MaxPhotos,
	}
	if tpl.MaxPhotos == 0 {
		tpl.MaxPhotos = usecase.DefaultMaxPhotos
	}
	if err := h.repo.CreateStepTemplate(c.Request.Context(), tpl); err != nil {
		h.log.Error("saving step template failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusCreated, tpl)
}

func (h *AdminHandler) listKnownIssues(c *gin.Context) {
	make := c.Query("make")
	model := c.Query("model")
	year, _ := strconv.Atoi(c.Query("year"))
	if make == "" || model == "" || year == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "make, model and year are required"})
		return
	}

	issues, err := h.repo.GetKnownIssues(c.Request.Context(), make, model, year)
	if err != nil {
		h.log.Error("listing known issues failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"issues": issues})
}

type createKnownIssueRequest struct {
	Make        string               `json:"make"`
	Model       string               `json:"model"`
	YearStart   int                  `json:"year_start"`
	YearEnd     int                  `json:"year_end"`
	Category    domain.IssueCategory `json:"category"`
	Severity    domain.IssueSeverity `json:"severity"`
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Source      string               `json:"source"`
}

func (h *AdminHandler) createKnownIssue(c *gin.Context) {
	var req createKnownIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Make == "" || req.Model == "" || req.Title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "make, model and title are required"})
		return
	}
	if req.YearEnd < req.YearStart {
		c.JSON(http.StatusBadRequest, gin.H{"error": "year_end must not precede year_start"})
		return
	}

	issue := &domain.VehicleKnownIssue{
		Make:        req.Make,
		Model:       req.Model,
		YearStart:   req.YearStart,
		YearEnd:     req.YearEnd,
		Category:    req.Category,
		Severity:    req.Severity,
		Title:       req.Title,
		Description: req.Description,
		Source:      req.Source,
	}
	if err := h.repo.CreateKnownIssue(c.Request.Context(), issue); err != nil {
		h.log.Error("saving known issue failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusCreated, issue)
}
