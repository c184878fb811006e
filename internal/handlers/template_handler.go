package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/techprep/session-service/internal/models"
	"github.com/techprep/session-service/internal/repositories"
	"github.com/techprep/session-service/internal/services"
	"github.com/techprep/session-service/internal/utils"
)

// TemplateHandler serves templates, their selection preview and assignments
type TemplateHandler struct {
	BaseHandler
	templateService  services.TemplateService
	selectionService services.SelectionService
}

func NewTemplateHandler(
	templateService services.TemplateService,
	selectionService services.SelectionService,
	logger utils.Logger,
) *TemplateHandler {
	return &TemplateHandler{
		BaseHandler:      NewBaseHandler(logger),
		templateService:  templateService,
		selectionService: selectionService,
	}
}

// ===== TEMPLATES =====

// CreateTemplate creates a practice or interview template
// @Summary Create template
// @Tags templates
// @Accept json
// @Produce json
// @Param template body services.CreateTemplateRequest true "Template"
// @Success 201 {object} models.Template
// @Failure 400 {object} ErrorResponse
// @Router /templates [post]
func (h *TemplateHandler) CreateTemplate(c *gin.Context) {
	var req services.CreateTemplateRequest
	if !h.bindJSON(c, &req) {
		return
	}
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Creating template", "name", req.Name, "kind", req.Kind)

	template, err := h.templateService.Create(c.Request.Context(), &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, template)
}

// GetTemplate returns a template
// @Summary Get template
// @Tags templates
// @Produce json
// @Param id path uint true "Template ID"
// @Success 200 {object} models.Template
// @Router /templates/{id} [get]
func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	template, err := h.templateService.GetByID(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, template)
}

// ListTemplates lists templates
// @Summary List templates
// @Tags templates
// @Produce json
// @Param kind query string false "practice or interview"
// @Success 200 {object} services.TemplateListResponse
// @Router /templates [get]
func (h *TemplateHandler) ListTemplates(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	filters := repositories.TemplateFilters{
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}
	filters.Limit, filters.Offset = h.parsePage(c)
	if k := c.Query("kind"); k != "" {
		kind := models.TemplateKind(k)
		filters.Kind = &kind
	}
	if createdBy := c.Query("created_by"); createdBy != "" {
		filters.CreatedBy = &createdBy
	}

	resp, err := h.templateService.List(c.Request.Context(), filters, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// PreviewSelection shows which questions the template currently selects
// @Summary Preview selection
// @Tags templates
// @Produce json
// @Param id path uint true "Template ID"
// @Success 200 {object} services.SelectionPreview
// @Router /templates/{id}/preview [get]
func (h *TemplateHandler) PreviewSelection(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	preview, err := h.selectionService.PreviewSelection(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, preview)
}

// ===== ASSIGNMENTS =====

// CreateAssignment publishes a template to learners
// @Summary Create assignment
// @Tags assignments
// @Accept json
// @Produce json
// @Param assignment body services.CreateAssignmentRequest true "Assignment"
// @Success 201 {object} models.Assignment
// @Router /assignments [post]
func (h *TemplateHandler) CreateAssignment(c *gin.Context) {
	var req services.CreateAssignmentRequest
	if !h.bindJSON(c, &req) {
		return
	}
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Creating assignment", "template_id", req.TemplateID, "visibility", req.Visibility)

	assignment, err := h.templateService.CreateAssignment(c.Request.Context(), &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, assignment)
}

// GetAssignment returns an assignment visible to the caller
// @Summary Get assignment
// @Tags assignments
// @Produce json
// @Param id path uint true "Assignment ID"
// @Success 200 {object} models.Assignment
// @Router /assignments/{id} [get]
func (h *TemplateHandler) GetAssignment(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	assignment, err := h.templateService.GetAssignment(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, assignment)
}

// ListAssignments lists assignments visible to the caller
// @Summary List assignments
// @Tags assignments
// @Produce json
// @Param template_id query uint false "Template ID"
// @Param open query bool false "Only assignments open now"
// @Success 200 {object} services.AssignmentListResponse
// @Router /assignments [get]
func (h *TemplateHandler) ListAssignments(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	filters := repositories.AssignmentFilters{
		TemplateID: h.parseUintQueryPtr(c, "template_id"),
		SortBy:     c.Query("sort_by"),
		SortOrder:  c.Query("sort_order"),
	}
	filters.Limit, filters.Offset = h.parsePage(c)
	if c.Query("open") == "true" {
		now := time.Now().UTC()
		filters.OpenAt = &now
	}

	resp, err := h.templateService.ListAssignments(c.Request.Context(), filters, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
