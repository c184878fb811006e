package handlers

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/techprep/session-service/internal/models"
	"github.com/techprep/session-service/internal/repositories"
	"github.com/techprep/session-service/internal/services"
	"github.com/techprep/session-service/internal/utils"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type SessionHandler struct {
	BaseHandler
	sessionService services.SessionService
	retakeService  services.RetakeService
	reportService  services.ReportService
}

func NewSessionHandler(
	sessionService services.SessionService,
	retakeService services.RetakeService,
	reportService services.ReportService,
	logger utils.Logger,
) *SessionHandler {
	return &SessionHandler{
		BaseHandler:    NewBaseHandler(logger),
		sessionService: sessionService,
		retakeService:  retakeService,
		reportService:  reportService,
	}
}

type FinishSessionRequest struct {
	Reason string `json:"reason"`
}

// StartSession starts a session for an assignment, or resumes the caller's active one
// @Summary Start session
// @Tags sessions
// @Accept json
// @Produce json
// @Param session body services.StartSessionRequest true "Assignment to run"
// @Success 201 {object} services.StartSessionResponse
// @Success 200 {object} services.StartSessionResponse "Active session resumed"
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /sessions [post]
func (h *SessionHandler) StartSession(c *gin.Context) {
	var req services.StartSessionRequest
	if !h.bindJSON(c, &req) {
		return
	}
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Starting session", "assignment_id", req.AssignmentID)

	resp, err := h.sessionService.Start(c.Request.Context(), &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	status := http.StatusCreated
	if resp.Resumed {
		status = http.StatusOK
	}
	c.JSON(status, resp)
}

// ListSessions lists the caller's sessions
// @Summary List my sessions
// @Tags sessions
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param size query int false "Page size" default(20)
// @Param status query string false "Session status"
// @Param assignment_id query uint false "Assignment ID"
// @Success 200 {object} services.SessionListResponse
// @Router /sessions [get]
func (h *SessionHandler) ListSessions(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	filters := repositories.SessionFilters{
		AssignmentID: h.parseUintQueryPtr(c, "assignment_id"),
		SortBy:       c.Query("sort_by"),
		SortOrder:    c.Query("sort_order"),
	}
	filters.Limit, filters.Offset = h.parsePage(c)
	if status := c.Query("status"); status != "" {
		s := models.SessionStatus(status)
		filters.Status = &s
	}

	h.LogRequest(c, "Listing sessions")

	resp, err := h.sessionService.List(c.Request.Context(), userID, filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetSession returns one of the caller's sessions
// @Summary Get session
// @Tags sessions
// @Produce json
// @Param id path uint true "Session ID"
// @Success 200 {object} models.Session
// @Failure 404 {object} ErrorResponse
// @Router /sessions/{id} [get]
func (h *SessionHandler) GetSession(c *gin.Context) {
	id, userID, ok := h.sessionParams(c)
	if !ok {
		return
	}

	session, err := h.sessionService.GetSession(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// GetRunnerState returns what the runner needs to render the session
// @Summary Runner state
// @Tags sessions
// @Produce json
// @Param id path uint true "Session ID"
// @Success 200 {object} services.RunnerState
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /sessions/{id}/runner [get]
func (h *SessionHandler) GetRunnerState(c *gin.Context) {
	id, userID, ok := h.sessionParams(c)
	if !ok {
		return
	}

	state, err := h.sessionService.GetRunnerState(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// SubmitAnswer records one answer
// @Summary Submit answer
// @Tags sessions
// @Accept json
// @Produce json
// @Param id path uint true "Session ID"
// @Param answer body services.SubmitAnswerRequest true "Answer"
// @Success 200 {object} services.AnswerResult
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /sessions/{id}/answers [post]
func (h *SessionHandler) SubmitAnswer(c *gin.Context) {
	id, userID, ok := h.sessionParams(c)
	if !ok {
		return
	}
	var req services.SubmitAnswerRequest
	if !h.bindJSON(c, &req) {
		return
	}

	h.LogRequest(c, "Submitting answer", "session_id", id, "question_id", req.QuestionID)

	result, err := h.sessionService.SubmitAnswer(c.Request.Context(), id, userID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// SubmitAnswers records several answers; item failures are reported per item.
// A batch stopped by a session error still returns the items committed before it.
// @Summary Submit answers (batch)
// @Tags sessions
// @Accept json
// @Produce json
// @Param id path uint true "Session ID"
// @Param answers body services.SubmitAnswersRequest true "Answers"
// @Success 200 {object} services.BatchResult
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /sessions/{id}/answers/batch [post]
func (h *SessionHandler) SubmitAnswers(c *gin.Context) {
	id, userID, ok := h.sessionParams(c)
	if !ok {
		return
	}
	var req services.SubmitAnswersRequest
	if !h.bindJSON(c, &req) {
		return
	}

	h.LogRequest(c, "Submitting answers batch", "session_id", id, "count", len(req.Answers))

	result, err := h.sessionService.SubmitAnswers(c.Request.Context(), id, userID, &req)
	if err != nil {
		if result == nil || len(result.Items) == 0 {
			h.handleServiceError(c, err)
			return
		}
		// committed items are reported; result.Error carries the reason the batch stopped
		h.LogError(c, err, "Answers batch stopped early", "session_id", id, "processed", len(result.Items))
	}
	c.JSON(http.StatusOK, result)
}

// SubmitSession closes the session and returns its summary
// @Summary Submit session
// @Tags sessions
// @Produce json
// @Param id path uint true "Session ID"
// @Success 200 {object} models.Summary
// @Failure 404 {object} ErrorResponse
// @Router /sessions/{id}/submit [post]
func (h *SessionHandler) SubmitSession(c *gin.Context) {
	id, userID, ok := h.sessionParams(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Submitting session", "session_id", id)

	summary, err := h.sessionService.Submit(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// FinishSession ends a session early
// @Summary Finish session
// @Tags sessions
// @Accept json
// @Produce json
// @Param id path uint true "Session ID"
// @Param body body FinishSessionRequest false "Finish reason"
// @Success 200 {object} models.Summary
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /sessions/{id}/finish [post]
func (h *SessionHandler) FinishSession(c *gin.Context) {
	id, userID, ok := h.sessionParams(c)
	if !ok {
		return
	}

	// the body is optional
	var req FinishSessionRequest
	if c.Request.ContentLength > 0 && !h.bindJSON(c, &req) {
		return
	}

	h.LogRequest(c, "Finishing session", "session_id", id, "reason", req.Reason)

	summary, err := h.sessionService.Finish(c.Request.Context(), id, userID, req.Reason)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// GetSummary returns the summary of a session
// @Summary Session summary
// @Tags sessions
// @Produce json
// @Param id path uint true "Session ID"
// @Success 200 {object} models.Summary
// @Router /sessions/{id}/summary [get]
func (h *SessionHandler) GetSummary(c *gin.Context) {
	id, userID, ok := h.sessionParams(c)
	if !ok {
		return
	}

	summary, err := h.sessionService.GetSummary(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// RetakeSession starts the next attempt of a closed session
// @Summary Retake session
// @Tags sessions
// @Produce json
// @Param id path uint true "Session ID"
// @Success 201 {object} services.StartSessionResponse
// @Failure 409 {object} ErrorResponse
// @Router /sessions/{id}/retake [post]
func (h *SessionHandler) RetakeSession(c *gin.Context) {
	id, userID, ok := h.sessionParams(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Retaking session", "session_id", id)

	resp, err := h.retakeService.Retake(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	status := http.StatusCreated
	if resp.Resumed {
		status = http.StatusOK
	}
	c.JSON(status, resp)
}

// DownloadReport streams the xlsx report of a closed session
// @Summary Session report
// @Tags sessions
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path uint true "Session ID"
// @Success 200 {file} file
// @Failure 409 {object} ErrorResponse
// @Router /sessions/{id}/report [get]
func (h *SessionHandler) DownloadReport(c *gin.Context) {
	id, userID, ok := h.sessionParams(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Exporting session report", "session_id", id)

	// buffer so a failed export can still answer with a JSON error
	var buf bytes.Buffer
	name, err := h.reportService.ExportSessionReport(c.Request.Context(), id, userID, &buf)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (h *SessionHandler) sessionParams(c *gin.Context) (uint, string, bool) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return 0, "", false
	}
	userID, ok := h.userID(c)
	if !ok {
		return 0, "", false
	}
	return id, userID, true
}
