package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/techprep/session-service/internal/models"
	"github.com/techprep/session-service/internal/repositories"
	"github.com/techprep/session-service/internal/services"
	"github.com/techprep/session-service/internal/utils"
)

// QuestionHandler serves topic and question authoring
type QuestionHandler struct {
	BaseHandler
	questionService services.QuestionService
}

func NewQuestionHandler(questionService services.QuestionService, logger utils.Logger) *QuestionHandler {
	return &QuestionHandler{
		BaseHandler:     NewBaseHandler(logger),
		questionService: questionService,
	}
}

type PracticeFlagRequest struct {
	UsableInPractice *bool `json:"usable_in_practice" binding:"required"`
}

// ===== TOPICS =====

// CreateTopic creates a topic
// @Summary Create topic
// @Tags topics
// @Accept json
// @Produce json
// @Param topic body services.CreateTopicRequest true "Topic"
// @Success 201 {object} models.Topic
// @Failure 409 {object} ErrorResponse
// @Router /topics [post]
func (h *QuestionHandler) CreateTopic(c *gin.Context) {
	var req services.CreateTopicRequest
	if !h.bindJSON(c, &req) {
		return
	}
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Creating topic", "name", req.Name)

	topic, err := h.questionService.CreateTopic(c.Request.Context(), &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, topic)
}

// ListTopics lists every topic
// @Summary List topics
// @Tags topics
// @Produce json
// @Success 200 {array} models.Topic
// @Router /topics [get]
func (h *QuestionHandler) ListTopics(c *gin.Context) {
	topics, err := h.questionService.ListTopics(c.Request.Context())
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": topics})
}

// ===== QUESTIONS =====

// CreateQuestion creates a question with its options
// @Summary Create question
// @Tags questions
// @Accept json
// @Produce json
// @Param question body services.CreateQuestionRequest true "Question"
// @Success 201 {object} models.Question
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /questions [post]
func (h *QuestionHandler) CreateQuestion(c *gin.Context) {
	var req services.CreateQuestionRequest
	if !h.bindJSON(c, &req) {
		return
	}
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Creating question", "type", req.Type, "topic_id", req.TopicID)

	question, err := h.questionService.Create(c.Request.Context(), &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, question)
}

// GetQuestion returns a question with its options
// @Summary Get question
// @Tags questions
// @Produce json
// @Param id path uint true "Question ID"
// @Success 200 {object} models.Question
// @Router /questions/{id} [get]
func (h *QuestionHandler) GetQuestion(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	question, err := h.questionService.GetByID(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, question)
}

// ListQuestions lists questions with filters
// @Summary List questions
// @Tags questions
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param size query int false "Page size" default(20)
// @Param type query string false "single, multi or written"
// @Param level query string false "basic, intermediate or advanced"
// @Param topic_id query uint false "Topic ID"
// @Param practice query bool false "Usable in practice"
// @Param q query string false "Body search"
// @Success 200 {object} services.QuestionListResponse
// @Router /questions [get]
func (h *QuestionHandler) ListQuestions(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Listing questions")

	filters := h.parseQuestionFilters(c)
	resp, err := h.questionService.List(c.Request.Context(), filters, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// UpdateQuestion updates the fields that are set
// @Summary Update question
// @Tags questions
// @Accept json
// @Produce json
// @Param id path uint true "Question ID"
// @Param question body services.UpdateQuestionRequest true "Changes"
// @Success 200 {object} models.Question
// @Failure 403 {object} ErrorResponse
// @Router /questions/{id} [put]
func (h *QuestionHandler) UpdateQuestion(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	var req services.UpdateQuestionRequest
	if !h.bindJSON(c, &req) {
		return
	}
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Updating question", "question_id", id)

	question, err := h.questionService.Update(c.Request.Context(), id, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, question)
}

// SetPracticeFlag toggles whether practice templates may select the question
// @Summary Toggle practice flag
// @Tags questions
// @Accept json
// @Param id path uint true "Question ID"
// @Param body body PracticeFlagRequest true "Flag"
// @Success 204
// @Router /questions/{id}/practice [put]
func (h *QuestionHandler) SetPracticeFlag(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	var req PracticeFlagRequest
	if !h.bindJSON(c, &req) {
		return
	}
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Setting practice flag", "question_id", id, "usable", *req.UsableInPractice)

	if err := h.questionService.SetUsableInPractice(c.Request.Context(), id, *req.UsableInPractice, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteQuestion deletes a question
// @Summary Delete question
// @Tags questions
// @Param id path uint true "Question ID"
// @Success 204
// @Router /questions/{id} [delete]
func (h *QuestionHandler) DeleteQuestion(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Deleting question", "question_id", id)

	if err := h.questionService.Delete(c.Request.Context(), id, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *QuestionHandler) parseQuestionFilters(c *gin.Context) repositories.QuestionFilters {
	filters := repositories.QuestionFilters{
		TopicID:   h.parseUintQueryPtr(c, "topic_id"),
		Query:     c.Query("q"),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}
	filters.Limit, filters.Offset = h.parsePage(c)

	if t := c.Query("type"); t != "" {
		qType := models.QuestionType(t)
		filters.Type = &qType
	}
	if l := c.Query("level"); l != "" {
		level := models.DifficultyLevel(l)
		filters.Level = &level
	}
	if createdBy := c.Query("created_by"); createdBy != "" {
		filters.CreatedBy = &createdBy
	}
	if p := c.Query("practice"); p != "" {
		if practice, err := strconv.ParseBool(p); err == nil {
			filters.Practice = &practice
		}
	}
	return filters
}
