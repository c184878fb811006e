package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/techprep/session-service/internal/models"
	"github.com/techprep/session-service/internal/services"
	"github.com/techprep/session-service/internal/utils"
)

type HandlerManager struct {
	sessionHandler  *SessionHandler
	questionHandler *QuestionHandler
	templateHandler *TemplateHandler
	authMiddleware  *CasdoorAuthMiddleware
	healthCheck     func(ctx context.Context) error
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	authMiddleware *CasdoorAuthMiddleware,
	logger utils.Logger,
) *HandlerManager {
	return &HandlerManager{
		sessionHandler:  NewSessionHandler(serviceManager.Session(), serviceManager.Retake(), serviceManager.Report(), logger),
		questionHandler: NewQuestionHandler(serviceManager.Question(), logger),
		templateHandler: NewTemplateHandler(serviceManager.Template(), serviceManager.Selection(), logger),
		authMiddleware:  authMiddleware,
		healthCheck:     serviceManager.HealthCheck,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	router.GET("/health", hm.health)

	authors := hm.authMiddleware.RequireRoleMiddleware(models.RoleInterviewer, models.RoleAdmin)

	v1 := router.Group("/api/v1")
	v1.Use(hm.authMiddleware.AuthMiddleware())
	{
		sessions := v1.Group("/sessions")
		{
			sessions.POST("", hm.sessionHandler.StartSession)
			sessions.GET("", hm.sessionHandler.ListSessions)
			sessions.GET("/:id", hm.sessionHandler.GetSession)
			sessions.GET("/:id/runner", hm.sessionHandler.GetRunnerState)
			sessions.POST("/:id/answers", hm.sessionHandler.SubmitAnswer)
			sessions.POST("/:id/answers/batch", hm.sessionHandler.SubmitAnswers)
			sessions.POST("/:id/submit", hm.sessionHandler.SubmitSession)
			sessions.POST("/:id/finish", hm.sessionHandler.FinishSession)
			sessions.GET("/:id/summary", hm.sessionHandler.GetSummary)
			sessions.POST("/:id/retake", hm.sessionHandler.RetakeSession)
			sessions.GET("/:id/report", hm.sessionHandler.DownloadReport)
		}

		// Learners see the assignments visible to them; authoring is role gated
		assignments := v1.Group("/assignments")
		{
			assignments.GET("", hm.templateHandler.ListAssignments)
			assignments.GET("/:id", hm.templateHandler.GetAssignment)
			assignments.POST("", authors, hm.templateHandler.CreateAssignment)
		}

		topics := v1.Group("/topics")
		topics.Use(authors)
		{
			topics.POST("", hm.questionHandler.CreateTopic)
			topics.GET("", hm.questionHandler.ListTopics)
		}

		questions := v1.Group("/questions")
		questions.Use(authors)
		{
			questions.POST("", hm.questionHandler.CreateQuestion)
			questions.GET("", hm.questionHandler.ListQuestions)
			questions.GET("/:id", hm.questionHandler.GetQuestion)
			questions.PUT("/:id", hm.questionHandler.UpdateQuestion)
			questions.PUT("/:id/practice", hm.questionHandler.SetPracticeFlag)
			questions.DELETE("/:id", hm.questionHandler.DeleteQuestion)
		}

		templates := v1.Group("/templates")
		templates.Use(authors)
		{
			templates.POST("", hm.templateHandler.CreateTemplate)
			templates.GET("", hm.templateHandler.ListTemplates)
			templates.GET("/:id", hm.templateHandler.GetTemplate)
			templates.GET("/:id/preview", hm.templateHandler.PreviewSelection)
		}
	}
}

func (hm *HandlerManager) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	if err := hm.healthCheck(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"service": "session-service",
			"error":   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "session-service",
	})
}
