package services

import (
	"context"
	"io"
	"time"

	"github.com/techprep/session-service/internal/models"
	"github.com/techprep/session-service/internal/repositories"
	"github.com/techprep/session-service/internal/validator"
)

// ===== REQUEST/RESPONSE DTOs =====

// Use business validator types
type CreateTopicRequest = validator.TopicCreateRequest
type CreateQuestionRequest = validator.QuestionCreateRequest
type UpdateQuestionRequest = validator.QuestionUpdateRequest
type CreateTemplateRequest = validator.TemplateCreateRequest
type CreateAssignmentRequest = validator.AssignmentCreateRequest

// ===== SESSION RELATED DTOs =====

type StartSessionRequest struct {
	AssignmentID uint `json:"assignment_id" validate:"required"`
}

type StartSessionResponse struct {
	Session *models.Session `json:"session"`
	// Resumed is true when an already active session was returned
	Resumed bool `json:"resumed"`
}

type SubmitAnswerRequest struct {
	QuestionID        uint    `json:"question_id" validate:"required"`
	SelectedOptionIDs []uint  `json:"selected_option_ids" validate:"omitempty,max=50"`
	Text              *string `json:"text" validate:"omitempty,max=10000"`
	TimeMs            int64   `json:"time_ms" validate:"min=0"`
}

type SubmitAnswersRequest struct {
	Answers []SubmitAnswerRequest `json:"answers" validate:"required,min=1,max=200,dive"`
}

type AnswerResult struct {
	QuestionID   uint     `json:"question_id"`
	IsCorrect    bool     `json:"is_correct"`
	MatchPercent *float64 `json:"match_percent,omitempty"`
}

// BatchItemResult is the outcome of one item of a batch; Error is set instead of Result on failure
type BatchItemResult struct {
	QuestionID uint          `json:"question_id"`
	Result     *AnswerResult `json:"result,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// BatchResult lists the processed items. Error is set when a session level error
// stopped the batch; the items before it stay committed.
type BatchResult struct {
	SessionID uint              `json:"session_id"`
	Items     []BatchItemResult `json:"items"`
	Accepted  int               `json:"accepted"`
	Rejected  int               `json:"rejected"`
	Error     string            `json:"error,omitempty"`
}

// RunnerOption hides the correctness flag from the learner
type RunnerOption struct {
	ID   uint   `json:"id"`
	Text string `json:"text"`
}

type RunnerQuestion struct {
	ID       uint                   `json:"id"`
	Position int                    `json:"position"`
	Body     string                 `json:"body"`
	Type     models.QuestionType    `json:"type"`
	Level    models.DifficultyLevel `json:"level"`
	Topic    string                 `json:"topic"`
	Options  []RunnerOption         `json:"options,omitempty"`
	Answered bool                   `json:"answered"`
}

type RunnerState struct {
	SessionID           uint                 `json:"session_id"`
	Status              models.SessionStatus `json:"status"`
	Kind                models.TemplateKind  `json:"kind"`
	CurrentIndex        int                  `json:"current_index"`
	TotalItems          int                  `json:"total_items"`
	AnsweredQuestionIDs []uint               `json:"answered_question_ids"`
	StartedAt           time.Time            `json:"started_at"`
	ExpiresAt           *time.Time           `json:"expires_at,omitempty"`
	Policy              models.SessionPolicy `json:"policy"`
	Questions           []RunnerQuestion     `json:"questions"`
}

type SessionListResponse struct {
	Sessions []*models.Session `json:"sessions"`
	Total    int64             `json:"total"`
	Page     int               `json:"page"`
	Size     int               `json:"size"`
}

// ===== GRADING DTOs =====

type Submission struct {
	SelectedOptionIDs []uint
	Text              *string
}

type Verdict struct {
	IsCorrect    bool     `json:"is_correct"`
	MatchPercent *float64 `json:"match_percent,omitempty"`
}

// ===== AUTHORING DTOs =====

type QuestionListResponse struct {
	Questions []*models.Question `json:"questions"`
	Total     int64              `json:"total"`
	Page      int                `json:"page"`
	Size      int                `json:"size"`
}

type TemplateListResponse struct {
	Templates []*models.Template `json:"templates"`
	Total     int64              `json:"total"`
	Page      int                `json:"page"`
	Size      int                `json:"size"`
}

type AssignmentListResponse struct {
	Assignments []*models.Assignment `json:"assignments"`
	Total       int64                `json:"total"`
	Page        int                  `json:"page"`
	Size        int                  `json:"size"`
}

type SelectionPreview struct {
	TemplateID uint                           `json:"template_id"`
	Total      int                            `json:"total"`
	ByType     map[models.QuestionType]int    `json:"by_type"`
	ByLevel    map[models.DifficultyLevel]int `json:"by_level"`
	Questions  []*models.Question             `json:"questions"`
}

// ===== SERVICE INTERFACES =====

type ServiceManager interface {
	Initialize(ctx context.Context) error

	Session() SessionService
	Retake() RetakeService
	Selection() SelectionService
	Grading() GradingService
	Summary() SummaryService
	Expiry() ExpiryService
	Report() ReportService
	Question() QuestionService
	Template() TemplateService

	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// SessionService runs the session state machine
type SessionService interface {
	Start(ctx context.Context, req *StartSessionRequest, userID string) (*StartSessionResponse, error)
	GetRunnerState(ctx context.Context, sessionID uint, userID string) (*RunnerState, error)
	SubmitAnswer(ctx context.Context, sessionID uint, userID string, req *SubmitAnswerRequest) (*AnswerResult, error)
	SubmitAnswers(ctx context.Context, sessionID uint, userID string, req *SubmitAnswersRequest) (*BatchResult, error)
	Submit(ctx context.Context, sessionID uint, userID string) (*models.Summary, error)
	Finish(ctx context.Context, sessionID uint, userID string, reason string) (*models.Summary, error)

	// ForceFinish closes a session without the ownership check; used by housekeeping
	ForceFinish(ctx context.Context, sessionID uint, reason string) (*models.Summary, error)

	GetSession(ctx context.Context, sessionID uint, userID string) (*models.Session, error)
	GetSummary(ctx context.Context, sessionID uint, userID string) (*models.Summary, error)
	List(ctx context.Context, userID string, filters repositories.SessionFilters) (*SessionListResponse, error)
}

type RetakeService interface {
	Retake(ctx context.Context, sessionID uint, userID string) (*StartSessionResponse, error)
}

type SelectionService interface {
	// ResolveQuestions returns the ordered selection for a template
	ResolveQuestions(ctx context.Context, template *models.Template) ([]*models.Question, error)
	PreviewSelection(ctx context.Context, templateID uint, userID string) (*SelectionPreview, error)
}

type GradingService interface {
	Grade(question *models.Question, submission Submission, policy models.SessionPolicy) (*Verdict, error)
	Threshold(policy models.SessionPolicy) float64
}

type SummaryService interface {
	Build(ctx context.Context, session *models.Session) (*models.Summary, error)
	Invalidate(ctx context.Context, sessionID uint)
}

type ExpiryService interface {
	// SweepExpired finishes overdue and stale sessions and returns how many were closed
	SweepExpired(ctx context.Context, now time.Time) (int, error)
	Run(ctx context.Context, interval time.Duration) error
}

type ReportService interface {
	ExportSessionReport(ctx context.Context, sessionID uint, userID string, w io.Writer) (string, error)
}

type QuestionService interface {
	CreateTopic(ctx context.Context, req *CreateTopicRequest, userID string) (*models.Topic, error)
	ListTopics(ctx context.Context) ([]*models.Topic, error)

	Create(ctx context.Context, req *CreateQuestionRequest, userID string) (*models.Question, error)
	GetByID(ctx context.Context, id uint, userID string) (*models.Question, error)
	Update(ctx context.Context, id uint, req *UpdateQuestionRequest, userID string) (*models.Question, error)
	Delete(ctx context.Context, id uint, userID string) error
	List(ctx context.Context, filters repositories.QuestionFilters, userID string) (*QuestionListResponse, error)
	SetUsableInPractice(ctx context.Context, id uint, usable bool, userID string) error
}

// TemplateService covers templates and the assignments built on them
type TemplateService interface {
	Create(ctx context.Context, req *CreateTemplateRequest, userID string) (*models.Template, error)
	GetByID(ctx context.Context, id uint, userID string) (*models.Template, error)
	List(ctx context.Context, filters repositories.TemplateFilters, userID string) (*TemplateListResponse, error)

	CreateAssignment(ctx context.Context, req *CreateAssignmentRequest, userID string) (*models.Assignment, error)
	GetAssignment(ctx context.Context, id uint, userID string) (*models.Assignment, error)
	ListAssignments(ctx context.Context, filters repositories.AssignmentFilters, userID string) (*AssignmentListResponse, error)
}
