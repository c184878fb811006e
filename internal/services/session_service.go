package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/techprep/session-service/internal/cache"
	"github.com/techprep/session-service/internal/events"
	"github.com/techprep/session-service/internal/models"
	"github.com/techprep/session-service/internal/repositories"
	"github.com/techprep/session-service/internal/validator"
)

var tracer = otel.Tracer("github.com/techprep/session-service/internal/services")

type sessionService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator

	grading   GradingService
	summary   SummaryService
	publisher events.EventPublisher
	locker    *cache.SessionLocker
	opener    *sessionOpener
	now       func() time.Time
}

func NewSessionService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator, deps SessionDependencies) SessionService {
	return &sessionService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: validator,
		grading:   deps.Grading,
		summary:   deps.Summary,
		publisher: deps.Publisher,
		locker:    deps.Locker,
		opener:    newSessionOpener(repo, db, logger, deps),
		now:       deps.clock(),
	}
}

func startSpan(ctx context.Context, name string, sessionID uint) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attribute.Int64("session.id", int64(sessionID))))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// ===== CORE SESSION OPERATIONS =====

func (s *sessionService) Start(ctx context.Context, req *StartSessionRequest, userID string) (resp *StartSessionResponse, err error) {
	ctx, span := tracer.Start(ctx, "session.start", trace.WithAttributes(attribute.Int64("assignment.id", int64(req.AssignmentID))))
	defer func() { endSpan(span, err) }()

	s.logger.Info("Starting session",
		"assignment_id", req.AssignmentID,
		"user_id", userID)

	if err := s.validator.Validate(req); err != nil {
		return nil, validationFailed(err)
	}

	assignment, err := s.repo.Assignment().GetByID(ctx, s.db, req.AssignmentID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAssignmentNotFound
		}
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}

	visible, err := assignmentVisible(ctx, s.repo, assignment, userID)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, ErrAssignmentNotFound
	}

	return s.opener.open(ctx, assignment, userID, nil)
}

func (s *sessionService) GetRunnerState(ctx context.Context, sessionID uint, userID string) (*RunnerState, error) {
	session, err := s.repo.Session().GetByID(ctx, s.db, sessionID)
	if err != nil {
		return nil, sessionLookupError(err)
	}
	if err := ownedSession(session, userID); err != nil {
		return nil, err
	}

	if session.Status == models.SessionActive && session.IsExpired(s.now()) {
		if _, err := s.closeSession(ctx, sessionID, "", models.EndReasonExpired, true); err != nil {
			return nil, err
		}
		return nil, ErrSessionNotActive
	}
	if session.Status != models.SessionActive {
		return nil, ErrSessionNotActive
	}

	policy, err := s.sessionPolicy(ctx, s.db, session)
	if err != nil {
		return nil, err
	}

	questions, err := s.repo.Question().GetByIDs(ctx, s.db, session.QuestionIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load questions: %w", err)
	}
	answers, err := s.repo.Answer().ListBySession(ctx, s.db, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load answers: %w", err)
	}

	return s.buildRunnerState(session, policy, questions, answers), nil
}

func (s *sessionService) SubmitAnswer(ctx context.Context, sessionID uint, userID string, req *SubmitAnswerRequest) (result *AnswerResult, err error) {
	ctx, span := startSpan(ctx, "session.submit_answer", sessionID)
	defer func() { endSpan(span, err) }()

	if err := s.validator.Validate(req); err != nil {
		return nil, validationFailed(err)
	}

	release, err := acquireSessionLock(ctx, s.locker, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	return s.recordAnswer(ctx, sessionID, userID, req)
}

// SubmitAnswers records items in order. Item errors are reported per item. A session
// level error stops the batch; it is returned together with the items committed before it.
func (s *sessionService) SubmitAnswers(ctx context.Context, sessionID uint, userID string, req *SubmitAnswersRequest) (result *BatchResult, err error) {
	ctx, span := startSpan(ctx, "session.submit_answers", sessionID)
	defer func() { endSpan(span, err) }()

	if err := s.validator.Validate(req); err != nil {
		return nil, validationFailed(err)
	}

	release, err := acquireSessionLock(ctx, s.locker, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	result = &BatchResult{SessionID: sessionID, Items: make([]BatchItemResult, 0, len(req.Answers))}
	for i := range req.Answers {
		item := &req.Answers[i]
		answer, err := s.recordAnswer(ctx, sessionID, userID, item)
		if err != nil {
			if !isItemError(err) {
				result.Error = err.Error()
				s.logger.Warn("Batch answers stopped",
					"session_id", sessionID,
					"processed", len(result.Items),
					"error", err)
				return result, err
			}
			result.Items = append(result.Items, BatchItemResult{QuestionID: item.QuestionID, Error: err.Error()})
			result.Rejected++
			continue
		}
		result.Items = append(result.Items, BatchItemResult{QuestionID: item.QuestionID, Result: answer})
		result.Accepted++
	}

	s.logger.Info("Batch answers recorded",
		"session_id", sessionID,
		"accepted", result.Accepted,
		"rejected", result.Rejected)
	return result, nil
}

// Submit is idempotent: a closed session returns its existing summary
func (s *sessionService) Submit(ctx context.Context, sessionID uint, userID string) (summary *models.Summary, err error) {
	ctx, span := startSpan(ctx, "session.submit", sessionID)
	defer func() { endSpan(span, err) }()

	release, err := acquireSessionLock(ctx, s.locker, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	var (
		session *models.Session
		changed bool
		expired bool
	)
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		session, err = s.repo.Session().GetForUpdate(ctx, tx, sessionID)
		if err != nil {
			return sessionLookupError(err)
		}
		if err := ownedSession(session, userID); err != nil {
			return err
		}

		if session.Status.IsClosed() {
			return nil
		}
		if session.Status != models.SessionActive || !session.Status.CanTransitionTo(models.SessionSubmitted) {
			return ErrSessionNotActive
		}

		now := s.now()
		if session.IsExpired(now) {
			expired = true
			changed = true
			return s.complete(ctx, tx, session, models.EndReasonExpired, now)
		}

		answers, err := s.repo.Answer().ListBySession(ctx, tx, session.ID)
		if err != nil {
			return fmt.Errorf("failed to load answers: %w", err)
		}
		recount(session, answers)

		reason := models.EndReasonSubmitted
		session.SubmittedAt = &now
		session.EndReason = &reason
		session.Status = models.SessionSubmitted
		changed = true

		return s.repo.Session().Update(ctx, tx, session)
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.summary.Invalidate(ctx, session.ID)
		if expired {
			publishEvent(ctx, s.publisher, s.logger, events.SessionExpired, sessionEventData(session, models.EndReasonExpired))
		} else {
			publishEvent(ctx, s.publisher, s.logger, events.SessionSubmitted, sessionEventData(session, models.EndReasonSubmitted))
		}
		s.logger.Info("Session submitted",
			"session_id", session.ID,
			"status", session.Status,
			"correct", session.CorrectCount,
			"total_items", session.TotalItems)
	}

	return s.summary.Build(ctx, session)
}

func (s *sessionService) Finish(ctx context.Context, sessionID uint, userID string, reason string) (summary *models.Summary, err error) {
	ctx, span := startSpan(ctx, "session.finish", sessionID)
	defer func() { endSpan(span, err) }()

	if reason == "" {
		reason = models.EndReasonFinished
	}
	if !isFinishReason(reason) {
		return nil, fmt.Errorf("%w: unknown finish reason %q", ErrValidation, reason)
	}

	session, err := s.closeSession(ctx, sessionID, userID, reason, false)
	if err != nil {
		return nil, err
	}
	return s.summary.Build(ctx, session)
}

func (s *sessionService) ForceFinish(ctx context.Context, sessionID uint, reason string) (summary *models.Summary, err error) {
	ctx, span := startSpan(ctx, "session.force_finish", sessionID)
	defer func() { endSpan(span, err) }()

	session, err := s.closeSession(ctx, sessionID, "", reason, true)
	if err != nil {
		return nil, err
	}
	return s.summary.Build(ctx, session)
}

// ===== QUERY OPERATIONS =====

func (s *sessionService) GetSession(ctx context.Context, sessionID uint, userID string) (*models.Session, error) {
	session, err := s.repo.Session().GetByID(ctx, s.db, sessionID)
	if err != nil {
		return nil, sessionLookupError(err)
	}
	if err := ownedSession(session, userID); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *sessionService) GetSummary(ctx context.Context, sessionID uint, userID string) (*models.Summary, error) {
	session, err := s.GetSession(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	return s.summary.Build(ctx, session)
}

func (s *sessionService) List(ctx context.Context, userID string, filters repositories.SessionFilters) (*SessionListResponse, error) {
	filters.UserID = &userID
	filters.Limit, filters.Offset = clampPage(filters.Limit, filters.Offset)

	sessions, total, err := s.repo.Session().List(ctx, s.db, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	return &SessionListResponse{
		Sessions: sessions,
		Total:    total,
		Page:     filters.Offset/filters.Limit + 1,
		Size:     filters.Limit,
	}, nil
}

// ===== INTERNAL =====

func (s *sessionService) recordAnswer(ctx context.Context, sessionID uint, userID string, req *SubmitAnswerRequest) (*AnswerResult, error) {
	var (
		session *models.Session
		answer  *models.Answer
		expired bool
	)

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		session, err = s.repo.Session().GetForUpdate(ctx, tx, sessionID)
		if err != nil {
			return sessionLookupError(err)
		}
		if err := ownedSession(session, userID); err != nil {
			return err
		}
		if session.Status != models.SessionActive {
			return ErrSessionNotActive
		}

		now := s.now()
		if session.IsExpired(now) {
			expired = true
			return s.complete(ctx, tx, session, models.EndReasonExpired, now)
		}

		position := session.PositionOf(req.QuestionID)
		if position < 0 {
			return ErrQuestionNotInSession
		}

		existing, err := s.repo.Answer().CountForQuestion(ctx, tx, session.ID, req.QuestionID)
		if err != nil {
			return err
		}
		if existing > 0 {
			return ErrAlreadyAnswered
		}

		question, err := s.repo.Question().GetByID(ctx, tx, req.QuestionID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrQuestionNotFound
			}
			return fmt.Errorf("failed to get question: %w", err)
		}

		policy, err := s.sessionPolicy(ctx, tx, session)
		if err != nil {
			return err
		}

		submission := Submission{SelectedOptionIDs: normalizeOptionIDs(req.SelectedOptionIDs), Text: req.Text}
		verdict, err := s.grading.Grade(question, submission, policy)
		if err != nil {
			return err
		}

		answer = newAnswer(session.ID, question, submission, verdict, req.TimeMs, now)
		if err := s.repo.Answer().Create(ctx, tx, answer); err != nil {
			if repositories.IsDuplicateKeyError(err) {
				return ErrAlreadyAnswered
			}
			return err
		}

		applyAnswer(session, answer, position)
		return s.repo.Session().Update(ctx, tx, session)
	})
	if err != nil {
		return nil, err
	}

	if expired {
		s.summary.Invalidate(ctx, session.ID)
		publishEvent(ctx, s.publisher, s.logger, events.SessionExpired, sessionEventData(session, models.EndReasonExpired))
		s.logger.Info("Session expired while answering", "session_id", session.ID)
		return nil, ErrSessionExpired
	}

	publishEvent(ctx, s.publisher, s.logger, events.AnswerRecorded, events.AnswerEventData{
		SessionID:    session.ID,
		UserID:       session.UserID,
		QuestionID:   answer.QuestionID,
		IsCorrect:    answer.IsCorrect,
		MatchPercent: answer.MatchPercent,
		TimeMs:       answer.TimeMs,
	})

	return &AnswerResult{
		QuestionID:   answer.QuestionID,
		IsCorrect:    answer.IsCorrect,
		MatchPercent: answer.MatchPercent,
	}, nil
}

// closeSession completes a session. An empty userID skips the ownership check;
// activeOnly leaves sessions that are no longer active untouched.
func (s *sessionService) closeSession(ctx context.Context, sessionID uint, userID, reason string, activeOnly bool) (*models.Session, error) {
	release, err := acquireSessionLock(ctx, s.locker, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	var (
		session *models.Session
		changed bool
	)
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		session, err = s.repo.Session().GetForUpdate(ctx, tx, sessionID)
		if err != nil {
			return sessionLookupError(err)
		}
		if userID != "" {
			if err := ownedSession(session, userID); err != nil {
				return err
			}
		}

		if session.Status == models.SessionCompleted {
			return nil
		}
		if activeOnly && session.Status != models.SessionActive {
			return nil
		}

		changed = true
		return s.complete(ctx, tx, session, reason, s.now())
	})
	if err != nil {
		return nil, err
	}

	// a finish always recomputes, so any cached summary is stale
	s.summary.Invalidate(ctx, session.ID)

	if changed {
		eventType := events.SessionFinished
		if reason == models.EndReasonExpired {
			eventType = events.SessionExpired
		}
		publishEvent(ctx, s.publisher, s.logger, eventType, sessionEventData(session, reason))
		s.logger.Info("Session finished",
			"session_id", session.ID,
			"reason", reason,
			"correct", session.CorrectCount,
			"total_items", session.TotalItems)
	}
	return session, nil
}

// complete moves a locked session to completed, recomputing counters from its answers
func (s *sessionService) complete(ctx context.Context, tx *gorm.DB, session *models.Session, reason string, now time.Time) error {
	if !session.Status.CanTransitionTo(models.SessionCompleted) {
		return fmt.Errorf("%w: cannot move session from %s to %s", ErrConflict, session.Status, models.SessionCompleted)
	}

	answers, err := s.repo.Answer().ListBySession(ctx, tx, session.ID)
	if err != nil {
		return fmt.Errorf("failed to load answers: %w", err)
	}
	recount(session, answers)

	if session.SubmittedAt == nil {
		session.SubmittedAt = &now
	}
	session.FinishedAt = &now
	session.EndReason = &reason
	session.Status = models.SessionCompleted

	return s.repo.Session().Update(ctx, tx, session)
}

func (s *sessionService) sessionPolicy(ctx context.Context, tx *gorm.DB, session *models.Session) (models.SessionPolicy, error) {
	assignment, err := s.repo.Assignment().GetByID(ctx, tx, session.AssignmentID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return models.SessionPolicy{}, ErrAssignmentNotFound
		}
		return models.SessionPolicy{}, fmt.Errorf("failed to get assignment: %w", err)
	}
	if assignment.Template == nil {
		return models.SessionPolicy{}, ErrTemplateNotFound
	}
	return assignment.Template.Policy.Data(), nil
}

func (s *sessionService) buildRunnerState(session *models.Session, policy models.SessionPolicy, questions []*models.Question, answers []*models.Answer) *RunnerState {
	answered := make(map[uint]bool, len(answers))
	answeredIDs := make([]uint, 0, len(answers))
	for _, a := range answers {
		answered[a.QuestionID] = true
		answeredIDs = append(answeredIDs, a.QuestionID)
	}

	byID := make(map[uint]*models.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	state := &RunnerState{
		SessionID:           session.ID,
		Status:              session.Status,
		Kind:                session.Kind,
		CurrentIndex:        session.CurrentQuestionIndex,
		TotalItems:          session.TotalItems,
		AnsweredQuestionIDs: answeredIDs,
		StartedAt:           session.StartedAt.UTC(),
		ExpiresAt:           utcPtr(session.ExpiresAt),
		Policy:              policy,
		Questions:           make([]RunnerQuestion, 0, len(session.QuestionIDs)),
	}

	for position, id := range session.QuestionIDs {
		q, ok := byID[id]
		if !ok {
			s.logger.Warn("Session question no longer exists",
				"session_id", session.ID,
				"question_id", id)
			continue
		}

		rq := RunnerQuestion{
			ID:       q.ID,
			Position: position,
			Body:     q.Body,
			Type:     q.Type,
			Level:    q.Level,
			Topic:    q.TopicName(),
			Answered: answered[q.ID],
		}
		for _, opt := range q.Options {
			rq.Options = append(rq.Options, RunnerOption{ID: opt.ID, Text: opt.Text})
		}
		state.Questions = append(state.Questions, rq)
	}
	return state
}

func newAnswer(sessionID uint, question *models.Question, submission Submission, verdict *Verdict, timeMs int64, now time.Time) *models.Answer {
	answer := &models.Answer{
		SessionID:    sessionID,
		QuestionID:   question.ID,
		Type:         question.Type,
		IsCorrect:    verdict.IsCorrect,
		MatchPercent: verdict.MatchPercent,
		TimeMs:       timeMs,
		AnsweredAt:   now,
	}
	if question.Type.IsChoice() {
		answer.SelectedOptionIDs = submission.SelectedOptionIDs
	} else {
		answer.Text = submission.Text
	}
	return answer
}

// isItemError reports errors that concern one batch item rather than the session
func isItemError(err error) bool {
	return errors.Is(err, ErrAlreadyAnswered) ||
		errors.Is(err, ErrQuestionNotInSession) ||
		errors.Is(err, ErrQuestionNotFound) ||
		errors.Is(err, ErrValidation)
}

func isFinishReason(reason string) bool {
	switch reason {
	case models.EndReasonFinished, models.EndReasonExpired, models.EndReasonAbandoned:
		return true
	}
	return false
}
