package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/techprep/session-service/internal/cache"
	"github.com/techprep/session-service/internal/events"
	"github.com/techprep/session-service/internal/models"
	"github.com/techprep/session-service/internal/repositories"
)

// SessionDependencies are the collaborators shared by the session and retake services
type SessionDependencies struct {
	Selection SelectionService
	Grading   GradingService
	Summary   SummaryService
	Publisher events.EventPublisher
	Locker    *cache.SessionLocker
	Clock     func() time.Time
}

// clock truncates to microseconds, the precision postgres keeps, so a summary
// built before the commit matches one rebuilt from the stored row
func (d SessionDependencies) clock() func() time.Time {
	now := d.Clock
	if now == nil {
		now = time.Now
	}
	return func() time.Time { return now().UTC().Truncate(time.Microsecond) }
}

// ===== SESSION CREATION =====

// sessionOpener creates sessions for Start and Retake
type sessionOpener struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	selection SelectionService
	publisher events.EventPublisher
	now       func() time.Time
}

func newSessionOpener(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, deps SessionDependencies) *sessionOpener {
	return &sessionOpener{
		repo:      repo,
		db:        db,
		logger:    logger,
		selection: deps.Selection,
		publisher: deps.Publisher,
		now:       deps.clock(),
	}
}

// open returns the active session for (user, assignment) or creates the next attempt.
// retakeOf links the new session to the one being retaken.
func (o *sessionOpener) open(ctx context.Context, assignment *models.Assignment, userID string, retakeOf *models.Session) (*StartSessionResponse, error) {
	active, err := o.repo.Session().GetActive(ctx, o.db, userID, assignment.ID)
	if err == nil {
		o.logger.Info("Resuming active session",
			"session_id", active.ID,
			"assignment_id", assignment.ID,
			"user_id", userID)
		return &StartSessionResponse{Session: active, Resumed: true}, nil
	}
	if !repositories.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to check active session: %w", err)
	}

	now := o.now()
	if !assignment.IsOpen(now) {
		return nil, ErrAssignmentClosed
	}

	highest, err := o.repo.Session().MaxAttemptNumber(ctx, o.db, userID, assignment.ID)
	if err != nil {
		return nil, err
	}
	if assignment.MaxAttempts > 0 && highest >= assignment.MaxAttempts {
		return nil, ErrMaxAttemptsReached
	}

	template := assignment.Template
	if template == nil {
		template, err = o.repo.Template().GetByID(ctx, o.db, assignment.TemplateID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return nil, ErrTemplateNotFound
			}
			return nil, fmt.Errorf("failed to get template: %w", err)
		}
	}

	questions, err := o.selection.ResolveQuestions(ctx, template)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, ErrNoEligibleQuestions
	}

	session := newSession(userID, assignment, template, questions, nextAttemptNumber(highest, retakeOf), now)
	if retakeOf != nil {
		session.RetakeOfID = &retakeOf.ID
	}

	err = o.db.Transaction(func(tx *gorm.DB) error {
		return o.repo.Session().Create(ctx, tx, session)
	})
	if err != nil {
		// a concurrent start won the partial unique index; hand back its session
		if repositories.IsDuplicateKeyError(err) {
			active, getErr := o.repo.Session().GetActive(ctx, o.db, userID, assignment.ID)
			if getErr == nil {
				return &StartSessionResponse{Session: active, Resumed: true}, nil
			}
		}
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	o.logger.Info("Session started",
		"session_id", session.ID,
		"assignment_id", assignment.ID,
		"user_id", userID,
		"attempt", session.NumberAttempts,
		"total_items", session.TotalItems)

	eventType := events.SessionStarted
	if retakeOf != nil {
		eventType = events.SessionRetaken
	}
	publishEvent(ctx, o.publisher, o.logger, eventType, sessionEventData(session, ""))

	return &StartSessionResponse{Session: session}, nil
}

func newSession(userID string, assignment *models.Assignment, template *models.Template, questions []*models.Question, attempt int, now time.Time) *models.Session {
	ids := make([]uint, 0, len(questions))
	for _, q := range questions {
		ids = append(ids, q.ID)
	}

	session := &models.Session{
		UserID:         userID,
		AssignmentID:   assignment.ID,
		Kind:           template.Kind,
		Status:         models.SessionActive,
		NumberAttempts: attempt,
		TotalItems:     len(ids),
		QuestionIDs:    ids,
		StartedAt:      now,
	}
	if limit := template.Policy.Data().TimeLimit(); limit > 0 {
		expires := now.Add(limit)
		session.ExpiresAt = &expires
	}
	return session
}

// nextAttemptNumber never reuses an ordinal, even when an older session is retaken
func nextAttemptNumber(highest int, retakeOf *models.Session) int {
	next := highest + 1
	if retakeOf != nil && retakeOf.NumberAttempts+1 > next {
		next = retakeOf.NumberAttempts + 1
	}
	return next
}

// ===== ACCESS =====

// assignmentVisible checks the assignment scope against the user's groups.
// Group membership may have changed since the user was cached, so a denial is
// retried once against a fresh copy.
func assignmentVisible(ctx context.Context, repo repositories.Repository, assignment *models.Assignment, userID string) (bool, error) {
	if assignment.Visibility == models.VisibilityPublic || assignment.CreatedBy == userID {
		return true, nil
	}

	user, err := repo.User().GetByID(ctx, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get user: %w", err)
	}
	if assignment.VisibleTo(user) {
		return true, nil
	}

	repo.User().Refresh(ctx, userID)
	user, err = repo.User().GetByID(ctx, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get user: %w", err)
	}
	return assignment.VisibleTo(user), nil
}

func ownedSession(session *models.Session, userID string) error {
	if session.UserID != userID {
		return ErrSessionNotFound
	}
	return nil
}

func sessionLookupError(err error) error {
	if repositories.IsNotFoundError(err) {
		return ErrSessionNotFound
	}
	return fmt.Errorf("failed to get session: %w", err)
}

// ===== LOCKING =====

func acquireSessionLock(ctx context.Context, locker *cache.SessionLocker, sessionID uint) (func(), error) {
	if locker == nil {
		return func() {}, nil
	}
	release, err := locker.Acquire(ctx, sessionID)
	if err != nil {
		if errors.Is(err, cache.ErrLockNotAcquired) {
			return nil, ErrSessionBusy
		}
		return nil, err
	}
	return release, nil
}

// ===== COUNTERS =====

// recount rebuilds the counters from the full answer set
func recount(session *models.Session, answers []*models.Answer) {
	session.CorrectCount = 0
	session.IncorrectCount = 0
	session.TotalTimeMs = 0
	for _, a := range answers {
		if a.IsCorrect {
			session.CorrectCount++
		} else {
			session.IncorrectCount++
		}
		session.TotalTimeMs += a.TimeMs
	}
	session.TotalScore = percent(session.CorrectCount, session.TotalItems)
}

// applyAnswer updates the running counters for one new answer
func applyAnswer(session *models.Session, answer *models.Answer, position int) {
	if answer.IsCorrect {
		session.CorrectCount++
	} else {
		session.IncorrectCount++
	}
	session.TotalTimeMs += answer.TimeMs
	session.TotalScore = percent(session.CorrectCount, session.TotalItems)
	session.CurrentQuestionIndex = min(max(session.CurrentQuestionIndex, position+1), session.TotalItems)
}

// ===== EVENTS =====

func sessionEventData(session *models.Session, reason string) events.SessionEventData {
	return events.SessionEventData{
		SessionID:     session.ID,
		UserID:        session.UserID,
		AssignmentID:  session.AssignmentID,
		Status:        string(session.Status),
		AttemptNumber: session.NumberAttempts,
		TotalItems:    session.TotalItems,
		TotalScore:    session.TotalScore,
		Reason:        reason,
		RetakeOfID:    session.RetakeOfID,
	}
}

// publishEvent never fails the caller; the state change is already committed
func publishEvent(ctx context.Context, publisher events.EventPublisher, logger *slog.Logger, eventType events.EventType, data interface{}) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, events.NewEvent(eventType, data)); err != nil {
		logger.Error("Failed to publish event",
			"event_type", eventType,
			"error", err)
	}
}
