package services

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/techprep/session-service/internal/repositories"
)

type retakeService struct {
	repo   repositories.Repository
	db     *gorm.DB
	logger *slog.Logger
	opener *sessionOpener
}

func NewRetakeService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, deps SessionDependencies) RetakeService {
	return &retakeService{
		repo:   repo,
		db:     db,
		logger: logger,
		opener: newSessionOpener(repo, db, logger, deps),
	}
}

// Retake opens a new attempt on the source session's assignment. The source
// session is only read; its answers and counters stay as they were.
func (s *retakeService) Retake(ctx context.Context, sessionID uint, userID string) (resp *StartSessionResponse, err error) {
	ctx, span := startSpan(ctx, "session.retake", sessionID)
	defer func() { endSpan(span, err) }()

	s.logger.Info("Retaking session",
		"session_id", sessionID,
		"user_id", userID)

	source, err := s.repo.Session().GetByID(ctx, s.db, sessionID)
	if err != nil {
		return nil, sessionLookupError(err)
	}
	if err := ownedSession(source, userID); err != nil {
		return nil, err
	}
	if !source.Status.IsClosed() {
		return nil, ErrSessionNotSubmitted
	}

	assignment, err := s.repo.Assignment().GetByID(ctx, s.db, source.AssignmentID)
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

	resp, err = s.opener.open(ctx, assignment, userID, source)
	if err != nil {
		return nil, err
	}

	if !resp.Resumed {
		s.logger.Info("Session retaken",
			"source_session_id", source.ID,
			"session_id", resp.Session.ID,
			"attempt", resp.Session.NumberAttempts)
	}
	return resp, nil
}
