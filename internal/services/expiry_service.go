package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/techprep/session-service/internal/models"
	"github.com/techprep/session-service/internal/repositories"
)

const expirySweepBatch = 200

type expiryService struct {
	repo       repositories.Repository
	db         *gorm.DB
	logger     *slog.Logger
	sessions   SessionService
	staleAfter time.Duration
}

// NewExpiryService closes overdue sessions through the session service.
// staleAfter <= 0 disables abandoning sessions without a time limit.
func NewExpiryService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, sessions SessionService, staleAfter time.Duration) ExpiryService {
	return &expiryService{
		repo:       repo,
		db:         db,
		logger:     logger,
		sessions:   sessions,
		staleAfter: staleAfter,
	}
}

func (s *expiryService) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	ctx, span := tracer.Start(ctx, "session.sweep_expired")
	defer span.End()

	expired, err := s.repo.Session().ListExpired(ctx, s.db, now, expirySweepBatch)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired sessions: %w", err)
	}
	closed := s.finishAll(ctx, expired, models.EndReasonExpired)

	if s.staleAfter > 0 {
		stale, err := s.repo.Session().ListStartedBefore(ctx, s.db, now.Add(-s.staleAfter), expirySweepBatch)
		if err != nil {
			return closed, fmt.Errorf("failed to list stale sessions: %w", err)
		}
		closed += s.finishAll(ctx, stale, models.EndReasonAbandoned)
	}

	if closed > 0 {
		s.logger.Info("Expired sessions closed", "count", closed)
	}
	return closed, nil
}

func (s *expiryService) finishAll(ctx context.Context, sessions []*models.Session, reason string) int {
	closed := 0
	for _, session := range sessions {
		if ctx.Err() != nil {
			break
		}
		if _, err := s.sessions.ForceFinish(ctx, session.ID, reason); err != nil {
			// a busy session is picked up by the next sweep
			if errors.Is(err, ErrSessionBusy) {
				s.logger.Debug("Skipping busy session", "session_id", session.ID)
				continue
			}
			s.logger.Error("Failed to close session",
				"session_id", session.ID,
				"reason", reason,
				"error", err)
			continue
		}
		closed++
	}
	return closed
}

// Run sweeps on every tick until the context is cancelled
func (s *expiryService) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}

	s.logger.Info("Starting expiry sweeper", "interval", interval, "stale_after", s.staleAfter)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Expiry sweeper stopped")
			return nil
		case <-ticker.C:
			if _, err := s.SweepExpired(ctx, time.Now().UTC()); err != nil {
				s.logger.Error("Expiry sweep failed", "error", err)
			}
		}
	}
}
