package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/techprep/session-service/internal/cache"
	"github.com/techprep/session-service/internal/models"
	"github.com/techprep/session-service/internal/repositories"
)

type summaryService struct {
	repo     repositories.Repository
	db       *gorm.DB
	logger   *slog.Logger
	cacheTTL time.Duration
}

func NewSummaryService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, cacheTTL time.Duration) SummaryService {
	if cacheTTL <= 0 {
		cacheTTL = cache.SummaryCacheConfig.TTL
	}
	return &summaryService{
		repo:     repo,
		db:       db,
		logger:   logger,
		cacheTTL: cacheTTL,
	}
}

// Build computes the summary from persisted answers. Closed sessions are read-only,
// so their summaries are served from the cache until Invalidate.
func (s *summaryService) Build(ctx context.Context, session *models.Session) (*models.Summary, error) {
	if !session.Status.IsClosed() {
		return s.compute(ctx, session)
	}

	var summary models.Summary
	err := s.repo.Cache().Summary.CacheOrExecute(ctx, cache.SessionSummaryKey(session.ID), &summary, s.cacheTTL, func() (interface{}, error) {
		return s.compute(ctx, session)
	})
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

func (s *summaryService) Invalidate(ctx context.Context, sessionID uint) {
	cache.InvalidateSessionSummary(ctx, s.repo.Cache(), sessionID)
}

func (s *summaryService) compute(ctx context.Context, session *models.Session) (*models.Summary, error) {
	answers, err := s.repo.Answer().ListBySession(ctx, s.db, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load answers: %w", err)
	}

	questions, err := s.repo.Question().GetByIDs(ctx, s.db, answeredQuestionIDs(answers))
	if err != nil {
		return nil, fmt.Errorf("failed to load questions: %w", err)
	}

	byID := make(map[uint]*models.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	return Summarize(session, answers, byID), nil
}

// ===== PURE AGGREGATION =====

const unknownGroup = "unknown"

// Summarize groups answers by topic name, answer type and question level.
// Answers whose question is gone land in the "unknown" group. Groups are sorted by key.
func Summarize(session *models.Session, answers []*models.Answer, questionsByID map[uint]*models.Question) *models.Summary {
	byTopic := newGroupCounter()
	byType := newGroupCounter()
	byLevel := newGroupCounter()

	correct, incorrect := 0, 0
	var totalMs int64

	for _, a := range answers {
		topic, level := unknownGroup, unknownGroup
		if q, ok := questionsByID[a.QuestionID]; ok && q != nil {
			topic = q.TopicName()
			level = string(q.Level)
		}

		byTopic.add(topic, a.IsCorrect)
		byType.add(string(a.Type), a.IsCorrect)
		byLevel.add(level, a.IsCorrect)

		if a.IsCorrect {
			correct++
		} else {
			incorrect++
		}
		totalMs += a.TimeMs
	}

	return &models.Summary{
		SessionID:      session.ID,
		UserID:         session.UserID,
		AssignmentID:   session.AssignmentID,
		Status:         session.Status,
		AttemptNumber:  session.NumberAttempts,
		TotalItems:     session.TotalItems,
		AnsweredCount:  len(answers),
		CorrectCount:   correct,
		IncorrectCount: incorrect,
		TotalScore:     percent(correct, session.TotalItems),
		TotalTimeSec:   round2(float64(totalMs) / 1000),
		StartedAt:      session.StartedAt.UTC(),
		SubmittedAt:    utcPtr(session.SubmittedAt),
		FinishedAt:     utcPtr(session.FinishedAt),
		ByTopic:        byTopic.stats(),
		ByType:         byType.stats(),
		ByLevel:        byLevel.stats(),
	}
}

type groupCounter struct {
	correct map[string]int
	total   map[string]int
}

func newGroupCounter() *groupCounter {
	return &groupCounter{
		correct: make(map[string]int),
		total:   make(map[string]int),
	}
}

func (g *groupCounter) add(key string, isCorrect bool) {
	g.total[key]++
	if isCorrect {
		g.correct[key]++
	}
}

func (g *groupCounter) stats() []models.GroupStat {
	out := make([]models.GroupStat, 0, len(g.total))
	for key, total := range g.total {
		out = append(out, models.GroupStat{
			Key:             key,
			Correct:         g.correct[key],
			Total:           total,
			AccuracyPercent: percent(g.correct[key], total),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func answeredQuestionIDs(answers []*models.Answer) []uint {
	ids := make([]uint, 0, len(answers))
	for _, a := range answers {
		ids = append(ids, a.QuestionID)
	}
	return ids
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
