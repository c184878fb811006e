package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/techprep/session-service/internal/cache"
	"github.com/techprep/session-service/internal/events"
	"github.com/techprep/session-service/internal/models"
	"github.com/techprep/session-service/internal/repositories"
	"github.com/techprep/session-service/internal/repositories/postgres"
	"github.com/techprep/session-service/internal/testutil"
	"github.com/techprep/session-service/internal/validator"
)

// ===== FAKES =====

// stubUsers is an in-memory user store. Pending groups are applied on Refresh,
// which mimics a membership change the cached copy has not seen yet.
type stubUsers struct {
	mu        sync.Mutex
	users     map[string]*models.User
	pending   map[string][]string
	refreshes int
}

func newStubUsers(users ...*models.User) *stubUsers {
	s := &stubUsers{users: make(map[string]*models.User), pending: make(map[string][]string)}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *stubUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, repositories.ErrNotFound)
	}
	copied := *u
	return &copied, nil
}

func (s *stubUsers) GetByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	out := make([]*models.User, 0, len(ids))
	for _, id := range ids {
		if u, err := s.GetByID(ctx, id); err == nil {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *stubUsers) ExistsByID(ctx context.Context, id string) (bool, error) {
	_, err := s.GetByID(ctx, id)
	return err == nil, nil
}

func (s *stubUsers) Refresh(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshes++
	if groups, ok := s.pending[id]; ok {
		s.users[id].Groups = groups
		delete(s.pending, id)
	}
}

// fakeClock returns a fixed time. With a step set, every reading moves it forward.
type fakeClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	c.now = c.now.Add(c.step)
	return now
}

func (c *fakeClock) Tick(step time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.step = step
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// ===== HARNESS =====

const (
	learnerID     = "learner-1"
	otherLearner  = "learner-2"
	interviewerID = "interviewer-1"
	adminID       = "admin-1"
)

type harness struct {
	db        *gorm.DB
	repo      repositories.Repository
	users     *stubUsers
	clock     *fakeClock
	publisher *events.MockEventPublisher
	logger    *slog.Logger

	sessions  SessionService
	retakes   RetakeService
	expiry    ExpiryService
	reports   ReportService
	questions QuestionService
	templates TemplateService
	selection SelectionService
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	redis      *redis.Client
	staleAfter time.Duration
}

func withLockRedis(client *redis.Client) harnessOption {
	return func(c *harnessConfig) { c.redis = client }
}

func withStaleAfter(d time.Duration) harnessOption {
	return func(c *harnessConfig) { c.staleAfter = d }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	var cfg harnessConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db := testutil.NewDB(t)
	users := newStubUsers(
		&models.User{ID: learnerID, Role: models.RoleLearner},
		&models.User{ID: otherLearner, Role: models.RoleLearner},
		&models.User{ID: interviewerID, Role: models.RoleInterviewer},
		&models.User{ID: adminID, Role: models.RoleAdmin},
	)

	// summaries are not cached here; the summary cache has its own test
	repo := postgres.NewPostgreSQLRepository(postgres.RepositoryConfig{DB: db, UserRepository: users})

	h := &harness{
		db:        db,
		repo:      repo,
		users:     users,
		clock:     newFakeClock(),
		publisher: events.NewMockEventPublisher(logger),
		logger:    logger,
	}

	v := validator.New()
	grading := NewGradingService(logger, DefaultWrittenThreshold)
	h.selection = NewSelectionService(repo, db, logger)
	deps := SessionDependencies{
		Selection: h.selection,
		Grading:   grading,
		Summary:   NewSummaryService(repo, db, logger, time.Minute),
		Publisher: h.publisher,
		Locker:    cache.NewSessionLocker(cache.NewCacheHelper(cfg.redis, "test"), 5*time.Second),
		Clock:     h.clock.Now,
	}

	h.sessions = NewSessionService(repo, db, logger, v, deps)
	h.retakes = NewRetakeService(repo, db, logger, deps)
	h.expiry = NewExpiryService(repo, db, logger, h.sessions, cfg.staleAfter)
	h.reports = NewReportService(repo, db, logger, h.sessions)
	h.questions = NewQuestionService(repo, db, logger, v)
	h.templates = NewTemplateService(repo, db, logger, v)
	return h
}

// seedSingles inserts n basic single-choice questions under one topic
func (h *harness) seedSingles(t *testing.T, n int) []*models.Question {
	t.Helper()

	topic := testutil.SeedTopic(t, h.db, fmt.Sprintf("topic-%d", time.Now().UnixNano()))
	out := make([]*models.Question, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, testutil.Seed(t, h.db, testutil.SingleChoice(topic.ID, models.LevelBasic, fmt.Sprintf("question %d", i+1))))
	}
	return out
}

func (h *harness) practiceAssignment(t *testing.T) *models.Assignment {
	t.Helper()
	return testutil.SeedAssignment(t, h.db, models.KindPractice, models.SelectionCriteria{}, models.SessionPolicy{})
}

func (h *harness) start(t *testing.T, assignmentID uint, userID string) *models.Session {
	t.Helper()

	resp, err := h.sessions.Start(context.Background(), &StartSessionRequest{AssignmentID: assignmentID}, userID)
	if err != nil {
		t.Fatalf("failed to start session: %v", err)
	}
	return resp.Session
}

func correctAnswer(q *models.Question) *SubmitAnswerRequest {
	return &SubmitAnswerRequest{QuestionID: q.ID, SelectedOptionIDs: []uint{q.Options[0].ID}, TimeMs: 1500}
}

func wrongAnswer(q *models.Question) *SubmitAnswerRequest {
	return &SubmitAnswerRequest{QuestionID: q.ID, SelectedOptionIDs: []uint{q.Options[1].ID}, TimeMs: 500}
}
