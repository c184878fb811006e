package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/techprep/session-service/internal/cache"
	"github.com/techprep/session-service/internal/events"
	"github.com/techprep/session-service/internal/repositories"
	"github.com/techprep/session-service/internal/validator"
)

// ServiceManagerConfig holds the tunables shared by the session services
type ServiceManagerConfig struct {
	// Default written answer threshold, used when the template policy has none
	WrittenMatchThreshold float64
	SummaryCacheTTL       time.Duration
	// StaleAfter abandons untimed sessions older than this; zero disables it
	StaleAfter time.Duration

	Publisher events.EventPublisher
	Locker    *cache.SessionLocker
	Clock     func() time.Time

	DefaultTimeout time.Duration
}

func DefaultServiceManagerConfig() ServiceManagerConfig {
	return ServiceManagerConfig{
		WrittenMatchThreshold: DefaultWrittenThreshold,
		SummaryCacheTTL:       10 * time.Minute,
		DefaultTimeout:        30 * time.Second,
	}
}

// serviceManager implements ServiceManager interface
type serviceManager struct {
	// Dependencies
	db        *gorm.DB
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	config    ServiceManagerConfig

	// Service instances
	sessionService   SessionService
	retakeService    RetakeService
	selectionService SelectionService
	gradingService   GradingService
	summaryService   SummaryService
	expiryService    ExpiryService
	reportService    ReportService
	questionService  QuestionService
	templateService  TemplateService

	// Lifecycle management
	initialized bool
	shutdown    bool
	mu          sync.RWMutex
}

// NewServiceManager creates a new service manager with all dependencies
func NewServiceManager(db *gorm.DB, repo repositories.Repository, logger *slog.Logger, validator *validator.Validator, config ServiceManagerConfig) ServiceManager {
	return &serviceManager{
		db:        db,
		repo:      repo,
		logger:    logger,
		validator: validator,
		config:    config,
	}
}

// Initialize sets up all services and their dependencies
func (sm *serviceManager) Initialize(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.initialized {
		return nil
	}

	sm.logger.Info("Initializing service manager")

	if err := sm.config.Validate(); err != nil {
		return err
	}

	sm.initializeServices()

	sm.initialized = true
	sm.logger.Info("Service manager initialized successfully")

	return nil
}

func (sm *serviceManager) initializeServices() {
	publisher := sm.config.Publisher
	if publisher == nil {
		publisher = events.NewMockEventPublisher(sm.logger)
		sm.logger.Warn("No event publisher configured, events stay in memory")
	}

	sm.gradingService = NewGradingService(sm.logger, sm.config.WrittenMatchThreshold)
	sm.selectionService = NewSelectionService(sm.repo, sm.db, sm.logger)
	sm.summaryService = NewSummaryService(sm.repo, sm.db, sm.logger, sm.config.SummaryCacheTTL)

	deps := SessionDependencies{
		Selection: sm.selectionService,
		Grading:   sm.gradingService,
		Summary:   sm.summaryService,
		Publisher: publisher,
		Locker:    sm.config.Locker,
		Clock:     sm.config.Clock,
	}
	sm.sessionService = NewSessionService(sm.repo, sm.db, sm.logger, sm.validator, deps)
	sm.retakeService = NewRetakeService(sm.repo, sm.db, sm.logger, deps)
	sm.expiryService = NewExpiryService(sm.repo, sm.db, sm.logger, sm.sessionService, sm.config.StaleAfter)
	sm.reportService = NewReportService(sm.repo, sm.db, sm.logger, sm.sessionService)

	sm.questionService = NewQuestionService(sm.repo, sm.db, sm.logger, sm.validator)
	sm.templateService = NewTemplateService(sm.repo, sm.db, sm.logger, sm.validator)

	sm.logger.Info("Session services initialized",
		"written_match_threshold", sm.config.WrittenMatchThreshold,
		"summary_cache_ttl", sm.config.SummaryCacheTTL,
		"stale_after", sm.config.StaleAfter)
}

// ===== SERVICE GETTERS =====

func (sm *serviceManager) Session() SessionService {
	sm.mustBeInitialized()
	return sm.sessionService
}

func (sm *serviceManager) Retake() RetakeService {
	sm.mustBeInitialized()
	return sm.retakeService
}

func (sm *serviceManager) Selection() SelectionService {
	sm.mustBeInitialized()
	return sm.selectionService
}

func (sm *serviceManager) Grading() GradingService {
	sm.mustBeInitialized()
	return sm.gradingService
}

func (sm *serviceManager) Summary() SummaryService {
	sm.mustBeInitialized()
	return sm.summaryService
}

func (sm *serviceManager) Expiry() ExpiryService {
	sm.mustBeInitialized()
	return sm.expiryService
}

func (sm *serviceManager) Report() ReportService {
	sm.mustBeInitialized()
	return sm.reportService
}

func (sm *serviceManager) Question() QuestionService {
	sm.mustBeInitialized()
	return sm.questionService
}

func (sm *serviceManager) Template() TemplateService {
	sm.mustBeInitialized()
	return sm.templateService
}

func (sm *serviceManager) mustBeInitialized() {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}
}

// ===== HEALTH AND LIFECYCLE =====

func (sm *serviceManager) HealthCheck(ctx context.Context) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		return fmt.Errorf("service manager not initialized")
	}
	if sm.shutdown {
		return fmt.Errorf("service manager is shut down")
	}

	ctx, cancel := context.WithTimeout(ctx, sm.config.DefaultTimeout)
	defer cancel()

	if err := sm.repo.Ping(ctx); err != nil {
		return fmt.Errorf("repository health check failed: %w", err)
	}
	return nil
}

// Shutdown closes the event publisher. The repository is owned by the caller.
func (sm *serviceManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.shutdown {
		return nil
	}

	sm.logger.Info("Shutting down service manager")

	if sm.config.Publisher != nil {
		if err := sm.config.Publisher.Close(); err != nil {
			sm.logger.Error("Failed to close event publisher", "error", err)
		}
	}

	sm.shutdown = true
	sm.logger.Info("Service manager shut down completed")

	return nil
}

// ===== CONFIGURATION VALIDATION =====

func (config *ServiceManagerConfig) Validate() error {
	var errors []string

	if config.WrittenMatchThreshold <= 0 || config.WrittenMatchThreshold > 100 {
		errors = append(errors, "written match threshold must be in (0, 100]")
	}
	if config.SummaryCacheTTL < 0 {
		errors = append(errors, "summary cache TTL cannot be negative")
	}
	if config.StaleAfter < 0 {
		errors = append(errors, "stale after cannot be negative")
	}
	if config.DefaultTimeout <= 0 {
		errors = append(errors, "default timeout must be positive")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}
	return nil
}
