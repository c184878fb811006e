package repositories

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/techprep/session-service/internal/cache"
)

var ErrNotFound = errors.New("record not found")

// Repository aggregates every store the service talks to
type Repository interface {
	// Question store
	Question() QuestionRepository
	Topic() TopicRepository

	// Templates and assignments
	Template() TemplateRepository
	Assignment() AssignmentRepository

	// Session runner
	Session() SessionRepository
	Answer() AnswerRepository

	// User domain (read-only, backed by the identity provider)
	User() UserRepository

	Cache() *cache.CacheManager

	// Health check
	Ping(ctx context.Context) error

	// Close connections
	Close() error
}

// RepositoryManager interface for managing repository lifecycle
type RepositoryManager interface {
	Initialize() error
	GetRepository() Repository
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}

// IsDuplicateKeyError matches translated gorm errors and raw driver messages
func IsDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint failed")
}
