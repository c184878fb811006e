// Package testutil builds throwaway stores for package tests.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/techprep/session-service/internal/models"
	"github.com/techprep/session-service/pkg"
)

// NewDB returns a migrated in-memory sqlite database private to the test.
// A single connection keeps every statement on the same memory database.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := pkg.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

// NewRedis starts a miniredis server and returns a client bound to it
func NewRedis(t testing.TB) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, server
}

// SeedTopic inserts a topic with the given name
func SeedTopic(t testing.TB, db *gorm.DB, name string) *models.Topic {
	t.Helper()

	topic := &models.Topic{Name: name}
	if err := db.Create(topic).Error; err != nil {
		t.Fatalf("failed to seed topic: %v", err)
	}
	return topic
}

// SingleChoice builds a single-choice question whose first option is correct
func SingleChoice(topicID uint, level models.DifficultyLevel, body string) *models.Question {
	return &models.Question{
		Body:             body,
		Type:             models.SingleChoice,
		Level:            level,
		TopicID:          topicID,
		UsableInPractice: true,
		CreatedBy:        "author",
		Options: []models.Option{
			{Text: "right", IsCorrect: true, OrderIndex: 0},
			{Text: "wrong", OrderIndex: 1},
			{Text: "also wrong", OrderIndex: 2},
		},
	}
}

// Seed inserts the question with its options and returns it
func Seed(t testing.TB, db *gorm.DB, question *models.Question) *models.Question {
	t.Helper()

	if err := db.Create(question).Error; err != nil {
		t.Fatalf("failed to seed question: %v", err)
	}
	return question
}

// SeedAssignment inserts a template with the given criteria and a public assignment for it
func SeedAssignment(t testing.TB, db *gorm.DB, kind models.TemplateKind, criteria models.SelectionCriteria, policy models.SessionPolicy) *models.Assignment {
	t.Helper()

	template := &models.Template{
		Name:      "template",
		Kind:      kind,
		Criteria:  datatypes.NewJSONType(criteria),
		Policy:    datatypes.NewJSONType(policy),
		CreatedBy: "author",
	}
	if err := db.Create(template).Error; err != nil {
		t.Fatalf("failed to seed template: %v", err)
	}

	assignment := &models.Assignment{
		TemplateID: template.ID,
		Title:      "assignment",
		Visibility: models.VisibilityPublic,
		CreatedBy:  "author",
	}
	if err := db.Create(assignment).Error; err != nil {
		t.Fatalf("failed to seed assignment: %v", err)
	}
	assignment.Template = template
	return assignment
}
