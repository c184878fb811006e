package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/techprep/session-service/internal/cache"
	"github.com/techprep/session-service/internal/models"
	"github.com/techprep/session-service/internal/repositories"
)

type TemplatePostgreSQL struct {
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewTemplatePostgreSQL(db *gorm.DB, cacheManager *cache.CacheManager) repositories.TemplateRepository {
	return &TemplatePostgreSQL{
		helpers:      NewSharedHelpers(db),
		cacheManager: cacheManager,
	}
}

func (t *TemplatePostgreSQL) Create(ctx context.Context, tx *gorm.DB, template *models.Template) error {
	if err := t.helpers.getDB(tx).WithContext(ctx).Create(template).Error; err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}
	return nil
}

// GetByID is read on every session start, so it goes through the template cache
func (t *TemplatePostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Template, error) {
	db := t.helpers.getDB(tx)
	var template models.Template

	err := t.cacheManager.Template.CacheOrExecute(ctx, fmt.Sprintf("id:%d", id), &template, cache.TemplateCacheConfig.TTL, func() (interface{}, error) {
		var dbTemplate models.Template
		if err := db.WithContext(ctx).First(&dbTemplate, id).Error; err != nil {
			return nil, notFound(err, "template", id)
		}
		return &dbTemplate, nil
	})
	if err != nil {
		return nil, err
	}
	return &template, nil
}

func (t *TemplatePostgreSQL) Update(ctx context.Context, tx *gorm.DB, template *models.Template) error {
	if err := t.helpers.getDB(tx).WithContext(ctx).Save(template).Error; err != nil {
		return fmt.Errorf("failed to update template: %w", err)
	}
	cache.InvalidateTemplateCache(ctx, t.cacheManager, template.ID)
	return nil
}

func (t *TemplatePostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.TemplateFilters) ([]*models.Template, int64, error) {
	query := t.helpers.getDB(tx).WithContext(ctx).Model(&models.Template{})
	if filters.Kind != nil {
		query = query.Where("kind = ?", *filters.Kind)
	}
	if filters.CreatedBy != nil {
		query = query.Where("created_by = ?", *filters.CreatedBy)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count templates: %w", err)
	}

	var templates []*models.Template
	query = t.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)
	if err := query.Find(&templates).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list templates: %w", err)
	}
	return templates, total, nil
}

// ===== ASSIGNMENTS =====

type AssignmentPostgreSQL struct {
	helpers *SharedHelpers
}

func NewAssignmentPostgreSQL(db *gorm.DB) repositories.AssignmentRepository {
	return &AssignmentPostgreSQL{helpers: NewSharedHelpers(db)}
}

func (a *AssignmentPostgreSQL) Create(ctx context.Context, tx *gorm.DB, assignment *models.Assignment) error {
	if err := a.helpers.getDB(tx).WithContext(ctx).Omit("Template").Create(assignment).Error; err != nil {
		return fmt.Errorf("failed to create assignment: %w", err)
	}
	return nil
}

func (a *AssignmentPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Assignment, error) {
	var assignment models.Assignment
	if err := a.helpers.getDB(tx).WithContext(ctx).Preload("Template").First(&assignment, id).Error; err != nil {
		return nil, notFound(err, "assignment", id)
	}
	return &assignment, nil
}

func (a *AssignmentPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.AssignmentFilters) ([]*models.Assignment, int64, error) {
	query := a.helpers.ApplyAssignmentFilters(a.helpers.getDB(tx).WithContext(ctx).Model(&models.Assignment{}), filters)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count assignments: %w", err)
	}

	var assignments []*models.Assignment
	query = a.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)
	if err := query.Find(&assignments).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list assignments: %w", err)
	}
	return assignments, total, nil
}
