package postgres

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/techprep/session-service/internal/models"
	"github.com/techprep/session-service/internal/repositories"
)

// SharedHelpers contains query building shared by the repositories
type SharedHelpers struct {
	db *gorm.DB
}

func NewSharedHelpers(db *gorm.DB) *SharedHelpers {
	return &SharedHelpers{db: db}
}

// getDB prefers the caller's transaction
func (h *SharedHelpers) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return h.db
}

// notFound converts gorm's not-found into the repository sentinel
func notFound(err error, entity string, id interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %v: %w", entity, id, repositories.ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", entity, err)
}

// preloadQuestion loads the topic and the options in display order
func preloadQuestion(db *gorm.DB) *gorm.DB {
	return db.Preload("Topic").Preload("Options", func(db *gorm.DB) *gorm.DB {
		return db.Order("order_index ASC, id ASC")
	})
}

// ApplyQuestionFilters applies list filters to question queries
func (h *SharedHelpers) ApplyQuestionFilters(query *gorm.DB, filters repositories.QuestionFilters) *gorm.DB {
	if filters.Type != nil {
		query = query.Where("type = ?", *filters.Type)
	}
	if filters.Level != nil {
		query = query.Where("level = ?", *filters.Level)
	}
	if filters.TopicID != nil {
		query = query.Where("topic_id = ?", *filters.TopicID)
	}
	if filters.CreatedBy != nil {
		query = query.Where("created_by = ?", *filters.CreatedBy)
	}
	if filters.Practice != nil {
		query = query.Where("usable_in_practice = ?", *filters.Practice)
	}
	if q := strings.TrimSpace(filters.Query); q != "" {
		query = query.Where("LOWER(body) LIKE ?", "%"+strings.ToLower(q)+"%")
	}
	return query
}

// ApplySessionFilters applies common filters to session queries
func (h *SharedHelpers) ApplySessionFilters(query *gorm.DB, filters repositories.SessionFilters) *gorm.DB {
	if filters.UserID != nil {
		query = query.Where("user_id = ?", *filters.UserID)
	}
	if filters.AssignmentID != nil {
		query = query.Where("assignment_id = ?", *filters.AssignmentID)
	}
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.DateFrom != nil {
		query = query.Where("started_at >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		query = query.Where("started_at <= ?", *filters.DateTo)
	}
	return query
}

// ApplyAssignmentFilters restricts assignments to the viewer's scope unless the viewer is an admin
func (h *SharedHelpers) ApplyAssignmentFilters(query *gorm.DB, filters repositories.AssignmentFilters) *gorm.DB {
	if filters.TemplateID != nil {
		query = query.Where("template_id = ?", *filters.TemplateID)
	}
	if filters.OpenAt != nil {
		query = query.
			Where("opens_at IS NULL OR opens_at <= ?", *filters.OpenAt).
			Where("closes_at IS NULL OR closes_at > ?", *filters.OpenAt)
	}

	viewer := filters.Viewer
	if viewer == nil || viewer.Role == models.RoleAdmin {
		return query
	}

	scope := h.db.Where("visibility = ?", models.VisibilityPublic).
		Or("created_by = ?", viewer.ID).
		Or("visibility = ? AND scope_id = ?", models.VisibilityUser, viewer.ID)
	if len(viewer.Groups) > 0 {
		scope = scope.Or("visibility = ? AND scope_id IN ?", models.VisibilityGroup, viewer.Groups)
	}
	return query.Where(scope)
}

// ApplyPaginationAndSort applies pagination and sorting with SQL injection protection
func (h *SharedHelpers) ApplyPaginationAndSort(query *gorm.DB, sortBy, sortOrder string, limit, offset int) *gorm.DB {
	allowedSortColumns := map[string]bool{
		"created_at":  true,
		"updated_at":  true,
		"id":          true,
		"name":        true,
		"title":       true,
		"status":      true,
		"level":       true,
		"type":        true,
		"started_at":  true,
		"total_score": true,
	}

	if sortBy == "" || !allowedSortColumns[sortBy] {
		sortBy = "created_at"
	}

	if strings.EqualFold(sortOrder, "asc") {
		sortOrder = "ASC"
	} else {
		sortOrder = "DESC"
	}

	// id breaks ties so pages stay stable
	query = query.Order(sortBy + " " + sortOrder)
	if sortBy != "id" {
		query = query.Order("id " + sortOrder)
	}

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	return query
}
