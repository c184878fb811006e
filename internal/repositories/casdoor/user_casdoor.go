package casdoor

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"

	"github.com/techprep/session-service/internal/cache"
	"github.com/techprep/session-service/internal/models"
	"github.com/techprep/session-service/internal/repositories"
)

// CasdoorConfig holds the configuration for Casdoor connection
type CasdoorConfig struct {
	Endpoint         string
	ClientID         string
	ClientSecret     string
	Certificate      string
	OrganizationName string
	ApplicationName  string
}

// UserCasdoor reads users from Casdoor. The service never writes users.
type UserCasdoor struct {
	client *casdoorsdk.Client
	cache  *cache.CacheManager
}

func NewUserCasdoor(config CasdoorConfig, cacheManager *cache.CacheManager) repositories.UserRepository {
	client := casdoorsdk.NewClient(
		config.Endpoint,
		config.ClientID,
		config.ClientSecret,
		config.Certificate,
		config.OrganizationName,
		config.ApplicationName,
	)

	return &UserCasdoor{
		client: client,
		cache:  cacheManager,
	}
}

// ===== CONVERSION =====

// ToUser maps a Casdoor account onto the service user model
func ToUser(casdoorUser *casdoorsdk.User) *models.User {
	if casdoorUser == nil {
		return nil
	}

	var createdAt, updatedAt time.Time
	if casdoorUser.CreatedTime != "" {
		createdAt, _ = time.Parse(time.RFC3339, casdoorUser.CreatedTime)
	}
	if casdoorUser.UpdatedTime != "" {
		updatedAt, _ = time.Parse(time.RFC3339, casdoorUser.UpdatedTime)
	}

	var avatar *string
	if casdoorUser.Avatar != "" {
		avatar = &casdoorUser.Avatar
	}

	return &models.User{
		ID:            casdoorUser.Id,
		FullName:      casdoorUser.DisplayName,
		Email:         casdoorUser.Email,
		Role:          RoleOf(casdoorUser),
		Groups:        normalizeGroups(casdoorUser.Groups),
		AvatarURL:     avatar,
		EmailVerified: casdoorUser.EmailVerified,
		CreatedAt:     createdAt,
		UpdatedAt:     updatedAt,
	}
}

// RoleOf picks the strongest role assigned in Casdoor. Admin wins, then interviewer.
func RoleOf(casdoorUser *casdoorsdk.User) models.UserRole {
	if casdoorUser.IsAdmin {
		return models.RoleAdmin
	}

	roles := make([]models.UserRole, 0, len(casdoorUser.Roles))
	for _, role := range casdoorUser.Roles {
		if role == nil {
			continue
		}
		roles = append(roles, mapRole(role.Name))
	}

	switch {
	case slices.Contains(roles, models.RoleAdmin):
		return models.RoleAdmin
	case slices.Contains(roles, models.RoleInterviewer):
		return models.RoleInterviewer
	}
	return models.RoleLearner
}

func mapRole(name string) models.UserRole {
	switch strings.ToLower(name) {
	case "admin", "administrator":
		return models.RoleAdmin
	case "interviewer", "teacher", "instructor":
		return models.RoleInterviewer
	default:
		return models.RoleLearner
	}
}

// Casdoor reports groups as "<organization>/<group>"; assignments are scoped by the bare name.
func normalizeGroups(groups []string) []string {
	out := make([]string, 0, len(groups))
	for _, g := range groups {
		if i := strings.LastIndex(g, "/"); i >= 0 {
			g = g[i+1:]
		}
		if g != "" && !slices.Contains(out, g) {
			out = append(out, g)
		}
	}
	return out
}

// ===== READ OPERATIONS =====

func (u *UserCasdoor) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := u.cache.User.CacheOrExecute(ctx, "id:"+id, &user, cache.UserCacheConfig.TTL, func() (interface{}, error) {
		casdoorUser, err := u.client.GetUserByUserId(id)
		if err != nil {
			return nil, fmt.Errorf("failed to get user from Casdoor: %w", err)
		}
		if casdoorUser == nil {
			return nil, fmt.Errorf("user %s: %w", id, repositories.ErrNotFound)
		}
		return ToUser(casdoorUser), nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByIDs skips users that cannot be resolved
func (u *UserCasdoor) GetByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	users := make([]*models.User, 0, len(ids))
	for _, id := range ids {
		user, err := u.GetByID(ctx, id)
		if err != nil {
			continue
		}
		users = append(users, user)
	}
	return users, nil
}

func (u *UserCasdoor) ExistsByID(ctx context.Context, id string) (bool, error) {
	if _, err := u.GetByID(ctx, id); err != nil {
		if repositories.IsNotFoundError(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Refresh drops the cached copy so the next read goes to Casdoor
func (u *UserCasdoor) Refresh(ctx context.Context, id string) {
	cache.InvalidateUserCache(ctx, u.cache, id)
}
