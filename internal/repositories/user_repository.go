package repositories

import (
	"context"

	"github.com/techprep/session-service/internal/models"
)

// UserRepository is read-only; users live in the identity provider
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByIDs(ctx context.Context, ids []string) ([]*models.User, error)
	ExistsByID(ctx context.Context, id string) (bool, error)

	// Refresh forgets any cached copy of the user
	Refresh(ctx context.Context, id string)
}
