package port

import (
	"context"

	"github.com/arklim/srm-service/internal/core/domain"
)

// UserRepository exposes read access to identity records.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	ListByRoles(ctx context.Context, roles []string) ([]domain.User, error)
}
