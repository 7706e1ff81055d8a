package port

import (
	"context"

	"github.com/arklim/srm-service/internal/core/domain"
)

// MembershipRepository resolves purchasing-group memberships.
type MembershipRepository interface {
	// ListActiveByBuyer returns memberships whose group is not soft-deleted, ordered by group id.
	ListActiveByBuyer(ctx context.Context, buyerID string) ([]domain.GroupMembership, error)
}
