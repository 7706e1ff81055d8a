package postgres

import (
	"context"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"

	"github.com/arklim/srm-service/internal/core/domain"
	"github.com/arklim/srm-service/internal/core/port"
)

// MembershipRepository resolves purchasing-group memberships from PostgreSQL.
type MembershipRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

var _ port.MembershipRepository = (*MembershipRepository)(nil)

// NewMembershipRepository constructs a MembershipRepository.
func NewMembershipRepository(exec pgExecutor) *MembershipRepository {
	return &MembershipRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// ListActiveByBuyer returns the buyer's memberships in groups that are not soft-deleted.
// The active filter is part of the join so deleted groups never reach the caller.
func (r *MembershipRepository) ListActiveByBuyer(ctx context.Context, buyerID string) ([]domain.GroupMembership, error) {
	stmt, args, err := r.builder.
		Select("pg.id", "pg.code", "pg.name", "pgm.role").
		From("srm.purchasing_group_members pgm").
		Join("srm.purchasing_groups pg ON pg.id = pgm.group_id AND pg.deleted_at IS NULL").
		Where(squirrel.Eq{"pgm.buyer_id": buyerID}).
		OrderBy("pg.id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list memberships sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	memberships := make([]domain.GroupMembership, 0)
	for rows.Next() {
		var m domain.GroupMembership
		if err := rows.Scan(&m.ID, &m.Code, &m.Name, &m.MemberRole); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		memberships = append(memberships, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memberships: %w", err)
	}
	return memberships, nil
}
