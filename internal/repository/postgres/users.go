package postgres

import (
	"context"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/srm-service/internal/core/domain"
	"github.com/arklim/srm-service/internal/core/port"
	"github.com/arklim/srm-service/internal/repository"
)

// UserRepository implements port.UserRepository using PostgreSQL.
type UserRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

var _ port.UserRepository = (*UserRepository)(nil)

// NewUserRepository wires a PostgreSQL-backed user repository.
func NewUserRepository(exec pgExecutor) *UserRepository {
	return &UserRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *UserRepository) selectUsers() squirrel.SelectBuilder {
	return r.builder.
		Select(
			"u.id",
			"u.name",
			"u.role",
			"u.email",
			"COALESCE(array_agg(uf.function_id ORDER BY uf.function_id) FILTER (WHERE uf.function_id IS NOT NULL), '{}') AS functions",
		).
		From("srm.users u").
		LeftJoin("srm.user_functions uf ON uf.user_id = u.id").
		GroupBy("u.id", "u.name", "u.role", "u.email")
}

// GetByID retrieves a user with its assigned functions.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	stmt, args, err := r.selectUsers().
		Where(squirrel.Eq{"u.id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	user, err := scanUser(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select user: %w", err)
	}
	return &user, nil
}

// ListByRoles returns users holding any of the roles, ordered by name.
func (r *UserRepository) ListByRoles(ctx context.Context, roles []string) ([]domain.User, error) {
	stmt, args, err := r.selectUsers().
		Where(squirrel.Eq{"u.role": roles}).
		OrderBy("u.name", "u.id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list users sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

func scanUser(row pgx.Row) (domain.User, error) {
	var user domain.User
	if err := row.Scan(&user.ID, &user.Name, &user.Role, &user.Email, &user.Functions); err != nil {
		return domain.User{}, err
	}
	return user, nil
}
