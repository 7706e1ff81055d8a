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

// BuyerAssignmentRepository implements port.BuyerAssignmentRepository for PostgreSQL.
type BuyerAssignmentRepository struct {
	pool    pgPool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

var _ port.BuyerAssignmentRepository = (*BuyerAssignmentRepository)(nil)

// NewBuyerAssignmentRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewBuyerAssignmentRepository(exec pgExecutor) *BuyerAssignmentRepository {
	repo := &BuyerAssignmentRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(pgPool); ok {
		repo.pool = pool
	}
	return repo
}

// AssignSuppliers creates the missing (buyer, supplier) rows in one transaction and
// returns the supplier ids that were newly assigned.
func (r *BuyerAssignmentRepository) AssignSuppliers(ctx context.Context, buyerID string, supplierIDs []int64, createdBy string) ([]int64, error) {
	if len(supplierIDs) == 0 {
		return []int64{}, nil
	}

	stmt, args, err := r.builder.
		Insert("srm.buyer_supplier_assignments").
		Columns("buyer_id", "supplier_id", "created_by").
		Select(squirrel.
			Select().
			Column("?::text", buyerID).
			Column("s.id").
			Column("?::text", createdBy).
			From("srm.suppliers s").
			Where("s.id = ANY(?)", supplierIDs)).
		Suffix("ON CONFLICT (buyer_id, supplier_id) DO NOTHING RETURNING supplier_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build assign buyer suppliers sql: %w", err)
	}

	return inTx(ctx, r.pool, r.exec, func(tx pgExecutor) ([]int64, error) {
		rows, err := tx.Query(ctx, stmt, args...)
		if err != nil {
			return nil, r.mapAssignError(err)
		}
		assigned, err := collectInt64s(rows)
		if err != nil {
			return nil, r.mapAssignError(err)
		}
		return assigned, nil
	})
}

func (r *BuyerAssignmentRepository) mapAssignError(err error) error {
	if pgErrorCode(err) == pgErrForeignKeyViolation {
		return repository.ErrNotFound
	}
	return fmt.Errorf("assign suppliers to buyer: %w", err)
}

// RemoveSuppliers deletes the (buyer, supplier) rows and returns the supplier ids that existed.
func (r *BuyerAssignmentRepository) RemoveSuppliers(ctx context.Context, buyerID string, supplierIDs []int64) ([]int64, error) {
	if len(supplierIDs) == 0 {
		return []int64{}, nil
	}

	stmt, args, err := r.builder.
		Delete("srm.buyer_supplier_assignments").
		Where(squirrel.Eq{"buyer_id": buyerID}).
		Where("supplier_id = ANY(?)", supplierIDs).
		Suffix("RETURNING supplier_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build unassign buyer suppliers sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("unassign suppliers from buyer: %w", err)
	}
	removed, err := collectInt64s(rows)
	if err != nil {
		return nil, fmt.Errorf("unassign suppliers from buyer: %w", err)
	}
	return removed, nil
}

// ListBySupplier returns the supplier's assignments joined with the buyer's profile. Buyers
// whose user row is gone are still listed with empty name and email.
func (r *BuyerAssignmentRepository) ListBySupplier(ctx context.Context, supplierID int64) ([]domain.SupplierBuyer, error) {
	stmt, args, err := r.builder.
		Select("a.id", "a.buyer_id", "COALESCE(u.name, '')", "u.email", "a.supplier_id", "a.created_at").
		From("srm.buyer_supplier_assignments a").
		LeftJoin("srm.users u ON u.id = a.buyer_id").
		Where(squirrel.Eq{"a.supplier_id": supplierID}).
		OrderBy("u.name", "a.buyer_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list supplier buyers sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list supplier buyers: %w", err)
	}
	defer rows.Close()

	result := make([]domain.SupplierBuyer, 0)
	for rows.Next() {
		var b domain.SupplierBuyer
		if err := rows.Scan(&b.AssignmentID, &b.BuyerID, &b.BuyerName, &b.BuyerEmail, &b.SupplierID, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan supplier buyer: %w", err)
		}
		result = append(result, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate supplier buyers: %w", err)
	}
	return result, nil
}

// ListByBuyer returns the buyer's assignments joined with supplier details, newest first.
func (r *BuyerAssignmentRepository) ListByBuyer(ctx context.Context, buyerID string) ([]domain.AssignedSupplier, error) {
	stmt, args, err := r.builder.
		Select(append([]string{"a.id", "a.buyer_id", "a.supplier_id", "a.status", "a.created_at", "a.created_by"}, supplierColumns("s")...)...).
		From("srm.buyer_supplier_assignments a").
		Join("srm.suppliers s ON s.id = a.supplier_id").
		Where(squirrel.Eq{"a.buyer_id": buyerID}).
		OrderBy("a.created_at DESC", "a.id DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list buyer assignments sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list buyer assignments: %w", err)
	}
	defer rows.Close()

	result := make([]domain.AssignedSupplier, 0)
	for rows.Next() {
		var item domain.AssignedSupplier
		a := &item.Assignment
		s := &item.Supplier
		if err := rows.Scan(
			&a.ID, &a.BuyerID, &a.SupplierID, &a.Status, &a.CreatedAt, &a.CreatedBy,
			&s.ID, &s.CompanyName, &s.Category, &s.Region, &s.Status, &s.ContactEmail,
		); err != nil {
			return nil, fmt.Errorf("scan buyer assignment: %w", err)
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate buyer assignments: %w", err)
	}
	return result, nil
}

// GetByID retrieves an assignment by identifier.
func (r *BuyerAssignmentRepository) GetByID(ctx context.Context, id int64) (*domain.BuyerSupplierAssignment, error) {
	stmt, args, err := r.builder.
		Select("id", "buyer_id", "supplier_id", "status", "created_at", "created_by").
		From("srm.buyer_supplier_assignments").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select buyer assignment sql: %w", err)
	}

	var a domain.BuyerSupplierAssignment
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&a.ID, &a.BuyerID, &a.SupplierID, &a.Status, &a.CreatedAt, &a.CreatedBy); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select buyer assignment: %w", err)
	}
	return &a, nil
}

// Delete removes an assignment.
func (r *BuyerAssignmentRepository) Delete(ctx context.Context, id int64) error {
	stmt, args, err := r.builder.
		Delete("srm.buyer_supplier_assignments").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete buyer assignment sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete buyer assignment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
