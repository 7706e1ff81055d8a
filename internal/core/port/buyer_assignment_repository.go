package port

import (
	"context"

	"github.com/arklim/srm-service/internal/core/domain"
)

// BuyerAssignmentRepository persists buyer↔supplier assignments.
type BuyerAssignmentRepository interface {
	// AssignSuppliers creates missing assignments atomically and returns the supplier ids
	// that were newly assigned.
	AssignSuppliers(ctx context.Context, buyerID string, supplierIDs []int64, createdBy string) ([]int64, error)
	// RemoveSuppliers deletes the buyer's assignments to the suppliers and returns the supplier
	// ids that were actually assigned.
	RemoveSuppliers(ctx context.Context, buyerID string, supplierIDs []int64) ([]int64, error)
	ListByBuyer(ctx context.Context, buyerID string) ([]domain.AssignedSupplier, error)
	// ListBySupplier returns the buyers assigned to the supplier ordered by buyer name.
	ListBySupplier(ctx context.Context, supplierID int64) ([]domain.SupplierBuyer, error)
	GetByID(ctx context.Context, id int64) (*domain.BuyerSupplierAssignment, error)
	Delete(ctx context.Context, id int64) error
}
