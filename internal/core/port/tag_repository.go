package port

import (
	"context"

	"github.com/arklim/srm-service/internal/core/domain"
)

// TagRepository persists tags and the supplier↔tag relation.
type TagRepository interface {
	List(ctx context.Context) ([]domain.Tag, error)
	GetByID(ctx context.Context, id int64) (*domain.Tag, error)
	GetByName(ctx context.Context, name string) (*domain.Tag, error)
	Create(ctx context.Context, tag domain.Tag) (domain.Tag, error)
	Update(ctx context.Context, id int64, upd domain.TagUpdate) (domain.Tag, error)
	Delete(ctx context.Context, id int64) error

	// AssignSuppliers links existing suppliers to the tag and returns the supplier ids
	// that were newly linked. Unknown suppliers and existing links are not returned.
	AssignSuppliers(ctx context.Context, tagID int64, supplierIDs []int64) ([]int64, error)
	// RemoveSuppliers unlinks suppliers from the tag and returns the supplier ids whose link
	// was actually deleted.
	RemoveSuppliers(ctx context.Context, tagID int64, supplierIDs []int64) ([]int64, error)
	ListSuppliers(ctx context.Context, tagID int64) ([]domain.Supplier, error)
	// ReplaceSupplierTags makes tagIDs the supplier's complete tag set and returns the resulting
	// tags. Returns repository.ErrNotFound when the supplier does not exist.
	ReplaceSupplierTags(ctx context.Context, supplierID int64, tagIDs []int64) ([]domain.Tag, error)
	// ListSupplierIDsByTags returns the distinct supplier ids carrying any of the tags.
	ListSupplierIDsByTags(ctx context.Context, tagIDs []int64) ([]int64, error)
}
