package domain

import "time"

// Supplier is the subset of supplier attributes this service reads.
type Supplier struct {
	ID           int64
	CompanyName  string
	Category     *string
	Region       *string
	Status       string
	ContactEmail *string
}

// Tag labels suppliers for classification and bulk operations.
type Tag struct {
	ID          int64
	Name        string
	Description *string
	Color       *string
}

// TagUpdate carries the optional fields of a partial tag update.
type TagUpdate struct {
	Name        *string
	Description *string
	Color       *string
}

// BuyerSupplierAssignment records that a supplier is assigned to a buyer.
type BuyerSupplierAssignment struct {
	ID         int64
	BuyerID    string
	SupplierID int64
	Status     *string
	CreatedAt  time.Time
	CreatedBy  string
}

// SupplierBuyer is an assignment seen from the supplier side. Buyer fields are empty when the
// user row no longer exists.
type SupplierBuyer struct {
	AssignmentID int64
	BuyerID      string
	BuyerName    string
	BuyerEmail   *string
	SupplierID   int64
	CreatedAt    time.Time
}

// AssignedSupplier joins an assignment with the supplier it points at.
type AssignedSupplier struct {
	Assignment BuyerSupplierAssignment
	Supplier   Supplier
}

// BatchAssignResult reports the outcome of a batch assignment.
type BatchAssignResult struct {
	Added   int
	Skipped int
}

// BatchRemoveResult reports the outcome of a batch removal.
type BatchRemoveResult struct {
	Removed int
}

// AssignByTagResult reports the outcome of assigning tagged suppliers to a buyer.
type AssignByTagResult struct {
	BuyerName      string
	AssignedCount  int
	TotalSuppliers int
	SupplierIDs    []int64
}
