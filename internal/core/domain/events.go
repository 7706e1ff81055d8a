package domain

import "time"

// SupplierTagsAssignedEvent represents the payload for srm.supplier.tags.assigned messages.
type SupplierTagsAssignedEvent struct {
	EventID     string
	TagID       int64
	SupplierIDs []int64
	Added       int
	Skipped     int
	ActorID     string
	AssignedAt  time.Time
}

// SupplierTagsRemovedEvent represents the payload for srm.supplier.tags.removed messages.
type SupplierTagsRemovedEvent struct {
	EventID     string
	TagID       int64
	SupplierIDs []int64
	Removed     int
	ActorID     string
	RemovedAt   time.Time
}

// BuyerSuppliersAssignedEvent represents the payload for srm.buyer.suppliers.assigned messages.
type BuyerSuppliersAssignedEvent struct {
	EventID       string
	BuyerID       string
	BuyerName     string
	TagIDs        []int64
	SupplierIDs   []int64
	AssignedCount int
	ActorID       string
	AssignedAt    time.Time
}

// BuyerAssignmentRemovedEvent represents the payload for srm.buyer.assignment.removed messages.
type BuyerAssignmentRemovedEvent struct {
	EventID      string
	AssignmentID int64
	BuyerID      string
	SupplierID   int64
	ActorID      string
	RemovedAt    time.Time
}

// BuyerSuppliersUnassignedEvent represents the payload for srm.buyer.suppliers.unassigned messages.
type BuyerSuppliersUnassignedEvent struct {
	EventID     string
	BuyerID     string
	SupplierIDs []int64
	Removed     int
	ActorID     string
	RemovedAt   time.Time
}

// MembershipChangedEvent is consumed from srm.purchasing_group.membership.changed.
// Any change invalidates the cached authorization payload of the affected buyers.
type MembershipChangedEvent struct {
	EventID   string    `json:"event_id"`
	GroupID   int64     `json:"group_id"`
	BuyerIDs  []string  `json:"buyer_ids"`
	Change    string    `json:"change"`
	ChangedAt time.Time `json:"changed_at"`
}
