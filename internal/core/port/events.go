package port

import (
	"context"

	"github.com/arklim/srm-service/internal/core/domain"
)

// EventPublisher publishes audit events to the message bus.
type EventPublisher interface {
	PublishSupplierTagsAssigned(ctx context.Context, event domain.SupplierTagsAssignedEvent) error
	PublishSupplierTagsRemoved(ctx context.Context, event domain.SupplierTagsRemovedEvent) error
	PublishBuyerSuppliersAssigned(ctx context.Context, event domain.BuyerSuppliersAssignedEvent) error
	PublishBuyerAssignmentRemoved(ctx context.Context, event domain.BuyerAssignmentRemovedEvent) error
	PublishBuyerSuppliersUnassigned(ctx context.Context, event domain.BuyerSuppliersUnassignedEvent) error
}
