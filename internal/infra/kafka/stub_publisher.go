package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/srm-service/internal/core/domain"
	"github.com/arklim/srm-service/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Used when kafka.enabled is false.
type StubPublisher struct {
	logger *zap.Logger
}

var _ port.EventPublisher = (*StubPublisher)(nil)

// NewStubPublisher constructs a logging event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, actorID string, at time.Time, fields ...zap.Field) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("stub event published", append([]zap.Field{
		zap.String("event_type", eventType),
		zap.String("actor_id", actorID),
		zap.Time("timestamp", at.UTC()),
	}, fields...)...)
}

func (p *StubPublisher) PublishSupplierTagsAssigned(_ context.Context, event domain.SupplierTagsAssignedEvent) error {
	p.logEvent(EventSupplierTagsAssigned, event.ActorID, event.AssignedAt,
		zap.Int64("tag_id", event.TagID),
		zap.Int64s("supplier_ids", event.SupplierIDs),
		zap.Int("added", event.Added),
		zap.Int("skipped", event.Skipped),
	)
	return nil
}

func (p *StubPublisher) PublishSupplierTagsRemoved(_ context.Context, event domain.SupplierTagsRemovedEvent) error {
	p.logEvent(EventSupplierTagsRemoved, event.ActorID, event.RemovedAt,
		zap.Int64("tag_id", event.TagID),
		zap.Int64s("supplier_ids", event.SupplierIDs),
		zap.Int("removed", event.Removed),
	)
	return nil
}

func (p *StubPublisher) PublishBuyerSuppliersAssigned(_ context.Context, event domain.BuyerSuppliersAssignedEvent) error {
	p.logEvent(EventBuyerSuppliersAssigned, event.ActorID, event.AssignedAt,
		zap.String("buyer_id", event.BuyerID),
		zap.Int64s("tag_ids", event.TagIDs),
		zap.Int("assigned_count", event.AssignedCount),
	)
	return nil
}

func (p *StubPublisher) PublishBuyerAssignmentRemoved(_ context.Context, event domain.BuyerAssignmentRemovedEvent) error {
	p.logEvent(EventBuyerAssignmentRemoved, event.ActorID, event.RemovedAt,
		zap.Int64("assignment_id", event.AssignmentID),
		zap.String("buyer_id", event.BuyerID),
		zap.Int64("supplier_id", event.SupplierID),
	)
	return nil
}

func (p *StubPublisher) PublishBuyerSuppliersUnassigned(_ context.Context, event domain.BuyerSuppliersUnassignedEvent) error {
	p.logEvent(EventBuyerSuppliersUnassigned, event.ActorID, event.RemovedAt,
		zap.String("buyer_id", event.BuyerID),
		zap.Int64s("supplier_ids", event.SupplierIDs),
		zap.Int("removed", event.Removed),
	)
	return nil
}
