package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/srm-service/internal/core/domain"
	"github.com/arklim/srm-service/internal/core/port"
	"github.com/arklim/srm-service/internal/infra/config"
)

const schemaVersion = "1.0"

// Event types published by the service. Topics are the event type under the configured prefix.
const (
	EventSupplierTagsAssigned     = "supplier.tags.assigned"
	EventSupplierTagsRemoved      = "supplier.tags.removed"
	EventBuyerSuppliersAssigned   = "buyer.suppliers.assigned"
	EventBuyerAssignmentRemoved   = "buyer.assignment.removed"
	EventBuyerSuppliersUnassigned = "buyer.suppliers.unassigned"
)

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

var _ port.EventPublisher = (*EventPublisher)(nil)

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type eventEnvelope struct {
	EventID   string            `json:"event_id"`
	EventType string            `json:"event_type"`
	ActorID   string            `json:"actor_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Payload   any               `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, actorID, key string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	if eventID == "" {
		eventID = uuid.NewString()
	}

	metadata := map[string]string{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		metadata["trace_id"] = sc.TraceID().String()
	}

	topic := p.producer.TopicName(eventType)
	bytes, err := json.Marshal(eventEnvelope{
		EventID:   eventID,
		EventType: topic,
		ActorID:   actorID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	})
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(bytes),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(topic)},
		},
	}

	select {
	case p.producer.Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishSupplierTagsAssigned publishes supplier.tags.assigned events keyed by tag.
func (p *EventPublisher) PublishSupplierTagsAssigned(ctx context.Context, event domain.SupplierTagsAssignedEvent) error {
	payload := struct {
		TagID       int64     `json:"tag_id"`
		SupplierIDs []int64   `json:"supplier_ids"`
		Added       int       `json:"added"`
		Skipped     int       `json:"skipped"`
		AssignedAt  time.Time `json:"assigned_at"`
	}{
		TagID:       event.TagID,
		SupplierIDs: event.SupplierIDs,
		Added:       event.Added,
		Skipped:     event.Skipped,
		AssignedAt:  event.AssignedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, EventSupplierTagsAssigned, event.ActorID, strconv.FormatInt(event.TagID, 10), event.AssignedAt, payload)
}

// PublishSupplierTagsRemoved publishes supplier.tags.removed events keyed by tag.
func (p *EventPublisher) PublishSupplierTagsRemoved(ctx context.Context, event domain.SupplierTagsRemovedEvent) error {
	payload := struct {
		TagID       int64     `json:"tag_id"`
		SupplierIDs []int64   `json:"supplier_ids"`
		Removed     int       `json:"removed"`
		RemovedAt   time.Time `json:"removed_at"`
	}{
		TagID:       event.TagID,
		SupplierIDs: event.SupplierIDs,
		Removed:     event.Removed,
		RemovedAt:   event.RemovedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, EventSupplierTagsRemoved, event.ActorID, strconv.FormatInt(event.TagID, 10), event.RemovedAt, payload)
}

// PublishBuyerSuppliersAssigned publishes buyer.suppliers.assigned events keyed by buyer.
func (p *EventPublisher) PublishBuyerSuppliersAssigned(ctx context.Context, event domain.BuyerSuppliersAssignedEvent) error {
	payload := struct {
		BuyerID       string    `json:"buyer_id"`
		BuyerName     string    `json:"buyer_name,omitempty"`
		TagIDs        []int64   `json:"tag_ids"`
		SupplierIDs   []int64   `json:"supplier_ids"`
		AssignedCount int       `json:"assigned_count"`
		AssignedAt    time.Time `json:"assigned_at"`
	}{
		BuyerID:       event.BuyerID,
		BuyerName:     event.BuyerName,
		TagIDs:        event.TagIDs,
		SupplierIDs:   event.SupplierIDs,
		AssignedCount: event.AssignedCount,
		AssignedAt:    event.AssignedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, EventBuyerSuppliersAssigned, event.ActorID, event.BuyerID, event.AssignedAt, payload)
}

// PublishBuyerAssignmentRemoved publishes buyer.assignment.removed events keyed by buyer.
func (p *EventPublisher) PublishBuyerAssignmentRemoved(ctx context.Context, event domain.BuyerAssignmentRemovedEvent) error {
	payload := struct {
		AssignmentID int64     `json:"assignment_id"`
		BuyerID      string    `json:"buyer_id"`
		SupplierID   int64     `json:"supplier_id"`
		RemovedAt    time.Time `json:"removed_at"`
	}{
		AssignmentID: event.AssignmentID,
		BuyerID:      event.BuyerID,
		SupplierID:   event.SupplierID,
		RemovedAt:    event.RemovedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, EventBuyerAssignmentRemoved, event.ActorID, event.BuyerID, event.RemovedAt, payload)
}

// PublishBuyerSuppliersUnassigned publishes buyer.suppliers.unassigned events keyed by buyer.
func (p *EventPublisher) PublishBuyerSuppliersUnassigned(ctx context.Context, event domain.BuyerSuppliersUnassignedEvent) error {
	payload := struct {
		BuyerID     string    `json:"buyer_id"`
		SupplierIDs []int64   `json:"supplier_ids"`
		Removed     int       `json:"removed"`
		RemovedAt   time.Time `json:"removed_at"`
	}{
		BuyerID:     event.BuyerID,
		SupplierIDs: event.SupplierIDs,
		Removed:     event.Removed,
		RemovedAt:   event.RemovedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, EventBuyerSuppliersUnassigned, event.ActorID, event.BuyerID, event.RemovedAt, payload)
}
