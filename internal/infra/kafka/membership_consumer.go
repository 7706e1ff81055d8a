package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/arklim/srm-service/internal/core/domain"
	"github.com/arklim/srm-service/internal/infra/config"
)

// ErrMalformedEvent marks membership messages that can never be applied.
var ErrMalformedEvent = errors.New("malformed membership event")

// AuthorizationInvalidator drops cached authorization payloads.
type AuthorizationInvalidator interface {
	InvalidateAuthorization(ctx context.Context, userIDs ...string) error
}

// MembershipConsumer handles purchasing group membership change events.
type MembershipConsumer struct {
	invalidator AuthorizationInvalidator
	logger      *zap.Logger
}

// NewMembershipConsumer constructs a consumer that invalidates affected buyers.
func NewMembershipConsumer(invalidator AuthorizationInvalidator, logger *zap.Logger) *MembershipConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MembershipConsumer{invalidator: invalidator, logger: logger}
}

// HandleMessage decodes a Kafka message containing a membership change envelope.
func (c *MembershipConsumer) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	if msg == nil {
		return fmt.Errorf("%w: nil kafka message", ErrMalformedEvent)
	}

	var envelope struct {
		EventID   string          `json:"event_id"`
		EventType string          `json:"event_type"`
		Payload   json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		return fmt.Errorf("%w: decode envelope: %w", ErrMalformedEvent, err)
	}

	var event domain.MembershipChangedEvent
	if len(envelope.Payload) > 0 {
		if err := json.Unmarshal(envelope.Payload, &event); err != nil {
			return fmt.Errorf("%w: decode payload: %w", ErrMalformedEvent, err)
		}
	} else if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("%w: decode event: %w", ErrMalformedEvent, err)
	}
	if event.EventID == "" {
		event.EventID = envelope.EventID
	}

	return c.HandleEvent(ctx, event)
}

// HandleEvent invalidates cached authorization for every buyer named in the event.
func (c *MembershipConsumer) HandleEvent(ctx context.Context, event domain.MembershipChangedEvent) error {
	if c.invalidator == nil {
		return errors.New("authorization invalidator not configured")
	}

	buyerIDs := lo.Uniq(lo.FilterMap(event.BuyerIDs, func(id string, _ int) (string, bool) {
		id = strings.TrimSpace(id)
		return id, id != ""
	}))
	if len(buyerIDs) == 0 {
		c.logger.Debug("membership event without buyers ignored", zap.String("event_id", event.EventID))
		return nil
	}

	if err := c.invalidator.InvalidateAuthorization(ctx, buyerIDs...); err != nil {
		return fmt.Errorf("invalidate authorization: %w", err)
	}

	c.logger.Info("authorization invalidated after membership change",
		zap.String("event_id", event.EventID),
		zap.Int64("group_id", event.GroupID),
		zap.String("change", event.Change),
		zap.Strings("buyer_ids", buyerIDs),
	)
	return nil
}

// Setup is run at the beginning of a new consumer group session.
func (c *MembershipConsumer) Setup(sarama.ConsumerGroupSession) error { return nil }

// Cleanup is run at the end of a consumer group session.
func (c *MembershipConsumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim processes messages of one partition claim. Malformed messages are
// logged and marked so they do not block the partition. Any other failure ends the
// session without marking, so the message is redelivered once the group rejoins.
func (c *MembershipConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if msg == nil {
				continue
			}
			if err := c.HandleMessage(session.Context(), msg); err != nil {
				fields := []zap.Field{
					zap.Error(err),
					zap.String("topic", msg.Topic),
					zap.Int32("partition", msg.Partition),
					zap.Int64("offset", msg.Offset),
				}
				if !errors.Is(err, ErrMalformedEvent) {
					c.logger.Error("membership event failed, will be redelivered", fields...)
					return fmt.Errorf("apply membership event at offset %d: %w", msg.Offset, err)
				}
				c.logger.Warn("malformed membership event skipped", fields...)
			}
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

// ConsumerGroup runs a sarama consumer group for a single handler.
type ConsumerGroup struct {
	group   sarama.ConsumerGroup
	topics  []string
	handler sarama.ConsumerGroupHandler
	logger  *zap.Logger
}

// NewConsumerGroup joins the configured consumer group for the membership topic.
func NewConsumerGroup(cfg config.KafkaSettings, handler sarama.ConsumerGroupHandler, logger *zap.Logger) (*ConsumerGroup, error) {
	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.ConsumerGroup, saramaConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer group: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ConsumerGroup{
		group:   group,
		topics:  []string{cfg.MembershipTopic},
		handler: handler,
		logger:  logger,
	}, nil
}

// Run consumes until ctx is cancelled, rejoining after every rebalance.
func (g *ConsumerGroup) Run(ctx context.Context) error {
	go func() {
		for err := range g.group.Errors() {
			g.logger.Error("kafka consumer error", zap.Error(err))
		}
	}()

	g.logger.Info("kafka consumer started", zap.Strings("topics", g.topics))
	for {
		if err := g.group.Consume(ctx, g.topics, g.handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			g.logger.Error("kafka consume failed", zap.Error(err))

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Close leaves the consumer group.
func (g *ConsumerGroup) Close() error {
	if err := g.group.Close(); err != nil {
		return fmt.Errorf("close kafka consumer group: %w", err)
	}
	return nil
}
