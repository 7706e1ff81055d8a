package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/IBM/sarama"
	"go.uber.org/zap/zaptest"

	"github.com/arklim/srm-service/internal/core/domain"
)

type invalidatorStub struct {
	ids []string
	err error
}

func (s *invalidatorStub) InvalidateAuthorization(_ context.Context, userIDs ...string) error {
	s.ids = append(s.ids, userIDs...)
	return s.err
}

func TestMembershipConsumerHandleMessage(t *testing.T) {
	stub := &invalidatorStub{}
	consumer := NewMembershipConsumer(stub, zaptest.NewLogger(t))

	event := domain.MembershipChangedEvent{
		EventID:  "evt-1",
		GroupID:  3,
		BuyerIDs: []string{"buyer-1", " buyer-2 ", "buyer-1", ""},
		Change:   "removed",
	}
	envelope := map[string]any{
		"event_id":   "evt-1",
		"event_type": "srm.purchasing_group.membership.changed",
		"payload":    event,
	}
	bytes, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}

	if err := consumer.HandleMessage(context.Background(), &sarama.ConsumerMessage{Value: bytes}); err != nil {
		t.Fatalf("HandleMessage returned error: %v", err)
	}

	if len(stub.ids) != 2 || stub.ids[0] != "buyer-1" || stub.ids[1] != "buyer-2" {
		t.Fatalf("unexpected invalidated ids: %v", stub.ids)
	}
}

func TestMembershipConsumerAcceptsBareEvent(t *testing.T) {
	stub := &invalidatorStub{}
	consumer := NewMembershipConsumer(stub, zaptest.NewLogger(t))

	bytes, _ := json.Marshal(domain.MembershipChangedEvent{GroupID: 1, BuyerIDs: []string{"buyer-9"}})
	if err := consumer.HandleMessage(context.Background(), &sarama.ConsumerMessage{Value: bytes}); err != nil {
		t.Fatalf("HandleMessage returned error: %v", err)
	}
	if len(stub.ids) != 1 || stub.ids[0] != "buyer-9" {
		t.Fatalf("unexpected invalidated ids: %v", stub.ids)
	}
}

func TestMembershipConsumerRejectsInvalidJSON(t *testing.T) {
	consumer := NewMembershipConsumer(&invalidatorStub{}, zaptest.NewLogger(t))

	if err := consumer.HandleMessage(context.Background(), &sarama.ConsumerMessage{Value: []byte("{")}); !errors.Is(err, ErrMalformedEvent) {
		t.Fatalf("expected ErrMalformedEvent, got %v", err)
	}
	if err := consumer.HandleMessage(context.Background(), nil); !errors.Is(err, ErrMalformedEvent) {
		t.Fatalf("expected ErrMalformedEvent for nil message, got %v", err)
	}
}

func TestMembershipConsumerSkipsEmptyBuyers(t *testing.T) {
	stub := &invalidatorStub{err: errors.New("must not be called")}
	consumer := NewMembershipConsumer(stub, zaptest.NewLogger(t))

	if err := consumer.HandleEvent(context.Background(), domain.MembershipChangedEvent{BuyerIDs: []string{" "}}); err != nil {
		t.Fatalf("HandleEvent returned error: %v", err)
	}
}

func TestMembershipConsumerPropagatesInvalidatorError(t *testing.T) {
	stub := &invalidatorStub{err: errors.New("redis down")}
	consumer := NewMembershipConsumer(stub, zaptest.NewLogger(t))

	if err := consumer.HandleEvent(context.Background(), domain.MembershipChangedEvent{BuyerIDs: []string{"buyer-1"}}); err == nil {
		t.Fatal("expected invalidator error")
	}
}

type consumerSessionStub struct {
	ctx    context.Context
	marked []int64
}

func (s *consumerSessionStub) Claims() map[string][]int32               { return nil }
func (s *consumerSessionStub) MemberID() string                         { return "member-1" }
func (s *consumerSessionStub) GenerationID() int32                      { return 1 }
func (s *consumerSessionStub) MarkOffset(string, int32, int64, string)  {}
func (s *consumerSessionStub) Commit()                                  {}
func (s *consumerSessionStub) ResetOffset(string, int32, int64, string) {}
func (s *consumerSessionStub) Context() context.Context                 { return s.ctx }
func (s *consumerSessionStub) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.marked = append(s.marked, msg.Offset)
}

type consumerClaimStub struct {
	messages chan *sarama.ConsumerMessage
}

func newClaimStub(messages ...*sarama.ConsumerMessage) *consumerClaimStub {
	ch := make(chan *sarama.ConsumerMessage, len(messages))
	for _, msg := range messages {
		ch <- msg
	}
	close(ch)
	return &consumerClaimStub{messages: ch}
}

func (c *consumerClaimStub) Topic() string                            { return "srm.purchasing_group.membership.changed" }
func (c *consumerClaimStub) Partition() int32                         { return 0 }
func (c *consumerClaimStub) InitialOffset() int64                     { return 0 }
func (c *consumerClaimStub) HighWaterMarkOffset() int64               { return 0 }
func (c *consumerClaimStub) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

func membershipMessage(t *testing.T, offset int64, buyers ...string) *sarama.ConsumerMessage {
	t.Helper()
	bytes, err := json.Marshal(domain.MembershipChangedEvent{GroupID: 1, BuyerIDs: buyers, Change: "role_changed"})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return &sarama.ConsumerMessage{Topic: "srm.purchasing_group.membership.changed", Offset: offset, Value: bytes}
}

func TestMembershipConsumerConsumeClaimMarksAppliedAndMalformed(t *testing.T) {
	stub := &invalidatorStub{}
	consumer := NewMembershipConsumer(stub, zaptest.NewLogger(t))
	session := &consumerSessionStub{ctx: context.Background()}

	claim := newClaimStub(
		membershipMessage(t, 40, "buyer-1"),
		&sarama.ConsumerMessage{Offset: 41, Value: []byte("not json")},
		membershipMessage(t, 42, "buyer-2"),
	)
	if err := consumer.ConsumeClaim(session, claim); err != nil {
		t.Fatalf("ConsumeClaim returned error: %v", err)
	}

	if want := []int64{40, 41, 42}; !reflect.DeepEqual(session.marked, want) {
		t.Fatalf("marked offsets = %v, want %v", session.marked, want)
	}
	if want := []string{"buyer-1", "buyer-2"}; !reflect.DeepEqual(stub.ids, want) {
		t.Fatalf("invalidated ids = %v, want %v", stub.ids, want)
	}
}

func TestMembershipConsumerConsumeClaimKeepsOffsetOnInvalidationFailure(t *testing.T) {
	stub := &invalidatorStub{err: errors.New("redis: connection refused")}
	consumer := NewMembershipConsumer(stub, zaptest.NewLogger(t))
	session := &consumerSessionStub{ctx: context.Background()}

	claim := newClaimStub(membershipMessage(t, 42, "buyer-1"), membershipMessage(t, 43, "buyer-2"))
	err := consumer.ConsumeClaim(session, claim)
	if err == nil {
		t.Fatal("expected ConsumeClaim to stop on a failed invalidation")
	}
	if errors.Is(err, ErrMalformedEvent) {
		t.Fatalf("invalidation failure reported as malformed: %v", err)
	}
	if len(session.marked) != 0 {
		t.Fatalf("offsets %v marked although the invalidation failed", session.marked)
	}
	if !reflect.DeepEqual(stub.ids, []string{"buyer-1"}) {
		t.Fatalf("messages after the failure must wait for redelivery, invalidated %v", stub.ids)
	}
}
