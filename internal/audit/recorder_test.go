package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pennywise/internal/model"
	"pennywise/pkg/trace"
)

type memStore struct {
	events []model.AuditEvent
	err    error
}

func (s *memStore) Insert(_ context.Context, e *model.AuditEvent) error {
	if s.err != nil {
		return s.err
	}
	e.ID = "evt-1"
	s.events = append(s.events, *e)
	return nil
}

type published struct {
	key     string
	payload any
	traceID string
}

type memPublisher struct {
	sent []published
	err  error
}

func (p *memPublisher) Publish(ctx context.Context, key string, payload any) error {
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, published{key: key, payload: payload, traceID: trace.FromContext(ctx)})
	return nil
}

// brokenPublisher reports a dropped connection and must never be asked to
// publish.
type brokenPublisher struct{ memPublisher }

func (*brokenPublisher) IsConnected() bool { return false }

func TestRoutingKey(t *testing.T) {
	key := RoutingKey(model.AuditEvent{Entity: model.EntityRecurringRule, Action: model.ActionRuleExecuted})
	assert.Equal(t, "audit.recurring_rule.recurring_transaction_executed", key)
}

func TestRecorder(t *testing.T) {
	event := model.AuditEvent{
		Action:   model.ActionRuleCreated,
		OwnerID:  "owner-1",
		Entity:   model.EntityRecurringRule,
		EntityID: "rule-1",
	}

	t.Run("stores and publishes", func(t *testing.T) {
		store := &memStore{}
		pub := &memPublisher{}
		rec := NewRecorder(store, pub, zap.NewNop())

		ctx := trace.WithContext(context.Background(), "trace-abc")
		rec.Record(ctx, event)

		require.Len(t, store.events, 1)
		assert.False(t, store.events[0].CreatedAt.IsZero())
		require.Len(t, pub.sent, 1)
		assert.Equal(t, "audit.recurring_rule.recurring_transaction_created", pub.sent[0].key)
		assert.Equal(t, "trace-abc", pub.sent[0].traceID)
		assert.Equal(t, "evt-1", pub.sent[0].payload.(model.AuditEvent).ID)
	})

	t.Run("store failure still publishes", func(t *testing.T) {
		store := &memStore{err: errors.New("disk full")}
		pub := &memPublisher{}
		NewRecorder(store, pub, zap.NewNop()).Record(context.Background(), event)
		assert.Len(t, pub.sent, 1)
	})

	t.Run("publisher failure is swallowed", func(t *testing.T) {
		store := &memStore{}
		pub := &memPublisher{err: errors.New("channel closed")}
		assert.NotPanics(t, func() {
			NewRecorder(store, pub, zap.NewNop()).Record(context.Background(), event)
		})
		assert.Len(t, store.events, 1)
	})

	t.Run("disconnected publisher is skipped", func(t *testing.T) {
		store := &memStore{}
		pub := &brokenPublisher{}
		NewRecorder(store, pub, zap.NewNop()).Record(context.Background(), event)
		assert.Len(t, store.events, 1)
		assert.Empty(t, pub.sent)
	})

	t.Run("canceled request still records", func(t *testing.T) {
		store := &memStore{}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		NewRecorder(store, nil, zap.NewNop()).Record(ctx, event)
		assert.Len(t, store.events, 1)
	})
}
