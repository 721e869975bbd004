package audit

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"pennywise/internal/model"
	"pennywise/pkg/logger"
	"pennywise/pkg/metrics"
)

const writeTimeout = 3 * time.Second

// Store persists audit events.
type Store interface {
	Insert(ctx context.Context, event *model.AuditEvent) error
}

// Publisher fans events out to the message bus.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// connectionState is implemented by publishers that know when their broker
// connection has dropped.
type connectionState interface {
	IsConnected() bool
}

// Recorder writes audit events to the store and, when a publisher is set,
// publishes them. Failures are logged and counted, never returned.
type Recorder struct {
	store     Store
	publisher Publisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewRecorder(store Store, publisher Publisher, logger *zap.Logger) *Recorder {
	return &Recorder{
		store:     store,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// RoutingKey is audit.<entity>.<action>, lowercased.
func RoutingKey(event model.AuditEvent) string {
	return "audit." + event.Entity + "." + strings.ToLower(event.Action)
}

func (r *Recorder) Record(ctx context.Context, event model.AuditEvent) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = r.now().UTC().Truncate(time.Microsecond)
	}
	log := logger.WithTrace(ctx, r.logger).With(
		zap.String("action", event.Action),
		zap.String("entity_id", event.EntityID),
	)

	// Audit must outlive a request that has already been answered.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	if r.store != nil {
		if err := r.store.Insert(writeCtx, &event); err != nil {
			metrics.IncrementAuditFailure("store")
			log.Warn("Failed to store audit event", zap.Error(err))
		}
	}

	if r.publisher != nil {
		if c, ok := r.publisher.(connectionState); ok && !c.IsConnected() {
			metrics.IncrementAuditFailure("mq")
			log.Warn("Audit publisher disconnected, event not published")
			return
		}
		if err := r.publisher.Publish(writeCtx, RoutingKey(event), event); err != nil {
			metrics.IncrementAuditFailure("mq")
			log.Warn("Failed to publish audit event", zap.Error(err))
		}
	}
}
