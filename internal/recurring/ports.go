package recurring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"pennywise/internal/model"
)

// RuleStore persists recurring rules. Every owner-facing method filters by
// ownerID; a rule owned by someone else is reported as not found.
// AdvanceSchedule and AdvanceScheduleIf are the only writers of
// next_due_at outside Update.
type RuleStore interface {
	Create(ctx context.Context, ownerID string, spec model.RuleSpec) (*model.RecurringRule, error)
	GetByID(ctx context.Context, ownerID, id string) (*model.RecurringRule, error)
	Update(ctx context.Context, ownerID, id string, patch model.RulePatch) (*model.RecurringRule, error)
	// Deactivate returns false only when no rule with id exists for ownerID.
	Deactivate(ctx context.Context, ownerID, id string) (bool, error)
	List(ctx context.Context, ownerID string, filter model.RuleFilter, page, limit int) ([]model.RecurringRule, int, error)
	// SelectDue returns active rules with next_due_at <= now across all
	// owners, ordered by next_due_at then id.
	SelectDue(ctx context.Context, now time.Time) ([]model.RecurringRule, error)
	AdvanceSchedule(ctx context.Context, id string, executedAt, nextDueAt time.Time) (bool, error)
	// AdvanceScheduleIf only writes while next_due_at still equals expectedDueAt.
	AdvanceScheduleIf(ctx context.Context, id string, expectedDueAt, executedAt, nextDueAt time.Time) (bool, error)
}

// LedgerWriter materializes a transaction for an owner.
type LedgerWriter interface {
	Create(ctx context.Context, ownerID string, draft model.TransactionDraft) (*model.Transaction, error)
}

// TransactionQuery finds transactions, newest first.
type TransactionQuery interface {
	Find(ctx context.Context, ownerID string, match model.TransactionMatch, page, limit int) ([]model.Transaction, int, error)
}

// AuditSink records events best-effort. Implementations must not block for
// long and must swallow their own failures.
type AuditSink interface {
	Record(ctx context.Context, event model.AuditEvent)
}

// Claimer grants at most one execution per (rule, due cycle) among
// concurrent runners.
type Claimer interface {
	Claim(ctx context.Context, ruleID string, dueAt time.Time) (bool, error)
	Release(ctx context.Context, ruleID string, dueAt time.Time) error
}

// FailureCounter tracks consecutive failures per rule.
type FailureCounter interface {
	Increment(ctx context.Context, ruleID string) (int64, error)
	Reset(ctx context.Context, ruleID string) error
}

type nopAudit struct{}

func (nopAudit) Record(context.Context, model.AuditEvent) {}

// guardedAudit drops panics raised by the wrapped sink.
type guardedAudit struct {
	sink   AuditSink
	logger *zap.Logger
}

func guardAudit(sink AuditSink, log *zap.Logger) AuditSink {
	if sink == nil {
		return nopAudit{}
	}
	if g, ok := sink.(guardedAudit); ok {
		return g
	}
	return guardedAudit{sink: sink, logger: log}
}

func (g guardedAudit) Record(ctx context.Context, event model.AuditEvent) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("Audit sink panic recovered",
				zap.String("action", event.Action),
				zap.String("entity_id", event.EntityID),
				zap.Any("panic", r),
			)
		}
	}()
	g.sink.Record(ctx, event)
}
