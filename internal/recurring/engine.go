package recurring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pennywise/internal/apperr"
	"pennywise/internal/model"
	"pennywise/pkg/circuitbreaker"
	"pennywise/pkg/logger"
	"pennywise/pkg/metrics"
	"pennywise/pkg/trace"
	"pennywise/pkg/util"
)

type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	// OutcomeFailed: the ledger write failed; the schedule is untouched.
	OutcomeFailed Outcome = "failed"
	// OutcomeSkipped: another runner holds the claim for this cycle.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeAdvanceFailed: the transaction exists but the schedule did not
	// move, so the next pass may create a duplicate.
	OutcomeAdvanceFailed Outcome = "advance_failed"
)

const (
	triggerBatch  = "batch"
	triggerManual = "manual"

	advanceTimeout = 5 * time.Second
)

// ExecutionRecord describes one rule execution.
type ExecutionRecord struct {
	RuleID        string     `json:"rule_id"`
	OwnerID       string     `json:"owner_id"`
	ParentRuleID  *string    `json:"parent_rule_id,omitempty"`
	TransactionID string     `json:"transaction_id,omitempty"`
	ScheduledAt   time.Time  `json:"scheduled_at"`
	ExecutedAt    time.Time  `json:"executed_at"`
	NextDueAt     *time.Time `json:"next_due_at,omitempty"`
	Outcome       Outcome    `json:"outcome"`
	Error         string     `json:"error,omitempty"`
}

// BatchReport summarizes one RunDueRules pass. NotStarted counts rules left
// due because the context ended before they were picked up.
type BatchReport struct {
	Now           time.Time         `json:"now"`
	Selected      int               `json:"selected"`
	Succeeded     int               `json:"succeeded"`
	Failed        int               `json:"failed"`
	Skipped       int               `json:"skipped"`
	AdvanceFailed int               `json:"advance_failed"`
	NotStarted    int               `json:"not_started"`
	Duration      time.Duration     `json:"duration"`
	Records       []ExecutionRecord `json:"records"`
}

// Engine selects due rules and materializes them through the ledger.
type Engine struct {
	store   RuleStore
	ledger  LedgerWriter
	audit   AuditSink
	logger  *zap.Logger
	now     func() time.Time
	workers int

	conditionalAdvance bool
	claimer            Claimer
	failures           FailureCounter
	breaker            *circuitbreaker.CircuitBreaker
}

type EngineOption func(*Engine)

// WithWorkers bounds concurrent rule executions per pass.
func WithWorkers(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithConditionalAdvance makes the schedule advance succeed only while
// next_due_at still holds the value read at selection time.
func WithConditionalAdvance(enabled bool) EngineOption {
	return func(e *Engine) { e.conditionalAdvance = enabled }
}

func WithClaimer(c Claimer) EngineOption {
	return func(e *Engine) { e.claimer = c }
}

func WithFailureCounter(fc FailureCounter) EngineOption {
	return func(e *Engine) { e.failures = fc }
}

// WithCircuitBreaker guards ledger writes; an open breaker fails rules fast
// and leaves them due.
func WithCircuitBreaker(cb *circuitbreaker.CircuitBreaker) EngineOption {
	return func(e *Engine) { e.breaker = cb }
}

func NewEngine(store RuleStore, ledger LedgerWriter, audit AuditSink, log *zap.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		store:   store,
		ledger:  ledger,
		audit:   guardAudit(audit, log),
		logger:  log,
		now:     time.Now,
		workers: 1,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Now is the engine clock, normalized.
func (e *Engine) Now() time.Time {
	return Normalize(e.now())
}

// RunDueRules executes every rule due at now. A rule's failure is recorded
// in the report and never stops the pass. The returned error is non-nil only
// when due rules could not be selected.
func (e *Engine) RunDueRules(ctx context.Context, now time.Time) (*BatchReport, error) {
	started := time.Now()
	now = Normalize(now)
	ctx, _ = trace.Ensure(ctx)
	log := logger.WithTrace(ctx, e.logger)

	rules, err := e.store.SelectDue(ctx, now)
	if err != nil {
		log.Error("Failed to select due recurring rules", zap.Error(err))
		return nil, apperr.Dependency("failed to select due rules", err)
	}

	log.Info("Executing due recurring rules",
		zap.Int("count", len(rules)),
		zap.Time("now", now),
		zap.Int("workers", e.workers),
	)

	records := make([]*ExecutionRecord, len(rules))
	var g errgroup.Group
	g.SetLimit(e.workers)
	for i := range rules {
		if ctx.Err() != nil {
			break
		}
		rule := rules[i]
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			records[i], _ = e.execute(ctx, rule, now, triggerBatch)
			return nil
		})
	}
	_ = g.Wait()

	report := &BatchReport{Now: now, Selected: len(rules)}
	for _, rec := range records {
		if rec == nil {
			report.NotStarted++
			continue
		}
		switch rec.Outcome {
		case OutcomeSucceeded:
			report.Succeeded++
		case OutcomeFailed:
			report.Failed++
		case OutcomeSkipped:
			report.Skipped++
		case OutcomeAdvanceFailed:
			report.AdvanceFailed++
		}
		report.Records = append(report.Records, *rec)
	}
	report.Duration = time.Since(started)
	metrics.RecordBatch(report.Selected, report.Duration)

	fields := []zap.Field{
		zap.Int("selected", report.Selected),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
		zap.Int("advance_failed", report.AdvanceFailed),
		zap.Int("not_started", report.NotStarted),
		zap.Duration("took", report.Duration),
	}
	if report.NotStarted > 0 {
		log.Warn("Recurring execution interrupted, remaining rules stay due", append(fields, zap.Error(ctx.Err()))...)
	} else {
		log.Info("Recurring execution completed", fields...)
	}
	return report, nil
}

// ExecuteOne materializes rule at now and advances its schedule. It is the
// path manual execution uses; RunDueRules goes through the same routine.
func (e *Engine) ExecuteOne(ctx context.Context, rule model.RecurringRule, now time.Time) (*ExecutionRecord, error) {
	return e.execute(ctx, rule, Normalize(now), triggerManual)
}

func (e *Engine) execute(ctx context.Context, rule model.RecurringRule, now time.Time, trigger string) (rec *ExecutionRecord, err error) {
	log := logger.WithTrace(ctx, e.logger).With(
		zap.String("rule_id", rule.ID),
		zap.String("owner_id", rule.OwnerID),
		zap.String("trigger", trigger),
	)
	rec = &ExecutionRecord{
		RuleID:       rule.ID,
		OwnerID:      rule.OwnerID,
		ParentRuleID: rule.ParentRuleID,
		ScheduledAt:  rule.NextDueAt,
		ExecutedAt:   now,
	}

	// advanced is set once the schedule write has landed; after that the
	// execution counts as succeeded whatever happens.
	var advanced bool
	defer func() {
		if r := recover(); r != nil {
			log.Error("Recurring execution panic recovered", zap.Any("panic", r))
			switch {
			case advanced:
				rec.Outcome = OutcomeSucceeded
				rec.Error = ""
				err = nil
			case rec.TransactionID == "":
				rec.Outcome = OutcomeFailed
			default:
				rec.Outcome = OutcomeAdvanceFailed
			}
			if !advanced {
				err = apperr.Dependency("recurring execution panicked", fmt.Errorf("panic: %v", r))
				rec.Error = err.Error()
			}
		}
		metrics.IncrementExecution(string(rec.Outcome), trigger)
	}()

	next, err := nextDueAfter(rule.Frequency, rule.NextDueAt, now)
	if err != nil {
		return e.fail(ctx, log, rec, "schedule", err)
	}

	if e.claimer != nil {
		claimed, claimErr := e.claimer.Claim(ctx, rule.ID, rule.NextDueAt)
		switch {
		case claimErr != nil:
			log.Warn("Cycle claim unavailable, executing without it", zap.Error(claimErr))
		case !claimed:
			rec.Outcome = OutcomeSkipped
			return rec, nil
		}
	}

	tx, err := e.createTransaction(ctx, rule, now)
	if err != nil {
		e.releaseClaim(ctx, log, rule)
		return e.fail(ctx, log, rec, "ledger", apperr.Dependency("ledger write failed", err))
	}
	rec.TransactionID = tx.ID

	// The ledger write is done; finish the advance even if the batch deadline
	// has just passed so the rule does not stay due with a transaction booked.
	advanceCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), advanceTimeout)
	defer cancel()

	if e.conditionalAdvance {
		advanced, err = e.store.AdvanceScheduleIf(advanceCtx, rule.ID, rule.NextDueAt, now, next)
	} else {
		advanced, err = e.store.AdvanceSchedule(advanceCtx, rule.ID, now, next)
	}
	if err == nil && !advanced {
		err = errors.New("schedule advance matched no rule or the schedule changed concurrently")
	}
	if err != nil {
		advanced = false
		log.Error("Transaction created but schedule not advanced; rule may execute again",
			zap.String("transaction_id", tx.ID),
			zap.Error(err),
		)
		return e.fail(ctx, log, rec, "advance", apperr.Dependency("schedule advance failed", err))
	}

	rec.Outcome = OutcomeSucceeded
	rec.NextDueAt = &next
	if e.failures != nil {
		if resetErr := e.failures.Reset(advanceCtx, rule.ID); resetErr != nil {
			log.Warn("Failed to reset failure streak", zap.Error(resetErr))
		}
	}

	e.audit.Record(ctx, model.AuditEvent{
		Action:   model.ActionRuleExecuted,
		OwnerID:  rule.OwnerID,
		Entity:   model.EntityRecurringRule,
		EntityID: rule.ID,
		Metadata: map[string]any{
			"transaction_id": tx.ID,
			"amount":         rule.Amount.String(),
			"frequency":      string(rule.Frequency),
			"parent_rule_id": rule.ParentRuleID,
			"executed_at":    now,
			"next_due_at":    next,
			"trigger":        trigger,
		},
	})

	log.Info("Executed recurring rule",
		zap.String("transaction_id", tx.ID),
		zap.Time("next_due_at", next),
	)
	return rec, nil
}

func (e *Engine) createTransaction(ctx context.Context, rule model.RecurringRule, now time.Time) (*model.Transaction, error) {
	ruleID := rule.ID
	draft := model.TransactionDraft{
		Date:            now,
		Amount:          rule.Amount,
		Kind:            rule.Kind,
		Category:        rule.Category,
		Description:     rule.Description,
		Source:          model.SourceRecurring,
		IsRecurring:     true,
		RecurringRuleID: &ruleID,
	}

	if e.breaker == nil {
		return e.ledger.Create(ctx, rule.OwnerID, draft)
	}

	var tx *model.Transaction
	err := e.breaker.ExecuteCounting(func() error {
		var err error
		tx, err = e.ledger.Create(ctx, rule.OwnerID, draft)
		return err
	}, countsTowardBreaker)
	return tx, err
}

// countsTowardBreaker ignores writes aborted by the caller's context, so a
// batch deadline does not open the breaker for healthy rules.
func countsTowardBreaker(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func (e *Engine) releaseClaim(ctx context.Context, log *zap.Logger, rule model.RecurringRule) {
	if e.claimer == nil {
		return
	}
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), advanceTimeout)
	defer cancel()
	if err := e.claimer.Release(releaseCtx, rule.ID, rule.NextDueAt); err != nil {
		log.Warn("Failed to release cycle claim", zap.Error(err))
	}
}

// fail records a failed execution: outcome, metrics, failure streak, audit.
func (e *Engine) fail(ctx context.Context, log *zap.Logger, rec *ExecutionRecord, stage string, err error) (*ExecutionRecord, error) {
	if rec.TransactionID != "" {
		rec.Outcome = OutcomeAdvanceFailed
	} else {
		rec.Outcome = OutcomeFailed
	}
	rec.Error = err.Error()
	reason := util.ClassifyError(err)
	metrics.IncrementFailure(stage, reason)

	metadata := map[string]any{
		"stage":          stage,
		"reason":         reason,
		"error":          err.Error(),
		"scheduled_at":   rec.ScheduledAt,
		"parent_rule_id": rec.ParentRuleID,
	}
	if rec.TransactionID != "" {
		metadata["transaction_id"] = rec.TransactionID
	}

	if e.failures != nil {
		streakCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), advanceTimeout)
		defer cancel()
		if streak, incErr := e.failures.Increment(streakCtx, rec.RuleID); incErr == nil {
			metadata["consecutive_failures"] = streak
		} else {
			log.Warn("Failed to count failure streak", zap.Error(incErr))
		}
	}

	log.Error("Failed to execute recurring rule",
		zap.String("stage", stage),
		zap.String("reason", reason),
		zap.Error(err),
	)

	e.audit.Record(context.WithoutCancel(ctx), model.AuditEvent{
		Action:   model.ActionRuleExecutionFailed,
		OwnerID:  rec.OwnerID,
		Entity:   model.EntityRecurringRule,
		EntityID: rec.RuleID,
		Metadata: metadata,
	})
	return rec, err
}
