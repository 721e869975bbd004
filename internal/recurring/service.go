package recurring

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"pennywise/internal/apperr"
	"pennywise/internal/model"
	"pennywise/pkg/logger"
)

// Page is one page of a listing.
type Page[T any] struct {
	Items []T `json:"items"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

// Pages returns the page count, at least 1.
func (p Page[T]) Pages() int {
	if p.Limit <= 0 || p.Total == 0 {
		return 1
	}
	return (p.Total + p.Limit - 1) / p.Limit
}

// Service is the owner-facing API over rules and their executions.
type Service struct {
	store   RuleStore
	engine  *Engine
	txQuery TransactionQuery
	audit   AuditSink
	logger  *zap.Logger
}

func NewService(store RuleStore, engine *Engine, txQuery TransactionQuery, audit AuditSink, log *zap.Logger) *Service {
	return &Service{
		store:   store,
		engine:  engine,
		txQuery: txQuery,
		audit:   guardAudit(audit, log),
		logger:  log,
	}
}

func (s *Service) Create(ctx context.Context, ownerID string, spec model.RuleSpec, meta model.RequestMeta) (*model.RecurringRule, error) {
	if err := validateOwner(ownerID); err != nil {
		return nil, err
	}
	if err := validateSpec(spec); err != nil {
		return nil, err
	}
	spec.NextDueAt = Normalize(spec.NextDueAt)

	rule, err := s.store.Create(ctx, ownerID, spec)
	if err != nil {
		return nil, s.storeError(ctx, "create rule", err)
	}

	s.record(ctx, model.ActionRuleCreated, ownerID, rule.ID, meta, map[string]any{
		"amount":         rule.Amount.String(),
		"kind":           string(rule.Kind),
		"category":       rule.Category,
		"frequency":      string(rule.Frequency),
		"next_due_at":    rule.NextDueAt,
		"parent_rule_id": rule.ParentRuleID,
	})
	return rule, nil
}

func (s *Service) Get(ctx context.Context, ownerID, id string, meta model.RequestMeta) (*model.RecurringRule, error) {
	rule, err := s.lookup(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	s.record(ctx, model.ActionRuleViewed, ownerID, id, meta, nil)
	return rule, nil
}

func (s *Service) Update(ctx context.Context, ownerID, id string, patch model.RulePatch, meta model.RequestMeta) (*model.RecurringRule, error) {
	if err := validateOwner(ownerID); err != nil {
		return nil, err
	}
	if err := validatePatch(patch); err != nil {
		return nil, err
	}
	if patch.NextDueAt != nil {
		normalized := Normalize(*patch.NextDueAt)
		patch.NextDueAt = &normalized
	}

	rule, err := s.store.Update(ctx, ownerID, id, patch)
	if err != nil {
		return nil, s.storeError(ctx, "update rule", err)
	}

	s.record(ctx, model.ActionRuleUpdated, ownerID, id, meta, map[string]any{
		"fields": patch.Fields(),
	})
	return rule, nil
}

// Delete deactivates the rule. Rules are never removed so generated
// transactions stay traceable.
func (s *Service) Delete(ctx context.Context, ownerID, id string, meta model.RequestMeta) error {
	if err := validateOwner(ownerID); err != nil {
		return err
	}
	found, err := s.store.Deactivate(ctx, ownerID, id)
	if err != nil {
		return s.storeError(ctx, "deactivate rule", err)
	}
	if !found {
		return apperr.NotFound("recurring rule not found")
	}
	s.record(ctx, model.ActionRuleDeleted, ownerID, id, meta, nil)
	return nil
}

func (s *Service) List(ctx context.Context, ownerID string, filter model.RuleFilter, page, limit int, meta model.RequestMeta) (*Page[model.RecurringRule], error) {
	if err := validateOwner(ownerID); err != nil {
		return nil, err
	}
	if err := validatePage(page, limit); err != nil {
		return nil, err
	}
	if filter.Frequency != nil && !filter.Frequency.Valid() {
		return nil, apperr.Validation("unsupported frequency %q", *filter.Frequency)
	}
	if filter.Kind != nil && !filter.Kind.Valid() {
		return nil, apperr.Validation("unsupported kind %q", *filter.Kind)
	}

	rules, total, err := s.store.List(ctx, ownerID, filter, page, limit)
	if err != nil {
		return nil, s.storeError(ctx, "list rules", err)
	}
	if rules == nil {
		rules = []model.RecurringRule{}
	}

	s.record(ctx, model.ActionRuleListViewed, ownerID, "", meta, map[string]any{
		"page":        page,
		"limit":       limit,
		"total":       total,
		"active_only": filter.ActiveOnly,
	})
	return &Page[model.RecurringRule]{Items: rules, Page: page, Limit: limit, Total: total}, nil
}

// ExecuteNow runs one active rule immediately through the same routine the
// batch uses. Inactive rules are rejected without touching the ledger.
func (s *Service) ExecuteNow(ctx context.Context, ownerID, id string, meta model.RequestMeta) (*ExecutionRecord, error) {
	rule, err := s.lookup(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if !rule.Active {
		return nil, apperr.Validation("recurring rule is inactive")
	}

	rec, err := s.engine.ExecuteOne(ctx, *rule, s.engine.Now())
	if err != nil {
		return rec, err
	}

	s.record(ctx, model.ActionRuleManualExecution, ownerID, id, meta, map[string]any{
		"transaction_id": rec.TransactionID,
		"next_due_at":    rec.NextDueAt,
		"outcome":        string(rec.Outcome),
	})
	return rec, nil
}

// ListGeneratedTransactions pages through the transactions a rule produced,
// newest first.
func (s *Service) ListGeneratedTransactions(ctx context.Context, ownerID, id string, page, limit int, meta model.RequestMeta) (*Page[model.Transaction], error) {
	if err := validatePage(page, limit); err != nil {
		return nil, err
	}
	rule, err := s.lookup(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	match := model.TransactionMatch{
		Source:   model.SourceRecurring,
		Kind:     rule.Kind,
		Category: rule.Category,
		Amount:   rule.Amount,
		RuleID:   rule.ID,
	}
	txs, total, err := s.txQuery.Find(ctx, ownerID, match, page, limit)
	if err != nil {
		return nil, s.storeError(ctx, "find generated transactions", err)
	}
	if txs == nil {
		txs = []model.Transaction{}
	}

	s.record(ctx, model.ActionRuleGeneratedListViewed, ownerID, id, meta, map[string]any{
		"page":  page,
		"limit": limit,
		"total": total,
	})
	return &Page[model.Transaction]{Items: txs, Page: page, Limit: limit, Total: total}, nil
}

func (s *Service) lookup(ctx context.Context, ownerID, id string) (*model.RecurringRule, error) {
	if err := validateOwner(ownerID); err != nil {
		return nil, err
	}
	rule, err := s.store.GetByID(ctx, ownerID, id)
	if err != nil {
		return nil, s.storeError(ctx, "get rule", err)
	}
	return rule, nil
}

// storeError passes typed errors through and wraps everything else as a
// dependency failure.
func (s *Service) storeError(ctx context.Context, op string, err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	logger.WithTrace(ctx, s.logger).Error("Rule store failure", zap.String("op", op), zap.Error(err))
	return apperr.Dependency(op+" failed", err)
}

func (s *Service) record(ctx context.Context, action, ownerID, entityID string, meta model.RequestMeta, metadata map[string]any) {
	s.audit.Record(ctx, model.AuditEvent{
		Action:    action,
		OwnerID:   ownerID,
		Entity:    model.EntityRecurringRule,
		EntityID:  entityID,
		Metadata:  metadata,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	})
}
