package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"pennywise/internal/apperr"
	"pennywise/internal/model"
)

const ruleColumns = `id, owner_id, amount, kind, category, description, frequency,
	next_due_at, active, parent_rule_id, last_executed_at, created_at, updated_at`

type RuleStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewRuleStore(db *sql.DB) *RuleStore {
	return &RuleStore{db: db, now: now}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*model.RecurringRule, error) {
	var (
		r                model.RecurringRule
		amount           string
		nextDue, created int64
		updated          int64
		active           bool
		parentID         sql.NullString
		lastExecuted     sql.NullInt64
	)
	err := row.Scan(&r.ID, &r.OwnerID, &amount, &r.Kind, &r.Category, &r.Description, &r.Frequency,
		&nextDue, &active, &parentID, &lastExecuted, &created, &updated)
	if err != nil {
		return nil, err
	}
	r.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("rule %s: bad amount %q: %w", r.ID, amount, err)
	}
	r.NextDueAt = fromMicros(nextDue)
	r.Active = active
	r.ParentRuleID = nullString(parentID)
	r.LastExecutedAt = nullMicros(lastExecuted)
	r.CreatedAt = fromMicros(created)
	r.UpdatedAt = fromMicros(updated)
	return &r, nil
}

func (s *RuleStore) Create(ctx context.Context, ownerID string, spec model.RuleSpec) (*model.RecurringRule, error) {
	ts := s.now()
	rule := &model.RecurringRule{
		ID:           uuid.NewString(),
		OwnerID:      ownerID,
		Amount:       spec.Amount,
		Kind:         spec.Kind,
		Category:     spec.Category,
		Description:  spec.Description,
		Frequency:    spec.Frequency,
		NextDueAt:    spec.NextDueAt.UTC().Truncate(time.Microsecond),
		Active:       true,
		ParentRuleID: spec.ParentRuleID,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recurring_rules (id, owner_id, amount, kind, category, description, frequency,
			next_due_at, active, parent_rule_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?)`,
		rule.ID, ownerID, rule.Amount.String(), string(rule.Kind), rule.Category, rule.Description,
		string(rule.Frequency), toMicros(rule.NextDueAt), nullable(rule.ParentRuleID), toMicros(ts), toMicros(ts),
	)
	if err != nil {
		return nil, fmt.Errorf("insert recurring rule: %w", err)
	}
	return rule, nil
}

func (s *RuleStore) GetByID(ctx context.Context, ownerID, id string) (*model.RecurringRule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+ruleColumns+` FROM recurring_rules WHERE id = ? AND owner_id = ?`, id, ownerID)
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("recurring rule not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get recurring rule: %w", err)
	}
	return rule, nil
}

func (s *RuleStore) Update(ctx context.Context, ownerID, id string, patch model.RulePatch) (*model.RecurringRule, error) {
	sets := []string{"updated_at = ?"}
	args := []any{toMicros(s.now())}

	if patch.Amount != nil {
		sets = append(sets, "amount = ?")
		args = append(args, patch.Amount.String())
	}
	if patch.Kind != nil {
		sets = append(sets, "kind = ?")
		args = append(args, string(*patch.Kind))
	}
	if patch.Category != nil {
		sets = append(sets, "category = ?")
		args = append(args, *patch.Category)
	}
	if patch.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *patch.Description)
	}
	if patch.Frequency != nil {
		sets = append(sets, "frequency = ?")
		args = append(args, string(*patch.Frequency))
	}
	if patch.NextDueAt != nil {
		sets = append(sets, "next_due_at = ?")
		args = append(args, toMicros(*patch.NextDueAt))
	}
	if patch.Active != nil {
		sets = append(sets, "active = ?")
		args = append(args, *patch.Active)
	}
	args = append(args, id, ownerID)

	res, err := s.db.ExecContext(ctx,
		`UPDATE recurring_rules SET `+strings.Join(sets, ", ")+` WHERE id = ? AND owner_id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("update recurring rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperr.NotFound("recurring rule not found")
	}
	return s.GetByID(ctx, ownerID, id)
}

func (s *RuleStore) Deactivate(ctx context.Context, ownerID, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE recurring_rules SET active = 0, updated_at = ? WHERE id = ? AND owner_id = ?`,
		toMicros(s.now()), id, ownerID)
	if err != nil {
		return false, fmt.Errorf("deactivate recurring rule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RuleStore) List(ctx context.Context, ownerID string, filter model.RuleFilter, page, limit int) ([]model.RecurringRule, int, error) {
	where := []string{"owner_id = ?"}
	args := []any{ownerID}
	if filter.ActiveOnly {
		where = append(where, "active = 1")
	}
	if filter.Frequency != nil {
		where = append(where, "frequency = ?")
		args = append(args, string(*filter.Frequency))
	}
	if filter.Category != nil {
		where = append(where, "category = ?")
		args = append(args, *filter.Category)
	}
	if filter.Kind != nil {
		where = append(where, "kind = ?")
		args = append(args, string(*filter.Kind))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM recurring_rules WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count recurring rules: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ruleColumns+` FROM recurring_rules WHERE `+cond+`
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, limit, (page-1)*limit)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list recurring rules: %w", err)
	}
	defer rows.Close()

	rules, err := collectRules(rows)
	if err != nil {
		return nil, 0, err
	}
	return rules, total, nil
}

func (s *RuleStore) SelectDue(ctx context.Context, now time.Time) ([]model.RecurringRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ruleColumns+` FROM recurring_rules
		WHERE active = 1 AND next_due_at <= ?
		ORDER BY next_due_at ASC, id ASC`, toMicros(now))
	if err != nil {
		return nil, fmt.Errorf("select due rules: %w", err)
	}
	defer rows.Close()
	return collectRules(rows)
}

func (s *RuleStore) AdvanceSchedule(ctx context.Context, id string, executedAt, nextDueAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE recurring_rules SET last_executed_at = ?, next_due_at = ?, updated_at = ? WHERE id = ?`,
		toMicros(executedAt), toMicros(nextDueAt), toMicros(s.now()), id)
	if err != nil {
		return false, fmt.Errorf("advance schedule: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *RuleStore) AdvanceScheduleIf(ctx context.Context, id string, expectedDueAt, executedAt, nextDueAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE recurring_rules SET last_executed_at = ?, next_due_at = ?, updated_at = ?
		WHERE id = ? AND next_due_at = ?`,
		toMicros(executedAt), toMicros(nextDueAt), toMicros(s.now()), id, toMicros(expectedDueAt))
	if err != nil {
		return false, fmt.Errorf("advance schedule: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func collectRules(rows *sql.Rows) ([]model.RecurringRule, error) {
	var rules []model.RecurringRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recurring rule: %w", err)
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}
