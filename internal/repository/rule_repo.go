package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pennywise/internal/apperr"
	"pennywise/internal/model"
)

const ruleColumns = `id, owner_id, amount, kind, category, description, frequency,
        next_due_at, active, parent_rule_id, last_executed_at, created_at, updated_at`

// RuleRepository stores recurring rules in PostgreSQL.
type RuleRepository struct {
	db *pgxpool.Pool
}

func NewRuleRepository(db *pgxpool.Pool) *RuleRepository {
	return &RuleRepository{db: db}
}

func scanRule(row pgx.Row) (*model.RecurringRule, error) {
	var r model.RecurringRule
	var kind, frequency string
	err := row.Scan(
		&r.ID, &r.OwnerID, &r.Amount, &kind, &r.Category, &r.Description, &frequency,
		&r.NextDueAt, &r.Active, &r.ParentRuleID, &r.LastExecutedAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Kind = model.Kind(kind)
	r.Frequency = model.Frequency(frequency)
	r.NextDueAt = r.NextDueAt.UTC()
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	if r.LastExecutedAt != nil {
		t := r.LastExecutedAt.UTC()
		r.LastExecutedAt = &t
	}
	return &r, nil
}

func (r *RuleRepository) Create(ctx context.Context, ownerID string, spec model.RuleSpec) (*model.RecurringRule, error) {
	query := `
        INSERT INTO recurring_rules (id, owner_id, amount, kind, category, description, frequency,
            next_due_at, active, parent_rule_id, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, $9, NOW(), NOW())
        RETURNING ` + ruleColumns
	rule, err := scanRule(r.db.QueryRow(ctx, query,
		uuid.NewString(), ownerID, spec.Amount, string(spec.Kind), spec.Category, spec.Description,
		string(spec.Frequency), spec.NextDueAt.UTC(), spec.ParentRuleID,
	))
	if err != nil {
		return nil, fmt.Errorf("insert recurring rule: %w", err)
	}
	return rule, nil
}

func (r *RuleRepository) GetByID(ctx context.Context, ownerID, id string) (*model.RecurringRule, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperr.NotFound("recurring rule not found")
	}
	query := `SELECT ` + ruleColumns + ` FROM recurring_rules WHERE id = $1 AND owner_id = $2`
	rule, err := scanRule(r.db.QueryRow(ctx, query, id, ownerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("recurring rule not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get recurring rule: %w", err)
	}
	return rule, nil
}

// Update applies a sparse patch; NULL parameters keep the stored value.
func (r *RuleRepository) Update(ctx context.Context, ownerID, id string, patch model.RulePatch) (*model.RecurringRule, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperr.NotFound("recurring rule not found")
	}
	query := `
        UPDATE recurring_rules SET
            amount      = COALESCE($1, amount),
            kind        = COALESCE($2, kind),
            category    = COALESCE($3, category),
            description = COALESCE($4, description),
            frequency   = COALESCE($5, frequency),
            next_due_at = COALESCE($6, next_due_at),
            active      = COALESCE($7, active),
            updated_at  = NOW()
        WHERE id = $8 AND owner_id = $9
        RETURNING ` + ruleColumns

	var kind, frequency *string
	if patch.Kind != nil {
		k := string(*patch.Kind)
		kind = &k
	}
	if patch.Frequency != nil {
		f := string(*patch.Frequency)
		frequency = &f
	}

	rule, err := scanRule(r.db.QueryRow(ctx, query,
		patch.Amount, kind, patch.Category, patch.Description, frequency, patch.NextDueAt, patch.Active,
		id, ownerID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("recurring rule not found")
	}
	if err != nil {
		return nil, fmt.Errorf("update recurring rule: %w", err)
	}
	return rule, nil
}

func (r *RuleRepository) Deactivate(ctx context.Context, ownerID, id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}
	query := `UPDATE recurring_rules SET active = FALSE, updated_at = NOW() WHERE id = $1 AND owner_id = $2`
	tag, err := r.db.Exec(ctx, query, id, ownerID)
	if err != nil {
		return false, fmt.Errorf("deactivate recurring rule: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *RuleRepository) List(ctx context.Context, ownerID string, filter model.RuleFilter, page, limit int) ([]model.RecurringRule, int, error) {
	where := []string{"owner_id = $1"}
	args := []any{ownerID}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.ActiveOnly {
		where = append(where, "active")
	}
	if filter.Frequency != nil {
		add("frequency = $%d", string(*filter.Frequency))
	}
	if filter.Category != nil {
		add("category = $%d", *filter.Category)
	}
	if filter.Kind != nil {
		add("kind = $%d", string(*filter.Kind))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM recurring_rules WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count recurring rules: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM recurring_rules WHERE %s
        ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, ruleColumns, cond, len(args)+1, len(args)+2)
	rows, err := r.db.Query(ctx, query, append(args, limit, (page-1)*limit)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list recurring rules: %w", err)
	}
	rules, err := collectRules(rows)
	if err != nil {
		return nil, 0, err
	}
	return rules, total, nil
}

func (r *RuleRepository) SelectDue(ctx context.Context, now time.Time) ([]model.RecurringRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM recurring_rules
        WHERE active AND next_due_at <= $1
        ORDER BY next_due_at ASC, id ASC`
	rows, err := r.db.Query(ctx, query, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("select due rules: %w", err)
	}
	return collectRules(rows)
}

func (r *RuleRepository) AdvanceSchedule(ctx context.Context, id string, executedAt, nextDueAt time.Time) (bool, error) {
	query := `
        UPDATE recurring_rules
        SET last_executed_at = $1, next_due_at = $2, updated_at = NOW()
        WHERE id = $3
    `
	tag, err := r.db.Exec(ctx, query, executedAt.UTC(), nextDueAt.UTC(), id)
	if err != nil {
		return false, fmt.Errorf("advance schedule: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *RuleRepository) AdvanceScheduleIf(ctx context.Context, id string, expectedDueAt, executedAt, nextDueAt time.Time) (bool, error) {
	query := `
        UPDATE recurring_rules
        SET last_executed_at = $1, next_due_at = $2, updated_at = NOW()
        WHERE id = $3 AND next_due_at = $4
    `
	tag, err := r.db.Exec(ctx, query, executedAt.UTC(), nextDueAt.UTC(), id, expectedDueAt.UTC())
	if err != nil {
		return false, fmt.Errorf("advance schedule: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func collectRules(rows pgx.Rows) ([]model.RecurringRule, error) {
	defer rows.Close()
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
