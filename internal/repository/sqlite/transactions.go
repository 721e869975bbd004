package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"pennywise/internal/model"
)

type TransactionStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewTransactionStore(db *sql.DB) *TransactionStore {
	return &TransactionStore{db: db, now: now}
}

func (s *TransactionStore) Create(ctx context.Context, ownerID string, draft model.TransactionDraft) (*model.Transaction, error) {
	ts := s.now()
	tx := &model.Transaction{
		ID:              uuid.NewString(),
		OwnerID:         ownerID,
		Date:            draft.Date.UTC().Truncate(time.Microsecond),
		Amount:          draft.Amount,
		Kind:            draft.Kind,
		Category:        draft.Category,
		Description:     draft.Description,
		Source:          draft.Source,
		IsRecurring:     draft.IsRecurring,
		RecurringRuleID: draft.RecurringRuleID,
		CreatedAt:       ts,
		UpdatedAt:       ts,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (id, owner_id, date, amount, kind, category, description,
			source, is_recurring, recurring_rule_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, ownerID, toMicros(tx.Date), tx.Amount.String(), string(tx.Kind), tx.Category,
		tx.Description, tx.Source, tx.IsRecurring, nullable(tx.RecurringRuleID), toMicros(ts), toMicros(ts),
	)
	if err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}
	return tx, nil
}

// Find returns the owner's transactions stamped with match.RuleID, plus
// unstamped ones that agree on source, kind, category and amount. Newest first.
func (s *TransactionStore) Find(ctx context.Context, ownerID string, match model.TransactionMatch, page, limit int) ([]model.Transaction, int, error) {
	const cond = `owner_id = ? AND (
		recurring_rule_id = ?
		OR (recurring_rule_id IS NULL AND source = ? AND kind = ? AND category = ? AND amount = ?)
	)`
	args := []any{ownerID, match.RuleID, match.Source, string(match.Kind), match.Category, match.Amount.String()}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, date, amount, kind, category, description, source,
			is_recurring, recurring_rule_id, created_at, updated_at
		FROM transactions WHERE `+cond+`
		ORDER BY date DESC, created_at DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, limit, (page-1)*limit)...)
	if err != nil {
		return nil, 0, fmt.Errorf("find transactions: %w", err)
	}
	defer rows.Close()

	var txs []model.Transaction
	for rows.Next() {
		var (
			t                      model.Transaction
			amount                 string
			date, created, updated int64
			ruleID                 sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.OwnerID, &date, &amount, &t.Kind, &t.Category, &t.Description,
			&t.Source, &t.IsRecurring, &ruleID, &created, &updated); err != nil {
			return nil, 0, fmt.Errorf("scan transaction: %w", err)
		}
		if t.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, 0, fmt.Errorf("transaction %s: bad amount %q: %w", t.ID, amount, err)
		}
		t.Date = fromMicros(date)
		t.RecurringRuleID = nullString(ruleID)
		t.CreatedAt = fromMicros(created)
		t.UpdatedAt = fromMicros(updated)
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return txs, total, nil
}
