package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"pennywise/internal/model"
)

// TransactionRepository is the ledger: it writes generated transactions and
// answers traceability queries.
type TransactionRepository struct {
	db *pgxpool.Pool
}

func NewTransactionRepository(db *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{db: db}
}

const transactionColumns = `id, owner_id, date, amount, kind, category, description, source,
        is_recurring, recurring_rule_id, created_at, updated_at`

func (r *TransactionRepository) Create(ctx context.Context, ownerID string, draft model.TransactionDraft) (*model.Transaction, error) {
	query := `
        INSERT INTO transactions (id, owner_id, date, amount, kind, category, description,
            source, is_recurring, recurring_rule_id, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
        RETURNING ` + transactionColumns
	var t model.Transaction
	var kind string
	err := r.db.QueryRow(ctx, query,
		uuid.NewString(), ownerID, draft.Date.UTC(), draft.Amount, string(draft.Kind), draft.Category,
		draft.Description, draft.Source, draft.IsRecurring, draft.RecurringRuleID,
	).Scan(
		&t.ID, &t.OwnerID, &t.Date, &t.Amount, &kind, &t.Category, &t.Description, &t.Source,
		&t.IsRecurring, &t.RecurringRuleID, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}
	t.Kind = model.Kind(kind)
	normalizeTransaction(&t)
	return &t, nil
}

// Find matches rows stamped with the rule id, and unstamped rows on
// source, kind, category and amount. Newest first.
func (r *TransactionRepository) Find(ctx context.Context, ownerID string, match model.TransactionMatch, page, limit int) ([]model.Transaction, int, error) {
	const cond = `owner_id = $1 AND (
            recurring_rule_id = $2
            OR (recurring_rule_id IS NULL AND source = $3 AND kind = $4 AND category = $5 AND amount = $6)
        )`
	args := []any{ownerID, match.RuleID, match.Source, string(match.Kind), match.Category, match.Amount}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM transactions WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE ` + cond + `
        ORDER BY date DESC, created_at DESC, id DESC LIMIT $7 OFFSET $8`
	rows, err := r.db.Query(ctx, query, append(args, limit, (page-1)*limit)...)
	if err != nil {
		return nil, 0, fmt.Errorf("find transactions: %w", err)
	}
	defer rows.Close()

	var txs []model.Transaction
	for rows.Next() {
		var t model.Transaction
		var kind string
		if err := rows.Scan(
			&t.ID, &t.OwnerID, &t.Date, &t.Amount, &kind, &t.Category, &t.Description, &t.Source,
			&t.IsRecurring, &t.RecurringRuleID, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan transaction: %w", err)
		}
		t.Kind = model.Kind(kind)
		normalizeTransaction(&t)
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return txs, total, nil
}

func normalizeTransaction(t *model.Transaction) {
	t.Date = t.Date.UTC()
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
}
