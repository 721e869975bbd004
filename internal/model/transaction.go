package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const SourceRecurring = "recurring"

// Transaction is a materialized ledger entry.
type Transaction struct {
	ID              string          `json:"id"`
	OwnerID         string          `json:"owner_id"`
	Date            time.Time       `json:"date"`
	Amount          decimal.Decimal `json:"amount"`
	Kind            Kind            `json:"kind"`
	Category        string          `json:"category"`
	Description     string          `json:"description"`
	Source          string          `json:"source"`
	IsRecurring     bool            `json:"is_recurring"`
	RecurringRuleID *string         `json:"recurring_rule_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// TransactionDraft is what a writer needs to create a Transaction.
type TransactionDraft struct {
	Date            time.Time
	Amount          decimal.Decimal
	Kind            Kind
	Category        string
	Description     string
	Source          string
	IsRecurring     bool
	RecurringRuleID *string
}

// TransactionMatch selects transactions generated by a rule. Rows stamped with
// RuleID match on it; unstamped rows fall back to the field heuristic.
type TransactionMatch struct {
	Source   string
	Kind     Kind
	Category string
	Amount   decimal.Decimal
	RuleID   string
}
