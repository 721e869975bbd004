package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindIncome  Kind = "income"
	KindExpense Kind = "expense"
)

func (k Kind) Valid() bool {
	return k == KindIncome || k == KindExpense
}

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly:
		return true
	}
	return false
}

// RecurringRule is a user-declared schedule that materializes transactions.
// NextDueAt alone decides whether the rule is due.
type RecurringRule struct {
	ID             string          `json:"id"`
	OwnerID        string          `json:"owner_id"`
	Amount         decimal.Decimal `json:"amount"`
	Kind           Kind            `json:"kind"`
	Category       string          `json:"category"`
	Description    string          `json:"description"`
	Frequency      Frequency       `json:"frequency"`
	NextDueAt      time.Time       `json:"next_due_at"`
	Active         bool            `json:"active"`
	ParentRuleID   *string         `json:"parent_rule_id,omitempty"`
	LastExecutedAt *time.Time      `json:"last_executed_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// RuleSpec holds the caller-supplied fields of a new rule.
type RuleSpec struct {
	Amount       decimal.Decimal `json:"amount"`
	Kind         Kind            `json:"kind"`
	Category     string          `json:"category"`
	Description  string          `json:"description"`
	Frequency    Frequency       `json:"frequency"`
	NextDueAt    time.Time       `json:"next_due_at"`
	ParentRuleID *string         `json:"parent_rule_id,omitempty"`
}

// RulePatch is a sparse update; nil fields are left untouched.
type RulePatch struct {
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	Kind        *Kind            `json:"kind,omitempty"`
	Category    *string          `json:"category,omitempty"`
	Description *string          `json:"description,omitempty"`
	Frequency   *Frequency       `json:"frequency,omitempty"`
	NextDueAt   *time.Time       `json:"next_due_at,omitempty"`
	Active      *bool            `json:"active,omitempty"`
}

// Empty reports whether the patch sets no field.
func (p RulePatch) Empty() bool {
	return p.Amount == nil && p.Kind == nil && p.Category == nil && p.Description == nil &&
		p.Frequency == nil && p.NextDueAt == nil && p.Active == nil
}

// Fields lists the names of the fields the patch sets, for audit metadata.
func (p RulePatch) Fields() []string {
	var fields []string
	if p.Amount != nil {
		fields = append(fields, "amount")
	}
	if p.Kind != nil {
		fields = append(fields, "kind")
	}
	if p.Category != nil {
		fields = append(fields, "category")
	}
	if p.Description != nil {
		fields = append(fields, "description")
	}
	if p.Frequency != nil {
		fields = append(fields, "frequency")
	}
	if p.NextDueAt != nil {
		fields = append(fields, "next_due_at")
	}
	if p.Active != nil {
		fields = append(fields, "active")
	}
	return fields
}

// RuleFilter narrows List. The zero value includes inactive rules; callers
// wanting the default listing start from DefaultRuleFilter.
type RuleFilter struct {
	Frequency  *Frequency
	Category   *string
	Kind       *Kind
	ActiveOnly bool
}

// DefaultRuleFilter lists active rules only.
func DefaultRuleFilter() RuleFilter {
	return RuleFilter{ActiveOnly: true}
}
