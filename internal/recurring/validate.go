package recurring

import (
	"strings"

	"pennywise/internal/apperr"
	"pennywise/internal/model"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
)

func validateOwner(ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return apperr.Validation("owner id is required")
	}
	return nil
}

func validateSpec(spec model.RuleSpec) error {
	if !spec.Amount.IsPositive() {
		return apperr.Validation("amount must be greater than 0")
	}
	if !spec.Kind.Valid() {
		return apperr.Validation("kind must be income or expense, got %q", spec.Kind)
	}
	if strings.TrimSpace(spec.Category) == "" {
		return apperr.Validation("category is required")
	}
	if !spec.Frequency.Valid() {
		return apperr.Validation("frequency must be daily, weekly, monthly or yearly, got %q", spec.Frequency)
	}
	if spec.NextDueAt.IsZero() {
		return apperr.Validation("next_due_at is required")
	}
	if spec.ParentRuleID != nil && strings.TrimSpace(*spec.ParentRuleID) == "" {
		return apperr.Validation("parent_rule_id must not be blank")
	}
	return nil
}

func validatePatch(patch model.RulePatch) error {
	if patch.Empty() {
		return apperr.Validation("no fields to update")
	}
	if patch.Amount != nil && !patch.Amount.IsPositive() {
		return apperr.Validation("amount must be greater than 0")
	}
	if patch.Kind != nil && !patch.Kind.Valid() {
		return apperr.Validation("kind must be income or expense, got %q", *patch.Kind)
	}
	if patch.Category != nil && strings.TrimSpace(*patch.Category) == "" {
		return apperr.Validation("category must not be blank")
	}
	if patch.Frequency != nil && !patch.Frequency.Valid() {
		return apperr.Validation("frequency must be daily, weekly, monthly or yearly, got %q", *patch.Frequency)
	}
	if patch.NextDueAt != nil && patch.NextDueAt.IsZero() {
		return apperr.Validation("next_due_at must not be zero")
	}
	return nil
}

func validatePage(page, limit int) error {
	if page < 1 {
		return apperr.Validation("page must be >= 1")
	}
	if limit < 1 || limit > MaxLimit {
		return apperr.Validation("limit must be between 1 and %d", MaxLimit)
	}
	return nil
}
