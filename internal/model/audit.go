package model

import "time"

const EntityRecurringRule = "recurring_rule"

// Audit actions recorded by the recurring rule service and engine.
const (
	ActionRuleCreated             = "RECURRING_TRANSACTION_CREATED"
	ActionRuleViewed              = "RECURRING_TRANSACTION_VIEWED"
	ActionRuleUpdated             = "RECURRING_TRANSACTION_UPDATED"
	ActionRuleDeleted             = "RECURRING_TRANSACTION_DELETED"
	ActionRuleListViewed          = "RECURRING_TRANSACTION_LIST_VIEWED"
	ActionRuleExecuted            = "RECURRING_TRANSACTION_EXECUTED"
	ActionRuleExecutionFailed     = "RECURRING_TRANSACTION_EXECUTION_FAILED"
	ActionRuleManualExecution     = "RECURRING_TRANSACTION_MANUAL_EXECUTION"
	ActionRuleGeneratedListViewed = "RECURRING_TRANSACTION_GENERATED_LIST_VIEWED"
)

type AuditEvent struct {
	ID        string         `json:"id"`
	Action    string         `json:"action"`
	OwnerID   string         `json:"owner_id"`
	Entity    string         `json:"entity"`
	EntityID  string         `json:"entity_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	IPAddress string         `json:"ip_address,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// RequestMeta carries client details into audit events.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}
