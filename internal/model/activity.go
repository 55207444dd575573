package model

import "time"

// Action is the kind of curation action recorded in the activity ledger.
type Action string

const (
	ActionDiscover Action = "discover"
	ActionEnrich   Action = "enrich"
	ActionVerify   Action = "verify"
	ActionImage    Action = "image"
	ActionError    Action = "error"
)

// Valid reports whether a is a known ledger action.
func (a Action) Valid() bool {
	switch a {
	case ActionDiscover, ActionEnrich, ActionVerify, ActionImage, ActionError:
		return true
	}
	return false
}

// Well-known ledger sources that are not external adapters.
const (
	SourceQualityCleanup    = "quality_cleanup"
	SourceCrossVerification = "cross_verification"
)

// ActivityEntry is an immutable audit record of one curation action.
type ActivityEntry struct {
	ID         int64          `json:"id"`
	CreatedAt  time.Time      `json:"created_at"`
	Action     Action         `json:"action"`
	Kind       Kind           `json:"kind"`
	EntityID   int64          `json:"entity_id"`
	EntityName string         `json:"entity_name"`
	Source     string         `json:"source"`
	Details    map[string]any `json:"details,omitempty"`
	AIAssisted bool           `json:"ai_assisted"`
	Success    bool           `json:"success"`
	Error      string         `json:"error,omitempty"`
	DurationMS int64          `json:"duration_ms"`
	BatchID    string         `json:"batch_id,omitempty"`
}

// ActivityFilter selects ledger entries.
type ActivityFilter struct {
	Since    time.Time `json:"since,omitempty"`
	Action   Action    `json:"action,omitempty"`
	Kind     Kind      `json:"kind,omitempty"`
	EntityID int64     `json:"entity_id,omitempty"`
	BatchID  string    `json:"batch_id,omitempty"`
	Limit    int       `json:"limit,omitempty"`
}

// ActivityStats aggregates ledger entries over a time window.
type ActivityStats struct {
	Hours        int            `json:"hours"`
	Total        int            `json:"total"`
	ByAction     map[string]int `json:"by_action"`
	ByKind       map[string]int `json:"by_kind"`
	BySource     map[string]int `json:"by_source"`
	SuccessRate  float64        `json:"success_rate"`
	AIAssisted   int            `json:"ai_assisted"`
	TotalDurMS   int64          `json:"total_duration_ms"`
	FailureCount int            `json:"failure_count"`
}
