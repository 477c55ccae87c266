package models

import "time"

// Override is a user's manual yes/no decision for one show.
// Keyed by (UserID, Platform, ShowName); last write wins.
type Override struct {
	UserID      string    `json:"user_id"`
	ShowName    string    `json:"show_name"`
	Platform    Platform  `json:"platform"`
	ShouldApply bool      `json:"should_apply"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ShowDecision is derived per request and never persisted
type ShowDecision struct {
	Show                Show  `json:"show"`
	MatchesPreference   bool  `json:"matches_preference"`
	HasOverride         bool  `json:"has_override"`
	OverrideShouldApply *bool `json:"override_should_apply,omitempty"`
	FinalDecision       bool  `json:"final_decision"`
}

// LotteryResult records one application attempt. It is never mutated after creation.
type LotteryResult struct {
	Success      bool      `json:"success"`
	ShowName     string    `json:"show_name"`
	Platform     Platform  `json:"platform"`
	Error        *string   `json:"error,omitempty"`
	UserID       string    `json:"user_id,omitempty"`
	FieldsFilled int       `json:"fields_filled"`
	AttemptedAt  time.Time `json:"attempted_at"`
}

// BatchSummary is the user-visible summary of an apply run
type BatchSummary struct {
	BatchID     string              `json:"batch_id"`
	StartedAt   time.Time           `json:"started_at"`
	FinishedAt  time.Time           `json:"finished_at"`
	Users       int                 `json:"users"`
	Successful  int                 `json:"successful"`
	Failed      int                 `json:"failed"`
	Diagnostics []FailureDiagnostic `json:"diagnostics,omitempty"`
}

// FailureDiagnostic is a short per-failure explanation
type FailureDiagnostic struct {
	UserID   string   `json:"user_id"`
	ShowName string   `json:"show_name"`
	Platform Platform `json:"platform"`
	Message  string   `json:"message"`
}
