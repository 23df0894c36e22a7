package model

import "time"

type SimulateRequest struct {
	ContractID     string         `json:"contract_id"`
	MonthsAffected int            `json:"months_affected"`
	TriggerReason  string         `json:"trigger_reason,omitempty"`
	Types          []ScenarioType `json:"types,omitempty"`
	Alpha          float64        `json:"alpha,omitempty"`
	Actor          Actor          `json:"-"`
}

// SelectRequest picks a scenario from the current set. A non-empty
// ScenarioSetID must match the plan's current set.
type SelectRequest struct {
	ContractID    string `json:"contract_id"`
	ScenarioID    string `json:"scenario_id"`
	ScenarioSetID string `json:"scenario_set_id,omitempty"`
	Reason        string `json:"reason,omitempty"`
	Actor         Actor  `json:"-"`
}

type ApproveRequest struct {
	ContractID string `json:"contract_id"`
	ApprovedBy string `json:"approved_by"`
	Notes      string `json:"notes,omitempty"`
	Actor      Actor  `json:"-"`
}

type DenyRequest struct {
	ContractID string `json:"contract_id"`
	DeniedBy   string `json:"denied_by"`
	Reason     string `json:"reason"`
	Actor      Actor  `json:"-"`
}

// TransitionRequest drives the system transitions that carry no payload:
// expiry, cooldown and the resets back to IDLE.
type TransitionRequest struct {
	ContractID string `json:"contract_id"`
	Action     Action `json:"action"`
	Reason     string `json:"reason,omitempty"`
	Actor      Actor  `json:"-"`
}

type SignRequest struct {
	ContractID        string `json:"contract_id"`
	ExternalSessionID string `json:"external_session_id"`
	SignedDocumentRef string `json:"signed_document_ref"`
	Actor             Actor  `json:"-"`
}

type ApplyRequest struct {
	ContractID    string `json:"contract_id"`
	EffectiveDate string `json:"effective_date,omitempty"`
	Actor         Actor  `json:"-"`
}

// ValidateRequest re-checks a scenario before selection. A scenario from the
// plan's current set is looked up by ID; any other is checked as submitted.
type ValidateRequest struct {
	ContractID string   `json:"contract_id"`
	Scenario   Scenario `json:"scenario"`
	Actor      Actor    `json:"-"`
}

type AdjustRequest struct {
	OriginalPayment float64  `json:"original_payment"`
	OriginalTerm    int      `json:"original_term"`
	NewRate         float64  `json:"new_rate"`
	TargetPayment   *float64 `json:"target_payment,omitempty"`
}

type HealthEventType string

const (
	HealthLowUsage      HealthEventType = "low_gnv"
	HealthDowntime      HealthEventType = "downtime"
	HealthOverduePred   HealthEventType = "overdue_pred"
	HealthManualRequest HealthEventType = "manual_request"
	HealthScoreDrop     HealthEventType = "health_score_drop"
)

type HealthData struct {
	Delta       float64  `json:"delta,omitempty"`
	Window      string   `json:"window,omitempty"`
	Hours       float64  `json:"hours,omitempty"`
	Prob        float64  `json:"prob,omitempty"`
	HealthScore *float64 `json:"health_score,omitempty"`
	Threshold   float64  `json:"threshold,omitempty"`
}

// HealthEvent is an external risk signal that may open eligibility.
type HealthEvent struct {
	Type       HealthEventType `json:"type"`
	ContractID string          `json:"contract_id"`
	ClientID   string          `json:"client_id,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Data       HealthData      `json:"data"`
}
