package model

type CalculationMetadata struct {
	CalculationID          string `json:"calculation_id"`
	CalculationStartedAt   string `json:"calculation_started_at"`
	CalculationCompletedAt string `json:"calculation_completed_at"`
	CalculationDurationMs  int64  `json:"calculation_duration_ms"`
}

type EligibilityCheck struct {
	IsEligible            bool   `json:"is_eligible"`
	Reason                string `json:"reason"`
	RestructuresAvailable int    `json:"restructures_available"`
	RestructuresUsed      int    `json:"restructures_used"`
	Used                  Usage  `json:"used"`
}

type SimulateResult struct {
	Scenarios        []Scenario          `json:"scenarios"`
	EligibilityCheck EligibilityCheck    `json:"eligibility_check"`
	ScenarioSetID    string              `json:"scenario_set_id,omitempty"`
	Metadata         CalculationMetadata `json:"calculation_metadata"`
}

type TransitionResult struct {
	Success  bool  `json:"success"`
	NewState State `json:"new_state"`
}

type SigningSession struct {
	SessionID  string `json:"session_id"`
	SigningURL string `json:"signing_url"`
	DocumentID string `json:"document_id,omitempty"`
}

type Notifications struct {
	WhatsApp bool `json:"whatsapp"`
	Email    bool `json:"email"`
	Push     bool `json:"push"`
}

type ApplyResult struct {
	Success       bool          `json:"success"`
	NewState      State         `json:"new_state"`
	NewSchedule   []ScheduleRow `json:"new_schedule"`
	Notifications Notifications `json:"notifications"`
}

type HealthResult struct {
	Triggered bool             `json:"triggered"`
	NewState  State            `json:"new_state,omitempty"`
	Reason    string           `json:"reason"`
	Result    HealthResultCode `json:"result"`
}

type AdjustResult struct {
	MPrime   float64 `json:"m_prime"`
	NPrime   int     `json:"n_prime"`
	Feasible bool    `json:"feasible"`
}

// EligibilityStatus answers whether a contract could open a restructuring
// cycle now, without simulating one.
type EligibilityStatus struct {
	ContractID            string   `json:"contract_id"`
	IsEligible            bool     `json:"is_eligible"`
	State                 State    `json:"state"`
	Reasons               []string `json:"reasons"`
	NextEligibilityDate   string   `json:"next_eligibility_date,omitempty"`
	UsageRemaining        Usage    `json:"usage_remaining"`
	RestructuresAvailable int      `json:"restructures_available"`
	RestructuresUsed      int      `json:"restructures_used"`
	HealthScore           *float64 `json:"health_score,omitempty"`
}

type HistoryStatus string

const (
	HistoryActive    HistoryStatus = "active"
	HistoryCompleted HistoryStatus = "completed"
)

// HistoryEntry is an applied restructure as reported to clients.
type HistoryEntry struct {
	Restructure
	Status HistoryStatus `json:"status"`
}

type ValidationResult struct {
	IsValid  bool     `json:"is_valid"`
	Warnings []string `json:"warnings"`
	Errors   []string `json:"errors"`
	Adjusted Scenario `json:"adjusted_scenario"`
}

type HealthResultCode string

const (
	HealthEligible      HealthResultCode = "eligible"
	HealthNotEligible   HealthResultCode = "not_eligible"
	HealthAlreadyActive HealthResultCode = "already_active"
)

type ErrorResponse struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
