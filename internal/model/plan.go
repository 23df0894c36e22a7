package model

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"
)

// Usage counts applied restructures per scenario type within one calendar
// year. A zero Year means the counters have not been dated yet.
type Usage struct {
	Defer      int `json:"defer"`
	StepDown   int `json:"stepdown"`
	Recalendar int `json:"recalendar"`
	Collective int `json:"collective"`
	Year       int `json:"year,omitempty"`
}

func (u *Usage) counter(t ScenarioType) *int {
	switch t {
	case Defer:
		return &u.Defer
	case StepDown:
		return &u.StepDown
	case Recalendar:
		return &u.Recalendar
	case Collective:
		return &u.Collective
	}
	panic(fmt.Sprintf("usage: unhandled scenario type %v", t))
}

func (u Usage) Get(t ScenarioType) int { return *u.counter(t) }

func (u *Usage) Inc(t ScenarioType) { *u.counter(t)++ }

func (u *Usage) Set(t ScenarioType, n int) { *u.counter(t) = n }

func (u Usage) Total() int {
	return u.Defer + u.StepDown + u.Recalendar + u.Collective
}

// In returns the counters that still apply in year. Counters dated to an
// earlier year are spent.
func (u Usage) In(year int) Usage {
	if u.Year != 0 && u.Year < year {
		return Usage{Year: year}
	}
	return u
}

// Restructure is one applied restructuring, kept across cycles.
type Restructure struct {
	ScenarioID    string       `json:"scenario_id"`
	Type          ScenarioType `json:"type"`
	AppliedAt     time.Time    `json:"applied_at"`
	EffectiveDate string       `json:"effective_date"`
	Months        int          `json:"months"`
	NewTerm       int          `json:"new_term"`
	PaymentChange float64      `json:"payment_change"`
}

// PatchOp is one RFC 6902 operation.
type PatchOp struct {
	Op    string      `json:"op"`
	Path  string      `json:"path"`
	Value interface{} `json:"value,omitempty"`
}

// AuditEntry records one lifecycle event. Changes is the RFC 6902 patch
// from the plan before the event to the plan after it, audit excluded.
type AuditEntry struct {
	ID      string    `json:"id"`
	At      time.Time `json:"at"`
	Actor   string    `json:"actor"`
	Role    Role      `json:"role"`
	Action  Action    `json:"action"`
	From    State     `json:"from"`
	To      State     `json:"to"`
	Reason  string    `json:"reason,omitempty"`
	Changes []PatchOp `json:"changes,omitempty"`
}

type Audit struct {
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
	StateChangedAt  time.Time    `json:"state_changed_at"`
	TriggeredBy     string       `json:"triggered_by,omitempty"`
	Reason          string       `json:"reason,omitempty"`
	HealthAtTrigger *float64     `json:"health_at_trigger,omitempty"`
	ApprovedBy      string       `json:"approved_by,omitempty"`
	ApprovalNotes   string       `json:"approval_notes,omitempty"`
	RejectedBy      string       `json:"rejected_by,omitempty"`
	RejectedReason  string       `json:"rejected_reason,omitempty"`
	Entries         []AuditEntry `json:"entries"`
}

// ScheduleRow is one month of an applied amortization table.
type ScheduleRow struct {
	Month     int     `json:"month"`
	DueDate   string  `json:"due_date,omitempty"`
	Payment   float64 `json:"payment"`
	Principal float64 `json:"principal"`
	Interest  float64 `json:"interest"`
	Balance   float64 `json:"balance"`
}

// Plan is the single protection aggregate kept per contract.
type Plan struct {
	ContractID        string            `json:"contract_id"`
	ClientID          string            `json:"client_id,omitempty"`
	State             State             `json:"state"`
	Snapshot          *ContractSnapshot `json:"snapshot,omitempty"`
	Scenarios         []Scenario        `json:"scenarios"`
	ScenarioSetID     string            `json:"scenario_set_id,omitempty"`
	Selected          *Scenario         `json:"selected,omitempty"`
	SelectionReason   string            `json:"selection_reason,omitempty"`
	Policy            PolicyCaps        `json:"policy"`
	Used              Usage             `json:"used"`
	History           []Restructure     `json:"history,omitempty"`
	Audit             Audit             `json:"audit"`
	EligibilityReason string            `json:"eligibility_reason,omitempty"`
	SigningSessionID  string            `json:"signing_session_id,omitempty"`
	SigningURL        string            `json:"signing_url,omitempty"`
	SignedDocumentRef string            `json:"signed_document_ref,omitempty"`
	EffectiveDate     string            `json:"effective_date,omitempty"`
	Schedule          []ScheduleRow     `json:"schedule,omitempty"`
	Notifications     *Notifications    `json:"notifications,omitempty"`
	Version           int64             `json:"version"`
}

// NewPlan builds an IDLE plan for a contract seen for the first time.
func NewPlan(contractID, clientID string, caps PolicyCaps, now time.Time) *Plan {
	return &Plan{
		ContractID: contractID,
		ClientID:   clientID,
		State:      StateIdle,
		Scenarios:  []Scenario{},
		Policy:     caps.Clone(),
		Audit: Audit{
			CreatedAt:      now,
			UpdatedAt:      now,
			StateChangedAt: now,
			Entries:        []AuditEntry{},
		},
	}
}

// FindScenario returns the scenario with the given id from the current set.
func (p *Plan) FindScenario(id string) (*Scenario, bool) {
	for i := range p.Scenarios {
		if p.Scenarios[i].ID == id {
			return &p.Scenarios[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy so callers never share slices with the store.
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		panic(fmt.Sprintf("plan %s: clone marshal: %v", p.ContractID, err))
	}
	var c Plan
	if err := json.Unmarshal(data, &c); err != nil {
		panic(fmt.Sprintf("plan %s: clone unmarshal: %v", p.ContractID, err))
	}
	return &c
}
