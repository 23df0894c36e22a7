package model

import (
	"fmt"
	"strings"
)

// ScenarioType is the closed set of restructuring families.
type ScenarioType uint8

const (
	Defer ScenarioType = iota
	StepDown
	Recalendar
	Collective

	// NumScenarioTypes sizes every per-type table. Tables keyed by ScenarioType
	// assert their length against it, so a new type fails to compile until
	// each table handles it.
	NumScenarioTypes
)

var scenarioTypeNames = [...]string{
	Defer:      "DEFER",
	StepDown:   "STEPDOWN",
	Recalendar: "RECALENDAR",
	Collective: "COLLECTIVE",
}

var _ = [1]struct{}{}[len(scenarioTypeNames)-int(NumScenarioTypes)]

// ScenarioTypes lists every type in canonical generation order.
func ScenarioTypes() []ScenarioType {
	types := make([]ScenarioType, 0, NumScenarioTypes)
	for t := ScenarioType(0); t < NumScenarioTypes; t++ {
		types = append(types, t)
	}
	return types
}

func (t ScenarioType) Valid() bool {
	return t < NumScenarioTypes
}

func (t ScenarioType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("ScenarioType(%d)", uint8(t))
	}
	return scenarioTypeNames[t]
}

// ParseScenarioType accepts the wire names case-insensitively.
func ParseScenarioType(s string) (ScenarioType, error) {
	for i, name := range scenarioTypeNames {
		if strings.EqualFold(name, s) {
			return ScenarioType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown scenario type %q", s)
}

func (t ScenarioType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid scenario type %d", uint8(t))
	}
	return []byte(t.String()), nil
}

func (t *ScenarioType) UnmarshalText(b []byte) error {
	parsed, err := ParseScenarioType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ScenarioParams carries the type-specific inputs that produced a scenario.
type ScenarioParams struct {
	DeferredMonths      int     `json:"deferred_months,omitempty"`
	CapitalizedInterest float64 `json:"capitalized_interest,omitempty"`
	Months              int     `json:"months,omitempty"`
	Alpha               float64 `json:"alpha,omitempty"`
	ReducedPayment      float64 `json:"reduced_payment,omitempty"`
	DeltaTerm           int     `json:"delta_term,omitempty"`
	FundDraw            float64 `json:"fund_draw,omitempty"`
	CoverageRatio       float64 `json:"coverage_ratio,omitempty"`
	AdjustedTerm        int     `json:"adjusted_term,omitempty"`
	RequiredPayment     float64 `json:"required_payment,omitempty"`
	Feasible            bool    `json:"feasible"`
}

type IRRResult struct {
	IRR        float64 `json:"irr"`
	IsValid    bool    `json:"is_valid"`
	Iterations int     `json:"iterations"`
}

type Impact struct {
	PaymentChange        float64 `json:"payment_change"`
	PaymentChangePercent float64 `json:"payment_change_percent"`
	TermChange           int     `json:"term_change"`
	TotalCostChange      float64 `json:"total_cost_change"`
}

// Scenario is one restructuring candidate. Generated fresh per simulation and
// never mutated once validated.
type Scenario struct {
	ID          string         `json:"id"`
	Type        ScenarioType   `json:"type"`
	Params      ScenarioParams `json:"params"`
	MPrime      float64        `json:"m_prime"`
	NPrime      int            `json:"n_prime"`
	Balloon     *float64       `json:"balloon,omitempty"`
	IRR         IRRResult      `json:"irr"`
	AnnualIRR   float64        `json:"annual_irr"`
	TIROK       bool           `json:"tir_ok"`
	Warnings    []Warning      `json:"warnings"`
	Eligible    bool           `json:"eligible"`
	Impact      Impact         `json:"impact"`
	Description string         `json:"description,omitempty"`
}

// HasWarning reports whether a warning with the given code is attached.
func (s *Scenario) HasWarning(code ReasonCode) bool {
	for _, w := range s.Warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (s Scenario) Clone() Scenario {
	c := s
	if s.Balloon != nil {
		b := *s.Balloon
		c.Balloon = &b
	}
	c.Warnings = append([]Warning(nil), s.Warnings...)
	return c
}
