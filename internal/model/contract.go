package model

import (
	"fmt"
	"time"
)

// ContractSnapshot is the read-only view of a financed contract used for one simulation.
type ContractSnapshot struct {
	ContractID       string  `json:"contract_id" yaml:"contract_id"`
	ClientID         string  `json:"client_id,omitempty" yaml:"client_id,omitempty"`
	CurrentBalance   float64 `json:"current_balance" yaml:"current_balance"`
	BasePayment      float64 `json:"base_payment" yaml:"base_payment"`
	RemainingTerm    int     `json:"remaining_term" yaml:"remaining_term"`
	MonthlyRate      float64 `json:"monthly_rate" yaml:"monthly_rate,omitempty"`
	Market           string  `json:"market" yaml:"market"`
	ContractType     string  `json:"contract_type,omitempty" yaml:"contract_type,omitempty"`
	GroupFundBalance float64 `json:"group_fund_balance,omitempty" yaml:"group_fund_balance,omitempty"`
}

// Validate checks the positivity preconditions the math relies on.
func (c *ContractSnapshot) Validate() error {
	switch {
	case c.ContractID == "":
		return fmt.Errorf("contract id is required")
	case c.CurrentBalance <= 0:
		return fmt.Errorf("contract %s: current balance must be positive, got %v", c.ContractID, c.CurrentBalance)
	case c.BasePayment <= 0:
		return fmt.Errorf("contract %s: base payment must be positive, got %v", c.ContractID, c.BasePayment)
	case c.RemainingTerm <= 0:
		return fmt.Errorf("contract %s: remaining term must be positive, got %d", c.ContractID, c.RemainingTerm)
	case c.MonthlyRate < 0:
		return fmt.Errorf("contract %s: monthly rate must not be negative, got %v", c.ContractID, c.MonthlyRate)
	}
	return nil
}

// PolicyCaps bounds what a restructuring may do for one market and contract type.
type PolicyCaps struct {
	Market         string         `json:"market" yaml:"market"`
	ContractType   string         `json:"contract_type,omitempty" yaml:"contract_type,omitempty"`
	DifMax         int            `json:"dif_max" yaml:"dif_max"`
	ExtendMax      int            `json:"extend_max" yaml:"extend_max"`
	StepDownMaxPct float64        `json:"step_down_max_pct" yaml:"step_down_max_pct"`
	IRRMin         float64        `json:"irr_min" yaml:"irr_min"`
	MMin           float64        `json:"m_min" yaml:"m_min"`
	AnnualLimit    int            `json:"annual_limit" yaml:"annual_limit"`
	AvailableTypes []ScenarioType `json:"available_types" yaml:"-"`
	ExpiryWindow   time.Duration  `json:"expiry_window" yaml:"-"`
}

// Offers reports whether the scenario type is available under these caps.
// An empty list means every type is offered.
func (p *PolicyCaps) Offers(t ScenarioType) bool {
	if len(p.AvailableTypes) == 0 {
		return true
	}
	for _, a := range p.AvailableTypes {
		if a == t {
			return true
		}
	}
	return false
}

func (p PolicyCaps) Clone() PolicyCaps {
	c := p
	c.AvailableTypes = append([]ScenarioType(nil), p.AvailableTypes...)
	return c
}
