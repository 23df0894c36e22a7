package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"restructure-engine/internal/health"
	"restructure-engine/internal/model"
	"restructure-engine/internal/policy"
)

// PolicyFile is the YAML document holding per-market caps and health rules.
// Contracts, when present, seed the in-memory contract source.
//
//	markets:
//	  - market: edomex
//	    contract_type: individual
//	    m_min: 3500
//	    available_types: [DEFER, STEPDOWN]
//	    expiry_hours: 48
//	health_rules:
//	  - event: downtime
//	    expression: "input.hours >= 24.0"
//	    reason: down a full day
//	contracts:
//	  - contract_id: C-100
//	    current_balance: 320000
//	    base_payment: 10500
//	    remaining_term: 36
//	    market: aguascalientes
type PolicyFile struct {
	Markets     []capsEntry              `yaml:"markets"`
	HealthRules []health.Rule            `yaml:"health_rules"`
	Contracts   []model.ContractSnapshot `yaml:"contracts"`
}

type capsEntry struct {
	model.PolicyCaps `yaml:",inline"`
	AvailableTypes   []string `yaml:"available_types"`
	ExpiryHours      float64  `yaml:"expiry_hours"`
}

// LoadPolicyFile reads and checks a policy file. Fields an entry leaves out
// keep the built-in defaults for its market.
func LoadPolicyFile(path string) (*PolicyFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	var f PolicyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse policy file %s: %w", path, err)
	}
	for i := range f.Contracts {
		if err := f.Contracts[i].Validate(); err != nil {
			return nil, fmt.Errorf("contracts[%d]: %w", i, err)
		}
	}
	return &f, nil
}

// Caps resolves every market entry against the defaults.
func (f *PolicyFile) Caps() ([]model.PolicyCaps, error) {
	out := make([]model.PolicyCaps, 0, len(f.Markets))
	for i, e := range f.Markets {
		if e.Market == "" {
			return nil, fmt.Errorf("markets[%d]: market is required", i)
		}
		c := policy.DefaultCaps(e.Market, e.ContractType)
		if e.DifMax > 0 {
			c.DifMax = e.DifMax
		}
		if e.ExtendMax > 0 {
			c.ExtendMax = e.ExtendMax
		}
		if e.StepDownMaxPct > 0 {
			if e.StepDownMaxPct > 1 {
				return nil, fmt.Errorf("markets[%d]: step_down_max_pct %v outside 0..1", i, e.StepDownMaxPct)
			}
			c.StepDownMaxPct = e.StepDownMaxPct
		}
		if e.IRRMin > 0 {
			c.IRRMin = e.IRRMin
		}
		if e.MMin > 0 {
			c.MMin = e.MMin
		}
		if e.AnnualLimit > 0 {
			c.AnnualLimit = e.AnnualLimit
		}
		if e.ExpiryHours > 0 {
			c.ExpiryWindow = time.Duration(e.ExpiryHours * float64(time.Hour))
		}
		if len(e.AvailableTypes) > 0 {
			c.AvailableTypes = c.AvailableTypes[:0]
			for _, name := range e.AvailableTypes {
				t, err := model.ParseScenarioType(name)
				if err != nil {
					return nil, fmt.Errorf("markets[%d]: %w", i, err)
				}
				c.AvailableTypes = append(c.AvailableTypes, t)
			}
		}
		out = append(out, c)
	}
	return out, nil
}
