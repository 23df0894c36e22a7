package policy

import (
	"strings"
	"time"

	"restructure-engine/internal/model"
)

const (
	MarketAguascalientes = "aguascalientes"
	MarketEdomex         = "edomex"

	ContractIndividual = "individual"
	ContractCollective = "colectivo"

	DefaultExpiryWindow = 72 * time.Hour
)

// Minimum annual IRR per market. Unknown markets fall back to Aguascalientes.
var irrMinByMarket = map[string]float64{
	MarketAguascalientes: 0.255,
	MarketEdomex:         0.299,
}

// IRRMin returns the minimum annual IRR for a market.
func IRRMin(market string) float64 {
	if v, ok := irrMinByMarket[strings.ToLower(market)]; ok {
		return v
	}
	return irrMinByMarket[MarketAguascalientes]
}

// MonthlyRate is the contract rate implied by a market's minimum IRR.
func MonthlyRate(market string) float64 {
	return IRRMin(market) / 12
}

// DefaultCaps returns the built-in caps used when no file or registry overrides them.
func DefaultCaps(market, contractType string) model.PolicyCaps {
	caps := model.PolicyCaps{
		Market:         strings.ToLower(market),
		ContractType:   strings.ToLower(contractType),
		DifMax:         6,
		ExtendMax:      12,
		StepDownMaxPct: 0.5,
		IRRMin:         IRRMin(market),
		MMin:           3000,
		AnnualLimit:    3,
		AvailableTypes: []model.ScenarioType{model.Defer, model.StepDown, model.Recalendar},
		ExpiryWindow:   DefaultExpiryWindow,
	}
	if caps.ContractType == ContractCollective {
		caps.AvailableTypes = model.ScenarioTypes()
	}
	return caps
}
