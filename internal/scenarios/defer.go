package scenarios

import (
	"fmt"

	"restructure-engine/internal/amortization"
	"restructure-engine/internal/model"
)

// deferGenerator suspends payments for the affected months and capitalizes
// the unpaid interest, then re-amortizes over the original term.
type deferGenerator struct{}

func (deferGenerator) Generate(in *Input) model.Scenario {
	c := &in.Contract
	d := in.MonthsAffected
	r := c.MonthlyRate

	capitalized := amortization.CapitalizeInterest(c.CurrentBalance, r, d)
	equivalent := amortization.Annuity(capitalized, r, c.RemainingTerm)
	adj := amortization.Adjust(amortization.AdjustInput{
		OriginalPayment: equivalent,
		OriginalTerm:    c.RemainingTerm,
		NewRate:         r * 12,
		TargetPayment:   &equivalent,
	})

	return model.Scenario{
		Params: model.ScenarioParams{
			DeferredMonths:      d,
			CapitalizedInterest: round2(capitalized - c.CurrentBalance),
			AdjustedTerm:        adj.NPrime,
			Feasible:            adj.Feasible,
		},
		MPrime:      round2(adj.MPrime),
		NPrime:      adj.NPrime,
		Description: fmt.Sprintf("Skip %d payments; unpaid interest is added to the balance and the payment becomes %.2f for %d months", d, adj.MPrime, adj.NPrime),
	}
}

func (deferGenerator) Periods(s *model.Scenario) []amortization.Period {
	return []amortization.Period{
		{Months: s.Params.DeferredMonths, Payment: 0},
		{Months: s.NPrime, Payment: s.MPrime},
	}
}
