package scenarios

import (
	"fmt"

	"restructure-engine/internal/amortization"
	"restructure-engine/internal/model"
)

// stepDownGenerator lowers the payment by alpha during the affected window and
// raises it afterwards so the balance still closes on the original term.
type stepDownGenerator struct{}

func (stepDownGenerator) Generate(in *Input) model.Scenario {
	c := &in.Contract
	k := in.MonthsAffected
	r := c.MonthlyRate

	alpha := in.Alpha
	if alpha == 0 {
		alpha = min(DefaultAlpha, in.Caps.StepDownMaxPct)
	}
	reduced := c.BasePayment * (1 - alpha)

	s := model.Scenario{
		Params: model.ScenarioParams{
			Months:         k,
			Alpha:          alpha,
			ReducedPayment: round2(reduced),
		},
	}

	remaining := c.RemainingTerm - k
	if remaining <= 0 {
		s.MPrime = round2(reduced)
		s.NPrime = c.RemainingTerm
		s.Description = fmt.Sprintf("Window of %d months leaves no term to recover the reduction", k)
		return s
	}

	balance := amortization.Balance(c.CurrentBalance, reduced, r, k)
	catchUp := amortization.Annuity(balance, r, remaining)
	adj := amortization.Adjust(amortization.AdjustInput{
		OriginalPayment: catchUp,
		OriginalTerm:    remaining,
		NewRate:         r * 12,
		TargetPayment:   &catchUp,
	})

	s.Params.AdjustedTerm = adj.NPrime
	s.Params.Feasible = adj.Feasible
	s.MPrime = round2(adj.MPrime)
	s.NPrime = k + adj.NPrime
	s.Description = fmt.Sprintf("Pay %.2f for %d months (%.0f%% less), then %.2f for %d months", reduced, k, alpha*100, adj.MPrime, adj.NPrime)
	return s
}

func (stepDownGenerator) Periods(s *model.Scenario) []amortization.Period {
	return []amortization.Period{
		{Months: s.Params.Months, Payment: s.Params.ReducedPayment},
		{Months: s.NPrime - s.Params.Months, Payment: s.MPrime},
	}
}
