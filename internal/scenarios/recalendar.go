package scenarios

import (
	"fmt"

	"restructure-engine/internal/amortization"
	"restructure-engine/internal/model"
)

// recalendarGenerator moves the affected installments past the end of the
// contract: payments pause, then resume at the original amount for as long
// as it takes to close the capitalized balance.
type recalendarGenerator struct{}

func (recalendarGenerator) Generate(in *Input) model.Scenario {
	c := &in.Contract
	d := in.MonthsAffected
	r := c.MonthlyRate

	capitalized := amortization.CapitalizeInterest(c.CurrentBalance, r, d)
	target := c.BasePayment
	adj := amortization.Adjust(amortization.AdjustInput{
		OriginalPayment: amortization.Annuity(capitalized, r, c.RemainingTerm),
		OriginalTerm:    c.RemainingTerm,
		NewRate:         r * 12,
		TargetPayment:   &target,
	})

	nPrime := d + adj.NPrime
	s := model.Scenario{
		Params: model.ScenarioParams{
			DeferredMonths:      d,
			CapitalizedInterest: round2(capitalized - c.CurrentBalance),
			AdjustedTerm:        adj.NPrime,
			DeltaTerm:           nPrime - c.RemainingTerm,
			Feasible:            adj.Feasible,
		},
		MPrime: round2(adj.MPrime),
		NPrime: nPrime,
	}

	// Payment that keeps the extension within the cap.
	if allowed := c.RemainingTerm + in.Caps.ExtendMax - d; allowed > 0 {
		s.Params.RequiredPayment = round2(amortization.Annuity(capitalized, r, allowed))
	}

	if !adj.Feasible {
		rest := amortization.Balance(capitalized, target, r, adj.NPrime)
		if rest > 0 {
			b := round2(rest)
			s.Balloon = &b
		}
		s.Description = fmt.Sprintf("Keeping the %.2f payment cannot close the balance within %d months", target, adj.NPrime)
		return s
	}

	s.Description = fmt.Sprintf("Pause %d payments and extend the term by %d months at the current payment of %.2f", d, s.Params.DeltaTerm, target)
	return s
}

func (recalendarGenerator) Periods(s *model.Scenario) []amortization.Period {
	return []amortization.Period{
		{Months: s.Params.DeferredMonths, Payment: 0},
		{Months: s.Params.AdjustedTerm, Payment: s.MPrime},
	}
}
