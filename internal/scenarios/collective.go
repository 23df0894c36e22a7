package scenarios

import (
	"fmt"
	"math"

	"restructure-engine/internal/amortization"
	"restructure-engine/internal/model"
)

// collectiveGenerator draws on the group fund to cover the affected months.
// A fully funded gap leaves payment and term untouched; a partial draw pays
// what the fund can and catches up afterwards like a step-down.
type collectiveGenerator struct{}

func (collectiveGenerator) Generate(in *Input) model.Scenario {
	c := &in.Contract
	k := in.MonthsAffected
	r := c.MonthlyRate

	gap := c.BasePayment * float64(k)
	draw := math.Max(0, math.Min(c.GroupFundBalance, gap))

	s := model.Scenario{
		Params: model.ScenarioParams{
			Months:         k,
			FundDraw:       round2(draw),
			CoverageRatio:  draw / gap,
			ReducedPayment: round2(draw / float64(k)),
		},
	}

	if draw >= gap {
		s.Params.ReducedPayment = c.BasePayment
		s.Params.Feasible = true
		s.MPrime = c.BasePayment
		s.NPrime = c.RemainingTerm
		s.Description = fmt.Sprintf("The group fund covers %d payments (%.2f); payment and term stay unchanged", k, draw)
		return s
	}

	remaining := c.RemainingTerm - k
	if remaining <= 0 {
		s.MPrime = s.Params.ReducedPayment
		s.NPrime = c.RemainingTerm
		s.Description = fmt.Sprintf("The group fund covers %.0f%% of the gap and no term is left to recover the rest", s.Params.CoverageRatio*100)
		return s
	}

	covered := draw / float64(k)
	balance := amortization.Balance(c.CurrentBalance, covered, r, k)
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
	s.Description = fmt.Sprintf("The group fund covers %.0f%% of %d payments, then the payment becomes %.2f", s.Params.CoverageRatio*100, k, adj.MPrime)
	return s
}

func (collectiveGenerator) Periods(s *model.Scenario) []amortization.Period {
	return []amortization.Period{
		{Months: s.Params.Months, Payment: s.Params.ReducedPayment},
		{Months: s.NPrime - s.Params.Months, Payment: s.MPrime},
	}
}
