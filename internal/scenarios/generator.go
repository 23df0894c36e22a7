// Package scenarios builds the restructuring candidates offered for a contract.
package scenarios

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"restructure-engine/internal/amortization"
	"restructure-engine/internal/irr"
	"restructure-engine/internal/model"
	"restructure-engine/internal/policy"
)

// DefaultAlpha is the STEPDOWN payment reduction used when the request leaves it unset.
const DefaultAlpha = 0.4

var (
	ErrMonthsAffected = errors.New("months affected must be positive")
	ErrWindowTooLong  = errors.New("months affected exceeds the remaining term")
	ErrTermRange      = errors.New("scenario term outside the contract's range")
	ErrAlphaRange     = errors.New("alpha must be between 0 and 1")
)

// Input is everything one simulation needs. The snapshot and caps are
// borrowed read-only.
type Input struct {
	Contract       model.ContractSnapshot
	Caps           model.PolicyCaps
	MonthsAffected int
	Types          []model.ScenarioType
	Alpha          float64
}

// Generator produces one scenario family.
type Generator interface {
	// Generate fills type, params, payment and term. IRR and policy
	// annotations are added by the caller.
	Generate(in *Input) model.Scenario
	// Periods lays out the payment runs the scenario implies, for schedule building.
	Periods(s *model.Scenario) []amortization.Period
}

var generators = [...]Generator{
	model.Defer:      deferGenerator{},
	model.StepDown:   stepDownGenerator{},
	model.Recalendar: recalendarGenerator{},
	model.Collective: collectiveGenerator{},
}

var _ = [1]struct{}{}[len(generators)-int(model.NumScenarioTypes)]

// Get returns the generator for a scenario type.
func Get(t model.ScenarioType) (Generator, bool) {
	if !t.Valid() {
		return nil, false
	}
	return generators[t], true
}

// Generate produces one validated scenario per requested type the caps offer,
// in canonical type order. An empty Types list requests every type.
func Generate(in *Input) ([]model.Scenario, error) {
	if err := in.Contract.Validate(); err != nil {
		return nil, err
	}
	if in.MonthsAffected <= 0 {
		return nil, fmt.Errorf("%w, got %d", ErrMonthsAffected, in.MonthsAffected)
	}
	if in.MonthsAffected > in.Contract.RemainingTerm {
		return nil, fmt.Errorf("%w: %d > %d", ErrWindowTooLong, in.MonthsAffected, in.Contract.RemainingTerm)
	}
	if in.Alpha < 0 || in.Alpha >= 1 || math.IsNaN(in.Alpha) {
		return nil, fmt.Errorf("%w, got %v", ErrAlphaRange, in.Alpha)
	}

	requested := make(map[model.ScenarioType]bool, len(in.Types))
	for _, t := range in.Types {
		if !t.Valid() {
			return nil, fmt.Errorf("unknown scenario type %v", t)
		}
		requested[t] = true
	}

	var types []model.ScenarioType
	for _, t := range model.ScenarioTypes() {
		if len(requested) > 0 && !requested[t] {
			continue
		}
		if !in.Caps.Offers(t) {
			continue
		}
		types = append(types, t)
	}

	out := make([]model.Scenario, len(types))
	if len(types) == 1 {
		out[0] = build(in, types[0])
		return out, nil
	}

	var wg sync.WaitGroup
	for i, t := range types {
		wg.Add(1)
		go func(i int, t model.ScenarioType) {
			defer wg.Done()
			out[i] = build(in, t)
		}(i, t)
	}
	wg.Wait()

	return out, nil
}

func build(in *Input, t model.ScenarioType) model.Scenario {
	s := generators[t].Generate(in)
	s.ID = uuid.NewString()
	s.Type = t
	return annotate(&in.Contract, s, in.Caps)
}

// annotate derives IRR and impact from payment and term, then applies policy.
func annotate(c *model.ContractSnapshot, s model.Scenario, caps model.PolicyCaps) model.Scenario {
	sanitize(&s)

	res := irr.SolveDefault(irr.LevelFlows(c.CurrentBalance, s.MPrime, s.NPrime))
	s.IRR = model.IRRResult(res)
	s.AnnualIRR = res.IRR * 12
	s.Impact = impact(c, &s, generators[s.Type].Periods(&s))

	return policy.Validate(s, caps)
}

// MaxTerm bounds the term any scenario may propose for a contract. Generated
// scenarios stay well inside it.
func MaxTerm(c *model.ContractSnapshot) int {
	return 3 * c.RemainingTerm
}

// Revalidate recomputes a scenario's IRR, impact and policy annotations
// against the contract and caps, ignoring whatever the scenario carried.
func Revalidate(c model.ContractSnapshot, s model.Scenario, caps model.PolicyCaps) (model.Scenario, error) {
	if err := c.Validate(); err != nil {
		return s, err
	}
	if !s.Type.Valid() {
		return s, fmt.Errorf("unknown scenario type %v", s.Type)
	}
	if s.NPrime <= 0 || s.NPrime > MaxTerm(&c) {
		return s, fmt.Errorf("%w: n_prime %d not in 1..%d", ErrTermRange, s.NPrime, MaxTerm(&c))
	}
	return annotate(&c, s.Clone(), caps), nil
}

// Schedule builds the amortization table a scenario implies for a contract.
func Schedule(c *model.ContractSnapshot, s *model.Scenario, start time.Time) []model.ScheduleRow {
	g, ok := Get(s.Type)
	if !ok {
		return nil
	}
	return amortization.Schedule(c.CurrentBalance, c.MonthlyRate, g.Periods(s), start)
}

func impact(c *model.ContractSnapshot, s *model.Scenario, periods []amortization.Period) model.Impact {
	var total float64
	months := 0
	for _, p := range periods {
		total += p.Payment * float64(p.Months)
		months += p.Months
	}
	original := c.BasePayment * float64(c.RemainingTerm)

	return model.Impact{
		PaymentChange:        round2(s.MPrime - c.BasePayment),
		PaymentChangePercent: round2((s.MPrime - c.BasePayment) / c.BasePayment * 100),
		TermChange:           months - c.RemainingTerm,
		TotalCostChange:      round2(total - original),
	}
}

// sanitize replaces non-finite amounts so a scenario always serializes.
// Any replacement marks the scenario infeasible.
func sanitize(s *model.Scenario) {
	fix := func(v *float64) {
		if math.IsNaN(*v) || math.IsInf(*v, 0) {
			*v = 0
			s.Params.Feasible = false
		}
	}
	fix(&s.MPrime)
	fix(&s.Params.CapitalizedInterest)
	fix(&s.Params.ReducedPayment)
	fix(&s.Params.FundDraw)
	fix(&s.Params.CoverageRatio)
	fix(&s.Params.RequiredPayment)
	if s.Balloon != nil {
		fix(s.Balloon)
	}
	if s.NPrime < 0 {
		s.NPrime = 0
		s.Params.Feasible = false
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
