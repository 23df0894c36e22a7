// Package policy checks restructuring scenarios against market caps and
// resolves which caps apply to a contract.
package policy

import (
	"fmt"
	"math"

	"restructure-engine/internal/model"
)

type capRule func(s *model.Scenario, caps *model.PolicyCaps) *model.Warning

var capRules = [...]capRule{
	model.Defer:      deferCap,
	model.StepDown:   stepDownCap,
	model.Recalendar: recalendarCap,
	model.Collective: collectiveCap,
}

var _ = [1]struct{}{}[len(capRules)-int(model.NumScenarioTypes)]

// Validate annotates a scenario with TIROK, warnings and eligibility.
// Every failing check is reported; none short-circuits another.
func Validate(s model.Scenario, caps model.PolicyCaps) model.Scenario {
	out := s.Clone()
	out.Warnings = []model.Warning{}

	if !s.Type.Valid() {
		out.Warnings = append(out.Warnings, model.Warning{
			Code:    model.CodeNotFeasible,
			Message: fmt.Sprintf("unknown scenario type %v", s.Type),
		})
	} else if w := capRules[s.Type](&out, &caps); w != nil {
		out.Warnings = append(out.Warnings, *w)
	}

	if !out.Params.Feasible {
		out.Warnings = append(out.Warnings, infeasible(&out))
	}

	if !out.IRR.IsValid {
		out.Warnings = append(out.Warnings, model.Warning{
			Code:    model.CodeNotFeasible,
			Message: fmt.Sprintf("IRR did not converge after %d iterations (last estimate %.6f)", out.IRR.Iterations, out.IRR.IRR),
		})
	}

	out.TIROK = out.IRR.IsValid && out.AnnualIRR >= caps.IRRMin
	if out.AnnualIRR < caps.IRRMin {
		out.Warnings = append(out.Warnings, model.Warning{
			Code:    model.CodeIRRBelowMin,
			Message: fmt.Sprintf("annual IRR %.2f%% is below the %.2f%% minimum", out.AnnualIRR*100, caps.IRRMin*100),
		})
	}

	if !(out.MPrime >= caps.MMin) || math.IsInf(out.MPrime, 0) {
		out.Warnings = append(out.Warnings, model.Warning{
			Code:        model.CodePaymentBelowMin,
			Message:     fmt.Sprintf("payment %.2f is below the %.2f floor", out.MPrime, caps.MMin),
			Remediation: fmt.Sprintf("raise the monthly payment to at least %.2f", caps.MMin),
		})
	}

	out.Eligible = len(out.Warnings) == 0
	return out
}

// ValidateAll validates a generated set, preserving order.
func ValidateAll(scenarios []model.Scenario, caps model.PolicyCaps) []model.Scenario {
	out := make([]model.Scenario, len(scenarios))
	for i, s := range scenarios {
		out[i] = Validate(s, caps)
	}
	return out
}

func deferCap(s *model.Scenario, caps *model.PolicyCaps) *model.Warning {
	d := s.Params.DeferredMonths
	if d <= caps.DifMax {
		return nil
	}
	return &model.Warning{
		Code:        model.CodeCapExceeded,
		Message:     fmt.Sprintf("deferral of %d months exceeds the %d month maximum", d, caps.DifMax),
		Remediation: fmt.Sprintf("defer at most %d months and recompute", caps.DifMax),
	}
}

func stepDownCap(s *model.Scenario, caps *model.PolicyCaps) *model.Warning {
	a := s.Params.Alpha
	if a <= caps.StepDownMaxPct {
		return nil
	}
	return &model.Warning{
		Code:        model.CodeCapExceeded,
		Message:     fmt.Sprintf("payment reduction of %.0f%% exceeds the %.0f%% maximum", a*100, caps.StepDownMaxPct*100),
		Remediation: fmt.Sprintf("reduce α to %.0f%% and recompute", caps.StepDownMaxPct*100),
	}
}

func recalendarCap(s *model.Scenario, caps *model.PolicyCaps) *model.Warning {
	dn := s.Params.DeltaTerm
	if dn <= caps.ExtendMax {
		return nil
	}
	w := &model.Warning{
		Code:    model.CodeCapExceeded,
		Message: fmt.Sprintf("term extension of %d months exceeds the %d month maximum", dn, caps.ExtendMax),
	}
	if s.Params.RequiredPayment > 0 {
		w.Remediation = fmt.Sprintf("raise the payment to %.2f to keep the extension within %d months", s.Params.RequiredPayment, caps.ExtendMax)
	}
	return w
}

func collectiveCap(s *model.Scenario, caps *model.PolicyCaps) *model.Warning {
	k := s.Params.Months
	if k <= caps.DifMax {
		return nil
	}
	return &model.Warning{
		Code:        model.CodeCapExceeded,
		Message:     fmt.Sprintf("fund coverage window of %d months exceeds the %d month maximum", k, caps.DifMax),
		Remediation: fmt.Sprintf("cover at most %d months from the group fund", caps.DifMax),
	}
}

func infeasible(s *model.Scenario) model.Warning {
	w := model.Warning{
		Code:    model.CodeNotFeasible,
		Message: fmt.Sprintf("%s cannot amortize the balance within the allowed term", s.Type),
	}
	if s.Params.RequiredPayment > 0 {
		w.Remediation = fmt.Sprintf("raise the payment to %.2f", s.Params.RequiredPayment)
	}
	return w
}
