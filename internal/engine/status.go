package engine

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"restructure-engine/internal/model"
	"restructure-engine/internal/scenarios"
)

// Eligibility reports whether the contract could open a restructuring cycle
// now, and how much of the annual allowance is left. Nothing is simulated or
// stored.
func (e *Engine) Eligibility(ctx context.Context, contractID string) (res *model.EligibilityStatus, err error) {
	ctx, done := e.obs.TrackOperation(ctx, "eligibility", attribute.String("contract_id", contractID))
	defer func() { done(err) }()

	snap, caps, err := e.contract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	cur, err := e.loadOrNew(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		cur = model.NewPlan(contractID, snap.ClientID, caps, e.now().UTC())
	}
	view := cur.Clone()
	view.Policy = caps.Clone()

	used := e.usage(view)
	left := max(caps.AnnualLimit-used.Total(), 0)
	res = &model.EligibilityStatus{
		ContractID:            contractID,
		State:                 cur.State,
		Reasons:               []string{},
		RestructuresAvailable: left,
		RestructuresUsed:      used.Total(),
		HealthScore:           cur.Audit.HealthAtTrigger,
	}
	for _, t := range caps.AvailableTypes {
		res.UsageRemaining.Set(t, left)
	}

	if cur.State != model.StateIdle && cur.State != model.StateEligible {
		res.Reasons = append(res.Reasons, fmt.Sprintf("protection already active in state %s", cur.State))
	}
	if e.usageExhausted(view) {
		res.Reasons = append(res.Reasons,
			fmt.Sprintf("annual restructure limit reached (%d of %d used)", used.Total(), caps.AnnualLimit))
		year := e.now().UTC().Year()
		res.NextEligibilityDate = time.Date(year+1, time.January, 1, 0, 0, 0, 0, time.UTC).Format(dateLayout)
	}
	if len(caps.AvailableTypes) == 0 {
		res.Reasons = append(res.Reasons, "no scenario type is offered for this contract")
	}

	res.IsEligible = len(res.Reasons) == 0
	if res.IsEligible {
		res.Reasons = append(res.Reasons, fmt.Sprintf("%d of %d restructures left this year", left, caps.AnnualLimit))
	}
	return res, nil
}

// History lists the contract's applied restructures, oldest first. The most
// recent one is active until its new term runs out.
func (e *Engine) History(ctx context.Context, contractID string) ([]model.HistoryEntry, error) {
	p, err := e.load(ctx, contractID)
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	out := make([]model.HistoryEntry, len(p.History))
	for i, r := range p.History {
		out[i] = model.HistoryEntry{Restructure: r, Status: model.HistoryCompleted}
		if i < len(p.History)-1 {
			continue
		}
		start, err := time.Parse(dateLayout, r.EffectiveDate)
		if err != nil || now.Before(start.AddDate(0, r.NewTerm, 0)) {
			out[i].Status = model.HistoryActive
		}
	}
	return out, nil
}

// Validate re-checks a scenario against the contract's current caps before
// it is selected. IRR and impact are recomputed from payment and term.
func (e *Engine) Validate(ctx context.Context, req model.ValidateRequest) (res *model.ValidationResult, err error) {
	ctx, done := e.obs.TrackOperation(ctx, "validate", attribute.String("contract_id", req.ContractID))
	defer func() { done(err) }()

	if req.ContractID == "" {
		return nil, fmt.Errorf("%w: contract_id is required", ErrInvalidRequest)
	}
	snap, caps, err := e.contract(ctx, req.ContractID)
	if err != nil {
		return nil, err
	}
	cur, err := e.loadOrNew(ctx, req.ContractID)
	if err != nil {
		return nil, err
	}

	res = &model.ValidationResult{Warnings: []string{}, Errors: []string{}}
	s := req.Scenario
	stored := false
	if cur != nil {
		if found, ok := cur.FindScenario(s.ID); s.ID != "" && ok {
			s = found.Clone()
			stored = true
			if cur.Snapshot != nil {
				snap = *cur.Snapshot
			}
		}
	}
	if !stored {
		res.Warnings = append(res.Warnings, "scenario is not part of the current simulation and cannot be selected as is")
	}

	checked, err := scenarios.Revalidate(snap, s, caps)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	for _, w := range checked.Warnings {
		res.Errors = append(res.Errors, w.Message)
	}
	if stored && s.Eligible && !checked.Eligible {
		res.Warnings = append(res.Warnings, "policy changed since the simulation")
	}

	if cur != nil {
		view := cur.Clone()
		view.Policy = caps.Clone()
		if e.usageExhausted(view) {
			res.Errors = append(res.Errors,
				fmt.Sprintf("annual restructure limit reached (%d of %d used)", e.usage(view).Total(), caps.AnnualLimit))
		}
	}

	res.IsValid = len(res.Errors) == 0
	res.Adjusted = checked
	return res, nil
}
