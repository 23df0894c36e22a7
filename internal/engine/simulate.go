package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"restructure-engine/internal/fsm"
	"restructure-engine/internal/model"
	"restructure-engine/internal/scenarios"
)

// DefaultMonthsAffected is the window simulated when a health event opens
// eligibility without a request.
const DefaultMonthsAffected = 3

// Simulate generates a fresh scenario set for the contract and moves the plan
// to ELIGIBLE. The previous set and any selection from it are discarded.
// When the annual limit is used up the scenarios are returned for
// information only and the plan is left untouched.
func (e *Engine) Simulate(ctx context.Context, req model.SimulateRequest) (res *model.SimulateResult, err error) {
	ctx, done := e.obs.TrackOperation(ctx, "simulate", attribute.String("contract_id", req.ContractID))
	defer func() { done(err) }()

	if req.ContractID == "" {
		return nil, fmt.Errorf("%w: contract_id is required", ErrInvalidRequest)
	}
	started := e.now()

	unlock := e.lock(req.ContractID)
	defer unlock()

	snap, caps, err := e.contract(ctx, req.ContractID)
	if err != nil {
		return nil, err
	}

	cur, err := e.loadOrNew(ctx, req.ContractID)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		cur = model.NewPlan(req.ContractID, snap.ClientID, caps, started.UTC())
	}
	if cur.State != model.StateIdle && cur.State != model.StateEligible {
		return nil, &fsm.InvalidTransitionError{From: cur.State, To: model.StateEligible, Action: model.ActionTrigger}
	}

	list, err := e.generate(&snap, caps, req.MonthsAffected, req.Types, req.Alpha)
	if err != nil {
		return nil, err
	}
	e.obs.RecordWarnings(ctx, list)

	res = &model.SimulateResult{Scenarios: list}

	view := cur.Clone()
	view.Policy = caps.Clone()
	if e.usageExhausted(view) {
		res.EligibilityCheck = e.eligibility(view, false,
			fmt.Sprintf("annual restructure limit reached (%d of %d used)", e.usage(view).Total(), caps.AnnualLimit))
		res.Metadata = e.metadata(started)
		return res, nil
	}

	reason := req.TriggerReason
	if reason == "" {
		reason = "manual simulation"
	}
	update := func(_, next *model.Plan) error {
		next.Snapshot = &snap
		next.Policy = caps.Clone()
		next.EligibilityReason = reason
		setScenarios(next, list)
		return nil
	}

	var next *model.Plan
	if cur.State == model.StateIdle {
		next, err = e.transitionLocked(ctx, cur, model.ActionTrigger, model.System, reason, func(cur, next *model.Plan) error {
			next.Audit.TriggeredBy = actorName(req.Actor)
			next.Audit.Reason = reason
			return update(cur, next)
		})
	} else {
		// Re-simulating an ELIGIBLE plan is not a transition, but it is audited.
		next = cur.Clone()
		_ = update(cur, next)
		err = e.commit(ctx, cur, next, req.Actor, model.ActionRefreshScenarios, reason)
	}
	if err != nil {
		return nil, err
	}

	res.Scenarios = next.Scenarios
	res.ScenarioSetID = next.ScenarioSetID
	eligible := false
	for _, s := range next.Scenarios {
		if s.Eligible {
			eligible = true
			break
		}
	}
	why := "at least one scenario satisfies policy"
	if !eligible {
		why = "no scenario satisfies policy"
	}
	res.EligibilityCheck = e.eligibility(next, eligible, why)
	res.Metadata = e.metadata(started)
	return res, nil
}

func (e *Engine) generate(snap *model.ContractSnapshot, caps model.PolicyCaps, months int, types []model.ScenarioType, alpha float64) ([]model.Scenario, error) {
	list, err := scenarios.Generate(&scenarios.Input{
		Contract:       *snap,
		Caps:           caps,
		MonthsAffected: months,
		Types:          types,
		Alpha:          alpha,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return list, nil
}

// setScenarios replaces the plan's scenario set and drops the selection,
// which could only point into the old set.
func setScenarios(p *model.Plan, list []model.Scenario) {
	p.Scenarios = make([]model.Scenario, len(list))
	for i := range list {
		p.Scenarios[i] = list[i].Clone()
	}
	p.ScenarioSetID = uuid.NewString()
	p.Selected = nil
	p.SelectionReason = ""
}

func (e *Engine) eligibility(p *model.Plan, eligible bool, reason string) model.EligibilityCheck {
	used := e.usage(p)
	return model.EligibilityCheck{
		IsEligible:            eligible,
		Reason:                reason,
		RestructuresAvailable: max(p.Policy.AnnualLimit-used.Total(), 0),
		RestructuresUsed:      used.Total(),
		Used:                  used,
	}
}

func (e *Engine) metadata(started time.Time) model.CalculationMetadata {
	completed := e.now()
	elapsed := completed.Sub(started)
	return model.CalculationMetadata{
		CalculationID:          uuid.NewString(),
		CalculationStartedAt:   started.UTC().Format(time.RFC3339),
		CalculationCompletedAt: completed.UTC().Format(time.RFC3339),
		CalculationDurationMs:  elapsed.Milliseconds(),
	}
}

func actorName(a model.Actor) string {
	if a.ID != "" {
		return a.ID
	}
	return string(a.Role)
}
