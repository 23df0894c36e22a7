package engine

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"restructure-engine/internal/health"
	"restructure-engine/internal/model"
)

// TriggerHealthEvent opens eligibility from an external risk signal. An IDLE
// plan that passes the event's rule moves to ELIGIBLE with a pre-generated
// scenario set; any other plan is reported as already active.
func (e *Engine) TriggerHealthEvent(ctx context.Context, ev model.HealthEvent) (res *model.HealthResult, err error) {
	ctx, done := e.obs.TrackOperation(ctx, "health_event",
		attribute.String("contract_id", ev.ContractID),
		attribute.String("event_type", string(ev.Type)),
	)
	defer func() { done(err) }()

	if ev.ContractID == "" {
		return nil, fmt.Errorf("%w: contract_id is required", ErrInvalidRequest)
	}

	triggered, reason, err := e.health.Evaluate(ev)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if !triggered {
		return &model.HealthResult{Reason: reason, Result: model.HealthNotEligible}, nil
	}

	unlock := e.lock(ev.ContractID)
	defer unlock()

	cur, err := e.loadOrNew(ctx, ev.ContractID)
	if err != nil {
		return nil, err
	}
	if cur != nil && cur.State != model.StateIdle {
		return &model.HealthResult{
			NewState: cur.State,
			Reason:   fmt.Sprintf("protection already active in state %s", cur.State),
			Result:   model.HealthAlreadyActive,
		}, nil
	}

	snap, caps, err := e.contract(ctx, ev.ContractID)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		clientID := ev.ClientID
		if clientID == "" {
			clientID = snap.ClientID
		}
		cur = model.NewPlan(ev.ContractID, clientID, caps, e.now().UTC())
	}

	view := cur.Clone()
	view.Policy = caps.Clone()
	if e.usageExhausted(view) {
		return &model.HealthResult{
			NewState: cur.State,
			Reason:   fmt.Sprintf("annual restructure limit reached (%d of %d used)", e.usage(view).Total(), caps.AnnualLimit),
			Result:   model.HealthNotEligible,
		}, nil
	}

	list, err := e.generate(&snap, caps, DefaultMonthsAffected, nil, 0)
	if err != nil {
		return nil, err
	}
	e.obs.RecordWarnings(ctx, list)

	next, err := e.transitionLocked(ctx, cur, model.ActionTrigger, model.System, reason, func(_, next *model.Plan) error {
		next.Snapshot = &snap
		next.Policy = caps.Clone()
		next.EligibilityReason = reason
		next.Audit.TriggeredBy = string(ev.Type)
		next.Audit.Reason = reason
		next.Audit.HealthAtTrigger = health.Score(ev)
		setScenarios(next, list)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &model.HealthResult{
		Triggered: true,
		NewState:  next.State,
		Reason:    reason,
		Result:    model.HealthEligible,
	}, nil
}
