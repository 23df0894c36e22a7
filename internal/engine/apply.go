package engine

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"restructure-engine/internal/collab"
	"restructure-engine/internal/fsm"
	"restructure-engine/internal/model"
	"restructure-engine/internal/scenarios"
)

const dateLayout = "2006-01-02"

// Apply writes the selected scenario's schedule, notifies the client and
// moves a SIGNED plan to APPLIED. If either collaborator fails the plan stays
// SIGNED and the call may be repeated; once APPLIED, repeating it returns the
// recorded result.
func (e *Engine) Apply(ctx context.Context, req model.ApplyRequest) (res *model.ApplyResult, err error) {
	ctx, done := e.obs.TrackOperation(ctx, "apply", attribute.String("contract_id", req.ContractID))
	defer func() { done(err) }()

	prep, applied, err := e.prepareApply(ctx, req)
	if err != nil || applied != nil {
		return applied, err
	}

	if err := e.schedules.WriteSchedule(ctx, req.ContractID, prep.effective, prep.rows); err != nil {
		e.logger.WarnContext(ctx, "schedule write failed", "contract_id", req.ContractID, "error", err)
		return nil, fmt.Errorf("write schedule for %s: %w", req.ContractID, err)
	}

	notes, err := e.notifier.Notify(ctx, collab.Notice{
		ContractID: req.ContractID,
		ClientID:   prep.clientID,
		Event:      model.ActionApplyChanges,
		State:      model.StateApplied,
		Scenario:   prep.selected.Type,
		Payment:    prep.selected.MPrime,
		Term:       prep.selected.NPrime,
		Effective:  prep.effective,
	})
	if err != nil {
		e.logger.WarnContext(ctx, "notification failed", "contract_id", req.ContractID, "error", err)
		return nil, fmt.Errorf("notify client for %s: %w", req.ContractID, err)
	}

	unlock := e.lock(req.ContractID)
	defer unlock()

	cur, err := e.load(ctx, req.ContractID)
	if err != nil {
		return nil, err
	}
	if cur.State == model.StateApplied {
		return appliedResult(cur), nil
	}

	next, err := e.transitionLocked(ctx, cur, model.ActionApplyChanges, req.Actor, "",
		func(cur, next *model.Plan) error {
			if cur.Selected == nil || cur.Selected.ID != prep.selected.ID {
				return fmt.Errorf("%w: selection changed while applying", ErrWrongState)
			}
			now := e.now().UTC()
			next.Used = e.usage(next)
			next.Used.Year = now.Year()
			next.Used.Inc(prep.selected.Type)
			next.History = append(next.History, model.Restructure{
				ScenarioID:    prep.selected.ID,
				Type:          prep.selected.Type,
				AppliedAt:     now,
				EffectiveDate: prep.effective,
				Months:        max(prep.selected.Params.DeferredMonths, prep.selected.Params.Months),
				NewTerm:       prep.selected.NPrime,
				PaymentChange: prep.selected.Impact.PaymentChange,
			})
			next.EffectiveDate = prep.effective
			next.Schedule = prep.rows
			next.Notifications = &notes
			return nil
		})
	if err != nil {
		return nil, err
	}
	return appliedResult(next), nil
}

type applyPlan struct {
	clientID  string
	selected  model.Scenario
	effective string
	rows      []model.ScheduleRow
}

func (e *Engine) prepareApply(ctx context.Context, req model.ApplyRequest) (*applyPlan, *model.ApplyResult, error) {
	var start time.Time
	if req.EffectiveDate != "" {
		t, err := time.Parse(dateLayout, req.EffectiveDate)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: effective_date: %w", ErrInvalidRequest, err)
		}
		start = t
	} else {
		now := e.now().UTC()
		start = time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	}

	unlock := e.lock(req.ContractID)
	defer unlock()

	cur, err := e.load(ctx, req.ContractID)
	if err != nil {
		return nil, nil, err
	}
	if cur.State == model.StateApplied {
		return nil, appliedResult(cur), nil
	}
	if _, err := fsm.Check(cur.State, model.ActionApplyChanges, req.Actor.Role); err != nil {
		return nil, nil, err
	}
	if cur.Selected == nil || cur.Snapshot == nil {
		return nil, nil, fmt.Errorf("%w: plan %s has no selected scenario", ErrWrongState, cur.ContractID)
	}

	return &applyPlan{
		clientID:  cur.ClientID,
		selected:  cur.Selected.Clone(),
		effective: start.Format(dateLayout),
		rows:      scenarios.Schedule(cur.Snapshot, cur.Selected, start),
	}, nil, nil
}

func appliedResult(p *model.Plan) *model.ApplyResult {
	res := &model.ApplyResult{
		Success:     true,
		NewState:    p.State,
		NewSchedule: p.Schedule,
	}
	if res.NewSchedule == nil {
		res.NewSchedule = []model.ScheduleRow{}
	}
	if p.Notifications != nil {
		res.Notifications = *p.Notifications
	}
	return res
}
