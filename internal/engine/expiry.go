package engine

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"restructure-engine/internal/fsm"
	"restructure-engine/internal/model"
	"restructure-engine/internal/policy"
)

// ExpireStale fires expire_window on every open plan whose window, counted
// from its last state transition, has elapsed by now. It returns how many plans were
// expired. A plan that fails to expire is logged and skipped.
func (e *Engine) ExpireStale(ctx context.Context, now time.Time) (n int, err error) {
	ctx, done := e.obs.TrackOperation(ctx, "expire_stale")
	defer func() { done(err) }()

	open, err := e.plans.ListByState(ctx, model.StateEligible, model.StatePendingApproval, model.StateReadyToSign)
	if err != nil {
		return 0, fmt.Errorf("list open plans: %w", err)
	}

	for _, p := range open {
		if !stale(p, now) {
			continue
		}
		expired, err := e.expireIfStale(ctx, p.ContractID, now)
		if err != nil {
			e.logger.WarnContext(ctx, "expiry failed", "contract_id", p.ContractID, "error", err)
			continue
		}
		if expired {
			n++
		}
	}

	if n > 0 {
		e.logger.InfoContext(ctx, "expiry sweep", "expired", n, "open", len(open))
	}
	return n, nil
}

func (e *Engine) expireIfStale(ctx context.Context, contractID string, now time.Time) (bool, error) {
	unlock := e.lock(contractID)
	defer unlock()

	cur, err := e.load(ctx, contractID)
	if err != nil {
		return false, err
	}
	// Re-check under the lock; the plan may have moved since it was listed.
	if !stale(cur, now) {
		return false, nil
	}

	ctx, done := e.obs.TrackOperation(ctx, "expire", attribute.String("contract_id", contractID))
	_, err = e.transitionLocked(ctx, cur, model.ActionExpireWindow, model.System, "expiry window elapsed", nil)
	done(err)
	return err == nil, err
}

func stale(p *model.Plan, now time.Time) bool {
	if _, ok := fsm.Lookup(p.State, model.ActionExpireWindow); !ok {
		return false
	}
	window := p.Policy.ExpiryWindow
	if window <= 0 {
		window = policy.DefaultExpiryWindow
	}
	since := p.Audit.StateChangedAt
	if since.IsZero() {
		since = p.Audit.UpdatedAt
	}
	return since.Add(window).Before(now)
}
