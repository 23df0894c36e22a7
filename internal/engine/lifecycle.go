package engine

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"restructure-engine/internal/fsm"
	"restructure-engine/internal/model"
)

// Select moves an ELIGIBLE plan to PENDING_APPROVAL with one scenario of the
// current set. Selecting from an older set fails with ErrStaleScenario.
func (e *Engine) Select(ctx context.Context, req model.SelectRequest) (res *model.TransitionResult, err error) {
	ctx, done := e.obs.TrackOperation(ctx, "select", attribute.String("contract_id", req.ContractID))
	defer func() { done(err) }()

	next, err := e.transition(ctx, req.ContractID, model.ActionSelectScenario, req.Actor, req.Reason,
		func(cur, next *model.Plan) error {
			if req.ScenarioSetID != "" && req.ScenarioSetID != cur.ScenarioSetID {
				return fmt.Errorf("%w: set %s was replaced by %s", ErrStaleScenario, req.ScenarioSetID, cur.ScenarioSetID)
			}
			s, ok := next.FindScenario(req.ScenarioID)
			if !ok {
				return fmt.Errorf("%w: %s", ErrStaleScenario, req.ScenarioID)
			}
			if !s.Eligible {
				codes := make([]string, len(s.Warnings))
				for i, w := range s.Warnings {
					codes[i] = string(w.Code)
				}
				return fmt.Errorf("%w: %s %s: %s", ErrScenarioNotEligible, s.Type, s.ID, strings.Join(codes, ","))
			}
			if e.usageExhausted(next) {
				return fmt.Errorf("%w: %d of %d used", ErrUsageExhausted, e.usage(next).Total(), next.Policy.AnnualLimit)
			}

			sel := s.Clone()
			next.Selected = &sel
			next.SelectionReason = req.Reason
			return nil
		})
	if err != nil {
		return nil, err
	}
	return &model.TransitionResult{Success: true, NewState: next.State}, nil
}

func (e *Engine) Approve(ctx context.Context, req model.ApproveRequest) (res *model.TransitionResult, err error) {
	ctx, done := e.obs.TrackOperation(ctx, "approve", attribute.String("contract_id", req.ContractID))
	defer func() { done(err) }()

	by := req.ApprovedBy
	if by == "" {
		by = req.Actor.ID
	}
	next, err := e.transition(ctx, req.ContractID, model.ActionApprove, req.Actor, req.Notes,
		func(_, next *model.Plan) error {
			next.Audit.ApprovedBy = by
			next.Audit.ApprovalNotes = req.Notes
			return nil
		})
	if err != nil {
		return nil, err
	}
	return &model.TransitionResult{Success: true, NewState: next.State}, nil
}

func (e *Engine) Deny(ctx context.Context, req model.DenyRequest) (res *model.TransitionResult, err error) {
	ctx, done := e.obs.TrackOperation(ctx, "deny", attribute.String("contract_id", req.ContractID))
	defer func() { done(err) }()

	by := req.DeniedBy
	if by == "" {
		by = req.Actor.ID
	}
	next, err := e.transition(ctx, req.ContractID, model.ActionDeny, req.Actor, req.Reason,
		func(_, next *model.Plan) error {
			if strings.TrimSpace(req.Reason) == "" {
				return fmt.Errorf("%w: deny", ErrReasonRequired)
			}
			next.Audit.RejectedBy = by
			next.Audit.RejectedReason = req.Reason
			return nil
		})
	if err != nil {
		return nil, err
	}
	return &model.TransitionResult{Success: true, NewState: next.State}, nil
}

// CreateSigningSession opens an e-signature session for a READY_TO_SIGN plan.
// The provider is called without holding the contract lock; the plan stays
// READY_TO_SIGN until the signature is confirmed through Sign. Calling it
// again returns the session already attached to the plan.
func (e *Engine) CreateSigningSession(ctx context.Context, contractID string, actor model.Actor) (res *model.SigningSession, err error) {
	ctx, done := e.obs.TrackOperation(ctx, "signing_session", attribute.String("contract_id", contractID))
	defer func() { done(err) }()

	if actor.Role != model.RoleClient && actor.Role != model.RoleAdmin {
		return nil, &fsm.RoleError{Action: model.ActionOpenSigningSession, Want: model.RoleClient, Got: actor.Role}
	}

	selected, existing, err := e.signingTarget(ctx, contractID)
	if err != nil || existing != nil {
		return existing, err
	}

	sess, err := e.signer.CreateSession(ctx, contractID, selected.Type)
	if err != nil {
		e.logger.WarnContext(ctx, "signing session failed", "contract_id", contractID, "error", err)
		return nil, fmt.Errorf("create signing session for %s: %w", contractID, err)
	}

	unlock := e.lock(contractID)
	defer unlock()

	cur, err := e.load(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if s := attachedSession(cur); s != nil {
		return s, nil
	}
	if cur.State != model.StateReadyToSign {
		return nil, fmt.Errorf("%w: signing needs %s, plan is %s", ErrWrongState, model.StateReadyToSign, cur.State)
	}

	next := cur.Clone()
	next.SigningSessionID = sess.SessionID
	next.SigningURL = sess.SigningURL
	if err := e.commit(ctx, cur, next, actor, model.ActionOpenSigningSession, ""); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (e *Engine) signingTarget(ctx context.Context, contractID string) (*model.Scenario, *model.SigningSession, error) {
	unlock := e.lock(contractID)
	defer unlock()

	cur, err := e.load(ctx, contractID)
	if err != nil {
		return nil, nil, err
	}
	if s := attachedSession(cur); s != nil {
		return nil, s, nil
	}
	if cur.State != model.StateReadyToSign || cur.Selected == nil {
		return nil, nil, fmt.Errorf("%w: signing needs %s, plan is %s", ErrWrongState, model.StateReadyToSign, cur.State)
	}
	return cur.Selected, nil, nil
}

func attachedSession(p *model.Plan) *model.SigningSession {
	if p.State != model.StateReadyToSign || p.SigningSessionID == "" {
		return nil
	}
	return &model.SigningSession{SessionID: p.SigningSessionID, SigningURL: p.SigningURL}
}

// Sign records the signed document and moves the plan to SIGNED. Repeating
// a confirmation that was already recorded succeeds without a new entry.
func (e *Engine) Sign(ctx context.Context, req model.SignRequest) (res *model.TransitionResult, err error) {
	ctx, done := e.obs.TrackOperation(ctx, "sign", attribute.String("contract_id", req.ContractID))
	defer func() { done(err) }()

	if req.ExternalSessionID == "" || req.SignedDocumentRef == "" {
		return nil, fmt.Errorf("%w: external_session_id and signed_document_ref are required", ErrInvalidRequest)
	}

	unlock := e.lock(req.ContractID)
	defer unlock()

	cur, err := e.load(ctx, req.ContractID)
	if err != nil {
		return nil, err
	}
	if (cur.State == model.StateSigned || cur.State == model.StateApplied) &&
		cur.SigningSessionID == req.ExternalSessionID && cur.SignedDocumentRef == req.SignedDocumentRef {
		return &model.TransitionResult{Success: true, NewState: cur.State}, nil
	}

	next, err := e.transitionLocked(ctx, cur, model.ActionSignDocument, req.Actor, "",
		func(cur, next *model.Plan) error {
			if cur.SigningSessionID != "" && cur.SigningSessionID != req.ExternalSessionID {
				return fmt.Errorf("%w: got %s", ErrSessionMismatch, req.ExternalSessionID)
			}
			next.SigningSessionID = req.ExternalSessionID
			next.SignedDocumentRef = req.SignedDocumentRef
			return nil
		})
	if err != nil {
		return nil, err
	}
	return &model.TransitionResult{Success: true, NewState: next.State}, nil
}

// Expire closes an open plan whose window elapsed.
func (e *Engine) Expire(ctx context.Context, req model.TransitionRequest) (res *model.TransitionResult, err error) {
	ctx, done := e.obs.TrackOperation(ctx, "expire", attribute.String("contract_id", req.ContractID))
	defer func() { done(err) }()

	reason := req.Reason
	if reason == "" {
		reason = "expiry window elapsed"
	}
	next, err := e.transition(ctx, req.ContractID, model.ActionExpireWindow, req.Actor, reason, nil)
	if err != nil {
		return nil, err
	}
	return &model.TransitionResult{Success: true, NewState: next.State}, nil
}

func (e *Engine) ResetEligibility(ctx context.Context, req model.TransitionRequest) (*model.TransitionResult, error) {
	req.Action = model.ActionResetEligibility
	return e.Reset(ctx, req)
}

func (e *Engine) CompleteCooldown(ctx context.Context, req model.TransitionRequest) (*model.TransitionResult, error) {
	req.Action = model.ActionCooldown
	return e.Reset(ctx, req)
}

func (e *Engine) ResetAfterExpiry(ctx context.Context, req model.TransitionRequest) (*model.TransitionResult, error) {
	req.Action = model.ActionResetAfterExpiry
	return e.Reset(ctx, req)
}

// Reset returns an APPLIED, REJECTED or EXPIRED plan to IDLE. With no action
// given, the one leading to IDLE from the plan's current state is used.
// Usage counters and the audit entries survive the reset.
func (e *Engine) Reset(ctx context.Context, req model.TransitionRequest) (res *model.TransitionResult, err error) {
	ctx, done := e.obs.TrackOperation(ctx, "reset", attribute.String("contract_id", req.ContractID))
	defer func() { done(err) }()

	unlock := e.lock(req.ContractID)
	defer unlock()

	cur, err := e.load(ctx, req.ContractID)
	if err != nil {
		return nil, err
	}

	action := req.Action
	if action == "" {
		action = resetAction(cur.State)
	}
	if !isReset(action) {
		return nil, fmt.Errorf("%w: %q does not reset a plan", ErrInvalidRequest, action)
	}

	next, err := e.transitionLocked(ctx, cur, action, req.Actor, req.Reason, func(_, next *model.Plan) error {
		clearCycle(next)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &model.TransitionResult{Success: true, NewState: next.State}, nil
}

func resetAction(from model.State) model.Action {
	for _, t := range fsm.Next(from) {
		if t.To == model.StateIdle {
			return t.Action
		}
	}
	// No edge to IDLE; let the table report it.
	return model.ActionResetEligibility
}

func isReset(a model.Action) bool {
	return a == model.ActionResetEligibility || a == model.ActionCooldown || a == model.ActionResetAfterExpiry
}

// clearCycle drops everything that belonged to the finished restructuring cycle.
func clearCycle(p *model.Plan) {
	p.Snapshot = nil
	p.Scenarios = []model.Scenario{}
	p.ScenarioSetID = ""
	p.Selected = nil
	p.SelectionReason = ""
	p.EligibilityReason = ""
	p.SigningSessionID = ""
	p.SigningURL = ""
	p.SignedDocumentRef = ""
	p.EffectiveDate = ""
	p.Schedule = nil
	p.Notifications = nil

	p.Audit.TriggeredBy = ""
	p.Audit.Reason = ""
	p.Audit.HealthAtTrigger = nil
	p.Audit.ApprovedBy = ""
	p.Audit.ApprovalNotes = ""
	p.Audit.RejectedBy = ""
	p.Audit.RejectedReason = ""
}
