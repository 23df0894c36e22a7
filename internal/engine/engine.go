// Package engine drives protection plans through their lifecycle: it runs
// simulations, enforces the transition table and keeps the audit trail.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"restructure-engine/internal/collab"
	"restructure-engine/internal/fsm"
	"restructure-engine/internal/health"
	"restructure-engine/internal/jsonpatch"
	"restructure-engine/internal/model"
	"restructure-engine/internal/observability"
	"restructure-engine/internal/policy"
	"restructure-engine/internal/store"
)

var (
	ErrPlanNotFound        = errors.New("protection plan not found")
	ErrContractNotFound    = errors.New("contract not found")
	ErrStaleScenario       = errors.New("scenario is not part of the current simulation")
	ErrScenarioNotEligible = errors.New("scenario is not eligible")
	ErrReasonRequired      = errors.New("a reason is required")
	ErrSessionMismatch     = errors.New("signing session does not match the plan")
	ErrUsageExhausted      = errors.New("annual restructure limit reached")
	ErrWrongState          = errors.New("plan is not in the required state")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrVersionConflict     = store.ErrVersionConflict
)

// Deps are the collaborators an Engine needs. Plans, Contracts and Schedules
// are required; the rest fall back to local implementations.
type Deps struct {
	Plans     store.Plans
	Contracts store.Contracts
	Schedules store.Schedules
	Signer    collab.Signer
	Notifier  collab.Notifier
	Policies  *policy.Registry
	Health    *health.Evaluator
}

type Option func(*Engine)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithObservability(p *observability.Provider) Option {
	return func(e *Engine) { e.obs = p }
}

type Engine struct {
	plans     store.Plans
	contracts store.Contracts
	schedules store.Schedules
	signer    collab.Signer
	notifier  collab.Notifier
	policies  *policy.Registry
	health    *health.Evaluator

	obs    *observability.Provider
	logger *slog.Logger
	now    func() time.Time

	// One mutex per contract id.
	locks sync.Map
}

func New(deps Deps, opts ...Option) (*Engine, error) {
	if deps.Plans == nil || deps.Contracts == nil || deps.Schedules == nil {
		return nil, errors.New("engine: plans, contracts and schedules stores are required")
	}

	e := &Engine{
		plans:     deps.Plans,
		contracts: deps.Contracts,
		schedules: deps.Schedules,
		signer:    deps.Signer,
		notifier:  deps.Notifier,
		policies:  deps.Policies,
		health:    deps.Health,
		logger:    slog.Default().With("component", "engine"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.signer == nil {
		e.signer = collab.LocalSigner{}
	}
	if e.notifier == nil {
		e.notifier = collab.LogNotifier{Logger: e.logger}
	}
	if e.policies == nil {
		e.policies = policy.NewRegistry("", nil)
	}
	if e.health == nil {
		ev, err := health.NewEvaluator(nil)
		if err != nil {
			return nil, fmt.Errorf("engine: default health rules: %w", err)
		}
		e.health = ev
	}
	if e.obs == nil {
		e.obs = observability.NewNoop()
	}
	return e, nil
}

// lock serializes every operation on one contract.
func (e *Engine) lock(contractID string) func() {
	v, _ := e.locks.LoadOrStore(contractID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Plan returns a copy of the stored plan.
func (e *Engine) Plan(ctx context.Context, contractID string) (*model.Plan, error) {
	return e.load(ctx, contractID)
}

// Transitions lists the actions available to the plan in its current state.
func (e *Engine) Transitions(ctx context.Context, contractID string) ([]fsm.Transition, error) {
	p, err := e.load(ctx, contractID)
	if err != nil {
		return nil, err
	}
	return fsm.Next(p.State), nil
}

func (e *Engine) load(ctx context.Context, contractID string) (*model.Plan, error) {
	p, err := e.plans.Get(ctx, contractID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, contractID)
	}
	if err != nil {
		return nil, fmt.Errorf("load plan %s: %w", contractID, err)
	}
	return p, nil
}

// loadOrNew returns the stored plan, or nil when the contract has none yet.
func (e *Engine) loadOrNew(ctx context.Context, contractID string) (*model.Plan, error) {
	p, err := e.load(ctx, contractID)
	if errors.Is(err, ErrPlanNotFound) {
		return nil, nil
	}
	return p, err
}

func (e *Engine) contract(ctx context.Context, contractID string) (model.ContractSnapshot, model.PolicyCaps, error) {
	c, err := e.contracts.Contract(ctx, contractID)
	if errors.Is(err, store.ErrNotFound) {
		return c, model.PolicyCaps{}, fmt.Errorf("%w: %s", ErrContractNotFound, contractID)
	}
	if err != nil {
		return c, model.PolicyCaps{}, fmt.Errorf("load contract %s: %w", contractID, err)
	}

	caps := e.policies.Caps(ctx, c.Market, c.ContractType)
	if c.MonthlyRate == 0 {
		c.MonthlyRate = caps.IRRMin / 12
	}
	return c, caps, nil
}

// transition fires action on the stored plan under the contract lock.
func (e *Engine) transition(ctx context.Context, contractID string, action model.Action, actor model.Actor, reason string, mutate func(cur, next *model.Plan) error) (*model.Plan, error) {
	unlock := e.lock(contractID)
	defer unlock()

	cur, err := e.load(ctx, contractID)
	if err != nil {
		return nil, err
	}
	return e.transitionLocked(ctx, cur, action, actor, reason, mutate)
}

// transitionLocked checks the edge, lets mutate edit a copy of cur and saves
// it. Any error leaves the stored plan as it was. The caller holds the lock.
func (e *Engine) transitionLocked(ctx context.Context, cur *model.Plan, action model.Action, actor model.Actor, reason string, mutate func(cur, next *model.Plan) error) (*model.Plan, error) {
	to, err := fsm.Check(cur.State, action, actor.Role)
	if err != nil {
		return nil, err
	}

	next := cur.Clone()
	next.State = to
	if mutate != nil {
		if err := mutate(cur, next); err != nil {
			return nil, err
		}
	}
	if err := e.commit(ctx, cur, next, actor, action, reason); err != nil {
		return nil, err
	}
	return next, nil
}

// commit appends the audit entry for cur -> next and saves next.
func (e *Engine) commit(ctx context.Context, cur, next *model.Plan, actor model.Actor, action model.Action, reason string) error {
	changes, err := jsonpatch.Plans(cur, next)
	if err != nil {
		return err
	}

	at := e.now().UTC()
	if !at.After(cur.Audit.UpdatedAt) {
		at = cur.Audit.UpdatedAt.Add(time.Nanosecond)
	}
	next.Audit.UpdatedAt = at
	_, edge := fsm.Lookup(cur.State, action)
	if edge {
		next.Audit.StateChangedAt = at
	}
	next.Audit.Entries = append(next.Audit.Entries, model.AuditEntry{
		ID:      uuid.NewString(),
		At:      at,
		Actor:   actor.ID,
		Role:    actor.Role,
		Action:  action,
		From:    cur.State,
		To:      next.State,
		Reason:  reason,
		Changes: changes,
	})

	if err := e.plans.Save(ctx, next); err != nil {
		return fmt.Errorf("save plan %s: %w", next.ContractID, err)
	}

	if edge {
		e.obs.RecordTransition(ctx, cur.State, next.State, action)
	}
	e.logger.InfoContext(ctx, "plan transition",
		"contract_id", next.ContractID,
		"action", action,
		"from", cur.State,
		"to", next.State,
		"actor", actor.ID,
		"role", actor.Role,
		"version", next.Version,
	)
	return nil
}

// usage returns the plan's counters for the current calendar year.
func (e *Engine) usage(p *model.Plan) model.Usage {
	return p.Used.In(e.now().UTC().Year())
}

func (e *Engine) usageExhausted(p *model.Plan) bool {
	return p.Policy.AnnualLimit > 0 && e.usage(p).Total() >= p.Policy.AnnualLimit
}
