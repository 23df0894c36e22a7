package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restructure-engine/internal/model"
	"restructure-engine/internal/scenarios"
)

func TestEligibilityWithoutPlan(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.engine.Eligibility(ctx, contractID)
	require.NoError(t, err)
	assert.True(t, res.IsEligible)
	assert.Equal(t, model.StateIdle, res.State)
	assert.Equal(t, 3, res.RestructuresAvailable)
	assert.Equal(t, model.Usage{Defer: 3, StepDown: 3, Recalendar: 3}, res.UsageRemaining)
	assert.Empty(t, res.NextEligibilityDate)

	_, err = h.engine.Plan(ctx, contractID)
	assert.ErrorIs(t, err, ErrPlanNotFound)

	_, err = h.engine.Eligibility(ctx, "nope")
	assert.ErrorIs(t, err, ErrContractNotFound)
}

func TestEligibilityDuringCycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sim := h.simulate(t, model.Defer)

	res, err := h.engine.Eligibility(ctx, contractID)
	require.NoError(t, err)
	assert.True(t, res.IsEligible)
	assert.Equal(t, model.StateEligible, res.State)

	_, err = h.engine.Select(ctx, model.SelectRequest{ContractID: contractID, ScenarioID: sim.Scenarios[0].ID, Actor: client})
	require.NoError(t, err)

	res, err = h.engine.Eligibility(ctx, contractID)
	require.NoError(t, err)
	assert.False(t, res.IsEligible)
	require.Len(t, res.Reasons, 1)
	assert.Contains(t, res.Reasons[0], string(model.StatePendingApproval))
}

func TestUsageResetsWithTheYear(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.simulate(t, model.Defer)

	p := h.plan(t)
	p.Used = model.Usage{Defer: 2, StepDown: 1, Year: 2026}
	require.NoError(t, h.mem.Save(ctx, p))

	res, err := h.engine.Eligibility(ctx, contractID)
	require.NoError(t, err)
	assert.False(t, res.IsEligible)
	assert.Equal(t, "2027-01-01", res.NextEligibilityDate)
	assert.Equal(t, model.Usage{}, res.UsageRemaining)
	assert.Zero(t, res.RestructuresAvailable)

	h.clock.Advance(300 * 24 * time.Hour)

	res, err = h.engine.Eligibility(ctx, contractID)
	require.NoError(t, err)
	assert.True(t, res.IsEligible)
	assert.Zero(t, res.RestructuresUsed)
	assert.Empty(t, res.NextEligibilityDate)

	sim := h.simulate(t, model.Defer)
	assert.Equal(t, 3, sim.EligibilityCheck.RestructuresAvailable)
	_, err = h.engine.Select(ctx, model.SelectRequest{ContractID: contractID, ScenarioID: sim.Scenarios[0].ID, Actor: client})
	require.NoError(t, err)
}

func TestHistory(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.History(ctx, contractID)
	assert.ErrorIs(t, err, ErrPlanNotFound)

	p := h.toSigned(t)
	list, err := h.engine.History(ctx, contractID)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = h.engine.Apply(ctx, model.ApplyRequest{ContractID: contractID, EffectiveDate: "2026-04-01", Actor: model.System})
	require.NoError(t, err)

	list, err = h.engine.History(ctx, contractID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	got := list[0]
	assert.Equal(t, model.Defer, got.Type)
	assert.Equal(t, p.Selected.ID, got.ScenarioID)
	assert.Equal(t, "2026-04-01", got.EffectiveDate)
	assert.Equal(t, 3, got.Months)
	assert.Equal(t, p.Selected.NPrime, got.NewTerm)
	assert.InDelta(t, p.Selected.Impact.PaymentChange, got.PaymentChange, 1e-9)
	assert.Equal(t, model.HistoryActive, got.Status)

	_, err = h.engine.ResetEligibility(ctx, model.TransitionRequest{ContractID: contractID, Actor: model.System})
	require.NoError(t, err)
	h.clock.Advance(8 * 365 * 24 * time.Hour)

	list, err = h.engine.History(ctx, contractID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.HistoryCompleted, list[0].Status)
	assert.Equal(t, 2026, h.plan(t).Used.Year)
}

func TestValidateStoredScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sim := h.simulate(t)
	require.NotEmpty(t, sim.Scenarios)

	for _, s := range sim.Scenarios {
		res, err := h.engine.Validate(ctx, model.ValidateRequest{ContractID: contractID, Scenario: model.Scenario{ID: s.ID}, Actor: client})
		require.NoError(t, err)
		assert.Equal(t, s.Eligible, res.IsValid, s.Type.String())
		assert.Len(t, res.Errors, len(s.Warnings), s.Type.String())
		assert.Empty(t, res.Warnings, s.Type.String())
		assert.Equal(t, s.ID, res.Adjusted.ID)
		assert.InDelta(t, s.AnnualIRR, res.Adjusted.AnnualIRR, 1e-9)
	}

	before := h.plan(t)
	assert.Len(t, before.Audit.Entries, 1)
}

func TestValidateSubmittedScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	s := model.Scenario{
		Type:   model.StepDown,
		MPrime: 9000,
		NPrime: 40,
		Params: model.ScenarioParams{Months: 3, Alpha: 0.6, Feasible: true},
	}
	res, err := h.engine.Validate(ctx, model.ValidateRequest{ContractID: contractID, Scenario: s, Actor: client})
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "not part of the current simulation")
	assert.True(t, res.Adjusted.HasWarning(model.CodeCapExceeded))
	found := false
	for _, msg := range res.Errors {
		found = found || strings.Contains(msg, "payment reduction of 60%")
	}
	assert.True(t, found, res.Errors)

	s.NPrime = 1 << 40
	_, err = h.engine.Validate(ctx, model.ValidateRequest{ContractID: contractID, Scenario: s, Actor: client})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.ErrorIs(t, err, scenarios.ErrTermRange)

	_, err = h.engine.Validate(ctx, model.ValidateRequest{ContractID: "nope", Scenario: s, Actor: client})
	assert.ErrorIs(t, err, ErrContractNotFound)

	_, err = h.engine.Plan(ctx, contractID)
	assert.ErrorIs(t, err, ErrPlanNotFound)
}
