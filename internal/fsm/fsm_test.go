package fsm

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restructure-engine/internal/model"
)

func TestCheckHappyPath(t *testing.T) {
	steps := []struct {
		action model.Action
		role   model.Role
		want   model.State
	}{
		{model.ActionTrigger, model.RoleSystem, model.StateEligible},
		{model.ActionSelectScenario, model.RoleClient, model.StatePendingApproval},
		{model.ActionApprove, model.RoleAdmin, model.StateReadyToSign},
		{model.ActionSignDocument, model.RoleClient, model.StateSigned},
		{model.ActionApplyChanges, model.RoleSystem, model.StateApplied},
		{model.ActionResetEligibility, model.RoleSystem, model.StateIdle},
	}

	state := model.StateIdle
	for _, step := range steps {
		next, err := Check(state, step.action, step.role)
		require.NoError(t, err, "%s from %s", step.action, state)
		assert.Equal(t, step.want, next)
		state = next
	}
}

func TestCheckInvalidTransition(t *testing.T) {
	_, err := Check(model.StateIdle, model.ActionApprove, model.RoleAdmin)

	var invalid *InvalidTransitionError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, model.StateIdle, invalid.From)
	assert.Equal(t, model.StateReadyToSign, invalid.To)
	assert.Equal(t, model.ActionApprove, invalid.Action)
	assert.Contains(t, err.Error(), "IDLE -> READY_TO_SIGN via approve")
}

func TestCheckRoleGuard(t *testing.T) {
	_, err := Check(model.StatePendingApproval, model.ActionApprove, model.RoleClient)

	var roleErr *RoleError
	require.True(t, errors.As(err, &roleErr))
	assert.Equal(t, model.RoleAdmin, roleErr.Want)
	assert.Equal(t, model.RoleClient, roleErr.Got)
}

func TestExpireWindowCancelsPendingStates(t *testing.T) {
	for _, from := range []model.State{model.StateEligible, model.StatePendingApproval, model.StateReadyToSign} {
		next, err := Check(from, model.ActionExpireWindow, model.RoleSystem)
		require.NoError(t, err, from)
		assert.Equal(t, model.StateExpired, next)
	}

	_, err := Check(model.StateSigned, model.ActionExpireWindow, model.RoleSystem)
	assert.Error(t, err)
}

func TestTableIsDeterministic(t *testing.T) {
	seen := map[edge]bool{}
	for _, tr := range Table() {
		e := edge{tr.From, tr.Action}
		assert.False(t, seen[e], "duplicate edge %v", e)
		seen[e] = true
	}
	assert.Len(t, Next(model.StatePendingApproval), 3)
	assert.Len(t, Next(model.StateSigned), 1)
}

func TestCheckRejectsEveryPairOutsideTheTable(t *testing.T) {
	properties := gopter.NewProperties(nil)

	genState := gen.IntRange(0, len(model.States)-1).Map(func(i int) model.State { return model.States[i] })
	genAction := gen.IntRange(0, len(model.Actions)-1).Map(func(i int) model.Action { return model.Actions[i] })
	roles := []model.Role{model.RoleSystem, model.RoleClient, model.RoleAdmin}
	genRole := gen.IntRange(0, len(roles)-1).Map(func(i int) model.Role { return roles[i] })

	properties.Property("only table edges with the right role succeed", prop.ForAll(
		func(from model.State, action model.Action, role model.Role) bool {
			next, err := Check(from, action, role)
			tr, ok := Lookup(from, action)
			switch {
			case !ok:
				var invalid *InvalidTransitionError
				return errors.As(err, &invalid) && next == ""
			case tr.Role != role:
				var roleErr *RoleError
				return errors.As(err, &roleErr) && next == ""
			default:
				return err == nil && next == tr.To
			}
		},
		genState, genAction, genRole,
	))

	properties.TestingRun(t)
}
