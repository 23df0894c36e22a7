// Package fsm holds the protection plan transition table and its guards.
package fsm

import (
	"fmt"

	"restructure-engine/internal/model"
)

// Transition is one legal edge of the lifecycle.
type Transition struct {
	From   model.State
	To     model.State
	Action model.Action
	Role   model.Role
}

var table = []Transition{
	{model.StateIdle, model.StateEligible, model.ActionTrigger, model.RoleSystem},
	{model.StateEligible, model.StatePendingApproval, model.ActionSelectScenario, model.RoleClient},
	{model.StatePendingApproval, model.StateReadyToSign, model.ActionApprove, model.RoleAdmin},
	{model.StatePendingApproval, model.StateRejected, model.ActionDeny, model.RoleAdmin},
	{model.StateReadyToSign, model.StateSigned, model.ActionSignDocument, model.RoleClient},
	{model.StateSigned, model.StateApplied, model.ActionApplyChanges, model.RoleSystem},
	{model.StateApplied, model.StateIdle, model.ActionResetEligibility, model.RoleSystem},
	{model.StateEligible, model.StateExpired, model.ActionExpireWindow, model.RoleSystem},
	{model.StateRejected, model.StateIdle, model.ActionCooldown, model.RoleSystem},
	{model.StateExpired, model.StateIdle, model.ActionResetAfterExpiry, model.RoleSystem},

	// Pending approvals and unsigned plans time out through the same action.
	{model.StatePendingApproval, model.StateExpired, model.ActionExpireWindow, model.RoleSystem},
	{model.StateReadyToSign, model.StateExpired, model.ActionExpireWindow, model.RoleSystem},
}

type edge struct {
	from   model.State
	action model.Action
}

var index = func() map[edge]Transition {
	m := make(map[edge]Transition, len(table))
	for _, t := range table {
		m[edge{t.From, t.Action}] = t
	}
	return m
}()

// InvalidTransitionError reports an action fired from a state that has no edge for it.
type InvalidTransitionError struct {
	From   model.State
	To     model.State
	Action model.Action
}

func (e *InvalidTransitionError) Error() string {
	if e.To == "" {
		return fmt.Sprintf("invalid transition: %s is not allowed from %s", e.Action, e.From)
	}
	return fmt.Sprintf("invalid transition: %s -> %s via %s", e.From, e.To, e.Action)
}

// RoleError reports a legal transition requested by the wrong kind of actor.
type RoleError struct {
	Action model.Action
	Want   model.Role
	Got    model.Role
}

func (e *RoleError) Error() string {
	return fmt.Sprintf("action %s requires role %s, got %q", e.Action, e.Want, e.Got)
}

// Lookup finds the edge for an action fired from a state.
func Lookup(from model.State, action model.Action) (Transition, bool) {
	t, ok := index[edge{from, action}]
	return t, ok
}

// Check resolves the target state for action from the given state, enforcing
// the role guard. A missing edge yields an *InvalidTransitionError whose To is
// the state the action leads to elsewhere in the table, when there is one.
func Check(from model.State, action model.Action, role model.Role) (model.State, error) {
	t, ok := Lookup(from, action)
	if !ok {
		return "", &InvalidTransitionError{From: from, To: targetOf(action), Action: action}
	}
	if t.Role != role {
		return "", &RoleError{Action: action, Want: t.Role, Got: role}
	}
	return t.To, nil
}

// Next lists the actions available from a state.
func Next(from model.State) []Transition {
	var out []Transition
	for _, t := range table {
		if t.From == from {
			out = append(out, t)
		}
	}
	return out
}

// Table returns a copy of every legal transition.
func Table() []Transition {
	return append([]Transition(nil), table...)
}

func targetOf(action model.Action) model.State {
	for _, t := range table {
		if t.Action == action {
			return t.To
		}
	}
	return ""
}
