package model

// State is a protection plan lifecycle state.
type State string

const (
	StateIdle            State = "IDLE"
	StateEligible        State = "ELIGIBLE"
	StatePendingApproval State = "PENDING_APPROVAL"
	StateReadyToSign     State = "READY_TO_SIGN"
	StateSigned          State = "SIGNED"
	StateApplied         State = "APPLIED"
	StateRejected        State = "REJECTED"
	StateExpired         State = "EXPIRED"
)

// States lists every lifecycle state.
var States = []State{
	StateIdle, StateEligible, StatePendingApproval, StateReadyToSign,
	StateSigned, StateApplied, StateRejected, StateExpired,
}

// Action names a lifecycle transition.
type Action string

const (
	ActionTrigger          Action = "trigger"
	ActionSelectScenario   Action = "select_scenario"
	ActionApprove          Action = "approve"
	ActionDeny             Action = "deny"
	ActionSignDocument     Action = "sign_document"
	ActionApplyChanges     Action = "apply_changes"
	ActionResetEligibility Action = "reset_eligibility"
	ActionExpireWindow     Action = "expire_window"
	ActionCooldown         Action = "cooldown_complete"
	ActionResetAfterExpiry Action = "reset_after_expiry"

	// ActionRefreshScenarios is recorded when an ELIGIBLE plan is re-simulated.
	// It is an audit marker, not a state transition.
	ActionRefreshScenarios Action = "refresh_scenarios"

	// ActionOpenSigningSession is recorded when a signing session is attached
	// to a READY_TO_SIGN plan.
	ActionOpenSigningSession Action = "open_signing_session"
)

// Actions lists every transition action.
var Actions = []Action{
	ActionTrigger, ActionSelectScenario, ActionApprove, ActionDeny, ActionSignDocument,
	ActionApplyChanges, ActionResetEligibility, ActionExpireWindow, ActionCooldown, ActionResetAfterExpiry,
}

// Role is the kind of actor allowed to fire a transition.
type Role string

const (
	RoleSystem Role = "system"
	RoleClient Role = "client"
	RoleAdmin  Role = "admin"
)

// Actor identifies who requested an operation.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// System is the actor used for engine-initiated transitions.
var System = Actor{ID: "system", Role: RoleSystem}
