package handler

import (
	"errors"

	"github.com/valyala/fasthttp"

	"restructure-engine/internal/collab"
	"restructure-engine/internal/engine"
	"restructure-engine/internal/fsm"
)

var sentinels = []struct {
	err    error
	status int
	code   string
}{
	{engine.ErrInvalidRequest, fasthttp.StatusBadRequest, "INVALID_REQUEST"},
	{engine.ErrReasonRequired, fasthttp.StatusBadRequest, "REASON_REQUIRED"},
	{engine.ErrPlanNotFound, fasthttp.StatusNotFound, "PLAN_NOT_FOUND"},
	{engine.ErrContractNotFound, fasthttp.StatusNotFound, "CONTRACT_NOT_FOUND"},
	{engine.ErrStaleScenario, fasthttp.StatusConflict, "STALE_SCENARIO"},
	{engine.ErrSessionMismatch, fasthttp.StatusConflict, "SESSION_MISMATCH"},
	{engine.ErrWrongState, fasthttp.StatusConflict, "WRONG_STATE"},
	{engine.ErrVersionConflict, fasthttp.StatusConflict, "VERSION_CONFLICT"},
	{engine.ErrScenarioNotEligible, fasthttp.StatusUnprocessableEntity, "SCENARIO_NOT_ELIGIBLE"},
	{engine.ErrUsageExhausted, fasthttp.StatusUnprocessableEntity, "USAGE_EXHAUSTED"},
	{collab.ErrUnavailable, fasthttp.StatusBadGateway, "COLLABORATOR_UNAVAILABLE"},
}

// classify maps an engine error to its HTTP status and error code.
func classify(err error) (int, string) {
	var invalid *fsm.InvalidTransitionError
	if errors.As(err, &invalid) {
		return fasthttp.StatusConflict, "INVALID_TRANSITION"
	}
	var role *fsm.RoleError
	if errors.As(err, &role) {
		return fasthttp.StatusForbidden, "ROLE_NOT_ALLOWED"
	}
	for _, s := range sentinels {
		if errors.Is(err, s.err) {
			return s.status, s.code
		}
	}
	return fasthttp.StatusInternalServerError, "INTERNAL"
}
