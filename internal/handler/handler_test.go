package handler

import (
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"restructure-engine/internal/engine"
	"restructure-engine/internal/model"
	"restructure-engine/internal/policy"
	"restructure-engine/internal/store"
)

func newTestHandler(t *testing.T, rps float64) *Handler {
	t.Helper()
	mem := store.NewMemory()
	mem.PutContract(model.ContractSnapshot{
		ContractID:     "C-1",
		ClientID:       "client-1",
		CurrentBalance: 320000,
		BasePayment:    10500,
		RemainingTerm:  36,
		Market:         policy.MarketAguascalientes,
	})
	e, err := engine.New(engine.Deps{Plans: mem, Contracts: mem, Schedules: mem})
	require.NoError(t, err)
	return New(e, rps, nil)
}

func do(h *Handler, method, path, role, body string) *fasthttp.RequestCtx {
	var req fasthttp.Request
	req.Header.SetMethod(method)
	req.SetRequestURI(path)
	if role != "" {
		req.Header.Set("X-Actor-Role", role)
		req.Header.Set("X-Actor-ID", role+"-1")
	}
	if body != "" {
		req.SetBodyString(body)
	}

	var ctx fasthttp.RequestCtx
	ctx.Init(&req, nil, nil)
	h.Handle(&ctx)
	return &ctx
}

func decodeBody(t *testing.T, ctx *fasthttp.RequestCtx, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), v), string(ctx.Response.Body()))
}

func TestHealthz(t *testing.T) {
	h := newTestHandler(t, 0)
	ctx := do(h, fasthttp.MethodGet, "/healthz", "", "")
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, "application/json", string(ctx.Response.Header.ContentType()))
}

func TestUnknownRouteAndMethod(t *testing.T) {
	h := newTestHandler(t, 0)
	assert.Equal(t, fasthttp.StatusNotFound, do(h, fasthttp.MethodPost, "/v1/nope", "", "{}").Response.StatusCode())
	assert.Equal(t, fasthttp.StatusMethodNotAllowed, do(h, fasthttp.MethodDelete, "/v1/protection/simulate", "", "").Response.StatusCode())
}

func TestInvalidBody(t *testing.T) {
	h := newTestHandler(t, 0)
	ctx := do(h, fasthttp.MethodPost, "/v1/protection/simulate", "client", "{not json")
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())

	var e model.ErrorResponse
	decodeBody(t, ctx, &e)
	assert.Equal(t, "INVALID_REQUEST", e.Code)
	assert.Equal(t, fasthttp.StatusBadRequest, e.Status)
}

func TestSimulateSelectApproveFlow(t *testing.T) {
	h := newTestHandler(t, 0)

	ctx := do(h, fasthttp.MethodPost, "/v1/protection/simulate", "client",
		`{"contract_id":"C-1","months_affected":3,"types":["DEFER"]}`)
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode(), string(ctx.Response.Body()))
	var sim model.SimulateResult
	decodeBody(t, ctx, &sim)
	require.Len(t, sim.Scenarios, 1)
	assert.Equal(t, model.Defer, sim.Scenarios[0].Type)
	assert.True(t, sim.EligibilityCheck.IsEligible)

	// Wrong role is rejected before anything changes.
	ctx = do(h, fasthttp.MethodPost, "/v1/protection/select", "admin",
		`{"contract_id":"C-1","scenario_id":"`+sim.Scenarios[0].ID+`"}`)
	assert.Equal(t, fasthttp.StatusForbidden, ctx.Response.StatusCode())

	ctx = do(h, fasthttp.MethodPost, "/v1/protection/select", "client",
		`{"contract_id":"C-1","scenario_id":"old"}`)
	assert.Equal(t, fasthttp.StatusConflict, ctx.Response.StatusCode())
	var e model.ErrorResponse
	decodeBody(t, ctx, &e)
	assert.Equal(t, "STALE_SCENARIO", e.Code)

	ctx = do(h, fasthttp.MethodPost, "/v1/protection/select", "client",
		`{"contract_id":"C-1","scenario_id":"`+sim.Scenarios[0].ID+`","scenario_set_id":"`+sim.ScenarioSetID+`"}`)
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode(), string(ctx.Response.Body()))
	var tr model.TransitionResult
	decodeBody(t, ctx, &tr)
	assert.Equal(t, model.StatePendingApproval, tr.NewState)

	ctx = do(h, fasthttp.MethodPost, "/v1/protection/deny", "admin", `{"contract_id":"C-1"}`)
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
	decodeBody(t, ctx, &e)
	assert.Equal(t, "REASON_REQUIRED", e.Code)

	ctx = do(h, fasthttp.MethodPost, "/v1/protection/approve", "admin", `{"contract_id":"C-1","notes":"fine"}`)
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())

	ctx = do(h, fasthttp.MethodPost, "/v1/protection/signing-session", "client", `{"contract_id":"C-1"}`)
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	var sess model.SigningSession
	decodeBody(t, ctx, &sess)
	assert.NotEmpty(t, sess.SessionID)

	ctx = do(h, fasthttp.MethodGet, "/v1/protection/plan/C-1", "", "")
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	var p model.Plan
	decodeBody(t, ctx, &p)
	assert.Equal(t, model.StateReadyToSign, p.State)
	assert.Equal(t, "admin-1", p.Audit.ApprovedBy)
	assert.Equal(t, sess.SessionID, p.SigningSessionID)

	ctx = do(h, fasthttp.MethodGet, "/v1/protection/plan/C-1/transitions", "", "")
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	var ts []transitionView
	decodeBody(t, ctx, &ts)
	assert.Len(t, ts, 2)
}

func TestInvalidTransitionIsConflict(t *testing.T) {
	h := newTestHandler(t, 0)
	do(h, fasthttp.MethodPost, "/v1/protection/simulate", "client", `{"contract_id":"C-1","months_affected":3}`)

	ctx := do(h, fasthttp.MethodPost, "/v1/protection/apply", "system", `{"contract_id":"C-1"}`)
	assert.Equal(t, fasthttp.StatusConflict, ctx.Response.StatusCode())
	var e model.ErrorResponse
	decodeBody(t, ctx, &e)
	assert.Equal(t, "INVALID_TRANSITION", e.Code)
}

func TestPlanNotFound(t *testing.T) {
	h := newTestHandler(t, 0)
	ctx := do(h, fasthttp.MethodGet, "/v1/protection/plan/C-404", "", "")
	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
}

func TestAdjust(t *testing.T) {
	h := newTestHandler(t, 0)
	ctx := do(h, fasthttp.MethodPost, "/v1/protection/adjust", "", `{"original_payment":10500,"original_term":36,"new_rate":0.18}`)
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	var adj model.AdjustResult
	decodeBody(t, ctx, &adj)
	assert.InDelta(t, 10500, adj.MPrime, 0.01)
	assert.Equal(t, 36, adj.NPrime)
	assert.True(t, adj.Feasible)

	ctx = do(h, fasthttp.MethodPost, "/v1/protection/adjust", "", `{"original_payment":0,"original_term":36,"new_rate":0.18}`)
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
}

func TestHealthEventsAreRateLimited(t *testing.T) {
	h := newTestHandler(t, 1)
	body := `{"type":"downtime","contract_id":"C-1","data":{"hours":72}}`

	ctx := do(h, fasthttp.MethodPost, "/v1/health/events", "", body)
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode(), string(ctx.Response.Body()))
	var res model.HealthResult
	decodeBody(t, ctx, &res)
	assert.Equal(t, model.HealthEligible, res.Result)

	ctx = do(h, fasthttp.MethodPost, "/v1/health/events", "", body)
	assert.Equal(t, fasthttp.StatusTooManyRequests, ctx.Response.StatusCode())

	// Other contracts have their own bucket.
	ctx = do(h, fasthttp.MethodPost, "/v1/health/events", "", `{"type":"downtime","contract_id":"C-2","data":{"hours":72}}`)
	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
}

func TestLimiterDropsIdleVisitors(t *testing.T) {
	l := newLimiter(1, 1)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))

	now = now.Add(visitorTTL + sweepInterval)
	assert.True(t, l.Allow("b"))
	assert.Len(t, l.visitors, 1)
}

func TestSimulateRejectsWindowBeyondTerm(t *testing.T) {
	h := newTestHandler(t, 0)
	ctx := do(h, fasthttp.MethodPost, "/v1/protection/simulate", "client",
		`{"contract_id":"C-1","months_affected":1099511627776}`)
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
	var e model.ErrorResponse
	decodeBody(t, ctx, &e)
	assert.Equal(t, "INVALID_REQUEST", e.Code)
}

func TestEligibilityAndHistory(t *testing.T) {
	h := newTestHandler(t, 0)

	ctx := do(h, fasthttp.MethodGet, "/v1/protection/eligibility/C-1", "", "")
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode(), string(ctx.Response.Body()))
	var st model.EligibilityStatus
	decodeBody(t, ctx, &st)
	assert.True(t, st.IsEligible)
	assert.Equal(t, 3, st.UsageRemaining.Defer)
	assert.Zero(t, st.UsageRemaining.Collective)

	ctx = do(h, fasthttp.MethodGet, "/v1/protection/eligibility/C-404", "", "")
	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())

	ctx = do(h, fasthttp.MethodGet, "/v1/protection/history/C-1", "", "")
	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())

	do(h, fasthttp.MethodPost, "/v1/protection/simulate", "client", `{"contract_id":"C-1","months_affected":3}`)
	ctx = do(h, fasthttp.MethodGet, "/v1/protection/history/C-1", "", "")
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	var hist []model.HistoryEntry
	decodeBody(t, ctx, &hist)
	assert.Empty(t, hist)

	ctx = do(h, fasthttp.MethodGet, "/v1/protection/history/C-1/extra", "", "")
	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
}

func TestValidateScenario(t *testing.T) {
	h := newTestHandler(t, 0)

	ctx := do(h, fasthttp.MethodPost, "/v1/protection/simulate", "client",
		`{"contract_id":"C-1","months_affected":3,"types":["STEPDOWN"]}`)
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	var sim model.SimulateResult
	decodeBody(t, ctx, &sim)
	require.Len(t, sim.Scenarios, 1)

	ctx = do(h, fasthttp.MethodPost, "/v1/protection/validate", "client",
		`{"contract_id":"C-1","scenario":{"id":"`+sim.Scenarios[0].ID+`"}}`)
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode(), string(ctx.Response.Body()))
	var res model.ValidationResult
	decodeBody(t, ctx, &res)
	assert.Equal(t, sim.Scenarios[0].Eligible, res.IsValid)
	assert.Equal(t, model.StepDown, res.Adjusted.Type)
	assert.Empty(t, res.Warnings)

	ctx = do(h, fasthttp.MethodPost, "/v1/protection/validate", "client",
		`{"contract_id":"C-1","scenario":{"type":"DEFER","m_prime":12000,"n_prime":100000}}`)
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
}
