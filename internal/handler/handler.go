// Package handler exposes the protection engine over HTTP with fasthttp.
package handler

import (
	"context"
	"log/slog"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/valyala/fasthttp"

	"restructure-engine/internal/amortization"
	"restructure-engine/internal/engine"
	"restructure-engine/internal/model"
)

const (
	planPrefix        = "/v1/protection/plan/"
	eligibilityPrefix = "/v1/protection/eligibility/"
	historyPrefix     = "/v1/protection/history/"
)

// Handler routes requests to the engine.
type Handler struct {
	engine  *engine.Engine
	limiter *limiter
	logger  *slog.Logger
}

// New builds a handler. healthRPS bounds health events per contract per
// second; zero or less disables the limit.
func New(e *engine.Engine, healthRPS float64, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		engine: e,
		logger: logger.With("component", "http"),
	}
	if healthRPS > 0 {
		h.limiter = newLimiter(healthRPS, max(1, int(healthRPS)))
	}
	return h
}

// Handle is the fasthttp.RequestHandler for every route.
func (h *Handler) Handle(ctx *fasthttp.RequestCtx) {
	path := string(ctx.Path())

	if ctx.IsGet() {
		switch {
		case path == "/healthz":
			writeJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "ok"})
		case strings.HasPrefix(path, planPrefix):
			h.getPlan(ctx, strings.TrimPrefix(path, planPrefix))
		case strings.HasPrefix(path, eligibilityPrefix):
			h.eligibility(ctx, strings.TrimPrefix(path, eligibilityPrefix))
		case strings.HasPrefix(path, historyPrefix):
			h.history(ctx, strings.TrimPrefix(path, historyPrefix))
		default:
			writeError(ctx, fasthttp.StatusNotFound, "NOT_FOUND", "Unknown route: "+path)
		}
		return
	}

	if !ctx.IsPost() {
		writeError(ctx, fasthttp.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
		return
	}

	switch path {
	case "/v1/protection/simulate":
		h.simulate(ctx)
	case "/v1/protection/select":
		h.selectScenario(ctx)
	case "/v1/protection/approve":
		h.approve(ctx)
	case "/v1/protection/deny":
		h.deny(ctx)
	case "/v1/protection/signing-session":
		h.signingSession(ctx)
	case "/v1/protection/sign":
		h.sign(ctx)
	case "/v1/protection/apply":
		h.apply(ctx)
	case "/v1/protection/expire":
		h.expire(ctx)
	case "/v1/protection/reset":
		h.reset(ctx)
	case "/v1/protection/validate":
		h.validate(ctx)
	case "/v1/protection/adjust":
		h.adjust(ctx)
	case "/v1/health/events":
		h.healthEvent(ctx)
	default:
		writeError(ctx, fasthttp.StatusNotFound, "NOT_FOUND", "Unknown route: "+path)
	}
}

func (h *Handler) getPlan(ctx *fasthttp.RequestCtx, rest string) {
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(ctx, fasthttp.StatusBadRequest, "INVALID_REQUEST", "contract id is required")
		return
	}

	switch sub {
	case "":
		p, err := h.engine.Plan(ctx, id)
		h.respond(ctx, p, err)
	case "transitions":
		ts, err := h.engine.Transitions(ctx, id)
		if err != nil {
			h.respond(ctx, nil, err)
			return
		}
		out := make([]transitionView, len(ts))
		for i, t := range ts {
			out[i] = transitionView{From: t.From, To: t.To, Action: t.Action, Role: t.Role}
		}
		writeJSON(ctx, fasthttp.StatusOK, out)
	default:
		writeError(ctx, fasthttp.StatusNotFound, "NOT_FOUND", "Unknown route: "+string(ctx.Path()))
	}
}

func (h *Handler) eligibility(ctx *fasthttp.RequestCtx, id string) {
	if id == "" || strings.Contains(id, "/") {
		writeError(ctx, fasthttp.StatusNotFound, "NOT_FOUND", "Unknown route: "+string(ctx.Path()))
		return
	}
	res, err := h.engine.Eligibility(ctx, id)
	h.respond(ctx, res, err)
}

func (h *Handler) history(ctx *fasthttp.RequestCtx, id string) {
	if id == "" || strings.Contains(id, "/") {
		writeError(ctx, fasthttp.StatusNotFound, "NOT_FOUND", "Unknown route: "+string(ctx.Path()))
		return
	}
	res, err := h.engine.History(ctx, id)
	h.respond(ctx, res, err)
}

func (h *Handler) validate(ctx *fasthttp.RequestCtx) {
	var req model.ValidateRequest
	if !decode(ctx, &req) {
		return
	}
	req.Actor = actor(ctx)
	res, err := h.engine.Validate(ctx, req)
	h.respond(ctx, res, err)
}

type transitionView struct {
	From   model.State  `json:"from"`
	To     model.State  `json:"to"`
	Action model.Action `json:"action"`
	Role   model.Role   `json:"role"`
}

func (h *Handler) simulate(ctx *fasthttp.RequestCtx) {
	var req model.SimulateRequest
	if !decode(ctx, &req) {
		return
	}
	req.Actor = actor(ctx)
	res, err := h.engine.Simulate(ctx, req)
	h.respond(ctx, res, err)
}

func (h *Handler) selectScenario(ctx *fasthttp.RequestCtx) {
	var req model.SelectRequest
	if !decode(ctx, &req) {
		return
	}
	req.Actor = actor(ctx)
	res, err := h.engine.Select(ctx, req)
	h.respond(ctx, res, err)
}

func (h *Handler) approve(ctx *fasthttp.RequestCtx) {
	var req model.ApproveRequest
	if !decode(ctx, &req) {
		return
	}
	req.Actor = actor(ctx)
	if req.Actor.ID == "" {
		req.Actor.ID = req.ApprovedBy
	}
	res, err := h.engine.Approve(ctx, req)
	h.respond(ctx, res, err)
}

func (h *Handler) deny(ctx *fasthttp.RequestCtx) {
	var req model.DenyRequest
	if !decode(ctx, &req) {
		return
	}
	req.Actor = actor(ctx)
	if req.Actor.ID == "" {
		req.Actor.ID = req.DeniedBy
	}
	res, err := h.engine.Deny(ctx, req)
	h.respond(ctx, res, err)
}

type contractRef struct {
	ContractID string `json:"contract_id"`
}

func (h *Handler) signingSession(ctx *fasthttp.RequestCtx) {
	var req contractRef
	if !decode(ctx, &req) {
		return
	}
	res, err := h.engine.CreateSigningSession(ctx, req.ContractID, actor(ctx))
	h.respond(ctx, res, err)
}

func (h *Handler) sign(ctx *fasthttp.RequestCtx) {
	var req model.SignRequest
	if !decode(ctx, &req) {
		return
	}
	req.Actor = actor(ctx)
	res, err := h.engine.Sign(ctx, req)
	h.respond(ctx, res, err)
}

func (h *Handler) apply(ctx *fasthttp.RequestCtx) {
	var req model.ApplyRequest
	if !decode(ctx, &req) {
		return
	}
	req.Actor = actor(ctx)
	res, err := h.engine.Apply(ctx, req)
	h.respond(ctx, res, err)
}

func (h *Handler) expire(ctx *fasthttp.RequestCtx) {
	var req model.TransitionRequest
	if !decode(ctx, &req) {
		return
	}
	req.Actor = actor(ctx)
	res, err := h.engine.Expire(ctx, req)
	h.respond(ctx, res, err)
}

func (h *Handler) reset(ctx *fasthttp.RequestCtx) {
	var req model.TransitionRequest
	if !decode(ctx, &req) {
		return
	}
	req.Actor = actor(ctx)
	res, err := h.engine.Reset(ctx, req)
	h.respond(ctx, res, err)
}

func (h *Handler) adjust(ctx *fasthttp.RequestCtx) {
	var req model.AdjustRequest
	if !decode(ctx, &req) {
		return
	}
	if req.OriginalPayment <= 0 || req.OriginalTerm <= 0 || req.NewRate < 0 {
		writeError(ctx, fasthttp.StatusBadRequest, "INVALID_REQUEST",
			"original_payment and original_term must be positive and new_rate non-negative")
		return
	}
	adj := amortization.Adjust(amortization.AdjustInput{
		OriginalPayment: req.OriginalPayment,
		OriginalTerm:    req.OriginalTerm,
		NewRate:         req.NewRate,
		TargetPayment:   req.TargetPayment,
	})
	writeJSON(ctx, fasthttp.StatusOK, model.AdjustResult{MPrime: adj.MPrime, NPrime: adj.NPrime, Feasible: adj.Feasible})
}

func (h *Handler) healthEvent(ctx *fasthttp.RequestCtx) {
	var ev model.HealthEvent
	if !decode(ctx, &ev) {
		return
	}
	if h.limiter != nil && !h.limiter.Allow(ev.ContractID) {
		writeError(ctx, fasthttp.StatusTooManyRequests, "RATE_LIMITED", "Too many health events for contract "+ev.ContractID)
		return
	}
	res, err := h.engine.TriggerHealthEvent(ctx, ev)
	h.respond(ctx, res, err)
}

// actor reads the caller identity set by the upstream gateway.
func actor(ctx *fasthttp.RequestCtx) model.Actor {
	return model.Actor{
		ID:   string(ctx.Request.Header.Peek("X-Actor-ID")),
		Role: model.Role(strings.ToLower(string(ctx.Request.Header.Peek("X-Actor-Role")))),
	}
}

func decode(ctx *fasthttp.RequestCtx, v any) bool {
	if err := json.Unmarshal(ctx.PostBody(), v); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "INVALID_REQUEST", "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func (h *Handler) respond(ctx *fasthttp.RequestCtx, v any, err error) {
	if err != nil {
		status, code := classify(err)
		if status >= fasthttp.StatusInternalServerError {
			h.logger.ErrorContext(context.Context(ctx), "request failed",
				"path", string(ctx.Path()), "status", status, "error", err)
		}
		writeError(ctx, status, code, err.Error())
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, v)
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		writeError(ctx, fasthttp.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(status)
	ctx.SetBody(body)
}

func writeError(ctx *fasthttp.RequestCtx, status int, code, message string) {
	body, _ := json.Marshal(model.ErrorResponse{
		Status:  status,
		Code:    code,
		Message: message,
	})
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(status)
	ctx.SetBody(body)
}
