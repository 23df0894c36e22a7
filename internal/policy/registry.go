package policy

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/valyala/fasthttp"

	"restructure-engine/internal/model"
)

const fetchTimeout = 2 * time.Second

// Registry resolves policy caps per market and contract type. Caps come from a
// remote policy service when one is configured, cached per key; otherwise,
// or when the remote fails, from the configured overrides and then the
// built-in defaults.
type Registry struct {
	url       string
	client    *fasthttp.Client
	cache     sync.Map
	overrides map[string]model.PolicyCaps
	logger    *slog.Logger
}

type capsResponse struct {
	DifMax         int      `json:"dif_max"`
	ExtendMax      int      `json:"extend_max"`
	StepDownMaxPct float64  `json:"step_down_max_pct"`
	IRRMin         float64  `json:"irr_min"`
	MMin           float64  `json:"m_min"`
	AnnualLimit    int      `json:"annual_limit"`
	AvailableTypes []string `json:"available_types"`
	ExpiryHours    float64  `json:"expiry_hours"`
}

// NewRegistry builds a registry. An empty url disables remote lookups.
func NewRegistry(url string, overrides []model.PolicyCaps) *Registry {
	r := &Registry{
		url:       strings.TrimRight(url, "/"),
		overrides: make(map[string]model.PolicyCaps, len(overrides)),
		logger:    slog.Default().With("component", "policy_registry"),
	}
	for _, c := range overrides {
		r.overrides[key(c.Market, c.ContractType)] = c.Clone()
	}
	if r.url != "" {
		r.client = &fasthttp.Client{
			MaxConnsPerHost:     100,
			MaxIdleConnDuration: 90 * time.Second,
			ReadTimeout:         fetchTimeout,
			WriteTimeout:        fetchTimeout,
		}
	}
	return r
}

func key(market, contractType string) string {
	if contractType == "" {
		contractType = ContractIndividual
	}
	return strings.ToLower(market) + ":" + strings.ToLower(contractType)
}

// Caps returns the caps for one market and contract type. It never fails:
// remote errors fall back to the local caps and are logged. Fallback caps
// are not cached, so the next lookup asks the remote again.
func (r *Registry) Caps(ctx context.Context, market, contractType string) model.PolicyCaps {
	k := key(market, contractType)
	if c, ok := r.cache.Load(k); ok {
		return c.(model.PolicyCaps).Clone()
	}

	caps := r.local(market, contractType)
	if r.url != "" {
		remote, err := r.fetch(market, contractType, caps)
		if err != nil {
			r.logger.WarnContext(ctx, "policy fetch failed, using local caps",
				"market", market, "contract_type", contractType, "error", err)
			return caps.Clone()
		}
		caps = remote
	}
	r.cache.Store(k, caps)
	return caps.Clone()
}

// Prefetch warms the cache for several keys concurrently.
func (r *Registry) Prefetch(ctx context.Context, keys [][2]string) {
	if len(keys) == 1 {
		r.Caps(ctx, keys[0][0], keys[0][1])
		return
	}

	var wg sync.WaitGroup
	for _, k := range keys {
		wg.Add(1)
		go func(market, contractType string) {
			defer wg.Done()
			r.Caps(ctx, market, contractType)
		}(k[0], k[1])
	}
	wg.Wait()
}

// Invalidate drops cached caps so the next lookup fetches again.
func (r *Registry) Invalidate() {
	r.cache.Range(func(k, _ any) bool {
		r.cache.Delete(k)
		return true
	})
}

func (r *Registry) local(market, contractType string) model.PolicyCaps {
	if c, ok := r.overrides[key(market, contractType)]; ok {
		return c.Clone()
	}
	return DefaultCaps(market, contractType)
}

func (r *Registry) fetch(market, contractType string, base model.PolicyCaps) (model.PolicyCaps, error) {
	if contractType == "" {
		contractType = ContractIndividual
	}
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(fmt.Sprintf("%s/v1/protection/policy/%s/%s", r.url, contractType, market))
	req.Header.SetMethod(fasthttp.MethodGet)

	if err := r.client.DoTimeout(req, resp, fetchTimeout); err != nil {
		return base, fmt.Errorf("request policy: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return base, fmt.Errorf("policy service returned status %d", resp.StatusCode())
	}

	var cr capsResponse
	if err := json.Unmarshal(resp.Body(), &cr); err != nil {
		return base, fmt.Errorf("decode policy: %w", err)
	}
	return cr.merge(base)
}

func (cr capsResponse) merge(base model.PolicyCaps) (model.PolicyCaps, error) {
	caps := base.Clone()
	if cr.DifMax > 0 {
		caps.DifMax = cr.DifMax
	}
	if cr.ExtendMax > 0 {
		caps.ExtendMax = cr.ExtendMax
	}
	if cr.StepDownMaxPct > 0 {
		if cr.StepDownMaxPct > 1 {
			return base, fmt.Errorf("step_down_max_pct %v outside 0..1", cr.StepDownMaxPct)
		}
		caps.StepDownMaxPct = cr.StepDownMaxPct
	}
	if cr.IRRMin > 0 {
		caps.IRRMin = cr.IRRMin
	}
	if cr.MMin > 0 {
		caps.MMin = cr.MMin
	}
	if cr.AnnualLimit > 0 {
		caps.AnnualLimit = cr.AnnualLimit
	}
	if cr.ExpiryHours > 0 {
		caps.ExpiryWindow = time.Duration(cr.ExpiryHours * float64(time.Hour))
	}
	if len(cr.AvailableTypes) > 0 {
		types := make([]model.ScenarioType, 0, len(cr.AvailableTypes))
		for _, name := range cr.AvailableTypes {
			t, err := model.ParseScenarioType(name)
			if err != nil {
				return base, err
			}
			types = append(types, t)
		}
		caps.AvailableTypes = types
	}
	return caps, nil
}
