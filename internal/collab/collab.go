// Package collab talks to the signing provider and the notification service.
package collab

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/valyala/fasthttp"

	"restructure-engine/internal/model"
)

const requestTimeout = 5 * time.Second

// ErrUnavailable wraps every transport or non-2xx failure from a collaborator.
var ErrUnavailable = errors.New("collaborator unavailable")

// Signer opens an e-signature session for a selected scenario.
type Signer interface {
	CreateSession(ctx context.Context, contractID string, t model.ScenarioType) (model.SigningSession, error)
}

// Notice is what the notification service is told about a plan event.
type Notice struct {
	ContractID string             `json:"contract_id"`
	ClientID   string             `json:"client_id,omitempty"`
	Event      model.Action       `json:"event"`
	State      model.State        `json:"state"`
	Scenario   model.ScenarioType `json:"scenario_type"`
	Payment    float64            `json:"new_payment,omitempty"`
	Term       int                `json:"new_term,omitempty"`
	Effective  string             `json:"effective_date,omitempty"`
}

// Notifier fans a notice out to the client's channels and reports which were reached.
type Notifier interface {
	Notify(ctx context.Context, n Notice) (model.Notifications, error)
}

type client struct {
	base string
	http *fasthttp.Client
}

func newClient(base string) client {
	return client{
		base: strings.TrimRight(base, "/"),
		http: &fasthttp.Client{
			MaxConnsPerHost:     100,
			MaxIdleConnDuration: 90 * time.Second,
			ReadTimeout:         requestTimeout,
			WriteTimeout:        requestTimeout,
		},
	}
}

// post sends body as JSON and decodes a 2xx response into out.
func (c client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.base + path)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(payload)

	timeout := requestTimeout
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}
	if err := c.http.DoTimeout(req, resp, timeout); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, path, err)
	}
	if code := resp.StatusCode(); code < http.StatusOK || code >= http.StatusMultipleChoices {
		return fmt.Errorf("%w: %s returned %d: %s", ErrUnavailable, path, code, resp.Body())
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
