package collab

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"restructure-engine/internal/model"
)

// HTTPSigner creates sessions on a remote e-signature provider.
type HTTPSigner struct {
	client
}

func NewHTTPSigner(baseURL string) *HTTPSigner {
	return &HTTPSigner{client: newClient(baseURL)}
}

type sessionRequest struct {
	ContractID   string             `json:"contract_id"`
	ScenarioType model.ScenarioType `json:"scenario_type"`
}

func (s *HTTPSigner) CreateSession(ctx context.Context, contractID string, t model.ScenarioType) (model.SigningSession, error) {
	var out model.SigningSession
	if err := s.post(ctx, "/v1/signing/sessions", sessionRequest{ContractID: contractID, ScenarioType: t}, &out); err != nil {
		return model.SigningSession{}, err
	}
	if out.SessionID == "" || out.SigningURL == "" {
		return model.SigningSession{}, fmt.Errorf("%w: signing provider returned an empty session", ErrUnavailable)
	}
	return out, nil
}

// LocalSigner issues sessions without a provider, for development and tests.
type LocalSigner struct {
	BaseURL string
}

func (s LocalSigner) CreateSession(_ context.Context, contractID string, t model.ScenarioType) (model.SigningSession, error) {
	id := uuid.NewString()
	base := strings.TrimRight(s.BaseURL, "/")
	if base == "" {
		base = "http://localhost/sign"
	}
	return model.SigningSession{
		SessionID:  id,
		SigningURL: fmt.Sprintf("%s/%s", base, id),
		DocumentID: fmt.Sprintf("%s-%s", contractID, strings.ToLower(t.String())),
	}, nil
}
