package collab

import (
	"context"
	"log/slog"

	"restructure-engine/internal/model"
)

// HTTPNotifier posts notices to the notification service.
type HTTPNotifier struct {
	client
}

func NewHTTPNotifier(baseURL string) *HTTPNotifier {
	return &HTTPNotifier{client: newClient(baseURL)}
}

func (n *HTTPNotifier) Notify(ctx context.Context, notice Notice) (model.Notifications, error) {
	var out model.Notifications
	if err := n.post(ctx, "/v1/notifications", notice, &out); err != nil {
		return model.Notifications{}, err
	}
	return out, nil
}

// LogNotifier only logs notices. No channel is reported as reached.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(ctx context.Context, notice Notice) (model.Notifications, error) {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "protection notice",
		"contract_id", notice.ContractID,
		"event", notice.Event,
		"state", notice.State,
		"scenario_type", notice.Scenario,
	)
	return model.Notifications{}, nil
}
