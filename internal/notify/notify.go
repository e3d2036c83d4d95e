// Package notify is the outbound notification gateway. Dispatch is
// fire-and-forget: implementations log failures and never surface them to
// the operation that triggered the notification.
package notify

import (
	"context"
	"log/slog"
)

const (
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// Dispatch is one notification request.
type Dispatch struct {
	// Recipient selector, e.g. "flat:A-101", "guards", "admins". Resolution
	// to device tokens or addresses is the gateway's problem.
	Recipient string
	Title     string
	Body      string
	// Opaque payload forwarded to the client app.
	Data map[string]string
}

type Gateway interface {
	Dispatch(ctx context.Context, d Dispatch)
}

// LogGateway just logs dispatches. Default in dev and in tests.
type LogGateway struct {
	logger *slog.Logger
}

func NewLogGateway() *LogGateway {
	return &LogGateway{logger: slog.With("component", "notify")}
}

func (g *LogGateway) Dispatch(ctx context.Context, d Dispatch) {
	g.logger.Info("Notification dispatched",
		"recipient", d.Recipient,
		"title", d.Title,
		"priority", d.Data["priority"],
	)
}
