// Package audit writes the append-only security audit trail. Appends are
// best-effort: a failed write is logged and the primary operation carries on.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"visitor-access-control/internal/storage"
)

// Security-relevant action types.
const (
	ActionVisitorCreated  = "visitor_created"
	ActionVisitorApproved = "visitor_approved"
	ActionVisitorDenied   = "visitor_denied"
	ActionVisitorEntered  = "visitor_entered"
	ActionVisitorExited   = "visitor_exited"
	ActionPassIssued      = "pass_issued"
	ActionPassRedeemed    = "pass_redeemed"
	ActionPassRejected    = "pass_rejected"
	ActionPassRevoked     = "pass_revoked"
	ActionHighRiskAlert   = "high_risk_alert"
)

type Writer struct {
	store  storage.Provider
	logger *slog.Logger
}

func NewWriter(store storage.Provider) *Writer {
	return &Writer{
		store:  store,
		logger: slog.With("component", "audit"),
	}
}

// Append records one action. It never returns an error and never blocks the
// caller's result: audit loss is a warning, not a failure.
func (w *Writer) Append(ctx context.Context, actionType, actorID, targetID, societyID string, metadata map[string]string) {
	entry := storage.AuditLogEntry{
		ID:         uuid.NewString(),
		ActionType: actionType,
		ActorID:    actorID,
		TargetID:   targetID,
		SocietyID:  societyID,
		Metadata:   metadata,
		Timestamp:  time.Now().UTC(),
	}

	if err := w.store.AppendAuditEntry(ctx, entry); err != nil {
		w.logger.Warn("Failed to append audit entry",
			"action", actionType,
			"target_id", targetID,
			"error", err,
		)
	}
}
