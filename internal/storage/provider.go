package storage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"visitor-access-control/internal/config"
)

var (
	// ErrNotFound is returned when the requested entity does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrUnavailable wraps transient backend failures so callers can
	// distinguish "no" from "don't know".
	ErrUnavailable = errors.New("storage unavailable")
)

type Provider interface {
	Close() error
	GetSchemaVersion(ctx context.Context) (int, error)

	// Visitor record methods
	CreateVisitor(ctx context.Context, rec VisitorRecord) error
	GetVisitor(ctx context.Context, id string) (*VisitorRecord, error)
	ListVisitors(ctx context.Context, societyID string, status VisitorStatus) ([]VisitorRecord, error)
	// TransitionVisitor applies t only if the record is still in t.From.
	// Returns false without mutating anything otherwise.
	TransitionVisitor(ctx context.Context, t VisitorTransition) (bool, error)

	// Risk aggregate reads. Best-effort and eventually consistent; callers
	// must tolerate stale counts.
	CountDeniedSince(ctx context.Context, phone string, since time.Time) (int, error)
	CountDistinctFlatsApprovedSince(ctx context.Context, phone string, since time.Time) (int, error)

	// Credential methods
	CreateCredential(ctx context.Context, cred Credential) error
	GetCredential(ctx context.Context, passID string) (*Credential, error)
	ListCredentials(ctx context.Context, activeOnly bool) ([]Credential, error)
	// RedeemCredential is the one strongly-consistent write in the system:
	// a single conditional update that increments scans_used and retires the
	// pass when the limit is hit. Returns false when the precondition
	// (scans_used == expectedScans, still active, limit not reached) no
	// longer holds.
	RedeemCredential(ctx context.Context, passID string, expectedScans int, now time.Time) (bool, error)
	DeactivateCredential(ctx context.Context, passID string) (bool, error)

	// Blacklist methods (read-mostly; lifecycle managed elsewhere)
	IsBlacklisted(ctx context.Context, phone string) (bool, error)
	ListBlacklist(ctx context.Context) ([]BlacklistEntry, error)
	UpsertBlacklistEntry(ctx context.Context, entry BlacklistEntry) error

	// Audit trail methods. Append-only.
	AppendAuditEntry(ctx context.Context, entry AuditLogEntry) error
	ListAuditEntries(ctx context.Context, targetID string, limit int) ([]AuditLogEntry, error)

	// Single-use key methods (redeem idempotency). First registration wins.
	RegisterKey(ctx context.Context, key string, expiresAt time.Time) (bool, error)
	ExpireKeys(ctx context.Context, now time.Time) error
}

func NewProvider(config *config.Storage) Provider {
	switch {
	case config.Memory:
		return NewMemoryProvider()

	case config.SQLite != nil:
		provider := NewSQLiteProvider(config)
		if provider == nil {
			return nil
		}
		if err := provider.runMigrations("sqlite3"); err != nil {
			slog.Error("Failed to run migrations", "error", err)
			return nil
		}
		return provider

	default:
		slog.Error("Unsupported storage configuration", "config", config)
	}

	return nil
}
