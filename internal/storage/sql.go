package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"visitor-access-control/internal/config"
)

type SQLProvider struct {
	db *sqlx.DB

	config *config.Storage

	logger *slog.Logger
}

func NewSQLProvider(config *config.Storage, driverName string, dataSource string) *SQLProvider {
	db, err := sqlx.Open(driverName, dataSource)
	if err != nil {
		slog.Error("Failed to open database", "driver", driverName, "error", err)
		return nil
	}

	logger := slog.With("component", "storage")

	return &SQLProvider{
		db:     db,
		config: config,
		logger: logger,
	}
}

func (p *SQLProvider) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// wrapErr normalizes driver errors into the provider sentinels.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// ---------------------------------------------------------------------------
// Visitor records
// ---------------------------------------------------------------------------

func (p *SQLProvider) CreateVisitor(ctx context.Context, rec VisitorRecord) error {
	_, err := p.db.NamedExecContext(ctx, `
		INSERT INTO visitor_records (
			id, society_id, flat_number, visitor_name, visitor_phone, purpose,
			vehicle_number, photo_ref, status, created_by, created_at,
			risk_score, risk_level, risk_factors
		) VALUES (
			:id, :society_id, :flat_number, :visitor_name, :visitor_phone, :purpose,
			:vehicle_number, :photo_ref, :status, :created_by, :created_at,
			:risk_score, :risk_level, :risk_factors
		)`, rec)
	return wrapErr(err)
}

func (p *SQLProvider) GetVisitor(ctx context.Context, id string) (*VisitorRecord, error) {
	var rec VisitorRecord
	if err := p.db.GetContext(ctx, &rec, `SELECT * FROM visitor_records WHERE id = ?`, id); err != nil {
		return nil, wrapErr(err)
	}
	return &rec, nil
}

func (p *SQLProvider) ListVisitors(ctx context.Context, societyID string, status VisitorStatus) ([]VisitorRecord, error) {
	var recs []VisitorRecord
	query := `SELECT * FROM visitor_records WHERE society_id = ?`
	args := []any{societyID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`
	if err := p.db.SelectContext(ctx, &recs, query, args...); err != nil {
		return nil, wrapErr(err)
	}
	return recs, nil
}

// Per-target-state column sets. Each timestamp column is written exactly once
// because the status guard makes re-entry impossible.
func transitionSet(to VisitorStatus) (string, bool) {
	switch to {
	case VisitorStatusApproved:
		return `approved_at = :at, approved_by = :actor_id`, true
	case VisitorStatusDenied:
		return `denied_at = :at, denied_by = :actor_id, deny_reason = :reason`, true
	case VisitorStatusEntered:
		return `entered_at = :at`, true
	case VisitorStatusExited:
		return `exited_at = :at`, true
	}
	return "", false
}

func (p *SQLProvider) TransitionVisitor(ctx context.Context, t VisitorTransition) (bool, error) {
	set, ok := transitionSet(t.To)
	if !ok {
		return false, fmt.Errorf("no transition into status %q", t.To)
	}

	query := `UPDATE visitor_records SET status = :to, ` + set + ` WHERE id = :id AND status = :from`
	res, err := p.db.NamedExecContext(ctx, query, map[string]any{
		"id":       t.ID,
		"from":     t.From,
		"to":       t.To,
		"at":       t.At,
		"actor_id": t.ActorID,
		"reason":   t.Reason,
	})
	if err != nil {
		return false, wrapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrapErr(err)
	}
	return n > 0, nil
}

func (p *SQLProvider) CountDeniedSince(ctx context.Context, phone string, since time.Time) (int, error) {
	var n int
	err := p.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM visitor_records
		WHERE visitor_phone = ? AND status = ? AND denied_at >= ?`,
		phone, VisitorStatusDenied, since)
	if err != nil {
		return 0, wrapErr(err)
	}
	return n, nil
}

func (p *SQLProvider) CountDistinctFlatsApprovedSince(ctx context.Context, phone string, since time.Time) (int, error) {
	var n int
	err := p.db.GetContext(ctx, &n, `
		SELECT COUNT(DISTINCT flat_number) FROM visitor_records
		WHERE visitor_phone = ? AND approved_at IS NOT NULL AND approved_at >= ?`,
		phone, since)
	if err != nil {
		return 0, wrapErr(err)
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Credentials
// ---------------------------------------------------------------------------

func (p *SQLProvider) CreateCredential(ctx context.Context, cred Credential) error {
	_, err := p.db.NamedExecContext(ctx, `
		INSERT INTO credentials (
			pass_id, visitor_name, visitor_phone, flat_number, resident_ref,
			purpose, valid_from, valid_until, max_scans, scans_used, is_active,
			created_at
		) VALUES (
			:pass_id, :visitor_name, :visitor_phone, :flat_number, :resident_ref,
			:purpose, :valid_from, :valid_until, :max_scans, :scans_used, :is_active,
			:created_at
		)`, cred)
	return wrapErr(err)
}

func (p *SQLProvider) GetCredential(ctx context.Context, passID string) (*Credential, error) {
	var cred Credential
	if err := p.db.GetContext(ctx, &cred, `SELECT * FROM credentials WHERE pass_id = ?`, passID); err != nil {
		return nil, wrapErr(err)
	}
	return &cred, nil
}

func (p *SQLProvider) ListCredentials(ctx context.Context, activeOnly bool) ([]Credential, error) {
	var creds []Credential
	query := `SELECT * FROM credentials`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY created_at DESC`
	if err := p.db.SelectContext(ctx, &creds, query); err != nil {
		return nil, wrapErr(err)
	}
	return creds, nil
}

// RedeemCredential consumes one scan in a single guarded statement. Two gates
// racing on the last scan cannot both pass the scans_used precondition, so at
// most one of them lands.
func (p *SQLProvider) RedeemCredential(ctx context.Context, passID string, expectedScans int, now time.Time) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE credentials SET
			scans_used = scans_used + 1,
			is_active = CASE
				WHEN max_scans != ? AND scans_used + 1 >= max_scans THEN 0
				ELSE is_active
			END,
			last_scanned_at = ?
		WHERE pass_id = ?
			AND is_active = 1
			AND scans_used = ?
			AND (max_scans = ? OR scans_used < max_scans)`,
		UnlimitedScans, now, passID, expectedScans, UnlimitedScans)
	if err != nil {
		return false, wrapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrapErr(err)
	}
	return n > 0, nil
}

func (p *SQLProvider) DeactivateCredential(ctx context.Context, passID string) (bool, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE credentials SET is_active = 0 WHERE pass_id = ? AND is_active = 1`, passID)
	if err != nil {
		return false, wrapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrapErr(err)
	}
	return n > 0, nil
}

// ---------------------------------------------------------------------------
// Blacklist
// ---------------------------------------------------------------------------

func (p *SQLProvider) IsBlacklisted(ctx context.Context, phone string) (bool, error) {
	var n int
	err := p.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM blacklist_entries WHERE phone = ? AND active = 1`, phone)
	if err != nil {
		return false, wrapErr(err)
	}
	return n > 0, nil
}

func (p *SQLProvider) ListBlacklist(ctx context.Context) ([]BlacklistEntry, error) {
	var entries []BlacklistEntry
	if err := p.db.SelectContext(ctx, &entries,
		`SELECT * FROM blacklist_entries ORDER BY added_at DESC`); err != nil {
		return nil, wrapErr(err)
	}
	return entries, nil
}

func (p *SQLProvider) UpsertBlacklistEntry(ctx context.Context, entry BlacklistEntry) error {
	_, err := p.db.NamedExecContext(ctx, `
		INSERT INTO blacklist_entries (phone, reason, added_by, added_at, active)
		VALUES (:phone, :reason, :added_by, :added_at, :active)
		ON CONFLICT(phone) DO UPDATE SET
			reason = excluded.reason,
			added_by = excluded.added_by,
			added_at = excluded.added_at,
			active = excluded.active`, entry)
	return wrapErr(err)
}

// ---------------------------------------------------------------------------
// Audit trail
// ---------------------------------------------------------------------------

func (p *SQLProvider) AppendAuditEntry(ctx context.Context, entry AuditLogEntry) error {
	// Insert only. There is deliberately no update or delete statement for
	// this table anywhere in the codebase.
	_, err := p.db.NamedExecContext(ctx, `
		INSERT INTO audit_log (id, action_type, actor_id, target_id, society_id, metadata, timestamp)
		VALUES (:id, :action_type, :actor_id, :target_id, :society_id, :metadata, :timestamp)`, entry)
	return wrapErr(err)
}

func (p *SQLProvider) ListAuditEntries(ctx context.Context, targetID string, limit int) ([]AuditLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	var entries []AuditLogEntry
	query := `SELECT * FROM audit_log`
	args := []any{}
	if targetID != "" {
		query += ` WHERE target_id = ?`
		args = append(args, targetID)
	}
	query += ` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, limit)
	if err := p.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, wrapErr(err)
	}
	return entries, nil
}

// ---------------------------------------------------------------------------
// Single-use keys
// ---------------------------------------------------------------------------

// RegisterKey records a key if it has never been seen. Returns true on first
// use; a second registration of the same key loses.
func (p *SQLProvider) RegisterKey(ctx context.Context, key string, expiresAt time.Time) (bool, error) {
	res, err := p.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO single_use_keys (key, expires_at) VALUES (?, ?)`, key, expiresAt)
	if err != nil {
		return false, wrapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrapErr(err)
	}
	return n > 0, nil
}

func (p *SQLProvider) ExpireKeys(ctx context.Context, now time.Time) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM single_use_keys WHERE expires_at <= ?`, now)
	return wrapErr(err)
}
