package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryProvider keeps everything in mutex-guarded maps. Used by tests and
// by the "memory" storage configuration. The conditional writes take the
// same decisions as the SQL provider, just under one lock.
type MemoryProvider struct {
	mu sync.RWMutex

	visitors    map[string]VisitorRecord
	credentials map[string]Credential
	blacklist   map[string]BlacklistEntry
	auditLog    []AuditLogEntry
	keys        map[string]time.Time
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		visitors:    make(map[string]VisitorRecord),
		credentials: make(map[string]Credential),
		blacklist:   make(map[string]BlacklistEntry),
		keys:        make(map[string]time.Time),
	}
}

func (m *MemoryProvider) Close() error { return nil }

func (m *MemoryProvider) GetSchemaVersion(ctx context.Context) (int, error) {
	return 1, nil
}

// ---------------------------------------------------------------------------
// Visitor records
// ---------------------------------------------------------------------------

func (m *MemoryProvider) CreateVisitor(ctx context.Context, rec VisitorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.visitors[rec.ID] = rec
	return nil
}

func (m *MemoryProvider) GetVisitor(ctx context.Context, id string) (*VisitorRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.visitors[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (m *MemoryProvider) ListVisitors(ctx context.Context, societyID string, status VisitorStatus) ([]VisitorRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var recs []VisitorRecord
	for _, rec := range m.visitors {
		if rec.SocietyID != societyID {
			continue
		}
		if status != "" && rec.Status != status {
			continue
		}
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].CreatedAt.After(recs[j].CreatedAt) })
	return recs, nil
}

func (m *MemoryProvider) TransitionVisitor(ctx context.Context, t VisitorTransition) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.visitors[t.ID]
	if !ok || rec.Status != t.From {
		return false, nil
	}

	at := t.At
	rec.Status = t.To
	switch t.To {
	case VisitorStatusApproved:
		rec.ApprovedAt = &at
		actor := t.ActorID
		rec.ApprovedBy = &actor
	case VisitorStatusDenied:
		rec.DeniedAt = &at
		actor := t.ActorID
		reason := t.Reason
		rec.DeniedBy = &actor
		rec.DenyReason = &reason
	case VisitorStatusEntered:
		rec.EnteredAt = &at
	case VisitorStatusExited:
		rec.ExitedAt = &at
	default:
		return false, nil
	}

	m.visitors[t.ID] = rec
	return true, nil
}

func (m *MemoryProvider) CountDeniedSince(ctx context.Context, phone string, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, rec := range m.visitors {
		if rec.VisitorPhone == phone && rec.Status == VisitorStatusDenied &&
			rec.DeniedAt != nil && !rec.DeniedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryProvider) CountDistinctFlatsApprovedSince(ctx context.Context, phone string, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	flats := make(map[string]struct{})
	for _, rec := range m.visitors {
		if rec.VisitorPhone == phone && rec.ApprovedAt != nil && !rec.ApprovedAt.Before(since) {
			flats[rec.FlatNumber] = struct{}{}
		}
	}
	return len(flats), nil
}

// ---------------------------------------------------------------------------
// Credentials
// ---------------------------------------------------------------------------

func (m *MemoryProvider) CreateCredential(ctx context.Context, cred Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credentials[cred.PassID] = cred
	return nil
}

func (m *MemoryProvider) GetCredential(ctx context.Context, passID string) (*Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cred, ok := m.credentials[passID]
	if !ok {
		return nil, ErrNotFound
	}
	return &cred, nil
}

func (m *MemoryProvider) ListCredentials(ctx context.Context, activeOnly bool) ([]Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var creds []Credential
	for _, cred := range m.credentials {
		if activeOnly && !cred.IsActive {
			continue
		}
		creds = append(creds, cred)
	}
	sort.Slice(creds, func(i, j int) bool { return creds[i].CreatedAt.After(creds[j].CreatedAt) })
	return creds, nil
}

func (m *MemoryProvider) RedeemCredential(ctx context.Context, passID string, expectedScans int, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, ok := m.credentials[passID]
	if !ok {
		return false, nil
	}
	// Same predicate as the SQL statement's WHERE clause.
	if !cred.IsActive || cred.ScansUsed != expectedScans {
		return false, nil
	}
	if cred.MaxScans != UnlimitedScans && cred.ScansUsed >= cred.MaxScans {
		return false, nil
	}

	cred.ScansUsed++
	if cred.MaxScans != UnlimitedScans && cred.ScansUsed >= cred.MaxScans {
		cred.IsActive = false
	}
	scanned := now
	cred.LastScannedAt = &scanned

	m.credentials[passID] = cred
	return true, nil
}

func (m *MemoryProvider) DeactivateCredential(ctx context.Context, passID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cred, ok := m.credentials[passID]
	if !ok || !cred.IsActive {
		return false, nil
	}
	cred.IsActive = false
	m.credentials[passID] = cred
	return true, nil
}

// ---------------------------------------------------------------------------
// Blacklist
// ---------------------------------------------------------------------------

func (m *MemoryProvider) IsBlacklisted(ctx context.Context, phone string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.blacklist[normalizePhone(phone)]
	return ok && entry.Active, nil
}

func (m *MemoryProvider) ListBlacklist(ctx context.Context) ([]BlacklistEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var entries []BlacklistEntry
	for _, entry := range m.blacklist {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].AddedAt.After(entries[j].AddedAt) })
	return entries, nil
}

func (m *MemoryProvider) UpsertBlacklistEntry(ctx context.Context, entry BlacklistEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blacklist[normalizePhone(entry.Phone)] = entry
	return nil
}

func normalizePhone(phone string) string {
	return strings.TrimSpace(phone)
}

// ---------------------------------------------------------------------------
// Audit trail
// ---------------------------------------------------------------------------

func (m *MemoryProvider) AppendAuditEntry(ctx context.Context, entry AuditLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auditLog = append(m.auditLog, entry)
	return nil
}

func (m *MemoryProvider) ListAuditEntries(ctx context.Context, targetID string, limit int) ([]AuditLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var entries []AuditLogEntry
	for i := len(m.auditLog) - 1; i >= 0 && len(entries) < limit; i-- {
		if targetID != "" && m.auditLog[i].TargetID != targetID {
			continue
		}
		entries = append(entries, m.auditLog[i])
	}
	return entries, nil
}

// ---------------------------------------------------------------------------
// Single-use keys
// ---------------------------------------------------------------------------

func (m *MemoryProvider) RegisterKey(ctx context.Context, key string, expiresAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if exp, ok := m.keys[key]; ok && exp.After(time.Now()) {
		return false, nil
	}
	m.keys[key] = expiresAt
	return true, nil
}

func (m *MemoryProvider) ExpireKeys(ctx context.Context, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, exp := range m.keys {
		if now.After(exp) {
			delete(m.keys, k)
		}
	}
	return nil
}
