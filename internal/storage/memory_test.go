package storage

import (
	"context"
	"testing"
	"time"
)

func testCredential(maxScans int) Credential {
	now := time.Now().UTC()
	return Credential{
		PassID:       "pass-1",
		VisitorName:  "Test Visitor",
		VisitorPhone: "+911234567890",
		FlatNumber:   "A-101",
		ValidFrom:    now,
		ValidUntil:   now.Add(time.Hour),
		MaxScans:     maxScans,
		IsActive:     true,
		CreatedAt:    now,
	}
}

func TestRedeemCredentialConditionalWrite(t *testing.T) {
	m := NewMemoryProvider()
	ctx := context.Background()

	if err := m.CreateCredential(ctx, testCredential(2)); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// Stale expected count loses
	ok, err := m.RedeemCredential(ctx, "pass-1", 1, time.Now())
	if err != nil || ok {
		t.Fatalf("stale precondition must fail, got ok=%t err=%v", ok, err)
	}

	ok, err = m.RedeemCredential(ctx, "pass-1", 0, time.Now())
	if err != nil || !ok {
		t.Fatalf("first redeem should succeed, got ok=%t err=%v", ok, err)
	}

	cred, err := m.GetCredential(ctx, "pass-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if cred.ScansUsed != 1 || !cred.IsActive || cred.LastScannedAt == nil {
		t.Fatalf("unexpected state after first redeem: %+v", cred)
	}

	// Final scan retires the pass
	ok, err = m.RedeemCredential(ctx, "pass-1", 1, time.Now())
	if err != nil || !ok {
		t.Fatalf("second redeem should succeed, got ok=%t err=%v", ok, err)
	}
	cred, _ = m.GetCredential(ctx, "pass-1")
	if cred.ScansUsed != 2 || cred.IsActive {
		t.Fatalf("pass should be exhausted and retired: %+v", cred)
	}

	// Exhausted pass refuses further scans
	ok, err = m.RedeemCredential(ctx, "pass-1", 2, time.Now())
	if err != nil || ok {
		t.Fatalf("exhausted pass must not redeem, got ok=%t err=%v", ok, err)
	}
}

func TestRedeemCredentialUnlimited(t *testing.T) {
	m := NewMemoryProvider()
	ctx := context.Background()

	if err := m.CreateCredential(ctx, testCredential(UnlimitedScans)); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	for i := 0; i < 20; i++ {
		ok, err := m.RedeemCredential(ctx, "pass-1", i, time.Now())
		if err != nil || !ok {
			t.Fatalf("redeem %d failed: ok=%t err=%v", i, ok, err)
		}
	}

	cred, _ := m.GetCredential(ctx, "pass-1")
	if cred.ScansUsed != 20 || !cred.IsActive {
		t.Fatalf("unlimited pass should stay active: %+v", cred)
	}
}

func TestDeactivateCredential(t *testing.T) {
	m := NewMemoryProvider()
	ctx := context.Background()

	m.CreateCredential(ctx, testCredential(1))

	changed, err := m.DeactivateCredential(ctx, "pass-1")
	if err != nil || !changed {
		t.Fatalf("deactivate should report a change, got %t, %v", changed, err)
	}
	changed, err = m.DeactivateCredential(ctx, "pass-1")
	if err != nil || changed {
		t.Fatalf("second deactivate should be a no-op, got %t, %v", changed, err)
	}

	// A revoked pass refuses redemption
	ok, _ := m.RedeemCredential(ctx, "pass-1", 0, time.Now())
	if ok {
		t.Fatalf("revoked pass must not redeem")
	}
}

func TestTransitionVisitorGuard(t *testing.T) {
	m := NewMemoryProvider()
	ctx := context.Background()

	rec := VisitorRecord{
		ID:          "v1",
		SocietyID:   "soc1",
		FlatNumber:  "A-101",
		VisitorName: "Test Visitor",
		Status:      VisitorStatusPending,
		CreatedAt:   time.Now().UTC(),
	}
	if err := m.CreateVisitor(ctx, rec); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// Wrong From state loses without mutating
	ok, err := m.TransitionVisitor(ctx, VisitorTransition{
		ID: "v1", From: VisitorStatusApproved, To: VisitorStatusEntered,
		ActorID: "guard1", At: time.Now().UTC(),
	})
	if err != nil || ok {
		t.Fatalf("transition from wrong state must fail, got ok=%t err=%v", ok, err)
	}

	ok, err = m.TransitionVisitor(ctx, VisitorTransition{
		ID: "v1", From: VisitorStatusPending, To: VisitorStatusApproved,
		ActorID: "resident1", At: time.Now().UTC(),
	})
	if err != nil || !ok {
		t.Fatalf("legal transition failed: ok=%t err=%v", ok, err)
	}

	got, _ := m.GetVisitor(ctx, "v1")
	if got.Status != VisitorStatusApproved || got.ApprovedAt == nil || got.ApprovedBy == nil {
		t.Fatalf("approve fields not stamped: %+v", got)
	}
}

func TestRiskAggregateCounts(t *testing.T) {
	m := NewMemoryProvider()
	ctx := context.Background()
	now := time.Now().UTC()
	phone := "+911234567890"

	deniedAt := now.Add(-time.Hour)
	oldDeniedAt := now.Add(-48 * time.Hour)
	approvedAt := now.Add(-time.Minute)

	records := []VisitorRecord{
		{ID: "d1", VisitorPhone: phone, Status: VisitorStatusDenied, DeniedAt: &deniedAt},
		{ID: "d2", VisitorPhone: phone, Status: VisitorStatusDenied, DeniedAt: &deniedAt},
		{ID: "d3", VisitorPhone: phone, Status: VisitorStatusDenied, DeniedAt: &oldDeniedAt},
		{ID: "a1", VisitorPhone: phone, FlatNumber: "A-101", Status: VisitorStatusApproved, ApprovedAt: &approvedAt},
		{ID: "a2", VisitorPhone: phone, FlatNumber: "B-202", Status: VisitorStatusApproved, ApprovedAt: &approvedAt},
		{ID: "a3", VisitorPhone: phone, FlatNumber: "A-101", Status: VisitorStatusApproved, ApprovedAt: &approvedAt},
		{ID: "x1", VisitorPhone: "+919999999999", Status: VisitorStatusDenied, DeniedAt: &deniedAt},
	}
	for _, rec := range records {
		if err := m.CreateVisitor(ctx, rec); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}

	denied, err := m.CountDeniedSince(ctx, phone, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("count denied failed: %v", err)
	}
	if denied != 2 {
		t.Fatalf("expected 2 recent denials, got %d", denied)
	}

	flats, err := m.CountDistinctFlatsApprovedSince(ctx, phone, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("count flats failed: %v", err)
	}
	if flats != 2 {
		t.Fatalf("expected 2 distinct flats, got %d", flats)
	}
}

func TestBlacklistUpsert(t *testing.T) {
	m := NewMemoryProvider()
	ctx := context.Background()

	entry := BlacklistEntry{
		Phone: "+911234567890", Reason: "trespass", AddedBy: "admin",
		AddedAt: time.Now().UTC(), Active: true,
	}
	if err := m.UpsertBlacklistEntry(ctx, entry); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	listed, err := m.IsBlacklisted(ctx, "+911234567890")
	if err != nil || !listed {
		t.Fatalf("expected blacklisted, got %t, %v", listed, err)
	}

	// Deactivating the entry removes the match
	entry.Active = false
	m.UpsertBlacklistEntry(ctx, entry)
	listed, _ = m.IsBlacklisted(ctx, "+911234567890")
	if listed {
		t.Fatalf("inactive entry must not match")
	}
}

func TestAuditAppendAndList(t *testing.T) {
	m := NewMemoryProvider()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		entry := AuditLogEntry{
			ID: string(rune('a' + i)), ActionType: "pass_redeemed",
			TargetID: "pass-1", SocietyID: "soc1", Timestamp: time.Now().UTC(),
		}
		if err := m.AppendAuditEntry(ctx, entry); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}
	m.AppendAuditEntry(ctx, AuditLogEntry{ID: "z", ActionType: "pass_issued", TargetID: "pass-2", Timestamp: time.Now().UTC()})

	entries, err := m.ListAuditEntries(ctx, "pass-1", 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries for pass-1, got %d", len(entries))
	}

	limited, _ := m.ListAuditEntries(ctx, "pass-1", 2)
	if len(limited) != 2 {
		t.Fatalf("limit not respected, got %d", len(limited))
	}
}

func TestRegisterKeyFirstWins(t *testing.T) {
	m := NewMemoryProvider()
	ctx := context.Background()

	first, err := m.RegisterKey(ctx, "scan-1", time.Now().Add(time.Hour))
	if err != nil || !first {
		t.Fatalf("first registration should win, got %t, %v", first, err)
	}
	second, err := m.RegisterKey(ctx, "scan-1", time.Now().Add(time.Hour))
	if err != nil || second {
		t.Fatalf("second registration must lose, got %t, %v", second, err)
	}

	// Expired keys can be re-registered after a sweep
	m.RegisterKey(ctx, "scan-2", time.Now().Add(-time.Minute))
	if err := m.ExpireKeys(ctx, time.Now()); err != nil {
		t.Fatalf("expire failed: %v", err)
	}
	again, err := m.RegisterKey(ctx, "scan-2", time.Now().Add(time.Hour))
	if err != nil || !again {
		t.Fatalf("expired key should be reusable, got %t, %v", again, err)
	}
}
