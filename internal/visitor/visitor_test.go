package visitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"visitor-access-control/internal/audit"
	"visitor-access-control/internal/notify"
	"visitor-access-control/internal/risk"
	"visitor-access-control/internal/storage"
)

type captureGateway struct {
	mu         sync.Mutex
	dispatches []notify.Dispatch
}

func (g *captureGateway) Dispatch(ctx context.Context, d notify.Dispatch) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dispatches = append(g.dispatches, d)
}

func (g *captureGateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.dispatches)
}

func newTestService(t *testing.T) (*Service, *storage.MemoryProvider, *captureGateway) {
	t.Helper()
	store := storage.NewMemoryProvider()
	gw := &captureGateway{}
	engine := risk.NewEngine(store, store, gw)
	svc := NewService(store, engine, audit.NewWriter(store), gw)
	return svc, store, gw
}

func createRequest() CreateRequest {
	return CreateRequest{
		SocietyID:    "soc1",
		FlatNumber:   "A-101",
		VisitorName:  "Test Visitor",
		VisitorPhone: "+911234567890",
		Purpose:      "delivery",
		CreatedBy:    "guard1",
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	req := createRequest()
	req.FlatNumber = "  "
	if _, err := svc.Create(ctx, req); !errors.Is(err, ErrValidation) {
		t.Fatalf("blank flat: expected ErrValidation, got %v", err)
	}

	req = createRequest()
	req.VisitorName = ""
	if _, err := svc.Create(ctx, req); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty name: expected ErrValidation, got %v", err)
	}
}

func TestCreateStartsPendingWithAssessment(t *testing.T) {
	svc, store, gw := newTestService(t)
	ctx := context.Background()

	rec, err := svc.Create(ctx, createRequest())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if rec.Status != storage.VisitorStatusPending {
		t.Fatalf("expected pending, got %s", rec.Status)
	}
	if rec.RiskLevel == "" {
		t.Fatalf("record must carry a risk level")
	}
	if gw.count() != 1 {
		t.Fatalf("expected one notification, got %d", gw.count())
	}

	entries, err := store.ListAuditEntries(ctx, rec.ID, 10)
	if err != nil {
		t.Fatalf("audit read failed: %v", err)
	}
	if len(entries) != 1 || entries[0].ActionType != audit.ActionVisitorCreated {
		t.Fatalf("expected one visitor_created audit entry, got %+v", entries)
	}
}

func TestFullLifecycle(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	rec, err := svc.Create(ctx, createRequest())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	rec, err = svc.Approve(ctx, rec.ID, "resident1")
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if rec.Status != storage.VisitorStatusApproved || rec.ApprovedAt == nil {
		t.Fatalf("approve did not land: %+v", rec)
	}

	rec, err = svc.MarkEntered(ctx, rec.ID, "guard1")
	if err != nil {
		t.Fatalf("enter failed: %v", err)
	}
	if rec.Status != storage.VisitorStatusEntered || rec.EnteredAt == nil {
		t.Fatalf("enter did not land: %+v", rec)
	}

	rec, err = svc.MarkExited(ctx, rec.ID, "guard1")
	if err != nil {
		t.Fatalf("exit failed: %v", err)
	}
	if rec.Status != storage.VisitorStatusExited || rec.ExitedAt == nil {
		t.Fatalf("exit did not land: %+v", rec)
	}
}

// Approving a record that already entered must fail without mutating it.
func TestApproveEnteredRecordFails(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	rec, err := svc.Create(ctx, createRequest())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := svc.Approve(ctx, rec.ID, "resident1"); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if _, err := svc.MarkEntered(ctx, rec.ID, "guard1"); err != nil {
		t.Fatalf("enter failed: %v", err)
	}

	before, _ := store.GetVisitor(ctx, rec.ID)

	_, err = svc.Approve(ctx, rec.ID, "resident2")
	if !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
	}

	after, _ := store.GetVisitor(ctx, rec.ID)
	if after.Status != before.Status || after.ApprovedBy == nil || *after.ApprovedBy != *before.ApprovedBy {
		t.Fatalf("record mutated by rejected transition: %+v vs %+v", before, after)
	}
}

// denied and exited are absorbing states.
func TestTerminalStatesAbsorb(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	denied, err := svc.Create(ctx, createRequest())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := svc.Deny(ctx, denied.ID, "resident1", "unknown visitor"); err != nil {
		t.Fatalf("deny failed: %v", err)
	}

	if _, err := svc.Approve(ctx, denied.ID, "resident1"); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("approve from denied: expected ErrInvalidStateTransition, got %v", err)
	}
	if _, err := svc.MarkEntered(ctx, denied.ID, "guard1"); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("enter from denied: expected ErrInvalidStateTransition, got %v", err)
	}

	exited, err := svc.Create(ctx, createRequest())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	svc.Approve(ctx, exited.ID, "resident1")
	svc.MarkEntered(ctx, exited.ID, "guard1")
	svc.MarkExited(ctx, exited.ID, "guard1")

	if _, err := svc.MarkExited(ctx, exited.ID, "guard1"); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("exit from exited: expected ErrInvalidStateTransition, got %v", err)
	}
	if _, err := svc.Approve(ctx, exited.ID, "resident1"); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("approve from exited: expected ErrInvalidStateTransition, got %v", err)
	}
}

func TestDenyRecordsReason(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	rec, err := svc.Create(ctx, createRequest())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	rec, err = svc.Deny(ctx, rec.ID, "resident1", "not expected")
	if err != nil {
		t.Fatalf("deny failed: %v", err)
	}
	if rec.DenyReason == nil || *rec.DenyReason != "not expected" {
		t.Fatalf("deny reason not recorded: %+v", rec)
	}

	entries, err := store.ListAuditEntries(ctx, rec.ID, 10)
	if err != nil {
		t.Fatalf("audit read failed: %v", err)
	}
	var found bool
	for _, e := range entries {
		if e.ActionType == audit.ActionVisitorDenied && e.Metadata["reason"] == "not expected" {
			found = true
		}
	}
	if !found {
		t.Fatalf("deny audit entry with reason not found: %+v", entries)
	}
}

// Each transition produces exactly one audit entry and one dispatch.
func TestTransitionSideEffectCounts(t *testing.T) {
	svc, store, gw := newTestService(t)
	ctx := context.Background()

	rec, err := svc.Create(ctx, createRequest())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	base := gw.count()
	if _, err := svc.Approve(ctx, rec.ID, "resident1"); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if gw.count() != base+1 {
		t.Fatalf("approve should dispatch exactly once, got %d new", gw.count()-base)
	}

	entries, _ := store.ListAuditEntries(ctx, rec.ID, 10)
	if len(entries) != 2 { // created + approved
		t.Fatalf("expected 2 audit entries, got %d", len(entries))
	}
}

// Pass redemption creates an approved record directly, skipping scoring.
func TestCreateFromRedemption(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	cred := &storage.Credential{
		PassID:       "pass-1",
		VisitorName:  "Pass Holder",
		VisitorPhone: "+911111111111",
		FlatNumber:   "B-202",
		ResidentRef:  "resident2",
		Purpose:      "guest",
		CreatedAt:    time.Now().UTC(),
	}

	rec, err := svc.CreateFromRedemption(ctx, cred, "soc1")
	if err != nil {
		t.Fatalf("create from redemption failed: %v", err)
	}
	if rec.Status != storage.VisitorStatusApproved {
		t.Fatalf("expected approved, got %s", rec.Status)
	}
	if rec.ApprovedBy == nil || *rec.ApprovedBy != "resident2" {
		t.Fatalf("approver should be the issuing resident: %+v", rec)
	}
	if rec.RiskScore != 0 || rec.RiskLevel != risk.LevelLow {
		t.Fatalf("redemption path must not score: %+v", rec)
	}

	// Entry proceeds directly from approved
	if _, err := svc.MarkEntered(ctx, rec.ID, "gate"); err != nil {
		t.Fatalf("enter failed: %v", err)
	}
}
