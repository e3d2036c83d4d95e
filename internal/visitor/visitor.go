// Package visitor drives the per-visit state machine:
//
//	pending -> approved -> entered -> exited
//	pending -> denied
//
// denied and exited are terminal. Every transition is guarded by a
// conditional write, so a stale actor loses cleanly instead of clobbering
// newer state.
package visitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"visitor-access-control/internal/audit"
	"visitor-access-control/internal/notify"
	"visitor-access-control/internal/risk"
	"visitor-access-control/internal/storage"
)

var (
	ErrValidation = errors.New("invalid visitor request")
	ErrNotFound   = errors.New("visitor record not found")
	// ErrInvalidStateTransition: the record is not in the state the
	// requested transition starts from. Nothing was mutated.
	ErrInvalidStateTransition = errors.New("invalid visitor state transition")
)

type CreateRequest struct {
	SocietyID     string
	FlatNumber    string
	VisitorName   string
	VisitorPhone  string
	Purpose       string
	VehicleNumber string
	PhotoRef      string
	CreatedBy     string
}

type Service struct {
	store    storage.Provider
	engine   *risk.Engine
	auditor  *audit.Writer
	notifier notify.Gateway
	logger   *slog.Logger
}

func NewService(store storage.Provider, engine *risk.Engine, auditor *audit.Writer, notifier notify.Gateway) *Service {
	return &Service{
		store:    store,
		engine:   engine,
		auditor:  auditor,
		notifier: notifier,
		logger:   slog.With("component", "visitor"),
	}
}

// Create registers a walk-in visitor at the gate. The record starts pending
// and carries its risk assessment from the moment of creation.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*storage.VisitorRecord, error) {
	if strings.TrimSpace(req.FlatNumber) == "" || strings.TrimSpace(req.VisitorName) == "" {
		return nil, fmt.Errorf("%w: flat_number and visitor_name are required", ErrValidation)
	}

	now := time.Now().UTC()
	assessment := s.engine.Score(ctx, risk.Input{
		VisitorName:  req.VisitorName,
		VisitorPhone: req.VisitorPhone,
		FlatNumber:   req.FlatNumber,
		SocietyID:    req.SocietyID,
		At:           time.Now(), // local wall clock for the late-night rule
	})

	rec := storage.VisitorRecord{
		ID:            uuid.NewString(),
		SocietyID:     req.SocietyID,
		FlatNumber:    req.FlatNumber,
		VisitorName:   req.VisitorName,
		VisitorPhone:  req.VisitorPhone,
		Purpose:       req.Purpose,
		VehicleNumber: req.VehicleNumber,
		PhotoRef:      req.PhotoRef,
		Status:        storage.VisitorStatusPending,
		CreatedBy:     req.CreatedBy,
		CreatedAt:     now,
		RiskScore:     assessment.Score,
		RiskLevel:     assessment.Level,
		RiskFactors:   assessment.Factors,
	}

	if err := s.store.CreateVisitor(ctx, rec); err != nil {
		return nil, err
	}

	s.auditor.Append(ctx, audit.ActionVisitorCreated, req.CreatedBy, rec.ID, req.SocietyID, map[string]string{
		"flat":       req.FlatNumber,
		"visitor":    req.VisitorName,
		"risk_level": assessment.Level,
		"risk_score": strconv.Itoa(assessment.Score),
	})
	if assessment.Level == risk.LevelHigh {
		s.auditor.Append(ctx, audit.ActionHighRiskAlert, "system", rec.ID, req.SocietyID, map[string]string{
			"factors": strings.Join(assessment.Factors, ","),
		})
	}

	s.notifier.Dispatch(ctx, notify.Dispatch{
		Recipient: "flat:" + req.FlatNumber,
		Title:     "Visitor waiting at gate",
		Body:      fmt.Sprintf("%s is at the gate. Approve or deny from the app.", req.VisitorName),
		Data:      map[string]string{"visitor_id": rec.ID},
	})

	return &rec, nil
}

// CreateFromRedemption records the arrival of a pass holder. The pass was
// already vetted at issue time, so the record is approved by construction
// and risk scoring is skipped.
func (s *Service) CreateFromRedemption(ctx context.Context, cred *storage.Credential, societyID string) (*storage.VisitorRecord, error) {
	now := time.Now().UTC()
	approvedBy := cred.ResidentRef
	rec := storage.VisitorRecord{
		ID:           uuid.NewString(),
		SocietyID:    societyID,
		FlatNumber:   cred.FlatNumber,
		VisitorName:  cred.VisitorName,
		VisitorPhone: cred.VisitorPhone,
		Purpose:      cred.Purpose,
		Status:       storage.VisitorStatusApproved,
		CreatedBy:    "gate",
		CreatedAt:    now,
		ApprovedAt:   &now,
		ApprovedBy:   &approvedBy,
		RiskLevel:    risk.LevelLow,
	}

	if err := s.store.CreateVisitor(ctx, rec); err != nil {
		return nil, err
	}

	s.auditor.Append(ctx, audit.ActionVisitorCreated, "gate", rec.ID, societyID, map[string]string{
		"flat":    cred.FlatNumber,
		"visitor": cred.VisitorName,
		"pass_id": cred.PassID,
	})

	return &rec, nil
}

// Approve moves a pending record to approved.
func (s *Service) Approve(ctx context.Context, id, actorID string) (*storage.VisitorRecord, error) {
	return s.transition(ctx, storage.VisitorTransition{
		ID:      id,
		From:    storage.VisitorStatusPending,
		To:      storage.VisitorStatusApproved,
		ActorID: actorID,
	}, audit.ActionVisitorApproved, "Visitor approved", "Your visitor has been approved for entry.")
}

// Deny moves a pending record to denied, which is terminal.
func (s *Service) Deny(ctx context.Context, id, actorID, reason string) (*storage.VisitorRecord, error) {
	return s.transition(ctx, storage.VisitorTransition{
		ID:      id,
		From:    storage.VisitorStatusPending,
		To:      storage.VisitorStatusDenied,
		ActorID: actorID,
		Reason:  reason,
	}, audit.ActionVisitorDenied, "Visitor denied", "Entry was denied for your visitor.")
}

// MarkEntered records the physical gate crossing of an approved visitor.
func (s *Service) MarkEntered(ctx context.Context, id, actorID string) (*storage.VisitorRecord, error) {
	return s.transition(ctx, storage.VisitorTransition{
		ID:      id,
		From:    storage.VisitorStatusApproved,
		To:      storage.VisitorStatusEntered,
		ActorID: actorID,
	}, audit.ActionVisitorEntered, "Visitor entered", "Your visitor has entered the premises.")
}

// MarkExited closes the visit. exited is terminal.
func (s *Service) MarkExited(ctx context.Context, id, actorID string) (*storage.VisitorRecord, error) {
	return s.transition(ctx, storage.VisitorTransition{
		ID:      id,
		From:    storage.VisitorStatusEntered,
		To:      storage.VisitorStatusExited,
		ActorID: actorID,
	}, audit.ActionVisitorExited, "Visitor exited", "Your visitor has left the premises.")
}

// transition runs one guarded status change: exactly one audit entry and one
// notification on success, nothing on failure.
func (s *Service) transition(ctx context.Context, t storage.VisitorTransition,
	action, title, body string) (*storage.VisitorRecord, error) {
	t.At = time.Now().UTC()

	ok, err := s.store.TransitionVisitor(ctx, t)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !ok {
		// Re-read purely for the error message; the store already refused
		// the write.
		rec, readErr := s.store.GetVisitor(ctx, t.ID)
		if readErr != nil {
			if errors.Is(readErr, storage.ErrNotFound) {
				return nil, ErrNotFound
			}
			return nil, readErr
		}
		return nil, fmt.Errorf("%w: %s is %s, not %s", ErrInvalidStateTransition, t.ID, rec.Status, t.From)
	}

	rec, err := s.store.GetVisitor(ctx, t.ID)
	if err != nil {
		return nil, err
	}

	meta := map[string]string{"flat": rec.FlatNumber, "visitor": rec.VisitorName}
	if t.Reason != "" {
		meta["reason"] = t.Reason
	}
	s.auditor.Append(ctx, action, t.ActorID, t.ID, rec.SocietyID, meta)

	s.notifier.Dispatch(ctx, notify.Dispatch{
		Recipient: "flat:" + rec.FlatNumber,
		Title:     title,
		Body:      fmt.Sprintf("%s: %s", rec.VisitorName, body),
		Data:      map[string]string{"visitor_id": rec.ID},
	})

	return rec, nil
}

func (s *Service) Get(ctx context.Context, id string) (*storage.VisitorRecord, error) {
	rec, err := s.store.GetVisitor(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

func (s *Service) List(ctx context.Context, societyID string, status storage.VisitorStatus) ([]storage.VisitorRecord, error) {
	return s.store.ListVisitors(ctx, societyID, status)
}
