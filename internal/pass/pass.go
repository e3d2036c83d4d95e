// Package pass owns the digital pass lifecycle: issuance, redemption and
// retirement. Redemption is the only strongly-consistent write in the
// system; everything else here is bookkeeping around it.
package pass

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"visitor-access-control/internal/audit"
	"visitor-access-control/internal/nonce"
	"visitor-access-control/internal/notify"
	"visitor-access-control/internal/storage"
	"visitor-access-control/internal/token"
	"visitor-access-control/internal/utils"
)

var (
	// ErrValidation covers malformed issue requests.
	ErrValidation = errors.New("invalid pass request")
	// ErrInvalidToken: the presented token failed verification. Rejected
	// before any store lookup.
	ErrInvalidToken = errors.New("invalid pass token")
	// ErrNotFound: no credential exists for the pass ID.
	ErrNotFound = errors.New("pass not found")
	// ErrDeactivated: the pass has been retired.
	ErrDeactivated = errors.New("pass deactivated")
	// ErrExpired: the validity window has ended.
	ErrExpired = errors.New("pass expired")
	// ErrLimitReached: all permitted scans are used up.
	ErrLimitReached = errors.New("pass scan limit reached")
	// ErrDuplicateRequest: the idempotency key was already used; no scan
	// was consumed by this call.
	ErrDuplicateRequest = errors.New("duplicate redemption request")
)

// Bounded retries for redemption conflicts on unlimited passes. Limited
// passes resolve on re-read instead (the loser sees LimitReached or
// Deactivated).
const redeemAttempts = 5

type IssueRequest struct {
	VisitorName  string
	VisitorPhone string
	FlatNumber   string
	ResidentRef  string
	Purpose      string
	ValidFrom    time.Time
	ValidUntil   time.Time
	MaxScans     int
}

// IssuedPass pairs the stored credential with its integrity token. The token
// is handed to the visitor and never persisted.
type IssuedPass struct {
	Credential storage.Credential
	Token      string
}

// Service is stateless: store handle, signer, key store and config only.
type Service struct {
	store     storage.Provider
	signer    *token.Signer
	keys      nonce.KeyStore
	auditor   *audit.Writer
	notifier  notify.Gateway
	secret    []byte
	societyID string
	keyTTL    time.Duration
	logger    *slog.Logger
}

func NewService(store storage.Provider, signer *token.Signer, keys nonce.KeyStore,
	auditor *audit.Writer, notifier notify.Gateway, secret, societyID string, keyTTL time.Duration) *Service {
	return &Service{
		store:     store,
		signer:    signer,
		keys:      keys,
		auditor:   auditor,
		notifier:  notifier,
		secret:    []byte(secret),
		societyID: societyID,
		keyTTL:    keyTTL,
		logger:    slog.With("component", "pass"),
	}
}

// Issue creates a new pass and returns it with its integrity token.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (*IssuedPass, error) {
	if req.VisitorName == "" || req.FlatNumber == "" {
		return nil, fmt.Errorf("%w: visitor_name and flat_number are required", ErrValidation)
	}
	if req.ValidUntil.Before(req.ValidFrom) {
		return nil, fmt.Errorf("%w: valid_from must not be after valid_until", ErrValidation)
	}
	if req.MaxScans < 1 && req.MaxScans != storage.UnlimitedScans {
		return nil, fmt.Errorf("%w: max_scans must be >= 1 or -1 for unlimited", ErrValidation)
	}

	passID, err := utils.GeneratePassID(s.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to generate pass id: %w", err)
	}

	now := time.Now().UTC()
	cred := storage.Credential{
		PassID:       passID,
		VisitorName:  req.VisitorName,
		VisitorPhone: req.VisitorPhone,
		FlatNumber:   req.FlatNumber,
		ResidentRef:  req.ResidentRef,
		Purpose:      req.Purpose,
		ValidFrom:    req.ValidFrom,
		ValidUntil:   req.ValidUntil,
		MaxScans:     req.MaxScans,
		ScansUsed:    0,
		IsActive:     true,
		CreatedAt:    now,
	}

	if err := s.store.CreateCredential(ctx, cred); err != nil {
		return nil, err
	}

	tok, err := s.signer.Sign(passID, req.VisitorPhone, now)
	if err != nil {
		return nil, fmt.Errorf("failed to sign pass token: %w", err)
	}

	s.auditor.Append(ctx, audit.ActionPassIssued, req.ResidentRef, passID, s.societyID, map[string]string{
		"flat":        req.FlatNumber,
		"visitor":     req.VisitorName,
		"max_scans":   fmt.Sprintf("%d", req.MaxScans),
		"valid_until": req.ValidUntil.Format(time.RFC3339),
	})

	s.notifier.Dispatch(ctx, notify.Dispatch{
		Recipient: "flat:" + req.FlatNumber,
		Title:     "Visitor pass issued",
		Body:      fmt.Sprintf("A pass for %s is valid until %s.", req.VisitorName, req.ValidUntil.Format(time.RFC1123)),
		Data:      map[string]string{"pass_id": passID},
	})

	return &IssuedPass{Credential: cred, Token: tok}, nil
}

// Redeem validates and consumes one scan of a pass. Checks run in a fixed
// order: token signature (no lookup), existence, active, expiry, scan limit,
// then the conditional write. idemKey may be empty; when present it makes a
// retried call distinguishable from a fresh one.
func (s *Service) Redeem(ctx context.Context, passID, presentedToken, idemKey string) (*storage.Credential, error) {
	// Cheap structural check, then full signature verification. Neither
	// touches the store.
	if !utils.VerifyPassID(passID, s.secret) {
		return nil, ErrInvalidToken
	}
	if _, err := s.signer.Verify(presentedToken, passID); err != nil {
		s.logger.Warn("Pass token verification failed", "pass_id", passID, "error", err)
		return nil, ErrInvalidToken
	}

	if idemKey != "" {
		first, err := s.keys.Use(ctx, idemKey, s.keyTTL)
		if err != nil {
			// Fail closed: if we cannot prove the key is fresh, no scan is granted.
			return nil, fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
		}
		if !first {
			return nil, ErrDuplicateRequest
		}
	}

	now := time.Now().UTC()

	for attempt := 0; attempt < redeemAttempts; attempt++ {
		cred, err := s.store.GetCredential(ctx, passID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, s.reject(ctx, passID, ErrNotFound)
			}
			// Fail closed on storage doubt.
			return nil, err
		}

		switch {
		// An exhausted pass is also auto-retired; report the scan limit, not
		// the retirement, so the gate shows the actual reason.
		case cred.MaxScans != storage.UnlimitedScans && cred.ScansUsed >= cred.MaxScans:
			return nil, s.reject(ctx, passID, ErrLimitReached)
		case !cred.IsActive:
			return nil, s.reject(ctx, passID, ErrDeactivated)
		case now.After(cred.ValidUntil):
			return nil, s.reject(ctx, passID, ErrExpired)
		}

		ok, err := s.store.RedeemCredential(ctx, passID, cred.ScansUsed, now)
		if err != nil {
			return nil, err
		}
		if !ok {
			// Lost the race; re-read and re-classify.
			continue
		}

		cred.ScansUsed++
		if cred.MaxScans != storage.UnlimitedScans && cred.ScansUsed >= cred.MaxScans {
			cred.IsActive = false
		}
		scanned := now
		cred.LastScannedAt = &scanned

		s.auditor.Append(ctx, audit.ActionPassRedeemed, "gate", passID, s.societyID, map[string]string{
			"flat":       cred.FlatNumber,
			"visitor":    cred.VisitorName,
			"scans_used": fmt.Sprintf("%d", cred.ScansUsed),
		})

		s.notifier.Dispatch(ctx, notify.Dispatch{
			Recipient: "flat:" + cred.FlatNumber,
			Title:     "Visitor arrived",
			Body:      fmt.Sprintf("%s has been admitted at the gate.", cred.VisitorName),
			Data:      map[string]string{"pass_id": passID},
		})

		return cred, nil
	}

	return nil, fmt.Errorf("%w: redemption contention not resolved", storage.ErrUnavailable)
}

// reject records a denied redemption attempt and returns the reason.
func (s *Service) reject(ctx context.Context, passID string, reason error) error {
	s.auditor.Append(ctx, audit.ActionPassRejected, "gate", passID, s.societyID, map[string]string{
		"reason": reason.Error(),
	})
	return reason
}

// Revoke retires a pass. Retiring an already-retired pass is not an error.
func (s *Service) Revoke(ctx context.Context, passID, actorID string) error {
	if _, err := s.store.GetCredential(ctx, passID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}

	changed, err := s.store.DeactivateCredential(ctx, passID)
	if err != nil {
		return err
	}
	if changed {
		s.auditor.Append(ctx, audit.ActionPassRevoked, actorID, passID, s.societyID, nil)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, passID string) (*storage.Credential, error) {
	cred, err := s.store.GetCredential(ctx, passID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return cred, nil
}

func (s *Service) List(ctx context.Context, activeOnly bool) ([]storage.Credential, error) {
	return s.store.ListCredentials(ctx, activeOnly)
}

// TokenFor re-derives the integrity token of an existing pass, e.g. to
// render its QR code again. Only the issuer can do this; the token is a
// pure function of the stored fields and the secret.
func (s *Service) TokenFor(cred *storage.Credential) (string, error) {
	return s.signer.Sign(cred.PassID, cred.VisitorPhone, cred.CreatedAt)
}
