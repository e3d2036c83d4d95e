package token

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSignAndVerify(t *testing.T) {
	signer := NewSigner("test-secret")
	issuedAt := time.Now().UTC()

	tok, err := signer.Sign("pass-1", "+911234567890", issuedAt)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	claims, err := signer.Verify(tok, "pass-1")
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if claims.PassID != "pass-1" {
		t.Fatalf("expected pass_id pass-1, got %s", claims.PassID)
	}
	if claims.VisitorPhone != "+911234567890" {
		t.Fatalf("phone claim mismatch: %s", claims.VisitorPhone)
	}
}

// Signing is deterministic for fixed inputs, so the issuer can re-derive a
// pass token later.
func TestSignIsDeterministic(t *testing.T) {
	signer := NewSigner("test-secret")
	issuedAt := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	first, err := signer.Sign("pass-1", "+911234567890", issuedAt)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	second, err := signer.Sign("pass-1", "+911234567890", issuedAt)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if first != second {
		t.Fatalf("tokens differ for identical input")
	}
}

func TestVerifyRejectsOtherPass(t *testing.T) {
	signer := NewSigner("test-secret")

	tok, err := signer.Sign("pass-1", "", time.Now())
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	if _, err := signer.Verify(tok, "pass-2"); !errors.Is(err, ErrPassIDMismatch) {
		t.Fatalf("expected ErrPassIDMismatch, got %v", err)
	}
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	signer := NewSigner("test-secret")

	tok, err := signer.Sign("pass-1", "", time.Now())
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	// Flip a character in the signature segment
	parts := strings.Split(tok, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token format")
	}
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	if _, err := signer.Verify(tampered, "pass-1"); err == nil {
		t.Fatalf("tampered token must not verify")
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	tok, err := NewSigner("secret-a").Sign("pass-1", "", time.Now())
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	if _, err := NewSigner("secret-b").Verify(tok, "pass-1"); err == nil {
		t.Fatalf("token signed with another secret must not verify")
	}
}
