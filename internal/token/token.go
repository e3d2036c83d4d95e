// Package token signs and verifies pass integrity tokens.
//
// A token is an HS256 JWT binding (pass_id, visitor_phone, issued_at) to the
// server secret. It can be verified without touching the store, which is why
// redeem checks it first. The reversible unsigned encoding the mobile client
// used previously is gone: a token observed at one gate cannot be recomputed
// for another pass without the secret.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNonValidToken    = errors.New("token did not pass validation")
	ErrInvalidClaimType = errors.New("invalid claim type")
	ErrPassIDMismatch   = errors.New("token is bound to a different pass")
)

var tokenSignatureAlg = jwt.SigningMethodHS256

// Claim for a pass integrity token
type PassClaim struct {
	PassID       string `json:"pass_id"`
	VisitorPhone string `json:"phone"`
	jwt.RegisteredClaims
}

// Signer is a stateless token signer/verifier holding only the secret.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign produces the integrity token for a pass. issuedAt comes from the
// credential record so the issuer can re-derive the exact token later.
// Expiry is deliberately not a claim: the credential's valid_until decides
// it at redeem time, so an expired pass still reports Expired, not a broken
// token.
func (s *Signer) Sign(passID, visitorPhone string, issuedAt time.Time) (string, error) {
	claim := PassClaim{
		PassID:       passID,
		VisitorPhone: visitorPhone,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(issuedAt.UTC()),
		},
	}
	token := jwt.NewWithClaims(tokenSignatureAlg, claim)
	return token.SignedString(s.secret)
}

// Verify checks the token signature and that it is bound to passID.
// It never consults storage.
func (s *Signer) Verify(tokenString string, passID string) (*PassClaim, error) {
	claims, err := decodeJWT(tokenString, &PassClaim{}, s.secret)
	if err != nil {
		return nil, err
	}
	if claims.PassID != passID {
		return nil, ErrPassIDMismatch
	}
	return claims, nil
}

func decodeJWT[T jwt.Claims](tokenString string, claimsType T, secret []byte) (T, error) {
	var zero T

	parsedToken, err := jwt.ParseWithClaims(tokenString, claimsType, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{tokenSignatureAlg.Alg()}))

	if err != nil {
		return zero, err
	} else if parsedToken == nil || !parsedToken.Valid {
		return zero, ErrNonValidToken
	} else if claims, ok := parsedToken.Claims.(T); ok {
		return claims, nil
	}

	return zero, ErrInvalidClaimType
}
