package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// GeneratePassID returns "uuid-signature". The truncated HMAC suffix lets a
// gate reject a mistyped or fabricated pass ID without a store lookup.
func GeneratePassID(secret []byte) (string, error) {
	uuidObj, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	id := uuidObj.String()

	h := hmac.New(sha256.New, secret)
	h.Write([]byte(id))
	signature := hex.EncodeToString(h.Sum(nil))[:16] // First 16 chars

	return fmt.Sprintf("%s-%s", id, signature), nil
}

func VerifyPassID(passID string, secret []byte) bool {
	parts := strings.Split(passID, "-")
	if len(parts) != 6 { // uuid (5 parts) + signature (1 part)
		return false
	}

	id := strings.Join(parts[:5], "-")
	providedSig := parts[5]

	h := hmac.New(sha256.New, secret)
	h.Write([]byte(id))
	expectedSig := hex.EncodeToString(h.Sum(nil))[:16]

	return hmac.Equal([]byte(providedSig), []byte(expectedSig))
}
