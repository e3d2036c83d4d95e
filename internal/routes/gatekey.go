package routes

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/argon2"
)

const GATE_KEY_SALT = "vac-gate-key-salt"

// GateKeyEncode hashes a gate API key for storage in configuration. The key
// itself is never stored; the server compares hashes only.
func GateKeyEncode(key string, secret string) string {
	// Derive key from secret.
	derivedKey := argon2.IDKey(
		[]byte(secret),
		[]byte(GATE_KEY_SALT),
		3,       // time (number of iterations)
		64*1024, // memory in KB (64 MB)
		4,       // parallelism
		32,      // key length in bytes
	)

	h := hmac.New(sha256.New, derivedKey)
	h.Write([]byte(key))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// gateKeyVerify checks a presented key against the configured hash.
func gateKeyVerify(key string, secret string, hash string) bool {
	expectedHash := GateKeyEncode(key, secret)
	return hmac.Equal([]byte(expectedHash), []byte(hash))
}

// GateKeyAuth guards the gate-device endpoints with a shared API key sent in
// the X-Gate-Key header. An empty configured hash disables the check; the
// server logs a warning at startup in that case.
func GateKeyAuth(secret string, keyHash string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if keyHash == "" {
			c.Next()
			return
		}

		key := c.GetHeader("X-Gate-Key")
		if key == "" {
			AbortWithHTTPError(c, http.StatusUnauthorized, ErrUnauthorized, "Gate key required", "GATE_KEY_REQUIRED")
			return
		}
		if !gateKeyVerify(key, secret, keyHash) {
			slog.Warn("Gate key verification failed", "ip", c.ClientIP())
			AbortWithHTTPError(c, http.StatusForbidden, ErrForbidden, "Gate key rejected", "GATE_KEY_REJECTED")
			return
		}
		c.Next()
	}
}
