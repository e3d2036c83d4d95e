// Package nonce provides single-use key stores. The redeem path uses one to
// make retries distinguishable: a caller-supplied idempotency key is good for
// exactly one redemption attempt within its TTL.
package nonce

import (
	"context"
	"fmt"
	"time"

	"visitor-access-control/internal/storage"
)

type KeyStore interface {
	// Use registers the key with a TTL. Returns true if this is the first
	// use of the key, false if it has been seen before.
	Use(ctx context.Context, key string, ttl time.Duration) (bool, error)

	ExpireKeys(ctx context.Context) error

	Close()
}

// NewStore builds the appropriate KeyStore implementation.
func NewStore(storeType string, janitorInterval time.Duration, provider storage.Provider) (KeyStore, error) {
	switch storeType {
	case "memory":
		s := NewMemoryStore()
		go s.janitor(janitorInterval)
		return s, nil
	case "sql":
		if provider == nil {
			return nil, fmt.Errorf("sql key store requires a storage provider")
		}
		s := NewSQLKeyStore(provider)
		go s.janitor(janitorInterval)
		return s, nil
	default:
		return nil, fmt.Errorf("unknown key store type %q", storeType)
	}
}
