package nonce

import (
	"context"
	"log/slog"
	"time"

	"visitor-access-control/internal/storage"
)

// ---------------------------------------------------------------------------
// SQL implementation
// ---------------------------------------------------------------------------

type SQLKeyStore struct {
	logger  *slog.Logger
	storage storage.Provider

	stop chan struct{}
}

func NewSQLKeyStore(provider storage.Provider) *SQLKeyStore {
	return &SQLKeyStore{
		logger:  slog.With("component", "SQLKeyStore"),
		storage: provider,
		stop:    make(chan struct{}),
	}
}

func (s *SQLKeyStore) Use(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.storage.RegisterKey(ctx, key, time.Now().Add(ttl))
}

func (s *SQLKeyStore) ExpireKeys(ctx context.Context) error {
	return s.storage.ExpireKeys(ctx, time.Now())
}

func (s *SQLKeyStore) janitor(interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.ExpireKeys(context.Background()); err != nil {
				s.logger.Error("Failed to expire keys", "error", err)
			}
		case <-s.stop:
			return
		}
	}
}

func (s *SQLKeyStore) Close() {
	close(s.stop)
}
