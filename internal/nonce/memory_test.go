package nonce

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreUse(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	first, err := s.Use(ctx, "key-1", time.Hour)
	if err != nil || !first {
		t.Fatalf("first use should succeed, got %t, %v", first, err)
	}

	second, err := s.Use(ctx, "key-1", time.Hour)
	if err != nil || second {
		t.Fatalf("second use must be refused, got %t, %v", second, err)
	}

	// A different key is independent
	other, err := s.Use(ctx, "key-2", time.Hour)
	if err != nil || !other {
		t.Fatalf("unrelated key should succeed, got %t, %v", other, err)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	if first, _ := s.Use(ctx, "key-1", 10*time.Millisecond); !first {
		t.Fatalf("first use should succeed")
	}

	time.Sleep(20 * time.Millisecond)

	// Expired key behaves like a fresh one
	again, err := s.Use(ctx, "key-1", time.Hour)
	if err != nil || !again {
		t.Fatalf("expired key should be usable again, got %t, %v", again, err)
	}
}

func TestMemoryStoreExpireKeysSweep(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	s.Use(ctx, "stale", -time.Minute)
	s.Use(ctx, "fresh", time.Hour)

	if err := s.ExpireKeys(ctx); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	if _, ok := s.entries["stale"]; ok {
		t.Fatalf("stale key should have been swept")
	}
	if _, ok := s.entries["fresh"]; !ok {
		t.Fatalf("fresh key should survive the sweep")
	}
}
