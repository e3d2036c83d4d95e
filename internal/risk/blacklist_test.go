package risk

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFileBlacklistLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blacklist.yaml")
	content := `entries:
  - phone: "+911234567890"
    reason: "repeated trespass"
    active: true
  - phone: "+919999999999"
    reason: "cleared"
    active: false
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	b := NewFileBlacklist()
	if err := b.Load(path); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	ctx := context.Background()
	if listed, _ := b.IsBlacklisted(ctx, "+911234567890"); !listed {
		t.Fatalf("active entry should match")
	}
	if listed, _ := b.IsBlacklisted(ctx, "+919999999999"); listed {
		t.Fatalf("inactive entry must not match")
	}
	if listed, _ := b.IsBlacklisted(ctx, "+910000000000"); listed {
		t.Fatalf("unknown phone must not match")
	}
	// Whitespace around the lookup is tolerated
	if listed, _ := b.IsBlacklisted(ctx, " +911234567890 "); !listed {
		t.Fatalf("trimmed lookup should match")
	}
}

func TestFileBlacklistLoadErrors(t *testing.T) {
	b := NewFileBlacklist()
	if err := b.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("missing file should error")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("entries: [not valid"), 0644)
	if err := b.Load(path); err == nil {
		t.Fatalf("malformed YAML should error")
	}
}

type staticBlacklist struct {
	listed bool
	err    error
}

func (s *staticBlacklist) IsBlacklisted(ctx context.Context, phone string) (bool, error) {
	return s.listed, s.err
}

func TestCombinedBlacklist(t *testing.T) {
	ctx := context.Background()

	// Any source saying yes wins
	c := NewCombinedBlacklist(&staticBlacklist{}, &staticBlacklist{listed: true})
	if listed, err := c.IsBlacklisted(ctx, "x"); err != nil || !listed {
		t.Fatalf("expected match, got %t, %v", listed, err)
	}

	// A failing source is masked by a later match
	c = NewCombinedBlacklist(&staticBlacklist{err: errors.New("down")}, &staticBlacklist{listed: true})
	if listed, err := c.IsBlacklisted(ctx, "x"); err != nil || !listed {
		t.Fatalf("match should mask the source error, got %t, %v", listed, err)
	}

	// With no match, the first error surfaces
	c = NewCombinedBlacklist(&staticBlacklist{err: errors.New("down")}, &staticBlacklist{})
	if _, err := c.IsBlacklisted(ctx, "x"); err == nil {
		t.Fatalf("expected the source error to surface")
	}
}
