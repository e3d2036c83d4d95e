package risk

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileBlacklist is a YAML-backed blacklist for deployments that receive the
// flagged-number list as a file drop from the society office.
//
//	entries:
//	  - phone: "+911234567890"
//	    reason: "repeated trespass"
//	    active: true
type FileBlacklist struct {
	mu      sync.RWMutex
	entries map[string]bool // phone -> active
}

type blacklistFile struct {
	Entries []struct {
		Phone  string `yaml:"phone"`
		Reason string `yaml:"reason"`
		Active bool   `yaml:"active"`
	} `yaml:"entries"`
}

func NewFileBlacklist() *FileBlacklist {
	return &FileBlacklist{entries: make(map[string]bool)}
}

// Load replaces the in-memory set from the YAML file.
func (b *FileBlacklist) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read blacklist file: %w", err)
	}

	var parsed blacklistFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse blacklist file: %w", err)
	}

	entries := make(map[string]bool, len(parsed.Entries))
	for _, e := range parsed.Entries {
		entries[strings.TrimSpace(e.Phone)] = e.Active
	}

	b.mu.Lock()
	b.entries = entries
	b.mu.Unlock()

	slog.Info("Blacklist file loaded", "file", path, "entries", len(entries))
	return nil
}

func (b *FileBlacklist) IsBlacklisted(ctx context.Context, phone string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.entries[strings.TrimSpace(phone)], nil
}

// CombinedBlacklist answers yes if any source does. A source error is
// reported only if no other source already matched.
type CombinedBlacklist struct {
	sources []Blacklist
}

func NewCombinedBlacklist(sources ...Blacklist) *CombinedBlacklist {
	return &CombinedBlacklist{sources: sources}
}

func (c *CombinedBlacklist) IsBlacklisted(ctx context.Context, phone string) (bool, error) {
	var firstErr error
	for _, src := range c.sources {
		listed, err := src.IsBlacklisted(ctx, phone)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if listed {
			return true, nil
		}
	}
	return false, firstErr
}
