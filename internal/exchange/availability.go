package exchange

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// AvailabilityCache remembers, per symbol, which venues are known to carry
// the pair and which are known not to. Entries expire after the TTL
// (24 hours by default) and survive restarts via a JSON snapshot.
type AvailabilityCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]*availabilityEntry
	now     func() time.Time
}

type availabilityEntry struct {
	available   map[string]struct{}
	unavailable map[string]struct{}
	lastChecked time.Time
}

// availabilitySnapshot is the on-disk JSON form.
type availabilitySnapshot struct {
	SavedAt time.Time                    `json:"saved_at"`
	Symbols map[string]snapshotEntryJSON `json:"symbols"`
}

type snapshotEntryJSON struct {
	Available   []string  `json:"available"`
	Unavailable []string  `json:"unavailable"`
	LastChecked time.Time `json:"last_checked"`
}

// NewAvailabilityCache creates an empty cache with the given TTL.
func NewAvailabilityCache(ttl time.Duration) *AvailabilityCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AvailabilityCache{
		ttl:     ttl,
		entries: make(map[string]*availabilityEntry),
		now:     time.Now,
	}
}

func (a *AvailabilityCache) entryLocked(symbol string) *availabilityEntry {
	e, ok := a.entries[symbol]
	if !ok || a.now().Sub(e.lastChecked) > a.ttl {
		e = &availabilityEntry{
			available:   make(map[string]struct{}),
			unavailable: make(map[string]struct{}),
		}
		a.entries[symbol] = e
	}
	return e
}

// MarkAvailable records a venue as carrying the symbol, clearing any
// previous unavailable marker.
func (a *AvailabilityCache) MarkAvailable(symbol, venue string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e := a.entryLocked(symbol)
	e.available[venue] = struct{}{}
	delete(e.unavailable, venue)
	e.lastChecked = a.now()
}

// MarkUnavailable records a venue as not carrying the symbol, clearing any
// previous available marker.
func (a *AvailabilityCache) MarkUnavailable(symbol, venue string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e := a.entryLocked(symbol)
	e.unavailable[venue] = struct{}{}
	delete(e.available, venue)
	e.lastChecked = a.now()
}

// AvailableVenues returns the known-available venue set for a symbol, or nil
// when nothing fresh is known.
func (a *AvailabilityCache) AvailableVenues(symbol string) map[string]struct{} {
	a.mu.RLock()
	defer a.mu.RUnlock()
	e, ok := a.entries[symbol]
	if !ok || a.now().Sub(e.lastChecked) > a.ttl || len(e.available) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(e.available))
	for v := range e.available {
		out[v] = struct{}{}
	}
	return out
}

// IsUnavailable reports whether a venue is known not to carry the symbol.
func (a *AvailabilityCache) IsUnavailable(symbol, venue string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	e, ok := a.entries[symbol]
	if !ok || a.now().Sub(e.lastChecked) > a.ttl {
		return false
	}
	_, unavailable := e.unavailable[venue]
	return unavailable
}

// Len returns the number of tracked symbols.
func (a *AvailabilityCache) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.entries)
}

// Save writes the cache to a JSON snapshot, creating parent directories as
// needed.
func (a *AvailabilityCache) Save(path string) error {
	a.mu.RLock()
	snap := availabilitySnapshot{
		SavedAt: a.now(),
		Symbols: make(map[string]snapshotEntryJSON, len(a.entries)),
	}
	for symbol, e := range a.entries {
		snap.Symbols[symbol] = snapshotEntryJSON{
			Available:   sortedKeys(e.available),
			Unavailable: sortedKeys(e.unavailable),
			LastChecked: e.lastChecked,
		}
	}
	a.mu.RUnlock()

	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal availability snapshot: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write availability snapshot: %w", err)
	}
	return nil
}

// Load rehydrates the cache from a snapshot. Expired entries are dropped; a
// missing file is not an error.
func (a *AvailabilityCache) Load(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read availability snapshot: %w", err)
	}
	var snap availabilitySnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return fmt.Errorf("parse availability snapshot: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	loaded, expired := 0, 0
	for symbol, e := range snap.Symbols {
		if a.now().Sub(e.LastChecked) > a.ttl {
			expired++
			continue
		}
		entry := &availabilityEntry{
			available:   make(map[string]struct{}, len(e.Available)),
			unavailable: make(map[string]struct{}, len(e.Unavailable)),
			lastChecked: e.LastChecked,
		}
		for _, v := range e.Available {
			entry.available[v] = struct{}{}
		}
		for _, v := range e.Unavailable {
			entry.unavailable[v] = struct{}{}
		}
		a.entries[symbol] = entry
		loaded++
	}
	log.Debug().Int("loaded", loaded).Int("expired", expired).Str("path", path).
		Msg("Rehydrated symbol availability cache")
	return nil
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
