package occurrence

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/emersion/go-ical"
)

// CacheEntry represents one cached evaluation result
type CacheEntry struct {
	Occurrences []Occurrence
	ExpiresAt   time.Time
	AccessedAt  time.Time
}

// Cache stores evaluation results keyed by component identity and window.
// Entries self-invalidate when a recurrence-affecting property changes
// (the fingerprint covers them) and can be dropped explicitly through
// Invalidate.
type Cache struct {
	mutex   sync.RWMutex
	entries map[string]map[string]*CacheEntry

	ttl             time.Duration
	maxEntries      int
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
}

// CacheConfig holds configuration for the evaluation cache
type CacheConfig struct {
	TTL             time.Duration // How long entries stay valid
	MaxEntries      int           // Maximum number of entries before cleanup
	CleanupInterval time.Duration // How often to run cleanup
}

// DefaultCacheConfig provides sensible defaults for occurrence caching
var DefaultCacheConfig = CacheConfig{
	TTL:             15 * time.Minute,
	MaxEntries:      1000,
	CleanupInterval: 5 * time.Minute,
}

// NewCache creates an evaluation cache with the given configuration
func NewCache(config CacheConfig) *Cache {
	if config.TTL <= 0 {
		config.TTL = DefaultCacheConfig.TTL
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = DefaultCacheConfig.MaxEntries
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultCacheConfig.CleanupInterval
	}
	cache := &Cache{
		entries:         make(map[string]map[string]*CacheEntry),
		ttl:             config.TTL,
		maxEntries:      config.MaxEntries,
		cleanupInterval: config.CleanupInterval,
		stopCleanup:     make(chan struct{}),
	}
	go cache.cleanupLoop()
	return cache
}

// recurrence-affecting properties; a change in any of them must miss.
var fingerprintProps = []string{
	ical.PropDateTimeStart,
	ical.PropDateTimeEnd,
	ical.PropDue,
	ical.PropDuration,
	ical.PropRecurrenceRule,
	"EXRULE",
	ical.PropRecurrenceDates,
	ical.PropExceptionDates,
}

// entryKey hashes the window and every recurrence-affecting property of
// the component.
func entryKey(comp *ical.Component, from, to time.Time) string {
	hasher := sha256.New()
	hasher.Write([]byte(from.Format(time.RFC3339Nano)))
	hasher.Write([]byte(to.Format(time.RFC3339Nano)))
	for _, name := range fingerprintProps {
		for _, prop := range comp.Props.Values(name) {
			hasher.Write([]byte(name))
			for param, values := range prop.Params {
				hasher.Write([]byte(param))
				for _, v := range values {
					hasher.Write([]byte(v))
				}
			}
			hasher.Write([]byte(prop.Value))
		}
	}
	return fmt.Sprintf("%x", hasher.Sum(nil))
}

// Get retrieves a cached result if it exists and hasn't expired
func (c *Cache) Get(componentID string, comp *ical.Component, from, to time.Time) ([]Occurrence, bool) {
	key := entryKey(comp, from, to)

	c.mutex.RLock()
	entry := c.entries[componentID][key]
	c.mutex.RUnlock()

	if entry == nil {
		return nil, false
	}
	now := time.Now()
	if now.After(entry.ExpiresAt) {
		c.mutex.Lock()
		delete(c.entries[componentID], key)
		c.mutex.Unlock()
		return nil, false
	}
	c.mutex.Lock()
	entry.AccessedAt = now
	c.mutex.Unlock()
	return entry.Occurrences, true
}

// Set stores an evaluation result
func (c *Cache) Set(componentID string, comp *ical.Component, from, to time.Time, occs []Occurrence) {
	key := entryKey(comp, from, to)
	now := time.Now()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	byComp := c.entries[componentID]
	if byComp == nil {
		byComp = make(map[string]*CacheEntry)
		c.entries[componentID] = byComp
	}
	byComp[key] = &CacheEntry{
		Occurrences: occs,
		ExpiresAt:   now.Add(c.ttl),
		AccessedAt:  now,
	}
	if c.size() > c.maxEntries {
		c.cleanup()
	}
}

// Invalidate drops every entry belonging to the component.
func (c *Cache) Invalidate(componentID string) {
	c.mutex.Lock()
	delete(c.entries, componentID)
	c.mutex.Unlock()
}

// size returns the total entry count. Caller holds the lock.
func (c *Cache) size() int {
	n := 0
	for _, byComp := range c.entries {
		n += len(byComp)
	}
	return n
}

// cleanup removes expired entries and oldest entries if over limit.
// Caller holds the lock.
func (c *Cache) cleanup() {
	now := time.Now()

	for id, byComp := range c.entries {
		for key, entry := range byComp {
			if now.After(entry.ExpiresAt) {
				delete(byComp, key)
			}
		}
		if len(byComp) == 0 {
			delete(c.entries, id)
		}
	}

	over := c.size() - c.maxEntries
	if over <= 0 {
		return
	}

	type keyAccess struct {
		id, key    string
		accessedAt time.Time
	}
	all := make([]keyAccess, 0, c.size())
	for id, byComp := range c.entries {
		for key, entry := range byComp {
			all = append(all, keyAccess{id, key, entry.AccessedAt})
		}
	}
	// Oldest first.
	for i := 0; i < len(all)-1; i++ {
		for j := i + 1; j < len(all); j++ {
			if all[i].accessedAt.After(all[j].accessedAt) {
				all[i], all[j] = all[j], all[i]
			}
		}
	}
	for i := 0; i < over && i < len(all); i++ {
		delete(c.entries[all[i].id], all[i].key)
	}
}

func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mutex.Lock()
			c.cleanup()
			c.mutex.Unlock()
		case <-c.stopCleanup:
			return
		}
	}
}

// Close stops the cleanup goroutine and clears the cache
func (c *Cache) Close() {
	close(c.stopCleanup)
	c.mutex.Lock()
	c.entries = make(map[string]map[string]*CacheEntry)
	c.mutex.Unlock()
}

// Stats returns cache statistics
func (c *Cache) Stats() CacheStats {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	stats := CacheStats{}
	now := time.Now()
	for _, byComp := range c.entries {
		for _, entry := range byComp {
			stats.TotalEntries++
			if now.After(entry.ExpiresAt) {
				stats.ExpiredEntries++
			}
		}
	}
	stats.ActiveEntries = stats.TotalEntries - stats.ExpiredEntries
	return stats
}

// CacheStats provides information about cache usage
type CacheStats struct {
	TotalEntries   int
	ExpiredEntries int
	ActiveEntries  int
}
