package occurrence

import (
	"fmt"
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seracho/librecur/period"
)

func cacheTestEvent(rrule string) *ical.Component {
	event := newTestComponent(ical.CompEvent)
	setProp(event, ical.PropUID, "cache-test")
	setProp(event, ical.PropDateTimeStart, "20240101T090000Z")
	setProp(event, ical.PropRecurrenceRule, rrule)
	return event
}

func someOccurrences(n int) []Occurrence {
	occs := make([]Occurrence, n)
	for i := range occs {
		start := time.Date(2024, 1, 1+i, 9, 0, 0, 0, time.UTC)
		occs[i] = Occurrence{Period: period.New(start)}
	}
	return occs
}

func TestCache_SetGet(t *testing.T) {
	cache := NewCache(DefaultCacheConfig)
	defer cache.Close()

	event := cacheTestEvent("FREQ=DAILY;COUNT=3")
	from, to := window(1, 10)

	_, ok := cache.Get("uid", event, from, to)
	assert.False(t, ok)

	want := someOccurrences(3)
	cache.Set("uid", event, from, to, want)

	got, ok := cache.Get("uid", event, from, to)
	require.True(t, ok)
	assert.Equal(t, want, got)

	// A different window is a different entry.
	_, ok = cache.Get("uid", event, from, to.AddDate(0, 0, 1))
	assert.False(t, ok)
}

func TestCache_PropertyChangeChangesKey(t *testing.T) {
	cache := NewCache(DefaultCacheConfig)
	defer cache.Close()

	event := cacheTestEvent("FREQ=DAILY;COUNT=3")
	from, to := window(1, 10)
	cache.Set("uid", event, from, to, someOccurrences(3))

	setProp(event, ical.PropRecurrenceRule, "FREQ=DAILY;COUNT=5")
	_, ok := cache.Get("uid", event, from, to)
	assert.False(t, ok)

	// Restoring the property restores the hit.
	setProp(event, ical.PropRecurrenceRule, "FREQ=DAILY;COUNT=3")
	_, ok = cache.Get("uid", event, from, to)
	assert.True(t, ok)
}

func TestCache_Expiry(t *testing.T) {
	cache := NewCache(CacheConfig{
		TTL:             20 * time.Millisecond,
		MaxEntries:      10,
		CleanupInterval: time.Hour,
	})
	defer cache.Close()

	event := cacheTestEvent("FREQ=DAILY;COUNT=3")
	from, to := window(1, 10)
	cache.Set("uid", event, from, to, someOccurrences(3))

	_, ok := cache.Get("uid", event, from, to)
	require.True(t, ok)

	time.Sleep(40 * time.Millisecond)
	_, ok = cache.Get("uid", event, from, to)
	assert.False(t, ok)
}

func TestCache_Invalidate(t *testing.T) {
	cache := NewCache(DefaultCacheConfig)
	defer cache.Close()

	event := cacheTestEvent("FREQ=DAILY;COUNT=3")
	from, to := window(1, 10)
	cache.Set("a", event, from, to, someOccurrences(3))
	cache.Set("b", event, from, to, someOccurrences(3))

	cache.Invalidate("a")

	_, ok := cache.Get("a", event, from, to)
	assert.False(t, ok)
	_, ok = cache.Get("b", event, from, to)
	assert.True(t, ok)
}

func TestCache_EvictsOverLimit(t *testing.T) {
	cache := NewCache(CacheConfig{
		TTL:             time.Hour,
		MaxEntries:      3,
		CleanupInterval: time.Hour,
	})
	defer cache.Close()

	event := cacheTestEvent("FREQ=DAILY;COUNT=3")
	from, _ := window(1, 10)
	for i := 0; i < 6; i++ {
		to := from.AddDate(0, 0, i+1)
		cache.Set(fmt.Sprintf("uid-%d", i), event, from, to, someOccurrences(1))
	}

	stats := cache.Stats()
	assert.LessOrEqual(t, stats.TotalEntries, 3)
}

func TestCache_Stats(t *testing.T) {
	cache := NewCache(DefaultCacheConfig)
	defer cache.Close()

	event := cacheTestEvent("FREQ=DAILY;COUNT=3")
	from, to := window(1, 10)
	cache.Set("uid", event, from, to, someOccurrences(3))

	stats := cache.Stats()
	assert.Equal(t, 1, stats.TotalEntries)
	assert.Equal(t, 1, stats.ActiveEntries)
	assert.Equal(t, 0, stats.ExpiredEntries)
}
