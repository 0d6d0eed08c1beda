package query

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventLog struct {
	mu     sync.Mutex
	events []EventKind
}

func (l *eventLog) record(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev.Kind)
}

func (l *eventLog) kinds() []EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]EventKind(nil), l.events...)
}

func TestCacheSubscribers(t *testing.T) {
	clock := newFakeClock()
	cache := NewCache(CacheOptions{Now: clock.Now})
	log := &eventLog{}
	unsub := cache.Subscribe("k", log.record)
	other := &eventLog{}
	cache.Subscribe("other", other.record)

	cache.Set("k", 1, time.Minute)
	cache.Invalidate("k")
	cache.Set("k", 2, time.Minute)
	cache.Clear()
	unsub()
	cache.Set("k", 3, time.Minute)

	assert.Equal(t, []EventKind{EventSet, EventInvalidate, EventSet, EventClear}, log.kinds())
	assert.Empty(t, other.kinds())
}

func TestCacheSweep(t *testing.T) {
	clock := newFakeClock()
	cache := NewCache(CacheOptions{Now: clock.Now})
	log := &eventLog{}
	cache.Subscribe("short", log.record)

	cache.Set("short", "a", time.Minute)
	cache.Set("long", "b", time.Hour)
	clock.Advance(2 * time.Minute)

	assert.Equal(t, 1, cache.Sweep())
	assert.Equal(t, 1, cache.Len())
	assert.Equal(t, []EventKind{EventSet, EventExpire}, log.kinds())
	assert.Equal(t, 0, cache.Sweep())
}

func TestCacheRunSweepsUntilCancelled(t *testing.T) {
	clock := newFakeClock()
	cache := NewCache(CacheOptions{Now: clock.Now, SweepInterval: 5 * time.Millisecond})
	cache.Set("k", "v", time.Second)
	clock.Advance(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		cache.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return cache.Len() == 0 }, time.Second, time.Millisecond)
	cancel()
	<-done
}

func TestCacheSetIfVersion(t *testing.T) {
	cache := NewCache(CacheOptions{})

	v := cache.Version("k")
	_, ok := cache.SetIfVersion("k", "first", time.Minute, v)
	require.True(t, ok)

	stale := cache.Version("k")
	cache.Set("k", "mutated", time.Minute)
	cur, ok := cache.SetIfVersion("k", "late", time.Minute, stale)
	assert.False(t, ok)
	assert.Equal(t, "mutated", cur.Data)

	// Removal does not fence a fetch that started before it.
	v = cache.Version("k")
	cache.Invalidate("k")
	_, ok = cache.SetIfVersion("k", "refetched", time.Minute, v)
	assert.True(t, ok)
}

func TestCacheUpdate(t *testing.T) {
	cache := NewCache(CacheOptions{})
	add := func(prev any, ok bool) any {
		if !ok {
			return []string{"a"}
		}
		return append(prev.([]string), "b")
	}
	first := cache.Update("list", time.Minute, add)
	e := cache.Update("list", time.Minute, add)
	assert.Equal(t, []string{"a", "b"}, e.Data)
	assert.Greater(t, e.Version, first.Version)
}

func TestCacheSweepPrunesVersions(t *testing.T) {
	clock := newFakeClock()
	cache := NewCache(CacheOptions{Now: clock.Now})
	versions := func() int {
		cache.mu.Lock()
		defer cache.mu.Unlock()
		return len(cache.versions)
	}

	for i := range 50 {
		key := fmt.Sprintf("search:%d", i)
		cache.Set(key, i, time.Minute)
	}
	cache.Set("live", "x", time.Minute)
	unsubscribe := cache.Subscribe("watched", func(Event) {})
	defer unsubscribe()
	cache.Set("watched", "y", time.Minute)
	fenced := cache.Version("watched")
	cache.Invalidate("watched")

	clock.Advance(30 * time.Second)
	cache.Set("live", "x2", time.Minute)
	clock.Advance(45 * time.Second)

	assert.Equal(t, 50, cache.Sweep())
	assert.Equal(t, 2, versions(), "only the stored key and the subscribed key keep history")
	assert.Zero(t, cache.Version("search:3"))

	_, ok := cache.SetIfVersion("watched", "refetched", time.Minute, fenced)
	assert.True(t, ok, "a subscribed key keeps its version across invalidation")

	before := cache.Version("live")
	cache.Set("search:3", "again", time.Minute)
	assert.Greater(t, cache.Version("search:3"), before, "versions never repeat after pruning")
}
