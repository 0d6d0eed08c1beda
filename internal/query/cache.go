package query

import (
	"context"
	"sync"
	"time"

	"engineerhub/internal/logging"
)

// DefaultSweepInterval is how often Run removes expired entries.
const DefaultSweepInterval = 60 * time.Second

// Entry is one cached value.
type Entry struct {
	Data      any
	WrittenAt time.Time
	ExpiresAt time.Time
	Version   uint64
}

// Stale reports whether the entry is older than staleTime at now.
func (e Entry) Stale(now time.Time, staleTime time.Duration) bool {
	return !now.Before(e.WrittenAt.Add(staleTime))
}

// Expired reports whether the entry is past its hard expiry at now.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// EventKind says what happened to a key.
type EventKind int

const (
	EventSet EventKind = iota
	EventInvalidate
	EventClear
	EventExpire
)

func (k EventKind) String() string {
	switch k {
	case EventSet:
		return "set"
	case EventInvalidate:
		return "invalidate"
	case EventClear:
		return "clear"
	default:
		return "expire"
	}
}

// Event is delivered to key subscribers. Entry is populated for EventSet.
type Event struct {
	Key   string
	Kind  EventKind
	Entry Entry
}

// CacheOptions configures a Cache.
type CacheOptions struct {
	SweepInterval time.Duration
	Now           func() time.Time
}

// Cache is a key/value store with hard expiry and per-key subscribers. One
// Cache is shared by every query of a process; it is passed around
// explicitly so tests can use isolated instances.
//
// Every mutation updates the map under the lock, releases it, and only then
// notifies subscribers, so subscribers may call back into the cache.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]Entry
	versions map[string]uint64 // outlives removal while the key has subscribers
	seq      uint64            // last version handed out, cache-wide
	subs     map[string]map[int]func(Event)
	nextSub  int

	now           func() time.Time
	sweepInterval time.Duration
}

// NewCache creates an empty cache.
func NewCache(opts CacheOptions) *Cache {
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache{
		entries:       make(map[string]Entry),
		versions:      make(map[string]uint64),
		subs:          make(map[string]map[int]func(Event)),
		now:           opts.Now,
		sweepInterval: opts.SweepInterval,
	}
}

// Now returns the cache clock's current time.
func (c *Cache) Now() time.Time { return c.now() }

// Get returns the entry for key. An expired entry is removed and reported
// as a miss.
func (c *Cache) Get(key string) (Entry, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return Entry{}, false
	}
	if e.Expired(c.now()) {
		delete(c.entries, key)
		fns := c.subscribersLocked(key)
		c.mu.Unlock()
		logging.CacheDebug("lazy expiry of %s", key)
		notify(fns, Event{Key: key, Kind: EventExpire})
		return Entry{}, false
	}
	c.mu.Unlock()
	return e, true
}

// Version returns the write version of key. It increases on every Set and
// never repeats, even for a key whose history was pruned; an unknown key
// reports 0.
func (c *Cache) Version(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versions[key]
}

// Set stores data under key for cacheTime and returns the new entry.
func (c *Cache) Set(key string, data any, cacheTime time.Duration) Entry {
	c.mu.Lock()
	e := c.writeLocked(key, data, cacheTime)
	fns := c.subscribersLocked(key)
	c.mu.Unlock()

	notify(fns, Event{Key: key, Kind: EventSet, Entry: e})
	return e
}

// SetIfVersion stores data only if no Set happened since Version returned
// expect. On conflict it returns the current entry (if any) and false.
func (c *Cache) SetIfVersion(key string, data any, cacheTime time.Duration, expect uint64) (Entry, bool) {
	c.mu.Lock()
	if c.versions[key] != expect {
		cur, ok := c.entries[key]
		if ok && cur.Expired(c.now()) {
			ok = false
		}
		c.mu.Unlock()
		if !ok {
			return Entry{}, false
		}
		return cur, false
	}
	e := c.writeLocked(key, data, cacheTime)
	fns := c.subscribersLocked(key)
	c.mu.Unlock()

	notify(fns, Event{Key: key, Kind: EventSet, Entry: e})
	return e, true
}

// Update atomically replaces the value under key with fn(prev, ok).
func (c *Cache) Update(key string, cacheTime time.Duration, fn func(prev any, ok bool) any) Entry {
	c.mu.Lock()
	prev, ok := c.entries[key]
	if ok && prev.Expired(c.now()) {
		ok = false
	}
	e := c.writeLocked(key, fn(prev.Data, ok), cacheTime)
	fns := c.subscribersLocked(key)
	c.mu.Unlock()

	notify(fns, Event{Key: key, Kind: EventSet, Entry: e})
	return e
}

func (c *Cache) writeLocked(key string, data any, cacheTime time.Duration) Entry {
	now := c.now()
	c.seq++
	c.versions[key] = c.seq
	e := Entry{
		Data:      data,
		WrittenAt: now,
		ExpiresAt: now.Add(cacheTime),
		Version:   c.versions[key],
	}
	c.entries[key] = e
	return e
}

// Invalidate removes key and notifies its subscribers.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	fns := c.subscribersLocked(key)
	c.mu.Unlock()

	notify(fns, Event{Key: key, Kind: EventInvalidate})
}

// Clear removes every entry and notifies every key's subscribers.
func (c *Cache) Clear() {
	c.mu.Lock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	c.entries = make(map[string]Entry)
	batches := make(map[string][]func(Event), len(keys))
	for _, k := range keys {
		batches[k] = c.subscribersLocked(k)
	}
	c.mu.Unlock()

	for k, fns := range batches {
		notify(fns, Event{Key: k, Kind: EventClear})
	}
}

// Sweep removes expired entries and returns how many were dropped. Version
// history is forgotten for keys that have neither an entry nor a subscriber.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	now := c.now()
	batches := make(map[string][]func(Event))
	for k, e := range c.entries {
		if e.Expired(now) {
			delete(c.entries, k)
			batches[k] = c.subscribersLocked(k)
		}
	}
	for k := range c.versions {
		_, stored := c.entries[k]
		if _, watched := c.subs[k]; !stored && !watched {
			delete(c.versions, k)
		}
	}
	c.mu.Unlock()

	for k, fns := range batches {
		notify(fns, Event{Key: k, Kind: EventExpire})
	}
	if len(batches) > 0 {
		logging.CacheDebug("sweep removed %d expired entries", len(batches))
	}
	return len(batches)
}

// Run sweeps every SweepInterval until ctx is cancelled.
func (c *Cache) Run(ctx context.Context) {
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// Len returns the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Subscribe registers fn for events on key and returns its remover.
func (c *Cache) Subscribe(key string, fn func(Event)) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	set, ok := c.subs[key]
	if !ok {
		set = make(map[int]func(Event))
		c.subs[key] = set
	}
	set[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if set, ok := c.subs[key]; ok {
				delete(set, id)
				if len(set) == 0 {
					delete(c.subs, key)
				}
			}
		})
	}
}

func (c *Cache) subscribersLocked(key string) []func(Event) {
	set := c.subs[key]
	if len(set) == 0 {
		return nil
	}
	fns := make([]func(Event), 0, len(set))
	for _, fn := range set {
		fns = append(fns, fn)
	}
	return fns
}

func notify(fns []func(Event), ev Event) {
	for _, fn := range fns {
		fn(ev)
	}
}
