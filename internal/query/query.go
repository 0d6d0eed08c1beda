// Package query caches remote reads by key and keeps them fresh with
// stale-while-revalidate semantics.
//
// A Query binds a key to a fetch function. Mounting it serves whatever the
// shared Cache holds and decides whether the network is needed: fresh
// entries are served as-is, stale entries are served and revalidated in the
// background, misses are fetched in the foreground. Fetches are debounced,
// single-flight per instance and retried with a fixed delay.
package query

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"engineerhub/internal/debounce"
	"engineerhub/internal/logging"
)

var (
	// ErrDisabled is returned by explicit fetches on a disabled query.
	ErrDisabled = errors.New("query: disabled")
	// ErrClosed is returned once the query has been closed.
	ErrClosed = errors.New("query: closed")
	// ErrAborted is returned to waiters whose fetch was superseded by Rekey
	// or Close. It is never recorded in State.
	ErrAborted = errors.New("query: aborted")
)

// Fetcher retrieves the current value for a query.
type Fetcher[T any] func(ctx context.Context) (T, error)

// Config holds the type-independent query settings.
type Config struct {
	Enabled            bool
	CacheTime          time.Duration // hard expiry of written entries
	StaleTime          time.Duration // age after which a hit is revalidated
	RetryCount         int           // retries after the initial attempt
	RetryDelay         time.Duration
	DebounceDelay      time.Duration
	RefetchOnFocus     bool
	RefetchOnReconnect bool
}

// DefaultConfig returns the stock settings.
func DefaultConfig() Config {
	return Config{
		Enabled:            true,
		CacheTime:          5 * time.Minute,
		StaleTime:          30 * time.Second,
		RetryCount:         3,
		RetryDelay:         time.Second,
		DebounceDelay:      300 * time.Millisecond,
		RefetchOnFocus:     true,
		RefetchOnReconnect: true,
	}
}

// Options are the settings of one Query.
type Options[T any] struct {
	Config
	OnSuccess func(T)
	OnError   func(error)
}

// State is a snapshot of a query.
type State[T any] struct {
	Data         T
	HasData      bool
	IsLoading    bool // foreground fetch, nothing to show yet
	IsValidating bool // background revalidation behind served data
	Err          error
	HasLoaded    bool
	LastUpdated  time.Time
	RetryCount   int
}

// Status is the type-erased view of a query used by Group.
type Status struct {
	IsLoading bool
	HasLoaded bool
	Err       error
}

// call collects the waiters of one debounced fetch.
type call[T any] struct {
	done       chan struct{}
	foreground bool
	val        T
	err        error
}

// Query is a cached, self-refreshing remote value.
type Query[T any] struct {
	client *Client
	cache  *Cache
	opts   Options[T]

	mu      sync.Mutex
	key     string
	fetch   Fetcher[T]
	state   State[T]
	subs    map[int]func(State[T])
	nextSub int
	unwatch func()
	pending *call[T]
	epoch   uint64 // bumped by Rekey; results of older epochs are dropped
	runCtx  context.Context
	cancel  context.CancelFunc
	abort   context.CancelFunc // current attempt
	closed  bool

	flight    singleflight.Group
	debouncer *debounce.Func[struct{}]
}

// New creates a query on c's cache using c's defaults adjusted by opts.
// The query is registered with c for focus and reconnect broadcasts until
// Close.
func New[T any](c *Client, key string, fn Fetcher[T], opts ...func(*Options[T])) *Query[T] {
	o := Options[T]{Config: c.Defaults}
	for _, apply := range opts {
		apply(&o)
	}

	q := &Query[T]{
		client: c,
		cache:  c.Cache,
		opts:   o,
		key:    key,
		fetch:  fn,
		subs:   make(map[int]func(State[T])),
	}
	q.runCtx, q.cancel = context.WithCancel(context.Background())
	q.debouncer = debounce.NewFunc(o.DebounceDelay, q.fire)
	q.unwatch = q.cache.Subscribe(key, q.onCacheEvent)
	c.track(q)
	return q
}

// Key returns the current cache key.
func (q *Query[T]) Key() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.key
}

// State returns the current snapshot.
func (q *Query[T]) State() State[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Status implements Member.
func (q *Query[T]) Status() Status {
	st := q.State()
	return Status{IsLoading: st.IsLoading, HasLoaded: st.HasLoaded, Err: st.Err}
}

// Subscribe registers fn for every state change and returns its remover.
func (q *Query[T]) Subscribe(fn func(State[T])) func() {
	q.mu.Lock()
	id := q.nextSub
	q.nextSub++
	q.subs[id] = fn
	q.mu.Unlock()

	return func() {
		q.mu.Lock()
		delete(q.subs, id)
		q.mu.Unlock()
	}
}

func (q *Query[T]) publish(st State[T]) {
	q.mu.Lock()
	fns := make([]func(State[T]), 0, len(q.subs))
	for _, fn := range q.subs {
		fns = append(fns, fn)
	}
	q.mu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}

// update applies fn to the state if epoch is still current and publishes.
func (q *Query[T]) update(epoch uint64, fn func(*State[T])) bool {
	q.mu.Lock()
	if q.closed || q.epoch != epoch {
		q.mu.Unlock()
		return false
	}
	fn(&q.state)
	st := q.state
	q.mu.Unlock()

	q.publish(st)
	return true
}

// Mount serves the cached value and fetches as its freshness requires. On a
// miss it blocks until the foreground fetch settles. Fetch failures land in
// State().Err; the returned error reports only ctx cancellation or Close.
func (q *Query[T]) Mount(ctx context.Context) error {
	if !q.opts.Enabled {
		return nil
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	key, epoch := q.key, q.epoch
	q.mu.Unlock()

	if entry, ok := q.cache.Get(key); ok {
		if v, typed := entry.Data.(T); typed {
			q.update(epoch, func(s *State[T]) {
				s.Data = v
				s.HasData = true
				s.HasLoaded = true
				s.LastUpdated = entry.WrittenAt
			})
			if entry.Stale(q.cache.Now(), q.opts.StaleTime) {
				logging.QueryDebug("%s: stale hit, revalidating", key)
				q.revalidate()
			}
			return nil
		}
		logging.QueryWarn("%s: cached value has type %T; refetching", key, entry.Data)
	}

	_, err := q.trigger(ctx, false)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, ErrClosed) {
		return err
	}
	return nil
}

// Fetch requests a fetch and waits for the result. Rapid calls within the
// debounce delay collapse into one fetch whose result every caller receives.
func (q *Query[T]) Fetch(ctx context.Context) (T, error) {
	if !q.opts.Enabled {
		var zero T
		return zero, ErrDisabled
	}
	return q.trigger(ctx, q.State().HasData)
}

// Refetch drops the cached entry and fetches in the foreground.
func (q *Query[T]) Refetch(ctx context.Context) (T, error) {
	if !q.opts.Enabled {
		var zero T
		return zero, ErrDisabled
	}
	q.cache.Invalidate(q.Key())
	return q.trigger(ctx, false)
}

// Mutate writes v to the cache without touching the network. Every query on
// the key, this one included, observes it through its cache subscription.
func (q *Query[T]) Mutate(v T) {
	q.cache.Set(q.Key(), v, q.opts.CacheTime)
}

// MutateFunc replaces the value with fn(prev). ok is false when neither the
// cache nor this query holds a value.
func (q *Query[T]) MutateFunc(fn func(prev T, ok bool) T) {
	local := q.State()
	q.cache.Update(q.Key(), q.opts.CacheTime, func(prev any, found bool) any {
		if found {
			if p, typed := prev.(T); typed {
				return fn(p, true)
			}
		}
		return fn(local.Data, local.HasData)
	})
}

// Invalidate removes the cached entry without fetching.
func (q *Query[T]) Invalidate() {
	q.cache.Invalidate(q.Key())
}

// Focus revalidates in the background when the entry is missing or stale
// and RefetchOnFocus is set.
func (q *Query[T]) Focus() {
	if q.opts.RefetchOnFocus {
		q.revalidateIfNeeded("focus")
	}
}

// Reconnect is Focus for network recovery, gated by RefetchOnReconnect.
func (q *Query[T]) Reconnect() {
	if q.opts.RefetchOnReconnect {
		q.revalidateIfNeeded("reconnect")
	}
}

func (q *Query[T]) revalidateIfNeeded(reason string) {
	if !q.opts.Enabled {
		return
	}
	q.mu.Lock()
	closed, key := q.closed, q.key
	q.mu.Unlock()
	if closed {
		return
	}

	if entry, ok := q.cache.Get(key); ok && !entry.Stale(q.cache.Now(), q.opts.StaleTime) {
		return
	}
	logging.QueryDebug("%s: %s revalidation", key, reason)
	q.revalidate()
}

func (q *Query[T]) revalidate() {
	go func() {
		_, _ = q.trigger(context.Background(), true)
	}()
}

// Rekey aborts any in-flight attempt, switches to key and fn (nil keeps the
// current fetcher), clears the state and mounts again.
func (q *Query[T]) Rekey(ctx context.Context, key string, fn Fetcher[T]) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.cancel()
	q.runCtx, q.cancel = context.WithCancel(context.Background())
	q.epoch++
	old := q.unwatch
	q.key = key
	if fn != nil {
		q.fetch = fn
	}
	q.state = State[T]{}
	st := q.state
	q.mu.Unlock()

	old()
	unwatch := q.cache.Subscribe(key, q.onCacheEvent)
	q.mu.Lock()
	q.unwatch = unwatch
	q.mu.Unlock()

	logging.QueryDebug("rekeyed to %s", key)
	q.publish(st)
	return q.Mount(ctx)
}

// Close aborts in-flight work, releases waiters with ErrClosed and detaches
// from the cache and the client.
func (q *Query[T]) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.cancel()
	c := q.pending
	q.pending = nil
	unwatch := q.unwatch
	q.subs = make(map[int]func(State[T]))
	q.mu.Unlock()

	q.debouncer.Stop()
	unwatch()
	q.client.untrack(q)
	if c != nil {
		c.err = ErrClosed
		close(c.done)
	}
}

func (q *Query[T]) onCacheEvent(ev Event) {
	if ev.Kind != EventSet {
		return
	}
	v, ok := ev.Entry.Data.(T)
	if !ok {
		logging.QueryWarn("%s: ignoring cached value of type %T", ev.Key, ev.Entry.Data)
		return
	}

	q.mu.Lock()
	if q.closed || ev.Key != q.key {
		q.mu.Unlock()
		return
	}
	q.state.Data = v
	q.state.HasData = true
	q.state.HasLoaded = true
	q.state.LastUpdated = ev.Entry.WrittenAt
	st := q.state
	q.mu.Unlock()

	q.publish(st)
}

// trigger joins the pending debounced call, reschedules it and waits.
func (q *Query[T]) trigger(ctx context.Context, background bool) (T, error) {
	var zero T

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return zero, ErrClosed
	}
	c := q.pending
	if c == nil {
		c = &call[T]{done: make(chan struct{})}
		q.pending = c
	}
	if !background {
		c.foreground = true
	}
	// Flags go up as soon as a fetch is queued so the debounce window
	// reads as loading; execute settles them.
	changed := false
	if background && !q.state.IsLoading && !q.state.IsValidating {
		q.state.IsValidating = true
		changed = true
	} else if !background && !q.state.IsLoading {
		q.state.IsLoading = true
		changed = true
	}
	st := q.state
	q.mu.Unlock()

	if changed {
		q.publish(st)
	}
	q.debouncer.Call(struct{}{})

	select {
	case <-c.done:
		return c.val, c.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// fire runs when the debounce delay elapses. A fetch already in flight is
// joined rather than duplicated.
func (q *Query[T]) fire(struct{}) {
	q.mu.Lock()
	c := q.pending
	q.pending = nil
	key := q.key
	q.mu.Unlock()
	if c == nil {
		return
	}

	res := <-q.flight.DoChan(key, func() (any, error) {
		return q.execute(!c.foreground)
	})
	if v, ok := res.Val.(T); ok {
		c.val = v
	}
	c.err = res.Err
	close(c.done)
}

func (q *Query[T]) newAttempt(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	q.mu.Lock()
	if q.abort != nil {
		q.abort()
	}
	q.abort = cancel
	q.mu.Unlock()
	return ctx, cancel
}

func (q *Query[T]) execute(background bool) (T, error) {
	var zero T

	q.mu.Lock()
	key, fetch, runCtx, epoch := q.key, q.fetch, q.runCtx, q.epoch
	q.mu.Unlock()

	q.update(epoch, func(s *State[T]) {
		if background {
			s.IsValidating = true
		} else {
			s.IsLoading = true
		}
		s.RetryCount = 0
	})
	settle := func(s *State[T]) {
		s.IsLoading = false
		s.IsValidating = false
	}

	version := q.cache.Version(key)
	for attempt := 0; ; attempt++ {
		ctx, cancel := q.newAttempt(runCtx)
		val, err := fetch(ctx)
		aborted := ctx.Err() != nil
		cancel()

		if aborted {
			logging.QueryDebug("%s: attempt %d aborted", key, attempt+1)
			q.update(epoch, settle)
			return zero, ErrAborted
		}
		if err == nil {
			return q.succeed(epoch, key, version, val), nil
		}
		if attempt >= q.opts.RetryCount {
			logging.QueryWarn("%s: giving up after %d attempts: %v", key, attempt+1, err)
			if q.update(epoch, func(s *State[T]) {
				settle(s)
				s.Err = err
			}) && q.opts.OnError != nil {
				q.opts.OnError(err)
			}
			return zero, err
		}

		logging.QueryDebug("%s: attempt %d failed, retrying in %s: %v", key, attempt+1, q.opts.RetryDelay, err)
		q.update(epoch, func(s *State[T]) { s.RetryCount = attempt + 1 })

		t := time.NewTimer(q.opts.RetryDelay)
		select {
		case <-runCtx.Done():
			t.Stop()
			q.update(epoch, settle)
			return zero, ErrAborted
		case <-t.C:
		}
	}
}

// succeed writes val unless a newer value was written meanwhile, in which
// case the newer value wins.
func (q *Query[T]) succeed(epoch uint64, key string, version uint64, val T) T {
	data := val
	entry, won := q.cache.SetIfVersion(key, val, q.opts.CacheTime, version)
	if !won {
		if cur, ok := entry.Data.(T); ok && entry.Version > 0 {
			logging.QueryDebug("%s: fetched value superseded by a newer write", key)
			data = cur
		} else {
			entry = q.cache.Set(key, val, q.opts.CacheTime)
		}
	}

	if q.update(epoch, func(s *State[T]) {
		s.Data = data
		s.HasData = true
		s.HasLoaded = true
		s.LastUpdated = entry.WrittenAt
		s.Err = nil
		s.RetryCount = 0
		s.IsLoading = false
		s.IsValidating = false
	}) && q.opts.OnSuccess != nil {
		q.opts.OnSuccess(data)
	}
	return data
}
