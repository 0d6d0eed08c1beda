// Package paging drives page-by-page retrieval from a caller-supplied fetch
// function. A Session either replaces its items on every page (Discrete) or
// accumulates them as the reader scrolls forward (Infinite).
//
// At most one fetch is in flight per session. Any operation issued while a
// fetch is running is dropped, not queued; callers re-trigger after it lands.
// A fetch abandoned by Reset is cancelled, and the next load waits for it to
// return before starting its own.
package paging

import (
	"context"
	"errors"
	"reflect"
	"slices"
	"sync"

	"engineerhub/internal/logging"
)

// DefaultPageSize is used when Options.PageSize is not positive.
const DefaultPageSize = 20

// Page is one fetched page. Next and Previous carry the server's links; only
// their presence matters here.
type Page[T any] struct {
	Results  []T     `json:"results"`
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
}

// Fetcher retrieves page number page (1-based) of size pageSize.
type Fetcher[T any] func(ctx context.Context, page, pageSize int) (Page[T], error)

// Mode selects how pages combine.
type Mode int

const (
	Discrete Mode = iota
	Infinite
)

func (m Mode) String() string {
	if m == Infinite {
		return "infinite"
	}
	return "discrete"
}

// Status is the session's state-machine position.
type Status int

const (
	Idle Status = iota
	Loading
	Loaded
	Failed
)

func (s Status) String() string {
	switch s {
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	default:
		return "idle"
	}
}

// Options configures a Session.
type Options struct {
	PageSize    int
	Mode        Mode
	AutoLoad    bool // load InitialPage on Start and whenever deps change
	InitialPage int  // first page loaded and the page Reset returns to; default 1
}

// State is a snapshot of a session.
type State[T any] struct {
	Items       []T
	CurrentPage int
	TotalPages  int
	TotalCount  int
	HasNext     bool
	HasPrevious bool
	IsLoading   bool
	IsFirstLoad bool
	Err         error
	Status      Status
}

// Session owns the accumulated items of one paginated list.
type Session[T any] struct {
	fetch Fetcher[T]
	opts  Options

	mu      sync.Mutex
	state   State[T]
	gen     uint64 // bumped by Reset; results from an older gen are discarded
	flight  chan struct{}      // non-nil while a fetch runs; closed when it returns
	abort   context.CancelFunc // cancels the running fetch
	deps    []any
	depsSet bool
	subs    map[int]func(State[T])
	nextSub int
}

// NewSession creates an idle session over fetch.
func NewSession[T any](fetch Fetcher[T], opts Options) *Session[T] {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.InitialPage < 1 {
		opts.InitialPage = 1
	}
	s := &Session[T]{
		fetch: fetch,
		opts:  opts,
		subs:  make(map[int]func(State[T])),
	}
	s.state = s.initialState()
	return s
}

func (s *Session[T]) initialState() State[T] {
	return State[T]{CurrentPage: s.opts.InitialPage, IsFirstLoad: true, Status: Idle}
}

// Mode returns the session's mode.
func (s *Session[T]) Mode() Mode { return s.opts.Mode }

// PageSize returns the effective page size.
func (s *Session[T]) PageSize() int { return s.opts.PageSize }

// State returns a snapshot safe to retain.
func (s *Session[T]) State() State[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Session[T]) snapshot() State[T] {
	st := s.state
	st.Items = slices.Clone(s.state.Items)
	return st
}

// Subscribe registers fn for every state change and returns its remover.
func (s *Session[T]) Subscribe(fn func(State[T])) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// publish notifies subscribers. Caller must not hold mu.
func (s *Session[T]) publish(st State[T]) {
	s.mu.Lock()
	fns := make([]func(State[T]), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}

// Start performs the initial load when AutoLoad is set.
func (s *Session[T]) Start(ctx context.Context) error {
	if !s.opts.AutoLoad {
		return nil
	}
	return s.LoadPage(ctx, s.opts.InitialPage)
}

// LoadPage fetches page n and replaces the items with it. It is a no-op while
// another fetch is in flight. Fetch failures are recorded in State().Err; the
// returned error is non-nil only when ctx itself was cancelled.
func (s *Session[T]) LoadPage(ctx context.Context, n int) error {
	if n < 1 {
		n = 1
	}
	return s.load(ctx, n, false)
}

// NextPage advances one page. In Infinite mode the new page is appended.
// No-op without a next page or while loading. From Idle it loads the
// initial page.
func (s *Session[T]) NextPage(ctx context.Context) error {
	s.mu.Lock()
	st := s.state
	s.mu.Unlock()

	if st.IsLoading {
		return nil
	}
	if st.Status == Idle {
		return s.load(ctx, s.opts.InitialPage, s.opts.Mode == Infinite)
	}
	if !st.HasNext {
		return nil
	}
	return s.load(ctx, st.CurrentPage+1, s.opts.Mode == Infinite)
}

// PrevPage goes back one page. Disabled in Infinite mode, where consumption
// only moves forward.
func (s *Session[T]) PrevPage(ctx context.Context) error {
	if s.opts.Mode == Infinite {
		logging.PagingWarn("PrevPage called on an infinite-scroll session; ignored")
		return nil
	}

	s.mu.Lock()
	st := s.state
	s.mu.Unlock()

	if st.IsLoading || !st.HasPrevious {
		return nil
	}
	return s.load(ctx, st.CurrentPage-1, false)
}

// LoadMore is NextPage for infinite scroll. Outside Infinite mode it is a
// no-op with a warning.
func (s *Session[T]) LoadMore(ctx context.Context) error {
	if s.opts.Mode != Infinite {
		logging.PagingWarn("LoadMore called on a %s session; ignored", s.opts.Mode)
		return nil
	}
	return s.NextPage(ctx)
}

// Refresh reloads. Infinite sessions drop everything and start over at the
// initial page; discrete sessions re-fetch the current page.
func (s *Session[T]) Refresh(ctx context.Context) error {
	if s.opts.Mode == Infinite {
		s.mu.Lock()
		if s.state.IsLoading {
			s.mu.Unlock()
			return nil
		}
		s.mu.Unlock()
		s.Reset()
		return s.load(ctx, s.opts.InitialPage, false)
	}

	s.mu.Lock()
	page := s.state.CurrentPage
	s.mu.Unlock()
	return s.load(ctx, page, false)
}

// Reset returns to the initial idle state without fetching. A fetch still in
// flight is cancelled and its result discarded.
func (s *Session[T]) Reset() {
	s.mu.Lock()
	s.gen++
	if s.abort != nil {
		s.abort()
	}
	s.state = s.initialState()
	st := s.snapshot()
	s.mu.Unlock()

	s.publish(st)
}

// SetDeps records the external parameters the list depends on. When they
// differ from the previous call the session resets and, with AutoLoad, loads
// the initial page.
func (s *Session[T]) SetDeps(ctx context.Context, deps ...any) error {
	s.mu.Lock()
	if s.depsSet && reflect.DeepEqual(s.deps, deps) {
		s.mu.Unlock()
		return nil
	}
	s.deps = slices.Clone(deps)
	s.depsSet = true
	s.mu.Unlock()

	logging.PagingDebug("dependencies changed; discarding loaded pages")
	s.Reset()
	if s.opts.AutoLoad {
		return s.LoadPage(ctx, s.opts.InitialPage)
	}
	return nil
}

// flightState carries what load needs from the slot begin claimed.
type flightState[T any] struct {
	ctx  context.Context
	gen  uint64
	prev State[T]
}

// begin claims the single in-flight slot. ok is false when a live fetch
// already holds it. A fetch orphaned by Reset still holds the slot until it
// returns, so begin waits it out.
func (s *Session[T]) begin(ctx context.Context) (f flightState[T], ok bool, err error) {
	for {
		s.mu.Lock()
		if s.state.IsLoading {
			s.mu.Unlock()
			return f, false, nil
		}
		if done := s.flight; done != nil {
			s.mu.Unlock()
			select {
			case <-done:
				continue
			case <-ctx.Done():
				return f, false, ctx.Err()
			}
		}

		f.prev = s.state
		f.gen = s.gen
		f.ctx, s.abort = context.WithCancel(ctx)
		s.flight = make(chan struct{})
		s.state.IsLoading = true
		s.state.Status = Loading
		st := s.snapshot()
		s.mu.Unlock()

		s.publish(st)
		return f, true, nil
	}
}

// land releases the slot. Caller holds mu.
func (s *Session[T]) land() {
	s.abort()
	close(s.flight)
	s.abort = nil
	s.flight = nil
}

func (s *Session[T]) load(ctx context.Context, page int, appendItems bool) error {
	f, ok, err := s.begin(ctx)
	if err != nil {
		return err
	}
	if !ok {
		logging.PagingDebug("page %d skipped: fetch already in flight", page)
		return nil
	}
	gen, prev := f.gen, f.prev

	res, err := s.fetch(f.ctx, page, s.opts.PageSize)

	s.mu.Lock()
	s.land()
	if gen != s.gen {
		s.mu.Unlock()
		return nil
	}

	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		// Caller gave up: not a failure, restore the pre-fetch view.
		s.state.IsLoading = false
		s.state.Status = prev.Status
		st := s.snapshot()
		s.mu.Unlock()
		s.publish(st)
		return ctx.Err()
	}

	st := &s.state
	st.IsLoading = false
	if err != nil {
		st.Err = err
		st.Status = Failed
		if st.IsFirstLoad {
			st.Items = nil
		}
		logging.PagingWarn("page %d failed: %v", page, err)
	} else {
		if appendItems {
			st.Items = append(st.Items, res.Results...)
		} else {
			st.Items = slices.Clone(res.Results)
		}
		st.CurrentPage = page
		st.TotalCount = res.Count
		st.TotalPages = totalPages(res.Count, s.opts.PageSize)
		st.HasNext = res.Next != nil
		st.HasPrevious = res.Previous != nil
		st.Err = nil
		st.Status = Loaded
		st.IsFirstLoad = false
		logging.PagingDebug("page %d loaded: %d items, %d total", page, len(res.Results), len(st.Items))
	}
	snap := s.snapshot()
	s.mu.Unlock()

	s.publish(snap)
	return nil
}

func totalPages(count, size int) int {
	if count <= 0 || size <= 0 {
		return 0
	}
	return (count + size - 1) / size
}
