package paging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"engineerhub/internal/logging"
	"engineerhub/internal/visibility"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func link(s string) *string { return &s }

// pagedSource serves a fixed list split into pages, like the REST API does.
type pagedSource struct {
	items []string
	calls atomic.Int32
	fail  map[int]error
}

func newSource(n int) *pagedSource {
	src := &pagedSource{fail: map[int]error{}}
	for i := 1; i <= n; i++ {
		src.items = append(src.items, fmt.Sprintf("item-%02d", i))
	}
	return src
}

func (p *pagedSource) fetch(_ context.Context, page, size int) (Page[string], error) {
	p.calls.Add(1)
	if err := p.fail[page]; err != nil {
		return Page[string]{}, err
	}
	start := (page - 1) * size
	end := min(start+size, len(p.items))
	res := Page[string]{Count: len(p.items)}
	if start < len(p.items) {
		res.Results = append([]string(nil), p.items[start:end]...)
	}
	if end < len(p.items) {
		res.Next = link(fmt.Sprintf("?page=%d", page+1))
	}
	if page > 1 {
		res.Previous = link(fmt.Sprintf("?page=%d", page-1))
	}
	return res, nil
}

func TestInfiniteScrollScenario(t *testing.T) {
	src := newSource(25)
	s := NewSession(src.fetch, Options{PageSize: 10, Mode: Infinite, AutoLoad: true})
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))
	st := s.State()
	assert.True(t, st.HasNext)
	assert.Len(t, st.Items, 10)
	assert.Equal(t, 3, st.TotalPages)

	require.NoError(t, s.LoadMore(ctx))
	st = s.State()
	assert.Len(t, st.Items, 20)
	assert.True(t, st.HasNext)

	require.NoError(t, s.LoadMore(ctx))
	st = s.State()
	assert.Len(t, st.Items, 25)
	assert.False(t, st.HasNext)
	assert.Equal(t, Loaded, st.Status)

	// Exhausted: further calls do not fetch.
	require.NoError(t, s.LoadMore(ctx))
	assert.Equal(t, int32(3), src.calls.Load())
}

func TestInfiniteAccumulationPreservesOrder(t *testing.T) {
	src := newSource(7)
	s := NewSession(src.fetch, Options{PageSize: 3, Mode: Infinite})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.LoadMore(ctx))
	}

	if diff := cmp.Diff(src.items, s.State().Items); diff != "" {
		t.Errorf("accumulated items mismatch (-want +got):\n%s", diff)
	}
}

func TestDiscreteReplacement(t *testing.T) {
	src := newSource(10)
	s := NewSession(src.fetch, Options{PageSize: 4})
	ctx := context.Background()

	require.NoError(t, s.LoadPage(ctx, 2))
	require.NoError(t, s.LoadPage(ctx, 1))

	st := s.State()
	assert.Equal(t, []string{"item-01", "item-02", "item-03", "item-04"}, st.Items)
	assert.Equal(t, 1, st.CurrentPage)
	assert.False(t, st.HasPrevious)
	assert.True(t, st.HasNext)
}

func TestDiscreteNextPrev(t *testing.T) {
	src := newSource(10)
	s := NewSession(src.fetch, Options{PageSize: 4, AutoLoad: true})
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))
	require.NoError(t, s.NextPage(ctx))
	require.NoError(t, s.NextPage(ctx))
	st := s.State()
	assert.Equal(t, 3, st.CurrentPage)
	assert.Equal(t, []string{"item-09", "item-10"}, st.Items)
	assert.False(t, st.HasNext)

	require.NoError(t, s.NextPage(ctx))
	assert.Equal(t, int32(3), src.calls.Load(), "no next page means no fetch")

	require.NoError(t, s.PrevPage(ctx))
	assert.Equal(t, 2, s.State().CurrentPage)
}

func TestSingleFlight(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	fetch := func(ctx context.Context, page, size int) (Page[int], error) {
		calls.Add(1)
		<-release
		return Page[int]{Results: []int{page}, Count: 100, Next: link("n"), Previous: link("p")}, nil
	}
	s := NewSession(fetch, Options{PageSize: 1})
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.LoadPage(ctx, 5)
	}()

	require.Eventually(t, func() bool { return s.State().IsLoading }, time.Second, time.Millisecond)

	// All of these land while the first fetch is pending.
	require.NoError(t, s.LoadPage(ctx, 1))
	require.NoError(t, s.NextPage(ctx))
	require.NoError(t, s.PrevPage(ctx))
	require.NoError(t, s.Refresh(ctx))

	close(release)
	<-done

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, []int{5}, s.State().Items)
}

func TestFirstLoadFailureClearsItems(t *testing.T) {
	src := newSource(5)
	boom := errors.New("503")
	src.fail[1] = boom
	s := NewSession(src.fetch, Options{PageSize: 2})

	require.NoError(t, s.LoadPage(context.Background(), 1))

	st := s.State()
	assert.Empty(t, st.Items)
	assert.ErrorIs(t, st.Err, boom)
	assert.Equal(t, Failed, st.Status)
	assert.False(t, st.IsLoading)
	assert.True(t, st.IsFirstLoad)
}

func TestLaterFailureKeepsItems(t *testing.T) {
	src := newSource(5)
	s := NewSession(src.fetch, Options{PageSize: 2})
	ctx := context.Background()

	require.NoError(t, s.LoadPage(ctx, 1))
	src.fail[2] = errors.New("timeout")
	require.NoError(t, s.NextPage(ctx))

	st := s.State()
	assert.Equal(t, []string{"item-01", "item-02"}, st.Items)
	assert.Error(t, st.Err)
	assert.Equal(t, 1, st.CurrentPage)

	// Caller-triggered retry succeeds and clears the error.
	delete(src.fail, 2)
	require.NoError(t, s.NextPage(ctx))
	st = s.State()
	assert.NoError(t, st.Err)
	assert.Equal(t, 2, st.CurrentPage)
}

func TestCancelledContextIsNotAFailure(t *testing.T) {
	fetch := func(ctx context.Context, page, size int) (Page[int], error) {
		<-ctx.Done()
		return Page[int]{}, ctx.Err()
	}
	s := NewSession(fetch, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.LoadPage(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)

	st := s.State()
	assert.NoError(t, st.Err)
	assert.Equal(t, Idle, st.Status)
	assert.False(t, st.IsLoading)
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()

	t.Run("infinite restarts at page one", func(t *testing.T) {
		src := newSource(9)
		s := NewSession(src.fetch, Options{PageSize: 3, Mode: Infinite})
		require.NoError(t, s.LoadMore(ctx))
		require.NoError(t, s.LoadMore(ctx))
		require.Len(t, s.State().Items, 6)

		require.NoError(t, s.Refresh(ctx))
		st := s.State()
		assert.Equal(t, []string{"item-01", "item-02", "item-03"}, st.Items)
		assert.Equal(t, 1, st.CurrentPage)
	})

	t.Run("discrete refetches current page", func(t *testing.T) {
		src := newSource(9)
		s := NewSession(src.fetch, Options{PageSize: 3})
		require.NoError(t, s.LoadPage(ctx, 2))
		src.items[3] = "edited"

		require.NoError(t, s.Refresh(ctx))
		st := s.State()
		assert.Equal(t, 2, st.CurrentPage)
		assert.Equal(t, "edited", st.Items[0])
	})
}

func TestReset(t *testing.T) {
	src := newSource(9)
	s := NewSession(src.fetch, Options{PageSize: 3})
	ctx := context.Background()
	require.NoError(t, s.LoadPage(ctx, 2))
	before := src.calls.Load()

	s.Reset()

	st := s.State()
	assert.Empty(t, st.Items)
	assert.Equal(t, 1, st.CurrentPage)
	assert.Equal(t, Idle, st.Status)
	assert.NoError(t, st.Err)
	assert.True(t, st.IsFirstLoad)
	assert.Equal(t, before, src.calls.Load(), "reset does not fetch")
}

func TestResetDiscardsInFlightResult(t *testing.T) {
	release := make(chan struct{})
	fetch := func(ctx context.Context, page, size int) (Page[int], error) {
		<-release
		return Page[int]{Results: []int{1, 2}, Count: 2}, nil
	}
	s := NewSession(fetch, Options{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.LoadPage(context.Background(), 1)
	}()
	require.Eventually(t, func() bool { return s.State().IsLoading }, time.Second, time.Millisecond)

	s.Reset()
	close(release)
	<-done

	assert.Empty(t, s.State().Items)
	assert.Equal(t, Idle, s.State().Status)
}

func TestSetDeps(t *testing.T) {
	src := newSource(9)
	s := NewSession(src.fetch, Options{PageSize: 3, Mode: Infinite, AutoLoad: true})
	ctx := context.Background()

	require.NoError(t, s.SetDeps(ctx, "golang", 1))
	require.NoError(t, s.LoadMore(ctx))
	require.Len(t, s.State().Items, 6)

	require.NoError(t, s.SetDeps(ctx, "golang", 1))
	assert.Len(t, s.State().Items, 6, "unchanged deps keep pages")

	require.NoError(t, s.SetDeps(ctx, "rust", 1))
	st := s.State()
	assert.Len(t, st.Items, 3, "changed deps discard pages and reload page one")
	assert.Equal(t, 1, st.CurrentPage)
}

func TestInitialPage(t *testing.T) {
	src := newSource(9)
	s := NewSession(src.fetch, Options{PageSize: 3, AutoLoad: true, InitialPage: 2})
	ctx := context.Background()

	assert.Equal(t, 2, s.State().CurrentPage)
	require.NoError(t, s.Start(ctx))
	st := s.State()
	assert.Equal(t, []string{"item-04", "item-05", "item-06"}, st.Items)
	assert.True(t, st.HasPrevious)

	require.NoError(t, s.SetDeps(ctx, "rust"))
	assert.Equal(t, 2, s.State().CurrentPage, "changed deps reload the initial page")
	assert.Equal(t, "item-04", s.State().Items[0])

	s.Reset()
	assert.Equal(t, 2, s.State().CurrentPage)
	require.NoError(t, s.NextPage(ctx))
	assert.Equal(t, "item-04", s.State().Items[0], "next page from idle starts at the initial page")

	inf := NewSession(src.fetch, Options{PageSize: 3, Mode: Infinite, InitialPage: 2})
	require.NoError(t, inf.LoadMore(ctx))
	require.NoError(t, inf.LoadMore(ctx))
	require.Len(t, inf.State().Items, 6)
	require.NoError(t, inf.Refresh(ctx))
	assert.Equal(t, []string{"item-04", "item-05", "item-06"}, inf.State().Items)
}

func TestSetDepsKeepsOneFetchInFlight(t *testing.T) {
	var (
		mu       sync.Mutex
		inFlight int
		peak     int
	)
	started := make(chan string, 2)
	fetch := func(ctx context.Context, page, size int) (Page[int], error) {
		mu.Lock()
		inFlight++
		peak = max(peak, inFlight)
		mu.Unlock()
		defer func() {
			mu.Lock()
			inFlight--
			mu.Unlock()
		}()

		started <- "fetch"
		<-ctx.Done()
		// Linger past cancellation the way a slow transport does.
		time.Sleep(20 * time.Millisecond)
		return Page[int]{}, ctx.Err()
	}
	s := NewSession(fetch, Options{AutoLoad: true})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.SetDeps(ctx, "a") }()
	<-started

	second := make(chan error, 1)
	go func() { second <- s.SetDeps(ctx, "b") }()
	<-started

	require.NoError(t, <-done, "the abandoned load returns quietly")
	cancel()
	assert.ErrorIs(t, <-second, context.Canceled)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, peak, "a load after a dependency change waits for the abandoned fetch")
}

func TestMisuseWarnsWithoutFetching(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	logging.Configure(zap.New(core), logging.Options{})
	t.Cleanup(func() { logging.Configure(nil, logging.Options{}) })

	src := newSource(9)
	ctx := context.Background()

	discrete := NewSession(src.fetch, Options{PageSize: 3})
	require.NoError(t, discrete.LoadMore(ctx))

	infinite := NewSession(src.fetch, Options{PageSize: 3, Mode: Infinite})
	require.NoError(t, infinite.LoadMore(ctx))
	require.NoError(t, infinite.LoadMore(ctx))
	require.NoError(t, infinite.PrevPage(ctx))

	assert.Equal(t, int32(2), src.calls.Load())
	assert.Equal(t, 1, logs.FilterMessage("LoadMore called on a discrete session; ignored").Len())
	assert.Equal(t, 1, logs.FilterMessage("PrevPage called on an infinite-scroll session; ignored").Len())
	assert.Equal(t, 2, infinite.State().CurrentPage)
}

func TestSubscribeSeesLoadingThenLoaded(t *testing.T) {
	src := newSource(3)
	s := NewSession(src.fetch, Options{PageSize: 3})

	var mu sync.Mutex
	var statuses []Status
	unsub := s.Subscribe(func(st State[string]) {
		mu.Lock()
		statuses = append(statuses, st.Status)
		mu.Unlock()
	})

	require.NoError(t, s.LoadPage(context.Background(), 1))
	unsub()
	s.Reset()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Status{Loading, Loaded}, statuses)
}

func TestOnVisibleLoadsMore(t *testing.T) {
	src := newSource(6)
	s := NewSession(src.fetch, Options{PageSize: 2, Mode: Infinite})
	ctx := context.Background()
	require.NoError(t, s.LoadMore(ctx))

	cb := OnVisible(ctx, s)
	cb(visibility.Entry{IsIntersecting: false})
	cb(visibility.Entry{IsIntersecting: true})

	require.Eventually(t, func() bool {
		st := s.State()
		return len(st.Items) == 4 && !st.IsLoading
	}, time.Second, time.Millisecond)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestTotalPages(t *testing.T) {
	assert.Equal(t, 0, totalPages(0, 10))
	assert.Equal(t, 1, totalPages(10, 10))
	assert.Equal(t, 3, totalPages(25, 10))
}
