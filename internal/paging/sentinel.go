package paging

import (
	"context"

	"engineerhub/internal/visibility"
)

// MoreLoader is the part of a Session an infinite-scroll sentinel needs.
type MoreLoader interface {
	LoadMore(ctx context.Context) error
}

// OnVisible returns a visibility callback that asks l for the next page each
// time the sentinel scrolls into view. The fetch runs on its own goroutine so
// the host's scroll handler never blocks; the session's single-flight guard
// absorbs bursts.
func OnVisible(ctx context.Context, l MoreLoader) func(visibility.Entry) {
	return func(e visibility.Entry) {
		if !e.IsIntersecting {
			return
		}
		go func() {
			_ = l.LoadMore(ctx)
		}()
	}
}
