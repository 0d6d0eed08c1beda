package query

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Member is a query as seen by a Group.
type Member interface {
	Mount(ctx context.Context) error
	Status() Status
}

// GroupState aggregates the members of a Group.
type GroupState struct {
	IsLoading bool // any member loading
	HasError  bool // any member failed
	AllLoaded bool // every member loaded at least once
}

// Group runs any number of queries side by side.
type Group struct {
	mu      sync.Mutex
	members []Member
	limit   int
}

// NewGroup creates a group of members.
func NewGroup(members ...Member) *Group {
	return &Group{members: append([]Member(nil), members...)}
}

// SetLimit caps how many members mount at once. n <= 0 means no cap.
func (g *Group) SetLimit(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.limit = n
}

// Add appends a member.
func (g *Group) Add(m Member) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.members = append(g.members, m)
}

// Len returns the number of members.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.members)
}

// Mount mounts every member concurrently and waits for all of them. The
// first Mount error (cancellation or a closed member) is returned.
func (g *Group) Mount(ctx context.Context) error {
	g.mu.Lock()
	members := append([]Member(nil), g.members...)
	limit := g.limit
	g.mu.Unlock()

	var eg errgroup.Group
	if limit > 0 {
		eg.SetLimit(limit)
	}
	for _, m := range members {
		eg.Go(func() error {
			return m.Mount(ctx)
		})
	}
	return eg.Wait()
}

// State folds the members' statuses.
func (g *Group) State() GroupState {
	g.mu.Lock()
	members := append([]Member(nil), g.members...)
	g.mu.Unlock()

	gs := GroupState{AllLoaded: true}
	for _, m := range members {
		st := m.Status()
		gs.IsLoading = gs.IsLoading || st.IsLoading
		gs.HasError = gs.HasError || st.Err != nil
		gs.AllLoaded = gs.AllLoaded && st.HasLoaded
	}
	return gs
}
