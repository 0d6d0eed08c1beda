package query

import (
	"sync"

	"engineerhub/internal/logging"
)

// lifecycle is what a Client broadcasts to.
type lifecycle interface {
	Focus()
	Reconnect()
}

// Client owns the shared cache and default settings, and fans focus and
// reconnect signals out to every live query.
type Client struct {
	Cache    *Cache
	Defaults Config

	mu   sync.Mutex
	live map[lifecycle]struct{}
}

// NewClient creates a client. A nil cache gets a fresh one.
func NewClient(cache *Cache, defaults Config) *Client {
	if cache == nil {
		cache = NewCache(CacheOptions{})
	}
	return &Client{
		Cache:    cache,
		Defaults: defaults,
		live:     make(map[lifecycle]struct{}),
	}
}

func (c *Client) track(q lifecycle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.live[q] = struct{}{}
}

func (c *Client) untrack(q lifecycle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.live, q)
}

func (c *Client) snapshot() []lifecycle {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]lifecycle, 0, len(c.live))
	for q := range c.live {
		out = append(out, q)
	}
	return out
}

// Live returns the number of open queries.
func (c *Client) Live() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.live)
}

// Focus tells every live query that the user is back.
func (c *Client) Focus() {
	qs := c.snapshot()
	logging.QueryDebug("focus broadcast to %d queries", len(qs))
	for _, q := range qs {
		q.Focus()
	}
}

// Reconnect tells every live query that connectivity returned.
func (c *Client) Reconnect() {
	qs := c.snapshot()
	logging.Query("reconnect broadcast to %d queries", len(qs))
	for _, q := range qs {
		q.Reconnect()
	}
}
