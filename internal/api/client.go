// Package api is the HTTP client for the EngineerHub REST API. Its list
// endpoints satisfy the paging fetch contract and its single-resource
// endpoints satisfy the query fetch contract.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"engineerhub/internal/logging"
	"engineerhub/internal/paging"
)

// DefaultTimeout bounds every request when Options.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps how much of a failed response is kept in Error.Body.
const maxErrorBody = 4096

// Error is a non-2xx response.
type Error struct {
	Status int
	Body   string
}

func (e *Error) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("api: status %d", e.Status)
	}
	return fmt.Sprintf("api: status %d: %s", e.Status, e.Body)
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client // overrides Timeout; its Jar is kept if set
}

// Client talks to one API base URL. It is safe for concurrent use.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// New creates a client. Session cookies set by the server are kept in a
// public-suffix aware jar.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", opts.BaseURL)
	}

	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	if hc.Jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		hc.Jar = jar
	}

	return &Client{base: base, token: opts.Token, http: hc}, nil
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string { return c.base.String() }

func (c *Client) endpoint(path string, q url.Values) string {
	u := c.base.ResolveReference(&url.URL{Path: strings.TrimLeft(path, "/")})
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	target := c.endpoint(path, q)
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	logging.APIDebug("%s %s -> %d in %s", method, target, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &Error{Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

func pageQuery(page, pageSize int, extra url.Values) url.Values {
	q := url.Values{}
	for k, v := range extra {
		q[k] = v
	}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))
	return q
}

func list[T any](c *Client, path string, extra url.Values) paging.Fetcher[T] {
	return func(ctx context.Context, page, pageSize int) (paging.Page[T], error) {
		var p paging.Page[T]
		err := c.do(ctx, http.MethodGet, path, pageQuery(page, pageSize, extra), nil, &p)
		return p, err
	}
}

// =============================================================================
// ENDPOINTS
// =============================================================================

// Feed lists posts, newest first.
func (c *Client) Feed() paging.Fetcher[Post] {
	return list[Post](c, "posts/", nil)
}

// SearchPosts lists posts matching term.
func (c *Client) SearchPosts(term string) paging.Fetcher[Post] {
	return list[Post](c, "posts/", url.Values{"search": {term}})
}

// Comments lists the comments of a post.
func (c *Client) Comments(postID int) paging.Fetcher[Comment] {
	return list[Comment](c, fmt.Sprintf("posts/%d/comments/", postID), nil)
}

// Conversations lists the signed-in user's conversations.
func (c *Client) Conversations() paging.Fetcher[Conversation] {
	return list[Conversation](c, "chat/conversations/", nil)
}

// Messages lists a conversation's messages, newest first.
func (c *Client) Messages(conversationID int) paging.Fetcher[ChatMessage] {
	return list[ChatMessage](c, fmt.Sprintf("chat/conversations/%d/messages/", conversationID), nil)
}

// Notifications lists the signed-in user's notifications.
func (c *Client) Notifications() paging.Fetcher[Notification] {
	return list[Notification](c, "notifications/", nil)
}

// Post returns a fetcher for one post.
func (c *Client) Post(id int) func(ctx context.Context) (Post, error) {
	return func(ctx context.Context) (Post, error) {
		var p Post
		err := c.do(ctx, http.MethodGet, fmt.Sprintf("posts/%d/", id), nil, nil, &p)
		return p, err
	}
}

// Me returns a fetcher for the signed-in user.
func (c *Client) Me() func(ctx context.Context) (User, error) {
	return func(ctx context.Context) (User, error) {
		var u User
		err := c.do(ctx, http.MethodGet, "auth/me/", nil, nil, &u)
		return u, err
	}
}

// ToggleLike likes or unlikes a post and returns its new state.
func (c *Client) ToggleLike(ctx context.Context, postID int) (Post, error) {
	var p Post
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("posts/%d/like/", postID), nil, struct{}{}, &p)
	return p, err
}
