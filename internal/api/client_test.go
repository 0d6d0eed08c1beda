package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(Options{BaseURL: srv.URL + "/api", Token: "tok"})
	require.NoError(t, err)
	return c
}

func TestFeedSatisfiesPageContract(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/posts/", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "10", r.URL.Query().Get("page_size"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"results": [{"id": 11, "title": "Go generics", "author": {"id": 1, "username": "ada"}}],
			"count": 25,
			"next": "http://x/api/posts/?page=3",
			"previous": "http://x/api/posts/?page=1"
		}`))
	})

	page, err := c.Feed()(context.Background(), 2, 10)
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	assert.Equal(t, "Go generics", page.Results[0].Title)
	assert.Equal(t, "ada", page.Results[0].Author.DisplayName())
	assert.Equal(t, 25, page.Count)
	assert.NotNil(t, page.Next)
	assert.NotNil(t, page.Previous)
}

func TestSearchAddsTerm(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "rust vs go", r.URL.Query().Get("search"))
		_, _ = w.Write([]byte(`{"results": [], "count": 0, "next": null, "previous": null}`))
	})

	page, err := c.SearchPosts("rust vs go")(context.Background(), 1, 20)
	require.NoError(t, err)
	assert.Empty(t, page.Results)
	assert.Nil(t, page.Next)
}

func TestNon2xxBecomesError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"Not found."}`, http.StatusNotFound)
	})

	_, err := c.Post(42)(context.Background())
	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Contains(t, apiErr.Body, "Not found.")
}

func TestSessionCookieIsKept(t *testing.T) {
	calls := 0
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.SetCookie(w, &http.Cookie{Name: "sessionid", Value: "abc", Path: "/"})
		} else {
			ck, err := r.Cookie("sessionid")
			if assert.NoError(t, err) {
				assert.Equal(t, "abc", ck.Value)
			}
		}
		_ = json.NewEncoder(w).Encode(User{ID: 1, Username: "ada", FirstName: "Ada", LastName: "Lovelace"})
	})

	u, err := c.Me()(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", u.DisplayName())
	_, err = c.Me()(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestToggleLikePosts(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/posts/7/like/", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_ = json.NewEncoder(w).Encode(Post{ID: 7, LikesCount: 3, IsLiked: true})
	})

	p, err := c.ToggleLike(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, p.IsLiked)
	assert.Equal(t, 3, p.LikesCount)
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	_, err := New(Options{BaseURL: "ftp://example.com"})
	assert.Error(t, err)
}
