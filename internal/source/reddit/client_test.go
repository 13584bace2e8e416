package reddit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/userpulse/insight-miner/internal/miner"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

const searchListing = `{
  "data": {
    "children": [
      {"kind": "t3", "data": {
        "id": "abc",
        "title": "Acme 2.0 released",
        "selftext": "Changelog at https://github.com/acme/acme",
        "author": "acme_official",
        "score": 42,
        "num_comments": 7,
        "created_utc": 1756500000,
        "permalink": "/r/SaaS/comments/abc/acme_20_released/",
        "url": "https://www.reddit.com/r/SaaS/comments/abc/acme_20_released/",
        "is_self": true
      }},
      {"kind": "t3", "data": {
        "id": "def",
        "title": "Acme vs Globex",
        "selftext": "",
        "author": "founder123",
        "score": 9,
        "num_comments": 2,
        "created_utc": 1756400000,
        "permalink": "/r/SaaS/comments/def/acme_vs_globex/",
        "url": "https://acme.dev/blog/comparison",
        "is_self": false
      }}
    ]
  }
}`

const commentsPayload = `[
  {"data": {"children": [{"kind": "t3", "data": {"id": "abc"}}]}},
  {"data": {"children": [
    {"kind": "t1", "data": {"id": "c1", "body": "Love the new UI", "author": "u1", "score": 5, "created_utc": 1756510000, "permalink": "/r/SaaS/comments/abc/c1/"}},
    {"kind": "t1", "data": {"id": "c2", "body": "[deleted]", "author": "u2", "score": 3, "created_utc": 1756510000, "permalink": "/r/SaaS/comments/abc/c2/"}},
    {"kind": "more", "data": {}}
  ]}}
]`

func testServer(t *testing.T, apiStatus int) (*httptest.Server, *Client) {
	t.Helper()
	var tokenCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/token":
			tokenCalls++
			user, pass, ok := r.BasicAuth()
			require.True(t, ok)
			require.Equal(t, "cid", user)
			require.Equal(t, "csecret", pass)
			require.Equal(t, "password", r.FormValue("grant_type"))
			w.Write([]byte(`{"access_token":"tok-1","expires_in":3600}`))
		case r.URL.Path == "/r/SaaS/search":
			require.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
			q := r.URL.Query()
			require.Equal(t, `"Acme" OR "acme.io"`, q.Get("q"))
			require.Equal(t, "1", q.Get("restrict_sr"))
			require.Equal(t, "new", q.Get("sort"))
			require.Equal(t, "month", q.Get("t"))
			require.Equal(t, "50", q.Get("limit"))
			if apiStatus != http.StatusOK {
				w.WriteHeader(apiStatus)
				return
			}
			w.Write([]byte(searchListing))
		case r.URL.Path == "/comments/abc":
			w.Write([]byte(commentsPayload))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))

	client := New(Config{
		ClientID:     "cid",
		ClientSecret: "csecret",
		Username:     "bot",
		Password:     "pw",
		AuthURL:      srv.URL + "/token",
		APIBaseURL:   srv.URL,
		RPS:          1000,
		Burst:        100,
	}, fixedClock{time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)}, nil)
	return srv, client
}

func TestSearchParsesListing(t *testing.T) {
	srv, client := testServer(t, http.StatusOK)
	defer srv.Close()

	posts, err := client.Search(context.Background(), "SaaS", []string{"Acme", "acme.io", " "}, 30, 50)
	require.NoError(t, err)
	require.Len(t, posts, 2)

	assert.Equal(t, "abc", posts[0].ID)
	assert.Equal(t, "Acme 2.0 released", posts[0].Title)
	assert.Equal(t, 42, posts[0].Score)
	assert.Equal(t, 7, posts[0].ReplyCount)
	assert.Equal(t, "https://www.reddit.com/r/SaaS/comments/abc/acme_20_released/", posts[0].Permalink)
	// Self posts carry no outbound link; link posts do.
	assert.Empty(t, posts[0].OutboundURL)
	assert.Equal(t, "https://acme.dev/blog/comparison", posts[1].OutboundURL)
}

func TestSearchTokenReused(t *testing.T) {
	srv, client := testServer(t, http.StatusOK)
	defer srv.Close()

	_, err := client.Search(context.Background(), "SaaS", []string{"Acme", "acme.io"}, 30, 50)
	require.NoError(t, err)
	_, err = client.Search(context.Background(), "SaaS", []string{"Acme", "acme.io"}, 30, 50)
	require.NoError(t, err)
	// Second search reuses the cached token; the handler asserts Bearer tok-1
	// and would fail on a re-auth returning a fresh token.
}

func TestSearchRateLimited(t *testing.T) {
	srv, client := testServer(t, http.StatusTooManyRequests)
	defer srv.Close()

	_, err := client.Search(context.Background(), "SaaS", []string{"Acme", "acme.io"}, 30, 50)
	assert.ErrorIs(t, err, miner.ErrRateLimited)
}

func TestSearchUpstreamDown(t *testing.T) {
	srv, client := testServer(t, http.StatusServiceUnavailable)
	defer srv.Close()

	_, err := client.Search(context.Background(), "SaaS", []string{"Acme", "acme.io"}, 30, 50)
	assert.ErrorIs(t, err, miner.ErrUpstreamUnavailable)
}

func TestRepliesSkipsDeletedAndNonComments(t *testing.T) {
	srv, client := testServer(t, http.StatusOK)
	defer srv.Close()

	replies, err := client.Replies(context.Background(), miner.Post{ID: "abc"})
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, "c1", replies[0].ID)
	assert.Equal(t, "Love the new UI", replies[0].Body)
	assert.Equal(t, "https://www.reddit.com/r/SaaS/comments/abc/c1/", replies[0].Permalink)
}

func TestTimeWindowBuckets(t *testing.T) {
	cases := map[int]string{1: "day", 7: "week", 30: "month", 31: "month", 90: "year", 400: "all"}
	for days, want := range cases {
		assert.Equal(t, want, timeWindow(days), "days=%d", days)
	}
}
