// Package reddit implements the discussion Source against the Reddit OAuth
// API using the script-app password grant.
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/userpulse/insight-miner/internal/miner"
)

const (
	defaultAuthURL = "https://www.reddit.com/api/v1/access_token"
	defaultAPIURL  = "https://oauth.reddit.com"
)

// Config holds Reddit API credentials and client tuning.
type Config struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	UserAgent    string
	AuthURL      string
	APIBaseURL   string
	// RPS and Burst feed the client-side limiter. Reddit enforces roughly
	// 60 requests per minute per OAuth client.
	RPS     float64
	Burst   int
	Timeout time.Duration
}

// Client is a rate-limited Reddit API client implementing miner.Source.
type Client struct {
	http    *http.Client
	cfg     Config
	limiter *rate.Limiter
	clock   miner.Clock
	logger  *zap.Logger

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

// New builds a Client.
func New(cfg Config, clock miner.Clock, logger *zap.Logger) *Client {
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaultAuthURL
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "insight-miner/1.0"
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		clock:   clock,
		logger:  logger,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.clock.Now().Before(c.tokenExp) {
		return c.token, nil
	}

	form := url.Values{
		"grant_type": {"password"},
		"username":   {c.cfg.Username},
		"password":   {c.cfg.Password},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch token: %w: %v", miner.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch token: status %d: %w", resp.StatusCode, miner.ErrUpstreamUnavailable)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decode token: %w: %v", miner.ErrMalformedResponse, err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("decode token: empty access_token: %w", miner.ErrMalformedResponse)
	}
	c.token = tok.AccessToken
	// Refresh a minute early to avoid racing the expiry.
	c.tokenExp = c.clock.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - time.Minute)
	return c.token, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	token, err := c.ensureToken(ctx)
	if err != nil {
		return err
	}

	u := c.cfg.APIBaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w: %v", path, miner.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("GET %s: %w", path, miner.ErrRateLimited)
	case resp.StatusCode == http.StatusUnauthorized:
		// Token may have been revoked; drop it so the next call re-auths.
		c.mu.Lock()
		c.token = ""
		c.mu.Unlock()
		return fmt.Errorf("GET %s: status 401: %w", path, miner.ErrUpstreamUnavailable)
	case resp.StatusCode >= 500:
		return fmt.Errorf("GET %s: status %d: %w", path, resp.StatusCode, miner.ErrUpstreamUnavailable)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("GET %s: decode: %w: %v", path, miner.ErrMalformedResponse, err)
	}
	return nil
}

type listing struct {
	Data struct {
		Children []struct {
			Kind string          `json:"kind"`
			Data json.RawMessage `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type postData struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	Author      string  `json:"author"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
	Permalink   string  `json:"permalink"`
	URL         string  `json:"url"`
	IsSelf      bool    `json:"is_self"`
}

type commentData struct {
	ID         string  `json:"id"`
	Body       string  `json:"body"`
	Author     string  `json:"author"`
	Score      int     `json:"score"`
	CreatedUTC float64 `json:"created_utc"`
	Permalink  string  `json:"permalink"`
}

// timeWindow maps a lookback in days onto Reddit's coarse t= buckets,
// rounding up so the window never excludes in-range posts.
func timeWindow(days int) string {
	switch {
	case days <= 1:
		return "day"
	case days <= 7:
		return "week"
	case days <= 31:
		return "month"
	case days <= 365:
		return "year"
	default:
		return "all"
	}
}

// Search queries one subreddit for the variant terms, OR-joined and quoted,
// newest first.
func (c *Client) Search(ctx context.Context, community string, variants []string, days, limit int) ([]miner.Post, error) {
	quoted := make([]string, 0, len(variants))
	for _, v := range variants {
		if v = strings.TrimSpace(v); v != "" {
			quoted = append(quoted, fmt.Sprintf("%q", v))
		}
	}
	if len(quoted) == 0 {
		return nil, fmt.Errorf("search r/%s: no query variants", community)
	}

	query := url.Values{
		"q":           {strings.Join(quoted, " OR ")},
		"restrict_sr": {"1"},
		"sort":        {"new"},
		"t":           {timeWindow(days)},
		"limit":       {fmt.Sprintf("%d", limit)},
	}
	var list listing
	if err := c.get(ctx, "/r/"+community+"/search", query, &list); err != nil {
		return nil, fmt.Errorf("search r/%s: %w", community, err)
	}

	posts := make([]miner.Post, 0, len(list.Data.Children))
	for _, child := range list.Data.Children {
		if child.Kind != "t3" {
			continue
		}
		var data postData
		if err := json.Unmarshal(child.Data, &data); err != nil {
			c.logger.Warn("skipping undecodable post", zap.String("community", community), zap.Error(err))
			continue
		}
		posts = append(posts, c.toPost(data))
	}
	return posts, nil
}

// Replies fetches the top-scored top-level comments of a post.
func (c *Client) Replies(ctx context.Context, post miner.Post) ([]miner.Reply, error) {
	query := url.Values{
		"sort":  {"top"},
		"depth": {"1"},
		"limit": {"100"},
	}
	// The comments endpoint returns a two-element array: the post listing
	// then the comment listing.
	var payload []listing
	if err := c.get(ctx, "/comments/"+post.ID, query, &payload); err != nil {
		return nil, fmt.Errorf("replies for %s: %w", post.ID, err)
	}
	if len(payload) < 2 {
		return nil, fmt.Errorf("replies for %s: truncated payload: %w", post.ID, miner.ErrMalformedResponse)
	}

	var replies []miner.Reply
	for _, child := range payload[1].Data.Children {
		if child.Kind != "t1" {
			continue
		}
		var data commentData
		if err := json.Unmarshal(child.Data, &data); err != nil {
			continue
		}
		if data.Body == "" || data.Body == "[deleted]" || data.Body == "[removed]" {
			continue
		}
		replies = append(replies, miner.Reply{
			ID:        data.ID,
			Body:      data.Body,
			Author:    data.Author,
			Score:     data.Score,
			CreatedAt: time.Unix(int64(data.CreatedUTC), 0).UTC(),
			Permalink: "https://www.reddit.com" + data.Permalink,
		})
	}
	return replies, nil
}

func (c *Client) toPost(data postData) miner.Post {
	outbound := ""
	if !data.IsSelf {
		outbound = data.URL
	}
	return miner.Post{
		ID:          data.ID,
		Title:       data.Title,
		Body:        data.Selftext,
		Author:      data.Author,
		Score:       data.Score,
		ReplyCount:  data.NumComments,
		CreatedAt:   time.Unix(int64(data.CreatedUTC), 0).UTC(),
		Permalink:   "https://www.reddit.com" + data.Permalink,
		OutboundURL: outbound,
	}
}
