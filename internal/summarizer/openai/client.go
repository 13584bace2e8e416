// Package openai implements the Summarizer against the OpenAI chat
// completions API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/userpulse/insight-miner/internal/miner"
)

const defaultBaseURL = "https://api.openai.com/v1"

// PageFetcher retrieves visible text from a product page. Optional; without
// one, ProductContext works from the product name alone.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Config holds API access and generation parameters.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// Client talks to the chat completions endpoint. All methods return typed
// errors so callers can choose their degrade path.
type Client struct {
	http    *http.Client
	cfg     Config
	fetcher PageFetcher
	logger  *zap.Logger
}

// New builds a Client. fetcher may be nil.
func New(cfg Config, fetcher PageFetcher, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		cfg:     cfg,
		fetcher: fetcher,
		logger:  logger,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w: %v", miner.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("chat completion: %w", miner.ErrRateLimited)
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("chat completion: status %d: %w", resp.StatusCode, miner.ErrUpstreamUnavailable)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("chat completion: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode chat response: %w: %v", miner.ErrMalformedResponse, err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("chat completion: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("chat completion: empty choices: %w", miner.ErrMalformedResponse)
	}
	return parsed.Choices[0].Message.Content, nil
}

// stripFences removes a markdown code fence wrapper if the model added one.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func looksLikeJSON(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[")
}

func (c *Client) completeJSON(ctx context.Context, system, user string, out any) error {
	content, err := c.complete(ctx, system, user)
	if err != nil {
		return err
	}
	content = stripFences(content)
	if !looksLikeJSON(content) {
		return fmt.Errorf("response is not JSON: %w", miner.ErrMalformedResponse)
	}
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("parse model JSON: %w: %v", miner.ErrMalformedResponse, err)
	}
	return nil
}

// ResolveVariants asks for the names a product is actually called in casual
// discussion (abbreviations, old names, common misspellings).
func (c *Client) ResolveVariants(ctx context.Context, name string) ([]string, error) {
	system := "You resolve product names to the search terms people actually use in online discussions. Respond with a JSON array of strings only."
	user := fmt.Sprintf(
		"Product: %q. List up to 5 name variants worth searching for, most common first. Include the canonical name. JSON array of strings, nothing else.",
		name,
	)
	var variants []string
	if err := c.completeJSON(ctx, system, user, &variants); err != nil {
		return nil, fmt.Errorf("resolve variants for %s: %w", name, err)
	}
	var out []string
	for _, v := range variants {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("resolve variants for %s: empty list: %w", name, miner.ErrMalformedResponse)
	}
	return out, nil
}

// FilterRelevant keeps records that actually discuss the entity rather than
// coincidentally matching a search term. Biased toward keeping.
func (c *Client) FilterRelevant(ctx context.Context, records []miner.RawRecord, entity string) ([]miner.RawRecord, error) {
	if len(records) == 0 {
		return records, nil
	}
	system := "You judge whether discussion excerpts are about a specific product. When in doubt, keep the item. Respond with a JSON array of integer indices to KEEP, nothing else."
	var sb strings.Builder
	fmt.Fprintf(&sb, "Product: %q. Items:\n", entity)
	for i, rec := range records {
		fmt.Fprintf(&sb, "[%d] %s\n", i, excerpt(rec.Text, 300))
	}
	var keep []int
	if err := c.completeJSON(ctx, system, sb.String(), &keep); err != nil {
		return nil, fmt.Errorf("filter relevance for %s: %w", entity, err)
	}
	sort.Ints(keep)
	out := make([]miner.RawRecord, 0, len(keep))
	seen := make(map[int]bool, len(keep))
	for _, idx := range keep {
		if idx < 0 || idx >= len(records) || seen[idx] {
			continue
		}
		seen[idx] = true
		out = append(out, records[idx])
	}
	return out, nil
}

type aspectAssignment struct {
	Index  int    `json:"index"`
	Aspect string `json:"aspect"`
}

// ClassifyAspects tags each record with what the discussion is about.
// Records the model skips default to "love".
func (c *Client) ClassifyAspects(ctx context.Context, records []miner.RankedRecord, entity string) ([]miner.RankedRecord, error) {
	if len(records) == 0 {
		return records, nil
	}
	system := `You classify discussion excerpts about a product into one aspect: "launch" (announcements, releases, changelogs), "love" (praise, recommendations), or "notlove" (complaints, churn, criticism). Respond with a JSON array of {"index": n, "aspect": "..."} objects, nothing else.`
	var sb strings.Builder
	fmt.Fprintf(&sb, "Product: %q. Items:\n", entity)
	for i, rec := range records {
		fmt.Fprintf(&sb, "[%d] %s\n", i, excerpt(rec.Text, 300))
	}
	var assignments []aspectAssignment
	if err := c.completeJSON(ctx, system, sb.String(), &assignments); err != nil {
		return nil, fmt.Errorf("classify aspects for %s: %w", entity, err)
	}

	out := make([]miner.RankedRecord, len(records))
	copy(out, records)
	for i := range out {
		out[i].Aspect = miner.AspectLove
	}
	for _, a := range assignments {
		if a.Index < 0 || a.Index >= len(out) {
			continue
		}
		switch miner.Aspect(a.Aspect) {
		case miner.AspectLaunch, miner.AspectLove, miner.AspectNotLove:
			out[a.Index].Aspect = miner.Aspect(a.Aspect)
		}
	}
	return out, nil
}

// ComposeSection writes the per-entity report section. founder switches to the
// first-person product-owner voice used for the tracked product itself.
func (c *Client) ComposeSection(ctx context.Context, entity string, records []miner.RankedRecord, founder bool) (string, error) {
	system := "You write concise competitive-intelligence report sections in markdown. Cite permalinks inline. Never invent items that are not in the input."
	if founder {
		system = "You write a product founder's own briefing section in markdown, first person plural, candid about criticism. Cite permalinks inline. Never invent items that are not in the input."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Entity: %q. Ranked evidence, best first:\n", entity)
	for _, rec := range records {
		fmt.Fprintf(&sb, "- [%s|%s|score %d|%s] %s (%s)\n",
			rec.Community, rec.Kind, rec.Score, rec.Aspect, excerpt(rec.Text, 300), rec.Permalink)
	}
	sb.WriteString("\nWrite the section: what launched, what people love, what they do not. 150-300 words.")
	content, err := c.complete(ctx, system, sb.String())
	if err != nil {
		return "", fmt.Errorf("compose section for %s: %w", entity, err)
	}
	return strings.TrimSpace(content), nil
}

// ComposeTakeaways writes the closing strategic-takeaways section from the
// per-entity mention counts.
func (c *Client) ComposeTakeaways(ctx context.Context, entity string, mentionsByEntity map[string]int) (string, error) {
	system := "You write the strategic takeaways section of a competitive report in markdown: 3 to 5 bullets, each actionable for the first-listed product's team."
	names := make([]string, 0, len(mentionsByEntity))
	for name := range mentionsByEntity {
		names = append(names, name)
	}
	sort.Strings(names)
	var sb strings.Builder
	fmt.Fprintf(&sb, "Tracked product: %q. Mention volume per entity:\n", entity)
	for _, name := range names {
		fmt.Fprintf(&sb, "- %s: %d\n", name, mentionsByEntity[name])
	}
	content, err := c.complete(ctx, system, sb.String())
	if err != nil {
		return "", fmt.Errorf("compose takeaways for %s: %w", entity, err)
	}
	return strings.TrimSpace(content), nil
}

type contextPackPayload struct {
	Context  string   `json:"context"`
	Keywords []string `json:"keywords"`
}

// ProductContext builds a short description plus search keywords for the
// tracked product, scraping its page when a fetcher and URL are available.
func (c *Client) ProductContext(ctx context.Context, name, url string) (miner.ContextPack, error) {
	pageText := ""
	if url != "" && c.fetcher != nil {
		text, err := c.fetcher.Fetch(ctx, url)
		if err != nil {
			// The pack is still buildable from the name alone.
			c.logger.Warn("product page scrape failed", zap.String("url", url), zap.Error(err))
		} else {
			pageText = excerpt(text, 3000)
		}
	}

	system := `You summarize what a product does for use as mining context. Respond with JSON: {"context": "2-3 sentence description", "keywords": ["..."]}. Nothing else.`
	user := fmt.Sprintf("Product: %q.", name)
	if pageText != "" {
		user += "\nHomepage text:\n" + pageText
	}
	var payload contextPackPayload
	if err := c.completeJSON(ctx, system, user, &payload); err != nil {
		return miner.ContextPack{}, fmt.Errorf("product context for %s: %w", name, err)
	}
	if strings.TrimSpace(payload.Context) == "" {
		return miner.ContextPack{}, fmt.Errorf("product context for %s: empty context: %w", name, miner.ErrMalformedResponse)
	}
	return miner.ContextPack{
		ContextText: strings.TrimSpace(payload.Context),
		Keywords:    payload.Keywords,
	}, nil
}

func excerpt(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
