// Package contextpack scrapes product pages for the text the Summarizer
// turns into mining context.
package contextpack

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

const (
	defaultTimeout = 10 * time.Second
	// maxTextBytes bounds how much page text a single fetch accumulates.
	maxTextBytes = 16 * 1024
)

// Scraper pulls the human-visible text out of a product homepage.
type Scraper struct {
	userAgent string
	timeout   time.Duration
	logger    *zap.Logger
}

// NewScraper builds a Scraper.
func NewScraper(userAgent string, timeout time.Duration, logger *zap.Logger) *Scraper {
	if userAgent == "" {
		userAgent = "insight-miner/1.0"
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scraper{userAgent: userAgent, timeout: timeout, logger: logger}
}

// Fetch visits url and returns its headline, paragraph, and list text joined
// by newlines. A page yielding no text at all is an error.
func (s *Scraper) Fetch(ctx context.Context, url string) (string, error) {
	// A fresh collector per fetch keeps visits independent.
	c := colly.NewCollector(
		colly.UserAgent(s.userAgent),
		colly.MaxDepth(1),
		colly.StdlibContext(ctx),
	)
	c.SetRequestTimeout(s.timeout)

	var sb strings.Builder
	collect := func(e *colly.HTMLElement) {
		if sb.Len() >= maxTextBytes {
			return
		}
		text := strings.TrimSpace(e.Text)
		if text == "" {
			return
		}
		sb.WriteString(text)
		sb.WriteByte('\n')
	}
	c.OnHTML("title", collect)
	c.OnHTML("h1, h2, h3", collect)
	c.OnHTML("p", collect)
	c.OnHTML("li", collect)
	c.OnHTML(`meta[name="description"]`, func(e *colly.HTMLElement) {
		if desc := strings.TrimSpace(e.Attr("content")); desc != "" {
			sb.WriteString(desc)
			sb.WriteByte('\n')
		}
	})

	var visitErr error
	c.OnError(func(r *colly.Response, err error) {
		visitErr = err
	})

	if err := c.Visit(url); err != nil {
		return "", fmt.Errorf("visit %s: %w", url, err)
	}
	c.Wait()
	if visitErr != nil {
		return "", fmt.Errorf("fetch %s: %w", url, visitErr)
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("fetch %s: no readable text", url)
	}
	s.logger.Debug("scraped product page", zap.String("url", url), zap.Int("bytes", len(text)))
	return text, nil
}
