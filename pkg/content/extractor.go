// Package content enriches news candidates with extracted article text
// before scoring. Extraction is best effort; an item whose page cannot be
// fetched keeps its feed summary.
package content

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-pkgz/lgr"
	"github.com/markusmobius/go-trafilatura"
	"golang.org/x/sync/errgroup"

	"github.com/aitides/aitides/pkg/config"
	"github.com/aitides/aitides/pkg/domain"
)

// Extractor fetches article pages and extracts readable text.
type Extractor struct {
	cfg    config.ExtractConfig
	client *http.Client
}

// New creates an extractor
func New(cfg config.ExtractConfig) *Extractor {
	return &Extractor{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Enrich fills FullText for news items that have a URL. Runs extractions
// concurrently but mutates items in place, so order is unaffected. Failures
// are logged and skipped.
func (e *Extractor) Enrich(ctx context.Context, items []domain.CandidateItem) {
	if !e.cfg.Enabled {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for i := range items {
		if items[i].Kind != domain.KindNews || items[i].URL == "" {
			continue
		}
		i := i
		g.Go(func() error {
			text, err := e.Extract(gctx, items[i].URL)
			if err != nil {
				lgr.Printf("[DEBUG] extraction failed for %s: %v", items[i].URL, err)
				return nil // best effort
			}
			items[i].FullText = text
			return nil
		})
	}
	_ = g.Wait()
}

// Extract retrieves and extracts text content from the given URL
func (e *Extractor) Extract(ctx context.Context, urlStr string) (string, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", fmt.Errorf("parse URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return "", fmt.Errorf("invalid URL: %s", urlStr)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", e.cfg.UserAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch URL %s: %w", urlStr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code %d for URL %s", resp.StatusCode, urlStr)
	}

	opts := trafilatura.Options{
		EnableFallback:  true,
		ExcludeComments: true,
		Deduplicate:     true,
		OriginalURL:     parsedURL,
	}
	result, err := trafilatura.Extract(resp.Body, opts)
	if err != nil {
		return "", fmt.Errorf("extract content from %s: %w", urlStr, err)
	}
	if result == nil || result.ContentText == "" {
		return "", fmt.Errorf("no text content extracted from %s", urlStr)
	}

	return strings.TrimSpace(result.ContentText), nil
}
