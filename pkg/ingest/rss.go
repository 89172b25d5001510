// Package ingest pulls candidate records from the configured RSS/Atom feeds.
// Per-feed failures degrade to warnings; items from the surviving feeds still
// flow into the funnel.
package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"

	"github.com/aitides/aitides/pkg/canonical"
	"github.com/aitides/aitides/pkg/config"
	"github.com/aitides/aitides/pkg/domain"
)

// Fetcher pulls and parses the configured feeds.
type Fetcher struct {
	client    *http.Client
	userAgent string
	feeds     []config.FeedConfig
}

// Result carries the fetched records plus per-feed failures.
type Result struct {
	Records  []canonical.RawRecord
	Warnings []domain.Warning
}

// New creates a fetcher for the given feed set
func New(feeds []config.FeedConfig, timeout time.Duration, userAgent string) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		userAgent: userAgent,
		feeds:     feeds,
	}
}

// FetchAll pulls every configured feed concurrently. Records keep the feed
// declaration order regardless of completion order, so downstream dedup and
// ranking see a stable input sequence.
func (f *Fetcher) FetchAll(ctx context.Context) Result {
	perFeed := make([][]canonical.RawRecord, len(f.feeds))

	var mu sync.Mutex
	var warnings []domain.Warning

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, fc := range f.feeds {
		i, fc := i, fc
		g.Go(func() error {
			records, err := f.fetchFeed(gctx, fc)
			if err != nil {
				lgr.Printf("[WARN] feed %s failed: %v", fc.Name, err)
				mu.Lock()
				warnings = append(warnings, domain.Warning{
					Stage: "ingest", Code: domain.WarnIngestionGap,
					Detail: fmt.Sprintf("feed %s unavailable: %v", fc.Name, err),
				})
				mu.Unlock()
				return nil // degraded, not fatal
			}
			perFeed[i] = records
			return nil
		})
	}
	_ = g.Wait() // workers never return errors

	var res Result
	res.Warnings = warnings
	for _, records := range perFeed {
		res.Records = append(res.Records, records...)
	}
	lgr.Printf("[INFO] ingest: %d records from %d feeds, %d feeds failed",
		len(res.Records), len(f.feeds), len(warnings))
	return res
}

// fetchFeed pulls and parses one feed into raw records
func (f *Fetcher) fetchFeed(ctx context.Context, fc config.FeedConfig) ([]canonical.RawRecord, error) {
	body, err := f.fetch(ctx, fc.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer body.Close()

	feed, err := gofeed.NewParser().Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	kind := domain.KindNews
	if fc.Kind == "paper" {
		kind = domain.KindPaper
	}
	category := fc.Category
	if category == "" {
		category = fc.Name
	}

	records := make([]canonical.RawRecord, 0, len(feed.Items))
	for _, item := range feed.Items {
		rec := canonical.RawRecord{
			NativeID:       item.GUID,
			Title:          item.Title,
			Summary:        item.Description,
			URL:            item.Link,
			SourceName:     fc.Name,
			SourceCategory: category,
			Kind:           kind,
			Whitelisted:    fc.Whitelist,
		}
		if item.Content != "" && rec.Summary == "" {
			rec.Summary = item.Content
		}
		if item.PublishedParsed != nil {
			t := *item.PublishedParsed
			rec.PublishedAt = &t
		} else if item.UpdatedParsed != nil {
			t := *item.UpdatedParsed
			rec.PublishedAt = &t
		}
		records = append(records, rec)
	}
	return records, nil
}

// fetch retrieves content from a URL
func (f *Fetcher) fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/rss+xml,application/atom+xml,application/xml;q=0.9,text/xml;q=0.8,*/*;q=0.5")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch URL: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return resp.Body, nil
}
