// Package refiner implements the L3 pass: quota-constrained final selection,
// remote summary generation with deterministic local fallback, tagging and
// the run-level overview.
package refiner

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-pkgz/lgr"
	"golang.org/x/sync/errgroup"

	"github.com/aitides/aitides/pkg/domain"
)

// State tracks the refiner's progress through one run.
type State string

// refiner states
const (
	StatePending     State = "pending"
	StateSelecting   State = "selecting"
	StateSummarizing State = "summarizing"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// Summarizer is the remote summarization capability.
type Summarizer interface {
	Summarize(ctx context.Context, item domain.ScoredItem) (domain.Summary, error)
	Overview(ctx context.Context, papers, news []domain.RefinedItem) (string, error)
}

// Result is the final refined selection.
type Result struct {
	Papers   []domain.RefinedItem
	News     []domain.RefinedItem
	Overview string
	Warnings []domain.Warning
	State    State
}

// Refiner runs the L3 pass.
type Refiner struct {
	remote      Summarizer
	quota       domain.Quota
	tagger      *Tagger
	concurrency int
}

// New creates an L3 refiner
func New(remote Summarizer, quota domain.Quota, tagger *Tagger, concurrency int) *Refiner {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Refiner{remote: remote, quota: quota, tagger: tagger, concurrency: concurrency}
}

// Run selects the final subset under the quota, summarizes each selected
// item and generates the daily overview. Individual summary failures fall
// back locally; only an empty selection for both kinds fails the run.
func (r *Refiner) Run(ctx context.Context, papers, news []domain.ScoredItem) Result {
	res := Result{State: StateSelecting}

	selectedPapers, shortfalls := r.selectPapers(papers)
	selectedNews := topN(news, r.quota.NewsTotal)
	res.Warnings = append(res.Warnings, shortfalls...)

	if len(selectedPapers) == 0 && len(selectedNews) == 0 {
		lgr.Printf("[WARN] l3 refiner: nothing to select from %d papers, %d news candidates", len(papers), len(news))
		res.State = StateFailed
		return res
	}

	res.State = StateSummarizing
	res.Papers = r.summarizeAll(ctx, selectedPapers, &res.Warnings)
	res.News = r.summarizeAll(ctx, selectedNews, &res.Warnings)

	overview, err := r.remote.Overview(ctx, res.Papers, res.News)
	if err != nil || strings.TrimSpace(overview) == "" {
		lgr.Printf("[WARN] overview generation failed, using template: %v", err)
		overview = fallbackOverview(res.Papers, res.News)
		res.Warnings = append(res.Warnings, domain.Warning{
			Stage: "l3", Code: domain.WarnOverviewFallback, Detail: "daily overview fell back to template",
		})
	}
	res.Overview = overview

	res.State = StateDone
	lgr.Printf("[INFO] l3 refiner: selected %d papers, %d news", len(res.Papers), len(res.News))
	return res
}

// selectPapers fills each per-category subquota independently in rank order.
// A category that cannot fill its subquota stays short; the slack is never
// redistributed, preserving category diversity. Categories without a
// subquota compete for the remaining slots up to the paper total.
func (r *Refiner) selectPapers(ranked []domain.ScoredItem) ([]domain.ScoredItem, []domain.Warning) {
	subTotal := 0
	for _, q := range r.quota.PaperPerCategory {
		subTotal += q
	}
	openSlots := r.quota.PaperTotal - subTotal

	buckets := make(map[string]int, len(r.quota.PaperPerCategory))
	var selected []domain.ScoredItem
	openUsed := 0

	for _, item := range ranked {
		if sub, ok := r.quota.PaperPerCategory[item.SourceCategory]; ok {
			if buckets[item.SourceCategory] < sub {
				buckets[item.SourceCategory]++
				selected = append(selected, item)
			}
			continue
		}
		if openUsed < openSlots {
			openUsed++
			selected = append(selected, item)
		}
	}

	var warnings []domain.Warning
	for category, sub := range r.quota.PaperPerCategory {
		if got := buckets[category]; got < sub {
			warnings = append(warnings, domain.Warning{
				Stage: "l3", Code: domain.WarnQuotaShortfall,
				Detail: fmt.Sprintf("category %s filled %d of %d", category, got, sub),
			})
		}
	}
	return selected, warnings
}

// summarizeAll requests summaries concurrently, reassembling results in
// selection order. A failed or empty remote summary is replaced by the
// deterministic local fallback and marks the item, not the run.
func (r *Refiner) summarizeAll(ctx context.Context, items []domain.ScoredItem, warnings *[]domain.Warning) []domain.RefinedItem {
	refined := make([]domain.RefinedItem, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			ri := domain.RefinedItem{ScoredItem: item, Tags: r.tagger.Tags(item)}
			summary, err := r.remote.Summarize(gctx, item)
			if err != nil {
				lgr.Printf("[WARN] summary failed for %q, using fallback: %v", item.Title, err)
				ri.Summary = FallbackSummary(item)
				ri.RefineFailed = true
			} else {
				ri.Summary = summary
			}
			refined[i] = ri
			return nil
		})
	}
	_ = g.Wait()

	for _, ri := range refined {
		if ri.RefineFailed {
			*warnings = append(*warnings, domain.Warning{
				Stage: "l3", Code: domain.WarnRemoteCallFailure,
				Detail: fmt.Sprintf("summary for %q fell back to local", ri.Title),
			})
		}
	}
	return refined
}

// FallbackSummary builds a deterministic summary from the item itself: a
// pure function of the failed input, usable without any remote call.
func FallbackSummary(item domain.ScoredItem) domain.Summary {
	facts := []string{"source: " + strings.TrimSpace(item.SourceName)}
	if kws := rationaleKeywords(item.Rationale, 3); len(kws) > 0 {
		facts = append(facts, "signals: "+strings.Join(kws, ", "))
	}

	why := "ranked among today's most relevant items by composite score"
	if item.Rationale != "" {
		why = item.Rationale
	}
	return domain.Summary{MainPoint: item.Title, KeyFacts: facts, WhyItMatters: why}
}

// rationaleKeywords picks the first n distinctive words from rationale text
func rationaleKeywords(rationale string, n int) []string {
	var kws []string
	for _, w := range strings.Fields(strings.ToLower(rationale)) {
		w = strings.Trim(w, ".,;:()\"'")
		if len(w) < 5 {
			continue
		}
		kws = append(kws, w)
		if len(kws) == n {
			break
		}
	}
	return kws
}

// fallbackOverview builds the templated run-level overview
func fallbackOverview(papers, news []domain.RefinedItem) string {
	var titles []string
	for _, p := range papers {
		titles = append(titles, p.Title)
		if len(titles) == 3 {
			break
		}
	}
	head := ""
	if len(titles) > 0 {
		head = " Highlights: " + strings.Join(titles, "; ") + "."
	}
	return fmt.Sprintf("Today's digest covers %d papers and %d news items.%s", len(papers), len(news), head)
}

// topN keeps the first n items of an already ranked slice
func topN(items []domain.ScoredItem, n int) []domain.ScoredItem {
	if n > len(items) {
		n = len(items)
	}
	return items[:n]
}
