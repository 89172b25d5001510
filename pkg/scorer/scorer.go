// Package scorer implements the L2 pass: batch remote scoring, composite
// score computation, ranking and per-kind truncation to the L3 candidate
// pool. Remote calls may run concurrently but results are reassembled in
// input order, so the outcome is independent of scheduling.
package scorer

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/go-pkgz/lgr"
	"golang.org/x/sync/errgroup"

	"github.com/aitides/aitides/pkg/config"
	"github.com/aitides/aitides/pkg/domain"
	"github.com/aitides/aitides/pkg/llm"
)

// ReasonBelowCutoff marks items ranked past the per-kind pool limit.
const ReasonBelowCutoff = "below_l2_cutoff"

// RemoteScorer is the remote scoring capability.
type RemoteScorer interface {
	ScoreBatch(ctx context.Context, items []domain.CandidateItem) ([]llm.ScoreResult, error)
}

// Rejection records a truncated item, for observability only.
type Rejection struct {
	Item   domain.ScoredItem
	Reason string
}

// Result holds the ranked L3 candidate pools.
type Result struct {
	Papers   []domain.ScoredItem
	News     []domain.ScoredItem
	Dropped  []Rejection
	Warnings []domain.Warning
}

// Scorer runs the L2 pass.
type Scorer struct {
	remote      RemoteScorer
	cfg         config.ScoringConfig
	batchSize   int
	concurrency int
}

// New creates an L2 scorer
func New(remote RemoteScorer, cfg config.ScoringConfig, batchSize, concurrency int) *Scorer {
	if batchSize < 1 {
		batchSize = 1
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Scorer{remote: remote, cfg: cfg, batchSize: batchSize, concurrency: concurrency}
}

// Run scores the L2 pool plus the whitelisted items (whitelisted are scored
// for ranking but never truncated), ranks per kind and truncates to the
// configured pool limits.
func (s *Scorer) Run(ctx context.Context, pool, whitelisted []domain.CandidateItem) Result {
	combined := make([]domain.CandidateItem, 0, len(pool)+len(whitelisted))
	combined = append(combined, pool...)
	combined = append(combined, whitelisted...)

	scored, warnings := s.scoreAll(ctx, combined)

	var res Result
	res.Warnings = warnings
	res.Papers, res.Dropped = s.rankAndTruncate(scored, domain.KindPaper, s.cfg.PaperLimit, res.Dropped)
	res.News, res.Dropped = s.rankAndTruncate(scored, domain.KindNews, s.cfg.NewsLimit, res.Dropped)

	lgr.Printf("[INFO] l2 scorer: %d scored -> %d papers, %d news in pool, %d dropped",
		len(scored), len(res.Papers), len(res.News), len(res.Dropped))
	return res
}

// scoreAll batches remote calls with bounded concurrency. The output slice
// is index-aligned with the input regardless of completion order.
func (s *Scorer) scoreAll(ctx context.Context, items []domain.CandidateItem) ([]domain.ScoredItem, []domain.Warning) {
	scored := make([]domain.ScoredItem, len(items))
	failed := make([]bool, (len(items)+s.batchSize-1)/s.batchSize)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for start := 0; start < len(items); start += s.batchSize {
		start := start
		end := min(start+s.batchSize, len(items))
		g.Go(func() error {
			batch := items[start:end]
			results, err := s.remote.ScoreBatch(gctx, batch)
			if err != nil {
				lgr.Printf("[WARN] scoring batch %d-%d failed: %v", start, end, err)
				failed[start/s.batchSize] = true
				for i, item := range batch {
					scored[start+i] = domain.ScoredItem{
						CandidateItem: item,
						AIScore:       s.cfg.FailedScoreFloor,
						ScoringFailed: true,
					}
				}
				return nil // batch failure degrades, never aborts the run
			}

			byID := make(map[string]llm.ScoreResult, len(results))
			for _, r := range results {
				byID[r.ID] = r
			}
			for i, item := range batch {
				si := domain.ScoredItem{CandidateItem: item, AIScore: s.cfg.FailedScoreFloor, ScoringFailed: true}
				if r, ok := byID[item.ID]; ok {
					si.AIScore, si.Rationale, si.ScoringFailed = r.Score, r.Rationale, false
				}
				scored[start+i] = si
			}
			return nil
		})
	}
	_ = g.Wait() // workers never return errors

	var warnings []domain.Warning
	for i, f := range failed {
		if f {
			warnings = append(warnings, domain.Warning{
				Stage: "l2", Code: domain.WarnRemoteCallFailure,
				Detail: fmt.Sprintf("scoring batch %d exhausted retries, items floored", i),
			})
		}
	}

	for i := range scored {
		scored[i].Composite = s.composite(scored[i])
	}
	return scored, warnings
}

// composite applies the configured blend. Pure function of the item and the
// configuration; recomputing yields the same ranking.
func (s *Scorer) composite(item domain.ScoredItem) float64 {
	score := item.AIScore*s.cfg.AIWeight + s.normalizePopularity(item.CandidateItem)*s.cfg.PopularityWeight
	if item.Whitelisted {
		score += s.cfg.WhitelistBonus
	}
	score += s.cfg.SourceWeights[item.SourceName]
	return score
}

// normalizePopularity maps the raw signal to [0,1] using the fixed
// per-category curve. The curve never depends on the batch distribution, so
// scores stay comparable across days.
func (s *Scorer) normalizePopularity(item domain.CandidateItem) float64 {
	if item.Popularity == nil {
		return 0
	}
	curve, ok := s.cfg.Normalization[item.SourceCategory]
	if !ok {
		return 0 // unknown unit, cannot compare
	}

	v := math.Max(curve.Min, math.Min(curve.Max, *item.Popularity))
	switch curve.Curve {
	case "log":
		lo, hi := math.Log1p(curve.Min), math.Log1p(curve.Max)
		if hi <= lo {
			return 0
		}
		return (math.Log1p(v) - lo) / (hi - lo)
	default: // linear
		return (v - curve.Min) / (curve.Max - curve.Min)
	}
}

// rankAndTruncate orders one kind by composite desc, recency, then stable
// input order, and keeps the top N. Whitelisted items survive truncation.
func (s *Scorer) rankAndTruncate(scored []domain.ScoredItem, kind domain.ItemKind, limit int,
	dropped []Rejection) ([]domain.ScoredItem, []Rejection) {

	ranked := make([]domain.ScoredItem, 0, len(scored))
	for _, item := range scored {
		if item.Kind == kind {
			ranked = append(ranked, item)
		}
	}
	SortRanked(ranked)

	kept := make([]domain.ScoredItem, 0, len(ranked))
	nonWhitelisted := 0
	for _, item := range ranked {
		if item.Whitelisted {
			kept = append(kept, item)
			continue
		}
		if limit > 0 && nonWhitelisted >= limit {
			dropped = append(dropped, Rejection{Item: item, Reason: ReasonBelowCutoff})
			continue
		}
		nonWhitelisted++
		kept = append(kept, item)
	}
	return kept, dropped
}

// SortRanked sorts items by composite score descending, ties broken by more
// recent publishedAt, then by stable input order.
func SortRanked(items []domain.ScoredItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Composite != items[j].Composite {
			return items[i].Composite > items[j].Composite
		}
		ti, tj := items[i].PublishedAt, items[j].PublishedAt
		switch {
		case ti != nil && tj != nil && !ti.Equal(*tj):
			return ti.After(*tj)
		case ti != nil && tj == nil:
			return true
		default:
			return false // missing timestamps keep input order
		}
	})
}
