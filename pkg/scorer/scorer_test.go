package scorer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aitides/aitides/pkg/config"
	"github.com/aitides/aitides/pkg/domain"
	"github.com/aitides/aitides/pkg/llm"
)

// remoteFunc adapts a function to the RemoteScorer interface
type remoteFunc func(ctx context.Context, items []domain.CandidateItem) ([]llm.ScoreResult, error)

func (f remoteFunc) ScoreBatch(ctx context.Context, items []domain.CandidateItem) ([]llm.ScoreResult, error) {
	return f(ctx, items)
}

func scoreByID(scores map[string]float64) remoteFunc {
	return func(_ context.Context, items []domain.CandidateItem) ([]llm.ScoreResult, error) {
		var results []llm.ScoreResult
		for _, item := range items {
			if s, ok := scores[item.ID]; ok {
				results = append(results, llm.ScoreResult{ID: item.ID, Score: s, Rationale: "test"})
			}
		}
		return results, nil
	}
}

func testScoringConfig() config.ScoringConfig {
	return config.ScoringConfig{
		AIWeight:         0.6,
		PopularityWeight: 0.4,
		WhitelistBonus:   2.0,
		FailedScoreFloor: 2.0,
		PaperLimit:       40,
		NewsLimit:        30,
		Normalization: map[string]config.NormalizationConfig{
			"hackernews": {Curve: "log", Min: 0, Max: 1000},
			"arxiv":      {Curve: "linear", Min: 0, Max: 100},
		},
	}
}

func TestRun_CompositeBlend(t *testing.T) {
	s := New(scoreByID(map[string]float64{"a": 8}), testScoringConfig(), 10, 1)

	popularity := 100.0
	res := s.Run(context.Background(), []domain.CandidateItem{{
		ID: "a", Kind: domain.KindPaper, SourceCategory: "arxiv", Popularity: &popularity,
	}}, nil)

	require.Len(t, res.Papers, 1)
	// 8*0.6 + 1.0*0.4, linear curve maps 100 of 100 to 1.0
	assert.InDelta(t, 5.2, res.Papers[0].Composite, 0.0001)
	assert.False(t, res.Papers[0].ScoringFailed)
}

func TestRun_WhitelistBonusAndSourceWeight(t *testing.T) {
	cfg := testScoringConfig()
	cfg.SourceWeights = map[string]float64{"TrustedBlog": 0.5}
	s := New(scoreByID(map[string]float64{"w": 4}), cfg, 10, 1)

	res := s.Run(context.Background(), nil, []domain.CandidateItem{{
		ID: "w", Kind: domain.KindNews, SourceName: "TrustedBlog", Whitelisted: true,
	}})

	require.Len(t, res.News, 1)
	// 4*0.6 + 0 popularity + 2.0 whitelist + 0.5 source
	assert.InDelta(t, 4.9, res.News[0].Composite, 0.0001)
}

func TestRun_FailedBatchFlooredNotDropped(t *testing.T) {
	calls := 0
	remote := remoteFunc(func(_ context.Context, items []domain.CandidateItem) ([]llm.ScoreResult, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("remote unavailable")
		}
		results := make([]llm.ScoreResult, len(items))
		for i, item := range items {
			results[i] = llm.ScoreResult{ID: item.ID, Score: 7}
		}
		return results, nil
	})

	// batch size 2 splits four items into two batches, first one fails
	s := New(remote, testScoringConfig(), 2, 1)
	items := []domain.CandidateItem{
		{ID: "a", Kind: domain.KindNews},
		{ID: "b", Kind: domain.KindNews},
		{ID: "c", Kind: domain.KindNews},
		{ID: "d", Kind: domain.KindNews},
	}

	res := s.Run(context.Background(), items, nil)
	require.Len(t, res.News, 4, "failed batch items stay in the pool")

	byID := map[string]domain.ScoredItem{}
	for _, item := range res.News {
		byID[item.ID] = item
	}
	assert.True(t, byID["a"].ScoringFailed)
	assert.InDelta(t, 2.0, byID["a"].AIScore, 0.0001, "floored to the failed-score floor")
	assert.False(t, byID["c"].ScoringFailed)
	assert.InDelta(t, 7.0, byID["c"].AIScore, 0.0001)

	require.Len(t, res.Warnings, 1)
	assert.Equal(t, domain.WarnRemoteCallFailure, res.Warnings[0].Code)
}

func TestRun_MissingIDFloored(t *testing.T) {
	// remote answers only for one of two items
	s := New(scoreByID(map[string]float64{"known": 9}), testScoringConfig(), 10, 1)

	res := s.Run(context.Background(), []domain.CandidateItem{
		{ID: "known", Kind: domain.KindNews},
		{ID: "missing", Kind: domain.KindNews},
	}, nil)

	byID := map[string]domain.ScoredItem{}
	for _, item := range res.News {
		byID[item.ID] = item
	}
	assert.False(t, byID["known"].ScoringFailed)
	assert.True(t, byID["missing"].ScoringFailed)
	assert.InDelta(t, 2.0, byID["missing"].AIScore, 0.0001)
}

func TestRun_TruncationSparesWhitelisted(t *testing.T) {
	cfg := testScoringConfig()
	cfg.NewsLimit = 2
	scores := map[string]float64{"hi1": 9, "hi2": 8, "low": 1, "wl": 0}
	s := New(scoreByID(scores), cfg, 10, 1)

	pool := []domain.CandidateItem{
		{ID: "hi1", Kind: domain.KindNews},
		{ID: "hi2", Kind: domain.KindNews},
		{ID: "low", Kind: domain.KindNews},
	}
	whitelisted := []domain.CandidateItem{{ID: "wl", Kind: domain.KindNews, Whitelisted: true}}

	res := s.Run(context.Background(), pool, whitelisted)

	ids := make([]string, 0, len(res.News))
	for _, item := range res.News {
		ids = append(ids, item.ID)
	}
	assert.Contains(t, ids, "wl", "whitelisted item survives below the cutoff")
	assert.Contains(t, ids, "hi1")
	assert.Contains(t, ids, "hi2")
	assert.NotContains(t, ids, "low")

	require.Len(t, res.Dropped, 1)
	assert.Equal(t, "low", res.Dropped[0].Item.ID)
	assert.Equal(t, ReasonBelowCutoff, res.Dropped[0].Reason)
}

func TestSortRanked_Deterministic(t *testing.T) {
	older := time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

	items := []domain.ScoredItem{
		{CandidateItem: domain.CandidateItem{ID: "tie-old", PublishedAt: &older}, Composite: 5},
		{CandidateItem: domain.CandidateItem{ID: "tie-new", PublishedAt: &newer}, Composite: 5},
		{CandidateItem: domain.CandidateItem{ID: "tie-nil-1"}, Composite: 5},
		{CandidateItem: domain.CandidateItem{ID: "tie-nil-2"}, Composite: 5},
		{CandidateItem: domain.CandidateItem{ID: "top"}, Composite: 9},
	}

	SortRanked(items)
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	assert.Equal(t, []string{"top", "tie-new", "tie-old", "tie-nil-1", "tie-nil-2"}, ids,
		"composite desc, then recency, missing timestamps keep input order")
}

func TestNormalizePopularity_Curves(t *testing.T) {
	s := New(nil, testScoringConfig(), 10, 1)

	tests := []struct {
		name     string
		category string
		pop      *float64
		want     float64
	}{
		{"nil popularity", "hackernews", nil, 0},
		{"unknown category", "reddit", pop(500), 0},
		{"linear mid", "arxiv", pop(50), 0.5},
		{"linear clamped above max", "arxiv", pop(500), 1.0},
		{"log max", "hackernews", pop(1000), 1.0},
		{"log min", "hackernews", pop(0), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.normalizePopularity(domain.CandidateItem{SourceCategory: tt.category, Popularity: tt.pop})
			assert.InDelta(t, tt.want, got, 0.0001)
		})
	}
}

func pop(v float64) *float64 { return &v }
