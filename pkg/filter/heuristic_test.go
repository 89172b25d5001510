package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aitides/aitides/pkg/config"
	"github.com/aitides/aitides/pkg/domain"
)

func pop(v float64) *float64 { return &v }

func testConfig() config.FilterConfig {
	return config.FilterConfig{
		Keywords:      []string{"LLM", "transformer", "agent"},
		NoiseTerms:    []string{"sponsored"},
		NoisePatterns: []string{`top \d+ (tricks|tips)`},
		MinPopularity: map[string]float64{"hackernews": 50},
	}
}

func TestNew_BadPattern(t *testing.T) {
	_, err := New(config.FilterConfig{NoisePatterns: []string{"("}})
	assert.Error(t, err)
}

func TestRun_WhitelistBypassesEverything(t *testing.T) {
	h, err := New(testConfig())
	require.NoError(t, err)

	// noisy title, no topical keyword, no popularity: every rule would
	// reject it, whitelist still lets it through
	res := h.Run([]domain.CandidateItem{{
		ID:          "w1",
		Title:       "Top 10 tricks for prompts",
		Whitelisted: true,
	}})

	assert.Empty(t, res.Rejected)
	assert.Empty(t, res.Pool)
	require.Len(t, res.Whitelisted, 1)
	assert.Equal(t, "w1", res.Whitelisted[0].ID)
}

func TestRun_NoiseWinsOverKeywordGate(t *testing.T) {
	h, err := New(testConfig())
	require.NoError(t, err)

	res := h.Run([]domain.CandidateItem{{
		ID:    "n1",
		Title: "Top 5 tricks to prompt your LLM",
	}})

	require.Len(t, res.Rejected, 1)
	assert.Equal(t, ReasonNoisePattern, res.Rejected[0].Reason, "noise rejection even with a topical keyword")
}

func TestRun_Partitioning(t *testing.T) {
	h, err := New(testConfig())
	require.NoError(t, err)

	items := []domain.CandidateItem{
		{ID: "ok", Title: "New transformer architecture", SourceCategory: "arxiv"},
		{ID: "off-topic", Title: "Best hiking trails 2026"},
		{ID: "sponsored", Title: "Sponsored: agent platform review"},
		{ID: "unpopular", Title: "LLM inference tool", SourceCategory: "hackernews", Popularity: pop(10)},
		{ID: "popular", Title: "LLM inference engine", SourceCategory: "hackernews", Popularity: pop(120)},
		{ID: "no-signal", Title: "agent benchmark", SourceCategory: "hackernews"},
	}

	res := h.Run(items)

	poolIDs := make([]string, 0, len(res.Pool))
	for _, it := range res.Pool {
		poolIDs = append(poolIDs, it.ID)
	}
	assert.Equal(t, []string{"ok", "popular"}, poolIDs, "input order preserved in pool")

	reasons := map[string]string{}
	for _, r := range res.Rejected {
		reasons[r.Item.ID] = r.Reason
	}
	assert.Equal(t, map[string]string{
		"off-topic": ReasonOffTopic,
		"sponsored": ReasonNoisePattern,
		"unpopular": ReasonLowPopularity,
		"no-signal": ReasonLowPopularity,
	}, reasons)
}

func TestRun_NoThresholdCategoryPasses(t *testing.T) {
	h, err := New(testConfig())
	require.NoError(t, err)

	// arxiv has no popularity threshold, nil popularity is fine
	res := h.Run([]domain.CandidateItem{{ID: "a", Title: "LLM paper", SourceCategory: "arxiv"}})
	require.Len(t, res.Pool, 1)
	assert.Empty(t, res.Rejected)
}
