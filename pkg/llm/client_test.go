package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aitides/aitides/pkg/config"
	"github.com/aitides/aitides/pkg/domain"
)

// newTestClient points the client at a stub chat-completions endpoint that
// always answers with the given content
func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return New(config.LLMConfig{
		Endpoint:    server.URL + "/v1",
		APIKey:      "test-key",
		Model:       "test-model",
		MaxAttempts: 2,
		Backoff:     time.Millisecond,
		Timeout:     time.Second,
		Locale:      "en",
	})
}

func chatResponse(content string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": content}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func TestScoreBatch(t *testing.T) {
	c := newTestClient(t, chatResponse(`Here are the scores:
[{"id": "a", "score": 8.5, "reason": "strong result"}, {"id": "b", "score": 3, "reason": "niche"}]`))

	results, err := c.ScoreBatch(context.Background(), []domain.CandidateItem{
		{ID: "a", Title: "Paper A"},
		{ID: "b", Title: "Post B"},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.InDelta(t, 8.5, results[0].Score, 0.0001)
	assert.Equal(t, "strong result", results[0].Rationale)
}

func TestScoreBatch_FiltersUnknownAndClamps(t *testing.T) {
	c := newTestClient(t, chatResponse(`[
		{"id": "a", "score": 15, "reason": "over"},
		{"id": "ghost", "score": 5, "reason": "hallucinated id"},
		{"id": "b", "score": -2, "reason": "under"}]`))

	results, err := c.ScoreBatch(context.Background(), []domain.CandidateItem{{ID: "a"}, {ID: "b"}})
	require.NoError(t, err)
	require.Len(t, results, 2, "unknown id dropped")
	assert.InDelta(t, 10, results[0].Score, 0.0001, "clamped to 10")
	assert.InDelta(t, 0, results[1].Score, 0.0001, "clamped to 0")
}

func TestScoreBatch_EmptyInput(t *testing.T) {
	c := newTestClient(t, chatResponse("should not be called"))
	results, err := c.ScoreBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, results)
}

func TestScoreBatch_BadJSON(t *testing.T) {
	c := newTestClient(t, chatResponse("I cannot score these items."))
	_, err := c.ScoreBatch(context.Background(), []domain.CandidateItem{{ID: "a"}})
	assert.Error(t, err)
}

func TestScoreBatch_RetriesExhausted(t *testing.T) {
	attempts := 0
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	})

	_, err := c.ScoreBatch(context.Background(), []domain.CandidateItem{{ID: "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exhausted 2 attempts")
	assert.Equal(t, 2, attempts)
}

func TestSummarize(t *testing.T) {
	c := newTestClient(t, chatResponse("```json\n"+
		`{"main_point": "new SOTA", "key_facts": ["beats baseline"], "why_it_matters": "raises the bar"}`+
		"\n```"))

	summary, err := c.Summarize(context.Background(), domain.ScoredItem{
		CandidateItem: domain.CandidateItem{ID: "a", Title: "Paper A"},
	})
	require.NoError(t, err)
	assert.Equal(t, "new SOTA", summary.MainPoint)
	assert.Equal(t, []string{"beats baseline"}, summary.KeyFacts)
	assert.Equal(t, "raises the bar", summary.WhyItMatters)
}

func TestSummarize_EmptyIsError(t *testing.T) {
	c := newTestClient(t, chatResponse(`{"main_point": "", "key_facts": [], "why_it_matters": ""}`))
	_, err := c.Summarize(context.Background(), domain.ScoredItem{})
	assert.Error(t, err)
}

func TestOverview(t *testing.T) {
	c := newTestClient(t, chatResponse("  A calm day in AI.  "))
	overview, err := c.Overview(context.Background(),
		[]domain.RefinedItem{{ScoredItem: domain.ScoredItem{CandidateItem: domain.CandidateItem{Title: "P"}}}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "A calm day in AI.", overview)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare array", `[1,2]`, `[1,2]`},
		{"fenced array", "```json\n[1,2]\n```", `[1,2]`},
		{"prose around", "sure: [1,2] hope it helps", `[1,2]`},
		{"no json returns input", "nothing here", "nothing here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSON(tt.in, '[', ']'))
		})
	}
}
