// Package llm talks to the remote scoring/summarization capability over an
// OpenAI-compatible API. Every call is wrapped in a bounded retry policy with
// exponential backoff and a per-attempt timeout; callers translate exhausted
// retries into their stage-local fallback.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-pkgz/repeater/v2"
	"github.com/sashabaranov/go-openai"

	"github.com/aitides/aitides/pkg/config"
	"github.com/aitides/aitides/pkg/domain"
)

// Client wraps the remote capability.
type Client struct {
	client *openai.Client
	cfg    config.LLMConfig
}

// ScoreResult is one per-item scoring response.
type ScoreResult struct {
	ID        string  `json:"id"`
	Score     float64 `json:"score"`
	Rationale string  `json:"reason"`
}

// New creates a client for the configured endpoint
func New(cfg config.LLMConfig) *Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientConfig.BaseURL = cfg.Endpoint
	}
	return &Client{client: openai.NewClientWithConfig(clientConfig), cfg: cfg}
}

const scoringSystemPrompt = `You are a senior AI technology editor with a global view.
Rate each item for industry impact on a 0-10 scale:
- 9-10: milestone releases, frontier-lab breakthroughs, national AI policy
- 7-8: clear SOTA work, major funding or product launches
- 5-6: solid research progress, useful open-source projects
- 3-4: narrow niche improvements, small tools, opinion pieces
- 0-2: marketing, low-quality tutorials, clickbait, duplicates
Prefer content that shapes the next 6-12 months; distrust hype.`

// ScoreBatch sends one batch of candidates and returns per-item scores with
// rationale text. The returned slice covers only ids the model answered for;
// the caller defaults the rest.
func (c *Client) ScoreBatch(ctx context.Context, items []domain.CandidateItem) ([]ScoreResult, error) {
	if len(items) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Score these %d items:\n\n", len(items)))
	for i, item := range items {
		sb.WriteString(fmt.Sprintf("%d. ID: %s\n   Title: %s\n", i+1, item.ID, item.Title))
		if item.SummaryRaw != "" {
			sb.WriteString(fmt.Sprintf("   Summary: %s\n", clip(item.SummaryRaw, 300)))
		}
		if item.FullText != "" {
			sb.WriteString(fmt.Sprintf("   Content: %s\n", clip(item.FullText, 1200)))
		}
		sb.WriteString(fmt.Sprintf("   Source: %s\n\n", item.SourceName))
	}
	sb.WriteString(`Respond with a JSON array only: [{"id": "...", "score": 0-10, "reason": "one or two sentences"}, ...]`)

	content, err := c.complete(ctx, scoringSystemPrompt, sb.String())
	if err != nil {
		return nil, err
	}

	var results []ScoreResult
	if err := json.Unmarshal([]byte(extractJSON(content, '[', ']')), &results); err != nil {
		return nil, fmt.Errorf("parse scoring response: %w", err)
	}

	known := make(map[string]bool, len(items))
	for _, item := range items {
		known[item.ID] = true
	}
	valid := results[:0]
	for _, r := range results {
		if !known[r.ID] {
			continue
		}
		r.Score = clamp(r.Score, 0, 10)
		valid = append(valid, r)
	}
	return valid, nil
}

// Summarize requests a structured summary for one selected item in the
// configured locale.
func (c *Client) Summarize(ctx context.Context, item domain.ScoredItem) (domain.Summary, error) {
	var sb strings.Builder
	sb.WriteString("Summarize the following item for a daily AI digest.\n\n")
	sb.WriteString(fmt.Sprintf("Title: %s\nSource: %s\n", item.Title, item.SourceName))
	if item.SummaryRaw != "" {
		sb.WriteString(fmt.Sprintf("Abstract: %s\n", clip(item.SummaryRaw, 500)))
	}
	if item.FullText != "" {
		sb.WriteString(fmt.Sprintf("Body: %s\n", clip(item.FullText, 1500)))
	}
	sb.WriteString(fmt.Sprintf("\nWrite in locale %q. Be specific and information-dense; avoid filler phrases.\n", c.cfg.Locale))
	sb.WriteString(`Respond with a JSON object only: {"main_point": "...", "key_facts": ["...", "..."], "why_it_matters": "..."}`)

	content, err := c.complete(ctx, "You are a precise technical editor.", sb.String())
	if err != nil {
		return domain.Summary{}, err
	}

	var summary domain.Summary
	if err := json.Unmarshal([]byte(extractJSON(content, '{', '}')), &summary); err != nil {
		return domain.Summary{}, fmt.Errorf("parse summary response: %w", err)
	}
	if summary.Empty() {
		return domain.Summary{}, fmt.Errorf("empty summary returned")
	}
	return summary, nil
}

// Overview asks for one short run-level synthesis of the selected set.
func (c *Client) Overview(ctx context.Context, papers, news []domain.RefinedItem) (string, error) {
	var sb strings.Builder
	sb.WriteString("Write a short daily overview (3-5 sentences) synthesizing today's selection.\n")
	sb.WriteString(fmt.Sprintf("Locale: %s. Plain prose, no markdown, no list.\n\nPapers:\n", c.cfg.Locale))
	for _, p := range papers {
		sb.WriteString("- " + p.Title + "\n")
	}
	sb.WriteString("\nNews:\n")
	for _, n := range news {
		sb.WriteString("- " + n.Title + "\n")
	}

	content, err := c.complete(ctx, "You are the editor-in-chief of a daily AI digest.", sb.String())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(content), nil
}

// complete runs one chat completion with retries and a per-attempt timeout
func (c *Client) complete(ctx context.Context, system, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Temperature: float32(c.cfg.Temperature),
		MaxTokens:   c.cfg.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}

	var content string
	retrier := repeater.NewBackoff(c.cfg.MaxAttempts, c.cfg.Backoff, repeater.WithMaxDelay(30*time.Second))
	err := retrier.Do(ctx, func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()

		resp, err := c.client.CreateChatCompletion(attemptCtx, req)
		if err != nil {
			return fmt.Errorf("llm request failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("no response from llm")
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("remote call exhausted %d attempts: %w", c.cfg.MaxAttempts, err)
	}
	return content, nil
}

// extractJSON cuts the first well-delimited JSON value out of a response that
// may be wrapped in prose or a markdown code fence
func extractJSON(content string, open, close byte) string {
	start := strings.IndexByte(content, open)
	end := strings.LastIndexByte(content, close)
	if start == -1 || end == -1 || start >= end {
		return content
	}
	return content[start : end+1]
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
