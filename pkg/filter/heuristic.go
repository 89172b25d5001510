// Package filter implements the zero-cost L1 heuristic pass: whitelist
// bypass, keyword gate, noise rejection and popularity thresholds. Pure and
// deterministic, no remote calls.
package filter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-pkgz/lgr"

	"github.com/aitides/aitides/pkg/config"
	"github.com/aitides/aitides/pkg/domain"
)

// rejection reasons
const (
	ReasonOffTopic      = "off_topic"
	ReasonNoisePattern  = "noise_pattern"
	ReasonLowPopularity = "low_popularity"
)

// Rejection records a dropped item with the reason, for observability only.
type Rejection struct {
	Item   domain.CandidateItem
	Reason string
}

// Result holds the three disjoint L1 output sets.
type Result struct {
	Rejected    []Rejection
	Whitelisted []domain.CandidateItem // bypasses L2 truncation, straight to L3 pool
	Pool        []domain.CandidateItem // proceeds to L2 scoring
}

// Heuristic is the compiled L1 filter. Patterns are compiled once at
// construction so every run with the same configuration is byte-identical.
type Heuristic struct {
	keywords      []string
	noiseTerms    []string
	noisePatterns []*regexp.Regexp
	minPopularity map[string]float64
}

// New compiles the filter tables. Invalid noise patterns are a configuration
// error.
func New(cfg config.FilterConfig) (*Heuristic, error) {
	patterns := make([]*regexp.Regexp, 0, len(cfg.NoisePatterns))
	for _, p := range cfg.NoisePatterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("compile noise pattern %q: %w", p, err)
		}
		patterns = append(patterns, re)
	}

	keywords := make([]string, len(cfg.Keywords))
	for i, kw := range cfg.Keywords {
		keywords[i] = strings.ToLower(kw)
	}
	noiseTerms := make([]string, len(cfg.NoiseTerms))
	for i, term := range cfg.NoiseTerms {
		noiseTerms[i] = strings.ToLower(term)
	}

	return &Heuristic{
		keywords:      keywords,
		noiseTerms:    noiseTerms,
		noisePatterns: patterns,
		minPopularity: cfg.MinPopularity,
	}, nil
}

// Run partitions items into rejected, whitelisted and the L2 pool. Input
// order is preserved within each set.
func (h *Heuristic) Run(items []domain.CandidateItem) Result {
	var res Result
	for _, item := range items {
		// whitelisted sources bypass every other rule
		if item.Whitelisted {
			res.Whitelisted = append(res.Whitelisted, item)
			continue
		}

		text := strings.ToLower(item.Title + " " + item.SummaryRaw)

		// noise wins over the keyword gate: a noisy item is noise even
		// when it mentions a topical keyword
		if reason, noisy := h.noise(text); noisy {
			res.Rejected = append(res.Rejected, Rejection{Item: item, Reason: reason})
			continue
		}

		if !h.onTopic(text) {
			res.Rejected = append(res.Rejected, Rejection{Item: item, Reason: ReasonOffTopic})
			continue
		}

		if !h.popularOK(item) {
			res.Rejected = append(res.Rejected, Rejection{Item: item, Reason: ReasonLowPopularity})
			continue
		}

		res.Pool = append(res.Pool, item)
	}

	lgr.Printf("[INFO] l1 filter: %d -> %d pool, %d whitelisted, %d rejected",
		len(items), len(res.Pool), len(res.Whitelisted), len(res.Rejected))
	return res
}

// onTopic requires at least one topical keyword in title+summary
func (h *Heuristic) onTopic(text string) bool {
	for _, kw := range h.keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// noise checks strong negative terms and title-formula patterns
func (h *Heuristic) noise(text string) (string, bool) {
	for _, term := range h.noiseTerms {
		if strings.Contains(text, term) {
			return ReasonNoisePattern, true
		}
	}
	for _, re := range h.noisePatterns {
		if re.MatchString(text) {
			return ReasonNoisePattern, true
		}
	}
	return "", false
}

// popularOK applies the per-category minimum popularity; categories without
// a threshold pass unconditionally
func (h *Heuristic) popularOK(item domain.CandidateItem) bool {
	min, ok := h.minPopularity[item.SourceCategory]
	if !ok {
		return true
	}
	if item.Popularity == nil {
		return false
	}
	return *item.Popularity >= min
}
