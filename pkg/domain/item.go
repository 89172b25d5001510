package domain

import "time"

// ItemKind separates papers from news; quotas and truncation limits are
// tracked per kind through the whole funnel.
type ItemKind string

// item kinds
const (
	KindPaper ItemKind = "paper"
	KindNews  ItemKind = "news"
)

// CandidateItem is the canonical shape every source record is normalized to.
// It is immutable once produced by the canonicalizer; later stages derive new
// collections instead of mutating it.
type CandidateItem struct {
	ID             string     // stable dedup key, source-native id or derived from normalized URL
	Kind           ItemKind
	Title          string
	SummaryRaw     string     // source-provided abstract/blurb, may be empty
	FullText       string     // optional extracted body, filled by enrichment
	URL            string
	SourceName     string
	SourceCategory string     // e.g. arxiv, huggingface, hackernews, rss-whitelisted, rss-filtered
	PublishedAt    *time.Time // nil when the source carries no timestamp
	Popularity     *float64   // raw popularity signal, unit varies per category
	Whitelisted    bool
}

// ScoredItem is a CandidateItem with the remote quality score and the derived
// composite score attached.
type ScoredItem struct {
	CandidateItem
	AIScore       float64 // 0-10, from the remote capability
	Rationale     string
	Composite     float64
	ScoringFailed bool
}

// Summary is the structured machine-generated summary for a selected item.
type Summary struct {
	MainPoint    string   `json:"main_point"`
	KeyFacts     []string `json:"key_facts"`
	WhyItMatters string   `json:"why_it_matters"`
}

// Empty reports whether the summary carries no usable content.
func (s Summary) Empty() bool {
	return s.MainPoint == "" && len(s.KeyFacts) == 0 && s.WhyItMatters == ""
}

// RefinedItem is the final per-item shape produced by L3.
type RefinedItem struct {
	ScoredItem
	Summary      Summary
	Tags         []string // ordered, at most 4, from the closed vocabulary
	RefineFailed bool     // remote summary fell back to the local one
}

// Quota fixes the final selection sizes for one run. Sum of paper subquotas
// must not exceed PaperTotal; both totals are positive.
type Quota struct {
	PaperTotal       int
	NewsTotal        int
	PaperPerCategory map[string]int
}

// Warning is a non-fatal issue recorded against the run.
type Warning struct {
	Stage  string // window, ingest, l1, l2, l3, assemble
	Code   string // ingestion_gap, remote_call_failure, quota_shortfall, ...
	Detail string
}

// warning codes
const (
	WarnIngestionGap      = "ingestion_gap"
	WarnRemoteCallFailure = "remote_call_failure"
	WarnQuotaShortfall    = "quota_shortfall"
	WarnOverviewFallback  = "overview_fallback"
)
