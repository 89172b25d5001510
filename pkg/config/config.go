package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aitides/aitides/pkg/domain"
)

//go:generate go run ../../cmd/schema/main.go schema.json

// Config holds the full pipeline configuration. Loaded once per run and never
// mutated afterwards, so L1/L2 determinism only depends on the input items.
type Config struct {
	Window   WindowConfig   `yaml:"window" json:"window" jsonschema:"description=Freshness window settings"`
	Filter   FilterConfig   `yaml:"filter" json:"filter" jsonschema:"description=L1 heuristic filter settings"`
	Scoring  ScoringConfig  `yaml:"scoring" json:"scoring" jsonschema:"description=L2 composite scoring settings"`
	Quota    QuotaConfig    `yaml:"quota" json:"quota" jsonschema:"description=L3 selection quotas"`
	Tags     TagsConfig     `yaml:"tags" json:"tags" jsonschema:"description=Closed tag vocabulary"`
	LLM      LLMConfig      `yaml:"llm" json:"llm" jsonschema:"description=Remote scoring/summarization capability"`
	Feeds    []FeedConfig   `yaml:"feeds" json:"feeds" jsonschema:"description=RSS ingestion sources"`
	Extract  ExtractConfig  `yaml:"extract" json:"extract" jsonschema:"description=Full-text enrichment settings"`
	Database DatabaseConfig `yaml:"database" json:"database" jsonschema:"description=Persistence settings"`
	Server   ServerConfig   `yaml:"server" json:"server" jsonschema:"description=Read-only API server"`

	Budget    time.Duration `yaml:"budget" json:"budget" jsonschema:"default=10m,description=Wall-clock budget for one run"`
	LedgerCap int           `yaml:"ledger_cap" json:"ledger_cap" jsonschema:"default=30,description=Maximum history ledger entries"`
}

// WindowConfig controls the freshness window gate.
type WindowConfig struct {
	Mode         string   `yaml:"mode" json:"mode" jsonschema:"default=rolling,enum=rolling,enum=calendar,description=Window mode"`
	HorizonDays  int      `yaml:"horizon_days" json:"horizon_days" jsonschema:"default=1,minimum=1,description=Freshness horizon in days"`
	Timezone     string   `yaml:"timezone" json:"timezone" jsonschema:"default=UTC,description=Zone used for calendar boundaries and weekend checks"`
	SkipWeekend  []string `yaml:"skip_weekend" json:"skip_weekend" jsonschema:"description=Source categories skipped when now falls on a weekend"`
	NoTimestampOK []string `yaml:"no_timestamp_ok" json:"no_timestamp_ok" jsonschema:"description=Source categories whose items pass without a publish timestamp"`
}

// FilterConfig holds the L1 heuristic tables. All lookups are immutable for
// the duration of a run.
type FilterConfig struct {
	Keywords      []string           `yaml:"keywords" json:"keywords" jsonschema:"description=Topical keywords, case-insensitive substring match"`
	NoiseTerms    []string           `yaml:"noise_terms" json:"noise_terms" jsonschema:"description=Strong negative terms, any hit rejects"`
	NoisePatterns []string           `yaml:"noise_patterns" json:"noise_patterns" jsonschema:"description=Regex patterns for listicle/clickbait titles"`
	MinPopularity map[string]float64 `yaml:"min_popularity" json:"min_popularity" jsonschema:"description=Per source category minimum raw popularity; absent categories pass"`
}

// NormalizationConfig defines the fixed popularity curve for one source
// category. Curves are configuration, never inferred from the batch.
type NormalizationConfig struct {
	Curve string  `yaml:"curve" json:"curve" jsonschema:"default=linear,enum=linear,enum=log,description=Curve shape"`
	Min   float64 `yaml:"min" json:"min" jsonschema:"description=Raw value mapped to 0"`
	Max   float64 `yaml:"max" json:"max" jsonschema:"description=Raw value mapped to 1"`
}

// ScoringConfig holds the L2 composite formula constants.
type ScoringConfig struct {
	AIWeight         float64                        `yaml:"ai_weight" json:"ai_weight" jsonschema:"default=0.6,description=Blend weight of the remote score"`
	PopularityWeight float64                        `yaml:"popularity_weight" json:"popularity_weight" jsonschema:"default=0.4,description=Blend weight of normalized popularity"`
	WhitelistBonus   float64                        `yaml:"whitelist_bonus" json:"whitelist_bonus" jsonschema:"default=2.0,description=Additive bonus for whitelisted items"`
	SourceWeights    map[string]float64             `yaml:"source_weights" json:"source_weights" jsonschema:"description=Additive per-source constants; unlisted sources default to 0"`
	Normalization    map[string]NormalizationConfig `yaml:"normalization" json:"normalization" jsonschema:"description=Per source category popularity curves"`
	FailedScoreFloor float64                        `yaml:"failed_score_floor" json:"failed_score_floor" jsonschema:"default=2.0,description=Conservative aiScore assigned when a batch exhausts retries"`
	PaperLimit       int                            `yaml:"paper_limit" json:"paper_limit" jsonschema:"default=40,description=L2 candidate pool size for papers"`
	NewsLimit        int                            `yaml:"news_limit" json:"news_limit" jsonschema:"default=30,description=L2 candidate pool size for news"`
}

// QuotaConfig fixes the L3 selection sizes.
type QuotaConfig struct {
	PaperTotal       int            `yaml:"paper_total" json:"paper_total" jsonschema:"default=18,minimum=1,description=Total papers selected per run"`
	NewsTotal        int            `yaml:"news_total" json:"news_total" jsonschema:"default=10,minimum=1,description=Total news selected per run"`
	PaperPerCategory map[string]int `yaml:"paper_per_category" json:"paper_per_category" jsonschema:"description=Per paper-source-category subquotas; sum must not exceed paper_total"`
}

// Domain converts the quota section to the domain type
func (q QuotaConfig) Domain() domain.Quota {
	return domain.Quota{
		PaperTotal:       q.PaperTotal,
		NewsTotal:        q.NewsTotal,
		PaperPerCategory: q.PaperPerCategory,
	}
}

// TagsConfig defines the closed tag vocabulary used by the local tagger.
type TagsConfig struct {
	Vocabulary map[string][]string `yaml:"vocabulary" json:"vocabulary" jsonschema:"description=Tag name to trigger keywords"`
	MaxTags    int                 `yaml:"max_tags" json:"max_tags" jsonschema:"default=4,maximum=4,description=Maximum tags per item"`
}

// LLMConfig holds the remote capability settings.
type LLMConfig struct {
	Endpoint    string        `yaml:"endpoint" json:"endpoint" jsonschema:"required,description=OpenAI-compatible API endpoint"`
	APIKey      string        `yaml:"api_key" json:"api_key" jsonschema:"description=API key (can use environment variable)"`
	Model       string        `yaml:"model" json:"model" jsonschema:"required,description=Model name"`
	Temperature float64       `yaml:"temperature" json:"temperature" jsonschema:"default=0.3,description=Temperature for response generation"`
	MaxTokens   int           `yaml:"max_tokens" json:"max_tokens" jsonschema:"default=2000,description=Maximum tokens in response"`
	Locale      string        `yaml:"locale" json:"locale" jsonschema:"default=zh,description=Target locale for generated summaries"`
	BatchSize   int           `yaml:"batch_size" json:"batch_size" jsonschema:"default=10,minimum=1,description=Items per scoring request"`
	Concurrency int           `yaml:"concurrency" json:"concurrency" jsonschema:"default=3,minimum=1,description=Concurrent remote calls"`
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts" jsonschema:"default=3,minimum=1,description=Attempts per remote call"`
	Backoff     time.Duration `yaml:"backoff" json:"backoff" jsonschema:"default=2s,description=Initial backoff between attempts"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=60s,description=Per-attempt timeout"`
}

// FeedConfig describes one RSS ingestion source.
type FeedConfig struct {
	Name      string `yaml:"name" json:"name" jsonschema:"required,description=Display name"`
	URL       string `yaml:"url" json:"url" jsonschema:"required,description=Feed URL"`
	Kind      string `yaml:"kind" json:"kind" jsonschema:"default=news,enum=paper,enum=news,description=Item kind produced"`
	Category  string `yaml:"category" json:"category" jsonschema:"description=Source category, defaults to the feed name"`
	Whitelist bool   `yaml:"whitelist" json:"whitelist" jsonschema:"description=Bypass L1/L2 for items from this feed"`
}

// ExtractConfig holds full-text enrichment settings.
type ExtractConfig struct {
	Enabled     bool          `yaml:"enabled" json:"enabled" jsonschema:"default=false,description=Enable full-text extraction for news"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=30s,description=Extraction timeout per item"`
	Concurrency int           `yaml:"concurrency" json:"concurrency" jsonschema:"default=5,description=Concurrent extractions"`
	UserAgent   string        `yaml:"user_agent" json:"user_agent" jsonschema:"default=AITides/1.0,description=User agent for HTTP requests"`
}

// DatabaseConfig holds persistence settings.
type DatabaseConfig struct {
	DSN          string `yaml:"dsn" json:"dsn" jsonschema:"default=file:aitides.db?cache=shared&mode=rwc,description=Database connection string"`
	MaxOpenConns int    `yaml:"max_open_conns" json:"max_open_conns" jsonschema:"default=10,description=Maximum open connections"`
	MaxIdleConns int    `yaml:"max_idle_conns" json:"max_idle_conns" jsonschema:"default=5,description=Maximum idle connections"`
}

// ServerConfig holds the read-only API settings.
type ServerConfig struct {
	Listen  string        `yaml:"listen" json:"listen" jsonschema:"default=:8080,description=HTTP server listen address"`
	Timeout time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=30s,description=HTTP server timeout"`
}

// Load reads configuration from a YAML file, expands environment variables,
// applies defaults and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // file path comes from CLI flag
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// setDefaults fills zero values with sensible defaults
func (c *Config) setDefaults() {
	if c.Window.Mode == "" {
		c.Window.Mode = "rolling"
	}
	if c.Window.HorizonDays == 0 {
		c.Window.HorizonDays = 1
	}
	if c.Window.Timezone == "" {
		c.Window.Timezone = "UTC"
	}

	if c.Scoring.AIWeight == 0 && c.Scoring.PopularityWeight == 0 {
		c.Scoring.AIWeight = 0.6
		c.Scoring.PopularityWeight = 0.4
	}
	if c.Scoring.WhitelistBonus == 0 {
		c.Scoring.WhitelistBonus = 2.0
	}
	if c.Scoring.FailedScoreFloor == 0 {
		c.Scoring.FailedScoreFloor = 2.0
	}
	if c.Scoring.PaperLimit == 0 {
		c.Scoring.PaperLimit = 40
	}
	if c.Scoring.NewsLimit == 0 {
		c.Scoring.NewsLimit = 30
	}

	if c.Quota.PaperTotal == 0 {
		c.Quota.PaperTotal = 18
	}
	if c.Quota.NewsTotal == 0 {
		c.Quota.NewsTotal = 10
	}

	if c.Tags.MaxTags == 0 {
		c.Tags.MaxTags = 4
	}

	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.3
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 2000
	}
	if c.LLM.Locale == "" {
		c.LLM.Locale = "zh"
	}
	if c.LLM.BatchSize == 0 {
		c.LLM.BatchSize = 10
	}
	if c.LLM.Concurrency == 0 {
		c.LLM.Concurrency = 3
	}
	if c.LLM.MaxAttempts == 0 {
		c.LLM.MaxAttempts = 3
	}
	if c.LLM.Backoff == 0 {
		c.LLM.Backoff = 2 * time.Second
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 60 * time.Second
	}

	if c.Extract.Timeout == 0 {
		c.Extract.Timeout = 30 * time.Second
	}
	if c.Extract.Concurrency == 0 {
		c.Extract.Concurrency = 5
	}
	if c.Extract.UserAgent == "" {
		c.Extract.UserAgent = "AITides/1.0"
	}

	if c.Database.DSN == "" {
		c.Database.DSN = "file:aitides.db?cache=shared&mode=rwc&_txlock=immediate"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}

	if c.Server.Listen == "" {
		c.Server.Listen = ":8080"
	}
	if c.Server.Timeout == 0 {
		c.Server.Timeout = 30 * time.Second
	}

	if c.Budget == 0 {
		c.Budget = 10 * time.Minute
	}
	if c.LedgerCap == 0 {
		c.LedgerCap = 30
	}
}

// validate checks configuration for correctness. Violations here are fatal
// before any remote call is made.
func validate(cfg *Config) error {
	if cfg.Window.Mode != "rolling" && cfg.Window.Mode != "calendar" {
		return fmt.Errorf("window.mode must be rolling or calendar, got %q", cfg.Window.Mode)
	}
	if cfg.Window.HorizonDays <= 0 {
		return fmt.Errorf("window.horizon_days must be positive, got %d", cfg.Window.HorizonDays)
	}

	if cfg.Scoring.AIWeight < 0 || cfg.Scoring.PopularityWeight < 0 {
		return fmt.Errorf("scoring blend weights must be non-negative")
	}
	if cfg.Scoring.FailedScoreFloor < 0 || cfg.Scoring.FailedScoreFloor > 10 {
		return fmt.Errorf("scoring.failed_score_floor must be between 0 and 10")
	}
	for cat, n := range cfg.Scoring.Normalization {
		switch n.Curve {
		case "", "linear", "log":
		default:
			return fmt.Errorf("scoring.normalization[%s].curve must be linear or log, got %q", cat, n.Curve)
		}
		if n.Max <= n.Min {
			return fmt.Errorf("scoring.normalization[%s]: max must exceed min", cat)
		}
	}

	if cfg.Quota.PaperTotal <= 0 || cfg.Quota.NewsTotal <= 0 {
		return fmt.Errorf("quota totals must be positive")
	}
	sub := 0
	for cat, q := range cfg.Quota.PaperPerCategory {
		if q < 0 {
			return fmt.Errorf("quota.paper_per_category[%s] must be non-negative", cat)
		}
		sub += q
	}
	if sub > cfg.Quota.PaperTotal {
		return fmt.Errorf("sum of paper subquotas %d exceeds paper_total %d", sub, cfg.Quota.PaperTotal)
	}

	if cfg.Tags.MaxTags < 1 || cfg.Tags.MaxTags > 4 {
		return fmt.Errorf("tags.max_tags must be between 1 and 4")
	}

	if cfg.LLM.Endpoint == "" {
		return fmt.Errorf("llm.endpoint is required")
	}
	if cfg.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be between 0 and 2")
	}
	if cfg.LLM.BatchSize < 1 {
		return fmt.Errorf("llm.batch_size must be at least 1")
	}

	for i, f := range cfg.Feeds {
		if f.URL == "" {
			return fmt.Errorf("feeds[%d]: url is required", i)
		}
		if f.Kind != "" && f.Kind != "paper" && f.Kind != "news" {
			return fmt.Errorf("feeds[%d]: kind must be paper or news, got %q", i, f.Kind)
		}
	}

	if cfg.LedgerCap < 1 {
		return fmt.Errorf("ledger_cap must be positive")
	}

	return nil
}

// GetServerConfig returns server configuration
func (c *Config) GetServerConfig() (listen string, timeout time.Duration) {
	return c.Server.Listen, c.Server.Timeout
}
