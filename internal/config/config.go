// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Store        StoreConfig        `mapstructure:"store"`
	Source       SourceConfig       `mapstructure:"source"`
	Summarizer   SummarizerConfig   `mapstructure:"summarizer"`
	Miner        MinerConfig        `mapstructure:"miner"`
	Rank         RankConfig         `mapstructure:"rank"`
	Dedup        DedupConfig        `mapstructure:"dedup"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// StoreConfig selects and configures the job store backend.
type StoreConfig struct {
	Provider string `mapstructure:"provider"` // memory | postgres
	DSN      string `mapstructure:"dsn"`
}

// SourceConfig holds discussion-platform credentials and rate limits.
type SourceConfig struct {
	BaseURL           string  `mapstructure:"base_url"`
	TokenURL          string  `mapstructure:"token_url"`
	UserAgent         string  `mapstructure:"user_agent"`
	ClientID          string  `mapstructure:"client_id"`
	ClientSecret      string  `mapstructure:"client_secret"`
	Username          string  `mapstructure:"username"`
	Password          string  `mapstructure:"password"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
}

// SummarizerConfig configures the LLM collaborator.
type SummarizerConfig struct {
	BaseURL        string  `mapstructure:"base_url"`
	APIKey         string  `mapstructure:"api_key"`
	Model          string  `mapstructure:"model"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	Temperature    float64 `mapstructure:"temperature"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
}

// MinerConfig governs crawl fan-out and filtering.
type MinerConfig struct {
	Days                int      `mapstructure:"days"`
	MinScore            int      `mapstructure:"min_score"`
	MaxThreads          int      `mapstructure:"max_threads"`
	Communities         []string `mapstructure:"communities"`
	CrawlConcurrency    int      `mapstructure:"crawl_concurrency"`
	ComposeConcurrency  int      `mapstructure:"compose_concurrency"`
	SearchLimit         int      `mapstructure:"search_limit"`
	ReplyFetchThreshold int      `mapstructure:"reply_fetch_threshold"`
	ReplyLimit          int      `mapstructure:"reply_limit"`
	EngagementOverride  int      `mapstructure:"engagement_override_replies"`
	TextLimit           int      `mapstructure:"text_limit"`
	MaxQueryVariants    int      `mapstructure:"max_query_variants"`
}

// RankConfig holds the heuristic ranking weights and normalizers. The values
// are tunable configuration, not derived constants.
type RankConfig struct {
	HalfLifeDays     float64 `mapstructure:"half_life_days"`
	FreshnessWeight  float64 `mapstructure:"freshness_weight"`
	VelocityWeight   float64 `mapstructure:"velocity_weight"`
	EngagementWeight float64 `mapstructure:"engagement_weight"`
	EvidenceWeight   float64 `mapstructure:"evidence_weight"`
	AuthorWeight     float64 `mapstructure:"author_weight"`
	VelocityNorm     float64 `mapstructure:"velocity_norm"`
	EngagementNorm   float64 `mapstructure:"engagement_norm"`
}

// DedupConfig holds the fuzzy-dedup threshold.
type DedupConfig struct {
	// Threshold is the near-duplicate cutoff as a fraction of the shorter
	// text's length (reference 0.2).
	Threshold float64 `mapstructure:"threshold"`
}

// OrchestratorConfig governs queueing, workers and caller-side waiting.
type OrchestratorConfig struct {
	QueueDepth          int `mapstructure:"queue_depth"`
	Workers             int `mapstructure:"workers"`
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds"`
	WaitCeilingMinutes  int `mapstructure:"wait_ceiling_minutes"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MINER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("store.provider", "memory")

	v.SetDefault("source.base_url", "https://oauth.reddit.com")
	v.SetDefault("source.token_url", "https://www.reddit.com/api/v1/access_token")
	v.SetDefault("source.user_agent", "insight-miner/1.0")
	v.SetDefault("source.requests_per_second", 1)
	v.SetDefault("source.burst", 2)
	v.SetDefault("source.timeout_seconds", 15)

	v.SetDefault("summarizer.base_url", "https://api.openai.com/v1")
	v.SetDefault("summarizer.model", "gpt-4o")
	v.SetDefault("summarizer.max_tokens", 4000)
	v.SetDefault("summarizer.temperature", 0.7)
	v.SetDefault("summarizer.timeout_seconds", 45)

	v.SetDefault("miner.days", 30)
	v.SetDefault("miner.min_score", 5)
	v.SetDefault("miner.max_threads", 250)
	v.SetDefault("miner.communities", []string{
		"SaaS", "startups", "programming", "webdev", "devops", "selfhosted",
	})
	v.SetDefault("miner.crawl_concurrency", 5)
	v.SetDefault("miner.compose_concurrency", 3)
	v.SetDefault("miner.search_limit", 50)
	v.SetDefault("miner.reply_fetch_threshold", 5)
	v.SetDefault("miner.reply_limit", 20)
	v.SetDefault("miner.engagement_override_replies", 3)
	v.SetDefault("miner.text_limit", 500)
	v.SetDefault("miner.max_query_variants", 5)

	v.SetDefault("rank.half_life_days", 7)
	v.SetDefault("rank.freshness_weight", 0.40)
	v.SetDefault("rank.velocity_weight", 0.25)
	v.SetDefault("rank.engagement_weight", 0.20)
	v.SetDefault("rank.evidence_weight", 0.10)
	v.SetDefault("rank.author_weight", 0.05)
	v.SetDefault("rank.velocity_norm", 10)
	v.SetDefault("rank.engagement_norm", 20)

	v.SetDefault("dedup.threshold", 0.2)

	v.SetDefault("orchestrator.queue_depth", 64)
	v.SetDefault("orchestrator.workers", 2)
	v.SetDefault("orchestrator.poll_interval_seconds", 1)
	v.SetDefault("orchestrator.wait_ceiling_minutes", 12)

	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	switch c.Store.Provider {
	case "memory":
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn must be set when store.provider is postgres")
		}
	default:
		return fmt.Errorf("unknown store.provider %q", c.Store.Provider)
	}
	if c.Miner.CrawlConcurrency <= 0 {
		return fmt.Errorf("miner.crawl_concurrency must be > 0")
	}
	if c.Miner.ComposeConcurrency <= 0 {
		return fmt.Errorf("miner.compose_concurrency must be > 0")
	}
	if c.Dedup.Threshold <= 0 || c.Dedup.Threshold >= 1 {
		return fmt.Errorf("dedup.threshold must be in (0, 1)")
	}
	if c.Orchestrator.Workers <= 0 {
		return fmt.Errorf("orchestrator.workers must be > 0")
	}
	if c.Orchestrator.PollIntervalSeconds <= 0 {
		return fmt.Errorf("orchestrator.poll_interval_seconds must be > 0")
	}
	return nil
}

// SummarizerTimeout returns the per-call soft timeout for Summarizer requests.
func (c Config) SummarizerTimeout() time.Duration {
	return time.Duration(c.Summarizer.TimeoutSeconds) * time.Second
}

// PollInterval returns the caller-side status poll interval.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Orchestrator.PollIntervalSeconds) * time.Second
}

// WaitCeiling returns the caller-side overall wall-clock ceiling.
func (c Config) WaitCeiling() time.Duration {
	return time.Duration(c.Orchestrator.WaitCeilingMinutes) * time.Minute
}
