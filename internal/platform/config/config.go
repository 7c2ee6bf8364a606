// Package config loads the runtime configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/tickwatch/tickwatch/internal/core/domain"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" envDefault:"local"`
	PostgresDSN string `env:"POSTGRES_DSN,required"`
	HealthPort  int    `env:"HEALTH_PORT" envDefault:"8080"`

	// Oracle (classification / explanation service)
	OracleAPIKey  string        `env:"ORACLE_API_KEY"`
	OracleBaseURL string        `env:"ORACLE_BASE_URL"`
	OracleModel   string        `env:"ORACLE_MODEL" envDefault:"gpt-4o-mini"`
	OracleTimeout time.Duration `env:"ORACLE_TIMEOUT" envDefault:"30s"`

	// Ingestion
	FeedURLs          []string      `env:"FEED_URLS" envSeparator:","`
	MacroQueries      []string      `env:"MACRO_QUERIES" envSeparator:"," envDefault:"fed rate decision,inflation report,jobs report"`
	PerSourceLimit    int           `env:"PER_SOURCE_LIMIT" envDefault:"25"`
	MacroCap          int           `env:"MACRO_CAP" envDefault:"30"`
	DomainAllowlist   string        `env:"DOMAIN_ALLOWLIST" envDefault:""`
	DomainBlocklist   string        `env:"DOMAIN_BLOCKLIST" envDefault:""`
	StrictDomainMode  bool          `env:"STRICT_DOMAIN_MODE" envDefault:"false"`
	ResolveTimeout    time.Duration `env:"RESOLVE_TIMEOUT" envDefault:"10s"`
	FetchTimeout      time.Duration `env:"FETCH_TIMEOUT" envDefault:"30s"`
	ProviderRPS       float64       `env:"PROVIDER_RPS" envDefault:"2"`
	BackoffBase       time.Duration `env:"BACKOFF_BASE" envDefault:"1m"`
	BackoffCap        time.Duration `env:"BACKOFF_CAP" envDefault:"1h"`
	ProviderAttempts  int           `env:"PROVIDER_ATTEMPTS" envDefault:"3"`
	ParallelProviders bool          `env:"PARALLEL_PROVIDERS" envDefault:"true"`

	// Stage batches
	TriageBatchSize      int `env:"TRIAGE_BATCH_SIZE" envDefault:"100"`
	FetchBatchSize       int `env:"FETCH_BATCH_SIZE" envDefault:"30"`
	ClassifyBatchSize    int `env:"CLASSIFY_BATCH_SIZE" envDefault:"20"`
	PersonalizeBatchSize int `env:"PERSONALIZE_BATCH_SIZE" envDefault:"50"`
	RankBatchSize        int `env:"RANK_BATCH_SIZE" envDefault:"100"`

	// Cost gates and scoring
	ProfileType             string  `env:"PROFILE_TYPE" envDefault:"balanced"`
	TitleRelevanceThreshold float64 `env:"TITLE_RELEVANCE_THRESHOLD" envDefault:"0.2"`
	ImpactOracleThreshold   float64 `env:"IMPACT_ORACLE_THRESHOLD" envDefault:"40"`
	SkipMultiplier          float64 `env:"SKIP_MULTIPLIER" envDefault:"0.6"`
	MinAdjustedScore        float64 `env:"MIN_ADJUSTED_SCORE" envDefault:"20"`
	SimilarityThreshold     float64 `env:"SIMILARITY_THRESHOLD" envDefault:"0.85"`

	// Explanation cache
	ExplanationTTL           time.Duration `env:"EXPLANATION_TTL" envDefault:"6h"`
	ExplanationCacheCapacity int           `env:"EXPLANATION_CACHE_CAPACITY" envDefault:"512"`

	// Scheduler
	SchedulerDisabled bool          `env:"SCHEDULER_DISABLED" envDefault:"false"`
	IngestInterval    time.Duration `env:"INGEST_INTERVAL" envDefault:"15m"`
	ProcessInterval   time.Duration `env:"PROCESS_INTERVAL" envDefault:"5m"`
	RankInterval      time.Duration `env:"RANK_INTERVAL" envDefault:"10m"`
	InitialDelay      time.Duration `env:"INITIAL_DELAY" envDefault:"10s"`

	// Database pool
	DBMaxConnections int32 `env:"DB_MAX_CONNECTIONS" envDefault:"10"`
	DBMinConnections int32 `env:"DB_MIN_CONNECTIONS" envDefault:"2"`
}

func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env file is optional, error is expected when not present

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment config: %w", err)
	}

	if !domain.ValidProfile(domain.ProfileType(cfg.ProfileType)) {
		return nil, fmt.Errorf("unknown PROFILE_TYPE %q", cfg.ProfileType)
	}

	return cfg, nil
}
