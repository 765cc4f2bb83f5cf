// Package config loads and validates every tunable named in the system's
// configuration surface: batching/pacing for the extractor, lookback
// windows, merge thresholds, cache TTLs, and connection strings for the
// database, cache, and LLM provider. Values are read from the environment
// with production-ready defaults, following the teacher repository's
// getEnvOrDefault + Validate() convention.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the umbrella configuration object constructed once at startup
// and passed explicitly to every component that needs it.
type Config struct {
	Database Database
	Cache    Cache
	LLM      LLM
	Pipeline Pipeline
}

// Database holds Postgres connection settings.
type Database struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DSN renders the libpq-style connection string pgx's stdlib driver expects.
func (d Database) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// Cache holds two-tier cache configuration (spec §4.9).
type Cache struct {
	// URL, if set, enables the Tier-2 distributed cache (redis://...).
	// Empty means Tier-1 in-process only.
	URL string

	Tier1MaxEntries int

	TTLSignals    time.Duration
	TTLNarratives time.Duration
}

// LLM holds the entity-extraction and narrative-summarization model
// selection, pacing, and rate-limit configuration (spec §4.3, §6).
type LLM struct {
	APIKey  string
	BaseURL string

	ModelEntity    string
	ModelNarrative string

	BatchSizeExtraction int
	BatchDelay          time.Duration
	ArticleDelay        time.Duration

	// TokensPerMinute is the provider's actual TPM limit; SafetyFactor
	// scales it down so steady-state throughput stays strictly under it.
	TokensPerMinute int
	SafetyFactor    float64

	RequestTimeout      time.Duration
	MaxRetries          int
	RetryBaseDelay      time.Duration
	RetryMaxDelay       time.Duration
	CircuitBreakerTrips uint32
	CircuitBreakerReset time.Duration
}

// EffectiveTokenBudget returns the per-minute token budget after applying
// the safety margin.
func (l LLM) EffectiveTokenBudget() int {
	return int(float64(l.TokensPerMinute) * l.SafetyFactor)
}

// Pipeline holds clustering, lifecycle, and scoring tunables (spec §6).
type Pipeline struct {
	LookbackHoursCluster int
	LookbackHoursSignal  int
	MinClusterSize       int

	MergeThresholdRecent float64
	MergeThresholdOld    float64
	RecentNarrativeAge   time.Duration

	DormantDays int
	ArchiveDays int

	EmergingScoreFloor float64
}

// Load reads configuration from the environment, applying the defaults
// documented in spec §6, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		Database: Database{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "cryptonews"),
			Password:        os.Getenv("DB_PASSWORD"),
			Name:            getEnv("DB_NAME", "cryptonews"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", time.Hour),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 15*time.Minute),
		},
		Cache: Cache{
			URL:             os.Getenv("CACHE_URL"),
			Tier1MaxEntries: getEnvInt("CACHE_TIER1_MAX_ENTRIES", 2000),
			TTLSignals:      getEnvDuration("CACHE_TTL_SIGNALS_SECONDS", 120*time.Second),
			TTLNarratives:   getEnvDuration("CACHE_TTL_NARRATIVES_SECONDS", 600*time.Second),
		},
		LLM: LLM{
			APIKey:              os.Getenv("LLM_API_KEY"),
			BaseURL:             getEnv("LLM_BASE_URL", "https://api.anthropic.com"),
			ModelEntity:         getEnv("LLM_MODEL_ENTITY", "claude-haiku-4-5"),
			ModelNarrative:      getEnv("LLM_MODEL_NARRATIVE", "claude-sonnet-4-5"),
			BatchSizeExtraction: getEnvInt("BATCH_SIZE_EXTRACTION", 15),
			BatchDelay:          getEnvDuration("BATCH_DELAY_SECONDS", 30*time.Second),
			ArticleDelay:        getEnvDuration("ARTICLE_DELAY_SECONDS", 1*time.Second),
			TokensPerMinute:     getEnvInt("LLM_TOKENS_PER_MINUTE", 25000),
			SafetyFactor:        getEnvFloat("LLM_RATE_LIMIT_SAFETY_FACTOR", 0.8),
			RequestTimeout:      getEnvDuration("LLM_REQUEST_TIMEOUT_SECONDS", 30*time.Second),
			MaxRetries:          getEnvInt("LLM_MAX_RETRIES", 5),
			RetryBaseDelay:      getEnvDuration("LLM_RETRY_BASE_DELAY_SECONDS", 1*time.Second),
			RetryMaxDelay:       getEnvDuration("LLM_RETRY_MAX_DELAY_SECONDS", 60*time.Second),
			CircuitBreakerTrips: uint32(getEnvInt("LLM_CIRCUIT_BREAKER_TRIPS", 5)),
			CircuitBreakerReset: getEnvDuration("LLM_CIRCUIT_BREAKER_RESET_SECONDS", 30*time.Second),
		},
		Pipeline: Pipeline{
			LookbackHoursCluster: getEnvInt("LOOKBACK_HOURS_CLUSTER", 48),
			LookbackHoursSignal:  getEnvInt("LOOKBACK_HOURS_SIGNAL", 168),
			MinClusterSize:       getEnvInt("MIN_CLUSTER_SIZE", 3),
			MergeThresholdRecent: getEnvFloat("MERGE_THRESHOLD_RECENT", 0.5),
			MergeThresholdOld:    getEnvFloat("MERGE_THRESHOLD_OLD", 0.6),
			RecentNarrativeAge:   48 * time.Hour,
			DormantDays:          getEnvInt("DORMANT_DAYS", 7),
			ArchiveDays:          getEnvInt("ARCHIVE_DAYS", 30),
			EmergingScoreFloor:   getEnvFloat("EMERGING_SCORE_FLOOR", 3.0),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required secrets are present and numeric settings
// are internally consistent. A PermanentConfig-kind error here is meant
// to fail the process loudly at startup (spec §7).
func (c Config) Validate() error {
	if c.Database.Password == "" {
		return fmt.Errorf("config: DB_PASSWORD is required")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("config: DB_MAX_IDLE_CONNS (%d) cannot exceed DB_MAX_OPEN_CONNS (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("config: LLM_API_KEY is required")
	}
	if c.LLM.BatchSizeExtraction < 1 || c.LLM.BatchSizeExtraction > 15 {
		return fmt.Errorf("config: BATCH_SIZE_EXTRACTION must be in [1,15], got %d", c.LLM.BatchSizeExtraction)
	}
	if c.Pipeline.MinClusterSize < 1 {
		return fmt.Errorf("config: MIN_CLUSTER_SIZE must be >= 1")
	}
	if c.Pipeline.MergeThresholdRecent <= 0 || c.Pipeline.MergeThresholdRecent > 1 {
		return fmt.Errorf("config: MERGE_THRESHOLD_RECENT must be in (0,1]")
	}
	if c.Pipeline.MergeThresholdOld <= 0 || c.Pipeline.MergeThresholdOld > 1 {
		return fmt.Errorf("config: MERGE_THRESHOLD_OLD must be in (0,1]")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// getEnvDuration accepts either a bare integer (interpreted as seconds, to
// match the §6 *_SECONDS naming) or a Go duration string.
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
