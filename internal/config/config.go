package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"KC_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"KC_DB_MAX_CONNS" default:"4"`

	NewsFeedURL   string `envconfig:"NEWS_FEED_URL" default:"https://news.google.com/rss/search"`
	KumamapAPIURL string `envconfig:"KUMAMAP_API_URL" default:"https://kumamap.com/api/sightings"`
	AkitaCSVURL   string `envconfig:"AKITA_CSV_URL" default:"https://ckan.pref.akita.lg.jp/dataset/f801a10f-f076-47e4-b5a6-0bb5569639e0/resource/326bfe79-3f64-401b-9862-b37a477c7211/download/050008_kumadas.csv"`

	ExtractorEndpoint string `envconfig:"EXTRACTOR_ENDPOINT" default:"http://127.0.0.1:8845/v1"`
	ExtractorModel    string `envconfig:"EXTRACTOR_MODEL" default:""`
	ExtractorAPIKey   string `envconfig:"EXTRACTOR_API_KEY" default:""`

	GeocoderURL string `envconfig:"GEOCODER_URL" default:"https://msearch.gsi.go.jp/address-search/AddressSearch"`

	SlackWebhookURL string `envconfig:"SLACK_WEBHOOK_URL" default:""`
	MapURL          string `envconfig:"MAP_URL" default:"https://kuma-map.netlify.app"`

	// Pipeline policy knobs. Defaults mirror the values the sightings
	// store was seeded with, so re-collection stays fingerprint-stable.
	FallbackDay        int `envconfig:"FALLBACK_DAY" default:"15"`
	InsertBatchSize    int `envconfig:"INSERT_BATCH_SIZE" default:"100"`
	NewsFetchLimit     int `envconfig:"NEWS_FETCH_LIMIT" default:"10"`
	BackfillFetchLimit int `envconfig:"BACKFILL_FETCH_LIMIT" default:"15"`
	SummaryMaxRunes    int `envconfig:"SUMMARY_MAX_RUNES" default:"500"`
	OfficialCutoffYear int `envconfig:"OFFICIAL_CUTOFF_YEAR" default:"2024"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("KC_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("KC_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("KC_DB_MIN_CONNS (%d) cannot exceed KC_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.FallbackDay < 1 || c.FallbackDay > 28 {
		return fmt.Errorf("FALLBACK_DAY must be between 1 and 28")
	}
	if c.InsertBatchSize < 1 {
		return fmt.Errorf("INSERT_BATCH_SIZE must be >= 1")
	}
	if c.NewsFetchLimit < 1 {
		return fmt.Errorf("NEWS_FETCH_LIMIT must be >= 1")
	}
	if c.BackfillFetchLimit < 1 {
		return fmt.Errorf("BACKFILL_FETCH_LIMIT must be >= 1")
	}
	if c.SummaryMaxRunes < 1 {
		return fmt.Errorf("SUMMARY_MAX_RUNES must be >= 1")
	}
	return nil
}
