// Package config loads and validates harvester configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/job-harvester/internal/crawler"
)

// EnvPrefix prefixes every environment override, e.g. HARVESTER_DB_DSN.
const EnvPrefix = "HARVESTER"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Crawl    CrawlConfig    `mapstructure:"crawl"`
	Sources  SourcesConfig  `mapstructure:"sources"`
	DB       DBConfig       `mapstructure:"db"`
	Raw      RawConfig      `mapstructure:"raw"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Progress ProgressConfig `mapstructure:"progress"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ServerConfig controls the status API.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig guards the mutating API routes.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// ScheduleConfig sets the pause between harvest passes. Zero runs once.
type ScheduleConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// HTTPConfig configures the per-session request client.
type HTTPConfig struct {
	Concurrency       int           `mapstructure:"concurrency"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	BackoffBase       time.Duration `mapstructure:"backoff_base"`
	Timeout           time.Duration `mapstructure:"timeout"`
	UserAgent         string        `mapstructure:"user_agent"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

// CrawlConfig governs the crawl loop.
type CrawlConfig struct {
	EmptyPageLimit       int           `mapstructure:"empty_page_limit"`
	JobExpiry            time.Duration `mapstructure:"job_expiry"`
	CompanyExpiry        time.Duration `mapstructure:"company_expiry"`
	PageDelayMin         time.Duration `mapstructure:"page_delay_min"`
	PageDelayMax         time.Duration `mapstructure:"page_delay_max"`
	MaxPages             int           `mapstructure:"max_pages"`
	FreshnessParallelism int           `mapstructure:"freshness_parallelism"`
}

// SourceConfig overrides crawl settings and endpoints for one platform.
type SourceConfig struct {
	EmptyPageLimit int    `mapstructure:"empty_page_limit"`
	MaxPages       int    `mapstructure:"max_pages"`
	Concurrency    int    `mapstructure:"concurrency"`
	Web            string `mapstructure:"web"`
	Mobile         string `mapstructure:"mobile"`
	API            string `mapstructure:"api"`
}

// SourcesConfig selects the platforms to crawl. Overrides are keyed by
// lower-case platform name, e.g. sources.overrides.saramin.empty_page_limit.
type SourcesConfig struct {
	Enabled   []string                `mapstructure:"enabled"`
	Overrides map[string]SourceConfig `mapstructure:"overrides"`
}

// DBConfig selects the relational store.
type DBConfig struct {
	Provider        string        `mapstructure:"provider"`
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// RawConfig selects the raw archive.
type RawConfig struct {
	Provider string         `mapstructure:"provider"`
	GCS      GCSConfig      `mapstructure:"gcs"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Local    LocalRawConfig `mapstructure:"local"`
}

// GCSConfig locates the archive bucket.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// RedisConfig locates the archive keyspace.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// LocalRawConfig roots the filesystem archive.
type LocalRawConfig struct {
	Dir string `mapstructure:"dir"`
}

// NotifyConfig selects the batch notifier.
type NotifyConfig struct {
	Provider string       `mapstructure:"provider"`
	PubSub   PubSubConfig `mapstructure:"pubsub"`
	Kafka    KafkaConfig  `mapstructure:"kafka"`
}

// PubSubConfig holds the batch topic coordinates.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// KafkaConfig holds the batch topic coordinates.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// ProgressConfig tunes the progress hub.
type ProgressConfig struct {
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxBatchEvents int           `mapstructure:"max_batch_events"`
	MaxBatchWait   time.Duration `mapstructure:"max_batch_wait"`
	SinkTimeout    time.Duration `mapstructure:"sink_timeout"`
}

// Load builds a Config from defaults, an optional file and HARVESTER_*
// environment variables, in increasing precedence.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
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
	cfg.Sources.Enabled = splitList(cfg.Sources.Enabled)
	cfg.Notify.Kafka.Brokers = splitList(cfg.Notify.Kafka.Brokers)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("schedule.interval", "0s")

	v.SetDefault("http.concurrency", 5)
	v.SetDefault("http.max_attempts", 5)
	v.SetDefault("http.backoff_base", "1s")
	v.SetDefault("http.timeout", "15s")
	v.SetDefault("http.user_agent", "")
	v.SetDefault("http.requests_per_second", 0)
	v.SetDefault("http.burst", 0)

	v.SetDefault("crawl.empty_page_limit", 100)
	v.SetDefault("crawl.job_expiry", "168h")
	v.SetDefault("crawl.company_expiry", "720h")
	v.SetDefault("crawl.page_delay_min", "3s")
	v.SetDefault("crawl.page_delay_max", "7s")
	v.SetDefault("crawl.max_pages", 0)
	v.SetDefault("crawl.freshness_parallelism", 8)

	v.SetDefault("sources.enabled", []string{"wanted", "saramin", "jobkorea"})

	v.SetDefault("db.provider", "postgres")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime", "30m")
	v.SetDefault("db.auto_migrate", true)

	v.SetDefault("raw.provider", "noop")
	v.SetDefault("raw.gcs.bucket", "")
	v.SetDefault("raw.gcs.prefix", "raw")
	v.SetDefault("raw.redis.addr", "localhost:6379")
	v.SetDefault("raw.redis.password", "")
	v.SetDefault("raw.redis.db", 0)
	v.SetDefault("raw.redis.prefix", "harvester:raw:")
	v.SetDefault("raw.redis.ttl", "0s")
	v.SetDefault("raw.local.dir", "data/raw")

	v.SetDefault("notify.provider", "none")
	v.SetDefault("notify.pubsub.project_id", "")
	v.SetDefault("notify.pubsub.topic", "harvest-batches")
	v.SetDefault("notify.kafka.brokers", []string{})
	v.SetDefault("notify.kafka.topic", "harvest-batches")

	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_events", 256)
	v.SetDefault("progress.max_batch_wait", "500ms")
	v.SetDefault("progress.sink_timeout", "10s")
}

// splitList accepts both YAML lists and comma-separated env values.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Server.Port > 0, "server.port must be > 0")
	check(!c.Auth.Enabled || c.Auth.APIKey != "", "auth.api_key must be set when auth is enabled")
	check(c.Schedule.Interval >= 0, "schedule.interval must be >= 0")
	check(c.HTTP.Concurrency > 0, "http.concurrency must be > 0")
	check(c.HTTP.MaxAttempts > 0, "http.max_attempts must be > 0")
	check(c.HTTP.Timeout > 0, "http.timeout must be > 0")
	check(c.Crawl.EmptyPageLimit > 0, "crawl.empty_page_limit must be > 0")
	check(c.Crawl.JobExpiry > 0, "crawl.job_expiry must be > 0")
	check(c.Crawl.CompanyExpiry > 0, "crawl.company_expiry must be > 0")
	check(c.Crawl.PageDelayMax >= c.Crawl.PageDelayMin, "crawl.page_delay_max must be >= crawl.page_delay_min")
	check(c.Crawl.MaxPages >= 0, "crawl.max_pages must be >= 0")

	if _, err := c.Platforms(); err != nil {
		errs = append(errs, err)
	}
	for name := range c.Sources.Overrides {
		if _, err := crawler.ParsePlatform(name); err != nil {
			errs = append(errs, fmt.Errorf("sources.overrides: %w", err))
		}
	}

	switch c.DB.Provider {
	case "postgres":
		check(c.DB.DSN != "", "db.dsn must be set for the postgres provider")
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("db.provider %q is not one of postgres, memory", c.DB.Provider))
	}

	switch c.Raw.Provider {
	case "gcs":
		check(c.Raw.GCS.Bucket != "", "raw.gcs.bucket must be set for the gcs provider")
	case "redis":
		check(c.Raw.Redis.Addr != "", "raw.redis.addr must be set for the redis provider")
	case "local":
		check(c.Raw.Local.Dir != "", "raw.local.dir must be set for the local provider")
	case "memory", "noop":
	default:
		errs = append(errs, fmt.Errorf("raw.provider %q is not one of gcs, redis, local, memory, noop", c.Raw.Provider))
	}

	switch c.Notify.Provider {
	case "pubsub":
		check(c.Notify.PubSub.ProjectID != "" && c.Notify.PubSub.Topic != "",
			"notify.pubsub.project_id and notify.pubsub.topic must be set for the pubsub provider")
	case "kafka":
		check(len(c.Notify.Kafka.Brokers) > 0 && c.Notify.Kafka.Topic != "",
			"notify.kafka.brokers and notify.kafka.topic must be set for the kafka provider")
	case "none", "memory":
	default:
		errs = append(errs, fmt.Errorf("notify.provider %q is not one of none, memory, pubsub, kafka", c.Notify.Provider))
	}
	return errors.Join(errs...)
}

// Platforms resolves the enabled sources in configured order.
func (c Config) Platforms() ([]crawler.Platform, error) {
	if len(c.Sources.Enabled) == 0 {
		return nil, errors.New("sources.enabled must list at least one platform")
	}
	seen := make(map[crawler.Platform]bool, len(c.Sources.Enabled))
	out := make([]crawler.Platform, 0, len(c.Sources.Enabled))
	for _, name := range c.Sources.Enabled {
		p, err := crawler.ParsePlatform(name)
		if err != nil {
			return nil, fmt.Errorf("sources.enabled: %w", err)
		}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out, nil
}

// Source returns the effective settings for p: per-source overrides on top
// of the crawl and http sections.
func (c Config) Source(p crawler.Platform) SourceConfig {
	eff := SourceConfig{
		EmptyPageLimit: c.Crawl.EmptyPageLimit,
		MaxPages:       c.Crawl.MaxPages,
		Concurrency:    c.HTTP.Concurrency,
	}
	o, ok := c.Sources.Overrides[strings.ToLower(string(p))]
	if !ok {
		return eff
	}
	if o.EmptyPageLimit > 0 {
		eff.EmptyPageLimit = o.EmptyPageLimit
	}
	if o.MaxPages > 0 {
		eff.MaxPages = o.MaxPages
	}
	if o.Concurrency > 0 {
		eff.Concurrency = o.Concurrency
	}
	eff.Web, eff.Mobile, eff.API = o.Web, o.Mobile, o.API
	return eff
}
