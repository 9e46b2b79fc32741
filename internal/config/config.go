// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/roster-crawler/internal/crawler"
)

// Output backends.
const (
	BackendLocal  = "local"
	BackendMemory = "memory"
	BackendGCS    = "gcs"
	BackendS3     = "s3"
)

// Database drivers. An empty driver disables record persistence.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Crawl    CrawlConfig    `mapstructure:"crawl"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Output   OutputConfig   `mapstructure:"output"`
	Storage  StorageConfig  `mapstructure:"storage"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Server   ServerConfig   `mapstructure:"server"`
}

// CrawlConfig governs discovery, fan-out and pacing.
type CrawlConfig struct {
	ListingURL        string        `mapstructure:"listing_url"`
	EntityURLTemplate string        `mapstructure:"entity_url_template"`
	IDParam           string        `mapstructure:"id_param"`
	LinkMarker        string        `mapstructure:"link_marker"`
	UserAgent         string        `mapstructure:"user_agent"`
	ConcurrencyLimit  int           `mapstructure:"concurrency_limit"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	BatchTimeout      time.Duration `mapstructure:"batch_timeout"`
	Period            string        `mapstructure:"period"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	ArchiveRaw        bool          `mapstructure:"archive_raw"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	MaxParallel        int           `mapstructure:"max_parallel"`
	NavTimeout         time.Duration `mapstructure:"nav_timeout"`
	PromotionThreshold int           `mapstructure:"promotion_threshold"`
}

// OutputConfig selects where result payloads are written.
type OutputConfig struct {
	Backend string `mapstructure:"backend"`
	Dir     string `mapstructure:"dir"`
	Name    string `mapstructure:"name"`
	Prefix  string `mapstructure:"prefix"`
}

// StorageConfig holds cloud blob settings.
type StorageConfig struct {
	GCS GCSConfig `mapstructure:"gcs"`
	S3  S3Config  `mapstructure:"s3"`
}

// GCSConfig names the bucket used by the gcs backend.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
}

// S3Config configures an S3-compatible endpoint.
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// DBConfig controls record persistence.
type DBConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PubSubConfig holds the run-completed notification target.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ROSTER")
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
	v.SetDefault("crawl.listing_url", crawler.DefaultListingURL)
	v.SetDefault("crawl.entity_url_template", crawler.DefaultEntityURLTemplate)
	v.SetDefault("crawl.id_param", crawler.DefaultIDParam)
	v.SetDefault("crawl.link_marker", crawler.DefaultLinkMarker)
	v.SetDefault("crawl.user_agent", crawler.DefaultUserAgent)
	v.SetDefault("crawl.concurrency_limit", crawler.DefaultConcurrencyLimit)
	v.SetDefault("crawl.request_timeout", crawler.DefaultRequestTimeout)
	v.SetDefault("crawl.batch_timeout", 300*time.Second)
	v.SetDefault("crawl.period", crawler.DefaultPeriod)
	v.SetDefault("crawl.requests_per_second", 0)
	v.SetDefault("crawl.archive_raw", false)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout", 45*time.Second)
	v.SetDefault("headless.promotion_threshold", 2048)
	v.SetDefault("output.backend", BackendLocal)
	v.SetDefault("output.dir", "data")
	v.SetDefault("output.name", "roster.json")
	v.SetDefault("output.prefix", "")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.use_ssl", true)
	v.SetDefault("db.driver", "")
	v.SetDefault("db.table", "records")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("server.port", 8080)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if err := c.Options().Validate(); err != nil {
		return fmt.Errorf("invalid crawl config: %w", err)
	}
	if c.Crawl.BatchTimeout < 0 {
		return fmt.Errorf("crawl.batch_timeout must be >= 0")
	}
	if c.Crawl.RequestsPerSecond < 0 {
		return fmt.Errorf("crawl.requests_per_second must be >= 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Headless.Enabled && c.Headless.NavTimeout <= 0 {
		return fmt.Errorf("headless.nav_timeout must be > 0 when headless is enabled")
	}
	if strings.TrimSpace(c.Output.Name) == "" {
		return fmt.Errorf("output.name must be set")
	}
	switch c.Output.Backend {
	case BackendLocal:
		if strings.TrimSpace(c.Output.Dir) == "" {
			return fmt.Errorf("output.dir must be set for the local backend")
		}
	case BackendMemory:
	case BackendGCS:
		if c.Storage.GCS.Bucket == "" {
			return fmt.Errorf("storage.gcs.bucket must be set for the gcs backend")
		}
	case BackendS3:
		if c.Storage.S3.Bucket == "" || c.Storage.S3.Endpoint == "" {
			return fmt.Errorf("storage.s3.endpoint and storage.s3.bucket must be set for the s3 backend")
		}
	default:
		return fmt.Errorf("output.backend %q is not one of local, memory, gcs, s3", c.Output.Backend)
	}
	switch c.DB.Driver {
	case "":
	case DriverPostgres, DriverSQLite:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when db.driver is %q", c.DB.Driver)
		}
	default:
		return fmt.Errorf("db.driver %q is not one of postgres, sqlite", c.DB.Driver)
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic is set")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	return nil
}

// Options converts the crawl section into the core run options.
func (c Config) Options() crawler.Options {
	return crawler.Options{
		ListingURL:        c.Crawl.ListingURL,
		EntityURLTemplate: c.Crawl.EntityURLTemplate,
		IDParam:           c.Crawl.IDParam,
		LinkMarker:        c.Crawl.LinkMarker,
		UserAgent:         c.Crawl.UserAgent,
		ConcurrencyLimit:  c.Crawl.ConcurrencyLimit,
		RequestTimeout:    c.Crawl.RequestTimeout,
		Period:            c.Crawl.Period,
	}
}
