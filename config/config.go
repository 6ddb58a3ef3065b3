package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/flyerlens/backend/internal/analytics"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Source    SourceConfig
	Cache     CacheConfig
	Analytics AnalyticsConfig
	RateLimit RateLimitConfig
	Cart      CartConfig
	Export    ExportConfig
	Alerts    AlertsConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// SourceConfig selects where price records are read from
type SourceConfig struct {
	Type      string          `mapstructure:"type"` // "postgrest", "postgres" or "csv"
	PostgREST PostgRESTConfig `mapstructure:"postgrest"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	CSV       CSVConfig       `mapstructure:"csv"`
}

// PostgRESTConfig holds the hosted REST backend settings
type PostgRESTConfig struct {
	BaseURL  string `mapstructure:"base_url"`
	APIKey   string `mapstructure:"api_key"`
	Table    string `mapstructure:"table"`
	PageSize int    `mapstructure:"page_size"`
}

// PostgresConfig holds direct database settings
type PostgresConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// CSVConfig points at a scraper export
type CSVConfig struct {
	Path string `mapstructure:"path"`
}

// CacheConfig holds cache-related configuration
type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// AnalyticsConfig tunes deal detection
type AnalyticsConfig struct {
	WindowDays          int     `mapstructure:"window_days"`
	SimilarityTolerance float64 `mapstructure:"similarity_tolerance"`
	BestEverPercentile  float64 `mapstructure:"best_ever_percentile"`
	ExcellentPercentile float64 `mapstructure:"excellent_percentile"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	PerIP  int `mapstructure:"per_ip"` // requests per minute per client
	Source int `mapstructure:"source"` // requests per hour to the record source
}

// CartConfig holds shopping list persistence settings
type CartConfig struct {
	SQLitePath    string  `mapstructure:"sqlite_path"`
	DefaultBudget float64 `mapstructure:"default_budget"`
}

// ExportConfig selects where shopping lists are exported
type ExportConfig struct {
	Type     string `mapstructure:"type"` // "local" or "s3"
	Dir      string `mapstructure:"dir"`
	S3Bucket string `mapstructure:"s3_bucket"`
	S3Region string `mapstructure:"s3_region"`
	S3Prefix string `mapstructure:"s3_prefix"`
}

// AlertsConfig holds Kafka deal alert settings
type AlertsConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile loads configuration from an explicit file, or from the default
// search paths when path is empty
func LoadFile(path string) (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/flyerlens/")
	}

	// Environment variable settings
	v.SetEnvPrefix("FLYERLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional - will use env vars if file doesn't exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadEnvFile loads a .env file from the working directory when present.
// Variables already set in the environment win.
func loadEnvFile() error {
	if _, err := os.Stat(".env"); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := gotenv.Load(".env"); err != nil {
		return fmt.Errorf("error loading .env file: %w", err)
	}
	return nil
}

// AnalyticsOptions converts the analytics section into engine options
func (c *Config) AnalyticsOptions() analytics.Options {
	return analytics.Options{
		Window:              time.Duration(c.Analytics.WindowDays) * 24 * time.Hour,
		SimilarityTolerance: c.Analytics.SimilarityTolerance,
		BestEverPercentile:  c.Analytics.BestEverPercentile,
		ExcellentPercentile: c.Analytics.ExcellentPercentile,
	}
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:*"})

	// Source defaults
	v.SetDefault("source.type", "postgrest")
	v.SetDefault("source.postgrest.base_url", "")
	v.SetDefault("source.postgrest.api_key", "")
	v.SetDefault("source.postgrest.table", "itemCirculaire")
	v.SetDefault("source.postgrest.page_size", 1000)
	v.SetDefault("source.postgres.dsn", "")
	v.SetDefault("source.postgres.table", "itemCirculaire")
	v.SetDefault("source.csv.path", "")

	v.SetDefault("cache.ttl", "15m")

	// Analytics defaults: 12-week window, 2% price similarity
	v.SetDefault("analytics.window_days", 84)
	v.SetDefault("analytics.similarity_tolerance", 0.02)
	v.SetDefault("analytics.best_ever_percentile", 10)
	v.SetDefault("analytics.excellent_percentile", 25)

	v.SetDefault("ratelimit.per_ip", 120)
	v.SetDefault("ratelimit.source", 1000)

	v.SetDefault("cart.sqlite_path", "flyerlens.db")
	v.SetDefault("cart.default_budget", 100)

	v.SetDefault("export.type", "local")
	v.SetDefault("export.dir", "exports")
	v.SetDefault("export.s3_bucket", "")
	v.SetDefault("export.s3_region", "us-east-1")
	v.SetDefault("export.s3_prefix", "shopping-lists/")

	v.SetDefault("alerts.enabled", false)
	v.SetDefault("alerts.brokers", []string{"localhost:9092"})
	v.SetDefault("alerts.topic", "flyer-deals")
}

// validate validates the configuration
func validate(config *Config) error {
	switch config.Source.Type {
	case "postgrest":
		if config.Source.PostgREST.BaseURL == "" {
			return fmt.Errorf("PostgREST base URL is required (set FLYERLENS_SOURCE_POSTGREST_BASE_URL)")
		}
		if config.Source.PostgREST.APIKey == "" {
			return fmt.Errorf("PostgREST API key is required (set FLYERLENS_SOURCE_POSTGREST_API_KEY)")
		}
	case "postgres":
		if config.Source.Postgres.DSN == "" {
			return fmt.Errorf("Postgres DSN is required when source type is 'postgres'")
		}
	case "csv":
		if config.Source.CSV.Path == "" {
			return fmt.Errorf("CSV path is required when source type is 'csv'")
		}
	default:
		return fmt.Errorf("source type must be 'postgrest', 'postgres' or 'csv', got: %s", config.Source.Type)
	}

	a := config.Analytics
	if a.WindowDays <= 0 {
		return fmt.Errorf("analytics window must be positive, got: %d days", a.WindowDays)
	}
	if a.SimilarityTolerance <= 0 || a.SimilarityTolerance >= 1 {
		return fmt.Errorf("similarity tolerance must be between 0 and 1, got: %v", a.SimilarityTolerance)
	}
	if a.BestEverPercentile <= 0 || a.BestEverPercentile > a.ExcellentPercentile || a.ExcellentPercentile > 100 {
		return fmt.Errorf("percentile thresholds must satisfy 0 < best-ever <= excellent <= 100")
	}

	if config.Cart.DefaultBudget < 0 {
		return fmt.Errorf("default budget cannot be negative")
	}

	switch config.Export.Type {
	case "local":
	case "s3":
		if config.Export.S3Bucket == "" {
			return fmt.Errorf("S3 bucket is required when export type is 's3'")
		}
	default:
		return fmt.Errorf("export type must be 'local' or 's3', got: %s", config.Export.Type)
	}

	if config.Alerts.Enabled && (len(config.Alerts.Brokers) == 0 || config.Alerts.Topic == "") {
		return fmt.Errorf("alerts need at least one broker and a topic")
	}

	return nil
}
