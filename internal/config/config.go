package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Log       LogConfig       `mapstructure:"log"`
	Providers ProvidersConfig `mapstructure:"providers"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Budget    BudgetConfig    `mapstructure:"budget"`
	Search    SearchConfig    `mapstructure:"search"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Notify    NotifyConfig    `mapstructure:"notify"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres
	Path            string        `mapstructure:"path"`   // sqlite file path
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN builds the driver-specific connection string.
func (c *DatabaseConfig) DSN() string {
	switch c.Driver {
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
	default:
		return c.Path
	}
}

// RedisConfig configures the optional shared rate-limit backend.
// An empty URL keeps rate limiting purely in-memory.
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	FileOnly   bool   `mapstructure:"file_only"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// ProvidersConfig lists the upstream search providers to dispatch to.
type ProvidersConfig struct {
	// MaxConcurrent caps simultaneously in-flight provider calls per job.
	MaxConcurrent int              `mapstructure:"max_concurrent"`
	Endpoints     []ProviderConfig `mapstructure:"endpoints"`
	Retry         RetryConfig      `mapstructure:"retry"`
	Breaker       BreakerConfig    `mapstructure:"breaker"`
}

type ProviderConfig struct {
	Name       string  `mapstructure:"name"`
	BaseURL    string  `mapstructure:"base_url"`
	APIKey     string  `mapstructure:"api_key"`
	MaxResults int     `mapstructure:"max_results"`
	CostPerReq float64 `mapstructure:"cost_per_request"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	Multiplier  float64       `mapstructure:"multiplier"`
	Jitter      bool          `mapstructure:"jitter"`
}

type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	RecoveryTimeout  time.Duration `mapstructure:"recovery_timeout"`
	MonitoringPeriod time.Duration `mapstructure:"monitoring_period"`
}

// RateLimitConfig holds per-operation-class limiter profiles.
type RateLimitConfig struct {
	AIOperations       WindowConfig `mapstructure:"ai_operations"`
	Research           WindowConfig `mapstructure:"research"`
	Enrichment         WindowConfig `mapstructure:"enrichment"`
	DuplicateDetection WindowConfig `mapstructure:"duplicate_detection"`
	Anonymous          WindowConfig `mapstructure:"anonymous"`
	Admin              WindowConfig `mapstructure:"admin"`
}

type WindowConfig struct {
	Window      time.Duration `mapstructure:"window"`
	MaxRequests int           `mapstructure:"max_requests"`
}

type BudgetConfig struct {
	// DailyLimit is the per-user hard spending ceiling per day, in dollars.
	DailyLimit float64 `mapstructure:"daily_limit"`
	// AlertCostPerOp triggers an alert when a single operation exceeds it.
	AlertCostPerOp float64 `mapstructure:"alert_cost_per_op"`
	// AlertTokensPerOp triggers an alert when a single operation exceeds it.
	AlertTokensPerOp int64 `mapstructure:"alert_tokens_per_op"`
	// AlertBudgetFraction triggers an alert once this share of the daily
	// budget is consumed (0.8 = 80%).
	AlertBudgetFraction float64 `mapstructure:"alert_budget_fraction"`
}

type SearchConfig struct {
	MaxQueryLength int `mapstructure:"max_query_length"`
	MaxResults     int `mapstructure:"max_results"`
	// TrustedDomains get the authority boost. A heuristic allow-list,
	// tunable without a deploy.
	TrustedDomains []string `mapstructure:"trusted_domains"`
	AuthorityBoost float64  `mapstructure:"authority_boost"`
	// JobRetention is how long finished jobs stay queryable in memory.
	JobRetention time.Duration `mapstructure:"job_retention"`
}

type StorageConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	PublicURL string `mapstructure:"public_url"`
}

type NotifyConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/mediascout.db")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)
	v.SetDefault("providers.max_concurrent", 3)
	v.SetDefault("providers.retry.max_attempts", 3)
	v.SetDefault("providers.retry.base_delay", "500ms")
	v.SetDefault("providers.retry.max_delay", "10s")
	v.SetDefault("providers.retry.multiplier", 2.0)
	v.SetDefault("providers.retry.jitter", true)
	v.SetDefault("providers.breaker.failure_threshold", 5)
	v.SetDefault("providers.breaker.recovery_timeout", "30s")
	v.SetDefault("providers.breaker.monitoring_period", "60s")
	v.SetDefault("rate_limit.ai_operations.window", "1m")
	v.SetDefault("rate_limit.ai_operations.max_requests", 30)
	v.SetDefault("rate_limit.research.window", "1m")
	v.SetDefault("rate_limit.research.max_requests", 10)
	v.SetDefault("rate_limit.enrichment.window", "1m")
	v.SetDefault("rate_limit.enrichment.max_requests", 20)
	v.SetDefault("rate_limit.duplicate_detection.window", "1m")
	v.SetDefault("rate_limit.duplicate_detection.max_requests", 60)
	v.SetDefault("rate_limit.anonymous.window", "1m")
	v.SetDefault("rate_limit.anonymous.max_requests", 5)
	v.SetDefault("rate_limit.admin.window", "1m")
	v.SetDefault("rate_limit.admin.max_requests", 120)
	v.SetDefault("budget.daily_limit", 25.0)
	v.SetDefault("budget.alert_cost_per_op", 1.0)
	v.SetDefault("budget.alert_tokens_per_op", 10000)
	v.SetDefault("budget.alert_budget_fraction", 0.8)
	v.SetDefault("search.max_query_length", 500)
	v.SetDefault("search.max_results", 50)
	v.SetDefault("search.authority_boost", 0.2)
	v.SetDefault("search.job_retention", 30*time.Minute)
	v.SetDefault("search.trusted_domains", []string{
		"reuters.com", "apnews.com", "bbc.com", "nytimes.com",
		"theguardian.com", "bloomberg.com", "ft.com", "wsj.com",
	})
	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.bucket", "mediascout-exports")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("redis.url", "REDIS_URL")
	v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")
	v.BindEnv("notify.webhook_url", "COST_ALERT_WEBHOOK_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
