package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"goldwatch/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    logging.Config   `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Spot       SpotConfig       `mapstructure:"spot"`
	Forecaster ForecasterConfig `mapstructure:"forecaster"`
	Alerting   AlertingConfig   `mapstructure:"alerting"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Export     ExportConfig     `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// SchedulerConfig governs evaluation cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// SpotAPIConfig describes one REST spot price source.
type SpotAPIConfig struct {
	Name    string        `mapstructure:"name"`
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ChainlinkConfig covers the on-chain last-resort price feed.
type ChainlinkConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	RPCURL      string        `mapstructure:"rpc_url"`
	FeedAddress string        `mapstructure:"feed_address"`
	Decimals    int           `mapstructure:"decimals"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// SpotConfig assembles the spot price fallback chain.
type SpotConfig struct {
	Asset     string          `mapstructure:"asset"`
	Currency  string          `mapstructure:"currency"`
	UserAgent string          `mapstructure:"user_agent"`
	Primary   SpotAPIConfig   `mapstructure:"primary"`
	Secondary SpotAPIConfig   `mapstructure:"secondary"`
	Chainlink ChainlinkConfig `mapstructure:"chainlink"`
}

// BreakerConfig tunes the circuit breaker guarding an upstream.
type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	ResetTimeout     time.Duration `mapstructure:"reset_timeout"`
}

// ForecasterConfig covers the remote forecasting service.
type ForecasterConfig struct {
	BaseURL            string        `mapstructure:"base_url"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	UserAgent          string        `mapstructure:"user_agent"`
	CacheTTL           time.Duration `mapstructure:"cache_ttl"`
	TrainingWindowDays int           `mapstructure:"training_window_days"`
	HolidaysEnabled    bool          `mapstructure:"holidays_enabled"`
	WeeklySeasonality  bool          `mapstructure:"weekly_seasonality"`
	YearlySeasonality  bool          `mapstructure:"yearly_seasonality"`
	Breaker            BreakerConfig `mapstructure:"breaker"`
}

// TelegramConfig describes the Telegram notification channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// AlertingConfig defines notification routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// MetricsConfig controls the Prometheus scrape endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GOLDWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "goldwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "60s")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x676f6c64))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("spot.asset", "XAU")
	v.SetDefault("spot.currency", "USD")
	v.SetDefault("spot.user_agent", "goldwatch/1.0")
	v.SetDefault("spot.primary.name", "goldapi")
	v.SetDefault("spot.primary.base_url", "https://www.goldapi.io/api")
	v.SetDefault("spot.primary.timeout", "10s")
	v.SetDefault("spot.secondary.name", "metalsdev")
	v.SetDefault("spot.secondary.timeout", "10s")
	v.SetDefault("spot.chainlink.enabled", false)
	v.SetDefault("spot.chainlink.decimals", 8)
	v.SetDefault("spot.chainlink.timeout", "10s")

	v.SetDefault("forecaster.request_timeout", "30s")
	v.SetDefault("forecaster.user_agent", "goldwatch/1.0")
	v.SetDefault("forecaster.cache_ttl", "1h")
	v.SetDefault("forecaster.training_window_days", 365)
	v.SetDefault("forecaster.holidays_enabled", true)
	v.SetDefault("forecaster.weekly_seasonality", true)
	v.SetDefault("forecaster.yearly_seasonality", true)
	v.SetDefault("forecaster.breaker.failure_threshold", 3)
	v.SetDefault("forecaster.breaker.reset_timeout", "60s")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", ":9090")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Forecaster.Breaker.FailureThreshold <= 0 {
		return fmt.Errorf("forecaster.breaker.failure_threshold must be greater than zero")
	}
	if c.Forecaster.Breaker.ResetTimeout <= 0 {
		return fmt.Errorf("forecaster.breaker.reset_timeout must be greater than zero")
	}
	if c.Forecaster.TrainingWindowDays <= 0 {
		return fmt.Errorf("forecaster.training_window_days must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
