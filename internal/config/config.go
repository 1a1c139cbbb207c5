package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"kline-pager/internal/logging"
	"kline-pager/internal/paging"
)

// MaxPageLimit mirrors the spot klines endpoint cap.
const MaxPageLimit = 1000

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Binance  BinanceConfig  `mapstructure:"binance"`
	Loader   LoaderConfig   `mapstructure:"loader"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Database DatabaseConfig `mapstructure:"database"`
	Alerting AlertingConfig `mapstructure:"alerting"`
	Export   ExportConfig   `mapstructure:"export"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// BinanceConfig captures exchange connectivity.
type BinanceConfig struct {
	BaseURL           string        `mapstructure:"base_url" validate:"required,url"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" validate:"gte=0"`
	Burst             int           `mapstructure:"burst" validate:"gte=0"`
}

// LoaderConfig holds the defaults of a load when the CLI does not override them.
type LoaderConfig struct {
	Symbols   []string      `mapstructure:"symbols" validate:"dive,required"`
	Interval  string        `mapstructure:"interval" validate:"required"`
	PageLimit int           `mapstructure:"page_limit" validate:"gte=1,lte=1000"`
	Tick      time.Duration `mapstructure:"tick" validate:"gt=0"`
	// Lookback sets the window start relative to now; zero means "yesterday 00:00 UTC".
	Lookback time.Duration `mapstructure:"lookback" validate:"gte=0"`
}

// CacheConfig controls the redis page cache.
type CacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr" validate:"required_if=Enabled true"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// AlertingConfig routes load summaries.
type AlertingConfig struct {
	Enabled   bool           `mapstructure:"enabled"`
	OnSuccess bool           `mapstructure:"on_success"`
	Telegram  TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram bot destination.
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BotToken string        `mapstructure:"bot_token" validate:"required_if=Enabled true"`
	ChatID   string        `mapstructure:"chat_id" validate:"required_if=Enabled true"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points" validate:"gt=0"`
}

// MetricsConfig exposes the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("KLINEPAGER")
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
	v.SetDefault("app.name", "klinepager")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("binance.base_url", "https://api.binance.com")
	v.SetDefault("binance.request_timeout", "10s")
	v.SetDefault("binance.requests_per_second", 10.0)
	v.SetDefault("binance.burst", 5)

	v.SetDefault("loader.symbols", []string{"BTCUSDT", "ETHUSDT", "BNBUSDT"})
	v.SetDefault("loader.interval", string(paging.Minute))
	v.SetDefault("loader.page_limit", MaxPageLimit)
	v.SetDefault("loader.tick", "100ms")
	v.SetDefault("loader.lookback", "0s")

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.addr", "localhost:6379")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.ttl", "24h")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.on_success", false)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.timeout", "10s")

	v.SetDefault("export.max_data_points", 5000)

	v.SetDefault("metrics.addr", "")
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

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("mapstructure"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			field := strings.TrimPrefix(fe.Namespace(), "Config.")
			if fe.Param() != "" {
				return fmt.Errorf("%s: failed %s=%s", field, fe.Tag(), fe.Param())
			}
			return fmt.Errorf("%s: failed %s", field, fe.Tag())
		}
		return fmt.Errorf("validate config: %w", err)
	}
	if _, err := paging.ParseInterval(c.Loader.Interval); err != nil {
		return fmt.Errorf("loader.interval: %w", err)
	}
	return nil
}

// DefaultWindow is the window used when the caller gives none: from yesterday 00:00 UTC (or now-lookback) until now.
func (c *Config) DefaultWindow(now time.Time) paging.Window {
	now = now.UTC()
	if c.Loader.Lookback > 0 {
		return paging.Window{Start: now.Add(-c.Loader.Lookback), End: now}
	}
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return paging.Window{Start: midnight.AddDate(0, 0, -1), End: now}
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
