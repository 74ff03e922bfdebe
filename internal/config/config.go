package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gepvi/gepvi-users/internal/types"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Configuration struct {
	Deployment  DeploymentConfig  `mapstructure:"deployment" validate:"required"`
	Server      ServerConfig      `mapstructure:"server" validate:"required"`
	Logging     LoggingConfig     `mapstructure:"logging" validate:"required"`
	Postgres    PostgresConfig    `mapstructure:"postgres" validate:"required"`
	Sentry      SentryConfig      `mapstructure:"sentry"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Yookassa    YookassaConfig    `mapstructure:"yookassa" validate:"required"`
	Webhook     WebhookConfig     `mapstructure:"webhook"`
	Catalog     CatalogConfig     `mapstructure:"catalog"`
	Entitlement EntitlementConfig `mapstructure:"entitlement"`
	Audit       AuditConfig       `mapstructure:"audit"`
}

type DeploymentConfig struct {
	Mode types.RunMode `mapstructure:"mode" validate:"required"`
}

type ServerConfig struct {
	Address string `mapstructure:"address" validate:"required"`

	// Addresses of reverse proxies whose forwarding headers are believed.
	// Empty means the TCP peer is always the client address.
	TrustedProxies []string `mapstructure:"trusted_proxies" validate:"dive,cidr|ip"`
}

type LoggingConfig struct {
	Level types.LogLevel `mapstructure:"level" validate:"required"`
}

type PostgresConfig struct {
	Host                   string      `mapstructure:"host"`
	Port                   int         `mapstructure:"port"`
	User                   string      `mapstructure:"user"`
	Password               string      `mapstructure:"password"`
	DBName                 string      `mapstructure:"dbname"`
	SSLMode                string      `mapstructure:"sslmode"`
	Schema                 string      `mapstructure:"schema"`
	MaxOpenConns           int         `mapstructure:"max_open_conns"`
	MaxIdleConns           int         `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeMinutes int         `mapstructure:"conn_max_lifetime_minutes"`
	Retry                  RetryConfig `mapstructure:"retry"`

	// SlowQueryThreshold logs statements slower than this as warnings. Zero disables.
	SlowQueryThreshold time.Duration `mapstructure:"slow_query_threshold"`
}

// RetryConfig bounds the exponential backoff applied to transient storage errors
type RetryConfig struct {
	MaxRetries      uint64        `mapstructure:"max_retries"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

type SentryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	DSN         string  `mapstructure:"dsn"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

type AuthConfig struct {
	// APIKey guards the server-to-server endpoints. Empty disables the check.
	APIKey string `mapstructure:"api_key"`
	Header string `mapstructure:"header"`
}

type YookassaConfig struct {
	ShopID    string        `mapstructure:"shop_id"`
	SecretKey string        `mapstructure:"secret_key"`
	BaseURL   string        `mapstructure:"base_url" validate:"required,url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	// ProviderID is the path segment of the notification url configured in
	// the YooKassa dashboard
	ProviderID    string `mapstructure:"provider_id" validate:"required"`
	VerifyWithAPI bool   `mapstructure:"verify_with_api"`
	MaxRetries    int    `mapstructure:"max_retries"`
}

type WebhookConfig struct {
	SigningSecret string   `mapstructure:"signing_secret"`
	AllowedCIDRs  []string `mapstructure:"allowed_cidrs" validate:"dive,cidr"`
}

type CatalogConfig struct {
	Packages []PackageConfig `mapstructure:"packages" validate:"dive"`
}

type PackageConfig struct {
	ID           string `mapstructure:"id" validate:"required"`
	Title        string `mapstructure:"title"`
	Description  string `mapstructure:"description"`
	DurationDays int    `mapstructure:"duration_days" validate:"gt=0"`
	Price        string `mapstructure:"price" validate:"required,numeric"`
	Currency     string `mapstructure:"currency" validate:"required,len=3"`
}

type EntitlementConfig struct {
	FreeQuota int `mapstructure:"free_quota" validate:"gte=0"`
}

type AuditConfig struct {
	// Async routes audit records through the in-process message bus
	Async bool   `mapstructure:"async"`
	Topic string `mapstructure:"topic"`
}

func NewConfig() (*Configuration, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/gepvi")

	v.SetEnvPrefix("GEPVI")
	v.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("Error reading config file: %v\n", err)
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, err
		}
	} else {
		fmt.Printf("Using config file: %s\n", v.ConfigFileUsed())
	}

	var config Configuration
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if len(config.Catalog.Packages) == 0 {
		config.Catalog.Packages = DefaultPackages()
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("deployment.mode", types.ModeLocal)
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.trusted_proxies", []string{})
	v.SetDefault("logging.level", types.LogLevelInfo)

	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.schema", "gepvi_users")
	v.SetDefault("postgres.max_open_conns", 10)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime_minutes", 30)
	v.SetDefault("postgres.retry.max_retries", 3)
	v.SetDefault("postgres.retry.initial_interval", 100*time.Millisecond)
	v.SetDefault("postgres.retry.max_interval", time.Second)
	v.SetDefault("postgres.retry.max_elapsed_time", 2*time.Second)
	v.SetDefault("postgres.slow_query_threshold", 200*time.Millisecond)

	v.SetDefault("auth.header", types.HeaderAPIKey)

	v.SetDefault("yookassa.base_url", "https://api.yookassa.ru/v3")
	v.SetDefault("yookassa.timeout", 10*time.Second)
	v.SetDefault("yookassa.provider_id", "yookassa")
	v.SetDefault("yookassa.max_retries", 2)

	v.SetDefault("entitlement.free_quota", 5)

	v.SetDefault("audit.topic", "webhook_records")
}

func (c Configuration) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

// GetDefaultConfig returns a default configuration for local development
// and tests
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Deployment: DeploymentConfig{Mode: types.ModeLocal},
		Server:     ServerConfig{Address: ":8080"},
		Logging:    LoggingConfig{Level: types.LogLevelDebug},
		Postgres: PostgresConfig{
			Retry: RetryConfig{
				MaxRetries:      3,
				InitialInterval: time.Millisecond,
				MaxInterval:     5 * time.Millisecond,
				MaxElapsedTime:  100 * time.Millisecond,
			},
		},
		Auth: AuthConfig{Header: types.HeaderAPIKey},
		Yookassa: YookassaConfig{
			BaseURL:    "https://api.yookassa.ru/v3",
			Timeout:    10 * time.Second,
			ProviderID: "yookassa",
		},
		Catalog:     CatalogConfig{Packages: DefaultPackages()},
		Entitlement: EntitlementConfig{FreeQuota: 5},
		Audit:       AuditConfig{Topic: "webhook_records"},
	}
}

// DefaultPackages is the catalog sold by the bot when none is configured
func DefaultPackages() []PackageConfig {
	return []PackageConfig{
		{
			ID:           "monthly",
			Title:        "Premium - 1 month",
			Description:  "GepCalories Premium - 1 месяц безлимитного анализа фото еды",
			DurationDays: 30,
			Price:        "249.00",
			Currency:     "RUB",
		},
		{
			ID:           "yearly",
			Title:        "Premium - 1 year",
			Description:  "GepCalories Premium - 1 год безлимитного анализа фото еды",
			DurationDays: 365,
			Price:        "1499.00",
			Currency:     "RUB",
		},
	}
}

func (c PostgresConfig) GetDSN() string {
	dsn := fmt.Sprintf(
		"user=%s password=%s dbname=%s host=%s port=%d sslmode=%s",
		c.User,
		c.Password,
		c.DBName,
		c.Host,
		c.Port,
		c.SSLMode,
	)
	if c.Schema != "" {
		dsn += fmt.Sprintf(" search_path=%s", c.Schema)
	}
	return dsn
}
