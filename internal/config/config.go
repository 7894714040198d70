package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
}

type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime string
	AutoMigrate     bool
	LockTimeout     time.Duration
}

type AuthConfig struct {
	AccessSecret  string
	ProfileHeader string
}

type LedgerConfig struct {
	MaxDepositRatio decimal.Decimal
}

type DocumentsConfig struct {
	PDFFontPath string
}

type Config struct {
	Environment string
	LogLevel    string
	HTTP        HTTPConfig
	DB          DBConfig
	Auth        AuthConfig
	Ledger      LedgerConfig
	Documents   DocumentsConfig
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("./deploy")
	v.AddConfigPath("./internal/config")
	v.AutomaticEnv()

	v.SetDefault("DB_AUTO_MIGRATE", true)
	v.SetDefault("DB_LOCK_TIMEOUT", "5s")
	v.SetDefault("LEDGER_MAX_DEPOSIT_RATIO", "0.25")

	_ = v.ReadInConfig()

	ratio, err := decimal.NewFromString(strings.TrimSpace(v.GetString("LEDGER_MAX_DEPOSIT_RATIO")))
	if err != nil {
		return nil, fmt.Errorf("LEDGER_MAX_DEPOSIT_RATIO: %w", err)
	}
	lockTimeout, err := time.ParseDuration(strings.TrimSpace(v.GetString("DB_LOCK_TIMEOUT")))
	if err != nil {
		return nil, fmt.Errorf("DB_LOCK_TIMEOUT: %w", err)
	}

	cfg := &Config{
		Environment: v.GetString("APP_ENV"),
		LogLevel:    v.GetString("LOG_LEVEL"),
		HTTP: HTTPConfig{
			Host:           v.GetString("HTTP_HOST"),
			Port:           v.GetInt("HTTP_PORT"),
			AllowedOrigins: parseList(v.GetString("CORS_ALLOWED_ORIGINS")),
		},
		DB: DBConfig{
			DSN:             v.GetString("DB_DSN"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetString("DB_CONN_MAX_LIFETIME"),
			AutoMigrate:     v.GetBool("DB_AUTO_MIGRATE"),
			LockTimeout:     lockTimeout,
		},
		Auth: AuthConfig{
			AccessSecret:  v.GetString("JWT_ACCESS_SECRET"),
			ProfileHeader: v.GetString("AUTH_PROFILE_HEADER"),
		},
		Ledger: LedgerConfig{
			MaxDepositRatio: ratio,
		},
		Documents: DocumentsConfig{
			PDFFontPath: strings.TrimSpace(v.GetString("PDF_FONT_PATH")),
		},
	}

	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = "0.0.0.0"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 7090
	}
	if len(cfg.HTTP.AllowedOrigins) == 0 {
		cfg.HTTP.AllowedOrigins = []string{"*"}
	}
	if cfg.Auth.ProfileHeader == "" {
		cfg.Auth.ProfileHeader = "profile_id"
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.DB.DSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	if cfg.DB.LockTimeout <= 0 {
		return fmt.Errorf("DB_LOCK_TIMEOUT must be positive")
	}
	ratio := cfg.Ledger.MaxDepositRatio
	if !ratio.IsPositive() || ratio.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("LEDGER_MAX_DEPOSIT_RATIO must be in (0, 1]")
	}
	return nil
}

func parseList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	items := strings.Split(raw, ",")
	result := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item != "" {
			result = append(result, item)
		}
	}
	return result
}
