// Package config loads server settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvTest        = "test"
	EnvProduction  = "production"
)

type Config struct {
	Env      string
	Port     string
	LogLevel string

	DatabaseURL string
	DBSchema    string
	DBMaxConns  int
	RedisURL    string

	JWTSecret      string
	JWTAlgorithm   string
	AccessTokenTTL time.Duration

	Mail     MailConfig
	Paystack PaystackConfig

	FrontendURL string
	CORSAllowed []string
	// proxies whose X-Forwarded-For is believed; empty means the peer address is the client
	TrustedProxies []string

	PaymentDue       time.Duration
	InspectionWindow time.Duration
	RefundWindow     time.Duration
	AdvanceInterval  time.Duration
	SweepInterval    time.Duration
	BatchBudget      time.Duration
}

type MailConfig struct {
	Server   string
	Port     int
	Username string
	Password string
	From     string
}

type PaystackConfig struct {
	SecretKey string
	URL       string
	IPAllow   string
}

func (c Config) IsProduction() bool { return c.Env == EnvProduction }

var defaults = map[string]any{
	"ENV":                  EnvDevelopment,
	"PORT":                 "8080",
	"LOG_LEVEL":            "",
	"DB_MAX_CONNS":         10,
	"ALGORITHM":            "HS256",
	"ACCESS_TOKEN_EXPIRES": "30m",
	"MAIL_PORT":            587,
	"PAYSTACK_URL":         "https://api.paystack.co",
	"FRONTEND_URL":         "http://localhost:3000",
	"CORS_ALLOWED":         "http://localhost:3000",
	"PAYMENT_DUE":          "72h",
	"INSPECTION_WINDOW":    "120h",
	"REFUND_WINDOW":        "168h",
	"ADVANCE_INTERVAL":     "15s",
	"SWEEP_INTERVAL":       "30s",
	"BATCH_BUDGET":         "60s",
}

// keys without a default still need binding so viper reads them from the environment
var unset = []string{
	"DATABASE_URL", "DB_SCHEMA", "REDIS_URL", "JWT_SECRET_KEY",
	"MAIL_SERVER", "MAIL_USERNAME", "MAIL_PASSWORD", "MAIL_FROM",
	"PAYSTACK_SECRET_KEY", "PAYSTACK_IP_WL", "TRUSTED_PROXIES",
	"CLOUDINARY_CLOUD_NAME", "CLOUDINARY_API_KEY", "CLOUDINARY_API_SECRET",
}

// Load reads envFile when it exists, then the process environment.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.AutomaticEnv()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	for _, k := range unset {
		if err := v.BindEnv(k); err != nil {
			return Config{}, fmt.Errorf("config: bind %s: %w", k, err)
		}
	}

	env := strings.ToLower(v.GetString("ENV"))
	level := v.GetString("LOG_LEVEL")
	if level == "" {
		level = "info"
		if env == EnvDevelopment {
			level = "debug"
		}
	}
	schema := v.GetString("DB_SCHEMA")
	if schema == "" {
		schema = "auction_" + env
	}

	cfg := Config{
		Env:            env,
		Port:           v.GetString("PORT"),
		LogLevel:       level,
		DatabaseURL:    v.GetString("DATABASE_URL"),
		DBSchema:       schema,
		DBMaxConns:     v.GetInt("DB_MAX_CONNS"),
		RedisURL:       v.GetString("REDIS_URL"),
		JWTSecret:      v.GetString("JWT_SECRET_KEY"),
		JWTAlgorithm:   v.GetString("ALGORITHM"),
		AccessTokenTTL: v.GetDuration("ACCESS_TOKEN_EXPIRES"),
		Mail: MailConfig{
			Server:   v.GetString("MAIL_SERVER"),
			Port:     v.GetInt("MAIL_PORT"),
			Username: v.GetString("MAIL_USERNAME"),
			Password: v.GetString("MAIL_PASSWORD"),
			From:     v.GetString("MAIL_FROM"),
		},
		Paystack: PaystackConfig{
			SecretKey: v.GetString("PAYSTACK_SECRET_KEY"),
			URL:       v.GetString("PAYSTACK_URL"),
			IPAllow:   v.GetString("PAYSTACK_IP_WL"),
		},
		FrontendURL:      strings.TrimRight(v.GetString("FRONTEND_URL"), "/"),
		CORSAllowed:      splitList(v.GetString("CORS_ALLOWED")),
		TrustedProxies:   splitList(v.GetString("TRUSTED_PROXIES")),
		PaymentDue:       v.GetDuration("PAYMENT_DUE"),
		InspectionWindow: v.GetDuration("INSPECTION_WINDOW"),
		RefundWindow:     v.GetDuration("REFUND_WINDOW"),
		AdvanceInterval:  v.GetDuration("ADVANCE_INTERVAL"),
		SweepInterval:    v.GetDuration("SWEEP_INTERVAL"),
		BatchBudget:      v.GetDuration("BATCH_BUDGET"),
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	switch c.Env {
	case EnvDevelopment, EnvTest, EnvProduction:
	default:
		errs = append(errs, fmt.Errorf("ENV must be development, test or production, got %q", c.Env))
	}
	if c.Port == "" {
		errs = append(errs, errors.New("PORT is required"))
	}
	if c.AccessTokenTTL <= 0 {
		errs = append(errs, errors.New("ACCESS_TOKEN_EXPIRES must be positive"))
	}
	if c.PaymentDue <= 0 || c.InspectionWindow <= 0 || c.RefundWindow <= 0 {
		errs = append(errs, errors.New("PAYMENT_DUE, INSPECTION_WINDOW and REFUND_WINDOW must be positive"))
	}
	if c.IsProduction() {
		for key, val := range map[string]string{
			"DATABASE_URL":        c.DatabaseURL,
			"REDIS_URL":           c.RedisURL,
			"JWT_SECRET_KEY":      c.JWTSecret,
			"PAYSTACK_SECRET_KEY": c.Paystack.SecretKey,
		} {
			if val == "" {
				errs = append(errs, fmt.Errorf("%s is required in production", key))
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
