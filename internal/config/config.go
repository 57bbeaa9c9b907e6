// Package config содержит логику чтения конфигурации клиента NexusPay.
package config

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Режимы фиксации платежа.
const (
	PaymentModeIncremental = "incremental"
	PaymentModeDeferred    = "deferred"
)

// Config содержит параметры конфигурации клиента.
type Config struct {
	RunAddress string `env:"RUN_ADDRESS"`
	APIBaseURL string `env:"API_BASE_URL"`
	// AllowInsecure разрешает http:// для удалённого API. Только для локального запуска и тестов.
	AllowInsecure bool   `env:"ALLOW_INSECURE"`
	MockAPI       bool   `env:"MOCK_API"`
	StoreDir      string `env:"STORE_DIR"`
	// RedisAddr включает хранилище в redis вместо файлов.
	RedisAddr        string        `env:"REDIS_ADDR"`
	SessionLength    time.Duration `env:"SESSION_LENGTH"`
	SessionWarning   time.Duration `env:"SESSION_WARNING"`
	ActivityThrottle time.Duration `env:"ACTIVITY_THROTTLE"`
	PaymentMode      string        `env:"PAYMENT_MODE"`
	RequestTimeout   time.Duration `env:"REQUEST_TIMEOUT"`
}

// Parse считывает конфигурацию из .env, флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	// .env необязателен, уже заданные переменные он не перекрывает.
	_ = godotenv.Load()

	cfg := &Config{}

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.APIBaseURL, "u", "https://localhost:5118", "remote API base URL")
	flag.BoolVar(&cfg.AllowInsecure, "k", false, "allow plain http to the remote API (local and test only)")
	flag.BoolVar(&cfg.MockAPI, "m", false, "serve the in-process fake remote API")
	flag.StringVar(&cfg.StoreDir, "s", "./.nexuspay", "client storage directory")
	flag.StringVar(&cfg.RedisAddr, "r", "", "redis address for client storage")
	flag.DurationVar(&cfg.SessionLength, "session-length", 15*time.Minute, "inactivity session length")
	flag.DurationVar(&cfg.SessionWarning, "session-warning", 5*time.Minute, "warning lead before forced logout")
	flag.DurationVar(&cfg.ActivityThrottle, "activity-throttle", 30*time.Second, "minimum interval between activity resets")
	flag.StringVar(&cfg.PaymentMode, "payment-mode", PaymentModeIncremental, "payment wizard mode: incremental or deferred")
	flag.DurationVar(&cfg.RequestTimeout, "request-timeout", 10*time.Second, "remote API request timeout")

	flag.Parse()

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	return cfg, nil
}

// Validate проверяет согласованность параметров.
func (c *Config) Validate() error {
	var errs []error
	if c.PaymentMode != PaymentModeIncremental && c.PaymentMode != PaymentModeDeferred {
		errs = append(errs, fmt.Errorf("unknown payment mode %q", c.PaymentMode))
	}
	if c.SessionLength <= 0 {
		errs = append(errs, errors.New("session length must be positive"))
	}
	if c.SessionWarning <= 0 || c.SessionWarning >= c.SessionLength {
		errs = append(errs, fmt.Errorf("session warning %s must be positive and shorter than session length %s", c.SessionWarning, c.SessionLength))
	}
	if c.ActivityThrottle < 0 {
		errs = append(errs, errors.New("activity throttle must not be negative"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}
	if !c.MockAPI && c.APIBaseURL == "" {
		errs = append(errs, errors.New("remote API base URL is required"))
	}
	return errors.Join(errs...)
}
