package config

import (
	"flag"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	type want struct {
		runAddress     string
		apiBaseURL     string
		allowInsecure  bool
		redisAddr      string
		sessionLength  time.Duration
		sessionWarning time.Duration
		paymentMode    string
	}

	tests := []struct {
		name  string
		env   map[string]string
		flags []string
		want  want
	}{
		{
			name:  "defaults",
			env:   map[string]string{},
			flags: []string{},
			want: want{
				runAddress:     "localhost:8080",
				apiBaseURL:     "https://localhost:5118",
				sessionLength:  15 * time.Minute,
				sessionWarning: 5 * time.Minute,
				paymentMode:    PaymentModeIncremental,
			},
		},
		{
			name: "env only",
			env: map[string]string{
				"RUN_ADDRESS":     "localhost:9999",
				"API_BASE_URL":    "https://api.nexuspay.dev",
				"REDIS_ADDR":      "localhost:6379",
				"SESSION_LENGTH":  "30m",
				"SESSION_WARNING": "2m",
				"PAYMENT_MODE":    "deferred",
			},
			flags: []string{},
			want: want{
				runAddress:     "localhost:9999",
				apiBaseURL:     "https://api.nexuspay.dev",
				redisAddr:      "localhost:6379",
				sessionLength:  30 * time.Minute,
				sessionWarning: 2 * time.Minute,
				paymentMode:    PaymentModeDeferred,
			},
		},
		{
			name: "flags only",
			env:  map[string]string{},
			flags: []string{
				"-a", "localhost:7777",
				"-u", "http://localhost:5118",
				"-k",
				"-r", "redis:6379",
				"-session-length", "10m",
			},
			want: want{
				runAddress:     "localhost:7777",
				apiBaseURL:     "http://localhost:5118",
				allowInsecure:  true,
				redisAddr:      "redis:6379",
				sessionLength:  10 * time.Minute,
				sessionWarning: 5 * time.Minute,
				paymentMode:    PaymentModeIncremental,
			},
		},
		{
			name: "env overrides flags",
			env: map[string]string{
				"RUN_ADDRESS":    "env:9000",
				"API_BASE_URL":   "https://env.nexuspay.dev",
				"ALLOW_INSECURE": "false",
			},
			flags: []string{
				"-a", "flag:8000",
				"-u", "http://flag:5118",
				"-k",
			},
			want: want{
				runAddress:     "env:9000",
				apiBaseURL:     "https://env.nexuspay.dev",
				sessionLength:  15 * time.Minute,
				sessionWarning: 5 * time.Minute,
				paymentMode:    PaymentModeIncremental,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)

			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			os.Args = append([]string{"test"}, tt.flags...)

			cfg, err := Parse()
			require.NoError(t, err)

			assert.Equal(t, tt.want.runAddress, cfg.RunAddress)
			assert.Equal(t, tt.want.apiBaseURL, cfg.APIBaseURL)
			assert.Equal(t, tt.want.allowInsecure, cfg.AllowInsecure)
			assert.Equal(t, tt.want.redisAddr, cfg.RedisAddr)
			assert.Equal(t, tt.want.sessionLength, cfg.SessionLength)
			assert.Equal(t, tt.want.sessionWarning, cfg.SessionWarning)
			assert.Equal(t, tt.want.paymentMode, cfg.PaymentMode)
			assert.NoError(t, cfg.Validate())
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			RunAddress:       "localhost:8080",
			APIBaseURL:       "https://localhost:5118",
			SessionLength:    15 * time.Minute,
			SessionWarning:   5 * time.Minute,
			ActivityThrottle: 30 * time.Second,
			PaymentMode:      PaymentModeIncremental,
			RequestTimeout:   10 * time.Second,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "unknown payment mode", mutate: func(c *Config) { c.PaymentMode = "eager" }, wantErr: true},
		{name: "warning equals length", mutate: func(c *Config) { c.SessionWarning = c.SessionLength }, wantErr: true},
		{name: "zero timeout", mutate: func(c *Config) { c.RequestTimeout = 0 }, wantErr: true},
		{name: "no base url", mutate: func(c *Config) { c.APIBaseURL = "" }, wantErr: true},
		{name: "no base url in mock mode", mutate: func(c *Config) { c.APIBaseURL = ""; c.MockAPI = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
