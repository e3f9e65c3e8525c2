// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	SessionTTL  time.Duration

	Provider  ProviderConfig
	Quota     QuotaConfig
	RateLimit RateLimitConfig

	// MaxInputChars caps abstract and rebuttal length before any provider call.
	MaxInputChars int
}

// ProviderConfig holds the chat-completion provider settings.
// ReviewModel handles the Review stage; DecisionModel is the stronger model
// serving both the rebuttal exchange and the final verdict.
type ProviderConfig struct {
	APIKey            string
	BaseURL           string
	ReviewModel       string
	DecisionModel     string
	MaxVerdictTokens  int
	MaxResponseTokens int
}

// QuotaConfig holds the daily and monthly usage ceilings.
type QuotaConfig struct {
	DailyMaxAttempts     int
	MonthlyBudgetUSD     float64
	CostPerMillionTokens float64
}

// MonthlyTokenCeiling converts the dollar budget into a token ceiling.
func (q QuotaConfig) MonthlyTokenCeiling() int64 {
	if q.CostPerMillionTokens <= 0 {
		return 0
	}
	return int64(q.MonthlyBudgetUSD / q.CostPerMillionTokens * 1_000_000)
}

// RateLimitConfig controls per-device request throttling, independent of the
// daily attempt quota.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/reviewer2.db"),
		SessionTTL:  getEnvDuration("SESSION_TTL", 60*time.Minute),
		Provider: ProviderConfig{
			APIKey:            os.Getenv("TOGETHER_API_KEY"),
			BaseURL:           getEnv("TOGETHER_BASE_URL", "https://api.together.xyz/v1/chat/completions"),
			ReviewModel:       getEnv("REVIEW_MODEL", "meta-llama/Meta-Llama-3.1-8B-Instruct-Turbo"),
			DecisionModel:     getEnv("DECISION_MODEL", "meta-llama/Meta-Llama-3.1-70B-Instruct-Turbo"),
			MaxVerdictTokens:  getEnvInt("MAX_VERDICT_TOKENS", 16),
			MaxResponseTokens: getEnvInt("MAX_RESPONSE_TOKENS", 1024),
		},
		Quota: QuotaConfig{
			DailyMaxAttempts:     getEnvInt("DAILY_MAX_ATTEMPTS", 10),
			MonthlyBudgetUSD:     getEnvFloat("MONTHLY_BUDGET_USD", 15),
			CostPerMillionTokens: getEnvFloat("COST_PER_MILLION_TOKENS", 0.88),
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("RATE_LIMIT_REQUESTS", 10),
			WindowDuration:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		MaxInputChars: getEnvInt("MAX_INPUT_CHARS", 8000),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.Provider.BaseURL == "" {
		return fmt.Errorf("TOGETHER_BASE_URL cannot be empty")
	}
	if c.Provider.ReviewModel == "" || c.Provider.DecisionModel == "" {
		return fmt.Errorf("REVIEW_MODEL and DECISION_MODEL cannot be empty")
	}
	if c.Provider.MaxVerdictTokens <= 0 {
		return fmt.Errorf("MAX_VERDICT_TOKENS must be > 0")
	}
	if c.Quota.DailyMaxAttempts <= 0 {
		return fmt.Errorf("DAILY_MAX_ATTEMPTS must be > 0")
	}
	if c.Quota.CostPerMillionTokens <= 0 {
		return fmt.Errorf("COST_PER_MILLION_TOKENS must be > 0")
	}
	if c.MaxInputChars <= 0 {
		return fmt.Errorf("MAX_INPUT_CHARS must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
