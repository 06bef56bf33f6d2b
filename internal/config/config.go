// Package config handles loading and validating configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration for the Victory Integration server.
type Config struct {
	// Server
	Port     string
	LogLevel string

	// Origins allowed to call the API (the dashboard UI).
	AllowedOrigins []string

	// Inbound rate limiting (per client IP).
	RateLimitRPS   float64
	RateLimitBurst int

	// Provider credentials. All optional: an absent credential puts the
	// matching endpoint into its "not configured" state rather than
	// failing at startup.
	AnthropicKey string // Admin API key (sk-ant-admin-...)
	OpenAIKey    string // Admin API key
	VercelToken  string

	// Optional YAML file overriding the embedded pricing tables.
	PricingFile string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Port:     getEnv("VICTORY_PORT", "8080"),
		LogLevel: getEnv("VICTORY_LOG_LEVEL", "info"),

		AnthropicKey: os.Getenv("ANTHROPIC_API_KEY"),
		OpenAIKey:    os.Getenv("OPENAI_API_KEY"),
		VercelToken:  os.Getenv("VERCEL_TOKEN"),

		PricingFile: os.Getenv("VICTORY_PRICING_FILE"),
	}

	origins := getEnv("VICTORY_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
		}
	}

	rps, err := strconv.ParseFloat(getEnv("VICTORY_RATE_LIMIT_RPS", "10"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid VICTORY_RATE_LIMIT_RPS: %w", err)
	}
	cfg.RateLimitRPS = rps

	burst, err := strconv.Atoi(getEnv("VICTORY_RATE_LIMIT_BURST", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid VICTORY_RATE_LIMIT_BURST: %w", err)
	}
	cfg.RateLimitBurst = burst

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
