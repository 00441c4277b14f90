// Package config loads runtime configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is everything the remote client needs.
type Config struct {
	APIToken   string
	BaseURL    string
	RateBudget int
	RateWindow time.Duration
	Timeout    time.Duration
}

// Load reads CRMVAULT_* environment variables (a .env file is honored when
// present). The token may also be passed explicitly via flag; tokenFlag wins
// over the environment.
func Load(tokenFlag string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("CRMVAULT")
	v.AutomaticEnv()
	v.SetDefault("base_url", "https://api.pipedrive.com")
	v.SetDefault("rate_budget", 80)
	v.SetDefault("rate_window", "2s")
	v.SetDefault("timeout", "30s")

	cfg := &Config{
		APIToken:   tokenFlag,
		BaseURL:    v.GetString("base_url"),
		RateBudget: v.GetInt("rate_budget"),
		RateWindow: v.GetDuration("rate_window"),
		Timeout:    v.GetDuration("timeout"),
	}
	if cfg.APIToken == "" {
		cfg.APIToken = v.GetString("api_token")
	}
	if cfg.APIToken == "" {
		return nil, errors.New("no API token: set CRMVAULT_API_TOKEN or pass --api-token")
	}
	return cfg, nil
}
