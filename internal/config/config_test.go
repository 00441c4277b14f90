package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CRMVAULT_API_TOKEN", "tok123")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "tok123", cfg.APIToken)
	assert.Equal(t, "https://api.pipedrive.com", cfg.BaseURL)
	assert.Equal(t, 80, cfg.RateBudget)
	assert.Equal(t, 2*time.Second, cfg.RateWindow)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
}

func TestLoadFlagWins(t *testing.T) {
	t.Setenv("CRMVAULT_API_TOKEN", "fromenv")
	cfg, err := Load("fromflag")
	require.NoError(t, err)
	assert.Equal(t, "fromflag", cfg.APIToken)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CRMVAULT_API_TOKEN", "tok")
	t.Setenv("CRMVAULT_BASE_URL", "http://localhost:9999")
	t.Setenv("CRMVAULT_RATE_BUDGET", "10")
	t.Setenv("CRMVAULT_RATE_WINDOW", "1s")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9999", cfg.BaseURL)
	assert.Equal(t, 10, cfg.RateBudget)
	assert.Equal(t, time.Second, cfg.RateWindow)
}

func TestLoadMissingToken(t *testing.T) {
	t.Setenv("CRMVAULT_API_TOKEN", "")
	_, err := Load("")
	assert.Error(t, err)
}
