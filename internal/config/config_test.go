package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("DUTY_DB_PATH", "")
	t.Setenv("DUTY_REFRESH_INTERVAL", "")
	t.Setenv("LOG_LEVEL", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "token", cfg.DiscordToken)
	assert.Equal(t, "./duty.db", cfg.DBPath)
	assert.Equal(t, time.Minute, cfg.RefreshInterval)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadMissingToken(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")

	_, err := Load()
	require.Error(t, err)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "DISCORD_TOKEN", cfgErr.Field)
}

func TestLoadRefreshInterval(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("DUTY_REFRESH_INTERVAL", "30s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.RefreshInterval)
}

func TestLoadInvalidRefreshInterval(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("DUTY_REFRESH_INTERVAL", "often")

	_, err := Load()
	require.Error(t, err)
}
