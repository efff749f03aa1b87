package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err, "an absent config file yields defaults")

	assert.Equal(t, "paper", cfg.Trading.Mode)
	assert.True(t, cfg.IsPaperMode())
	assert.Equal(t, 100000.0, cfg.Trading.InitialPaperBalance)
	assert.Equal(t, 15*time.Minute, cfg.Engine.OpenInterval)
	assert.Equal(t, 30*time.Minute, cfg.Engine.ExtendedInterval)
	assert.Equal(t, 60*time.Minute, cfg.Engine.ClosedInterval)
	assert.Equal(t, 4, cfg.Engine.Workers)
	assert.Equal(t, 10.0, cfg.Risk.MaxPositionSizePct)
	assert.Equal(t, 7, cfg.Risk.MinDTE)
	assert.Equal(t, 60, cfg.Risk.MaxDTE)
	assert.Equal(t, 5.0, cfg.Gateway.RequestsPerSecond)
	assert.True(t, cfg.Notifications.Terminal)
	assert.False(t, cfg.Notifications.Webhook.Enabled)
	assert.NotEmpty(t, cfg.DatabasePath)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	content := `
database_path = "/tmp/other.db"

[trading]
mode = "live"
commission_per_contract = 1.25

[engine]
workers = 8

[risk]
max_open_positions = 3

[notifications.webhook]
enabled = true
url = "https://hooks.example.com/trades"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "live", cfg.Trading.Mode)
	assert.False(t, cfg.IsPaperMode())
	assert.Equal(t, 1.25, cfg.Trading.CommissionPerContract)
	assert.Equal(t, 8, cfg.Engine.Workers)
	assert.Equal(t, 3, cfg.Risk.MaxOpenPositions)
	assert.Equal(t, "/tmp/other.db", cfg.DatabasePath)
	assert.True(t, cfg.Notifications.Webhook.Enabled)
	assert.Equal(t, "https://hooks.example.com/trades", cfg.Notifications.Webhook.URL)

	// Unset keys keep their defaults.
	assert.Equal(t, 100000.0, cfg.Trading.InitialPaperBalance)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"bad mode", "[trading]\nmode = \"demo\"\n"},
		{"zero balance", "[trading]\ninitial_paper_balance = -5\n"},
		{"bad position size", "[risk]\nmax_position_size_pct = 150\n"},
		{"inverted dte bounds", "[risk]\nmin_dte = 90\nmax_dte = 30\n"},
		{"zero workers", "[engine]\nworkers = 0\n"},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(tt.content), 0644))
			_, err := Load(dir)
			assert.Error(t, err)
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TRADING_MODE", "live")
	t.Setenv("TRADER_DB_PATH", "/tmp/env.db")
	t.Setenv("TRADER_LOG_LEVEL", "debug")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "live", cfg.Trading.Mode)
	assert.Equal(t, "/tmp/env.db", cfg.DatabasePath)
	assert.Equal(t, "debug", cfg.Logging.Level)
}
