package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("HISTORY_BACKEND", "")
	t.Setenv("ALERT_GATEWAY", "")
	t.Setenv("HISTORY_DISPLAY_LIMIT", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, HistoryBackendCSV, cfg.HistoryBackend)
	require.Equal(t, AlertGatewayLine, cfg.AlertGateway)
	require.Equal(t, 7, cfg.HistoryDisplayLimit)
	require.Equal(t, "https://api.line.me", cfg.LineAPIURL)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("ALERT_GATEWAY", "Telegram")
	t.Setenv("HISTORY_DISPLAY_LIMIT", "12")
	t.Setenv("HISTORY_FILE", "/tmp/plants.csv")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, AlertGatewayTelegram, cfg.AlertGateway)
	require.Equal(t, 12, cfg.HistoryDisplayLimit)
	require.Equal(t, "/tmp/plants.csv", cfg.HistoryFile)
}

func TestLoadConfigInvalidInt(t *testing.T) {
	t.Setenv("HISTORY_DISPLAY_LIMIT", "seven")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, 7, cfg.HistoryDisplayLimit)
}

func TestValidate(t *testing.T) {
	cfg := &Config{HistoryBackend: HistoryBackendFirebase, AlertGateway: AlertGatewayLine, HistoryDisplayLimit: 7}
	require.Error(t, cfg.Validate())

	cfg.FirebaseDbUrl = "https://plants.firebaseio.com"
	cfg.FirebaseServiceAccountJSON = "{}"
	require.NoError(t, cfg.Validate())

	cfg.AlertGateway = "pager"
	require.Error(t, cfg.Validate())

	cfg.AlertGateway = AlertGatewayTelegram
	cfg.HistoryDisplayLimit = 0
	require.Error(t, cfg.Validate())
}

func TestMask(t *testing.T) {
	require.Equal(t, "", mask(""))
	require.Equal(t, "****", mask("abc"))
	require.Equal(t, "AIza****", mask("AIzaSyExample"))
}
