package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/tower/pkg/httpx"
	"github.com/aussiebroadwan/tower/pkg/towersdk"
)

var allKeys = []string{
	"TOWER_HOST", "TOWER_USERNAME", "TOWER_PASSWORD", "TOWER_API_VERSION", "TOWER_INSECURE",
	"TOWER_TIMEOUT", "TOWER_TOKEN_LIFETIME",
	"TOWER_RATE_LIMIT_REQUESTS", "TOWER_RATE_LIMIT_WINDOW", "TOWER_RATE_LIMIT_BURST",
	"ENV", "LOG_LEVEL", "LOG_FORMAT",
}

// clearEnv blanks every key so the host environment cannot leak into a test.
// Viper treats empty variables as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allKeys {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	require.Empty(t, cfg.Host)
	require.Equal(t, towersdk.DefaultAPIVersion, cfg.APIVersion)
	require.False(t, cfg.Insecure)
	require.Equal(t, 30*time.Second, cfg.RequestTimeout())
	require.Equal(t, towersdk.DefaultTokenLifetime, cfg.DefaultTokenLifetime())
	require.Equal(t, httpx.DefaultRateLimit, cfg.RateLimit())
	require.Equal(t, "prod", cfg.Env)
	require.Equal(t, "warn", cfg.LogLevel)
	require.Equal(t, "text", cfg.LogFormat)
}

func TestLoad_EnvVarOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("TOWER_HOST", "https://tower.example.com")
	t.Setenv("TOWER_USERNAME", "admin")
	t.Setenv("TOWER_PASSWORD", "secret")
	t.Setenv("TOWER_INSECURE", "true")
	t.Setenv("TOWER_TIMEOUT", "5s")
	t.Setenv("TOWER_TOKEN_LIFETIME", "10m")
	t.Setenv("TOWER_RATE_LIMIT_REQUESTS", "0")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadFile("")
	require.NoError(t, err)

	require.Equal(t, "https://tower.example.com", cfg.Host)
	require.Equal(t, towersdk.Credentials{Username: "admin", Password: "secret"}, cfg.Credentials())
	require.True(t, cfg.Insecure)
	require.Equal(t, 5*time.Second, cfg.RequestTimeout())
	require.Equal(t, 10*time.Minute, cfg.DefaultTokenLifetime())
	require.False(t, cfg.RateLimit().Enabled())
	require.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_WithEnvFile(t *testing.T) {
	clearEnv(t)

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"TOWER_HOST=https://awx.internal\n"+
			"TOWER_USERNAME=from-file\n"+
			"TOWER_RATE_LIMIT_BURST=5\n",
	), 0o600))

	// Environment wins over the file
	t.Setenv("TOWER_USERNAME", "from-env")

	cfg, err := LoadFile(envFile)
	require.NoError(t, err)

	require.Equal(t, "https://awx.internal", cfg.Host)
	require.Equal(t, "from-env", cfg.Username)
	require.Equal(t, 5, cfg.RateLimit().Burst)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"TOWER_TIMEOUT", "soon"},
		{"TOWER_TIMEOUT", "-1s"},
		{"TOWER_TOKEN_LIFETIME", "0s"},
		{"TOWER_RATE_LIMIT_WINDOW", "1 minute"},
		{"TOWER_RATE_LIMIT_REQUESTS", "-5"},
		{"TOWER_RATE_LIMIT_BURST", "-1"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			cfg, err := LoadFile("")
			require.Error(t, err)
			require.Nil(t, cfg)
			require.Contains(t, err.Error(), "config:")
		})
	}
}
