package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// allConfigKeys lists every PRHARMONY_ env var that Load() reads.
var allConfigKeys = []string{
	"PRHARMONY_LISTEN_ADDR",
	"PRHARMONY_DB_PATH",
	"PRHARMONY_STORE_URL",
	"PRHARMONY_PLATFORM",
	"PRHARMONY_PLATFORM_URL",
	"PRHARMONY_PLATFORM_TOKEN",
	"PRHARMONY_GITHUB_ORG",
	"PRHARMONY_QUIET_PERIOD",
	"PRHARMONY_MIN_QUERY_LENGTH",
	"PRHARMONY_SESSION_TTL",
	"PRHARMONY_STORE_RETRIES",
}

// isolateConfigEnv saves and unsets all PRHARMONY_ env vars so tests don't
// inherit values from the host environment.
func isolateConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range allConfigKeys {
		if orig, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { os.Setenv(key, orig) })
		} else {
			t.Cleanup(func() { os.Unsetenv(key) })
		}
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("PRHARMONY_PLATFORM_URL", "https://bitbucket.example.com/")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.ListenAddr)
	assert.Equal(t, "prharmony.db", cfg.DBPath)
	assert.Equal(t, "http://127.0.0.1:8080", cfg.StoreURL)
	assert.Equal(t, PlatformBitbucket, cfg.Platform)
	assert.Equal(t, "https://bitbucket.example.com", cfg.PlatformURL)
	assert.Equal(t, 250*time.Millisecond, cfg.QuietPeriod)
	assert.Equal(t, 2, cfg.MinQueryLength)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 2, cfg.StoreRetries)
}

func TestLoad_Success(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("PRHARMONY_LISTEN_ADDR", "0.0.0.0:9090")
	t.Setenv("PRHARMONY_DB_PATH", "/tmp/test.db")
	t.Setenv("PRHARMONY_PLATFORM", "GitHub")
	t.Setenv("PRHARMONY_PLATFORM_TOKEN", "ghp_test123")
	t.Setenv("PRHARMONY_GITHUB_ORG", "acme")
	t.Setenv("PRHARMONY_QUIET_PERIOD", "100ms")
	t.Setenv("PRHARMONY_MIN_QUERY_LENGTH", "3")
	t.Setenv("PRHARMONY_SESSION_TTL", "1h")
	t.Setenv("PRHARMONY_STORE_RETRIES", "0")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9090", cfg.ListenAddr)
	assert.Equal(t, "http://127.0.0.1:9090", cfg.StoreURL)
	assert.Equal(t, "/tmp/test.db", cfg.DBPath)
	assert.Equal(t, PlatformGitHub, cfg.Platform)
	assert.Equal(t, "ghp_test123", cfg.PlatformToken)
	assert.Equal(t, "acme", cfg.GitHubOrg)
	assert.Equal(t, 100*time.Millisecond, cfg.QuietPeriod)
	assert.Equal(t, 3, cfg.MinQueryLength)
	assert.Equal(t, time.Hour, cfg.SessionTTL)
	assert.Equal(t, 0, cfg.StoreRetries)
}

func TestLoad_ExplicitStoreURL(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("PRHARMONY_PLATFORM_URL", "https://bitbucket.example.com")
	t.Setenv("PRHARMONY_STORE_URL", "https://bitbucket.example.com/")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "https://bitbucket.example.com", cfg.StoreURL)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"quiet period not a duration", "PRHARMONY_QUIET_PERIOD", "soon"},
		{"negative quiet period", "PRHARMONY_QUIET_PERIOD", "-1s"},
		{"session ttl too short", "PRHARMONY_SESSION_TTL", "10ms"},
		{"min query length not a number", "PRHARMONY_MIN_QUERY_LENGTH", "two"},
		{"negative retries", "PRHARMONY_STORE_RETRIES", "-1"},
		{"store url without scheme", "PRHARMONY_STORE_URL", "localhost:8080"},
		{"unknown platform", "PRHARMONY_PLATFORM", "gitlab"},
		{"listen addr without port", "PRHARMONY_LISTEN_ADDR", "localhost"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateConfigEnv(t)
			t.Setenv("PRHARMONY_PLATFORM_URL", "https://bitbucket.example.com")
			t.Setenv(tt.key, tt.value)

			cfg, err := Load()

			assert.Nil(t, cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoad_BitbucketRequiresPlatformURL(t *testing.T) {
	isolateConfigEnv(t)

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PRHARMONY_PLATFORM_URL")
}

func TestLoad_GitHubRequiresOrg(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("PRHARMONY_PLATFORM", "github")

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PRHARMONY_GITHUB_ORG")
}
