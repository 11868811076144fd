// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Supported platforms for directory lookups and merge checks.
const (
	PlatformBitbucket = "bitbucket"
	PlatformGitHub    = "github"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	DBPath     string
	// StoreURL is the base URL the editor uses to reach the policy store.
	StoreURL string

	Platform      string
	PlatformURL   string
	PlatformToken string
	GitHubOrg     string

	QuietPeriod    time.Duration
	MinQueryLength int
	SessionTTL     time.Duration
	StoreRetries   int
}

// Load reads configuration from environment variables and returns a validated Config.
//
// Optional variables with defaults: PRHARMONY_LISTEN_ADDR (127.0.0.1:8080),
// PRHARMONY_DB_PATH (prharmony.db), PRHARMONY_STORE_URL (this server),
// PRHARMONY_PLATFORM (bitbucket), PRHARMONY_QUIET_PERIOD (250ms),
// PRHARMONY_MIN_QUERY_LENGTH (2), PRHARMONY_SESSION_TTL (30m),
// PRHARMONY_STORE_RETRIES (2). PRHARMONY_PLATFORM_URL is required for
// bitbucket and PRHARMONY_GITHUB_ORG for github.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:     envOr("PRHARMONY_LISTEN_ADDR", "127.0.0.1:8080"),
		DBPath:         envOr("PRHARMONY_DB_PATH", "prharmony.db"),
		Platform:       strings.ToLower(envOr("PRHARMONY_PLATFORM", PlatformBitbucket)),
		PlatformURL:    strings.TrimRight(os.Getenv("PRHARMONY_PLATFORM_URL"), "/"),
		PlatformToken:  os.Getenv("PRHARMONY_PLATFORM_TOKEN"),
		GitHubOrg:      strings.TrimSpace(os.Getenv("PRHARMONY_GITHUB_ORG")),
		QuietPeriod:    250 * time.Millisecond,
		MinQueryLength: 2,
		SessionTTL:     30 * time.Minute,
		StoreRetries:   2,
	}

	var err error
	if cfg.QuietPeriod, err = durationEnv("PRHARMONY_QUIET_PERIOD", cfg.QuietPeriod, 0); err != nil {
		return nil, err
	}
	if cfg.SessionTTL, err = durationEnv("PRHARMONY_SESSION_TTL", cfg.SessionTTL, time.Second); err != nil {
		return nil, err
	}
	if cfg.MinQueryLength, err = intEnv("PRHARMONY_MIN_QUERY_LENGTH", cfg.MinQueryLength); err != nil {
		return nil, err
	}
	if cfg.StoreRetries, err = intEnv("PRHARMONY_STORE_RETRIES", cfg.StoreRetries); err != nil {
		return nil, err
	}

	storeURL, err := storeURLFromEnv(cfg.ListenAddr)
	if err != nil {
		return nil, err
	}
	cfg.StoreURL = storeURL

	switch cfg.Platform {
	case PlatformBitbucket:
		if cfg.PlatformURL == "" {
			return nil, fmt.Errorf("PRHARMONY_PLATFORM_URL is required for platform %q", cfg.Platform)
		}
	case PlatformGitHub:
		if cfg.GitHubOrg == "" {
			return nil, fmt.Errorf("PRHARMONY_GITHUB_ORG is required for platform %q", cfg.Platform)
		}
	default:
		return nil, fmt.Errorf("PRHARMONY_PLATFORM has unsupported value %q (want %s or %s)",
			cfg.Platform, PlatformBitbucket, PlatformGitHub)
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback, minimum time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	if d < minimum {
		return 0, fmt.Errorf("%s must be at least %s, got %s", key, minimum, d)
	}
	return d, nil
}

// intEnv reads a non-negative integer.
func intEnv(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%s has invalid integer %q: %w", key, v, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %d", key, n)
	}
	return n, nil
}

// storeURLFromEnv returns PRHARMONY_STORE_URL or, when unset, this server's
// own address with bind-all hosts replaced by loopback.
func storeURLFromEnv(listenAddr string) (string, error) {
	if v := os.Getenv("PRHARMONY_STORE_URL"); v != "" {
		u, err := url.Parse(v)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return "", fmt.Errorf("PRHARMONY_STORE_URL has invalid URL %q", v)
		}
		return strings.TrimRight(v, "/"), nil
	}

	host, port, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return "", fmt.Errorf("PRHARMONY_LISTEN_ADDR has invalid address %q: %w", listenAddr, err)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port), nil
}
