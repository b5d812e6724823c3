// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds everything the service needs at startup.
type Config struct {
	ProjectID       string
	DocumentBucket  string
	Collection      string
	ProviderBaseURL string
	ChannelBaseURL  string
	HostingBaseURL  string
	HostingName     string
	ListenAddr      string
	CheckLimit      int
	FetchRetries    int
	FetchTimeout    time.Duration
}

// GetEnv is a helper to read an environment variable or return a default
// value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// Load reads and validates configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		ProjectID:       GetEnv("PROJECT_ID", ""),
		DocumentBucket:  GetEnv("DOCUMENT_BUCKET", ""),
		Collection:      GetEnv("FIRESTORE_COLLECTION", "galleries"),
		ProviderBaseURL: GetEnv("PROVIDER_BASE_URL", ""),
		ChannelBaseURL:  GetEnv("CHANNEL_BASE_URL", ""),
		HostingBaseURL:  GetEnv("HOSTING_BASE_URL", "https://api.telegra.ph"),
		HostingName:     GetEnv("HOSTING_SHORT_NAME", "gallerybot"),
		ListenAddr:      GetEnv("LISTEN_ADDR", ":8080"),
	}

	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	if cfg.DocumentBucket == "" {
		return nil, fmt.Errorf("DOCUMENT_BUCKET environment variable must be set")
	}
	if cfg.ProviderBaseURL == "" {
		return nil, fmt.Errorf("PROVIDER_BASE_URL environment variable must be set")
	}
	if cfg.ChannelBaseURL == "" {
		return nil, fmt.Errorf("CHANNEL_BASE_URL environment variable must be set")
	}

	var err error
	if cfg.CheckLimit, err = intEnv("CHECK_LIMIT", 10); err != nil {
		return nil, err
	}
	if cfg.FetchRetries, err = intEnv("FETCH_RETRIES", 2); err != nil {
		return nil, err
	}

	timeoutStr := GetEnv("FETCH_TIMEOUT", "5s")
	cfg.FetchTimeout, err = time.ParseDuration(timeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid FETCH_TIMEOUT %q: %w", timeoutStr, err)
	}

	return cfg, nil
}

func intEnv(key string, fallback int) (int, error) {
	raw := GetEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive integer", key, raw)
	}
	return v, nil
}
