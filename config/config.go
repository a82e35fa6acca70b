// Copyright 2026 The kwmetricsd Authors
// This file is part of kwmetricsd.
//
// kwmetricsd is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// kwmetricsd is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with kwmetricsd. If not, see <http://www.gnu.org/licenses/>.

// Package config carries the daemon configuration, sourced from the
// environment with CLI flag overrides applied in cmd/kwmetricsd.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// AdsCredentials holds the ad-platform API credentials. All fields empty is
// a supported state: the ads adapter then starts uninitialized and reports
// every keyword as undetermined.
type AdsCredentials struct {
	DeveloperToken string
	ClientID       string
	ClientSecret   string
	RefreshToken   string
	CustomerID     string
}

// Complete reports whether every credential needed for live calls is set.
func (c AdsCredentials) Complete() bool {
	return c.DeveloperToken != "" && c.ClientID != "" && c.ClientSecret != "" &&
		c.RefreshToken != "" && c.CustomerID != ""
}

type Config struct {
	APIHost    string
	APIPort    int
	APIWorkers int

	LogDir   string
	LogLevel string

	CacheTTL        time.Duration
	CacheMaxEntries int
	CacheFile       string

	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string

	TrendsProgressFile string

	Ads AdsCredentials
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		APIHost:            "127.0.0.1",
		APIPort:            8000,
		APIWorkers:         1,
		LogDir:             "./logs",
		LogLevel:           "info",
		CacheTTL:           24 * time.Hour,
		CacheMaxEntries:    3000,
		CacheFile:          "cache.snap",
		RedisHost:          "localhost",
		RedisPort:          6379,
		RedisDB:            0,
		TrendsProgressFile: "trends_progress.json",
	}
}

// FromEnv layers the process environment over Defaults.
func FromEnv() Config {
	cfg := Defaults()

	str(&cfg.APIHost, "API_HOST")
	num(&cfg.APIPort, "API_PORT")
	num(&cfg.APIWorkers, "API_WORKERS")
	str(&cfg.LogDir, "LOG_DIR")
	str(&cfg.LogLevel, "LOG_LEVEL")
	secs(&cfg.CacheTTL, "CACHE_TTL")
	num(&cfg.CacheMaxEntries, "CACHE_MAX_ENTRIES")
	str(&cfg.CacheFile, "CACHE_FILE")
	str(&cfg.RedisHost, "REDIS_HOST")
	num(&cfg.RedisPort, "REDIS_PORT")
	num(&cfg.RedisDB, "REDIS_DB")
	str(&cfg.RedisPassword, "REDIS_PASSWORD")
	str(&cfg.TrendsProgressFile, "TRENDS_PROGRESS_FILE")

	str(&cfg.Ads.DeveloperToken, "GOOGLE_ADS_DEVELOPER_TOKEN")
	str(&cfg.Ads.ClientID, "GOOGLE_ADS_CLIENT_ID")
	str(&cfg.Ads.ClientSecret, "GOOGLE_ADS_CLIENT_SECRET")
	str(&cfg.Ads.RefreshToken, "GOOGLE_ADS_REFRESH_TOKEN")
	str(&cfg.Ads.CustomerID, "GOOGLE_ADS_CUSTOMER_ID")
	// Customer ids are often written 123-456-7890; the API wants digits.
	cfg.Ads.CustomerID = strings.ReplaceAll(cfg.Ads.CustomerID, "-", "")

	return cfg
}

// Validate rejects configurations the daemon cannot start with.
func (c Config) Validate() error {
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("invalid API port %d", c.APIPort)
	}
	if c.CacheMaxEntries <= 0 {
		return fmt.Errorf("cache capacity must be positive, got %d", c.CacheMaxEntries)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache TTL must be positive, got %s", c.CacheTTL)
	}
	return nil
}

// RedisAddr returns the host:port the Redis backend dials.
func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

func str(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func num(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func secs(dst *time.Duration, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = time.Duration(n) * time.Second
		}
	}
}
