// Copyright (c) 2026 Load Hunter Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AccountConfig holds mail-provider credentials and the dispatch mailbox
// for a single broker board account.
type AccountConfig struct {
	Alias        string `yaml:"alias"`
	Provider     string `yaml:"provider"` // "m365" (only supported provider today)
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Mailbox      string `yaml:"mailbox"` // dispatch inbox receiving Sylectus offers
}

// Config holds all configuration for the Load Hunter ingestion service.
type Config struct {
	Accounts []AccountConfig

	// Postgres
	DatabaseURL string

	// Redis
	RedisURL    string
	AlertsQueue string

	// Webhook
	WebhookURL  string
	WebhookPort int

	// Mailbox subscriptions / catch-up sweep
	RenewalBuffer   time.Duration
	CatchupInterval time.Duration
	CatchupLookback time.Duration

	// Loads without an Expires: header live this long after ingestion.
	LoadDefaultTTL time.Duration

	// Geocoding
	GeocodeAPIKey string

	// Server (health check only)
	Port int
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Accounts []struct {
		Alias        string `yaml:"alias"`
		Provider     string `yaml:"provider"`
		TenantID     string `yaml:"tenant_id"`
		ClientID     string `yaml:"client_id"`
		ClientSecret string `yaml:"client_secret"`
		Mailbox      string `yaml:"mailbox"`
	} `yaml:"accounts"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		URL    string `yaml:"url"`
		Queues struct {
			Alerts string `yaml:"alerts"`
		} `yaml:"queues"`
	} `yaml:"redis"`
	Geocoding struct {
		APIKey string `yaml:"api_key"`
	} `yaml:"geocoding"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables for non-YAML settings.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "/app/config/config.yaml")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	// Expand ${VAR} references in the YAML
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	cfg := &Config{
		DatabaseURL:     firstNonEmpty(raw.Database.URL, envOrDefault("DATABASE_URL", "postgres://localhost:5432/loadhunter")),
		RedisURL:        firstNonEmpty(raw.Redis.URL, envOrDefault("REDIS_URL", "redis://localhost:6379/0")),
		AlertsQueue:     firstNonEmpty(raw.Redis.Queues.Alerts, envOrDefault("ALERTS_QUEUE", "match_alerts")),
		WebhookURL:      envOrDefault("WEBHOOK_URL", ""),
		WebhookPort:     envOrDefaultInt("WEBHOOK_PORT", 8443),
		RenewalBuffer:   envOrDefaultDuration("RENEWAL_BUFFER", 6*time.Hour),
		CatchupInterval: envOrDefaultDuration("CATCHUP_INTERVAL", 5*time.Minute),
		CatchupLookback: envOrDefaultDuration("CATCHUP_LOOKBACK", 30*time.Minute),
		LoadDefaultTTL:  envOrDefaultDuration("LOAD_DEFAULT_TTL", 90*time.Minute),
		GeocodeAPIKey:   firstNonEmpty(raw.Geocoding.APIKey, envOrDefault("GOOGLE_MAPS_API_KEY", "")),
		Port:            envOrDefaultInt("PORT", 8080),
	}

	// Build account configs
	for _, a := range raw.Accounts {
		ac := AccountConfig{
			Alias:        a.Alias,
			Provider:     a.Provider,
			TenantID:     a.TenantID,
			ClientID:     a.ClientID,
			ClientSecret: a.ClientSecret,
			Mailbox:      a.Mailbox,
		}

		// Skip accounts with empty credentials (commented out in YAML)
		if ac.TenantID == "" || ac.ClientID == "" || ac.ClientSecret == "" || ac.Mailbox == "" {
			continue
		}

		if ac.Alias == "" {
			ac.Alias = ac.Mailbox
			if at := strings.Index(ac.Mailbox, "@"); at > 0 {
				ac.Alias = ac.Mailbox[:at]
			}
		}

		if ac.Provider == "" {
			ac.Provider = "m365"
		}

		cfg.Accounts = append(cfg.Accounts, ac)
	}

	if len(cfg.Accounts) == 0 {
		return nil, fmt.Errorf("no mailbox accounts configured — check config.yaml and environment variables")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
