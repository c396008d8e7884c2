// Copyright (c) 2026 John Earle
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

// IMAPConfig holds credentials for the reporting mailbox.
type IMAPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	TLS      bool

	// AuthType is "password" (LOGIN) or "oauth2" (OAUTHBEARER). OAuth
	// fields are only read when AuthType is "oauth2".
	AuthType     string
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

// SMTPConfig holds credentials for the acknowledgment transport. An empty
// Host disables acknowledgments.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	SSL      bool
}

// IngestConfig tunes the polling scheduler.
type IngestConfig struct {
	Interval    time.Duration
	PassTimeout time.Duration

	// DedupEnabled skips messages whose Message-ID was already ingested
	// within DedupTTL. Off by default: Message-IDs are sender-controlled
	// and legitimate reporters occasionally forward the same mail twice
	// on purpose.
	DedupEnabled bool
	DedupTTL     time.Duration
}

// RenderConfig tunes the headless-browser screenshot step.
type RenderConfig struct {
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
}

// Config holds all configuration for the ingestion service.
type Config struct {
	IMAP IMAPConfig
	SMTP SMTPConfig

	DatabaseURL string

	// Redis
	RedisURL         string
	SubmissionsQueue string

	UploadsDir string

	Ingest IngestConfig
	Render RenderConfig

	// Server
	Port int
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	IMAP struct {
		Host         string   `yaml:"host"`
		Port         int      `yaml:"port"`
		Username     string   `yaml:"username"`
		Password     string   `yaml:"password"`
		TLS          *bool    `yaml:"tls"`
		AuthType     string   `yaml:"auth_type"`
		ClientID     string   `yaml:"client_id"`
		ClientSecret string   `yaml:"client_secret"`
		TokenURL     string   `yaml:"token_url"`
		Scopes       []string `yaml:"scopes"`
	} `yaml:"imap"`
	SMTP struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		From     string `yaml:"from"`
		SSL      bool   `yaml:"ssl"`
	} `yaml:"smtp"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		URL    string `yaml:"url"`
		Queues struct {
			Submissions string `yaml:"submissions"`
		} `yaml:"queues"`
	} `yaml:"redis"`
	Uploads struct {
		Dir string `yaml:"dir"`
	} `yaml:"uploads"`
	Ingest struct {
		Interval    string `yaml:"interval"`
		PassTimeout string `yaml:"pass_timeout"`
		Dedup       struct {
			Enabled bool   `yaml:"enabled"`
			TTL     string `yaml:"ttl"`
		} `yaml:"dedup"`
	} `yaml:"ingest"`
	Render struct {
		Timeout        string `yaml:"timeout"`
		ViewportWidth  int    `yaml:"viewport_width"`
		ViewportHeight int    `yaml:"viewport_height"`
	} `yaml:"render"`
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables for overrides. A missing config file is not an
// error; everything can come from the environment.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "/app/config/config.yaml")

	var raw rawConfig
	data, err := os.ReadFile(configPath)
	switch {
	case os.IsNotExist(err):
		// Env-only deployment
	case err != nil:
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	default:
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	}

	cfg := &Config{
		IMAP: IMAPConfig{
			Host:         firstNonEmpty(raw.IMAP.Host, os.Getenv("IMAP_HOST")),
			Port:         firstPositive(raw.IMAP.Port, envOrDefaultInt("IMAP_PORT", 993)),
			Username:     firstNonEmpty(raw.IMAP.Username, os.Getenv("IMAP_USERNAME")),
			Password:     firstNonEmpty(raw.IMAP.Password, os.Getenv("IMAP_PASSWORD")),
			TLS:          boolOrDefault(raw.IMAP.TLS, true),
			AuthType:     firstNonEmpty(raw.IMAP.AuthType, envOrDefault("IMAP_AUTH_TYPE", "password")),
			ClientID:     firstNonEmpty(raw.IMAP.ClientID, os.Getenv("IMAP_CLIENT_ID")),
			ClientSecret: firstNonEmpty(raw.IMAP.ClientSecret, os.Getenv("IMAP_CLIENT_SECRET")),
			TokenURL:     firstNonEmpty(raw.IMAP.TokenURL, os.Getenv("IMAP_TOKEN_URL")),
			Scopes:       raw.IMAP.Scopes,
		},
		SMTP: SMTPConfig{
			Host:     firstNonEmpty(raw.SMTP.Host, os.Getenv("SMTP_HOST")),
			Port:     firstPositive(raw.SMTP.Port, envOrDefaultInt("SMTP_PORT", 587)),
			Username: firstNonEmpty(raw.SMTP.Username, os.Getenv("SMTP_USERNAME")),
			Password: firstNonEmpty(raw.SMTP.Password, os.Getenv("SMTP_PASSWORD")),
			From:     firstNonEmpty(raw.SMTP.From, os.Getenv("SMTP_FROM")),
			SSL:      raw.SMTP.SSL || os.Getenv("SMTP_SSL") == "true",
		},
		DatabaseURL:      firstNonEmpty(raw.Database.URL, envOrDefault("DATABASE_URL", "postgres://localhost:5432/anglerphish")),
		RedisURL:         firstNonEmpty(raw.Redis.URL, envOrDefault("REDIS_URL", "redis://localhost:6379/0")),
		SubmissionsQueue: firstNonEmpty(raw.Redis.Queues.Submissions, envOrDefault("SUBMISSIONS_QUEUE", "submissions")),
		UploadsDir:       firstNonEmpty(raw.Uploads.Dir, envOrDefault("UPLOADS_DIR", "/app/uploads")),
		Ingest: IngestConfig{
			Interval:     durationOrDefault(raw.Ingest.Interval, envOrDefaultDuration("INGEST_INTERVAL", 5*time.Minute)),
			PassTimeout:  durationOrDefault(raw.Ingest.PassTimeout, envOrDefaultDuration("PASS_TIMEOUT", 4*time.Minute)),
			DedupEnabled: raw.Ingest.Dedup.Enabled || os.Getenv("DEDUP_ENABLED") == "true",
			DedupTTL:     durationOrDefault(raw.Ingest.Dedup.TTL, envOrDefaultDuration("DEDUP_TTL", 7*24*time.Hour)),
		},
		Render: RenderConfig{
			Timeout:        durationOrDefault(raw.Render.Timeout, envOrDefaultDuration("RENDER_TIMEOUT", 30*time.Second)),
			ViewportWidth:  firstPositive(raw.Render.ViewportWidth, envOrDefaultInt("RENDER_VIEWPORT_WIDTH", 800)),
			ViewportHeight: firstPositive(raw.Render.ViewportHeight, envOrDefaultInt("RENDER_VIEWPORT_HEIGHT", 600)),
		},
		Port: firstPositive(raw.Server.Port, envOrDefaultInt("PORT", 8080)),
	}

	if cfg.IMAP.Host == "" || cfg.IMAP.Username == "" {
		return nil, fmt.Errorf("imap host and username are required — check config.yaml and environment variables")
	}
	switch cfg.IMAP.AuthType {
	case "password":
		if cfg.IMAP.Password == "" {
			return nil, fmt.Errorf("imap password is required for password auth")
		}
	case "oauth2":
		if cfg.IMAP.ClientID == "" || cfg.IMAP.ClientSecret == "" || cfg.IMAP.TokenURL == "" {
			return nil, fmt.Errorf("imap client_id, client_secret and token_url are required for oauth2 auth")
		}
	default:
		return nil, fmt.Errorf("unknown imap auth_type %q", cfg.IMAP.AuthType)
	}
	if cfg.SMTP.Host != "" && cfg.SMTP.Username == "" {
		return nil, fmt.Errorf("smtp username is required when smtp host is set")
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

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func boolOrDefault(v *bool, fallback bool) bool {
	if v != nil {
		return *v
	}
	return fallback
}

func durationOrDefault(raw string, fallback time.Duration) time.Duration {
	if raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			return d
		}
	}
	return fallback
}
