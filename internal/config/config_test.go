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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_PATH", path)
}

func TestLoadFromYAML(t *testing.T) {
	t.Setenv("MAILBOX_SECRET", "hunter2")
	writeConfigFile(t, `
imap:
  host: imap.corp.example
  username: phishing@corp.example
  password: ${MAILBOX_SECRET}
smtp:
  host: smtp.corp.example
  username: phishing@corp.example
  password: ${MAILBOX_SECRET}
  ssl: true
database:
  url: postgres://db.corp.example:5432/anglerphish
redis:
  url: redis://cache.corp.example:6379/1
  queues:
    submissions: phish-submissions
uploads:
  dir: /srv/uploads
ingest:
  interval: 2m
  pass_timeout: 90s
  dedup:
    enabled: true
    ttl: 48h
render:
  viewport_width: 1024
server:
  port: 9090
`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.IMAP.Host != "imap.corp.example" {
		t.Errorf("IMAP.Host = %q", cfg.IMAP.Host)
	}
	if cfg.IMAP.Password != "hunter2" {
		t.Errorf("IMAP.Password = %q, env expansion failed", cfg.IMAP.Password)
	}
	if cfg.IMAP.Port != 993 {
		t.Errorf("IMAP.Port = %d, want default 993", cfg.IMAP.Port)
	}
	if !cfg.IMAP.TLS {
		t.Error("IMAP.TLS should default to true")
	}
	if !cfg.SMTP.SSL {
		t.Error("SMTP.SSL = false")
	}
	if cfg.DatabaseURL != "postgres://db.corp.example:5432/anglerphish" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.SubmissionsQueue != "phish-submissions" {
		t.Errorf("SubmissionsQueue = %q", cfg.SubmissionsQueue)
	}
	if cfg.UploadsDir != "/srv/uploads" {
		t.Errorf("UploadsDir = %q", cfg.UploadsDir)
	}
	if cfg.Ingest.Interval != 2*time.Minute {
		t.Errorf("Ingest.Interval = %s", cfg.Ingest.Interval)
	}
	if cfg.Ingest.PassTimeout != 90*time.Second {
		t.Errorf("Ingest.PassTimeout = %s", cfg.Ingest.PassTimeout)
	}
	if !cfg.Ingest.DedupEnabled || cfg.Ingest.DedupTTL != 48*time.Hour {
		t.Errorf("dedup = %v/%s", cfg.Ingest.DedupEnabled, cfg.Ingest.DedupTTL)
	}
	if cfg.Render.ViewportWidth != 1024 || cfg.Render.ViewportHeight != 600 {
		t.Errorf("viewport = %dx%d", cfg.Render.ViewportWidth, cfg.Render.ViewportHeight)
	}
	if cfg.Port != 9090 {
		t.Errorf("Port = %d", cfg.Port)
	}
}

func TestLoadEnvOnly(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("IMAP_HOST", "imap.example.net")
	t.Setenv("IMAP_USERNAME", "reports@example.net")
	t.Setenv("IMAP_PASSWORD", "s3cret")
	t.Setenv("INGEST_INTERVAL", "10m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.IMAP.Host != "imap.example.net" {
		t.Errorf("IMAP.Host = %q", cfg.IMAP.Host)
	}
	if cfg.Ingest.Interval != 10*time.Minute {
		t.Errorf("Ingest.Interval = %s, want 10m", cfg.Ingest.Interval)
	}
	// Pure defaults
	if cfg.Ingest.DedupEnabled {
		t.Error("dedup should default to disabled")
	}
	if cfg.Ingest.Interval == 0 || cfg.Render.Timeout != 30*time.Second {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "missing imap host",
			yaml: "imap:\n  username: a@b.example\n  password: x\n",
		},
		{
			name: "login auth without password",
			yaml: "imap:\n  host: h.example\n  username: a@b.example\n",
		},
		{
			name: "oauth2 without token url",
			yaml: "imap:\n  host: h.example\n  username: a@b.example\n  auth_type: oauth2\n  client_id: id\n  client_secret: sec\n",
		},
		{
			name: "unknown auth type",
			yaml: "imap:\n  host: h.example\n  username: a@b.example\n  password: x\n  auth_type: kerberos\n",
		},
		{
			name: "smtp host without username",
			yaml: "imap:\n  host: h.example\n  username: a@b.example\n  password: x\nsmtp:\n  host: smtp.example\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writeConfigFile(t, tt.yaml)
			if _, err := Load(); err == nil {
				t.Error("Load succeeded, want validation error")
			}
		})
	}
}
