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

// AnglerPhish — Ingestion Service
//
// Entry point for the phishing-report ingestion service. It:
//  1. Loads configuration from config.yaml and the environment
//  2. Connects to PostgreSQL and Redis
//  3. Polls the reporting mailbox over IMAP on a fixed interval
//  4. Builds a submission for every newly reported email: attachments
//     written to disk, URLs extracted, HTML screenshotted, reporter
//     acknowledged over SMTP
//  5. Serves HTTP endpoints for on-demand passes, connectivity tests,
//     and health checks
//  6. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/anglerphish/ingestion/internal/ack"
	"github.com/anglerphish/ingestion/internal/attachments"
	"github.com/anglerphish/ingestion/internal/config"
	"github.com/anglerphish/ingestion/internal/dedup"
	"github.com/anglerphish/ingestion/internal/httpapi"
	"github.com/anglerphish/ingestion/internal/ingest"
	"github.com/anglerphish/ingestion/internal/mailbox"
	"github.com/anglerphish/ingestion/internal/queue"
	"github.com/anglerphish/ingestion/internal/render"
	"github.com/anglerphish/ingestion/internal/store"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting AnglerPhish ingestion service")

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"imap_host", cfg.IMAP.Host,
		"interval", cfg.Ingest.Interval,
		"dedup", cfg.Ingest.DedupEnabled,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	submissions, err := store.NewStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise submission store", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to PostgreSQL")

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)

	publisher := queue.NewPublisher(rdb, cfg.SubmissionsQueue)
	if err := publisher.Ping(ctx); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to Redis")

	// --- Dedup Filter (optional) ---
	var filter ingest.DedupFilter
	if cfg.Ingest.DedupEnabled {
		filter = dedup.NewFilter(rdb, cfg.Ingest.DedupTTL)
	}

	// --- Mailbox Client ---
	mbox := mailbox.NewClient(mailbox.Config{
		Host:         cfg.IMAP.Host,
		Port:         cfg.IMAP.Port,
		Username:     cfg.IMAP.Username,
		Password:     cfg.IMAP.Password,
		TLS:          cfg.IMAP.TLS,
		AuthType:     cfg.IMAP.AuthType,
		ClientID:     cfg.IMAP.ClientID,
		ClientSecret: cfg.IMAP.ClientSecret,
		TokenURL:     cfg.IMAP.TokenURL,
		Scopes:       cfg.IMAP.Scopes,
	})

	// --- Acknowledgment Sender (optional) ---
	var (
		acker          ingest.Acknowledger
		transportCheck ingest.Verifier
	)
	if cfg.SMTP.Host != "" {
		sender := ack.NewSender(ack.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			SSL:      cfg.SMTP.SSL,
		})
		acker = sender
		transportCheck = sender
	} else {
		slog.Warn("no SMTP host configured, acknowledgments disabled")
	}

	// --- Orchestrator ---
	orch := ingest.NewOrchestrator(ingest.Config{
		Dialer: ingest.DialerFunc(func(ctx context.Context) (ingest.Session, error) {
			return mbox.Dial(ctx)
		}),
		Store:        submissions,
		Materializer: attachments.NewMaterializer(cfg.UploadsDir),
		Renderer: render.NewRenderer(render.Config{
			UploadsDir:     cfg.UploadsDir,
			Timeout:        cfg.Render.Timeout,
			ViewportWidth:  cfg.Render.ViewportWidth,
			ViewportHeight: cfg.Render.ViewportHeight,
		}),
		Acknowledger:   acker,
		Dedup:          filter,
		Publisher:      publisher,
		MailboxCheck:   mbox,
		TransportCheck: transportCheck,
	})

	// --- API Server ---
	handler := httpapi.NewHandler(orch, cfg.Ingest.PassTimeout,
		httpapi.HealthCheck{Name: "postgres", Ping: submissions.Ping},
		httpapi.HealthCheck{Name: "redis", Ping: publisher.Ping},
	)
	ready, err := httpapi.Serve(ctx, cfg.Port, handler)
	if err != nil {
		slog.Error("failed to start api server", "error", err)
		os.Exit(1)
	}
	<-ready

	// --- Graceful Shutdown ---
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh

		slog.Info("received shutdown signal", "signal", sig)
		cancel() // Stop the scheduler and the api server
	}()

	// --- Polling Scheduler ---
	// One pass immediately on startup, then on a fixed interval. The
	// in-progress guard makes an overlapping HTTP-triggered pass a no-op
	// here rather than a double ingestion.
	runPass(ctx, orch, cfg.Ingest.PassTimeout)

	ticker := time.NewTicker(cfg.Ingest.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			rdb.Close()
			pgPool.Close()
			slog.Info("ingestion service stopped")
			return
		case <-ticker.C:
			runPass(ctx, orch, cfg.Ingest.PassTimeout)
		}
	}
}

// runPass executes one scheduled ingestion pass with the configured
// timeout. A pass already running is skipped silently; it will have
// drained the mailbox anyway.
func runPass(ctx context.Context, orch *ingest.Orchestrator, timeout time.Duration) {
	passCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		passCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	created, err := orch.RunPass(passCtx)
	switch {
	case errors.Is(err, ingest.ErrPassInProgress):
		slog.Info("skipping scheduled pass, previous pass still running")
	case err != nil:
		slog.Error("ingestion pass failed", "error", err)
	case len(created) > 0:
		slog.Info("ingestion pass complete", "created", len(created))
	}
}
