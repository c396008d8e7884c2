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

// AnglerPhish — Historical Backfill Command
//
// Standalone CLI tool that ingests already-read emails from the reporting
// mailbox within a configurable lookback window. Intended for seeding data
// on new deployments. Backfilled messages are neither marked seen nor
// acknowledged.
//
// Usage:
//
//	go run ./cmd/backfill/ [--since 168h] [--dedup]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/anglerphish/ingestion/internal/attachments"
	"github.com/anglerphish/ingestion/internal/config"
	"github.com/anglerphish/ingestion/internal/dedup"
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

	// --- CLI Flags ---
	sinceFlag := flag.String("since", "168h", "Lookback duration (e.g. 168h for 1 week, 720h for 30 days)")
	dedupFlag := flag.Bool("dedup", true, "Skip messages whose Message-ID was already ingested")
	flag.Parse()

	sinceDuration, err := time.ParseDuration(*sinceFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid --since duration %q: %v\n", *sinceFlag, err)
		os.Exit(1)
	}
	since := time.Now().Add(-sinceDuration)

	slog.Info("starting historical backfill", "since", since.Format(time.DateOnly))

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

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
	defer rdb.Close()

	publisher := queue.NewPublisher(rdb, cfg.SubmissionsQueue)
	if err := publisher.Ping(ctx); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to Redis")

	// --- Dedup Filter ---
	// Backfill defaults dedup on even when the service has it off: the
	// window usually overlaps messages the scheduler already ingested.
	var filter ingest.DedupFilter
	if *dedupFlag {
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

	// --- Run Backfill ---
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
		Dedup:     filter,
		Publisher: publisher,
	})

	start := time.Now()
	created, err := orch.RunBackfill(ctx, since)
	if err != nil {
		slog.Error("backfill failed", "error", err)
		os.Exit(1)
	}

	// --- Summary ---
	slog.Info("backfill complete",
		"created", len(created),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	for _, sub := range created {
		slog.Info("submission created",
			"submission_id", sub.SubmissionID,
			"sender", sub.SenderEmail,
			"subject", sub.Subject,
			"received_at", sub.ReceivedAt.Format(time.RFC3339),
		)
	}
}
