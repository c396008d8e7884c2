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

// Package store provides a Postgres-backed store for submission records.
// Each reported email maps to exactly one row; all writes are single-record
// inserts or updates, so no cross-submission transactions are needed.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anglerphish/ingestion/internal/models"
)

// Store provides CRUD operations for submissions in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a submission store backed by the given Postgres pool.
// It ensures the submissions table exists on creation.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure submission schema: %w", err)
	}
	slog.Info("submission store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS submissions (
			id                  BIGSERIAL PRIMARY KEY,
			submission_id       TEXT NOT NULL UNIQUE,
			sender_email        TEXT DEFAULT '',
			subject             TEXT NOT NULL,
			message_id          TEXT DEFAULT '',
			content_html        TEXT DEFAULT '',
			content_text        TEXT DEFAULT '',
			headers             JSONB DEFAULT '{}',
			extracted_urls      JSONB DEFAULT '[]',
			attachments         JSONB DEFAULT '[]',
			rendered_image_path TEXT DEFAULT '',
			status              TEXT NOT NULL DEFAULT 'pending',
			score               INT,
			scored_by           TEXT DEFAULT '',
			scored_at           TIMESTAMPTZ,
			notes               TEXT DEFAULT '',
			received_at         TIMESTAMPTZ NOT NULL,
			processed_at        TIMESTAMPTZ NOT NULL,
			created_at          TIMESTAMPTZ DEFAULT NOW(),
			CONSTRAINT submissions_score_range
				CHECK (score IS NULL OR (score >= 0 AND score <= 100)),
			CONSTRAINT submissions_score_status
				CHECK ((status = 'done') = (score IS NOT NULL))
		);
		CREATE INDEX IF NOT EXISTS idx_submissions_status_received
			ON submissions(status, received_at DESC);
		CREATE INDEX IF NOT EXISTS idx_submissions_sender
			ON submissions(sender_email);
	`)
	return err
}

// Insert persists a new submission and fills in its database ID.
func (s *Store) Insert(ctx context.Context, sub *models.Submission) error {
	headers, err := json.Marshal(orEmptyMap(sub.Content.Headers))
	if err != nil {
		return fmt.Errorf("marshal headers: %w", err)
	}
	urls, err := json.Marshal(orEmptySlice(sub.ExtractedURLs))
	if err != nil {
		return fmt.Errorf("marshal extracted urls: %w", err)
	}
	atts, err := json.Marshal(orEmptyAttachments(sub.Attachments))
	if err != nil {
		return fmt.Errorf("marshal attachments: %w", err)
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO submissions
			(submission_id, sender_email, subject, message_id,
			 content_html, content_text, headers, extracted_urls, attachments,
			 status, received_at, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8::jsonb, $9::jsonb, $10, $11, $12)
		RETURNING id
	`,
		sub.SubmissionID, sub.SenderEmail, sub.Subject, sub.MessageID,
		sub.Content.HTML, sub.Content.Text, string(headers), string(urls), string(atts),
		string(sub.Status), sub.ReceivedAt, sub.ProcessedAt,
	)
	if err := row.Scan(&sub.ID); err != nil {
		return fmt.Errorf("insert submission %s: %w", sub.SubmissionID, err)
	}
	return nil
}

// SetRenderedImage records the screenshot path for a submission in a second
// write shortly after creation.
func (s *Store) SetRenderedImage(ctx context.Context, submissionID, path string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE submissions
		SET rendered_image_path = $1
		WHERE submission_id = $2
	`, path, submissionID)
	if err != nil {
		return fmt.Errorf("set rendered image for %s: %w", submissionID, err)
	}
	return nil
}

// Score records the administrator's review in one atomic update: score,
// reviewer, notes, scored_at, and the transition to done. The score/status
// invariant is also enforced by a table constraint.
func (s *Store) Score(ctx context.Context, submissionID string, score int, scoredBy, notes string) error {
	if err := models.ValidateScore(score); err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE submissions
		SET status = $1, score = $2, scored_by = $3, scored_at = NOW(), notes = $4
		WHERE submission_id = $5
	`, string(models.StatusDone), score, scoredBy, notes, submissionID)
	if err != nil {
		return fmt.Errorf("score submission %s: %w", submissionID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("submission %s not found", submissionID)
	}
	return nil
}

// GetBySubmissionID retrieves a single submission, or nil if none exists.
func (s *Store) GetBySubmissionID(ctx context.Context, submissionID string) (*models.Submission, error) {
	row := s.pool.QueryRow(ctx, selectColumns+`
		FROM submissions
		WHERE submission_id = $1
	`, submissionID)
	return scanSubmission(row)
}

// ListByStatus returns submissions in the given status, newest first.
// This mirrors the review dashboard's primary query.
func (s *Store) ListByStatus(ctx context.Context, status models.Status, limit int) ([]models.Submission, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, selectColumns+`
		FROM submissions
		WHERE status = $1
		ORDER BY received_at DESC
		LIMIT $2
	`, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []models.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

const selectColumns = `
	SELECT id, submission_id, sender_email, subject, message_id,
	       content_html, content_text, headers, extracted_urls, attachments,
	       rendered_image_path, status, score, scored_by, scored_at, notes,
	       received_at, processed_at
`

func scanSubmission(row pgx.Row) (*models.Submission, error) {
	var (
		sub      models.Submission
		status   string
		headers  []byte
		urls     []byte
		atts     []byte
		scoredAt *time.Time
	)
	err := row.Scan(
		&sub.ID, &sub.SubmissionID, &sub.SenderEmail, &sub.Subject, &sub.MessageID,
		&sub.Content.HTML, &sub.Content.Text, &headers, &urls, &atts,
		&sub.RenderedImagePath, &status, &sub.Score, &sub.ScoredBy, &scoredAt, &sub.Notes,
		&sub.ReceivedAt, &sub.ProcessedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	sub.Status = models.Status(status)
	sub.ScoredAt = scoredAt
	if err := json.Unmarshal(headers, &sub.Content.Headers); err != nil {
		return nil, fmt.Errorf("unmarshal headers for %s: %w", sub.SubmissionID, err)
	}
	if err := json.Unmarshal(urls, &sub.ExtractedURLs); err != nil {
		return nil, fmt.Errorf("unmarshal extracted urls for %s: %w", sub.SubmissionID, err)
	}
	if err := json.Unmarshal(atts, &sub.Attachments); err != nil {
		return nil, fmt.Errorf("unmarshal attachments for %s: %w", sub.SubmissionID, err)
	}
	return &sub, nil
}

func orEmptyMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func orEmptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func orEmptyAttachments(a []models.Attachment) []models.Attachment {
	if a == nil {
		return []models.Attachment{}
	}
	return a
}
