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

// Package ingest drives one polling pass over the reporting mailbox: fetch
// each unseen message, build and persist a submission for it, then render,
// acknowledge, and mark it seen on a best-effort basis. A single message's
// failure never aborts the pass; only a pass-level connection failure does.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/anglerphish/ingestion/internal/ack"
	"github.com/anglerphish/ingestion/internal/extract"
	"github.com/anglerphish/ingestion/internal/mailbox"
	"github.com/anglerphish/ingestion/internal/models"
)

// ErrPassInProgress is returned when a pass is triggered while the previous
// one is still running. Passes are never concurrent: overlapping passes
// could double-process messages whose flag-set the server has not yet
// acknowledged.
var ErrPassInProgress = errors.New("ingestion pass already in progress")

// Session is one open mailbox connection with the inbox selected
// read-write. Implemented by mailbox.Session.
type Session interface {
	SearchUnseen() ([]uint32, error)
	SearchSince(t time.Time) ([]uint32, error)
	FetchRaw(uid uint32) ([]byte, error)
	MarkSeen(uid uint32) error
	Close() error
}

// Dialer opens mailbox sessions. Each pass dials its own session and fully
// closes it; connections are never reused across passes.
type Dialer interface {
	Dial(ctx context.Context) (Session, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context) (Session, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context) (Session, error) { return f(ctx) }

// Store persists submissions. Implemented by store.Store.
type Store interface {
	Insert(ctx context.Context, sub *models.Submission) error
	SetRenderedImage(ctx context.Context, submissionID, path string) error
}

// Materializer writes attachments to durable storage. Implemented by
// attachments.Materializer.
type Materializer interface {
	Materialize(submissionID string, atts []models.RawAttachment) []models.Attachment
}

// Renderer screenshots email HTML. Implemented by render.Renderer.
type Renderer interface {
	Render(ctx context.Context, html, submissionID string) (string, error)
}

// Acknowledger confirms receipt to the reporter. Implemented by ack.Sender.
type Acknowledger interface {
	Send(ctx context.Context, fromHeader string) error
}

// DedupFilter skips messages whose Message-ID already produced a
// submission. Implemented by dedup.Filter.
type DedupFilter interface {
	IsNew(ctx context.Context, messageID string) (bool, error)
}

// Publisher emits submission-created events. Implemented by
// queue.Publisher.
type Publisher interface {
	PublishSubmissionCreated(ctx context.Context, sub *models.Submission) error
}

// Verifier checks an external service's connectivity and credentials.
type Verifier interface {
	Verify(ctx context.Context) error
}

// Config wires the orchestrator's collaborators. Dialer and Store are
// required; everything else is optional and skipped when nil.
type Config struct {
	Dialer       Dialer
	Store        Store
	Materializer Materializer
	Renderer     Renderer
	Acknowledger Acknowledger
	Dedup        DedupFilter
	Publisher    Publisher

	// MailboxCheck and TransportCheck back TestConnectivity.
	MailboxCheck   Verifier
	TransportCheck Verifier

	// Parse overrides the raw-message parser; defaults to mailbox.Parse.
	Parse func(raw []byte) (*models.ParsedMessage, error)
}

// Orchestrator runs ingestion passes.
type Orchestrator struct {
	cfg    Config
	parse  func(raw []byte) (*models.ParsedMessage, error)
	passMu sync.Mutex
}

// NewOrchestrator creates an ingestion orchestrator.
func NewOrchestrator(cfg Config) *Orchestrator {
	parse := cfg.Parse
	if parse == nil {
		parse = mailbox.Parse
	}
	return &Orchestrator{cfg: cfg, parse: parse}
}

// RunPass executes one ingestion pass over all currently unseen messages
// and returns the submissions it created, possibly none. Per-message
// failures are logged and skipped; only connection-level failures (and a
// concurrent pass) surface as errors. The caller's scheduler owns retry.
func (o *Orchestrator) RunPass(ctx context.Context) ([]models.Submission, error) {
	if !o.passMu.TryLock() {
		return nil, ErrPassInProgress
	}
	defer o.passMu.Unlock()

	session, err := o.cfg.Dialer.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("open mailbox: %w", err)
	}
	defer o.closeSession(session)

	uids, err := session.SearchUnseen()
	if err != nil {
		return nil, fmt.Errorf("search unseen messages: %w", err)
	}
	if len(uids) == 0 {
		slog.Info("no new messages")
		return nil, nil
	}
	slog.Info("found new messages", "count", len(uids))

	return o.processMessages(ctx, session, uids, passOptions{markSeen: true, acknowledge: true}), nil
}

// RunBackfill ingests every message dated on or after since, regardless of
// seen state. Backfilled messages are neither marked seen nor acknowledged;
// re-confirming months-old reports would only confuse their senders.
func (o *Orchestrator) RunBackfill(ctx context.Context, since time.Time) ([]models.Submission, error) {
	if !o.passMu.TryLock() {
		return nil, ErrPassInProgress
	}
	defer o.passMu.Unlock()

	session, err := o.cfg.Dialer.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("open mailbox: %w", err)
	}
	defer o.closeSession(session)

	uids, err := session.SearchSince(since)
	if err != nil {
		return nil, fmt.Errorf("search messages since %s: %w", since.Format(time.DateOnly), err)
	}
	if len(uids) == 0 {
		slog.Info("no messages to backfill")
		return nil, nil
	}
	slog.Info("backfilling messages", "count", len(uids), "since", since.Format(time.DateOnly))

	return o.processMessages(ctx, session, uids, passOptions{}), nil
}

type passOptions struct {
	markSeen    bool
	acknowledge bool
}

// processMessages walks the pass's messages strictly sequentially, in
// mailbox search order. Parallel processing would race on the uploads
// directory and on the connection-stateful IMAP session.
func (o *Orchestrator) processMessages(ctx context.Context, session Session, uids []uint32, opts passOptions) []models.Submission {
	var created []models.Submission
	for _, uid := range uids {
		if ctx.Err() != nil {
			slog.Warn("pass cancelled", "processed", len(created), "error", ctx.Err())
			return created
		}

		raw, err := session.FetchRaw(uid)
		if err != nil {
			slog.Error("failed to fetch message", "uid", uid, "error", err)
			continue
		}

		msg, err := o.parse(raw)
		if err != nil {
			slog.Error("failed to parse message", "uid", uid, "error", err)
			continue
		}

		if skip := o.isDuplicate(ctx, msg); skip {
			if opts.markSeen {
				o.markSeen(session, uid)
			}
			continue
		}

		sub, err := o.buildSubmission(ctx, msg)
		if err != nil {
			slog.Error("failed to build submission", "uid", uid, "error", err)
			continue
		}

		if opts.markSeen {
			o.markSeen(session, uid)
		}
		if opts.acknowledge {
			o.acknowledge(ctx, msg.From, sub.SubmissionID)
		}
		o.publish(ctx, sub)

		created = append(created, *sub)
	}
	return created
}

// buildSubmission assembles and persists a submission from one parsed
// message. Persistence is the only required step; extraction shortfalls and
// render failures degrade the record instead of failing it.
func (o *Orchestrator) buildSubmission(ctx context.Context, msg *models.ParsedMessage) (*models.Submission, error) {
	submissionID := uuid.New().String()

	content := msg.HTML
	if content == "" {
		content = msg.Text
	}

	subject := msg.Subject
	if subject == "" {
		subject = "No Subject"
	}

	receivedAt := msg.Date
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	var attachments []models.Attachment
	if o.cfg.Materializer != nil {
		attachments = o.cfg.Materializer.Materialize(submissionID, msg.Attachments)
	}

	sub := &models.Submission{
		SubmissionID: submissionID,
		SenderEmail:  senderAddress(msg.From),
		Subject:      subject,
		MessageID:    msg.MessageID,
		Content: models.EmailContent{
			HTML:    msg.HTML,
			Text:    msg.Text,
			Headers: msg.Headers,
		},
		ExtractedURLs: extract.URLs(content),
		Attachments:   attachments,
		Status:        models.StatusPending,
		ReceivedAt:    receivedAt,
		ProcessedAt:   time.Now().UTC(),
	}

	if err := o.cfg.Store.Insert(ctx, sub); err != nil {
		return nil, fmt.Errorf("persist submission: %w", err)
	}
	slog.Info("submission created",
		"submission_id", sub.SubmissionID,
		"sender", sub.SenderEmail,
		"urls", len(sub.ExtractedURLs),
		"attachments", len(sub.Attachments),
	)

	if msg.HTML != "" && o.cfg.Renderer != nil {
		o.render(ctx, sub, msg.HTML)
	}

	return sub, nil
}

// render screenshots the HTML body and records the image path. Failures
// leave RenderedImagePath empty and never fail the submission.
func (o *Orchestrator) render(ctx context.Context, sub *models.Submission, html string) {
	path, err := o.cfg.Renderer.Render(ctx, html, sub.SubmissionID)
	if err != nil {
		slog.Error("failed to render email",
			"submission_id", sub.SubmissionID,
			"error", err,
		)
		return
	}
	if err := o.cfg.Store.SetRenderedImage(ctx, sub.SubmissionID, path); err != nil {
		slog.Error("failed to record rendered image",
			"submission_id", sub.SubmissionID,
			"error", err,
		)
		return
	}
	sub.RenderedImagePath = path
}

// isDuplicate consults the optional Message-ID filter. Filter errors count
// as not-duplicate: ingesting twice beats dropping a report.
func (o *Orchestrator) isDuplicate(ctx context.Context, msg *models.ParsedMessage) bool {
	if o.cfg.Dedup == nil || msg.MessageID == "" {
		return false
	}
	isNew, err := o.cfg.Dedup.IsNew(ctx, msg.MessageID)
	if err != nil {
		slog.Warn("dedup check failed", "message_id", msg.MessageID, "error", err)
		return false
	}
	if !isNew {
		slog.Info("duplicate message skipped", "message_id", msg.MessageID)
		return true
	}
	return false
}

func (o *Orchestrator) markSeen(session Session, uid uint32) {
	if err := session.MarkSeen(uid); err != nil {
		// Non-fatal: the message may be re-ingested next pass, producing a
		// duplicate submission at worst.
		slog.Error("failed to mark message seen", "uid", uid, "error", err)
	}
}

func (o *Orchestrator) acknowledge(ctx context.Context, fromHeader, submissionID string) {
	if o.cfg.Acknowledger == nil {
		return
	}
	err := o.cfg.Acknowledger.Send(ctx, fromHeader)
	switch {
	case err == nil:
		slog.Info("acknowledgment sent", "submission_id", submissionID)
	case errors.Is(err, ack.ErrNoRecipient):
		slog.Warn("cannot send acknowledgment", "submission_id", submissionID, "error", err)
	default:
		slog.Error("failed to send acknowledgment", "submission_id", submissionID, "error", err)
	}
}

func (o *Orchestrator) publish(ctx context.Context, sub *models.Submission) {
	if o.cfg.Publisher == nil {
		return
	}
	if err := o.cfg.Publisher.PublishSubmissionCreated(ctx, sub); err != nil {
		slog.Error("failed to publish submission event",
			"submission_id", sub.SubmissionID,
			"error", err,
		)
	}
}

func (o *Orchestrator) closeSession(session Session) {
	if err := session.Close(); err != nil {
		slog.Warn("failed to close mailbox session", "error", err)
	}
}

// TestConnectivity verifies both mailbox and transport credentials without
// ingesting anything.
func (o *Orchestrator) TestConnectivity(ctx context.Context) error {
	if o.cfg.MailboxCheck != nil {
		if err := o.cfg.MailboxCheck.Verify(ctx); err != nil {
			return fmt.Errorf("mailbox connectivity: %w", err)
		}
	}
	if o.cfg.TransportCheck != nil {
		if err := o.cfg.TransportCheck.Verify(ctx); err != nil {
			return fmt.Errorf("transport connectivity: %w", err)
		}
	}
	return nil
}

// senderAddress normalizes the reporter's address from a raw From header:
// the first address-shaped substring, lowercased and trimmed, falling back
// to the trimmed header text when nothing address-shaped is present.
func senderAddress(fromHeader string) string {
	if addr, ok := ack.ExtractAddress(fromHeader); ok {
		return strings.ToLower(addr)
	}
	return strings.ToLower(strings.TrimSpace(fromHeader))
}
