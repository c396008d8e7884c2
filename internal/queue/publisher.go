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

// Package queue publishes submission-created events to a Redis list so the
// review dashboard backend can surface new reports without polling the
// database. Publishing is best-effort; ingestion never depends on it.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/anglerphish/ingestion/internal/models"
)

// Publisher sends submission events to a Redis list.
type Publisher struct {
	rdb       *redis.Client
	queueName string
}

// NewPublisher creates a publisher targeting the specified queue.
func NewPublisher(rdb *redis.Client, queueName string) *Publisher {
	return &Publisher{
		rdb:       rdb,
		queueName: queueName,
	}
}

// submissionEvent is the wire shape consumers read off the queue.
type submissionEvent struct {
	EventID      string    `json:"event_id"`
	Event        string    `json:"event"`
	SubmissionID string    `json:"submission_id"`
	SenderEmail  string    `json:"sender_email,omitempty"`
	Subject      string    `json:"subject"`
	URLCount     int       `json:"url_count"`
	Attachments  int       `json:"attachments"`
	ReceivedAt   time.Time `json:"received_at"`
	EmittedAt    time.Time `json:"emitted_at"`
}

// PublishSubmissionCreated emits one event for a newly persisted submission.
func (p *Publisher) PublishSubmissionCreated(ctx context.Context, sub *models.Submission) error {
	event := submissionEvent{
		EventID:      uuid.New().String(),
		Event:        "submission.created",
		SubmissionID: sub.SubmissionID,
		SenderEmail:  sub.SenderEmail,
		Subject:      sub.Subject,
		URLCount:     len(sub.ExtractedURLs),
		Attachments:  len(sub.Attachments),
		ReceivedAt:   sub.ReceivedAt,
		EmittedAt:    time.Now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal submission event: %w", err)
	}

	if err := p.rdb.LPush(ctx, p.queueName, string(payload)).Err(); err != nil {
		return fmt.Errorf("redis LPUSH: %w", err)
	}

	slog.Info("published submission event",
		"event_id", event.EventID,
		"submission_id", sub.SubmissionID,
		"queue", p.queueName,
	)

	return nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}
