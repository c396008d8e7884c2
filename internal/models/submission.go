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

// Package models defines the data structures shared across the ingestion service.
package models

import (
	"fmt"
	"time"
)

// Status tracks the review workflow state of a submission.
type Status string

const (
	// StatusPending marks a submission awaiting administrator review.
	StatusPending Status = "pending"
	// StatusDone marks a submission that has been reviewed and scored.
	StatusDone Status = "done"
)

// ValidateScore checks that a review score is within the accepted range.
func ValidateScore(score int) error {
	if score < 0 || score > 100 {
		return fmt.Errorf("score %d out of range [0, 100]", score)
	}
	return nil
}

// EmailContent holds both body renderings of a reported email so the review
// UI can prefer HTML and fall back to plain text.
type EmailContent struct {
	HTML    string            `json:"html,omitempty"`
	Text    string            `json:"text,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Attachment records one materialised email attachment on disk.
type Attachment struct {
	// Filename is the server-generated stored name, unique per file.
	Filename string `json:"filename"`
	// OriginalName is the filename as it appeared in the email.
	OriginalName string `json:"original_name"`
	MIMEType     string `json:"mimetype"`
	Size         int64  `json:"size"`
	// Path is where the attachment bytes were written.
	Path string `json:"path"`
}

// Submission is the durable record of one reported email.
//
// SubmissionID is generated at ingestion time and is the external reference
// used in URLs and stored filenames. Score is set if and only if Status is
// StatusDone; the scoring write path enforces that atomically.
type Submission struct {
	ID           int64        `json:"-"`
	SubmissionID string       `json:"submission_id"`
	SenderEmail  string       `json:"sender_email"`
	Subject      string       `json:"subject"`
	MessageID    string       `json:"message_id"`
	Content      EmailContent `json:"email_content"`
	// ExtractedURLs is a duplicate-free set of absolute http(s) URLs found
	// in the message body; order carries no meaning.
	ExtractedURLs []string     `json:"extracted_urls"`
	Attachments   []Attachment `json:"attachments"`
	// RenderedImagePath points at a screenshot of the HTML body. Empty when
	// the message had no HTML body or rendering failed.
	RenderedImagePath string     `json:"rendered_image_path,omitempty"`
	Status            Status     `json:"status"`
	Score             *int       `json:"score,omitempty"`
	ScoredBy          string     `json:"scored_by,omitempty"`
	ScoredAt          *time.Time `json:"scored_at,omitempty"`
	Notes             string     `json:"notes,omitempty"`
	ReceivedAt        time.Time  `json:"received_at"`
	ProcessedAt       time.Time  `json:"processed_at"`
}

// RawAttachment is an in-memory attachment extracted during MIME parsing,
// before it has been written to disk.
type RawAttachment struct {
	Filename    string
	ContentType string
	Size        int64
	Content     []byte
}

// ParsedMessage is the transient structured form of one fetched email.
// It is produced by the mailbox parser, consumed by the submission builder,
// and never persisted.
type ParsedMessage struct {
	// From is the decoded From header text, which may include a display name.
	From      string
	Subject   string
	MessageID string
	HTML      string
	Text      string
	Headers   map[string]string
	// Date is the zero time when the message carried no Date header.
	Date        time.Time
	Attachments []RawAttachment
}
