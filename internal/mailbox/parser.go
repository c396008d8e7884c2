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

package mailbox

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	gomessage "github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	htmlcharset "golang.org/x/net/html/charset"

	"github.com/anglerphish/ingestion/internal/models"
)

func init() {
	// Reported phishing mail arrives in every charset imaginable; decode
	// anything the WHATWG label registry knows about.
	gomessage.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		return htmlcharset.NewReaderLabel(charset, input)
	}
}

// Parse converts one raw RFC 5322 message into a ParsedMessage. A message
// whose envelope cannot be read at all is a parse failure; defects inside
// individual MIME parts only skip those parts.
func Parse(raw []byte) (*models.ParsedMessage, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("read message envelope: %w", err)
	}
	defer mr.Close()

	pm := &models.ParsedMessage{
		Headers: make(map[string]string),
	}

	h := mr.Header
	if subject, err := h.Subject(); err == nil {
		pm.Subject = subject
	}
	if id, err := h.MessageID(); err == nil {
		pm.MessageID = id
	}
	if date, err := h.Date(); err == nil {
		pm.Date = date
	}
	if from, err := h.Text("From"); err == nil && from != "" {
		pm.From = from
	} else {
		pm.From = h.Get("From")
	}

	fields := h.Fields()
	for fields.Next() {
		if text, err := fields.Text(); err == nil {
			pm.Headers[fields.Key()] = text
		} else {
			pm.Headers[fields.Key()] = fields.Value()
		}
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A damaged part should not discard what was already read.
			break
		}

		switch ph := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := ph.ContentType()
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}
			switch {
			case strings.HasPrefix(contentType, "text/html"):
				pm.HTML = string(body)
			case strings.HasPrefix(contentType, "text/plain"):
				pm.Text = string(body)
			}

		case *mail.AttachmentHeader:
			filename, _ := ph.Filename()
			contentType, _, _ := ph.ContentType()
			content, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}
			pm.Attachments = append(pm.Attachments, models.RawAttachment{
				Filename:    filename,
				ContentType: contentType,
				Size:        int64(len(content)),
				Content:     content,
			})
		}
	}

	return pm, nil
}
