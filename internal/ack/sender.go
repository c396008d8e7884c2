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

// Package ack sends a fixed confirmation message to people who report a
// suspicious email. Acknowledgment is strictly best-effort: a transport
// failure is logged by the caller and never blocks ingestion.
package ack

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// addressPattern matches the first address-shaped substring in a raw From
// header, which may carry a display name around the address.
var addressPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// ExtractAddress returns the first email address found in text, or false
// when no address-shaped substring is present.
func ExtractAddress(text string) (string, bool) {
	m := addressPattern.FindString(text)
	if m == "" {
		return "", false
	}
	return m, true
}

const (
	ackSubject = "AnglerPhish - Email Submission Received"

	ackBody = `<h2>Thank you for your submission!</h2>
<p>We have received your suspicious email submission and it has been forwarded to our security team for review.</p>
<p>Your contribution helps keep our organization safe from phishing attacks.</p>
<p>You will receive points once your submission has been reviewed and scored.</p>
<br>
<p>Best regards,<br>The Security Team</p>`
)

// Config holds the SMTP transport settings for acknowledgments.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	// From is the sender address on outgoing acknowledgments; defaults to
	// Username when empty.
	From string
	// SSL selects implicit TLS (usually port 465); when false the client
	// dials plaintext and upgrades with STARTTLS where offered.
	SSL bool
}

// Sender delivers acknowledgment messages over SMTP.
type Sender struct {
	cfg Config
}

// NewSender creates an acknowledgment sender.
func NewSender(cfg Config) *Sender {
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	return &Sender{cfg: cfg}
}

// Send extracts a recipient address from the raw From header of a reported
// email and delivers the fixed acknowledgment template to it. A header with
// no address-shaped substring is skipped, reported as ErrNoRecipient so the
// caller can log a warning rather than an error.
func (s *Sender) Send(ctx context.Context, fromHeader string) error {
	recipient, ok := ExtractAddress(fromHeader)
	if !ok {
		return fmt.Errorf("%w in %q", ErrNoRecipient, strings.TrimSpace(fromHeader))
	}

	msg, err := s.compose(recipient)
	if err != nil {
		return fmt.Errorf("compose acknowledgment: %w", err)
	}

	if err := s.submit(ctx, recipient, msg); err != nil {
		return fmt.Errorf("send acknowledgment to %s: %w", recipient, err)
	}
	return nil
}

// ErrNoRecipient marks a From header without an extractable address.
var ErrNoRecipient = fmt.Errorf("no recipient address")

// compose builds the acknowledgment as a single-part HTML message.
func (s *Sender) compose(recipient string) (*bytes.Buffer, error) {
	var buf bytes.Buffer

	var h mail.Header
	h.SetDate(time.Now())
	h.SetAddressList("From", []*mail.Address{{Address: s.cfg.From}})
	h.SetAddressList("To", []*mail.Address{{Address: recipient}})
	h.SetSubject(ackSubject)
	h.SetContentType("text/html", map[string]string{"charset": "utf-8"})

	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(w, ackBody); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}

func (s *Sender) submit(_ context.Context, recipient string, msg io.Reader) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	auth := sasl.NewPlainClient("", s.cfg.Username, s.cfg.Password)

	if !s.cfg.SSL {
		return smtp.SendMail(addr, auth, s.cfg.From, []string{recipient}, msg)
	}

	c, err := smtp.DialTLS(addr, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Auth(auth); err != nil {
		return err
	}
	return c.SendMail(s.cfg.From, []string{recipient}, msg)
}

// Verify checks that the SMTP server accepts a connection and the
// configured credentials, without sending anything.
func (s *Sender) Verify(_ context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	var (
		c   *smtp.Client
		err error
	)
	if s.cfg.SSL {
		c, err = smtp.DialTLS(addr, nil)
	} else {
		c, err = smtp.DialStartTLS(addr, nil)
	}
	if err != nil {
		return fmt.Errorf("connect to SMTP %s: %w", addr, err)
	}
	defer c.Close()

	if err := c.Auth(sasl.NewPlainClient("", s.cfg.Username, s.cfg.Password)); err != nil {
		return fmt.Errorf("SMTP authentication for %s: %w", s.cfg.Username, err)
	}
	return c.Quit()
}
