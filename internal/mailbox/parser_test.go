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
	"strings"
	"testing"
	"time"
)

const multipartFixture = "From: Bob Reporter <bob@corp.example>\r\n" +
	"To: phishing@corp.example\r\n" +
	"Subject: FW: urgent account verification\r\n" +
	"Message-ID: <abc-123@mail.corp.example>\r\n" +
	"Date: Mon, 13 Jul 2026 10:30:00 +0000\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"outer\"\r\n" +
	"\r\n" +
	"--outer\r\n" +
	"Content-Type: multipart/alternative; boundary=\"inner\"\r\n" +
	"\r\n" +
	"--inner\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Please verify at http://phish.example/login\r\n" +
	"--inner\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<html><body><a href=\"http://phish.example/login\">verify</a></body></html>\r\n" +
	"--inner--\r\n" +
	"--outer\r\n" +
	"Content-Type: application/pdf\r\n" +
	"Content-Disposition: attachment; filename=\"statement.pdf\"\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"JVBERi0xLjQ=\r\n" +
	"--outer--\r\n"

func TestParseMultipartMessage(t *testing.T) {
	pm, err := Parse([]byte(multipartFixture))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if !strings.Contains(pm.From, "bob@corp.example") {
		t.Errorf("From = %q, want it to contain bob@corp.example", pm.From)
	}
	if pm.Subject != "FW: urgent account verification" {
		t.Errorf("Subject = %q", pm.Subject)
	}
	if pm.MessageID != "abc-123@mail.corp.example" {
		t.Errorf("MessageID = %q", pm.MessageID)
	}

	wantDate := time.Date(2026, 7, 13, 10, 30, 0, 0, time.UTC)
	if !pm.Date.Equal(wantDate) {
		t.Errorf("Date = %v, want %v", pm.Date, wantDate)
	}

	if !strings.Contains(pm.Text, "http://phish.example/login") {
		t.Errorf("Text body missing URL: %q", pm.Text)
	}
	if !strings.Contains(pm.HTML, `<a href="http://phish.example/login">`) {
		t.Errorf("HTML body missing anchor: %q", pm.HTML)
	}

	if len(pm.Attachments) != 1 {
		t.Fatalf("got %d attachments, want 1", len(pm.Attachments))
	}
	att := pm.Attachments[0]
	if att.Filename != "statement.pdf" {
		t.Errorf("attachment filename = %q", att.Filename)
	}
	if att.ContentType != "application/pdf" {
		t.Errorf("attachment content type = %q", att.ContentType)
	}
	if string(att.Content) != "%PDF-1.4" {
		t.Errorf("attachment content = %q, want decoded base64", att.Content)
	}
	if att.Size != int64(len(att.Content)) {
		t.Errorf("attachment size = %d, want %d", att.Size, len(att.Content))
	}

	if got := pm.Headers["Subject"]; got != "FW: urgent account verification" {
		t.Errorf("Headers[Subject] = %q", got)
	}
}

func TestParsePlainTextMessage(t *testing.T) {
	raw := "From: alice@corp.example\r\n" +
		"Subject: suspicious mail\r\n" +
		"Content-Type: text/plain; charset=us-ascii\r\n" +
		"\r\n" +
		"see https://bad.example/now\r\n"

	pm, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if pm.HTML != "" {
		t.Errorf("HTML = %q, want empty", pm.HTML)
	}
	if !strings.Contains(pm.Text, "https://bad.example/now") {
		t.Errorf("Text = %q", pm.Text)
	}
	if !pm.Date.IsZero() {
		t.Errorf("Date = %v, want zero time for missing Date header", pm.Date)
	}
}

func TestParseGarbageFails(t *testing.T) {
	if _, err := Parse([]byte("this is not an rfc 5322 message")); err == nil {
		t.Fatal("Parse accepted garbage input")
	}
}
