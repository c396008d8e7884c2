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

package ack

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestExtractAddress(t *testing.T) {
	tests := []struct {
		text   string
		want   string
		wantOK bool
	}{
		{"Bob Reporter <bob@corp.example>", "bob@corp.example", true},
		{"alice@corp.example", "alice@corp.example", true},
		{"\"Weird, Name\" <weird.name+tag@sub.corp.example>", "weird.name+tag@sub.corp.example", true},
		{"no address here", "", false},
		{"", "", false},
		{"half@way", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := ExtractAddress(tt.text)
			if ok != tt.wantOK {
				t.Fatalf("ExtractAddress(%q) ok = %v, want %v", tt.text, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("ExtractAddress(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestSendWithoutRecipientReturnsErrNoRecipient(t *testing.T) {
	s := NewSender(Config{Host: "smtp.invalid", Port: 587, Username: "svc@corp.example"})

	err := s.Send(context.Background(), "Totally Anonymous")
	if !errors.Is(err, ErrNoRecipient) {
		t.Fatalf("Send with no address = %v, want ErrNoRecipient", err)
	}
}

func TestComposeProducesHTMLMessage(t *testing.T) {
	s := NewSender(Config{Username: "security@corp.example"})

	buf, err := s.compose("bob@corp.example")
	if err != nil {
		t.Fatalf("compose: %v", err)
	}

	msg := buf.String()
	for _, want := range []string{
		"To: <bob@corp.example>",
		"From: <security@corp.example>",
		"Subject: " + ackSubject,
		"Thank you for your submission",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("composed message missing %q:\n%s", want, msg)
		}
	}
	if !strings.Contains(strings.ToLower(msg), "text/html") {
		t.Errorf("composed message is not text/html:\n%s", msg)
	}
}
