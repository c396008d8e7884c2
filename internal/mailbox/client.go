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

// Package mailbox connects to the reporting inbox over IMAP, finds unseen
// messages, and parses them into structured form. Each ingestion pass opens
// and fully closes its own session; IMAP connections are stateful and never
// shared or pooled.
package mailbox

import (
	"context"
	"fmt"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-sasl"
	"golang.org/x/oauth2/clientcredentials"
)

// Config holds the IMAP connection settings for the reporting mailbox.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	// TLS selects implicit TLS (usually port 993); when false the client
	// dials plaintext and upgrades with STARTTLS.
	TLS bool

	// AuthType is "password" (LOGIN) or "oauth2" (OAUTHBEARER with a
	// client-credentials token).
	AuthType     string
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

// Client dials and authenticates IMAP sessions against one mailbox.
type Client struct {
	cfg    Config
	tokens *clientcredentials.Config
}

// NewClient creates an IMAP client for the configured mailbox.
func NewClient(cfg Config) *Client {
	c := &Client{cfg: cfg}
	if cfg.AuthType == "oauth2" {
		c.tokens = &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
	}
	return c
}

// connect dials the server and authenticates. The caller owns the returned
// client and must Logout it.
func (c *Client) connect(ctx context.Context) (*imapclient.Client, error) {
	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)

	var (
		ic  *imapclient.Client
		err error
	)
	if c.cfg.TLS {
		ic, err = imapclient.DialTLS(addr, nil)
	} else {
		ic, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to IMAP %s: %w", addr, err)
	}

	if err := c.authenticate(ctx, ic); err != nil {
		_ = ic.Logout().Wait()
		return nil, err
	}

	return ic, nil
}

func (c *Client) authenticate(ctx context.Context, ic *imapclient.Client) error {
	if c.tokens != nil {
		tok, err := c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("fetch OAuth2 token: %w", err)
		}
		bearer := sasl.NewOAuthBearerClient(&sasl.OAuthBearerOptions{
			Username: c.cfg.Username,
			Token:    tok.AccessToken,
			Host:     c.cfg.Host,
			Port:     c.cfg.Port,
		})
		if err := ic.Authenticate(bearer); err != nil {
			return fmt.Errorf("OAUTHBEARER authentication for %s: %w", c.cfg.Username, err)
		}
		return nil
	}

	if err := ic.Login(c.cfg.Username, c.cfg.Password).Wait(); err != nil {
		return fmt.Errorf("IMAP login for %s: %w", c.cfg.Username, err)
	}
	return nil
}

// Dial opens an authenticated session with INBOX selected read-write so
// message flags can be updated.
func (c *Client) Dial(ctx context.Context) (*Session, error) {
	ic, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := ic.Select("INBOX", nil).Wait(); err != nil {
		_ = ic.Logout().Wait()
		return nil, fmt.Errorf("select INBOX: %w", err)
	}

	return &Session{ic: ic}, nil
}

// Verify checks that the mailbox accepts a connection and the configured
// credentials, without touching any messages.
func (c *Client) Verify(ctx context.Context) error {
	ic, err := c.connect(ctx)
	if err != nil {
		return err
	}
	return ic.Logout().Wait()
}

// Session is one established IMAP connection with INBOX selected.
type Session struct {
	ic *imapclient.Client
}

// SearchUnseen returns the UIDs of messages not yet flagged as seen.
func (s *Session) SearchUnseen() ([]uint32, error) {
	criteria := &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}
	data, err := s.ic.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("search unseen: %w", err)
	}
	return toUint32(data.AllUIDs()), nil
}

// SearchSince returns the UIDs of all messages dated on or after t,
// regardless of seen state. Used by the historical backfill command.
func (s *Session) SearchSince(t time.Time) ([]uint32, error) {
	criteria := &imap.SearchCriteria{
		Since: t,
	}
	data, err := s.ic.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("search since %s: %w", t.Format(time.DateOnly), err)
	}
	return toUint32(data.AllUIDs()), nil
}

// FetchRaw streams the full raw RFC 5322 message for the given UID. The
// fetch uses BODY.PEEK so the server does not set \Seen implicitly; seen
// state is managed explicitly via MarkSeen.
func (s *Session) FetchRaw(uid uint32) ([]byte, error) {
	uidSet := imap.UIDSetNum(imap.UID(uid))

	section := &imap.FetchItemBodySection{Peek: true}
	opts := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	}

	cmd := s.ic.Fetch(uidSet, opts)
	defer cmd.Close()

	msg := cmd.Next()
	if msg == nil {
		return nil, fmt.Errorf("message UID %d not found", uid)
	}

	buf, err := msg.Collect()
	if err != nil {
		return nil, fmt.Errorf("collect message UID %d: %w", uid, err)
	}

	raw := buf.FindBodySection(section)
	if raw == nil {
		return nil, fmt.Errorf("message UID %d has no body section", uid)
	}

	if err := cmd.Close(); err != nil {
		return nil, fmt.Errorf("fetch UID %d: %w", uid, err)
	}
	return raw, nil
}

// MarkSeen adds the \Seen flag to the given message on the server.
func (s *Session) MarkSeen(uid uint32) error {
	uidSet := imap.UIDSetNum(imap.UID(uid))
	cmd := s.ic.Store(uidSet, &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}, nil)
	return cmd.Close()
}

// Close logs the session out.
func (s *Session) Close() error {
	return s.ic.Logout().Wait()
}

func toUint32(uids []imap.UID) []uint32 {
	out := make([]uint32, 0, len(uids))
	for _, uid := range uids {
		out = append(out, uint32(uid))
	}
	return out
}
