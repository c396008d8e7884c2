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

package render

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"
)

// Config holds renderer settings.
type Config struct {
	// UploadsDir is where screenshots are written, alongside attachments.
	UploadsDir string
	// Timeout bounds one render, browser launch included.
	Timeout time.Duration
	// ViewportWidth/Height set the emulated browser viewport.
	ViewportWidth  int
	ViewportHeight int
}

// Renderer screenshots email HTML with headless Chrome.
type Renderer struct {
	cfg Config
}

// NewRenderer creates a renderer writing under cfg.UploadsDir.
func NewRenderer(cfg Config) *Renderer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ViewportWidth <= 0 {
		cfg.ViewportWidth = 800
	}
	if cfg.ViewportHeight <= 0 {
		cfg.ViewportHeight = 600
	}
	return &Renderer{cfg: cfg}
}

// Render sanitizes html, loads it in a fresh headless browser, and writes a
// full-page PNG named after the submission. It returns the public path of
// the stored image. A fresh browser per render keeps hostile markup from
// outliving its screenshot.
func (r *Renderer) Render(ctx context.Context, html, submissionID string) (string, error) {
	if err := os.MkdirAll(r.cfg.UploadsDir, 0o755); err != nil {
		return "", fmt.Errorf("create uploads directory: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	page := fmt.Sprintf(documentShell, Sanitize(html))
	dataURL := "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(page))

	var shot []byte
	err := chromedp.Run(browserCtx,
		chromedp.EmulateViewport(int64(r.cfg.ViewportWidth), int64(r.cfg.ViewportHeight)),
		chromedp.Navigate(dataURL),
		chromedp.FullScreenshot(&shot, 100),
	)
	if err != nil {
		return "", fmt.Errorf("render page: %w", err)
	}

	filename := fmt.Sprintf("email_%s.png", submissionID)
	path := filepath.Join(r.cfg.UploadsDir, filename)
	if err := os.WriteFile(path, shot, 0o644); err != nil {
		return "", fmt.Errorf("write screenshot: %w", err)
	}

	slog.Info("email rendered to PNG",
		"submission_id", submissionID,
		"filename", filename,
	)
	return "/uploads/" + filename, nil
}
