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

// Package attachments writes in-memory email attachments to durable storage
// and records their metadata. A failed write skips that attachment only: an
// email with one corrupt attachment must still be reviewable.
package attachments

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/anglerphish/ingestion/internal/models"
)

// Materializer persists raw attachments under a single uploads directory.
type Materializer struct {
	dir string
}

// NewMaterializer creates a materializer rooted at dir. The directory is
// created lazily on the first materialize call.
func NewMaterializer(dir string) *Materializer {
	return &Materializer{dir: dir}
}

// Dir returns the uploads directory the materializer writes into.
func (m *Materializer) Dir() string {
	return m.dir
}

// Materialize writes each attachment to disk under a stored name prefixed
// with the submission ID and returns the metadata records for the writes
// that succeeded. Write failures are logged and skipped; they never abort
// the remaining attachments or the submission itself.
func (m *Materializer) Materialize(submissionID string, atts []models.RawAttachment) []models.Attachment {
	if len(atts) == 0 {
		return nil
	}

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		slog.Error("failed to create uploads directory",
			"dir", m.dir,
			"submission_id", submissionID,
			"error", err,
		)
		return nil
	}

	var records []models.Attachment
	for i, att := range atts {
		original := att.Filename
		if original == "" {
			original = fmt.Sprintf("part-%d", i+1)
		}

		stored, path, err := m.reserveName(submissionID, original)
		if err != nil {
			slog.Error("failed to reserve attachment name",
				"submission_id", submissionID,
				"original_name", original,
				"error", err,
			)
			continue
		}

		if err := os.WriteFile(path, att.Content, 0o644); err != nil {
			slog.Error("failed to write attachment",
				"submission_id", submissionID,
				"original_name", original,
				"error", err,
			)
			continue
		}

		records = append(records, models.Attachment{
			Filename:     stored,
			OriginalName: original,
			MIMEType:     att.ContentType,
			Size:         att.Size,
			Path:         path,
		})

		slog.Info("saved attachment",
			"submission_id", submissionID,
			"filename", stored,
			"size", att.Size,
		)
	}

	return records
}

// reserveName derives a stored filename that does not collide with any file
// already on disk. Re-materialising the same submission must produce new
// files, never silently overwrite earlier ones.
func (m *Materializer) reserveName(submissionID, original string) (string, string, error) {
	// filepath.Base strips any directory components a hostile sender may
	// have embedded in the filename.
	base := filepath.Base(original)
	if base == "." || base == string(filepath.Separator) {
		base = "attachment"
	}

	stored := fmt.Sprintf("%s_%s", submissionID, base)
	path := filepath.Join(m.dir, stored)
	for n := 1; ; n++ {
		_, err := os.Stat(path)
		if os.IsNotExist(err) {
			return stored, path, nil
		}
		if err != nil {
			return "", "", err
		}
		stored = fmt.Sprintf("%s_%d_%s", submissionID, n, base)
		path = filepath.Join(m.dir, stored)
	}
}
