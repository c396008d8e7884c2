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

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anglerphish/ingestion/internal/ingest"
	"github.com/anglerphish/ingestion/internal/models"
)

type fakeService struct {
	created     []models.Submission
	passErr     error
	connErr     error
	passCalls   int
	lastHadDead bool
}

func (s *fakeService) RunPass(ctx context.Context) ([]models.Submission, error) {
	s.passCalls++
	s.lastHadDead = ctx.Done() != nil
	if s.passErr != nil {
		return nil, s.passErr
	}
	return s.created, nil
}

func (s *fakeService) TestConnectivity(context.Context) error { return s.connErr }

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response body not JSON: %v", err)
	}
	return body
}

func TestServeRunPass(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		service     *fakeService
		wantStatus  int
		wantCreated float64
	}{
		{
			name:   "successful pass",
			method: http.MethodPost,
			service: &fakeService{created: []models.Submission{
				{SubmissionID: "aaa"}, {SubmissionID: "bbb"},
			}},
			wantStatus:  http.StatusOK,
			wantCreated: 2,
		},
		{
			name:       "empty pass",
			method:     http.MethodPost,
			service:    &fakeService{},
			wantStatus: http.StatusOK,
		},
		{
			name:       "pass already running",
			method:     http.MethodPost,
			service:    &fakeService{passErr: ingest.ErrPassInProgress},
			wantStatus: http.StatusConflict,
		},
		{
			name:       "pass failure",
			method:     http.MethodPost,
			service:    &fakeService{passErr: errors.New("open mailbox: connection refused")},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "wrong method",
			method:     http.MethodGet,
			service:    &fakeService{},
			wantStatus: http.StatusMethodNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHandler(tt.service, 0)
			req := httptest.NewRequest(tt.method, "/ingest/run", nil)
			rec := httptest.NewRecorder()

			handler.ServeRunPass(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus == http.StatusOK {
				body := decodeBody(t, rec)
				if body["created"] != tt.wantCreated {
					t.Errorf("created = %v, want %v", body["created"], tt.wantCreated)
				}
			}
		})
	}
}

func TestServeRunPassAppliesTimeout(t *testing.T) {
	service := &fakeService{}
	handler := NewHandler(service, 50)

	req := httptest.NewRequest(http.MethodPost, "/ingest/run", nil)
	rec := httptest.NewRecorder()
	handler.ServeRunPass(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !service.lastHadDead {
		t.Error("pass context carries no deadline")
	}
}

func TestServeConnectivity(t *testing.T) {
	tests := []struct {
		name       string
		connErr    error
		wantStatus int
	}{
		{name: "healthy", wantStatus: http.StatusOK},
		{name: "unreachable", connErr: errors.New("dial tcp: i/o timeout"), wantStatus: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHandler(&fakeService{connErr: tt.connErr}, 0)
			req := httptest.NewRequest(http.MethodPost, "/connectivity/test", nil)
			rec := httptest.NewRecorder()

			handler.ServeConnectivity(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestServeHealth(t *testing.T) {
	healthy := HealthCheck{Name: "database", Ping: func(context.Context) error { return nil }}
	broken := HealthCheck{Name: "redis", Ping: func(context.Context) error {
		return errors.New("connection refused")
	}}

	t.Run("all dependencies up", func(t *testing.T) {
		handler := NewHandler(&fakeService{}, 0, healthy)
		rec := httptest.NewRecorder()
		handler.ServeHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("dependency down", func(t *testing.T) {
		handler := NewHandler(&fakeService{}, 0, healthy, broken)
		rec := httptest.NewRecorder()
		handler.ServeHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503", rec.Code)
		}
		body := decodeBody(t, rec)
		if body["failed"] != "redis" {
			t.Errorf("failed = %v, want redis", body["failed"])
		}
	})
}
