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

// Package httpapi exposes the service's operational endpoints: triggering
// an ingestion pass on demand, verifying mail connectivity, and health
// checks. The scheduler drives routine ingestion; these endpoints exist
// for operators and for the review UI's "check now" button.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/anglerphish/ingestion/internal/ingest"
	"github.com/anglerphish/ingestion/internal/models"
)

// IngestionService runs passes and connectivity checks. Implemented by
// ingest.Orchestrator.
type IngestionService interface {
	RunPass(ctx context.Context) ([]models.Submission, error)
	TestConnectivity(ctx context.Context) error
}

// HealthCheck is one named dependency probe for /health.
type HealthCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

// Handler serves the operational API.
type Handler struct {
	service     IngestionService
	passTimeout time.Duration
	checks      []HealthCheck
}

// NewHandler creates an API handler. passTimeout bounds HTTP-triggered
// passes; zero means no bound.
func NewHandler(service IngestionService, passTimeout time.Duration, checks ...HealthCheck) *Handler {
	return &Handler{service: service, passTimeout: passTimeout, checks: checks}
}

// ServeRunPass triggers one ingestion pass and reports how many
// submissions it created. A pass already in flight yields 409; the caller
// can retry once the running pass finishes.
func (h *Handler) ServeRunPass(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	ctx := r.Context()
	if h.passTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.passTimeout)
		defer cancel()
	}

	created, err := h.service.RunPass(ctx)
	switch {
	case errors.Is(err, ingest.ErrPassInProgress):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	case err != nil:
		slog.Error("manual ingestion pass failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	ids := make([]string, 0, len(created))
	for _, sub := range created {
		ids = append(ids, sub.SubmissionID)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"created":        len(created),
		"submission_ids": ids,
	})
}

// ServeConnectivity verifies mailbox and transport credentials.
func (h *Handler) ServeConnectivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	if err := h.service.TestConnectivity(r.Context()); err != nil {
		slog.Warn("connectivity test failed", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"status": "failed", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ServeHealth pings each registered dependency and reports the first
// failure.
func (h *Handler) ServeHealth(w http.ResponseWriter, r *http.Request) {
	for _, check := range h.checks {
		if err := check.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"failed": check.Name,
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

// Serve starts the API server on the given port. It binds the port
// immediately and signals readiness via the returned channel before
// starting to accept connections.
func Serve(ctx context.Context, port int, handler *Handler) (<-chan struct{}, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ingest/run", handler.ServeRunPass)
	mux.HandleFunc("/connectivity/test", handler.ServeConnectivity)
	mux.HandleFunc("/health", handler.ServeHealth)

	server := &http.Server{
		Handler: mux,
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("bind api port %d: %w", port, err)
	}

	ready := make(chan struct{})

	go func() {
		<-ctx.Done()
		slog.Info("api server shutting down")
		server.Close()
	}()

	go func() {
		slog.Info("api server listening", "port", port)
		close(ready)
		if err := server.Serve(ln); err != http.ErrServerClosed {
			slog.Error("api server error", "error", err)
		}
	}()

	return ready, nil
}
