// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

// Package api exposes the administrative HTTP surface: approval listing and
// resolution, run trace streaming, capability listing, and health. The
// server shares the approval store instance with the scheduler by
// reference, so a decision taken here releases a step blocked in the loop.
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/jllopis/telos/pkg/core"
	"github.com/jllopis/telos/pkg/errors"
	"github.com/jllopis/telos/pkg/governance"
	"github.com/jllopis/telos/pkg/skills"
	"github.com/jllopis/telos/pkg/trace"
)

// Server routes admin requests. Construct with New; the zero value serves
// nothing useful.
type Server struct {
	approvals governance.ApprovalStore
	traces    *trace.Reader
	registry  *skills.Registry
	health    *core.HealthRegistry
	logger    *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithRegistry enables GET /v1/skills.
func WithRegistry(reg *skills.Registry) Option {
	return func(s *Server) {
		s.registry = reg
	}
}

// WithHealth backs /healthz with the process health registry instead of a
// bare liveness response.
func WithHealth(h *core.HealthRegistry) Option {
	return func(s *Server) {
		s.health = h
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates an admin server over the shared approval store and the trace
// directory reader.
func New(approvals governance.ApprovalStore, traces *trace.Reader, opts ...Option) *Server {
	s := &Server{
		approvals: approvals,
		traces:    traces,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServeHTTP routes /healthz and the /v1 admin resources.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/healthz" {
		if r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		s.handleHealth(w, r)
		return
	}

	segments := normalizePath(r.URL.Path)
	if len(segments) == 0 {
		http.NotFound(w, r)
		return
	}
	switch segments[0] {
	case "approvals":
		s.handleApprovals(w, r, segments[1:])
	case "runs":
		s.handleRuns(w, r, segments[1:])
	case "skills":
		if r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		s.handleSkills(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleApprovals(w http.ResponseWriter, r *http.Request, segments []string) {
	if s.approvals == nil {
		writeError(w, errors.New(errors.CodeInternal, "approval store not configured", nil))
		return
	}
	if len(segments) == 0 {
		if r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		s.handleListApprovals(w, r)
		return
	}

	id := segments[0]
	switch {
	case strings.HasSuffix(id, ":approve"):
		if r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		s.handleResolveApproval(w, r, strings.TrimSuffix(id, ":approve"), governance.StatusApproved)
	case strings.HasSuffix(id, ":reject"):
		if r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		s.handleResolveApproval(w, r, strings.TrimSuffix(id, ":reject"), governance.StatusRejected)
	default:
		if r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		s.handleGetApproval(w, r, id)
	}
}

func (s *Server) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := governance.Filter{
		Status: governance.ApprovalStatus(query.Get("status")),
		RunID:  query.Get("run_id"),
	}
	items, err := s.approvals.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	// Stores order by recency; the admin surface promises creation order.
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	writeJSON(w, http.StatusOK, map[string]any{"approvals": items})
}

func (s *Server) handleGetApproval(w http.ResponseWriter, r *http.Request, id string) {
	item, err := s.approvals.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

type resolveRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleResolveApproval(w http.ResponseWriter, r *http.Request, id string, status governance.ApprovalStatus) {
	var req resolveRequest
	if r.Body != nil {
		body, _ := io.ReadAll(r.Body)
		defer r.Body.Close()
		if len(body) > 0 {
			if err := json.Unmarshal(body, &req); err != nil {
				writeError(w, errors.New(errors.CodeInvalidArguments, "malformed resolve body", err))
				return
			}
		}
	}
	reason := req.Reason
	if reason == "" {
		reason = fmt.Sprintf("%s via admin api", status)
	}

	ok, err := s.approvals.Resolve(r.Context(), id, status, reason)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		// Unknown id or already settled: resolution races are expected,
		// the loser learns it here.
		writeError(w, errors.New(errors.CodeNotFound,
			fmt.Sprintf("approval %q is not pending", id), nil))
		return
	}
	item, err := s.approvals.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	s.logger.Info("telos.api.approval.resolved",
		slog.String("approval_id", id),
		slog.String("status", string(status)),
	)
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request, segments []string) {
	if s.traces == nil {
		writeError(w, errors.New(errors.CodeInternal, "trace reader not configured", nil))
		return
	}
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	if len(segments) == 0 {
		runs, err := s.traces.List()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
		return
	}

	runID := segments[0]
	if len(segments) == 1 {
		events, err := s.traces.ReadAll(runID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"run_id": runID, "events": events})
		return
	}
	if segments[1] != "events" {
		http.NotFound(w, r)
		return
	}
	s.handleRunEvents(w, r, runID)
}

// handleRunEvents streams the run's trace as server-sent events, replaying
// from the start of the file and then following the tail until the client
// disconnects.
func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request, runID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, errors.New(errors.CodeInternal, "streaming not supported", nil))
		return
	}

	events, err := s.traces.Stream(r.Context(), runID)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	for event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return
		}
		flusher.Flush()
		if event.Type == core.EventRunDone {
			return
		}
	}
}

func (s *Server) handleSkills(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		writeError(w, errors.New(errors.CodeInternal, "registry not configured", nil))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"skills": s.registry.Names()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
		return
	}
	results, overall := s.health.CheckAll(r.Context())
	status := http.StatusOK
	if overall == core.HealthUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"status": overall,
		"checks": results,
	})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(value)
}

func writeError(w http.ResponseWriter, err error) {
	te := errors.AsTelosError(err)
	status := te.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}
	body := map[string]any{
		"type":   "about:blank",
		"title":  string(te.Code),
		"detail": te.Message,
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func normalizePath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	segments := strings.Split(path, "/")
	if segments[0] == "v1" {
		segments = segments[1:]
	}
	return segments
}
