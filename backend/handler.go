//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of GoTez.
//
// GoTez is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// GoTez is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with GoTez. If not, see https://www.gnu.org/licenses/.

package backend

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/aaronlmathis/gotez/core"
	"github.com/aaronlmathis/gotez/dag"
)

// maxPlanBytes bounds submitted plan bodies.
const maxPlanBytes = 8 << 20

// NewHandler exposes a backend over the gateway protocol HTTPBackend speaks.
func NewHandler(b core.ClusterBackend, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &gateway{backend: b, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/sessions", h.createSession)
	mux.HandleFunc("POST /v1/sessions/{id}/start", h.startSession)
	mux.HandleFunc("GET /v1/sessions/{id}/status", h.sessionStatus)
	mux.HandleFunc("POST /v1/sessions/{id}/dags", h.submitDAG)
	mux.HandleFunc("GET /v1/sessions/{id}/dags/{dag}/status", h.dagStatus)
	mux.HandleFunc("DELETE /v1/sessions/{id}", h.stopSession)
	return mux
}

type gateway struct {
	backend core.ClusterBackend
	logger  *slog.Logger
}

// handles are rebuilt from the path. Backends key sessions by id.
func sessionHandle(r *http.Request) core.SessionHandle {
	return core.SessionHandle{ID: r.PathValue("id")}
}

func (g *gateway) createSession(w http.ResponseWriter, r *http.Request) {
	var spec core.SessionSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		g.writeError(w, http.StatusBadRequest, err)
		return
	}
	handle, err := g.backend.CreateSession(r.Context(), spec)
	if err != nil {
		g.fail(w, err)
		return
	}
	g.writeJSON(w, http.StatusCreated, handle)
}

func (g *gateway) startSession(w http.ResponseWriter, r *http.Request) {
	var launch core.LaunchContext
	if err := json.NewDecoder(r.Body).Decode(&launch); err != nil {
		g.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := g.backend.StartSession(r.Context(), sessionHandle(r), launch); err != nil {
		g.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (g *gateway) sessionStatus(w http.ResponseWriter, r *http.Request) {
	status, err := g.backend.SessionStatus(r.Context(), sessionHandle(r))
	if err != nil {
		g.fail(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, sessionStatusResponse{Status: status})
}

func (g *gateway) submitDAG(w http.ResponseWriter, r *http.Request) {
	plan, err := io.ReadAll(io.LimitReader(r.Body, maxPlanBytes))
	if err != nil {
		g.writeError(w, http.StatusBadRequest, err)
		return
	}
	handle, err := g.backend.SubmitDAG(r.Context(), sessionHandle(r), plan)
	if err != nil {
		g.fail(w, err)
		return
	}
	g.writeJSON(w, http.StatusCreated, handle)
}

func (g *gateway) dagStatus(w http.ResponseWriter, r *http.Request) {
	handle := core.DAGHandle{SessionID: r.PathValue("id"), DAGID: r.PathValue("dag")}
	status, err := g.backend.GetDAGStatus(r.Context(), handle)
	if err != nil {
		g.fail(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, status)
}

func (g *gateway) stopSession(w http.ResponseWriter, r *http.Request) {
	if err := g.backend.StopSession(r.Context(), sessionHandle(r)); err != nil {
		g.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// fail maps backend errors onto status codes.
func (g *gateway) fail(w http.ResponseWriter, err error) {
	var (
		stateErr  *core.SessionStateError
		invalid   *dag.InvalidDAGError
		cycle     *dag.CycleError
		unknownV  *dag.UnknownVertexError
		duplicate *dag.DuplicateNameError
	)
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrUnknownSession), errors.Is(err, ErrUnknownDAG):
		code = http.StatusNotFound
	case errors.Is(err, ErrSessionShutdown):
		code = http.StatusGone
	case errors.As(err, &stateErr):
		code = http.StatusConflict
	case errors.As(err, &invalid), errors.As(err, &cycle), errors.As(err, &unknownV), errors.As(err, &duplicate):
		code = http.StatusBadRequest
	case core.IsBackendUnavailable(err):
		code = http.StatusServiceUnavailable
	}
	if code >= 500 {
		g.logger.Error("backend call failed", "error", err)
	}
	g.writeError(w, code, err)
}

func (g *gateway) writeError(w http.ResponseWriter, code int, err error) {
	g.writeJSON(w, code, errorResponse{Error: err.Error()})
}

func (g *gateway) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Warn("failed to write response", "error", err)
	}
}
