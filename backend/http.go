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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aaronlmathis/gotez/core"
)

// HTTPError describes a gateway call that failed.
type HTTPError struct {
	Op         string // Backend call (e.g., "create_session", "dag_status")
	StatusCode int    // HTTP status code if a response arrived
	URL        string // Endpoint that was called
	Err        error  // Underlying error
}

func (e *HTTPError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("http backend %s [%d] %s: %v", e.Op, e.StatusCode, e.URL, e.Err)
	}
	return fmt.Sprintf("http backend %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// HTTPOptions configures an HTTPBackend.
type HTTPOptions struct {
	Token   string
	Timeout time.Duration
	Client  *http.Client
}

// HTTPOption configures an HTTPBackend.
type HTTPOption func(*HTTPOptions)

// WithToken sends token as a bearer credential on every request.
func WithToken(token string) HTTPOption {
	return func(o *HTTPOptions) {
		o.Token = strings.TrimSpace(token)
	}
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) HTTPOption {
	return func(o *HTTPOptions) {
		o.Timeout = d
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(o *HTTPOptions) {
		o.Client = c
	}
}

// HTTPBackend talks JSON to a coordinator gateway. Transport failures, 5xx
// and 429 responses are reported as *core.BackendUnavailableError so the
// monitor loop retries them.
type HTTPBackend struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPBackend returns a client for the gateway at baseURL.
func NewHTTPBackend(baseURL string, setters ...HTTPOption) (*HTTPBackend, error) {
	opts := HTTPOptions{Timeout: 10 * time.Second}
	for _, set := range setters {
		set(&opts)
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, &core.ConfigurationError{Field: "backend.url", Err: fmt.Errorf("invalid gateway url %q", baseURL)}
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &HTTPBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   opts.Token,
		client:  client,
	}, nil
}

type sessionStatusResponse struct {
	Status core.SessionStatus `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *HTTPBackend) CreateSession(ctx context.Context, spec core.SessionSpec) (core.SessionHandle, error) {
	var handle core.SessionHandle
	err := h.do(ctx, "create_session", http.MethodPost, "/v1/sessions", spec, &handle)
	return handle, err
}

func (h *HTTPBackend) StartSession(ctx context.Context, handle core.SessionHandle, launch core.LaunchContext) error {
	return h.do(ctx, "start_session", http.MethodPost, sessionPath(handle.ID)+"/start", launch, nil)
}

func (h *HTTPBackend) SessionStatus(ctx context.Context, handle core.SessionHandle) (core.SessionStatus, error) {
	var resp sessionStatusResponse
	if err := h.do(ctx, "session_status", http.MethodGet, sessionPath(handle.ID)+"/status", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

func (h *HTTPBackend) SubmitDAG(ctx context.Context, handle core.SessionHandle, plan []byte) (core.DAGHandle, error) {
	var dh core.DAGHandle
	err := h.do(ctx, "submit_dag", http.MethodPost, sessionPath(handle.ID)+"/dags", json.RawMessage(plan), &dh)
	return dh, err
}

func (h *HTTPBackend) GetDAGStatus(ctx context.Context, handle core.DAGHandle) (core.DAGStatus, error) {
	var status core.DAGStatus
	p := sessionPath(handle.SessionID) + "/dags/" + url.PathEscape(handle.DAGID) + "/status"
	err := h.do(ctx, "dag_status", http.MethodGet, p, nil, &status)
	return status, err
}

// StopSession treats 404 as already stopped.
func (h *HTTPBackend) StopSession(ctx context.Context, handle core.SessionHandle) error {
	err := h.do(ctx, "stop_session", http.MethodDelete, sessionPath(handle.ID), nil, nil)
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
		return nil
	}
	return err
}

func sessionPath(id string) string {
	return "/v1/sessions/" + url.PathEscape(id)
}

func (h *HTTPBackend) do(ctx context.Context, op, method, path string, in, out any) error {
	endpoint := h.baseURL + path

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return &HTTPError{Op: op, URL: endpoint, Err: fmt.Errorf("encode request: %w", err)}
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return &HTTPError{Op: op, URL: endpoint, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return &HTTPError{Op: op, URL: endpoint, Err: ctx.Err()}
		}
		return &core.BackendUnavailableError{Op: op, Err: &HTTPError{Op: op, URL: endpoint, Err: err}}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg := resp.Status
		var er errorResponse
		if data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); len(data) > 0 {
			if json.Unmarshal(data, &er) == nil && er.Error != "" {
				msg = er.Error
			}
		}
		httpErr := &HTTPError{Op: op, StatusCode: resp.StatusCode, URL: endpoint, Err: fmt.Errorf("%s", msg)}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return &core.BackendUnavailableError{Op: op, Err: httpErr}
		}
		return httpErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &HTTPError{Op: op, StatusCode: resp.StatusCode, URL: endpoint, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
