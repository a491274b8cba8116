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

package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/aaronlmathis/gotez/core"
	"github.com/aaronlmathis/gotez/history"
	"github.com/aaronlmathis/gotez/observability"
)

// DAGClient tracks one submitted DAG. Once a completed status is seen it is
// cached and the backend is never asked again.
type DAGClient struct {
	session *Session
	handle  core.DAGHandle
	logger  *slog.Logger

	mu    sync.Mutex
	last  core.DAGState
	final *core.DAGStatus
	polls int
}

func newDAGClient(s *Session, handle core.DAGHandle) *DAGClient {
	return &DAGClient{
		session: s,
		handle:  handle,
		logger:  s.log().With("dag", handle.Name, "dag_id", handle.DAGID),
		last:    core.DAGSubmitted,
	}
}

func (c *DAGClient) Handle() core.DAGHandle { return c.handle }
func (c *DAGClient) Name() string           { return c.handle.Name }
func (c *DAGClient) ApplicationID() string  { return c.handle.ApplicationID }

// Polls returns how many status calls reached the backend.
func (c *DAGClient) Polls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.polls
}

// Status returns the current DAG status. Completed states are sticky.
func (c *DAGClient) Status(ctx context.Context) (core.DAGStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.final != nil {
		return *c.final, nil
	}

	c.polls++
	status, err := c.session.backend.GetDAGStatus(ctx, c.handle)
	if err != nil {
		if core.IsBackendUnavailable(err) || ctx.Err() != nil {
			return core.DAGStatus{}, err
		}
		// a coordinator that went away takes its DAGs with it
		if st, serr := c.session.Status(ctx); serr == nil && st == core.SessionShutdown {
			return core.DAGStatus{}, c.session.shutdownError("dag status")
		}
		return core.DAGStatus{}, fmt.Errorf("dag %s status: %w", c.handle.Name, err)
	}
	if !status.State.Valid() {
		return core.DAGStatus{}, fmt.Errorf("dag %s status: backend reported unknown state %q", c.handle.Name, status.State)
	}
	if status.ApplicationID == "" {
		status.ApplicationID = c.handle.ApplicationID
	}

	if status.State != c.last {
		c.logger.Info("dag state changed", "from", c.last.String(), "to", status.State.String())
		c.last = status.State
		ev := c.event(history.EventDAGStateChanged, status)
		if status.IsCompleted() {
			ev.Type = history.EventDAGFinished
		}
		c.session.record(ctx, ev)
	}
	if status.IsCompleted() {
		final := status
		c.final = &final
	}
	return status, nil
}

// WaitForCompletion polls until the DAG reaches a completed state and
// returns that status. A DAG that fails is not an error; use Classify.
func (c *DAGClient) WaitForCompletion(ctx context.Context, setters ...MonitorOption) (status core.DAGStatus, err error) {
	ctx, span := observability.StartSpan(ctx, "dag.wait",
		attribute.String("gotez.dag", c.handle.Name), attribute.String("gotez.dag_id", c.handle.DAGID))
	defer func() { observability.EndSpan(span, err) }()

	opts := c.session.monitorOptions(setters)
	err = poll(ctx, opts, c.logger, "wait for dag "+c.handle.Name, func(ctx context.Context) (bool, error) {
		st, err := c.Status(ctx)
		if err != nil {
			return false, err
		}
		c.logger.Debug("dag progress", "state", st.State.String(), "progress", st.Progress.String())
		if opts.Progress != nil {
			opts.Progress(st)
		}
		status = st
		return st.IsCompleted(), nil
	})
	if err != nil {
		return core.DAGStatus{}, err
	}
	span.SetAttributes(attribute.String("gotez.dag_state", status.State.String()))
	return status, nil
}

func (c *DAGClient) event(t history.EventType, status core.DAGStatus) history.Event {
	return history.Event{
		Type:          t,
		ApplicationID: status.ApplicationID,
		DAGName:       c.handle.Name,
		DAGID:         c.handle.DAGID,
		State:         status.State.String(),
		Progress:      status.Progress,
		Diagnostics:   status.Diagnostics,
	}
}
