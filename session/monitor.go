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
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aaronlmathis/gotez/core"
)

// ProgressFunc receives every DAG status observed while monitoring.
type ProgressFunc func(core.DAGStatus)

// SessionProgressFunc receives every session status observed while waiting.
type SessionProgressFunc func(core.SessionStatus)

// MonitorOptions control a polling wait.
type MonitorOptions struct {
	Strategy        PollStrategy
	MaxWait         time.Duration
	BackendRetries  int
	RetryBackoff    time.Duration
	Progress        ProgressFunc
	SessionProgress SessionProgressFunc
}

// MonitorOption configures a single wait.
type MonitorOption func(*MonitorOptions)

// WithPollStrategy overrides the configured poll interval.
func WithPollStrategy(strategy PollStrategy) MonitorOption {
	return func(o *MonitorOptions) {
		if strategy != nil {
			o.Strategy = strategy
		}
	}
}

// WithMaxWait bounds the whole wait. Zero means no bound.
func WithMaxWait(d time.Duration) MonitorOption {
	return func(o *MonitorOptions) {
		o.MaxWait = d
	}
}

// WithBackendRetries sets how many consecutive unavailable errors are
// absorbed and the first retry delay, which doubles on each attempt.
func WithBackendRetries(retries int, backoff time.Duration) MonitorOption {
	return func(o *MonitorOptions) {
		o.BackendRetries = retries
		o.RetryBackoff = backoff
	}
}

// WithProgress registers a callback for DAG status updates.
func WithProgress(fn ProgressFunc) MonitorOption {
	return func(o *MonitorOptions) {
		o.Progress = fn
	}
}

// WithSessionProgress registers a callback for session status updates.
func WithSessionProgress(fn SessionProgressFunc) MonitorOption {
	return func(o *MonitorOptions) {
		o.SessionProgress = fn
	}
}

func (s *Session) monitorOptions(setters []MonitorOption) MonitorOptions {
	retries, backoff := s.cfg.retries()
	opts := MonitorOptions{
		Strategy:       s.cfg.PollStrategy(),
		MaxWait:        s.cfg.MaxWait,
		BackendRetries: retries,
		RetryBackoff:   backoff,
	}
	for _, set := range setters {
		set(&opts)
	}
	return opts
}

// ErrMaxWaitExceeded is returned when a wait outlives MonitorOptions.MaxWait.
var ErrMaxWaitExceeded = errors.New("maximum wait exceeded")

// poll calls check until it reports done, sleeping between calls. Backend
// unavailability is retried with doubling backoff up to opts.BackendRetries
// consecutive times. Cancellation is noticed within one sleep.
func poll(ctx context.Context, opts MonitorOptions, logger *slog.Logger, op string, check func(context.Context) (bool, error)) error {
	parent := ctx
	if opts.MaxWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.MaxWait)
		defer cancel()
	}
	retry := &ExponentialPoll{BaseDelay: opts.RetryBackoff, MaxDelay: opts.RetryBackoff * 8}

	failures := 0
	for attempt := 0; ; {
		if err := ctx.Err(); err != nil {
			return waitError(parent, op, err)
		}

		done, err := check(ctx)
		if err != nil {
			if !core.IsBackendUnavailable(err) || failures >= opts.BackendRetries {
				if ctx.Err() != nil && parent.Err() == nil {
					return waitError(parent, op, ctx.Err())
				}
				return err
			}
			delay := retry.Delay(failures)
			failures++
			logger.Warn("backend unavailable, retrying", "op", op, "attempt", failures, "delay", delay, "error", err)
			if err := sleep(ctx, delay); err != nil {
				return waitError(parent, op, err)
			}
			continue
		}
		failures = 0
		if done {
			return nil
		}

		delay := opts.Strategy.Delay(attempt)
		attempt++
		if err := sleep(ctx, delay); err != nil {
			return waitError(parent, op, err)
		}
	}
}

// waitError reports a deadline of our own making as ErrMaxWaitExceeded and
// anything else as the caller's cancellation.
func waitError(parent context.Context, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
		return fmt.Errorf("%s: %w", op, ErrMaxWaitExceeded)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Outcome is the classification of a completed DAG.
type Outcome struct {
	Succeeded     bool
	State         core.DAGState
	Diagnostics   []string
	ApplicationID string
}

// Classify maps a completed status to an outcome. Only SUCCEEDED succeeds;
// every other state carries its diagnostics.
func Classify(status core.DAGStatus) Outcome {
	out := Outcome{
		Succeeded:     status.State == core.DAGSucceeded,
		State:         status.State,
		ApplicationID: status.ApplicationID,
	}
	if !out.Succeeded {
		out.Diagnostics = append([]string(nil), status.Diagnostics...)
	}
	return out
}
