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

package core

import (
	"errors"
	"fmt"
	"strings"
)

// Package core defines the error handling types for the GoTez library.
//
// Every fatal condition raised by the session runtime is one of the typed
// errors below. Callers inspect them with errors.As. A DAG that finishes in
// FAILED, KILLED or ERROR is not an error; it is reported through DAGStatus.

// ConfigurationError reports a missing or invalid setting. It is never retried.
type ConfigurationError struct {
	Field string // Offending setting (e.g., "poll_interval", "dag")
	Err   error  // Underlying error
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration: %v", e.Err)
	}
	return fmt.Sprintf("configuration %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// StorageError reports a failure of the staging filesystem.
type StorageError struct {
	Op   string // Operation that failed (e.g., "create_dir", "delete")
	Path string // Path the operation targeted
	Err  error  // Underlying error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ErrNotStarted is wrapped by SessionStateError when an operation needs a
// session that was never started.
var ErrNotStarted = errors.New("session not started")

// SessionStateError reports an operation invoked in a session state that
// does not allow it, such as submitting before READY or after SHUTDOWN.
type SessionStateError struct {
	Op    string        // Operation attempted (e.g., "submit", "start")
	State SessionStatus // State the session was in
	Err   error         // Optional cause
}

func (e *SessionStateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("session %s: invalid in state %s: %v", e.Op, e.State, e.Err)
	}
	return fmt.Sprintf("session %s: invalid in state %s", e.Op, e.State)
}

func (e *SessionStateError) Unwrap() error {
	return e.Err
}

// BackendUnavailableError reports that the cluster backend could not be
// reached. Monitoring retries it a bounded number of times before giving up.
type BackendUnavailableError struct {
	Op  string // Backend call (e.g., "session_status", "dag_status")
	Err error  // Underlying transport error
}

func (e *BackendUnavailableError) Error() string {
	return fmt.Sprintf("backend unavailable %s: %v", e.Op, e.Err)
}

func (e *BackendUnavailableError) Unwrap() error {
	return e.Err
}

// UnexpectedShutdownError reports a session that reached SHUTDOWN without
// Stop being called.
type UnexpectedShutdownError struct {
	Session     string
	Diagnostics []string
}

func (e *UnexpectedShutdownError) Error() string {
	if len(e.Diagnostics) == 0 {
		return fmt.Sprintf("unexpected session shutdown: %s", e.Session)
	}
	return fmt.Sprintf("unexpected session shutdown: %s: %s", e.Session, strings.Join(e.Diagnostics, "; "))
}

// IsBackendUnavailable reports whether err is (or wraps) a BackendUnavailableError.
func IsBackendUnavailable(err error) bool {
	var target *BackendUnavailableError
	return errors.As(err, &target)
}
