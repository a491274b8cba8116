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
	"fmt"
	"sort"
	"strings"
	"time"
)

// SessionStatus is the lifecycle state of an execution session.
type SessionStatus string

const (
	SessionInitializing SessionStatus = "INITIALIZING"
	SessionReady        SessionStatus = "READY"
	SessionRunningDAG   SessionStatus = "RUNNING_DAG"
	SessionShutdown     SessionStatus = "SHUTDOWN"
)

func (s SessionStatus) String() string {
	return string(s)
}

// Valid reports whether s is one of the known session states.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionInitializing, SessionReady, SessionRunningDAG, SessionShutdown:
		return true
	}
	return false
}

// DAGState is the execution state of a submitted DAG.
type DAGState string

const (
	DAGSubmitted DAGState = "SUBMITTED"
	DAGRunning   DAGState = "RUNNING"
	DAGSucceeded DAGState = "SUCCEEDED"
	DAGFailed    DAGState = "FAILED"
	DAGKilled    DAGState = "KILLED"
	DAGError     DAGState = "ERROR"
)

func (s DAGState) String() string {
	return string(s)
}

// IsCompleted reports whether the state is terminal.
func (s DAGState) IsCompleted() bool {
	switch s {
	case DAGSucceeded, DAGFailed, DAGKilled, DAGError:
		return true
	}
	return false
}

// Valid reports whether s is one of the known DAG states.
func (s DAGState) Valid() bool {
	return s == DAGSubmitted || s == DAGRunning || s.IsCompleted()
}

// Progress holds task counts for a DAG or a single vertex.
type Progress struct {
	Total     int `json:"total" bson:"total"`
	Succeeded int `json:"succeeded" bson:"succeeded"`
	Running   int `json:"running" bson:"running"`
	Failed    int `json:"failed" bson:"failed"`
	Killed    int `json:"killed" bson:"killed"`
}

func (p Progress) String() string {
	return fmt.Sprintf("TotalTasks: %d Succeeded: %d Running: %d Failed: %d Killed: %d",
		p.Total, p.Succeeded, p.Running, p.Failed, p.Killed)
}

// DAGStatus is a point-in-time snapshot of a submitted DAG.
type DAGStatus struct {
	State          DAGState            `json:"state"`
	Diagnostics    []string            `json:"diagnostics,omitempty"`
	ApplicationID  string              `json:"application_id"`
	Progress       Progress            `json:"progress"`
	VertexProgress map[string]Progress `json:"vertex_progress,omitempty"`
}

// IsCompleted reports whether the snapshot is terminal.
func (s DAGStatus) IsCompleted() bool {
	return s.State.IsCompleted()
}

// VertexNames returns the vertex names with progress, sorted.
func (s DAGStatus) VertexNames() []string {
	names := make([]string, 0, len(s.VertexProgress))
	for name := range s.VertexProgress {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SessionSpec describes the coordinator a backend should allocate.
type SessionSpec struct {
	Name          string            `json:"name"`
	Queue         string            `json:"queue,omitempty"`
	MemoryMB      int               `json:"memory_mb"`
	VCores        int               `json:"vcores"`
	LaunchOptions string            `json:"launch_options,omitempty"`
	Environment   map[string]string `json:"environment,omitempty"`
}

// SessionHandle identifies a coordinator allocated by a backend.
type SessionHandle struct {
	ID            string `json:"session_id"`
	ApplicationID string `json:"application_id"`
}

// LaunchContext is everything a coordinator needs to start.
type LaunchContext struct {
	StagingDir  string        `json:"staging_dir"`
	ConfPath    string        `json:"conf_path"`
	Credentials CredentialSet `json:"credentials"`
}

// DAGHandle identifies a DAG submitted to a session.
type DAGHandle struct {
	SessionID     string `json:"session_id"`
	DAGID         string `json:"dag_id"`
	Name          string `json:"name"`
	ApplicationID string `json:"application_id"`
}

// Token is a delegation credential for one storage service.
type Token struct {
	Kind            string    `json:"kind"`
	Service         string    `json:"service"`
	AccessKeyID     string    `json:"access_key_id,omitempty"`
	SecretAccessKey string    `json:"secret_access_key,omitempty"`
	SessionToken    string    `json:"session_token,omitempty"`
	Expires         time.Time `json:"expires,omitempty"`
}

// CredentialSet holds tokens keyed by service (e.g., "s3://bucket").
type CredentialSet struct {
	Tokens map[string]Token `json:"tokens,omitempty"`
}

// NewCredentialSet returns an empty credential set.
func NewCredentialSet() CredentialSet {
	return CredentialSet{Tokens: make(map[string]Token)}
}

// Add stores a token under its service, replacing any previous one.
func (c *CredentialSet) Add(t Token) {
	if c.Tokens == nil {
		c.Tokens = make(map[string]Token)
	}
	c.Tokens[t.Service] = t
}

// Merge copies every token of other into c.
func (c *CredentialSet) Merge(other CredentialSet) {
	for _, t := range other.Tokens {
		c.Add(t)
	}
}

// Len returns the number of tokens.
func (c CredentialSet) Len() int {
	return len(c.Tokens)
}

// String lists token kinds and services only; secrets are never printed.
func (c CredentialSet) String() string {
	if len(c.Tokens) == 0 {
		return "credentials[]"
	}
	services := make([]string, 0, len(c.Tokens))
	for service, t := range c.Tokens {
		services = append(services, t.Kind+":"+service)
	}
	sort.Strings(services)
	return "credentials[" + strings.Join(services, ", ") + "]"
}
