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

// Package backend provides cluster backends: an in-process coordinator
// simulator, an HTTP client for a remote coordinator gateway and the
// gateway handler itself.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aaronlmathis/gotez/core"
	"github.com/aaronlmathis/gotez/dag"
)

var (
	// ErrUnknownSession is returned for handles the backend never issued.
	ErrUnknownSession = errors.New("unknown session")
	// ErrUnknownDAG is returned for DAG handles the backend never issued.
	ErrUnknownDAG = errors.New("unknown dag")
	// ErrSessionShutdown is returned for DAGs whose coordinator is gone.
	ErrSessionShutdown = errors.New("session is shut down")
)

// MemoryOptions configures the simulator.
type MemoryOptions struct {
	// ReadyAfter is how many status polls report INITIALIZING after launch.
	ReadyAfter int
	// Splits is the task count used for vertices whose parallelism comes
	// from input splits.
	Splits int
	Logger *slog.Logger
}

// MemoryOption configures a MemoryBackend.
type MemoryOption func(*MemoryOptions)

func WithReadyAfter(polls int) MemoryOption {
	return func(o *MemoryOptions) {
		o.ReadyAfter = polls
	}
}

func WithSplits(n int) MemoryOption {
	return func(o *MemoryOptions) {
		o.Splits = n
	}
}

func WithMemoryLogger(l *slog.Logger) MemoryOption {
	return func(o *MemoryOptions) {
		o.Logger = l
	}
}

// MemoryBackend simulates a coordinator in process. A submitted plan is
// parsed and walked one topological level per status poll: SUBMITTED, then
// RUNNING while each level runs, then SUCCEEDED. Vertex processors are
// never executed.
type MemoryBackend struct {
	opts    MemoryOptions
	started time.Time

	mu       sync.Mutex
	seq      int
	sessions map[string]*memSession
	dags     map[string]*memDAG
	failures map[string]string // vertex name -> diagnostic
}

type memSession struct {
	handle   core.SessionHandle
	spec     core.SessionSpec
	launch   *core.LaunchContext
	status   core.SessionStatus
	polls    int
	dagSeq   int
	running  *memDAG
	stopped  bool
	stopReqs int
}

type memDAG struct {
	handle   core.DAGHandle
	plan     *dag.DAG
	levels   [][]string
	tasks    map[string]int
	failures map[string]string
	tick     int
	status   core.DAGStatus
}

// NewMemoryBackend returns a simulator. By default a launched session
// reports INITIALIZING for one poll and split-driven vertices run 4 tasks.
func NewMemoryBackend(setters ...MemoryOption) *MemoryBackend {
	opts := MemoryOptions{
		ReadyAfter: 1,
		Splits:     4,
		Logger:     slog.Default(),
	}
	for _, set := range setters {
		set(&opts)
	}
	if opts.Splits < 1 {
		opts.Splits = 1
	}
	return &MemoryBackend{
		opts:     opts,
		started:  time.Now(),
		sessions: make(map[string]*memSession),
		dags:     make(map[string]*memDAG),
		failures: make(map[string]string),
	}
}

func (m *MemoryBackend) CreateSession(ctx context.Context, spec core.SessionSpec) (core.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return core.SessionHandle{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	handle := core.SessionHandle{
		ID:            uuid.NewString(),
		ApplicationID: fmt.Sprintf("application_%d_%04d", m.started.UnixMilli(), m.seq),
	}
	m.sessions[handle.ID] = &memSession{handle: handle, spec: spec, status: core.SessionInitializing}
	m.opts.Logger.Debug("allocated application", "app_id", handle.ApplicationID, "name", spec.Name)
	return handle, nil
}

func (m *MemoryBackend) StartSession(ctx context.Context, handle core.SessionHandle, launch core.LaunchContext) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.session(handle)
	if err != nil {
		return err
	}
	if s.launch != nil {
		return &core.SessionStateError{Op: "start_session", State: s.status, Err: errors.New("already launched")}
	}
	if s.status == core.SessionShutdown {
		return &core.SessionStateError{Op: "start_session", State: s.status}
	}
	l := launch
	s.launch = &l
	return nil
}

func (m *MemoryBackend) SessionStatus(ctx context.Context, handle core.SessionHandle) (core.SessionStatus, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.session(handle)
	if err != nil {
		return "", err
	}
	if s.status == core.SessionInitializing && s.launch != nil {
		s.polls++
		if s.polls > m.opts.ReadyAfter {
			s.status = core.SessionReady
		}
	}
	return s.status, nil
}

func (m *MemoryBackend) SubmitDAG(ctx context.Context, handle core.SessionHandle, plan []byte) (core.DAGHandle, error) {
	if err := ctx.Err(); err != nil {
		return core.DAGHandle{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.session(handle)
	if err != nil {
		return core.DAGHandle{}, err
	}
	if s.status != core.SessionReady {
		return core.DAGHandle{}, &core.SessionStateError{Op: "submit_dag", State: s.status}
	}

	d, err := dag.ParsePlan(plan)
	if err != nil {
		return core.DAGHandle{}, err
	}
	if err := d.Validate(); err != nil {
		return core.DAGHandle{}, err
	}
	levels, err := d.Levels()
	if err != nil {
		return core.DAGHandle{}, err
	}

	s.dagSeq++
	md := &memDAG{
		handle: core.DAGHandle{
			SessionID:     s.handle.ID,
			DAGID:         fmt.Sprintf("dag_%s_%d", s.handle.ApplicationID, s.dagSeq),
			Name:          d.Name(),
			ApplicationID: s.handle.ApplicationID,
		},
		plan:     d,
		levels:   levels,
		tasks:    make(map[string]int),
		failures: make(map[string]string),
	}
	for _, v := range d.Vertices() {
		n := v.Parallelism()
		if n == dag.ParallelismFromSplits {
			n = m.opts.Splits
		}
		md.tasks[v.Name()] = n
		if diag, ok := m.failures[v.Name()]; ok {
			md.failures[v.Name()] = diag
		}
	}
	md.status = md.snapshot()

	m.dags[md.handle.DAGID] = md
	s.running = md
	s.status = core.SessionRunningDAG
	m.opts.Logger.Debug("accepted dag", "dag", md.handle.Name, "dag_id", md.handle.DAGID, "levels", len(levels))
	return md.handle, nil
}

// GetDAGStatus reports the current status and then advances the simulation
// by one step.
func (m *MemoryBackend) GetDAGStatus(ctx context.Context, handle core.DAGHandle) (core.DAGStatus, error) {
	if err := ctx.Err(); err != nil {
		return core.DAGStatus{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	md, ok := m.dags[handle.DAGID]
	if !ok {
		return core.DAGStatus{}, fmt.Errorf("%w: %s", ErrUnknownDAG, handle.DAGID)
	}
	s := m.sessions[md.handle.SessionID]
	if s.status == core.SessionShutdown && !md.status.IsCompleted() {
		return core.DAGStatus{}, fmt.Errorf("%w: %s", ErrSessionShutdown, s.handle.ApplicationID)
	}

	current := md.status
	if !current.IsCompleted() {
		md.tick++
		md.status = md.snapshot()
		if md.status.IsCompleted() {
			m.finish(s, md)
		}
	}
	return copyStatus(current), nil
}

func (m *MemoryBackend) StopSession(ctx context.Context, handle core.SessionHandle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.session(handle)
	if err != nil {
		return err
	}
	s.stopReqs++
	if s.stopped {
		return nil
	}
	s.stopped = true
	if s.running != nil {
		s.running.kill("Session stopped by user")
		s.running = nil
	}
	s.status = core.SessionShutdown
	m.opts.Logger.Debug("stopped session", "app_id", s.handle.ApplicationID)
	return nil
}

// FailVertex makes every later DAG containing the named vertex fail when
// that vertex's level completes, reporting diag.
func (m *MemoryBackend) FailVertex(vertex, diag string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[vertex] = diag
}

// KillDAG terminates a running DAG as KILLED.
func (m *MemoryBackend) KillDAG(dagID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	md, ok := m.dags[dagID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDAG, dagID)
	}
	if md.status.IsCompleted() {
		return nil
	}
	md.kill("Dag killed by user")
	m.finish(m.sessions[md.handle.SessionID], md)
	return nil
}

// ShutdownSession makes the coordinator go away without a stop request.
func (m *MemoryBackend) ShutdownSession(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	s.status = core.SessionShutdown
	return nil
}

// LaunchContext returns what the session was launched with.
func (m *MemoryBackend) LaunchContext(sessionID string) (core.LaunchContext, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok || s.launch == nil {
		return core.LaunchContext{}, false
	}
	return *s.launch, true
}

// StopRequests returns how many times StopSession was called for a session.
func (m *MemoryBackend) StopRequests(sessionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[sessionID]; ok {
		return s.stopReqs
	}
	return 0
}

// Sessions returns the ids of all sessions created so far.
func (m *MemoryBackend) Sessions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Plan returns the DAG the backend parsed for dagID.
func (m *MemoryBackend) Plan(dagID string) (*dag.DAG, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	md, ok := m.dags[dagID]
	if !ok {
		return nil, false
	}
	return md.plan, true
}

func (m *MemoryBackend) session(handle core.SessionHandle) (*memSession, error) {
	s, ok := m.sessions[handle.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, handle.ID)
	}
	return s, nil
}

func (m *MemoryBackend) finish(s *memSession, md *memDAG) {
	if s.running == md {
		s.running = nil
		if s.status == core.SessionRunningDAG {
			s.status = core.SessionReady
		}
	}
	m.opts.Logger.Debug("dag finished", "dag_id", md.handle.DAGID, "state", md.status.State.String())
}

// snapshot derives the status for the current tick. Tick 0 is SUBMITTED;
// tick k runs level k-1; a level's failures surface when it completes.
func (md *memDAG) snapshot() core.DAGStatus {
	status := core.DAGStatus{
		State:          core.DAGRunning,
		ApplicationID:  md.handle.ApplicationID,
		VertexProgress: make(map[string]core.Progress, len(md.tasks)),
	}
	if md.tick == 0 {
		status.State = core.DAGSubmitted
	}

	failedLevel := -1
	for i, level := range md.levels {
		done := i < md.tick-1
		for _, name := range level {
			if _, bad := md.failures[name]; bad && done && failedLevel < 0 {
				failedLevel = i
			}
		}
	}

	for i, level := range md.levels {
		for _, name := range level {
			n := md.tasks[name]
			p := core.Progress{Total: n}
			switch {
			case failedLevel >= 0 && i == failedLevel:
				if diag, bad := md.failures[name]; bad {
					p.Failed = 1
					p.Killed = n - 1
					status.Diagnostics = append(status.Diagnostics, diag)
				} else {
					p.Succeeded = n
				}
			case failedLevel >= 0 && i > failedLevel:
				p.Killed = n
			case i < md.tick-1:
				p.Succeeded = n
			case i == md.tick-1:
				p.Running = n
			}
			status.VertexProgress[name] = p
			status.Progress.Total += p.Total
			status.Progress.Succeeded += p.Succeeded
			status.Progress.Running += p.Running
			status.Progress.Failed += p.Failed
			status.Progress.Killed += p.Killed
		}
	}

	switch {
	case failedLevel >= 0:
		status.State = core.DAGFailed
	case md.tick > len(md.levels):
		status.State = core.DAGSucceeded
	}
	return status
}

func (md *memDAG) kill(diag string) {
	status := md.status
	status.State = core.DAGKilled
	status.Diagnostics = append(append([]string(nil), status.Diagnostics...), diag)
	status.VertexProgress = make(map[string]core.Progress, len(md.status.VertexProgress))
	status.Progress.Killed += status.Progress.Running
	status.Progress.Running = 0
	for name, p := range md.status.VertexProgress {
		p.Killed += p.Running
		p.Running = 0
		status.VertexProgress[name] = p
	}
	md.status = status
}

func copyStatus(s core.DAGStatus) core.DAGStatus {
	out := s
	out.Diagnostics = append([]string(nil), s.Diagnostics...)
	if s.VertexProgress != nil {
		out.VertexProgress = make(map[string]core.Progress, len(s.VertexProgress))
		for k, v := range s.VertexProgress {
			out.VertexProgress[k] = v
		}
	}
	return out
}
