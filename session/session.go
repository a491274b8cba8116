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

// Package session manages the lifetime of a cluster-side coordinator and the
// DAGs submitted to it.
//
// A Session moves through INITIALIZING, READY, RUNNING_DAG and SHUTDOWN.
// Start allocates the application, stages resources and launches the
// coordinator without waiting for it; WaitTillReady polls until the
// coordinator accepts work. Stop may be called any number of times, before
// or after Start, and releases the coordinator before staging artifacts.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/aaronlmathis/gotez/core"
	"github.com/aaronlmathis/gotez/credentials"
	"github.com/aaronlmathis/gotez/dag"
	"github.com/aaronlmathis/gotez/history"
	"github.com/aaronlmathis/gotez/observability"
)

// Options holds the collaborators a session is built with.
type Options struct {
	Credentials core.CredentialProvider
	Recorder    history.Recorder
	Logger      *slog.Logger
}

// Option configures a Session.
type Option func(*Options)

// WithCredentialProvider sets the source of delegation tokens.
func WithCredentialProvider(p core.CredentialProvider) Option {
	return func(o *Options) {
		o.Credentials = p
	}
}

// WithRecorder sets where lifecycle events are recorded.
func WithRecorder(r history.Recorder) Option {
	return func(o *Options) {
		o.Recorder = r
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// Session is a handle to one coordinator. It is safe for concurrent use.
type Session struct {
	cfg      Config
	id       string
	backend  core.ClusterBackend
	stager   *stager
	creds    core.CredentialProvider
	recorder history.Recorder
	logger   *slog.Logger

	mu          sync.Mutex
	appLogger   *slog.Logger // logger tagged with the application id
	handle      *core.SessionHandle
	stagingDir  string
	credentials core.CredentialSet
	started     bool
	stopped     bool
	readySeen   bool

	// submitMu serialises submissions.
	submitMu sync.Mutex
}

// New validates cfg and returns an unstarted session.
func New(cfg Config, backend core.ClusterBackend, fs core.FileSystem, setters ...Option) (*Session, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if backend == nil {
		return nil, &core.ConfigurationError{Field: "backend", Err: fmt.Errorf("cluster backend is required")}
	}
	if fs == nil {
		return nil, &core.ConfigurationError{Field: "storage", Err: fmt.Errorf("staging filesystem is required")}
	}

	opts := Options{
		Credentials: credentials.NoopProvider{},
		Recorder:    history.NopRecorder{},
		Logger:      slog.Default(),
	}
	for _, set := range setters {
		set(&opts)
	}

	id := uuid.NewString()
	return &Session{
		cfg:         cfg,
		id:          id,
		backend:     backend,
		stager:      &stager{fs: fs, creds: opts.Credentials},
		creds:       opts.Credentials,
		recorder:    opts.Recorder,
		logger:      opts.Logger.With("session", cfg.Name, "session_id", id),
		credentials: core.NewCredentialSet(),
	}, nil
}

func (s *Session) Name() string   { return s.cfg.Name }
func (s *Session) ID() string     { return s.id }
func (s *Session) Config() Config { return s.cfg }

// ApplicationID returns the cluster application id, empty before Start.
func (s *Session) ApplicationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		return ""
	}
	return s.handle.ApplicationID
}

// StagingDir returns the qualified staging directory, empty before staging.
func (s *Session) StagingDir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stagingDir
}

// Credentials returns the tokens obtained while staging.
func (s *Session) Credentials() core.CredentialSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := core.NewCredentialSet()
	out.Merge(s.credentials)
	return out
}

// Start allocates the application, stages resources and asks the backend to
// launch the coordinator. It does not wait for READY.
func (s *Session) Start(ctx context.Context) (err error) {
	ctx, span := observability.StartSpan(ctx, "session.start", attribute.String("gotez.session", s.cfg.Name))
	defer func() { observability.EndSpan(span, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return &core.SessionStateError{Op: "start", State: core.SessionShutdown}
	}
	if s.started {
		return &core.SessionStateError{Op: "start", State: core.SessionInitializing, Err: fmt.Errorf("already started")}
	}
	s.started = true

	s.logger.Info("creating session", "queue", s.cfg.Queue, "memory_mb", s.cfg.MemoryMB, "vcores", s.cfg.VCores)
	handle, err := s.backend.CreateSession(ctx, s.cfg.spec())
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	s.handle = &handle
	s.appLogger = s.logger.With("app_id", handle.ApplicationID)
	logger := s.appLogger

	staged, err := s.stager.stage(ctx, s.cfg, s.id, handle, func(dir string) {
		s.stagingDir = dir
	})
	if err != nil {
		return err
	}
	s.credentials.Merge(staged.Credentials)
	logger.Debug("staged session resources", "staging_dir", staged.Dir, "credentials", staged.Credentials.String())

	launch := core.LaunchContext{
		StagingDir:  staged.Dir,
		ConfPath:    staged.ConfPath,
		Credentials: staged.Credentials,
	}
	if err := s.backend.StartSession(ctx, handle, launch); err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	logger.Info("session started", "staging_dir", staged.Dir)
	s.record(ctx, history.Event{Type: history.EventSessionStarted, ApplicationID: handle.ApplicationID})
	return nil
}

// Status performs one status call and never waits for a transition. After
// Stop it reports SHUTDOWN without contacting the backend.
func (s *Session) Status(ctx context.Context) (core.SessionStatus, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return core.SessionShutdown, nil
	}
	if s.handle == nil {
		s.mu.Unlock()
		return "", &core.SessionStateError{Op: "status", State: core.SessionInitializing, Err: core.ErrNotStarted}
	}
	handle := *s.handle
	s.mu.Unlock()

	status, err := s.backend.SessionStatus(ctx, handle)
	if err != nil {
		return "", err
	}
	if !status.Valid() {
		return "", fmt.Errorf("session status: backend reported unknown status %q", status)
	}
	return status, nil
}

// WaitTillReady polls Status until READY. SHUTDOWN observed before Stop is an
// *core.UnexpectedShutdownError.
func (s *Session) WaitTillReady(ctx context.Context, setters ...MonitorOption) (err error) {
	ctx, span := observability.StartSpan(ctx, "session.wait_ready", attribute.String("gotez.session", s.cfg.Name))
	defer func() { observability.EndSpan(span, err) }()

	opts := s.monitorOptions(setters)
	return poll(ctx, opts, s.log(), "wait for session", func(ctx context.Context) (bool, error) {
		status, err := s.Status(ctx)
		if err != nil {
			return false, err
		}
		if opts.SessionProgress != nil {
			opts.SessionProgress(status)
		}
		switch status {
		case core.SessionReady:
			s.markReady(ctx)
			return true, nil
		case core.SessionShutdown:
			return false, s.shutdownError("wait")
		}
		return false, nil
	})
}

// Submit sends d to a READY coordinator. Submissions are serialised; a
// second DAG submitted while one runs fails the READY check.
func (s *Session) Submit(ctx context.Context, d *dag.DAG) (client *DAGClient, err error) {
	if d == nil {
		return nil, &dag.InvalidDAGError{Reason: "nil dag"}
	}
	ctx, span := observability.StartSpan(ctx, "session.submit",
		attribute.String("gotez.session", s.cfg.Name), attribute.String("gotez.dag", d.Name()))
	defer func() { observability.EndSpan(span, err) }()

	s.submitMu.Lock()
	defer s.submitMu.Unlock()

	if err := d.Validate(); err != nil {
		return nil, err
	}

	status, err := s.Status(ctx)
	if err != nil {
		return nil, err
	}
	switch status {
	case core.SessionReady:
	case core.SessionShutdown:
		return nil, s.shutdownError("submit")
	default:
		return nil, &core.SessionStateError{Op: "submit", State: status}
	}

	if paths := d.AccessPaths(); len(paths) > 0 {
		tokens, err := s.creds.ObtainTokens(ctx, paths)
		if err != nil {
			return nil, fmt.Errorf("obtain tokens for dag %s: %w", d.Name(), err)
		}
		d.AddCredentials(tokens)
	}
	d.AddCredentials(s.Credentials())

	plan, err := dag.MarshalPlan(d)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	handle := *s.handle
	s.mu.Unlock()

	dagHandle, err := s.backend.SubmitDAG(ctx, handle, plan)
	if err != nil {
		return nil, fmt.Errorf("submit dag %s: %w", d.Name(), err)
	}
	if dagHandle.Name == "" {
		dagHandle.Name = d.Name()
	}
	if dagHandle.ApplicationID == "" {
		dagHandle.ApplicationID = handle.ApplicationID
	}

	s.log().Info("submitted dag", "dag", dagHandle.Name, "dag_id", dagHandle.DAGID, "vertices", len(d.Vertices()))
	s.record(ctx, history.Event{
		Type:          history.EventDAGSubmitted,
		ApplicationID: dagHandle.ApplicationID,
		DAGName:       dagHandle.Name,
		DAGID:         dagHandle.DAGID,
		State:         core.DAGSubmitted.String(),
	})
	return newDAGClient(s, dagHandle), nil
}

// Stop terminates the coordinator and then removes the staging directory.
// It is idempotent and safe when Start never ran or failed part way.
// Staging cleanup failures are logged only.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil
	}
	s.stopped = true
	if s.handle == nil && s.stagingDir == "" {
		return nil
	}

	logger := s.loggerLocked()
	var err error
	if s.handle != nil {
		logger.Info("stopping session")
		if stopErr := s.backend.StopSession(ctx, *s.handle); stopErr != nil {
			err = fmt.Errorf("stop session: %w", stopErr)
		}
	}
	if s.stagingDir != "" {
		if delErr := s.stager.fs.Delete(ctx, s.stagingDir, true); delErr != nil {
			logger.Warn("failed to delete staging directory", "staging_dir", s.stagingDir, "error", delErr)
		}
	}

	ev := history.Event{Type: history.EventSessionStopped, State: core.SessionShutdown.String()}
	if s.handle != nil {
		ev.ApplicationID = s.handle.ApplicationID
	}
	if err != nil {
		ev.Diagnostics = []string{err.Error()}
	}
	s.record(ctx, ev)
	return err
}

// log returns the session logger, tagged with the application id once Start
// has allocated one.
func (s *Session) log() *slog.Logger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggerLocked()
}

// loggerLocked is log for callers holding s.mu.
func (s *Session) loggerLocked() *slog.Logger {
	if s.appLogger != nil {
		return s.appLogger
	}
	return s.logger
}

func (s *Session) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// shutdownError distinguishes a caller using a stopped session from the
// coordinator going away on its own.
func (s *Session) shutdownError(op string) error {
	if s.isStopped() {
		return &core.SessionStateError{Op: op, State: core.SessionShutdown}
	}
	diag := fmt.Sprintf("coordinator for application %s reached SHUTDOWN before stop", s.ApplicationID())
	s.log().Error("unexpected session shutdown", "op", op)
	return &core.UnexpectedShutdownError{Session: s.cfg.Name, Diagnostics: []string{diag}}
}

func (s *Session) markReady(ctx context.Context) {
	s.mu.Lock()
	first := !s.readySeen
	s.readySeen = true
	s.mu.Unlock()
	if first {
		s.log().Info("session ready")
		s.record(ctx, history.Event{Type: history.EventSessionReady, ApplicationID: s.ApplicationID(), State: core.SessionReady.String()})
	}
}

// record stamps ev with session identity. Recorder failures are logged only.
func (s *Session) record(ctx context.Context, ev history.Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	ev.Session = s.cfg.Name
	ev.SessionID = s.id
	if err := s.recorder.Record(ctx, ev); err != nil {
		s.logger.Warn("failed to record history event", "event", string(ev.Type), "app_id", ev.ApplicationID, "error", err)
	}
}
