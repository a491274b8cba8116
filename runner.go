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

package gotez

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aaronlmathis/gotez/core"
	"github.com/aaronlmathis/gotez/credentials"
	"github.com/aaronlmathis/gotez/history"
	"github.com/aaronlmathis/gotez/session"
)

// RunnerBuilder provides a fluent API for constructing a Runner.
// Use NewRunner() to create a builder, then chain the With methods and Build.
type RunnerBuilder struct {
	runner *Runner
}

// NewRunner creates a RunnerBuilder with an empty registry, a discarded
// progress output and the default logger.
func NewRunner() *RunnerBuilder {
	return &RunnerBuilder{
		runner: &Runner{
			registry:    NewRegistry(),
			credentials: credentials.NoopProvider{},
			recorder:    history.NopRecorder{},
			out:         io.Discard,
			logger:      slog.Default(),
		},
	}
}

// WithBackend sets the cluster backend. Required.
func (rb *RunnerBuilder) WithBackend(b ClusterBackend) *RunnerBuilder {
	rb.runner.backend = b
	return rb
}

// WithFileSystem sets the staging filesystem. Required.
func (rb *RunnerBuilder) WithFileSystem(fs FileSystem) *RunnerBuilder {
	rb.runner.fs = fs
	return rb
}

// WithCredentials sets the delegation token source.
func (rb *RunnerBuilder) WithCredentials(p CredentialProvider) *RunnerBuilder {
	if p != nil {
		rb.runner.credentials = p
	}
	return rb
}

// WithRecorder sets the run history sink.
func (rb *RunnerBuilder) WithRecorder(r history.Recorder) *RunnerBuilder {
	if r != nil {
		rb.runner.recorder = r
	}
	return rb
}

// WithSessionConfig sets the session configuration template. An empty
// session name is replaced by the DAG name on each run.
func (rb *RunnerBuilder) WithSessionConfig(cfg session.Config) *RunnerBuilder {
	rb.runner.cfg = cfg
	return rb
}

// WithRegistry sets where DAG factories are looked up.
func (rb *RunnerBuilder) WithRegistry(r *Registry) *RunnerBuilder {
	if r != nil {
		rb.runner.registry = r
	}
	return rb
}

// WithOutput sets where human readable progress lines are written.
func (rb *RunnerBuilder) WithOutput(w io.Writer) *RunnerBuilder {
	if w != nil {
		rb.runner.out = w
	}
	return rb
}

// WithLogger sets the structured logger.
func (rb *RunnerBuilder) WithLogger(l *slog.Logger) *RunnerBuilder {
	if l != nil {
		rb.runner.logger = l
	}
	return rb
}

// WithMonitorOptions adds options applied to every readiness and
// completion wait.
func (rb *RunnerBuilder) WithMonitorOptions(opts ...session.MonitorOption) *RunnerBuilder {
	rb.runner.monitor = append(rb.runner.monitor, opts...)
	return rb
}

// Build validates the builder and returns the Runner.
func (rb *RunnerBuilder) Build() (*Runner, error) {
	if rb.runner.backend == nil {
		return nil, &core.ConfigurationError{Field: "backend", Err: fmt.Errorf("runner requires a cluster backend")}
	}
	if rb.runner.fs == nil {
		return nil, &core.ConfigurationError{Field: "storage", Err: fmt.Errorf("runner requires a staging filesystem")}
	}
	return rb.runner, nil
}

// Runner drives one DAG per Run call through its own session. Nothing is
// shared between runs except the collaborators given to the builder.
type Runner struct {
	backend     ClusterBackend
	fs          FileSystem
	credentials CredentialProvider
	recorder    history.Recorder
	registry    *Registry
	cfg         session.Config
	monitor     []session.MonitorOption
	out         io.Writer
	logger      *slog.Logger
}

// Result is the outcome of a run whose DAG reached a completed state.
type Result struct {
	DAGName       string
	Succeeded     bool
	State         core.DAGState
	Diagnostics   []string
	ApplicationID string
	Progress      core.Progress
	Vertices      map[string]core.Progress // final progress per vertex
	Duration      time.Duration
}

// Run looks up the named factory, starts a session, waits for it to become
// ready, builds and submits the DAG and waits for it to complete.
//
// A DAG that completes in any state is a Result, not an error; check
// Result.Succeeded. Errors are reserved for configuration, staging, session
// state, backend and cancellation failures. The session is stopped exactly
// once on every path, on a context detached from ctx's cancellation.
func (r *Runner) Run(ctx context.Context, dagName string, props map[string]string) (res *Result, err error) {
	factory, err := r.registry.Lookup(dagName)
	if err != nil {
		return nil, err
	}

	cfg := r.cfg
	if cfg.Name == "" {
		cfg.Name = dagName
	}
	merged := make(map[string]string, len(cfg.Properties)+len(props))
	for k, v := range cfg.Properties {
		merged[k] = v
	}
	for k, v := range props {
		merged[k] = v
	}
	cfg.Properties = merged

	logger := r.logger.With("dag", dagName)
	sess, err := session.New(cfg, r.backend, r.fs,
		session.WithCredentialProvider(r.credentials),
		session.WithRecorder(r.recorder),
		session.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sess.Config().StopTimeout)
		defer cancel()
		if stopErr := sess.Stop(stopCtx); stopErr != nil {
			if err == nil {
				err = stopErr
				return
			}
			logger.Error("failed to stop session", "error", stopErr)
		}
	}()

	if err := sess.Start(ctx); err != nil {
		return nil, err
	}

	readyOpts := append([]session.MonitorOption{
		session.WithSessionProgress(func(st core.SessionStatus) {
			if st != core.SessionReady {
				fmt.Fprintf(r.out, "Waiting for session to be ready. Current: %s\n", st)
			}
		}),
	}, r.monitor...)
	if err := sess.WaitTillReady(ctx, readyOpts...); err != nil {
		return nil, err
	}

	d, err := factory(ctx, FactoryContext{
		Properties: merged,
		FileSystem: r.fs,
		StagingDir: sess.StagingDir(),
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build dag %s: %w", dagName, err)
	}

	client, err := sess.Submit(ctx, d)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(r.out, "Submitted DAG %s. DAG appId: %s\n", client.Name(), client.ApplicationID())

	doneOpts := append([]session.MonitorOption{
		session.WithProgress(func(st core.DAGStatus) {
			if !st.IsCompleted() {
				fmt.Fprintf(r.out, "Waiting for dag to complete. DAG name: %s, DAG appId: %s, Current state: %s\n",
					client.Name(), st.ApplicationID, st.State)
			}
		}),
	}, r.monitor...)
	status, err := client.WaitForCompletion(ctx, doneOpts...)
	if err != nil {
		return nil, err
	}

	for _, name := range status.VertexNames() {
		fmt.Fprintf(r.out, "Vertex %s: %s\n", name, status.VertexProgress[name])
	}

	outcome := session.Classify(status)
	res = &Result{
		DAGName:       client.Name(),
		Succeeded:     outcome.Succeeded,
		State:         outcome.State,
		Diagnostics:   outcome.Diagnostics,
		ApplicationID: outcome.ApplicationID,
		Progress:      status.Progress,
		Vertices:      status.VertexProgress,
		Duration:      time.Since(started),
	}
	logger.Info("dag finished", "state", res.State.String(), "app_id", res.ApplicationID, "duration", res.Duration)
	return res, nil
}
