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
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/gotez/core"
	"github.com/aaronlmathis/gotez/dag"
	"github.com/aaronlmathis/gotez/session"
	"github.com/aaronlmathis/gotez/storage"
)

func diamondPlan(t *testing.T) []byte {
	t.Helper()
	res := dag.Resource{MemoryMB: 256, VCores: 1}
	sg := dag.NewEdgeProperty(dag.ScatterGather, dag.Persisted, dag.Sequential,
		dag.NewOutput(dag.OnFileSortedOutput, nil), dag.NewInput(dag.ShuffledMergedInput, nil))
	d, err := dag.NewDAGBuilder("diamond").
		NewVertex("v1", dag.NewProcessor("P", nil), dag.ParallelismFromSplits, res,
			dag.WithDataSource("in", dag.NewInput("MRInput", nil), "MRInputAMSplitGenerator")).
		NewVertex("v2", dag.NewProcessor("P", nil), 2, res).
		NewVertex("v3", dag.NewProcessor("P", nil), 3, res).
		NewVertex("v4", dag.NewProcessor("P", nil), 1, res).
		Connect("v1", "v2", sg).
		Connect("v1", "v3", sg).
		Connect("v2", "v4", sg).
		Connect("v3", "v4", sg).
		Build()
	require.NoError(t, err)
	plan, err := dag.MarshalPlan(d)
	require.NoError(t, err)
	return plan
}

func readySession(t *testing.T, m *MemoryBackend) core.SessionHandle {
	t.Helper()
	ctx := context.Background()
	h, err := m.CreateSession(ctx, core.SessionSpec{Name: "test"})
	require.NoError(t, err)
	require.NoError(t, m.StartSession(ctx, h, core.LaunchContext{StagingDir: "file:///tmp/x"}))
	for {
		st, err := m.SessionStatus(ctx, h)
		require.NoError(t, err)
		if st == core.SessionReady {
			return h
		}
	}
}

func drain(t *testing.T, m *MemoryBackend, h core.DAGHandle) []core.DAGStatus {
	t.Helper()
	var seen []core.DAGStatus
	for i := 0; i < 20; i++ {
		st, err := m.GetDAGStatus(context.Background(), h)
		require.NoError(t, err)
		seen = append(seen, st)
		if st.IsCompleted() {
			return seen
		}
	}
	t.Fatal("dag never completed")
	return nil
}

func states(seen []core.DAGStatus) []core.DAGState {
	out := make([]core.DAGState, len(seen))
	for i, s := range seen {
		out[i] = s.State
	}
	return out
}

func TestMemorySessionLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryBackend(WithReadyAfter(2))
	h, err := m.CreateSession(ctx, core.SessionSpec{Name: "wc"})
	require.NoError(t, err)
	assert.Regexp(t, `^application_\d+_0001$`, h.ApplicationID)

	// not launched yet
	st, err := m.SessionStatus(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, core.SessionInitializing, st)

	require.NoError(t, m.StartSession(ctx, h, core.LaunchContext{StagingDir: "s3://b/x"}))
	var seen []core.SessionStatus
	for i := 0; i < 3; i++ {
		st, err := m.SessionStatus(ctx, h)
		require.NoError(t, err)
		seen = append(seen, st)
	}
	assert.Equal(t, []core.SessionStatus{core.SessionInitializing, core.SessionInitializing, core.SessionReady}, seen)

	launch, ok := m.LaunchContext(h.ID)
	require.True(t, ok)
	assert.Equal(t, "s3://b/x", launch.StagingDir)

	require.NoError(t, m.StopSession(ctx, h))
	require.NoError(t, m.StopSession(ctx, h))
	assert.Equal(t, 2, m.StopRequests(h.ID))
	st, err = m.SessionStatus(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, core.SessionShutdown, st)

	_, err = m.SessionStatus(ctx, core.SessionHandle{ID: "nope"})
	assert.ErrorIs(t, err, ErrUnknownSession)
}

func TestMemoryWalksLevels(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryBackend(WithSplits(5))
	h := readySession(t, m)

	dh, err := m.SubmitDAG(ctx, h, diamondPlan(t))
	require.NoError(t, err)
	assert.Equal(t, "diamond", dh.Name)

	st, err := m.SessionStatus(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, core.SessionRunningDAG, st)

	// a second DAG is refused while one runs
	_, err = m.SubmitDAG(ctx, h, diamondPlan(t))
	var stateErr *core.SessionStateError
	assert.ErrorAs(t, err, &stateErr)

	seen := drain(t, m, dh)
	assert.Equal(t, []core.DAGState{
		core.DAGSubmitted, core.DAGRunning, core.DAGRunning, core.DAGRunning, core.DAGSucceeded,
	}, states(seen))

	running := seen[2]
	assert.Equal(t, core.Progress{Total: 5, Succeeded: 5}, running.VertexProgress["v1"])
	assert.Equal(t, core.Progress{Total: 2, Running: 2}, running.VertexProgress["v2"])
	assert.Equal(t, core.Progress{Total: 3, Running: 3}, running.VertexProgress["v3"])
	assert.Equal(t, core.Progress{Total: 1}, running.VertexProgress["v4"])

	final := seen[len(seen)-1]
	assert.Equal(t, core.Progress{Total: 11, Succeeded: 11}, final.Progress)
	assert.Equal(t, dh.ApplicationID, final.ApplicationID)

	// completed states are stable
	again, err := m.GetDAGStatus(ctx, dh)
	require.NoError(t, err)
	assert.Equal(t, core.DAGSucceeded, again.State)

	st, err = m.SessionStatus(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, core.SessionReady, st)

	parsed, ok := m.Plan(dh.DAGID)
	require.True(t, ok)
	assert.Len(t, parsed.Vertices(), 4)
}

func TestMemoryFailVertex(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryBackend()
	m.FailVertex("v2", "task 3 failed")
	h := readySession(t, m)

	dh, err := m.SubmitDAG(ctx, h, diamondPlan(t))
	require.NoError(t, err)
	seen := drain(t, m, dh)
	final := seen[len(seen)-1]

	assert.Equal(t, core.DAGFailed, final.State)
	assert.Equal(t, []string{"task 3 failed"}, final.Diagnostics)
	assert.Equal(t, 1, final.VertexProgress["v2"].Failed)
	assert.Equal(t, 3, final.VertexProgress["v3"].Succeeded)
	assert.Equal(t, 1, final.VertexProgress["v4"].Killed)
}

func TestMemoryKillAndShutdown(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryBackend()
	h := readySession(t, m)

	dh, err := m.SubmitDAG(ctx, h, diamondPlan(t))
	require.NoError(t, err)
	_, err = m.GetDAGStatus(ctx, dh)
	require.NoError(t, err)
	require.NoError(t, m.KillDAG(dh.DAGID))

	st, err := m.GetDAGStatus(ctx, dh)
	require.NoError(t, err)
	assert.Equal(t, core.DAGKilled, st.State)
	assert.Contains(t, st.Diagnostics, "Dag killed by user")

	dh2, err := m.SubmitDAG(ctx, h, diamondPlan(t))
	require.NoError(t, err)
	require.NoError(t, m.ShutdownSession(h.ID))
	_, err = m.GetDAGStatus(ctx, dh2)
	assert.ErrorIs(t, err, ErrSessionShutdown)
}

func TestMemoryRejectsBadPlans(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryBackend()
	h := readySession(t, m)

	_, err := m.SubmitDAG(ctx, h, []byte(`{"version":1,"name":""}`))
	var invalid *dag.InvalidDAGError
	assert.ErrorAs(t, err, &invalid)

	_, err = m.SubmitDAG(ctx, h, []byte(`not json`))
	assert.ErrorAs(t, err, &invalid)
}

func TestHTTPBackendRoundTrip(t *testing.T) {
	mem := NewMemoryBackend()
	srv := httptest.NewServer(NewHandler(mem, nil))
	defer srv.Close()

	client, err := NewHTTPBackend(srv.URL)
	require.NoError(t, err)

	cfg := session.DefaultConfig("remote")
	cfg.StagingRoot = t.TempDir()
	cfg.PollInterval = time.Millisecond
	sess, err := session.New(cfg, client, storage.NewLocalFS())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, sess.Start(ctx))
	require.NoError(t, sess.WaitTillReady(ctx))

	d, err := dag.ParsePlan(diamondPlan(t))
	require.NoError(t, err)
	dc, err := sess.Submit(ctx, d)
	require.NoError(t, err)
	status, err := dc.WaitForCompletion(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.DAGSucceeded, status.State)
	assert.Equal(t, sess.ApplicationID(), status.ApplicationID)

	require.NoError(t, sess.Stop(ctx))
	ids := mem.Sessions()
	require.Len(t, ids, 1)
	assert.Equal(t, 1, mem.StopRequests(ids[0]))

	// stop on an unknown session is treated as already stopped
	assert.NoError(t, client.StopSession(ctx, core.SessionHandle{ID: "gone"}))
}

func TestHTTPBackendUnavailable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "Bearer s3cret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"coordinator restarting"}`))
	}))
	defer srv.Close()

	client, err := NewHTTPBackend(srv.URL, WithToken("s3cret"))
	require.NoError(t, err)

	_, err = client.SessionStatus(context.Background(), core.SessionHandle{ID: "s"})
	require.True(t, core.IsBackendUnavailable(err))
	assert.ErrorContains(t, err, "coordinator restarting")
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPBackendClientErrors(t *testing.T) {
	mem := NewMemoryBackend()
	srv := httptest.NewServer(NewHandler(mem, nil))
	defer srv.Close()
	client, err := NewHTTPBackend(srv.URL)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = client.SessionStatus(ctx, core.SessionHandle{ID: "missing"})
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
	assert.False(t, core.IsBackendUnavailable(err))

	// submit before the coordinator is ready
	h, err := client.CreateSession(ctx, core.SessionSpec{Name: "x"})
	require.NoError(t, err)
	_, err = client.SubmitDAG(ctx, h, diamondPlan(t))
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusConflict, httpErr.StatusCode)
}

func TestHTTPBackendConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client, err := NewHTTPBackend(url, WithTimeout(time.Second))
	require.NoError(t, err)
	_, err = client.CreateSession(context.Background(), core.SessionSpec{Name: "x"})
	assert.True(t, core.IsBackendUnavailable(err))

	_, err = NewHTTPBackend("not a url")
	var cfgErr *core.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}
