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

package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/gotez/backend"
	"github.com/aaronlmathis/gotez/core"
	"github.com/aaronlmathis/gotez/credentials"
	"github.com/aaronlmathis/gotez/history"
	"github.com/aaronlmathis/gotez/session"
	"github.com/aaronlmathis/gotez/storage"
)

const sample = `
session:
  name: wordcount
  queue: default
  poll_interval: 250ms
  max_poll_interval: 2s
  max_wait: 10m
  staging_suffix: random
  environment:
    LANG: C
backend:
  type: http
  url: http://coordinator:8080
  token: abc
  timeout: 5s
storage:
  type: s3
  bucket: staging
  region: us-east-1
credentials:
  type: aws
  region: us-east-1
history:
  log: true
tracing:
  exporter: stdout
properties:
  wordcount.input: s3://data/in
  wordcount.output: s3://data/out
`

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gotez.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	f, err := Load(writeFile(t, sample))
	require.NoError(t, err)

	assert.Equal(t, "wordcount", f.Session.Name)
	assert.Equal(t, 250*time.Millisecond, f.Session.PollInterval)
	assert.Equal(t, 2*time.Second, f.Session.MaxPollInterval)
	assert.Equal(t, 10*time.Minute, f.Session.MaxWait)
	assert.Equal(t, session.StagingSuffixRandom, f.Session.StagingSuffix)
	assert.Equal(t, "C", f.Session.Environment["LANG"])

	assert.Equal(t, BackendHTTP, f.Backend.Type)
	assert.Equal(t, 5*time.Second, f.Backend.Timeout)
	assert.Equal(t, storage.TypeS3, f.Storage.Type)
	assert.Equal(t, "staging", f.Storage.Bucket)
	assert.Equal(t, "stdout", f.Tracing.Exporter)
	assert.Equal(t, "s3://data/out", f.Properties["wordcount.output"])

	b, err := f.OpenBackend(slog.Default())
	require.NoError(t, err)
	assert.IsType(t, &backend.HTTPBackend{}, b)
	assert.IsType(t, &credentials.AWSProvider{}, f.CredentialProvider())
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvPath, "")
	f, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, f.Backend.Type)
	assert.Equal(t, storage.TypeLocal, f.Storage.Type)
	assert.NotNil(t, f.Properties)
	assert.IsType(t, credentials.NoopProvider{}, f.CredentialProvider())

	b, err := f.OpenBackend(slog.Default())
	require.NoError(t, err)
	assert.IsType(t, &backend.MemoryBackend{}, b)

	fs, err := f.OpenStorage(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &storage.LocalFS{}, fs)

	// an empty document keeps the defaults
	f, err = Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, f.Backend.Type)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv(EnvPath, writeFile(t, "session:\n  name: from-env\n"))
	f, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-env", f.Session.Name)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		field   string
	}{
		{"unknown key", "sesion:\n  name: x\n", "file"},
		{"bad duration", "session:\n  poll_interval: soon\n", "file"},
		{"unknown backend", "backend:\n  type: yarn\n", "backend.type"},
		{"http without url", "backend:\n  type: http\n", "backend.url"},
		{"unknown credentials", "credentials:\n  type: kerberos\n", "credentials.type"},
		{"parquet without path", "history:\n  parquet:\n    batch_size: 10\n", "history.parquet.path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.content))
			var cfgErr *core.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	var cfgErr *core.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestOpenRecorder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.parquet")
	f, err := Parse([]byte("history:\n  log: true\n  parquet:\n    path: " + path + "\n    batch_size: 1\n"))
	require.NoError(t, err)

	rec, err := f.OpenRecorder(context.Background(), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	require.NoError(t, rec.Record(context.Background(), history.Event{
		Time:    time.Now(),
		Type:    history.EventSessionStarted,
		Session: "wordcount",
	}))
	require.NoError(t, rec.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	_, err = (&File{History: HistoryConfig{Postgres: &PostgresHistory{}}}).OpenRecorder(context.Background(), slog.Default())
	assert.Error(t, err)
}

func TestPostgresCreateTableDefault(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want bool
	}{
		{"omitted", "history:\n  postgres:\n    dsn: postgres://h/db\n", true},
		{"disabled", "history:\n  postgres:\n    dsn: postgres://h/db\n    create_table: false\n", false},
		{"enabled", "history:\n  postgres:\n    dsn: postgres://h/db\n    create_table: true\n", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Parse([]byte(tt.yaml))
			require.NoError(t, err)
			opts := history.PostgresRecorderOptions{CreateTable: true}
			for _, set := range f.History.Postgres.options() {
				set(&opts)
			}
			assert.Equal(t, tt.want, opts.CreateTable)
			assert.Equal(t, "postgres://h/db", opts.DSN)
		})
	}
}

func TestSessionRetrySettings(t *testing.T) {
	f, err := Parse([]byte("session:\n  backend_retries: 0\n  poll_strategy: jittered\n  max_poll_interval: 5s\n"))
	require.NoError(t, err)
	require.NotNil(t, f.Session.BackendRetries)
	assert.Equal(t, 0, *f.Session.BackendRetries)
	assert.Nil(t, f.Session.RetryBackoff)
	assert.Equal(t, session.PollModeJittered, f.Session.PollMode)
}

func TestMemoryFailVertices(t *testing.T) {
	f, err := Parse([]byte("backend:\n  type: memory\n  fail_vertices:\n    summer: task 3 failed\n"))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"summer": "task 3 failed"}, f.Backend.FailVertices)

	b, err := f.OpenBackend(slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	assert.IsType(t, &backend.MemoryBackend{}, b)
}

func TestTracingFromEnv(t *testing.T) {
	t.Setenv("GOTEZ_OTEL_EXPORTER", "stdout")
	t.Setenv("GOTEZ_OTEL_SERVICE", "nightly")

	f := Default()
	assert.Equal(t, "stdout", f.Tracing.Exporter)
	assert.Equal(t, "nightly", f.Tracing.ServiceName)

	f, err := Parse([]byte("tracing:\n  exporter: none\n"))
	require.NoError(t, err)
	assert.Equal(t, "none", f.Tracing.Exporter)
	assert.Equal(t, "nightly", f.Tracing.ServiceName)
}
