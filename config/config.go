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

// Package config loads the YAML run configuration and builds the
// collaborators it describes.
//
// A minimal file:
//
//	session:
//	  name: wordcount
//	  poll_interval: 500ms
//	backend:
//	  type: memory
//	storage:
//	  type: local
//	properties:
//	  wordcount.input: /data/in
//	  wordcount.output: /data/out
package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aaronlmathis/gotez/backend"
	"github.com/aaronlmathis/gotez/core"
	"github.com/aaronlmathis/gotez/credentials"
	"github.com/aaronlmathis/gotez/history"
	"github.com/aaronlmathis/gotez/observability"
	"github.com/aaronlmathis/gotez/session"
	"github.com/aaronlmathis/gotez/storage"
)

// EnvPath names the variable consulted when no path is given.
const EnvPath = "GOTEZ_CONFIG"

// Backend types.
const (
	BackendMemory = "memory"
	BackendHTTP   = "http"
)

// Credential provider types.
const (
	CredentialsNone = "none"
	CredentialsAWS  = "aws"
)

// File is the decoded configuration file.
type File struct {
	Session     session.Config               `yaml:"session"`
	Backend     BackendConfig                `yaml:"backend"`
	Storage     storage.Options              `yaml:"storage"`
	Credentials CredentialsConfig            `yaml:"credentials"`
	History     HistoryConfig                `yaml:"history"`
	Tracing     observability.TracingOptions `yaml:"tracing"`
	Properties  map[string]string            `yaml:"properties"`
}

// BackendConfig selects and configures the cluster backend.
type BackendConfig struct {
	Type       string        `yaml:"type"` // memory or http
	URL        string        `yaml:"url"`
	Token      string        `yaml:"token"`
	Timeout    time.Duration `yaml:"timeout"`
	ReadyAfter int           `yaml:"ready_after"` // memory only
	Splits     int           `yaml:"splits"`      // memory only

	// FailVertices makes the named vertices fail with the given diagnostic
	// (memory only).
	FailVertices map[string]string `yaml:"fail_vertices"`
}

// CredentialsConfig selects the delegation token source.
type CredentialsConfig struct {
	Type            string `yaml:"type"` // none or aws
	Region          string `yaml:"region"`
	Profile         string `yaml:"profile"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
}

// HistoryConfig lists the run history sinks. All configured sinks receive
// every event.
type HistoryConfig struct {
	Log      bool             `yaml:"log"`
	Postgres *PostgresHistory `yaml:"postgres"`
	Mongo    *MongoHistory    `yaml:"mongo"`
	Parquet  *ParquetHistory  `yaml:"parquet"`
}

type PostgresHistory struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
	// CreateTable defaults to true when omitted.
	CreateTable *bool `yaml:"create_table"`
}

func (p *PostgresHistory) options() []history.PostgresRecorderOption {
	opts := []history.PostgresRecorderOption{history.WithPostgresDSN(p.DSN)}
	if p.Table != "" {
		opts = append(opts, history.WithPostgresTable(p.Table))
	}
	if p.CreateTable != nil {
		opts = append(opts, history.WithPostgresCreateTable(*p.CreateTable))
	}
	return opts
}

type MongoHistory struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

type ParquetHistory struct {
	Path      string `yaml:"path"`
	BatchSize int    `yaml:"batch_size"`
}

// Default returns the configuration used when no file is given: the
// in-memory backend, local staging and no credentials. Tracing starts
// from the GOTEZ_OTEL_* environment; a tracing block in a file overrides
// it field by field.
func Default() *File {
	return &File{
		Backend:     BackendConfig{Type: BackendMemory},
		Storage:     storage.Options{Type: storage.TypeLocal},
		Credentials: CredentialsConfig{Type: CredentialsNone},
		Tracing:     observability.TracingOptionsFromEnv(),
		Properties:  make(map[string]string),
	}
}

// Load reads path, or the file named by GOTEZ_CONFIG when path is empty.
// With neither, it returns Default(). Unknown keys are rejected.
func Load(path string) (*File, error) {
	if path == "" {
		path = strings.TrimSpace(os.Getenv(EnvPath))
	}
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &core.ConfigurationError{Field: "file", Err: err}
	}
	return Parse(data)
}

// Parse decodes YAML configuration on top of Default().
func Parse(data []byte) (*File, error) {
	f := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(f); err != nil && !errors.Is(err, io.EOF) {
		return nil, &core.ConfigurationError{Field: "file", Err: err}
	}
	if f.Properties == nil {
		f.Properties = make(map[string]string)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Validate checks the selections the builders depend on. Session settings
// are validated when the session is created.
func (f *File) Validate() error {
	switch f.Backend.Type {
	case BackendMemory:
	case BackendHTTP:
		if f.Backend.URL == "" {
			return &core.ConfigurationError{Field: "backend.url", Err: fmt.Errorf("required for the http backend")}
		}
	default:
		return &core.ConfigurationError{Field: "backend.type", Err: fmt.Errorf("unknown backend %q", f.Backend.Type)}
	}
	switch f.Credentials.Type {
	case "", CredentialsNone, CredentialsAWS:
	default:
		return &core.ConfigurationError{Field: "credentials.type", Err: fmt.Errorf("unknown provider %q", f.Credentials.Type)}
	}
	if p := f.History.Parquet; p != nil && p.Path == "" {
		return &core.ConfigurationError{Field: "history.parquet.path", Err: fmt.Errorf("required")}
	}
	return nil
}

// OpenBackend builds the configured cluster backend.
func (f *File) OpenBackend(logger *slog.Logger) (core.ClusterBackend, error) {
	switch f.Backend.Type {
	case BackendHTTP:
		opts := []backend.HTTPOption{backend.WithToken(f.Backend.Token)}
		if f.Backend.Timeout > 0 {
			opts = append(opts, backend.WithTimeout(f.Backend.Timeout))
		}
		b, err := backend.NewHTTPBackend(f.Backend.URL, opts...)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		opts := []backend.MemoryOption{backend.WithMemoryLogger(logger)}
		if f.Backend.ReadyAfter > 0 {
			opts = append(opts, backend.WithReadyAfter(f.Backend.ReadyAfter))
		}
		if f.Backend.Splits > 0 {
			opts = append(opts, backend.WithSplits(f.Backend.Splits))
		}
		mem := backend.NewMemoryBackend(opts...)
		for vertex, diag := range f.Backend.FailVertices {
			mem.FailVertex(vertex, diag)
		}
		return mem, nil
	}
}

// OpenStorage builds the staging filesystem.
func (f *File) OpenStorage(ctx context.Context) (core.FileSystem, error) {
	return storage.Open(ctx, f.Storage)
}

// CredentialProvider builds the delegation token source.
func (f *File) CredentialProvider() core.CredentialProvider {
	if f.Credentials.Type != CredentialsAWS {
		return credentials.NoopProvider{}
	}
	c := f.Credentials
	opts := []credentials.AWSOption{credentials.WithRegion(c.Region), credentials.WithProfile(c.Profile)}
	if c.AccessKeyID != "" {
		opts = append(opts, credentials.WithStaticKeys(c.AccessKeyID, c.SecretAccessKey, c.SessionToken))
	}
	return credentials.NewAWSProvider(opts...)
}

// OpenRecorder connects every configured history sink. On failure the sinks
// already opened are closed.
func (f *File) OpenRecorder(ctx context.Context, logger *slog.Logger) (history.Recorder, error) {
	multi := history.NewMultiRecorder()
	fail := func(err error) (history.Recorder, error) {
		if cerr := multi.Close(); cerr != nil {
			logger.Warn("failed to close history recorders", "error", cerr)
		}
		return nil, err
	}

	if f.History.Log {
		multi.Add(history.NewLogRecorder(logger, slog.LevelInfo))
	}
	if p := f.History.Postgres; p != nil {
		r, err := history.NewPostgresRecorder(ctx, p.options()...)
		if err != nil {
			return fail(err)
		}
		multi.Add(r)
	}
	if m := f.History.Mongo; m != nil {
		opts := []history.MongoRecorderOption{history.WithMongoURI(m.URI)}
		if m.Database != "" {
			opts = append(opts, history.WithMongoDatabase(m.Database))
		}
		if m.Collection != "" {
			opts = append(opts, history.WithMongoCollection(m.Collection))
		}
		r, err := history.NewMongoRecorder(ctx, opts...)
		if err != nil {
			return fail(err)
		}
		multi.Add(r)
	}
	if p := f.History.Parquet; p != nil {
		var opts []history.ParquetRecorderOption
		if p.BatchSize > 0 {
			opts = append(opts, history.WithParquetBatchSize(p.BatchSize))
		}
		r, err := history.NewParquetRecorder(p.Path, opts...)
		if err != nil {
			return fail(err)
		}
		multi.Add(r)
	}
	return multi, nil
}
