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

// Package gotez is a client runtime for submitting DAG computations to a
// cluster through a long-lived execution session and watching them run to
// completion.
//
// Core Concepts:
//   - ClusterBackend: the coordinator the session talks to (in-process simulator or HTTP gateway).
//   - FileSystem: where session staging artifacts live (local, S3, MinIO).
//   - CredentialProvider: supplies delegation tokens for staging and DAG paths.
//   - DAGFactory: builds a DAG from run properties; registered by name in a Registry.
//   - Runner: composes the pieces per run and always stops its session.
//
// Example usage:
//
//	reg := gotez.NewRegistry()
//	wordcount.Register(reg)
//
//	runner, err := gotez.NewRunner().
//	    WithBackend(backend.NewMemoryBackend()).
//	    WithFileSystem(storage.NewLocalFS()).
//	    WithRegistry(reg).
//	    WithOutput(os.Stdout).
//	    Build()
//	if err != nil { log.Fatal(err) }
//	res, err := runner.Run(ctx, "wordcount", map[string]string{
//	    "wordcount.input":  "/data/in",
//	    "wordcount.output": "/data/out",
//	})
package gotez

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aaronlmathis/gotez/core"
	"github.com/aaronlmathis/gotez/dag"
)

// ClusterBackend launches coordinators and runs submitted DAGs.
type ClusterBackend = core.ClusterBackend

// FileSystem stores session staging artifacts.
type FileSystem = core.FileSystem

// CredentialProvider supplies delegation tokens.
type CredentialProvider = core.CredentialProvider

// FactoryContext is what a DAGFactory may use to build its DAG.
type FactoryContext struct {
	// Properties are the run properties (configuration file merged with
	// command line).
	Properties map[string]string
	// FileSystem is the session staging filesystem.
	FileSystem FileSystem
	// StagingDir is the qualified session staging directory.
	StagingDir string
	Logger     *slog.Logger
}

// Property returns the named run property.
func (fc FactoryContext) Property(key string) (string, bool) {
	v, ok := fc.Properties[key]
	return v, ok && v != ""
}

// RequireProperty returns the named run property or a
// *core.ConfigurationError when it is missing or empty.
func (fc FactoryContext) RequireProperty(key string) (string, error) {
	v, ok := fc.Property(key)
	if !ok {
		return "", &core.ConfigurationError{Field: key, Err: fmt.Errorf("required property is missing")}
	}
	return v, nil
}

// DAGFactory builds the DAG for one run. Factories are registered by name
// at startup instead of being discovered at run time.
type DAGFactory func(ctx context.Context, fc FactoryContext) (*dag.DAG, error)
