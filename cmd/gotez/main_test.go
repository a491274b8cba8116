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

package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig returns a config file with fast polling and staging under a
// temporary directory.
func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	content := fmt.Sprintf(`
session:
  user: tester
  staging_root: %s
  poll_interval: 1ms
  retry_backoff: 1ms
backend:
  type: memory
  splits: 2
%s`, filepath.Join(dir, "staging"), extra)
	path := filepath.Join(dir, "gotez.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	if err == nil {
		return exitOK
	}
	exitErr, ok := err.(*ExitError)
	require.True(t, ok, "unexpected error type %T: %v", err, err)
	return exitErr.Code
}

func TestRunList(t *testing.T) {
	out := &bytes.Buffer{}
	require.NoError(t, run(context.Background(), out, &bytes.Buffer{}, []string{"-list"}))
	assert.Equal(t, "diamond\nsimple\nwordcount\n", out.String())
}

func TestRunHelp(t *testing.T) {
	errW := &bytes.Buffer{}
	require.NoError(t, run(context.Background(), &bytes.Buffer{}, errW, []string{"-h"}))
	assert.Contains(t, errW.String(), "Usage:")
}

func TestRunUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no dag", nil},
		{"too many args", []string{"a", "b", "c"}},
		{"bad flag", []string{"-nope", "simple"}},
		{"bad log level", []string{"-log-level", "loud", "simple"}},
		{"bad log format", []string{"-log-format", "xml", "simple"}},
		{"bad property", []string{"-D", "novalue", "simple"}},
		{"missing config", []string{"simple", filepath.Join(t.TempDir(), "missing.yaml")}},
		{"http without url", []string{"-backend", "http", "simple"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GOTEZ_CONFIG", "")
			err := run(context.Background(), &bytes.Buffer{}, &bytes.Buffer{}, tt.args)
			assert.Equal(t, exitUsage, exitCode(t, err))
		})
	}
}

func TestRunUnknownDAG(t *testing.T) {
	err := run(context.Background(), &bytes.Buffer{}, &bytes.Buffer{}, []string{"nope", writeConfig(t, "")})
	assert.Equal(t, exitUsage, exitCode(t, err))
}

func TestRunTestDAGs(t *testing.T) {
	for _, name := range []string{"simple", "diamond"} {
		t.Run(name, func(t *testing.T) {
			out := &bytes.Buffer{}
			err := run(context.Background(), out, &bytes.Buffer{}, []string{"-log-level", "error", name, writeConfig(t, "")})
			require.NoError(t, err)
			assert.Contains(t, out.String(), "Submitted DAG "+name)
			assert.Contains(t, out.String(), "Succeeded.\n")
		})
	}
}

func TestRunWordcount(t *testing.T) {
	dir := t.TempDir()
	args := []string{
		"-log-format", "json",
		"-D", "wordcount.input=" + filepath.Join(dir, "in"),
		"-D", "wordcount.output=" + filepath.Join(dir, "out"),
		"wordcount", writeConfig(t, ""),
	}
	out := &bytes.Buffer{}
	require.NoError(t, run(context.Background(), out, &bytes.Buffer{}, args))
	assert.Contains(t, out.String(), "Succeeded.\n")

	// a missing property is a configuration error surfaced by the factory
	err := run(context.Background(), &bytes.Buffer{}, &bytes.Buffer{}, []string{"wordcount", writeConfig(t, "")})
	assert.Equal(t, exitUsage, exitCode(t, err))
}

func TestRunParquetHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.parquet")
	cfg := writeConfig(t, fmt.Sprintf("history:\n  parquet:\n    path: %s\n", path))

	require.NoError(t, run(context.Background(), &bytes.Buffer{}, &bytes.Buffer{}, []string{"-log-level", "error", "simple", cfg}))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestRunFailedExitCode(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, "  fail_vertices:\n    summer: task 3 failed\n")
	args := []string{
		"-log-level", "error",
		"-D", "wordcount.input=" + filepath.Join(dir, "in"),
		"-D", "wordcount.output=" + filepath.Join(dir, "out"),
		"wordcount", cfg,
	}
	out := &bytes.Buffer{}
	err := run(context.Background(), out, &bytes.Buffer{}, args)
	assert.Equal(t, exitFailed, exitCode(t, err))
	assert.Contains(t, out.String(), "Failed.\ntask 3 failed\n")
	assert.NotContains(t, out.String(), "Succeeded.")
}
