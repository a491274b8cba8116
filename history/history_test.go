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

package history

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/apache/arrow/go/v12/parquet/file"
	"github.com/apache/arrow/go/v12/parquet/pqarrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/gotez/core"
)

func sampleEvent(t EventType) Event {
	return Event{
		Time:          time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Type:          t,
		Session:       "WordCountSession",
		SessionID:     "s-1",
		ApplicationID: "application_1_0001",
		DAGName:       "WordCount",
		DAGID:         "dag_1",
		State:         "RUNNING",
		Progress:      core.Progress{Total: 4, Succeeded: 1, Running: 3},
	}
}

type failingRecorder struct {
	calls int
}

func (f *failingRecorder) Record(context.Context, Event) error {
	f.calls++
	return errors.New("sink down")
}

func (f *failingRecorder) Close() error { return errors.New("close failed") }

func TestMultiRecorderFansOut(t *testing.T) {
	mem := &MemoryRecorder{}
	bad := &failingRecorder{}
	multi := NewMultiRecorder(mem, nil, bad)

	err := multi.Record(context.Background(), sampleEvent(EventDAGSubmitted))
	assert.EqualError(t, err, "sink down")
	assert.Equal(t, 1, bad.calls)
	assert.Equal(t, []EventType{EventDAGSubmitted}, mem.Types())

	assert.Error(t, multi.Close())
}

func TestLogRecorder(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	rec := NewLogRecorder(logger, slog.LevelInfo)

	ev := sampleEvent(EventDAGFinished)
	ev.State = "FAILED"
	ev.Diagnostics = []string{"task 3 failed"}
	require.NoError(t, rec.Record(context.Background(), ev))

	out := buf.String()
	assert.Contains(t, out, "event=DAG_FINISHED")
	assert.Contains(t, out, "state=FAILED")
	assert.Contains(t, out, `diagnostics="task 3 failed"`)
	assert.Contains(t, out, "app_id=application_1_0001")
}

func TestParquetRecorderWritesRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.parquet")
	rec, err := NewParquetRecorder(path, WithParquetBatchSize(2))
	require.NoError(t, err)

	for _, typ := range []EventType{EventSessionStarted, EventDAGSubmitted, EventDAGFinished} {
		require.NoError(t, rec.Record(context.Background(), sampleEvent(typ)))
	}
	assert.Equal(t, int64(2), rec.Written())
	require.NoError(t, rec.Close())
	assert.NoError(t, rec.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	pf, err := file.NewParquetReader(f)
	require.NoError(t, err)
	defer pf.Close()
	assert.Equal(t, int64(3), pf.NumRows())

	reader, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, memory.NewGoAllocator())
	require.NoError(t, err)
	schema, err := reader.Schema()
	require.NoError(t, err)
	assert.Equal(t, len(EventSchema.Fields()), len(schema.Fields()))
	assert.Equal(t, "type", schema.Field(1).Name)

	err = rec.Record(context.Background(), sampleEvent(EventSessionStopped))
	var perr *ParquetRecorderError
	assert.ErrorAs(t, err, &perr)
}

func TestRecorderOptionValidation(t *testing.T) {
	_, err := NewParquetRecorder("")
	var perr *ParquetRecorderError
	assert.ErrorAs(t, err, &perr)

	_, err = NewPostgresRecorder(context.Background())
	var pgErr *PostgresRecorderError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, "validate_options", pgErr.Op)

	_, err = NewMongoRecorder(context.Background())
	var mErr *MongoRecorderError
	require.ErrorAs(t, err, &mErr)
	assert.Equal(t, "validate_options", mErr.Op)
}

func TestPostgresStatements(t *testing.T) {
	create := createTableStatement("gotez_events")
	assert.True(t, strings.HasPrefix(create, `CREATE TABLE IF NOT EXISTS "gotez_events"`))
	assert.Contains(t, create, "diagnostics TEXT[]")

	insert := insertStatement(`odd"name`)
	assert.Contains(t, insert, `INSERT INTO "odd""name"`)
	assert.Contains(t, insert, "$14")
}

func TestMongoEventDocument(t *testing.T) {
	ev := sampleEvent(EventDAGStateChanged)
	doc := eventDocument(ev)
	assert.Equal(t, "DAG_STATE_CHANGED", doc["type"])
	assert.Equal(t, "dag_1", doc["dag_id"])
	assert.NotContains(t, doc, "diagnostics")

	ev.DAGName = ""
	ev.State = ""
	doc = eventDocument(ev)
	assert.NotContains(t, doc, "dag_name")
	assert.NotContains(t, doc, "state")
}
