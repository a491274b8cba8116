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
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/apache/arrow/go/v12/parquet"
	"github.com/apache/arrow/go/v12/parquet/compress"
	"github.com/apache/arrow/go/v12/parquet/pqarrow"
)

// ParquetRecorderError wraps Parquet failures with the operation that hit them.
type ParquetRecorderError struct {
	Op  string
	Err error
}

func (e *ParquetRecorderError) Error() string {
	return fmt.Sprintf("parquet recorder %s: %v", e.Op, e.Err)
}

func (e *ParquetRecorderError) Unwrap() error {
	return e.Err
}

// ParquetRecorderOptions configures the Parquet recorder.
type ParquetRecorderOptions struct {
	Path        string               // Output file path
	BatchSize   int                  // Events buffered per row group
	Compression compress.Compression // Column compression codec
}

// ParquetRecorderOption represents a configuration function for ParquetRecorderOptions.
type ParquetRecorderOption func(*ParquetRecorderOptions)

func WithParquetBatchSize(size int) ParquetRecorderOption {
	return func(opts *ParquetRecorderOptions) {
		opts.BatchSize = size
	}
}

func WithParquetCompression(codec compress.Compression) ParquetRecorderOption {
	return func(opts *ParquetRecorderOptions) {
		opts.Compression = codec
	}
}

// EventSchema is the Arrow schema of the events file.
var EventSchema = arrow.NewSchema([]arrow.Field{
	{Name: "time", Type: arrow.FixedWidthTypes.Timestamp_us},
	{Name: "type", Type: arrow.BinaryTypes.String},
	{Name: "session", Type: arrow.BinaryTypes.String},
	{Name: "session_id", Type: arrow.BinaryTypes.String},
	{Name: "application_id", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "dag_name", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "dag_id", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "state", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "total_tasks", Type: arrow.PrimitiveTypes.Int64},
	{Name: "succeeded_tasks", Type: arrow.PrimitiveTypes.Int64},
	{Name: "failed_tasks", Type: arrow.PrimitiveTypes.Int64},
	{Name: "diagnostics", Type: arrow.BinaryTypes.String, Nullable: true},
}, nil)

// ParquetRecorder buffers events and writes them as row groups of a
// Parquet file. The file is complete only after Close.
type ParquetRecorder struct {
	mu      sync.Mutex
	opts    ParquetRecorderOptions
	file    *os.File
	writer  *pqarrow.FileWriter
	builder *array.RecordBuilder
	pending int
	written int64
	closed  bool
}

// NewParquetRecorder creates (or truncates) the Parquet file at path.
func NewParquetRecorder(path string, setters ...ParquetRecorderOption) (*ParquetRecorder, error) {
	opts := ParquetRecorderOptions{
		Path:        path,
		BatchSize:   256,
		Compression: compress.Codecs.Snappy,
	}
	for _, set := range setters {
		set(&opts)
	}
	if opts.Path == "" {
		return nil, &ParquetRecorderError{Op: "validate_options", Err: fmt.Errorf("path is required")}
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1
	}

	file, err := os.Create(opts.Path)
	if err != nil {
		return nil, &ParquetRecorderError{Op: "create_file", Err: err}
	}

	props := parquet.NewWriterProperties(
		parquet.WithCompression(opts.Compression),
		parquet.WithMaxRowGroupLength(int64(opts.BatchSize)),
	)
	writer, err := pqarrow.NewFileWriter(EventSchema, file, props, pqarrow.DefaultWriterProps())
	if err != nil {
		file.Close()
		return nil, &ParquetRecorderError{Op: "create_writer", Err: err}
	}

	return &ParquetRecorder{
		opts:    opts,
		file:    file,
		writer:  writer,
		builder: array.NewRecordBuilder(memory.NewGoAllocator(), EventSchema),
	}, nil
}

// Record buffers ev and flushes a row group once BatchSize events are pending.
func (p *ParquetRecorder) Record(_ context.Context, ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return &ParquetRecorderError{Op: "record", Err: fmt.Errorf("recorder closed")}
	}

	p.builder.Field(0).(*array.TimestampBuilder).Append(arrow.Timestamp(ev.Time.UnixMicro()))
	p.builder.Field(1).(*array.StringBuilder).Append(string(ev.Type))
	p.builder.Field(2).(*array.StringBuilder).Append(ev.Session)
	p.builder.Field(3).(*array.StringBuilder).Append(ev.SessionID)
	appendOptional(p.builder.Field(4).(*array.StringBuilder), ev.ApplicationID)
	appendOptional(p.builder.Field(5).(*array.StringBuilder), ev.DAGName)
	appendOptional(p.builder.Field(6).(*array.StringBuilder), ev.DAGID)
	appendOptional(p.builder.Field(7).(*array.StringBuilder), ev.State)
	p.builder.Field(8).(*array.Int64Builder).Append(int64(ev.Progress.Total))
	p.builder.Field(9).(*array.Int64Builder).Append(int64(ev.Progress.Succeeded))
	p.builder.Field(10).(*array.Int64Builder).Append(int64(ev.Progress.Failed))
	appendOptional(p.builder.Field(11).(*array.StringBuilder), strings.Join(ev.Diagnostics, "\n"))
	p.pending++

	if p.pending >= p.opts.BatchSize {
		return p.flush()
	}
	return nil
}

func appendOptional(b *array.StringBuilder, v string) {
	if v == "" {
		b.AppendNull()
		return
	}
	b.Append(v)
}

// flush writes pending events. Callers hold p.mu.
func (p *ParquetRecorder) flush() error {
	if p.pending == 0 {
		return nil
	}
	record := p.builder.NewRecord()
	defer record.Release()

	if err := p.writer.Write(record); err != nil {
		return &ParquetRecorderError{Op: "write_batch", Err: err}
	}
	p.written += int64(p.pending)
	p.pending = 0
	return nil
}

// Written returns the number of events flushed to the file.
func (p *ParquetRecorder) Written() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written
}

// Close flushes pending events and finalizes the file.
func (p *ParquetRecorder) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	flushErr := p.flush()
	p.builder.Release()

	if err := p.writer.Close(); err != nil {
		return &ParquetRecorderError{Op: "close_writer", Err: err}
	}
	return flushErr
}
