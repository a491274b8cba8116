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

// Package history records session and DAG lifecycle events to durable
// sinks so past runs can be inspected after the session is gone.
package history

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aaronlmathis/gotez/core"
)

// EventType names a lifecycle transition.
type EventType string

const (
	EventSessionStarted  EventType = "SESSION_STARTED"
	EventSessionReady    EventType = "SESSION_READY"
	EventDAGSubmitted    EventType = "DAG_SUBMITTED"
	EventDAGStateChanged EventType = "DAG_STATE_CHANGED"
	EventDAGFinished     EventType = "DAG_FINISHED"
	EventSessionStopped  EventType = "SESSION_STOPPED"
)

// Event is one lifecycle record.
type Event struct {
	Time          time.Time     `json:"time" bson:"time"`
	Type          EventType     `json:"type" bson:"type"`
	Session       string        `json:"session" bson:"session"`
	SessionID     string        `json:"session_id" bson:"session_id"`
	ApplicationID string        `json:"application_id,omitempty" bson:"application_id,omitempty"`
	DAGName       string        `json:"dag_name,omitempty" bson:"dag_name,omitempty"`
	DAGID         string        `json:"dag_id,omitempty" bson:"dag_id,omitempty"`
	State         string        `json:"state,omitempty" bson:"state,omitempty"`
	Progress      core.Progress `json:"progress" bson:"progress"`
	Diagnostics   []string      `json:"diagnostics,omitempty" bson:"diagnostics,omitempty"`
}

// Recorder persists events. Record must be safe for concurrent use.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
	Close() error
}

// NopRecorder discards every event.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, Event) error { return nil }
func (NopRecorder) Close() error                        { return nil }

// MultiRecorder fans events out to several recorders. Every recorder sees
// every event; errors are joined.
type MultiRecorder struct {
	mu        sync.Mutex
	recorders []Recorder
}

// NewMultiRecorder combines recorders, skipping nil entries.
func NewMultiRecorder(recorders ...Recorder) *MultiRecorder {
	m := &MultiRecorder{}
	for _, r := range recorders {
		if r != nil {
			m.recorders = append(m.recorders, r)
		}
	}
	return m
}

// Add appends a recorder.
func (m *MultiRecorder) Add(r Recorder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recorders = append(m.recorders, r)
}

func (m *MultiRecorder) Record(ctx context.Context, ev Event) error {
	m.mu.Lock()
	recorders := append([]Recorder(nil), m.recorders...)
	m.mu.Unlock()

	var errs []error
	for _, r := range recorders {
		if err := r.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiRecorder) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, r := range m.recorders {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	m.recorders = nil
	return errors.Join(errs...)
}

// MemoryRecorder keeps events in memory. It backs tests and the local CLI mode.
type MemoryRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (m *MemoryRecorder) Record(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *MemoryRecorder) Close() error { return nil }

// Events returns a copy of the recorded events.
func (m *MemoryRecorder) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// Types returns the recorded event types in order.
func (m *MemoryRecorder) Types() []EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EventType, len(m.events))
	for i, ev := range m.events {
		out[i] = ev.Type
	}
	return out
}
