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
	"log/slog"
	"strings"
)

// LogRecorder writes events to a structured logger.
type LogRecorder struct {
	logger *slog.Logger
	level  slog.Level
}

// NewLogRecorder logs events at level. A nil logger uses slog.Default().
func NewLogRecorder(logger *slog.Logger, level slog.Level) *LogRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogRecorder{logger: logger, level: level}
}

func (l *LogRecorder) Record(ctx context.Context, ev Event) error {
	attrs := []slog.Attr{
		slog.String("event", string(ev.Type)),
		slog.String("session", ev.Session),
		slog.String("session_id", ev.SessionID),
	}
	if ev.ApplicationID != "" {
		attrs = append(attrs, slog.String("app_id", ev.ApplicationID))
	}
	if ev.DAGName != "" {
		attrs = append(attrs, slog.String("dag", ev.DAGName), slog.String("dag_id", ev.DAGID))
	}
	if ev.State != "" {
		attrs = append(attrs, slog.String("state", ev.State))
	}
	if ev.Progress.Total > 0 {
		attrs = append(attrs, slog.String("progress", ev.Progress.String()))
	}
	if len(ev.Diagnostics) > 0 {
		attrs = append(attrs, slog.String("diagnostics", strings.Join(ev.Diagnostics, "; ")))
	}
	l.logger.LogAttrs(ctx, l.level, "history event", attrs...)
	return nil
}

func (l *LogRecorder) Close() error { return nil }
