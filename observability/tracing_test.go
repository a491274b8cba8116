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

package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitTracingNone(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingOptions{Exporter: "none"})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))

	_, span := StartSpan(context.Background(), "noop")
	EndSpan(span, errors.New("ignored"))
}

func TestInitTracingUnknownExporter(t *testing.T) {
	_, err := InitTracing(context.Background(), TracingOptions{Exporter: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestParseHeaders(t *testing.T) {
	got := parseHeaders("a=1, b = 2,broken,=x,c=")
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, got)
	assert.Empty(t, parseHeaders(""))
}

func TestTracingOptionsFromEnv(t *testing.T) {
	t.Setenv("GOTEZ_OTEL_EXPORTER", "stdout")
	t.Setenv("GOTEZ_OTEL_SAMPLE_RATIO", "0.25")
	t.Setenv("GOTEZ_OTEL_INSECURE", "no")

	opts := TracingOptionsFromEnv()
	assert.Equal(t, "stdout", opts.Exporter)
	assert.Equal(t, "gotez", opts.ServiceName)
	assert.InDelta(t, 0.25, opts.SampleRatio, 1e-9)
	assert.False(t, opts.Insecure)
}
