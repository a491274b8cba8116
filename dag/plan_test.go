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

package dag

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/gotez/core"
)

func wordCountLike(t *testing.T) *DAG {
	t.Helper()
	tokenizer := mustVertex(t, "tokenizer", ParallelismFromSplits,
		WithDataSource("MRInput", NewInput("MRInput", []byte("input=/data/in")), "MRInputAMSplitGenerator"),
		WithEnvironment(map[string]string{"LANG": "C"}),
		WithLaunchOptions("-Xmx512m"))
	summer := mustVertex(t, "summer", 1,
		WithDataSink("MROutput", NewOutput("MROutput", []byte("output=/data/out")), "MROutputCommitter"))

	creds := core.NewCredentialSet()
	creds.Add(core.Token{Kind: "s3", Service: "s3://bucket"})

	d, err := NewDAGBuilder("WordCount").
		WithDescription("counts words").
		WithCredentials(creds).
		AddVertex(tokenizer).
		AddVertex(summer).
		AddEdge(NewEdge(tokenizer, summer, shuffleEdge())).
		Build()
	require.NoError(t, err)
	return d
}

func TestPlanRoundTrip(t *testing.T) {
	original := wordCountLike(t)

	data, err := MarshalPlan(original)
	require.NoError(t, err)

	parsed, err := ParsePlan(data)
	require.NoError(t, err)
	require.NoError(t, parsed.Validate())

	if diff := cmp.Diff(ToPlan(original), ToPlan(parsed), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("plan mismatch (-original +parsed):\n%s", diff)
	}

	require.Len(t, parsed.Edges(), 1)
	e := parsed.Edges()[0]
	assert.Equal(t, "tokenizer", e.Source().Name())
	assert.Equal(t, "summer", e.Destination().Name())
	assert.Equal(t, ScatterGather, e.Property().DataMovement)
	assert.Equal(t, Persisted, e.Property().DataSource)
	assert.Equal(t, Sequential, e.Property().Scheduling)

	v, ok := parsed.Vertex("tokenizer")
	require.True(t, ok)
	assert.Equal(t, ParallelismFromSplits, v.Parallelism())
	assert.True(t, v.HasSplitGenerator())
}

func TestPlanWireNames(t *testing.T) {
	data, err := MarshalPlan(wordCountLike(t))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	edges := raw["edges"].([]any)
	edge := edges[0].(map[string]any)
	assert.Equal(t, "SCATTER_GATHER", edge["data_movement"])
	assert.Equal(t, "PERSISTED", edge["data_source"])
	assert.Equal(t, "SEQUENTIAL", edge["scheduling"])
	assert.Equal(t, float64(PlanVersion), raw["version"])
}

func TestParsePlanRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		plan Plan
	}{
		{"wrong version", Plan{Version: 99, Name: "x"}},
		{"duplicate vertex", Plan{Version: PlanVersion, Name: "x", Vertices: []VertexPlan{
			{Name: "a", Processor: NewProcessor("p", nil), Parallelism: 1},
			{Name: "a", Processor: NewProcessor("p", nil), Parallelism: 1},
		}}},
		{"unknown endpoint", Plan{Version: PlanVersion, Name: "x", Vertices: []VertexPlan{
			{Name: "a", Processor: NewProcessor("p", nil), Parallelism: 1},
		}, Edges: []EdgePlan{{Source: "a", Destination: "b", DataMovement: OneToOne,
			DataSource: Persisted, Scheduling: Sequential,
			Output: NewOutput("o", nil), Input: NewInput("i", nil)}}}},
		{"cycle", Plan{Version: PlanVersion, Name: "x", Vertices: []VertexPlan{
			{Name: "a", Processor: NewProcessor("p", nil), Parallelism: 1},
		}, Edges: []EdgePlan{{Source: "a", Destination: "a", DataMovement: OneToOne,
			DataSource: Persisted, Scheduling: Sequential,
			Output: NewOutput("o", nil), Input: NewInput("i", nil)}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.plan)
			require.NoError(t, err)
			_, err = ParsePlan(data)
			assert.Error(t, err)
		})
	}

	_, err := ParsePlan([]byte("{not json"))
	var invalid *InvalidDAGError
	assert.ErrorAs(t, err, &invalid)
}
