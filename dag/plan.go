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
	"fmt"

	"github.com/aaronlmathis/gotez/core"
)

// PlanVersion is the submission format version written by MarshalPlan.
const PlanVersion = 1

// Plan is the submission format of a DAG: the document a session sends to
// its coordinator.
type Plan struct {
	Version     int                `json:"version"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Vertices    []VertexPlan       `json:"vertices"`
	Edges       []EdgePlan         `json:"edges"`
	Credentials core.CredentialSet `json:"credentials,omitempty"`
}

// VertexPlan is the serialized form of a Vertex.
type VertexPlan struct {
	Name          string                `json:"name"`
	Processor     ProcessorDescriptor   `json:"processor"`
	Parallelism   int                   `json:"parallelism"`
	Resource      Resource              `json:"resource"`
	LaunchOptions string                `json:"launch_options,omitempty"`
	Environment   map[string]string     `json:"environment,omitempty"`
	DataSources   map[string]RootInput  `json:"data_sources,omitempty"`
	DataSinks     map[string]LeafOutput `json:"data_sinks,omitempty"`
}

// EdgePlan is the serialized form of an Edge.
type EdgePlan struct {
	Source       string           `json:"source"`
	Destination  string           `json:"destination"`
	DataMovement DataMovementType `json:"data_movement"`
	DataSource   DataSourceType   `json:"data_source"`
	Scheduling   SchedulingType   `json:"scheduling"`
	Output       OutputDescriptor `json:"output"`
	Input        InputDescriptor  `json:"input"`
}

// ToPlan converts d into its submission form.
func ToPlan(d *DAG) Plan {
	p := Plan{
		Version:     PlanVersion,
		Name:        d.name,
		Description: d.description,
		Vertices:    make([]VertexPlan, 0, len(d.vertices)),
		Edges:       make([]EdgePlan, 0, len(d.edges)),
		Credentials: d.Credentials(),
	}
	for _, v := range d.vertices {
		p.Vertices = append(p.Vertices, VertexPlan{
			Name:          v.name,
			Processor:     v.processor,
			Parallelism:   v.parallelism,
			Resource:      v.resource,
			LaunchOptions: v.launchOptions,
			Environment:   v.Environment(),
			DataSources:   v.DataSources(),
			DataSinks:     v.DataSinks(),
		})
	}
	for _, e := range d.edges {
		p.Edges = append(p.Edges, EdgePlan{
			Source:       e.source.name,
			Destination:  e.destination.name,
			DataMovement: e.property.DataMovement,
			DataSource:   e.property.DataSource,
			Scheduling:   e.property.Scheduling,
			Output:       e.property.Output,
			Input:        e.property.Input,
		})
	}
	return p
}

// FromPlan rebuilds a DAG from its submission form. Structure is checked
// the same way AddVertex and AddEdge check it.
func FromPlan(p Plan) (*DAG, error) {
	if p.Version != PlanVersion {
		return nil, &InvalidDAGError{Reason: fmt.Sprintf("unsupported plan version %d", p.Version)}
	}
	d := New(p.Name)
	d.description = p.Description
	d.credentials.Merge(p.Credentials)

	for _, vp := range p.Vertices {
		v := &Vertex{
			name:          vp.Name,
			processor:     vp.Processor,
			parallelism:   vp.Parallelism,
			resource:      vp.Resource,
			launchOptions: vp.LaunchOptions,
			environment:   make(map[string]string),
			inputs:        make(map[string]RootInput),
			outputs:       make(map[string]LeafOutput),
		}
		for k, val := range vp.Environment {
			v.environment[k] = val
		}
		for k, in := range vp.DataSources {
			v.inputs[k] = in
		}
		for k, out := range vp.DataSinks {
			v.outputs[k] = out
		}
		if err := d.AddVertex(v); err != nil {
			return nil, err
		}
	}

	for _, ep := range p.Edges {
		src, ok := d.byName[ep.Source]
		if !ok {
			return nil, &UnknownVertexError{Name: ep.Source}
		}
		dst, ok := d.byName[ep.Destination]
		if !ok {
			return nil, &UnknownVertexError{Name: ep.Destination}
		}
		prop := NewEdgeProperty(ep.DataMovement, ep.DataSource, ep.Scheduling, ep.Output, ep.Input)
		if err := d.AddEdge(NewEdge(src, dst, prop)); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// MarshalPlan serializes d into the submission format.
func MarshalPlan(d *DAG) ([]byte, error) {
	data, err := json.Marshal(ToPlan(d))
	if err != nil {
		return nil, fmt.Errorf("marshal plan %s: %w", d.name, err)
	}
	return data, nil
}

// ParsePlan decodes the submission format back into a DAG.
func ParsePlan(data []byte) (*DAG, error) {
	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, &InvalidDAGError{Reason: fmt.Sprintf("decode plan: %v", err)}
	}
	return FromPlan(p)
}
