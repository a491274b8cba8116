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

// Package dag describes a computation as a directed acyclic graph of
// vertices connected by edges with explicit data movement semantics.
package dag

import (
	"fmt"
	"io"
	"strings"

	"github.com/aaronlmathis/gotez/core"
)

// DAG is a named graph of vertices and edges. It is assembled in memory
// only; AddVertex and AddEdge reject invalid structure immediately.
type DAG struct {
	name        string
	description string
	vertices    []*Vertex
	byName      map[string]*Vertex
	edges       []*Edge
	outEdges    map[string][]*Edge
	inEdges     map[string][]*Edge
	credentials core.CredentialSet
	paths       []string
}

// New creates an empty DAG.
func New(name string) *DAG {
	return &DAG{
		name:        name,
		byName:      make(map[string]*Vertex),
		outEdges:    make(map[string][]*Edge),
		inEdges:     make(map[string][]*Edge),
		credentials: core.NewCredentialSet(),
	}
}

// AddVertex adds v to the DAG.
func (d *DAG) AddVertex(v *Vertex) error {
	if v == nil {
		return &InvalidDAGError{Reason: "nil vertex"}
	}
	if err := v.validate(); err != nil {
		return err
	}
	if _, exists := d.byName[v.name]; exists {
		return &DuplicateNameError{Kind: "vertex", Name: v.name}
	}
	d.vertices = append(d.vertices, v)
	d.byName[v.name] = v
	return nil
}

// AddEdge adds e to the DAG. Both endpoints must already be in the DAG and
// the edge must not close a cycle.
func (d *DAG) AddEdge(e *Edge) error {
	if e == nil || e.source == nil || e.destination == nil {
		return &InvalidDAGError{Reason: "edge with nil endpoint"}
	}
	for _, v := range []*Vertex{e.source, e.destination} {
		if existing, ok := d.byName[v.name]; !ok || existing != v {
			return &UnknownVertexError{Name: v.name}
		}
	}
	if err := validateEdgeProperty(e); err != nil {
		return err
	}
	src, dst := e.source.name, e.destination.name
	for _, out := range d.outEdges[src] {
		if out.destination.name == dst {
			return &DuplicateNameError{Kind: "edge", Name: src + " -> " + dst}
		}
	}
	if path := d.pathBetween(dst, src); path != nil {
		return &CycleError{Path: append([]string{src}, path...)}
	}
	d.edges = append(d.edges, e)
	d.outEdges[src] = append(d.outEdges[src], e)
	d.inEdges[dst] = append(d.inEdges[dst], e)
	return nil
}

// pathBetween returns a vertex path from -> ... -> to, or nil if to is not
// reachable from from.
func (d *DAG) pathBetween(from, to string) []string {
	visited := make(map[string]bool)
	var walk func(name string) []string
	walk = func(name string) []string {
		if name == to {
			return []string{name}
		}
		visited[name] = true
		for _, e := range d.outEdges[name] {
			next := e.destination.name
			if visited[next] {
				continue
			}
			if rest := walk(next); rest != nil {
				return append([]string{name}, rest...)
			}
		}
		return nil
	}
	return walk(from)
}

// Validate checks whole-graph invariants that cannot be decided while the
// graph is still being assembled.
func (d *DAG) Validate() error {
	if d.name == "" {
		return &InvalidDAGError{Reason: "dag name is empty"}
	}
	if len(d.vertices) == 0 {
		return &InvalidDAGError{Reason: fmt.Sprintf("dag %s has no vertices", d.name)}
	}
	for _, v := range d.vertices {
		if len(d.inEdges[v.name]) > 0 {
			continue
		}
		if v.parallelism != ParallelismFromSplits {
			return &InvalidDAGError{Reason: fmt.Sprintf(
				"vertex %s has no inputs and static parallelism %d; root vertices must derive parallelism from splits",
				v.name, v.parallelism)}
		}
		if !v.HasSplitGenerator() {
			return &InvalidDAGError{Reason: fmt.Sprintf("vertex %s has no inputs and no split generator", v.name)}
		}
	}
	if _, err := d.TopologicalOrder(); err != nil {
		return err
	}
	return nil
}

// Known output/input pairs. An output listed here only accepts the inputs given.
var compatibleInputs = map[string][]string{
	OnFileSortedOutput:                 {ShuffledMergedInput},
	OnFileUnorderedKVOutput:            {ShuffledUnorderedKVInput},
	OnFileUnorderedPartitionedKVOutput: {ShuffledUnorderedKVInput},
}

func validateEdgeProperty(e *Edge) error {
	p := e.property
	if !p.DataMovement.Valid() {
		return &InvalidDAGError{Reason: fmt.Sprintf("edge %s -> %s: unknown data movement %q", e.source.name, e.destination.name, p.DataMovement)}
	}
	if !p.DataSource.Valid() {
		return &InvalidDAGError{Reason: fmt.Sprintf("edge %s -> %s: unknown data source type %q", e.source.name, e.destination.name, p.DataSource)}
	}
	if !p.Scheduling.Valid() {
		return &InvalidDAGError{Reason: fmt.Sprintf("edge %s -> %s: unknown scheduling type %q", e.source.name, e.destination.name, p.Scheduling)}
	}
	if p.Output.ClassName == "" || p.Input.ClassName == "" {
		return &InvalidDAGError{Reason: fmt.Sprintf("edge %s -> %s: output and input descriptors are required", e.source.name, e.destination.name)}
	}
	if inputs, known := compatibleInputs[p.Output.ClassName]; known {
		ok := false
		for _, in := range inputs {
			if in == p.Input.ClassName {
				ok = true
				break
			}
		}
		if !ok {
			return &InvalidDAGError{Reason: fmt.Sprintf("edge %s -> %s: %s cannot feed %s",
				e.source.name, e.destination.name, p.Output.ClassName, p.Input.ClassName)}
		}
	}
	if p.Output.ClassName == OnFileSortedOutput && p.DataMovement != ScatterGather {
		return &InvalidDAGError{Reason: fmt.Sprintf("edge %s -> %s: %s requires %s",
			e.source.name, e.destination.name, OnFileSortedOutput, ScatterGather)}
	}
	return nil
}

// Name returns the DAG name.
func (d *DAG) Name() string {
	return d.name
}

// Description returns the DAG description.
func (d *DAG) Description() string {
	return d.description
}

// SetDescription sets the DAG description.
func (d *DAG) SetDescription(description string) {
	d.description = description
}

// Vertices returns the vertices in insertion order.
func (d *DAG) Vertices() []*Vertex {
	out := make([]*Vertex, len(d.vertices))
	copy(out, d.vertices)
	return out
}

// Edges returns the edges in insertion order.
func (d *DAG) Edges() []*Edge {
	out := make([]*Edge, len(d.edges))
	copy(out, d.edges)
	return out
}

// Vertex looks up a vertex by name.
func (d *DAG) Vertex(name string) (*Vertex, bool) {
	v, ok := d.byName[name]
	return v, ok
}

// InEdges returns the edges consumed by the named vertex.
func (d *DAG) InEdges(name string) []*Edge {
	return append([]*Edge(nil), d.inEdges[name]...)
}

// OutEdges returns the edges produced by the named vertex.
func (d *DAG) OutEdges(name string) []*Edge {
	return append([]*Edge(nil), d.outEdges[name]...)
}

// AddCredentials merges extra tokens the DAG needs at runtime.
func (d *DAG) AddCredentials(creds core.CredentialSet) {
	d.credentials.Merge(creds)
}

// Credentials returns the tokens attached to the DAG.
func (d *DAG) Credentials() core.CredentialSet {
	out := core.NewCredentialSet()
	out.Merge(d.credentials)
	return out
}

// AddAccessPath records a storage path the DAG reads or writes. The session
// obtains tokens for these paths on submit.
func (d *DAG) AddAccessPath(path string) {
	d.paths = append(d.paths, path)
}

// AccessPaths returns the recorded storage paths.
func (d *DAG) AccessPaths() []string {
	return append([]string(nil), d.paths...)
}

// TopologicalOrder returns vertex names so that every producer precedes its
// consumers. Ties keep insertion order.
func (d *DAG) TopologicalOrder() ([]string, error) {
	inDegree := make(map[string]int, len(d.vertices))
	for _, v := range d.vertices {
		inDegree[v.name] = len(d.inEdges[v.name])
	}

	queue := make([]string, 0)
	for _, v := range d.vertices {
		if inDegree[v.name] == 0 {
			queue = append(queue, v.name)
		}
	}

	var result []string
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)

		for _, e := range d.outEdges[current] {
			next := e.destination.name
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(result) != len(d.vertices) {
		return nil, &CycleError{Path: []string{d.name}}
	}
	return result, nil
}

// Levels groups vertices by depth: level 0 holds the roots and every other
// vertex sits one level below its deepest producer.
func (d *DAG) Levels() ([][]string, error) {
	order, err := d.TopologicalOrder()
	if err != nil {
		return nil, err
	}

	level := make(map[string]int, len(order))
	maxLevel := 0
	for _, name := range order {
		l := 0
		for _, e := range d.inEdges[name] {
			if pl := level[e.source.name] + 1; pl > l {
				l = pl
			}
		}
		level[name] = l
		if l > maxLevel {
			maxLevel = l
		}
	}

	result := make([][]string, maxLevel+1)
	for _, name := range order {
		result[level[name]] = append(result[level[name]], name)
	}
	return result, nil
}

// Describe writes a human-readable outline of the DAG.
func (d *DAG) Describe(w io.Writer) {
	fmt.Fprintf(w, "DAG: %s\n", d.name)
	if d.description != "" {
		fmt.Fprintf(w, "  Description: %s\n", d.description)
	}
	for _, v := range d.vertices {
		fmt.Fprintf(w, "  %s [%s] parallelism=%s\n", v.name, v.processor.ClassName, formatParallelism(v.parallelism))
		if in := d.inEdges[v.name]; len(in) > 0 {
			names := make([]string, len(in))
			for i, e := range in {
				names[i] = e.source.name
			}
			fmt.Fprintf(w, "    <- %s\n", strings.Join(names, ", "))
		}
		for _, e := range d.outEdges[v.name] {
			fmt.Fprintf(w, "    -> %s (%s, %s, %s)\n", e.destination.name,
				e.property.DataMovement, e.property.DataSource, e.property.Scheduling)
		}
	}
}

func formatParallelism(p int) string {
	if p == ParallelismFromSplits {
		return "splits"
	}
	return fmt.Sprintf("%d", p)
}
