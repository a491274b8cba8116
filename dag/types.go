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

import "fmt"

// ParallelismFromSplits marks a vertex whose task count is decided at
// runtime by a split generator instead of a static value.
const ParallelismFromSplits = -1

// DataMovementType defines how producer outputs are routed to consumer tasks.
type DataMovementType string

const (
	OneToOne      DataMovementType = "ONE_TO_ONE"     // Task i feeds task i
	Broadcast     DataMovementType = "BROADCAST"      // Every producer feeds every consumer
	ScatterGather DataMovementType = "SCATTER_GATHER" // Producers partition, consumers gather one partition each
)

// DataSourceType defines the lifetime of data produced on an edge.
type DataSourceType string

const (
	Persisted DataSourceType = "PERSISTED" // Output survives producer completion
	Ephemeral DataSourceType = "EPHEMERAL" // Output lives only while the producer runs
)

// SchedulingType defines when consumers may start relative to producers.
type SchedulingType string

const (
	Sequential SchedulingType = "SEQUENTIAL" // Consumers start after producers complete
	Concurrent SchedulingType = "CONCURRENT" // Consumers may run alongside producers
)

func (t DataMovementType) Valid() bool {
	return t == OneToOne || t == Broadcast || t == ScatterGather
}

func (t DataSourceType) Valid() bool {
	return t == Persisted || t == Ephemeral
}

func (t SchedulingType) Valid() bool {
	return t == Sequential || t == Concurrent
}

// Well-known runtime library descriptors. Edge validation checks pairs
// built from these names; other class names are accepted as is.
const (
	OnFileSortedOutput                 = "OnFileSortedOutput"
	OnFileUnorderedKVOutput            = "OnFileUnorderedKVOutput"
	OnFileUnorderedPartitionedKVOutput = "OnFileUnorderedPartitionedKVOutput"
	ShuffledMergedInput                = "ShuffledMergedInput"
	ShuffledUnorderedKVInput           = "ShuffledUnorderedKVInput"
)

// Descriptor names a pluggable runtime class plus its opaque configuration.
type Descriptor struct {
	ClassName   string `json:"class_name"`
	UserPayload []byte `json:"user_payload,omitempty"`
}

// ProcessorDescriptor names the processing logic a vertex runs.
type ProcessorDescriptor struct {
	Descriptor
}

// InputDescriptor names the input class on the consumer side of an edge.
type InputDescriptor struct {
	Descriptor
}

// OutputDescriptor names the output class on the producer side of an edge.
type OutputDescriptor struct {
	Descriptor
}

// NewProcessor builds a ProcessorDescriptor.
func NewProcessor(className string, payload []byte) ProcessorDescriptor {
	return ProcessorDescriptor{Descriptor{ClassName: className, UserPayload: payload}}
}

// NewInput builds an InputDescriptor.
func NewInput(className string, payload []byte) InputDescriptor {
	return InputDescriptor{Descriptor{ClassName: className, UserPayload: payload}}
}

// NewOutput builds an OutputDescriptor.
func NewOutput(className string, payload []byte) OutputDescriptor {
	return OutputDescriptor{Descriptor{ClassName: className, UserPayload: payload}}
}

// Resource is the per-task resource request of a vertex.
type Resource struct {
	MemoryMB int `json:"memory_mb"`
	VCores   int `json:"vcores"`
}

// RootInput is a data source attached to a vertex. A non-empty Initializer
// names the split generator that decides the vertex parallelism.
type RootInput struct {
	Input       InputDescriptor `json:"input"`
	Initializer string          `json:"initializer,omitempty"`
}

// LeafOutput is a data sink attached to a vertex, with an optional committer.
type LeafOutput struct {
	Output    OutputDescriptor `json:"output"`
	Committer string           `json:"committer,omitempty"`
}

// EdgeProperty holds the data movement semantics of an edge.
type EdgeProperty struct {
	DataMovement DataMovementType
	DataSource   DataSourceType
	Scheduling   SchedulingType
	Output       OutputDescriptor
	Input        InputDescriptor
}

// NewEdgeProperty builds an EdgeProperty.
func NewEdgeProperty(movement DataMovementType, source DataSourceType, scheduling SchedulingType,
	output OutputDescriptor, input InputDescriptor) EdgeProperty {
	return EdgeProperty{
		DataMovement: movement,
		DataSource:   source,
		Scheduling:   scheduling,
		Output:       output,
		Input:        input,
	}
}

// Vertex is one logical processing stage of a DAG.
type Vertex struct {
	name          string
	processor     ProcessorDescriptor
	parallelism   int
	resource      Resource
	launchOptions string
	environment   map[string]string
	inputs        map[string]RootInput
	outputs       map[string]LeafOutput
}

// VertexOption configures optional vertex settings.
type VertexOption func(*Vertex)

// WithLaunchOptions sets the task launch command options.
func WithLaunchOptions(opts string) VertexOption {
	return func(v *Vertex) {
		v.launchOptions = opts
	}
}

// WithEnvironment adds task environment variables.
func WithEnvironment(env map[string]string) VertexOption {
	return func(v *Vertex) {
		for k, val := range env {
			v.environment[k] = val
		}
	}
}

// WithDataSource attaches a named data source to the vertex.
func WithDataSource(name string, input InputDescriptor, initializer string) VertexOption {
	return func(v *Vertex) {
		v.inputs[name] = RootInput{Input: input, Initializer: initializer}
	}
}

// WithDataSink attaches a named data sink to the vertex.
func WithDataSink(name string, output OutputDescriptor, committer string) VertexOption {
	return func(v *Vertex) {
		v.outputs[name] = LeafOutput{Output: output, Committer: committer}
	}
}

// NewVertex creates a vertex. Parallelism must be positive or ParallelismFromSplits.
func NewVertex(name string, processor ProcessorDescriptor, parallelism int, resource Resource, opts ...VertexOption) (*Vertex, error) {
	v := &Vertex{
		name:        name,
		processor:   processor,
		parallelism: parallelism,
		resource:    resource,
		environment: make(map[string]string),
		inputs:      make(map[string]RootInput),
		outputs:     make(map[string]LeafOutput),
	}
	for _, opt := range opts {
		opt(v)
	}
	if err := v.validate(); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *Vertex) validate() error {
	if v.name == "" {
		return &InvalidDAGError{Reason: "vertex name is empty"}
	}
	if v.processor.ClassName == "" {
		return &InvalidDAGError{Reason: fmt.Sprintf("vertex %s has no processor", v.name)}
	}
	if v.parallelism <= 0 && v.parallelism != ParallelismFromSplits {
		return &InvalidDAGError{Reason: fmt.Sprintf("vertex %s has invalid parallelism %d", v.name, v.parallelism)}
	}
	if v.resource.MemoryMB < 0 || v.resource.VCores < 0 {
		return &InvalidDAGError{Reason: fmt.Sprintf("vertex %s has negative resources", v.name)}
	}
	return nil
}

func (v *Vertex) Name() string                   { return v.name }
func (v *Vertex) Processor() ProcessorDescriptor { return v.processor }
func (v *Vertex) Parallelism() int               { return v.parallelism }
func (v *Vertex) Resource() Resource             { return v.resource }
func (v *Vertex) LaunchOptions() string          { return v.launchOptions }

// Environment returns a copy of the task environment.
func (v *Vertex) Environment() map[string]string {
	return copyMap(v.environment)
}

// DataSources returns a copy of the vertex data sources.
func (v *Vertex) DataSources() map[string]RootInput {
	out := make(map[string]RootInput, len(v.inputs))
	for k, in := range v.inputs {
		out[k] = in
	}
	return out
}

// DataSinks returns a copy of the vertex data sinks.
func (v *Vertex) DataSinks() map[string]LeafOutput {
	out := make(map[string]LeafOutput, len(v.outputs))
	for k, o := range v.outputs {
		out[k] = o
	}
	return out
}

// HasSplitGenerator reports whether any data source carries an initializer.
func (v *Vertex) HasSplitGenerator() bool {
	for _, in := range v.inputs {
		if in.Initializer != "" {
			return true
		}
	}
	return false
}

// Edge connects a producer vertex to a consumer vertex.
type Edge struct {
	source      *Vertex
	destination *Vertex
	property    EdgeProperty
}

// NewEdge creates an edge. Endpoints are resolved when the edge is added to a DAG.
func NewEdge(source, destination *Vertex, property EdgeProperty) *Edge {
	return &Edge{source: source, destination: destination, property: property}
}

func (e *Edge) Source() *Vertex        { return e.source }
func (e *Edge) Destination() *Vertex   { return e.destination }
func (e *Edge) Property() EdgeProperty { return e.property }

func (e *Edge) String() string {
	return fmt.Sprintf("%s -[%s]-> %s", e.source.name, e.property.DataMovement, e.destination.name)
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
