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

// dag_builder.go - Fluent API for DAG construction
package dag

import "github.com/aaronlmathis/gotez/core"

// DAGBuilder provides a fluent API for constructing DAGs. Every call is
// validated immediately; the first failure is kept and later calls become
// no-ops, so Build reports the error closest to its cause.
type DAGBuilder struct {
	dag *DAG
	err error
}

// NewDAGBuilder creates a new DAG builder
func NewDAGBuilder(name string) *DAGBuilder {
	return &DAGBuilder{dag: New(name)}
}

// AddVertex adds a vertex to the DAG
func (db *DAGBuilder) AddVertex(v *Vertex) *DAGBuilder {
	if db.err != nil {
		return db
	}
	db.err = db.dag.AddVertex(v)
	return db
}

// NewVertex creates a vertex and adds it to the DAG
func (db *DAGBuilder) NewVertex(name string, processor ProcessorDescriptor, parallelism int, resource Resource, opts ...VertexOption) *DAGBuilder {
	if db.err != nil {
		return db
	}
	v, err := NewVertex(name, processor, parallelism, resource, opts...)
	if err != nil {
		db.err = err
		return db
	}
	return db.AddVertex(v)
}

// AddEdge adds an edge between two vertices already in the DAG
func (db *DAGBuilder) AddEdge(e *Edge) *DAGBuilder {
	if db.err != nil {
		return db
	}
	db.err = db.dag.AddEdge(e)
	return db
}

// Connect adds an edge between two vertices referenced by name
func (db *DAGBuilder) Connect(source, destination string, prop EdgeProperty) *DAGBuilder {
	if db.err != nil {
		return db
	}
	src, ok := db.dag.Vertex(source)
	if !ok {
		db.err = &UnknownVertexError{Name: source}
		return db
	}
	dst, ok := db.dag.Vertex(destination)
	if !ok {
		db.err = &UnknownVertexError{Name: destination}
		return db
	}
	return db.AddEdge(NewEdge(src, dst, prop))
}

// WithDescription sets the DAG description
func (db *DAGBuilder) WithDescription(description string) *DAGBuilder {
	db.dag.SetDescription(description)
	return db
}

// WithCredentials attaches extra tokens to the DAG
func (db *DAGBuilder) WithCredentials(creds core.CredentialSet) *DAGBuilder {
	db.dag.AddCredentials(creds)
	return db
}

// WithAccessPath records a storage path the DAG touches
func (db *DAGBuilder) WithAccessPath(path string) *DAGBuilder {
	db.dag.AddAccessPath(path)
	return db
}

// Err returns the first error recorded so far
func (db *DAGBuilder) Err() error {
	return db.err
}

// Build validates the DAG and returns it
func (db *DAGBuilder) Build() (*DAG, error) {
	if db.err != nil {
		return nil, db.err
	}
	if err := db.dag.Validate(); err != nil {
		return nil, err
	}
	return db.dag, nil
}
