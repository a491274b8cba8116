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

package gotez

import (
	"fmt"
	"sort"
	"sync"

	"github.com/aaronlmathis/gotez/core"
	"github.com/aaronlmathis/gotez/dag"
)

// Registry maps DAG names to factories. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]DAGFactory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]DAGFactory)}
}

// Register adds a factory. A name can be registered once; a second
// registration returns *dag.DuplicateNameError.
func (r *Registry) Register(name string, factory DAGFactory) error {
	if name == "" {
		return &core.ConfigurationError{Field: "dag", Err: fmt.Errorf("factory name is required")}
	}
	if factory == nil {
		return &core.ConfigurationError{Field: "dag", Err: fmt.Errorf("factory %q is nil", name)}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; ok {
		return &dag.DuplicateNameError{Kind: "dag factory", Name: name}
	}
	r.factories[name] = factory
	return nil
}

// MustRegister is Register for startup code; it panics on error.
func (r *Registry) MustRegister(name string, factory DAGFactory) {
	if err := r.Register(name, factory); err != nil {
		panic(err)
	}
}

// Lookup returns the factory for name or a *core.ConfigurationError.
func (r *Registry) Lookup(name string) (DAGFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	factory, ok := r.factories[name]
	if !ok {
		return nil, &core.ConfigurationError{Field: "dag", Err: fmt.Errorf("no dag registered as %q", name)}
	}
	return factory, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
