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
	"errors"
	"fmt"
	"strings"
)

// ErrCycle is wrapped by every CycleError.
var ErrCycle = errors.New("cycle detected")

// DuplicateNameError reports a second vertex (or edge) with an existing name.
type DuplicateNameError struct {
	Kind string // "vertex", "edge" or "dag"
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("duplicate %s name: %s", e.Kind, e.Name)
}

// UnknownVertexError reports an edge endpoint that was never added to the DAG.
type UnknownVertexError struct {
	Name string
}

func (e *UnknownVertexError) Error() string {
	return fmt.Sprintf("unknown vertex: %s", e.Name)
}

// CycleError reports an edge that would close a cycle. Path lists the
// vertices of the cycle, starting and ending at the same vertex.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle: %s", strings.Join(e.Path, " -> "))
}

func (e *CycleError) Unwrap() error {
	return ErrCycle
}

// InvalidDAGError reports a structural problem that is not a name or cycle error.
type InvalidDAGError struct {
	Reason string
}

func (e *InvalidDAGError) Error() string {
	return "invalid dag: " + e.Reason
}
