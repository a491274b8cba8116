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

// Package core defines the contracts between the session runtime and its
// external collaborators: the cluster backend, the staging filesystem and
// the credential subsystem.
package core

import "context"

// ClusterBackend is the resource manager that hosts session coordinators.
// Implementations return *BackendUnavailableError for transport failures.
type ClusterBackend interface {
	// CreateSession allocates an application for a coordinator without launching it.
	CreateSession(ctx context.Context, spec SessionSpec) (SessionHandle, error)
	// StartSession launches the coordinator with the staged resources.
	StartSession(ctx context.Context, handle SessionHandle, launch LaunchContext) error
	// SessionStatus reports the coordinator state. It never waits.
	SessionStatus(ctx context.Context, handle SessionHandle) (SessionStatus, error)
	// SubmitDAG sends a serialized plan to a READY coordinator.
	SubmitDAG(ctx context.Context, handle SessionHandle, plan []byte) (DAGHandle, error)
	// GetDAGStatus reports the state of a submitted DAG.
	GetDAGStatus(ctx context.Context, handle DAGHandle) (DAGStatus, error)
	// StopSession terminates the coordinator. Stopping twice is not an error.
	StopSession(ctx context.Context, handle SessionHandle) error
}

// FileSystem is the shared storage used for staging session resources.
type FileSystem interface {
	Exists(ctx context.Context, path string) (bool, error)
	CreateDir(ctx context.Context, path string) error
	Delete(ctx context.Context, path string, recursive bool) error
	// MakeQualified returns path with the filesystem scheme and authority.
	MakeQualified(path string) string
	WriteFile(ctx context.Context, path string, data []byte) error
}

// CredentialProvider issues delegation tokens for storage paths.
type CredentialProvider interface {
	ObtainTokens(ctx context.Context, paths []string) (CredentialSet, error)
}
