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

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/aaronlmathis/gotez/core"
)

// ConfFileName is the packaged configuration written into every staging directory.
const ConfFileName = "session-conf.json"

// stagedResources is what a successful staging pass hands to the coordinator launch.
type stagedResources struct {
	Dir         string
	ConfPath    string
	Credentials core.CredentialSet
}

// sessionConf is the packaged configuration snapshot.
type sessionConf struct {
	Name          string            `json:"name"`
	SessionID     string            `json:"session_id"`
	ApplicationID string            `json:"application_id"`
	User          string            `json:"user"`
	Queue         string            `json:"queue,omitempty"`
	MemoryMB      int               `json:"memory_mb"`
	VCores        int               `json:"vcores"`
	LaunchOptions string            `json:"launch_options,omitempty"`
	Environment   map[string]string `json:"environment,omitempty"`
	Properties    map[string]string `json:"properties,omitempty"`
	StagingDir    string            `json:"staging_dir"`
	Created       time.Time         `json:"created"`
}

type stager struct {
	fs    core.FileSystem
	creds core.CredentialProvider
}

// stagingPath builds <root>/<user>/.staging/<name>-<suffix>. The suffix is
// the application id unless a random suffix is configured or no id exists.
func stagingPath(cfg Config, applicationID string) string {
	suffix := applicationID
	if cfg.StagingSuffix == StagingSuffixRandom || suffix == "" {
		suffix = uuid.NewString()
	}
	return path.Join(cfg.StagingRoot, cfg.User, ".staging", cfg.Name+"-"+suffix)
}

// stage prepares the staging directory for one session. onCreated is called
// as soon as the directory exists so teardown can remove it even if a later
// step fails.
func (st *stager) stage(ctx context.Context, cfg Config, sessionID string, handle core.SessionHandle, onCreated func(dir string)) (stagedResources, error) {
	dir := st.fs.MakeQualified(stagingPath(cfg, handle.ApplicationID))

	creds, err := st.creds.ObtainTokens(ctx, []string{dir})
	if err != nil {
		return stagedResources{}, fmt.Errorf("obtain tokens for %s: %w", dir, err)
	}

	exists, err := st.fs.Exists(ctx, dir)
	if err != nil {
		return stagedResources{}, asStorageError("exists", dir, err)
	}
	if !exists {
		if err := st.fs.CreateDir(ctx, dir); err != nil {
			return stagedResources{}, asStorageError("create_dir", dir, err)
		}
	}
	onCreated(dir)

	conf := sessionConf{
		Name:          cfg.Name,
		SessionID:     sessionID,
		ApplicationID: handle.ApplicationID,
		User:          cfg.User,
		Queue:         cfg.Queue,
		MemoryMB:      cfg.MemoryMB,
		VCores:        cfg.VCores,
		LaunchOptions: cfg.LaunchOptions,
		Environment:   cfg.Environment,
		Properties:    cfg.Properties,
		StagingDir:    dir,
		Created:       time.Now().UTC(),
	}
	data, err := json.MarshalIndent(conf, "", "  ")
	if err != nil {
		return stagedResources{}, fmt.Errorf("package session configuration: %w", err)
	}
	confPath := dir + "/" + ConfFileName
	if err := st.fs.WriteFile(ctx, confPath, data); err != nil {
		return stagedResources{}, asStorageError("write_file", confPath, err)
	}

	return stagedResources{Dir: dir, ConfPath: confPath, Credentials: creds}, nil
}

// asStorageError keeps adapter errors as they are and wraps anything else.
func asStorageError(op, p string, err error) error {
	var storageErr *core.StorageError
	if errors.As(err, &storageErr) {
		return err
	}
	return &core.StorageError{Op: op, Path: p, Err: err}
}
