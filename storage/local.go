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

// Package storage provides core.FileSystem implementations for staging
// session resources on local disk, Amazon S3 and S3-compatible stores.
package storage

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/aaronlmathis/gotez/core"
)

const localScheme = "file://"

// LocalFS stages onto the local filesystem.
type LocalFS struct{}

// NewLocalFS returns a local filesystem.
func NewLocalFS() *LocalFS {
	return &LocalFS{}
}

func localPath(p string) string {
	return filepath.FromSlash(strings.TrimPrefix(p, localScheme))
}

// MakeQualified returns an absolute file:// path.
func (l *LocalFS) MakeQualified(p string) string {
	abs, err := filepath.Abs(localPath(p))
	if err != nil {
		abs = filepath.Clean(localPath(p))
	}
	return localScheme + filepath.ToSlash(abs)
}

func (l *LocalFS) Exists(ctx context.Context, p string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, &core.StorageError{Op: "exists", Path: p, Err: err}
	}
	_, err := os.Stat(localPath(p))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, &core.StorageError{Op: "exists", Path: p, Err: err}
}

func (l *LocalFS) CreateDir(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return &core.StorageError{Op: "create_dir", Path: p, Err: err}
	}
	if err := os.MkdirAll(localPath(p), 0o755); err != nil {
		return &core.StorageError{Op: "create_dir", Path: p, Err: err}
	}
	return nil
}

// Delete removes p. Deleting a missing path is not an error.
func (l *LocalFS) Delete(ctx context.Context, p string, recursive bool) error {
	if err := ctx.Err(); err != nil {
		return &core.StorageError{Op: "delete", Path: p, Err: err}
	}
	var err error
	if recursive {
		err = os.RemoveAll(localPath(p))
	} else {
		err = os.Remove(localPath(p))
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &core.StorageError{Op: "delete", Path: p, Err: err}
	}
	return nil
}

func (l *LocalFS) WriteFile(ctx context.Context, p string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return &core.StorageError{Op: "write_file", Path: p, Err: err}
	}
	lp := localPath(p)
	if err := os.MkdirAll(filepath.Dir(lp), 0o755); err != nil {
		return &core.StorageError{Op: "write_file", Path: p, Err: err}
	}
	if err := os.WriteFile(lp, data, 0o644); err != nil {
		return &core.StorageError{Op: "write_file", Path: p, Err: err}
	}
	return nil
}
