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

package storage

import (
	"context"
	"fmt"

	"github.com/aaronlmathis/gotez/core"
)

// Type selects a filesystem implementation.
type Type string

const (
	TypeLocal Type = "local"
	TypeS3    Type = "s3"
	TypeMinio Type = "minio"
)

// Options is the union of settings accepted by Open.
type Options struct {
	Type         Type   `yaml:"type"`
	Bucket       string `yaml:"bucket"`
	Region       string `yaml:"region"`
	Profile      string `yaml:"profile"`
	Endpoint     string `yaml:"endpoint"`
	PathStyle    bool   `yaml:"path_style"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	SessionToken string `yaml:"session_token"`
	UseSSL       bool   `yaml:"use_ssl"`
	CreateBucket bool   `yaml:"create_bucket"`
}

// Open returns the filesystem described by opts. An empty type is local.
func Open(ctx context.Context, opts Options) (core.FileSystem, error) {
	switch opts.Type {
	case "", TypeLocal:
		return NewLocalFS(), nil
	case TypeS3:
		fs, err := NewS3FS(ctx, S3Options{
			Bucket:         opts.Bucket,
			Region:         opts.Region,
			Profile:        opts.Profile,
			AccessKeyID:    opts.AccessKey,
			SecretKey:      opts.SecretKey,
			SessionToken:   opts.SessionToken,
			EndpointURL:    opts.Endpoint,
			ForcePathStyle: opts.PathStyle,
		})
		if err != nil {
			return nil, err
		}
		return fs, nil
	case TypeMinio:
		fs, err := NewMinioFS(ctx, MinioOptions{
			Endpoint:     opts.Endpoint,
			Bucket:       opts.Bucket,
			Region:       opts.Region,
			AccessKey:    opts.AccessKey,
			SecretKey:    opts.SecretKey,
			SessionToken: opts.SessionToken,
			UseSSL:       opts.UseSSL,
			CreateBucket: opts.CreateBucket,
		})
		if err != nil {
			return nil, err
		}
		return fs, nil
	default:
		return nil, &core.ConfigurationError{Field: "storage.type", Err: fmt.Errorf("unknown storage type %q", opts.Type)}
	}
}
