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
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/aaronlmathis/gotez/core"
)

// MinioOptions configures an S3-compatible store reached through minio-go.
type MinioOptions struct {
	Endpoint     string // host:port
	Bucket       string
	Region       string
	AccessKey    string
	SecretKey    string
	SessionToken string
	UseSSL       bool
	CreateBucket bool // create the bucket when missing
}

// MinioFS stages into a bucket of an S3-compatible object store. Layout
// matches S3FS: directories are "key/" markers.
type MinioFS struct {
	client *minio.Client
	bucket string
}

// NewMinioFS connects to the store and checks the bucket.
func NewMinioFS(ctx context.Context, opts MinioOptions) (*MinioFS, error) {
	if opts.Endpoint == "" || opts.Bucket == "" {
		return nil, &core.ConfigurationError{Field: "storage", Err: fmt.Errorf("minio endpoint and bucket are required")}
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  miniocreds.NewStaticV4(opts.AccessKey, opts.SecretKey, opts.SessionToken),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, &core.StorageError{Op: "connect", Path: opts.Endpoint, Err: err}
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, &core.StorageError{Op: "bucket_exists", Path: "s3://" + opts.Bucket, Err: err}
	}
	if !exists {
		if !opts.CreateBucket {
			return nil, &core.StorageError{Op: "bucket_exists", Path: "s3://" + opts.Bucket, Err: fmt.Errorf("bucket not found")}
		}
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{Region: opts.Region}); err != nil {
			return nil, &core.StorageError{Op: "make_bucket", Path: "s3://" + opts.Bucket, Err: err}
		}
	}
	return &MinioFS{client: client, bucket: opts.Bucket}, nil
}

func (m *MinioFS) key(p string) string {
	p = strings.TrimPrefix(p, "s3://"+m.bucket)
	return strings.Trim(p, "/")
}

// objectListing is a listing the caller may abandon part way.
type objectListing struct {
	objects <-chan minio.ObjectInfo
	cancel  context.CancelFunc
}

func (m *MinioFS) list(ctx context.Context, opts minio.ListObjectsOptions) objectListing {
	listCtx, cancel := context.WithCancel(ctx)
	return objectListing{objects: m.client.ListObjects(listCtx, m.bucket, opts), cancel: cancel}
}

// close stops the lister and drains it. The lister may still hold a
// buffered object and report the cancellation, so it only exits once read.
func (l objectListing) close() {
	l.cancel()
	for range l.objects {
	}
}

func (m *MinioFS) MakeQualified(p string) string {
	return "s3://" + m.bucket + "/" + m.key(p)
}

func (m *MinioFS) Exists(ctx context.Context, p string) (bool, error) {
	key := m.key(p)

	listing := m.list(ctx, minio.ListObjectsOptions{Prefix: key + "/", MaxKeys: 1})
	defer listing.close()
	for obj := range listing.objects {
		if obj.Err != nil {
			return false, &core.StorageError{Op: "exists", Path: m.MakeQualified(p), Err: obj.Err}
		}
		return true, nil
	}

	_, err := m.client.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return false, nil
	}
	return false, &core.StorageError{Op: "exists", Path: m.MakeQualified(p), Err: err}
}

func (m *MinioFS) CreateDir(ctx context.Context, p string) error {
	_, err := m.client.PutObject(ctx, m.bucket, m.key(p)+"/", bytes.NewReader(nil), 0, minio.PutObjectOptions{})
	if err != nil {
		return &core.StorageError{Op: "create_dir", Path: m.MakeQualified(p), Err: err}
	}
	return nil
}

func (m *MinioFS) WriteFile(ctx context.Context, p string, data []byte) error {
	_, err := m.client.PutObject(ctx, m.bucket, m.key(p), bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return &core.StorageError{Op: "write_file", Path: m.MakeQualified(p), Err: err}
	}
	return nil
}

func (m *MinioFS) Delete(ctx context.Context, p string, recursive bool) error {
	key := m.key(p)
	qualified := m.MakeQualified(p)

	listing := m.list(ctx, minio.ListObjectsOptions{Prefix: key + "/", Recursive: true})
	defer listing.close()
	var objects []minio.ObjectInfo
	for obj := range listing.objects {
		if obj.Err != nil {
			return &core.StorageError{Op: "delete", Path: qualified, Err: obj.Err}
		}
		if !recursive && obj.Key != key+"/" {
			return &core.StorageError{Op: "delete", Path: qualified, Err: fmt.Errorf("directory not empty")}
		}
		objects = append(objects, obj)
	}
	objects = append(objects, minio.ObjectInfo{Key: key})

	objectsCh := make(chan minio.ObjectInfo, len(objects))
	for _, obj := range objects {
		objectsCh <- obj
	}
	close(objectsCh)

	for rerr := range m.client.RemoveObjects(ctx, m.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if minio.ToErrorResponse(rerr.Err).Code == "NoSuchKey" {
			continue
		}
		return &core.StorageError{Op: "delete", Path: qualified, Err: fmt.Errorf("remove %s: %w", rerr.ObjectName, rerr.Err)}
	}
	return nil
}
