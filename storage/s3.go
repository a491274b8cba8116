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
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/aaronlmathis/gotez/core"
	"github.com/aaronlmathis/gotez/credentials"
)

// deleteBatchSize is the DeleteObjects limit of the S3 API.
const deleteBatchSize = 1000

// S3API is the subset of the S3 client used for staging.
type S3API interface {
	s3.ListObjectsV2APIClient
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// S3Options configures the S3 filesystem.
type S3Options struct {
	Bucket         string // S3 bucket name
	Region         string // AWS region
	Profile        string // AWS profile to use
	AccessKeyID    string // Explicit credentials
	SecretKey      string
	SessionToken   string
	EndpointURL    string // Custom S3 endpoint (for S3-compatible services)
	ForcePathStyle bool   // Use path-style addressing
}

// S3FS stages into an S3 bucket. Directories are zero-byte "key/" marker
// objects; a path exists if either the object or the marker prefix does.
type S3FS struct {
	client S3API
	bucket string
}

// NewS3FS creates an S3 filesystem from opts.
func NewS3FS(ctx context.Context, opts S3Options) (*S3FS, error) {
	if opts.Bucket == "" {
		return nil, &core.ConfigurationError{Field: "storage.bucket", Err: fmt.Errorf("bucket is required")}
	}
	cfg, err := credentials.LoadAWSConfig(ctx, credentials.AWSOptions{
		Region:          opts.Region,
		Profile:         opts.Profile,
		AccessKeyID:     opts.AccessKeyID,
		SecretAccessKey: opts.SecretKey,
		SessionToken:    opts.SessionToken,
	})
	if err != nil {
		return nil, &core.StorageError{Op: "load_aws_config", Path: "s3://" + opts.Bucket, Err: err}
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.EndpointURL != "" {
			o.BaseEndpoint = aws.String(opts.EndpointURL)
		}
		o.UsePathStyle = opts.ForcePathStyle
	})
	return NewS3FSWithClient(opts.Bucket, client), nil
}

// NewS3FSWithClient wraps an existing client.
func NewS3FSWithClient(bucket string, client S3API) *S3FS {
	return &S3FS{client: client, bucket: bucket}
}

// key converts a qualified or bucket-relative path into an object key.
func (f *S3FS) key(p string) string {
	p = strings.TrimPrefix(p, "s3://"+f.bucket)
	return strings.Trim(p, "/")
}

func (f *S3FS) MakeQualified(p string) string {
	return "s3://" + f.bucket + "/" + f.key(p)
}

func (f *S3FS) Exists(ctx context.Context, p string) (bool, error) {
	key := f.key(p)
	out, err := f.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(f.bucket),
		Prefix:  aws.String(key + "/"),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, &core.StorageError{Op: "exists", Path: f.MakeQualified(p), Err: err}
	}
	if len(out.Contents) > 0 {
		return true, nil
	}

	_, err = f.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(f.bucket), Key: aws.String(key)})
	if err == nil {
		return true, nil
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return false, nil
	}
	return false, &core.StorageError{Op: "exists", Path: f.MakeQualified(p), Err: err}
}

func (f *S3FS) CreateDir(ctx context.Context, p string) error {
	_, err := f.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(f.bucket),
		Key:           aws.String(f.key(p) + "/"),
		Body:          bytes.NewReader(nil),
		ContentLength: aws.Int64(0),
	})
	if err != nil {
		return &core.StorageError{Op: "create_dir", Path: f.MakeQualified(p), Err: err}
	}
	return nil
}

func (f *S3FS) WriteFile(ctx context.Context, p string, data []byte) error {
	_, err := f.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(f.bucket),
		Key:           aws.String(f.key(p)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return &core.StorageError{Op: "write_file", Path: f.MakeQualified(p), Err: err}
	}
	return nil
}

// Delete removes the object at p and, when recursive, every object under
// the p/ prefix. A non-recursive delete of a non-empty directory fails.
func (f *S3FS) Delete(ctx context.Context, p string, recursive bool) error {
	key := f.key(p)
	qualified := f.MakeQualified(p)

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(f.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(f.bucket),
		Prefix: aws.String(key + "/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return &core.StorageError{Op: "delete", Path: qualified, Err: err}
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}

	if !recursive {
		for _, k := range keys {
			if k != key+"/" {
				return &core.StorageError{Op: "delete", Path: qualified, Err: fmt.Errorf("directory not empty")}
			}
		}
	}
	keys = append(keys, key)

	for start := 0; start < len(keys); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(keys))
		ids := make([]types.ObjectIdentifier, 0, end-start)
		for _, k := range keys[start:end] {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(k)})
		}
		out, err := f.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(f.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return &core.StorageError{Op: "delete", Path: qualified, Err: err}
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return &core.StorageError{Op: "delete", Path: qualified, Err: fmt.Errorf("%d objects not deleted, first %s: %s",
				len(out.Errors), aws.ToString(first.Key), aws.ToString(first.Message))}
		}
	}
	return nil
}
