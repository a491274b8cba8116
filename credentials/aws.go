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

// Package credentials obtains delegation tokens for the storage paths a
// session stages into or a DAG reads from.
package credentials

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"

	"github.com/aaronlmathis/gotez/core"
)

// TokenKindS3 marks tokens issued for S3 buckets.
const TokenKindS3 = "s3"

// CredentialError wraps failures to obtain tokens.
type CredentialError struct {
	Op  string
	Err error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("credentials %s: %v", e.Op, e.Err)
}

func (e *CredentialError) Unwrap() error {
	return e.Err
}

// AWSOptions configures where AWS credentials come from. Static keys win
// over the profile; an empty configuration uses the default chain.
type AWSOptions struct {
	Region          string
	Profile         string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// AWSOption represents a configuration function for AWSOptions.
type AWSOption func(*AWSOptions)

func WithRegion(region string) AWSOption {
	return func(o *AWSOptions) {
		o.Region = region
	}
}

func WithProfile(profile string) AWSOption {
	return func(o *AWSOptions) {
		o.Profile = profile
	}
}

func WithStaticKeys(accessKeyID, secretAccessKey, sessionToken string) AWSOption {
	return func(o *AWSOptions) {
		o.AccessKeyID = accessKeyID
		o.SecretAccessKey = secretAccessKey
		o.SessionToken = sessionToken
	}
}

// AWSProvider issues one token per S3 bucket named in the requested paths.
type AWSProvider struct {
	opts AWSOptions
}

// NewAWSProvider creates an AWS-backed credential provider.
func NewAWSProvider(setters ...AWSOption) *AWSProvider {
	var opts AWSOptions
	for _, set := range setters {
		set(&opts)
	}
	return &AWSProvider{opts: opts}
}

// LoadAWSConfig builds an aws.Config from opts. Storage adapters share it.
func LoadAWSConfig(ctx context.Context, opts AWSOptions) (aws.Config, error) {
	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	if opts.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(opts.Profile))
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(aws.NewCredentialsCache(
			awscreds.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, opts.SessionToken))))
	}
	return config.LoadDefaultConfig(ctx, loadOpts...)
}

// ObtainTokens implements core.CredentialProvider. Paths on other
// filesystems need no token and are skipped.
func (p *AWSProvider) ObtainTokens(ctx context.Context, paths []string) (core.CredentialSet, error) {
	set := core.NewCredentialSet()
	services := S3Services(paths)
	if len(services) == 0 {
		return set, nil
	}

	cfg, err := LoadAWSConfig(ctx, p.opts)
	if err != nil {
		return set, &CredentialError{Op: "load_config", Err: err}
	}
	creds, err := cfg.Credentials.Retrieve(ctx)
	if err != nil {
		return set, &CredentialError{Op: "retrieve", Err: err}
	}

	for _, service := range services {
		token := core.Token{
			Kind:            TokenKindS3,
			Service:         service,
			AccessKeyID:     creds.AccessKeyID,
			SecretAccessKey: creds.SecretAccessKey,
			SessionToken:    creds.SessionToken,
		}
		if creds.CanExpire {
			token.Expires = creds.Expires
		}
		set.Add(token)
	}
	return set, nil
}

// S3Services returns the distinct "s3://bucket" services of paths, sorted.
func S3Services(paths []string) []string {
	seen := make(map[string]bool)
	for _, p := range paths {
		rest, ok := strings.CutPrefix(p, "s3://")
		if !ok {
			continue
		}
		bucket, _, _ := strings.Cut(rest, "/")
		if bucket == "" {
			continue
		}
		seen["s3://"+bucket] = true
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// NoopProvider issues no tokens. It serves local filesystems.
type NoopProvider struct{}

func (NoopProvider) ObtainTokens(context.Context, []string) (core.CredentialSet, error) {
	return core.NewCredentialSet(), nil
}
