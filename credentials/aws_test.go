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

package credentials

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestS3Services(t *testing.T) {
	got := S3Services([]string{
		"s3://b2/tmp/x",
		"s3://b1/user/.staging/a",
		"s3://b1/other",
		"file:///tmp/x",
		"/local/path",
		"s3://",
	})
	assert.Equal(t, []string{"s3://b1", "s3://b2"}, got)
}

func TestAWSProviderStaticKeys(t *testing.T) {
	t.Setenv("AWS_CONFIG_FILE", "/nonexistent/config")
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", "/nonexistent/credentials")

	p := NewAWSProvider(WithRegion("us-east-1"), WithStaticKeys("AKIDEXAMPLE", "very-secret", ""))
	set, err := p.ObtainTokens(context.Background(), []string{"s3://data/in", "s3://staging/user", "/tmp/local"})
	require.NoError(t, err)
	require.Equal(t, 2, set.Len())

	tok := set.Tokens["s3://data"]
	assert.Equal(t, TokenKindS3, tok.Kind)
	assert.Equal(t, "AKIDEXAMPLE", tok.AccessKeyID)
	assert.True(t, tok.Expires.IsZero())

	printed := set.String()
	assert.Equal(t, "credentials[s3:s3://data, s3:s3://staging]", printed)
	assert.NotContains(t, printed, "very-secret")
}

func TestAWSProviderSkipsLocalPaths(t *testing.T) {
	p := NewAWSProvider()
	set, err := p.ObtainTokens(context.Background(), []string{"/tmp/a", "file:///tmp/b"})
	require.NoError(t, err)
	assert.Equal(t, 0, set.Len())
}

func TestNoopProvider(t *testing.T) {
	set, err := NoopProvider{}.ObtainTokens(context.Background(), []string{"s3://b/x"})
	require.NoError(t, err)
	assert.Equal(t, 0, set.Len())
}
