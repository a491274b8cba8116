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
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/gotez/core"
)

const sessionListing = `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
  <Name>staging</Name>
  <Prefix>session/</Prefix>
  <KeyCount>6</KeyCount>
  <MaxKeys>1000</MaxKeys>
  <IsTruncated>false</IsTruncated>
  <Contents><Key>session/</Key><Size>0</Size></Contents>
  <Contents><Key>session/a</Key><Size>1</Size></Contents>
  <Contents><Key>session/b</Key><Size>1</Size></Contents>
  <Contents><Key>session/c</Key><Size>1</Size></Contents>
  <Contents><Key>session/d</Key><Size>1</Size></Contents>
  <Contents><Key>session/e</Key><Size>1</Size></Contents>
</ListBucketResult>`

// newListingServer answers bucket checks and every listing with the same
// six objects.
func newListingServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodHead && strings.Trim(r.URL.Path, "/") == "staging":
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodGet && r.URL.Query().Get("list-type") == "2":
			w.Header().Set("Content-Type", "application/xml")
			_, _ = w.Write([]byte(sessionListing))
		default:
			w.WriteHeader(http.StatusNotImplemented)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestMinioDeleteNonEmptyReleasesLister(t *testing.T) {
	ctx := context.Background()
	srv := newListingServer(t)

	fs, err := NewMinioFS(ctx, MinioOptions{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		Bucket:    "staging",
		Region:    "us-east-1",
		AccessKey: "key",
		SecretKey: "secret",
	})
	require.NoError(t, err)

	exists, err := fs.Exists(ctx, "session")
	require.NoError(t, err)
	assert.True(t, exists)

	baseline := runtime.NumGoroutine()
	for i := 0; i < 3; i++ {
		err := fs.Delete(ctx, "session", false)
		var storageErr *core.StorageError
		require.ErrorAs(t, err, &storageErr)
		assert.Contains(t, err.Error(), "directory not empty")
	}
	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= baseline
	}, 2*time.Second, 10*time.Millisecond)
}
