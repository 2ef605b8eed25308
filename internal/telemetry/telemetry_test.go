// Copyright (c) 2025 Osql Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"osql/cli/internal/contracts"
)

func TestConcludeUploadsSummary(t *testing.T) {
	received := make(chan summary, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var s summary
		_ = json.Unmarshal(body, &s)
		received <- s
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()
	t.Setenv(EnvEndpoint, srv.URL)
	t.Setenv(EnvOptOut, "")

	s := NewSession(false, zap.NewNop())
	s.SetServerInformation(&contracts.ServerInfo{ServerVersion: "16.0.1000", ServerEdition: "Developer"})
	s.RecordCommand("query", true, 120*time.Millisecond)
	s.RecordCommand("query", false, 80*time.Millisecond)
	s.Conclude(context.Background())

	select {
	case got := <-received:
		assert.Equal(t, "16.0.1000", got.ServerVersion)
		require.Len(t, got.Outcomes, 2)
		assert.True(t, got.Outcomes[0].Success)
		assert.False(t, got.Outcomes[1].Success)
	case <-time.After(2 * time.Second):
		t.Fatal("summary not uploaded")
	}
}

func TestOptOutSuppressesUpload(t *testing.T) {
	hit := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
	}))
	defer srv.Close()
	t.Setenv(EnvEndpoint, srv.URL)
	t.Setenv(EnvOptOut, "1")

	s := NewSession(false, zap.NewNop())
	s.RecordCommand("query", true, time.Millisecond)
	s.Conclude(context.Background())
	assert.False(t, hit, "opt-out must suppress the upload")
}

func TestNoEndpointMeansNoUpload(t *testing.T) {
	t.Setenv(EnvEndpoint, "")
	t.Setenv(EnvOptOut, "")

	// Conclude must be a no-op rather than an error when unset.
	s := NewSession(false, zap.NewNop())
	s.Conclude(context.Background())
}
