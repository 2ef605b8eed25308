// Copyright (c) 2025 Osql Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package telemetry collects read-only usage summaries for one CLI session:
// the server version/edition reported on connect and per-command outcomes.
// It is explicitly constructed and passed in rather than ambient global
// state, so connection lifecycles can be tested in isolation. Uploads are
// best-effort; telemetry never blocks or fails the query path.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"osql/cli/internal/contracts"
)

// EnvOptOut disables telemetry when set to "1" or "True".
const EnvOptOut = "OSQL_TELEMETRY_OPTOUT"

// EnvEndpoint overrides the upload endpoint; empty disables upload.
const EnvEndpoint = "OSQL_TELEMETRY_URL"

// uploadTimeout bounds the Conclude HTTP call.
const uploadTimeout = 5 * time.Second

// CommandOutcome is one recorded command result.
type CommandOutcome struct {
	Command  string `json:"command"`
	Success  bool   `json:"success"`
	Duration int64  `json:"duration_ms"`
}

// summary is the uploaded payload.
type summary struct {
	ServerVersion string           `json:"server_version,omitempty"`
	ServerEdition string           `json:"server_edition,omitempty"`
	IsCloud       bool             `json:"is_cloud,omitempty"`
	Outcomes      []CommandOutcome `json:"outcomes"`
	StartTime     time.Time        `json:"start_time"`
	EndTime       time.Time        `json:"end_time"`
}

// Session accumulates telemetry for one CLI run.
type Session struct {
	mu         sync.Mutex
	serverInfo *contracts.ServerInfo
	outcomes   []CommandOutcome
	start      time.Time

	endpoint string
	optOut   bool
	client   *http.Client
	logger   *zap.Logger
}

// NewSession creates a telemetry session. Opt-out is read from the
// environment and from the optOut flag (config).
func NewSession(optOut bool, logger *zap.Logger) *Session {
	env := os.Getenv(EnvOptOut)
	return &Session{
		start:    time.Now(),
		endpoint: os.Getenv(EnvEndpoint),
		optOut:   optOut || env == "1" || env == "True",
		client:   &http.Client{Timeout: uploadTimeout},
		logger:   logger,
	}
}

// SetServerInformation records the server version/edition after a session
// completes its connection.
func (s *Session) SetServerInformation(info *contracts.ServerInfo) {
	if info == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serverInfo = info
}

// RecordCommand records one command outcome.
func (s *Session) RecordCommand(command string, success bool, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, CommandOutcome{
		Command:  command,
		Success:  success,
		Duration: duration.Milliseconds(),
	})
}

// Conclude uploads the session summary. Failures are logged and swallowed.
func (s *Session) Conclude(ctx context.Context) {
	s.mu.Lock()
	payload := summary{
		Outcomes:  s.outcomes,
		StartTime: s.start,
		EndTime:   time.Now(),
	}
	if s.serverInfo != nil {
		payload.ServerVersion = s.serverInfo.ServerVersion
		payload.ServerEdition = s.serverInfo.ServerEdition
		payload.IsCloud = s.serverInfo.IsCloud
	}
	endpoint := s.endpoint
	optOut := s.optOut
	s.mu.Unlock()

	if optOut || endpoint == "" {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Debug("telemetry encode failed", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		s.logger.Debug("telemetry request failed", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Debug("telemetry upload failed", zap.Error(err))
		return
	}
	_ = resp.Body.Close()
}
