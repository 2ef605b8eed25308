// Copyright (c) 2025 Osql Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"errors"
	"os"
	"strings"

	"go.uber.org/zap"

	"osql/cli/internal/client"
	"osql/cli/internal/config"
	"osql/cli/internal/dsn"
	"osql/cli/internal/keychain"
	"osql/cli/internal/logging"
	"osql/cli/internal/telemetry"
)

// resolveDSN returns the connection string to use, preferring environment
// variables over the OS keychain. The result is normalized; secrets in it
// must be masked before any display.
func resolveDSN() (string, error) {
	raw := ""
	if env := os.Getenv("OSQL_DSN"); strings.TrimSpace(env) != "" {
		raw = strings.TrimSpace(env)
	} else if env := os.Getenv("DATABASE_URL"); strings.TrimSpace(env) != "" {
		raw = strings.TrimSpace(env)
	}
	if raw == "" {
		if km, err := keychain.GetManager(); err == nil {
			if v, err := km.LoadDBDSN(); err == nil && strings.TrimSpace(v) != "" {
				raw = strings.TrimSpace(v)
			}
		}
	}
	if raw == "" {
		return "", errors.New("no database connection configured; run 'osql connect' first")
	}
	return dsn.Parse(raw)
}

// engineSession bundles everything one command run needs: the connected
// protocol client, its logger, and the telemetry session.
type engineSession struct {
	client    *client.Client
	logger    *zap.Logger
	telemetry *telemetry.Session
}

// openEngine loads configuration, starts the tools service, and drives a
// connect for the resolved DSN. Callers must Close the returned session.
func openEngine(ctx context.Context, connectionString string) (*engineSession, error) {
	cfg, err := config.Load()
	if err != nil {
		cfg = config.Default()
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		logger = zap.NewNop()
	}

	tel := telemetry.NewSession(cfg.TelemetryOptOut, logger)

	details, err := dsn.ConnectionDetails(connectionString)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	c, err := client.New(ctx, client.Options{
		Config:    cfg,
		Logger:    logger,
		Telemetry: tel,
	})
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	if err := c.Connect(ctx, details); err != nil {
		c.Shutdown()
		_ = logger.Sync()
		return nil, err
	}
	return &engineSession{client: c, logger: logger, telemetry: tel}, nil
}

// Close disconnects, stops the subprocess, and flushes telemetry and logs.
func (e *engineSession) Close(ctx context.Context) {
	_ = e.client.Disconnect(ctx)
	e.client.Shutdown()
	e.telemetry.Conclude(ctx)
	_ = e.logger.Sync()
}
