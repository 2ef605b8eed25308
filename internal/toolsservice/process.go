// Copyright (c) 2025 Osql Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package toolsservice manages the SQL tools service subprocess: locating the
// binary, launching it with piped stdin/stdout for the protocol stream, and
// shutting it down. The service's stderr is forwarded to the log so its
// diagnostics never pollute the protocol pipe.
package toolsservice

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"
)

// DefaultBinaryName is looked up on PATH when no explicit path is configured.
const DefaultBinaryName = "osqltoolsservice"

// EnvBinaryPath overrides tools service discovery.
const EnvBinaryPath = "OSQL_TOOLS_SERVICE"

// stopGracePeriod is how long Stop waits after closing stdin before killing.
const stopGracePeriod = 3 * time.Second

// Process is a running tools service subprocess. Stdin/Stdout carry the
// framed protocol stream and must only be touched by the protocol client.
type Process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	logger *zap.Logger

	waitErr chan error
}

// Resolve returns the tools service binary path, honoring the explicit
// override, then the environment, then PATH lookup.
func Resolve(override string) (string, error) {
	if override != "" {
		if _, err := os.Stat(override); err != nil {
			return "", err
		}
		return override, nil
	}
	if env := os.Getenv(EnvBinaryPath); env != "" {
		if _, err := os.Stat(env); err != nil {
			return "", err
		}
		return env, nil
	}
	return exec.LookPath(DefaultBinaryName)
}

// Start launches the tools service with piped stdin/stdout.
func Start(ctx context.Context, binaryPath string, logger *zap.Logger) (*Process, error) {
	path, err := Resolve(binaryPath)
	if err != nil {
		return nil, errors.New("tools service binary not found; set " + EnvBinaryPath + " or tools_service_path in config")
	}

	cmd := exec.CommandContext(ctx, path)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	logger.Info("tools service started", zap.String("path", path), zap.Int("pid", cmd.Process.Pid))

	p := &Process{
		cmd:     cmd,
		stdin:   stdin,
		stdout:  stdout,
		logger:  logger,
		waitErr: make(chan error, 1),
	}
	go p.forwardStderr(stderr)
	go func() { p.waitErr <- cmd.Wait() }()
	return p, nil
}

// Stdin is the protocol write side.
func (p *Process) Stdin() io.Writer { return p.stdin }

// Stdout is the protocol read side.
func (p *Process) Stdout() io.Reader { return p.stdout }

// Exited reports process termination; receives at most one error.
func (p *Process) Exited() <-chan error { return p.waitErr }

// Stop closes the service's stdin to request a clean exit, then kills the
// process after a grace period.
func (p *Process) Stop() {
	_ = p.stdin.Close()
	select {
	case err := <-p.waitErr:
		if err != nil {
			p.logger.Debug("tools service exited", zap.Error(err))
		}
	case <-time.After(stopGracePeriod):
		p.logger.Warn("tools service did not exit, killing", zap.Int("pid", p.cmd.Process.Pid))
		_ = p.cmd.Process.Kill()
		<-p.waitErr
	}
}

// forwardStderr copies service diagnostics into the log line by line.
func (p *Process) forwardStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		p.logger.Debug("tools service stderr", zap.String("line", scanner.Text()))
	}
}
