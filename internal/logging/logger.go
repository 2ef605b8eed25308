// Copyright (c) 2025 Osql Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"osql/cli/internal/xdg"
)

// DefaultConfig returns the base zap configuration for the CLI.
// Log output goes to a file in the XDG state dir so the interactive
// terminal stays clean; stdout belongs to query results.
func DefaultConfig() zap.Config {
	logConf := zap.NewProductionConfig()
	logConf.Sampling = nil
	logConf.EncoderConfig.TimeKey = "time"
	logConf.EncoderConfig.LevelKey = "severity"
	logConf.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logConf.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	return logConf
}

// New builds a logger at the given level writing to osql.log in the state dir.
// Falls back to stderr when the state dir cannot be resolved. OSQL_VERBOSE=1
// forces debug level regardless of the configured one.
func New(level string) (*zap.Logger, error) {
	l, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	if os.Getenv("OSQL_VERBOSE") == "1" {
		l = zapcore.DebugLevel
	}
	conf := DefaultConfig()
	conf.Level = zap.NewAtomicLevelAt(l)
	if dir, dirErr := xdg.StateDir(); dirErr == nil {
		conf.OutputPaths = []string{filepath.Join(dir, "osql.log")}
		conf.ErrorOutputPaths = []string{filepath.Join(dir, "osql.log")}
	} else {
		conf.OutputPaths = []string{"stderr"}
	}
	return conf.Build()
}

// ParseLevel converts a textual or numeric level into a zapcore.Level.
func ParseLevel(l string) (zapcore.Level, error) {
	l = strings.ToLower(strings.TrimSpace(l))
	switch l {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	case "fatal":
		return zapcore.FatalLevel, nil
	default:
		level, err := strconv.ParseInt(l, 10, 8)
		if err != nil {
			return 0, err
		}
		return zapcore.Level(level), nil
	}
}
