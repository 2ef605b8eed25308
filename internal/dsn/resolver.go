// Copyright (c) 2025 Osql Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package dsn parses database connection strings into the connection
// parameters sent to the tools service. Secrets never appear in logs; the
// logging package masks DSNs before display.
package dsn

import (
	"strings"

	"osql/cli/internal/contracts"
)

// DetectDBType detects the database type from a DSN string
func DetectDBType(dsn string) DBType {
	lower := strings.ToLower(dsn)

	if strings.HasPrefix(lower, "mssql://") || strings.HasPrefix(lower, "sqlserver://") {
		return DBTypeSQLServer
	}

	return DBTypeUnknown
}

// resolverFor picks the resolver for a DSN, or reports why none applies.
func resolverFor(dsn string) (Resolver, error) {
	if dsn == "" {
		return nil, NewParseError(dsn, "empty DSN", "provide a valid database connection string")
	}
	switch DetectDBType(dsn) {
	case DBTypeSQLServer:
		return NewSQLServerResolver(), nil
	default:
		return nil, NewParseError(dsn, "unknown database type", "use mssql:// or sqlserver://")
	}
}

// Parse parses a DSN string and returns a normalized connection string.
// This is the main entry point for DSN parsing.
func Parse(dsn string) (string, error) {
	resolver, err := resolverFor(dsn)
	if err != nil {
		return "", err
	}

	info, err := resolver.Parse(dsn)
	if err != nil {
		return "", err
	}

	return resolver.Normalize(info)
}

// Validate validates a DSN string without normalizing it
func Validate(dsn string) error {
	resolver, err := resolverFor(dsn)
	if err != nil {
		return err
	}
	return resolver.Validate(dsn)
}

// ParseInfo parses a DSN string and returns detailed DSN info
// Useful for inspecting connection details
func ParseInfo(dsn string) (*DSNInfo, error) {
	resolver, err := resolverFor(dsn)
	if err != nil {
		return nil, err
	}
	return resolver.Parse(dsn)
}

// ConnectionDetails converts a DSN into the connection parameters of the
// tools service wire contract. Query parameters ride along opaquely in
// Options so forward-compatible fields survive the trip.
func ConnectionDetails(dsn string) (contracts.ConnectionDetails, error) {
	info, err := ParseInfo(dsn)
	if err != nil {
		return contracts.ConnectionDetails{}, err
	}

	server := info.Host
	if info.Port != "" && info.Port != "1433" {
		server = info.Host + "," + info.Port
	}

	details := contracts.ConnectionDetails{
		ServerName:         server,
		DatabaseName:       info.Database,
		UserName:           info.User,
		Password:           info.Password,
		AuthenticationType: "SqlLogin",
		ApplicationName:    "osql",
	}
	if len(info.Params) > 0 {
		details.Options = make(map[string]any, len(info.Params))
		for k, v := range info.Params {
			details.Options[k] = v
		}
	}
	return details, nil
}
