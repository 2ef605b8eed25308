// Copyright (c) 2025 Osql Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package cmd provides the command-line interface for osql.
// It implements subcommands for connecting to SQL Server, running one-shot
// queries, and the interactive shell using the Cobra CLI framework. Query
// execution itself happens in a tools service subprocess; this layer only
// drives the protocol engine and renders its batch sequences.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"osql/cli/internal/toolsservice"
)

var (
	showVersion bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:           "osql",
	Short:         "Interactive SQL Server client",
	Long:          `osql is a command-line client for SQL Server. Statements run in a companion tools service process; osql streams the results back to your terminal.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			fmt.Printf("osql %s\n", Version)
			if path, err := toolsservice.Resolve(""); err == nil {
				fmt.Printf("tools service %s\n", path)
			} else {
				fmt.Println("tools service not found")
			}
			return nil
		}
		// If no flag is set, show help
		return cmd.Help()
	},
}

// Execute runs the CLI application.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "Show CLI and tools service version information")
}
