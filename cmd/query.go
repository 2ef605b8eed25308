// Copyright (c) 2025 Osql Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"osql/cli/internal/logging"
)

// queryCmd represents the query command for one-shot statement execution.
// It connects, submits the SQL text as-is, renders each batch as it streams
// back, and exits non-zero if any statement failed.
var queryCmd = &cobra.Command{
	Use:   "query <sql>",
	Short: "Execute SQL statements and print the results",
	Long: `The query command runs the given SQL text against the configured database and
prints one result table per statement, in order. The text is passed to the
server unmodified; statement splitting happens server-side, so multi-statement
scripts work as expected.

Example: osql query "select 1 as A union all select 2; select 'x' as B;"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		sqlText := args[0]

		connectionString, err := resolveDSN()
		if err != nil {
			fmt.Println("⚠️  " + err.Error())
			return err
		}

		stopSpinner := startInlineSpinner(os.Stdout, "connecting", []string{"-", "\\", "|", "/"}, 100*time.Millisecond)
		engine, err := openEngine(ctx, connectionString)
		if err != nil {
			stopSpinner()
			fmt.Println("❌ " + logging.PresentError("connection failed", err))
			return err
		}
		stopSpinner()
		defer engine.Close(ctx)

		startAt := time.Now()
		session, err := engine.client.ExecuteQuery(ctx, sqlText)
		if err != nil {
			engine.telemetry.RecordCommand("query", false, time.Since(startAt))
			fmt.Println("❌ " + logging.PresentError("query rejected", err))
			return err
		}

		failed := false
		for batch := range session.Batches() {
			if batch.IsError {
				failed = true
			}
			renderBatch(batch)
		}
		if err := session.Err(); err != nil {
			engine.telemetry.RecordCommand("query", false, time.Since(startAt))
			logging.PresentConnectionError(err)
			return err
		}

		engine.telemetry.RecordCommand("query", !failed, time.Since(startAt))
		if failed {
			return errors.New("one or more statements failed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(queryCmd)
}
