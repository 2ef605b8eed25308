// Copyright (c) 2025 Osql Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"atomicgo.dev/cursor"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	oserrors "osql/cli/internal/errors"
	"osql/cli/internal/logging"
	"osql/cli/internal/querysession"
)

// shellCmd represents the interactive shell. Each entered line is submitted
// as one query; Ctrl+C cancels the running statement instead of killing the
// shell, and \q or exit leaves the session.
var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start an interactive SQL session",
	Long: `The shell command opens an interactive session against the configured database.
Each line is executed as one query and its result tables stream back in order.

Commands inside the shell:
  \q, exit, quit   leave the shell
  \reset           tear down and re-establish the database connection`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

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

		if info := engine.client.ServerInfo(); info != nil {
			pterm.Println(pterm.NewStyle(pterm.FgLightCyan).Sprint("Connected to SQL Server " + info.ServerVersion + " (" + info.ServerEdition + ")"))
		}
		pterm.Println(pterm.NewStyle(pterm.FgGray).Sprint(`Type \q to quit.`))
		pterm.Println()

		// Ctrl+C during a statement cancels it; at the prompt it is ignored
		// so a stray interrupt cannot nuke the session.
		interrupts := make(chan os.Signal, 1)
		signal.Notify(interrupts, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(interrupts)

		reader := bufio.NewReader(os.Stdin)
		for {
			// Drain any interrupt delivered while idle.
			select {
			case <-interrupts:
				continue
			default:
			}

			fmt.Print("osql> ")
			line, err := reader.ReadString('\n')
			if err != nil {
				fmt.Println()
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}

			switch line {
			case `\q`, "exit", "quit":
				return nil
			case `\reset`:
				if err := engine.client.Reset(ctx); err != nil {
					fmt.Println("❌ " + logging.PresentError("reset failed", err))
					continue
				}
				pterm.Println(pterm.NewStyle(pterm.FgGreen).Sprint("Connection re-established."))
				continue
			}

			startAt := time.Now()
			session, err := engine.client.ExecuteQuery(ctx, line)
			if err != nil {
				engine.telemetry.RecordCommand("shell", false, time.Since(startAt))
				fmt.Println("❌ " + logging.PresentError("query rejected", err))
				continue
			}

			cursor.Hide()
			failed := renderSession(engine, session, interrupts)
			cursor.Show()

			if err := session.Err(); err != nil {
				engine.telemetry.RecordCommand("shell", false, time.Since(startAt))
				if oserrors.IsTimeout(err) {
					pterm.Println(pterm.NewStyle(pterm.FgYellow).Sprint("Statement canceled."))
					continue
				}
				logging.PresentConnectionError(err)
				return err
			}
			engine.telemetry.RecordCommand("shell", !failed, time.Since(startAt))
		}
	},
}

// renderSession streams batches to the terminal, firing a cancel on Ctrl+C.
// It returns whether any batch carried an error.
func renderSession(engine *engineSession, session *querysession.Session, interrupts <-chan os.Signal) bool {
	failed := false
	for {
		select {
		case batch, ok := <-session.Batches():
			if !ok {
				return failed
			}
			if batch.IsError {
				failed = true
			}
			renderBatch(batch)
		case <-interrupts:
			pterm.Println(pterm.NewStyle(pterm.FgYellow).Sprint("Canceling..."))
			_ = engine.client.Cancel(context.Background())
			// Keep draining; the session terminates through its own
			// completion or the cancel timeout.
		}
	}
}

func init() {
	rootCmd.AddCommand(shellCmd)
}
