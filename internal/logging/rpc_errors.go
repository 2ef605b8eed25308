// Copyright (c) 2025 Osql Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"

	oserrors "osql/cli/internal/errors"
)

// FormatConnectionError formats a fatal protocol error in a user-friendly way.
func FormatConnectionError(err error) string {
	var builder strings.Builder

	builder.WriteString(pterm.NewStyle(pterm.FgRed, pterm.Bold).Sprint("Connection Lost"))
	builder.WriteString("\n\n")

	switch {
	case oserrors.IsFraming(err):
		builder.WriteString("The tools service sent data the client could not decode.\n")
		builder.WriteString("This usually happens when:\n")
		builder.WriteString("  • The tools service version does not match this CLI\n")
		builder.WriteString("  • The service wrote diagnostics onto its protocol stream\n")

	case oserrors.IsTimeout(err):
		builder.WriteString("The tools service took too long to respond.\n")
		builder.WriteString("This could be due to:\n")
		builder.WriteString("  • A long-running statement holding the connection\n")
		builder.WriteString("  • The service being stuck or overloaded\n")

	case oserrors.IsConnectionClosed(err):
		builder.WriteString("The tools service process exited or closed its pipe.\n")
		builder.WriteString("This could mean:\n")
		builder.WriteString("  • The service crashed while executing a statement\n")
		builder.WriteString("  • The service was killed by the operating system\n")

	default:
		builder.WriteString("The session with the tools service was interrupted.\n")
	}

	builder.WriteString("\n")
	builder.WriteString(pterm.NewStyle(pterm.FgYellow).Sprint("→ Please reconnect with 'osql connect' and try again"))
	builder.WriteString("\n")

	if err != nil {
		builder.WriteString("\n")
		builder.WriteString(pterm.NewStyle(pterm.FgGray).Sprint("Technical details: " + Mask(err.Error())))
	}

	return builder.String()
}

// PresentConnectionError displays a formatted fatal protocol error.
func PresentConnectionError(err error) {
	fmt.Println()
	fmt.Println(FormatConnectionError(err))
	fmt.Println()
}
