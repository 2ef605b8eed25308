// Package main is the entry point for the osql CLI.
// It provides an interactive SQL Server client backed by a tools service
// subprocess speaking length-framed JSON-RPC over stdio.
package main

import (
	"osql/cli/cmd"
)

// main initializes and executes the command-line interface.
func main() {
	cmd.Execute()
}
