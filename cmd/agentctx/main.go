// Package main provides the entry point for the agentctx CLI.
package main

import (
	"fmt"
	"os"

	"github.com/opencode-ai/agentctx/cmd/agentctx/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
