// Package main provides the entry point for the dayplan CLI.
package main

import (
	"fmt"
	"os"

	"github.com/dayplan-ai/dayplan/cmd/dayplan/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
