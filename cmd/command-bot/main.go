// Package main provides the entry point for the command-bot CLI.
package main

import (
	"os"

	"github.com/paritytech/command-bot-sub000/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
