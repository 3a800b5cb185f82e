// Package main is the entry point for the expensecat worker.
package main

import (
	"os"

	"github.com/KafClaw/expensecat/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
