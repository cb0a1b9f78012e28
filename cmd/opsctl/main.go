// Package main is the entry point for the opswatch CLI tool.
package main

import (
	"os"

	"github.com/good-yellow-bee/opswatch/cmd/opsctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
