// Package main provides the entry point for the retrivo CLI.
package main

import (
	"os"

	"github.com/retrivo/core/cmd/retrivo/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
