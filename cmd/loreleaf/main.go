// Package main provides the entry point for the loreleaf CLI.
package main

import (
	"os"

	"github.com/loreleaf/loreleaf/cmd/loreleaf/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
