// Package main is the entry point for the hospital-abc CLI.
package main

import (
	"os"

	"hospital-abc/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
