// Package main is the entry point for the faultline application.
package main

import (
	"os"

	"github.com/faultlinehq/faultline/cmd/faultline/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
