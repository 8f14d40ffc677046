// Package main is the entry point for the alchemist application.
package main

import (
	"os"

	"github.com/alchemist-av/alchemist/cmd/alchemist/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
