// Package main provides the entry point for the artifacts CLI.
package main

import (
	"errors"
	"os"

	"github.com/felixgeelhaar/artifactrepo/internal/app"
)

// exitEarlyStop is returned when a requested artifact did not install.
const exitEarlyStop = 10

func main() {
	if err := Execute(); err != nil {
		printError(err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	if errors.Is(err, app.ErrEarlyStop) {
		return exitEarlyStop
	}
	return 1
}
