package main

import (
	"bytes"
	"io"
	"testing"
)

// resetFlags restores every flag variable to its default, since cobra
// keeps parsed values between executions.
func resetFlags() {
	cfgFile, repoDir, quota, requestFile = "", "", "", ""
	logLevel, logFormat, logDir, metricsFile, lockTimeout = "error", "", "", "", ""
	verbose = false

	installAttributes, installKeep, installOnlyMandatory, installPrune = nil, false, false, false
	pathAttributes = nil
	exportsOutput = "exports.sh"
	showYAML = false
	requestOutput, requestWebServer, requestOptional, requestKeep = "", "", false, false
	requestAttributes, requestEnvScripts = nil, nil
}

// executeCommand runs the root command with args and returns its stdout.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return out.String(), err
}
