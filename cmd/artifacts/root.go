package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/felixgeelhaar/artifactrepo/internal/config"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile     string
	repoDir     string
	quota       string
	requestFile string
	logLevel    string
	logFormat   string
	logDir      string
	metricsFile string
	lockTimeout string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "artifacts",
	Short: "Install and share plugin artifacts in an on-disk repository",
	Long: `Artifacts installs plugin artifacts with their install scripts into a shared
repository directory, and exports their locations to shell scripts.

Any number of processes may use the same repository at once. Installations
interrupted by a crash are detected and started over, and the oldest
artifacts are evicted when the repository exceeds its quota.

Artifacts are named PLUGIN:ARTIFACT:VERSION[:install-script], or read from
an installation request file with --requests.`,
	SilenceErrors: true, // We handle error formatting ourselves
	SilenceUsage:  true, // Don't show usage on error
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: artifacts.yaml or artifacts.toml in the working directory)")
	flags.StringVarP(&repoDir, "repository", "r", "", "repository directory (default: "+config.DefaultRepositoryDir+")")
	flags.StringVar(&quota, "quota", "", "maximum installed size before pruning, e.g. 10GB (0 disables)")
	flags.StringVar(&requestFile, "requests", "", "installation request file (binary, or YAML with .yaml/.yml)")
	flags.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&logFormat, "log-format", "", "log format (text, json, zap)")
	flags.StringVar(&logDir, "log-dir", "", "directory receiving the step log")
	flags.StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")
	flags.StringVar(&lockTimeout, "lock-timeout", "", "give up waiting for the repository lock after this long, e.g. 10m")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	registerFlagCompletions()

	rootCmd.AddCommand(versionCmd)
}

// formatError returns a user-friendly error message.
func formatError(err error) string {
	var userErr *config.UserError
	if errors.As(err, &userErr) {
		msg := userErr.Error()
		if userErr.Suggestion != "" {
			msg += fmt.Sprintf("\n\nSuggestion: %s", userErr.Suggestion)
		}
		if verbose && userErr.Underlying != nil {
			msg += fmt.Sprintf("\n\nTechnical details: %v", userErr.Underlying)
		}
		return msg
	}
	return err.Error()
}

// printError prints an error message to stderr with proper formatting.
func printError(err error) {
	printErrorTo(os.Stderr, err)
}

// printErrorTo prints an error message to the given writer.
func printErrorTo(w io.Writer, err error) {
	_, _ = fmt.Fprintf(w, "Error: %s\n", formatError(err))
}

// registerFlagCompletions sets up custom completions for global flags.
func registerFlagCompletions() {
	_ = rootCmd.RegisterFlagCompletionFunc("config", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"yaml", "yml", "toml"}, cobra.ShellCompDirectiveFilterFileExt
	})

	_ = rootCmd.RegisterFlagCompletionFunc("log-format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{
			"text\tHuman readable lines",
			"json\tOne JSON object per line",
			"zap\tzap production encoder",
		}, cobra.ShellCompDirectiveNoFileComp
	})

	_ = rootCmd.RegisterFlagCompletionFunc("log-level", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"debug", "info", "warn", "error"}, cobra.ShellCompDirectiveNoFileComp
	})

	_ = rootCmd.RegisterFlagCompletionFunc("repository", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return nil, cobra.ShellCompDirectiveFilterDirs
	})
}
