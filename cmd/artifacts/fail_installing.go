package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var failInstallingCmd = &cobra.Command{
	Use:   "fail-installing",
	Short: "Mark every artifact stuck INSTALLING as FAILED",
	Long: `Mark every artifact left INSTALLING as FAILED, so the next install starts
it over. Use this after killing processes that were installing.`,
	RunE: runFailInstalling,
}

func init() {
	rootCmd.AddCommand(failInstallingCmd)
}

func runFailInstalling(cmd *cobra.Command, _ []string) error {
	return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
		failed, err := rt.manager.FailInstalling(ctx)
		if err != nil {
			return err
		}
		for _, a := range failed {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "failed plugin: %s:%s:%s\n", a.PluginID, a.ArtifactID, a.Version)
		}
		return nil
	})
}
