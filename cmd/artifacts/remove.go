package main

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/artifactrepo/internal/domain/artifact"
	"github.com/spf13/cobra"
)

var removeCmd = &cobra.Command{
	Use:   "remove [PLUGIN:ARTIFACT:VERSION]...",
	Short: "Remove installed artifacts",
	Long: `Remove installed artifacts and their directories.

Every installed artifact of the plugin, artifact and version is removed,
whatever its attributes.`,
	RunE: runRemove,
}

func init() {
	rootCmd.AddCommand(removeCmd)
}

func runRemove(cmd *cobra.Command, args []string) error {
	set, err := requestSet(cmd.Context(), args, artifact.RemoveOldest, nil)
	if err != nil {
		return err
	}

	return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
		removed, err := rt.manager.RemoveRequests(ctx, set)
		if err != nil {
			return err
		}
		for _, a := range removed {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", a.String())
		}
		return nil
	})
}
