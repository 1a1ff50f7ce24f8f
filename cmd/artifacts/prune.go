package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/artifactrepo/internal/domain/repository"
	"github.com/spf13/cobra"
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Evict the oldest artifacts until the repository fits its limits",
	Long: `Evict the oldest artifacts kept with REMOVE_OLDEST retention while the
installed size exceeds --quota or free disk space is under the configured
threshold. Artifacts installed with --keep are never evicted.`,
	RunE: runPrune,
}

func init() {
	rootCmd.AddCommand(pruneCmd)
}

func runPrune(cmd *cobra.Command, _ []string) error {
	return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
		before, err := rt.manager.Artifacts(ctx)
		if err != nil {
			return err
		}
		err = rt.manager.Prune(ctx)
		evicted := len(before) - len(rt.repo.Artifacts())
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Evicted %d artifact(s)\n", evicted)
		if errors.Is(err, repository.ErrNothingToPrune) {
			return fmt.Errorf("%w: the repository is still over its limits", err)
		}
		return err
	})
}
