package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/artifactrepo/internal/app"
	"github.com/felixgeelhaar/artifactrepo/internal/domain/artifact"
	"github.com/felixgeelhaar/artifactrepo/internal/domain/repository"
	"github.com/felixgeelhaar/artifactrepo/internal/domain/request"
	"github.com/spf13/cobra"
)

var installCmd = &cobra.Command{
	Use:   "install [PLUGIN:ARTIFACT:VERSION[:script]]...",
	Short: "Install artifacts into the repository",
	Long: `Install artifacts, each with its plugin install script.

Artifacts already installed are left alone. An artifact whose script
fails is recorded FAILED and the run stops with exit status 10, leaving
the remaining artifacts uninstalled.

Examples:
  artifacts install BWA:INDEX:0.5.9:/plugins/bwa/install.sh
  artifacts install BWA:INDEX:0.5.9:install.sh --attribute organism
  artifacts install --requests requests.pb --only-mandatory`,
	RunE: runInstall,
}

var (
	installAttributes    []string
	installKeep          bool
	installOnlyMandatory bool
	installPrune         bool
)

func init() {
	rootCmd.AddCommand(installCmd)

	installCmd.Flags().StringArrayVarP(&installAttributes, "attribute", "a", nil, "attribute name, or name=value (repeatable)")
	installCmd.Flags().BoolVar(&installKeep, "keep", false, "never evict these artifacts when pruning")
	installCmd.Flags().BoolVar(&installOnlyMandatory, "only-mandatory", false, "install only the mandatory requests")
	installCmd.Flags().BoolVar(&installPrune, "prune", false, "prune the repository after installing")
}

// requestSet returns the --requests file when given, otherwise requests
// built from the command-line specifications.
func requestSet(ctx context.Context, args []string, retention artifact.RetentionPolicy, attributes []string) (*request.Set, error) {
	if requestFile != "" {
		if len(args) > 0 {
			return nil, errors.New("pass artifacts either as arguments or with --requests, not both")
		}
		return loadRequests(ctx)
	}
	if len(args) == 0 {
		return nil, errors.New("no artifacts given: pass PLUGIN:ARTIFACT:VERSION[:script] or --requests")
	}
	attrs, err := artifact.ParseAttributes(attributes)
	if err != nil {
		return nil, err
	}
	return app.SetFromSpecs(args, retention, attrs)
}

func runInstall(cmd *cobra.Command, args []string) error {
	retention := artifact.RemoveOldest
	if installKeep {
		retention = artifact.KeepUntilExplicitRemove
	}
	set, err := requestSet(cmd.Context(), args, retention, installAttributes)
	if err != nil {
		return err
	}

	return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
		err := rt.manager.InstallRequests(ctx, set, installOnlyMandatory)
		if verbose {
			_, _ = fmt.Fprint(cmd.ErrOrStderr(), rt.steps.Summarize())
		}
		if err != nil {
			return err
		}
		if installPrune {
			if err := rt.manager.Prune(ctx); err != nil && !errors.Is(err, repository.ErrNothingToPrune) {
				return err
			}
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Processed %d install request(s) in %s\n", set.Len(), rt.repo.Dir())
		return nil
	})
}
