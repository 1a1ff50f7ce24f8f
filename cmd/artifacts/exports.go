package main

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/felixgeelhaar/artifactrepo/internal/domain/request"
	"github.com/felixgeelhaar/artifactrepo/internal/domain/scope"
	"github.com/spf13/cobra"
)

var exportsCmd = &cobra.Command{
	Use:   "exports [PLUGIN:ARTIFACT:VERSION]...",
	Short: "Write shell exports for installed artifacts",
	Long: `Write one export statement per installed artifact, holding its install
directory, plus one per attribute value:

  export RESOURCES_ARTIFACTS_<PLUGIN>_<ARTIFACT>[_<VALUE>...]=<dir>
  export RESOURCES_ARTIFACTS_<PLUGIN>_<ARTIFACT>_<ATTRIBUTE>=<value>

Only artifacts named as arguments or by --requests are exported; with
neither, every installed artifact is. Artifacts whose attributes no longer
match the values their install script reports are skipped.

Examples:
  artifacts exports --requests requests.pb
  artifacts exports BWA:INDEX:0.5.9 --output -
  source exports.sh`,
	RunE: runExports,
}

var exportsOutput string

func init() {
	rootCmd.AddCommand(exportsCmd)

	exportsCmd.Flags().StringVarP(&exportsOutput, "output", "o", "exports.sh", "file to write, or - for stdout")
}

func runExports(cmd *cobra.Command, args []string) error {
	return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
		var buf bytes.Buffer
		switch {
		case requestFile != "":
			set, err := loadRequests(ctx)
			if err != nil {
				return err
			}
			if err := rt.manager.WriteRequestExports(ctx, &buf, set); err != nil {
				return err
			}
		case len(args) > 0:
			explicit := scope.NewExplicit()
			for _, arg := range args {
				spec, err := request.ParseSpec(arg)
				if err != nil {
					return err
				}
				explicit.Add(spec.PluginID, spec.ArtifactID, spec.Version)
			}
			if err := rt.manager.WriteExports(ctx, &buf, explicit); err != nil {
				return err
			}
		default:
			if err := rt.manager.WriteExports(ctx, &buf, scope.All()); err != nil {
				return err
			}
		}

		if exportsOutput == "-" {
			_, err := cmd.OutOrStdout().Write(buf.Bytes())
			return err
		}
		if err := os.WriteFile(exportsOutput, buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("failed to write exports: %w", err)
		}
		rt.logger.Info(ctx, "wrote exports to "+exportsOutput)
		return nil
	})
}
