package main

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/artifactrepo/internal/domain/artifact"
	"github.com/felixgeelhaar/artifactrepo/internal/domain/request"
	"github.com/spf13/cobra"
)

var pathCmd = &cobra.Command{
	Use:   "path PLUGIN:ARTIFACT:VERSION",
	Short: "Print the install directory of an artifact",
	Args:  cobra.ExactArgs(1),
	RunE:  runPath,
}

var pathAttributes []string

func init() {
	rootCmd.AddCommand(pathCmd)

	pathCmd.Flags().StringArrayVarP(&pathAttributes, "attribute", "a", nil, "attribute name=value (repeatable)")
}

func runPath(cmd *cobra.Command, args []string) error {
	spec, err := request.ParseSpec(args[0])
	if err != nil {
		return err
	}
	attrs, err := artifact.ParseAttributes(pathAttributes)
	if err != nil {
		return err
	}

	return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
		path, err := rt.manager.InstalledPath(ctx, spec.PluginID, spec.ArtifactID, spec.Version, attrs)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	})
}
