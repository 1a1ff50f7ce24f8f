package main

import (
	"errors"
	"fmt"

	"github.com/felixgeelhaar/artifactrepo/internal/adapters/metadata"
	"github.com/felixgeelhaar/artifactrepo/internal/domain/artifact"
	"github.com/felixgeelhaar/artifactrepo/internal/domain/request"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var requestCmd = &cobra.Command{
	Use:   "request",
	Short: "Build and inspect installation request files",
}

var requestBuildCmd = &cobra.Command{
	Use:   "build PLUGIN:ARTIFACT:VERSION:script...",
	Short: "Write an installation request file",
	Long: `Write an installation request file naming artifacts and their install
scripts. With --web-server, scripts are paths on that host and are fetched
over SSH at install time.

The file is binary unless it ends in .yaml or .yml.

Examples:
  artifacts request build -o requests.pb BWA:INDEX:0.5.9:/plugins/bwa/install.sh
  artifacts request build -o requests.yaml --web-server gobyweb@web P:A:1.0:/srv/p/install.sh`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRequestBuild,
}

var requestShowCmd = &cobra.Command{
	Use:   "show FILE",
	Short: "Print an installation request file as YAML",
	Args:  cobra.ExactArgs(1),
	RunE:  runRequestShow,
}

var (
	requestOutput     string
	requestWebServer  string
	requestOptional   bool
	requestKeep       bool
	requestAttributes []string
	requestEnvScripts []string
)

func init() {
	rootCmd.AddCommand(requestCmd)
	requestCmd.AddCommand(requestBuildCmd)
	requestCmd.AddCommand(requestShowCmd)

	requestBuildCmd.Flags().StringVarP(&requestOutput, "output", "o", "", "request file to write (required)")
	requestBuildCmd.Flags().StringVar(&requestWebServer, "web-server", "", "[user@]host serving the install scripts")
	requestBuildCmd.Flags().BoolVar(&requestOptional, "optional", false, "mark the artifacts as not mandatory")
	requestBuildCmd.Flags().BoolVar(&requestKeep, "keep", false, "never evict these artifacts when pruning")
	requestBuildCmd.Flags().StringArrayVarP(&requestAttributes, "attribute", "a", nil, "attribute name, or name=value (repeatable)")
	requestBuildCmd.Flags().StringArrayVar(&requestEnvScripts, "env-script", nil, "environment collection script, sourced before every install (repeatable)")
	_ = requestBuildCmd.MarkFlagRequired("output")
}

func runRequestBuild(cmd *cobra.Command, args []string) error {
	attrs, err := artifact.ParseAttributes(requestAttributes)
	if err != nil {
		return err
	}
	retention := artifact.RemoveOldest
	if requestKeep {
		retention = artifact.KeepUntilExplicitRemove
	}

	b := request.NewBuilder(requestWebServer)
	for _, script := range requestEnvScripts {
		b.RegisterEnvironmentCollection(script)
	}
	for _, arg := range args {
		spec, err := request.ParseSpec(arg)
		if err != nil {
			return err
		}
		if spec.Script == "" {
			return fmt.Errorf("%w: %q names no install script", request.ErrInvalidSpec, arg)
		}
		b.Add(spec.PluginID, spec.ArtifactID, spec.Version, !requestOptional, spec.Script, retention, attrs...)
	}
	if b.Empty() {
		return errors.New("no artifacts to request")
	}

	if err := b.Save(cmd.Context(), metadata.RequestsFor(requestOutput), requestOutput); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d request(s) to %s\n", b.Build().Len(), requestOutput)
	return nil
}

func runRequestShow(cmd *cobra.Command, args []string) error {
	set, err := metadata.RequestsFor(args[0]).Load(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(set); err != nil {
		return err
	}
	return enc.Close()
}
