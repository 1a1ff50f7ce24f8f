package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/felixgeelhaar/artifactrepo/internal/adapters/diskspace"
	"github.com/felixgeelhaar/artifactrepo/internal/domain/artifact"
	"github.com/felixgeelhaar/artifactrepo/internal/ports"
	"github.com/spf13/cobra"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "List the artifacts in the repository",
	RunE:  runShow,
}

var showRepoCmd = &cobra.Command{
	Use:   "show-repo",
	Short: "Summarize repository usage",
	RunE:  runShowRepo,
}

var showYAML bool

func init() {
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(showRepoCmd)

	showCmd.Flags().BoolVar(&showYAML, "yaml", false, "print full records as YAML")
}

// artifactView is the YAML form of a record.
type artifactView struct {
	Plugin     string            `yaml:"plugin"`
	Artifact   string            `yaml:"artifact"`
	Version    string            `yaml:"version"`
	Attributes map[string]string `yaml:"attributes,omitempty"`
	State      string            `yaml:"state"`
	Path       string            `yaml:"path"`
	Installed  time.Time         `yaml:"installed"`
	Size       int64             `yaml:"size"`
	Host       string            `yaml:"host,omitempty"`
	Retention  string            `yaml:"retention"`
	Request    string            `yaml:"request,omitempty"`
}

func newArtifactView(a *artifact.Artifact) artifactView {
	v := artifactView{
		Plugin:    a.PluginID,
		Artifact:  a.ArtifactID,
		Version:   a.Version,
		State:     string(a.State),
		Path:      a.RelativePath,
		Installed: a.InstallationTime.UTC(),
		Size:      a.InstalledSize,
		Host:      a.Host.HostName,
		Retention: string(a.Retention),
	}
	if len(a.Attributes) > 0 {
		v.Attributes = make(map[string]string, len(a.Attributes))
		for _, attr := range a.Attributes {
			v.Attributes[attr.Name] = attr.Value
		}
	}
	if a.Request != nil {
		v.Request = a.Request.String()
	}
	return v
}

// compareVersions orders semantic versions numerically and anything else
// lexically after them.
func compareVersions(a, b string) int {
	va, vb := "v"+strings.TrimPrefix(a, "v"), "v"+strings.TrimPrefix(b, "v")
	okA, okB := semver.IsValid(va), semver.IsValid(vb)
	switch {
	case okA && okB:
		return semver.Compare(va, vb)
	case okA:
		return -1
	case okB:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

// sortArtifacts orders records by plugin, artifact, then version.
func sortArtifacts(artifacts []*artifact.Artifact) {
	sort.SliceStable(artifacts, func(i, j int) bool {
		a, b := artifacts[i], artifacts[j]
		if a.PluginID != b.PluginID {
			return a.PluginID < b.PluginID
		}
		if a.ArtifactID != b.ArtifactID {
			return a.ArtifactID < b.ArtifactID
		}
		return compareVersions(a.Version, b.Version) < 0
	})
}

func runShow(cmd *cobra.Command, _ []string) error {
	return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
		artifacts, err := rt.manager.Artifacts(ctx)
		if err != nil {
			return err
		}
		sortArtifacts(artifacts)
		out := cmd.OutOrStdout()

		if showYAML {
			views := make([]artifactView, len(artifacts))
			for i, a := range artifacts {
				views[i] = newArtifactView(a)
			}
			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			if err := enc.Encode(views); err != nil {
				return err
			}
			return enc.Close()
		}

		if len(artifacts) == 0 {
			_, _ = fmt.Fprintln(out, "No artifacts installed.")
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "ARTIFACT\tSTATE\tSIZE\tINSTALLED\tRETENTION")
		for _, a := range artifacts {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				artifact.Describe(a.PluginID, a.ArtifactID, a.Version, a.Attributes),
				a.State,
				humanize.Bytes(uint64(a.InstalledSize)),
				a.InstallationTime.UTC().Format(time.RFC3339),
				a.Retention)
		}
		return w.Flush()
	})
}

func runShowRepo(cmd *cobra.Command, _ []string) error {
	return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
		artifacts, err := rt.manager.Artifacts(ctx)
		if err != nil {
			return err
		}

		var used int64
		counts := make(map[artifact.State]int)
		for _, a := range artifacts {
			used += a.InstalledSize
			counts[a.State]++
		}

		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "Repository: %s\n", rt.repo.Dir())
		_, _ = fmt.Fprintf(out, "Artifacts:  %d (%d installed, %d installing, %d failed)\n",
			len(artifacts), counts[artifact.StateInstalled], counts[artifact.StateInstalling], counts[artifact.StateFailed])
		_, _ = fmt.Fprintf(out, "Used:       %s\n", humanize.Bytes(uint64(used)))
		if q := rt.repo.Quota(); q > 0 {
			_, _ = fmt.Fprintf(out, "Quota:      %s (%.1f%% used)\n", humanize.Bytes(uint64(q)), 100*float64(used)/float64(q))
		} else {
			_, _ = fmt.Fprintln(out, "Quota:      none")
		}
		if usage, err := diskspace.NewProbe().Usage(rt.repo.Dir()); err != nil {
			rt.logger.Debug(ctx, "disk usage unavailable", ports.Err(err))
		} else {
			_, _ = fmt.Fprintf(out, "Disk free:  %s of %s (%.1f%%)\n",
				humanize.Bytes(usage.Free), humanize.Bytes(usage.Total), usage.FreePercent())
		}
		return nil
	})
}
