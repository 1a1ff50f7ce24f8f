package repository

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/felixgeelhaar/artifactrepo/internal/domain/artifact"
	"github.com/felixgeelhaar/artifactrepo/internal/domain/scope"
	"github.com/felixgeelhaar/artifactrepo/internal/ports"
)

// Exports returns the export statements of every INSTALLED artifact in
// scope whose recorded attributes match the current environment.
func (r *Repository) Exports(ctx context.Context, s scope.Scope) ([]string, error) {
	if s == nil {
		s = scope.All()
	}
	var lines []string
	err := r.lock.With(ctx, func() error {
		if err := r.refresh(ctx); err != nil {
			return err
		}
		for _, a := range r.records() {
			if a.State != artifact.StateInstalled || !s.InScope(a.PluginID, a.ArtifactID, a.Version) {
				continue
			}
			lines = append(lines, r.exportLines(ctx, a)...)
		}
		return nil
	})
	return lines, err
}

// WriteExports writes Exports to w, one statement per line.
func (r *Repository) WriteExports(ctx context.Context, w io.Writer, s scope.Scope) error {
	lines, err := r.Exports(ctx, s)
	if err != nil {
		return err
	}
	return writeLines(w, lines)
}

// PrintBashExports writes the exports computed by the last Load followed by
// the exports of artifacts installed since.
func (r *Repository) PrintBashExports(w io.Writer) error {
	if err := writeLines(w, r.preExports); err != nil {
		return err
	}
	return writeLines(w, r.sessExports)
}

// SessionExports returns the exports of artifacts installed since the
// repository was created.
func (r *Repository) SessionExports() []string {
	out := make([]string, len(r.sessExports))
	copy(out, r.sessExports)
	return out
}

// SetSessionExports replaces the session exports, for callers chaining
// installations across repositories.
func (r *Repository) SetSessionExports(lines []string) {
	r.sessExports = append([]string(nil), lines...)
}

// exportLines returns the export statements of an installed record, or
// nothing when its attributes cannot be confirmed in this environment.
func (r *Repository) exportLines(ctx context.Context, a *artifact.Artifact) []string {
	if a.State != artifact.StateInstalled {
		return nil
	}
	if len(a.Attributes) > 0 {
		if !r.HasCachedInstallationScript(ctx, a.PluginID, a.Version) {
			r.logger.Error(ctx, "cached install script must be found to export artifact", ports.F("artifact", a.String()))
			return nil
		}
		env, err := r.resolveAttributes(ctx, a.PluginID, a.ArtifactID, r.CachedInstallationScript(a.PluginID, a.Version), a.Attributes.Cleared())
		if err != nil {
			r.logger.Debug(ctx, "skipping exports, attributes unavailable", ports.F("artifact", a.String()), ports.Err(err))
			return nil
		}
		if !env.Equal(a.Attributes) {
			r.logger.Debug(ctx, "skipping exports, attributes differ in this environment",
				ports.F("artifact", a.String()), ports.F("environment", env.String()))
			return nil
		}
	}
	return artifact.ExportLines(a, r.installDir(a))
}

func writeLines(w io.Writer, lines []string) error {
	if len(lines) == 0 {
		return nil
	}
	if _, err := fmt.Fprintln(w, strings.Join(lines, "\n")); err != nil {
		return fmt.Errorf("failed to write exports: %w", err)
	}
	return nil
}
