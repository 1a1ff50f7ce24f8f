package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/felixgeelhaar/artifactrepo/internal/domain/artifact"
	"github.com/felixgeelhaar/artifactrepo/internal/ports"
)

// InstallParams describes one installation.
type InstallParams struct {
	PluginID   string
	ArtifactID string
	// Version defaults to artifact.DefaultVersion.
	Version string
	// Script is the plugin install script. Empty installs without running
	// any script.
	Script string
	// Attributes with empty values are resolved by the script.
	Attributes artifact.Attributes
	// Retention defaults to artifact.RemoveOldest.
	Retention artifact.RetentionPolicy
	// Request is recorded so the install script can be fetched again.
	Request *artifact.Request
}

func (p InstallParams) withDefaults() InstallParams {
	if p.Version == "" {
		p.Version = artifact.DefaultVersion
	}
	if p.Retention == "" {
		p.Retention = artifact.RemoveOldest
	}
	p.Attributes = p.Attributes.Clone()
	return p
}

// InstallWithoutScript records an installation without running any script.
func (r *Repository) InstallWithoutScript(ctx context.Context, pluginID, artifactID, version string, attrs ...artifact.Attribute) error {
	return r.Install(ctx, InstallParams{
		PluginID:   pluginID,
		ArtifactID: artifactID,
		Version:    version,
		Attributes: attrs,
	})
}

// Install installs an artifact unless it is already installed.
//
// Errors are returned for preconditions only: a missing script, attributes
// the script cannot resolve, lock or store failures. A failing install
// script is an outcome recorded as FAILED, not an error.
func (r *Repository) Install(ctx context.Context, p InstallParams) error {
	_, err := r.InstallArtifact(ctx, p)
	return err
}

// InstallArtifact is Install returning a copy of the resulting record, so
// callers can inspect the outcome under the resolved attributes.
func (r *Repository) InstallArtifact(ctx context.Context, p InstallParams) (*artifact.Artifact, error) {
	p = p.withDefaults()
	if p.Script != "" {
		abs, err := filepath.Abs(p.Script)
		if err != nil || !fileExists(abs) {
			return nil, &artifact.MissingScriptError{Path: p.Script}
		}
		p.Script = abs
	}

	var out *artifact.Artifact
	err := r.lock.With(ctx, func() error {
		if err := r.refresh(ctx); err != nil {
			return err
		}
		rec, err := r.install(ctx, p)
		if err != nil {
			return err
		}
		out = rec.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository) install(ctx context.Context, p InstallParams) (*artifact.Artifact, error) {
	attrs := p.Attributes
	if attrs.HasUnresolved() {
		if p.Script == "" {
			attrs = nil
		} else {
			resolved, err := r.resolveAttributes(ctx, p.PluginID, p.ArtifactID, p.Script, attrs)
			if err != nil {
				if rec := r.index[artifact.MakeKey(p.PluginID, p.ArtifactID, p.Version, attrs)]; rec != nil {
					rec.State = artifact.StateFailed
					if serr := r.save(ctx); serr != nil {
						return nil, serr
					}
				}
				r.steps.Error(err.Error())
				return nil, err
			}
			attrs = resolved
		}
	}

	key := artifact.MakeKey(p.PluginID, p.ArtifactID, p.Version, attrs)
	desc := artifact.Describe(p.PluginID, p.ArtifactID, p.Version, attrs)
	logger := r.logger.With(ports.F("artifact", desc))

	rec := r.index[key]
	lc, err := newLifecycle(key, rec)
	if err != nil {
		return nil, err
	}
	defer lc.stop()

	if rec != nil && rec.State == artifact.StateInstalling {
		logger.Info(ctx, "found an artifact left INSTALLING by an interrupted installation, starting over")
		if _, err := lc.fire(EventRecover); err != nil {
			return nil, err
		}
		r.removeRecord(ctx, rec)
		if err := r.save(ctx); err != nil {
			return nil, err
		}
		if err := r.refresh(ctx); err != nil {
			return nil, err
		}
		rec = r.index[key]
	}

	if rec != nil && rec.State == artifact.StateInstalled {
		if _, err := lc.fire(EventRequest); err != nil {
			return nil, err
		}
		logger.Info(ctx, "artifact already installed")
		r.registerEnvironmentCollection(ctx, rec)
		return rec, nil
	}

	state, err := lc.fire(EventRequest)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		logger.Warn(ctx, "found artifact in failed state, removing and starting over", ports.F("state", rec.State))
		r.removeRecord(ctx, rec)
	}

	host := r.hostInfo()
	rec = &artifact.Artifact{
		PluginID:         p.PluginID,
		ArtifactID:       p.ArtifactID,
		Version:          p.Version,
		Attributes:       attrs,
		State:            state,
		RelativePath:     artifact.RelativePath(p.PluginID, p.ArtifactID, p.Version, attrs),
		InstallationTime: r.now(),
		Host:             host,
		Retention:        p.Retention,
		Request:          p.Request,
	}
	r.put(rec)
	if err := r.save(ctx); err != nil {
		return nil, err
	}

	logger.Info(ctx, "installing artifact")
	r.steps.Step("Installing " + desc)
	start := r.now()

	event := EventSucceed
	if err := r.runInstall(ctx, rec, p.Script); err != nil {
		event = EventFail
		logger.Error(ctx, "installation failed", ports.Err(err))
		r.steps.Error(fmt.Sprintf("Installation failed for %s: %v", desc, err))
	}
	if state, err = lc.fire(event); err != nil {
		return nil, err
	}
	rec.State = state
	r.metrics.InstallFinished(rec.PluginID, string(rec.State), r.now().Sub(start))

	if rec.State == artifact.StateInstalled {
		r.sessExports = append(r.sessExports, r.exportLines(ctx, rec)...)
		r.registerEnvironmentCollection(ctx, rec)
		logger.Info(ctx, "artifact installed", ports.F("size", rec.InstalledSize), ports.F("phases", lc.entered))
		r.steps.Step("Installed " + desc)
	}
	return rec, r.save(ctx)
}

// runInstall creates the artifact directory and runs the install script in
// it. Panics are turned into errors so the record ends FAILED.
func (r *Repository) runInstall(ctx context.Context, rec *artifact.Artifact, script string) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("installation panicked: %v", v)
		}
	}()

	dir := r.installDir(rec)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	if script != "" {
		exports := make([]string, 0, len(r.preExports)+len(r.sessExports))
		exports = append(exports, r.preExports...)
		exports = append(exports, r.sessExports...)

		err := r.script.Install(ctx, ports.InstallCall{
			Script:     script,
			PluginID:   rec.PluginID,
			ArtifactID: rec.ArtifactID,
			InstallDir: dir,
			Values:     rec.Attributes.Normalized().Values(),
			Exports:    exports,
			EnvScripts: r.EnvironmentCollectionScripts(),
		})
		if err != nil {
			return err
		}
	}

	size, err := dirSize(dir)
	if err != nil {
		return fmt.Errorf("failed to measure %s: %w", dir, err)
	}
	rec.InstalledSize = size

	if script != "" && rec.InstallScriptRelativePath == "" {
		rel := artifact.ScriptRelativePath(rec.PluginID, rec.Version)
		cached := r.scriptPath(rel)
		if script != cached {
			if err := copyFile(script, cached); err != nil {
				return fmt.Errorf("failed to cache install script: %w", err)
			}
		}
		rec.InstallScriptRelativePath = rel
		r.scripts[scriptKey{rec.PluginID, rec.Version}] = cached
	}
	return nil
}

// resolveAttributes asks the script for the values of unresolved
// attributes and returns a copy with every value filled in and normalised.
func (r *Repository) resolveAttributes(ctx context.Context, pluginID, artifactID, script string, attrs artifact.Attributes) (artifact.Attributes, error) {
	desc := artifact.Describe(pluginID, artifactID, "", attrs)
	values, err := r.script.ResolveAttributes(ctx, ports.AttributeCall{
		Script:     script,
		PluginID:   pluginID,
		ArtifactID: artifactID,
		EnvScripts: r.EnvironmentCollectionScripts(),
	})
	if err != nil {
		return nil, &artifact.AttributeResolutionError{Artifact: desc, Err: err}
	}

	out := attrs.Clone()
	var missing, empty []string
	for i, a := range out {
		if a.Resolved() {
			continue
		}
		v, ok := values[a.Name]
		switch {
		case !ok:
			missing = append(missing, a.Name)
		case artifact.Normalize(v) == "":
			empty = append(empty, a.Name)
		default:
			out[i].Value = artifact.Normalize(v)
		}
	}
	if len(missing) > 0 || len(empty) > 0 {
		return nil, &artifact.AttributeResolutionError{Artifact: desc, Missing: missing, Empty: empty}
	}
	return out, nil
}

func (r *Repository) hostInfo() artifact.Host {
	if r.host == nil {
		name, _ := os.Hostname()
		return artifact.Host{HostName: name}
	}
	h := r.host.Host()
	return artifact.Host{
		HostName:       h.HostName,
		OSName:         h.OSName,
		OSArchitecture: h.OSArchitecture,
		OSVersion:      h.OSVersion,
	}
}

// registerEnvironmentCollection adds the cached script of an environment
// collection plugin to the scripts sourced before every install.
func (r *Repository) registerEnvironmentCollection(ctx context.Context, rec *artifact.Artifact) {
	if !rec.IsEnvironmentCollection() {
		return
	}
	path := r.CachedInstallationScript(rec.PluginID, rec.Version)
	if path == "" {
		return
	}
	for _, s := range r.envScripts {
		if s == path {
			return
		}
	}
	r.logger.Info(ctx, "registering environment collection script", ports.F("script", path))
	r.envScripts = append(r.envScripts, path)
}

// EnvironmentCollectionScripts returns the registered environment
// collection scripts in registration order.
func (r *Repository) EnvironmentCollectionScripts() []string {
	out := make([]string, len(r.envScripts))
	copy(out, r.envScripts)
	return out
}

// RegisterEnvironmentCollection registers rec's cached script when rec
// belongs to an environment collection plugin.
func (r *Repository) RegisterEnvironmentCollection(ctx context.Context, rec *artifact.Artifact) {
	if rec == nil {
		return
	}
	if indexed := r.index[rec.Key()]; indexed != nil {
		rec = indexed
	}
	r.registerEnvironmentCollection(ctx, rec)
}

// UnregisterAllEnvironmentCollectionScripts forgets every registered
// environment collection script.
func (r *Repository) UnregisterAllEnvironmentCollectionScripts() {
	r.envScripts = nil
}

// FailInstalling marks every INSTALLING record FAILED and returns them.
func (r *Repository) FailInstalling(ctx context.Context) ([]*artifact.Artifact, error) {
	var failed []*artifact.Artifact
	err := r.lock.With(ctx, func() error {
		if err := r.refresh(ctx); err != nil {
			return err
		}
		for _, rec := range r.records() {
			if rec.State != artifact.StateInstalling {
				continue
			}
			lc, err := newLifecycle(rec.Key(), rec)
			if err != nil {
				return err
			}
			state, err := lc.fire(EventFail)
			lc.stop()
			if err != nil {
				return err
			}
			rec.State = state
			failed = append(failed, rec.Clone())
			r.logger.Info(ctx, "failed interrupted installation", ports.F("artifact", rec.String()))
		}
		if len(failed) == 0 {
			return nil
		}
		return r.save(ctx)
	})
	return failed, err
}

// SetRetention changes the retention policy of a record.
func (r *Repository) SetRetention(ctx context.Context, pluginID, artifactID, version string, attrs artifact.Attributes, policy artifact.RetentionPolicy) error {
	return r.lock.With(ctx, func() error {
		if err := r.refresh(ctx); err != nil {
			return err
		}
		rec := r.index[artifact.MakeKey(pluginID, artifactID, version, attrs)]
		if rec == nil {
			return fmt.Errorf("%w: %s", artifact.ErrNotFound, artifact.Describe(pluginID, artifactID, version, attrs))
		}
		if rec.Retention == policy {
			return nil
		}
		rec.Retention = policy
		return r.save(ctx)
	})
}

// UpdateArtifact stores a revised record under its key, then reloads the
// index.
func (r *Repository) UpdateArtifact(ctx context.Context, a *artifact.Artifact) error {
	return r.lock.With(ctx, func() error {
		if err := r.refresh(ctx); err != nil {
			return err
		}
		r.put(a.Clone())
		if err := r.save(ctx); err != nil {
			return err
		}
		return r.refresh(ctx)
	})
}
