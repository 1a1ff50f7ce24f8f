// Package app drives the artifact repository from installation requests
// and command-line artifact specifications.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/felixgeelhaar/artifactrepo/internal/domain/artifact"
	"github.com/felixgeelhaar/artifactrepo/internal/domain/repository"
	"github.com/felixgeelhaar/artifactrepo/internal/domain/request"
	"github.com/felixgeelhaar/artifactrepo/internal/domain/scope"
	"github.com/felixgeelhaar/artifactrepo/internal/ports"
	"github.com/google/uuid"
)

// ErrEarlyStop indicates a requested artifact did not end INSTALLED, so
// the remaining requests were not processed.
var ErrEarlyStop = errors.New("installation stopped early")

// EarlyStopError names the request that stopped an installation run.
type EarlyStopError struct {
	Request artifact.Request
	// State is the state the artifact ended in, empty when installation
	// never started.
	State artifact.State
	Err   error
}

func (e *EarlyStopError) Error() string {
	msg := fmt.Sprintf("%v: %s", ErrEarlyStop, e.Request.String())
	if e.State != "" {
		msg += fmt.Sprintf(" ended %s", e.State)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Is matches ErrEarlyStop.
func (e *EarlyStopError) Is(target error) bool {
	return target == ErrEarlyStop
}

func (e *EarlyStopError) Unwrap() error {
	return e.Err
}

// Manager runs installation requests against one repository.
type Manager struct {
	repo        *repository.Repository
	fetcher     repository.Fetcher
	logger      ports.Logger
	tmpDir      string
	lockTimeout time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithFetcher sets how install scripts named by requests are retrieved.
// Without one, local script paths are used in place and remote requests
// fail.
func WithFetcher(f repository.Fetcher) Option {
	return func(m *Manager) { m.fetcher = f }
}

// WithTempDir sets where fetched install scripts are written.
func WithTempDir(dir string) Option {
	return func(m *Manager) { m.tmpDir = dir }
}

// WithLockTimeout bounds the wait for another process holding the
// repository lock. Zero waits forever.
func WithLockTimeout(d time.Duration) Option {
	return func(m *Manager) { m.lockTimeout = d }
}

// New creates a Manager for repo.
func New(repo *repository.Repository, logger ports.Logger, opts ...Option) *Manager {
	m := &Manager{
		repo:   repo,
		logger: logger,
		tmpDir: os.TempDir(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Repository returns the managed repository.
func (m *Manager) Repository() *repository.Repository {
	return m.repo
}

// withLock runs fn holding the repository lock for its whole duration.
// Only the initial acquisition is bounded by the lock timeout.
func (m *Manager) withLock(ctx context.Context, fn func() error) error {
	lockCtx := ctx
	if m.lockTimeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, m.lockTimeout)
		defer cancel()
	}

	l := m.repo.Lock()
	if err := l.Acquire(lockCtx); err != nil {
		return err
	}
	defer func() {
		if err := l.Release(); err != nil {
			m.logger.Warn(ctx, "failed to release repository lock", ports.Err(err))
		}
	}()
	return fn()
}

// Load reads the repository index, computing exports for records in s.
func (m *Manager) Load(ctx context.Context, s scope.Scope) error {
	return m.withLock(ctx, func() error {
		if s != nil {
			m.repo.SetScope(s)
		}
		return m.repo.Load(ctx)
	})
}

// InstallRequests installs every request in set, in order, holding the
// repository lock across the whole run. It stops at the first artifact
// that does not end INSTALLED and returns an *EarlyStopError.
func (m *Manager) InstallRequests(ctx context.Context, set *request.Set, onlyMandatory bool) error {
	steps := m.repo.Steps()
	m.repo.UnregisterAllEnvironmentCollectionScripts()
	steps.Step(fmt.Sprintf("Preparing to install from request: %d artifact(s)", set.Len()))

	return m.withLock(ctx, func() error {
		m.repo.SetScope(scope.NewRequest(set))
		if err := m.repo.Load(ctx); err != nil {
			return err
		}

		for i := range set.Artifacts {
			req := set.Artifacts[i]
			if onlyMandatory && !req.Mandatory {
				m.logger.Debug(ctx, "skipping optional request", ports.F("request", req.String()))
				continue
			}
			steps.Step("Processing install request: " + req.String())
			if err := m.install(ctx, &req); err != nil {
				return err
			}
		}
		return m.repo.Save(ctx)
	})
}

func (m *Manager) install(ctx context.Context, req *artifact.Request) error {
	steps := m.repo.Steps()
	logger := m.logger.With(ports.F("request", req.String()))

	if existing := m.repo.Find(req.PluginID, req.ArtifactID, req.Version, req.Attributes); existing != nil && existing.State == artifact.StateInstalled {
		logger.Info(ctx, "artifact already installed")
		m.repo.RegisterEnvironmentCollection(ctx, existing)
		return nil
	}

	script, cleanup, err := m.installScript(ctx, req)
	if err != nil {
		steps.Error(fmt.Sprintf("Unable to retrieve install script for %s: %v", req.String(), err))
		return &EarlyStopError{Request: *req, Err: err}
	}
	defer cleanup()

	a, err := m.repo.InstallArtifact(ctx, repository.InstallParams{
		PluginID:   req.PluginID,
		ArtifactID: req.ArtifactID,
		Version:    req.Version,
		Script:     script,
		Attributes: req.Attributes,
		Retention:  req.Retention,
		Request:    req,
	})
	if err != nil {
		var missing *artifact.MissingScriptError
		var unresolved *artifact.AttributeResolutionError
		if errors.As(err, &missing) || errors.As(err, &unresolved) {
			return &EarlyStopError{Request: *req, Err: err}
		}
		return err
	}

	if a.State != artifact.StateInstalled {
		steps.Error("Early stop: " + a.String())
		return &EarlyStopError{Request: *req, State: a.State}
	}
	steps.Step("Artifact successfully installed: " + a.String())
	return nil
}

// installScript returns the script to install req with: the script cached
// for the plugin version when present, otherwise a fresh copy of the one the
// request names.
func (m *Manager) installScript(ctx context.Context, req *artifact.Request) (string, func(), error) {
	noop := func() {}
	if m.repo.HasCachedInstallationScript(ctx, req.PluginID, req.Version) {
		return m.repo.CachedInstallationScript(req.PluginID, req.Version), noop, nil
	}
	if req.ScriptInstallPath == "" {
		return "", noop, nil
	}
	if m.fetcher == nil {
		if req.Remote() {
			return "", noop, fmt.Errorf("no transport configured for %s", req.SSHHost)
		}
		return req.ScriptInstallPath, noop, nil
	}

	target := filepath.Join(m.tmpDir, fmt.Sprintf("%s-%s-install.sh", req.PluginID, uuid.NewString()))
	if err := m.fetcher.Fetch(ctx, req, target); err != nil {
		_ = os.Remove(target)
		return "", noop, err
	}
	return target, func() { _ = os.Remove(target) }, nil
}

// RemoveRequests removes every INSTALLED artifact matching a request,
// whatever its attributes.
func (m *Manager) RemoveRequests(ctx context.Context, set *request.Set) ([]*artifact.Artifact, error) {
	var removed []*artifact.Artifact
	err := m.withLock(ctx, func() error {
		if err := m.repo.Load(ctx, repository.WithoutExports()); err != nil {
			return err
		}
		for _, req := range set.Artifacts {
			for _, a := range m.repo.FindIgnoringAttributes(req.PluginID, req.ArtifactID, req.Version) {
				if a.State != artifact.StateInstalled {
					continue
				}
				if err := m.repo.Remove(ctx, a.PluginID, a.ArtifactID, a.Version, a.Attributes); err != nil {
					return err
				}
				removed = append(removed, a)
			}
		}
		return nil
	})
	return removed, err
}

// WriteRequestExports writes the export statements of every INSTALLED
// artifact whose plugin version is named by set.
func (m *Manager) WriteRequestExports(ctx context.Context, w io.Writer, set *request.Set) error {
	s := scope.NewRequest(set)
	return m.withLock(ctx, func() error {
		m.repo.SetScope(s)
		if err := m.repo.Load(ctx, repository.WithoutExports()); err != nil {
			return err
		}
		return m.repo.WriteExports(ctx, w, s)
	})
}

// WriteExports writes the export statements of every INSTALLED artifact
// in s.
func (m *Manager) WriteExports(ctx context.Context, w io.Writer, s scope.Scope) error {
	return m.withLock(ctx, func() error {
		if err := m.repo.Load(ctx, repository.WithoutExports()); err != nil {
			return err
		}
		return m.repo.WriteExports(ctx, w, s)
	})
}

// InstalledPath returns the install directory of one artifact.
func (m *Manager) InstalledPath(ctx context.Context, pluginID, artifactID, version string, attrs artifact.Attributes) (string, error) {
	var path string
	err := m.withLock(ctx, func() error {
		if err := m.repo.Load(ctx, repository.WithoutExports()); err != nil {
			return err
		}
		p, err := m.repo.InstalledPath(pluginID, artifactID, version, attrs)
		if err != nil {
			return err
		}
		path = p
		return nil
	})
	return path, err
}

// Artifacts loads the repository and returns every record.
func (m *Manager) Artifacts(ctx context.Context) ([]*artifact.Artifact, error) {
	if err := m.Load(ctx, nil); err != nil {
		return nil, err
	}
	return m.repo.Artifacts(), nil
}

// FailInstalling marks every INSTALLING record FAILED.
func (m *Manager) FailInstalling(ctx context.Context) ([]*artifact.Artifact, error) {
	var failed []*artifact.Artifact
	err := m.withLock(ctx, func() error {
		var err error
		failed, err = m.repo.FailInstalling(ctx)
		if err != nil {
			return err
		}
		for _, a := range failed {
			m.repo.Steps().Step(fmt.Sprintf("failed plugin: %s:%s:%s", a.PluginID, a.ArtifactID, a.Version))
		}
		return nil
	})
	return failed, err
}

// Prune evicts artifacts until the repository is within its quota and
// free-space limits.
func (m *Manager) Prune(ctx context.Context) error {
	return m.withLock(ctx, func() error {
		return m.repo.Prune(ctx)
	})
}
