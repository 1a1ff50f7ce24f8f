// Package repository implements the shared on-disk artifact repository:
// the metadata index, its installation lifecycle, pruning and the shell
// export statements that expose installed artifacts to jobs.
//
// A Repository is used from a single goroutine. Processes sharing the same
// directory are serialized by a reentrant file lock held around every
// load-mutate-save sequence.
package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/felixgeelhaar/artifactrepo/internal/domain/artifact"
	"github.com/felixgeelhaar/artifactrepo/internal/domain/lock"
	"github.com/felixgeelhaar/artifactrepo/internal/domain/scope"
	"github.com/felixgeelhaar/artifactrepo/internal/ports"
)

// Layout of a repository directory.
const (
	MetadataFileName = "metadata.pb"
	ArtifactsDirName = "artifacts"
	ScriptsDirName   = "scripts"
)

// DefaultFreeSpaceThreshold is the free space percentage under which
// pruning evicts artifacts.
const DefaultFreeSpaceThreshold = 10.0

// Store persists the artifact index.
type Store interface {
	Load(ctx context.Context, path string) ([]*artifact.Artifact, error)
	Save(ctx context.Context, path string, records []*artifact.Artifact) error
}

// Fetcher retrieves the install script named by an installation request.
type Fetcher interface {
	Fetch(ctx context.Context, req *artifact.Request, target string) error
}

// Repository is the artifact repository rooted at a directory.
type Repository struct {
	dir     string
	store   Store
	script  ports.ScriptRunner
	logger  ports.Logger
	fetcher Fetcher
	disk    ports.DiskProbe
	host    ports.HostProbe
	metrics ports.Metrics
	steps   ports.StepLogger
	scope   scope.Scope
	now     func() time.Time

	quota         int64
	freeThreshold float64
	lockPoll      time.Duration
	lock          *lock.Lock

	order   []artifact.Key
	index   map[artifact.Key]*artifact.Artifact
	scripts map[scriptKey]string

	envScripts  []string
	preExports  []string
	sessExports []string
}

// Option configures a Repository.
type Option func(*Repository)

// WithFetcher sets how missing cached install scripts are fetched again.
func WithFetcher(f Fetcher) Option {
	return func(r *Repository) { r.fetcher = f }
}

// WithDiskProbe sets the filesystem usage probe used by Prune.
func WithDiskProbe(p ports.DiskProbe) Option {
	return func(r *Repository) { r.disk = p }
}

// WithHostProbe sets the probe describing the installing machine.
func WithHostProbe(p ports.HostProbe) Option {
	return func(r *Repository) { r.host = p }
}

// WithMetrics sets the activity recorder.
func WithMetrics(m ports.Metrics) Option {
	return func(r *Repository) { r.metrics = m }
}

// WithStepLogger sets where coarse-grained progress is reported.
func WithStepLogger(s ports.StepLogger) Option {
	return func(r *Repository) { r.steps = s }
}

// WithScope restricts the pre-installed exports computed by Load.
func WithScope(s scope.Scope) Option {
	return func(r *Repository) { r.scope = s }
}

// WithClock sets the time source for installation timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// WithQuota sets the maximum total installed size in bytes. Zero or less
// disables the quota.
func WithQuota(bytes int64) Option {
	return func(r *Repository) { r.quota = bytes }
}

// WithFreeSpaceThreshold sets the free space percentage under which
// pruning evicts artifacts.
func WithFreeSpaceThreshold(percent float64) Option {
	return func(r *Repository) { r.freeThreshold = percent }
}

// WithLockPollInterval sets how often a contended lock is retried.
func WithLockPollInterval(d time.Duration) Option {
	return func(r *Repository) { r.lockPoll = d }
}

// New creates a repository rooted at dir. Nothing is read until Load.
func New(dir string, store Store, script ports.ScriptRunner, logger ports.Logger, opts ...Option) (*Repository, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve repository directory: %w", err)
	}

	r := &Repository{
		dir:           abs,
		store:         store,
		script:        script,
		logger:        logger.With(ports.F("repository", abs)),
		metrics:       nopMetrics{},
		steps:         nopSteps{},
		scope:         scope.All(),
		now:           time.Now,
		freeThreshold: DefaultFreeSpaceThreshold,
		lockPoll:      lock.DefaultPollInterval,
		index:         make(map[artifact.Key]*artifact.Artifact),
		scripts:       make(map[scriptKey]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.lock = lock.New(abs, lock.WithPollInterval(r.lockPoll))
	return r, nil
}

// Dir returns the absolute repository directory.
func (r *Repository) Dir() string {
	return r.dir
}

// MetadataPath returns the path of the metadata file.
func (r *Repository) MetadataPath() string {
	return filepath.Join(r.dir, MetadataFileName)
}

// Lock returns the lock guarding the metadata file. Callers that run
// several operations as one unit acquire it around them.
func (r *Repository) Lock() *lock.Lock {
	return r.lock
}

// SetQuota sets the maximum total installed size in bytes.
func (r *Repository) SetQuota(bytes int64) {
	r.quota = bytes
}

// Quota returns the maximum total installed size in bytes.
func (r *Repository) Quota() int64 {
	return r.quota
}

// SetScope replaces the scope used for pre-installed exports.
func (r *Repository) SetScope(s scope.Scope) {
	if s == nil {
		s = scope.All()
	}
	r.scope = s
}

// SetStepLogger replaces the progress reporter.
func (r *Repository) SetStepLogger(s ports.StepLogger) {
	if s == nil {
		s = nopSteps{}
	}
	r.steps = s
}

// Steps returns the progress reporter.
func (r *Repository) Steps() ports.StepLogger {
	return r.steps
}

// LoadOption configures Load.
type LoadOption func(*loadOptions)

type loadOptions struct {
	exports bool
}

// WithoutExports skips recomputing the exports of installed artifacts.
// Maintenance operations that never install use it.
func WithoutExports() LoadOption {
	return func(o *loadOptions) { o.exports = false }
}

// Load reads the index from disk, replacing everything held in memory, and
// recomputes the export statements of installed artifacts in scope.
func (r *Repository) Load(ctx context.Context, opts ...LoadOption) error {
	o := loadOptions{exports: true}
	for _, opt := range opts {
		opt(&o)
	}

	return r.lock.With(ctx, func() error {
		if err := r.refresh(ctx); err != nil {
			return err
		}
		r.preExports = nil
		if !o.exports {
			return nil
		}
		for _, a := range r.records() {
			if a.State != artifact.StateInstalled || !r.scope.InScope(a.PluginID, a.ArtifactID, a.Version) {
				continue
			}
			r.preExports = append(r.preExports, r.exportLines(ctx, a)...)
		}
		return nil
	})
}

// Save writes the index to disk in insertion order.
func (r *Repository) Save(ctx context.Context) error {
	return r.lock.With(ctx, func() error {
		return r.save(ctx)
	})
}

// refresh rebuilds the index and the cached script map from disk. The
// caller holds the lock.
func (r *Repository) refresh(ctx context.Context) error {
	records, err := r.store.Load(ctx, r.MetadataPath())
	if err != nil {
		return err
	}

	r.order = r.order[:0]
	r.index = make(map[artifact.Key]*artifact.Artifact, len(records))
	r.scripts = make(map[scriptKey]string)
	for _, a := range records {
		r.put(a)
		if a.InstallScriptRelativePath != "" {
			r.scripts[scriptKey{a.PluginID, a.Version}] = r.scriptPath(a.InstallScriptRelativePath)
		}
	}
	r.reportUsage()
	r.logger.Debug(ctx, "loaded repository", ports.F("artifacts", len(r.order)))
	return nil
}

// save writes the index. The caller holds the lock.
func (r *Repository) save(ctx context.Context) error {
	if err := r.store.Save(ctx, r.MetadataPath(), r.records()); err != nil {
		return fmt.Errorf("failed to save repository: %w", err)
	}
	r.reportUsage()
	return nil
}

// put inserts or replaces a record, keeping the position of an existing key.
func (r *Repository) put(a *artifact.Artifact) {
	key := a.Key()
	if _, ok := r.index[key]; !ok {
		r.order = append(r.order, key)
	}
	r.index[key] = a
}

func (r *Repository) drop(key artifact.Key) {
	if _, ok := r.index[key]; !ok {
		return
	}
	delete(r.index, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// records returns the indexed records in insertion order.
func (r *Repository) records() []*artifact.Artifact {
	out := make([]*artifact.Artifact, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.index[k])
	}
	return out
}

func (r *Repository) usedBytes() int64 {
	var used int64
	for _, a := range r.index {
		used += a.InstalledSize
	}
	return used
}

func (r *Repository) reportUsage() {
	r.metrics.SetUsage(r.usedBytes(), len(r.index))
}

// Artifacts returns a copy of every record in insertion order.
func (r *Repository) Artifacts() []*artifact.Artifact {
	out := make([]*artifact.Artifact, 0, len(r.order))
	for _, a := range r.records() {
		out = append(out, a.Clone())
	}
	return out
}

// Find returns the record with the exact identity, or nil.
func (r *Repository) Find(pluginID, artifactID, version string, attrs artifact.Attributes) *artifact.Artifact {
	return r.index[artifact.MakeKey(pluginID, artifactID, version, attrs)].Clone()
}

// FindIgnoringAttributes returns every record for the plugin, artifact and
// version, whatever its attributes, in insertion order.
func (r *Repository) FindIgnoringAttributes(pluginID, artifactID, version string) []*artifact.Artifact {
	var out []*artifact.Artifact
	for _, a := range r.matching(pluginID, artifactID, version) {
		out = append(out, a.Clone())
	}
	return out
}

func (r *Repository) matching(pluginID, artifactID, version string) []*artifact.Artifact {
	var out []*artifact.Artifact
	for _, k := range r.order {
		if k.MatchesIgnoringAttributes(pluginID, artifactID, version) {
			out = append(out, r.index[k])
		}
	}
	return out
}

// IsInstalled reports whether the exact identity is INSTALLED.
func (r *Repository) IsInstalled(pluginID, artifactID, version string, attrs artifact.Attributes) bool {
	a := r.index[artifact.MakeKey(pluginID, artifactID, version, attrs)]
	return a != nil && a.State == artifact.StateInstalled
}

// InstalledPath returns the absolute directory of a record.
func (r *Repository) InstalledPath(pluginID, artifactID, version string, attrs artifact.Attributes) (string, error) {
	a := r.index[artifact.MakeKey(pluginID, artifactID, version, attrs)]
	if a == nil {
		return "", fmt.Errorf("%w: %s", artifact.ErrNotFound, artifact.Describe(pluginID, artifactID, version, attrs))
	}
	return r.installDir(a), nil
}

// scriptKey identifies the cached install script of one plugin version.
type scriptKey struct {
	pluginID string
	version  string
}

// CachedInstallationScript returns where the cached install script of a
// plugin version lives, or "" when none was recorded. The file may be
// missing.
func (r *Repository) CachedInstallationScript(pluginID, version string) string {
	return r.scripts[scriptKey{pluginID, version}]
}

// HasCachedInstallationScript reports whether the cached install script of
// a plugin version exists. A recorded script that was deleted is fetched again
// from the installation requests of the plugin's artifacts.
func (r *Repository) HasCachedInstallationScript(ctx context.Context, pluginID, version string) bool {
	path, ok := r.scripts[scriptKey{pluginID, version}]
	if !ok {
		return false
	}
	if fileExists(path) {
		return true
	}
	if r.fetcher != nil {
		for _, a := range r.records() {
			if a.PluginID != pluginID || a.Version != version || a.Request == nil || a.InstallScriptRelativePath == "" {
				continue
			}
			target := r.scriptPath(a.InstallScriptRelativePath)
			r.logger.Info(ctx, "fetching install script again", ports.F("artifact", a.String()), ports.F("target", target))
			if err := r.fetcher.Fetch(ctx, a.Request, target); err != nil {
				msg := fmt.Sprintf("Unable to retrieve install script for plugin %s:%s: %v", pluginID, version, err)
				r.logger.Error(ctx, msg)
				r.steps.Error(msg)
			}
		}
	}
	return fileExists(path)
}

func (r *Repository) installDir(a *artifact.Artifact) string {
	return filepath.Join(r.dir, ArtifactsDirName, filepath.FromSlash(a.RelativePath))
}

func (r *Repository) scriptPath(relative string) string {
	return filepath.Join(r.dir, ScriptsDirName, filepath.FromSlash(relative))
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ErrNothingToPrune indicates pruning could not free space because every
// remaining artifact is kept until explicitly removed.
var ErrNothingToPrune = errors.New("no artifact can be evicted")

type nopMetrics struct{}

func (nopMetrics) InstallFinished(string, string, time.Duration) {}
func (nopMetrics) Removed(string)                                {}
func (nopMetrics) Evicted(string)                                {}
func (nopMetrics) SetUsage(int64, int)                           {}

type nopSteps struct{}

func (nopSteps) Step(string)       {}
func (nopSteps) Error(string)      {}
func (nopSteps) Summarize() string { return "" }
