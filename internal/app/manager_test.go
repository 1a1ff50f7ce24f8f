package app_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/artifactrepo/internal/adapters/logging"
	"github.com/felixgeelhaar/artifactrepo/internal/adapters/metadata"
	"github.com/felixgeelhaar/artifactrepo/internal/app"
	"github.com/felixgeelhaar/artifactrepo/internal/domain/artifact"
	"github.com/felixgeelhaar/artifactrepo/internal/domain/lock"
	"github.com/felixgeelhaar/artifactrepo/internal/domain/repository"
	"github.com/felixgeelhaar/artifactrepo/internal/domain/request"
	"github.com/felixgeelhaar/artifactrepo/internal/testutil"
	"github.com/felixgeelhaar/artifactrepo/internal/testutil/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingFetcher struct {
	mu      sync.Mutex
	targets []string
	err     error
}

func (f *recordingFetcher) Fetch(_ context.Context, req *artifact.Request, target string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets = append(f.targets, target)
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(target, []byte("#!/bin/bash\n# "+req.ScriptInstallPath+"\n"), 0o755)
}

type env struct {
	script  *mocks.ScriptRunner
	steps   *logging.StepLogger
	tmp     string
	install string
	repo    *repository.Repository
	manager *app.Manager
}

func newEnv(t *testing.T, opts ...app.Option) *env {
	t.Helper()

	e := &env{
		script: mocks.NewScriptRunner(),
		steps:  logging.NewStepLogger(nil),
		tmp:    t.TempDir(),
	}
	e.install = testutil.WriteScript(t, t.TempDir(), "install.sh", "plugin_install_artifact() { :; }")

	repo, err := repository.New(t.TempDir(), metadata.NewFileStore(), e.script, logging.NewNopLogger(),
		repository.WithStepLogger(e.steps),
		repository.WithDiskProbe(mocks.NewDiskProbe(1000, 900)),
		repository.WithLockPollInterval(10*time.Millisecond),
	)
	require.NoError(t, err)
	e.repo = repo
	e.manager = app.New(repo, logging.NewNopLogger(), append([]app.Option{app.WithTempDir(e.tmp)}, opts...)...)
	return e
}

func (e *env) stepMessages() []string {
	var out []string
	for _, s := range e.steps.Entries() {
		out = append(out, s.Message)
	}
	return out
}

func TestInstallRequests(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)

	b := request.NewBuilder("")
	b.AddArtifact("PLUGIN", "FILE1", "1.0", true, e.install)
	b.Install("PLUGIN", "FILE2", "1.0", false, e.install)
	set := b.Build()

	require.NoError(t, e.manager.InstallRequests(ctx, set, false))

	first := e.repo.Find("PLUGIN", "FILE1", "1.0", nil)
	testutil.AssertState(t, first, artifact.StateInstalled)
	assert.Equal(t, artifact.KeepUntilExplicitRemove, first.Retention)
	require.NotNil(t, first.Request)
	assert.Equal(t, e.install, first.Request.ScriptInstallPath)

	second := e.repo.Find("PLUGIN", "FILE2", "1.0", nil)
	testutil.AssertState(t, second, artifact.StateInstalled)
	assert.Equal(t, artifact.RemoveOldest, second.Retention)

	calls := e.script.InstallCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, e.install, calls[0].Script)
	assert.Equal(t, e.repo.CachedInstallationScript("PLUGIN", "1.0"), calls[1].Script)
	assert.Equal(t, 0, e.repo.Lock().Depth())

	msgs := e.stepMessages()
	assert.Contains(t, msgs, "Preparing to install from request: 2 artifact(s)")
	assert.Contains(t, msgs, "Artifact successfully installed: "+first.String())
}

func TestInstallRequests_AlreadyInstalled(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	b := request.NewBuilder("")
	b.AddArtifact("PLUGIN", "FILE1", "1.0", true, e.install)

	require.NoError(t, e.manager.InstallRequests(ctx, b.Build(), false))
	require.NoError(t, e.manager.InstallRequests(ctx, b.Build(), false))

	assert.Len(t, e.script.InstallCalls(), 1)
}

func TestInstallRequests_NewVersionUsesItsOwnScript(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	dir := t.TempDir()
	v11 := testutil.WriteScript(t, dir, "v11.sh", "# SCRIPT-V1.1\nfunction plugin_install_artifact() { :; }")
	v12 := testutil.WriteScript(t, dir, "v12.sh", "# SCRIPT-V1.2\nfunction plugin_install_artifact() { :; }")

	first := request.NewBuilder("")
	first.AddArtifact("P", "A", "1.1", true, v11)
	require.NoError(t, e.manager.InstallRequests(ctx, first.Build(), false))

	second := request.NewBuilder("")
	second.AddArtifact("P", "A", "1.2", true, v12)
	require.NoError(t, e.manager.InstallRequests(ctx, second.Build(), false))

	calls := e.script.InstallCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, v12, calls[1].Script)
	testutil.AssertFileContains(t, e.repo.CachedInstallationScript("P", "1.1"), "SCRIPT-V1.1")
	testutil.AssertFileContains(t, e.repo.CachedInstallationScript("P", "1.2"), "SCRIPT-V1.2")
}

func TestInstallRequests_OnlyMandatory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	b := request.NewBuilder("")
	b.AddArtifact("PLUGIN", "REQUIRED", "1.0", true, e.install)
	b.AddArtifact("PLUGIN", "OPTIONAL", "1.0", false, e.install)

	require.NoError(t, e.manager.InstallRequests(ctx, b.Build(), true))

	assert.True(t, e.repo.IsInstalled("PLUGIN", "REQUIRED", "1.0", nil))
	assert.Nil(t, e.repo.Find("PLUGIN", "OPTIONAL", "1.0", nil))
}

func TestInstallRequests_EarlyStop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	e.script.FailInstall("BROKEN", assert.AnError)
	b := request.NewBuilder("")
	b.AddArtifact("PLUGIN", "FILE1", "1.0", true, e.install)
	b.AddArtifact("BROKEN", "FILE1", "1.0", true, e.install)
	b.AddArtifact("PLUGIN", "FILE2", "1.0", true, e.install)

	err := e.manager.InstallRequests(ctx, b.Build(), false)

	require.ErrorIs(t, err, app.ErrEarlyStop)
	var stop *app.EarlyStopError
	require.ErrorAs(t, err, &stop)
	assert.Equal(t, "BROKEN", stop.Request.PluginID)
	assert.Equal(t, artifact.StateFailed, stop.State)
	assert.True(t, e.repo.IsInstalled("PLUGIN", "FILE1", "1.0", nil))
	assert.Nil(t, e.repo.Find("PLUGIN", "FILE2", "1.0", nil))
	assert.Equal(t, 0, e.repo.Lock().Depth())
}

func TestInstallRequests_MissingScriptStops(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	b := request.NewBuilder("")
	b.AddArtifact("PLUGIN", "FILE1", "1.0", true, filepath.Join(t.TempDir(), "missing.sh"))

	err := e.manager.InstallRequests(ctx, b.Build(), false)

	require.ErrorIs(t, err, app.ErrEarlyStop)
	var missing *artifact.MissingScriptError
	assert.ErrorAs(t, err, &missing)
	assert.Empty(t, e.repo.Artifacts())
}

func TestInstallRequests_FetchesRemoteScript(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fetcher := &recordingFetcher{}
	e := newEnv(t, app.WithFetcher(fetcher))
	b := request.NewBuilder("gobyweb@web.example.org")
	b.AddArtifact("PLUGIN", "FILE1", "1.0", true, "/srv/plugins/PLUGIN/install.sh")

	require.NoError(t, e.manager.InstallRequests(ctx, b.Build(), false))

	require.Len(t, fetcher.targets, 1)
	assert.Equal(t, e.tmp, filepath.Dir(fetcher.targets[0]))
	testutil.AssertNotExists(t, fetcher.targets[0])
	assert.Equal(t, fetcher.targets[0], e.script.InstallCalls()[0].Script)
	testutil.AssertFileContains(t, e.repo.CachedInstallationScript("PLUGIN", "1.0"), "/srv/plugins/PLUGIN/install.sh")
}

func TestInstallRequests_FetchFailureStops(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t, app.WithFetcher(&recordingFetcher{err: assert.AnError}))
	b := request.NewBuilder("web.example.org")
	b.AddArtifact("PLUGIN", "FILE1", "1.0", true, "/srv/install.sh")

	err := e.manager.InstallRequests(ctx, b.Build(), false)

	require.ErrorIs(t, err, app.ErrEarlyStop)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, e.stepMessages()[len(e.stepMessages())-1], "Unable to retrieve install script")
}

func TestInstallRequests_RemoteWithoutFetcher(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	b := request.NewBuilder("web.example.org")
	b.AddArtifact("PLUGIN", "FILE1", "1.0", true, "/srv/install.sh")

	err := e.manager.InstallRequests(context.Background(), b.Build(), false)

	assert.ErrorIs(t, err, app.ErrEarlyStop)
}

func TestInstallRequests_LockTimeout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t, app.WithLockTimeout(50*time.Millisecond))

	other := lock.New(e.repo.Dir(), lock.WithPollInterval(10*time.Millisecond))
	require.NoError(t, other.Acquire(ctx))
	defer func() { _ = other.Release() }()

	b := request.NewBuilder("")
	b.AddArtifact("PLUGIN", "FILE1", "1.0", true, e.install)
	err := e.manager.InstallRequests(ctx, b.Build(), false)

	var acquireErr *lock.AcquireError
	require.ErrorAs(t, err, &acquireErr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, errors.Is(err, app.ErrEarlyStop))
}

func TestRemoveRequests(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	e.script.SetAttributes("PLUGIN", map[string]string{"organism": "human"})
	b := request.NewBuilder("")
	b.AddArtifact("PLUGIN", "FILE1", "1.0", true, e.install, artifact.Unresolved("organism"))
	b.AddArtifact("OTHER", "FILE1", "1.0", true, e.install)
	require.NoError(t, e.manager.InstallRequests(ctx, b.Build(), false))

	remove := request.NewBuilder("")
	remove.AddArtifact("PLUGIN", "FILE1", "1.0", true, "")
	removed, err := e.manager.RemoveRequests(ctx, remove.Build())
	require.NoError(t, err)

	require.Len(t, removed, 1)
	assert.Equal(t, artifact.Attributes{{Name: "organism", Value: "HUMAN"}}, removed[0].Attributes)
	assert.Empty(t, e.repo.FindIgnoringAttributes("PLUGIN", "FILE1", "1.0"))
	assert.True(t, e.repo.IsInstalled("OTHER", "FILE1", "1.0", nil))
}

func TestWriteRequestExports(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	b := request.NewBuilder("")
	b.AddArtifact("PLUGIN", "FILE1", "1.0", true, e.install)
	b.AddArtifact("OTHER", "FILE1", "2.0", true, e.install)
	require.NoError(t, e.manager.InstallRequests(ctx, b.Build(), false))

	only := request.NewBuilder("")
	only.AddArtifact("PLUGIN", "FILE1", "1.0", true, "")
	var buf bytes.Buffer
	require.NoError(t, e.manager.WriteRequestExports(ctx, &buf, only.Build()))

	path, err := e.manager.InstalledPath(ctx, "PLUGIN", "FILE1", "1.0", nil)
	require.NoError(t, err)
	assert.Equal(t, "export RESOURCES_ARTIFACTS_PLUGIN_FILE1="+path+"\n", buf.String())
}

func TestInstalledPath_NotFound(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	_, err := e.manager.InstalledPath(context.Background(), "PLUGIN", "FILE1", "1.0", nil)

	assert.ErrorIs(t, err, artifact.ErrNotFound)
}

func TestFailInstalling(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	stuck := testutil.NewArtifact("PLUGIN", "FILE1").WithVersion("1.0").WithState(artifact.StateInstalling).Build()
	require.NoError(t, metadata.NewFileStore().Save(ctx, e.repo.MetadataPath(), []*artifact.Artifact{stuck}))

	failed, err := e.manager.FailInstalling(ctx)
	require.NoError(t, err)

	require.Len(t, failed, 1)
	assert.Contains(t, e.stepMessages(), "failed plugin: PLUGIN:FILE1:1.0")
	artifacts, err := e.manager.Artifacts(ctx)
	require.NoError(t, err)
	testutil.AssertState(t, artifacts[0], artifact.StateFailed)
}

func TestPrune(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	e.script.SetInstallSize("PLUGIN", 100)
	b := request.NewBuilder("")
	b.Install("PLUGIN", "OLD", "1.0", true, e.install)
	b.Install("PLUGIN", "NEW", "1.0", true, e.install)
	require.NoError(t, e.manager.InstallRequests(ctx, b.Build(), false))

	e.repo.SetQuota(150)
	require.NoError(t, e.manager.Prune(ctx))

	assert.Nil(t, e.repo.Find("PLUGIN", "OLD", "1.0", nil))
	assert.True(t, e.repo.IsInstalled("PLUGIN", "NEW", "1.0", nil))
}

func TestSetFromSpecs(t *testing.T) {
	t.Parallel()

	set, err := app.SetFromSpecs([]string{"BWA:INDEX:0.5.9:/srv/install.sh", "PLUGIN:FILE1:1.0"}, artifact.RemoveOldest,
		artifact.Attributes{artifact.Unresolved("organism")})
	require.NoError(t, err)

	require.Equal(t, 2, set.Len())
	assert.Equal(t, "/srv/install.sh", set.Artifacts[0].ScriptInstallPath)
	assert.Empty(t, set.Artifacts[1].ScriptInstallPath)
	assert.True(t, set.Artifacts[1].Mandatory)
	assert.Equal(t, artifact.RemoveOldest, set.Artifacts[1].Retention)
	assert.Equal(t, artifact.Attributes{{Name: "organism"}}, set.Artifacts[0].Attributes)

	_, err = app.SetFromSpecs([]string{"BWA"}, artifact.RemoveOldest, nil)
	assert.ErrorIs(t, err, request.ErrInvalidSpec)
}
