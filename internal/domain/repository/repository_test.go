package repository_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/felixgeelhaar/artifactrepo/internal/adapters/logging"
	"github.com/felixgeelhaar/artifactrepo/internal/adapters/metadata"
	"github.com/felixgeelhaar/artifactrepo/internal/domain/artifact"
	"github.com/felixgeelhaar/artifactrepo/internal/domain/lock"
	"github.com/felixgeelhaar/artifactrepo/internal/domain/repository"
	"github.com/felixgeelhaar/artifactrepo/internal/ports"
	"github.com/felixgeelhaar/artifactrepo/internal/testutil"
	"github.com/felixgeelhaar/artifactrepo/internal/testutil/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stepClock struct {
	t time.Time
}

func (c *stepClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

type fixture struct {
	dir     string
	script  *mocks.ScriptRunner
	disk    *mocks.DiskProbe
	metrics *mocks.Metrics
	install string
	repo    *repository.Repository
}

func newFixture(t *testing.T, opts ...repository.Option) *fixture {
	t.Helper()

	f := &fixture{
		dir:     t.TempDir(),
		script:  mocks.NewScriptRunner(),
		disk:    mocks.NewDiskProbe(1000, 900),
		metrics: mocks.NewMetrics(),
	}
	f.install = testutil.WriteScript(t, t.TempDir(), "install.sh", "plugin_install_artifact() { :; }")
	f.repo = f.open(t, opts...)
	return f
}

func (f *fixture) open(t *testing.T, opts ...repository.Option) *repository.Repository {
	t.Helper()

	clock := &stepClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	base := []repository.Option{
		repository.WithDiskProbe(f.disk),
		repository.WithHostProbe(mocks.HostProbe{Info: ports.HostInfo{HostName: "node1", OSName: "linux", OSArchitecture: "amd64", OSVersion: "6.1"}}),
		repository.WithMetrics(f.metrics),
		repository.WithClock(clock.now),
		repository.WithLockPollInterval(10 * time.Millisecond),
	}
	repo, err := repository.New(f.dir, metadata.NewFileStore(), f.script, logging.NewNopLogger(), append(base, opts...)...)
	require.NoError(t, err)
	require.NoError(t, repo.Load(context.Background()))
	return repo
}

func (f *fixture) seed(t *testing.T, records ...*artifact.Artifact) {
	t.Helper()

	ctx := context.Background()
	require.NoError(t, metadata.NewFileStore().Save(ctx, filepath.Join(f.dir, repository.MetadataFileName), records))
	for _, a := range records {
		testutil.WriteSizedFile(t, filepath.Join(f.dir, repository.ArtifactsDirName, a.RelativePath), "data", int(a.InstalledSize))
	}
	require.NoError(t, f.repo.Load(ctx))
}

func (f *fixture) installParams(pluginID, artifactID, version string, attrs ...artifact.Attribute) repository.InstallParams {
	return repository.InstallParams{
		PluginID:   pluginID,
		ArtifactID: artifactID,
		Version:    version,
		Script:     f.install,
		Attributes: attrs,
	}
}

func TestInstallWithoutScript(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.repo.InstallWithoutScript(ctx, "PLUGIN", "FILE1", "1.0"))

	assert.True(t, f.repo.IsInstalled("PLUGIN", "FILE1", "1.0", nil))
	path, err := f.repo.InstalledPath("PLUGIN", "FILE1", "1.0", nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.dir, "artifacts", "PLUGIN", "FILE1", "1.0"), path)
	testutil.AssertDirExists(t, path)

	a := f.repo.Find("PLUGIN", "FILE1", "1.0", nil)
	testutil.AssertState(t, a, artifact.StateInstalled)
	assert.Equal(t, "node1", a.Host.HostName)
	assert.Equal(t, "amd64", a.Host.OSArchitecture)
	assert.Equal(t, artifact.RemoveOldest, a.Retention)
	assert.Equal(t, 1, f.metrics.Installs[string(artifact.StateInstalled)])
	assert.Empty(t, f.script.InstallCalls())
}

func TestInstall_Idempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	p := f.installParams("PLUGIN", "FILE1", "1.0")

	require.NoError(t, f.repo.Install(ctx, p))
	first := f.repo.Find("PLUGIN", "FILE1", "1.0", nil)
	require.NoError(t, f.repo.Install(ctx, p))

	assert.Len(t, f.script.InstallCalls(), 1)
	require.Len(t, f.repo.Artifacts(), 1)
	second := f.repo.Find("PLUGIN", "FILE1", "1.0", nil)
	testutil.AssertState(t, second, artifact.StateInstalled)
	assert.Equal(t, first.InstallationTime, second.InstallationTime)
}

func TestInstall_PersistsAcrossInstances(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.repo.Install(ctx, f.installParams("PLUGIN", "FILE1", "1.0")))

	other := f.open(t)
	testutil.AssertState(t, other.Find("PLUGIN", "FILE1", "1.0", nil), artifact.StateInstalled)
	require.NoError(t, other.Install(ctx, f.installParams("PLUGIN", "FILE1", "1.0")))
	assert.Len(t, f.script.InstallCalls(), 1)
}

func TestInstall_MissingScript(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	p := f.installParams("PLUGIN", "FILE1", "1.0")
	p.Script = filepath.Join(t.TempDir(), "missing.sh")
	err := f.repo.Install(ctx, p)

	var missing *artifact.MissingScriptError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, p.Script, missing.Path)
	assert.Empty(t, f.repo.Artifacts())
}

func TestInstall_ResolvesAndNormalizesAttributes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.script.SetAttributes("PLUGIN", map[string]string{"attribute-A": "HELLO WORLD"})

	require.NoError(t, f.repo.Install(ctx, f.installParams("PLUGIN", "FILE1", "1.0", artifact.Unresolved("attribute-A"))))

	a := f.repo.Find("PLUGIN", "FILE1", "1.0", artifact.Attributes{{Name: "attribute-A", Value: "hello world"}})
	testutil.AssertState(t, a, artifact.StateInstalled)
	assert.Equal(t, "HELLO_WORLD", a.Attributes[0].Value)
	assert.Equal(t, "PLUGIN/FILE1/1.0/HELLO_WORLD", a.RelativePath)

	calls := f.script.InstallCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"HELLO_WORLD"}, calls[0].Values)
	assert.Equal(t, filepath.Join(f.dir, "artifacts", "PLUGIN", "FILE1", "1.0", "HELLO_WORLD"), calls[0].InstallDir)
}

func TestInstall_KeyUniqueness(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.repo.Install(ctx, f.installParams("PLUGIN", "FILE1", "1.0", artifact.Attribute{Name: "organism", Value: "homo sapiens"})))
	require.NoError(t, f.repo.Install(ctx, f.installParams("PLUGIN", "FILE1", "1.0", artifact.Attribute{Name: "ORGANISM", Value: "HOMO_SAPIENS"})))
	require.NoError(t, f.repo.Install(ctx, f.installParams("PLUGIN", "FILE1", "1.0", artifact.Attribute{Name: "organism", Value: "mus musculus"})))

	assert.Len(t, f.repo.Artifacts(), 2)
	assert.Len(t, f.repo.FindIgnoringAttributes("PLUGIN", "FILE1", "1.0"), 2)
	assert.Len(t, f.script.InstallCalls(), 2)
}

func TestInstall_AttributeResolutionFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.script.SetAttributes("PLUGIN", map[string]string{"other": "x"})

	err := f.repo.Install(ctx, f.installParams("PLUGIN", "FILE1", "1.0", artifact.Unresolved("organism")))

	var resolution *artifact.AttributeResolutionError
	require.ErrorAs(t, err, &resolution)
	assert.Equal(t, []string{"organism"}, resolution.Missing)
	assert.Empty(t, f.repo.Artifacts())
	assert.Empty(t, f.script.InstallCalls())
}

func TestInstall_AttributeWrittenWithoutValue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.script.SetAttributes("PLUGIN", map[string]string{"organism": ""})

	err := f.repo.Install(ctx, f.installParams("PLUGIN", "FILE1", "1.0", artifact.Unresolved("organism")))

	var resolution *artifact.AttributeResolutionError
	require.ErrorAs(t, err, &resolution)
	assert.Empty(t, resolution.Missing)
	assert.Equal(t, []string{"organism"}, resolution.Empty)
	assert.Contains(t, err.Error(), "empty value for organism")
	assert.Empty(t, f.repo.Artifacts())
}

func TestInstall_AttributeResolutionScriptError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	cause := &artifact.ScriptFailureError{Function: "get_attribute_values", ExitCode: 2}
	f.script.FailResolve("PLUGIN", cause)

	err := f.repo.Install(ctx, f.installParams("PLUGIN", "FILE1", "1.0", artifact.Unresolved("organism")))

	var resolution *artifact.AttributeResolutionError
	require.ErrorAs(t, err, &resolution)
	assert.ErrorIs(t, err, cause)
}

func TestInstall_UnresolvedWithoutScriptDropsAttributes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.repo.InstallWithoutScript(ctx, "PLUGIN", "FILE1", "1.0", artifact.Unresolved("organism")))

	a := f.repo.Find("PLUGIN", "FILE1", "1.0", nil)
	testutil.AssertState(t, a, artifact.StateInstalled)
	assert.Empty(t, a.Attributes)
}

func TestInstall_RecoversInterruptedInstallation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	stale := testutil.NewArtifact("PLUGIN", "FILE1").WithVersion("1.0").WithState(artifact.StateInstalling).WithSize(10).Build()
	f.seed(t, stale)
	leftover := filepath.Join(f.dir, "artifacts", stale.RelativePath, "data")
	testutil.AssertFileExists(t, leftover)

	require.NoError(t, f.repo.Install(ctx, f.installParams("PLUGIN", "FILE1", "1.0")))

	a := f.repo.Find("PLUGIN", "FILE1", "1.0", nil)
	testutil.AssertState(t, a, artifact.StateInstalled)
	testutil.AssertNotExists(t, leftover)
	testutil.AssertFileExists(t, filepath.Join(f.dir, "artifacts", stale.RelativePath, "installed.txt"))
	assert.Len(t, f.repo.Artifacts(), 1)
}

func TestInstall_FailureIsolation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.script.FailInstall("PLUGIN", &artifact.ScriptFailureError{Function: "plugin_install_artifact", ExitCode: 127, Stderr: "foo: command not found"})

	require.NoError(t, f.repo.Install(ctx, f.installParams("PLUGIN", "FILE1", "1.0")))

	testutil.AssertState(t, f.repo.Find("PLUGIN", "FILE1", "1.0", nil), artifact.StateFailed)
	assert.False(t, f.repo.IsInstalled("PLUGIN", "FILE1", "1.0", nil))
	assert.Equal(t, 1, f.metrics.Installs[string(artifact.StateFailed)])
	assert.Empty(t, f.repo.SessionExports())
}

func TestInstallArtifact_ReturnsOutcome(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.script.SetAttributes("PLUGIN", map[string]string{"organism": "mouse"})
	f.script.FailInstall("BROKEN", assert.AnError)

	a, err := f.repo.InstallArtifact(ctx, f.installParams("PLUGIN", "FILE1", "1.0", artifact.Unresolved("organism")))
	require.NoError(t, err)
	testutil.AssertState(t, a, artifact.StateInstalled)
	assert.Equal(t, artifact.Attributes{{Name: "organism", Value: "MOUSE"}}, a.Attributes)

	a.State = artifact.StateFailed
	assert.True(t, f.repo.IsInstalled("PLUGIN", "FILE1", "1.0", artifact.Attributes{{Name: "organism", Value: "MOUSE"}}))

	broken, err := f.repo.InstallArtifact(ctx, f.installParams("BROKEN", "FILE1", "1.0"))
	require.NoError(t, err)
	testutil.AssertState(t, broken, artifact.StateFailed)

	_, err = f.repo.InstallArtifact(ctx, f.installParams("PLUGIN", "FILE2", "1.0", artifact.Unresolved("missing")))
	var are *artifact.AttributeResolutionError
	assert.ErrorAs(t, err, &are)
}

func TestInstall_PanicRecordedAsFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.script.PanicInstall("PLUGIN", "boom")

	require.NoError(t, f.repo.Install(ctx, f.installParams("PLUGIN", "FILE1", "1.0")))

	testutil.AssertState(t, f.repo.Find("PLUGIN", "FILE1", "1.0", nil), artifact.StateFailed)
}

func TestInstall_RetriesFailed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.script.FailInstall("PLUGIN", errors.New("network down"))
	require.NoError(t, f.repo.Install(ctx, f.installParams("PLUGIN", "FILE1", "1.0")))
	testutil.AssertState(t, f.repo.Find("PLUGIN", "FILE1", "1.0", nil), artifact.StateFailed)

	f.script.FailInstall("PLUGIN", nil)
	require.NoError(t, f.repo.Install(ctx, f.installParams("PLUGIN", "FILE1", "1.0")))

	testutil.AssertState(t, f.repo.Find("PLUGIN", "FILE1", "1.0", nil), artifact.StateInstalled)
	assert.Len(t, f.repo.Artifacts(), 1)
	assert.Len(t, f.script.InstallCalls(), 2)
}

func TestInstall_CachesScriptAndMeasuresSize(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.script.SetInstallSize("PLUGIN", 1234)

	require.NoError(t, f.repo.Install(ctx, f.installParams("PLUGIN", "FILE1", "1.0")))

	a := f.repo.Find("PLUGIN", "FILE1", "1.0", nil)
	assert.Equal(t, int64(1234), a.InstalledSize)
	assert.Equal(t, "PLUGIN/1.0/install.sh", a.InstallScriptRelativePath)

	cached := filepath.Join(f.dir, "scripts", "PLUGIN", "1.0", "install.sh")
	assert.Equal(t, cached, f.repo.CachedInstallationScript("PLUGIN", "1.0"))
	testutil.AssertFileContains(t, cached, "plugin_install_artifact")
	assert.True(t, f.repo.HasCachedInstallationScript(ctx, "PLUGIN", "1.0"))
	assert.False(t, f.repo.HasCachedInstallationScript(ctx, "PLUGIN", "2.0"))
	assert.False(t, f.repo.HasCachedInstallationScript(ctx, "OTHER", "1.0"))

	reloaded := f.open(t)
	assert.Equal(t, cached, reloaded.CachedInstallationScript("PLUGIN", "1.0"))
}

func TestInstall_ChainsSessionExports(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.repo.Install(ctx, f.installParams("FIRST", "TOOL", "1.0")))
	require.NoError(t, f.repo.Install(ctx, f.installParams("SECOND", "TOOL", "1.0")))

	calls := f.script.InstallCalls()
	require.Len(t, calls, 2)
	firstPath, err := f.repo.InstalledPath("FIRST", "TOOL", "1.0", nil)
	require.NoError(t, err)
	assert.Empty(t, calls[0].Exports)
	assert.Equal(t, []string{"export RESOURCES_ARTIFACTS_FIRST_TOOL=" + firstPath}, calls[1].Exports)
	assert.Len(t, f.repo.SessionExports(), 2)
}

func TestInstall_EnvironmentCollectionScripts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	envPlugin := artifact.EnvironmentCollectionPrefix + "1"

	require.NoError(t, f.repo.Install(ctx, f.installParams(envPlugin, "ENV_SCRIPT", "1.0")))
	require.NoError(t, f.repo.Install(ctx, f.installParams(envPlugin, "ENV_SCRIPT", "1.0")))
	require.NoError(t, f.repo.Install(ctx, f.installParams("PLUGIN", "FILE1", "1.0")))

	cached := filepath.Join(f.dir, "scripts", envPlugin, "1.0", "install.sh")
	assert.Equal(t, []string{cached}, f.repo.EnvironmentCollectionScripts())
	calls := f.script.InstallCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, []string{cached}, calls[1].EnvScripts)

	f.repo.UnregisterAllEnvironmentCollectionScripts()
	assert.Empty(t, f.repo.EnvironmentCollectionScripts())

	f.repo.RegisterEnvironmentCollection(ctx, f.repo.Find(envPlugin, "ENV_SCRIPT", "1.0", nil))
	assert.Equal(t, []string{cached}, f.repo.EnvironmentCollectionScripts())
}

func TestFailInstalling(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t,
		testutil.NewArtifact("PLUGIN", "A").WithState(artifact.StateInstalling).Build(),
		testutil.NewArtifact("PLUGIN", "B").Build(),
	)

	failed, err := f.repo.FailInstalling(ctx)
	require.NoError(t, err)

	require.Len(t, failed, 1)
	assert.Equal(t, "A", failed[0].ArtifactID)
	testutil.AssertState(t, f.repo.Find("PLUGIN", "A", artifact.DefaultVersion, nil), artifact.StateFailed)
	testutil.AssertState(t, f.repo.Find("PLUGIN", "B", artifact.DefaultVersion, nil), artifact.StateInstalled)

	reloaded := f.open(t)
	testutil.AssertState(t, reloaded.Find("PLUGIN", "A", artifact.DefaultVersion, nil), artifact.StateFailed)
}

func TestRemove(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.repo.Install(ctx, f.installParams("PLUGIN", "FILE1", "1.0")))
	path, err := f.repo.InstalledPath("PLUGIN", "FILE1", "1.0", nil)
	require.NoError(t, err)

	require.NoError(t, f.repo.Remove(ctx, "PLUGIN", "FILE1", "1.0", nil))

	assert.Nil(t, f.repo.Find("PLUGIN", "FILE1", "1.0", nil))
	testutil.AssertNotExists(t, path)
	assert.Equal(t, []string{"PLUGIN"}, f.metrics.Removals)
	_, err = f.repo.InstalledPath("PLUGIN", "FILE1", "1.0", nil)
	assert.ErrorIs(t, err, artifact.ErrNotFound)
}

func TestRemove_FallsBackToIgnoringAttributes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t,
		testutil.NewArtifact("PLUGIN", "FILE1").WithAttribute("organism", "HUMAN").Build(),
		testutil.NewArtifact("PLUGIN", "FILE1").WithAttribute("organism", "MOUSE").Build(),
		testutil.NewArtifact("PLUGIN", "FILE2").Build(),
	)

	require.NoError(t, f.repo.Remove(ctx, "PLUGIN", "FILE1", artifact.DefaultVersion, nil))

	remaining := f.repo.Artifacts()
	require.Len(t, remaining, 1)
	assert.Equal(t, "FILE2", remaining[0].ArtifactID)
}

func TestRemove_UnknownIsIgnored(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	assert.NoError(t, f.repo.Remove(context.Background(), "PLUGIN", "NOPE", "1.0", nil))
}

func TestSetRetention(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.repo.InstallWithoutScript(ctx, "PLUGIN", "FILE1", "1.0"))

	require.NoError(t, f.repo.SetRetention(ctx, "PLUGIN", "FILE1", "1.0", nil, artifact.KeepUntilExplicitRemove))
	assert.Equal(t, artifact.KeepUntilExplicitRemove, f.open(t).Find("PLUGIN", "FILE1", "1.0", nil).Retention)

	err := f.repo.SetRetention(ctx, "PLUGIN", "MISSING", "1.0", nil, artifact.KeepUntilExplicitRemove)
	assert.ErrorIs(t, err, artifact.ErrNotFound)
}

func TestUpdateArtifact(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.repo.InstallWithoutScript(ctx, "PLUGIN", "FILE1", "1.0"))

	a := f.repo.Find("PLUGIN", "FILE1", "1.0", nil)
	a.Request = &artifact.Request{PluginID: "PLUGIN", ArtifactID: "FILE1", Version: "1.0", ScriptInstallPath: "/srv/install.sh", SSHHost: "web"}
	require.NoError(t, f.repo.UpdateArtifact(ctx, a))

	got := f.open(t).Find("PLUGIN", "FILE1", "1.0", nil)
	require.NotNil(t, got.Request)
	assert.Equal(t, "web", got.Request.SSHHost)
	assert.Len(t, f.repo.Artifacts(), 1)
}

func TestArtifacts_InsertionOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	for _, id := range []string{"C", "A", "B"} {
		require.NoError(t, f.repo.InstallWithoutScript(ctx, "PLUGIN", id, "1.0"))
	}
	require.NoError(t, f.repo.Remove(ctx, "PLUGIN", "A", "1.0", nil))
	require.NoError(t, f.repo.InstallWithoutScript(ctx, "PLUGIN", "A", "1.0"))

	var ids []string
	for _, a := range f.open(t).Artifacts() {
		ids = append(ids, a.ArtifactID)
	}
	assert.Equal(t, []string{"C", "B", "A"}, ids)
}

func TestArtifacts_ReturnsCopies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.repo.InstallWithoutScript(ctx, "PLUGIN", "FILE1", "1.0"))

	f.repo.Artifacts()[0].State = artifact.StateFailed

	assert.True(t, f.repo.IsInstalled("PLUGIN", "FILE1", "1.0", nil))
}

func TestLoad_CorruptStore(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	testutil.WriteTempFile(t, f.dir, repository.MetadataFileName, "\x05\xff\xff\xff\xff\xff")

	err := f.repo.Load(context.Background())

	assert.ErrorIs(t, err, artifact.ErrStoreCorrupt)
	assert.Equal(t, 0, f.repo.Lock().Depth())
}

func TestLoad_ReleasesLock(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	require.NoError(t, f.repo.Load(context.Background(), repository.WithoutExports()))

	assert.Equal(t, 0, f.repo.Lock().Depth())
	testutil.AssertFileExists(t, filepath.Join(f.dir, lock.DefaultFileName))
}

func TestReentrantLocking(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.repo.Lock().Acquire(ctx))
	require.NoError(t, f.repo.InstallWithoutScript(ctx, "PLUGIN", "FILE1", "1.0"))
	require.NoError(t, f.repo.Save(ctx))
	assert.Equal(t, 1, f.repo.Lock().Depth())
	require.NoError(t, f.repo.Lock().Release())

	assert.Equal(t, 0, f.repo.Lock().Depth())
	assert.True(t, f.open(t).IsInstalled("PLUGIN", "FILE1", "1.0", nil))
}

func TestInstall_WaitsForOtherHolder(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	other := lock.New(f.dir)
	require.NoError(t, other.Acquire(context.Background()))
	defer func() { _ = other.Release() }()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := f.repo.InstallWithoutScript(ctx, "PLUGIN", "FILE1", "1.0")

	var acquire *lock.AcquireError
	require.ErrorAs(t, err, &acquire)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, f.repo.Artifacts())
}

func TestNew_RelativeDir(t *testing.T) {
	t.Parallel()

	repo, err := repository.New("repo", metadata.NewFileStore(), mocks.NewScriptRunner(), logging.NewNopLogger())
	require.NoError(t, err)

	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(wd, "repo"), repo.Dir())
	assert.Equal(t, filepath.Join(wd, "repo", "metadata.pb"), repo.MetadataPath())
}
