package testutil

import (
	"time"

	"github.com/felixgeelhaar/artifactrepo/internal/domain/artifact"
)

// ArtifactBuilder builds artifact records for tests.
type ArtifactBuilder struct {
	a artifact.Artifact
}

// NewArtifact starts an INSTALLED, REMOVE_OLDEST record with the default
// version.
func NewArtifact(pluginID, artifactID string) *ArtifactBuilder {
	return &ArtifactBuilder{a: artifact.Artifact{
		PluginID:         pluginID,
		ArtifactID:       artifactID,
		Version:          artifact.DefaultVersion,
		State:            artifact.StateInstalled,
		Retention:        artifact.RemoveOldest,
		InstallationTime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}}
}

// WithVersion sets the version.
func (b *ArtifactBuilder) WithVersion(version string) *ArtifactBuilder {
	b.a.Version = version
	return b
}

// WithAttribute appends an attribute.
func (b *ArtifactBuilder) WithAttribute(name, value string) *ArtifactBuilder {
	b.a.Attributes = append(b.a.Attributes, artifact.Attribute{Name: name, Value: value})
	return b
}

// WithState sets the installation state.
func (b *ArtifactBuilder) WithState(state artifact.State) *ArtifactBuilder {
	b.a.State = state
	return b
}

// WithRetention sets the retention policy.
func (b *ArtifactBuilder) WithRetention(policy artifact.RetentionPolicy) *ArtifactBuilder {
	b.a.Retention = policy
	return b
}

// InstalledAt sets the installation time.
func (b *ArtifactBuilder) InstalledAt(t time.Time) *ArtifactBuilder {
	b.a.InstallationTime = t
	return b
}

// WithSize sets the installed size.
func (b *ArtifactBuilder) WithSize(size int64) *ArtifactBuilder {
	b.a.InstalledSize = size
	return b
}

// WithScript sets the cached install script location.
func (b *ArtifactBuilder) WithScript(relative string) *ArtifactBuilder {
	b.a.InstallScriptRelativePath = relative
	return b
}

// WithRequest sets the originating installation request.
func (b *ArtifactBuilder) WithRequest(req *artifact.Request) *ArtifactBuilder {
	b.a.Request = req
	return b
}

// Build returns the record with its relative path derived from identity.
func (b *ArtifactBuilder) Build() *artifact.Artifact {
	a := b.a.Clone()
	a.RelativePath = artifact.RelativePath(a.PluginID, a.ArtifactID, a.Version, a.Attributes)
	return a
}
