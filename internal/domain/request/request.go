// Package request describes batches of installation requests: what to
// install, from which script, and how the result is retained.
package request

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/felixgeelhaar/artifactrepo/internal/domain/artifact"
)

// Request file errors.
var (
	ErrRequestsNotFound = errors.New("request file not found")
	ErrRequestsCorrupt  = errors.New("request file is corrupt")
	ErrInvalidSpec      = errors.New("invalid artifact specification")
)

// Set is an ordered batch of installation requests.
type Set struct {
	Artifacts []artifact.Request `yaml:"artifacts"`
}

// Len returns the number of requests.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Artifacts)
}

// Empty reports whether the set holds no requests.
func (s *Set) Empty() bool {
	return s.Len() == 0
}

// Mandatory returns the subset of requests flagged as mandatory.
func (s *Set) Mandatory() *Set {
	out := &Set{}
	for _, r := range s.Artifacts {
		if r.Mandatory {
			out.Artifacts = append(out.Artifacts, r)
		}
	}
	return out
}

// Repository persists request sets.
type Repository interface {
	Load(ctx context.Context, path string) (*Set, error)
	Save(ctx context.Context, path string, set *Set) error
}

// Spec is an artifact named on the command line as
// PLUGIN:ARTIFACT:VERSION[:script].
type Spec struct {
	PluginID   string
	ArtifactID string
	Version    string
	Script     string
}

// ParseSpec parses PLUGIN:ARTIFACT[:VERSION[:script]]. A missing version
// defaults to artifact.DefaultVersion.
func ParseSpec(s string) (Spec, error) {
	parts := strings.SplitN(s, ":", 4)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return Spec{}, fmt.Errorf("%w: %q (expected PLUGIN:ARTIFACT:VERSION[:script])", ErrInvalidSpec, s)
	}
	spec := Spec{PluginID: parts[0], ArtifactID: parts[1], Version: artifact.DefaultVersion}
	if len(parts) > 2 && parts[2] != "" {
		spec.Version = parts[2]
	}
	if len(parts) > 3 {
		spec.Script = parts[3]
	}
	return spec, nil
}

// String formats the spec back to its command-line form.
func (s Spec) String() string {
	out := s.PluginID + ":" + s.ArtifactID + ":" + s.Version
	if s.Script != "" {
		out += ":" + s.Script
	}
	return out
}

// Builder assembles a request Set. When built with a web server address,
// install scripts are fetched from that host over SSH.
type Builder struct {
	host       string
	user       string
	set        Set
	envScripts []string
}

// NewBuilder creates a builder. webServer is empty, "host" or "user@host".
func NewBuilder(webServer string) *Builder {
	b := &Builder{}
	if user, host, ok := strings.Cut(webServer, "@"); ok {
		b.user, b.host = user, host
	} else {
		b.host = webServer
	}
	return b
}

// AddArtifact appends a request retained until explicitly removed.
func (b *Builder) AddArtifact(pluginID, artifactID, version string, mandatory bool, script string, attrs ...artifact.Attribute) {
	b.Add(pluginID, artifactID, version, mandatory, script, artifact.KeepUntilExplicitRemove, attrs...)
}

// Install appends a request whose artifact may be evicted by pruning.
func (b *Builder) Install(pluginID, artifactID, version string, mandatory bool, script string, attrs ...artifact.Attribute) {
	b.Add(pluginID, artifactID, version, mandatory, script, artifact.RemoveOldest, attrs...)
}

// Add appends a request with an explicit retention policy.
func (b *Builder) Add(pluginID, artifactID, version string, mandatory bool, script string, retention artifact.RetentionPolicy, attrs ...artifact.Attribute) {
	if abs, err := filepath.Abs(script); err == nil && script != "" && b.host == "" {
		script = abs
	}
	b.set.Artifacts = append(b.set.Artifacts, artifact.Request{
		PluginID:          pluginID,
		ArtifactID:        artifactID,
		Version:           version,
		ScriptInstallPath: script,
		SSHHost:           b.host,
		SSHUser:           b.user,
		Retention:         retention,
		Mandatory:         mandatory,
		Attributes:        artifact.Attributes(attrs).Clone(),
	})
}

// RegisterEnvironmentCollection appends a mandatory request for an
// environment collection script. Each registered script gets its own
// plugin id so that all of them are cached.
func (b *Builder) RegisterEnvironmentCollection(script string) {
	b.envScripts = append(b.envScripts, script)
	pluginID := artifact.EnvironmentCollectionPrefix + strconv.Itoa(len(b.envScripts))
	b.AddArtifact(pluginID, "ENV_SCRIPT", "1.0", true, script)
}

// Empty reports whether no request was added.
func (b *Builder) Empty() bool {
	return b.set.Empty()
}

// Build returns the assembled set.
func (b *Builder) Build() *Set {
	out := &Set{Artifacts: make([]artifact.Request, len(b.set.Artifacts))}
	copy(out.Artifacts, b.set.Artifacts)
	return out
}

// Save writes the assembled set with repo.
func (b *Builder) Save(ctx context.Context, repo Repository, path string) error {
	return repo.Save(ctx, path, b.Build())
}
