// Package artifact defines the artifact record kept by the repository, its
// composite identity and the export statements derived from it.
package artifact

import (
	"fmt"
	"strings"
	"time"
)

// DefaultVersion is used when callers do not version artifacts.
const DefaultVersion = "VERSION"

// EnvironmentCollectionPrefix marks plugins whose install script is an
// environment collection script.
const EnvironmentCollectionPrefix = "ARTIFACTS_ENVIRONMENT_COLLECTION_SCRIPT"

// State is the installation state of an artifact.
type State string

const (
	// StateInstalling is recorded before the install script runs.
	StateInstalling State = "INSTALLING"
	// StateInstalled is recorded once the install script exited 0.
	StateInstalled State = "INSTALLED"
	// StateFailed is recorded when installation did not complete.
	StateFailed State = "FAILED"
)

// ParseState converts a state name into a State.
func ParseState(s string) (State, error) {
	switch State(strings.ToUpper(s)) {
	case StateInstalling:
		return StateInstalling, nil
	case StateInstalled:
		return StateInstalled, nil
	case StateFailed:
		return StateFailed, nil
	}
	return "", fmt.Errorf("unknown installation state %q", s)
}

// RetentionPolicy controls whether an artifact may be evicted by pruning.
type RetentionPolicy string

const (
	// RemoveOldest makes the artifact eligible for quota-driven eviction.
	RemoveOldest RetentionPolicy = "REMOVE_OLDEST"
	// KeepUntilExplicitRemove exempts the artifact from pruning.
	KeepUntilExplicitRemove RetentionPolicy = "KEEP_UNTIL_EXPLICIT_REMOVE"
)

// ParseRetention converts a policy name into a RetentionPolicy.
func ParseRetention(s string) (RetentionPolicy, error) {
	switch RetentionPolicy(strings.ToUpper(s)) {
	case RemoveOldest:
		return RemoveOldest, nil
	case KeepUntilExplicitRemove:
		return KeepUntilExplicitRemove, nil
	}
	return "", fmt.Errorf("unknown retention policy %q", s)
}

// Host describes the machine that performed an installation.
type Host struct {
	HostName       string `yaml:"host_name,omitempty"`
	OSName         string `yaml:"os_name,omitempty"`
	OSArchitecture string `yaml:"os_architecture,omitempty"`
	OSVersion      string `yaml:"os_version,omitempty"`
}

// Request is the installation request that produced an artifact record.
// Requests are built by an orchestration layer and replayed when a cached
// install script has to be fetched again.
type Request struct {
	PluginID          string          `yaml:"plugin_id"`
	ArtifactID        string          `yaml:"artifact_id"`
	Version           string          `yaml:"version"`
	ScriptInstallPath string          `yaml:"script_install_path"`
	SSHHost           string          `yaml:"ssh_host,omitempty"`
	SSHUser           string          `yaml:"ssh_user,omitempty"`
	Retention         RetentionPolicy `yaml:"retention,omitempty"`
	Mandatory         bool            `yaml:"mandatory,omitempty"`
	Attributes        Attributes      `yaml:"attributes,omitempty"`
}

// Remote reports whether the install script lives on another host.
func (r *Request) Remote() bool {
	return r.SSHHost != ""
}

// String returns PLUGIN:ARTIFACT:VERSION(attributes).
func (r *Request) String() string {
	return Describe(r.PluginID, r.ArtifactID, r.Version, r.Attributes)
}

// Artifact is the unit of persistence in the repository.
type Artifact struct {
	PluginID                  string          `yaml:"plugin_id"`
	ArtifactID                string          `yaml:"artifact_id"`
	Version                   string          `yaml:"version"`
	Attributes                Attributes      `yaml:"attributes,omitempty"`
	State                     State           `yaml:"state"`
	RelativePath              string          `yaml:"relative_path"`
	InstallScriptRelativePath string          `yaml:"install_script_relative_path,omitempty"`
	InstallationTime          time.Time       `yaml:"installation_time"`
	InstalledSize             int64           `yaml:"installed_size"`
	Host                      Host            `yaml:"installation_host"`
	Retention                 RetentionPolicy `yaml:"retention"`
	Request                   *Request        `yaml:"installation_request,omitempty"`
}

// Key returns the composite identity of the artifact.
func (a *Artifact) Key() Key {
	return MakeKey(a.PluginID, a.ArtifactID, a.Version, a.Attributes)
}

// Clone returns a deep copy, so callers can mutate records taken from the
// index without touching the index itself.
func (a *Artifact) Clone() *Artifact {
	if a == nil {
		return nil
	}
	c := *a
	c.Attributes = a.Attributes.Clone()
	if a.Request != nil {
		r := *a.Request
		r.Attributes = a.Request.Attributes.Clone()
		c.Request = &r
	}
	return &c
}

// String returns PLUGIN:ARTIFACT:VERSION(attributes).
func (a *Artifact) String() string {
	if a == nil {
		return "null"
	}
	return Describe(a.PluginID, a.ArtifactID, a.Version, a.Attributes)
}

// IsEnvironmentCollection reports whether the artifact's install script is
// an environment collection script.
func (a *Artifact) IsEnvironmentCollection() bool {
	return strings.HasPrefix(a.PluginID, EnvironmentCollectionPrefix)
}

// Describe formats an identity the way log messages and errors print it.
func Describe(pluginID, artifactID, version string, attrs Attributes) string {
	return fmt.Sprintf("%s:%s:%s(%s)", pluginID, artifactID, version, attrs)
}
