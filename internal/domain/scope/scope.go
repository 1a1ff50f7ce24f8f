// Package scope provides predicates that select which artifacts an
// operation applies to.
package scope

import (
	"github.com/felixgeelhaar/artifactrepo/internal/domain/artifact"
	"github.com/felixgeelhaar/artifactrepo/internal/domain/request"
)

// Scope decides whether an artifact identity is in scope.
type Scope interface {
	InScope(pluginID, artifactID, version string) bool
}

// Func adapts a function to Scope.
type Func func(pluginID, artifactID, version string) bool

// InScope calls f.
func (f Func) InScope(pluginID, artifactID, version string) bool {
	return f(pluginID, artifactID, version)
}

// All returns a scope that includes every artifact.
func All() Scope {
	return Func(func(string, string, string) bool { return true })
}

type identity struct {
	pluginID, artifactID, version string
}

// Explicit is an allow-list of plugin/artifact/version triples.
type Explicit struct {
	allowed map[identity]struct{}
}

// NewExplicit creates an empty allow-list.
func NewExplicit() *Explicit {
	return &Explicit{allowed: make(map[identity]struct{})}
}

// Add puts an identity in scope.
func (e *Explicit) Add(pluginID, artifactID, version string) *Explicit {
	e.allowed[identity{pluginID, artifactID, version}] = struct{}{}
	return e
}

// InScope reports whether the exact identity was added.
func (e *Explicit) InScope(pluginID, artifactID, version string) bool {
	_, ok := e.allowed[identity{pluginID, artifactID, version}]
	return ok
}

// Request includes any artifact whose plugin and version appear in a
// request set. The artifact id is not compared, so every artifact of a
// requested plugin version is exported.
type Request struct {
	set *request.Set
}

// NewRequest creates a scope over set.
func NewRequest(set *request.Set) *Request {
	return &Request{set: set}
}

// InScope reports whether a request names the plugin at that version.
func (r *Request) InScope(pluginID, _, version string) bool {
	if r.set == nil {
		return false
	}
	for _, a := range r.set.Artifacts {
		if a.PluginID == pluginID && a.Version == version {
			return true
		}
	}
	return false
}

// Finder looks up records regardless of attributes.
type Finder interface {
	FindIgnoringAttributes(pluginID, artifactID, version string) []*artifact.Artifact
}

// InstalledInRepo includes artifacts with at least one INSTALLED record.
type InstalledInRepo struct {
	finder Finder
}

// NewInstalledInRepo creates a scope backed by finder.
func NewInstalledInRepo(finder Finder) *InstalledInRepo {
	return &InstalledInRepo{finder: finder}
}

// InScope reports whether any record for the identity is installed.
func (s *InstalledInRepo) InScope(pluginID, artifactID, version string) bool {
	for _, a := range s.finder.FindIgnoringAttributes(pluginID, artifactID, version) {
		if a.State == artifact.StateInstalled {
			return true
		}
	}
	return false
}
