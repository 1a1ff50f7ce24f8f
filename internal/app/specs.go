package app

import (
	"github.com/felixgeelhaar/artifactrepo/internal/domain/artifact"
	"github.com/felixgeelhaar/artifactrepo/internal/domain/request"
)

// SetFromSpecs builds mandatory local requests from
// PLUGIN:ARTIFACT:VERSION[:script] specifications. attrs apply to every
// artifact.
func SetFromSpecs(specs []string, retention artifact.RetentionPolicy, attrs artifact.Attributes) (*request.Set, error) {
	b := request.NewBuilder("")
	for _, s := range specs {
		spec, err := request.ParseSpec(s)
		if err != nil {
			return nil, err
		}
		b.Add(spec.PluginID, spec.ArtifactID, spec.Version, true, spec.Script, retention, attrs...)
	}
	return b.Build(), nil
}
