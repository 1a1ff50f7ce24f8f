package artifact

import (
	"fmt"
	"strings"
)

// ExportPrefix starts every exported variable name.
const ExportPrefix = "RESOURCES_ARTIFACTS"

// ExportVariable returns the name of the variable holding the install path
// of an artifact: RESOURCES_ARTIFACTS_<PLUGIN>_<ARTIFACT>[_<VALUE>...].
func ExportVariable(pluginID, artifactID string, attrs Attributes) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s_%s_%s", ExportPrefix, pluginID, artifactID)
	for _, v := range attrs.Values() {
		b.WriteString("_")
		b.WriteString(v)
	}
	return b.String()
}

// AttributeVariable returns the name of the variable holding one attribute
// value of an artifact.
func AttributeVariable(pluginID, artifactID, attributeName string) string {
	return fmt.Sprintf("%s_%s_%s_%s", ExportPrefix, pluginID, artifactID, Normalize(attributeName))
}

// ExportLines returns the shell statements exposing an installed artifact:
// one for its install path, then one per attribute value.
func ExportLines(a *Artifact, installPath string) []string {
	lines := make([]string, 0, len(a.Attributes)+1)
	lines = append(lines, fmt.Sprintf("export %s=%s", ExportVariable(a.PluginID, a.ArtifactID, a.Attributes), installPath))
	for _, attr := range a.Attributes {
		if attr.Resolved() {
			lines = append(lines, fmt.Sprintf("export %s=%s", AttributeVariable(a.PluginID, a.ArtifactID, attr.Name), attr.Value))
		}
	}
	return lines
}
