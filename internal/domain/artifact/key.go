package artifact

import (
	"path"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Key is the composite identity of an artifact:
// plugin$artifact$version[$NAME=VALUE]*.
type Key string

const keySeparator = "$"

// normalizer replaces characters that are unsafe in directory names and
// shell variable names.
var normalizer = strings.NewReplacer(
	"!", "_",
	"$", "_",
	" ", "_",
	"-", "_",
	"/", "_",
	"\\", "_",
)

// Normalize upper-cases s and replaces characters that cannot appear in a
// directory name or an environment variable name with underscores.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	return cases.Upper(language.Und).String(normalizer.Replace(s))
}

// MakeKey builds the composite key for an identity. Attributes are included
// in the order given.
func MakeKey(pluginID, artifactID, version string, attrs Attributes) Key {
	var b strings.Builder
	b.WriteString(string(prefixKey(pluginID, artifactID, version)))
	for _, a := range attrs {
		b.WriteString(keySeparator)
		b.WriteString(Normalize(a.Name))
		b.WriteString("=")
		b.WriteString(Normalize(a.Value))
	}
	return Key(b.String())
}

func prefixKey(pluginID, artifactID, version string) Key {
	return Key(pluginID + keySeparator + artifactID + keySeparator + version)
}

// MatchesIgnoringAttributes reports whether k identifies the given plugin,
// artifact and version, whatever its attributes.
func (k Key) MatchesIgnoringAttributes(pluginID, artifactID, version string) bool {
	prefix := string(prefixKey(pluginID, artifactID, version))
	s := string(k)
	return s == prefix || strings.HasPrefix(s, prefix+keySeparator)
}

// RelativePath returns the artifact directory relative to the artifacts
// tree: plugin/artifact/version followed by one component per resolved
// attribute value.
func RelativePath(pluginID, artifactID, version string, attrs Attributes) string {
	parts := []string{pluginID, artifactID, version}
	for _, a := range attrs {
		if a.Resolved() {
			parts = append(parts, Normalize(a.Value))
		}
	}
	return path.Join(parts...)
}

// ScriptRelativePath returns where the install script of a plugin version
// is cached, relative to the scripts tree.
func ScriptRelativePath(pluginID, version string) string {
	return path.Join(pluginID, version, "install.sh")
}
