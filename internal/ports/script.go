package ports

import "context"

// AttributeCall asks an install script for the values of attributes that
// depend on the runtime environment.
type AttributeCall struct {
	Script     string
	PluginID   string
	ArtifactID string
	// EnvScripts are sourced, in order, before the install script.
	EnvScripts []string
}

// InstallCall asks an install script to install one artifact.
type InstallCall struct {
	Script     string
	PluginID   string
	ArtifactID string
	InstallDir string
	// Values are the resolved attribute values, in attribute order.
	Values []string
	// Exports are shell statements sourced before the install script.
	Exports []string
	// EnvScripts are sourced, in order, before the exports.
	EnvScripts []string
}

// ScriptRunner runs the capabilities of a plugin install script.
type ScriptRunner interface {
	// ResolveAttributes runs get_attribute_values and returns every
	// name/value pair the script wrote.
	ResolveAttributes(ctx context.Context, call AttributeCall) (map[string]string, error)
	// Install runs plugin_install_artifact.
	Install(ctx context.Context, call InstallCall) error
}

// ScriptFetcher copies an install script from sourcePath to targetPath.
type ScriptFetcher interface {
	Fetch(ctx context.Context, sourcePath, targetPath string) error
}
