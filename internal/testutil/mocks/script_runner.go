package mocks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/felixgeelhaar/artifactrepo/internal/domain/artifact"
	"github.com/felixgeelhaar/artifactrepo/internal/ports"
)

// ScriptRunner is a test double for ports.ScriptRunner. Installs write a
// marker file into the install directory unless configured to fail.
type ScriptRunner struct {
	mu            sync.Mutex
	values        map[string]map[string]string
	resolveErrs   map[string]error
	installErrs   map[string]error
	installPanics map[string]string
	sizes         map[string]int
	resolveCalls  []ports.AttributeCall
	installCalls  []ports.InstallCall
}

// NewScriptRunner creates a new ScriptRunner mock.
func NewScriptRunner() *ScriptRunner {
	return &ScriptRunner{
		values:        make(map[string]map[string]string),
		resolveErrs:   make(map[string]error),
		installErrs:   make(map[string]error),
		installPanics: make(map[string]string),
		sizes:         make(map[string]int),
	}
}

// SetAttributes sets what get_attribute_values reports for a plugin.
func (m *ScriptRunner) SetAttributes(pluginID string, values map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[pluginID] = values
}

// FailResolve makes attribute resolution fail for a plugin.
func (m *ScriptRunner) FailResolve(pluginID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolveErrs[pluginID] = err
}

// FailInstall makes installation fail for a plugin.
func (m *ScriptRunner) FailInstall(pluginID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.installErrs[pluginID] = err
}

// PanicInstall makes installation panic for a plugin.
func (m *ScriptRunner) PanicInstall(pluginID, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.installPanics[pluginID] = msg
}

// SetInstallSize sets how many bytes an install of the plugin writes.
func (m *ScriptRunner) SetInstallSize(pluginID string, size int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sizes[pluginID] = size
}

// ResolveAttributes returns the configured values.
func (m *ScriptRunner) ResolveAttributes(_ context.Context, call ports.AttributeCall) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.resolveCalls = append(m.resolveCalls, call)
	if err, ok := m.resolveErrs[call.PluginID]; ok {
		return nil, err
	}
	out := make(map[string]string, len(m.values[call.PluginID]))
	for k, v := range m.values[call.PluginID] {
		out[k] = v
	}
	return out, nil
}

// Install writes installed.txt into the install directory.
func (m *ScriptRunner) Install(_ context.Context, call ports.InstallCall) error {
	m.mu.Lock()
	m.installCalls = append(m.installCalls, call)
	err := m.installErrs[call.PluginID]
	msg, panics := m.installPanics[call.PluginID]
	size, sized := m.sizes[call.PluginID]
	m.mu.Unlock()

	if panics {
		panic(msg)
	}
	if err != nil {
		return err
	}
	if _, statErr := os.Stat(call.Script); statErr != nil {
		return &artifact.ScriptFailureError{Function: "plugin_install_artifact", ExitCode: 127, Stderr: statErr.Error()}
	}

	content := []byte(fmt.Sprintf("%s %v\n", call.ArtifactID, call.Values))
	if sized {
		content = make([]byte, size)
	}
	return os.WriteFile(filepath.Join(call.InstallDir, "installed.txt"), content, 0o644)
}

// ResolveCalls returns the recorded attribute resolutions.
func (m *ScriptRunner) ResolveCalls() []ports.AttributeCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ports.AttributeCall(nil), m.resolveCalls...)
}

// InstallCalls returns the recorded installations.
func (m *ScriptRunner) InstallCalls() []ports.InstallCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ports.InstallCall(nil), m.installCalls...)
}

var _ ports.ScriptRunner = (*ScriptRunner)(nil)
