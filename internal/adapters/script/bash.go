// Package script runs plugin install scripts with bash.
//
// An install script is a bash file defining two functions:
//
//	get_attribute_values <artifactId> <outputFile>
//	plugin_install_artifact <artifactId> <installDir> <value>...
//
// The script is sourced in a subshell after any environment collection
// scripts, and the requested function is called.
package script

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/felixgeelhaar/artifactrepo/internal/domain/artifact"
	"github.com/felixgeelhaar/artifactrepo/internal/ports"
	"github.com/google/uuid"
	"github.com/kballard/go-shellquote"
	"gopkg.in/ini.v1"
)

const (
	attributeFunction = "get_attribute_values"
	installFunction   = "plugin_install_artifact"
	propertiesFile    = "artifact.properties"
)

const dieIfError = `dieIfError() {
  S=$?
  if [ ! "$S" = "0" ]; then
    exit $S
  fi
}
`

// Bash implements ports.ScriptRunner.
type Bash struct {
	runner ports.ExecRunner
	shell  string
	tmpDir string
	jobDir string
	stdout io.Writer
	stderr io.Writer
	logger ports.Logger
}

// Option configures Bash.
type Option func(*Bash)

// WithShell sets the shell binary. Defaults to "bash" looked up in PATH.
func WithShell(shell string) Option {
	return func(b *Bash) { b.shell = shell }
}

// WithTempDir sets where scratch directories and export files are created.
func WithTempDir(dir string) Option {
	return func(b *Bash) { b.tmpDir = dir }
}

// WithJobDir exports JOB_DIR before sourcing environment collection scripts.
func WithJobDir(dir string) Option {
	return func(b *Bash) { b.jobDir = dir }
}

// WithOutput copies script output to the given writers.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(b *Bash) {
		b.stdout = stdout
		b.stderr = stderr
	}
}

// WithLogger sets the logger.
func WithLogger(logger ports.Logger) Option {
	return func(b *Bash) { b.logger = logger }
}

// NewBash creates a bash script runner.
func NewBash(runner ports.ExecRunner, logger ports.Logger, opts ...Option) *Bash {
	b := &Bash{
		runner: runner,
		shell:  "bash",
		tmpDir: os.TempDir(),
		jobDir: os.Getenv("JOB_DIR"),
		logger: logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ResolveAttributes runs get_attribute_values and parses the key=value
// file it writes.
func (b *Bash) ResolveAttributes(ctx context.Context, call ports.AttributeCall) (map[string]string, error) {
	scriptPath, err := filepath.Abs(call.Script)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(b.tmpDir, fmt.Sprintf("%s-%s-%s", call.PluginID, call.ArtifactID, uuid.NewString()))
	defer func() { _ = os.RemoveAll(dir) }()

	wrapper := fmt.Sprintf(
		"( set -e ; set +xv ; DIR=%s ; script=%s ; mkdir -p ${DIR} ; %s chmod +x $script ; . $script ; %s %s ${DIR}/%s )",
		shellquote.Join(dir),
		shellquote.Join(scriptPath),
		b.envStatements(call.EnvScripts),
		attributeFunction,
		shellquote.Join(call.ArtifactID),
		propertiesFile,
	)

	b.logger.Debug(ctx, "running attribute resolution",
		ports.F("plugin", call.PluginID),
		ports.F("artifact", call.ArtifactID),
		ports.F("script", scriptPath))

	result, err := b.runner.Exec(ctx, ports.Exec{
		Command: b.shell,
		Args:    []string{"-c", wrapper},
		Stdout:  b.stdout,
		Stderr:  b.stderr,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to run %s: %w", attributeFunction, err)
	}
	if !result.Success() {
		return nil, &artifact.ScriptFailureError{Function: attributeFunction, ExitCode: result.ExitCode, Stderr: result.Stderr}
	}

	return readProperties(filepath.Join(dir, propertiesFile))
}

// Install runs plugin_install_artifact in a scratch working directory that
// is removed afterwards.
func (b *Bash) Install(ctx context.Context, call ports.InstallCall) error {
	scriptPath, err := filepath.Abs(call.Script)
	if err != nil {
		return err
	}

	id := uuid.NewString()
	workDir := filepath.Join(b.tmpDir, id)
	exportsPath := filepath.Join(b.tmpDir, "exports-"+id+".sh")
	defer func() {
		_ = os.RemoveAll(workDir)
		_ = os.Remove(exportsPath)
	}()

	exports := strings.Join(call.Exports, "\n")
	if exports != "" {
		exports += "\n"
	}
	if err := os.WriteFile(exportsPath, []byte(exports), 0o644); err != nil {
		return fmt.Errorf("failed to write exports: %w", err)
	}

	args := append([]string{call.ArtifactID, call.InstallDir}, call.Values...)
	wrapper := dieIfError + fmt.Sprintf(
		"( set -e ; set -x ; exports=%s ; DIR=%s ; script=%s ; mkdir -p ${DIR} ; cd ${DIR} ; chmod +x $script ; %s . $exports ; . $script ; dieIfError ; %s %s ; dieIfError ; rm -fr ${DIR} )",
		shellquote.Join(exportsPath),
		shellquote.Join(workDir),
		shellquote.Join(scriptPath),
		b.envStatements(call.EnvScripts),
		installFunction,
		shellquote.Join(args...),
	)

	b.logger.Debug(ctx, "running install script",
		ports.F("plugin", call.PluginID),
		ports.F("artifact", call.ArtifactID),
		ports.F("install_dir", call.InstallDir),
		ports.F("script", scriptPath))

	result, err := b.runner.Exec(ctx, ports.Exec{
		Command: b.shell,
		Args:    []string{"-c", wrapper},
		Stdout:  b.stdout,
		Stderr:  b.stderr,
	})
	if err != nil {
		return fmt.Errorf("failed to run %s: %w", installFunction, err)
	}
	if !result.Success() {
		return &artifact.ScriptFailureError{Function: installFunction, ExitCode: result.ExitCode, Stderr: result.Stderr}
	}
	return nil
}

// envStatements sources each environment collection script in order.
func (b *Bash) envStatements(scripts []string) string {
	var sb strings.Builder
	for _, s := range scripts {
		q := shellquote.Join(s)
		if b.jobDir != "" {
			fmt.Fprintf(&sb, "export JOB_DIR=%s ; ", shellquote.Join(b.jobDir))
		}
		fmt.Fprintf(&sb, "chmod +x %s ; source %s ; ", q, q)
	}
	return sb.String()
}

// readProperties parses a key=value file. Inline ';' and '#' are kept as
// part of the value.
func readProperties(path string) (map[string]string, error) {
	f, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment:     true,
		SkipUnrecognizableLines: true,
	}, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read attribute values: %w", err)
	}

	values := make(map[string]string)
	for _, key := range f.Section(ini.DefaultSection).Keys() {
		values[key.Name()] = key.String()
	}
	return values, nil
}

// Ensure Bash implements ports.ScriptRunner.
var _ ports.ScriptRunner = (*Bash)(nil)
