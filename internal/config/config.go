// Package config loads artifact repository settings from YAML or TOML.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Default values.
const (
	DefaultRepositoryDir      = "artifact-repo"
	DefaultFreeSpaceThreshold = 10.0
	DefaultLockPollInterval   = 500 * time.Millisecond
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
	DefaultSSHPort            = 22
	DefaultSSHTimeout         = 30 * time.Second
)

// Config is the full configuration of one repository client.
type Config struct {
	Repository RepositoryConfig `yaml:"repository" toml:"repository"`
	Logging    LoggingConfig    `yaml:"logging" toml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics" toml:"metrics"`
	SSH        SSHConfig        `yaml:"ssh" toml:"ssh"`
}

// RepositoryConfig locates the repository and bounds its disk usage.
type RepositoryConfig struct {
	Dir string `yaml:"dir" toml:"dir"`
	// Quota is the total installed size allowed before pruning evicts.
	// Zero disables the quota check.
	Quota Size `yaml:"quota" toml:"quota"`
	// FreeSpaceThreshold is the free disk percentage below which pruning
	// evicts.
	FreeSpaceThreshold float64  `yaml:"free_space_threshold" toml:"free_space_threshold"`
	LockPollInterval   Duration `yaml:"lock_poll_interval" toml:"lock_poll_interval"`
	// LockTimeout bounds the wait for another process holding the
	// repository lock. Zero waits forever.
	LockTimeout Duration `yaml:"lock_timeout" toml:"lock_timeout"`
	TempDir     string   `yaml:"temp_dir" toml:"temp_dir"`
}

// LoggingConfig selects the logger.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
	// Dir receives the step log of each run when set.
	Dir string `yaml:"dir" toml:"dir"`
}

// MetricsConfig configures the Prometheus textfile output.
type MetricsConfig struct {
	File string `yaml:"file" toml:"file"`
}

// SSHConfig configures the remote script transport.
type SSHConfig struct {
	User           string   `yaml:"user" toml:"user"`
	Port           int      `yaml:"port" toml:"port"`
	Timeout        Duration `yaml:"timeout" toml:"timeout"`
	IdentityFiles  []string `yaml:"identity_files" toml:"identity_files"`
	KnownHostsFile string   `yaml:"known_hosts_file" toml:"known_hosts_file"`
	// InsecureIgnoreHostKey skips host key verification.
	InsecureIgnoreHostKey bool `yaml:"insecure_ignore_host_key" toml:"insecure_ignore_host_key"`
}

// Default returns a configuration with every field at its default.
func Default() *Config {
	return &Config{
		Repository: RepositoryConfig{
			Dir:                DefaultRepositoryDir,
			FreeSpaceThreshold: DefaultFreeSpaceThreshold,
			LockPollInterval:   Duration(DefaultLockPollInterval),
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		SSH: SSHConfig{
			Port:    DefaultSSHPort,
			Timeout: Duration(DefaultSSHTimeout),
		},
	}
}

var logFormats = []string{"text", "json", "zap"}

// Validate reports every invalid field.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	if c.Repository.Dir == "" {
		errs = append(errs, ValidationError{Field: "repository.dir", Message: "directory is required"})
	}
	if c.Repository.Quota < 0 {
		errs = append(errs, ValidationError{Field: "repository.quota", Message: "quota must not be negative"})
	}
	if t := c.Repository.FreeSpaceThreshold; t < 0 || t > 100 {
		errs = append(errs, ValidationError{Field: "repository.free_space_threshold", Message: fmt.Sprintf("%v is not a percentage", t)})
	}
	if c.Repository.LockPollInterval <= 0 {
		errs = append(errs, ValidationError{Field: "repository.lock_poll_interval", Message: "interval must be positive"})
	}
	if c.Repository.LockTimeout < 0 {
		errs = append(errs, ValidationError{Field: "repository.lock_timeout", Message: "timeout must not be negative"})
	}
	if !contains(logFormats, c.Logging.Format) {
		errs = append(errs, ValidationError{Field: "logging.format", Message: fmt.Sprintf("unknown format %q (expected %s)", c.Logging.Format, strings.Join(logFormats, ", "))})
	}
	if c.SSH.Port < 0 || c.SSH.Port > 65535 {
		errs = append(errs, ValidationError{Field: "ssh.port", Message: fmt.Sprintf("invalid port %d", c.SSH.Port)})
	}

	return errs
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

// Size is a byte count written as "10GB", "512MiB" or a plain number.
type Size int64

// ParseSize parses a human readable byte count.
func ParseSize(s string) (Size, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return Size(n), nil
}

// Bytes returns the size as an int64.
func (s Size) Bytes() int64 {
	return int64(s)
}

// String formats the size in SI units.
func (s Size) String() string {
	if s <= 0 {
		return "0 B"
	}
	return humanize.Bytes(uint64(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s Size) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Size) UnmarshalText(text []byte) error {
	v, err := ParseSize(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Duration is a time.Duration written as "500ms" or "1m30s".
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// String formats the duration.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(v)
	return nil
}
