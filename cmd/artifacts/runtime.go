package main

import (
	"context"
	"fmt"
	"os"

	"github.com/felixgeelhaar/artifactrepo/internal/adapters/command"
	"github.com/felixgeelhaar/artifactrepo/internal/adapters/diskspace"
	"github.com/felixgeelhaar/artifactrepo/internal/adapters/hostinfo"
	"github.com/felixgeelhaar/artifactrepo/internal/adapters/logging"
	"github.com/felixgeelhaar/artifactrepo/internal/adapters/metadata"
	"github.com/felixgeelhaar/artifactrepo/internal/adapters/metrics"
	"github.com/felixgeelhaar/artifactrepo/internal/adapters/script"
	"github.com/felixgeelhaar/artifactrepo/internal/adapters/source"
	"github.com/felixgeelhaar/artifactrepo/internal/app"
	"github.com/felixgeelhaar/artifactrepo/internal/config"
	"github.com/felixgeelhaar/artifactrepo/internal/domain/repository"
	"github.com/felixgeelhaar/artifactrepo/internal/domain/request"
	"github.com/felixgeelhaar/artifactrepo/internal/ports"
	"github.com/spf13/cobra"
)

// runtime holds everything one command invocation needs.
type runtime struct {
	cfg      *config.Config
	logger   ports.Logger
	steps    *logging.StepLogger
	stepFile *os.File
	metrics  *metrics.Collector
	repo     *repository.Repository
	manager  *app.Manager
	sync     func() error
}

// loadConfig resolves the configuration file and applies flag overrides.
func loadConfig() (*config.Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	cfg, path, err := config.Resolve(cfgFile, wd)
	if err != nil {
		return nil, err
	}

	if repoDir != "" {
		cfg.Repository.Dir = repoDir
	}
	if quota != "" {
		size, err := config.ParseSize(quota)
		if err != nil {
			return nil, fmt.Errorf("--quota: %w", err)
		}
		cfg.Repository.Quota = size
	}
	if lockTimeout != "" {
		var d config.Duration
		if err := d.UnmarshalText([]byte(lockTimeout)); err != nil {
			return nil, fmt.Errorf("--lock-timeout: %w", err)
		}
		cfg.Repository.LockTimeout = d
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if verbose && logLevel == "" {
		cfg.Logging.Level = "debug"
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	if logDir != "" {
		cfg.Logging.Dir = logDir
	}
	if metricsFile != "" {
		cfg.Metrics.File = metricsFile
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, config.NewInvalidError(path, errs)
	}
	return cfg, nil
}

func newLogger(cfg config.LoggingConfig) (ports.Logger, func() error, error) {
	level, err := ports.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	switch cfg.Format {
	case "zap":
		l := logging.NewZapLogger(os.Stderr, level)
		return l, l.Sync, nil
	case "json":
		return logging.NewConsoleLogger(logging.WithLevel(level), logging.WithJSONFormat(true)), noSync, nil
	default:
		return logging.NewConsoleLogger(logging.WithLevel(level)), noSync, nil
	}
}

func noSync() error { return nil }

func sshConfig(cfg config.SSHConfig) source.SSHConfig {
	out := source.DefaultSSHConfig()
	if cfg.User != "" {
		out.DefaultUser = cfg.User
	}
	if cfg.Port != 0 {
		out.Port = cfg.Port
	}
	if cfg.Timeout > 0 {
		out.Timeout = cfg.Timeout.Std()
	}
	if len(cfg.IdentityFiles) > 0 {
		out.IdentityFiles = cfg.IdentityFiles
	}
	if cfg.KnownHostsFile != "" {
		out.KnownHostsFile = cfg.KnownHostsFile
	}
	out.InsecureIgnoreHostKey = cfg.InsecureIgnoreHostKey
	return out
}

// newRuntime wires the repository and its adapters from the configuration.
func newRuntime(cmd *cobra.Command) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, syncLogger, err := newLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg, logger: logger, sync: syncLogger, metrics: metrics.NewCollector()}
	if cfg.Logging.Dir != "" {
		rt.steps, rt.stepFile, err = logging.OpenStepLog(cfg.Logging.Dir)
		if err != nil {
			return nil, err
		}
	} else {
		rt.steps = logging.NewStepLogger(nil)
	}

	tmpDir := cfg.Repository.TempDir
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	runner := script.NewBash(command.NewRealRunner(), logger,
		script.WithTempDir(tmpDir),
		script.WithOutput(cmd.ErrOrStderr(), cmd.ErrOrStderr()))
	fetcher := source.NewRouter(sshConfig(cfg.SSH))

	rt.repo, err = repository.New(cfg.Repository.Dir, metadata.NewFileStore(), runner, logger,
		repository.WithFetcher(fetcher),
		repository.WithDiskProbe(diskspace.NewProbe()),
		repository.WithHostProbe(hostinfo.NewProbe()),
		repository.WithMetrics(rt.metrics),
		repository.WithStepLogger(rt.steps),
		repository.WithQuota(cfg.Repository.Quota.Bytes()),
		repository.WithFreeSpaceThreshold(cfg.Repository.FreeSpaceThreshold),
		repository.WithLockPollInterval(cfg.Repository.LockPollInterval.Std()),
	)
	if err != nil {
		_ = rt.close()
		return nil, err
	}

	rt.manager = app.New(rt.repo, logger,
		app.WithFetcher(fetcher),
		app.WithTempDir(tmpDir),
		app.WithLockTimeout(cfg.Repository.LockTimeout.Std()))
	return rt, nil
}

// close flushes metrics and logs.
func (rt *runtime) close() error {
	var firstErr error
	if rt.cfg.Metrics.File != "" {
		if err := rt.metrics.WriteTextfile(rt.cfg.Metrics.File); err != nil {
			rt.logger.Warn(context.Background(), "failed to write metrics", ports.Err(err))
			firstErr = err
		}
	}
	if rt.stepFile != nil {
		if err := rt.stepFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	_ = rt.sync()
	return firstErr
}

// withRuntime runs fn with a runtime closed afterwards.
func withRuntime(cmd *cobra.Command, fn func(context.Context, *runtime) error) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	err = fn(cmd.Context(), rt)
	if cerr := rt.close(); err == nil {
		err = cerr
	}
	return err
}

// loadRequests reads the --requests file.
func loadRequests(ctx context.Context) (*request.Set, error) {
	return metadata.RequestsFor(requestFile).Load(ctx, requestFile)
}
