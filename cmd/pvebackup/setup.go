package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/yourusername/pvebackup/internal/backup"
	"github.com/yourusername/pvebackup/internal/config"
	"github.com/yourusername/pvebackup/internal/logging"
	"github.com/yourusername/pvebackup/internal/metrics"
	"github.com/yourusername/pvebackup/internal/schedule"
	"github.com/yourusername/pvebackup/internal/ssh"
	"github.com/yourusername/pvebackup/internal/vzdump"
)

// loadConfig resolves and loads the configuration. Failures are logged to
// report before they are returned.
func loadConfig(flagValue string, report *slog.Logger) (*config.Config, string, error) {
	path := config.ResolvePath(flagValue)
	cfg, err := config.Load(path)
	if err != nil {
		err = configError(err)
		report.Error("failed to load configuration", "path", path, "exit_code", exitCode(err), "error", err)
		return nil, path, err
	}
	return cfg, path, nil
}

// startupLogger writes to console and to the default log file beside the
// configuration path. It is used until the configured logger exists.
func startupLogger(console io.Writer, flagValue string) (*slog.Logger, func()) {
	logCfg := config.Default().Logging
	dir := filepath.Dir(config.ResolvePath(flagValue))
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		logCfg.File = filepath.Join(dir, logCfg.File)
	} else {
		logCfg.File = ""
	}

	logger, closer, err := logging.New(logCfg, console)
	if err != nil {
		logCfg.File = ""
		logger, closer, _ = logging.New(logCfg, console)
	}
	return logger, func() {
		if closer != nil {
			closer.Close()
		}
	}
}

// parseSchedule parses cfg.Schedule and warns when calendar fields would be
// silently ignored.
func parseSchedule(cfg *config.Config, logger *slog.Logger) (schedule.Rule, error) {
	descriptor, err := schedule.Split(cfg.Schedule)
	if err != nil {
		return nil, withExitCode(exitScheduleInvalid, err)
	}
	rule, err := descriptor.Rule()
	if err != nil {
		return nil, withExitCode(exitScheduleInvalid, err)
	}

	if descriptor.IgnoresCalendarFields() {
		logger.Warn("day-of-month, month and day-of-week fields are not evaluated",
			"schedule", cfg.Schedule,
			"effective", rule.Expression(),
		)
	}
	return rule, nil
}

func logConfig(logger *slog.Logger, path string, cfg *config.Config) {
	data, err := json.Marshal(cfg)
	if err != nil {
		logger.Warn("failed to render configuration", "error", err)
		return
	}
	logger.Info("loaded configuration", "path", path, "config", string(data))
}

func newRunner(cfg *config.Config, logger *slog.Logger) (ssh.Runner, error) {
	switch strings.ToLower(cfg.SSH.Transport) {
	case "exec":
		return ssh.NewExecRunner(cfg.SSH.Binary), nil
	case "native":
		if cfg.SSH.KnownHostsPath == "" {
			logger.Warn("ssh.known_hosts_path is empty, host keys will not be verified")
		}
		return ssh.NewClientRunner(ssh.ClientConfig{
			Port:            cfg.SSH.Port,
			Username:        cfg.SSH.Username,
			AuthMethod:      cfg.SSH.AuthMethod,
			KeyPath:         cfg.SSH.KeyPath,
			Password:        cfg.SSH.Password,
			Timeout:         cfg.ConnectTimeout(),
			KnownHostsPath:  cfg.SSH.KnownHostsPath,
			TrustOnFirstUse: cfg.SSH.TrustOnFirstUse,
		}), nil
	default:
		return nil, withExitCode(exitConfigInvalid, fmt.Errorf("unsupported ssh.transport %q", cfg.SSH.Transport))
	}
}

func newCycleRunner(cfg *config.Config, logger *slog.Logger, collector *metrics.Collector) (*backup.CycleRunner, error) {
	runner, err := newRunner(cfg, logger)
	if err != nil {
		return nil, err
	}

	invoker := vzdump.NewInvoker(runner,
		vzdump.WithTimeout(cfg.NodeTimeout()),
		vzdump.WithTarget(cfg.SSH.Port, cfg.SSH.Username),
		vzdump.WithLogger(logger),
	)

	cycles := backup.NewCycleRunner(invoker, collector)
	cycles.SetLogger(logger)
	return cycles, nil
}

// initLogging returns the process logger; the caller must call logging.Close.
func initLogging(cfg *config.Config) (*slog.Logger, error) {
	logger, err := logging.Init(cfg.Logging)
	if err != nil {
		return logger, withExitCode(exitConfigInvalid, fmt.Errorf("failed to set up logging: %w", err))
	}
	return logger, nil
}
