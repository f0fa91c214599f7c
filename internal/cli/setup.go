package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	backend "github.com/redis/go-redis/v9"

	"github.com/tuchang/junit5"
	"github.com/tuchang/junit5/internal/logging"
	"github.com/tuchang/junit5/pkg/adapters/file"
	"github.com/tuchang/junit5/pkg/adapters/memory"
	"github.com/tuchang/junit5/pkg/adapters/process"
	"github.com/tuchang/junit5/pkg/adapters/redis"
	"github.com/tuchang/junit5/pkg/adapters/suite"
	"github.com/tuchang/junit5/pkg/observability"
	"github.com/tuchang/junit5/pkg/ports"
)

// Options are the command line settings shared by every command.
type Options struct {
	ConfigPath string
	// ConfigRequired fails when ConfigPath does not exist.
	ConfigRequired bool
	Params         []string
	LogLevel       string
	LogJSON        bool
	Debug          bool
	// Environ defaults to os.Environ().
	Environ []string
}

// Environment is a configured launcher and the infrastructure behind it.
type Environment struct {
	Config   Config
	Launcher *junit5.Launcher
	Results  ports.ResultStore
	Metrics  *prometheus.Registry
	Logger   *slog.Logger

	closers []func() error
}

// Setup loads the configuration and assembles the launcher.
func Setup(opts Options) (*Environment, error) {
	logger, err := createLogger(opts)
	if err != nil {
		return nil, err
	}

	path := opts.ConfigPath
	if path == "" {
		path = DefaultConfigFile
	}
	cfg, err := LoadConfig(path, opts.ConfigRequired)
	if err != nil {
		return nil, err
	}
	environ := opts.Environ
	if environ == nil {
		environ = os.Environ()
	}
	if err := cfg.Override(environ, opts.Params); err != nil {
		return nil, err
	}

	env := &Environment{Config: cfg, Logger: logger, Metrics: prometheus.NewRegistry()}

	var commands map[string]process.CommandConfig
	if cfg.Commands != "" {
		if commands, err = process.LoadCommands(cfg.Commands); err != nil {
			return nil, err
		}
	}
	runner := process.NewRunner(
		process.WithRegistry(commands),
		process.WithInlineExecution(true),
		process.WithLogger(logger),
	)
	engine, err := suite.NewEngine(suite.DefaultEngineID, cfg.Suites,
		suite.WithRunner(runner),
		suite.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	metrics, err := observability.NewMetrics(env.Metrics)
	if err != nil {
		return nil, err
	}

	launcherOpts := []junit5.Option{
		junit5.WithEngines(engine),
		junit5.WithLogger(logger),
		junit5.WithTimeout(cfg.Timeout),
		junit5.WithConfigurationParameters(cfg.Parameters),
		junit5.WithMetrics(metrics),
		junit5.WithEngineFilter(cfg.IncludeEngines, cfg.ExcludeEngines),
		junit5.WithTagFilter(cfg.IncludeTags, cfg.ExcludeTags),
		junit5.WithDisplayNameExclusions(cfg.ExcludeNames...),
	}
	if cfg.Parallelism > 0 {
		launcherOpts = append(launcherOpts, junit5.WithParallelism(cfg.Parallelism))
	}

	results := cfg.Results
	switch results.Backend {
	case "memory":
		env.Results = memory.NewResultStore()
	case "file":
		env.Results = file.NewResultStore(results.Path)
	case "redis":
		client := backend.NewClient(&backend.Options{
			Addr:     results.Address,
			Password: results.Password,
			DB:       results.DB,
		})
		env.closers = append(env.closers, client.Close)

		var storeOpts []redis.Option
		if results.Prefix != "" {
			storeOpts = append(storeOpts, redis.WithPrefix(results.Prefix))
		}
		if results.TTL > 0 {
			storeOpts = append(storeOpts, redis.WithTTL(results.TTL))
		}
		env.Results = redis.NewFromClient(client, storeOpts...)
		lockPrefix := results.Prefix
		if lockPrefix == "" {
			lockPrefix = "junit5:"
		}
		launcherOpts = append(launcherOpts, junit5.WithLocker(redis.NewLocker(client, lockPrefix+"lock:"), "run"))
	}
	launcherOpts = append(launcherOpts, junit5.WithResultStore(env.Results))

	if env.Launcher, err = junit5.New(launcherOpts...); err != nil {
		return nil, err
	}
	logger.Debug("launcher ready", "suites", cfg.Suites, "results", results.Backend)
	return env, nil
}

// Close releases connections opened by Setup.
func (e *Environment) Close() error {
	var first error
	for _, c := range e.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func createLogger(opts Options) (*slog.Logger, error) {
	if opts.LogLevel == "" && !opts.Debug {
		return logging.NewNop(), nil
	}
	level, err := logging.ParseLevel(opts.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("--log-level: %w", err)
	}
	if opts.Debug {
		level = slog.LevelDebug
	}
	return logging.New(logging.Options{Level: level, JSON: opts.LogJSON}), nil
}
