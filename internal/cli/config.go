package cli

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tuchang/junit5/pkg/domain"
)

// DefaultConfigFile is read from the working directory when --config is not set.
const DefaultConfigFile = "junit5.yaml"

// EnvPrefix marks environment variables that become configuration parameters.
const EnvPrefix = "JUNIT5_"

// Config is the content of junit5.yaml.
type Config struct {
	// Suites are the files and directories scanned for *.suite.yaml and *.suite.hcl.
	Suites      []string          `yaml:"suites"`
	Commands    string            `yaml:"commands"`
	Parallelism int               `yaml:"parallelism"`
	Timeout     time.Duration     `yaml:"timeout"`
	Parameters  map[string]string `yaml:"parameters"`

	IncludeTags    []string `yaml:"include_tags"`
	ExcludeTags    []string `yaml:"exclude_tags"`
	IncludeEngines []string `yaml:"include_engines"`
	ExcludeEngines []string `yaml:"exclude_engines"`
	ExcludeNames   []string `yaml:"exclude_display_names"`

	Results ResultsConfig `yaml:"results"`
}

// ResultsConfig selects where run results are kept.
type ResultsConfig struct {
	// Backend is file (default), memory or redis.
	Backend  string        `yaml:"backend"`
	Path     string        `yaml:"path"`
	Address  string        `yaml:"address"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

// LoadConfig reads path. A missing file yields the defaults unless required.
func LoadConfig(path string, required bool) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist) && !required:
	case err != nil:
		return cfg, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, domain.NewConfigurationError("load", path, err)
		}
	}
	return cfg.withDefaults(filepath.Dir(path))
}

// withDefaults fills unset fields and resolves relative paths against base,
// the directory of the configuration file.
func (c Config) withDefaults(base string) (Config, error) {
	if len(c.Suites) == 0 {
		c.Suites = []string{"."}
	}
	for i, s := range c.Suites {
		c.Suites[i] = resolve(base, s)
	}
	if c.Commands != "" {
		c.Commands = resolve(base, c.Commands)
	}
	if c.Results.Path != "" {
		c.Results.Path = resolve(base, c.Results.Path)
	}
	if c.Parameters == nil {
		c.Parameters = map[string]string{}
	}
	switch c.Results.Backend {
	case "":
		c.Results.Backend = "file"
	case "file", "memory":
	case "redis":
		if c.Results.Address == "" {
			c.Results.Address = "localhost:6379"
		}
	default:
		return c, domain.NewConfigurationError("load", "results.backend", fmt.Errorf("unknown backend %q", c.Results.Backend))
	}
	if c.Parallelism < 0 {
		return c, domain.NewConfigurationError("load", "parallelism", fmt.Errorf("must not be negative"))
	}
	return c, nil
}

func resolve(base, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

// Override applies environment parameters, then --param flags, over the
// parameters of the file.
func (c *Config) Override(environ []string, params []string) error {
	maps.Copy(c.Parameters, EnvParameters(environ))
	flags, err := ParseParams(params)
	if err != nil {
		return err
	}
	maps.Copy(c.Parameters, flags)
	return nil
}

// EnvParameters maps JUNIT5_ variables to parameter keys: the name is lower
// cased, "__" becomes "-" and "_" becomes ".", so
// JUNIT5_CONDITIONS_ENABLED__IF sets junit5.conditions.enabled-if.
func EnvParameters(environ []string) map[string]string {
	params := map[string]string{}
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, EnvPrefix) || len(name) == len(EnvPrefix) {
			continue
		}
		key := strings.ToLower(name)
		key = strings.ReplaceAll(key, "__", "-")
		key = strings.ReplaceAll(key, "_", ".")
		params[key] = value
	}
	return params
}

// ParseParams parses key=value pairs.
func ParseParams(pairs []string) (map[string]string, error) {
	params := map[string]string{}
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, domain.NewConfigurationError("param", p, fmt.Errorf("expected key=value"))
		}
		params[key] = value
	}
	return params, nil
}
