// Package config loads geco's settings from built-in defaults, a YAML file,
// GECO_* environment variables and command-line flags, in increasing order of
// precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/minimum2scp/geco/internal/cache"
	"github.com/minimum2scp/geco/internal/logging"
)

const (
	// EnvPrefix prefixes every environment override, e.g. GECO_CACHE_TTL.
	EnvPrefix = "GECO_"

	// EnvConfigFile names the config file when --config is not given.
	EnvConfigFile = "GECO_CONFIG"

	maxConfigFileSize = 1024 * 1024
)

// ErrInvalidConfig wraps validation failures.
var ErrInvalidConfig = errors.New("invalid configuration")

// defaults are loaded first so every key exists before file, env and flags.
const defaults = `
cache:
  file: ""
  ttl: 24h
filter:
  command: peco
  args: []
  fallback: true
refresh:
  max_parallel: 10
logging:
  level: info
  format: console
  file: ""
gcloud:
  binary: gcloud
`

// Config is the effective geco configuration.
type Config struct {
	Cache   CacheConfig   `koanf:"cache"   yaml:"cache"`
	Filter  FilterConfig  `koanf:"filter"  yaml:"filter"`
	Refresh RefreshConfig `koanf:"refresh" yaml:"refresh"`
	Logging LoggingConfig `koanf:"logging" yaml:"logging"`
	GCloud  GCloudConfig  `koanf:"gcloud"  yaml:"gcloud"`

	// Path is the config file that was read, empty when none was.
	Path string `koanf:"-" yaml:"-"`
}

// CacheConfig locates the inventory cache and sets its lifetime.
type CacheConfig struct {
	// File is the cache file; empty means $TMPDIR/gcloud-cache.<user>.json.
	File string `koanf:"file" yaml:"file"`
	// TTL accepts integer seconds or a Go duration.
	TTL string `koanf:"ttl" yaml:"ttl"`
}

// FilterConfig selects the interactive filter.
type FilterConfig struct {
	// Command is an executable such as peco or fzf, or "builtin".
	Command string   `koanf:"command" yaml:"command"`
	Args    []string `koanf:"args"    yaml:"args"`
	// Fallback uses the builtin filter when Command is not installed.
	Fallback bool `koanf:"fallback" yaml:"fallback"`
}

// RefreshConfig tunes gencache.
type RefreshConfig struct {
	MaxParallel int `koanf:"max_parallel" yaml:"max_parallel"`
}

// LoggingConfig controls the diagnostic logger.
type LoggingConfig struct {
	Level  string `koanf:"level"  yaml:"level"`
	Format string `koanf:"format" yaml:"format"`
	File   string `koanf:"file"   yaml:"file"`
}

// GCloudConfig locates the gcloud CLI.
type GCloudConfig struct {
	Binary string `koanf:"binary" yaml:"binary"`
}

// DefaultPath returns ~/.config/geco/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "geco", "config.yaml"), nil
}

// Load builds the effective configuration.
//
// The file is path when given, else $GECO_CONFIG, else DefaultPath. A missing
// default file is not an error; a missing file that was asked for is.
// Environment variables map as GECO_CACHE_TTL -> cache.ttl and
// GECO_REFRESH_MAX_PARALLEL -> refresh.max_parallel; GECO_FILTER_ARGS is
// split on whitespace. overrides carry flag values keyed like the file, and
// win over everything else.
func Load(path string, overrides map[string]any) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider([]byte(defaults)), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	explicit := path != ""
	if !explicit {
		path = os.Getenv(EnvConfigFile)
		explicit = path != ""
	}
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	loaded, err := loadFile(k, path, explicit)
	if err != nil {
		return nil, err
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	for key, v := range overrides {
		if err := k.Set(key, v); err != nil {
			return nil, fmt.Errorf("failed to apply %s: %w", key, err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if loaded {
		cfg.Path = path
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(k *koanf.Koanf, path string, explicit bool) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return false, nil
		}
		return false, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return false, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.IsDir() {
		return false, fmt.Errorf("config path %s is a directory", path)
	}
	if info.Size() > maxConfigFileSize {
		return false, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
		return false, fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	return true, nil
}

// envKey maps GECO_SECTION_FIELD_NAME to section.field_name.
func envKey(name, value string) (string, any) {
	if name == EnvConfigFile {
		return "", nil
	}
	lower := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return "", nil
	}
	key := section + "." + field
	if key == "filter.args" {
		return key, strings.Fields(value)
	}
	return key, value
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if _, err := cache.ParseTTL(c.Cache.TTL); err != nil {
		return fmt.Errorf("%w: cache.ttl: %w", ErrInvalidConfig, err)
	}
	if c.Refresh.MaxParallel < 1 {
		return fmt.Errorf("%w: refresh.max_parallel must be at least 1, got %d", ErrInvalidConfig, c.Refresh.MaxParallel)
	}
	if c.Filter.Command == "" {
		return fmt.Errorf("%w: filter.command is empty", ErrInvalidConfig)
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Logging.Level)); err != nil {
		return fmt.Errorf("%w: logging.level: %w", ErrInvalidConfig, err)
	}
	switch c.Logging.Format {
	case logging.FormatConsole, logging.FormatJSON:
	default:
		return fmt.Errorf("%w: logging.format must be %q or %q, got %q",
			ErrInvalidConfig, logging.FormatConsole, logging.FormatJSON, c.Logging.Format)
	}
	return nil
}

// CacheTTL returns the parsed cache.ttl.
func (c *Config) CacheTTL() time.Duration {
	ttl, err := cache.ParseTTL(c.Cache.TTL)
	if err != nil {
		return cache.DefaultTTL
	}
	return ttl
}

// ToLoggingConfig converts the logging section for the logging package.
// A configured file switches output to that file.
func (lc LoggingConfig) ToLoggingConfig() logging.Config {
	output := logging.OutputStderr
	if lc.File != "" {
		output = logging.OutputFile
	}
	return logging.Config{
		Level:  lc.Level,
		Format: lc.Format,
		Output: output,
		File:   lc.File,
	}
}

// WriteYAML prints the configuration as YAML.
func (c *Config) WriteYAML(w io.Writer) error {
	enc := yamlv3.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return enc.Close()
}
