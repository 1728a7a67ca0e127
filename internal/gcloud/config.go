package gcloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/minimum2scp/geco/internal/shell"
)

// DefaultBinary is the gcloud executable looked up in PATH.
const DefaultBinary = "gcloud"

// ErrInvalidConfig indicates gcloud printed something that is not its JSON
// configuration.
var ErrInvalidConfig = errors.New("invalid gcloud configuration output")

// Config is the active gcloud configuration keyed by section then property,
// as printed by `gcloud config list --all --format json`.
type Config map[string]map[string]any

// Get returns a property addressed as "section/key", e.g. "core/project".
// Unset properties return "".
func (c Config) Get(path string) string {
	section, key, ok := strings.Cut(path, "/")
	if !ok {
		return ""
	}
	v, ok := c[section][key]
	if !ok || v == nil {
		return ""
	}
	if s, isString := v.(string); isString {
		return s
	}
	return fmt.Sprint(v)
}

// Project returns core/project.
func (c Config) Project() string {
	return c.Get("core/project")
}

// Account returns core/account.
func (c Config) Account() string {
	return c.Get("core/account")
}

// ConfigReader runs gcloud to read its configuration.
type ConfigReader struct {
	Runner shell.Runner
	Binary string
}

// NewConfigReader creates a ConfigReader. An empty binary means DefaultBinary.
func NewConfigReader(runner shell.Runner, binary string) *ConfigReader {
	if binary == "" {
		binary = DefaultBinary
	}
	return &ConfigReader{Runner: runner, Binary: binary}
}

// Read returns the active configuration.
func (r *ConfigReader) Read(ctx context.Context) (Config, error) {
	cmd := shell.NewCommand(r.Binary, "config", "list", "--all", "--format", "json")
	stdout, stderr, err := r.Runner.Output(ctx, nil, cmd)
	if err != nil {
		if msg := strings.TrimSpace(string(stderr)); msg != "" {
			return nil, fmt.Errorf("running %s: %w: %s", cmd, err, msg)
		}
		return nil, fmt.Errorf("running %s: %w", cmd, err)
	}
	return ParseConfig(stdout)
}

// ParseConfig decodes gcloud's JSON configuration listing.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if cfg == nil {
		cfg = Config{}
	}
	return cfg, nil
}
