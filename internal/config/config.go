// Package config holds the configuration object injected into the bridge at
// initialization. Values come from defaults, then an optional TOML or YAML
// file, then CVBRIDGE_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Default configuration.
const (
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "console"
	DefaultLogOutput       = "stderr"
	DefaultLogTag          = "NATIVE"
	DefaultEncoding        = "bmp"
	DefaultKernelPolicy    = "reject"
	DefaultMaxKernelSize   = 255
	DefaultScratchPoolSize = 4
	DefaultMaxHandles      = 1 << 16
)

// EnvConfigPath names the variable consulted when Load is given no path.
const EnvConfigPath = "CVBRIDGE_CONFIG"

type Config struct {
	Debug     bool   `toml:"debug" yaml:"debug"`
	LogLevel  string `toml:"log_level" yaml:"log_level"`
	LogFormat string `toml:"log_format" yaml:"log_format"`
	LogOutput string `toml:"log_output" yaml:"log_output"`
	LogTag    string `toml:"log_tag" yaml:"log_tag"`

	// Encoding is the container used for blur/dilate results.
	Encoding        string `toml:"encoding" yaml:"encoding"`
	KernelPolicy    string `toml:"kernel_policy" yaml:"kernel_policy"`
	MaxKernelSize   int    `toml:"max_kernel_size" yaml:"max_kernel_size"`
	ScratchPoolSize int    `toml:"scratch_pool_size" yaml:"scratch_pool_size"`
	MaxHandles      int    `toml:"max_handles" yaml:"max_handles"`

	// Watch reloads the config file and re-applies the log level on change.
	Watch bool `toml:"watch" yaml:"watch"`

	// Path is the file the config was loaded from, if any.
	Path string `toml:"-" yaml:"-"`
}

func Default() Config {
	return Config{
		LogLevel:        DefaultLogLevel,
		LogFormat:       DefaultLogFormat,
		LogOutput:       DefaultLogOutput,
		LogTag:          DefaultLogTag,
		Encoding:        DefaultEncoding,
		KernelPolicy:    DefaultKernelPolicy,
		MaxKernelSize:   DefaultMaxKernelSize,
		ScratchPoolSize: DefaultScratchPoolSize,
		MaxHandles:      DefaultMaxHandles,
	}
}

// Load builds a Config. An empty path falls back to $CVBRIDGE_CONFIG; no
// file at all is fine.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse yaml config %s: %w", path, err)
		}
	default:
		if _, err := toml.Decode(string(data), c); err != nil {
			return fmt.Errorf("failed to parse toml config %s: %w", path, err)
		}
	}

	c.Path = path
	return nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"CVBRIDGE_LOG_LEVEL":     &c.LogLevel,
		"CVBRIDGE_LOG_FORMAT":    &c.LogFormat,
		"CVBRIDGE_LOG_OUTPUT":    &c.LogOutput,
		"CVBRIDGE_LOG_TAG":       &c.LogTag,
		"CVBRIDGE_ENCODING":      &c.Encoding,
		"CVBRIDGE_KERNEL_POLICY": &c.KernelPolicy,
	}
	for name, dst := range strs {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	bools := map[string]*bool{
		"CVBRIDGE_DEBUG": &c.Debug,
		"CVBRIDGE_WATCH": &c.Watch,
	}
	for name, dst := range bools {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, v, err)
		}
		*dst = b
	}

	ints := map[string]*int{
		"CVBRIDGE_MAX_KERNEL_SIZE":   &c.MaxKernelSize,
		"CVBRIDGE_SCRATCH_POOL_SIZE": &c.ScratchPoolSize,
		"CVBRIDGE_MAX_HANDLES":       &c.MaxHandles,
	}
	for name, dst := range ints {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, v, err)
		}
		*dst = n
	}
	return nil
}

func (c Config) Validate() error {
	switch c.Encoding {
	case "bmp", "png", "jpg":
	default:
		return fmt.Errorf("unsupported encoding %q (want bmp, png or jpg)", c.Encoding)
	}

	switch c.KernelPolicy {
	case "reject", "clamp":
	default:
		return fmt.Errorf("unsupported kernel policy %q (want reject or clamp)", c.KernelPolicy)
	}

	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("unsupported log format %q", c.LogFormat)
	}

	if c.MaxKernelSize < 1 {
		return fmt.Errorf("max kernel size must be positive, got %d", c.MaxKernelSize)
	}
	if c.ScratchPoolSize < 0 {
		return fmt.Errorf("scratch pool size must not be negative, got %d", c.ScratchPoolSize)
	}
	if c.MaxHandles < 1 {
		return fmt.Errorf("max handles must be positive, got %d", c.MaxHandles)
	}
	return nil
}

// EffectiveLogLevel is debug whenever the debug flag is on.
func (c Config) EffectiveLogLevel() string {
	if c.Debug {
		return "debug"
	}
	return c.LogLevel
}
