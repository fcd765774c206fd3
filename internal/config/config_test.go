package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvConfigPath, "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "info", cfg.EffectiveLogLevel())
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bridge.toml", `
debug = true
encoding = "png"
kernel_policy = "clamp"
max_kernel_size = 31
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "png", cfg.Encoding)
	assert.Equal(t, "clamp", cfg.KernelPolicy)
	assert.Equal(t, 31, cfg.MaxKernelSize)
	assert.Equal(t, DefaultLogTag, cfg.LogTag)
	assert.Equal(t, path, cfg.Path)
	assert.Equal(t, "debug", cfg.EffectiveLogLevel())
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bridge.yaml", "log_format: json\nscratch_pool_size: 0\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 0, cfg.ScratchPoolSize)
}

func TestLoadFromEnvPath(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bridge.toml", `encoding = "jpg"`)
	t.Setenv(EnvConfigPath, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "jpg", cfg.Encoding)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bridge.toml", "debug = false\nencoding = \"png\"\n")
	t.Setenv("CVBRIDGE_DEBUG", "true")
	t.Setenv("CVBRIDGE_ENCODING", "bmp")
	t.Setenv("CVBRIDGE_MAX_KERNEL_SIZE", "9")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "bmp", cfg.Encoding)
	assert.Equal(t, 9, cfg.MaxKernelSize)
}

func TestEnvOverridesEveryField(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	env := map[string]string{
		"CVBRIDGE_LOG_LEVEL":         "warn",
		"CVBRIDGE_LOG_FORMAT":        "json",
		"CVBRIDGE_LOG_OUTPUT":        "stdout",
		"CVBRIDGE_LOG_TAG":           "IMGPROC",
		"CVBRIDGE_KERNEL_POLICY":     "clamp",
		"CVBRIDGE_SCRATCH_POOL_SIZE": "0",
		"CVBRIDGE_MAX_HANDLES":       "12",
		"CVBRIDGE_WATCH":             "1",
	}
	for k, v := range env {
		t.Setenv(k, v)
	}

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "stdout", cfg.LogOutput)
	assert.Equal(t, "IMGPROC", cfg.LogTag)
	assert.Equal(t, "clamp", cfg.KernelPolicy)
	assert.Equal(t, 0, cfg.ScratchPoolSize)
	assert.Equal(t, 12, cfg.MaxHandles)
	assert.True(t, cfg.Watch)
}

func TestEnvRejectsMalformedValues(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	for _, name := range []string{"CVBRIDGE_MAX_HANDLES", "CVBRIDGE_SCRATCH_POOL_SIZE", "CVBRIDGE_WATCH"} {
		t.Run(name, func(t *testing.T) {
			t.Setenv(name, "lots")
			_, err := Load("")
			assert.ErrorContains(t, err, name)
		})
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)

	bad := writeFile(t, dir, "bad.toml", "encoding = ")
	_, err = Load(bad)
	assert.Error(t, err)

	t.Setenv(EnvConfigPath, "")
	t.Setenv("CVBRIDGE_DEBUG", "maybe")
	_, err = Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"encoding":    func(c *Config) { c.Encoding = "gif" },
		"policy":      func(c *Config) { c.KernelPolicy = "wrap" },
		"format":      func(c *Config) { c.LogFormat = "xml" },
		"max kernel":  func(c *Config) { c.MaxKernelSize = 0 },
		"pool size":   func(c *Config) { c.ScratchPoolSize = -1 },
		"max handles": func(c *Config) { c.MaxHandles = 0 },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestWatchReloads(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	dir := t.TempDir()
	path := writeFile(t, dir, "bridge.toml", "debug = false\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan Config, 8)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(c Config) {
			select {
			case changes <- c:
			default:
			}
		}, nil)
	}()

	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("debug = true\n"), 0o644))

	// a truncating write can surface an intermediate empty file first
	deadline := time.After(5 * time.Second)
	for reloaded := false; !reloaded; {
		select {
		case cfg := <-changes:
			reloaded = cfg.Debug
		case <-deadline:
			t.Fatal("no reload observed")
		}
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
