package main

import (
	"bytes"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"cvbridge/internal/config"
	"cvbridge/internal/imagetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeInput(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.bmp")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestRunBlurToFile(t *testing.T) {
	t.Setenv(config.EnvConfigPath, "")
	in := writeInput(t, imagetest.WhiteBMP(t, 4, 4))
	out := filepath.Join(t.TempDir(), "out.bmp")

	var stdout, stderr bytes.Buffer
	require.NoError(t, run([]string{"-in", in, "-out", out, "-op", "blur", "-k", "3"}, &stdout, &stderr))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	img := imagetest.DecodeBMP(t, data)
	assert.Equal(t, 4, img.Bounds().Dx())
	assert.True(t, imagetest.IsUniform(img, color.White))
}

func TestRunDilateToStdout(t *testing.T) {
	t.Setenv(config.EnvConfigPath, "")
	in := writeInput(t, imagetest.WhiteBMP(t, 5, 5))

	var stdout, stderr bytes.Buffer
	require.NoError(t, run([]string{"-in", in, "-op", "dilate", "-k", "2"}, &stdout, &stderr))

	img := imagetest.DecodeBMP(t, stdout.Bytes())
	assert.True(t, imagetest.IsUniform(img, color.White))
}

func TestRunInfo(t *testing.T) {
	t.Setenv(config.EnvConfigPath, "")
	in := writeInput(t, imagetest.WhiteBMP(t, 4, 4))

	var stdout, stderr bytes.Buffer
	require.NoError(t, run([]string{"-in", in, "-op", "info"}, &stdout, &stderr))
	assert.Equal(t, "cols=4 rows=4 channels=3 step=12 length=48\n", stdout.String())
}

func TestRunErrors(t *testing.T) {
	t.Setenv(config.EnvConfigPath, "")
	in := writeInput(t, []byte("not an image"))
	good := writeInput(t, imagetest.WhiteBMP(t, 4, 4))

	tests := map[string][]string{
		"missing input":  {"-op", "blur"},
		"unknown op":     {"-in", good, "-op", "erode"},
		"corrupt input":  {"-in", in},
		"missing file":   {"-in", filepath.Join(t.TempDir(), "nope.bmp")},
		"rejected k":     {"-in", good, "-k", "0"},
		"unknown flag":   {"-in", good, "-frobnicate"},
		"missing config": {"-in", good, "-config", filepath.Join(t.TempDir(), "nope.toml")},
	}

	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			assert.Error(t, run(args, &stdout, &stderr))
		})
	}
}

func TestRunLogsShutdownToFile(t *testing.T) {
	t.Setenv(config.EnvConfigPath, "")
	dir := t.TempDir()
	logPath := filepath.Join(dir, "cvbridge.log")
	cfgPath := filepath.Join(dir, "cvbridge.toml")
	body := "log_format = \"json\"\nlog_output = \"" + filepath.ToSlash(logPath) + "\"\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o644))
	in := writeInput(t, imagetest.WhiteBMP(t, 4, 4))

	var stdout, stderr bytes.Buffer
	require.NoError(t, run([]string{"-in", in, "-op", "info", "-config", cfgPath}, &stdout, &stderr))

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "shutdown sequence completed")
}
