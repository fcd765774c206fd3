// Command cvbridge runs the bridge operations on image files.
//
//	cvbridge -in photo.png -op blur -k 5 -out blurred.bmp
//	cvbridge -in photo.png -op info
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"cvbridge/internal/bridge"
	"cvbridge/internal/config"
	"cvbridge/internal/logger"
	"cvbridge/internal/shutdown"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "cvbridge:", err)
		}
		os.Exit(1)
	}
}

type options struct {
	in         string
	out        string
	op         string
	kernelSize int
	configPath string
	debug      bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("cvbridge", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.in, "in", "", "input image file")
	fs.StringVar(&opts.out, "out", "-", "output file, - for stdout")
	fs.StringVar(&opts.op, "op", "blur", "operation: blur, dilate or info")
	fs.IntVar(&opts.kernelSize, "k", 3, "kernel size (blur side, dilate radius)")
	fs.StringVar(&opts.configPath, "config", "", "config file (toml or yaml)")
	fs.BoolVar(&opts.debug, "debug", false, "enable debug logging")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if opts.in == "" {
		return options{}, errors.New("-in is required")
	}
	switch opts.op {
	case bridge.OpBlur, bridge.OpDilate, "info":
	default:
		return options{}, fmt.Errorf("unknown -op %q", opts.op)
	}
	return opts, nil
}

func run(args []string, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.debug {
		cfg.Debug = true
	}
	if cfg.LogOutput == "stdout" && (opts.out == "-" || opts.op == "info") {
		cfg.LogOutput = "stderr"
	}

	log, closer, err := logger.New(logger.Options{
		Level:  cfg.EffectiveLogLevel(),
		Format: cfg.LogFormat,
		Output: cfg.LogOutput,
		Tag:    cfg.LogTag,
	})
	if err != nil {
		return err
	}

	// closed after the shutdown manager so its final lines reach the output
	defer closer.Close()

	b, err := bridge.New(cfg, log)
	if err != nil {
		return err
	}

	sm := shutdown.NewManager(log, shutdown.DefaultTimeout)
	sm.Register("bridge", b)
	stop := sm.Listen()
	defer sm.Shutdown()
	defer stop()

	return process(sm.Context(), b, opts, stdout)
}

func process(ctx context.Context, b *bridge.Bridge, opts options, stdout io.Writer) error {
	data, err := os.ReadFile(opts.in)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	h, length, err := b.Decode(ctx, data)
	if err != nil {
		return fmt.Errorf("%s: %w", opts.in, err)
	}
	defer b.Release(h)

	var out []byte
	switch opts.op {
	case "info":
		info, err := b.Info(h)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(stdout, "cols=%d rows=%d channels=%d step=%d length=%d\n",
			info.Cols, info.Rows, info.Channels, info.Step, length)
		return err
	case bridge.OpBlur:
		out, err = b.Blur(ctx, h, opts.kernelSize)
	case bridge.OpDilate:
		out, err = b.Dilate(ctx, h, opts.kernelSize)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", opts.op, err)
	}

	if opts.out == "-" {
		_, err = stdout.Write(out)
		return err
	}
	return os.WriteFile(opts.out, out, 0o644)
}
