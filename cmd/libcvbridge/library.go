package main

import (
	"fmt"
	"io"
	"os"
	"sync"

	"cvbridge/internal/bridge"
	"cvbridge/internal/config"
	"cvbridge/internal/logger"
	"cvbridge/internal/shutdown"
	"cvbridge/internal/transfer"

	"github.com/rs/zerolog"
)

// library is one initialized instance of the bridge and its ambient stack.
// The log output is closed after the shutdown manager has finished so its
// last lines are kept.
type library struct {
	bridge   *bridge.Bridge
	log      *logger.ZerologAdapter
	logOut   io.Closer
	shutdown *shutdown.Manager
}

var (
	mu      sync.RWMutex
	current *library

	// fallback reports failures that happen before a configured logger
	// exists.
	fallback = logger.NewZerolog(os.Stderr, zerolog.WarnLevel)

	// outputs boxes every result handed to the caller. It outlives any one
	// library so buffers returned before opencv_shutdown can still be freed.
	outputs = transfer.NewAllocator(fallback, nil)
)

func open(configPath string) (*library, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log, closer, err := logger.New(logger.Options{
		Level:  cfg.EffectiveLogLevel(),
		Format: cfg.LogFormat,
		Output: cfg.LogOutput,
		Tag:    cfg.LogTag,
	})
	if err != nil {
		return nil, err
	}

	b, err := bridge.NewWithAllocator(cfg, log, nil, outputs)
	if err != nil {
		closer.Close()
		return nil, err
	}

	sm := shutdown.NewManager(log, shutdown.DefaultTimeout)
	sm.Register("bridge", b)

	if cfg.Watch && cfg.Path != "" {
		go watchConfig(sm, cfg.Path, b, log)
	}

	return &library{bridge: b, log: log, logOut: closer, shutdown: sm}, nil
}

func watchConfig(sm *shutdown.Manager, path string, b *bridge.Bridge, log logger.Logger) {
	onError := func(err error) {
		log.Error("ConfigWatcher", err, map[string]interface{}{"path": path})
	}
	onChange := func(cfg config.Config) {
		b.Reconfigure(cfg)
		log.Info("ConfigWatcher", "configuration reloaded", map[string]interface{}{
			"debug":     cfg.Debug,
			"log_level": cfg.LogLevel,
		})
	}
	if err := config.Watch(sm.Context(), path, onChange, onError); err != nil {
		onError(err)
	}
}

// initialize opens the library from configPath unless it is already open.
func initialize(configPath string) error {
	mu.Lock()
	defer mu.Unlock()

	if current != nil {
		current.log.Debug("Library", "already initialized", nil)
		return nil
	}

	l, err := open(configPath)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	current = l
	return nil
}

// get returns the open library, initializing it from the environment on
// first use. It returns nil when initialization fails.
func get() *library {
	mu.RLock()
	l := current
	mu.RUnlock()
	if l != nil {
		return l
	}

	if err := initialize(""); err != nil {
		fallback.Error("Library", err, nil)
		return nil
	}

	mu.RLock()
	defer mu.RUnlock()
	return current
}

// closeLibrary shuts the open library down. A later call reinitializes.
func closeLibrary() {
	mu.Lock()
	l := current
	current = nil
	mu.Unlock()

	if l != nil {
		l.shutdown.Shutdown()
		l.logOut.Close()
	}
}

func (l *library) fail(op string, err error) {
	l.log.Debug("Library", op+" failed", map[string]interface{}{
		"error": err.Error(),
	})
}
