package logger

import (
	"io"
	"sync"

	"github.com/rs/zerolog"
)

type ZerologAdapter struct {
	mu     sync.RWMutex
	logger zerolog.Logger
}

func NewZerolog(writer io.Writer, level zerolog.Level) *ZerologAdapter {
	logger := zerolog.New(writer).
		Level(level).
		With().
		Timestamp().
		Logger()

	return &ZerologAdapter{logger: logger}
}

// NewNop returns an adapter that drops everything.
func NewNop() *ZerologAdapter {
	return &ZerologAdapter{logger: zerolog.Nop()}
}

// SetLevel changes verbosity without rebuilding the output chain.
func (z *ZerologAdapter) SetLevel(level zerolog.Level) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.logger = z.logger.Level(level)
}

func (z *ZerologAdapter) GetLevel() zerolog.Level {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return z.logger.GetLevel()
}

func (z *ZerologAdapter) current() *zerolog.Logger {
	z.mu.RLock()
	defer z.mu.RUnlock()
	l := z.logger
	return &l
}

func (z *ZerologAdapter) Info(component, message string, fields map[string]interface{}) {
	event := z.current().Info().Str("component", component)
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg(message)
}

func (z *ZerologAdapter) Error(component string, err error, fields map[string]interface{}) {
	event := z.current().Error().Str("component", component).Err(err)
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg("operation failed")
}

func (z *ZerologAdapter) Warning(component, message string, fields map[string]interface{}) {
	event := z.current().Warn().Str("component", component)
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg(message)
}

func (z *ZerologAdapter) Debug(component, message string, fields map[string]interface{}) {
	event := z.current().Debug().Str("component", component)
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg(message)
}
