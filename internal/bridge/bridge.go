// Package bridge decodes images into handle-addressed OpenCV matrices and
// produces blurred or dilated re-encodings of them.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"cvbridge/internal/config"
	"cvbridge/internal/debug/memtracker"
	"cvbridge/internal/debug/timing"
	"cvbridge/internal/logger"
	"cvbridge/internal/opencv/codec"
	"cvbridge/internal/opencv/memory"
	"cvbridge/internal/opencv/safe"
	"cvbridge/internal/processing/filters"
	"cvbridge/internal/transfer"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"
)

type Handle = memory.Handle

const NullHandle = memory.NullHandle

// Operation names used for timing and logs.
const (
	OpDecode = "decode"
	OpBlur   = "blur"
	OpDilate = "dilate"
	OpEncode = "encode"
)

// levelSetter is implemented by loggers whose level can change at runtime.
type levelSetter interface {
	SetLevel(level zerolog.Level)
}

type Bridge struct {
	log        logger.Logger
	mem        *memory.Manager
	memTracker *memtracker.Tracker
	timing     *timing.Tracker
	allocator  *transfer.Allocator
	blur       *filters.BoxBlur
	dilate     *filters.Dilate
	format     codec.Format

	levelMu  sync.Mutex
	logLevel string

	debug  atomic.Bool
	closed atomic.Bool
}

func New(cfg config.Config, log logger.Logger) (*Bridge, error) {
	if log == nil {
		log = logger.NewNop()
	}
	memTracker := memtracker.NewTracker(log, cfg.Debug)
	return NewWithAllocator(cfg, log, memTracker, transfer.NewAllocator(log, memTracker))
}

// NewWithAllocator builds a Bridge that boxes its results through alloc.
// alloc may outlive the Bridge, so buffers handed out before Shutdown stay
// freeable by a later instance. memTracker may be nil.
func NewWithAllocator(cfg config.Config, log logger.Logger, memTracker *memtracker.Tracker, alloc *transfer.Allocator) (*Bridge, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	format, err := codec.ParseFormat(cfg.Encoding)
	if err != nil {
		return nil, err
	}
	policy, err := filters.ParseKernelPolicy(cfg.KernelPolicy)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNop()
	}
	if memTracker == nil {
		memTracker = memtracker.NewTracker(log, cfg.Debug)
	}
	mem := memory.NewManager(log, memTracker, cfg.MaxHandles, cfg.ScratchPoolSize)

	timings := timing.NewTracker()
	timings.SetEnabled(cfg.Debug)

	b := &Bridge{
		log:        log,
		mem:        mem,
		memTracker: memTracker,
		timing:     timings,
		allocator:  alloc,
		blur:       filters.NewBoxBlur(mem, policy, cfg.MaxKernelSize),
		dilate:     filters.NewDilate(mem, policy, cfg.MaxKernelSize),
		format:     format,
		logLevel:   cfg.LogLevel,
	}
	b.debug.Store(cfg.Debug)

	log.Info("Bridge", "initialized", map[string]interface{}{
		"encoding":        string(format),
		"kernel_policy":   string(policy),
		"max_kernel_size": cfg.MaxKernelSize,
		"debug":           cfg.Debug,
	})
	return b, nil
}

// Decode decodes data and returns a handle to the image along with its
// pixel storage size (row stride × rows).
func (b *Bridge) Decode(ctx context.Context, data []byte) (Handle, int, error) {
	if err := b.check(ctx); err != nil {
		return NullHandle, 0, err
	}

	stop := b.timing.Start(OpDecode)
	mat, err := codec.Decode(data, b.memTracker, memtracker.TagDecoded)
	elapsed := stop()
	if err != nil {
		b.log.Debug("Bridge", "decode failed", map[string]interface{}{
			"input_length": len(data),
			"error":        err.Error(),
		})
		return NullHandle, 0, err
	}

	length := mat.ByteLength()
	width, height, channels := mat.Cols(), mat.Rows(), mat.Channels()

	h, err := b.mem.Register(mat)
	if err != nil {
		mat.Close()
		return NullHandle, 0, err
	}

	if b.debug.Load() {
		fields := map[string]interface{}{
			"handle":       h.String(),
			"input_length": len(data),
			"length":       length,
			"width":        width,
			"height":       height,
			"channels":     channels,
			"duration":     elapsed.String(),
		}
		if hdr, err := codec.Sniff(data); err == nil {
			fields["format"] = hdr.Format
		}
		b.log.Debug("Bridge", "decoded", fields)
	}
	return h, length, nil
}

// Blur box-blurs the image behind h with a kernelSize × kernelSize kernel
// and returns the re-encoded result.
func (b *Bridge) Blur(ctx context.Context, h Handle, kernelSize int) ([]byte, error) {
	return b.transform(ctx, OpBlur, b.blur, h, kernelSize)
}

// Dilate dilates the image behind h with an elliptical element of radius
// kernelSize and returns the re-encoded result.
func (b *Bridge) Dilate(ctx context.Context, h Handle, kernelSize int) ([]byte, error) {
	return b.transform(ctx, OpDilate, b.dilate, h, kernelSize)
}

func (b *Bridge) transform(ctx context.Context, op string, f filters.Filter, h Handle, kernelSize int) ([]byte, error) {
	if err := b.check(ctx); err != nil {
		return nil, err
	}

	src, err := b.mem.Lookup(h)
	if err != nil {
		return nil, err
	}

	stop := b.timing.Start(op)
	dst, err := f.Apply(ctx, src, kernelSize)
	filterTime := stop()
	if err != nil {
		return nil, b.mapMatError(h, err)
	}
	defer b.mem.PutScratch(dst)

	stopEncode := b.timing.Start(OpEncode)
	out, err := codec.Encode(dst, b.format)
	encodeTime := stopEncode()
	if err != nil {
		return nil, err
	}

	if b.debug.Load() {
		b.log.Debug("Bridge", op+" done", map[string]interface{}{
			"handle":        h.String(),
			"kernel_size":   kernelSize,
			"width":         dst.Cols(),
			"height":        dst.Rows(),
			"output_length": len(out),
			"filter_time":   filterTime.String(),
			"encode_time":   encodeTime.String(),
		})
	}
	return out, nil
}

// mapMatError turns a Mat closed between lookup and use into a stale
// handle error.
func (b *Bridge) mapMatError(h Handle, err error) error {
	switch {
	case errors.Is(err, safe.ErrInvalidMat):
		return fmt.Errorf("%w: %s", ErrStaleHandle, h)
	case errors.Is(err, safe.ErrEmptyMat):
		return fmt.Errorf("%w: %s", ErrEmptyMat, h)
	default:
		return err
	}
}

func (b *Bridge) check(ctx context.Context) error {
	if b.closed.Load() {
		return ErrClosed
	}
	return ctx.Err()
}

// Release frees the image behind h. The handle is invalid afterwards.
func (b *Bridge) Release(h Handle) error {
	return b.mem.Release(h)
}

type ImageInfo struct {
	Rows     int
	Cols     int
	Channels int
	Step     int
	Type     gocv.MatType
	Length   int
}

func (b *Bridge) Info(h Handle) (ImageInfo, error) {
	mat, err := b.mem.Lookup(h)
	if err != nil {
		return ImageInfo{}, err
	}

	var info ImageInfo
	err = mat.Read(func(m gocv.Mat) error {
		info = ImageInfo{
			Rows:     m.Rows(),
			Cols:     m.Cols(),
			Channels: m.Channels(),
			Step:     m.Step(),
			Type:     m.Type(),
			Length:   m.Step() * m.Rows(),
		}
		return nil
	})
	if err != nil {
		return ImageInfo{}, b.mapMatError(h, err)
	}
	return info, nil
}

// Allocator is the transfer box used to hand results across the C ABI.
func (b *Bridge) Allocator() *transfer.Allocator {
	return b.allocator
}

// SetDebug toggles trace logging, latency sampling and allocation stack
// capture. Turning debug on starts latency samples afresh.
func (b *Bridge) SetDebug(enabled bool) {
	if was := b.debug.Swap(enabled); enabled && !was {
		b.timing.Reset("")
	}
	b.timing.SetEnabled(enabled)
	b.memTracker.SetStackTracingEnabled(enabled)

	b.levelMu.Lock()
	defer b.levelMu.Unlock()

	if ls, ok := b.log.(levelSetter); ok {
		level := logger.ParseLevel(b.logLevel)
		if enabled {
			level = zerolog.DebugLevel
		}
		ls.SetLevel(level)
	}
}

func (b *Bridge) Debug() bool {
	return b.debug.Load()
}

// Reconfigure applies the settings that may change while images are live.
func (b *Bridge) Reconfigure(cfg config.Config) {
	b.levelMu.Lock()
	b.logLevel = cfg.LogLevel
	b.levelMu.Unlock()

	b.SetDebug(cfg.Debug)
}

// Shutdown releases every live handle and drains the scratch pool. Scratch
// Mats returned by transforms still in flight are closed rather than pooled.
// Output buffers still held by the caller are reported, not freed.
func (b *Bridge) Shutdown() {
	if !b.closed.CompareAndSwap(false, true) {
		return
	}

	closed := b.mem.Shutdown()
	b.allocator.Shutdown()

	for _, leak := range b.memTracker.DetectLeaks(0) {
		if leak.Tag == memtracker.TagOutput {
			continue
		}
		b.log.Warning("Bridge", "allocation outlived shutdown", map[string]interface{}{
			"tag":  leak.Tag,
			"size": leak.Size,
			"age":  time.Since(leak.AllocatedAt).String(),
		})
	}

	b.log.Info("Bridge", "shut down", map[string]interface{}{
		"mats_closed": closed,
	})
}
