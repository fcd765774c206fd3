// Package transfer hands Go byte slices to foreign callers as C heap blocks
// and takes them back. Every block it issues is released with the matching
// C free; pointers it did not issue are refused.
package transfer

// #include <stdlib.h>
import "C"

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"cvbridge/internal/debug/memtracker"
	"cvbridge/internal/logger"
)

var (
	ErrUnknownBuffer = errors.New("buffer was not issued by this allocator")
	ErrEmptyBuffer   = errors.New("refusing to box an empty buffer")
)

// Tracker receives allocation events. *memtracker.Tracker satisfies it.
type Tracker interface {
	TrackAllocation(ptr uintptr, size int64, tag string)
	TrackDeallocation(ptr uintptr, tag string) bool
}

type Allocator struct {
	mu      sync.Mutex
	live    map[uintptr]int
	bytes   int64
	tracker Tracker
	log     logger.Logger
}

func NewAllocator(log logger.Logger, tracker Tracker) *Allocator {
	return &Allocator{
		live:    make(map[uintptr]int),
		tracker: tracker,
		log:     log,
	}
}

// Box copies data into a new C heap block of exactly len(data) bytes.
func (a *Allocator) Box(data []byte) (unsafe.Pointer, error) {
	if len(data) == 0 {
		return nil, ErrEmptyBuffer
	}

	p := C.CBytes(data)
	if p == nil {
		return nil, fmt.Errorf("malloc of %d bytes failed", len(data))
	}

	key := uintptr(p)
	a.mu.Lock()
	a.live[key] = len(data)
	a.bytes += int64(len(data))
	a.mu.Unlock()

	if a.tracker != nil {
		a.tracker.TrackAllocation(key, int64(len(data)), memtracker.TagOutput)
	}
	return p, nil
}

// Free releases a block issued by Box. Unknown and already freed pointers
// return ErrUnknownBuffer and are left alone.
func (a *Allocator) Free(p unsafe.Pointer) error {
	if p == nil {
		return ErrUnknownBuffer
	}

	key := uintptr(p)
	a.mu.Lock()
	size, ok := a.live[key]
	if ok {
		delete(a.live, key)
		a.bytes -= int64(size)
	}
	a.mu.Unlock()

	if !ok {
		a.log.Warning("Transfer", "free of unknown buffer", map[string]interface{}{
			"ptr": fmt.Sprintf("%#x", key),
		})
		return ErrUnknownBuffer
	}

	if a.tracker != nil {
		a.tracker.TrackDeallocation(key, memtracker.TagOutput)
	}
	C.free(p)
	return nil
}

// Outstanding reports blocks issued and not yet freed.
func (a *Allocator) Outstanding() (int, int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.live), a.bytes
}

// Shutdown logs blocks the caller never freed. They are not released here;
// the caller may still be reading them.
func (a *Allocator) Shutdown() {
	count, size := a.Outstanding()
	if count == 0 {
		return
	}
	a.log.Warning("Transfer", "output buffers not freed by caller", map[string]interface{}{
		"count": count,
		"bytes": size,
	})
}
