// Package memtracker records native allocations handed across the bridge so
// that leaks and foreign frees can be detected.
package memtracker

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Allocation tags used by the bridge.
const (
	TagDecoded = "decoded_image"
	TagScratch = "scratch_mat"
	TagOutput  = "output_buffer"
)

type AllocationInfo struct {
	Ptr         uintptr
	Size        int64
	Tag         string
	AllocatedAt time.Time
	StackTrace  []uintptr
}

type MemoryStats struct {
	TotalAllocated   int64
	TotalDeallocated int64
	CurrentlyActive  int64
	AllocationCount  int64
	UnknownFrees     int64
}

// Logger is the subset of logger.Logger the tracker reports through.
type Logger interface {
	Debug(component, message string, fields map[string]interface{})
}

type Tracker struct {
	allocations  map[uintptr]AllocationInfo
	mu           sync.RWMutex
	log          Logger
	stackTraces  atomic.Bool
	totalAlloc   int64
	totalDealloc int64
	allocCount   int64
	unknownFrees int64
}

func NewTracker(log Logger, enableStackTraces bool) *Tracker {
	mt := &Tracker{
		allocations: make(map[uintptr]AllocationInfo),
		log:         log,
	}
	mt.stackTraces.Store(enableStackTraces)
	return mt
}

func (mt *Tracker) TrackAllocation(ptr uintptr, size int64, tag string) {
	atomic.AddInt64(&mt.totalAlloc, size)
	atomic.AddInt64(&mt.allocCount, 1)

	info := AllocationInfo{
		Ptr:         ptr,
		Size:        size,
		Tag:         tag,
		AllocatedAt: time.Now(),
	}

	if mt.stackTraces.Load() {
		var pcs [32]uintptr
		n := runtime.Callers(3, pcs[:])
		info.StackTrace = pcs[:n]
	}

	mt.mu.Lock()
	mt.allocations[ptr] = info
	mt.mu.Unlock()

	if mt.log != nil {
		mt.log.Debug("MemTracker", "allocated", map[string]interface{}{
			"tag":  tag,
			"size": size,
		})
	}
}

// TrackDeallocation reports whether ptr was a tracked allocation.
func (mt *Tracker) TrackDeallocation(ptr uintptr, tag string) bool {
	mt.mu.Lock()
	info, exists := mt.allocations[ptr]
	if exists {
		delete(mt.allocations, ptr)
		atomic.AddInt64(&mt.totalDealloc, info.Size)
	} else {
		atomic.AddInt64(&mt.unknownFrees, 1)
	}
	mt.mu.Unlock()

	if mt.log != nil {
		fields := map[string]interface{}{"tag": tag}
		if exists {
			fields["size"] = info.Size
			fields["lifetime"] = time.Since(info.AllocatedAt).String()
			mt.log.Debug("MemTracker", "released", fields)
		} else {
			mt.log.Debug("MemTracker", "untracked release", fields)
		}
	}
	return exists
}

func (mt *Tracker) GetStats() MemoryStats {
	mt.mu.RLock()
	currentlyActive := int64(len(mt.allocations))
	mt.mu.RUnlock()

	return MemoryStats{
		TotalAllocated:   atomic.LoadInt64(&mt.totalAlloc),
		TotalDeallocated: atomic.LoadInt64(&mt.totalDealloc),
		CurrentlyActive:  currentlyActive,
		AllocationCount:  atomic.LoadInt64(&mt.allocCount),
		UnknownFrees:     atomic.LoadInt64(&mt.unknownFrees),
	}
}

// Outstanding returns the live allocation count and byte total for tag.
func (mt *Tracker) Outstanding(tag string) (int, int64) {
	mt.mu.RLock()
	defer mt.mu.RUnlock()

	var count int
	var bytes int64
	for _, info := range mt.allocations {
		if info.Tag == tag {
			count++
			bytes += info.Size
		}
	}
	return count, bytes
}

func (mt *Tracker) SetStackTracingEnabled(enabled bool) {
	mt.stackTraces.Store(enabled)
}

func (mt *Tracker) DetectLeaks(olderThan time.Duration) []AllocationInfo {
	mt.mu.RLock()
	defer mt.mu.RUnlock()

	threshold := time.Now().Add(-olderThan)
	var leaks []AllocationInfo

	for _, info := range mt.allocations {
		if !info.AllocatedAt.After(threshold) {
			leaks = append(leaks, info)
		}
	}

	return leaks
}
