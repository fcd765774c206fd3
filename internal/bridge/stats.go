package bridge

import (
	"time"

	"cvbridge/internal/debug/memtracker"
)

// Stats is a snapshot of bridge counters. AverageLatency is only sampled
// while debug is on.
type Stats struct {
	ActiveHandles      int64
	TotalDecoded       int64
	TotalReleased      int64
	StaleLookups       int64
	PoolHits           int64
	PoolMisses         int64
	PooledMats         int
	OutstandingBuffers int
	OutstandingBytes   int64
	LiveMatBytes       int64
	TrackedAllocations int64
	TrackedBytes       int64
	UnknownFrees       int64
	AverageLatency     map[string]time.Duration
}

func (b *Bridge) Stats() Stats {
	mem := b.mem.GetStats()
	buffers, bufferBytes := b.allocator.Outstanding()
	_, decodedBytes := b.memTracker.Outstanding(memtracker.TagDecoded)
	_, scratchBytes := b.memTracker.Outstanding(memtracker.TagScratch)
	tracked := b.memTracker.GetStats()

	latency := make(map[string]time.Duration, 4)
	for _, op := range []string{OpDecode, OpBlur, OpDilate, OpEncode} {
		if avg := b.timing.GetAverageTime(op); avg > 0 {
			latency[op] = avg
		}
	}

	return Stats{
		ActiveHandles:      mem.ActiveHandles,
		TotalDecoded:       mem.TotalRegistered,
		TotalReleased:      mem.TotalReleased,
		StaleLookups:       mem.StaleLookups,
		PoolHits:           mem.PoolHits,
		PoolMisses:         mem.PoolMisses,
		PooledMats:         mem.PooledMats,
		OutstandingBuffers: buffers,
		OutstandingBytes:   bufferBytes,
		LiveMatBytes:       decodedBytes + scratchBytes,
		TrackedAllocations: tracked.AllocationCount,
		TrackedBytes:       tracked.TotalAllocated,
		UnknownFrees:       tracked.UnknownFrees,
		AverageLatency:     latency,
	}
}
