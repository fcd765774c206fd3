package memtracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	messages []string
}

func (r *recordingLogger) Debug(_, message string, _ map[string]interface{}) {
	r.messages = append(r.messages, message)
}

func TestTrackAllocationLifecycle(t *testing.T) {
	log := &recordingLogger{}
	mt := NewTracker(log, true)

	mt.TrackAllocation(0x10, 48, TagOutput)
	mt.TrackAllocation(0x20, 100, TagDecoded)

	count, bytes := mt.Outstanding(TagOutput)
	assert.Equal(t, 1, count)
	assert.Equal(t, int64(48), bytes)

	assert.True(t, mt.TrackDeallocation(0x10, TagOutput))
	count, _ = mt.Outstanding(TagOutput)
	assert.Zero(t, count)

	stats := mt.GetStats()
	assert.Equal(t, int64(148), stats.TotalAllocated)
	assert.Equal(t, int64(48), stats.TotalDeallocated)
	assert.Equal(t, int64(1), stats.CurrentlyActive)
	assert.Equal(t, int64(2), stats.AllocationCount)
	assert.Equal(t, []string{"allocated", "allocated", "released"}, log.messages)
}

func TestUnknownFree(t *testing.T) {
	mt := NewTracker(nil, false)

	assert.False(t, mt.TrackDeallocation(0x99, TagOutput))
	assert.Equal(t, int64(1), mt.GetStats().UnknownFrees)
}

func TestDoubleFreeIsUnknown(t *testing.T) {
	mt := NewTracker(nil, false)
	mt.TrackAllocation(0x10, 8, TagOutput)

	require.True(t, mt.TrackDeallocation(0x10, TagOutput))
	assert.False(t, mt.TrackDeallocation(0x10, TagOutput))
}

func TestDetectLeaks(t *testing.T) {
	mt := NewTracker(nil, false)
	mt.TrackAllocation(0x10, 8, TagDecoded)

	assert.Len(t, mt.DetectLeaks(0), 1)
	assert.Empty(t, mt.DetectLeaks(time.Hour))
}
