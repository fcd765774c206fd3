package timing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecordAndAverage(t *testing.T) {
	tt := NewTracker()
	tt.Record("encode", 10*time.Millisecond)
	tt.Record("encode", 30*time.Millisecond)

	assert.Len(t, tt.GetTimings("encode"), 2)
	assert.Equal(t, 20*time.Millisecond, tt.GetAverageTime("encode"))
	assert.Zero(t, tt.GetAverageTime("decode"))
}

func TestStartRecords(t *testing.T) {
	tt := NewTracker()
	stop := tt.Start("blur")
	d := stop()

	timings := tt.GetTimings("blur")
	assert.Equal(t, []time.Duration{d}, timings)
}

func TestSamplesAreBounded(t *testing.T) {
	tt := NewTracker()
	for i := 0; i < maxSamples+10; i++ {
		tt.Record("decode", time.Duration(i))
	}

	timings := tt.GetTimings("decode")
	assert.Len(t, timings, maxSamples)
	assert.Equal(t, time.Duration(10), timings[0])
}

func TestDisabledAndReset(t *testing.T) {
	tt := NewTracker()
	tt.Record("dilate", time.Millisecond)
	tt.Reset("dilate")
	assert.Nil(t, tt.GetTimings("dilate"))

	tt.SetEnabled(false)
	tt.Record("dilate", time.Millisecond)
	assert.Nil(t, tt.GetTimings("dilate"))

	tt.SetEnabled(true)
	tt.Record("a", 1)
	tt.Record("b", 1)
	tt.Reset("")
	assert.Nil(t, tt.GetTimings("a"))
	assert.Nil(t, tt.GetTimings("b"))
}
