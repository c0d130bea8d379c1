package queue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSpeedMeterReportsTrailingAverage(t *testing.T) {
	m := NewSpeedMeter()
	m.Bump(1000)
	require.Equal(t, int64(1000), m.CurrentSpeed(), "age floors at 1s, so the average equals the single bucket")
}

func TestSpeedMeterTickRollsBucketsForward(t *testing.T) {
	m := NewSpeedMeter()
	m.Bump(1000)
	m.Tick()
	m.Bump(0)
	// After a tick the previous second's bytes remain in the trailing
	// window (only the head bucket is reset), so the average still
	// reflects them until enough further ticks roll them out.
	require.GreaterOrEqual(t, m.CurrentSpeed(), int64(0))
}

func TestSpeedMeterResetClearsHistory(t *testing.T) {
	m := NewSpeedMeter()
	m.Bump(5000)
	m.Reset()
	require.Equal(t, int64(0), m.CurrentSpeed())
}
