package queue

import (
	"sync"
	"time"
)

// speedmeterSlots is the number of 1-second buckets the meter keeps, per
// spec §4.3 step 5 / §5's 1s speed-timer cadence — wide enough to report a
// trailing 30s average without the scheduler itself tracking history.
const speedmeterSlots = 30

// SpeedMeter is a ring buffer of per-second byte counters. Bump() is
// called by the coordinator as it harvests finished article results; Tick() is
// called once a second (by the coordinator's 1s timer) to roll the ring
// forward; CurrentSpeed reads a trailing average. All methods lock
// independently of the queue guard — the meter has nothing to do with
// collection/file state.
type SpeedMeter struct {
	mu      sync.Mutex
	buckets [speedmeterSlots]int64
	pos     int
	started time.Time
}

func NewSpeedMeter() *SpeedMeter {
	return &SpeedMeter{started: time.Now()}
}

// Bump adds n bytes to the current (not-yet-rolled) bucket.
func (m *SpeedMeter) Bump(n int64) {
	m.mu.Lock()
	m.buckets[m.pos] += n
	m.mu.Unlock()
}

// Tick rolls the ring forward by one second, zeroing the new head bucket.
func (m *SpeedMeter) Tick() {
	m.mu.Lock()
	m.pos = (m.pos + 1) % speedmeterSlots
	m.buckets[m.pos] = 0
	m.mu.Unlock()
}

// CurrentSpeed returns the trailing average bytes/sec over the shorter of
// speedmeterSlots seconds or the meter's actual age (spec §4.3 "reports a
// trailing average, not an instantaneous rate").
func (m *SpeedMeter) CurrentSpeed() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var sum int64
	for _, b := range m.buckets {
		sum += b
	}
	age := int64(time.Since(m.started) / time.Second)
	if age <= 0 {
		age = 1
	}
	if age > speedmeterSlots {
		age = speedmeterSlots
	}
	return sum / age
}

// Reset restarts the meter, clearing every bucket and its age. No code in
// the module calls it outside the package's tests.
func (m *SpeedMeter) Reset() {
	m.mu.Lock()
	m.buckets = [speedmeterSlots]int64{}
	m.pos = 0
	m.started = time.Now()
	m.mu.Unlock()
}
