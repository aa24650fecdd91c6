package quota

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/acessivel/mobility/internal/clock"
)

var start = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func TestMonitor_Accumulates(t *testing.T) {
	m := NewMonitor(WithClock(clock.NewFake(start)))

	m.TrackRead(3)
	m.TrackRead(0)
	m.TrackWrite(2)
	m.TrackDelete(-5)

	u := m.Usage()
	assert.Equal(t, int64(4), u.Reads)
	assert.Equal(t, int64(2), u.Writes)
	assert.Equal(t, int64(1), u.Deletes)
	assert.Equal(t, start, u.LastReset)
	assert.InDelta(t, 0.008, u.ReadPercentage, 1e-9)
	assert.InDelta(t, 0.01, u.WritePercentage, 1e-9)
	assert.False(t, u.IsNearLimit)
}

func TestMonitor_RollingWindowResetsOnce(t *testing.T) {
	fake := clock.NewFake(start)
	m := NewMonitor(WithClock(fake))

	m.TrackRead(10)
	fake.Advance(Window)
	m.TrackRead(1)
	assert.Equal(t, int64(11), m.Usage().Reads, "exactly 24h is still the same window")

	fake.Advance(time.Millisecond)
	// Usage alone never resets
	assert.Equal(t, int64(11), m.Usage().Reads)

	m.TrackWrite(1)
	u := m.Usage()
	assert.Equal(t, int64(0), u.Reads)
	assert.Equal(t, int64(1), u.Writes)
	assert.Equal(t, start.Add(Window+time.Millisecond), u.LastReset)

	m.TrackRead(5)
	assert.Equal(t, int64(5), m.Usage().Reads)
}

func TestMonitor_NearLimit(t *testing.T) {
	tests := []struct {
		name  string
		track func(m *Monitor)
		near  bool
	}{
		{"reads at 90% is not near", func(m *Monitor) { m.TrackRead(45000) }, false},
		{"reads above 90%", func(m *Monitor) { m.TrackRead(45001) }, true},
		{"writes above 90%", func(m *Monitor) { m.TrackWrite(18001) }, true},
		{"deletes above 90%", func(m *Monitor) { m.TrackDelete(18001) }, true},
		{"deletes at 90%", func(m *Monitor) { m.TrackDelete(18000) }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMonitor(WithClock(clock.NewFake(start)))
			tt.track(m)
			assert.Equal(t, tt.near, m.Usage().IsNearLimit)
			assert.Equal(t, tt.near, m.ShouldThrottle())
		})
	}
}

func TestMonitor_CustomLimits(t *testing.T) {
	m := NewMonitor(WithClock(clock.NewFake(start)), WithLimits(Limits{Reads: 100, NearRatio: 0.5}))
	m.TrackRead(51)

	assert.True(t, m.ShouldThrottle())
	assert.Equal(t, int64(20000), m.Limits().Writes)
	assert.InDelta(t, 51.0, m.Usage().ReadPercentage, 1e-9)
}

type recorder struct {
	mu    sync.Mutex
	last  [3]int64
	calls int
}

func (r *recorder) QuotaUsage(reads, writes, deletes int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = [3]int64{reads, writes, deletes}
	r.calls++
}

func TestMonitor_ConcurrentAndObserved(t *testing.T) {
	rec := &recorder{}
	m := NewMonitor(WithClock(clock.NewFake(start)), WithObserver(rec))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.TrackRead(2)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(100), m.Usage().Reads)
	assert.Equal(t, 50, rec.calls)
}
