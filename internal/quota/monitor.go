// Package quota tracks document store operations against daily limits.
// It is advisory: nothing is blocked, callers decide whether to throttle.
package quota

import (
	"sync"
	"time"

	"github.com/acessivel/mobility/internal/clock"
)

// Window is the rolling period after which counters reset.
const Window = 24 * time.Hour

// Limits are the per-window operation caps.
type Limits struct {
	Reads     int64   `mapstructure:"reads" yaml:"reads" json:"reads"`
	Writes    int64   `mapstructure:"writes" yaml:"writes" json:"writes"`
	Deletes   int64   `mapstructure:"deletes" yaml:"deletes" json:"deletes"`
	NearRatio float64 `mapstructure:"near_ratio" yaml:"near_ratio" json:"near_ratio"`
}

func DefaultLimits() Limits {
	return Limits{
		Reads:     50000,
		Writes:    20000,
		Deletes:   20000,
		NearRatio: 0.9,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.Reads <= 0 {
		l.Reads = d.Reads
	}
	if l.Writes <= 0 {
		l.Writes = d.Writes
	}
	if l.Deletes <= 0 {
		l.Deletes = d.Deletes
	}
	if l.NearRatio <= 0 || l.NearRatio > 1 {
		l.NearRatio = d.NearRatio
	}
	return l
}

// Usage is a snapshot of the current window.
type Usage struct {
	Reads            int64     `json:"reads" yaml:"reads"`
	Writes           int64     `json:"writes" yaml:"writes"`
	Deletes          int64     `json:"deletes" yaml:"deletes"`
	LastReset        time.Time `json:"lastReset" yaml:"last_reset"`
	ReadPercentage   float64   `json:"readPercentage" yaml:"read_percentage"`
	WritePercentage  float64   `json:"writePercentage" yaml:"write_percentage"`
	DeletePercentage float64   `json:"deletePercentage" yaml:"delete_percentage"`
	IsNearLimit      bool      `json:"isNearLimit" yaml:"is_near_limit"`
}

// Observer receives the counters after every change.
type Observer interface {
	QuotaUsage(reads, writes, deletes int64)
}

type Monitor struct {
	mu        sync.Mutex
	limits    Limits
	clock     clock.Clock
	observer  Observer
	reads     int64
	writes    int64
	deletes   int64
	lastReset time.Time
}

type Option func(*Monitor)

func WithLimits(l Limits) Option {
	return func(m *Monitor) { m.limits = l.withDefaults() }
}

func WithClock(c clock.Clock) Option {
	return func(m *Monitor) { m.clock = c }
}

func WithObserver(o Observer) Option {
	return func(m *Monitor) { m.observer = o }
}

func NewMonitor(opts ...Option) *Monitor {
	m := &Monitor{
		limits: DefaultLimits(),
		clock:  clock.Real(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.lastReset = m.clock.Now()
	return m
}

func (m *Monitor) TrackRead(n int)   { m.track(&m.reads, n) }
func (m *Monitor) TrackWrite(n int)  { m.track(&m.writes, n) }
func (m *Monitor) TrackDelete(n int) { m.track(&m.deletes, n) }

func (m *Monitor) track(counter *int64, n int) {
	if n <= 0 {
		n = 1
	}

	m.mu.Lock()
	m.resetIfDue()
	*counter += int64(n)
	reads, writes, deletes := m.reads, m.writes, m.deletes
	m.mu.Unlock()

	if m.observer != nil {
		m.observer.QuotaUsage(reads, writes, deletes)
	}
}

// resetIfDue zeroes the counters once the window has elapsed. Caller holds mu.
func (m *Monitor) resetIfDue() {
	now := m.clock.Now()
	if now.Sub(m.lastReset) > Window {
		m.reads, m.writes, m.deletes = 0, 0, 0
		m.lastReset = now
	}
}

// Usage returns the current counters without resetting anything.
func (m *Monitor) Usage() Usage {
	m.mu.Lock()
	defer m.mu.Unlock()

	u := Usage{
		Reads:            m.reads,
		Writes:           m.writes,
		Deletes:          m.deletes,
		LastReset:        m.lastReset,
		ReadPercentage:   percent(m.reads, m.limits.Reads),
		WritePercentage:  percent(m.writes, m.limits.Writes),
		DeletePercentage: percent(m.deletes, m.limits.Deletes),
	}
	u.IsNearLimit = float64(m.reads) > float64(m.limits.Reads)*m.limits.NearRatio ||
		float64(m.writes) > float64(m.limits.Writes)*m.limits.NearRatio ||
		float64(m.deletes) > float64(m.limits.Deletes)*m.limits.NearRatio
	return u
}

// ShouldThrottle reports whether any counter is near its cap.
func (m *Monitor) ShouldThrottle() bool {
	return m.Usage().IsNearLimit
}

func (m *Monitor) Limits() Limits {
	return m.limits
}

func percent(n, limit int64) float64 {
	if limit <= 0 {
		return 0
	}
	return float64(n) / float64(limit) * 100
}
