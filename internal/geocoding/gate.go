package geocoding

import (
	"context"
	"sync"
	"time"

	"github.com/acessivel/mobility/internal/clock"
)

// MinRequestInterval is Nominatim's usage policy: at most one request per second.
const MinRequestInterval = time.Second

// Gate spaces outbound requests. Callers are served one at a time; the
// mutex is held for the whole wait.
type Gate struct {
	mu       sync.Mutex
	clock    clock.Clock
	interval time.Duration
	last     time.Time
}

func NewGate(c clock.Clock, interval time.Duration) *Gate {
	if c == nil {
		c = clock.Real()
	}
	return &Gate{clock: c, interval: interval}
}

// Wait blocks until a request may be sent and claims the slot. If ctx is
// done first the slot is left unclaimed and ctx.Err() is returned.
func (g *Gate) Wait(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	if !g.last.IsZero() {
		if wait := g.interval - g.clock.Now().Sub(g.last); wait > 0 {
			select {
			case <-g.clock.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	g.last = g.clock.Now()
	return nil
}
