package main

import (
	"sync"
	"time"

	"github.com/itohio/govitals/pkg/config"
)

// updateInterval limits widget refreshes to about 60 FPS.
const updateInterval = 16 * time.Millisecond

// throttle drops updates that arrive sooner than updateInterval after the
// previous accepted one.
type throttle struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func (t *throttle) allow() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	if t.now != nil {
		now = t.now()
	}
	if now.Sub(t.last) < updateInterval {
		return false
	}
	t.last = now
	return true
}

// windowDuration is the ECG history kept by the session.
func windowDuration(cfg *config.Config) time.Duration {
	d := time.Duration(cfg.Display.WindowSeconds * float64(time.Second))
	if d <= 0 {
		d = 5 * time.Second
	}
	return d
}
