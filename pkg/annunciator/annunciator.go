// Package annunciator blinks the red LED and pulses the buzzer while the
// alarm flag is set. It runs on its own fixed period, independent of the
// sampling loop, and reads nothing but the flag.
package annunciator

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/itohio/govitals/pkg/alarm"
)

// DefaultPeriod is the activation period; outputs blink at half this rate.
const DefaultPeriod = 500 * time.Millisecond

// Annunciator owns the red LED and buzzer while the flag is alerting.
type Annunciator struct {
	flag   *alarm.Flag
	red    alarm.Pin
	buzzer alarm.Pin

	activations atomic.Uint64
}

// New creates an annunciator reading flag and driving red and buzzer.
func New(flag *alarm.Flag, red, buzzer alarm.Pin) *Annunciator {
	return &Annunciator{
		flag:   flag,
		red:    red,
		buzzer: buzzer,
	}
}

// Activate is the periodic handler. While alerting both outputs are inverted
// on every call; otherwise both are forced off, so a stale toggle can never
// leave them on.
func (a *Annunciator) Activate() {
	a.activations.Add(1)

	if a.flag.Alerting() {
		a.buzzer.Set(!a.buzzer.Get())
		a.red.Set(!a.red.Get())
		return
	}

	a.buzzer.Set(false)
	a.red.Set(false)
}

// Activations returns how many times Activate has run.
func (a *Annunciator) Activations() uint64 {
	return a.activations.Load()
}

// Run binds Activate to a ticker with the given period until ctx is done.
func (a *Annunciator) Run(ctx context.Context, period time.Duration) {
	if period <= 0 {
		period = DefaultPeriod
	}

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Activate()
		}
	}
}
