package scope

import (
	"time"

	"github.com/itohio/govitals/pkg/config"
	"github.com/itohio/govitals/pkg/sample"
)

// viewport maps sample time and value to plot coordinates.
type viewport struct {
	yMin, yMax float64
	xMin, xMax time.Time
}

// fitViewport spans the configured window ending at the newest sample.
// With AutoScale the Y range follows the samples with a 10% margin.
func fitViewport(samples []sample.Sample, cfg *config.DisplayConfig, now time.Time) viewport {
	window := time.Duration(cfg.WindowSeconds * float64(time.Second))
	if window <= 0 {
		window = 5 * time.Second
	}

	v := viewport{yMin: cfg.YMin, yMax: cfg.YMax}
	if len(samples) == 0 {
		v.xMax = now
		v.xMin = now.Add(-window)
		if cfg.AutoScale || v.yMax <= v.yMin {
			v.yMin, v.yMax = 0, 1
		}
		return v
	}

	v.xMax = samples[len(samples)-1].Timestamp
	v.xMin = v.xMax.Add(-window)
	if first := samples[0].Timestamp; first.After(v.xMin) {
		// Left-align until the trace fills the window.
		v.xMin = first
		v.xMax = first.Add(window)
	}

	if !cfg.AutoScale && cfg.YMax > cfg.YMin {
		return v
	}

	v.yMin, v.yMax = samples[0].Value, samples[0].Value
	for _, smp := range samples {
		v.yMin = min(v.yMin, smp.Value)
		v.yMax = max(v.yMax, smp.Value)
	}
	span := v.yMax - v.yMin
	if span == 0 {
		span = 1
	}
	v.yMin -= span * 0.1
	v.yMax += span * 0.1
	return v
}

// x returns the horizontal fraction of t, 0 at xMin and 1 at xMax.
func (v viewport) x(t time.Time) float32 {
	span := v.xMax.Sub(v.xMin).Seconds()
	if span <= 0 {
		return 0
	}
	return float32(t.Sub(v.xMin).Seconds() / span)
}

// y returns the vertical fraction of value, 0 at yMin and 1 at yMax.
func (v viewport) y(value float64) float32 {
	span := v.yMax - v.yMin
	if span <= 0 {
		return 0
	}
	return float32((value - v.yMin) / span)
}

// visible reports whether t falls inside the time range.
func (v viewport) visible(t time.Time) bool {
	return !t.Before(v.xMin) && !t.After(v.xMax)
}
