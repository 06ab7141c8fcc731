// Package alarm derives the monitor condition from a vitals reading and drives
// the status outputs.
//
// The only state shared with the annunciator is Flag, a single atomically
// updated word. Every other field belongs to the evaluation loop.
package alarm

import (
	"sync/atomic"

	"github.com/itohio/govitals/pkg/vitals"
)

// State is the condition derived on each evaluation.
type State uint8

const (
	// NoFinger means the infrared level is too low for a valid reading.
	NoFinger State = iota
	// Normal means all vitals are within thresholds.
	Normal
	// Alert means at least one vital is out of range.
	Alert
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case NoFinger:
		return "NO_FINGER"
	case Normal:
		return "NORMAL"
	case Alert:
		return "ALERT"
	default:
		return "UNKNOWN"
	}
}

// Thresholds are the fixed limits the evaluator compares against.
type Thresholds struct {
	MinSpO2      int    // below: hypoxia
	MinHeartRate int    // below: bradycardia
	MaxHeartRate int    // above: tachycardia
	FingerIR     uint32 // mean infrared below: no finger
}

// DefaultThresholds returns the standard limits.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinSpO2:      90,
		MinHeartRate: 40,
		MaxHeartRate: 130,
		FingerIR:     vitals.FingerThreshold,
	}
}

// Classify derives the state from a reading. No-finger takes precedence over
// out-of-range vitals; there is no hysteresis between calls.
func Classify(r vitals.Reading, th Thresholds) State {
	if r.MeanIR < th.FingerIR {
		return NoFinger
	}
	if r.SpO2 < th.MinSpO2 || r.HeartRate < th.MinHeartRate || r.HeartRate > th.MaxHeartRate {
		return Alert
	}
	return Normal
}

// Level is the value held by Flag.
type Level uint32

const (
	// Quiescent keeps the annunciator silent.
	Quiescent Level = iota
	// Alerting makes the annunciator blink and beep.
	Alerting
)

// Flag is the single word shared between the evaluation loop and the annunciator.
// Loads always observe the latest complete store.
type Flag struct {
	v atomic.Uint32
}

// Set stores a new level.
func (f *Flag) Set(l Level) {
	f.v.Store(uint32(l))
}

// Load returns the current level.
func (f *Flag) Load() Level {
	return Level(f.v.Load())
}

// Alerting reports whether the current level is Alerting.
func (f *Flag) Alerting() bool {
	return f.Load() == Alerting
}
