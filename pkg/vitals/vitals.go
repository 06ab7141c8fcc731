// Package vitals estimates SpO2 and heart rate from a window of PPG pairs.
//
// The SpO2 model is the simplified linear ratio 110 - 25*(sumRed/sumIR), not a
// clinical calibration curve. Heart rate counts refractory-gated local maxima of
// the infrared channel and scales the count by 60, the window being one second
// of samples.
//
// Float results are converted to integers by truncation toward zero. The same
// integers are transmitted and compared against alarm thresholds.
package vitals

import (
	"errors"

	"github.com/itohio/govitals/pkg/ppg"
)

const (
	// FingerThreshold is the mean infrared level below which no finger is assumed.
	FingerThreshold = 10000
	// RefractorySamples is the window-index distance a new peak must exceed
	// relative to the previously accepted one.
	RefractorySamples = 25
	// BeatsPerPeak converts peaks in a one-second window to beats per minute.
	BeatsPerPeak = 60

	// lastPeakSentinel lies far enough before the window that the first peak is always accepted.
	lastPeakSentinel = -50
)

// ErrNotFilled is returned when estimating over a window that has not completed its fill phase.
var ErrNotFilled = errors.New("vitals: window not filled")

// Reading is one estimator result.
type Reading struct {
	SpO2      int    // percent, 0-100
	HeartRate int    // beats per minute
	MeanIR    uint32 // mean infrared level, used for finger-presence gating
}

// SpO2 returns the oxygen saturation estimate in percent, clamped to [0, 100].
// A zero infrared sum returns 0.
func SpO2(pairs []ppg.Pair) float32 {
	var sumRed, sumIR uint64
	for _, p := range pairs {
		sumRed += uint64(p.Red)
		sumIR += uint64(p.IR)
	}
	if sumIR == 0 {
		return 0
	}

	ratio := float32(sumRed) / float32(sumIR)
	spo2 := 110 - float32(25*ratio)
	if spo2 > 100 {
		spo2 = 100
	} else if spo2 < 0 {
		spo2 = 0
	}
	return spo2
}

// MeanIR returns the integer mean of the infrared channel.
func MeanIR(pairs []ppg.Pair) uint32 {
	if len(pairs) == 0 {
		return 0
	}
	var sum uint64
	for _, p := range pairs {
		sum += uint64(p.IR)
	}
	return uint32(sum / uint64(len(pairs)))
}

// HeartRate returns the heart rate estimate in beats per minute.
// It returns 0 when the mean infrared level is below FingerThreshold.
func HeartRate(pairs []ppg.Pair) float32 {
	mean := MeanIR(pairs)
	if mean < FingerThreshold {
		return 0
	}
	return float32(countPeaks(pairs, mean) * BeatsPerPeak)
}

// countPeaks counts strict local maxima above mean, rejecting any peak that
// is not more than RefractorySamples after the previously accepted one.
func countPeaks(pairs []ppg.Pair, mean uint32) int {
	peaks := 0
	last := lastPeakSentinel
	for i := 1; i < len(pairs)-1; i++ {
		ir := pairs[i].IR
		if ir > mean && ir > pairs[i-1].IR && ir > pairs[i+1].IR {
			if i-last > RefractorySamples {
				peaks++
				last = i
			}
		}
	}
	return peaks
}

// Estimate computes a full Reading from the window contents.
func Estimate(pairs []ppg.Pair) Reading {
	return Reading{
		SpO2:      int(SpO2(pairs)),
		HeartRate: int(HeartRate(pairs)),
		MeanIR:    MeanIR(pairs),
	}
}

// Estimator runs Estimate over a Window, reusing its snapshot buffer between calls.
type Estimator struct {
	snapshot []ppg.Pair
}

// NewEstimator creates an Estimator sized for windows of the given capacity.
func NewEstimator(size int) *Estimator {
	if size <= 0 {
		size = ppg.WindowSize
	}
	return &Estimator{snapshot: make([]ppg.Pair, 0, size)}
}

// Estimate snapshots w and estimates over it. Partially filled windows are rejected.
func (e *Estimator) Estimate(w *ppg.Window) (Reading, error) {
	if !w.Full() {
		return Reading{}, ErrNotFilled
	}
	e.snapshot = w.Snapshot(e.snapshot)
	return Estimate(e.snapshot), nil
}
