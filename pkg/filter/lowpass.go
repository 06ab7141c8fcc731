// Package filter provides the ECG front-end filter.
package filter

import "github.com/chewxy/math32"

const (
	// DefaultCutoffHz is the ECG low-pass cutoff frequency.
	DefaultCutoffHz = 50.0
	// DefaultSampleRateHz is the ECG sampling rate.
	DefaultSampleRateHz = 500.0
)

// LowPass is a discrete single-pole IIR low-pass filter:
//
//	y[n] = y[n-1] + alpha*(x[n] - y[n-1])
//
// All arithmetic is float32 so results are reproducible on the MCU and on hosts.
type LowPass struct {
	alpha float32
	y     float32
}

// NewLowPass creates a filter for the given cutoff and sample rate.
// alpha = dt / (rc + dt), rc = 1 / (2*pi*fc), dt = 1 / fs.
func NewLowPass(cutoffHz, sampleRateHz float32) *LowPass {
	return &LowPass{alpha: Alpha(cutoffHz, sampleRateHz)}
}

// Alpha returns the smoothing factor for the given cutoff and sample rate.
func Alpha(cutoffHz, sampleRateHz float32) float32 {
	dt := 1.0 / sampleRateHz
	rc := 1.0 / (2.0 * math32.Pi * cutoffHz)
	return dt / (rc + dt)
}

// Alpha returns the filter smoothing factor.
func (f *LowPass) Alpha() float32 {
	return f.alpha
}

// Filter feeds one sample through the filter and returns the new output.
func (f *LowPass) Filter(x float32) float32 {
	// The explicit conversion keeps the product from being fused into an FMA,
	// so every target rounds identically.
	f.y = f.y + float32(f.alpha*(x-f.y))
	return f.y
}

// Value returns the last filter output.
func (f *LowPass) Value() float32 {
	return f.y
}

// Reset clears the filter state.
func (f *LowPass) Reset() {
	f.y = 0
}
