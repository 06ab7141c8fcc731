// Package sim provides synthetic ECG and PPG sources for running the
// monitor without hardware.
package sim

import (
	"sync"

	"github.com/chewxy/math32"
)

const (
	adcMax      = 4095
	adcBaseline = 2048
	adcGain     = 1200

	breathHz = 0.33
)

// ECG generates an ECG-like waveform (not clinical): a slow baseline plus
// P, QRS and T gaussians, scaled to the 12-bit ADC range.
type ECG struct {
	mu    sync.Mutex
	fs    float32
	bpm   float32
	noise float32
	phase float32
	t     float32
}

// NewECG creates a generator sampled at fs Hz with the given heart rate and
// noise amplitude (0 to about 0.05 of full scale).
func NewECG(fs, bpm, noise float32) *ECG {
	return &ECG{fs: fs, bpm: bpm, noise: noise}
}

// SetBPM changes the simulated heart rate.
func (s *ECG) SetBPM(bpm float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bpm = bpm
}

// Next returns the next normalised sample and advances time.
func (s *ECG) Next() float32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.phase += s.bpm / 60 / s.fs
	if s.phase >= 1 {
		s.phase -= 1
	}
	s.t += 1 / s.fs
	if s.t >= 1/breathHz {
		s.t -= 1 / breathHz
	}

	x := s.phase
	baseline := 0.05 * math32.Sin(2*math32.Pi*breathHz*s.t)

	p := 0.08 * gauss(x, 0.18, 0.03)
	q := -0.12 * gauss(x, 0.30, 0.01)
	r := 1.00 * gauss(x, 0.32, 0.008)
	sw := -0.25 * gauss(x, 0.35, 0.012)
	tw := 0.25 * gauss(x, 0.60, 0.06)

	n := s.noise * (2*fract(math32.Sin(12345.678*x)*9876.543) - 1)

	return baseline + p + q + r + sw + tw + n
}

// Read implements the monitor's ADC: one 12-bit conversion, never timing out.
func (s *ECG) Read() (uint16, bool) {
	v := adcBaseline + adcGain*s.Next()
	return uint16(math32.Max(0, math32.Min(adcMax, v))), true
}

func gauss(x, mu, sigma float32) float32 {
	z := (x - mu) / sigma
	return math32.Exp(-0.5 * z * z)
}

func fract(x float32) float32 { return x - math32.Floor(x) }
