package sim

import (
	"errors"
	"sync"

	"github.com/chewxy/math32"

	"github.com/itohio/govitals/pkg/ppg"
)

// ErrDropout is returned by PPG when a simulated bus timeout is injected.
var ErrDropout = errors.New("sim: ppg read timeout")

// PPGConfig describes the simulated pulse oximeter signal.
type PPGConfig struct {
	SampleRateHz float32 // reads per second
	BPM          float32 // pulse rate
	SpO2         float32 // target saturation, sets the red/IR ratio
	DC           float32 // infrared baseline with a finger present
	AC           float32 // infrared pulse amplitude
	Noise        float32 // noise amplitude relative to AC
	Finger       bool    // false yields ambient-level readings
	FailEvery    int     // inject a read error every N reads, 0 disables
}

// DefaultPPGConfig returns a healthy adult reading.
func DefaultPPGConfig() PPGConfig {
	return PPGConfig{
		SampleRateHz: 100,
		BPM:          72,
		SpO2:         97,
		DC:           50000,
		AC:           4000,
		Noise:        0,
		Finger:       true,
	}
}

const ambientIR = 2000

// PPG generates paired red/infrared samples. It is safe to reconfigure
// from another goroutine while the monitor reads it.
type PPG struct {
	mu    sync.Mutex
	cfg   PPGConfig
	phase float32
	reads int
}

// NewPPG creates a generator.
func NewPPG(cfg PPGConfig) *PPG {
	if cfg.SampleRateHz <= 0 {
		cfg.SampleRateHz = DefaultPPGConfig().SampleRateHz
	}
	return &PPG{cfg: cfg}
}

// Config returns the current configuration.
func (s *PPG) Config() PPGConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// SetBPM changes the pulse rate.
func (s *PPG) SetBPM(bpm float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.BPM = bpm
}

// SetSpO2 changes the target saturation.
func (s *PPG) SetSpO2(spo2 float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.SpO2 = spo2
}

// SetFinger places or removes the simulated finger.
func (s *PPG) SetFinger(present bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Finger = present
}

// Read implements ppg.Source.
func (s *PPG) Read() (ppg.Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reads++
	if s.cfg.FailEvery > 0 && s.reads%s.cfg.FailEvery == 0 {
		return ppg.Pair{}, ErrDropout
	}

	s.phase += s.cfg.BPM / 60 / s.cfg.SampleRateHz
	if s.phase >= 1 {
		s.phase -= 1
	}

	if !s.cfg.Finger {
		return ppg.Pair{Red: ambientIR / 2, IR: ambientIR}, nil
	}

	pulse := gauss(s.phase, 0.25, 0.08)
	n := s.cfg.Noise * (2*fract(math32.Sin(4321.123*s.phase)*7531.97) - 1)
	ir := s.cfg.DC + s.cfg.AC*(pulse+n)

	// SpO2 = 110 - 25*R, R = red/ir.
	ratio := (110 - s.cfg.SpO2) / 25
	red := ir * ratio

	return ppg.Pair{Red: clamp18(red), IR: clamp18(ir)}, nil
}

func clamp18(v float32) uint32 {
	if v <= 0 {
		return 0
	}
	if v >= ppg.Mask {
		return ppg.Mask
	}
	return uint32(v)
}
