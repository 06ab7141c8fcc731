// Package monitor runs the sensing-board control loop: ECG sampling and
// filtering, PPG windowing, periodic vitals estimation and alarm evaluation.
//
// The loop owns every piece of state except the alarm flag, which is shared
// with the annunciator goroutine.
package monitor

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/itohio/govitals/pkg/alarm"
	"github.com/itohio/govitals/pkg/annunciator"
	"github.com/itohio/govitals/pkg/filter"
	"github.com/itohio/govitals/pkg/ppg"
	"github.com/itohio/govitals/pkg/telemetry"
	"github.com/itohio/govitals/pkg/timeutil"
	"github.com/itohio/govitals/pkg/vitals"
)

// ADC is a 12-bit analog front-end. Read returns false when the conversion
// did not complete within the poll timeout.
type ADC interface {
	Read() (uint16, bool)
}

// ADCFunc adapts a function to the ADC interface.
type ADCFunc func() (uint16, bool)

// Read implements ADC.
func (f ADCFunc) Read() (uint16, bool) {
	return f()
}

// Config holds the loop timing and signal parameters.
type Config struct {
	EvalInterval      time.Duration    // evaluation runs once more than this has elapsed
	LoopInterval      time.Duration    // sleep after each iteration
	FillDelay         time.Duration    // sleep between reads during the fill phase
	PPGDecimation     int              // loop iterations per PPG read
	WindowSize        int              // PPG window capacity
	CutoffHz          float32          // ECG low-pass cutoff
	SampleRateHz      float32          // ECG sample rate
	Thresholds        alarm.Thresholds // alarm classification limits
	AnnunciatorPeriod time.Duration    // annunciator toggle period
	ECGTimeout        time.Duration    // write bound for ECG lines
	VitalsTimeout     time.Duration    // write bound for vitals lines
}

// DefaultConfig returns the board's stock configuration.
func DefaultConfig() Config {
	return Config{
		EvalInterval:      time.Second,
		LoopInterval:      2 * time.Millisecond,
		FillDelay:         5 * time.Millisecond,
		PPGDecimation:     1,
		WindowSize:        ppg.WindowSize,
		CutoffHz:          filter.DefaultCutoffHz,
		SampleRateHz:      filter.DefaultSampleRateHz,
		Thresholds:        alarm.DefaultThresholds(),
		AnnunciatorPeriod: annunciator.DefaultPeriod,
		ECGTimeout:        telemetry.ECGTimeout,
		VitalsTimeout:     telemetry.VitalsTimeout,
	}
}

func (c *Config) ensureDefaults() {
	def := DefaultConfig()
	if c.EvalInterval <= 0 {
		c.EvalInterval = def.EvalInterval
	}
	if c.LoopInterval < 0 {
		c.LoopInterval = def.LoopInterval
	}
	if c.FillDelay < 0 {
		c.FillDelay = def.FillDelay
	}
	if c.PPGDecimation <= 0 {
		c.PPGDecimation = def.PPGDecimation
	}
	if c.WindowSize <= 0 {
		c.WindowSize = def.WindowSize
	}
	if c.CutoffHz <= 0 {
		c.CutoffHz = def.CutoffHz
	}
	if c.SampleRateHz <= 0 {
		c.SampleRateHz = def.SampleRateHz
	}
	if c.Thresholds == (alarm.Thresholds{}) {
		c.Thresholds = def.Thresholds
	}
	if c.AnnunciatorPeriod <= 0 {
		c.AnnunciatorPeriod = def.AnnunciatorPeriod
	}
}

// Stats are loop counters.
type Stats struct {
	Iterations       uint64
	Evaluations      uint64
	ADCTimeouts      uint64
	PPGErrors        uint64
	FillErrors       uint64
	TelemetrySent    uint64
	TelemetryDropped uint64
}

// Monitor is the sensing-board main loop.
type Monitor struct {
	cfg   Config
	clock timeutil.Clock

	adc ADC
	src ppg.Source

	lowpass     *filter.LowPass
	window      *ppg.Window
	estimator   *vitals.Estimator
	flag        *alarm.Flag
	evaluator   *alarm.Evaluator
	annunciator *annunciator.Annunciator
	emitter     *telemetry.Emitter

	filled    bool
	lastEval  time.Time
	lastPair  ppg.Pair
	iteration int
	reading   vitals.Reading
	stats     Stats
}

// New wires a monitor. Telemetry goes to w; a nil clock uses the real one.
func New(cfg Config, adc ADC, src ppg.Source, out alarm.Outputs, w io.Writer, clock timeutil.Clock) *Monitor {
	cfg.ensureDefaults()
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	flag := &alarm.Flag{}
	return &Monitor{
		cfg:         cfg,
		clock:       clock,
		adc:         adc,
		src:         src,
		lowpass:     filter.NewLowPass(cfg.CutoffHz, cfg.SampleRateHz),
		window:      ppg.NewWindow(cfg.WindowSize),
		estimator:   vitals.NewEstimator(cfg.WindowSize),
		flag:        flag,
		evaluator:   alarm.NewEvaluator(flag, out, cfg.Thresholds),
		annunciator: annunciator.New(flag, out.Red, out.Buzzer),
		emitter:     telemetry.NewEmitter(w, cfg.ECGTimeout, cfg.VitalsTimeout),
	}
}

// Fill runs the start-up fill phase, reading one full window of PPG pairs.
// The evaluation timer starts when Fill is called.
func (m *Monitor) Fill() {
	m.lastEval = m.clock.Now()
	m.window.Reset()
	failed := m.window.Fill(m.src, func() { m.clock.Sleep(m.cfg.FillDelay) })
	m.stats.FillErrors += uint64(failed)
	if m.window.Len() > 0 {
		m.lastPair = m.window.At(m.window.Len() - 1)
	}
	m.filled = true
}

// Step runs one loop iteration and reports whether an evaluation happened.
// It fails with vitals.ErrNotFilled until Fill has run.
func (m *Monitor) Step() (bool, error) {
	if !m.filled {
		return false, vitals.ErrNotFilled
	}
	m.stats.Iterations++

	if raw, ok := m.adc.Read(); ok {
		m.emitter.ECG(m.lowpass.Filter(float32(raw)))
	} else {
		m.stats.ADCTimeouts++
	}

	if m.iteration%m.cfg.PPGDecimation == 0 {
		p, err := m.src.Read()
		if err != nil {
			m.stats.PPGErrors++
			p = m.lastPair
		}
		m.window.Push(p)
		m.lastPair = p
	}
	m.iteration++

	if m.clock.Since(m.lastEval) <= m.cfg.EvalInterval {
		return false, nil
	}

	r, err := m.estimator.Estimate(m.window)
	if err != nil {
		return false, fmt.Errorf("estimate: %w", err)
	}
	m.reading = r
	m.evaluator.Evaluate(r)
	m.emitter.Vitals(r)
	m.stats.Evaluations++
	m.lastEval = m.clock.Now()
	return true, nil
}

// Run fills the window, starts the annunciator and loops until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	m.Fill()

	actx, cancel := context.WithCancel(ctx)
	defer cancel()
	go m.annunciator.Run(actx, m.cfg.AnnunciatorPeriod)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if _, err := m.Step(); err != nil {
			return err
		}
		if m.cfg.LoopInterval > 0 {
			m.clock.Sleep(m.cfg.LoopInterval)
		}
	}
}

// Reading returns the latest estimate.
func (m *Monitor) Reading() vitals.Reading {
	return m.reading
}

// State returns the latest classification.
func (m *Monitor) State() alarm.State {
	return m.evaluator.Last()
}

// Alerting reports the shared alarm flag.
func (m *Monitor) Alerting() bool {
	return m.flag.Alerting()
}

// Annunciator exposes the annunciator, for callers that drive it from their own timer.
func (m *Monitor) Annunciator() *annunciator.Annunciator {
	return m.annunciator
}

// Window exposes the PPG window.
func (m *Monitor) Window() *ppg.Window {
	return m.window
}

// Stats returns a copy of the loop counters.
func (m *Monitor) Stats() Stats {
	s := m.stats
	s.TelemetrySent = m.emitter.Sent()
	s.TelemetryDropped = m.emitter.Dropped()
	return s
}
