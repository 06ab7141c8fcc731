package link

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/itohio/govitals/pkg/alarm"
	"github.com/itohio/govitals/pkg/config"
	"github.com/itohio/govitals/pkg/monitor"
	"github.com/itohio/govitals/pkg/sim"
	"github.com/itohio/govitals/pkg/telemetry"
)

// Mock runs the sensing-board monitor on simulated sensors and parses its
// telemetry exactly like a real link.
type Mock struct {
	mcfg   monitor.Config
	logger *zap.Logger

	ecg *sim.ECG
	ppg *sim.PPG

	green, red, buzzer alarm.MemPin

	mu        sync.RWMutex
	disp      *dispatcher
	cancel    context.CancelFunc
	done      chan struct{}
	connected bool
}

// NewMock creates a simulated board from the monitor and mock sections of cfg.
// A nil cfg uses defaults.
func NewMock(cfg *config.Config, logger *zap.Logger) *Mock {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	mcfg := cfg.MonitorConfig()
	mcfg.PPGDecimation = cfg.Mock.PPGDecimation

	ppgCfg := sim.DefaultPPGConfig()
	ppgCfg.BPM = cfg.Mock.HeartRate
	ppgCfg.SpO2 = cfg.Mock.SpO2
	ppgCfg.Noise = cfg.Mock.NoiseLevel
	ppgCfg.Finger = cfg.Mock.Finger
	ppgCfg.FailEvery = cfg.Mock.DropoutEvery

	return &Mock{
		mcfg:   mcfg,
		logger: logger.With(zap.String("device", "mock")),
		ecg:    sim.NewECG(mcfg.SampleRateHz, cfg.Mock.HeartRate, cfg.Mock.NoiseLevel),
		ppg:    sim.NewPPG(ppgCfg),
		disp:   closedDispatcher(),
	}
}

// Connect starts the simulated board.
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return ErrAlreadyConnected
	}

	pr, pw := io.Pipe()
	out := alarm.Outputs{Green: &m.green, Red: &m.red, Buzzer: &m.buzzer}
	mon := monitor.New(m.mcfg, m.ecg, m.ppg, out, pw, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	m.disp = newDispatcher(DefaultBufferSize, m.logger)
	m.cancel = cancel
	m.done = done
	m.connected = true

	go func() {
		defer close(done)
		err := mon.Run(ctx)
		pw.CloseWithError(err)
	}()
	go func(disp *dispatcher) {
		disp.scan(ctx, pr)
		pr.Close()
	}(m.disp)

	return nil
}

// Close stops the simulated board and waits for its loop to exit.
func (m *Mock) Close() error {
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return nil
	}
	m.cancel()
	done := m.done
	m.connected = false
	m.mu.Unlock()

	<-done
	return nil
}

// Messages returns the channel of the current connection.
func (m *Mock) Messages() <-chan telemetry.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.disp.out
}

// IsConnected returns whether the simulation is running.
func (m *Mock) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// SetHeartRate changes the simulated pulse on both sensors.
func (m *Mock) SetHeartRate(bpm float32) {
	m.ecg.SetBPM(bpm)
	m.ppg.SetBPM(bpm)
}

// SetSpO2 changes the simulated saturation.
func (m *Mock) SetSpO2(spo2 float32) {
	m.ppg.SetSpO2(spo2)
}

// SetFinger places or removes the simulated finger.
func (m *Mock) SetFinger(present bool) {
	m.ppg.SetFinger(present)
}

// Outputs returns the simulated board's green, red and buzzer states.
func (m *Mock) Outputs() (green, red, buzzer bool) {
	return m.green.Get(), m.red.Get(), m.buzzer.Get()
}

// Stats returns the line counters of the current connection.
func (m *Mock) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.disp.snapshot()
}

// String describes the simulated patient.
func (m *Mock) String() string {
	c := m.ppg.Config()
	return fmt.Sprintf("mock(hr=%.0f spo2=%.0f finger=%t)", c.BPM, c.SpO2, c.Finger)
}
