package monitor

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/govitals/pkg/alarm"
	"github.com/itohio/govitals/pkg/ppg"
	"github.com/itohio/govitals/pkg/timeutil"
	"github.com/itohio/govitals/pkg/vitals"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newOutputs() (alarm.Outputs, *alarm.MemPin, *alarm.MemPin, *alarm.MemPin) {
	green, red, buzzer := &alarm.MemPin{}, &alarm.MemPin{}, &alarm.MemPin{}
	return alarm.Outputs{Green: green, Red: red, Buzzer: buzzer}, green, red, buzzer
}

func constantADC(v uint16) ADC {
	return ADCFunc(func() (uint16, bool) { return v, true })
}

// pulseSource yields a 50000 IR baseline with a 60000 spike every period
// samples and red at half of IR.
func pulseSource(period int) ppg.Source {
	n := 0
	return ppg.SourceFunc(func() (ppg.Pair, error) {
		ir := uint32(50000)
		if n%period == period/2 {
			ir = 60000
		}
		n++
		return ppg.Pair{Red: ir / 2, IR: ir}, nil
	})
}

func constantSource(p ppg.Pair) ppg.Source {
	return ppg.SourceFunc(func() (ppg.Pair, error) { return p, nil })
}

func lines(s string) []string {
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, time.Second, cfg.EvalInterval)
	assert.Equal(t, 2*time.Millisecond, cfg.LoopInterval)
	assert.Equal(t, 5*time.Millisecond, cfg.FillDelay)
	assert.Equal(t, 1, cfg.PPGDecimation)
	assert.Equal(t, ppg.WindowSize, cfg.WindowSize)
	assert.Equal(t, 500*time.Millisecond, cfg.AnnunciatorPeriod)
	assert.Equal(t, alarm.DefaultThresholds(), cfg.Thresholds)
}

func TestMonitor_StepBeforeFill(t *testing.T) {
	out, _, _, _ := newOutputs()
	m := New(DefaultConfig(), constantADC(0), constantSource(ppg.Pair{}), out, &bytes.Buffer{}, timeutil.NewMockClock(epoch))

	evaluated, err := m.Step()
	assert.False(t, evaluated)
	assert.ErrorIs(t, err, vitals.ErrNotFilled)
}

func TestMonitor_Fill(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	out, _, _, _ := newOutputs()
	var reads int
	src := ppg.SourceFunc(func() (ppg.Pair, error) {
		reads++
		return ppg.Pair{Red: 1, IR: 2}, nil
	})

	m := New(DefaultConfig(), constantADC(0), src, out, &bytes.Buffer{}, clock)
	m.Fill()

	assert.Equal(t, ppg.WindowSize, reads)
	assert.True(t, m.Window().Full())
	assert.Len(t, clock.Sleeps(), ppg.WindowSize-1)
	assert.Equal(t, epoch.Add(time.Duration(ppg.WindowSize-1)*5*time.Millisecond), clock.Now())
}

func TestMonitor_EvaluationGate(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	out, green, red, buzzer := newOutputs()
	var w bytes.Buffer

	m := New(DefaultConfig(), constantADC(1000), pulseSource(50), out, &w, clock)
	m.Fill()

	// Exactly one interval after Fill started: not yet.
	clock.Set(epoch.Add(time.Second))
	evaluated, err := m.Step()
	require.NoError(t, err)
	assert.False(t, evaluated)

	clock.Advance(time.Nanosecond)
	evaluated, err = m.Step()
	require.NoError(t, err)
	assert.True(t, evaluated)

	evaluated, err = m.Step()
	require.NoError(t, err)
	assert.False(t, evaluated, "timer restarts after an evaluation")

	r := m.Reading()
	assert.Equal(t, 97, r.SpO2)
	assert.Equal(t, 120, r.HeartRate)
	assert.Equal(t, alarm.Normal, m.State())
	assert.False(t, m.Alerting())
	assert.True(t, green.Get())
	assert.False(t, red.Get())
	assert.False(t, buzzer.Get())

	got := lines(w.String())
	require.Len(t, got, 4)
	assert.Equal(t, "385", got[0])
	assert.Equal(t, "S:97,120", got[2])

	stats := m.Stats()
	assert.Equal(t, uint64(3), stats.Iterations)
	assert.Equal(t, uint64(1), stats.Evaluations)
	assert.Equal(t, uint64(4), stats.TelemetrySent)
	assert.Equal(t, uint64(0), stats.TelemetryDropped)
}

func TestMonitor_VitalsOncePerEvaluation(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	out, _, _, _ := newOutputs()
	var w bytes.Buffer

	m := New(DefaultConfig(), constantADC(100), pulseSource(50), out, &w, clock)
	m.Fill()

	var evaluations int
	for range 2000 {
		evaluated, err := m.Step()
		require.NoError(t, err)
		if evaluated {
			evaluations++
		}
		clock.Sleep(2 * time.Millisecond)
	}

	vitalsLines := strings.Count(w.String(), "S:")
	assert.Equal(t, evaluations, vitalsLines)
	// 2000 iterations at 2 ms is 4 s of loop time plus the fill phase.
	assert.Equal(t, 4, evaluations)
}

func TestMonitor_ADCTimeoutSkipsECGLine(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	out, _, _, _ := newOutputs()
	var w bytes.Buffer

	adc := ADCFunc(func() (uint16, bool) { return 0, false })
	m := New(DefaultConfig(), adc, pulseSource(50), out, &w, clock)
	m.Fill()

	_, err := m.Step()
	require.NoError(t, err)

	assert.Empty(t, w.String())
	assert.Equal(t, uint64(1), m.Stats().ADCTimeouts)
}

func TestMonitor_StalePairOnPPGError(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	out, _, _, _ := newOutputs()

	fail := false
	src := ppg.SourceFunc(func() (ppg.Pair, error) {
		if fail {
			return ppg.Pair{}, errors.New("i2c timeout")
		}
		return ppg.Pair{Red: 111, IR: 222}, nil
	})

	m := New(DefaultConfig(), constantADC(0), src, out, &bytes.Buffer{}, clock)
	m.Fill()

	fail = true
	for range 3 {
		_, err := m.Step()
		require.NoError(t, err)
	}

	win := m.Window()
	assert.Equal(t, ppg.Pair{Red: 111, IR: 222}, win.At(win.Len()-1))
	assert.Equal(t, uint64(3), m.Stats().PPGErrors)
}

func TestMonitor_Decimation(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	out, _, _, _ := newOutputs()

	var reads int
	src := ppg.SourceFunc(func() (ppg.Pair, error) {
		reads++
		return ppg.Pair{}, nil
	})

	cfg := DefaultConfig()
	cfg.PPGDecimation = 5
	m := New(cfg, constantADC(0), src, out, &bytes.Buffer{}, clock)
	m.Fill()
	reads = 0

	for range 10 {
		_, err := m.Step()
		require.NoError(t, err)
	}
	assert.Equal(t, 2, reads)
}

func TestMonitor_NoFinger(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	out, green, red, buzzer := newOutputs()

	m := New(DefaultConfig(), constantADC(0), constantSource(ppg.Pair{Red: 100, IR: 500}), out, &bytes.Buffer{}, clock)
	m.Fill()
	clock.Advance(2 * time.Second)

	evaluated, err := m.Step()
	require.NoError(t, err)
	require.True(t, evaluated)

	assert.Equal(t, alarm.NoFinger, m.State())
	assert.True(t, green.Get())
	assert.False(t, red.Get())
	assert.False(t, buzzer.Get())
}

func TestMonitor_AlertDrivesAnnunciator(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	out, green, red, buzzer := newOutputs()

	// Flat signal: no peaks, so heart rate 0 is below the limit.
	m := New(DefaultConfig(), constantADC(0), constantSource(ppg.Pair{Red: 25000, IR: 50000}), out, &bytes.Buffer{}, clock)
	m.Fill()
	clock.Advance(2 * time.Second)

	evaluated, err := m.Step()
	require.NoError(t, err)
	require.True(t, evaluated)

	assert.Equal(t, alarm.Alert, m.State())
	assert.True(t, m.Alerting())
	assert.False(t, green.Get())

	m.Annunciator().Activate()
	assert.True(t, red.Get())
	assert.True(t, buzzer.Get())
	m.Annunciator().Activate()
	assert.False(t, red.Get())
	assert.False(t, buzzer.Get())
}

func TestMonitor_Run(t *testing.T) {
	out, _, _, _ := newOutputs()
	w := &syncBuffer{}

	cfg := DefaultConfig()
	cfg.FillDelay = 0
	cfg.LoopInterval = time.Millisecond
	cfg.EvalInterval = 20 * time.Millisecond
	cfg.AnnunciatorPeriod = 5 * time.Millisecond

	m := New(cfg, constantADC(1000), constantSource(ppg.Pair{Red: 25000, IR: 50000}), out, w, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	assert.Eventually(t, func() bool {
		return strings.Contains(w.String(), "S:")
	}, 2*time.Second, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		return m.Annunciator().Activations() > 0
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
