package main

import (
	"fmt"
	"image/color"
	"strconv"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/govitals/pkg/alarm"
	"github.com/itohio/govitals/pkg/link"
	"github.com/itohio/govitals/pkg/session"
	"github.com/itohio/govitals/pkg/vitals"
)

var (
	idleColor   = color.RGBA{R: 120, G: 120, B: 120, A: 255}
	normalColor = color.RGBA{R: 60, G: 220, B: 90, A: 255}
	alertColor  = color.RGBA{R: 255, G: 60, B: 60, A: 255}
	buzzColor   = color.RGBA{R: 255, G: 200, B: 0, A: 255}
	offColor    = color.RGBA{R: 40, G: 40, B: 40, A: 255}
)

// classify derives the alarm state of a received report. The host never sees
// the IR level; the board reports a zero heart rate without a finger.
func classify(v session.Vitals, th alarm.Thresholds) alarm.State {
	if v.HeartRate == 0 {
		return alarm.NoFinger
	}
	return alarm.Classify(vitals.Reading{SpO2: v.SpO2, HeartRate: v.HeartRate, MeanIR: th.FingerIR}, th)
}

// noPulseLabel is shown for a zero heart rate. The host cannot tell a
// missing finger from a finger without a detectable pulse, so it alerts.
const noPulseLabel = "NO PULSE / NO FINGER"

func stateColor(s alarm.State) color.Color {
	switch s {
	case alarm.Normal:
		return normalColor
	case alarm.Alert, alarm.NoFinger:
		return alertColor
	default:
		return idleColor
	}
}

func statusLabel(s alarm.State) string {
	if s == alarm.NoFinger {
		return noPulseLabel
	}
	return s.String()
}

// vitalsPanel shows the latest SpO2 and heart rate in large digits.
type vitalsPanel struct {
	th alarm.Thresholds

	spo2      *canvas.Text
	heartRate *canvas.Text
	status    *canvas.Text
	container fyne.CanvasObject
}

func newVitalsPanel(th alarm.Thresholds) *vitalsPanel {
	p := &vitalsPanel{
		th:        th,
		spo2:      bigText("--"),
		heartRate: bigText("--"),
		status:    canvas.NewText("WAITING", idleColor),
	}
	p.status.TextSize = 16
	p.status.TextStyle = fyne.TextStyle{Bold: true}

	p.container = container.NewVBox(
		widget.NewLabel("SpO2 %"),
		p.spo2,
		widget.NewLabel("Heart rate BPM"),
		p.heartRate,
		widget.NewSeparator(),
		p.status,
	)
	return p
}

func bigText(s string) *canvas.Text {
	t := canvas.NewText(s, idleColor)
	t.TextSize = 48
	t.TextStyle = fyne.TextStyle{Bold: true, Monospace: true}
	t.Alignment = fyne.TextAlignTrailing
	return t
}

// update shows the latest report. Must run on the main thread.
func (p *vitalsPanel) update(snap session.Snapshot) {
	if !snap.HasVitals {
		return
	}
	state := classify(snap.Vitals, p.th)
	c := stateColor(state)

	p.spo2.Text, p.heartRate.Text = formatReading(snap.Vitals, state)
	p.spo2.Color = c
	p.heartRate.Color = c
	if state == alarm.NoFinger {
		p.spo2.Color = idleColor
	}
	p.status.Text = statusLabel(state)
	p.status.Color = c
	if snap.Hypoxia {
		p.status.Text += " / HYPOXIA"
	}

	p.spo2.Refresh()
	p.heartRate.Refresh()
	p.status.Refresh()
}

func formatReading(v session.Vitals, s alarm.State) (spo2, hr string) {
	if s == alarm.NoFinger {
		return "--", "0"
	}
	return strconv.Itoa(v.SpO2), strconv.Itoa(v.HeartRate)
}

// setThresholds changes the colouring limits.
func (p *vitalsPanel) setThresholds(th alarm.Thresholds) {
	p.th = th
}

// mockPanel controls the simulated patient and mirrors the board's LEDs.
type mockPanel struct {
	state *appState
	mock  *link.Mock

	heartRate *widget.Slider
	spo2      *widget.Slider
	finger    *widget.Check
	label     *widget.Label

	green, red, buzzer *canvas.Circle
	container          *fyne.Container
}

func newMockPanel(state *appState) *mockPanel {
	p := &mockPanel{
		state:  state,
		label:  widget.NewLabel(""),
		green:  led(),
		red:    led(),
		buzzer: led(),
	}

	p.heartRate = widget.NewSlider(20, 200)
	p.heartRate.Step = 1
	p.heartRate.SetValue(float64(state.cfg.Mock.HeartRate))
	p.heartRate.OnChanged = func(v float64) {
		if p.mock != nil {
			p.mock.SetHeartRate(float32(v))
		}
		p.refreshLabel()
	}

	p.spo2 = widget.NewSlider(70, 100)
	p.spo2.Step = 1
	p.spo2.SetValue(float64(state.cfg.Mock.SpO2))
	p.spo2.OnChanged = func(v float64) {
		if p.mock != nil {
			p.mock.SetSpO2(float32(v))
		}
		p.refreshLabel()
	}

	p.finger = widget.NewCheck("Finger", func(on bool) {
		if p.mock != nil {
			p.mock.SetFinger(on)
		}
		p.refreshLabel()
	})
	p.finger.SetChecked(state.cfg.Mock.Finger)

	p.container = container.NewBorder(nil, nil,
		container.NewHBox(p.finger, p.label),
		container.NewHBox(p.green, p.red, p.buzzer),
		container.NewGridWithColumns(2, p.heartRate, p.spo2),
	)
	p.setDevice(nil)
	return p
}

func led() *canvas.Circle {
	c := canvas.NewCircle(offColor)
	c.Resize(fyne.NewSize(16, 16))
	return c
}

// setDevice attaches the panel to a running simulation, nil hides it.
func (p *mockPanel) setDevice(m *link.Mock) {
	p.mock = m
	if m == nil {
		p.container.Hide()
		return
	}
	m.SetHeartRate(float32(p.heartRate.Value))
	m.SetSpO2(float32(p.spo2.Value))
	m.SetFinger(p.finger.Checked)
	p.refreshLabel()
	p.container.Show()
}

func (p *mockPanel) refreshLabel() {
	if p.mock == nil {
		return
	}
	p.label.SetText(fmt.Sprintf("HR %.0f  SpO2 %.0f", p.heartRate.Value, p.spo2.Value))
}

// refreshLEDs mirrors the simulated board's outputs. Must run on the main thread.
func (p *mockPanel) refreshLEDs() {
	if p.mock == nil {
		return
	}
	green, red, buzzer := p.mock.Outputs()
	setLED(p.green, green, normalColor)
	setLED(p.red, red, alertColor)
	setLED(p.buzzer, buzzer, buzzColor)
}

func setLED(c *canvas.Circle, on bool, onColor color.Color) {
	want := color.Color(offColor)
	if on {
		want = onColor
	}
	if c.FillColor == want {
		return
	}
	c.FillColor = want
	c.Refresh()
}
