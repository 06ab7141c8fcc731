package main

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/govitals/pkg/alarm"
	"github.com/itohio/govitals/pkg/config"
	"github.com/itohio/govitals/pkg/link"
	"github.com/itohio/govitals/pkg/session"
)

func TestApplyFlags(t *testing.T) {
	tests := []struct {
		name     string
		kind     string
		port     string
		listen   string
		mock     bool
		average  int
		wantKind string
		wantPort string
		wantAvg  int
	}{
		{name: "no overrides", average: -1, wantKind: config.LinkUDP, wantPort: "/dev/ttyUSB0"},
		{name: "port implies serial", port: "COM3", average: -1, wantKind: config.LinkSerial, wantPort: "COM3"},
		{name: "explicit kind wins over port", kind: config.LinkUDP, port: "COM3", average: -1, wantKind: config.LinkUDP, wantPort: "COM3"},
		{name: "mock flag", mock: true, port: "COM3", average: 4, wantKind: config.LinkMock, wantPort: "COM3", wantAvg: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			applyFlags(cfg, tt.kind, tt.port, tt.listen, tt.mock, tt.average)
			assert.Equal(t, tt.wantKind, cfg.Link.Kind)
			assert.Equal(t, tt.wantPort, cfg.Serial.Port)
			assert.Equal(t, tt.wantAvg, cfg.Display.AverageSamples)
		})
	}

	cfg := config.Default()
	applyFlags(cfg, "", "", ":4444", false, -1)
	assert.Equal(t, ":4444", cfg.Link.Listen)
}

func TestOpenDevice(t *testing.T) {
	cfg := config.Default()

	cfg.Link.Kind = config.LinkSerial
	assert.IsType(t, &link.Serial{}, openDevice(cfg, nil))
	assert.Contains(t, describeLink(cfg), cfg.Serial.Port)

	cfg.Link.Kind = config.LinkMock
	assert.IsType(t, &link.Mock{}, openDevice(cfg, nil))
	assert.Equal(t, "simulated board", describeLink(cfg))

	cfg.Link.Kind = config.LinkUDP
	assert.IsType(t, &link.UDP{}, openDevice(cfg, nil))
	assert.Equal(t, "UDP :3333", describeLink(cfg))
}

func TestClassify(t *testing.T) {
	th := alarm.DefaultThresholds()
	tests := []struct {
		name  string
		v     session.Vitals
		want  alarm.State
		spo2  string
		heart string
	}{
		{"no pulse", session.Vitals{SpO2: 99, HeartRate: 0}, alarm.NoFinger, "--", "0"},
		{"normal", session.Vitals{SpO2: 97, HeartRate: 72}, alarm.Normal, "97", "72"},
		{"hypoxia", session.Vitals{SpO2: 85, HeartRate: 72}, alarm.Alert, "85", "72"},
		{"tachycardia", session.Vitals{SpO2: 97, HeartRate: 180}, alarm.Alert, "97", "180"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.v, th)
			assert.Equal(t, tt.want, got)
			spo2, hr := formatReading(tt.v, got)
			assert.Equal(t, tt.spo2, spo2)
			assert.Equal(t, tt.heart, hr)
		})
	}
	assert.Equal(t, alertColor, stateColor(alarm.Alert))
	assert.Equal(t, normalColor, stateColor(alarm.Normal))
	assert.Equal(t, alertColor, stateColor(alarm.NoFinger), "zero heart rate must not look idle")
	assert.Equal(t, idleColor, stateColor(alarm.State(255)))
	assert.Equal(t, noPulseLabel, statusLabel(alarm.NoFinger))
	assert.Equal(t, alarm.Alert.String(), statusLabel(alarm.Alert))
}

func TestThrottle(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	th := throttle{now: func() time.Time { return now }}

	assert.True(t, th.allow())
	now = now.Add(5 * time.Millisecond)
	assert.False(t, th.allow())
	now = now.Add(updateInterval)
	assert.True(t, th.allow())
}

func TestWindowDuration(t *testing.T) {
	cfg := config.Default()
	cfg.Display.WindowSeconds = 2.5
	assert.Equal(t, 2500*time.Millisecond, windowDuration(cfg))
	cfg.Display.WindowSeconds = 0
	assert.Equal(t, 5*time.Second, windowDuration(cfg))
}

type nopCloser struct{}

func (nopCloser) Write(p []byte) (int, error) { return len(p), nil }
func (nopCloser) Close() error                { return nil }

func TestSummaryText(t *testing.T) {
	rec, err := session.NewRecorder(nopCloser{}, session.Patient{Name: "Jane", Age: "42"}, time.Now(), false)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, rec.ID())

	text := summaryText(rec, session.Summary{Reports: 3})
	assert.Contains(t, text, "Patient: Jane (42)")
	assert.Contains(t, text, "none with a finger")

	text = summaryText(rec, session.Summarize([]session.Vitals{
		{SpO2: 96, HeartRate: 70},
		{SpO2: 98, HeartRate: 74},
	}))
	assert.Contains(t, text, "Reports: 2 (2 valid)")
	assert.Contains(t, text, "SpO2: 97.0")
	assert.Contains(t, text, "HR: 72.0")
}
