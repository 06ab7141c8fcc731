package session

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/govitals/pkg/sample"
)

type nopCloser struct {
	*bytes.Buffer
	closed bool
}

func (n *nopCloser) Close() error {
	n.closed = true
	return nil
}

func TestFileName(t *testing.T) {
	ts := time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)

	assert.Equal(t, "History_Ana_Perez_20240305_140709.txt", FileName(Patient{Name: "Ana Perez"}, ts))
	assert.Equal(t, "History_Anonymous_20240305_140709.txt", FileName(Patient{}, ts))
	assert.Equal(t, "History_a_b_20240305_140709.txt", FileName(Patient{Name: "a/b"}, ts))
}

func TestRecorder_Format(t *testing.T) {
	buf := &nopCloser{Buffer: &bytes.Buffer{}}
	start := time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)

	r, err := NewRecorder(buf, Patient{Name: "Ana", Age: "34"}, start, true)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, r.ID())

	require.NoError(t, r.Sample(sample.Sample{Timestamp: start.Add(2 * time.Millisecond), Value: 2048}))
	require.NoError(t, r.Vitals(Vitals{Timestamp: start.Add(time.Second), SpO2: 88, HeartRate: 72}))
	require.NoError(t, r.Event(Event{Timestamp: start.Add(time.Second), Type: EventAlarm, Detail: DetailHypoxia, Value: "88"}))
	require.NoError(t, r.Close(""))
	assert.True(t, buf.closed)

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 11)
	assert.Equal(t, "=== TELEMETRY SYSTEM LOG ===", lines[0])
	assert.Equal(t, "PATIENT: Ana | AGE: 34", lines[1])
	assert.Equal(t, "SESSION START: 2024-03-05 14:07:09.000000", lines[2])
	assert.Equal(t, "SESSION ID: "+r.ID().String(), lines[3])
	assert.Equal(t, "TIMESTAMP,TYPE,DETAIL,VALUE", lines[5])
	assert.Equal(t, "14:07:09.000,SYSTEM,RECORDING STARTED,", lines[6])
	assert.Equal(t, "14:07:09.002,ECG,Sample,2048.00", lines[7])
	assert.Equal(t, "14:07:10.000,VITALS,SPO2/HR,88/72", lines[8])
	assert.Equal(t, "14:07:10.000,ALARM,HYPOXIA DETECTED,88", lines[9])
	assert.True(t, strings.HasSuffix(lines[10], ",SYSTEM,RECORDING STOPPED,"))
	assert.Equal(t, 5, r.Rows())
}

func TestRecorder_WithoutECG(t *testing.T) {
	buf := &nopCloser{Buffer: &bytes.Buffer{}}
	r, err := NewRecorder(buf, Patient{}, time.Now(), false)
	require.NoError(t, err)

	require.NoError(t, r.Sample(sample.Sample{Timestamp: time.Now(), Value: 1}))
	assert.Equal(t, 1, r.Rows())
	assert.Contains(t, buf.String(), "PATIENT: Anonymous | AGE: ?")
}

func TestRecorder_ClosedRejectsWrites(t *testing.T) {
	buf := &nopCloser{Buffer: &bytes.Buffer{}}
	r, err := NewRecorder(buf, Patient{}, time.Now(), true)
	require.NoError(t, err)

	require.NoError(t, r.Close(DetailAppClosed))
	require.NoError(t, r.Close(""), "second close is a no-op")
	assert.ErrorIs(t, r.Vitals(Vitals{SpO2: 90}), ErrRecorderClosed)
	assert.Contains(t, buf.String(), ",SYSTEM,APPLICATION CLOSED,")
}

func TestCreate(t *testing.T) {
	dir := t.TempDir()
	start := time.Now()

	r, err := Create(dir, Patient{Name: "Luis", Age: "60"}, start, false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, FileName(Patient{Name: "Luis"}, start)), r.Path())
	assert.Equal(t, "Luis", r.Patient().Name)

	s := New(time.Second, 90, nil)
	s.AddSink(r)
	s.AddVitals(Vitals{Timestamp: start, SpO2: 85, HeartRate: 100})
	require.NoError(t, r.Close(""))

	data, err := os.ReadFile(r.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), ",ALARM,HYPOXIA DETECTED,85")
	assert.Contains(t, string(data), ",VITALS,SPO2/HR,85/100")
}

func TestCreate_BadDirectory(t *testing.T) {
	_, err := Create(filepath.Join(t.TempDir(), "missing"), Patient{}, time.Now(), false)
	assert.Error(t, err)
}

func TestRecorder_SummaryCoversOnlyRecording(t *testing.T) {
	s := New(5*time.Second, 90, nil)
	start := time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)

	// Before recording: one hypoxia episode and two reports.
	s.AddVitals(Vitals{Timestamp: start, SpO2: 80, HeartRate: 60})
	s.AddVitals(Vitals{Timestamp: start.Add(time.Second), SpO2: 97, HeartRate: 60})

	r, err := NewRecorder(&nopCloser{Buffer: &bytes.Buffer{}}, Patient{}, start.Add(2*time.Second), false)
	require.NoError(t, err)
	s.AddSink(r)

	s.AddVitals(Vitals{Timestamp: start.Add(3 * time.Second), SpO2: 96, HeartRate: 70})
	s.AddVitals(Vitals{Timestamp: start.Add(4 * time.Second), SpO2: 86, HeartRate: 90})
	s.AddVitals(Vitals{Timestamp: start.Add(5 * time.Second), SpO2: 0, HeartRate: 0})
	s.RemoveSink(r)
	s.AddVitals(Vitals{Timestamp: start.Add(6 * time.Second), SpO2: 99, HeartRate: 120})

	sum := r.Summary()
	assert.Equal(t, 3, sum.Reports)
	assert.Equal(t, 2, sum.Valid)
	assert.InDelta(t, 91, sum.SpO2Mean, 1e-9)
	assert.InDelta(t, 86, sum.SpO2Min, 1e-9)
	assert.InDelta(t, 70, sum.HeartRateMin, 1e-9)
	assert.InDelta(t, 90, sum.HeartRateMax, 1e-9)
	assert.Equal(t, 1, sum.HypoxiaEvents)

	assert.Equal(t, 6, s.Summary().Reports)
	assert.Equal(t, 2, s.Summary().HypoxiaEvents)

	require.NoError(t, r.Close(""))
	assert.Equal(t, 3, r.Summary().Reports, "summary survives Close")
}
