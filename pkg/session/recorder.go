package session

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/itohio/govitals/pkg/sample"
)

// ErrRecorderClosed is returned by writes after Close.
var ErrRecorderClosed = errors.New("session: recorder closed")

const (
	rowTimeLayout  = "15:04:05.000"
	fileTimeLayout = "20060102_150405"
	headerRule     = "===================================="
)

// Patient identifies whose session is recorded.
type Patient struct {
	Name string
	Age  string
}

func (p Patient) withDefaults() Patient {
	p.Name = strings.TrimSpace(p.Name)
	p.Age = strings.TrimSpace(p.Age)
	if p.Name == "" {
		p.Name = "Anonymous"
	}
	if p.Age == "" {
		p.Age = "?"
	}
	return p
}

// FileName returns the history file name for a session started at t.
func FileName(p Patient, t time.Time) string {
	p = p.withDefaults()
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, p.Name)
	return fmt.Sprintf("History_%s_%s.txt", name, t.Format(fileTimeLayout))
}

// Recorder writes a session history as text: a header followed by
// TIMESTAMP,TYPE,DETAIL,VALUE rows. It implements Sink.
type Recorder struct {
	mu      sync.Mutex
	w       *bufio.Writer
	c       io.Closer
	id      uuid.UUID
	path    string
	patient Patient
	ecg     bool
	rows    int
	closed  bool

	reports []Vitals
	hypoxia int
}

var _ Sink = (*Recorder)(nil)

// Create opens a new history file in dir and writes its header.
func Create(dir string, p Patient, start time.Time, recordECG bool) (*Recorder, error) {
	path := filepath.Join(dir, FileName(p, start))
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create history file: %w", err)
	}

	r, err := NewRecorder(f, p, start, recordECG)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.path = path
	return r, nil
}

// NewRecorder writes the header to w and logs the start of recording.
// recordECG selects whether every ECG sample gets a row.
func NewRecorder(w io.WriteCloser, p Patient, start time.Time, recordECG bool) (*Recorder, error) {
	p = p.withDefaults()
	r := &Recorder{
		w:       bufio.NewWriter(w),
		c:       w,
		id:      uuid.New(),
		patient: p,
		ecg:     recordECG,
	}

	header := []string{
		"=== TELEMETRY SYSTEM LOG ===",
		fmt.Sprintf("PATIENT: %s | AGE: %s", p.Name, p.Age),
		fmt.Sprintf("SESSION START: %s", start.Format("2006-01-02 15:04:05.000000")),
		fmt.Sprintf("SESSION ID: %s", r.id),
		headerRule,
		"TIMESTAMP,TYPE,DETAIL,VALUE",
	}
	for _, line := range header {
		if _, err := r.w.WriteString(line + "\n"); err != nil {
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
	}

	if err := r.Event(Event{Timestamp: start, Type: EventSystem, Detail: DetailRecordingStarted}); err != nil {
		return nil, err
	}
	return r, nil
}

// ID returns the session identifier written to the header.
func (r *Recorder) ID() uuid.UUID {
	return r.id
}

// Path returns the file path, empty when not created by Create.
func (r *Recorder) Path() string {
	return r.path
}

// Patient returns the recorded patient.
func (r *Recorder) Patient() Patient {
	return r.patient
}

// Rows returns the number of rows written after the header.
func (r *Recorder) Rows() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows
}

// Sample implements Sink.
func (r *Recorder) Sample(s sample.Sample) error {
	if !r.ecg {
		return nil
	}
	return r.Event(SampleEvent(s))
}

// Vitals implements Sink.
func (r *Recorder) Vitals(v Vitals) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.writeRow(v.Event()); err != nil {
		return err
	}
	r.reports = append(r.reports, v)
	return nil
}

// Event implements Sink.
func (r *Recorder) Event(e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.writeRow(e); err != nil {
		return err
	}
	if e.Type == EventAlarm && e.Detail == DetailHypoxia {
		r.hypoxia++
	}
	return nil
}

// Summary summarizes the reports and hypoxia events written by this recorder.
func (r *Recorder) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	sum := Summarize(r.reports)
	sum.HypoxiaEvents = r.hypoxia
	return sum
}

func (r *Recorder) writeRow(e Event) error {
	if r.closed {
		return ErrRecorderClosed
	}
	line := e.Timestamp.Format(rowTimeLayout) + "," + string(e.Type) + "," + e.Detail + "," + e.Value + "\n"
	if _, err := r.w.WriteString(line); err != nil {
		return fmt.Errorf("failed to write row: %w", err)
	}
	r.rows++
	return nil
}

// Close logs detail (RECORDING STOPPED when empty), flushes and closes the file.
func (r *Recorder) Close(detail string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	if detail == "" {
		detail = DetailRecordingStopped
	}
	werr := r.writeRow(Event{Timestamp: time.Now(), Type: EventSystem, Detail: detail})
	r.closed = true

	ferr := r.w.Flush()
	cerr := r.c.Close()
	return errors.Join(werr, ferr, cerr)
}
