// Package telemetry implements the line-oriented serial protocol between the
// sensing board and the host side:
//
//	<int>\n            filtered ECG sample
//	S:<spo2>,<hr>\n    vitals summary, once per evaluation
package telemetry

import (
	"io"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/itohio/govitals/pkg/vitals"
)

const (
	// ECGTimeout bounds the write of one ECG line.
	ECGTimeout = 10 * time.Millisecond
	// VitalsTimeout bounds the write of one vitals line.
	VitalsTimeout = 100 * time.Millisecond

	vitalsPrefix = "S:"
)

// DeadlineWriter is implemented by writers that support a write deadline.
type DeadlineWriter interface {
	io.Writer
	SetWriteDeadline(t time.Time) error
}

// Emitter formats telemetry lines and writes them fire-and-forget.
// A failed write is counted and dropped, never retried.
type Emitter struct {
	w   io.Writer
	buf []byte

	ecgTimeout    time.Duration
	vitalsTimeout time.Duration

	sent    atomic.Uint64
	dropped atomic.Uint64
}

// NewEmitter creates an emitter writing to w. Zero timeouts use ECGTimeout and VitalsTimeout.
func NewEmitter(w io.Writer, ecgTimeout, vitalsTimeout time.Duration) *Emitter {
	if ecgTimeout <= 0 {
		ecgTimeout = ECGTimeout
	}
	if vitalsTimeout <= 0 {
		vitalsTimeout = VitalsTimeout
	}
	return &Emitter{
		w:             w,
		buf:           make([]byte, 0, 32),
		ecgTimeout:    ecgTimeout,
		vitalsTimeout: vitalsTimeout,
	}
}

// ECG emits one filtered ECG sample, truncated toward zero.
func (e *Emitter) ECG(y float32) {
	e.buf = AppendECG(e.buf[:0], int(y))
	e.write(e.ecgTimeout)
}

// Vitals emits one vitals summary line.
func (e *Emitter) Vitals(r vitals.Reading) {
	e.buf = AppendVitals(e.buf[:0], r.SpO2, r.HeartRate)
	e.write(e.vitalsTimeout)
}

// Sent returns the number of lines written successfully.
func (e *Emitter) Sent() uint64 {
	return e.sent.Load()
}

// Dropped returns the number of lines lost to write errors or timeouts.
func (e *Emitter) Dropped() uint64 {
	return e.dropped.Load()
}

func (e *Emitter) write(timeout time.Duration) {
	if dw, ok := e.w.(DeadlineWriter); ok {
		if err := dw.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			e.dropped.Add(1)
			return
		}
	}

	n, err := e.w.Write(e.buf)
	if err != nil || n != len(e.buf) {
		e.dropped.Add(1)
		return
	}
	e.sent.Add(1)
}

// AppendECG appends an ECG line to dst.
func AppendECG(dst []byte, value int) []byte {
	dst = strconv.AppendInt(dst, int64(value), 10)
	return append(dst, '\n')
}

// AppendVitals appends a vitals line to dst.
func AppendVitals(dst []byte, spo2, heartRate int) []byte {
	dst = append(dst, vitalsPrefix...)
	dst = strconv.AppendInt(dst, int64(spo2), 10)
	dst = append(dst, ',')
	dst = strconv.AppendInt(dst, int64(heartRate), 10)
	return append(dst, '\n')
}
