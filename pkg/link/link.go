// Package link connects the host to the sensing board's telemetry stream,
// either directly over serial, through the UDP relay, or to a simulated board.
package link

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/itohio/govitals/pkg/telemetry"
)

// DefaultBufferSize is the default size of the messages channel.
const DefaultBufferSize = 1000

// ErrAlreadyConnected is returned by Connect on a connected device.
var ErrAlreadyConnected = errors.New("link: already connected")

// Device is a telemetry source (real or simulated).
type Device interface {
	Connect() error
	Close() error
	// Messages returns the channel of the current connection. It is closed
	// when the connection ends.
	Messages() <-chan telemetry.Message
	IsConnected() bool
}

var (
	_ Device = (*Serial)(nil)
	_ Device = (*UDP)(nil)
	_ Device = (*Mock)(nil)
)

// Stats are link counters.
type Stats struct {
	Lines   uint64
	Invalid uint64
	Dropped uint64
}

// dispatcher parses lines and delivers messages without blocking.
type dispatcher struct {
	out    chan telemetry.Message
	logger *zap.Logger
	now    func() time.Time

	lines   atomic.Uint64
	invalid atomic.Uint64
	dropped atomic.Uint64
}

func newDispatcher(bufSize int, logger *zap.Logger) *dispatcher {
	return &dispatcher{
		out:    make(chan telemetry.Message, bufSize),
		logger: logger,
		now:    time.Now,
	}
}

func (d *dispatcher) line(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	d.lines.Add(1)

	msg, err := telemetry.ParseLine(line)
	if err != nil {
		d.invalid.Add(1)
		d.logger.Debug("Failed to parse line", zap.String("line", line), zap.Error(err))
		return
	}
	msg.Timestamp = d.now()

	select {
	case d.out <- msg:
	default:
		d.dropped.Add(1)
		d.logger.Debug("Messages channel full, dropping message")
	}
}

func (d *dispatcher) snapshot() Stats {
	return Stats{
		Lines:   d.lines.Load(),
		Invalid: d.invalid.Load(),
		Dropped: d.dropped.Load(),
	}
}

// scan reads lines from r until it fails or ctx is done, then closes out.
func (d *dispatcher) scan(ctx context.Context, r io.Reader) {
	defer close(d.out)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		d.line(scanner.Text())
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		d.logger.Warn("Read failed", zap.Error(err))
	}
}

// Splitter reassembles lines from arbitrarily cut chunks. A trailing
// partial line is carried over to the next Feed.
type Splitter struct {
	carry      []byte
	limit      int
	discarding bool
	discarded  int
}

// NewSplitter creates a splitter that discards lines longer than limit bytes.
func NewSplitter(limit int) *Splitter {
	if limit <= 0 {
		limit = 256
	}
	return &Splitter{limit: limit}
}

// Feed appends chunk and calls fn for every complete line. A line that
// grows past the limit is skipped up to and including its newline.
func (s *Splitter) Feed(chunk []byte, fn func(line string)) {
	for len(chunk) > 0 {
		i := bytes.IndexByte(chunk, '\n')
		if i < 0 {
			if !s.discarding {
				s.carry = append(s.carry, chunk...)
				s.overflow()
			}
			return
		}
		if !s.discarding {
			s.carry = append(s.carry, chunk[:i]...)
			s.overflow()
		}
		if !s.discarding {
			fn(string(s.carry))
		}
		s.carry = s.carry[:0]
		s.discarding = false
		chunk = chunk[i+1:]
	}
}

func (s *Splitter) overflow() {
	if len(s.carry) > s.limit {
		s.carry = s.carry[:0]
		s.discarding = true
		s.discarded++
	}
}

// Discarded returns how many overlong lines were dropped.
func (s *Splitter) Discarded() int {
	return s.discarded
}

// Reset drops any partial line.
func (s *Splitter) Reset() {
	s.carry = s.carry[:0]
	s.discarding = false
}
