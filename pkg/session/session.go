package session

import (
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/itohio/govitals/pkg/sample"
	"github.com/itohio/govitals/pkg/telemetry"
)

// DefaultHypoxiaSpO2 is the host-side hypoxia event threshold.
const DefaultHypoxiaSpO2 = 90

// Snapshot is the state handed to update callbacks.
type Snapshot struct {
	Samples   []sample.Sample // ECG window, oldest first
	Vitals    Vitals          // latest report
	HasVitals bool
	Hypoxia   bool
}

// Session keeps the live ECG window and vitals for one monitoring session,
// derives hypoxia events and fans everything out to sinks.
type Session struct {
	logger *zap.Logger

	mu        sync.RWMutex
	window    time.Duration
	hypoxia   int
	samples   []sample.Sample // FIFO, trimmed by timestamp
	latest    Vitals
	hasVitals bool
	history   []Vitals
	hypoxic   bool
	events    int
	shutdown  bool

	sinkMu sync.RWMutex
	sinks  []Sink

	cbMu      sync.RWMutex
	callbacks []func(Snapshot)
}

// New creates a session keeping window worth of ECG samples. Readings with
// 0 < SpO2 < hypoxiaSpO2 raise a hypoxia event.
func New(window time.Duration, hypoxiaSpO2 int, logger *zap.Logger) *Session {
	if hypoxiaSpO2 <= 0 {
		hypoxiaSpO2 = DefaultHypoxiaSpO2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		logger:  logger,
		window:  window,
		hypoxia: hypoxiaSpO2,
		samples: make([]sample.Sample, 0),
	}
}

// ProcessSamples consumes ECG samples until input closes. After that no
// further callbacks are sent until ResetShutdown.
func (s *Session) ProcessSamples(input <-chan sample.Sample) {
	for smp := range input {
		s.processSample(smp)
	}
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()
}

func (s *Session) processSample(smp sample.Sample) {
	s.mu.Lock()
	s.samples = append(s.samples, smp)

	cutoff := smp.Timestamp.Add(-s.window)
	drop := 0
	for drop < len(s.samples) && !s.samples[drop].Timestamp.After(cutoff) {
		drop++
	}
	if drop > 0 {
		s.samples = append(s.samples[:0], s.samples[drop:]...)
	}
	notify := !s.shutdown
	s.mu.Unlock()

	s.forEachSink(func(k Sink) error { return k.Sample(smp) })
	if notify {
		s.notifyCallbacks()
	}
}

// HandleVitals processes a vitals message. Other message kinds are ignored.
func (s *Session) HandleVitals(m telemetry.Message) {
	if m.Kind != telemetry.KindVitals {
		return
	}
	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	s.AddVitals(Vitals{Timestamp: ts, SpO2: m.SpO2, HeartRate: m.HeartRate})
}

// AddVitals records a report and emits hypoxia edge events: one ALARM on
// entering 0 < SpO2 < threshold, one INFO on leaving it.
func (s *Session) AddVitals(v Vitals) {
	s.mu.Lock()
	s.latest = v
	s.hasVitals = true
	s.history = append(s.history, v)

	var edge *Event
	low := v.SpO2 > 0 && v.SpO2 < s.hypoxia
	switch {
	case low && !s.hypoxic:
		s.hypoxic = true
		s.events++
		edge = &Event{Timestamp: v.Timestamp, Type: EventAlarm, Detail: DetailHypoxia, Value: strconv.Itoa(v.SpO2)}
	case !low && s.hypoxic:
		s.hypoxic = false
		edge = &Event{Timestamp: v.Timestamp, Type: EventInfo, Detail: DetailRecovered, Value: strconv.Itoa(v.SpO2)}
	}
	notify := !s.shutdown
	s.mu.Unlock()

	if edge != nil {
		if edge.Type == EventAlarm {
			s.logger.Warn("Hypoxia detected", zap.Int("spo2", v.SpO2), zap.Int("hr", v.HeartRate))
		} else {
			s.logger.Info("O2 level normalized", zap.Int("spo2", v.SpO2))
		}
		s.Emit(*edge)
	}
	s.forEachSink(func(k Sink) error { return k.Vitals(v) })

	if notify {
		s.notifyCallbacks()
	}
}

// Emit sends an event to all sinks.
func (s *Session) Emit(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	s.forEachSink(func(k Sink) error { return k.Event(e) })
}

// AddSink registers a sink.
func (s *Session) AddSink(k Sink) {
	s.sinkMu.Lock()
	defer s.sinkMu.Unlock()
	s.sinks = append(s.sinks, k)
}

// RemoveSink unregisters a sink.
func (s *Session) RemoveSink(k Sink) {
	s.sinkMu.Lock()
	defer s.sinkMu.Unlock()
	for i, existing := range s.sinks {
		if existing == k {
			s.sinks = append(s.sinks[:i], s.sinks[i+1:]...)
			return
		}
	}
}

func (s *Session) forEachSink(fn func(Sink) error) {
	s.sinkMu.RLock()
	sinks := make([]Sink, len(s.sinks))
	copy(sinks, s.sinks)
	s.sinkMu.RUnlock()

	for _, k := range sinks {
		if err := fn(k); err != nil {
			s.logger.Debug("Sink failed", zap.Error(err))
		}
	}
}

// Samples returns a copy of the ECG window.
func (s *Session) Samples() []sample.Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]sample.Sample, len(s.samples))
	copy(result, s.samples)
	return result
}

// Latest returns the last vitals report.
func (s *Session) Latest() (Vitals, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.hasVitals
}

// History returns a copy of every vitals report in the session.
func (s *Session) History() []Vitals {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Vitals, len(s.history))
	copy(result, s.history)
	return result
}

// Hypoxic reports whether the session is inside a hypoxia episode.
func (s *Session) Hypoxic() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hypoxic
}

// Reset clears all session data, keeping sinks and callbacks.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = s.samples[:0]
	s.latest = Vitals{}
	s.hasVitals = false
	s.history = nil
	s.hypoxic = false
	s.events = 0
}

// OnUpdate registers a callback invoked after every sample or report.
// The callback receives copies and should return quickly.
func (s *Session) OnUpdate(callback func(Snapshot)) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.callbacks = append(s.callbacks, callback)
}

// ResetShutdown allows callbacks again after the input channel has closed.
// Call it before starting a new processing chain.
func (s *Session) ResetShutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdown = false
}

func (s *Session) snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	samples := make([]sample.Sample, len(s.samples))
	copy(samples, s.samples)
	return Snapshot{
		Samples:   samples,
		Vitals:    s.latest,
		HasVitals: s.hasVitals,
		Hypoxia:   s.hypoxic,
	}
}

func (s *Session) notifyCallbacks() {
	s.cbMu.RLock()
	callbacks := make([]func(Snapshot), len(s.callbacks))
	copy(callbacks, s.callbacks)
	s.cbMu.RUnlock()

	if len(callbacks) == 0 {
		return
	}

	snap := s.snapshot()
	for _, cb := range callbacks {
		if cb != nil {
			cb(snap)
		}
	}
}
