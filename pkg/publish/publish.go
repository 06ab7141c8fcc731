// Package publish streams session data to NATS: vitals and events as JSON,
// ECG as batches of little-endian float32 samples.
package publish

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/itohio/govitals/pkg/sample"
	"github.com/itohio/govitals/pkg/session"
)

// DefaultBatch is the number of ECG samples per message.
const DefaultBatch = 10

// Conn is the subset of *nats.Conn the publisher uses.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Subjects names the subjects to publish on. An empty subject disables that stream.
type Subjects struct {
	Vitals string
	Events string
	ECG    string
}

// Connect dials NATS with unlimited reconnects.
func Connect(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(
		url,
		nats.Name(name),
		nats.Timeout(3*time.Second),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	return nc, nil
}

// Publisher is a session.Sink that publishes to NATS.
type Publisher struct {
	conn     Conn
	subjects Subjects
	batch    int
	logger   *zap.Logger

	mu     sync.Mutex
	buffer []float32
}

var _ session.Sink = (*Publisher)(nil)

// New creates a publisher. batch <= 0 uses DefaultBatch.
func New(conn Conn, subjects Subjects, batch int, logger *zap.Logger) *Publisher {
	if batch <= 0 {
		batch = DefaultBatch
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		conn:     conn,
		subjects: subjects,
		batch:    batch,
		logger:   logger,
		buffer:   make([]float32, 0, batch),
	}
}

// Sample buffers one ECG sample and publishes a full batch.
func (p *Publisher) Sample(s sample.Sample) error {
	if p.subjects.ECG == "" {
		return nil
	}

	p.mu.Lock()
	p.buffer = append(p.buffer, float32(s.Value))
	if len(p.buffer) < p.batch {
		p.mu.Unlock()
		return nil
	}
	out := EncodeSamples(p.buffer)
	p.buffer = p.buffer[:0]
	p.mu.Unlock()

	return p.publish(p.subjects.ECG, out)
}

// Vitals publishes a vitals report.
func (p *Publisher) Vitals(v session.Vitals) error {
	if p.subjects.Vitals == "" {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal vitals: %w", err)
	}
	return p.publish(p.subjects.Vitals, data)
}

// Event publishes a session event. ECG and vitals rows are skipped since
// they have their own subjects.
func (p *Publisher) Event(e session.Event) error {
	if p.subjects.Events == "" || e.Type == session.EventECG || e.Type == session.EventVitals {
		return nil
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return p.publish(p.subjects.Events, data)
}

func (p *Publisher) publish(subject string, data []byte) error {
	if err := p.conn.Publish(subject, data); err != nil {
		p.logger.Warn("Publish failed", zap.String("subject", subject), zap.Error(err))
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// EncodeSamples packs samples as little-endian float32.
func EncodeSamples(samples []float32) []byte {
	out := make([]byte, 4*len(samples))
	for i, v := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

// DecodeSamples unpacks a batch produced by EncodeSamples. A trailing
// partial value is ignored.
func DecodeSamples(data []byte) []float32 {
	n := len(data) / 4
	out := make([]float32, n)
	for i := range n {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}
