// Package relay forwards raw telemetry bytes from a serial link to a UDP
// endpoint. The stream is opaque: chunks are not parsed, acknowledged,
// retransmitted or reordered.
package relay

import (
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultChunkSize bounds one read and therefore one datagram.
	DefaultChunkSize = 128
	// DefaultPort is the receiver's UDP port.
	DefaultPort = 3333
	// DefaultBackoff is the wait before re-dialing after a failure.
	DefaultBackoff = time.Second
)

// Dialer opens the datagram connection to target.
type Dialer func(ctx context.Context, target string) (io.WriteCloser, error)

// DialUDP is the default Dialer.
func DialUDP(ctx context.Context, target string) (io.WriteCloser, error) {
	var d net.Dialer
	return d.DialContext(ctx, "udp", target)
}

// Stats are forwarder counters.
type Stats struct {
	Chunks     uint64
	Bytes      uint64
	SendErrors uint64
	ReadErrors uint64
	Dials      uint64
	DialErrors uint64
}

// Option configures a Forwarder.
type Option func(*Forwarder)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Forwarder) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithChunkSize sets the maximum datagram payload.
func WithChunkSize(n int) Option {
	return func(f *Forwarder) {
		if n > 0 {
			f.chunkSize = n
		}
	}
}

// WithBackoff sets the re-dial wait.
func WithBackoff(d time.Duration) Option {
	return func(f *Forwarder) {
		if d > 0 {
			f.backoff = d
		}
	}
}

// WithDialer replaces the UDP dialer.
func WithDialer(d Dialer) Option {
	return func(f *Forwarder) {
		if d != nil {
			f.dial = d
		}
	}
}

// Forwarder copies chunks from src to a UDP target, one datagram per chunk.
type Forwarder struct {
	src       io.Reader
	target    string
	chunkSize int
	backoff   time.Duration
	dial      Dialer
	logger    *zap.Logger

	chunks     atomic.Uint64
	bytes      atomic.Uint64
	sendErrors atomic.Uint64
	readErrors atomic.Uint64
	dials      atomic.Uint64
	dialErrors atomic.Uint64
}

// New creates a forwarder reading src and sending to target ("host:port").
func New(src io.Reader, target string, opts ...Option) *Forwarder {
	f := &Forwarder{
		src:       src,
		target:    target,
		chunkSize: DefaultChunkSize,
		backoff:   DefaultBackoff,
		dial:      DialUDP,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Run forwards until ctx is done or src reports io.EOF.
// A read that returns no data (serial timeout) is not an error.
func (f *Forwarder) Run(ctx context.Context) error {
	buf := make([]byte, f.chunkSize)

	for {
		conn, err := f.connect(ctx)
		if err != nil {
			return err
		}

		err = f.pump(ctx, conn, buf)
		conn.Close()
		if errors.Is(err, io.EOF) {
			f.logger.Info("Source closed")
			return nil
		}
		if err != nil {
			return err
		}

		if !f.wait(ctx) {
			return ctx.Err()
		}
	}
}

// connect dials until it succeeds or ctx is done.
func (f *Forwarder) connect(ctx context.Context) (io.WriteCloser, error) {
	for {
		f.dials.Add(1)
		conn, err := f.dial(ctx, f.target)
		if err == nil {
			f.logger.Info("Forwarding to target", zap.String("target", f.target))
			return conn, nil
		}

		f.dialErrors.Add(1)
		f.logger.Warn("Failed to open socket", zap.String("target", f.target), zap.Error(err))
		if !f.wait(ctx) {
			return nil, ctx.Err()
		}
	}
}

// pump moves chunks until a send fails (nil error, caller re-dials) or the
// forwarder must stop (non-nil error).
func (f *Forwarder) pump(ctx context.Context, conn io.Writer, buf []byte) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := f.src.Read(buf)
		if n > 0 {
			f.chunks.Add(1)
			if _, werr := conn.Write(buf[:n]); werr != nil {
				f.sendErrors.Add(1)
				f.logger.Warn("Send failed, reconnecting", zap.Error(werr))
				return nil
			}
			f.bytes.Add(uint64(n))
		}

		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			return io.EOF
		default:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.readErrors.Add(1)
			f.logger.Warn("Serial read failed", zap.Error(err))
			if !f.wait(ctx) {
				return ctx.Err()
			}
		}
	}
}

func (f *Forwarder) wait(ctx context.Context) bool {
	t := time.NewTimer(f.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Stats returns a snapshot of the counters.
func (f *Forwarder) Stats() Stats {
	return Stats{
		Chunks:     f.chunks.Load(),
		Bytes:      f.bytes.Load(),
		SendErrors: f.sendErrors.Load(),
		ReadErrors: f.readErrors.Load(),
		Dials:      f.dials.Load(),
		DialErrors: f.dialErrors.Load(),
	}
}
