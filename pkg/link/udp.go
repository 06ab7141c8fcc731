package link

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/itohio/govitals/pkg/telemetry"
)

// DefaultListen is where the relay sends datagrams.
const DefaultListen = ":3333"

const maxDatagram = 2048

// UDP receives telemetry forwarded by the relay. Datagrams carry arbitrary
// cuts of the line stream and are reassembled into lines.
type UDP struct {
	listen  string
	bufSize int
	logger  *zap.Logger

	mu        sync.RWMutex
	conn      net.PacketConn
	disp      *dispatcher
	cancel    context.CancelFunc
	connected bool
}

// NewUDP creates a UDP device listening on addr.
func NewUDP(addr string, bufSize int, logger *zap.Logger) *UDP {
	if addr == "" {
		addr = DefaultListen
	}
	if bufSize == 0 {
		bufSize = DefaultBufferSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UDP{
		listen:  addr,
		bufSize: bufSize,
		logger:  logger.With(zap.String("listen", addr)),
		disp:    closedDispatcher(),
	}
}

// Connect binds the socket and starts receiving.
func (d *UDP) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return ErrAlreadyConnected
	}

	conn, err := net.ListenPacket("udp", d.listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", d.listen, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.conn = conn
	d.cancel = cancel
	d.disp = newDispatcher(d.bufSize, d.logger)
	d.connected = true

	go d.receive(ctx, conn, d.disp)
	d.logger.Info("Listening", zap.String("addr", conn.LocalAddr().String()))

	return nil
}

func (d *UDP) receive(ctx context.Context, conn net.PacketConn, disp *dispatcher) {
	defer close(disp.out)

	split := NewSplitter(0)
	buf := make([]byte, maxDatagram)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				d.logger.Warn("Receive failed", zap.Error(err))
			}
			return
		}
		split.Feed(buf[:n], disp.line)
	}
}

// Close closes the socket.
func (d *UDP) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil
	}

	d.cancel()
	if err := d.conn.Close(); err != nil {
		d.logger.Warn("Error closing socket", zap.Error(err))
	}
	d.conn = nil
	d.connected = false
	return nil
}

// Addr returns the bound address while connected.
func (d *UDP) Addr() net.Addr {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.conn == nil {
		return nil
	}
	return d.conn.LocalAddr()
}

// Messages returns the channel of the current connection.
func (d *UDP) Messages() <-chan telemetry.Message {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.disp.out
}

// IsConnected returns whether the socket is bound.
func (d *UDP) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

// Stats returns the line counters of the current connection.
func (d *UDP) Stats() Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.disp.snapshot()
}
