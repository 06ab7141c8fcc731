package link

import (
	"context"
	"fmt"
	"sync"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"github.com/itohio/govitals/pkg/telemetry"
)

// DefaultBaudRate is the sensing board's UART rate.
const DefaultBaudRate = 115200

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Ports returns the available serial ports, with USB details when the
// platform provides them.
func Ports() ([]Port, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err == nil && len(details) > 0 {
		result := make([]Port, 0, len(details))
		for _, d := range details {
			desc := d.Name
			if d.IsUSB {
				desc = fmt.Sprintf("%s (%s:%s %s)", d.Name, d.VID, d.PID, d.Product)
			}
			result = append(result, Port{Name: d.Name, Description: desc})
		}
		return result, nil
	}

	names, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	result := make([]Port, 0, len(names))
	for _, name := range names {
		result = append(result, Port{Name: name, Description: name})
	}
	return result, nil
}

// Serial is a direct UART connection to the sensing board.
type Serial struct {
	port     string
	baudRate int
	bufSize  int
	logger   *zap.Logger

	mu        sync.RWMutex
	conn      serial.Port
	disp      *dispatcher
	cancel    context.CancelFunc
	connected bool
}

// NewSerial creates a serial device. Zero values use defaults.
func NewSerial(port string, baudRate int, bufSize int, logger *zap.Logger) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if bufSize == 0 {
		bufSize = DefaultBufferSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Serial{
		port:     port,
		baudRate: baudRate,
		bufSize:  bufSize,
		logger:   logger.With(zap.String("port", port)),
		disp:     closedDispatcher(),
	}
}

// Connect opens the port and starts reading telemetry.
func (d *Serial) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return ErrAlreadyConnected
	}

	port, err := serial.Open(d.port, &serial.Mode{BaudRate: d.baudRate})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", d.port, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.conn = port
	d.cancel = cancel
	d.disp = newDispatcher(d.bufSize, d.logger)
	d.connected = true

	go d.disp.scan(ctx, port)
	d.logger.Info("Connected", zap.Int("baud", d.baudRate))

	return nil
}

// Close closes the port. The messages channel closes once the reader exits.
func (d *Serial) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil
	}

	d.cancel()
	if err := d.conn.Close(); err != nil {
		d.logger.Warn("Error closing serial port", zap.Error(err))
	}
	d.conn = nil
	d.connected = false

	return nil
}

// Messages returns the channel of the current connection.
func (d *Serial) Messages() <-chan telemetry.Message {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.disp.out
}

// IsConnected returns whether the device is currently connected.
func (d *Serial) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

// Stats returns the line counters of the current connection.
func (d *Serial) Stats() Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.disp.snapshot()
}

// closedDispatcher backs Messages before the first Connect.
func closedDispatcher() *dispatcher {
	d := newDispatcher(0, zap.NewNop())
	close(d.out)
	return d
}
