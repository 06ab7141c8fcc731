package publish

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/itohio/govitals/pkg/sample"
	"github.com/itohio/govitals/pkg/session"
)

// writeTimeout bounds a write to one websocket client.
const writeTimeout = 200 * time.Millisecond

// Frame is a JSON text frame sent to websocket clients. ECG is sent as
// binary frames of EncodeSamples batches instead.
type Frame struct {
	Type   string          `json:"type"` // "vitals" or "event"
	Vitals *session.Vitals `json:"vitals,omitempty"`
	Event  *session.Event  `json:"event,omitempty"`
}

// Hub is a session.Sink that broadcasts to websocket clients. It serves the
// upgrade endpoint itself.
type Hub struct {
	upgrader websocket.Upgrader
	batch    int
	logger   *zap.Logger

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}

	// gorilla/websocket allows one concurrent writer per connection.
	writeMu sync.Mutex

	bufMu  sync.Mutex
	buffer []float32
}

var (
	_ session.Sink = (*Hub)(nil)
	_ http.Handler = (*Hub)(nil)
)

// NewHub creates a hub sending ECG in batches of batch samples.
func NewHub(batch int, logger *zap.Logger) *Hub {
	if batch <= 0 {
		batch = DefaultBatch
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		batch:  batch,
		logger: logger,
		conns:  make(map[*websocket.Conn]struct{}),
		buffer: make([]float32, 0, batch),
	}
}

// ServeHTTP upgrades the request and keeps the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("Websocket upgrade failed", zap.Error(err))
		return
	}
	h.add(conn)
	h.logger.Info("Websocket client connected", zap.String("remote", r.RemoteAddr))
	defer func() {
		h.remove(conn)
		conn.Close()
	}()

	// Clients only listen; reading detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close disconnects all clients.
func (h *Hub) Close() error {
	for _, c := range h.snapshot() {
		h.remove(c)
		c.Close()
	}
	return nil
}

// Sample buffers one ECG sample and broadcasts a full batch.
func (h *Hub) Sample(s sample.Sample) error {
	h.bufMu.Lock()
	h.buffer = append(h.buffer, float32(s.Value))
	if len(h.buffer) < h.batch {
		h.bufMu.Unlock()
		return nil
	}
	out := EncodeSamples(h.buffer)
	h.buffer = h.buffer[:0]
	h.bufMu.Unlock()

	h.broadcast(websocket.BinaryMessage, out)
	return nil
}

// Vitals broadcasts a vitals report.
func (h *Hub) Vitals(v session.Vitals) error {
	return h.broadcastJSON(Frame{Type: "vitals", Vitals: &v})
}

// Event broadcasts a session event. ECG and vitals rows are skipped.
func (h *Hub) Event(e session.Event) error {
	if e.Type == session.EventECG || e.Type == session.EventVitals {
		return nil
	}
	return h.broadcastJSON(Frame{Type: "event", Event: &e})
}

func (h *Hub) broadcastJSON(f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	h.broadcast(websocket.TextMessage, data)
	return nil
}

func (h *Hub) add(c *websocket.Conn) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(c *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
}

func (h *Hub) snapshot() []*websocket.Conn {
	h.mu.Lock()
	clients := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	return clients
}

// broadcast drops clients whose write fails or times out.
func (h *Hub) broadcast(messageType int, data []byte) {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	for _, c := range h.snapshot() {
		_ = c.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.WriteMessage(messageType, data); err != nil {
			h.logger.Debug("Dropping websocket client", zap.Error(err))
			h.remove(c)
			c.Close()
		}
	}
}
