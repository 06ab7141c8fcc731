package publish

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	// publishTimeout bounds the wait for a broker acknowledgement.
	publishTimeout = 2 * time.Second
	// DefaultMQTTQueue is the number of messages waiting for the broker.
	DefaultMQTTQueue = 64
)

// ErrMQTTClosed is returned by Publish after Close.
var ErrMQTTClosed = errors.New("publish: mqtt connection closed")

// MQTTOptions configures ConnectMQTT.
type MQTTOptions struct {
	Broker   string // e.g. tcp://127.0.0.1:1883
	ClientID string
	Username string
	Password string
	QoS      byte
	Queue    int // outgoing queue length, 0 uses DefaultMQTTQueue
}

// MQTTStats are outgoing message counters.
type MQTTStats struct {
	Sent    uint64
	Dropped uint64 // queue full
	Failed  uint64 // broker error or no acknowledgement in time
}

// mqttClient is the subset of mqtt.Client used by MQTTConn.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

type mqttMessage struct {
	topic string
	data  []byte
}

// MQTTConn adapts an MQTT client to Conn so the Publisher can use MQTT
// topics instead of NATS subjects. Publish only queues the message; a
// single goroutine hands it to the client and waits for the acknowledgement,
// so a slow or unreachable broker never stalls the caller.
type MQTTConn struct {
	client mqttClient
	qos    byte
	logger *zap.Logger

	queue     chan mqttMessage
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	sent    atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

var _ Conn = (*MQTTConn)(nil)

// ConnectMQTT connects to the broker with automatic reconnects.
func ConnectMQTT(o MQTTOptions, logger *zap.Logger) (*MQTTConn, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(o.Broker)
	opts.SetClientID(o.ClientID)
	if o.Username != "" {
		opts.SetUsername(o.Username)
	}
	if o.Password != "" {
		opts.SetPassword(o.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(3 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", o.Broker, token.Error())
	}
	return newMQTTConn(client, o.QoS, o.Queue, logger), nil
}

func newMQTTConn(client mqttClient, qos byte, queue int, logger *zap.Logger) *MQTTConn {
	if queue <= 0 {
		queue = DefaultMQTTQueue
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &MQTTConn{
		client: client,
		qos:    qos,
		logger: logger,
		queue:  make(chan mqttMessage, queue),
		done:   make(chan struct{}),
	}
	c.wg.Add(1)
	go c.drain()
	return c
}

// Publish implements Conn. A full queue drops the message and counts it.
func (c *MQTTConn) Publish(topic string, data []byte) error {
	select {
	case <-c.done:
		return ErrMQTTClosed
	default:
	}

	select {
	case c.queue <- mqttMessage{topic: topic, data: data}:
	default:
		c.dropped.Add(1)
		c.logger.Debug("MQTT queue full, dropping message", zap.String("topic", topic))
	}
	return nil
}

func (c *MQTTConn) drain() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case m := <-c.queue:
			if !c.send(m) {
				return
			}
		}
	}
}

// send publishes m and waits for the acknowledgement. It returns false when
// the connection was closed while waiting.
func (c *MQTTConn) send(m mqttMessage) bool {
	token := c.client.Publish(m.topic, c.qos, false, m.data)
	timer := time.NewTimer(publishTimeout)
	defer timer.Stop()

	select {
	case <-c.done:
		return false
	case <-timer.C:
		c.failed.Add(1)
		c.logger.Warn("MQTT publish timed out", zap.String("topic", m.topic))
	case <-token.Done():
		if err := token.Error(); err != nil {
			c.failed.Add(1)
			c.logger.Warn("MQTT publish failed", zap.String("topic", m.topic), zap.Error(err))
		} else {
			c.sent.Add(1)
		}
	}
	return true
}

// Stats returns the message counters.
func (c *MQTTConn) Stats() MQTTStats {
	return MQTTStats{
		Sent:    c.sent.Load(),
		Dropped: c.dropped.Load(),
		Failed:  c.failed.Load(),
	}
}

// Close stops the sender and disconnects, waiting up to 250 ms for
// in-flight messages. Queued messages are discarded.
func (c *MQTTConn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.wg.Wait()
		c.client.Disconnect(250)
	})
}
