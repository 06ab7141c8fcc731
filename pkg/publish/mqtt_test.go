package publish

import (
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/govitals/pkg/sample"
	"github.com/itohio/govitals/pkg/session"
)

// fakeToken completes immediately unless pending is set, in which case it
// never completes.
type fakeToken struct {
	err  error
	done chan struct{}
}

func newToken(err error, pending bool) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	if !pending {
		close(t.done)
	}
	return t
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeMQTT struct {
	mu           sync.Mutex
	err          error
	pending      bool
	msgs         []published
	disconnected bool
}

func (c *fakeMQTT) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return newToken(c.err, c.pending)
}

func (c *fakeMQTT) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

func (c *fakeMQTT) published() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published(nil), c.msgs...)
}

func (c *fakeMQTT) isDisconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

func TestMQTTConn_Publish(t *testing.T) {
	client := &fakeMQTT{}
	conn := newMQTTConn(client, 1, 0, nil)

	p := New(conn, Subjects{Vitals: "vitals/readings"}, 0, nil)
	require.NoError(t, p.Vitals(session.Vitals{SpO2: 95, HeartRate: 66}))

	require.Eventually(t, func() bool { return conn.Stats().Sent == 1 }, time.Second, 5*time.Millisecond)
	msgs := client.published()
	require.Len(t, msgs, 1)
	assert.Equal(t, "vitals/readings", msgs[0].topic)
	assert.Equal(t, byte(1), msgs[0].qos)
	assert.Contains(t, string(msgs[0].payload), `"spo2":95`)

	conn.Close()
	assert.True(t, client.isDisconnected())
	assert.ErrorIs(t, conn.Publish("t", []byte("x")), ErrMQTTClosed)
	conn.Close()
}

func TestMQTTConn_BrokerError(t *testing.T) {
	client := &fakeMQTT{err: errors.New("not connected")}
	conn := newMQTTConn(client, 1, 0, nil)
	defer conn.Close()

	require.NoError(t, conn.Publish("t", []byte("x")))
	require.Eventually(t, func() bool { return conn.Stats().Failed == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, conn.Stats().Sent)
}

func TestMQTTConn_UnacknowledgedDoesNotBlock(t *testing.T) {
	client := &fakeMQTT{pending: true}
	conn := newMQTTConn(client, 1, 4, nil)

	p := New(conn, Subjects{ECG: "vitals/ecg"}, 10, nil)
	now := time.Now()
	push := func(n int) {
		for i := 0; i < n; i++ {
			require.NoError(t, p.Sample(sample.Sample{Timestamp: now, Value: 2048}))
		}
	}

	// The first batch is handed to the client and never acknowledged.
	push(10)
	require.Eventually(t, func() bool { return len(client.published()) == 1 }, time.Second, 5*time.Millisecond)

	start := time.Now()
	push(190)
	assert.Less(t, time.Since(start), 500*time.Millisecond, "Sample must not wait for the broker")

	// Four batches wait in the queue, the other fifteen are dropped.
	st := conn.Stats()
	assert.Equal(t, uint64(15), st.Dropped)
	assert.Zero(t, st.Sent)
	assert.Len(t, client.published(), 1)

	closed := make(chan struct{})
	go func() {
		conn.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close blocked on an unacknowledged publish")
	}
	assert.True(t, client.isDisconnected())
}
