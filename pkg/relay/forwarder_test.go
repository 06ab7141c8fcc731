package relay

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkReader returns one scripted chunk (or error) per Read, then io.EOF.
type chunkReader struct {
	steps []step
}

type step struct {
	data string
	err  error
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.steps) == 0 {
		return 0, io.EOF
	}
	s := r.steps[0]
	r.steps = r.steps[1:]
	return copy(p, s.data), s.err
}

type fakeConn struct {
	mu      sync.Mutex
	writes  []string
	failOn  int
	written int
	closed  bool
}

func (c *fakeConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written++
	if c.written == c.failOn {
		return 0, errors.New("network unreachable")
	}
	c.writes = append(c.writes, string(p))
	return len(p), nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func sequenceDialer(conns ...*fakeConn) (Dialer, *int) {
	var calls int
	return func(ctx context.Context, target string) (io.WriteCloser, error) {
		i := calls
		calls++
		if i >= len(conns) || conns[i] == nil {
			return nil, errors.New("dial failed")
		}
		return conns[i], nil
	}, &calls
}

func TestForwarder_UDP(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	src := &chunkReader{steps: []step{
		{data: "1023\n"},
		{data: "1020\nS:97,"},
		{data: "72\n"},
	}}
	f := New(src, pc.LocalAddr().String(), WithBackoff(time.Millisecond))

	require.NoError(t, f.Run(context.Background()))

	require.NoError(t, pc.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 256)
	var got []string
	for range 3 {
		n, _, err := pc.ReadFrom(buf)
		require.NoError(t, err)
		got = append(got, string(buf[:n]))
	}
	assert.Equal(t, []string{"1023\n", "1020\nS:97,", "72\n"}, got)

	stats := f.Stats()
	assert.Equal(t, uint64(3), stats.Chunks)
	assert.Equal(t, uint64(len("1023\n1020\nS:97,72\n")), stats.Bytes)
}

func TestForwarder_ChunkSize(t *testing.T) {
	conn := &fakeConn{}
	dial, _ := sequenceDialer(conn)

	payload := bytes.Repeat([]byte("x"), 300)
	f := New(bytes.NewReader(payload), "test:3333", WithDialer(dial))

	require.NoError(t, f.Run(context.Background()))

	require.Len(t, conn.writes, 3)
	assert.Len(t, conn.writes[0], DefaultChunkSize)
	assert.Len(t, conn.writes[1], DefaultChunkSize)
	assert.Len(t, conn.writes[2], 300-2*DefaultChunkSize)
	assert.True(t, conn.closed)
}

func TestForwarder_ReconnectAfterSendFailure(t *testing.T) {
	first := &fakeConn{failOn: 1}
	second := &fakeConn{}
	dial, calls := sequenceDialer(first, second)

	src := &chunkReader{steps: []step{{data: "a\n"}, {data: "b\n"}, {data: "c\n"}}}
	f := New(src, "test:3333", WithDialer(dial), WithBackoff(time.Millisecond))

	require.NoError(t, f.Run(context.Background()))

	// The failed chunk is lost, never retransmitted.
	assert.Empty(t, first.writes)
	assert.True(t, first.closed)
	assert.Equal(t, []string{"b\n", "c\n"}, second.writes)
	assert.Equal(t, 2, *calls)

	stats := f.Stats()
	assert.Equal(t, uint64(1), stats.SendErrors)
	assert.Equal(t, uint64(3), stats.Chunks)
	assert.Equal(t, uint64(4), stats.Bytes)
}

func TestForwarder_DialRetry(t *testing.T) {
	conn := &fakeConn{}
	dial, _ := sequenceDialer(nil, nil, conn)

	src := &chunkReader{steps: []step{{data: "S:99,60\n"}}}
	f := New(src, "test:3333", WithDialer(dial), WithBackoff(time.Millisecond))

	require.NoError(t, f.Run(context.Background()))

	assert.Equal(t, []string{"S:99,60\n"}, conn.writes)
	stats := f.Stats()
	assert.Equal(t, uint64(3), stats.Dials)
	assert.Equal(t, uint64(2), stats.DialErrors)
}

func TestForwarder_ReadErrorAndTimeouts(t *testing.T) {
	conn := &fakeConn{}
	dial, _ := sequenceDialer(conn)

	src := &chunkReader{steps: []step{
		{data: ""}, // read timeout, nothing to send
		{err: errors.New("framing error")},
		{data: "42\n"},
	}}
	f := New(src, "test:3333", WithDialer(dial), WithBackoff(time.Millisecond))

	require.NoError(t, f.Run(context.Background()))

	assert.Equal(t, []string{"42\n"}, conn.writes)
	assert.Equal(t, uint64(1), f.Stats().ReadErrors)
	assert.Equal(t, uint64(1), f.Stats().Chunks)
}

type idleReader struct{}

func (idleReader) Read(p []byte) (int, error) {
	time.Sleep(time.Millisecond)
	return 0, nil
}

func TestForwarder_Cancel(t *testing.T) {
	conn := &fakeConn{}
	dial, _ := sequenceDialer(conn)
	f := New(idleReader{}, "test:3333", WithDialer(dial))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.True(t, conn.closed)
}
