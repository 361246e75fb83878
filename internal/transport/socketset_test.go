package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/shkernel/internal/wire"
)

type testAddr struct{}

func (testAddr) Endpoint(channel string) string {
	return "inproc://" + channel
}

func request(t *testing.T, id, msgType string) [][]byte {
	t.Helper()
	header, err := json.Marshal(wire.Header{MsgID: id, MsgType: msgType})
	require.NoError(t, err)
	return [][]byte{[]byte("peer"), wire.Delimiter, {}, header, []byte("{}"), []byte("{}"), []byte("{}")}
}

type collector struct {
	mu   sync.Mutex
	msgs []*wire.Message
	ch   chan struct{}
}

func newCollector() *collector {
	return &collector{ch: make(chan struct{}, 64)}
}

func (c *collector) listen(msg *wire.Message) {
	c.mu.Lock()
	c.msgs = append(c.msgs, msg)
	c.mu.Unlock()
	c.ch <- struct{}{}
}

func (c *collector) wait(t *testing.T, n int) []*wire.Message {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-c.ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for message %d of %d", i+1, n)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*wire.Message(nil), c.msgs...)
}

func TestHeartbeatBoundBeforeStart(t *testing.T) {
	net := NewMemoryNetwork()
	set, err := New(context.Background(), testAddr{}, []byte("kernel-id"), net.Factory())
	require.NoError(t, err)
	defer set.Close()

	hb := net.Socket(Heartbeat)
	assert.True(t, hb.Listening())
	assert.Equal(t, "inproc://hb", hb.Endpoint())
	assert.False(t, net.Socket(Shell).Listening(), "shell must not bind before Start")

	payload := [][]byte{[]byte("ping\x00\xff")}
	require.NoError(t, hb.Deliver(payload))

	sent, ok := hb.WaitSent(1, time.Second)
	require.True(t, ok)
	assert.Equal(t, payload, sent[0])
}

func TestStartBindsAndDeliversInOrder(t *testing.T) {
	net := NewMemoryNetwork()
	set, err := New(context.Background(), testAddr{}, []byte("kernel-id"), net.Factory())
	require.NoError(t, err)
	defer set.Close()

	c := newCollector()
	require.NoError(t, set.Start(c.listen))

	for _, ch := range []Channel{IOPub, Stdin, Shell, Control} {
		assert.True(t, net.Socket(ch).Listening(), string(ch))
	}

	require.NoError(t, net.Socket(Shell).Deliver(request(t, "1", "execute_request")))
	require.NoError(t, net.Socket(Shell).Deliver(request(t, "2", "execute_request")))

	msgs := c.wait(t, 2)
	assert.Equal(t, "1", msgs[0].Header.MsgID)
	assert.Equal(t, "2", msgs[1].Header.MsgID)
	assert.Equal(t, string(Shell), msgs[0].Channel)
}

func TestStdinAndMalformedAreDropped(t *testing.T) {
	net := NewMemoryNetwork()
	set, err := New(context.Background(), testAddr{}, []byte("kernel-id"), net.Factory())
	require.NoError(t, err)
	defer set.Close()

	c := newCollector()
	require.NoError(t, set.Start(c.listen))

	require.NoError(t, net.Socket(Stdin).Deliver(request(t, "in", "input_reply")))
	require.NoError(t, net.Socket(Control).Deliver([][]byte{[]byte("garbage")}))
	require.NoError(t, net.Socket(Control).Deliver(request(t, "ok", "kernel_info_request")))

	msgs := c.wait(t, 1)
	require.Len(t, msgs, 1)
	assert.Equal(t, "ok", msgs[0].Header.MsgID)
}

func TestIOPubTopicFrame(t *testing.T) {
	net := NewMemoryNetwork()
	set, err := New(context.Background(), testAddr{}, []byte("kid"), net.Factory())
	require.NoError(t, err)
	defer set.Close()
	require.NoError(t, set.Start(func(*wire.Message) {}))

	msg, err := wire.NewStatus(nil, "s", wire.StateIdle)
	require.NoError(t, err)
	msg.Identities = [][]byte{[]byte("peer")}
	require.NoError(t, set.Send(IOPub, msg))

	sent := net.Socket(IOPub).Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "kernel.kid.status", string(sent[0][0]))
	assert.Equal(t, wire.Delimiter, sent[0][1])
}

func TestDetachThenClose(t *testing.T) {
	net := NewMemoryNetwork()
	set, err := New(context.Background(), testAddr{}, []byte("kid"), net.Factory())
	require.NoError(t, err)

	c := newCollector()
	require.NoError(t, set.Start(c.listen))

	set.Detach()
	require.NoError(t, net.Socket(Shell).Deliver(request(t, "late", "execute_request")))
	require.NoError(t, net.Socket(Heartbeat).Deliver([][]byte{[]byte("ping")}))

	select {
	case <-c.ch:
		t.Fatal("message delivered after Detach")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Empty(t, net.Socket(Heartbeat).Sent())

	require.NoError(t, set.Close())
	for _, ch := range Channels {
		assert.True(t, net.Socket(ch).Closed(), string(ch))
	}
	assert.NoError(t, set.Wait())

	msg, err := wire.NewStatus(nil, "s", wire.StateIdle)
	require.NoError(t, err)
	assert.ErrorIs(t, set.Send(IOPub, msg), ErrClosed)
}

type failingSocket struct{ *MemorySocket }

func (f failingSocket) Listen(string) error { return fmt.Errorf("address in use") }

func TestHeartbeatBindFailureClosesSockets(t *testing.T) {
	net := NewMemoryNetwork()
	factory := func(ctx context.Context, ch Channel, id []byte) Socket {
		sock := net.Factory()(ctx, ch, id)
		if ch == Heartbeat {
			return failingSocket{sock.(*MemorySocket)}
		}
		return sock
	}

	_, err := New(context.Background(), testAddr{}, []byte("kid"), factory)
	require.Error(t, err)
	assert.True(t, net.Socket(Shell).Closed())
}
