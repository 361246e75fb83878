package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-zeromq/zmq4"
)

// Channel names one of the five kernel endpoints.
type Channel string

const (
	Heartbeat Channel = "hb"
	IOPub     Channel = "iopub"
	Stdin     Channel = "stdin"
	Shell     Channel = "shell"
	Control   Channel = "control"
)

// Channels lists every channel, heartbeat first.
var Channels = []Channel{Heartbeat, IOPub, Stdin, Shell, Control}

// ErrClosed is returned by operations on a closed socket or set.
var ErrClosed = errors.New("transport: socket closed")

// Socket is one bound endpoint carrying multipart frames.
type Socket interface {
	Listen(endpoint string) error
	Recv() ([][]byte, error)
	Send(frames [][]byte) error
	Close() error
}

// Factory creates the socket for ch. Sockets created for one kernel share
// identity.
type Factory func(ctx context.Context, ch Channel, identity []byte) Socket

// ZMQFactory creates ZeroMQ sockets: REP for heartbeat, PUB for iopub and
// ROUTER for stdin, shell and control.
func ZMQFactory(ctx context.Context, ch Channel, identity []byte) Socket {
	opt := zmq4.WithID(zmq4.SocketIdentity(identity))

	var sock zmq4.Socket
	switch ch {
	case Heartbeat:
		sock = zmq4.NewRep(ctx, opt)
	case IOPub:
		sock = zmq4.NewPub(ctx, opt)
	default:
		sock = zmq4.NewRouter(ctx, opt)
	}
	return &zmqSocket{channel: ch, sock: sock}
}

type zmqSocket struct {
	channel Channel
	sock    zmq4.Socket

	// zmq4 sockets are not safe for concurrent senders
	mu sync.Mutex
}

func (s *zmqSocket) Listen(endpoint string) error {
	if err := s.sock.Listen(endpoint); err != nil {
		return fmt.Errorf("transport: bind %s on %s: %w", s.channel, endpoint, err)
	}
	return nil
}

func (s *zmqSocket) Recv() ([][]byte, error) {
	msg, err := s.sock.Recv()
	if err != nil {
		return nil, err
	}
	return msg.Frames, nil
}

func (s *zmqSocket) Send(frames [][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := zmq4.NewMsgFrom(frames...)
	if len(frames) == 1 {
		return s.sock.Send(msg)
	}
	return s.sock.SendMulti(msg)
}

func (s *zmqSocket) Close() error {
	return s.sock.Close()
}
