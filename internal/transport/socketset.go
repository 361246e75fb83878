package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/codefionn/shkernel/internal/logger"
	"github.com/codefionn/shkernel/internal/wire"
)

// Addresser resolves the bind endpoint of a channel, e.g. "tcp://127.0.0.1:5555".
type Addresser interface {
	Endpoint(channel string) string
}

// Listener receives every decoded message from shell and control.
type Listener func(msg *wire.Message)

// SocketSet owns the five kernel sockets.
type SocketSet struct {
	addr     Addresser
	identity []byte
	sockets  map[Channel]Socket
	log      *logger.Logger

	listener atomic.Pointer[Listener]
	detached atomic.Bool
	started  atomic.Bool
	closed   atomic.Bool

	group     *errgroup.Group
	groupCtx  context.Context
	closeOnce sync.Once
	closeErr  error
}

// New creates all five sockets and binds heartbeat immediately so the
// kernel answers liveness checks while the rest of it is still being built.
// The other channels are bound by Start.
func New(ctx context.Context, addr Addresser, identity []byte, factory Factory) (*SocketSet, error) {
	group, groupCtx := errgroup.WithContext(ctx)
	s := &SocketSet{
		addr:     addr,
		identity: identity,
		sockets:  make(map[Channel]Socket, len(Channels)),
		log:      logger.Global().WithPrefix("transport"),
		group:    group,
		groupCtx: groupCtx,
	}

	for _, ch := range Channels {
		s.sockets[ch] = factory(ctx, ch, identity)
	}

	hb := s.sockets[Heartbeat]
	if err := hb.Listen(addr.Endpoint(string(Heartbeat))); err != nil {
		s.closeAll()
		return nil, err
	}
	s.group.Go(func() error { return s.echo(hb) })

	s.log.Debug("heartbeat bound on %s", addr.Endpoint(string(Heartbeat)))
	return s, nil
}

// Start binds iopub, stdin, shell and control and begins delivering
// messages to listener.
func (s *SocketSet) Start(listener Listener) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("transport: already started")
	}
	s.listener.Store(&listener)

	for _, ch := range []Channel{IOPub, Stdin, Shell, Control} {
		endpoint := s.addr.Endpoint(string(ch))
		if err := s.sockets[ch].Listen(endpoint); err != nil {
			return err
		}
		s.log.Debug("%s bound on %s", ch, endpoint)
	}

	for _, ch := range []Channel{Stdin, Shell, Control} {
		ch := ch
		sock := s.sockets[ch]
		s.group.Go(func() error { return s.receive(ch, sock) })
	}
	return nil
}

// Send encodes msg and writes it to ch. IOPub messages are prefixed with a
// topic frame instead of routing identities.
func (s *SocketSet) Send(ch Channel, msg *wire.Message) error {
	if s.closed.Load() {
		return ErrClosed
	}
	sock, ok := s.sockets[ch]
	if !ok {
		return fmt.Errorf("transport: unknown channel %q", ch)
	}

	out := *msg
	if ch == IOPub {
		topic := fmt.Sprintf("kernel.%s.%s", s.identity, msg.Header.MsgType)
		out.Identities = [][]byte{[]byte(topic)}
	}

	frames, err := wire.Encode(&out)
	if err != nil {
		return err
	}
	return sock.Send(frames)
}

// Socket returns the socket bound for ch.
func (s *SocketSet) Socket(ch Channel) Socket {
	return s.sockets[ch]
}

// Identity returns the identity shared by all sockets.
func (s *SocketSet) Identity() []byte {
	return s.identity
}

// Detach stops delivering inbound traffic, including heartbeat echoes.
// Frames arriving afterwards are read and dropped.
func (s *SocketSet) Detach() {
	s.detached.Store(true)
	s.listener.Store(nil)
}

// Close closes every socket. Receive loops observe the closure and exit.
func (s *SocketSet) Close() error {
	s.closeOnce.Do(func() {
		s.Detach()
		s.closed.Store(true)
		s.closeErr = s.closeAll()
	})
	return s.closeErr
}

// Closed reports whether Close was called.
func (s *SocketSet) Closed() bool {
	return s.closed.Load()
}

// Failed is closed when a receive loop exits with an error.
func (s *SocketSet) Failed() <-chan struct{} {
	return s.groupCtx.Done()
}

// Wait blocks until every receive loop has exited and returns the first
// error that was not caused by Close.
func (s *SocketSet) Wait() error {
	return s.group.Wait()
}

func (s *SocketSet) closeAll() error {
	var errs []error
	for _, ch := range Channels {
		if sock := s.sockets[ch]; sock != nil {
			if err := sock.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", ch, err))
			}
		}
	}
	return errors.Join(errs...)
}

func (s *SocketSet) echo(sock Socket) error {
	for {
		frames, err := sock.Recv()
		if err != nil {
			if s.closed.Load() {
				return nil
			}
			return fmt.Errorf("transport: heartbeat recv: %w", err)
		}
		if s.detached.Load() {
			continue
		}
		if err := sock.Send(frames); err != nil && !s.closed.Load() {
			s.log.Warn("heartbeat echo failed: %v", err)
		}
	}
}

func (s *SocketSet) receive(ch Channel, sock Socket) error {
	for {
		frames, err := sock.Recv()
		if err != nil {
			if s.closed.Load() {
				return nil
			}
			return fmt.Errorf("transport: %s recv: %w", ch, err)
		}
		if s.detached.Load() {
			continue
		}

		msg, err := wire.Decode(string(ch), frames)
		if err != nil {
			s.log.Warn("dropping malformed message on %s: %v", ch, err)
			continue
		}

		if ch == Stdin {
			s.log.Debug("ignoring %s on stdin", msg.Header.MsgType)
			continue
		}

		if l := s.listener.Load(); l != nil {
			(*l)(msg)
		}
	}
}
