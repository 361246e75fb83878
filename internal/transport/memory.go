package transport

import (
	"context"
	"sync"
	"time"
)

// MemorySocket is an in-process Socket. Frames passed to Deliver are
// returned by Recv; frames passed to Send are recorded. It backs kernel
// tests and embedding a kernel without a network.
type MemorySocket struct {
	Channel Channel

	mu        sync.Mutex
	endpoint  string
	listening bool
	closed    bool
	sent      [][][]byte
	notify    chan struct{}

	inbox chan [][]byte
	done  chan struct{}
}

// NewMemorySocket creates an unbound in-process socket.
func NewMemorySocket(ch Channel) *MemorySocket {
	return &MemorySocket{
		Channel: ch,
		notify:  make(chan struct{}),
		inbox:   make(chan [][]byte, 64),
		done:    make(chan struct{}),
	}
}

func (s *MemorySocket) Listen(endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.endpoint = endpoint
	s.listening = true
	return nil
}

func (s *MemorySocket) Recv() ([][]byte, error) {
	select {
	case frames := <-s.inbox:
		return frames, nil
	case <-s.done:
		return nil, ErrClosed
	}
}

func (s *MemorySocket) Send(frames [][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	cp := make([][]byte, len(frames))
	for i, f := range frames {
		cp[i] = append([]byte(nil), f...)
	}
	s.sent = append(s.sent, cp)

	close(s.notify)
	s.notify = make(chan struct{})
	return nil
}

func (s *MemorySocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	return nil
}

// Deliver queues inbound frames as if a peer had sent them.
func (s *MemorySocket) Deliver(frames [][]byte) error {
	select {
	case s.inbox <- frames:
		return nil
	case <-s.done:
		return ErrClosed
	}
}

// Endpoint returns the address passed to Listen.
func (s *MemorySocket) Endpoint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endpoint
}

// Listening reports whether Listen has been called.
func (s *MemorySocket) Listening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listening
}

// Closed reports whether Close has been called.
func (s *MemorySocket) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Sent returns a copy of every frame set sent so far.
func (s *MemorySocket) Sent() [][][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][][]byte(nil), s.sent...)
}

// WaitSent blocks until at least n frame sets were sent or timeout expires.
func (s *MemorySocket) WaitSent(n int, timeout time.Duration) ([][][]byte, bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		s.mu.Lock()
		if len(s.sent) >= n {
			out := append([][][]byte(nil), s.sent...)
			s.mu.Unlock()
			return out, true
		}
		notify := s.notify
		s.mu.Unlock()

		select {
		case <-notify:
		case <-deadline.C:
			return s.Sent(), false
		}
	}
}

// MemoryNetwork hands out one MemorySocket per channel.
type MemoryNetwork struct {
	mu      sync.Mutex
	sockets map[Channel]*MemorySocket
}

// NewMemoryNetwork creates an empty network.
func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{sockets: make(map[Channel]*MemorySocket)}
}

// Factory returns a Factory creating sockets on this network.
func (n *MemoryNetwork) Factory() Factory {
	return func(_ context.Context, ch Channel, _ []byte) Socket {
		n.mu.Lock()
		defer n.mu.Unlock()
		sock := NewMemorySocket(ch)
		n.sockets[ch] = sock
		return sock
	}
}

// Socket returns the most recently created socket for ch.
func (n *MemoryNetwork) Socket(ch Channel) *MemorySocket {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sockets[ch]
}
