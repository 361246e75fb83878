// Package actor provides mailbox actors: one goroutine drains a buffered
// mailbox and hands each message to Receive, so an actor never processes two
// messages at once and processes them in the order they were sent.
package actor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/codefionn/shkernel/internal/logger"
)

var (
	ErrStopped     = errors.New("actor stopped")
	ErrMailboxFull = errors.New("actor mailbox full")
)

// Message is anything an actor can receive. Type names the message in logs.
type Message interface {
	Type() string
}

// Actor is the behaviour behind a Ref. Start runs before the first message,
// Stop after the loop has exited.
type Actor interface {
	ID() string
	Start(ctx context.Context) error
	Receive(ctx context.Context, msg Message) error
	Stop(ctx context.Context) error
}

// PanicError wraps a panic recovered from Receive.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Ref owns the mailbox and the loop of one actor.
type Ref struct {
	id    string
	actor Actor
	log   *logger.Logger

	mailbox chan Message
	done    chan struct{}
	exited  sync.WaitGroup

	mu      sync.RWMutex
	cancel  context.CancelFunc
	stopped bool
}

// NewRef wraps a with a mailbox of the given capacity. The actor does not
// process anything until Start.
func NewRef(id string, a Actor, capacity int) *Ref {
	return &Ref{
		id:      id,
		actor:   a,
		log:     logger.Global().WithPrefix("actor:" + id),
		mailbox: make(chan Message, capacity),
		done:    make(chan struct{}),
	}
}

func (r *Ref) ID() string { return r.id }

// Pending is the number of queued messages.
func (r *Ref) Pending() int { return len(r.mailbox) }

func (r *Ref) admit() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.stopped {
		return fmt.Errorf("%w: %s", ErrStopped, r.id)
	}
	return nil
}

// Send queues msg without blocking. A full mailbox yields ErrMailboxFull.
func (r *Ref) Send(msg Message) error {
	if err := r.admit(); err != nil {
		return err
	}

	select {
	case r.mailbox <- msg:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrMailboxFull, r.id)
	}
}

// SendWait queues msg, blocking while the mailbox is full. Callers sending
// from one goroutine keep their relative order.
func (r *Ref) SendWait(ctx context.Context, msg Message) error {
	if err := r.admit(); err != nil {
		return err
	}

	select {
	case r.mailbox <- msg:
		return nil
	case <-r.done:
		return fmt.Errorf("%w: %s", ErrStopped, r.id)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start calls the actor's Start and then begins draining the mailbox.
func (r *Ref) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	if err := r.actor.Start(ctx); err != nil {
		cancel()
		return fmt.Errorf("start %s: %w", r.id, err)
	}

	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	r.exited.Add(1)
	go r.loop(ctx)
	return nil
}

// Stop ends the loop and then calls the actor's Stop. Queued messages are
// dropped. Calling Stop twice is a no-op.
func (r *Ref) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	close(r.done)
	cancel := r.cancel
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	exited := make(chan struct{})
	go func() {
		r.exited.Wait()
		close(exited)
	}()

	select {
	case <-exited:
		return r.actor.Stop(ctx)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Ref) loop(ctx context.Context) {
	defer r.exited.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-r.mailbox:
			r.deliver(ctx, msg)
		}
	}
}

func (r *Ref) deliver(ctx context.Context, msg Message) {
	if err := r.receive(ctx, msg); err != nil {
		r.log.Error("%s: %v", msg.Type(), err)
	}
}

func (r *Ref) receive(ctx context.Context, msg Message) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &PanicError{Value: v, Stack: debug.Stack()}
		}
	}()
	return r.actor.Receive(ctx, msg)
}
