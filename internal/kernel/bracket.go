package kernel

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/codefionn/shkernel/internal/actor"
	"github.com/codefionn/shkernel/internal/wire"
)

// request carries one inbound message through the dispatch loop.
type request struct {
	msg *wire.Message
}

func (r *request) Type() string {
	return r.msg.Header.MsgType
}

// dispatcher is the kernel's event loop. Receive runs the synchronous part
// of a handler; asynchronous tails continue in their own goroutine.
type dispatcher struct {
	k *Kernel
}

func (d *dispatcher) ID() string                      { return "dispatch" }
func (d *dispatcher) Start(ctx context.Context) error { return nil }
func (d *dispatcher) Stop(ctx context.Context) error  { return nil }

func (d *dispatcher) Receive(ctx context.Context, msg actor.Message) error {
	req, ok := msg.(*request)
	if !ok {
		return fmt.Errorf("unknown message type: %T", msg)
	}
	d.k.dispatch(ctx, req.msg)
	return nil
}

// scope collects work that must run after a request's idle status.
type scope struct {
	mu    sync.Mutex
	after []func()
}

type scopeKey struct{}

func withScope(ctx context.Context, s *scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

func scopeFrom(ctx context.Context) *scope {
	s, _ := ctx.Value(scopeKey{}).(*scope)
	return s
}

func (s *scope) onDone(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.after = append(s.after, fn)
}

func (s *scope) close() {
	s.mu.Lock()
	after := s.after
	s.after = nil
	s.mu.Unlock()
	for _, fn := range after {
		fn()
	}
}

func (k *Kernel) dispatch(ctx context.Context, msg *wire.Message) {
	k.bracket(ctx, msg, Resolve(msg.Kind()))
}

// bracket publishes busy, runs h and publishes idle on every exit path:
// success, returned error, panic, and a failed or panicking tail.
func (k *Kernel) bracket(ctx context.Context, msg *wire.Message, h Handler) {
	sc := &scope{}
	ctx = withScope(context.WithoutCancel(ctx), sc)

	k.status(msg, wire.StateBusy)

	tail, err := call(func() (Completion, error) { return h(ctx, k, msg) })
	if err != nil || tail == nil {
		k.finish(msg, sc, err)
		return
	}

	go func() {
		_, err := call(func() (Completion, error) { return nil, tail(ctx) })
		k.finish(msg, sc, err)
	}()
}

func (k *Kernel) finish(msg *wire.Message, sc *scope, err error) {
	if err != nil {
		k.log.Error("%s failed: %v", msg.Header.MsgType, err)
	}
	k.status(msg, wire.StateIdle)
	sc.close()
}

func (k *Kernel) status(parent *wire.Message, state wire.ExecutionState) {
	msg, err := wire.NewStatus(parent, k.id, state)
	if err != nil {
		k.log.Error("building %s status: %v", state, err)
		return
	}
	k.publish(msg)
}

func call(fn func() (Completion, error)) (tail Completion, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &actor.PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}
