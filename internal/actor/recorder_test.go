package actor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

type note struct{ id string }

func (*note) Type() string { return "note" }

// failing makes recorder return an error, panicking makes it panic.
type failing struct{}

func (*failing) Type() string { return "failing" }

type panicking struct{}

func (*panicking) Type() string { return "panicking" }

var errFailing = errors.New("failing message")

// recorder counts and keeps every message it is handed, including the ones
// it fails on.
type recorder struct {
	mu      sync.Mutex
	seen    []Message
	count   atomic.Int32
	started atomic.Bool
	stopped atomic.Bool
}

func (r *recorder) ID() string { return "recorder" }

func (r *recorder) Start(context.Context) error {
	r.started.Store(true)
	return nil
}

func (r *recorder) Stop(context.Context) error {
	r.stopped.Store(true)
	return nil
}

func (r *recorder) Receive(_ context.Context, msg Message) error {
	r.mu.Lock()
	r.seen = append(r.seen, msg)
	r.mu.Unlock()
	r.count.Add(1)

	switch msg.(type) {
	case *failing:
		return errFailing
	case *panicking:
		panic("panicking message")
	}
	return nil
}

func (r *recorder) messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.seen...)
}
