package actor

import (
	"context"
	"errors"
	"testing"
	"time"
)

func waitForCount(t *testing.T, a *recorder, want int32) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if a.count.Load() >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d messages, got %d", want, a.count.Load())
}

func stopRef(t *testing.T, ref *Ref) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ref.Stop(ctx); err != nil {
		t.Fatalf("failed to stop actor: %v", err)
	}
}

// TestNewRef tests creating a new actor reference
func TestNewRef(t *testing.T) {
	actor := &recorder{}
	ref := NewRef("test-1", actor, 10)

	if ref.ID() != "test-1" {
		t.Errorf("expected ID 'test-1', got '%s'", ref.ID())
	}

	if cap(ref.mailbox) != 10 {
		t.Errorf("expected mailbox size 10, got %d", cap(ref.mailbox))
	}
}

// TestRefStartStop tests starting and stopping an actor
func TestRefStartStop(t *testing.T) {
	actor := &recorder{}
	ref := NewRef("test-1", actor, 10)

	if err := ref.Start(context.Background()); err != nil {
		t.Fatalf("failed to start actor: %v", err)
	}
	if !actor.started.Load() {
		t.Error("Start() was not called on the actor")
	}

	stopRef(t, ref)

	if !actor.stopped.Load() {
		t.Error("Stop() was not called on the actor")
	}
}

// TestRefPreservesOrder checks messages are received in send order
func TestRefPreservesOrder(t *testing.T) {
	actor := &recorder{}
	ref := NewRef("test-1", actor, 100)
	if err := ref.Start(context.Background()); err != nil {
		t.Fatalf("failed to start actor: %v", err)
	}
	defer stopRef(t, ref)

	ids := []string{"a", "b", "c", "d", "e"}
	for _, id := range ids {
		if err := ref.Send(&note{id: id}); err != nil {
			t.Fatalf("failed to send %s: %v", id, err)
		}
	}

	waitForCount(t, actor, int32(len(ids)))

	received := actor.messages()
	for i, msg := range received {
		if got := msg.(*note).id; got != ids[i] {
			t.Errorf("message %d: expected %s, got %s", i, ids[i], got)
		}
	}
}

// TestRefSendAfterStop tests sending to a stopped actor
func TestRefSendAfterStop(t *testing.T) {
	ref := NewRef("test-1", &recorder{}, 10)
	if err := ref.Start(context.Background()); err != nil {
		t.Fatalf("failed to start actor: %v", err)
	}
	stopRef(t, ref)

	err := ref.Send(&note{id: "msg-1"})
	if !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped, got %v", err)
	}

	err = ref.SendWait(context.Background(), &note{id: "msg-2"})
	if !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped from SendWait, got %v", err)
	}
}

// TestRefMailboxFull tests behavior when mailbox is full
func TestRefMailboxFull(t *testing.T) {
	ref := NewRef("test-1", &recorder{}, 2)

	// Not started: nothing drains the mailbox
	for _, id := range []string{"msg-1", "msg-2"} {
		if err := ref.Send(&note{id: id}); err != nil {
			t.Fatalf("failed to send %s: %v", id, err)
		}
	}

	if err := ref.Send(&note{id: "msg-3"}); !errors.Is(err, ErrMailboxFull) {
		t.Errorf("expected ErrMailboxFull, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := ref.SendWait(ctx, &note{id: "msg-3"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline from SendWait, got %v", err)
	}
	if ref.Pending() != 2 {
		t.Errorf("expected 2 pending, got %d", ref.Pending())
	}
}

// TestRefSurvivesErrorsAndPanics checks the loop keeps running after
// Receive fails or panics
func TestRefSurvivesErrorsAndPanics(t *testing.T) {
	actor := &recorder{}
	ref := NewRef("test-1", actor, 10)
	if err := ref.Start(context.Background()); err != nil {
		t.Fatalf("failed to start actor: %v", err)
	}
	defer stopRef(t, ref)

	for _, msg := range []Message{&failing{}, &panicking{}, &note{id: "after"}} {
		if err := ref.Send(msg); err != nil {
			t.Fatalf("failed to send: %v", err)
		}
	}

	waitForCount(t, actor, 3)

	received := actor.messages()
	last, ok := received[len(received)-1].(*note)
	if !ok || last.id != "after" {
		t.Errorf("expected last message 'after', got %+v", received[len(received)-1])
	}
}

// TestPanicError checks the recovered panic is reported
func TestPanicError(t *testing.T) {
	ref := NewRef("p", &recorder{}, 1)
	err := ref.receive(context.Background(), &panicking{})

	var perr *PanicError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PanicError, got %v", err)
	}
	if len(perr.Stack) == 0 {
		t.Error("expected a stack trace")
	}
}
