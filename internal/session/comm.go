package session

import (
	"errors"
	"fmt"
	"sort"

	"github.com/codefionn/shkernel/internal/wire"
)

var (
	ErrUnknownTarget = errors.New("session: unknown comm target")
	ErrUnknownComm   = errors.New("session: unknown comm")
	ErrCommExists    = errors.New("session: comm already open")
)

// EchoTarget is the built-in comm target that sends every message back to
// the frontend unchanged.
const EchoTarget = "shkernel.echo"

// CommEvent is raised when the session has a comm message for the frontend.
// Parent is the request that caused it.
type CommEvent struct {
	CommID string
	Parent *wire.Message
	Data   map[string]interface{}
}

// CommHandler receives frontend messages for a comm opened on a target.
type CommHandler func(c *Comm, data map[string]interface{}, parent *wire.Message)

// Comm is one open comm channel.
type Comm struct {
	ID     string
	Target string

	session *Session
}

// Send raises a CommEvent for this comm.
func (c *Comm) Send(data map[string]interface{}, parent *wire.Message) {
	c.session.emit(CommEvent{CommID: c.ID, Parent: parent, Data: data})
}

func echoHandler(c *Comm, data map[string]interface{}, parent *wire.Message) {
	c.Send(data, parent)
}

// Subscribe registers fn for every CommEvent the session raises.
func (s *Session) Subscribe(fn func(CommEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// CommOpen opens a comm on target.
func (s *Session) CommOpen(commID, target string, data map[string]interface{}, parent *wire.Message) error {
	s.mu.Lock()
	handler, ok := s.targets[target]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownTarget, target)
	}
	if _, exists := s.comms[commID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrCommExists, commID)
	}
	comm := &Comm{ID: commID, Target: target, session: s}
	s.comms[commID] = comm
	s.mu.Unlock()

	s.log.Debug("comm %s opened on %s", commID, target)
	if len(data) > 0 && handler != nil {
		handler(comm, data, parent)
	}
	return nil
}

// CommMsg forwards a frontend message into the comm's handler.
func (s *Session) CommMsg(commID string, data map[string]interface{}, parent *wire.Message) error {
	s.mu.Lock()
	comm, ok := s.comms[commID]
	var handler CommHandler
	if ok {
		handler = s.targets[comm.Target]
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownComm, commID)
	}
	if handler != nil {
		handler(comm, data, parent)
	}
	return nil
}

// CommClose forgets an open comm.
func (s *Session) CommClose(commID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.comms[commID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownComm, commID)
	}
	delete(s.comms, commID)
	return nil
}

// CommInfo returns open comms as id -> target name. A non-empty target
// filters the result.
func (s *Session) CommInfo(target string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string, len(s.comms))
	for id, comm := range s.comms {
		if target == "" || comm.Target == target {
			out[id] = comm.Target
		}
	}
	return out
}

// Targets lists registered comm target names.
func (s *Session) Targets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.targets))
	for name := range s.targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Session) emit(ev CommEvent) {
	s.mu.Lock()
	subs := make([]func(CommEvent), len(s.subscribers))
	copy(subs, s.subscribers)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}

func (s *Session) isOpenComm(commID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.comms[commID]
	return ok
}
