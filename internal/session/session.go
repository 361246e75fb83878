// Package session runs notebook cells as shell scripts. Cells execute one at
// a time in submission order; their output is streamed line by line to a
// Sink. The session also keeps the comm registry and raises CommEvents for
// the kernel to publish.
package session

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/codefionn/shkernel/internal/actor"
	"github.com/codefionn/shkernel/internal/consts"
	"github.com/codefionn/shkernel/internal/logger"
	"github.com/codefionn/shkernel/internal/wire"
)

// ErrStopped is returned for executions that never ran because the session
// was stopped.
var ErrStopped = errors.New("session: stopped")

// DefaultCommMarker prefixes stdout lines that carry comm messages:
//
//	#%comm <comm_id> {"json": "payload"}
const DefaultCommMarker = "#%comm"

// Options configures a Session.
type Options struct {
	// Shell is the interpreter run as `<shell> -c <cell>`. Empty picks bash,
	// falling back to /bin/sh.
	Shell string
	// WorkingDir is the directory cells run in. Empty uses the process cwd.
	WorkingDir string
	// StartupScript is prepended to every cell.
	StartupScript string
	// Env is appended to the kernel's environment for every cell.
	Env []string
	// CommMarker overrides DefaultCommMarker.
	CommMarker string
	// Timeout kills cells running longer than this. Zero disables it.
	Timeout time.Duration
}

// Request is one cell to execute.
type Request struct {
	Code         string
	Silent       bool
	StoreHistory bool
	StopOnError  bool
	// Parent is the execute_request; comm messages printed by the cell are
	// linked to it.
	Parent *wire.Message
}

// Sink receives the output of one execution.
type Sink interface {
	// Started is called once the cell leaves the queue, with its execution
	// count. It is not called for silent cells.
	Started(executionCount int)
	// Stream is called for every output line; name is "stdout" or "stderr".
	Stream(name, text string)
}

// Result describes a finished execution.
type Result struct {
	Status         string
	ExecutionCount int
	ExitCode       int
	Ename          string
	Evalue         string
	Traceback      []string
}

// HistoryEntry is one stored cell.
type HistoryEntry struct {
	Line  int
	Input string
}

// Execution is a submitted cell.
type Execution struct {
	seq  uint64
	req  Request
	sink Sink

	tailMu sync.Mutex
	tail   []string

	once   sync.Once
	done   chan struct{}
	result Result
	err    error
}

// Done is closed when the execution finished, failed or was discarded.
func (e *Execution) Done() <-chan struct{} {
	return e.done
}

// Wait blocks until the execution is done or ctx ends.
func (e *Execution) Wait(ctx context.Context) (Result, error) {
	select {
	case <-e.done:
		return e.result, e.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// stderrTailLines bounds the stderr lines kept for the traceback.
const stderrTailLines = 10

func (e *Execution) recordStderr(line string) {
	e.tailMu.Lock()
	defer e.tailMu.Unlock()
	if len(e.tail) == stderrTailLines {
		e.tail = e.tail[1:]
	}
	e.tail = append(e.tail, line)
}

func (e *Execution) stderrTail() []string {
	e.tailMu.Lock()
	defer e.tailMu.Unlock()
	return append([]string(nil), e.tail...)
}

func (e *Execution) finish(r Result, err error) {
	e.once.Do(func() {
		e.result = r
		e.err = err
		close(e.done)
	})
}

// Session is the execution state of one kernel lifetime.
type Session struct {
	opts   Options
	shell  string
	marker string
	log    *logger.Logger
	runner *actor.Ref

	mu           sync.Mutex
	count        int
	seq          uint64
	abortThrough uint64
	history      []HistoryEntry
	queue        []*Execution
	current      *Execution
	running      *exec.Cmd
	interrupted  bool
	stopped      bool

	comms       map[string]*Comm
	targets     map[string]CommHandler
	subscribers []func(CommEvent)
}

// New creates a session and starts its execution queue.
func New(opts Options) (*Session, error) {
	shell, err := resolveShell(opts.Shell)
	if err != nil {
		return nil, err
	}

	marker := opts.CommMarker
	if marker == "" {
		marker = DefaultCommMarker
	}

	s := &Session{
		opts:    opts,
		shell:   shell,
		marker:  marker,
		log:     logger.Global().WithPrefix("session"),
		comms:   make(map[string]*Comm),
		targets: map[string]CommHandler{EchoTarget: echoHandler},
	}

	s.runner = actor.NewRef("session-exec", &executor{s: s}, consts.ExecutionWakeups)
	if err := s.runner.Start(context.Background()); err != nil {
		return nil, fmt.Errorf("session: start execution queue: %w", err)
	}
	return s, nil
}

func resolveShell(shell string) (string, error) {
	if shell == "" {
		if path, err := exec.LookPath("bash"); err == nil {
			return path, nil
		}
		shell = "/bin/sh"
	}
	path, err := exec.LookPath(shell)
	if err != nil {
		return "", fmt.Errorf("session: shell %q: %w", shell, err)
	}
	return path, nil
}

// Shell returns the resolved interpreter path.
func (s *Session) Shell() string {
	return s.shell
}

// Info describes the session language for kernel_info_reply.
func (s *Session) Info() (wire.LanguageInfo, string) {
	name := filepath.Base(s.shell)
	lang := wire.LanguageInfo{
		Name:           name,
		Version:        "",
		Mimetype:       "text/x-sh",
		FileExtension:  ".sh",
		PygmentsLexer:  "bash",
		CodemirrorMode: "shell",
	}
	banner := fmt.Sprintf("%s %s: %s cells\ncomm targets: %s",
		consts.Implementation, consts.ImplementationVersion, name, strings.Join(s.Targets(), ", "))
	return lang, banner
}

// ExecutionCount returns the count of the last non-silent cell.
func (s *Session) ExecutionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// History returns the last n stored cells, or all of them when n <= 0.
func (s *Session) History(n int) []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := 0
	if n > 0 && n < len(s.history) {
		start = len(s.history) - n
	}
	return append([]HistoryEntry(nil), s.history[start:]...)
}

// Submit queues a cell. The queue is unbounded and never rejects a cell; the
// returned Execution completes once the cell ran, was aborted, or the
// session stopped.
func (s *Session) Submit(req Request, sink Sink) *Execution {
	e := &Execution{req: req, sink: sink, done: make(chan struct{})}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		e.finish(Result{}, ErrStopped)
		return e
	}
	s.seq++
	e.seq = s.seq
	s.queue = append(s.queue, e)
	s.mu.Unlock()

	s.wake()
	return e
}

// wake tells the executor there is work. A full mailbox already holds a
// wakeup the executor has not consumed, and that one drains the queue.
func (s *Session) wake() {
	if err := s.runner.Send(wakeup{}); err != nil && !errors.Is(err, actor.ErrMailboxFull) {
		s.log.Debug("wake executor: %v", err)
	}
}

// next pops the oldest queued cell and marks it current.
func (s *Session) next() *Execution {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil
	}
	e := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	s.current = e
	return e
}

// Interrupt sends SIGINT to the running cell. It is a no-op when idle.
func (s *Session) Interrupt() error {
	s.mu.Lock()
	cmd := s.running
	if cmd != nil {
		s.interrupted = true
	}
	s.mu.Unlock()

	if cmd == nil {
		return nil
	}
	s.log.Info("interrupting pid %d", cmd.Process.Pid)
	return signal(cmd, sigInterrupt)
}

// Stop kills the running cell, discards queued ones and stops the queue.
// The code is -1 when a cell had to be killed and 0 otherwise.
func (s *Session) Stop(ctx context.Context) (int, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return 0, nil
	}
	s.stopped = true
	cmd := s.running
	pending := s.queue
	s.queue = nil
	if s.current != nil {
		pending = append(pending, s.current)
	}
	s.mu.Unlock()

	code := 0
	if cmd != nil {
		code = -1
		if err := signal(cmd, sigKill); err != nil {
			s.log.Warn("failed to kill pid %d: %v", cmd.Process.Pid, err)
		}
	}
	for _, e := range pending {
		e.finish(Result{}, ErrStopped)
	}

	if err := s.runner.Stop(ctx); err != nil {
		return code, fmt.Errorf("session: stop execution queue: %w", err)
	}
	return code, nil
}

func signal(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if pgid := processGroupID(cmd); pgid > 0 {
		if err := signalProcessGroup(pgid, sig); err == nil {
			return nil
		}
	}
	if sig == sigKill {
		return cmd.Process.Kill()
	}
	return cmd.Process.Signal(sig)
}
