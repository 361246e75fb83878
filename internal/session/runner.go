package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"
	"time"

	"github.com/codefionn/shkernel/internal/actor"
	"github.com/codefionn/shkernel/internal/consts"
	"github.com/codefionn/shkernel/internal/wire"
)

// wakeup tells the executor the queue is not empty.
type wakeup struct{}

func (wakeup) Type() string { return "wakeup" }

// executor drains the execution queue. Cells run inside Receive, one after
// another, which is what serializes them.
type executor struct {
	s *Session
}

func (x *executor) ID() string                      { return "session-exec" }
func (x *executor) Start(ctx context.Context) error { return nil }
func (x *executor) Stop(ctx context.Context) error  { return nil }

func (x *executor) Receive(ctx context.Context, msg actor.Message) error {
	if _, ok := msg.(wakeup); !ok {
		return fmt.Errorf("unknown message type: %T", msg)
	}
	for ctx.Err() == nil {
		e := x.s.next()
		if e == nil {
			return nil
		}
		x.s.runCell(ctx, e)
	}
	return nil
}

func (s *Session) runCell(ctx context.Context, e *Execution) {
	defer func() {
		s.mu.Lock()
		s.current = nil
		s.mu.Unlock()
	}()

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		e.finish(Result{}, ErrStopped)
		return
	}
	if e.seq <= s.abortThrough {
		count := s.count
		s.mu.Unlock()
		e.finish(Result{Status: wire.StatusAborted, ExecutionCount: count}, nil)
		return
	}
	if !e.req.Silent {
		s.count++
		if e.req.StoreHistory {
			s.history = append(s.history, HistoryEntry{Line: s.count, Input: e.req.Code})
		}
	}
	count := s.count
	s.mu.Unlock()

	if !e.req.Silent && e.sink != nil {
		e.sink.Started(count)
	}

	res := s.execute(ctx, e)
	res.ExecutionCount = count

	if res.Status == wire.StatusError && e.req.StopOnError {
		s.mu.Lock()
		s.abortThrough = s.seq
		s.mu.Unlock()
	}
	e.finish(res, nil)
}

func (s *Session) execute(ctx context.Context, e *Execution) Result {
	script := e.req.Code
	if s.opts.StartupScript != "" {
		script = s.opts.StartupScript + "\n" + script
	}

	cmd := exec.Command(s.shell, "-c", script)
	cmd.Dir = s.opts.WorkingDir
	cmd.Env = append(os.Environ(), s.opts.Env...)
	configureProcessGroup(cmd)

	// Background jobs inherit the output pipes. The cell ends with the shell;
	// whatever they print after OutputDrainDelay is lost.
	stdout := &lineWriter{emit: func(line string) { s.stdoutLine(line, e) }}
	stderr := &lineWriter{emit: func(line string) { s.stderrLine(line, e) }}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = consts.OutputDrainDelay

	if err := cmd.Start(); err != nil {
		return failed("ExecError", fmt.Sprintf("failed to start %s: %v", s.shell, err))
	}

	s.mu.Lock()
	s.running = cmd
	s.interrupted = false
	s.mu.Unlock()

	var timedOut atomic.Bool
	if s.opts.Timeout > 0 {
		timer := time.AfterFunc(s.opts.Timeout, func() {
			timedOut.Store(true)
			_ = signal(cmd, sigKill)
		})
		defer timer.Stop()
	}

	stopWatch := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = signal(cmd, sigKill)
		case <-stopWatch:
		}
	}()

	waitErr := cmd.Wait()
	close(stopWatch)
	stdout.flush()
	stderr.flush()
	if errors.Is(waitErr, exec.ErrWaitDelay) {
		s.log.Debug("cell left background output open after exit")
		waitErr = nil
	}

	s.mu.Lock()
	s.running = nil
	interrupted := s.interrupted
	s.mu.Unlock()

	if waitErr == nil {
		return Result{Status: wire.StatusOK}
	}

	exitCode := -1
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		exitCode = exitErr.ExitCode()
	}

	var res Result
	switch {
	case interrupted:
		res = failed("Interrupted", "execution interrupted")
	case timedOut.Load():
		res = failed("Timeout", fmt.Sprintf("cell exceeded %s", s.opts.Timeout))
	case exitCode >= 0:
		res = failed("ExitStatus", fmt.Sprintf("exit status %d", exitCode))
	default:
		res = failed("ExecError", waitErr.Error())
	}
	res.ExitCode = exitCode
	res.Traceback = append(e.stderrTail(), res.Traceback...)
	return res
}

func failed(ename, evalue string) Result {
	return Result{
		Status:    wire.StatusError,
		ExitCode:  -1,
		Ename:     ename,
		Evalue:    evalue,
		Traceback: []string{ename + ": " + evalue},
	}
}

// lineWriter splits one output stream of a cell into lines. exec copies
// each stream from its own goroutine, so a lineWriter is never written
// concurrently.
type lineWriter struct {
	emit func(line string)
	buf  []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	start := 0
	for {
		i := bytes.IndexByte(w.buf[start:], '\n')
		if i < 0 {
			break
		}
		w.emit(strings.TrimSuffix(string(w.buf[start:start+i]), "\r"))
		start += i + 1
	}
	w.buf = append(w.buf[:0], w.buf[start:]...)
	if len(w.buf) >= consts.MaxOutputLine {
		w.emit(string(w.buf))
		w.buf = w.buf[:0]
	}
	return len(p), nil
}

// flush emits a final line that had no newline.
func (w *lineWriter) flush() {
	if len(w.buf) > 0 {
		w.emit(string(w.buf))
		w.buf = w.buf[:0]
	}
}

func (s *Session) stdoutLine(line string, e *Execution) {
	if s.handleCommLine(line, e.req.Parent) {
		return
	}
	e.stream("stdout", line)
}

func (s *Session) stderrLine(line string, e *Execution) {
	e.recordStderr(line)
	e.stream("stderr", line)
}

func (e *Execution) stream(name, line string) {
	if !e.req.Silent && e.sink != nil {
		e.sink.Stream(name, line+"\n")
	}
}

// handleCommLine turns `<marker> <comm_id> <json>` into a CommEvent when the
// comm is open. Anything else is ordinary output.
func (s *Session) handleCommLine(line string, parent *wire.Message) bool {
	rest, ok := strings.CutPrefix(line, s.marker+" ")
	if !ok {
		return false
	}
	commID, payload, _ := strings.Cut(strings.TrimSpace(rest), " ")
	if commID == "" || !s.isOpenComm(commID) {
		return false
	}

	data := map[string]interface{}{}
	if payload = strings.TrimSpace(payload); payload != "" {
		if err := json.Unmarshal([]byte(payload), &data); err != nil {
			s.log.Debug("comm line for %s is not a JSON object: %v", commID, err)
			return false
		}
	}

	s.emit(CommEvent{CommID: commID, Parent: parent, Data: data})
	return true
}
