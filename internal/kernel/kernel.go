// Package kernel routes Jupyter protocol requests to handlers. Every request
// runs inside a busy/idle bracket on IOPub; requests are dispatched one at a
// time from a single loop, and long-running work finishes asynchronously so
// the loop keeps serving the other channels.
package kernel

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/codefionn/shkernel/internal/actor"
	"github.com/codefionn/shkernel/internal/config"
	"github.com/codefionn/shkernel/internal/consts"
	"github.com/codefionn/shkernel/internal/logger"
	"github.com/codefionn/shkernel/internal/session"
	"github.com/codefionn/shkernel/internal/transport"
	"github.com/codefionn/shkernel/internal/wire"
)

// Session is the execution session the handlers drive. *session.Session
// implements it.
type Session interface {
	Info() (wire.LanguageInfo, string)
	Submit(req session.Request, sink session.Sink) *session.Execution
	ExecutionCount() int
	Interrupt() error
	History(n int) []session.HistoryEntry
	Subscribe(fn func(session.CommEvent))
	CommOpen(commID, target string, data map[string]interface{}, parent *wire.Message) error
	CommMsg(commID string, data map[string]interface{}, parent *wire.Message) error
	CommClose(commID string) error
	CommInfo(target string) map[string]string
	Stop(ctx context.Context) (int, error)
}

// SessionFactory builds the session of one kernel lifetime. Restart calls it
// again for a fresh session.
type SessionFactory func() (Session, error)

// Options configures a Kernel.
type Options struct {
	Connection *config.Connection
	// Sockets creates the channel sockets. Nil uses ZeroMQ.
	Sockets transport.Factory
	// NewSession is required.
	NewSession SessionFactory
	// Logger defaults to the global logger.
	Logger *logger.Logger
}

// Kernel owns the socket set and the session.
type Kernel struct {
	id         string
	conn       config.Connection
	sockets    *transport.SocketSet
	sessMu     sync.RWMutex
	sess       Session
	newSession SessionFactory
	loop       *actor.Ref
	log        *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	lifecycle sync.Mutex
	down      bool
	exitCode  int
	done      chan struct{}
	doneOnce  sync.Once
}

// New builds a kernel. The heartbeat socket is bound before anything else
// so liveness checks succeed while the session is still starting.
func New(ctx context.Context, opts Options) (*Kernel, error) {
	if opts.Connection == nil {
		return nil, fmt.Errorf("kernel: %w: missing connection", config.ErrInvalidConnection)
	}
	if opts.NewSession == nil {
		return nil, errors.New("kernel: missing session factory")
	}
	factory := opts.Sockets
	if factory == nil {
		factory = transport.ZMQFactory
	}
	log := opts.Logger
	if log == nil {
		log = logger.Global()
	}

	kctx, cancel := context.WithCancel(ctx)
	k := &Kernel{
		id:         uuid.NewString(),
		conn:       *opts.Connection,
		newSession: opts.NewSession,
		log:        log.WithPrefix("kernel"),
		ctx:        kctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	sockets, err := transport.New(kctx, &k.conn, []byte(k.id), factory)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("kernel: bind heartbeat: %w", err)
	}
	k.sockets = sockets

	sess, err := k.newSession()
	if err != nil {
		_ = sockets.Close()
		cancel()
		return nil, fmt.Errorf("kernel: create session: %w", err)
	}
	k.attach(sess)

	k.loop = actor.NewRef("dispatch", &dispatcher{k: k}, consts.DispatchMailboxSize)
	return k, nil
}

// Start binds iopub, stdin, shell and control and starts dispatching.
func (k *Kernel) Start() error {
	if err := k.loop.Start(k.ctx); err != nil {
		return fmt.Errorf("kernel: start dispatch loop: %w", err)
	}
	if err := k.sockets.Start(k.enqueue); err != nil {
		return fmt.Errorf("kernel: bind sockets: %w", err)
	}

	if starting, err := wire.NewStatus(nil, k.id, wire.StateStarting); err == nil {
		k.publish(starting)
	}
	k.log.Info("kernel %s ready on %s", k.id, k.conn.Endpoint(string(transport.Shell)))
	return nil
}

// Run starts the kernel and blocks until it shuts down. Cancelling ctx shuts
// the kernel down. A receive loop failure shuts it down and is returned.
func (k *Kernel) Run(ctx context.Context) error {
	if err := k.Start(); err != nil {
		_, _ = k.Shutdown(context.WithoutCancel(ctx))
		return err
	}

	select {
	case <-k.done:
		return nil
	case <-ctx.Done():
		_, err := k.Shutdown(context.WithoutCancel(ctx))
		return err
	case <-k.sockets.Failed():
		_, _ = k.Shutdown(context.WithoutCancel(ctx))
		return k.sockets.Wait()
	}
}

// Restart replaces the session with a fresh one. Sockets stay bound. The
// code is the one reported by the old session's Stop.
func (k *Kernel) Restart(ctx context.Context) (int, error) {
	k.lifecycle.Lock()
	defer k.lifecycle.Unlock()
	if k.down {
		return k.exitCode, transport.ErrClosed
	}

	code, stopErr := k.Session().Stop(ctx)
	if stopErr != nil {
		k.log.Warn("stopping session for restart: %v", stopErr)
	}

	sess, err := k.newSession()
	if err != nil {
		return code, fmt.Errorf("kernel: restart session: %w", err)
	}
	k.attach(sess)

	k.log.Info("session restarted (previous session exited with %d)", code)
	if stopErr != nil {
		return code, fmt.Errorf("kernel: stop session: %w", stopErr)
	}
	return code, nil
}

// Shutdown detaches the listeners, stops the session and closes every
// socket. Called from inside a request, the sockets close after that
// request's idle status went out. The code is the one reported by the
// session's Stop; calling Shutdown again returns it unchanged.
func (k *Kernel) Shutdown(ctx context.Context) (int, error) {
	k.lifecycle.Lock()
	defer k.lifecycle.Unlock()
	if k.down {
		return k.exitCode, nil
	}
	k.down = true

	k.sockets.Detach()
	code, err := k.Session().Stop(ctx)
	k.exitCode = code

	if scope := scopeFrom(ctx); scope != nil {
		scope.onDone(k.teardown)
	} else {
		k.teardown()
	}

	if err != nil {
		return code, fmt.Errorf("kernel: stop session: %w", err)
	}
	k.log.Info("kernel shut down with code %d", code)
	return code, nil
}

func (k *Kernel) teardown() {
	if err := k.sockets.Close(); err != nil {
		k.log.Warn("closing sockets: %v", err)
	}
	k.doneOnce.Do(func() { close(k.done) })
	k.cancel()
	// the loop may be the caller; let it drain in the background
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), consts.StopTimeout)
		defer cancel()
		_ = k.loop.Stop(ctx)
	}()
}

// Identity is the kernel session id, also used as the socket identity.
func (k *Kernel) Identity() string {
	return k.id
}

// ConnectionInfo returns a copy of the connection file contents.
func (k *Kernel) ConnectionInfo() config.Connection {
	return k.conn
}

// ProtocolVersion is the Jupyter protocol version spoken by the kernel.
func (k *Kernel) ProtocolVersion() string {
	return consts.ProtocolVersion
}

// Sockets returns the kernel's socket set.
func (k *Kernel) Sockets() *transport.SocketSet {
	return k.sockets
}

// Session returns the current session.
func (k *Kernel) Session() Session {
	k.sessMu.RLock()
	defer k.sessMu.RUnlock()
	return k.sess
}

// Done is closed once the kernel shut down and its sockets are closed.
func (k *Kernel) Done() <-chan struct{} {
	return k.done
}

// ExitCode returns the code of the last Shutdown.
func (k *Kernel) ExitCode() int {
	k.lifecycle.Lock()
	defer k.lifecycle.Unlock()
	return k.exitCode
}

// enqueue is the socket set listener. It blocks the channel's receive loop
// while the mailbox is full, which keeps per-channel order.
func (k *Kernel) enqueue(msg *wire.Message) {
	if err := k.loop.SendWait(k.ctx, &request{msg: msg}); err != nil {
		k.log.Debug("dropping %s: %v", msg.Header.MsgType, err)
	}
}

func (k *Kernel) reply(parent *wire.Message, msgType string, content interface{}) error {
	msg, err := wire.NewChild(parent, k.id, msgType, content)
	if err != nil {
		return err
	}
	ch := transport.Channel(parent.Channel)
	if ch == "" {
		ch = transport.Shell
	}
	return k.sockets.Send(ch, msg)
}

func (k *Kernel) broadcast(parent *wire.Message, msgType string, content interface{}) error {
	msg, err := wire.NewChild(parent, k.id, msgType, content)
	if err != nil {
		return err
	}
	return k.sockets.Send(transport.IOPub, msg)
}

func (k *Kernel) publish(msg *wire.Message) {
	if err := k.sockets.Send(transport.IOPub, msg); err != nil && !errors.Is(err, transport.ErrClosed) {
		k.log.Warn("publishing %s: %v", msg.Header.MsgType, err)
	}
}
