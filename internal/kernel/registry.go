package kernel

import (
	"context"

	"github.com/codefionn/shkernel/internal/wire"
)

// Completion is the asynchronous remainder of a handler. The request's idle
// status is published once it returns.
type Completion func(ctx context.Context) error

// Handler implements the effect of one request kind. It runs on the
// dispatch loop and must not block; work that waits on the session goes
// into the returned Completion.
type Handler func(ctx context.Context, k *Kernel, msg *wire.Message) (Completion, error)

// Resolve returns the handler for a request kind. Kinds without a handler,
// including MsgUnknown, get the default handler.
func Resolve(kind wire.MsgType) Handler {
	switch kind {
	case wire.MsgKernelInfoRequest:
		return handleKernelInfo
	case wire.MsgExecuteRequest:
		return handleExecute
	case wire.MsgInterruptRequest:
		return handleInterrupt
	case wire.MsgShutdownRequest:
		return handleShutdown
	case wire.MsgCommInfoRequest:
		return handleCommInfo
	case wire.MsgCommOpen:
		return handleCommOpen
	case wire.MsgCommMsg:
		return handleCommMsg
	case wire.MsgCommClose:
		return handleCommClose
	case wire.MsgIsCompleteRequest:
		return handleIsComplete
	case wire.MsgHistoryRequest:
		return handleHistory
	case wire.MsgUnknown:
		return handleDefault
	}
	return handleDefault
}
