package kernel

import (
	"context"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/codefionn/shkernel/internal/consts"
	"github.com/codefionn/shkernel/internal/session"
	"github.com/codefionn/shkernel/internal/wire"
)

func handleDefault(ctx context.Context, k *Kernel, msg *wire.Message) (Completion, error) {
	k.log.Debug("no handler for %s on %s", msg.Header.MsgType, msg.Channel)
	return nil, nil
}

func handleKernelInfo(ctx context.Context, k *Kernel, msg *wire.Message) (Completion, error) {
	lang, banner := k.Session().Info()
	return nil, k.reply(msg, wire.TypeKernelInfoReply, wire.KernelInfoReply{
		Status:                wire.StatusOK,
		ProtocolVersion:       k.ProtocolVersion(),
		Implementation:        consts.Implementation,
		ImplementationVersion: consts.ImplementationVersion,
		LanguageInfo:          lang,
		Banner:                banner,
		HelpLinks:             []wire.HelpLink{},
	})
}

// executeSink publishes a cell's progress on IOPub.
type executeSink struct {
	k    *Kernel
	msg  *wire.Message
	code string
}

func (s *executeSink) Started(count int) {
	if err := s.k.broadcast(s.msg, wire.TypeExecuteInput, wire.ExecuteInput{Code: s.code, ExecutionCount: count}); err != nil {
		s.k.log.Debug("execute_input: %v", err)
	}
}

func (s *executeSink) Stream(name, text string) {
	if err := s.k.broadcast(s.msg, wire.TypeStream, wire.Stream{Name: name, Text: text}); err != nil {
		s.k.log.Debug("stream: %v", err)
	}
}

// handleExecute queues the cell on the loop, so cells run in arrival order,
// and waits for it in the tail.
func handleExecute(ctx context.Context, k *Kernel, msg *wire.Message) (Completion, error) {
	var req wire.ExecuteRequest
	if err := msg.DecodeContent(&req); err != nil {
		return nil, fmt.Errorf("decode execute_request: %w", err)
	}

	sess := k.Session()
	exec := sess.Submit(session.Request{
		Code:         req.Code,
		Silent:       req.Silent,
		StoreHistory: req.StoreHistory,
		StopOnError:  req.StopOnError,
		Parent:       msg,
	}, &executeSink{k: k, msg: msg, code: req.Code})

	return func(ctx context.Context) error {
		res, err := exec.Wait(ctx)
		if errors.Is(err, session.ErrStopped) {
			return k.reply(msg, wire.TypeExecuteReply, wire.ExecuteReply{
				Status:         wire.StatusAborted,
				ExecutionCount: sess.ExecutionCount(),
			})
		}
		if err != nil {
			// the frontend still gets a reply for every execute_request
			if replyErr := k.reply(msg, wire.TypeExecuteReply, wire.ExecuteReply{
				Status:         wire.StatusError,
				ExecutionCount: sess.ExecutionCount(),
				Ename:          "ExecError",
				Evalue:         err.Error(),
				Traceback:      []string{"ExecError: " + err.Error()},
			}); replyErr != nil {
				return errors.Join(err, replyErr)
			}
			return err
		}

		reply := wire.ExecuteReply{
			Status:          res.Status,
			ExecutionCount:  res.ExecutionCount,
			UserExpressions: map[string]interface{}{},
		}
		if res.Status == wire.StatusError {
			reply.Ename, reply.Evalue, reply.Traceback = res.Ename, res.Evalue, res.Traceback
			if !req.Silent {
				if err := k.broadcast(msg, wire.TypeError, wire.ErrorContent{
					Ename:     res.Ename,
					Evalue:    res.Evalue,
					Traceback: res.Traceback,
				}); err != nil {
					return err
				}
			}
		}
		return k.reply(msg, wire.TypeExecuteReply, reply)
	}, nil
}

func handleInterrupt(ctx context.Context, k *Kernel, msg *wire.Message) (Completion, error) {
	status := wire.StatusOK
	err := k.Session().Interrupt()
	if err != nil {
		status = wire.StatusError
	}
	if replyErr := k.reply(msg, wire.TypeInterruptReply, wire.InterruptReply{Status: status}); replyErr != nil {
		return nil, replyErr
	}
	return nil, err
}

// handleShutdown replies only after the restart or shutdown completed. A
// shutdown keeps the sockets open until this request's idle went out.
func handleShutdown(ctx context.Context, k *Kernel, msg *wire.Message) (Completion, error) {
	restart := gjson.GetBytes(msg.Content, "restart").Bool()

	return func(ctx context.Context) error {
		var (
			code int
			err  error
		)
		if restart {
			code, err = k.Restart(ctx)
		} else {
			code, err = k.Shutdown(ctx)
		}
		if err != nil {
			return err
		}
		k.log.Debug("shutdown_request (restart=%t) finished with code %d", restart, code)
		return k.reply(msg, wire.TypeShutdownReply, wire.ShutdownReply{Status: wire.StatusOK, Restart: restart})
	}, nil
}

func handleCommInfo(ctx context.Context, k *Kernel, msg *wire.Message) (Completion, error) {
	var req wire.CommInfoRequest
	if err := msg.DecodeContent(&req); err != nil {
		return nil, fmt.Errorf("decode comm_info_request: %w", err)
	}

	comms := make(map[string]wire.CommTarget)
	for id, target := range k.Session().CommInfo(req.TargetName) {
		comms[id] = wire.CommTarget{TargetName: target}
	}
	return nil, k.reply(msg, wire.TypeCommInfoReply, wire.CommInfoReply{Status: wire.StatusOK, Comms: comms})
}

// handleCommOpen answers an unknown target with comm_close so the frontend
// does not keep a dangling comm.
func handleCommOpen(ctx context.Context, k *Kernel, msg *wire.Message) (Completion, error) {
	var req wire.CommOpen
	if err := msg.DecodeContent(&req); err != nil {
		return nil, fmt.Errorf("decode comm_open: %w", err)
	}

	err := k.Session().CommOpen(req.CommID, req.TargetName, req.Data, msg)
	if errors.Is(err, session.ErrUnknownTarget) {
		k.log.Debug("comm_open for unknown target %q", req.TargetName)
		return nil, k.broadcast(msg, wire.TypeCommClose, wire.CommClose{CommID: req.CommID, Data: map[string]interface{}{}})
	}
	return nil, err
}

func handleCommMsg(ctx context.Context, k *Kernel, msg *wire.Message) (Completion, error) {
	var req wire.CommMsg
	if err := msg.DecodeContent(&req); err != nil {
		return nil, fmt.Errorf("decode comm_msg: %w", err)
	}
	return nil, k.Session().CommMsg(req.CommID, req.Data, msg)
}

func handleCommClose(ctx context.Context, k *Kernel, msg *wire.Message) (Completion, error) {
	var req wire.CommClose
	if err := msg.DecodeContent(&req); err != nil {
		return nil, fmt.Errorf("decode comm_close: %w", err)
	}
	return nil, k.Session().CommClose(req.CommID)
}

func handleIsComplete(ctx context.Context, k *Kernel, msg *wire.Message) (Completion, error) {
	var req wire.IsCompleteRequest
	if err := msg.DecodeContent(&req); err != nil {
		return nil, fmt.Errorf("decode is_complete_request: %w", err)
	}
	status, indent := session.IsComplete(req.Code)
	return nil, k.reply(msg, wire.TypeIsCompleteReply, wire.IsCompleteReply{Status: status, Indent: indent})
}

func handleHistory(ctx context.Context, k *Kernel, msg *wire.Message) (Completion, error) {
	var req wire.HistoryRequest
	if err := msg.DecodeContent(&req); err != nil {
		return nil, fmt.Errorf("decode history_request: %w", err)
	}

	n := 0
	if req.HistAccessType == "tail" {
		n = req.N
	}
	entries := k.Session().History(n)

	history := make([][]interface{}, 0, len(entries))
	for _, e := range entries {
		// session number 0 is the current session
		history = append(history, []interface{}{0, e.Line, e.Input})
	}
	return nil, k.reply(msg, wire.TypeHistoryReply, wire.HistoryReply{Status: wire.StatusOK, History: history})
}
