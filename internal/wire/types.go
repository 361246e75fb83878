package wire

// MsgType enumerates the request kinds the kernel understands. Tags read off
// the wire that match none of them parse to MsgUnknown.
type MsgType int

const (
	MsgUnknown MsgType = iota
	MsgKernelInfoRequest
	MsgExecuteRequest
	MsgInterruptRequest
	MsgShutdownRequest
	MsgCommInfoRequest
	MsgCommOpen
	MsgCommMsg
	MsgCommClose
	MsgIsCompleteRequest
	MsgHistoryRequest
)

// Outbound message type tags.
const (
	TypeStatus          = "status"
	TypeKernelInfoReply = "kernel_info_reply"
	TypeExecuteInput    = "execute_input"
	TypeExecuteReply    = "execute_reply"
	TypeStream          = "stream"
	TypeError           = "error"
	TypeCommOpen        = "comm_open"
	TypeCommMsg         = "comm_msg"
	TypeCommClose       = "comm_close"
	TypeCommInfoReply   = "comm_info_reply"
	TypeInterruptReply  = "interrupt_reply"
	TypeShutdownReply   = "shutdown_reply"
	TypeIsCompleteReply = "is_complete_reply"
	TypeHistoryReply    = "history_reply"
)

var msgTypeTags = map[string]MsgType{
	"kernel_info_request": MsgKernelInfoRequest,
	"execute_request":     MsgExecuteRequest,
	"interrupt_request":   MsgInterruptRequest,
	"shutdown_request":    MsgShutdownRequest,
	"comm_info_request":   MsgCommInfoRequest,
	"comm_open":           MsgCommOpen,
	"comm_msg":            MsgCommMsg,
	"comm_close":          MsgCommClose,
	"is_complete_request": MsgIsCompleteRequest,
	"history_request":     MsgHistoryRequest,
}

// ParseMsgType maps a wire tag to its MsgType.
func ParseMsgType(tag string) MsgType {
	if t, ok := msgTypeTags[tag]; ok {
		return t
	}
	return MsgUnknown
}

// String returns the wire tag, or "unknown".
func (t MsgType) String() string {
	for tag, v := range msgTypeTags {
		if v == t {
			return tag
		}
	}
	return "unknown"
}

// KnownMsgTypes lists every request kind except MsgUnknown.
func KnownMsgTypes() []MsgType {
	return []MsgType{
		MsgKernelInfoRequest,
		MsgExecuteRequest,
		MsgInterruptRequest,
		MsgShutdownRequest,
		MsgCommInfoRequest,
		MsgCommOpen,
		MsgCommMsg,
		MsgCommClose,
		MsgIsCompleteRequest,
		MsgHistoryRequest,
	}
}
