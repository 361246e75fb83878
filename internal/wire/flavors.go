package wire

// ExecutionState is the value of a status message.
type ExecutionState string

const (
	StateStarting ExecutionState = "starting"
	StateBusy     ExecutionState = "busy"
	StateIdle     ExecutionState = "idle"
)

// Reply status values.
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusAborted = "aborted"
)

type StatusContent struct {
	ExecutionState ExecutionState `json:"execution_state"`
}

type LanguageInfo struct {
	Name           string `json:"name"`
	Version        string `json:"version"`
	Mimetype       string `json:"mimetype"`
	FileExtension  string `json:"file_extension"`
	PygmentsLexer  string `json:"pygments_lexer,omitempty"`
	CodemirrorMode string `json:"codemirror_mode,omitempty"`
}

type HelpLink struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

type KernelInfoReply struct {
	Status                string       `json:"status"`
	ProtocolVersion       string       `json:"protocol_version"`
	Implementation        string       `json:"implementation"`
	ImplementationVersion string       `json:"implementation_version"`
	LanguageInfo          LanguageInfo `json:"language_info"`
	Banner                string       `json:"banner"`
	HelpLinks             []HelpLink   `json:"help_links"`
}

type ExecuteRequest struct {
	Code            string            `json:"code"`
	Silent          bool              `json:"silent"`
	StoreHistory    bool              `json:"store_history"`
	UserExpressions map[string]string `json:"user_expressions"`
	AllowStdin      bool              `json:"allow_stdin"`
	StopOnError     bool              `json:"stop_on_error"`
}

type ExecuteInput struct {
	Code           string `json:"code"`
	ExecutionCount int    `json:"execution_count"`
}

type ExecuteReply struct {
	Status          string                 `json:"status"`
	ExecutionCount  int                    `json:"execution_count"`
	UserExpressions map[string]interface{} `json:"user_expressions,omitempty"`
	Payload         []interface{}          `json:"payload,omitempty"`
	Ename           string                 `json:"ename,omitempty"`
	Evalue          string                 `json:"evalue,omitempty"`
	Traceback       []string               `json:"traceback,omitempty"`
}

type Stream struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

type ErrorContent struct {
	Ename     string   `json:"ename"`
	Evalue    string   `json:"evalue"`
	Traceback []string `json:"traceback"`
}

type CommOpen struct {
	CommID     string                 `json:"comm_id"`
	TargetName string                 `json:"target_name"`
	Data       map[string]interface{} `json:"data"`
}

type CommMsg struct {
	CommID string                 `json:"comm_id"`
	Data   map[string]interface{} `json:"data"`
}

type CommClose struct {
	CommID string                 `json:"comm_id"`
	Data   map[string]interface{} `json:"data"`
}

type CommInfoRequest struct {
	TargetName string `json:"target_name,omitempty"`
}

type CommTarget struct {
	TargetName string `json:"target_name"`
}

type CommInfoReply struct {
	Status string                `json:"status"`
	Comms  map[string]CommTarget `json:"comms"`
}

type InterruptReply struct {
	Status string `json:"status"`
}

type ShutdownRequest struct {
	Restart bool `json:"restart"`
}

type ShutdownReply struct {
	Status  string `json:"status"`
	Restart bool   `json:"restart"`
}

type IsCompleteRequest struct {
	Code string `json:"code"`
}

type IsCompleteReply struct {
	Status string `json:"status"`
	Indent string `json:"indent,omitempty"`
}

type HistoryRequest struct {
	Output         bool   `json:"output"`
	Raw            bool   `json:"raw"`
	HistAccessType string `json:"hist_access_type"`
	N              int    `json:"n"`
}

type HistoryReply struct {
	Status  string          `json:"status"`
	History [][]interface{} `json:"history"`
}

// NewStatus creates a status message addressed as a child of parent.
func NewStatus(parent *Message, session string, state ExecutionState) (*Message, error) {
	return NewChild(parent, session, TypeStatus, StatusContent{ExecutionState: state})
}
