package wire

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requestFrames(t *testing.T, msgType string, content string) [][]byte {
	t.Helper()
	header, err := json.Marshal(Header{MsgID: "req-1", Session: "client", MsgType: msgType, Version: "5.3"})
	require.NoError(t, err)
	return [][]byte{
		[]byte("peer-a"),
		Delimiter,
		[]byte(""),
		header,
		[]byte("{}"),
		[]byte("{}"),
		[]byte(content),
	}
}

func TestDecodeRequest(t *testing.T) {
	msg, err := Decode("shell", requestFrames(t, "execute_request", `{"code":"echo hi"}`))
	require.NoError(t, err)

	assert.Equal(t, "shell", msg.Channel)
	assert.Equal(t, [][]byte{[]byte("peer-a")}, msg.Identities)
	assert.Equal(t, MsgExecuteRequest, msg.Kind())
	assert.Nil(t, msg.ParentHeader)

	var req ExecuteRequest
	require.NoError(t, msg.DecodeContent(&req))
	assert.Equal(t, "echo hi", req.Code)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name   string
		frames [][]byte
		want   error
	}{
		{
			name:   "no delimiter",
			frames: [][]byte{[]byte("a"), []byte("b")},
			want:   ErrNoDelimiter,
		},
		{
			name:   "short body",
			frames: [][]byte{Delimiter, []byte(""), []byte("{}")},
			want:   ErrShortMessage,
		},
		{
			name:   "header without type",
			frames: [][]byte{Delimiter, []byte(""), []byte(`{"msg_id":"x"}`), []byte("{}"), []byte("{}"), []byte("{}")},
			want:   ErrMissingHeader,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode("shell", tt.frames)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestChildKeepsParentLinkage(t *testing.T) {
	parent, err := Decode("control", requestFrames(t, "shutdown_request", `{"restart":true}`))
	require.NoError(t, err)

	reply, err := NewChild(parent, "kernel-session", TypeShutdownReply, ShutdownReply{Status: StatusOK, Restart: true})
	require.NoError(t, err)

	frames, err := Encode(reply)
	require.NoError(t, err)

	decoded, err := Decode("control", frames)
	require.NoError(t, err)
	require.NotNil(t, decoded.ParentHeader)

	if diff := cmp.Diff(parent.Header, *decoded.ParentHeader); diff != "" {
		t.Errorf("parent header mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, parent.Identities, decoded.Identities)
	assert.Equal(t, "kernel-session", decoded.Header.Session)
	assert.NotEqual(t, parent.Header.MsgID, decoded.Header.MsgID)

	var content ShutdownReply
	require.NoError(t, decoded.DecodeContent(&content))
	assert.True(t, content.Restart)
}

func TestEncodeOrphanUsesEmptyObjects(t *testing.T) {
	msg, err := NewChild(nil, "s", TypeStatus, StatusContent{ExecutionState: StateStarting})
	require.NoError(t, err)

	frames, err := Encode(msg)
	require.NoError(t, err)
	require.Len(t, frames, 6)

	assert.Equal(t, Delimiter, frames[0])
	assert.Empty(t, frames[1])
	assert.Equal(t, "{}", string(frames[3]))
	assert.Equal(t, "{}", string(frames[4]))
	assert.JSONEq(t, `{"execution_state":"starting"}`, string(frames[5]))
}

func TestParseMsgType(t *testing.T) {
	for _, kind := range KnownMsgTypes() {
		assert.Equal(t, kind, ParseMsgType(kind.String()), kind.String())
	}
	assert.Equal(t, MsgUnknown, ParseMsgType("inspect_request"))
	assert.Equal(t, "unknown", MsgUnknown.String())
}
