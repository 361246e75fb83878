// Package wire implements the Jupyter message envelope, its multipart frame
// codec, and constructors for the message flavors the kernel sends.
package wire

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/codefionn/shkernel/internal/consts"
)

// Header identifies one message. The parent header of a reply or status
// message is the header of the request that caused it.
type Header struct {
	MsgID    string `json:"msg_id"`
	Session  string `json:"session"`
	Username string `json:"username"`
	Date     string `json:"date"`
	MsgType  string `json:"msg_type"`
	Version  string `json:"version"`
}

// Message is one decoded protocol message.
type Message struct {
	// Identities are the ZeroMQ routing prefixes. Replies reuse the
	// request's identities so the router delivers them to the right peer.
	Identities [][]byte

	Header       Header
	ParentHeader *Header
	Metadata     map[string]interface{}
	Content      json.RawMessage
	Buffers      [][]byte

	// Channel is the socket the message arrived on. It is not encoded.
	Channel string
}

// Type returns the message type tag.
func (m *Message) Type() string {
	return m.Header.MsgType
}

// Kind parses the message type tag.
func (m *Message) Kind() MsgType {
	return ParseMsgType(m.Header.MsgType)
}

// DecodeContent unmarshals the content payload into v.
func (m *Message) DecodeContent(v interface{}) error {
	if len(m.Content) == 0 {
		return json.Unmarshal([]byte("{}"), v)
	}
	return json.Unmarshal(m.Content, v)
}

// NewHeader creates a header for a new message of the given type.
func NewHeader(session, msgType string) Header {
	return Header{
		MsgID:    uuid.NewString(),
		Session:  session,
		Username: "kernel",
		Date:     time.Now().UTC().Format(time.RFC3339Nano),
		MsgType:  msgType,
		Version:  consts.ProtocolVersion,
	}
}

// NewChild creates a message caused by parent. The child carries parent's
// header as its parent header and parent's routing identities. A nil parent
// yields an orphan message with an empty parent header.
func NewChild(parent *Message, session, msgType string, content interface{}) (*Message, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}

	msg := &Message{
		Header:   NewHeader(session, msgType),
		Metadata: map[string]interface{}{},
		Content:  raw,
	}
	if parent != nil {
		ph := parent.Header
		msg.ParentHeader = &ph
		msg.Identities = parent.Identities
		msg.Channel = parent.Channel
	}
	return msg, nil
}
