package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Delimiter separates routing identities from the message body.
var Delimiter = []byte("<IDS|MSG>")

var (
	ErrNoDelimiter   = errors.New("wire: missing <IDS|MSG> delimiter")
	ErrShortMessage  = errors.New("wire: message has too few frames")
	ErrMissingHeader = errors.New("wire: header has no msg_type")
)

var emptyObject = []byte("{}")

// Encode serializes m into multipart frames:
//
//	[identities..., "<IDS|MSG>", signature, header, parent_header, metadata, content, buffers...]
//
// The signature frame is always empty; messages are not signed.
func Encode(m *Message) ([][]byte, error) {
	header, err := json.Marshal(m.Header)
	if err != nil {
		return nil, fmt.Errorf("wire: encode header: %w", err)
	}

	parent := emptyObject
	if m.ParentHeader != nil {
		if parent, err = json.Marshal(m.ParentHeader); err != nil {
			return nil, fmt.Errorf("wire: encode parent header: %w", err)
		}
	}

	metadata := emptyObject
	if len(m.Metadata) > 0 {
		if metadata, err = json.Marshal(m.Metadata); err != nil {
			return nil, fmt.Errorf("wire: encode metadata: %w", err)
		}
	}

	content := []byte(m.Content)
	if len(content) == 0 {
		content = emptyObject
	}

	frames := make([][]byte, 0, len(m.Identities)+6+len(m.Buffers))
	frames = append(frames, m.Identities...)
	frames = append(frames, Delimiter, []byte{}, header, parent, metadata, content)
	frames = append(frames, m.Buffers...)
	return frames, nil
}

// Decode parses multipart frames received on channel.
func Decode(channel string, frames [][]byte) (*Message, error) {
	split := -1
	for i, f := range frames {
		if bytes.Equal(f, Delimiter) {
			split = i
			break
		}
	}
	if split < 0 {
		return nil, ErrNoDelimiter
	}

	body := frames[split+1:]
	// signature, header, parent_header, metadata, content
	if len(body) < 5 {
		return nil, fmt.Errorf("%w: got %d after delimiter", ErrShortMessage, len(body))
	}

	m := &Message{Channel: channel}
	if split > 0 {
		m.Identities = make([][]byte, split)
		copy(m.Identities, frames[:split])
	}

	if err := json.Unmarshal(body[1], &m.Header); err != nil {
		return nil, fmt.Errorf("wire: decode header: %w", err)
	}
	if m.Header.MsgType == "" {
		return nil, ErrMissingHeader
	}

	var parent Header
	if err := json.Unmarshal(body[2], &parent); err != nil {
		return nil, fmt.Errorf("wire: decode parent header: %w", err)
	}
	if parent.MsgID != "" {
		m.ParentHeader = &parent
	}

	if len(body[3]) > 0 {
		if err := json.Unmarshal(body[3], &m.Metadata); err != nil {
			return nil, fmt.Errorf("wire: decode metadata: %w", err)
		}
	}

	m.Content = json.RawMessage(append([]byte(nil), body[4]...))
	if len(body) > 5 {
		m.Buffers = body[5:]
	}
	return m, nil
}
