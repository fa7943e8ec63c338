package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Bruno2K/team-scrapbook-sub000/internal/service"
)

// Inbound event names.
const (
	FrameMessage = "message"
	FrameTyping  = "typing"
	FramePing    = "ping"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownFrame   = errors.New("unknown frame")
)

// Inbound is one decoded client frame: *MessageFrame, *TypingFrame or *PingFrame.
type Inbound interface {
	frameName() string
}

type MessageFrame struct {
	Request service.SendRequest
}

type TypingFrame struct {
	ConversationID int64 `json:"conversationId,string"`
}

type PingFrame struct{}

func (*MessageFrame) frameName() string { return FrameMessage }
func (*TypingFrame) frameName() string  { return FrameTyping }
func (*PingFrame) frameName() string    { return FramePing }

type envelope struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

// DecodeFrame parses {"event": name, "data": {...}} and rejects unknown
// events, unknown fields and wrongly typed values.
func DecodeFrame(raw []byte) (Inbound, error) {
	var env envelope
	if err := strictUnmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch env.Name {
	case FrameMessage:
		f := &MessageFrame{}
		if err := decodeData(env.Data, &f.Request); err != nil {
			return nil, err
		}
		return f, nil
	case FrameTyping:
		f := &TypingFrame{}
		if err := decodeData(env.Data, f); err != nil {
			return nil, err
		}
		if f.ConversationID <= 0 {
			return nil, fmt.Errorf("%w: conversationId is required", ErrMalformedFrame)
		}
		return f, nil
	case FramePing:
		return &PingFrame{}, nil
	case "":
		return nil, fmt.Errorf("%w: missing event", ErrMalformedFrame)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrame, env.Name)
	}
}

func decodeData(data json.RawMessage, dst any) error {
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("%w: missing data", ErrMalformedFrame)
	}
	if err := strictUnmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return nil
}

func strictUnmarshal(data []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data")
	}
	return nil
}
