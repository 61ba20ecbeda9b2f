// Package protocol implements a lossless parse/serialize layer for the
// Chrome DevTools Protocol wire format: one UTF-8 JSON object per frame,
// carrying either a method call, a result, an event notification, or an
// error response. The model is pure data transformation; it performs no
// I/O and holds no state.
package protocol

import (
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrMalformedMessage is returned (wrapped) when a frame does not parse
// into a valid protocol message. Callers are expected to log and drop
// the offending frame; it is never fatal to a session.
var ErrMalformedMessage = errors.New("protocol: malformed message")

// Kind discriminates the four frame shapes on the wire.
type Kind int

const (
	// KindCall is a request: id + method (+ optional params).
	KindCall Kind = iota
	// KindResult is a successful response: id + result.
	KindResult
	// KindEvent is a notification: method (+ optional params), no id.
	KindEvent
	// KindError is a failed response: id + error object.
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindCall:
		return "call"
	case KindResult:
		return "result"
	case KindEvent:
		return "event"
	case KindError:
		return "error"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ErrorInfo is the protocol-level error object attached to a KindError frame.
type ErrorInfo struct {
	Code    int64               `json:"code"`
	Message string              `json:"message"`
	Data    jsoniter.RawMessage `json:"data,omitempty"`
}

// Message is the parsed form of a single wire frame. Params and Result
// are kept as raw JSON so re-serialization is byte-faithful and fields
// that were absent on the wire stay absent.
type Message struct {
	Kind      Kind
	ID        int64
	Method    string
	Params    jsoniter.RawMessage
	SessionID string
	Result    jsoniter.RawMessage
	Error     *ErrorInfo
}

// wireMessage mirrors the frame layout. Pointer/omitempty fields let us
// distinguish "absent" from "zero" in both directions.
type wireMessage struct {
	ID        *int64              `json:"id,omitempty"`
	Method    *string             `json:"method,omitempty"`
	Params    jsoniter.RawMessage `json:"params,omitempty"`
	SessionID string              `json:"sessionId,omitempty"`
	Result    jsoniter.RawMessage `json:"result,omitempty"`
	Error     *ErrorInfo          `json:"error,omitempty"`
}

// EmptyResult is the canonical empty success payload used when the
// proxy answers a blocked call locally.
func EmptyResult() jsoniter.RawMessage {
	return jsoniter.RawMessage(`{}`)
}

// NewCall builds an outbound request frame.
func NewCall(id int64, method string, params jsoniter.RawMessage) *Message {
	return &Message{Kind: KindCall, ID: id, Method: method, Params: params}
}

// NewResult builds a response frame for the given request id.
func NewResult(id int64, result jsoniter.RawMessage) *Message {
	return &Message{Kind: KindResult, ID: id, Result: result}
}

// NewEvent builds a notification frame.
func NewEvent(method string, params jsoniter.RawMessage) *Message {
	return &Message{Kind: KindEvent, Method: method, Params: params}
}

// NewError builds an error response frame for the given request id.
func NewError(id int64, code int64, message string) *Message {
	return &Message{Kind: KindError, ID: id, Error: &ErrorInfo{Code: code, Message: message}}
}

// Parse decodes a single wire frame into a Message. It fails with
// ErrMalformedMessage if the payload is not exactly one JSON object, if
// "method" is present but not a string, or if the frame is neither a
// call, an event, nor a response (id with result or error).
func Parse(frame []byte) (*Message, error) {
	var wire wireMessage
	if err := json.Unmarshal(frame, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch {
	case wire.Method != nil && wire.ID != nil:
		return &Message{
			Kind:      KindCall,
			ID:        *wire.ID,
			Method:    *wire.Method,
			Params:    wire.Params,
			SessionID: wire.SessionID,
		}, nil

	case wire.Method != nil:
		return &Message{
			Kind:      KindEvent,
			Method:    *wire.Method,
			Params:    wire.Params,
			SessionID: wire.SessionID,
		}, nil

	case wire.ID != nil && wire.Error != nil:
		return &Message{
			Kind:      KindError,
			ID:        *wire.ID,
			SessionID: wire.SessionID,
			Error:     wire.Error,
		}, nil

	case wire.ID != nil && wire.Result != nil:
		return &Message{
			Kind:      KindResult,
			ID:        *wire.ID,
			SessionID: wire.SessionID,
			Result:    wire.Result,
		}, nil
	}

	return nil, fmt.Errorf("%w: frame is neither call, event, nor response", ErrMalformedMessage)
}

// Serialize encodes the message back to its wire form. Fields that were
// absent at parse time (nil raw payloads) are omitted rather than
// emitted as empty objects.
func (m *Message) Serialize() ([]byte, error) {
	wire := wireMessage{SessionID: m.SessionID}

	switch m.Kind {
	case KindCall:
		id := m.ID
		method := m.Method
		wire.ID = &id
		wire.Method = &method
		wire.Params = m.Params
	case KindEvent:
		method := m.Method
		wire.Method = &method
		wire.Params = m.Params
	case KindResult:
		id := m.ID
		wire.ID = &id
		wire.Result = m.Result
	case KindError:
		id := m.ID
		wire.ID = &id
		wire.Error = m.Error
	default:
		return nil, fmt.Errorf("protocol: cannot serialize message of kind %s", m.Kind)
	}

	frame, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("protocol: serialize failed: %w", err)
	}
	return frame, nil
}

// IsResponse reports whether the message answers an outstanding call.
func (m *Message) IsResponse() bool {
	return m.Kind == KindResult || m.Kind == KindError
}
