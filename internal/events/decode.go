package events

import (
	"bytes"
	"encoding/json"
	"fmt"

	"chatsync/internal/domain/message"
	"chatsync/internal/domain/user"
	chatsync_errors "chatsync/pkg/errors"
)

// Event is a decoded inbound envelope. The set of implementations is closed:
// NewMessage, StatusChange, PresenceChange, Typing, ServerError, Unrecognized.
type Event interface {
	EventType() string
	isEvent()
}

type NewMessage struct {
	Message message.Message
}

type StatusChange struct {
	MessageID int64
	Status    message.Status
	UserID    int64
}

type PresenceChange struct {
	UserID int64
	Status user.Presence
}

type Typing struct {
	UserID   int64
	IsTyping bool
}

type ServerError struct {
	Message string
}

// Unrecognized carries a well-formed envelope whose type this client does not handle.
type Unrecognized struct {
	Type    string
	Payload json.RawMessage
}

func (NewMessage) EventType() string     { return TypeReceiveMessage }
func (StatusChange) EventType() string   { return TypeStatusChange }
func (PresenceChange) EventType() string { return TypeUserStatus }
func (Typing) EventType() string         { return TypeTyping }
func (ServerError) EventType() string    { return TypeError }
func (u Unrecognized) EventType() string { return u.Type }

func (NewMessage) isEvent()     {}
func (StatusChange) isEvent()   {}
func (PresenceChange) isEvent() {}
func (Typing) isEvent()         {}
func (ServerError) isEvent()    {}
func (Unrecognized) isEvent()   {}

const unknownServerError = "Unknown error occurred"

// SplitFrame breaks a raw frame into envelope lines. The server's write pump
// coalesces queued envelopes into one frame separated by newlines. A frame
// that starts with markup is rejected whole with ErrMarkupFrame.
func SplitFrame(frame []byte) ([][]byte, error) {
	if trimmed := bytes.TrimSpace(frame); len(trimmed) > 0 && trimmed[0] == '<' {
		return nil, chatsync_errors.ErrMarkupFrame
	}
	var lines [][]byte
	for _, line := range bytes.Split(frame, []byte{'\n'}) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// Decode parses one envelope. Malformed input returns an error wrapping
// ErrMarkupFrame, ErrMalformedFrame or ErrInvalidPayload; a valid envelope of an
// unknown type returns Unrecognized and no error.
func Decode(data []byte) (Event, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty frame", chatsync_errors.ErrMalformedFrame)
	}
	if trimmed[0] == '<' {
		return nil, chatsync_errors.ErrMarkupFrame
	}
	if trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: unexpected prefix %q", chatsync_errors.ErrMalformedFrame, trimmed[0])
	}

	var env Envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", chatsync_errors.ErrMalformedFrame, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: event type is undefined", chatsync_errors.ErrMalformedFrame)
	}

	payload, err := unwrapPayload(env.Payload)
	if err != nil {
		return nil, payloadError(env.Type, err)
	}

	switch env.Type {
	case TypeReceiveMessage:
		return decodeNewMessage(payload)
	case TypeStatusChange:
		return decodeStatusChange(payload)
	case TypeUserStatus:
		return decodePresence(payload)
	case TypeTyping:
		return decodeTyping(payload)
	case TypeError:
		return decodeServerError(payload), nil
	default:
		return Unrecognized{Type: env.Type, Payload: env.Payload}, nil
	}
}

// unwrapPayload accepts both an embedded object and a JSON string holding one.
func unwrapPayload(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return trimmed, nil
	}
	var inner string
	if err := json.Unmarshal(trimmed, &inner); err != nil {
		return nil, err
	}
	innerBytes := bytes.TrimSpace([]byte(inner))
	if len(innerBytes) > 0 && (innerBytes[0] == '{' || innerBytes[0] == '"') {
		return innerBytes, nil
	}
	// A bare string that is not JSON (only meaningful for error events).
	quoted, _ := json.Marshal(inner)
	return quoted, nil
}

func payloadError(eventType string, err error) error {
	return fmt.Errorf("%w: %s: %v", chatsync_errors.ErrInvalidPayload, eventType, err)
}

func decodeNewMessage(payload json.RawMessage) (Event, error) {
	var msg message.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, payloadError(TypeReceiveMessage, err)
	}
	if msg.ID <= 0 {
		return nil, payloadError(TypeReceiveMessage, fmt.Errorf("message id %d is not positive", msg.ID))
	}
	return NewMessage{Message: msg}, nil
}

func decodeStatusChange(payload json.RawMessage) (Event, error) {
	var p StatusChangePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, payloadError(TypeStatusChange, err)
	}
	if p.MessageID <= 0 || p.Status == "" {
		return nil, payloadError(TypeStatusChange, fmt.Errorf("message_id and status are required"))
	}
	status, err := message.ParseStatus(p.Status)
	if err != nil {
		return nil, payloadError(TypeStatusChange, err)
	}
	return StatusChange{MessageID: p.MessageID, Status: status, UserID: p.UserID}, nil
}

func decodePresence(payload json.RawMessage) (Event, error) {
	var p UserStatusPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, payloadError(TypeUserStatus, err)
	}
	if p.UserID == 0 || p.Status == "" {
		return nil, payloadError(TypeUserStatus, fmt.Errorf("user_id and status are required"))
	}
	presence, err := user.ParsePresence(p.Status)
	if err != nil {
		return nil, payloadError(TypeUserStatus, err)
	}
	return PresenceChange{UserID: p.UserID, Status: presence}, nil
}

func decodeTyping(payload json.RawMessage) (Event, error) {
	var p TypingPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, payloadError(TypeTyping, err)
	}
	if p.UserID == 0 || p.IsTyping == nil {
		return nil, payloadError(TypeTyping, fmt.Errorf("user_id and is_typing are required"))
	}
	return Typing{UserID: p.UserID, IsTyping: *p.IsTyping}, nil
}

func decodeServerError(payload json.RawMessage) Event {
	if len(payload) == 0 {
		return ServerError{Message: unknownServerError}
	}
	var text string
	if err := json.Unmarshal(payload, &text); err == nil && text != "" {
		return ServerError{Message: text}
	}
	var p ErrorPayload
	if err := json.Unmarshal(payload, &p); err == nil && p.Message != "" {
		return ServerError{Message: p.Message}
	}
	return ServerError{Message: unknownServerError}
}
