package message

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	chatsync_errors "chatsync/pkg/errors"
)

// Status is a message's delivery stage. Values are ordered.
type Status int

const (
	StatusSending Status = iota
	StatusSent
	StatusDelivered
	StatusRead
)

var statusNames = [...]string{"sending", "sent", "delivered", "read"}

func (s Status) String() string {
	if s < StatusSending || s > StatusRead {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

// ParseStatus maps a wire status to a Status. An empty string means the server
// omitted it and is reported as sent.
func ParseStatus(v string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "":
		return StatusSent, nil
	case "sending":
		return StatusSending, nil
	case "sent":
		return StatusSent, nil
	case "delivered":
		return StatusDelivered, nil
	case "read":
		return StatusRead, nil
	}
	return StatusSent, fmt.Errorf("%w: unknown status %q", chatsync_errors.ErrInvalidInput, v)
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Message is the client-side record of one delivered copy of a chat message.
// IDs are server-assigned and positive; negative IDs mark local pending sends.
type Message struct {
	ID         int64     `json:"id"`
	SenderID   int64     `json:"sender_id"`
	ReceiverID int64     `json:"receiver_id,omitempty"`
	Content    string    `json:"content"`
	MediaURL   string    `json:"media_url,omitempty"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	defaulted []string
}

// UnmarshalJSON keeps a message whose status or timestamps cannot be read:
// the status falls back to sent and the timestamp stays zero. Fields that
// were replaced this way are listed by Defaulted.
func (m *Message) UnmarshalJSON(data []byte) error {
	type alias Message
	var wire struct {
		alias
		Status    json.RawMessage `json:"status"`
		CreatedAt json.RawMessage `json:"created_at"`
		UpdatedAt json.RawMessage `json:"updated_at"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*m = Message(wire.alias)
	m.defaulted = nil

	m.Status = StatusSent
	if status, ok := parseWireStatus(wire.Status); ok {
		m.Status = status
	} else {
		m.defaulted = append(m.defaulted, "status")
	}
	var ok bool
	if m.CreatedAt, ok = parseWireTime(wire.CreatedAt); !ok {
		m.defaulted = append(m.defaulted, "created_at")
	}
	if m.UpdatedAt, ok = parseWireTime(wire.UpdatedAt); !ok {
		m.defaulted = append(m.defaulted, "updated_at")
	}
	return nil
}

// Defaulted names the fields UnmarshalJSON could not read.
func (m Message) Defaulted() []string {
	return m.defaulted
}

func parseWireStatus(raw json.RawMessage) (Status, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return StatusSent, true
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return StatusSent, false
	}
	status, err := ParseStatus(text)
	return status, err == nil
}

// timeLayouts are tried in order after RFC 3339.
var timeLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// parseWireTime accepts RFC 3339, naive ISO timestamps and unix seconds.
// Missing values are not a failure.
func parseWireTime(raw json.RawMessage) (time.Time, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) || bytes.Equal(raw, []byte(`""`)) {
		return time.Time{}, true
	}
	if raw[0] != '"' {
		secs, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		return time.Unix(secs, 0), true
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return time.Time{}, false
	}
	if parsed, err := time.Parse(time.RFC3339Nano, text); err == nil {
		return parsed, true
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, text); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

// IsPending reports whether the message has not been acknowledged by the server yet.
func (m Message) IsPending() bool {
	return m.ID < 0
}

// Involves reports whether userID is either side of the message.
func (m Message) Involves(userID int64) bool {
	return userID != 0 && (m.SenderID == userID || m.ReceiverID == userID)
}

// ReceivedBy reports whether the message was sent to userID by someone else.
func (m Message) ReceivedBy(userID int64) bool {
	return m.ReceiverID == userID && m.SenderID != userID
}

// Advance moves the message to next. Regressions and no-ops return
// ErrInvalidTransition and leave the message untouched.
func (m *Message) Advance(next Status, at time.Time) error {
	if next <= m.Status {
		return fmt.Errorf("%w: %s -> %s", chatsync_errors.ErrInvalidTransition, m.Status, next)
	}
	m.Status = next
	m.UpdatedAt = at
	return nil
}
