package events

import (
	"encoding/json"
)

// Envelope is the only unit exchanged over the real-time channel, in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewEnvelope wraps payload under the given type.
func NewEnvelope(eventType string, payload any) Envelope {
	if payload == nil {
		payload = struct{}{}
	}
	raw, _ := json.Marshal(payload)
	return Envelope{Type: eventType, Payload: raw}
}

// Encode returns the envelope as a single JSON text frame.
func (e Envelope) Encode() ([]byte, error) {
	if len(e.Payload) == 0 {
		e.Payload = json.RawMessage("{}")
	}
	return json.Marshal(e)
}

func GetOnlineUsers() Envelope {
	return NewEnvelope(TypeGetOnlineUsers, nil)
}

func UpdateStatus(messageID int64, status string) Envelope {
	return NewEnvelope(TypeUpdateStatus, UpdateStatusPayload{MessageID: messageID, Status: status})
}

func MessageRead(messageID int64) Envelope {
	return NewEnvelope(TypeMessageRead, MessageReadPayload{MessageID: messageID})
}

func ConversationOpened(userID int64) Envelope {
	return NewEnvelope(TypeConversationOpened, ConversationOpenedPayload{UserID: userID})
}

func ConversationClosed() Envelope {
	return NewEnvelope(TypeConversationClosed, nil)
}

func SendMessage(content string, to int64, mediaURL string) Envelope {
	return NewEnvelope(TypeSendMessage, SendMessagePayload{Message: content, To: to, MediaURL: mediaURL})
}

func BroadcastMessage(content string, receiverIDs []int64, mediaURL string) Envelope {
	return NewEnvelope(TypeBroadcastMessage, BroadcastMessagePayload{Message: content, ReceiverIDs: receiverIDs, MediaURL: mediaURL})
}

func TypingIndicator(receiverID int64, isTyping bool) Envelope {
	return NewEnvelope(TypeTyping, TypingOutPayload{ReceiverID: receiverID, IsTyping: isTyping})
}
