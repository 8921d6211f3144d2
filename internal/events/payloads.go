package events

// Inbound payload schemas

type StatusChangePayload struct {
	MessageID int64  `json:"message_id"`
	Status    string `json:"status"`
	UserID    int64  `json:"user_id,omitempty"`
}

type UserStatusPayload struct {
	UserID int64  `json:"user_id"`
	Status string `json:"status"`
}

type TypingPayload struct {
	UserID   int64 `json:"user_id"`
	IsTyping *bool `json:"is_typing"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// Outbound payload schemas

type UpdateStatusPayload struct {
	MessageID int64  `json:"message_id"`
	Status    string `json:"status"`
}

type MessageReadPayload struct {
	MessageID int64 `json:"message_id"`
}

type ConversationOpenedPayload struct {
	UserID int64 `json:"user_id"`
}

type SendMessagePayload struct {
	Message  string `json:"message"`
	To       int64  `json:"to"`
	MediaURL string `json:"media_url"`
}

type BroadcastMessagePayload struct {
	Message     string  `json:"message"`
	ReceiverIDs []int64 `json:"receiver_ids"`
	MediaURL    string  `json:"media_url"`
}

type TypingOutPayload struct {
	ReceiverID int64 `json:"receiver_id"`
	IsTyping   bool  `json:"is_typing"`
}
