package events

// Inbound event types
const (
	TypeReceiveMessage = "receive_message"
	TypeStatusChange   = "status_change"
	TypeUserStatus     = "user_status"
	TypeTyping         = "typing"
	TypeError          = "error"
)

// Outbound event types
const (
	TypeGetOnlineUsers     = "get_online_users"
	TypeUpdateStatus       = "update_status"
	TypeMessageRead        = "message_read"
	TypeConversationOpened = "conversation_opened"
	TypeConversationClosed = "conversation_closed"
	TypeSendMessage        = "send_message"
	TypeBroadcastMessage   = "broadcast_message"
)
