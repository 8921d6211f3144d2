package chatsync_errors

import "errors"

// Common errors
var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrNotConnected      = errors.New("websocket is not connected")
	ErrNotLoggedIn       = errors.New("not logged in")
	ErrTokenExpired      = errors.New("token expired")
	ErrInvalidInput      = errors.New("invalid input")
	ErrTooLarge          = errors.New("file too large")
	ErrUnsupportedMedia  = errors.New("unsupported file type")
	ErrNoConversation    = errors.New("no conversation selected")
	ErrEmptyMessage      = errors.New("message is empty")
	ErrNoRecipients      = errors.New("no recipients selected")
)

// Frame decoding errors
var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrMarkupFrame    = errors.New("received markup document instead of json")
	ErrInvalidPayload = errors.New("invalid payload")
)
