package user

import (
	"fmt"
	"strings"

	chatsync_errors "chatsync/pkg/errors"
)

// Presence is a user's connection state as reported by the server
type Presence string

const (
	PresenceOnline  Presence = "online"
	PresenceOffline Presence = "offline"
)

// ParsePresence validates a wire presence value
func ParsePresence(v string) (Presence, error) {
	switch Presence(strings.ToLower(strings.TrimSpace(v))) {
	case PresenceOnline:
		return PresenceOnline, nil
	case PresenceOffline:
		return PresenceOffline, nil
	}
	return "", fmt.Errorf("%w: unknown presence %q", chatsync_errors.ErrInvalidInput, v)
}

// User is one roster entry
type User struct {
	ID       int64    `json:"id"`
	Username string   `json:"username"`
	Status   Presence `json:"status,omitempty"`
}

// IsOnline reports whether the user is currently online
func (u User) IsOnline() bool {
	return u.Status == PresenceOnline
}

// DisplayName falls back to the id when the roster has no username
func (u User) DisplayName() string {
	if u.Username != "" {
		return u.Username
	}
	return fmt.Sprintf("User %d", u.ID)
}
