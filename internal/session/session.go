package session

import (
	"context"
	"time"

	"chatsync/pkg/logger"

	"github.com/google/uuid"
)

// Session is the explicit per-login context: who is logged in, with which
// token, and whether the user is currently looking at the client.
type Session struct {
	ID        uuid.UUID
	UserID    int64
	Username  string
	Token     string
	StartedAt time.Time

	active bool
	closed bool
}

// Init starts a session for freshly obtained or resumed credentials.
// A new session starts active.
func Init(creds Credentials) *Session {
	return &Session{
		ID:        uuid.New(),
		UserID:    creds.UserID,
		Username:  creds.Username,
		Token:     creds.Token,
		StartedAt: time.Now(),
		active:    true,
	}
}

func (s *Session) Active() bool {
	return s != nil && !s.closed && s.active
}

// SetActive records focus changes and reports whether the flag changed.
func (s *Session) SetActive(active bool) bool {
	if s == nil || s.closed || s.active == active {
		return false
	}
	s.active = active
	return true
}

func (s *Session) Closed() bool {
	return s == nil || s.closed
}

// Teardown forgets the credential. The session cannot be reactivated.
func (s *Session) Teardown() {
	if s == nil {
		return
	}
	s.Token = ""
	s.active = false
	s.closed = true
}

// Context carries the session fields the logger picks up.
func (s *Session) Context(ctx context.Context) context.Context {
	if s == nil {
		return ctx
	}
	ctx = context.WithValue(ctx, logger.SessionIdKey, s.ID.String())
	return context.WithValue(ctx, logger.UserIdKey, s.UserID)
}
