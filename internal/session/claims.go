package session

import (
	"fmt"
	"time"

	chatsync_errors "chatsync/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
)

// Claims mirrors what the chat server signs into its bearer tokens.
type Claims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// ParseClaims reads the token body without verifying the signature; only the
// server holds the key. Tokens past their expiry are rejected.
func ParseClaims(token string, now time.Time) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parse token: %v: %w", err, chatsync_errors.ErrUnauthorized)
	}
	if claims.ExpiresAt != nil && !now.Before(claims.ExpiresAt.Time) {
		return claims, chatsync_errors.ErrTokenExpired
	}
	return claims, nil
}

// Resume loads stored credentials and checks the token is still usable.
// Expired credentials are cleared.
func Resume(store Store, now time.Time) (Credentials, error) {
	creds, err := store.Load()
	if err != nil {
		return Credentials{}, err
	}
	claims, err := ParseClaims(creds.Token, now)
	if err != nil {
		_ = store.Clear()
		return Credentials{}, err
	}
	if creds.UserID == 0 {
		creds.UserID = claims.UserID
	}
	if creds.Username == "" {
		creds.Username = claims.Username
	}
	return creds, nil
}
