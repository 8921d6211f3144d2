package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	chatsync_errors "chatsync/pkg/errors"

	"github.com/gorilla/websocket"
)

// Socket is the part of *websocket.Conn the manager drives.
type Socket interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	Close() error
}

// Dialer opens an authenticated socket.
type Dialer interface {
	Dial(ctx context.Context, token string) (Socket, error)
}

// HandshakeError reports a websocket upgrade the server refused over HTTP.
type HandshakeError struct {
	StatusCode int
	Err        error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("websocket handshake failed with status %d: %v", e.StatusCode, e.Err)
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

// WSDialer dials <base>/ws?token=<bearer> with gorilla/websocket.
type WSDialer struct {
	endpoint string
	dialer   *websocket.Dialer
}

// NewDialer derives the websocket endpoint from the REST base url
// (http -> ws, https -> wss).
func NewDialer(serverURL string) (*WSDialer, error) {
	u, err := url.Parse(strings.TrimRight(serverURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported server url scheme %q: %w", u.Scheme, chatsync_errors.ErrInvalidInput)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return &WSDialer{
		endpoint: u.String(),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
	}, nil
}

// Endpoint is the socket url without credentials.
func (d *WSDialer) Endpoint() string {
	return d.endpoint
}

func (d *WSDialer) Dial(ctx context.Context, token string) (Socket, error) {
	target := d.endpoint + "?token=" + url.QueryEscape(token)
	conn, resp, err := d.dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil {
			hsErr := &HandshakeError{StatusCode: resp.StatusCode, Err: err}
			if resp.StatusCode == http.StatusUnauthorized {
				hsErr.Err = chatsync_errors.ErrUnauthorized
			}
			return nil, hsErr
		}
		return nil, fmt.Errorf("dial %s: %w", d.endpoint, err)
	}
	return conn, nil
}
