package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var errSocketClosed = errors.New("use of closed network connection")

type fakeSocket struct {
	inbox  chan []byte
	closed chan struct{}
	once   sync.Once

	mu         sync.Mutex
	closeErr   error
	written    [][]byte
	closeCodes []int
	pings      int
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		inbox:  make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (s *fakeSocket) ReadMessage() (int, []byte, error) {
	select {
	case data := <-s.inbox:
		return websocket.TextMessage, data, nil
	case <-s.closed:
		s.mu.Lock()
		defer s.mu.Unlock()
		return 0, nil, s.closeErr
	}
}

func (s *fakeSocket) WriteMessage(_ int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closeErr != nil {
		return s.closeErr
	}
	s.written = append(s.written, append([]byte(nil), data...))
	return nil
}

func (s *fakeSocket) WriteControl(messageType int, data []byte, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch messageType {
	case websocket.CloseMessage:
		if len(data) >= 2 {
			s.closeCodes = append(s.closeCodes, int(binary.BigEndian.Uint16(data)))
		}
	case websocket.PingMessage:
		s.pings++
	}
	return nil
}

func (s *fakeSocket) SetWriteDeadline(time.Time) error { return nil }

func (s *fakeSocket) SetReadLimit(int64) {}

func (s *fakeSocket) Close() error {
	s.closeWith(errSocketClosed)
	return nil
}

// serverClose simulates the peer closing with a close frame.
func (s *fakeSocket) serverClose(code int) {
	s.closeWith(&websocket.CloseError{Code: code})
}

func (s *fakeSocket) closeWith(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.closeErr = err
		s.mu.Unlock()
		close(s.closed)
	})
}

func (s *fakeSocket) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *fakeSocket) frames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.written))
	for _, w := range s.written {
		out = append(out, string(w))
	}
	return out
}

func (s *fakeSocket) sentCloseCodes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.closeCodes...)
}

type fakeDialer struct {
	mu      sync.Mutex
	errs    []error
	tokens  []string
	sockets []*fakeSocket
	// blocks dials until released when non-nil
	gate chan struct{}
}

func (d *fakeDialer) Dial(ctx context.Context, token string) (Socket, error) {
	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tokens = append(d.tokens, token)
	if len(d.errs) > 0 {
		err := d.errs[0]
		d.errs = d.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	s := newFakeSocket()
	d.sockets = append(d.sockets, s)
	return s, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tokens)
}

func (d *fakeDialer) socket(i int) *fakeSocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.sockets) {
		return nil
	}
	return d.sockets[i]
}

func (d *fakeDialer) dialedTokens() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.tokens...)
}
