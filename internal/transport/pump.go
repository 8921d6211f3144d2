package transport

import (
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

func (m *Manager) readPump(c *connection) {
	c.sock.SetReadLimit(maxMessageSize)
	for {
		_, data, err := c.sock.ReadMessage()
		if err != nil {
			code := closeCode(err)
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				m.log.Warn("websocket_unexpected_close", zap.Error(err), zap.Int("code", code))
			}
			m.exec.Post(func() {
				m.handleClosed(c, code)
			})
			return
		}
		m.exec.Post(func() {
			m.handleFrame(c, data)
		})
	}
}

func (m *Manager) writePump(c *connection) {
	ticker := time.NewTicker(m.opts.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case message := <-c.send:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.TextMessage, message); err != nil {
				m.log.Error("websocket_write_failed", err)
				// the read pump observes the closed socket and reports it
				_ = c.sock.Close()
				return
			}
		case <-ticker.C:
			if err := c.sock.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				m.log.Error("websocket_ping_failed", err)
				_ = c.sock.Close()
				return
			}
		}
	}
}

// closeCode maps a read error to a close code; anything that is not a
// close frame counts as an abnormal closure.
func closeCode(err error) int {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return websocket.CloseAbnormalClosure
}
