package engine

import (
	"errors"

	"chatsync/internal/events"
	chatsync_errors "chatsync/pkg/errors"

	"go.uber.org/zap"
)

// handleFrame decodes one socket frame, which may carry several
// newline-separated envelopes, and dispatches each in order.
func (e *Engine) handleFrame(frame []byte) {
	lines, err := events.SplitFrame(frame)
	if err != nil {
		e.log.Warn("markup_frame_dropped", zap.Int("bytes", len(frame)))
		return
	}
	for _, line := range lines {
		ev, err := events.Decode(line)
		if err != nil {
			if errors.Is(err, chatsync_errors.ErrMarkupFrame) {
				e.log.Warn("markup_frame_dropped", zap.Int("bytes", len(line)))
				continue
			}
			e.log.Warn("frame_dropped", zap.Error(err), zap.ByteString("frame", truncate(line, 256)))
			continue
		}
		e.dispatch(ev)
	}
}

func (e *Engine) dispatch(ev events.Event) {
	if e.sess == nil || e.sess.Closed() {
		return
	}
	switch ev := ev.(type) {
	case events.NewMessage:
		if fields := ev.Message.Defaulted(); len(fields) > 0 {
			e.log.Warn("message_fields_defaulted", zap.Int64("message_id", ev.Message.ID), zap.Strings("fields", fields))
		}
		e.handleNewMessage(ev.Message)
	case events.StatusChange:
		e.handleStatusChange(ev)
	case events.PresenceChange:
		e.handlePresence(ev)
	case events.Typing:
		if ev.UserID != 0 && ev.UserID == e.conv.active {
			e.view.Typing(ev.UserID, ev.IsTyping)
		}
	case events.ServerError:
		e.log.Warn("server_error", zap.String("message", ev.Message))
		e.view.ServerError(ev.Message)
	case events.Unrecognized:
		e.log.Debug("unrecognized_event", zap.String("type", ev.Type))
	}
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
