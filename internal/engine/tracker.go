package engine

import (
	"chatsync/internal/domain/message"
	"chatsync/internal/events"
	"chatsync/internal/loop"

	"go.uber.org/zap"
)

// tracker owns every message the session has seen and the transcript of the
// open conversation. Statuses only move forward.
type tracker struct {
	known      map[int64]*message.Message
	transcript []*message.Message
	nextLocal  int64
}

func newTracker() *tracker {
	return &tracker{known: make(map[int64]*message.Message)}
}

// remember records m, merging with an earlier copy of the same id. The
// higher status wins.
func (t *tracker) remember(m message.Message) *message.Message {
	if existing, ok := t.known[m.ID]; ok {
		if m.Status > existing.Status {
			existing.Status = m.Status
		}
		if existing.CreatedAt.IsZero() {
			existing.CreatedAt = m.CreatedAt
		}
		return existing
	}
	stored := m
	t.known[m.ID] = &stored
	return &stored
}

// replaceTranscript installs a freshly loaded history.
func (t *tracker) replaceTranscript(msgs []message.Message) []message.Message {
	t.transcript = t.transcript[:0]
	out := make([]message.Message, 0, len(msgs))
	for _, m := range msgs {
		stored := t.remember(m)
		t.transcript = append(t.transcript, stored)
		out = append(out, *stored)
	}
	return out
}

func (t *tracker) append(m *message.Message) {
	t.transcript = append(t.transcript, m)
}

// addPending creates the local echo of an outbound message.
func (t *tracker) addPending(m message.Message) message.Message {
	t.nextLocal--
	m.ID = t.nextLocal
	m.Status = message.StatusSending
	stored := m
	t.transcript = append(t.transcript, &stored)
	return stored
}

// reconcile swaps the oldest matching pending entry for the server's copy.
func (t *tracker) reconcile(m *message.Message) (int64, bool) {
	for i, p := range t.transcript {
		if !p.IsPending() {
			continue
		}
		if p.ReceiverID == m.ReceiverID && p.Content == m.Content && p.MediaURL == m.MediaURL {
			localID := p.ID
			t.transcript[i] = m
			return localID, true
		}
	}
	return 0, false
}

func (t *tracker) inTranscript(id int64) bool {
	for _, m := range t.transcript {
		if m.ID == id {
			return true
		}
	}
	return false
}

func (t *tracker) clearTranscript() {
	t.transcript = nil
}

func (t *tracker) clear() {
	t.known = make(map[int64]*message.Message)
	t.transcript = nil
}

// handleNewMessage routes one inbound message: render or notify, then arm
// the delivered and fallback-read tasks when the user is looking at it.
func (e *Engine) handleNewMessage(in message.Message) {
	me := e.sess.UserID
	active := e.conv.active
	msg := e.tracker.remember(in)

	if active != 0 && msg.Involves(active) {
		rendered := false
		if msg.SenderID == me {
			if localID, ok := e.tracker.reconcile(msg); ok {
				e.view.ReplacePending(localID, *msg)
				rendered = true
			}
		}
		if !rendered && !e.tracker.inTranscript(msg.ID) {
			e.tracker.append(msg)
			e.view.AppendMessage(*msg)
		}
		if msg.ReceivedBy(me) {
			e.receipts.observe(msg.ID)
		}
	}

	if msg.SenderID != me && msg.SenderID != active {
		e.view.Notify(*msg)
	}

	if msg.ReceiverID == me && msg.SenderID != me && active != 0 && msg.SenderID == active && e.sess.Active() {
		e.armDelivered(msg.ID)
		e.armFallbackRead(msg.ID, msg.SenderID)
	}
}

func (e *Engine) armDelivered(id int64) {
	sess := e.sess
	e.sched.Schedule(loop.Key{Purpose: loop.PurposeDelivered, ID: id}, e.timings.Delivered, func() {
		if !e.current(sess) || !sess.Active() {
			e.log.Debug("delivered_suppressed", zap.Int64("message_id", id))
			return
		}
		m, ok := e.tracker.known[id]
		if !ok || m.Status >= message.StatusDelivered {
			return
		}
		if e.conn.Send(events.UpdateStatus(id, message.StatusDelivered.String())) {
			e.advance(id, message.StatusDelivered)
		}
	})
}

func (e *Engine) armFallbackRead(id, senderID int64) {
	sess := e.sess
	e.sched.Schedule(loop.Key{Purpose: loop.PurposeFallbackRead, ID: id}, e.timings.FallbackRead, func() {
		if !e.current(sess) || !sess.Active() || e.conv.active != senderID {
			e.log.Debug("fallback_read_suppressed", zap.Int64("message_id", id))
			return
		}
		e.markRead(id)
	})
}

// handleStatusChange applies a server-announced status to a known message.
func (e *Engine) handleStatusChange(ev events.StatusChange) {
	if _, ok := e.tracker.known[ev.MessageID]; !ok {
		e.log.Debug("status_change_unknown_message", zap.Int64("message_id", ev.MessageID))
		return
	}
	if !e.advance(ev.MessageID, ev.Status) {
		e.log.Debug("status_change_ignored",
			zap.Int64("message_id", ev.MessageID),
			zap.String("status", ev.Status.String()),
		)
	}
}

// advance moves a known message forward and tells the view. Regressions are refused.
func (e *Engine) advance(id int64, status message.Status) bool {
	m, ok := e.tracker.known[id]
	if !ok {
		return false
	}
	if err := m.Advance(status, e.now()); err != nil {
		return false
	}
	e.view.StatusChanged(id, status)
	return true
}
