package engine

import (
	"chatsync/internal/domain/message"
	"chatsync/internal/events"
	"chatsync/internal/loop"

	"go.uber.org/zap"
)

const visibleThreshold = 0.5

// readTracking is the at-most-once gate for message_read. read lives for the
// session; observed and visible are scoped to the open conversation.
type readTracking struct {
	read     map[int64]struct{}
	observed map[int64]struct{}
	visible  map[int64]bool
}

func newReadTracking() *readTracking {
	return &readTracking{
		read:     make(map[int64]struct{}),
		observed: make(map[int64]struct{}),
		visible:  make(map[int64]bool),
	}
}

// observe registers a rendered received message.
func (r *readTracking) observe(id int64) {
	if id <= 0 {
		return
	}
	r.observed[id] = struct{}{}
}

func (r *readTracking) isRead(id int64) bool {
	_, ok := r.read[id]
	return ok
}

// reset forgets conversation-scoped state. The read set survives.
func (r *readTracking) reset() {
	r.observed = make(map[int64]struct{})
	r.visible = make(map[int64]bool)
}

func (r *readTracking) clear() {
	r.reset()
	r.read = make(map[int64]struct{})
}

// markRead sends message_read for id unless it was already announced or is
// already read. The id joins the read set only once the send succeeded.
func (e *Engine) markRead(id int64) bool {
	if id <= 0 || e.receipts.isRead(id) {
		return false
	}
	if m, ok := e.tracker.known[id]; ok && m.Status >= message.StatusRead {
		return false
	}
	if !e.conn.Send(events.MessageRead(id)) {
		e.log.Debug("message_read_not_sent", zap.Int64("message_id", id))
		return false
	}
	e.receipts.read[id] = struct{}{}
	e.sched.Cancel(loop.Key{Purpose: loop.PurposeDwell, ID: id})
	e.sched.Cancel(loop.Key{Purpose: loop.PurposeFallbackRead, ID: id})
	e.advance(id, message.StatusRead)
	e.log.Debug("message_read_sent", zap.Int64("message_id", id))
	return true
}

// ReportVisibility is fed by the view with the visible fraction of a
// rendered received message. Staying visible for the dwell delay marks it read.
func (e *Engine) ReportVisibility(id int64, fraction float64) {
	if _, ok := e.receipts.observed[id]; !ok {
		return
	}
	key := loop.Key{Purpose: loop.PurposeDwell, ID: id}
	if fraction <= visibleThreshold {
		e.receipts.visible[id] = false
		e.sched.Cancel(key)
		return
	}
	e.receipts.visible[id] = true
	if e.receipts.isRead(id) || e.sched.Pending(key) {
		return
	}
	if m, ok := e.tracker.known[id]; ok && m.Status >= message.StatusRead {
		return
	}
	sess := e.sess
	e.sched.Schedule(key, e.timings.Dwell, func() {
		if !e.current(sess) || !sess.Active() || !e.receipts.visible[id] {
			e.log.Debug("dwell_read_suppressed", zap.Int64("message_id", id))
			return
		}
		e.markRead(id)
	})
}

// armSettle schedules the bulk read of everything rendered in the
// conversation that was just opened.
func (e *Engine) armSettle(userID int64, gen uint64) {
	sess := e.sess
	e.sched.Schedule(loop.Key{Purpose: loop.PurposeSettle}, e.timings.Settle, func() {
		if !e.current(sess) || !sess.Active() || e.conv.active != userID || e.conv.gen != gen {
			e.log.Debug("settle_suppressed", zap.Int64("user_id", userID))
			return
		}
		n := 0
		for _, m := range e.tracker.transcript {
			if _, ok := e.receipts.observed[m.ID]; !ok {
				continue
			}
			if e.markRead(m.ID) {
				n++
			}
		}
		e.log.Debug("settle_marked_read", zap.Int64("user_id", userID), zap.Int("count", n))
	})
}
