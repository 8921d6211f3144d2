package engine

import (
	"strings"

	"chatsync/internal/domain/message"
	"chatsync/internal/events"
	"chatsync/internal/loop"
	chatsync_errors "chatsync/pkg/errors"

	"go.uber.org/zap"
)

// conversation is the one open conversation of the session. gen changes on
// every open so late results can be matched against it.
type conversation struct {
	active int64
	gen    uint64
}

// ActiveConversation returns the open counterpart, 0 when none.
func (e *Engine) ActiveConversation() int64 {
	return e.conv.active
}

// SelectUser opens the conversation with userID, closing any other first.
func (e *Engine) SelectUser(userID int64) error {
	if e.sess == nil || e.sess.Closed() {
		return chatsync_errors.ErrNotLoggedIn
	}
	if userID <= 0 || userID == e.sess.UserID {
		return chatsync_errors.ErrInvalidInput
	}
	if e.conv.active == userID {
		return nil
	}
	if e.conv.active != 0 {
		e.CloseConversation()
	}

	e.conv.active = userID
	e.conv.gen++
	gen := e.conv.gen

	e.view.ClearNewMessageMarker(userID)
	e.view.ConversationOpened(e.presence.lookup(userID))
	e.conn.Send(events.ConversationOpened(userID))
	e.log.Info("conversation_opened", zap.Int64("user_id", userID))

	e.fetchHistory(userID, gen)
	e.armSettle(userID, gen)
	return nil
}

func (e *Engine) fetchHistory(userID int64, gen uint64) {
	sess := e.sess
	ctx := sess.Context(e.ctx)
	e.exec.Go(func() {
		msgs, err := e.api.FetchConversation(ctx, userID)
		e.exec.Post(func() {
			if !e.current(sess) || e.conv.active != userID || e.conv.gen != gen {
				e.log.Debug("stale_history_discarded", zap.Int64("user_id", userID))
				return
			}
			if err != nil {
				if !e.handleRESTError("fetch_conversation", err) {
					e.view.ServerError("failed to load conversation: " + err.Error())
				}
				return
			}
			e.applyHistory(msgs)
		})
	})
}

// applyHistory replaces the transcript wholesale. Pending local sends and
// live messages that arrived after the snapshot was taken are carried over.
func (e *Engine) applyHistory(msgs []message.Message) {
	inHistory := make(map[int64]bool, len(msgs))
	for _, m := range msgs {
		inHistory[m.ID] = true
	}
	var carried []*message.Message
	for _, m := range e.tracker.transcript {
		if m.IsPending() || !inHistory[m.ID] {
			carried = append(carried, m)
		}
	}
	rendered := e.tracker.replaceTranscript(msgs)
	for _, m := range carried {
		e.tracker.append(m)
		rendered = append(rendered, *m)
	}

	me := e.sess.UserID
	for _, m := range rendered {
		if m.ReceivedBy(me) {
			e.receipts.observe(m.ID)
		}
	}
	e.view.SetTranscript(rendered)
	e.log.Debug("history_loaded", zap.Int64("user_id", e.conv.active), zap.Int("messages", len(msgs)))
}

// CloseConversation announces the close and drops every read-scheduling task
// of the conversation. Delivered tasks already armed still fire.
func (e *Engine) CloseConversation() {
	if e.conv.active == 0 {
		return
	}
	userID := e.conv.active
	e.conn.Send(events.ConversationClosed())

	e.sched.CancelPurpose(loop.PurposeDwell, loop.PurposeSettle, loop.PurposeFallbackRead)
	e.receipts.reset()
	e.tracker.clearTranscript()
	e.conv.active = 0
	e.view.ConversationClosed()
	e.log.Info("conversation_closed", zap.Int64("user_id", userID))
}

// SetTyping tells the open counterpart whether the user is composing.
func (e *Engine) SetTyping(typing bool) bool {
	if e.conv.active == 0 {
		return false
	}
	return e.conn.Send(events.TypingIndicator(e.conv.active, typing))
}

// Draft is an outbound message as composed by the user.
type Draft struct {
	Content    string
	Attachment string
}

func (d Draft) empty() bool {
	return strings.TrimSpace(d.Content) == "" && d.Attachment == ""
}
