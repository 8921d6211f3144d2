package engine

import (
	"fmt"

	"chatsync/internal/domain/message"
	"chatsync/internal/events"
	"chatsync/internal/transport"
	chatsync_errors "chatsync/pkg/errors"

	"go.uber.org/zap"
)

// SendMessage sends draft to the open conversation. Validation failures and
// a disconnected socket are reported to done before any network call; the
// attachment, if any, is validated and uploaded off the loop first. done runs
// on the loop exactly once.
func (e *Engine) SendMessage(d Draft, done func(error)) {
	if err := e.checkCompose(d); err != nil {
		done(err)
		return
	}
	to := e.conv.active
	if to == 0 {
		done(chatsync_errors.ErrNoConversation)
		return
	}
	e.withAttachment(d, done, func(mediaURL string) {
		if !e.conn.Send(events.SendMessage(d.Content, to, mediaURL)) {
			done(chatsync_errors.ErrNotConnected)
			return
		}
		if e.conv.active == to {
			pending := e.tracker.addPending(message.Message{
				SenderID:   e.sess.UserID,
				ReceiverID: to,
				Content:    d.Content,
				MediaURL:   mediaURL,
				CreatedAt:  e.now(),
			})
			e.view.AppendMessage(pending)
		}
		e.log.Debug("message_sent", zap.Int64("to", to), zap.Bool("media", mediaURL != ""))
		done(nil)
	})
}

// Broadcast sends the same draft to every recipient.
func (e *Engine) Broadcast(d Draft, recipients []int64, done func(error)) {
	if err := e.checkCompose(d); err != nil {
		done(err)
		return
	}
	ids := make([]int64, 0, len(recipients))
	seen := make(map[int64]bool, len(recipients))
	for _, id := range recipients {
		if id <= 0 || id == e.sess.UserID || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		done(chatsync_errors.ErrNoRecipients)
		return
	}
	e.withAttachment(d, done, func(mediaURL string) {
		if !e.conn.Send(events.BroadcastMessage(d.Content, ids, mediaURL)) {
			done(chatsync_errors.ErrNotConnected)
			return
		}
		e.log.Info("broadcast_sent", zap.Int("recipients", len(ids)), zap.Bool("media", mediaURL != ""))
		done(nil)
	})
}

// OnlineRecipients lists roster users currently online.
func (e *Engine) OnlineRecipients() []int64 {
	var ids []int64
	for _, u := range e.presence.users {
		if u.IsOnline() {
			ids = append(ids, u.ID)
		}
	}
	return ids
}

func (e *Engine) checkCompose(d Draft) error {
	if e.sess == nil || e.sess.Closed() {
		return chatsync_errors.ErrNotLoggedIn
	}
	if d.empty() {
		return chatsync_errors.ErrEmptyMessage
	}
	if e.conn.State() != transport.StateConnected {
		return chatsync_errors.ErrNotConnected
	}
	return nil
}

// withAttachment validates and uploads the draft's file, then continues on
// the loop with its URL. Drafts without a file continue immediately.
func (e *Engine) withAttachment(d Draft, done func(error), send func(mediaURL string)) {
	if d.Attachment == "" {
		send("")
		return
	}
	sess := e.sess
	e.exec.Go(func() {
		url, err := e.upload(d.Attachment)
		e.exec.Post(func() {
			if !e.current(sess) {
				done(chatsync_errors.ErrNotLoggedIn)
				return
			}
			if err != nil {
				e.handleRESTError("upload", err)
				done(err)
				return
			}
			send(url)
		})
	})
}

func (e *Engine) upload(path string) (string, error) {
	f, err := e.media.Load(path)
	if err != nil {
		return "", err
	}
	url, err := e.api.Upload(e.ctx, f.Name, f.ContentType, f.Reader())
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", f.Name, err)
	}
	return url, nil
}

// UpdateStatus is the REST path for a status transition. On success the
// local copy advances too.
func (e *Engine) UpdateStatus(messageID int64, status message.Status, done func(error)) {
	if e.sess == nil || e.sess.Closed() {
		done(chatsync_errors.ErrNotLoggedIn)
		return
	}
	if messageID <= 0 {
		done(chatsync_errors.ErrInvalidInput)
		return
	}
	sess := e.sess
	ctx := sess.Context(e.ctx)
	e.exec.Go(func() {
		err := e.api.UpdateStatus(ctx, messageID, status)
		e.exec.Post(func() {
			if !e.current(sess) {
				done(chatsync_errors.ErrNotLoggedIn)
				return
			}
			if err != nil {
				e.handleRESTError("update_status", err)
				done(err)
				return
			}
			e.advance(messageID, status)
			done(nil)
		})
	})
}
