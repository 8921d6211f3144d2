package engine

import (
	"chatsync/internal/domain/user"
	"chatsync/internal/events"

	"go.uber.org/zap"
)

// presence tracks roster entries and their last reported online state.
// Presence reported before the roster arrives is kept and merged into it.
type presence struct {
	users []user.User
	index map[int64]int
	seen  map[int64]user.Presence
}

func newPresence() *presence {
	return &presence{
		index: make(map[int64]int),
		seen:  make(map[int64]user.Presence),
	}
}

// loadRoster replaces the roster, dropping self and defaulting to offline.
func (p *presence) loadRoster(users []user.User, self int64) {
	p.users = p.users[:0]
	p.index = make(map[int64]int, len(users))
	for _, u := range users {
		if u.ID == self || u.ID == 0 {
			continue
		}
		if _, dup := p.index[u.ID]; dup {
			continue
		}
		u.Status = user.PresenceOffline
		if status, ok := p.seen[u.ID]; ok {
			u.Status = status
		}
		p.index[u.ID] = len(p.users)
		p.users = append(p.users, u)
	}
}

// apply records a presence event. Last event wins.
func (p *presence) apply(id int64, status user.Presence) (user.User, bool) {
	p.seen[id] = status
	i, ok := p.index[id]
	if !ok {
		return user.User{ID: id, Status: status}, false
	}
	p.users[i].Status = status
	return p.users[i], true
}

func (p *presence) lookup(id int64) user.User {
	if i, ok := p.index[id]; ok {
		return p.users[i]
	}
	return user.User{ID: id, Status: p.seen[id]}
}

func (p *presence) onlineCount() int {
	n := 0
	for _, u := range p.users {
		if u.IsOnline() {
			n++
		}
	}
	return n
}

// snapshot returns the roster in server order.
func (p *presence) snapshot() []user.User {
	return append([]user.User(nil), p.users...)
}

func (p *presence) clear() {
	p.users = nil
	p.index = make(map[int64]int)
	p.seen = make(map[int64]user.Presence)
}

func (e *Engine) handlePresence(ev events.PresenceChange) {
	u, inRoster := e.presence.apply(ev.UserID, ev.Status)
	if !inRoster {
		e.log.Debug("presence_before_roster", zap.Int64("user_id", ev.UserID))
		return
	}
	e.view.PresenceChanged(u, e.presence.onlineCount())
}

func (e *Engine) fetchRoster() {
	sess := e.sess
	ctx := sess.Context(e.ctx)
	e.exec.Go(func() {
		users, err := e.api.FetchRoster(ctx)
		e.exec.Post(func() {
			if !e.current(sess) {
				return
			}
			if err != nil {
				e.handleRESTError("fetch_roster", err)
				return
			}
			e.presence.loadRoster(users, sess.UserID)
			e.log.Info("roster_loaded", zap.Int("users", len(e.presence.users)), zap.Int("online", e.presence.onlineCount()))
			e.view.SetRoster(e.presence.snapshot(), e.presence.onlineCount())
		})
	})
}

// RefreshRoster refetches the user list.
func (e *Engine) RefreshRoster() {
	if e.sess == nil || e.sess.Closed() {
		return
	}
	e.fetchRoster()
}
