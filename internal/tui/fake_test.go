package tui

import (
	"context"
	"sync"
	"testing"
	"time"

	"chatsync/internal/domain/message"
	"chatsync/internal/domain/user"
	"chatsync/internal/engine"

	tea "github.com/charmbracelet/bubbletea"
)

const me = int64(7)

type broadcastCall struct {
	draft      engine.Draft
	recipients []int64
}

type statusCall struct {
	id     int64
	status message.Status
}

type fakeController struct {
	mu sync.Mutex

	snap      engine.Snapshot
	loginErr  error
	selectErr error
	sendErr   error
	statusErr error
	logoutErr error

	logins     []string
	selected   []int64
	closed     int
	sent       []engine.Draft
	broadcasts []broadcastCall
	statuses   []statusCall
	typing     []bool
	active     []bool
	visibility []map[int64]float64
	refreshes  int
	logouts    int
}

func (f *fakeController) Snapshot(context.Context) (engine.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap, nil
}

func (f *fakeController) Login(_ context.Context, username, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins = append(f.logins, username)
	return f.loginErr
}

func (f *fakeController) SelectUser(_ context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selected = append(f.selected, userID)
	return f.selectErr
}

func (f *fakeController) CloseConversation(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeController) Send(_ context.Context, d engine.Draft) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, d)
	return f.sendErr
}

func (f *fakeController) Broadcast(_ context.Context, d engine.Draft, recipients []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, broadcastCall{draft: d, recipients: recipients})
	return f.sendErr
}

func (f *fakeController) UpdateStatus(_ context.Context, id int64, status message.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, statusCall{id: id, status: status})
	return f.statusErr
}

func (f *fakeController) SetTyping(_ context.Context, typing bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing = append(f.typing, typing)
	return nil
}

func (f *fakeController) SetActive(_ context.Context, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = append(f.active, active)
	return nil
}

func (f *fakeController) ReportVisibility(_ context.Context, fractions map[int64]float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visibility = append(f.visibility, fractions)
	return nil
}

func (f *fakeController) RefreshRoster(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	return nil
}

func (f *fakeController) Logout(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts++
	return f.logoutErr
}

func (f *fakeController) activeCalls() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.active...)
}

func (f *fakeController) visibilityCalls() []map[int64]float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[int64]float64(nil), f.visibility...)
}

func (f *fakeController) typingCalls() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.typing...)
}

// collect runs cmd and every command it batches. Commands that do not finish
// quickly (bridge reads, cursor blinks) are dropped.
func collect(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	ch := make(chan tea.Msg, 1)
	go func() { ch <- cmd() }()
	select {
	case msg := <-ch:
		if batch, ok := msg.(tea.BatchMsg); ok {
			var out []tea.Msg
			for _, c := range batch {
				out = append(out, collect(c)...)
			}
			return out
		}
		if msg == nil {
			return nil
		}
		return []tea.Msg{msg}
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

func step(m Model, msg tea.Msg) (Model, []tea.Msg) {
	next, cmd := m.Update(msg)
	return next.(Model), collect(cmd)
}

// settle feeds back every message produced, until nothing new arrives.
func settle(m Model, msgs []tea.Msg) Model {
	for len(msgs) > 0 {
		var next []tea.Msg
		for _, msg := range msgs {
			var out []tea.Msg
			m, out = step(m, msg)
			next = append(next, out...)
		}
		msgs = next
	}
	return m
}

func keys(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t tea.KeyType) tea.KeyMsg {
	return tea.KeyMsg{Type: t}
}

var (
	bob   = user.User{ID: 2, Username: "bob", Status: user.PresenceOnline}
	carol = user.User{ID: 3, Username: "carol", Status: user.PresenceOffline}
	dave  = user.User{ID: 4, Username: "dave", Status: user.PresenceOnline}
)

func newTestModel(t *testing.T) (Model, *fakeController) {
	t.Helper()
	ctl := &fakeController{snap: engine.Snapshot{UserID: me, Username: "me"}}
	b := NewBridge(8)
	t.Cleanup(b.Close)

	m := NewModel(Options{Controller: ctl, Bridge: b, TypingIdle: 10 * time.Millisecond})
	m, _ = step(m, tea.WindowSizeMsg{Width: 100, Height: 30})
	m, _ = step(m, identityMsg{snap: ctl.snap})
	m, _ = step(m, rosterMsg{
		users:  []user.User{{ID: me, Username: "me", Status: user.PresenceOnline}, bob, carol, dave},
		online: 3,
	})
	return m, ctl
}

func openBob(m Model) Model {
	m, _ = step(m, openedMsg{counterpart: bob})
	return m
}
