package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chatsync/internal/domain/message"
	"chatsync/internal/domain/user"
	"chatsync/internal/engine"
	"chatsync/internal/transport"
	chatsync_errors "chatsync/pkg/errors"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type focusArea int

const (
	focusRoster focusArea = iota
	focusCompose
)

const (
	rosterWidth    = 28
	requestTimeout = 30 * time.Second
	sendTimeout    = 2 * time.Minute

	// DefaultTypingIdle stops the typing indicator after this much silence.
	DefaultTypingIdle = 3 * time.Second
)

type identityMsg struct {
	snap engine.Snapshot
	err  error
}

type loginResultMsg struct{ err error }

type selectResultMsg struct{ err error }

type sendResultMsg struct {
	broadcast bool
	err       error
}

type statusResultMsg struct {
	id     int64
	status message.Status
	err    error
}

type logoutResultMsg struct{ err error }

type typingIdleMsg struct{ seq int }

type errMsg struct{ err error }

type Options struct {
	Controller Controller
	Bridge     *Bridge
	// LoginRequired starts on the login form instead of resuming a session.
	LoginRequired bool
	TypingIdle    time.Duration
}

type Model struct {
	ctl     Controller
	bridge  *Bridge
	signals *signalQueue

	loggedIn bool
	login    LoginModel
	self     user.User

	roster []user.User
	online int
	cursor int
	unread map[int64]bool
	typing map[int64]bool
	conn   transport.State

	active     user.User
	transcript []message.Message
	spans      []span
	reported   map[int64]float64

	viewport   viewport.Model
	input      textinput.Model
	focus      focusArea
	attachment string
	sending    bool

	typingSent bool
	typingSeq  int
	typingIdle time.Duration

	notice string
	err    error
	width  int
	height int
}

func NewModel(opts Options) Model {
	input := textinput.New()
	input.Placeholder = "Type a message or /attach, /broadcast, /status, /refresh, /logout..."
	input.CharLimit = 4000

	vp := viewport.New(80, 20)
	vp.KeyMap = viewport.KeyMap{
		PageDown: key.NewBinding(key.WithKeys("pgdown")),
		PageUp:   key.NewBinding(key.WithKeys("pgup")),
	}

	idle := opts.TypingIdle
	if idle <= 0 {
		idle = DefaultTypingIdle
	}

	return Model{
		ctl:        opts.Controller,
		bridge:     opts.Bridge,
		signals:    &signalQueue{},
		loggedIn:   !opts.LoginRequired,
		login:      NewLoginModel(),
		unread:     make(map[int64]bool),
		typing:     make(map[int64]bool),
		reported:   make(map[int64]float64),
		viewport:   vp,
		input:      input,
		focus:      focusRoster,
		typingIdle: idle,
		width:      80,
		height:     24,
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.bridge.Next()}
	if m.loggedIn {
		cmds = append(cmds, m.identify())
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if cmd, ok := m.applyEngine(msg); ok {
		return m, tea.Batch(cmd, m.bridge.Next())
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.login, _ = m.login.Update(msg)
		m.resize()
		m.refreshTranscript(false)
		return m, m.reportVisibility()

	case tea.FocusMsg:
		return m, m.fire(func(ctx context.Context) error { return m.ctl.SetActive(ctx, true) })

	case tea.BlurMsg:
		return m, m.fire(func(ctx context.Context) error { return m.ctl.SetActive(ctx, false) })

	case loginSubmitMsg:
		return m, m.call(requestTimeout, func(ctx context.Context) tea.Msg {
			return loginResultMsg{err: m.ctl.Login(ctx, msg.Username, msg.Password)}
		})

	case loginResultMsg:
		if msg.err != nil {
			m.login = m.login.failed(msg.err)
			return m, nil
		}
		return m, m.identify()

	case identityMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		if msg.snap.UserID == 0 {
			m.logout(nil)
			return m, nil
		}
		m.loggedIn = true
		m.login = NewLoginModel()
		m.self = user.User{ID: msg.snap.UserID, Username: msg.snap.Username}
		m.roster = withoutUser(m.roster, m.self.ID)
		m.clampCursor()
		return m, nil

	case selectResultMsg:
		m.err = msg.err
		return m, nil

	case logoutResultMsg:
		if msg.err != nil && !errors.Is(msg.err, chatsync_errors.ErrNotLoggedIn) {
			m.err = msg.err
			return m, nil
		}
		m.logout(nil)
		return m, nil

	case sendResultMsg:
		m.sending = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.input.Reset()
		m.attachment = ""
		if msg.broadcast {
			m.notice = "broadcast sent"
		}
		return m, nil

	case statusResultMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.err = nil
			m.notice = fmt.Sprintf("message #%d marked %s", msg.id, msg.status)
		}
		return m, nil

	case typingIdleMsg:
		if msg.seq != m.typingSeq {
			return m, nil
		}
		return m, m.stopTyping()

	case errMsg:
		m.err = msg.err
		return m, nil

	case tea.MouseMsg:
		if !m.loggedIn {
			return m, nil
		}
		offset := m.viewport.YOffset
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		if m.viewport.YOffset != offset {
			return m, tea.Batch(cmd, m.reportVisibility())
		}
		return m, cmd

	case tea.KeyMsg:
		if !m.loggedIn {
			var cmd tea.Cmd
			m.login, cmd = m.login.Update(msg)
			return m, cmd
		}
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	if !m.loggedIn {
		m.login, cmd = m.login.Update(msg)
		return m, cmd
	}
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// applyEngine folds one engine notification into the model.
func (m *Model) applyEngine(msg tea.Msg) (tea.Cmd, bool) {
	switch msg := msg.(type) {
	case rosterMsg:
		m.roster = withoutUser(msg.users, m.self.ID)
		m.online = msg.online
		m.clampCursor()

	case presenceMsg:
		m.online = msg.online
		if msg.user.ID == m.self.ID {
			return nil, true
		}
		found := false
		for i := range m.roster {
			if m.roster[i].ID == msg.user.ID {
				m.roster[i] = msg.user
				found = true
				break
			}
		}
		if !found {
			m.roster = append(m.roster, msg.user)
		}
		if m.active.ID == msg.user.ID {
			m.active = msg.user
		}

	case openedMsg:
		m.active = msg.counterpart
		m.transcript = nil
		m.reported = make(map[int64]float64)
		delete(m.unread, msg.counterpart.ID)
		m.setFocus(focusCompose)
		m.refreshTranscript(true)

	case closedMsg:
		m.active = user.User{}
		m.transcript = nil
		m.reported = make(map[int64]float64)
		m.typingSent = false
		m.refreshTranscript(true)

	case transcriptMsg:
		m.transcript = msg.msgs
		m.refreshTranscript(true)
		return m.reportVisibility(), true

	case appendMsg:
		m.transcript = append(m.transcript, msg.msg)
		m.refreshTranscript(true)
		return m.reportVisibility(), true

	case replaceMsg:
		replaced := false
		for i := range m.transcript {
			if m.transcript[i].ID == msg.localID {
				m.transcript[i] = msg.msg
				replaced = true
				break
			}
		}
		if !replaced {
			m.transcript = append(m.transcript, msg.msg)
		}
		m.refreshTranscript(false)
		return m.reportVisibility(), true

	case statusMsg:
		for i := range m.transcript {
			if m.transcript[i].ID == msg.id && m.transcript[i].Status < msg.status {
				m.transcript[i].Status = msg.status
				m.refreshTranscript(false)
				break
			}
		}

	case notifyMsg:
		m.unread[msg.msg.SenderID] = true
		m.notice = "new message from " + m.nameOf(msg.msg.SenderID)

	case clearMarkerMsg:
		delete(m.unread, msg.userID)

	case typingMsg:
		if msg.typing {
			m.typing[msg.userID] = true
		} else {
			delete(m.typing, msg.userID)
		}

	case connMsg:
		m.conn = msg.state

	case serverErrorMsg:
		m.err = errors.New(msg.text)

	case authRequiredMsg:
		m.logout(errors.New("session expired, log in again"))

	default:
		return nil, false
	}
	return nil, true
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit

	case "tab":
		if m.focus == focusRoster {
			m.setFocus(focusCompose)
		} else {
			m.setFocus(focusRoster)
		}
		return m, nil

	case "esc":
		if m.active.ID == 0 {
			return m, nil
		}
		stop := m.stopTyping()
		return m, tea.Batch(stop, m.fire(m.ctl.CloseConversation))

	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, tea.Batch(cmd, m.reportVisibility())
	}

	if m.focus == focusRoster {
		switch msg.String() {
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.roster)-1 {
				m.cursor++
			}
		case "enter":
			if m.cursor < len(m.roster) {
				target := m.roster[m.cursor].ID
				return m, m.signals.push(func(ctx context.Context) tea.Msg {
					return selectResultMsg{err: m.ctl.SelectUser(ctx, target)}
				})
			}
		}
		return m, nil
	}

	if msg.String() == "enter" {
		return m.submit()
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if m.input.Value() == before || m.active.ID == 0 || strings.HasPrefix(m.input.Value(), "/") {
		return m, cmd
	}
	return m, tea.Batch(cmd, m.startTyping())
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.sending {
		return m, nil
	}
	c, err := parseCommand(m.input.Value())
	if err != nil {
		m.err = err
		return m, nil
	}
	m.err = nil
	m.notice = ""

	switch c.kind {
	case commandAttach:
		m.attachment = c.path
		m.notice = "attached " + c.path
		m.input.Reset()
		return m, nil

	case commandDetach:
		m.attachment = ""
		m.input.Reset()
		return m, nil

	case commandStatus:
		m.input.Reset()
		return m, m.call(requestTimeout, func(ctx context.Context) tea.Msg {
			return statusResultMsg{id: c.messageID, status: c.status, err: m.ctl.UpdateStatus(ctx, c.messageID, c.status)}
		})

	case commandRefresh:
		m.input.Reset()
		m.notice = "refreshing users"
		return m, m.fire(m.ctl.RefreshRoster)

	case commandLogout:
		m.input.Reset()
		stop := m.stopTyping()
		return m, tea.Batch(stop, m.signals.push(func(ctx context.Context) tea.Msg {
			return logoutResultMsg{err: m.ctl.Logout(ctx)}
		}))

	case commandBroadcast:
		d := engine.Draft{Content: c.text, Attachment: m.attachment}
		m.sending = true
		return m, m.call(sendTimeout, func(ctx context.Context) tea.Msg {
			return sendResultMsg{broadcast: true, err: m.ctl.Broadcast(ctx, d, c.recipients)}
		})
	}

	d := engine.Draft{Content: c.text, Attachment: m.attachment}
	if strings.TrimSpace(d.Content) == "" && d.Attachment == "" {
		return m, nil
	}
	m.sending = true
	stop := m.stopTyping()
	return m, tea.Batch(stop, m.call(sendTimeout, func(ctx context.Context) tea.Msg {
		return sendResultMsg{err: m.ctl.Send(ctx, d)}
	}))
}

func (m *Model) startTyping() tea.Cmd {
	m.typingSeq++
	seq := m.typingSeq
	idle := tea.Tick(m.typingIdle, func(time.Time) tea.Msg { return typingIdleMsg{seq: seq} })
	if m.typingSent {
		return idle
	}
	m.typingSent = true
	return tea.Batch(idle, m.fire(func(ctx context.Context) error { return m.ctl.SetTyping(ctx, true) }))
}

func (m *Model) stopTyping() tea.Cmd {
	m.typingSeq++
	if !m.typingSent {
		return nil
	}
	m.typingSent = false
	return m.fire(func(ctx context.Context) error { return m.ctl.SetTyping(ctx, false) })
}

// reportVisibility sends the fractions that changed since the last report.
func (m *Model) reportVisibility() tea.Cmd {
	if m.active.ID == 0 {
		return nil
	}
	changed := make(map[int64]float64)
	for id, f := range visibleFractions(m.spans, m.viewport.YOffset, m.viewport.Height) {
		if prev, ok := m.reported[id]; ok && prev == f {
			continue
		}
		m.reported[id] = f
		changed[id] = f
	}
	if len(changed) == 0 {
		return nil
	}
	return m.fire(func(ctx context.Context) error { return m.ctl.ReportVisibility(ctx, changed) })
}

func (m *Model) refreshTranscript(stick bool) {
	content, spans := renderTranscript(m.transcript, m.self, m.active)
	atBottom := m.viewport.AtBottom()
	m.spans = spans
	m.viewport.SetContent(content)
	if stick || atBottom {
		m.viewport.GotoBottom()
	}
}

func (m *Model) resize() {
	bodyHeight := m.height - 1 - 1 - 3
	inner := max(bodyHeight-2, 1)
	m.viewport.Width = max(m.width-rosterWidth-4, 10)
	m.viewport.Height = max(inner-2, 1)
	m.input.Width = max(m.width-8, 10)
}

func (m *Model) setFocus(f focusArea) {
	m.focus = f
	if f == focusCompose {
		m.input.Focus()
	} else {
		m.input.Blur()
	}
}

func (m *Model) clampCursor() {
	if m.cursor >= len(m.roster) {
		m.cursor = max(len(m.roster)-1, 0)
	}
}

// logout drops everything tied to the old session and shows the login form.
func (m *Model) logout(reason error) {
	m.loggedIn = false
	m.login = NewLoginModel()
	m.login.width, m.login.height = m.width, m.height
	m.login.err = reason
	m.self = user.User{}
	m.roster = nil
	m.online = 0
	m.cursor = 0
	m.unread = make(map[int64]bool)
	m.typing = make(map[int64]bool)
	m.active = user.User{}
	m.transcript = nil
	m.reported = make(map[int64]float64)
	m.attachment = ""
	m.sending = false
	m.typingSent = false
	m.err = nil
	m.notice = ""
	m.input.Reset()
	m.refreshTranscript(true)
}

func (m Model) nameOf(id int64) string {
	for _, u := range m.roster {
		if u.ID == id {
			return u.DisplayName()
		}
	}
	return user.User{ID: id}.DisplayName()
}

func (m Model) identify() tea.Cmd {
	return m.call(requestTimeout, func(ctx context.Context) tea.Msg {
		snap, err := m.ctl.Snapshot(ctx)
		return identityMsg{snap: snap, err: err}
	})
}

func (m Model) call(timeout time.Duration, fn func(ctx context.Context) tea.Msg) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return fn(ctx)
	}
}

// fire queues fn behind every earlier signal and only reports failures.
func (m Model) fire(fn func(ctx context.Context) error) tea.Cmd {
	return m.signals.push(func(ctx context.Context) tea.Msg {
		if err := fn(ctx); err != nil {
			return errMsg{err: err}
		}
		return nil
	})
}

func withoutUser(users []user.User, id int64) []user.User {
	out := make([]user.User, 0, len(users))
	for _, u := range users {
		if u.ID != id {
			out = append(out, u)
		}
	}
	return out
}

func (m Model) View() string {
	if !m.loggedIn {
		return m.login.View()
	}

	var sb strings.Builder
	sb.WriteString(m.renderHeader())
	sb.WriteString("\n")

	bodyHeight := max(m.height-1-1-3-2, 1)
	left := paneStyle
	right := focusedPaneStyle
	if m.focus == focusRoster {
		left, right = focusedPaneStyle, paneStyle
	}
	roster := left.Width(rosterWidth).Height(bodyHeight).
		Render(renderRoster(m.roster, m.cursor, m.unread, m.online, m.focus == focusRoster, rosterWidth))

	title := helpStyle.Render("Select a user and press enter")
	if m.active.ID != 0 {
		title = headerStyle.Render(m.active.DisplayName())
		if m.active.IsOnline() {
			title += " " + onlineDot
		}
	}
	typingLine := ""
	if m.active.ID != 0 && m.typing[m.active.ID] {
		typingLine = helpStyle.Render(m.active.DisplayName() + " is typing...")
	}
	chat := right.Width(m.viewport.Width).Height(bodyHeight).
		Render(title + "\n" + typingLine + "\n" + m.viewport.View())

	sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, roster, chat))
	sb.WriteString("\n")

	compose := m.input.View()
	if m.attachment != "" {
		compose = mediaStyle.Render("[+"+m.attachment+"] ") + compose
	}
	sb.WriteString(inputStyle.Render(compose))
	sb.WriteString("\n")

	switch {
	case m.err != nil:
		sb.WriteString(errorStyle.Render(m.err.Error()))
	case m.notice != "":
		sb.WriteString(noticeStyle.Render(m.notice))
	default:
		sb.WriteString(helpStyle.Render("tab focus • enter open/send • esc close • pgup/pgdown scroll • /logout • ctrl+c quit"))
	}
	return sb.String()
}

func (m Model) renderHeader() string {
	name := m.self.DisplayName()
	if m.self.ID == 0 {
		name = "..."
	}
	return lipgloss.JoinHorizontal(lipgloss.Top,
		headerStyle.Render("chatsync · "+name),
		connStyle.Render(m.conn.String()),
		connStyle.Render(fmt.Sprintf("%d online", m.online)),
	)
}
