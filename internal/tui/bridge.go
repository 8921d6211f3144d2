package tui

import (
	"chatsync/internal/domain/message"
	"chatsync/internal/domain/user"
	"chatsync/internal/transport"

	tea "github.com/charmbracelet/bubbletea"
)

type rosterMsg struct {
	users  []user.User
	online int
}

type presenceMsg struct {
	user   user.User
	online int
}

type openedMsg struct{ counterpart user.User }

type closedMsg struct{}

type transcriptMsg struct{ msgs []message.Message }

type appendMsg struct{ msg message.Message }

type replaceMsg struct {
	localID int64
	msg     message.Message
}

type statusMsg struct {
	id     int64
	status message.Status
}

type notifyMsg struct{ msg message.Message }

type clearMarkerMsg struct{ userID int64 }

type typingMsg struct {
	userID int64
	typing bool
}

type connMsg struct{ state transport.State }

type serverErrorMsg struct{ text string }

type authRequiredMsg struct{}

// Bridge is the engine's view. It runs on the event loop and hands every
// call to the bubbletea program as a message, in order.
type Bridge struct {
	msgs chan tea.Msg
	done chan struct{}
}

func NewBridge(buffer int) *Bridge {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Bridge{
		msgs: make(chan tea.Msg, buffer),
		done: make(chan struct{}),
	}
}

// Close unblocks the loop once the program has exited.
func (b *Bridge) Close() {
	select {
	case <-b.done:
	default:
		close(b.done)
	}
}

// Next waits for the next engine message.
func (b *Bridge) Next() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-b.msgs:
			return msg
		case <-b.done:
			return nil
		}
	}
}

func (b *Bridge) push(msg tea.Msg) {
	select {
	case b.msgs <- msg:
	case <-b.done:
	}
}

func (b *Bridge) SetRoster(users []user.User, online int) {
	b.push(rosterMsg{users: append([]user.User(nil), users...), online: online})
}

func (b *Bridge) PresenceChanged(u user.User, online int) {
	b.push(presenceMsg{user: u, online: online})
}

func (b *Bridge) ConversationOpened(counterpart user.User) {
	b.push(openedMsg{counterpart: counterpart})
}

func (b *Bridge) ConversationClosed() { b.push(closedMsg{}) }

func (b *Bridge) SetTranscript(msgs []message.Message) {
	b.push(transcriptMsg{msgs: append([]message.Message(nil), msgs...)})
}

func (b *Bridge) AppendMessage(msg message.Message) { b.push(appendMsg{msg: msg}) }

func (b *Bridge) ReplacePending(localID int64, msg message.Message) {
	b.push(replaceMsg{localID: localID, msg: msg})
}

func (b *Bridge) StatusChanged(messageID int64, status message.Status) {
	b.push(statusMsg{id: messageID, status: status})
}

func (b *Bridge) Notify(msg message.Message) { b.push(notifyMsg{msg: msg}) }

func (b *Bridge) ClearNewMessageMarker(userID int64) { b.push(clearMarkerMsg{userID: userID}) }

func (b *Bridge) Typing(userID int64, typing bool) {
	b.push(typingMsg{userID: userID, typing: typing})
}

func (b *Bridge) ConnectionChanged(state transport.State) { b.push(connMsg{state: state}) }

func (b *Bridge) ServerError(text string) { b.push(serverErrorMsg{text: text}) }

func (b *Bridge) AuthRequired() { b.push(authRequiredMsg{}) }
