package tui

import (
	"fmt"
	"strings"

	"chatsync/internal/domain/message"
	"chatsync/internal/domain/user"

	"github.com/charmbracelet/lipgloss"
)

// span is where one message sits in the rendered transcript, in lines.
type span struct {
	id       int64
	start    int
	lines    int
	received bool
}

func renderTranscript(msgs []message.Message, self, counterpart user.User) (string, []span) {
	var sb strings.Builder
	spans := make([]span, 0, len(msgs))
	line := 0
	for i, msg := range msgs {
		block := renderMessage(msg, self, counterpart)
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(block)
		n := lipgloss.Height(block)
		spans = append(spans, span{
			id:       msg.ID,
			start:    line,
			lines:    n,
			received: msg.ID > 0 && msg.ReceivedBy(self.ID),
		})
		line += n
	}
	return sb.String(), spans
}

func renderMessage(msg message.Message, self, counterpart user.User) string {
	ts := "--:--"
	if !msg.CreatedAt.IsZero() {
		ts = msg.CreatedAt.Local().Format("15:04")
	}

	var name string
	if msg.SenderID == self.ID {
		name = selfNameStyle.Render("you")
	} else {
		name = usernameStyle.Render(counterpart.DisplayName())
	}

	var meta string
	switch {
	case msg.IsPending():
		meta = statusStyle.Render(" (sending)")
	case msg.SenderID == self.ID:
		meta = statusStyle.Render(fmt.Sprintf(" #%d %s", msg.ID, statusLabel(msg.Status)))
	default:
		meta = statusStyle.Render(fmt.Sprintf(" #%d", msg.ID))
	}

	out := timestampStyle.Render(ts) + name + msg.Content + meta
	if msg.MediaURL != "" {
		out += "\n      " + mediaStyle.Render(msg.MediaURL)
	}
	return out
}

func statusLabel(s message.Status) string {
	switch s {
	case message.StatusSent:
		return "✓"
	case message.StatusDelivered:
		return "✓✓"
	case message.StatusRead:
		return "✓✓ read"
	default:
		return s.String()
	}
}

// visibleFractions reports, for each received message, how much of it lies
// inside the window [offset, offset+height).
func visibleFractions(spans []span, offset, height int) map[int64]float64 {
	out := make(map[int64]float64)
	top, bottom := offset, offset+height
	for _, s := range spans {
		if !s.received || s.lines <= 0 {
			continue
		}
		lo := max(s.start, top)
		hi := min(s.start+s.lines, bottom)
		f := 0.0
		if hi > lo {
			f = float64(hi-lo) / float64(s.lines)
		}
		out[s.id] = f
	}
	return out
}

func renderRoster(users []user.User, cursor int, unread map[int64]bool, online int, focused bool, width int) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Users (%d online)\n", online))
	if len(users) == 0 {
		sb.WriteString(helpStyle.Render("loading..."))
	}
	for i, u := range users {
		prefix := "  "
		if i == cursor {
			prefix = "> "
		}
		dot := offlineDot
		if u.IsOnline() {
			dot = onlineDot
		}
		name := u.DisplayName()
		if i == cursor && focused {
			name = cursorStyle.Render(name)
		}
		row := prefix + dot + " " + name
		if unread[u.ID] {
			row += " " + markerStyle.Render("•new")
		}
		sb.WriteString(lipgloss.NewStyle().MaxWidth(width).Render(row))
		if i < len(users)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
