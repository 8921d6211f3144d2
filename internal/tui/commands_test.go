package tui

import (
	"testing"

	"chatsync/internal/domain/message"
	chatsync_errors "chatsync/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name string
		line string
		want command
	}{
		{name: "plain text", line: "hello there", want: command{kind: commandSend, text: "hello there"}},
		{name: "unknown slash is text", line: "/shrug ok", want: command{kind: commandSend, text: "/shrug ok"}},
		{name: "attach", line: "/attach  ./pics/cat.png ", want: command{kind: commandAttach, path: "./pics/cat.png"}},
		{name: "detach", line: "/detach", want: command{kind: commandDetach}},
		{name: "broadcast all", line: "/broadcast * hi all", want: command{kind: commandBroadcast, text: "hi all"}},
		{name: "broadcast list", line: "/broadcast 2,3,4 yo", want: command{kind: commandBroadcast, text: "yo", recipients: []int64{2, 3, 4}}},
		{name: "broadcast media only", line: "/broadcast *", want: command{kind: commandBroadcast}},
		{name: "status", line: "/status 42 delivered", want: command{kind: commandStatus, messageID: 42, status: message.StatusDelivered}},
		{name: "refresh", line: "/refresh", want: command{kind: commandRefresh}},
		{name: "logout", line: " /logout ", want: command{kind: commandLogout}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCommand(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCommand_Errors(t *testing.T) {
	tests := []struct {
		line string
		want error
	}{
		{line: "/attach", want: chatsync_errors.ErrInvalidInput},
		{line: "/broadcast", want: chatsync_errors.ErrInvalidInput},
		{line: "/broadcast 2,x hi", want: chatsync_errors.ErrInvalidInput},
		{line: "/broadcast -1 hi", want: chatsync_errors.ErrInvalidInput},
		{line: "/broadcast , hi", want: chatsync_errors.ErrNoRecipients},
		{line: "/status", want: chatsync_errors.ErrInvalidInput},
		{line: "/status 0 read", want: chatsync_errors.ErrInvalidInput},
		{line: "/status 5", want: chatsync_errors.ErrInvalidInput},
		{line: "/status 5 seen", want: chatsync_errors.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			_, err := parseCommand(tt.line)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
