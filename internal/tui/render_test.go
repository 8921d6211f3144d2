package tui

import (
	"strings"
	"testing"

	"chatsync/internal/domain/message"
	"chatsync/internal/domain/user"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVisibleFractions(t *testing.T) {
	spans := []span{
		{id: 1, start: 0, lines: 2, received: true},
		{id: 2, start: 2, lines: 1, received: false},
		{id: 3, start: 3, lines: 4, received: true},
		{id: 4, start: 7, lines: 1, received: true},
	}

	got := visibleFractions(spans, 1, 4)

	assert.Equal(t, map[int64]float64{1: 0.5, 3: 0.5, 4: 0}, got)
}

func TestVisibleFractions_FullyInside(t *testing.T) {
	spans := []span{{id: 9, start: 5, lines: 2, received: true}}

	assert.Equal(t, 1.0, visibleFractions(spans, 0, 20)[9])
	assert.Equal(t, 0.0, visibleFractions(spans, 7, 20)[9])
}

func TestRenderTranscript_Spans(t *testing.T) {
	self := user.User{ID: me, Username: "me"}
	msgs := []message.Message{
		{ID: 1, SenderID: bob.ID, ReceiverID: me, Content: "photo", MediaURL: "https://cdn/x.png"},
		{ID: 2, SenderID: me, ReceiverID: bob.ID, Content: "nice", Status: message.StatusRead},
		{ID: -1, SenderID: me, ReceiverID: bob.ID, Content: "pending"},
	}

	content, spans := renderTranscript(msgs, self, bob)

	require.Len(t, spans, 3)
	assert.Equal(t, span{id: 1, start: 0, lines: 2, received: true}, spans[0])
	assert.Equal(t, span{id: 2, start: 2, lines: 1, received: false}, spans[1])
	assert.Equal(t, span{id: -1, start: 3, lines: 1, received: false}, spans[2])

	lines := strings.Split(content, "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "bob")
	assert.Contains(t, lines[1], "https://cdn/x.png")
	assert.Contains(t, lines[2], "#2")
	assert.Contains(t, lines[2], "read")
	assert.Contains(t, lines[3], "(sending)")
}
