package tui

import (
	"fmt"
	"strconv"
	"strings"

	"chatsync/internal/domain/message"
	chatsync_errors "chatsync/pkg/errors"
)

type commandKind int

const (
	commandSend commandKind = iota
	commandAttach
	commandDetach
	commandBroadcast
	commandStatus
	commandRefresh
	commandLogout
)

type command struct {
	kind       commandKind
	text       string
	path       string
	recipients []int64 // nil with commandBroadcast means every online user
	messageID  int64
	status     message.Status
}

// parseCommand reads one line of compose input. Anything not starting with a
// known slash command is message text.
func parseCommand(line string) (command, error) {
	trimmed := strings.TrimSpace(line)
	name, rest, _ := strings.Cut(trimmed, " ")
	rest = strings.TrimSpace(rest)

	switch name {
	case "/attach":
		if rest == "" {
			return command{}, usage("/attach <path>")
		}
		return command{kind: commandAttach, path: rest}, nil

	case "/detach":
		return command{kind: commandDetach}, nil

	case "/broadcast":
		targets, text, _ := strings.Cut(rest, " ")
		if targets == "" {
			return command{}, usage("/broadcast <id,id,...|*> <text>")
		}
		cmd := command{kind: commandBroadcast, text: strings.TrimSpace(text)}
		if targets == "*" {
			return cmd, nil
		}
		ids, err := parseIDs(targets)
		if err != nil {
			return command{}, err
		}
		cmd.recipients = ids
		return cmd, nil

	case "/status":
		idText, statusText, _ := strings.Cut(rest, " ")
		id, err := strconv.ParseInt(idText, 10, 64)
		if err != nil || id <= 0 {
			return command{}, usage("/status <message id> <sent|delivered|read>")
		}
		status, err := message.ParseStatus(statusText)
		if err != nil || strings.TrimSpace(statusText) == "" {
			return command{}, usage("/status <message id> <sent|delivered|read>")
		}
		return command{kind: commandStatus, messageID: id, status: status}, nil

	case "/refresh":
		return command{kind: commandRefresh}, nil

	case "/logout":
		return command{kind: commandLogout}, nil
	}

	return command{kind: commandSend, text: line}, nil
}

func parseIDs(list string) ([]int64, error) {
	parts := strings.Split(list, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("%w: bad user id %q", chatsync_errors.ErrInvalidInput, p)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, chatsync_errors.ErrNoRecipients
	}
	return ids, nil
}

func usage(form string) error {
	return fmt.Errorf("%w: usage %s", chatsync_errors.ErrInvalidInput, form)
}
