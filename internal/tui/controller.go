package tui

import (
	"context"

	"chatsync/internal/domain/message"
	"chatsync/internal/engine"
	"chatsync/internal/loop"
)

var _ engine.View = (*Bridge)(nil)

// Controller is what the terminal UI asks of the engine. Every method may
// block and is only called from tea.Cmd goroutines.
type Controller interface {
	Snapshot(ctx context.Context) (engine.Snapshot, error)
	Login(ctx context.Context, username, password string) error
	SelectUser(ctx context.Context, userID int64) error
	CloseConversation(ctx context.Context) error
	Send(ctx context.Context, d engine.Draft) error
	// Broadcast targets every online user when recipients is nil.
	Broadcast(ctx context.Context, d engine.Draft, recipients []int64) error
	UpdateStatus(ctx context.Context, messageID int64, status message.Status) error
	SetTyping(ctx context.Context, typing bool) error
	SetActive(ctx context.Context, active bool) error
	ReportVisibility(ctx context.Context, fractions map[int64]float64) error
	RefreshRoster(ctx context.Context) error
	Logout(ctx context.Context) error
}

// LoopController runs each request on the event loop that owns eng.
type LoopController struct {
	loop *loop.Loop
	eng  *engine.Engine
}

func NewLoopController(l *loop.Loop, eng *engine.Engine) *LoopController {
	return &LoopController{loop: l, eng: eng}
}

func (c *LoopController) Snapshot(ctx context.Context) (engine.Snapshot, error) {
	var snap engine.Snapshot
	err := c.loop.Call(ctx, func() { snap = c.eng.Snapshot() })
	return snap, err
}

func (c *LoopController) Login(ctx context.Context, username, password string) error {
	return c.await(ctx, func(done func(error)) { c.eng.Login(username, password, done) })
}

func (c *LoopController) SelectUser(ctx context.Context, userID int64) error {
	var err error
	if callErr := c.loop.Call(ctx, func() { err = c.eng.SelectUser(userID) }); callErr != nil {
		return callErr
	}
	return err
}

func (c *LoopController) CloseConversation(ctx context.Context) error {
	return c.loop.Call(ctx, c.eng.CloseConversation)
}

func (c *LoopController) Send(ctx context.Context, d engine.Draft) error {
	return c.await(ctx, func(done func(error)) { c.eng.SendMessage(d, done) })
}

func (c *LoopController) Broadcast(ctx context.Context, d engine.Draft, recipients []int64) error {
	return c.await(ctx, func(done func(error)) {
		if recipients == nil {
			recipients = c.eng.OnlineRecipients()
		}
		c.eng.Broadcast(d, recipients, done)
	})
}

func (c *LoopController) UpdateStatus(ctx context.Context, messageID int64, status message.Status) error {
	return c.await(ctx, func(done func(error)) { c.eng.UpdateStatus(messageID, status, done) })
}

func (c *LoopController) SetTyping(ctx context.Context, typing bool) error {
	return c.loop.Call(ctx, func() { c.eng.SetTyping(typing) })
}

func (c *LoopController) SetActive(ctx context.Context, active bool) error {
	return c.loop.Call(ctx, func() { c.eng.SetActive(active) })
}

func (c *LoopController) ReportVisibility(ctx context.Context, fractions map[int64]float64) error {
	return c.loop.Call(ctx, func() {
		for id, f := range fractions {
			c.eng.ReportVisibility(id, f)
		}
	})
}

func (c *LoopController) RefreshRoster(ctx context.Context) error {
	return c.loop.Call(ctx, c.eng.RefreshRoster)
}

func (c *LoopController) Logout(ctx context.Context) error {
	var err error
	if callErr := c.loop.Call(ctx, func() { err = c.eng.Logout() }); callErr != nil {
		return callErr
	}
	return err
}

// await starts an engine operation that completes through a done callback.
func (c *LoopController) await(ctx context.Context, start func(done func(error))) error {
	result := make(chan error, 1)
	if err := c.loop.Call(ctx, func() {
		start(func(err error) { result <- err })
	}); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.loop.Done():
		return loop.ErrStopped
	}
}
