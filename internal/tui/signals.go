package tui

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// signalQueue delivers controller calls whose order matters (focus,
// visibility, typing, open and close) one at a time, in the order Update
// queued them. At most one drain runs at a time.
type signalQueue struct {
	mu       sync.Mutex
	pending  []func(ctx context.Context) tea.Msg
	draining bool
}

// push queues fn. It returns the drain command when no drain is running and
// nil otherwise; the running drain picks fn up.
func (q *signalQueue) push(fn func(ctx context.Context) tea.Msg) tea.Cmd {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, fn)
	if q.draining {
		return nil
	}
	q.draining = true
	return q.drain
}

func (q *signalQueue) next() (func(ctx context.Context) tea.Msg, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		q.draining = false
		return nil, false
	}
	fn := q.pending[0]
	q.pending = q.pending[1:]
	return fn, true
}

func (q *signalQueue) drain() tea.Msg {
	var out []tea.Msg
	for {
		fn, ok := q.next()
		if !ok {
			break
		}
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		if msg := fn(ctx); msg != nil {
			out = append(out, msg)
		}
		cancel()
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	batch := make(tea.BatchMsg, 0, len(out))
	for _, msg := range out {
		batch = append(batch, func() tea.Msg { return msg })
	}
	return batch
}
