package transport

import (
	"context"
	"fmt"
	"testing"
	"time"

	"chatsync/internal/events"
	"chatsync/internal/loop"
	chatsync_errors "chatsync/pkg/errors"
	"chatsync/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = time.Second

type closeEvent struct {
	code         int
	reconnecting bool
}

type harness struct {
	t      *testing.T
	loop   *loop.Loop
	m      *Manager
	dialer *fakeDialer

	opens        chan struct{}
	frames       chan string
	closes       chan closeEvent
	unauthorized chan struct{}
}

func newHarness(t *testing.T, dialer Dialer) *harness {
	t.Helper()
	l := loop.New(64)
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)

	h := &harness{
		t:            t,
		loop:         l,
		opens:        make(chan struct{}, 8),
		frames:       make(chan string, 8),
		closes:       make(chan closeEvent, 8),
		unauthorized: make(chan struct{}, 8),
	}
	if fd, ok := dialer.(*fakeDialer); ok {
		h.dialer = fd
	}
	h.m = NewManager(l, loop.NewTimerScheduler(l), dialer, Options{
		ReconnectDelay: 40 * time.Millisecond,
		SnapshotDelay:  10 * time.Millisecond,
		SendBuffer:     4,
	}, logger.Nop())
	h.m.Handle(Handlers{
		OnOpen:         func() { h.opens <- struct{}{} },
		OnFrame:        func(data []byte) { h.frames <- string(data) },
		OnClose:        func(code int, reconnecting bool) { h.closes <- closeEvent{code, reconnecting} },
		OnUnauthorized: func() { h.unauthorized <- struct{}{} },
	})

	t.Cleanup(func() {
		_ = l.Call(context.Background(), h.m.Close)
		cancel()
	})
	return h
}

func (h *harness) do(fn func()) {
	h.t.Helper()
	require.NoError(h.t, h.loop.Call(context.Background(), fn))
}

func (h *harness) state() State {
	var s State
	h.do(func() { s = h.m.State() })
	return s
}

func (h *harness) waitOpen() {
	h.t.Helper()
	select {
	case <-h.opens:
	case <-time.After(waitFor):
		h.t.Fatal("connection never opened")
	}
}

func (h *harness) waitClose() closeEvent {
	h.t.Helper()
	select {
	case ev := <-h.closes:
		return ev
	case <-time.After(waitFor):
		h.t.Fatal("close never reported")
	}
	return closeEvent{}
}

func TestManager_ConnectOpensAndRequestsPresence(t *testing.T) {
	h := newHarness(t, &fakeDialer{})

	h.do(func() { h.m.Connect("tok") })
	h.waitOpen()
	assert.Equal(t, StateConnected, h.state())
	assert.Equal(t, []string{"tok"}, h.dialer.dialedTokens())

	sock := h.dialer.socket(0)
	require.Eventually(t, func() bool {
		return len(sock.frames()) == 1
	}, waitFor, 5*time.Millisecond)
	assert.JSONEq(t, `{"type":"get_online_users","payload":{}}`, sock.frames()[0])
}

func TestManager_FramesReachHandler(t *testing.T) {
	h := newHarness(t, &fakeDialer{})
	h.do(func() { h.m.Connect("tok") })
	h.waitOpen()

	h.dialer.socket(0).inbox <- []byte(`{"type":"typing","payload":{"user_id":2}}`)
	select {
	case f := <-h.frames:
		assert.Contains(t, f, "typing")
	case <-time.After(waitFor):
		t.Fatal("frame not delivered")
	}
}

func TestManager_AbnormalCloseReconnectsOnce(t *testing.T) {
	h := newHarness(t, &fakeDialer{})
	h.do(func() { h.m.Connect("tok") })
	h.waitOpen()

	h.dialer.socket(0).serverClose(websocket.CloseAbnormalClosure)
	ev := h.waitClose()
	assert.Equal(t, closeEvent{code: websocket.CloseAbnormalClosure, reconnecting: true}, ev)
	assert.Equal(t, StateDisconnected, h.state())

	var pending bool
	h.do(func() { pending = h.m.sched.Pending(reconnectKey) })
	assert.True(t, pending)

	h.waitOpen()
	assert.Equal(t, 2, h.dialer.dialCount())
	assert.Equal(t, []string{"tok", "tok"}, h.dialer.dialedTokens())
}

func TestManager_CloseCodes(t *testing.T) {
	cases := []struct {
		code      int
		reconnect bool
	}{
		{websocket.CloseNormalClosure, false},
		{websocket.CloseGoingAway, false},
		{websocket.CloseAbnormalClosure, true},
		{websocket.CloseInternalServerErr, true},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprint(tc.code), func(t *testing.T) {
			h := newHarness(t, &fakeDialer{})
			h.do(func() { h.m.Connect("tok") })
			h.waitOpen()

			h.dialer.socket(0).serverClose(tc.code)
			ev := h.waitClose()
			assert.Equal(t, tc.code, ev.code)
			assert.Equal(t, tc.reconnect, ev.reconnecting)

			var pending bool
			h.do(func() { pending = h.m.sched.Pending(reconnectKey) })
			assert.Equal(t, tc.reconnect, pending)
		})
	}
}

func TestManager_DeliberateCloseNeverReconnects(t *testing.T) {
	h := newHarness(t, &fakeDialer{})
	h.do(func() { h.m.Connect("tok") })
	h.waitOpen()
	sock := h.dialer.socket(0)

	h.do(h.m.Close)
	assert.Equal(t, StateDisconnected, h.state())
	assert.True(t, sock.isClosed())
	assert.Equal(t, []int{websocket.CloseNormalClosure}, sock.sentCloseCodes())

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, h.dialer.dialCount())
	assert.Empty(t, h.closes)

	var pending int
	h.do(func() { pending = h.m.sched.Len() })
	assert.Zero(t, pending)
}

func TestManager_CloseCancelsPendingReconnect(t *testing.T) {
	h := newHarness(t, &fakeDialer{})
	h.do(func() { h.m.Connect("tok") })
	h.waitOpen()

	h.dialer.socket(0).serverClose(websocket.CloseAbnormalClosure)
	h.waitClose()
	h.do(h.m.Close)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, h.dialer.dialCount())
}

func TestManager_ConnectReplacesSocket(t *testing.T) {
	h := newHarness(t, &fakeDialer{})
	h.do(func() { h.m.Connect("tok") })
	h.waitOpen()
	first := h.dialer.socket(0)

	h.do(func() { h.m.Connect("tok2") })
	h.waitOpen()

	assert.True(t, first.isClosed())
	assert.Equal(t, []int{websocket.CloseNormalClosure}, first.sentCloseCodes())
	assert.Equal(t, StateConnected, h.state())

	// the replaced socket's close is stale and must not trigger a reconnect
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, h.closes)
	assert.Equal(t, 2, h.dialer.dialCount())
}

func TestManager_UnauthorizedHandshake(t *testing.T) {
	d := &fakeDialer{errs: []error{&HandshakeError{StatusCode: 401, Err: chatsync_errors.ErrUnauthorized}}}
	h := newHarness(t, d)

	h.do(func() { h.m.Connect("expired") })
	select {
	case <-h.unauthorized:
	case <-time.After(waitFor):
		t.Fatal("unauthorized not reported")
	}
	assert.Equal(t, StateDisconnected, h.state())

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, d.dialCount())
}

func TestManager_DialFailureRetries(t *testing.T) {
	d := &fakeDialer{errs: []error{fmt.Errorf("connection refused")}}
	h := newHarness(t, d)

	h.do(func() { h.m.Connect("tok") })
	ev := h.waitClose()
	assert.Equal(t, closeEvent{code: websocket.CloseAbnormalClosure, reconnecting: true}, ev)

	h.waitOpen()
	assert.Equal(t, 2, d.dialCount())
}

func TestManager_CloseDuringDialDiscardsSocket(t *testing.T) {
	d := &fakeDialer{gate: make(chan struct{})}
	h := newHarness(t, d)

	h.do(func() { h.m.Connect("tok") })
	assert.Equal(t, StateConnecting, h.state())
	h.do(h.m.Close)
	close(d.gate)

	require.Eventually(t, func() bool {
		s := d.socket(0)
		return s != nil && s.isClosed()
	}, waitFor, 5*time.Millisecond)
	assert.Equal(t, StateDisconnected, h.state())
	assert.Empty(t, h.opens)
}

func TestManager_Send(t *testing.T) {
	h := newHarness(t, &fakeDialer{})

	var ok bool
	h.do(func() { ok = h.m.Send(events.MessageRead(1)) })
	assert.False(t, ok, "send while disconnected")

	h.do(func() { h.m.Connect("tok") })
	h.waitOpen()
	h.do(func() { ok = h.m.Send(events.MessageRead(9)) })
	assert.True(t, ok)

	sock := h.dialer.socket(0)
	require.Eventually(t, func() bool {
		for _, f := range sock.frames() {
			if f == `{"type":"message_read","payload":{"message_id":9}}` {
				return true
			}
		}
		return false
	}, waitFor, 5*time.Millisecond)
}
