package engine

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"chatsync/config"
	"chatsync/internal/api"
	"chatsync/internal/domain/message"
	"chatsync/internal/domain/user"
	"chatsync/internal/events"
	"chatsync/internal/loop/looptest"
	"chatsync/internal/session"
	"chatsync/internal/transport"
	chatsync_errors "chatsync/pkg/errors"
	"chatsync/pkg/logger"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const me int64 = 7

type fakeTransport struct {
	handlers transport.Handlers
	state    transport.State
	tokens   []string
	sent     []events.Envelope
	refuse   bool
	closes   int
}

func (f *fakeTransport) Handle(h transport.Handlers) { f.handlers = h }

func (f *fakeTransport) Connect(token string) {
	f.tokens = append(f.tokens, token)
	f.state = transport.StateConnecting
}

func (f *fakeTransport) Close() {
	f.closes++
	f.state = transport.StateDisconnected
}

func (f *fakeTransport) Send(env events.Envelope) bool {
	if f.state != transport.StateConnected || f.refuse {
		return false
	}
	f.sent = append(f.sent, env)
	return true
}

func (f *fakeTransport) State() transport.State { return f.state }

func (f *fakeTransport) open() {
	f.state = transport.StateConnected
	f.handlers.OnOpen()
}

func (f *fakeTransport) drop(code int) {
	f.state = transport.StateDisconnected
	f.handlers.OnClose(code, true)
}

func (f *fakeTransport) frame(s string) {
	f.handlers.OnFrame([]byte(s))
}

// sentOf returns the payloads of every envelope of the given type, in order.
func (f *fakeTransport) sentOf(eventType string) []string {
	var out []string
	for _, env := range f.sent {
		if env.Type == eventType {
			out = append(out, string(env.Payload))
		}
	}
	return out
}

type fakeAPI struct {
	mock.Mock
	token      string
	roster     []user.User
	rosterErr  error
	history    map[int64][]message.Message
	historyErr error
	fetched    []int64
	rosterCtx  context.Context
}

func (f *fakeAPI) SetToken(token string) { f.token = token }

func (f *fakeAPI) Login(_ context.Context, username, password string) (api.AuthResponse, error) {
	args := f.Called(username, password)
	return args.Get(0).(api.AuthResponse), args.Error(1)
}

func (f *fakeAPI) FetchRoster(ctx context.Context) ([]user.User, error) {
	f.rosterCtx = ctx
	if f.rosterErr != nil {
		return nil, f.rosterErr
	}
	return f.roster, nil
}

func (f *fakeAPI) FetchConversation(_ context.Context, userID int64) ([]message.Message, error) {
	f.fetched = append(f.fetched, userID)
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.history[userID], nil
}

func (f *fakeAPI) UpdateStatus(_ context.Context, messageID int64, status message.Status) error {
	return f.Called(messageID, status).Error(0)
}

func (f *fakeAPI) Upload(_ context.Context, filename, contentType string, content io.Reader) (string, error) {
	_, _ = io.Copy(io.Discard, content)
	args := f.Called(filename, contentType)
	return args.String(0), args.Error(1)
}

type statusCall struct {
	id     int64
	status message.Status
}

type recordingView struct {
	roster       []user.User
	online       int
	presence     []user.User
	opened       []int64
	closed       int
	transcripts  [][]message.Message
	appended     []message.Message
	replaced     map[int64]message.Message
	statuses     []statusCall
	notified     []message.Message
	cleared      []int64
	typing       map[int64]bool
	states       []transport.State
	serverErrors []string
	authRequired int
}

func newRecordingView() *recordingView {
	return &recordingView{
		replaced: make(map[int64]message.Message),
		typing:   make(map[int64]bool),
	}
}

func (v *recordingView) SetRoster(users []user.User, online int) {
	v.roster = users
	v.online = online
}

func (v *recordingView) PresenceChanged(u user.User, online int) {
	v.presence = append(v.presence, u)
	v.online = online
}

func (v *recordingView) ConversationOpened(u user.User) { v.opened = append(v.opened, u.ID) }
func (v *recordingView) ConversationClosed()            { v.closed++ }

func (v *recordingView) SetTranscript(msgs []message.Message) {
	v.transcripts = append(v.transcripts, msgs)
}

func (v *recordingView) AppendMessage(m message.Message) { v.appended = append(v.appended, m) }

func (v *recordingView) ReplacePending(localID int64, m message.Message) { v.replaced[localID] = m }

func (v *recordingView) StatusChanged(id int64, status message.Status) {
	v.statuses = append(v.statuses, statusCall{id, status})
}

func (v *recordingView) Notify(m message.Message)                { v.notified = append(v.notified, m) }
func (v *recordingView) ClearNewMessageMarker(userID int64)      { v.cleared = append(v.cleared, userID) }
func (v *recordingView) Typing(userID int64, typing bool)        { v.typing[userID] = typing }
func (v *recordingView) ConnectionChanged(state transport.State) { v.states = append(v.states, state) }
func (v *recordingView) ServerError(text string)                 { v.serverErrors = append(v.serverErrors, text) }
func (v *recordingView) AuthRequired()                           { v.authRequired++ }

func (v *recordingView) statusesOf(id int64) []message.Status {
	var out []message.Status
	for _, c := range v.statuses {
		if c.id == id {
			out = append(out, c.status)
		}
	}
	return out
}

type memStore struct {
	creds   session.Credentials
	saved   int
	cleared int
}

func (s *memStore) Load() (session.Credentials, error) {
	if s.creds.Token == "" {
		return session.Credentials{}, chatsync_errors.ErrNotLoggedIn
	}
	return s.creds, nil
}

func (s *memStore) Save(c session.Credentials) error {
	s.creds = c
	s.saved++
	return nil
}

func (s *memStore) Clear() error {
	s.creds = session.Credentials{}
	s.cleared++
	return nil
}

type fixture struct {
	t     *testing.T
	e     *Engine
	conn  *fakeTransport
	api   *fakeAPI
	view  *recordingView
	store *memStore
	sched *looptest.Scheduler
	exec  *looptest.Executor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fx := &fixture{
		t:    t,
		conn: &fakeTransport{},
		api: &fakeAPI{
			roster: []user.User{
				{ID: me, Username: "me"},
				{ID: 2, Username: "bob"},
				{ID: 3, Username: "carol"},
				{ID: 4, Username: "dave"},
			},
			history: make(map[int64][]message.Message),
		},
		view:  newRecordingView(),
		store: &memStore{},
		sched: looptest.NewScheduler(),
		exec:  &looptest.Executor{},
	}
	fx.e = New(Deps{
		Exec:      fx.exec,
		Scheduler: fx.sched,
		Transport: fx.conn,
		API:       fx.api,
		View:      fx.view,
		Store:     fx.store,
		Timings:   config.DefaultTimings(),
		Logger:    logger.NewWith(zaptest.NewLogger(t)),
	})
	return fx
}

// login starts a session as user 7 and completes the socket handshake.
func (fx *fixture) login() *fixture {
	fx.store.creds = session.Credentials{Token: "tok", UserID: me, Username: "me"}
	fx.e.Start(fx.store.creds)
	fx.conn.open()
	return fx
}

func (fx *fixture) open(userID int64) *fixture {
	require.NoError(fx.t, fx.e.SelectUser(userID))
	return fx
}

func (fx *fixture) advance(d time.Duration) {
	fx.sched.Advance(d)
}

func (fx *fixture) receive(id, from, to int64, content string) {
	payload, err := json.Marshal(map[string]any{
		"id": id, "sender_id": from, "receiver_id": to, "content": content,
	})
	require.NoError(fx.t, err)
	fx.conn.frame(`{"type":"receive_message","payload":` + string(payload) + `}`)
}

func (fx *fixture) reads() []string {
	return fx.conn.sentOf(events.TypeMessageRead)
}

func readPayload(id int64) string {
	b, _ := json.Marshal(events.MessageReadPayload{MessageID: id})
	return string(b)
}
