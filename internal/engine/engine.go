package engine

import (
	"context"
	"errors"
	"io"
	"time"

	"chatsync/config"
	"chatsync/internal/api"
	"chatsync/internal/domain/message"
	"chatsync/internal/domain/user"
	"chatsync/internal/events"
	"chatsync/internal/loop"
	"chatsync/internal/media"
	"chatsync/internal/session"
	"chatsync/internal/transport"
	chatsync_errors "chatsync/pkg/errors"
	"chatsync/pkg/logger"

	"go.uber.org/zap"
)

// View is the rendering collaborator. Every call happens on the event loop.
type View interface {
	SetRoster(users []user.User, online int)
	PresenceChanged(u user.User, online int)
	ConversationOpened(counterpart user.User)
	ConversationClosed()
	SetTranscript(msgs []message.Message)
	AppendMessage(msg message.Message)
	ReplacePending(localID int64, msg message.Message)
	StatusChanged(messageID int64, status message.Status)
	Notify(msg message.Message)
	ClearNewMessageMarker(userID int64)
	Typing(userID int64, typing bool)
	ConnectionChanged(state transport.State)
	ServerError(text string)
	AuthRequired()
}

// Transport is the connection manager as the engine sees it.
type Transport interface {
	Handle(h transport.Handlers)
	Connect(token string)
	Close()
	Send(env events.Envelope) bool
	State() transport.State
}

// API is the REST surface the engine calls off the loop.
type API interface {
	SetToken(token string)
	Login(ctx context.Context, username, password string) (api.AuthResponse, error)
	FetchRoster(ctx context.Context) ([]user.User, error)
	FetchConversation(ctx context.Context, userID int64) ([]message.Message, error)
	UpdateStatus(ctx context.Context, messageID int64, status message.Status) error
	Upload(ctx context.Context, filename, contentType string, content io.Reader) (string, error)
}

type Deps struct {
	Context   context.Context
	Exec      loop.Executor
	Scheduler loop.Scheduler
	Transport Transport
	API       API
	View      View
	Store     session.Store
	Media     *media.Validator
	Timings   config.Timings
	Logger    *logger.Logger
	Now       func() time.Time
}

// Engine reconciles socket events, visibility signals and outbound calls for
// one logged-in user. All methods must be called on the event loop.
type Engine struct {
	ctx     context.Context
	exec    loop.Executor
	sched   loop.Scheduler
	conn    Transport
	api     API
	view    View
	store   session.Store
	media   *media.Validator
	timings config.Timings
	baseLog *logger.Component
	log     *logger.Component
	now     func() time.Time

	sess     *session.Session
	tracker  *tracker
	presence *presence
	receipts *readTracking
	conv     *conversation
}

func New(d Deps) *Engine {
	if d.Context == nil {
		d.Context = context.Background()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Media == nil {
		d.Media = media.NewValidator(media.DefaultMaxBytes)
	}
	if d.Timings == (config.Timings{}) {
		d.Timings = config.DefaultTimings()
	}
	e := &Engine{
		ctx:      d.Context,
		exec:     d.Exec,
		sched:    d.Scheduler,
		conn:     d.Transport,
		api:      d.API,
		view:     d.View,
		store:    d.Store,
		media:    d.Media,
		timings:  d.Timings,
		baseLog:  d.Logger.Component("engine"),
		now:      d.Now,
		tracker:  newTracker(),
		presence: newPresence(),
		receipts: newReadTracking(),
		conv:     &conversation{},
	}
	e.log = e.baseLog
	e.conn.Handle(transport.Handlers{
		OnOpen:         e.onOpen,
		OnFrame:        e.handleFrame,
		OnClose:        e.onClose,
		OnUnauthorized: e.forceReauth,
	})
	return e
}

// Start begins a session with credentials obtained from login or resume and
// opens the socket.
func (e *Engine) Start(creds session.Credentials) {
	if e.sess != nil && !e.sess.Closed() {
		e.endSession()
	}
	e.sess = session.Init(creds)
	e.log = e.baseLog.With(zap.String("session_id", e.sess.ID.String()), zap.Int64("user_id", creds.UserID))
	e.api.SetToken(creds.Token)
	e.log.Info("session_started", zap.String("username", creds.Username))
	e.conn.Connect(creds.Token)
	e.view.ConnectionChanged(e.conn.State())
}

// Login authenticates over REST, persists the credentials and starts a session.
func (e *Engine) Login(username, password string, done func(error)) {
	e.exec.Go(func() {
		resp, err := e.api.Login(e.ctx, username, password)
		e.exec.Post(func() {
			if err != nil {
				e.log.Warn("login_failed", zap.Error(err))
				done(err)
				return
			}
			creds := session.Credentials{Token: resp.Token, UserID: resp.User.ID, Username: resp.User.Username}
			if err := e.store.Save(creds); err != nil {
				e.log.Error("save_credentials_failed", err)
			}
			e.Start(creds)
			done(nil)
		})
	})
}

// Logout closes the conversation, cancels every deferred task, closes the
// socket with a normal closure and forgets the credentials.
func (e *Engine) Logout() error {
	if e.sess == nil || e.sess.Closed() {
		return chatsync_errors.ErrNotLoggedIn
	}
	e.endSession()
	e.view.ConnectionChanged(e.conn.State())
	if err := e.store.Clear(); err != nil {
		return err
	}
	return nil
}

// Shutdown ends the live session on quit. Credentials stay on disk so the
// next start resumes.
func (e *Engine) Shutdown() {
	if e.sess == nil || e.sess.Closed() {
		return
	}
	e.endSession()
	e.view.ConnectionChanged(e.conn.State())
}

// forceReauth handles any 401: the session is over and the user must log in again.
func (e *Engine) forceReauth() {
	if e.sess == nil || e.sess.Closed() {
		return
	}
	e.log.Warn("unauthorized_reauth_required")
	e.endSession()
	if err := e.store.Clear(); err != nil {
		e.log.Error("clear_credentials_failed", err)
	}
	e.view.ConnectionChanged(e.conn.State())
	e.view.AuthRequired()
}

func (e *Engine) endSession() {
	e.CloseConversation()
	n := e.sched.CancelAll()
	e.conn.Close()
	e.receipts.clear()
	e.tracker.clear()
	e.presence.clear()
	e.sess.Teardown()
	e.api.SetToken("")
	e.log.Info("session_ended", zap.Int("cancelled_tasks", n))
}

// SetActive records whether the user is looking at the client. Inactive
// sessions suppress delivered and read announcements.
func (e *Engine) SetActive(active bool) {
	if e.sess.SetActive(active) {
		e.log.Debug("session_active_changed", zap.Bool("active", active))
	}
}

func (e *Engine) onOpen() {
	e.view.ConnectionChanged(transport.StateConnected)
	if e.sess == nil || e.sess.Closed() {
		return
	}
	// the server tracks the open conversation per connection, and messages
	// sent while we were away only show up in its history
	if e.conv.active != 0 {
		e.conn.Send(events.ConversationOpened(e.conv.active))
		e.fetchHistory(e.conv.active, e.conv.gen)
	}
	e.fetchRoster()
}

func (e *Engine) onClose(code int, reconnecting bool) {
	e.log.Info("connection_lost", zap.Int("code", code), zap.Bool("reconnecting", reconnecting))
	e.view.ConnectionChanged(e.conn.State())
}

// handleRESTError reports whether err ended the session.
func (e *Engine) handleRESTError(op string, err error) bool {
	if errors.Is(err, chatsync_errors.ErrUnauthorized) {
		e.forceReauth()
		return true
	}
	e.log.Error(op+"_failed", err)
	return false
}

// current reports whether sess is still the live session.
func (e *Engine) current(sess *session.Session) bool {
	return sess != nil && e.sess == sess && !sess.Closed()
}

// Snapshot is a point-in-time summary for diagnostics.
type Snapshot struct {
	SessionID          string `json:"session_id,omitempty"`
	UserID             int64  `json:"user_id,omitempty"`
	Username           string `json:"username,omitempty"`
	Active             bool   `json:"active"`
	ConnectionState    string `json:"connection_state"`
	ActiveConversation int64  `json:"active_conversation"`
	OnlineCount        int    `json:"online_count"`
	RosterSize         int    `json:"roster_size"`
	KnownMessages      int    `json:"known_messages"`
	ReadTracked        int    `json:"read_tracked"`
	PendingTasks       int    `json:"pending_tasks"`
}

func (e *Engine) Snapshot() Snapshot {
	s := Snapshot{
		ConnectionState:    e.conn.State().String(),
		ActiveConversation: e.conv.active,
		OnlineCount:        e.presence.onlineCount(),
		RosterSize:         len(e.presence.users),
		KnownMessages:      len(e.tracker.known),
		ReadTracked:        len(e.receipts.read),
		PendingTasks:       e.sched.Len(),
	}
	if e.sess != nil && !e.sess.Closed() {
		s.SessionID = e.sess.ID.String()
		s.UserID = e.sess.UserID
		s.Username = e.sess.Username
		s.Active = e.sess.Active()
	}
	return s
}
