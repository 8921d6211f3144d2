package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"chatsync/internal/engine"
	"chatsync/internal/loop"
	"chatsync/internal/middleware"
	"chatsync/internal/transport/httpdto"
	"chatsync/pkg/logger"

	"github.com/gin-gonic/gin"
)

var (
	ReleaseMode = "release"
	DebugMode   = "debug"
	TestMode    = "test"
)

const snapshotTimeout = 2 * time.Second

// SnapshotFunc reads the engine state. Implementations must read it on the
// event loop.
type SnapshotFunc func(ctx context.Context) (engine.Snapshot, error)

// FromLoop reads eng.Snapshot on l.
func FromLoop(l *loop.Loop, eng *engine.Engine) SnapshotFunc {
	return func(ctx context.Context) (engine.Snapshot, error) {
		var snap engine.Snapshot
		err := l.Call(ctx, func() { snap = eng.Snapshot() })
		return snap, err
	}
}

type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	listener   net.Listener
	snapshot   SnapshotFunc
	logger     *logger.Logger
}

func New(addr, mode string, snapshot SnapshotFunc, l *logger.Logger) *Server {
	switch mode {
	case ReleaseMode, "production":
		gin.SetMode(gin.ReleaseMode)
	case TestMode:
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}
	if l == nil {
		l = logger.Nop()
	}

	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
		engine:   r,
		snapshot: snapshot,
		logger:   l,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.Use(middleware.RequestIDMiddleware())
	s.engine.Use(middleware.LoggingMiddleware(s.logger))
	s.engine.Use(middleware.ErrorHandler(s.logger))

	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/status", s.status)
}

func (s *Server) status(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), snapshotTimeout)
	defer cancel()

	snap, err := s.snapshot(ctx)
	if err != nil {
		c.Status(http.StatusServiceUnavailable)
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(snap))
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Addr is the bound address once Start has returned.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.httpServer.Addr
	}
	return s.listener.Addr().String()
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.logger.Infof("status server listening on %s", ln.Addr())

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorf("status server stopped: %s", err)
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warnf("status server shutdown: %s", err)
		return err
	}
	s.logger.Infof("status server stopped")
	return nil
}
