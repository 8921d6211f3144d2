package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"chatsync/internal/domain/message"
	chatsync_errors "chatsync/pkg/errors"
	"chatsync/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// newFakeServer mimics the chat backend's REST routes.
func newFakeServer(t *testing.T) (*httptest.Server, chan http.Header) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	seen := make(chan http.Header, 32)

	authed := func(c *gin.Context) {
		seen <- c.Request.Header.Clone()
		if c.GetHeader("Authorization") != "Bearer good" {
			c.String(http.StatusUnauthorized, "unauthorized")
			c.Abort()
			return
		}
		c.Next()
	}

	r := gin.New()
	r.POST("/api/auth/login", func(c *gin.Context) {
		var req credentialsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.String(http.StatusBadRequest, err.Error())
			return
		}
		if req.Password != "secret" {
			c.String(http.StatusUnauthorized, "invalid credentials")
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": "good", "user": gin.H{"id": 7, "username": req.Username}})
	})
	r.POST("/api/auth/register", func(c *gin.Context) {
		c.String(http.StatusConflict, "username already exists\n")
	})
	r.GET("/api/users", authed, func(c *gin.Context) {
		c.JSON(http.StatusOK, []gin.H{{"id": 1, "username": "alice"}, {"id": 2, "username": "bob"}})
	})
	r.GET("/api/messages/conversation", authed, func(c *gin.Context) {
		if c.Query("user_id") != "2" {
			c.String(http.StatusBadRequest, "Invalid user ID")
			return
		}
		c.JSON(http.StatusOK, gin.H{"messages": []gin.H{
			{"id": 1, "sender_id": 2, "receiver_id": 7, "content": "hi", "created_at": "2024-01-02T03:04:05Z"},
			{"id": 2, "sender_id": 7, "receiver_id": 2, "content": "yo", "status": "read"},
		}})
	})
	r.PUT("/api/messages/status", authed, func(c *gin.Context) {
		var req statusRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Status != "delivered" {
			c.String(http.StatusBadRequest, "invalid status")
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "updated"})
	})
	r.POST("/api/messages/upload", authed, func(c *gin.Context) {
		fh, err := c.FormFile("file")
		if err != nil {
			c.String(http.StatusBadRequest, "invalid file")
			return
		}
		if fh.Header.Get("Content-Type") != "image/png" {
			c.String(http.StatusBadRequest, "file type not allowed")
			return
		}
		c.JSON(http.StatusOK, gin.H{"url": "/uploads/" + fh.Filename})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, seen
}

func TestClient_Login(t *testing.T) {
	srv, _ := newFakeServer(t)
	c := NewClient(srv.URL)

	resp, err := c.Login(context.Background(), "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, "good", resp.Token)
	assert.Equal(t, int64(7), resp.User.ID)
	assert.Equal(t, "alice", resp.User.Username)

	_, err = c.Login(context.Background(), "alice", "wrong")
	assert.ErrorIs(t, err, chatsync_errors.ErrUnauthorized)

	_, err = c.Login(context.Background(), "", "")
	assert.ErrorIs(t, err, chatsync_errors.ErrInvalidInput)
}

func TestClient_RegisterConflictIsAPIError(t *testing.T) {
	srv, _ := newFakeServer(t)
	c := NewClient(srv.URL + "/")

	_, err := c.Register(context.Background(), "alice", "secret")
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "username already exists", apiErr.Message)
}

func TestClient_FetchRosterAndHeaders(t *testing.T) {
	srv, seen := newFakeServer(t)
	c := NewClient(srv.URL)
	c.SetToken("good")

	users, err := c.FetchRoster(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "bob", users[1].Username)

	require.Len(t, seen, 1)
	header := <-seen
	assert.Equal(t, "Bearer good", header.Get("Authorization"))
	_, err = uuid.Parse(header.Get("X-Request-Id"))
	assert.NoError(t, err, "request id is a uuid")
}

func TestClient_LogsCarrySessionFields(t *testing.T) {
	srv, _ := newFakeServer(t)
	core, logs := observer.New(zapcore.DebugLevel)
	c := NewClient(srv.URL, WithLogger(logger.NewWith(zap.New(core))))
	c.SetToken("good")

	ctx := context.WithValue(context.Background(), logger.SessionIdKey, "s-1")
	ctx = context.WithValue(ctx, logger.UserIdKey, int64(7))
	_, err := c.FetchRoster(ctx)
	require.NoError(t, err)

	entries := logs.FilterMessage("request_completed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "s-1", fields["session_id"])
	assert.Equal(t, int64(7), fields["user_id"])
	assert.Equal(t, "api", fields["component"])
}

func TestClient_UnauthorizedIsSentinel(t *testing.T) {
	srv, _ := newFakeServer(t)
	c := NewClient(srv.URL)
	c.SetToken("expired")

	_, err := c.FetchRoster(context.Background())
	assert.ErrorIs(t, err, chatsync_errors.ErrUnauthorized)

	_, err = c.FetchConversation(context.Background(), 2)
	assert.ErrorIs(t, err, chatsync_errors.ErrUnauthorized)
}

func TestClient_FetchConversation(t *testing.T) {
	srv, _ := newFakeServer(t)
	c := NewClient(srv.URL)
	c.SetToken("good")

	msgs, err := c.FetchConversation(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, message.StatusSent, msgs[0].Status, "missing status defaults to sent")
	assert.Equal(t, 2024, msgs[0].CreatedAt.Year())
	assert.Equal(t, message.StatusRead, msgs[1].Status)
}

func TestClient_UpdateStatus(t *testing.T) {
	srv, _ := newFakeServer(t)
	c := NewClient(srv.URL)
	c.SetToken("good")

	assert.NoError(t, c.UpdateStatus(context.Background(), 5, message.StatusDelivered))

	err := c.UpdateStatus(context.Background(), 5, message.StatusSending)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

func TestClient_Upload(t *testing.T) {
	srv, _ := newFakeServer(t)
	c := NewClient(srv.URL)
	c.SetToken("good")

	url, err := c.Upload(context.Background(), "cat.png", "image/png", strings.NewReader("\x89PNG\r\n\x1a\n"))
	require.NoError(t, err)
	assert.Equal(t, "/uploads/cat.png", url)

	renamed := NewClient(srv.URL, WithUploadField("media"))
	renamed.SetToken("good")
	_, err = renamed.Upload(context.Background(), "cat.png", "image/png", io.LimitReader(strings.NewReader("x"), 1))
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "invalid file", apiErr.Message)
}
