package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"

	"chatsync/internal/domain/message"
	"chatsync/internal/domain/user"
	chatsync_errors "chatsync/pkg/errors"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse is returned by login and register.
type AuthResponse struct {
	Token string `json:"token"`
	User  struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
	} `json:"user"`
}

type conversationResponse struct {
	Messages []message.Message `json:"messages"`
}

type uploadResponse struct {
	URL string `json:"url"`
}

type statusRequest struct {
	MessageID int64  `json:"message_id"`
	Status    string `json:"status"`
}

func (c *Client) Login(ctx context.Context, username, password string) (AuthResponse, error) {
	return c.authenticate(ctx, "/api/auth/login", username, password)
}

func (c *Client) Register(ctx context.Context, username, password string) (AuthResponse, error) {
	return c.authenticate(ctx, "/api/auth/register", username, password)
}

func (c *Client) authenticate(ctx context.Context, path, username, password string) (AuthResponse, error) {
	if username == "" || password == "" {
		return AuthResponse{}, fmt.Errorf("username and password are required: %w", chatsync_errors.ErrInvalidInput)
	}
	var out AuthResponse
	if err := c.doJSON(ctx, http.MethodPost, path, credentialsRequest{Username: username, Password: password}, &out); err != nil {
		return AuthResponse{}, err
	}
	if out.Token == "" {
		return AuthResponse{}, fmt.Errorf("%s returned no token: %w", path, chatsync_errors.ErrUnauthorized)
	}
	if out.User.Username == "" {
		out.User.Username = username
	}
	return out, nil
}

// FetchRoster lists every registered user.
func (c *Client) FetchRoster(ctx context.Context) ([]user.User, error) {
	var users []user.User
	if err := c.doJSON(ctx, http.MethodGet, "/api/users", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// FetchConversation returns the ordered history with one counterpart.
func (c *Client) FetchConversation(ctx context.Context, userID int64) ([]message.Message, error) {
	q := url.Values{"user_id": {strconv.FormatInt(userID, 10)}}
	var out conversationResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/messages/conversation?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// UpdateStatus is the REST path for status transitions.
func (c *Client) UpdateStatus(ctx context.Context, messageID int64, status message.Status) error {
	return c.doJSON(ctx, http.MethodPut, "/api/messages/status", statusRequest{
		MessageID: messageID,
		Status:    status.String(),
	}, nil)
}

// Upload posts one file and returns the URL the server stored it under.
func (c *Client) Upload(ctx context.Context, filename, contentType string, content io.Reader) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, c.uploadField, filename))
	header.Set("Content-Type", contentType)
	part, err := w.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("create upload part: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return "", fmt.Errorf("read upload body: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/messages/upload", &buf, w.FormDataContentType())
	if err != nil {
		return "", err
	}
	var out uploadResponse
	if err := c.do(req, &out); err != nil {
		return "", err
	}
	if out.URL == "" {
		return "", fmt.Errorf("upload returned no url: %w", chatsync_errors.ErrInvalidPayload)
	}
	return out.URL, nil
}
