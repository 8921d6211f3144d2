package middleware

import (
	"context"
	"errors"
	"net/http"

	"chatsync/internal/loop"
	"chatsync/internal/transport/httpdto"
	"chatsync/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func ErrorHandler(l *logger.Logger) gin.HandlerFunc {
	if l == nil {
		l = logger.Nop()
	}
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		l.WithContext(c.Request.Context()).Warn("status request failed", zap.Error(err))

		status := c.Writer.Status()
		if status < http.StatusBadRequest {
			status = http.StatusInternalServerError
		}
		c.JSON(status, httpdto.NewErrorResponse(err.Error(), errorCode(err)))
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, loop.ErrStopped):
		return "LOOP_STOPPED"
	case errors.Is(err, context.DeadlineExceeded):
		return "TIMEOUT"
	default:
		return "INTERNAL_ERROR"
	}
}
