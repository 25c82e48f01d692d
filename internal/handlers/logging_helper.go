package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"io.winapps.triptracker/internal/middleware"
)

func requestContextFields(c *gin.Context) []interface{} {
	return []interface{}{
		"request_id", c.GetString(middleware.RequestIDKey),
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"query", c.Request.URL.RawQuery,
		"client_ip", c.ClientIP(),
		"session_id", c.GetString(middleware.SessionIDKey),
	}
}

func logWithContext(logger *zap.SugaredLogger, c *gin.Context, level string, msg string, fields ...interface{}) {
	if logger == nil {
		return
	}
	base := requestContextFields(c)
	all := append(base, fields...)
	switch level {
	case "debug":
		logger.Debugw(msg, all...)
	case "warn":
		logger.Warnw(msg, all...)
	case "error":
		logger.Errorw(msg, all...)
	default:
		logger.Infow(msg, all...)
	}
}

func (h *SessionHandler) logError(c *gin.Context, err error, msg string, fields ...interface{}) {
	logWithContext(h.logger, c, "error", msg, append(fields, "error", err)...)
}

func (h *NotesHandler) logError(c *gin.Context, err error, msg string, fields ...interface{}) {
	logWithContext(h.logger, c, "error", msg, append(fields, "error", err)...)
}

func (h *CommentsHandler) logError(c *gin.Context, err error, msg string, fields ...interface{}) {
	logWithContext(h.logger, c, "error", msg, append(fields, "error", err)...)
}

func (h *PhotosHandler) logError(c *gin.Context, err error, msg string, fields ...interface{}) {
	logWithContext(h.logger, c, "error", msg, append(fields, "error", err)...)
}

func (h *SyncHandler) logError(c *gin.Context, err error, msg string, fields ...interface{}) {
	logWithContext(h.logger, c, "warn", msg, append(fields, "error", err)...)
}
