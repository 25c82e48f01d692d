package middleware

import (
	"bytes"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	requestIDHeader = "X-Request-ID"
	// maxLoggedBody caps the response text kept for 4xx/5xx log lines.
	maxLoggedBody = 4 << 10
)

// RequestIDMiddleware reuses the caller's X-Request-ID or mints one.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(RequestIDKey, rid)
		c.Header(requestIDHeader, rid)
		c.Next()
	}
}

// cappedRecorder tees the first maxLoggedBody bytes of a response.
type cappedRecorder struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (r *cappedRecorder) Write(b []byte) (int, error) {
	if room := maxLoggedBody - r.buf.Len(); room > 0 {
		r.buf.Write(b[:min(len(b), room)])
	}
	return r.ResponseWriter.Write(b)
}

// requestFields are the zap key/value pairs every request log line carries.
func requestFields(c *gin.Context) []any {
	return []any{
		"request_id", c.GetString(RequestIDKey),
		"session_id", c.GetString(SessionIDKey),
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"query", c.Request.URL.RawQuery,
		"client_ip", c.ClientIP(),
	}
}

// RequestLoggingMiddleware writes one line per request once it completes.
// Error responses also carry the start of the response body.
func RequestLoggingMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		rec := &cappedRecorder{ResponseWriter: c.Writer}
		c.Writer = rec

		c.Next()

		status := c.Writer.Status()
		fields := append(requestFields(c),
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"user_agent", c.Request.UserAgent(),
		)
		switch {
		case status >= http.StatusInternalServerError:
			logger.Errorw("request failed", append(fields, "response", rec.buf.String())...)
		case status >= http.StatusBadRequest:
			logger.Warnw("request rejected", append(fields, "response", rec.buf.String())...)
		default:
			logger.Infow("request completed", fields...)
		}
	}
}

// RecoveryMiddleware turns a handler panic into a 500 and logs the stack.
func RecoveryMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			logger.Errorw("panic recovered",
				append(requestFields(c), "panic", r, "stack", string(debug.Stack()))...)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":      "Internal server error",
				"request_id": c.GetString(RequestIDKey),
			})
		}()
		c.Next()
	}
}
