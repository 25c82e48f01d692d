package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"io.winapps.triptracker/internal/session"
)

// Context keys set by this package.
const (
	RequestIDKey = "request_id"
	SessionIDKey = "session_id"
	SessionKey   = "session"
)

// SessionHeader carries the device's session id in both directions.
const SessionHeader = "X-Session-ID"

// SessionLoader resolves a session id into its unlock state.
type SessionLoader interface {
	Get(ctx context.Context, id string) (session.Session, error)
}

// SessionMiddleware attaches the device session to the request. A request
// without a session id is given a fresh one, echoed in the response header,
// which the client keeps for later calls.
func SessionMiddleware(loader SessionLoader, logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(SessionHeader))
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(SessionIDKey, id)
		c.Writer.Header().Set(SessionHeader, id)

		s, err := loader.Get(c.Request.Context(), id)
		if err != nil {
			logger.Errorw("failed to load session",
				"request_id", c.GetString(RequestIDKey),
				"session_id", id,
				"error", err,
			)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Session store unavailable"})
			return
		}
		c.Set(SessionKey, s)
		c.Next()
	}
}

// SessionFrom returns the session attached by SessionMiddleware.
func SessionFrom(c *gin.Context) session.Session {
	if v, ok := c.Get(SessionKey); ok {
		if s, ok := v.(session.Session); ok {
			return s
		}
	}
	return session.Session{ID: c.GetString(SessionIDKey)}
}

// ActorFrom returns the actor for the request's session.
func ActorFrom(c *gin.Context) session.Actor {
	return SessionFrom(c).Actor()
}
