package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"io.winapps.triptracker/internal/middleware"
	unlockmodels "io.winapps.triptracker/internal/models/unlock_session"
	"io.winapps.triptracker/internal/session"
)

const eventKeepAlive = 25 * time.Second

type SessionHandler struct {
	gate   *session.Gate
	logger *zap.SugaredLogger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(gate *session.Gate, logger *zap.SugaredLogger) *SessionHandler {
	return &SessionHandler{gate: gate, logger: logger}
}

func toSessionResponse(s session.Session) unlockmodels.SessionResponse {
	return unlockmodels.SessionResponse{
		ID:               s.ID,
		JournalUnlocked:  s.JournalUnlocked,
		CommentsUnlocked: s.CommentsUnlocked,
		CanComment:       s.Actor().CanComment,
		DisplayName:      s.DisplayName,
		UpdatedAt:        s.UpdatedAt,
	}
}

// GetSession returns the unlock state of the calling device
func (h *SessionHandler) GetSession(c *gin.Context) {
	c.JSON(http.StatusOK, toSessionResponse(middleware.SessionFrom(c)))
}

func (h *SessionHandler) respond(c *gin.Context, s session.Session, err error, action string) {
	switch {
	case err == nil:
		c.JSON(http.StatusOK, toSessionResponse(s))
	case errors.Is(err, session.ErrIncorrectPassword):
		logWithContext(h.logger, c, "warn", "incorrect password", "action", action)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Incorrect password"})
	case errors.Is(err, session.ErrNameRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Name is required"})
	default:
		h.logError(c, err, "session update failed", "action", action)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update session"})
	}
}

// UnlockJournal handles the owner password
func (h *SessionHandler) UnlockJournal(c *gin.Context) {
	var req unlockmodels.UnlockJournalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}
	s, err := h.gate.UnlockJournal(c.Request.Context(), c.GetString(middleware.SessionIDKey), req.Password)
	h.respond(c, s, err, "unlock-journal")
}

// UnlockComments handles the family password and records the commenter's name
func (h *SessionHandler) UnlockComments(c *gin.Context) {
	var req unlockmodels.UnlockCommentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}
	s, err := h.gate.UnlockComments(c.Request.Context(), c.GetString(middleware.SessionIDKey), req.Name, req.Password)
	h.respond(c, s, err, "unlock-comments")
}

// SetDisplayName changes the name comments are posted under
func (h *SessionHandler) SetDisplayName(c *gin.Context) {
	var req unlockmodels.SetNameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}
	s, err := h.gate.SetDisplayName(c.Request.Context(), c.GetString(middleware.SessionIDKey), req.Name)
	h.respond(c, s, err, "set-name")
}

// Events streams this device's auth changes as server-sent events. The
// current state is sent first so a client can render without a second call.
func (h *SessionHandler) Events(c *gin.Context) {
	id := c.GetString(middleware.SessionIDKey)
	events, unsubscribe := h.gate.Broker().Subscribe()
	defer unsubscribe()

	ticker := time.NewTicker(eventKeepAlive)
	defer ticker.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("session", toSessionResponse(middleware.SessionFrom(c)))
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			if ev.SessionID == id {
				c.SSEvent(string(ev.Kind), ev)
			}
			return true
		case <-ticker.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
