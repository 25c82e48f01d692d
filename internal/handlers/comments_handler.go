package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"io.winapps.triptracker/internal/cache"
	"io.winapps.triptracker/internal/comments"
	"io.winapps.triptracker/internal/middleware"
	createmodels "io.winapps.triptracker/internal/models/create_comment"
	journal "io.winapps.triptracker/internal/models/journal"
	updatemodels "io.winapps.triptracker/internal/models/update_comment"
)

type CommentsHandler struct {
	comments *comments.Service
	logger   *zap.SugaredLogger
}

// NewCommentsHandler creates a new comments handler
func NewCommentsHandler(comments *comments.Service, logger *zap.SugaredLogger) *CommentsHandler {
	return &CommentsHandler{comments: comments, logger: logger}
}

func (h *CommentsHandler) fail(c *gin.Context, err error, action string) {
	switch {
	case errors.Is(err, comments.ErrLocked):
		c.JSON(http.StatusForbidden, gin.H{"error": "Commenting is locked"})
	case errors.Is(err, comments.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "Not allowed to change this comment"})
	case errors.Is(err, comments.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Comment not found"})
	case errors.Is(err, cache.ErrPendingCreate):
		c.JSON(http.StatusConflict, gin.H{"error": "Comment is still being saved"})
	case errors.Is(err, comments.ErrNameRequired),
		errors.Is(err, comments.ErrEmptyComment),
		errors.Is(err, comments.ErrNoteRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logError(c, err, "comment operation failed", "action", action)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to " + action + " comment"})
	}
}

// ListComments returns a note's comments, oldest first
func (h *CommentsHandler) ListComments(c *gin.Context) {
	list := h.comments.ForNote(c.Param("id"))
	if list == nil {
		list = []journal.Comment{}
	}
	c.JSON(http.StatusOK, createmodels.ListCommentsResponse{Comments: list, Count: len(list)})
}

// CommentCounts maps note ids to their comment counts
func (h *CommentsHandler) CommentCounts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"counts": h.comments.Counts()})
}

// CreateComment posts a comment under the session's display name
func (h *CommentsHandler) CreateComment(c *gin.Context) {
	var req createmodels.CreateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	comment, result, err := h.comments.Add(c.Request.Context(), middleware.ActorFrom(c), c.Param("id"), req.Content)
	if err != nil {
		h.fail(c, err, "create")
		return
	}
	c.JSON(writeStatus(result), createmodels.CreateCommentResponse{Status: result.String(), Comment: comment})
}

func (h *CommentsHandler) UpdateComment(c *gin.Context) {
	var req updatemodels.UpdateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	id := c.Param("id")
	result, err := h.comments.Update(c.Request.Context(), middleware.ActorFrom(c), id, req.Content)
	if err != nil {
		h.fail(c, err, "update")
		return
	}
	respondWrite(c, result, gin.H{"id": id})
}

func (h *CommentsHandler) DeleteComment(c *gin.Context) {
	id := c.Param("id")
	result, err := h.comments.Delete(c.Request.Context(), middleware.ActorFrom(c), id)
	if err != nil {
		h.fail(c, err, "delete")
		return
	}
	respondWrite(c, result, gin.H{"id": id})
}
