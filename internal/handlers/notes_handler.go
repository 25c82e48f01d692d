package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"io.winapps.triptracker/internal/cache"
	"io.winapps.triptracker/internal/comments"
	"io.winapps.triptracker/internal/middleware"
	createmodels "io.winapps.triptracker/internal/models/create_note"
	journal "io.winapps.triptracker/internal/models/journal"
	updatemodels "io.winapps.triptracker/internal/models/update_note"
	"io.winapps.triptracker/internal/notes"
	"io.winapps.triptracker/internal/tripdates"
)

type NotesHandler struct {
	notes    *notes.Service
	comments *comments.Service
	logger   *zap.SugaredLogger
}

// NewNotesHandler creates a new notes handler
func NewNotesHandler(notes *notes.Service, comments *comments.Service, logger *zap.SugaredLogger) *NotesHandler {
	return &NotesHandler{notes: notes, comments: comments, logger: logger}
}

func (h *NotesHandler) fail(c *gin.Context, err error, action string) {
	switch {
	case errors.Is(err, notes.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "Not allowed to change this note"})
	case errors.Is(err, notes.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Note not found"})
	case errors.Is(err, cache.ErrPendingCreate):
		c.JSON(http.StatusConflict, gin.H{"error": "Note is still being saved"})
	case errors.Is(err, notes.ErrInvalidAuthor),
		errors.Is(err, notes.ErrEmptyNote),
		errors.Is(err, notes.ErrInvalidDate):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logError(c, err, "note operation failed", "action", action)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to " + action + " note"})
	}
}

// ListNotes returns the notes for ?date=, or every note when no date is given
func (h *NotesHandler) ListNotes(c *gin.Context) {
	var list []journal.Note
	if date := c.Query("date"); date != "" {
		if !tripdates.IsTripDate(date) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date is not a trip date"})
			return
		}
		list = h.notes.ForDate(date)
	} else {
		list = h.notes.All()
	}
	if list == nil {
		list = []journal.Note{}
	}

	counts := make(map[string]int, len(list))
	for _, n := range list {
		if cnt := h.comments.CountForNote(n.ID); cnt > 0 {
			counts[n.ID] = cnt
		}
	}
	c.JSON(http.StatusOK, createmodels.ListNotesResponse{Notes: list, CommentCounts: counts})
}

// GetNote returns a single note
func (h *NotesHandler) GetNote(c *gin.Context) {
	note, ok := h.notes.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Note not found"})
		return
	}
	c.JSON(http.StatusOK, note)
}

// CreateNote handles creation of new journal notes
func (h *NotesHandler) CreateNote(c *gin.Context) {
	var req createmodels.CreateNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	note, result, err := h.notes.Add(c.Request.Context(), middleware.ActorFrom(c), notes.Draft{
		Author:   req.Author,
		Content:  req.Content,
		Date:     req.Date,
		Location: req.Location,
		Timezone: req.Timezone,
		Photos:   req.Photos,
	})
	if err != nil {
		h.fail(c, err, "create")
		return
	}
	c.JSON(writeStatus(result), createmodels.CreateNoteResponse{Status: result.String(), Note: note})
}

// UpdateNote applies a partial edit
func (h *NotesHandler) UpdateNote(c *gin.Context) {
	var req updatemodels.UpdateNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	id := c.Param("id")
	result, err := h.notes.Update(c.Request.Context(), middleware.ActorFrom(c), id, notes.Patch{
		Content:  req.Content,
		Date:     req.Date,
		Location: req.Location,
	})
	if err != nil {
		h.fail(c, err, "update")
		return
	}
	respondWrite(c, result, gin.H{"id": id})
}

// DeleteNote removes a note and its photos
func (h *NotesHandler) DeleteNote(c *gin.Context) {
	id := c.Param("id")
	result, err := h.notes.Delete(c.Request.Context(), middleware.ActorFrom(c), id)
	if err != nil {
		h.fail(c, err, "delete")
		return
	}
	respondWrite(c, result, gin.H{"id": id})
}
