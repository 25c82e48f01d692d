package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	tripmodels "io.winapps.triptracker/internal/models/trip_dates"
	"io.winapps.triptracker/internal/notes"
	"io.winapps.triptracker/internal/tripdates"
)

type TripHandler struct {
	notes *notes.Service
	loc   *time.Location
	now   func() time.Time
}

func NewTripHandler(notes *notes.Service, loc *time.Location) *TripHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &TripHandler{notes: notes, loc: loc, now: time.Now}
}

// TripDates lists the itinerary days, the day to open on, and the days that
// already have notes
func (h *TripHandler) TripDates(c *gin.Context) {
	withNotes := h.notes.Dates()
	if withNotes == nil {
		withNotes = []string{}
	}
	c.JSON(http.StatusOK, tripmodels.TripDatesResponse{
		Start:     tripdates.TripStart.Key(),
		End:       tripdates.TripEnd.Key(),
		Today:     tripdates.Clamp(h.now().In(h.loc)),
		Dates:     tripdates.All(),
		WithNotes: withNotes,
	})
}
