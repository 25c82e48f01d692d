package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	journal "io.winapps.triptracker/internal/models/journal"
	"io.winapps.triptracker/internal/tripdates"
	"io.winapps.triptracker/internal/weather"
)

type WeatherHandler struct {
	source *weather.Source
}

func NewWeatherHandler(source *weather.Source) *WeatherHandler {
	return &WeatherHandler{source: source}
}

// GetWeather returns the cached weather for ?date=, or every known day.
// Weather is fetched by the scheduler, never on request.
func (h *WeatherHandler) GetWeather(c *gin.Context) {
	if h.source == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Weather is disabled"})
		return
	}

	date := c.Query("date")
	if date == "" {
		days := h.source.All()
		if days == nil {
			days = []journal.DayWeather{}
		}
		c.JSON(http.StatusOK, gin.H{"days": days})
		return
	}
	if !tripdates.IsTripDate(date) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date is not a trip date"})
		return
	}
	w, ok := h.source.Get(date)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No weather for this day yet", "location": weather.LocationFor(date).Place})
		return
	}
	c.JSON(http.StatusOK, w)
}
