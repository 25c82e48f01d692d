package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"io.winapps.triptracker/internal/middleware"
	journal "io.winapps.triptracker/internal/models/journal"
	uploadmodels "io.winapps.triptracker/internal/models/upload_photo"
	"io.winapps.triptracker/internal/photos"
	"io.winapps.triptracker/internal/tripdates"
)

// MaxPhotoBytes bounds a single uploaded file.
const MaxPhotoBytes = 25 << 20

type PhotosHandler struct {
	uploader *photos.Uploader
	logger   *zap.SugaredLogger
}

// NewPhotosHandler creates a new photos handler. A nil uploader disables uploads.
func NewPhotosHandler(uploader *photos.Uploader, logger *zap.SugaredLogger) *PhotosHandler {
	return &PhotosHandler{uploader: uploader, logger: logger}
}

// UploadPhoto takes a multipart "photo" file plus "author" and an optional
// "date". Without a date the photo's EXIF capture day is used when it falls
// within the trip.
func (h *PhotosHandler) UploadPhoto(c *gin.Context) {
	if h.uploader == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Photo storage is not configured"})
		return
	}
	if !middleware.ActorFrom(c).IsOwner {
		c.JSON(http.StatusForbidden, gin.H{"error": "Journal is locked"})
		return
	}

	author, ok := journal.CanonicalAuthor(c.PostForm("author"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "author must be one of the trip authors"})
		return
	}

	fh, err := c.FormFile("photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "photo file is required"})
		return
	}
	if fh.Size > MaxPhotoBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Photo is too large"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		h.logError(c, err, "failed to open uploaded photo")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Could not read photo"})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, MaxPhotoBytes+1))
	if err != nil {
		h.logError(c, err, "failed to read uploaded photo")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Could not read photo"})
		return
	}

	var resp uploadmodels.UploadPhotoResponse
	if d, ok := photos.ExtractDate(data); ok {
		resp.TakenOn = d.Key
		if tripdates.IsTripDate(d.Key) {
			resp.TripDate = d.Key
		}
	}

	date := c.PostForm("date")
	if date == "" {
		date = resp.TripDate
	}
	if !tripdates.IsTripDate(date) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date is not a trip date"})
		return
	}

	up, err := h.uploader.Upload(c.Request.Context(), data, author, date)
	if errors.Is(err, photos.ErrUnsupportedImage) {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "Unsupported image format"})
		return
	}
	if err != nil {
		h.logError(c, err, "failed to upload photo", "date", date)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to upload photo"})
		return
	}
	resp.Photo = up.Photo
	c.JSON(http.StatusCreated, resp)
}
