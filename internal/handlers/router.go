package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"go.uber.org/zap"

	"io.winapps.triptracker/internal/middleware"
)

// RouterConfig carries everything the API routes need.
type RouterConfig struct {
	Logger         *zap.SugaredLogger
	AllowedOrigins []string
	// Limiter is optional; nil disables rate limiting.
	Limiter  *limiter.Limiter
	Sessions middleware.SessionLoader

	Session  *SessionHandler
	Notes    *NotesHandler
	Comments *CommentsHandler
	Photos   *PhotosHandler
	Weather  *WeatherHandler
	Sync     *SyncHandler
	Trip     *TripHandler
}

// NewRouter builds the gin engine with middleware and every route.
func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	router := gin.New()
	router.Use(
		middleware.RequestIDMiddleware(),
		middleware.RecoveryMiddleware(logger),
		middleware.RequestLoggingMiddleware(logger),
		middleware.CORS(cfg.AllowedOrigins),
	)

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	if cfg.Limiter != nil {
		v1.Use(middleware.RateLimit(cfg.Limiter, logger))
	}
	v1.Use(middleware.SessionMiddleware(cfg.Sessions, logger))
	{
		v1.GET("/trip/dates", cfg.Trip.TripDates)

		sess := v1.Group("/session")
		{
			sess.GET("", cfg.Session.GetSession)
			sess.GET("/events", cfg.Session.Events)
			sess.POST("/journal-unlock", cfg.Session.UnlockJournal)
			sess.POST("/comments-unlock", cfg.Session.UnlockComments)
			sess.POST("/name", cfg.Session.SetDisplayName)
		}

		notes := v1.Group("/notes")
		{
			notes.GET("", cfg.Notes.ListNotes)
			notes.POST("", cfg.Notes.CreateNote)
			notes.GET("/:id", cfg.Notes.GetNote)
			notes.PATCH("/:id", cfg.Notes.UpdateNote)
			notes.DELETE("/:id", cfg.Notes.DeleteNote)
			notes.GET("/:id/comments", cfg.Comments.ListComments)
			notes.POST("/:id/comments", cfg.Comments.CreateComment)
		}

		comments := v1.Group("/comments")
		{
			comments.GET("/counts", cfg.Comments.CommentCounts)
			comments.PATCH("/:id", cfg.Comments.UpdateComment)
			comments.DELETE("/:id", cfg.Comments.DeleteComment)
		}

		v1.POST("/photos", cfg.Photos.UploadPhoto)
		v1.GET("/weather", cfg.Weather.GetWeather)

		sync := v1.Group("/sync")
		{
			sync.GET("/status", cfg.Sync.Status)
			sync.GET("/events", cfg.Sync.Events)
			sync.POST("/refresh", cfg.Sync.Refresh)
			sync.POST("/refocus", cfg.Sync.Refocus)
		}
	}

	return router
}
