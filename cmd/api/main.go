package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"io.winapps.triptracker/internal/cache"
	"io.winapps.triptracker/internal/comments"
	"io.winapps.triptracker/internal/config"
	"io.winapps.triptracker/internal/db"
	firebaseutil "io.winapps.triptracker/internal/firebase"
	"io.winapps.triptracker/internal/handlers"
	"io.winapps.triptracker/internal/middleware"
	journal "io.winapps.triptracker/internal/models/journal"
	"io.winapps.triptracker/internal/notes"
	"io.winapps.triptracker/internal/notify"
	"io.winapps.triptracker/internal/photos"
	"io.winapps.triptracker/internal/session"
	"io.winapps.triptracker/internal/store"
	"io.winapps.triptracker/internal/syncstatus"
	"io.winapps.triptracker/internal/weather"
)

const (
	postgresPollInterval = 2 * time.Second
	snapshotCacheTTL     = 30 * 24 * time.Hour
)

func newLogger(production bool) *zap.SugaredLogger {
	var (
		l   *zap.Logger
		err error
	)
	if production {
		l, err = zap.NewProduction()
	} else {
		l, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	return l.Sugar()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := newLogger(cfg.IsProduction)
	defer logger.Sync()

	if cfg.IsProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Initialize Firebase when the store or photos/notifications need it
	var fb *firebaseutil.Clients
	if cfg.StoreBackend == config.BackendFirestore || cfg.Firebase.ProjectID != "" {
		fb, err = firebaseutil.InitClients(ctx, cfg.Firebase)
		if err != nil {
			logger.Fatalw("Failed to initialize Firebase", "error", err)
		}
		defer fb.Close()
	}

	// Initialize Redis
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = db.InitRedis(ctx, cfg.Redis)
		if err != nil {
			logger.Fatalw("Failed to initialize Redis", "error", err)
		}
		defer redisClient.Close()
	}

	var st store.Store
	switch cfg.StoreBackend {
	case config.BackendFirestore:
		st = store.NewFirestoreStore(fb.Firestore)
	case config.BackendPostgres:
		pool, err := db.InitPostgres(ctx, cfg.Postgres)
		if err != nil {
			logger.Fatalw("Failed to initialize PostgreSQL", "error", err)
		}
		defer pool.Close()
		st = store.NewPostgresStore(pool, postgresPollInterval)
	default:
		logger.Warnw("Using in-memory store; data is lost on restart")
		st = store.NewMemoryStore()
	}
	if redisClient != nil {
		st = store.NewCachedStore(st, store.NewRedisSnapshotCache(redisClient, snapshotCacheTTL), 0, logger.Named("store"))
	}

	// Sessions
	var sessions session.Store = session.NewMemoryStore()
	if redisClient != nil {
		sessions = session.NewRedisStore(redisClient, 0, 0)
	}
	gate, err := session.NewGate(sessions, session.NewBroker(0), session.GateConfig{
		JournalSecret: cfg.JournalSecret,
		CommentSecret: cfg.CommentSecret,
	}, logger.Named("session"))
	if err != nil {
		logger.Fatalw("Failed to initialize session gate", "error", err)
	}

	// Photos and notifications
	var (
		uploader *photos.Uploader
		notifier notify.Notifier = notify.Nop{}
	)
	if fb != nil {
		if fb.Bucket != nil {
			uploader = photos.NewUploader(photos.NewBucketObjects(fb.Bucket, fb.BucketName), logger.Named("photos"))
		}
		if fb.Messaging != nil && cfg.NotifyTopic != "" {
			notifier = notify.NewFCMNotifier(fb.Messaging, cfg.NotifyTopic, logger.Named("notify"))
		}
	}

	// Entity caches
	cacheConfig := func(name string) cache.Config {
		return cache.Config{
			WriteTimeout: cfg.WriteTimeout,
			FetchTimeout: cfg.FetchTimeout,
			RetryDelay:   cfg.FetchRetryDelay,
			Logger:       logger.Named(name),
		}
	}
	noteCache := notes.NewCache(st, cacheConfig("notes"))
	commentCache := comments.NewCache(st, cacheConfig("comments"))
	sources := []syncstatus.Source{noteCache, commentCache}
	watched := []handlers.Watchable{noteCache, commentCache}

	noteOptions := notes.Options{
		Timezone: cfg.TripTimezone,
		Notifier: notifier,
		Logger:   logger.Named("notes"),
	}
	if uploader != nil {
		noteOptions.Photos = uploader
	}
	noteService := notes.NewService(noteCache, noteOptions)
	commentService := comments.NewService(commentCache, logger.Named("comments"))

	for _, c := range []interface{ Start(context.Context) error }{noteCache, commentCache} {
		if err := c.Start(ctx); err != nil {
			logger.Fatalw("Failed to start cache", "error", err)
		}
	}

	// Weather
	var (
		weatherSource *weather.Source
		weatherCache  *cache.Cache[journal.DayWeather]
		scheduler     = cron.New(cron.WithLocation(time.UTC))
	)
	if cfg.WeatherEnabled {
		weatherCache = weather.NewCache(st, cacheConfig("weather"))
		if err := weatherCache.Start(ctx); err != nil {
			logger.Fatalw("Failed to start weather cache", "error", err)
		}
		weatherSource = weather.NewSource(weatherCache, st,
			weather.NewClient(weather.ClientConfig{RequestsPerSecond: cfg.WeatherRPS}),
			weather.SourceConfig{Location: cfg.Location(), Logger: logger.Named("weather")})
		if _, err := weatherSource.Schedule(ctx, scheduler, cfg.WeatherCron); err != nil {
			logger.Fatalw("Invalid WEATHER_CRON", "spec", cfg.WeatherCron, "error", err)
		}
		sources = append(sources, weatherSource)
		watched = append(watched, weatherCache)
		go func() {
			if err := weatherSource.RefreshFromServer(ctx); err != nil {
				logger.Warnw("Initial weather refresh failed", "error", err)
			}
		}()
	}
	scheduler.Start()

	aggregator := syncstatus.NewAggregator(logger.Named("sync"), sources...)
	refocuser := syncstatus.NewRefocuser(ctx, aggregator, syncstatus.RefocusConfig{
		MinInterval: cfg.RefocusMinInterval,
		Debounce:    cfg.RefocusDebounce,
		Logger:      logger.Named("refocus"),
	})

	lim, err := middleware.NewLimiter(cfg.RateLimit, redisClient)
	if err != nil {
		logger.Fatalw("Invalid RATE_LIMIT", "error", err)
	}

	router := handlers.NewRouter(handlers.RouterConfig{
		Logger:         logger,
		AllowedOrigins: cfg.AllowedOrigins,
		Limiter:        lim,
		Sessions:       gate,
		Session:        handlers.NewSessionHandler(gate, logger),
		Notes:          handlers.NewNotesHandler(noteService, commentService, logger),
		Comments:       handlers.NewCommentsHandler(commentService, logger),
		Photos:         handlers.NewPhotosHandler(uploader, logger),
		Weather:        handlers.NewWeatherHandler(weatherSource),
		Sync:           handlers.NewSyncHandler(aggregator, refocuser, logger, watched...),
		Trip:           handlers.NewTripHandler(noteService, cfg.Location()),
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		logger.Infow("Server starting", "port", cfg.Port, "store", cfg.StoreBackend, "redis", cfg.Redis.Enabled)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalw("Failed to start server", "error", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Infow("Shutting down server...")

	// Give a 5 second timeout for graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorw("Server forced to shutdown", "error", err)
	}

	refocuser.Stop()
	<-scheduler.Stop().Done()
	stop()
	noteCache.Stop()
	commentCache.Stop()
	noteCache.Wait()
	commentCache.Wait()
	if weatherCache != nil {
		weatherCache.Stop()
		weatherCache.Wait()
	}

	logger.Infow("Server exited")
}
