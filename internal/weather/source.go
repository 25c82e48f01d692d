// Package weather keeps one weather record per trip day in the weather
// collection, fetched from Open-Meteo and mirrored through an Entity Cache.
package weather

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"io.winapps.triptracker/internal/cache"
	journal "io.winapps.triptracker/internal/models/journal"
	"io.winapps.triptracker/internal/store"
	"io.winapps.triptracker/internal/tripdates"
)

const (
	todayRefresh  = 6 * time.Hour
	futureRefresh = 12 * time.Hour
	fetchWorkers  = 4
)

// ShouldRefresh decides whether a stored record is due for a refetch.
// Archive data never changes. A day that slipped into the past while holding
// forecast data is refetched once from the archive.
func ShouldRefresh(w journal.DayWeather, today string, now time.Time) bool {
	if w.IsHistorical {
		return false
	}
	if w.Date < today {
		return true
	}
	age := now.Sub(w.FetchedAt)
	if w.Date == today {
		return age > todayRefresh
	}
	return age > futureRefresh
}

func Adapter() cache.JSONAdapter[journal.DayWeather] {
	return cache.JSONAdapter[journal.DayWeather]{
		GetID: func(w journal.DayWeather) string { return w.ID },
		SetID: func(w *journal.DayWeather, id string) { w.ID = id },
		Normalize: func(w *journal.DayWeather, doc store.Document) {
			if w.Date == "" {
				w.Date = doc.ID
			}
		},
	}
}

func NewCache(st store.Store, cfg cache.Config) *cache.Cache[journal.DayWeather] {
	cfg.Collection = store.Weather
	cfg.Order = store.Order{Field: "date", Direction: store.Asc}
	return cache.New[journal.DayWeather](st, Adapter(), cfg)
}

// Fetcher loads one day of weather. *Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, date, today string) (journal.DayWeather, error)
}

type SourceConfig struct {
	// Location decides what "today" is.
	Location *time.Location
	Logger   *zap.SugaredLogger
}

// Source is the weather data source shown next to the journal.
type Source struct {
	cache   *cache.Cache[journal.DayWeather]
	store   store.Store
	fetcher Fetcher
	loc     *time.Location
	logger  *zap.SugaredLogger
	now     func() time.Time

	// mu serializes refreshes so two schedules never fetch the same day.
	mu sync.Mutex
}

func NewSource(c *cache.Cache[journal.DayWeather], st store.Store, fetcher Fetcher, cfg SourceConfig) *Source {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	return &Source{
		cache:   c,
		store:   st,
		fetcher: fetcher,
		loc:     cfg.Location,
		logger:  cfg.Logger.With("source", store.Weather),
		now:     time.Now,
	}
}

func (s *Source) Name() string { return store.Weather }

func (s *Source) SyncState() cache.SyncState { return s.cache.SyncState() }

func (s *Source) Cache() *cache.Cache[journal.DayWeather] { return s.cache }

func (s *Source) Get(date string) (journal.DayWeather, bool) { return s.cache.Get(date) }

func (s *Source) All() []journal.DayWeather { return s.cache.Items() }

// Due lists the trip days whose weather is missing or stale.
func (s *Source) Due(now time.Time) []string {
	today := tripdates.Format(now.In(s.loc))
	var due []string
	for _, date := range tripdates.All() {
		if !Trackable(date) {
			continue
		}
		w, ok := s.cache.Get(date)
		if !ok || ShouldRefresh(w, today, now) {
			due = append(due, date)
		}
	}
	return due
}

// RefreshFromServer fetches due days from Open-Meteo, writes them to the
// store, then forces the cache to reread the collection. Individual fetch
// failures are logged and do not fail the refresh.
func (s *Source) RefreshFromServer(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	today := tripdates.Format(now.In(s.loc))
	due := s.Due(now)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchWorkers)
	var (
		failMu sync.Mutex
		failed int
	)
	for _, date := range due {
		g.Go(func() error {
			if err := s.refreshDay(gctx, date, today); err != nil {
				s.logger.Warnw("weather fetch failed", "date", date, "error", err)
				failMu.Lock()
				failed++
				failMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(due) > 0 {
		s.logger.Infow("weather refreshed", "due", len(due), "failed", failed)
	}
	return s.cache.RefreshFromServer(ctx)
}

func (s *Source) refreshDay(ctx context.Context, date, today string) error {
	w, err := s.fetcher.Fetch(ctx, date, today)
	if errors.Is(err, ErrNoData) {
		return nil
	}
	if err != nil {
		return err
	}
	fields, err := store.Fields(w)
	if err != nil {
		return fmt.Errorf("failed to encode weather: %w", err)
	}
	delete(fields, "id")
	return s.store.Set(ctx, store.Weather, date, fields)
}

// Schedule registers a periodic refresh on c. Refreshes run under ctx.
func (s *Source) Schedule(ctx context.Context, c *cron.Cron, spec string) (cron.EntryID, error) {
	return c.AddFunc(spec, func() {
		if err := s.RefreshFromServer(ctx); err != nil {
			s.logger.Warnw("scheduled weather refresh failed", "error", err)
		}
	})
}
