// Package syncstatus folds the sync state of every data source into the one
// indicator clients show, and drives manual and refocus refreshes.
package syncstatus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"io.winapps.triptracker/internal/cache"
)

var ErrRefreshInProgress = errors.New("a manual refresh is already running")

// Source is anything with a sync state that can be forced to refetch.
type Source interface {
	Name() string
	SyncState() cache.SyncState
	RefreshFromServer(ctx context.Context) error
}

type Level string

const (
	Failed     Level = "failed"
	Degraded   Level = "degraded"
	Connecting Level = "connecting"
	Syncing    Level = "syncing"
	Cached     Level = "cached"
	Synced     Level = "synced"
)

type SourceStatus struct {
	Name  string          `json:"name"`
	State cache.SyncState `json:"state"`
}

type Status struct {
	Level      Level          `json:"level"`
	Label      string         `json:"label"`
	Error      string         `json:"error,omitempty"`
	Refreshing bool           `json:"refreshing"`
	LastSynced time.Time      `json:"lastSynced"`
	Sources    []SourceStatus `json:"sources"`
}

type Aggregator struct {
	sources []Source
	logger  *zap.SugaredLogger
	now     func() time.Time

	mu     sync.Mutex
	manual bool
}

func NewAggregator(logger *zap.SugaredLogger, sources ...Source) *Aggregator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Aggregator{sources: sources, logger: logger, now: time.Now}
}

func errorText(s cache.SyncState) string {
	if s.RefreshError != "" {
		return s.RefreshError
	}
	return s.SubscriptionError
}

// Status evaluates the sources. The first matching rule wins:
//  1. an error and nothing ever synced: Failed
//  2. an error but something synced before: Degraded
//  3. nothing synced and some source serves cached data: Connecting
//  4. unconfirmed local writes: Syncing
//  5. some source serves cached data: Cached
//  6. otherwise: Synced
func (a *Aggregator) Status() Status {
	a.mu.Lock()
	st := Status{Refreshing: a.manual}
	a.mu.Unlock()

	var anySynced, anyCache, anyPending bool
	for _, src := range a.sources {
		s := src.SyncState()
		st.Sources = append(st.Sources, SourceStatus{Name: src.Name(), State: s})

		if st.Error == "" {
			if text := errorText(s); text != "" {
				st.Error = fmt.Sprintf("%s: %s", src.Name(), text)
			}
		}
		if s.HasSynced() {
			anySynced = true
			if st.LastSynced.IsZero() || s.LastSynced.Before(st.LastSynced) {
				st.LastSynced = s.LastSynced
			}
		}
		anyCache = anyCache || s.FromCache
		anyPending = anyPending || s.HasPendingWrites
		st.Refreshing = st.Refreshing || s.Refreshing
	}

	ago := TimeAgo(a.now(), st.LastSynced)
	switch {
	case st.Error != "" && !anySynced:
		st.Level, st.Label = Failed, "Refresh failed"
	case st.Error != "":
		st.Level, st.Label = Degraded, "Offline: "+ago
	case !anySynced && anyCache:
		st.Level, st.Label = Connecting, "Connecting..."
	case anyPending:
		st.Level, st.Label = Syncing, "Syncing changes..."
	case anyCache:
		st.Level, st.Label = Cached, "Cached: "+ago
	default:
		st.Level, st.Label = Synced, "Synced: "+ago
	}
	return st
}

// RefreshAll refreshes every source concurrently and waits for all of them.
// A failing source does not cancel the others; their errors are joined.
func (a *Aggregator) RefreshAll(ctx context.Context) error {
	a.mu.Lock()
	if a.manual {
		a.mu.Unlock()
		return ErrRefreshInProgress
	}
	a.manual = true
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.manual = false
		a.mu.Unlock()
	}()

	errs := make([]error, len(a.sources))
	var g errgroup.Group
	for i, src := range a.sources {
		g.Go(func() error {
			if err := src.RefreshFromServer(ctx); err != nil {
				a.logger.Warnw("source refresh failed", "source", src.Name(), "error", err)
				errs[i] = err
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// TimeAgo renders how long ago t was, the way the status bar shows it.
func TimeAgo(now, t time.Time) string {
	if t.IsZero() {
		return "Never"
	}
	seconds := int(now.Sub(t) / time.Second)
	switch {
	case seconds < 10:
		return "Just now"
	case seconds < 60:
		return fmt.Sprintf("%ds ago", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%dm ago", seconds/60)
	default:
		return fmt.Sprintf("%dh ago", seconds/3600)
	}
}
