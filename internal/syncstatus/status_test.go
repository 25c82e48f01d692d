package syncstatus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"io.winapps.triptracker/internal/cache"
)

var t0 = time.Date(2026, 1, 31, 12, 0, 0, 0, time.UTC)

type fakeSource struct {
	name string

	mu      sync.Mutex
	state   cache.SyncState
	calls   int
	refresh func(*fakeSource) error
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) SyncState() cache.SyncState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSource) RefreshFromServer(context.Context) error {
	f.mu.Lock()
	f.calls++
	fn := f.refresh
	f.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(f)
}

func (f *fakeSource) setState(s cache.SyncState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = s
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newAggregator(sources ...*fakeSource) *Aggregator {
	srcs := make([]Source, len(sources))
	for i, s := range sources {
		srcs[i] = s
	}
	a := NewAggregator(nil, srcs...)
	a.now = func() time.Time { return t0 }
	return a
}

func TestStatus_Rules(t *testing.T) {
	synced := cache.SyncState{Phase: cache.Live, LastSynced: t0.Add(-5 * time.Minute)}
	cachedNever := cache.SyncState{Phase: cache.Live, FromCache: true}
	failedNever := cache.SyncState{Phase: cache.Loading, RefreshError: "unavailable"}

	tests := []struct {
		name   string
		states []cache.SyncState
		level  Level
		label  string
	}{
		{"error and never synced", []cache.SyncState{failedNever, cachedNever}, Failed, "Refresh failed"},
		{"error but synced before", []cache.SyncState{failedNever, synced}, Degraded, "Offline: 5m ago"},
		{"never synced, cached data", []cache.SyncState{cachedNever, {Phase: cache.Loading}}, Connecting, "Connecting..."},
		{"pending writes", []cache.SyncState{synced, {Phase: cache.Live, LastSynced: t0, HasPendingWrites: true}}, Syncing, "Syncing changes..."},
		{"stale cache", []cache.SyncState{synced, {Phase: cache.Live, LastSynced: t0, FromCache: true}}, Cached, "Cached: 5m ago"},
		{"all synced", []cache.SyncState{synced, synced}, Synced, "Synced: 5m ago"},
		{"subscription error counts", []cache.SyncState{{SubscriptionError: "stream reset"}}, Failed, "Refresh failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sources []*fakeSource
			for i, s := range tt.states {
				sources = append(sources, &fakeSource{name: string(rune('a' + i)), state: s})
			}
			got := newAggregator(sources...).Status()
			assert.Equal(t, tt.level, got.Level)
			assert.Equal(t, tt.label, got.Label)
			assert.Len(t, got.Sources, len(tt.states))
		})
	}
}

func TestStatus_ReportsOldestSync(t *testing.T) {
	t1 := t0.Add(-10 * time.Minute)
	t2 := t0.Add(-1 * time.Minute)
	a := newAggregator(
		&fakeSource{name: "notes", state: cache.SyncState{LastSynced: t2}},
		&fakeSource{name: "comments", state: cache.SyncState{LastSynced: t1}},
		&fakeSource{name: "weather"},
	)

	got := a.Status()
	assert.Equal(t, t1, got.LastSynced)
	assert.Equal(t, Synced, got.Level)
}

func TestStatus_FirstErrorIsNamed(t *testing.T) {
	a := newAggregator(
		&fakeSource{name: "notes", state: cache.SyncState{LastSynced: t0}},
		&fakeSource{name: "comments", state: cache.SyncState{RefreshError: "deadline exceeded"}},
	)
	assert.Equal(t, "comments: deadline exceeded", a.Status().Error)
}

func TestRefreshAll_OneFailureDoesNotStopOthers(t *testing.T) {
	boom := errors.New("boom")
	bad := &fakeSource{name: "notes", refresh: func(*fakeSource) error { return boom }}
	good := &fakeSource{name: "comments"}
	a := newAggregator(bad, good)

	err := a.RefreshAll(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, bad.callCount())
	assert.Equal(t, 1, good.callCount())
	assert.False(t, a.Status().Refreshing)
}

func TestRefreshAll_RejectsOverlap(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	slow := &fakeSource{name: "notes", refresh: func(*fakeSource) error {
		close(started)
		<-release
		return nil
	}}
	a := newAggregator(slow)

	done := make(chan error, 1)
	go func() { done <- a.RefreshAll(context.Background()) }()
	<-started

	assert.True(t, a.Status().Refreshing)
	assert.ErrorIs(t, a.RefreshAll(context.Background()), ErrRefreshInProgress)

	close(release)
	require.NoError(t, <-done)
}

func TestTimeAgo(t *testing.T) {
	assert.Equal(t, "Never", TimeAgo(t0, time.Time{}))
	assert.Equal(t, "Just now", TimeAgo(t0, t0.Add(-9*time.Second)))
	assert.Equal(t, "42s ago", TimeAgo(t0, t0.Add(-42*time.Second)))
	assert.Equal(t, "5m ago", TimeAgo(t0, t0.Add(-5*time.Minute-10*time.Second)))
	assert.Equal(t, "3h ago", TimeAgo(t0, t0.Add(-3*time.Hour-59*time.Minute)))
}
