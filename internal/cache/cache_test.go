package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"io.winapps.triptracker/internal/store"
)

type entry struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

func entryAdapter() JSONAdapter[entry] {
	return JSONAdapter[entry]{
		GetID:        func(e entry) string { return e.ID },
		SetID:        func(e *entry, id string) { e.ID = id },
		SetCreatedAt: func(e *entry, at time.Time) { e.CreatedAt = at },
	}
}

func newTestCache(st store.Store, dir store.Direction) *Cache[entry] {
	return New[entry](st, entryAdapter(), Config{
		Collection:   store.Notes,
		Order:        store.ByCreatedAt(dir),
		WriteTimeout: 50 * time.Millisecond,
		FetchTimeout: time.Second,
		RetryDelay:   time.Millisecond,

		ResubscribeDelay: 10 * time.Millisecond,
	})
}

func doc(id, text string) store.Document {
	return store.Document{ID: id, Data: map[string]any{"text": text}}
}

func texts(items []entry) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Text)
	}
	return out
}

// fakeStore embeds the interface so tests only override what they need.
type fakeStore struct {
	store.Store

	mu         sync.Mutex
	fetchCalls int
	fetch      func(ctx context.Context, call int) ([]store.Document, error)
	subCalls   int
	subscribe  func(ctx context.Context, call int) (store.Subscription, error)
	create     func(ctx context.Context, fields map[string]any) (string, error)
	update     func(ctx context.Context, id string, fields map[string]any) error
}

func (f *fakeStore) Subscribe(ctx context.Context, _ string, _ store.Order) (store.Subscription, error) {
	f.mu.Lock()
	f.subCalls++
	call := f.subCalls
	f.mu.Unlock()
	return f.subscribe(ctx, call)
}

func (f *fakeStore) subscribeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subCalls
}

// scriptedSub replays fixed snapshots. An open one stays open until Close;
// a closed one ends after the last snapshot, like a failed listener.
type scriptedSub struct {
	ch   chan store.Snapshot
	open bool
	once sync.Once
}

func newScriptedSub(open bool, snaps ...store.Snapshot) *scriptedSub {
	s := &scriptedSub{ch: make(chan store.Snapshot, len(snaps)), open: open}
	for _, snap := range snaps {
		s.ch <- snap
	}
	if !open {
		close(s.ch)
	}
	return s
}

func (s *scriptedSub) Snapshots() <-chan store.Snapshot { return s.ch }

func (s *scriptedSub) Close() {
	s.once.Do(func() {
		if s.open {
			close(s.ch)
		}
	})
}

func (f *fakeStore) FetchFromServer(ctx context.Context, _ string, _ store.Order) ([]store.Document, error) {
	f.mu.Lock()
	f.fetchCalls++
	call := f.fetchCalls
	f.mu.Unlock()
	return f.fetch(ctx, call)
}

func (f *fakeStore) Create(ctx context.Context, _ string, fields map[string]any) (string, error) {
	return f.create(ctx, fields)
}

func (f *fakeStore) Update(ctx context.Context, _ string, id string, fields map[string]any) error {
	return f.update(ctx, id, fields)
}

func (f *fakeStore) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls
}

func TestCache_AddIsVisibleBeforeStoreAnswers(t *testing.T) {
	called := make(chan struct{})
	release := make(chan struct{})
	fs := &fakeStore{create: func(ctx context.Context, fields map[string]any) (string, error) {
		close(called)
		<-release
		return "server-1", nil
	}}
	c := newTestCache(fs, store.Desc)

	type addResult struct {
		item   entry
		result WriteResult
	}
	done := make(chan addResult, 1)
	go func() {
		item, res, err := c.Add(context.Background(), entry{Text: "hello"})
		assert.NoError(t, err)
		done <- addResult{item, res}
	}()

	<-called
	items := c.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "hello", items[0].Text)
	assert.Contains(t, items[0].ID, TempIDPrefix)
	assert.False(t, items[0].CreatedAt.IsZero())
	assert.True(t, c.State().HasPendingWrites)

	got := <-done
	assert.Equal(t, WritePending, got.result)
	assert.Equal(t, items[0].ID, got.item.ID)

	close(release)
	c.Wait()

	items = c.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "server-1", items[0].ID)
	assert.False(t, c.State().HasPendingWrites)
}

func TestCache_AddReplacesTempIDWithoutDuplicate(t *testing.T) {
	ms := store.NewMemoryStore()
	c := newTestCache(ms, store.Desc)
	c.cfg.WriteTimeout = time.Second
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	_, res, err := c.Add(context.Background(), entry{Text: "first"})
	require.NoError(t, err)
	assert.Equal(t, WriteConfirmed, res)

	docs, err := ms.FetchFromServer(context.Background(), store.Notes, store.ByCreatedAt(store.Desc))
	require.NoError(t, err)
	require.Len(t, docs, 1)

	require.Eventually(t, func() bool {
		items := c.Items()
		return len(items) == 1 && items[0].ID == docs[0].ID
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, Live, c.State().Phase)
}

func TestCache_FailedCreateIsDroppedOnNextServerPush(t *testing.T) {
	fs := &fakeStore{create: func(context.Context, map[string]any) (string, error) {
		return "", errors.New("permission denied")
	}}
	c := newTestCache(fs, store.Asc)
	c.apply(store.Snapshot{Docs: []store.Document{doc("a", "kept")}})

	_, res, err := c.Add(context.Background(), entry{Text: "rejected"})
	require.NoError(t, err)
	assert.Equal(t, WriteFailed, res)
	c.Wait()

	state := c.State()
	assert.Contains(t, state.LastWriteError, "permission denied")
	assert.Equal(t, []string{"kept", "rejected"}, texts(c.Items()))

	c.apply(store.Snapshot{Docs: []store.Document{doc("a", "kept")}})
	assert.Equal(t, []string{"kept"}, texts(c.Items()))
}

func TestCache_PendingCreateSurvivesPushesInOrder(t *testing.T) {
	release := make(chan struct{})
	fs := &fakeStore{create: func(ctx context.Context, fields map[string]any) (string, error) {
		<-release
		return "", errors.New("offline")
	}}
	c := newTestCache(fs, store.Desc)
	c.cfg.WriteTimeout = time.Millisecond
	c.apply(store.Snapshot{Docs: []store.Document{doc("a", "old")}})

	_, _, err := c.Add(context.Background(), entry{Text: "one"})
	require.NoError(t, err)
	_, _, err = c.Add(context.Background(), entry{Text: "two"})
	require.NoError(t, err)
	assert.Equal(t, []string{"two", "one", "old"}, texts(c.Items()))

	c.apply(store.Snapshot{Docs: []store.Document{doc("b", "new"), doc("a", "old")}})
	assert.Equal(t, []string{"two", "one", "new", "old"}, texts(c.Items()))

	close(release)
	c.Wait()
}

func TestCache_UpdateAndDeleteGuards(t *testing.T) {
	release := make(chan struct{})
	fs := &fakeStore{create: func(ctx context.Context, fields map[string]any) (string, error) {
		<-release
		return "x", nil
	}}
	c := newTestCache(fs, store.Asc)
	c.cfg.WriteTimeout = time.Millisecond

	_, err := c.Update(context.Background(), "missing", Patch{"text": "x"})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = c.Delete(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	item, _, err := c.Add(context.Background(), entry{Text: "draft"})
	require.NoError(t, err)
	_, err = c.Update(context.Background(), item.ID, Patch{"text": "edited"})
	assert.ErrorIs(t, err, ErrPendingCreate)
	_, err = c.Delete(context.Background(), item.ID)
	assert.ErrorIs(t, err, ErrPendingCreate)

	close(release)
	c.Wait()
}

func TestCache_UpdateAppliesLocallyFirst(t *testing.T) {
	var gotFields map[string]any
	fs := &fakeStore{update: func(ctx context.Context, id string, fields map[string]any) error {
		gotFields = fields
		return nil
	}}
	c := newTestCache(fs, store.Asc)
	c.apply(store.Snapshot{Docs: []store.Document{doc("a", "before")}})

	res, err := c.Update(context.Background(), "a", Patch{"text": "after"})
	require.NoError(t, err)
	assert.Equal(t, WriteConfirmed, res)

	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "after", got.Text)
	assert.Equal(t, map[string]any{"text": "after"}, gotFields)
}

func TestCache_GateDiscardsCachePushesUntilServerConfirms(t *testing.T) {
	fs := &fakeStore{fetch: func(context.Context, int) ([]store.Document, error) {
		return []store.Document{doc("a", "fresh"), doc("b", "fresh")}, nil
	}}
	c := newTestCache(fs, store.Asc)

	c.apply(store.Snapshot{Docs: []store.Document{doc("a", "stale")}, FromCache: true})
	assert.True(t, c.State().FromCache)
	assert.False(t, c.State().HasSynced())

	require.NoError(t, c.RefreshFromServer(context.Background()))
	state := c.State()
	assert.True(t, state.Gated)
	assert.False(t, state.FromCache)
	assert.True(t, state.HasSynced())
	assert.Equal(t, []string{"fresh", "fresh"}, texts(c.Items()))

	c.apply(store.Snapshot{Docs: []store.Document{doc("a", "stale")}, FromCache: true})
	assert.Equal(t, []string{"fresh", "fresh"}, texts(c.Items()), "stale push must be ignored")

	c.apply(store.Snapshot{Docs: []store.Document{doc("a", "server")}})
	assert.False(t, c.State().Gated)
	assert.Equal(t, []string{"server"}, texts(c.Items()))

	c.apply(store.Snapshot{Docs: []store.Document{doc("a", "cached-again")}, FromCache: true})
	assert.Equal(t, []string{"cached-again"}, texts(c.Items()))
	assert.True(t, c.State().FromCache)
}

func TestCache_RefreshRetriesOnce(t *testing.T) {
	fs := &fakeStore{fetch: func(_ context.Context, call int) ([]store.Document, error) {
		if call == 1 {
			return nil, errors.New("unavailable")
		}
		return []store.Document{doc("a", "ok")}, nil
	}}
	c := newTestCache(fs, store.Asc)

	require.NoError(t, c.RefreshFromServer(context.Background()))
	assert.Equal(t, 2, fs.calls())
	assert.Empty(t, c.State().RefreshError)
	assert.Equal(t, []string{"ok"}, texts(c.Items()))
}

func TestCache_RefreshFailureKeepsDataAndReleasesGate(t *testing.T) {
	fs := &fakeStore{fetch: func(context.Context, int) ([]store.Document, error) {
		return nil, errors.New("unavailable")
	}}
	c := newTestCache(fs, store.Asc)
	c.apply(store.Snapshot{Docs: []store.Document{doc("a", "cached")}, FromCache: true})

	err := c.RefreshFromServer(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, fs.calls())

	state := c.State()
	assert.False(t, state.Refreshing)
	assert.False(t, state.Gated)
	assert.Contains(t, state.RefreshError, "unavailable")
	assert.Equal(t, []string{"cached"}, texts(c.Items()))

	c.apply(store.Snapshot{Docs: []store.Document{doc("a", "cached-later")}, FromCache: true})
	assert.Equal(t, []string{"cached-later"}, texts(c.Items()))
	assert.True(t, c.State().FromCache)
}

func TestCache_RefreshTimesOut(t *testing.T) {
	fs := &fakeStore{fetch: func(ctx context.Context, _ int) ([]store.Document, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	c := newTestCache(fs, store.Asc)
	c.cfg.FetchTimeout = 10 * time.Millisecond

	err := c.RefreshFromServer(context.Background())
	assert.ErrorIs(t, err, ErrFetchTimeout)
	assert.Equal(t, 2, fs.calls())
}

func TestCache_ConcurrentRefreshIsRejected(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	fs := &fakeStore{fetch: func(context.Context, int) ([]store.Document, error) {
		close(started)
		<-release
		return nil, nil
	}}
	c := newTestCache(fs, store.Asc)

	done := make(chan error, 1)
	go func() { done <- c.RefreshFromServer(context.Background()) }()
	<-started

	assert.True(t, c.State().Refreshing)
	assert.ErrorIs(t, c.RefreshFromServer(context.Background()), ErrRefreshInProgress)

	close(release)
	require.NoError(t, <-done)
}

func TestCache_SubscriptionErrorKeepsData(t *testing.T) {
	c := newTestCache(&fakeStore{}, store.Asc)
	c.apply(store.Snapshot{Docs: []store.Document{doc("a", "kept")}})

	c.apply(store.Snapshot{Err: errors.New("stream reset")})
	assert.Equal(t, "stream reset", c.State().SubscriptionError)
	assert.Equal(t, []string{"kept"}, texts(c.Items()))

	c.apply(store.Snapshot{Docs: []store.Document{doc("a", "kept")}})
	assert.Empty(t, c.State().SubscriptionError)
}

func TestCache_ReopensEndedSubscription(t *testing.T) {
	fs := &fakeStore{subscribe: func(_ context.Context, call int) (store.Subscription, error) {
		if call == 1 {
			return newScriptedSub(false,
				store.Snapshot{Docs: []store.Document{doc("a", "first")}},
				store.Snapshot{Err: errors.New("listener terminated")},
			), nil
		}
		return newScriptedSub(true, store.Snapshot{Docs: []store.Document{doc("a", "second")}}), nil
	}}
	c := newTestCache(fs, store.Asc)

	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	require.Eventually(t, func() bool {
		items := c.Items()
		return len(items) == 1 && items[0].Text == "second"
	}, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, c.State().SubscriptionError)
	assert.Equal(t, 2, fs.subscribeCalls())
}

func TestCache_StopWhileResubscribing(t *testing.T) {
	fs := &fakeStore{subscribe: func(_ context.Context, call int) (store.Subscription, error) {
		if call == 1 {
			return newScriptedSub(false), nil
		}
		return nil, errors.New("unavailable")
	}}
	c := newTestCache(fs, store.Asc)
	require.NoError(t, c.Start(context.Background()))

	require.Eventually(t, func() bool {
		return c.State().SubscriptionError == "unavailable"
	}, 2*time.Second, 5*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		c.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return while the cache was resubscribing")
	}
}

func TestCache_StartTwiceAndOnChange(t *testing.T) {
	ms := store.NewMemoryStore()
	c := newTestCache(ms, store.Asc)

	changes := make(chan struct{}, 16)
	unsubscribe := c.OnChange(func() {
		select {
		case changes <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()
	assert.ErrorIs(t, c.Start(context.Background()), ErrAlreadyStarted)

	require.Eventually(t, func() bool { return c.State().Phase == Live }, 2*time.Second, 10*time.Millisecond)
	assert.NotEmpty(t, changes)
}
