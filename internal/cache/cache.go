// Package cache keeps the in-memory, reconciled mirror of one remote
// collection. Three inputs compete for the list: the real-time subscription,
// optimistic local mutations and forced server refreshes. All of them go
// through the same mutex-guarded setter; subscription pushes are applied by a
// single goroutine in delivery order.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"io.winapps.triptracker/internal/store"
)

// Config controls one cache instance. Zero durations fall back to defaults.
type Config struct {
	Collection string
	Order      store.Order

	// WriteTimeout is how long a caller waits for a write acknowledgement
	// before the write is reported as pending.
	WriteTimeout time.Duration
	// WriteDeadline bounds the write itself after the caller stopped waiting.
	WriteDeadline time.Duration
	// FetchTimeout bounds each forced read attempt.
	FetchTimeout time.Duration
	// RetryDelay is the pause before the single retry of a forced read.
	RetryDelay time.Duration
	// ResubscribeDelay is the pause before reopening a subscription the
	// store ended on its own.
	ResubscribeDelay time.Duration

	Logger *zap.SugaredLogger
	Now    func() time.Time
}

const (
	DefaultWriteTimeout  = 10 * time.Second
	DefaultWriteDeadline = 2 * time.Minute
	DefaultFetchTimeout  = 10 * time.Second
	DefaultRetryDelay    = 2 * time.Second
	DefaultResubscribe   = 5 * time.Second
)

func (c Config) withDefaults() Config {
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.WriteDeadline <= 0 {
		c.WriteDeadline = DefaultWriteDeadline
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	if c.ResubscribeDelay <= 0 {
		c.ResubscribeDelay = DefaultResubscribe
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop().Sugar()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Cache is the Entity Cache for one collection.
type Cache[T any] struct {
	store   store.Store
	adapter Adapter[T]
	cfg     Config
	logger  *zap.SugaredLogger

	mu    sync.Mutex
	items []T
	state SyncState
	// gate discards cache-origin pushes after a forced refresh until the
	// first server-confirmed push arrives.
	gate bool
	// pending holds temp ids of creates the store has not confirmed.
	pending map[string]struct{}
	// inflight counts writes of any kind still running.
	inflight      int
	remotePending bool

	listeners    map[int]func()
	nextListener int

	sub      store.Subscription
	cancel   context.CancelFunc
	consumed chan struct{}
	writes   sync.WaitGroup
}

// New builds a cache. Start must be called to open the subscription.
func New[T any](st store.Store, adapter Adapter[T], cfg Config) *Cache[T] {
	cfg = cfg.withDefaults()
	return &Cache[T]{
		store:     st,
		adapter:   adapter,
		cfg:       cfg,
		logger:    cfg.Logger.With("collection", cfg.Collection),
		pending:   map[string]struct{}{},
		listeners: map[int]func(){},
	}
}

// Name is the collection this cache mirrors.
func (c *Cache[T]) Name() string { return c.cfg.Collection }

// Start opens the real-time subscription and applies its pushes until Stop.
// A subscription the store ends on its own is reopened after
// ResubscribeDelay, so live pushes resume without a restart.
func (c *Cache[T]) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state.Phase != Uninitialized {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.state.Phase = Loading
	c.mu.Unlock()
	c.changed()

	runCtx, cancel := context.WithCancel(ctx)
	sub, err := c.store.Subscribe(runCtx, c.cfg.Collection, c.cfg.Order)
	if err != nil {
		cancel()
		c.subscriptionFailed(err)
		return fmt.Errorf("failed to subscribe to %s: %w", c.cfg.Collection, err)
	}

	c.mu.Lock()
	c.sub = sub
	c.cancel = cancel
	c.consumed = make(chan struct{})
	c.mu.Unlock()

	go c.consume(runCtx, sub)
	return nil
}

// consume applies pushes in delivery order and reopens the subscription
// whenever it ends before ctx is cancelled.
func (c *Cache[T]) consume(ctx context.Context, sub store.Subscription) {
	defer close(c.consumed)

	for {
		for snap := range sub.Snapshots() {
			c.apply(snap)
		}
		sub.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.cfg.ResubscribeDelay):
			}

			c.logger.Infow("resubscribing")
			next, err := c.store.Subscribe(ctx, c.cfg.Collection, c.cfg.Order)
			if err != nil {
				c.subscriptionFailed(err)
				continue
			}
			sub = next
			break
		}

		c.mu.Lock()
		c.sub = sub
		c.mu.Unlock()
		if ctx.Err() != nil {
			sub.Close()
			return
		}
	}
}

func (c *Cache[T]) subscriptionFailed(err error) {
	c.mu.Lock()
	c.state.SubscriptionError = err.Error()
	c.mu.Unlock()
	c.logger.Warnw("failed to subscribe", "error", err)
	c.changed()
}

// Stop closes the subscription and waits for the last push to be applied.
// Writes already handed to the store keep running; see Wait.
func (c *Cache[T]) Stop() {
	c.mu.Lock()
	sub, cancel, consumed := c.sub, c.cancel, c.consumed
	c.sub, c.cancel = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	sub.Close()
	<-consumed
}

// Wait blocks until every background write has finished.
func (c *Cache[T]) Wait() {
	c.writes.Wait()
}

// OnChange registers fn to run after every state or list change. The returned
// func unregisters it.
func (c *Cache[T]) OnChange(fn func()) func() {
	c.mu.Lock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

func (c *Cache[T]) changed() {
	c.mu.Lock()
	fns := make([]func(), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// apply reconciles one subscription push with the local state.
func (c *Cache[T]) apply(snap store.Snapshot) {
	if snap.Err != nil {
		c.mu.Lock()
		c.state.SubscriptionError = snap.Err.Error()
		c.mu.Unlock()
		c.logger.Warnw("subscription error", "error", snap.Err)
		c.changed()
		return
	}

	c.mu.Lock()
	if snap.FromCache && c.gate {
		c.mu.Unlock()
		c.logger.Debugw("discarded cache-origin push after forced refresh", "docs", len(snap.Docs))
		return
	}

	items := c.decodeAll(snap.Docs)
	if !snap.FromCache {
		c.gate = false
		c.state.Gated = false
		c.state.LastSynced = c.cfg.Now()
		c.state.RefreshError = ""
		c.state.SubscriptionError = ""
	}
	c.items = c.mergePendingLocked(items)
	c.state.Phase = Live
	c.state.FromCache = snap.FromCache
	c.remotePending = snap.HasPendingWrites
	c.updatePendingLocked()
	c.mu.Unlock()

	c.changed()
}

func (c *Cache[T]) decodeAll(docs []store.Document) []T {
	items := make([]T, 0, len(docs))
	for _, doc := range docs {
		item, err := c.adapter.Decode(doc)
		if err != nil {
			c.logger.Warnw("skipping undecodable document", "id", doc.ID, "error", err)
			continue
		}
		items = append(items, item)
	}
	return items
}

// mergePendingLocked keeps optimistic creates visible across list
// replacements until the store confirms or rejects them.
func (c *Cache[T]) mergePendingLocked(fresh []T) []T {
	if len(c.pending) == 0 {
		return fresh
	}
	present := make(map[string]struct{}, len(fresh))
	for _, item := range fresh {
		present[c.adapter.ID(item)] = struct{}{}
	}
	var kept []T
	for _, item := range c.items {
		id := c.adapter.ID(item)
		if _, ok := c.pending[id]; !ok {
			continue
		}
		if _, ok := present[id]; ok {
			continue
		}
		kept = append(kept, item)
	}
	if c.cfg.Order.Direction == store.Desc {
		return append(kept, fresh...)
	}
	return append(fresh, kept...)
}

// insertLocked places a new item where the store ordering would put it:
// newest first for descending collections, last otherwise.
func (c *Cache[T]) insertLocked(list []T, item T) []T {
	if c.cfg.Order.Direction == store.Desc {
		return append([]T{item}, list...)
	}
	return append(list, item)
}

func (c *Cache[T]) updatePendingLocked() {
	c.state.HasPendingWrites = c.remotePending || c.inflight > 0 || len(c.pending) > 0
}

func (c *Cache[T]) indexLocked(id string) int {
	for i, item := range c.items {
		if c.adapter.ID(item) == id {
			return i
		}
	}
	return -1
}

// Add inserts item immediately under a temporary id, then creates it in the
// store. The returned item carries the temporary id.
func (c *Cache[T]) Add(ctx context.Context, item T) (T, WriteResult, error) {
	tempID := TempIDPrefix + uuid.NewString()
	item = c.adapter.WithCreatedAt(c.adapter.WithID(item, tempID), c.cfg.Now())

	fields, err := c.adapter.Encode(item)
	if err != nil {
		return item, WriteFailed, err
	}

	c.mu.Lock()
	c.items = c.insertLocked(c.items, item)
	c.pending[tempID] = struct{}{}
	c.updatePendingLocked()
	c.mu.Unlock()
	c.changed()

	result := c.write(ctx, "create", tempID, func(wctx context.Context) error {
		id, err := c.store.Create(wctx, c.cfg.Collection, fields)
		if err != nil {
			c.settleCreate(tempID, "")
			return err
		}
		c.settleCreate(tempID, id)
		return nil
	})
	return item, result, nil
}

// settleCreate swaps the temporary id for the store id. With an empty id the
// create failed: the entity stays until the next server-confirmed list
// replaces it.
func (c *Cache[T]) settleCreate(tempID, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.pending, tempID)
	idx := c.indexLocked(tempID)
	if idx < 0 || id == "" {
		return
	}
	if c.indexLocked(id) >= 0 {
		// A push already delivered the confirmed document.
		c.items = append(c.items[:idx], c.items[idx+1:]...)
		return
	}
	c.items[idx] = c.adapter.WithID(c.items[idx], id)
}

// Update applies patch to the in-memory copy, then to the store.
func (c *Cache[T]) Update(ctx context.Context, id string, patch Patch) (WriteResult, error) {
	c.mu.Lock()
	if _, ok := c.pending[id]; ok {
		c.mu.Unlock()
		return WriteFailed, ErrPendingCreate
	}
	idx := c.indexLocked(id)
	if idx < 0 {
		c.mu.Unlock()
		return WriteFailed, ErrNotFound
	}
	updated, err := c.adapter.Apply(c.items[idx], patch)
	if err != nil {
		c.mu.Unlock()
		return WriteFailed, err
	}
	c.items[idx] = updated
	c.mu.Unlock()
	c.changed()

	fields := make(map[string]any, len(patch))
	for k, v := range patch {
		fields[k] = v
	}
	return c.write(ctx, "update", id, func(wctx context.Context) error {
		return c.store.Update(wctx, c.cfg.Collection, id, fields)
	}), nil
}

// Delete removes the entity from the list, then from the store. A failed
// remote delete does not bring it back until the next server-confirmed sync.
func (c *Cache[T]) Delete(ctx context.Context, id string) (WriteResult, error) {
	c.mu.Lock()
	if _, ok := c.pending[id]; ok {
		c.mu.Unlock()
		return WriteFailed, ErrPendingCreate
	}
	idx := c.indexLocked(id)
	if idx < 0 {
		c.mu.Unlock()
		return WriteFailed, ErrNotFound
	}
	c.items = append(c.items[:idx:idx], c.items[idx+1:]...)
	c.mu.Unlock()
	c.changed()

	return c.write(ctx, "delete", id, func(wctx context.Context) error {
		return c.store.Delete(wctx, c.cfg.Collection, id)
	}), nil
}

// write runs do in the background and waits for it at most WriteTimeout.
// The write is never cancelled because the caller stopped waiting.
func (c *Cache[T]) write(ctx context.Context, op, id string, do func(context.Context) error) WriteResult {
	c.mu.Lock()
	c.inflight++
	c.updatePendingLocked()
	c.mu.Unlock()

	done := make(chan error, 1)
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.WriteDeadline)

	c.writes.Add(1)
	go func() {
		defer c.writes.Done()
		defer cancel()

		err := do(wctx)

		c.mu.Lock()
		c.inflight--
		if err != nil {
			c.state.LastWriteError = fmt.Sprintf("%s %s: %v", op, id, err)
		}
		c.updatePendingLocked()
		c.mu.Unlock()

		if err != nil {
			c.logger.Warnw("write failed", "op", op, "id", id, "error", err)
		}
		c.changed()
		done <- err
	}()

	timer := time.NewTimer(c.cfg.WriteTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			return WriteFailed
		}
		return WriteConfirmed
	case <-timer.C:
		c.logger.Infow("write still pending", "op", op, "id", id, "waited", c.cfg.WriteTimeout)
		return WritePending
	case <-ctx.Done():
		return WritePending
	}
}

// RefreshFromServer replaces the list with a forced server read. While the
// gate is up, cache-origin pushes are dropped; the gate is released by the
// first server-confirmed push, or right away if the read fails.
func (c *Cache[T]) RefreshFromServer(ctx context.Context) error {
	c.mu.Lock()
	if c.state.Refreshing {
		c.mu.Unlock()
		return ErrRefreshInProgress
	}
	c.gate = true
	c.state.Gated = true
	c.state.Refreshing = true
	c.mu.Unlock()
	c.changed()

	docs, err := c.fetchWithRetry(ctx)

	c.mu.Lock()
	c.state.Refreshing = false
	if err != nil {
		c.gate = false
		c.state.Gated = false
		c.state.RefreshError = err.Error()
		c.mu.Unlock()
		c.logger.Warnw("refresh from server failed", "error", err)
		c.changed()
		return fmt.Errorf("refresh %s: %w", c.cfg.Collection, err)
	}

	// Re-arm: a server push that landed while fetching must not leave the
	// freshly fetched list open to an older cache replay.
	c.gate = true
	c.state.Gated = true
	c.items = c.mergePendingLocked(c.decodeAll(docs))
	c.state.Phase = Live
	c.state.FromCache = false
	c.state.LastSynced = c.cfg.Now()
	c.state.RefreshError = ""
	c.mu.Unlock()

	c.logger.Debugw("refreshed from server", "docs", len(docs))
	c.changed()
	return nil
}

// fetchWithRetry makes at most two attempts, RetryDelay apart.
func (c *Cache[T]) fetchWithRetry(ctx context.Context) ([]store.Document, error) {
	const attempts = 2

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		fctx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
		docs, err := c.store.FetchFromServer(fctx, c.cfg.Collection, c.cfg.Order)
		timedOut := errors.Is(fctx.Err(), context.DeadlineExceeded)
		cancel()

		if err == nil {
			return docs, nil
		}
		if timedOut && ctx.Err() == nil {
			err = fmt.Errorf("%w after %s: %v", ErrFetchTimeout, c.cfg.FetchTimeout, err)
		}
		lastErr = err
		if attempt == attempts || ctx.Err() != nil {
			break
		}

		c.logger.Infow("forced fetch failed, retrying once", "error", err, "delay", c.cfg.RetryDelay)
		select {
		case <-time.After(c.cfg.RetryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// State returns a copy of the sync state.
func (c *Cache[T]) State() SyncState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SyncState is State under the name the status aggregator expects.
func (c *Cache[T]) SyncState() SyncState { return c.State() }

// Items returns a copy of the list in store order.
func (c *Cache[T]) Items() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

// Find returns the items matching keep, in store order.
func (c *Cache[T]) Find(keep func(T) bool) []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []T
	for _, item := range c.items {
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}

// Get looks an entity up by id.
func (c *Cache[T]) Get(id string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx := c.indexLocked(id); idx >= 0 {
		return c.items[idx], true
	}
	var zero T
	return zero, false
}
