package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// SnapshotCache persists the last server-confirmed list of a collection.
type SnapshotCache interface {
	Load(ctx context.Context, collection string) ([]Document, bool, error)
	Save(ctx context.Context, collection string, docs []Document) error
}

// RedisSnapshotCache keeps each collection under snapshot:<collection>.
type RedisSnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSnapshotCache(client *redis.Client, ttl time.Duration) *RedisSnapshotCache {
	return &RedisSnapshotCache{client: client, ttl: ttl}
}

func snapshotKey(collection string) string {
	return fmt.Sprintf("snapshot:%s", collection)
}

func (r *RedisSnapshotCache) Load(ctx context.Context, collection string) ([]Document, bool, error) {
	raw, err := r.client.Get(ctx, snapshotKey(collection)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load cached %s: %w", collection, err)
	}
	var docs []Document
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached %s: %w", collection, err)
	}
	return docs, true, nil
}

func (r *RedisSnapshotCache) Save(ctx context.Context, collection string, docs []Document) error {
	raw, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("failed to encode %s for cache: %w", collection, err)
	}
	if err := r.client.Set(ctx, snapshotKey(collection), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache %s: %w", collection, err)
	}
	return nil
}

// CachedStore gives a server-side Store the behaviour of a client with an
// on-device cache: every subscription (and every resubscription after the
// upstream listener fails) starts with the last known list marked FromCache,
// followed by live server pushes that are written back to the cache.
type CachedStore struct {
	Store
	cache       SnapshotCache
	resubscribe time.Duration
	logger      *zap.SugaredLogger
}

func NewCachedStore(upstream Store, cache SnapshotCache, resubscribe time.Duration, logger *zap.SugaredLogger) *CachedStore {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if resubscribe <= 0 {
		resubscribe = 5 * time.Second
	}
	return &CachedStore{Store: upstream, cache: cache, resubscribe: resubscribe, logger: logger}
}

func (c *CachedStore) replayCached(ctx context.Context, sub *chanSubscription, collection string) bool {
	docs, ok, err := c.cache.Load(ctx, collection)
	if err != nil {
		c.logger.Warnw("cached snapshot unavailable", "collection", collection, "error", err)
		return true
	}
	if !ok {
		return true
	}
	return sub.send(ctx, Snapshot{Docs: docs, FromCache: true})
}

func (c *CachedStore) Subscribe(ctx context.Context, collection string, order Order) (Subscription, error) {
	sub, subCtx := newChanSubscription(ctx)

	go func() {
		defer sub.finish()

		for {
			if !c.replayCached(subCtx, sub, collection) {
				return
			}

			upstream, err := c.Store.Subscribe(subCtx, collection, order)
			if err != nil {
				if !sub.send(subCtx, Snapshot{Err: err}) {
					return
				}
			} else if !c.forward(subCtx, sub, upstream, collection) {
				upstream.Close()
				return
			} else {
				upstream.Close()
			}

			select {
			case <-time.After(c.resubscribe):
				c.logger.Infow("resubscribing", "collection", collection)
			case <-subCtx.Done():
				return
			}
		}
	}()
	return sub, nil
}

// forward relays upstream pushes until the upstream ends. It returns false
// when the outer subscription is closing.
func (c *CachedStore) forward(ctx context.Context, sub *chanSubscription, upstream Subscription, collection string) bool {
	for snap := range upstream.Snapshots() {
		if snap.Err == nil && !snap.FromCache {
			if err := c.cache.Save(ctx, collection, snap.Docs); err != nil {
				c.logger.Warnw("failed to refresh cached snapshot", "collection", collection, "error", err)
			}
		}
		if !sub.send(ctx, snap) {
			return false
		}
	}
	return ctx.Err() == nil
}

func (c *CachedStore) FetchFromServer(ctx context.Context, collection string, order Order) ([]Document, error) {
	docs, err := c.Store.FetchFromServer(ctx, collection, order)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Save(ctx, collection, docs); err != nil {
		c.logger.Warnw("failed to refresh cached snapshot", "collection", collection, "error", err)
	}
	return docs, nil
}
