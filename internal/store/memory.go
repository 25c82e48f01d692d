package store

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps collections in process. Used for local development
// (STORE_BACKEND=memory) and as the backing store in tests.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]map[string]Document
	watchers    map[string][]chan struct{}
	now         func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: map[string]map[string]Document{},
		watchers:    map[string][]chan struct{}{},
		now:         time.Now,
	}
}

func (m *MemoryStore) list(collection string, order Order) []Document {
	docs := make([]Document, 0, len(m.collections[collection]))
	for _, d := range m.collections[collection] {
		docs = append(docs, Document{ID: d.ID, Data: maps.Clone(d.Data), CreateTime: d.CreateTime})
	}
	sortDocuments(docs, order)
	return docs
}

// sortDocuments orders by CreateTime for createdAt, otherwise by the named
// data field. Ties fall back to the id.
func sortDocuments(docs []Document, order Order) {
	byCreateTime := order.Field == "" || order.Field == CreatedAtField
	sort.SliceStable(docs, func(i, j int) bool {
		var cmp int
		if byCreateTime {
			cmp = docs[i].CreateTime.Compare(docs[j].CreateTime)
		} else {
			cmp = strings.Compare(fieldKey(docs[i], order.Field), fieldKey(docs[j], order.Field))
		}
		if cmp == 0 {
			cmp = strings.Compare(docs[i].ID, docs[j].ID)
		}
		if order.Direction == Desc {
			return cmp > 0
		}
		return cmp < 0
	})
}

func fieldKey(doc Document, field string) string {
	v, ok := doc.Data[field]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// notify wakes every subscription of collection. Caller holds m.mu.
func (m *MemoryStore) notify(collection string) {
	for _, w := range m.watchers[collection] {
		select {
		case w <- struct{}{}:
		default:
		}
	}
}

func (m *MemoryStore) Subscribe(ctx context.Context, collection string, order Order) (Subscription, error) {
	sub, subCtx := newChanSubscription(ctx)
	wake := make(chan struct{}, 1)

	m.mu.Lock()
	m.watchers[collection] = append(m.watchers[collection], wake)
	m.mu.Unlock()

	go func() {
		defer sub.finish()
		defer m.unwatch(collection, wake)

		for {
			m.mu.Lock()
			docs := m.list(collection, order)
			m.mu.Unlock()

			if !sub.send(subCtx, Snapshot{Docs: docs}) {
				return
			}
			select {
			case <-wake:
			case <-subCtx.Done():
				return
			}
		}
	}()
	return sub, nil
}

func (m *MemoryStore) unwatch(collection string, wake chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws := m.watchers[collection]
	for i, w := range ws {
		if w == wake {
			m.watchers[collection] = append(ws[:i], ws[i+1:]...)
			return
		}
	}
}

func (m *MemoryStore) FetchFromServer(ctx context.Context, collection string, order Order) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.list(collection, order), nil
}

func (m *MemoryStore) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	now := m.now()

	data := maps.Clone(fields)
	if data == nil {
		data = map[string]any{}
	}
	data[CreatedAtField] = now

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.collections[collection] == nil {
		m.collections[collection] = map[string]Document{}
	}
	m.collections[collection][id] = Document{ID: id, Data: data, CreateTime: now}
	m.notify(collection)
	return id, nil
}

func (m *MemoryStore) Set(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.collections[collection] == nil {
		m.collections[collection] = map[string]Document{}
	}
	created := m.now()
	if existing, ok := m.collections[collection][id]; ok {
		created = existing.CreateTime
	}
	m.collections[collection][id] = Document{ID: id, Data: maps.Clone(fields), CreateTime: created}
	m.notify(collection)
	return nil
}

func (m *MemoryStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.collections[collection][id]
	if !ok {
		return ErrNotFound
	}
	data := maps.Clone(doc.Data)
	maps.Copy(data, fields)
	doc.Data = data
	m.collections[collection][id] = doc
	m.notify(collection)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[collection][id]; !ok {
		return ErrNotFound
	}
	delete(m.collections[collection], id)
	m.notify(collection)
	return nil
}
