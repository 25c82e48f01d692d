package cache

import (
	"fmt"
	"maps"
	"time"

	"io.winapps.triptracker/internal/store"
)

// Patch is a partial update, keyed by document field name.
type Patch map[string]any

// Adapter maps between an entity type and store documents.
type Adapter[T any] interface {
	ID(item T) string
	WithID(item T, id string) T
	WithCreatedAt(item T, at time.Time) T
	Decode(doc store.Document) (T, error)
	// Encode returns the fields written on create. The id and the creation
	// instant are owned by the store and must not be included.
	Encode(item T) (map[string]any, error)
	Apply(item T, patch Patch) (T, error)
}

// JSONAdapter implements Adapter for json-tagged structs. Documents are decoded
// with their json tags, and patches are merged field by field the same way the
// store merges them.
type JSONAdapter[T any] struct {
	GetID        func(T) string
	SetID        func(*T, string)
	SetCreatedAt func(*T, time.Time)
	// Normalize fixes up a freshly decoded item, e.g. filling defaults.
	Normalize func(*T, store.Document)
}

func (a JSONAdapter[T]) ID(item T) string { return a.GetID(item) }

func (a JSONAdapter[T]) WithID(item T, id string) T {
	a.SetID(&item, id)
	return item
}

func (a JSONAdapter[T]) WithCreatedAt(item T, at time.Time) T {
	if a.SetCreatedAt != nil {
		a.SetCreatedAt(&item, at)
	}
	return item
}

func (a JSONAdapter[T]) Decode(doc store.Document) (T, error) {
	var item T
	if err := doc.DataTo(&item); err != nil {
		return item, err
	}
	a.SetID(&item, doc.ID)
	if a.Normalize != nil {
		a.Normalize(&item, doc)
	}
	return item, nil
}

func (a JSONAdapter[T]) Encode(item T) (map[string]any, error) {
	fields, err := store.Fields(item)
	if err != nil {
		return nil, fmt.Errorf("failed to encode entity: %w", err)
	}
	delete(fields, "id")
	delete(fields, store.CreatedAtField)
	return fields, nil
}

func (a JSONAdapter[T]) Apply(item T, patch Patch) (T, error) {
	fields, err := store.Fields(item)
	if err != nil {
		return item, fmt.Errorf("failed to encode entity: %w", err)
	}
	maps.Copy(fields, patch)

	id := a.GetID(item)
	out, err := a.Decode(store.Document{ID: id, Data: fields})
	if err != nil {
		return item, fmt.Errorf("failed to apply patch: %w", err)
	}
	return out, nil
}
