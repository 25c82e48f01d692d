// Package store abstracts the remote document collections (notes, comments,
// weather) behind a push subscription, a forced server read and plain writes.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Collection names.
const (
	Notes    = "notes"
	Comments = "comments"
	Weather  = "weather"
)

// CreatedAtField is filled in by the store on Create with its own clock.
const CreatedAtField = "createdAt"

var (
	ErrNotFound = errors.New("document not found")
	ErrClosed   = errors.New("subscription closed")
)

// Direction of an ordered query.
type Direction int

const (
	Asc Direction = iota
	Desc
)

// Order is the ordering clause of a subscription or a forced read.
type Order struct {
	Field     string
	Direction Direction
}

// ByCreatedAt orders a collection by the server creation instant.
func ByCreatedAt(dir Direction) Order {
	return Order{Field: CreatedAtField, Direction: dir}
}

// Document is one record of a collection.
type Document struct {
	ID         string         `json:"id"`
	Data       map[string]any `json:"data"`
	CreateTime time.Time      `json:"createTime"`
}

// DataTo decodes the document fields into v using its json tags.
func (d Document) DataTo(v any) error {
	raw, err := json.Marshal(d.Data)
	if err != nil {
		return fmt.Errorf("failed to encode document %s: %w", d.ID, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode document %s: %w", d.ID, err)
	}
	return nil
}

// Snapshot is one push of a subscription: the complete list, never a delta.
type Snapshot struct {
	Docs             []Document
	FromCache        bool
	HasPendingWrites bool
	Err              error
}

// Subscription delivers snapshots one at a time, in order, until closed.
type Subscription interface {
	Snapshots() <-chan Snapshot
	Close()
}

// Store is the authoritative document database.
type Store interface {
	Subscribe(ctx context.Context, collection string, order Order) (Subscription, error)
	FetchFromServer(ctx context.Context, collection string, order Order) ([]Document, error)
	Create(ctx context.Context, collection string, fields map[string]any) (string, error)
	Set(ctx context.Context, collection, id string, fields map[string]any) error
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
}

// Fields converts a json-tagged struct into a field map for writes.
func Fields(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	fields := map[string]any{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// chanSubscription is the Subscription used by every backend: a producer
// goroutine writes into ch until the subscription context is cancelled.
type chanSubscription struct {
	ch     chan Snapshot
	cancel context.CancelFunc
	done   chan struct{}
}

func newChanSubscription(ctx context.Context) (*chanSubscription, context.Context) {
	subCtx, cancel := context.WithCancel(ctx)
	return &chanSubscription{
		ch:     make(chan Snapshot),
		cancel: cancel,
		done:   make(chan struct{}),
	}, subCtx
}

func (s *chanSubscription) Snapshots() <-chan Snapshot { return s.ch }

func (s *chanSubscription) Close() {
	s.cancel()
	<-s.done
}

// send delivers snap unless the subscription is being torn down.
func (s *chanSubscription) send(ctx context.Context, snap Snapshot) bool {
	select {
	case s.ch <- snap:
		return true
	case <-ctx.Done():
		return false
	}
}

// finish must be called exactly once by the producer goroutine.
func (s *chanSubscription) finish() {
	close(s.ch)
	close(s.done)
}
