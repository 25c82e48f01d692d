package store

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore talks to Cloud Firestore through the Firebase Admin app.
type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func (f *FirestoreStore) query(collection string, order Order) firestore.Query {
	dir := firestore.Asc
	if order.Direction == Desc {
		dir = firestore.Desc
	}
	field := order.Field
	if field == "" {
		field = CreatedAtField
	}
	return f.client.Collection(collection).OrderBy(field, dir)
}

func (f *FirestoreStore) Subscribe(ctx context.Context, collection string, order Order) (Subscription, error) {
	sub, subCtx := newChanSubscription(ctx)
	it := f.query(collection, order).Snapshots(subCtx)

	go func() {
		defer sub.finish()
		defer it.Stop()

		for {
			snap, err := it.Next()
			if err != nil {
				if subCtx.Err() != nil || status.Code(err) == codes.Canceled {
					return
				}
				sub.send(subCtx, Snapshot{Err: fmt.Errorf("%s snapshot listener: %w", collection, err)})
				return
			}

			all, err := snap.Documents.GetAll()
			if err != nil {
				if !sub.send(subCtx, Snapshot{Err: fmt.Errorf("%s snapshot documents: %w", collection, err)}) {
					return
				}
				continue
			}

			docs := make([]Document, 0, len(all))
			for _, ds := range all {
				docs = append(docs, fromFirestore(ds))
			}
			// The Admin SDK keeps no local cache; every push is server data.
			if !sub.send(subCtx, Snapshot{Docs: docs}) {
				return
			}
		}
	}()
	return sub, nil
}

func (f *FirestoreStore) FetchFromServer(ctx context.Context, collection string, order Order) ([]Document, error) {
	all, err := f.query(collection, order).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", collection, err)
	}
	docs := make([]Document, 0, len(all))
	for _, ds := range all {
		docs = append(docs, fromFirestore(ds))
	}
	return docs, nil
}

func (f *FirestoreStore) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	data := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		data[k] = v
	}
	data[CreatedAtField] = firestore.ServerTimestamp

	ref, _, err := f.client.Collection(collection).Add(ctx, data)
	if err != nil {
		return "", fmt.Errorf("failed to create %s document: %w", collection, err)
	}
	return ref.ID, nil
}

func (f *FirestoreStore) Set(ctx context.Context, collection, id string, fields map[string]any) error {
	if _, err := f.client.Collection(collection).Doc(id).Set(ctx, fields); err != nil {
		return fmt.Errorf("failed to set %s/%s: %w", collection, id, err)
	}
	return nil
}

func (f *FirestoreStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	updates := make([]firestore.Update, 0, len(fields))
	for k, v := range fields {
		updates = append(updates, firestore.Update{Path: k, Value: v})
	}
	if _, err := f.client.Collection(collection).Doc(id).Update(ctx, updates); err != nil {
		return mapFirestoreErr(fmt.Sprintf("update %s/%s", collection, id), err)
	}
	return nil
}

func (f *FirestoreStore) Delete(ctx context.Context, collection, id string) error {
	if _, err := f.client.Collection(collection).Doc(id).Delete(ctx); err != nil {
		return mapFirestoreErr(fmt.Sprintf("delete %s/%s", collection, id), err)
	}
	return nil
}

func mapFirestoreErr(op string, err error) error {
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, context.DeadlineExceeded)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func fromFirestore(ds *firestore.DocumentSnapshot) Document {
	return Document{
		ID:         ds.Ref.ID,
		Data:       ds.Data(),
		CreateTime: ds.CreateTime,
	}
}
