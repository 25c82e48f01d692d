package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps every collection in the documents table (see
// db.InitPostgres). Subscriptions poll a cheap fingerprint of the collection
// and push the full list only when it changes.
type PostgresStore struct {
	pool         *pgxpool.Pool
	pollInterval time.Duration
}

func NewPostgresStore(pool *pgxpool.Pool, pollInterval time.Duration) *PostgresStore {
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}
	return &PostgresStore{pool: pool, pollInterval: pollInterval}
}

type fingerprint struct {
	count   int64
	changed time.Time
}

func (f fingerprint) equal(o fingerprint) bool {
	return f.count == o.count && f.changed.Equal(o.changed)
}

func (p *PostgresStore) fingerprint(ctx context.Context, collection string) (fingerprint, error) {
	var fp fingerprint
	query := `
		SELECT COUNT(*), COALESCE(MAX(updated_at), 'epoch'::timestamptz)
		FROM documents
		WHERE collection = $1
	`
	err := p.pool.QueryRow(ctx, query, collection).Scan(&fp.count, &fp.changed)
	return fp, err
}

func (p *PostgresStore) Subscribe(ctx context.Context, collection string, order Order) (Subscription, error) {
	sub, subCtx := newChanSubscription(ctx)

	go func() {
		defer sub.finish()

		ticker := time.NewTicker(p.pollInterval)
		defer ticker.Stop()

		var last *fingerprint
		for {
			fp, err := p.fingerprint(subCtx, collection)
			switch {
			case subCtx.Err() != nil:
				return
			case err != nil:
				if !sub.send(subCtx, Snapshot{Err: fmt.Errorf("%s poll: %w", collection, err)}) {
					return
				}
			case last == nil || !last.equal(fp):
				docs, err := p.FetchFromServer(subCtx, collection, order)
				if err != nil {
					if !sub.send(subCtx, Snapshot{Err: err}) {
						return
					}
					break
				}
				if !sub.send(subCtx, Snapshot{Docs: docs}) {
					return
				}
				last = &fp
			}

			select {
			case <-ticker.C:
			case <-subCtx.Done():
				return
			}
		}
	}()
	return sub, nil
}

func (p *PostgresStore) FetchFromServer(ctx context.Context, collection string, order Order) ([]Document, error) {
	dir := "ASC"
	if order.Direction == Desc {
		dir = "DESC"
	}
	orderBy := "created_at"
	args := []any{collection}
	if order.Field != "" && order.Field != CreatedAtField {
		orderBy = "data->>($2::text)"
		args = append(args, order.Field)
	}
	query := `
		SELECT id, data, created_at
		FROM documents
		WHERE collection = $1
		ORDER BY ` + orderBy + ` ` + dir + `, id ` + dir

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var (
			doc Document
			raw []byte
		)
		if err := rows.Scan(&doc.ID, &raw, &doc.CreateTime); err != nil {
			return nil, fmt.Errorf("failed to scan %s document: %w", collection, err)
		}
		if err := json.Unmarshal(raw, &doc.Data); err != nil {
			return nil, fmt.Errorf("failed to decode %s/%s: %w", collection, doc.ID, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", collection, err)
	}
	return docs, nil
}

func (p *PostgresStore) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s document: %w", collection, err)
	}

	id := uuid.NewString()
	query := `
		INSERT INTO documents (collection, id, data, created_at, updated_at)
		VALUES ($1, $2, $3::jsonb || jsonb_build_object('createdAt', to_jsonb(NOW())), NOW(), NOW())
	`
	if _, err := p.pool.Exec(ctx, query, collection, id, raw); err != nil {
		return "", fmt.Errorf("failed to create %s document: %w", collection, err)
	}
	return id, nil
}

func (p *PostgresStore) Set(ctx context.Context, collection, id string, fields map[string]any) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to encode %s/%s: %w", collection, id, err)
	}
	query := `
		INSERT INTO documents (collection, id, data, created_at, updated_at)
		VALUES ($1, $2, $3::jsonb, NOW(), NOW())
		ON CONFLICT (collection, id)
		DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()
	`
	if _, err := p.pool.Exec(ctx, query, collection, id, raw); err != nil {
		return fmt.Errorf("failed to set %s/%s: %w", collection, id, err)
	}
	return nil
}

func (p *PostgresStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to encode %s/%s: %w", collection, id, err)
	}
	query := `
		UPDATE documents
		SET data = data || $3::jsonb, updated_at = NOW()
		WHERE collection = $1 AND id = $2
	`
	result, err := p.pool.Exec(ctx, query, collection, id, raw)
	if err != nil {
		return fmt.Errorf("failed to update %s/%s: %w", collection, id, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
	}
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	result, err := p.pool.Exec(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id)
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", collection, id, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("delete %s/%s: %w", collection, id, ErrNotFound)
	}
	return nil
}
