package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"io.winapps.triptracker/internal/config"
)

// InitPostgres initializes and returns a PostgreSQL connection pool
func InitPostgres(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	// The journal is a handful of family members; keep the pool small.
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = time.Minute * 30
	poolConfig.HealthCheckPeriod = time.Minute * 5

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := createTables(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return pool, nil
}

// createTables creates the document table every collection lives in
func createTables(ctx context.Context, pool *pgxpool.Pool) error {
	documentsTable := `
		CREATE TABLE IF NOT EXISTS documents (
			collection VARCHAR(64) NOT NULL,
			id VARCHAR(255) NOT NULL,
			data JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			PRIMARY KEY (collection, id)
		);
	`

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(collection, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_documents_updated_at ON documents(collection, updated_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_documents_date ON documents(collection, (data->>'date'));`,
		`CREATE INDEX IF NOT EXISTS idx_documents_note_id ON documents(collection, (data->>'noteId'));`,
	}

	if _, err := pool.Exec(ctx, documentsTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	for _, index := range indexes {
		if _, err := pool.Exec(ctx, index); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}
