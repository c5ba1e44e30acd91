package assets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore keeps asset bytes in a BYTEA column.
type PostgresStore struct {
	db         *sql.DB
	schemaOnce sync.Once
	schemaErr  error
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres opens a pgx-backed *sql.DB and checks connectivity.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("db is nil")
	}
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS icon_assets (
    id SERIAL PRIMARY KEY,
    doc_id TEXT NOT NULL,
    path TEXT NOT NULL,
    content_type TEXT NOT NULL DEFAULT 'application/octet-stream',
    content BYTEA NOT NULL DEFAULT ''::bytea,
    size BIGINT NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
    UNIQUE(doc_id, path)
);
CREATE INDEX IF NOT EXISTS idx_icon_assets_doc_id ON icon_assets(doc_id);
`)
	})
	return s.schemaErr
}

func (s *PostgresStore) Put(ctx context.Context, docID, path string, content []byte) error {
	docID, path, err := normalize(docID, path)
	if err != nil {
		return err
	}
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	if content == nil {
		content = []byte{}
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO icon_assets (doc_id, path, content_type, content, size, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (doc_id, path)
DO UPDATE SET content=EXCLUDED.content, content_type=EXCLUDED.content_type, size=EXCLUDED.size, updated_at=EXCLUDED.updated_at
`, docID, path, contentType(path), content, int64(len(content)), time.Now())
	return err
}

func (s *PostgresStore) Get(ctx context.Context, docID, path string) ([]byte, error) {
	docID, path, err := normalize(docID, path)
	if err != nil {
		return nil, err
	}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	var content []byte
	err = s.db.QueryRowContext(ctx, `SELECT content FROM icon_assets WHERE doc_id=$1 AND path=$2`, docID, path).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return content, err
}

func (s *PostgresStore) List(ctx context.Context, docID string) ([]string, error) {
	docID = strings.TrimSpace(docID)
	if docID == "" {
		return nil, fmt.Errorf("doc_id is required")
	}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT path FROM icon_assets WHERE doc_id=$1 ORDER BY path`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// GetURL is empty: content is stored inline.
func (s *PostgresStore) GetURL(context.Context, string, string) (string, error) {
	return "", nil
}
