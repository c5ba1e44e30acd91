package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"iconstudio/internal/apperr"
	"iconstudio/internal/layerir"
)

// Open opens a pgx-backed *sql.DB and checks connectivity.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
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

func (s *Store) ensureSchema(ctx context.Context) error {
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS icon_documents (
  doc_id TEXT PRIMARY KEY,
  schema TEXT NOT NULL,
  head_version TEXT NOT NULL,
  body JSONB NOT NULL,
  created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
  updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
`)
	})
	return s.schemaErr
}

func (s *Store) createDB(ctx context.Context, doc *layerir.Document) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	body, err := layerir.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO icon_documents (doc_id, schema, head_version, body)
VALUES ($1, $2, $3, $4)`, doc.DocID, doc.Schema, doc.Head().VersionID, body)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return apperr.Conflict("docstore.Create", fmt.Errorf("document %q already exists: %w", doc.DocID, ErrConflict))
	}
	return err
}

func (s *Store) getDB(ctx context.Context, docID string) (*layerir.Document, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM icon_documents WHERE doc_id = $1`, docID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("docstore.Get", docID)
	}
	if err != nil {
		return nil, err
	}
	return layerir.Load(body)
}

func (s *Store) saveDB(ctx context.Context, doc *layerir.Document, expectedHead string) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var body []byte
	err = tx.QueryRowContext(ctx, `SELECT body FROM icon_documents WHERE doc_id = $1 FOR UPDATE`, doc.DocID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound("docstore.Save", doc.DocID)
	}
	if err != nil {
		return err
	}
	cur, err := layerir.Load(body)
	if err != nil {
		return err
	}
	if err := checkAdvance(cur, doc, expectedHead); err != nil {
		return err
	}
	next, err := layerir.Marshal(doc)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
UPDATE icon_documents SET schema = $2, head_version = $3, body = $4, updated_at = NOW()
WHERE doc_id = $1`, doc.DocID, doc.Schema, doc.Head().VersionID, next); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) listDB(ctx context.Context) ([]string, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT doc_id FROM icon_documents ORDER BY doc_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
