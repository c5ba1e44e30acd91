// Package docstore persists Layer IR documents. Writers commit with a
// compare-and-swap on the head version so two sessions never interleave.
package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"iconstudio/internal/apperr"
	"iconstudio/internal/layerir"
)

var (
	ErrNotFound = errors.New("document not found")
	ErrConflict = errors.New("head version moved")
)

// Store keeps documents in memory, as JSON files under a directory, or in
// Postgres. Documents handed in and out are copies.
type Store struct {
	dir string
	db  *sql.DB

	mu   sync.RWMutex
	docs map[string]*layerir.Document

	loadOnce   sync.Once
	loadErr    error
	schemaOnce sync.Once
	schemaErr  error

	cache *lru.Cache[string, *layerir.Document]
}

func NewMemory() *Store {
	return &Store{docs: make(map[string]*layerir.Document)}
}

// NewFile stores one <docId>.json per document under dir.
func NewFile(dir string) *Store {
	return &Store{dir: strings.TrimSpace(dir), docs: make(map[string]*layerir.Document)}
}

// NewPostgres stores documents in the icon_documents table, with a read
// cache of cacheSize entries in front.
func NewPostgres(db *sql.DB, cacheSize int) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if cacheSize <= 0 {
		cacheSize = 256
	}
	cache, err := lru.New[string, *layerir.Document](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, cache: cache}, nil
}

// Backend names the storage in use.
func (s *Store) Backend() string {
	switch {
	case s.db != nil:
		return "postgres"
	case s.dir != "":
		return "file"
	default:
		return "memory"
	}
}

// Create stores a new document. It fails with a conflict if the id exists.
func (s *Store) Create(ctx context.Context, doc *layerir.Document) error {
	const op = "docstore.Create"
	if err := layerir.Validate(doc); err != nil {
		return err
	}
	if s.db != nil {
		return s.createDB(ctx, doc)
	}
	if err := s.ensureLoadedFile(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[doc.DocID]; ok {
		return apperr.Conflict(op, fmt.Errorf("document %q already exists: %w", doc.DocID, ErrConflict))
	}
	if err := s.writeFile(doc); err != nil {
		return err
	}
	s.docs[doc.DocID] = doc.Clone()
	return nil
}

// Get returns the current document.
func (s *Store) Get(ctx context.Context, docID string) (*layerir.Document, error) {
	docID = strings.TrimSpace(docID)
	if s.db != nil {
		if cached, ok := s.cache.Get(docID); ok {
			return cached.Clone(), nil
		}
		doc, err := s.getDB(ctx, docID)
		if err != nil {
			return nil, err
		}
		s.cache.Add(docID, doc.Clone())
		return doc, nil
	}
	if err := s.ensureLoadedFile(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[docID]
	if !ok {
		return nil, notFound("docstore.Get", docID)
	}
	return doc.Clone(), nil
}

// Save replaces the document if its stored head version is still
// expectedHead. The stored history must be a prefix of the new one.
func (s *Store) Save(ctx context.Context, doc *layerir.Document, expectedHead string) error {
	if err := layerir.Validate(doc); err != nil {
		return err
	}
	if s.db != nil {
		// evict after the commit so a concurrent Get cannot re-cache the old row
		defer s.cache.Remove(doc.DocID)
		return s.saveDB(ctx, doc, expectedHead)
	}
	if err := s.ensureLoadedFile(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.docs[doc.DocID]
	if !ok {
		return notFound("docstore.Save", doc.DocID)
	}
	if err := checkAdvance(cur, doc, expectedHead); err != nil {
		return err
	}
	if err := s.writeFile(doc); err != nil {
		return err
	}
	s.docs[doc.DocID] = doc.Clone()
	return nil
}

// List returns the stored document ids in ascending order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	if s.db != nil {
		return s.listDB(ctx)
	}
	if err := s.ensureLoadedFile(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.docs))
	for id := range s.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// checkAdvance enforces the compare-and-swap and the append-only history.
func checkAdvance(cur, next *layerir.Document, expectedHead string) error {
	const op = "docstore.Save"
	head := cur.Head().VersionID
	if head != expectedHead {
		return apperr.Conflict(op, fmt.Errorf("expected head %q, found %q: %w", expectedHead, head, ErrConflict))
	}
	old, nv := cur.History.Versions, next.History.Versions
	if len(nv) < len(old) {
		return apperr.Validation(op, []string{fmt.Sprintf("history shrank from %d to %d versions", len(old), len(nv))})
	}
	for i := range old {
		if old[i] != nv[i] {
			return apperr.Validation(op, []string{fmt.Sprintf("history entry %d (%s) was rewritten", i, old[i].VersionID)})
		}
	}
	return nil
}

func notFound(op, docID string) error {
	return &apperr.Error{Kind: apperr.KindNotFound, Op: op, Message: fmt.Sprintf("document %q", docID), Err: ErrNotFound}
}
