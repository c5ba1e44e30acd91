package docstore

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"iconstudio/internal/layerir"
)

// ensureLoadedFile reads every document under dir once. Files that fail to
// load are logged and skipped so one bad document does not block the rest.
// A directory that cannot be listed fails every later call the same way.
func (s *Store) ensureLoadedFile() error {
	if s.dir == "" {
		return nil
	}
	s.loadOnce.Do(func() {
		entries, err := os.ReadDir(s.dir)
		if errors.Is(err, fs.ErrNotExist) {
			return
		}
		if err != nil {
			s.loadErr = err
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
				continue
			}
			b, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
			if err != nil {
				log.Printf("docstore: read %s: %v", e.Name(), err)
				continue
			}
			doc, err := layerir.Load(b)
			if err != nil {
				log.Printf("docstore: skip %s: %v", e.Name(), err)
				continue
			}
			s.docs[doc.DocID] = doc
		}
	})
	return s.loadErr
}

// writeFile persists doc through a temp file and rename. No-op in memory mode.
func (s *Store) writeFile(doc *layerir.Document) error {
	if s.dir == "" {
		return nil
	}
	if strings.ContainsAny(doc.DocID, `/\`) || strings.Contains(doc.DocID, "..") {
		return fmt.Errorf("invalid doc_id: %s", doc.DocID)
	}
	b, err := layerir.Marshal(doc)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, "."+doc.DocID+"-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(s.dir, doc.DocID+".json"))
}
