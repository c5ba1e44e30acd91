package assets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DiskStore persists assets under a local root directory as
// <root>/<docID>/<path>.
type DiskStore struct {
	root string
}

func NewDiskStore(root string) *DiskStore {
	return &DiskStore{root: strings.TrimSpace(root)}
}

func (s *DiskStore) Put(_ context.Context, docID, path string, content []byte) error {
	fullPath, err := s.pathFor(docID, path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(fullPath, content, 0o644)
}

func (s *DiskStore) Get(_ context.Context, docID, path string) ([]byte, error) {
	fullPath, err := s.pathFor(docID, path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fullPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

func (s *DiskStore) GetURL(context.Context, string, string) (string, error) {
	return "", nil
}

func (s *DiskStore) List(_ context.Context, docID string) ([]string, error) {
	docRoot, err := s.docRoot(docID)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, 32)
	walkErr := filepath.WalkDir(docRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(docRoot, path)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if walkErr != nil {
		if os.IsNotExist(walkErr) {
			return []string{}, nil
		}
		return nil, walkErr
	}
	sort.Strings(paths)
	return paths, nil
}

func (s *DiskStore) docRoot(docID string) (string, error) {
	if s == nil {
		return "", fmt.Errorf("store is nil")
	}
	if s.root == "" {
		return "", fmt.Errorf("root is required")
	}
	docID = strings.TrimSpace(docID)
	if docID == "" {
		return "", fmt.Errorf("doc_id is required")
	}
	if strings.Contains(docID, "..") || strings.ContainsAny(docID, `/\`) {
		return "", fmt.Errorf("invalid doc_id: %s", docID)
	}
	return filepath.Join(s.root, docID), nil
}

func (s *DiskStore) pathFor(docID, path string) (string, error) {
	docRoot, err := s.docRoot(docID)
	if err != nil {
		return "", err
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	if strings.Contains(path, "..") || filepath.IsAbs(path) {
		return "", fmt.Errorf("invalid path: %s", path)
	}
	return filepath.Join(docRoot, filepath.FromSlash(path)), nil
}
