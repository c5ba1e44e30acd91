package assets

import (
	"context"
	"sort"
	"strings"
	"sync"
)

type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Put(_ context.Context, docID, path string, content []byte) error {
	docID, path, err := normalize(docID, path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[objectKey(docID, path)] = append([]byte(nil), content...)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, docID, path string) ([]byte, error) {
	docID, path, err := normalize(docID, path)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.data[objectKey(docID, path)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), raw...), nil
}

func (s *MemoryStore) List(_ context.Context, docID string) ([]string, error) {
	prefix := strings.TrimSpace(docID) + "/"
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, 16)
	for key := range s.data {
		if strings.HasPrefix(key, prefix) {
			out = append(out, strings.TrimPrefix(key, prefix))
		}
	}
	sort.Strings(out)
	return out, nil
}

// GetURL is empty: memory assets are only reachable through Get.
func (s *MemoryStore) GetURL(context.Context, string, string) (string, error) {
	return "", nil
}
