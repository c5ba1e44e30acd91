package assets

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type CacheConfig struct {
	BlobTTL        time.Duration
	BlobMaxEntries int
	// BlobMaxBytes skips caching blobs larger than this. Zero caches all.
	BlobMaxBytes int

	ListTTL        time.Duration
	ListMaxEntries int

	URLTTL        time.Duration
	URLMaxEntries int
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		BlobTTL:        5 * time.Minute,
		BlobMaxEntries: 256,
		BlobMaxBytes:   8 * 1024 * 1024, // 8MiB, a 1024px RGBA render fits
		ListTTL:        30 * time.Second,
		ListMaxEntries: 256,
		URLTTL:         5 * time.Minute,
		URLMaxEntries:  1024,
	}
}

type MetricsSnapshot struct {
	BlobHits       uint64
	BlobMisses     uint64
	ListHits       uint64
	ListMisses     uint64
	URLHits        uint64
	URLMisses      uint64
	OriginReads    uint64
	OriginWrites   uint64
	OriginReadErr  uint64
	OriginWriteErr uint64
}

type Metrics struct {
	blobHits       atomic.Uint64
	blobMisses     atomic.Uint64
	listHits       atomic.Uint64
	listMisses     atomic.Uint64
	urlHits        atomic.Uint64
	urlMisses      atomic.Uint64
	originReads    atomic.Uint64
	originWrites   atomic.Uint64
	originReadErr  atomic.Uint64
	originWriteErr atomic.Uint64
}

func (m *Metrics) snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		BlobHits:       m.blobHits.Load(),
		BlobMisses:     m.blobMisses.Load(),
		ListHits:       m.listHits.Load(),
		ListMisses:     m.listMisses.Load(),
		URLHits:        m.urlHits.Load(),
		URLMisses:      m.urlMisses.Load(),
		OriginReads:    m.originReads.Load(),
		OriginWrites:   m.originWrites.Load(),
		OriginReadErr:  m.originReadErr.Load(),
		OriginWriteErr: m.originWriteErr.Load(),
	}
}

// CachedStore fronts an origin Store with expiring LRU caches for blobs,
// listings and URLs. Writes go through to the origin first.
type CachedStore struct {
	origin       Store
	blobMaxBytes int

	blobCache *expirable.LRU[string, []byte]
	listCache *expirable.LRU[string, []string]
	urlCache  *expirable.LRU[string, string]
	metrics   Metrics
}

func NewCachedStore(origin Store, cfg CacheConfig) *CachedStore {
	def := DefaultCacheConfig()
	if cfg.BlobTTL <= 0 {
		cfg.BlobTTL = def.BlobTTL
	}
	if cfg.BlobMaxEntries <= 0 {
		cfg.BlobMaxEntries = def.BlobMaxEntries
	}
	if cfg.BlobMaxBytes < 0 {
		cfg.BlobMaxBytes = def.BlobMaxBytes
	}
	if cfg.ListTTL <= 0 {
		cfg.ListTTL = def.ListTTL
	}
	if cfg.ListMaxEntries <= 0 {
		cfg.ListMaxEntries = def.ListMaxEntries
	}
	if cfg.URLTTL <= 0 {
		cfg.URLTTL = def.URLTTL
	}
	if cfg.URLMaxEntries <= 0 {
		cfg.URLMaxEntries = def.URLMaxEntries
	}

	return &CachedStore{
		origin:       origin,
		blobMaxBytes: cfg.BlobMaxBytes,
		blobCache:    expirable.NewLRU[string, []byte](cfg.BlobMaxEntries, nil, cfg.BlobTTL),
		listCache:    expirable.NewLRU[string, []string](cfg.ListMaxEntries, nil, cfg.ListTTL),
		urlCache:     expirable.NewLRU[string, string](cfg.URLMaxEntries, nil, cfg.URLTTL),
	}
}

func (s *CachedStore) Metrics() MetricsSnapshot {
	return s.metrics.snapshot()
}

func (s *CachedStore) cacheBlob(key string, raw []byte) {
	if s.blobMaxBytes > 0 && len(raw) > s.blobMaxBytes {
		s.blobCache.Remove(key)
		return
	}
	s.blobCache.Add(key, append([]byte(nil), raw...))
}

func (s *CachedStore) Put(ctx context.Context, docID, path string, content []byte) error {
	s.metrics.originWrites.Add(1)
	if err := s.origin.Put(ctx, docID, path, content); err != nil {
		s.metrics.originWriteErr.Add(1)
		return err
	}

	key := objectKey(docID, path)
	s.cacheBlob(key, content)
	s.listCache.Remove(strings.TrimSpace(docID))
	s.urlCache.Remove(key)
	return nil
}

func (s *CachedStore) Get(ctx context.Context, docID, path string) ([]byte, error) {
	key := objectKey(docID, path)
	if raw, ok := s.blobCache.Get(key); ok {
		s.metrics.blobHits.Add(1)
		return append([]byte(nil), raw...), nil
	}
	s.metrics.blobMisses.Add(1)
	s.metrics.originReads.Add(1)

	raw, err := s.origin.Get(ctx, docID, path)
	if err != nil {
		s.metrics.originReadErr.Add(1)
		return nil, err
	}
	s.cacheBlob(key, raw)
	return append([]byte(nil), raw...), nil
}

func (s *CachedStore) GetURL(ctx context.Context, docID, path string) (string, error) {
	key := objectKey(docID, path)
	if cached, ok := s.urlCache.Get(key); ok {
		s.metrics.urlHits.Add(1)
		return cached, nil
	}
	s.metrics.urlMisses.Add(1)
	s.metrics.originReads.Add(1)

	url, err := s.origin.GetURL(ctx, docID, path)
	if err != nil {
		s.metrics.originReadErr.Add(1)
		return "", err
	}
	if strings.TrimSpace(url) != "" {
		s.urlCache.Add(key, url)
	}
	return url, nil
}

func (s *CachedStore) List(ctx context.Context, docID string) ([]string, error) {
	docID = strings.TrimSpace(docID)
	if list, ok := s.listCache.Get(docID); ok {
		s.metrics.listHits.Add(1)
		return append([]string(nil), list...), nil
	}
	s.metrics.listMisses.Add(1)
	s.metrics.originReads.Add(1)

	list, err := s.origin.List(ctx, docID)
	if err != nil {
		s.metrics.originReadErr.Add(1)
		return nil, err
	}
	s.listCache.Add(docID, append([]string(nil), list...))
	return append([]string(nil), list...), nil
}
