package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"iconstudio/internal/assets"
	"iconstudio/internal/config"
	"iconstudio/internal/docstore"
)

type studioStores struct {
	docs   *docstore.Store
	assets assets.Store
	db     *sql.DB
}

func (s *studioStores) Close() error {
	s.logMetrics(log.Default())
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// logMetrics reports the asset cache counters, when the cache is in front.
func (s *studioStores) logMetrics(logger *log.Logger) {
	cached, ok := s.assets.(*assets.CachedStore)
	if !ok {
		return
	}
	m := cached.Metrics()
	logger.Printf("assets cache: blob %d/%d list %d/%d url %d/%d (hits/misses), origin reads=%d writes=%d read_err=%d write_err=%d",
		m.BlobHits, m.BlobMisses, m.ListHits, m.ListMisses, m.URLHits, m.URLMisses,
		m.OriginReads, m.OriginWrites, m.OriginReadErr, m.OriginWriteErr)
}

func initStores(ctx context.Context, cfg *config.Config) (*studioStores, error) {
	s3Factory := newAssetS3StoreFactory(cfg)

	if dsn := strings.TrimSpace(cfg.DatabaseURL); dsn != "" {
		return initPostgresStores(ctx, dsn, cfg, s3Factory)
	}
	return initLocalStores(cfg, s3Factory)
}

func newAssetS3StoreFactory(cfg *config.Config) func() (assets.Store, error) {
	return func() (assets.Store, error) {
		s3Cfg := assets.S3Config{
			Endpoint:  cfg.Artifact.Endpoint,
			Region:    cfg.Artifact.Region,
			AccessKey: cfg.Artifact.AccessKey,
			SecretKey: cfg.Artifact.SecretKey,
			Bucket:    cfg.Artifact.Bucket,
			UseSSL:    cfg.Artifact.UseSSL,
		}
		s3Store, err := assets.NewS3Store(s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize asset s3 store: %w", err)
		}
		log.Printf("asset store: s3 bucket=%s endpoint=%s", s3Cfg.Bucket, s3Cfg.Endpoint)
		return s3Store, nil
	}
}

func initPostgresStores(ctx context.Context, dsn string, cfg *config.Config, s3Factory func() (assets.Store, error)) (*studioStores, error) {
	db, err := docstore.Open(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	docs, err := docstore.NewPostgres(db, 0)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	assetStore, err := chooseAssetStore(cfg, assets.NewPostgresStore(db), "postgres", s3Factory)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Printf("document store: postgres")
	return &studioStores{docs: docs, assets: assetStore, db: db}, nil
}

func initLocalStores(cfg *config.Config, s3Factory func() (assets.Store, error)) (*studioStores, error) {
	docs := docstore.NewMemory()
	if dir := strings.TrimSpace(cfg.DocstoreDir); dir != "" {
		docs = docstore.NewFile(dir)
	}
	var fallback assets.Store = assets.NewMemoryStore()
	label := "in-memory"
	if dir := strings.TrimSpace(cfg.AssetDir); dir != "" {
		fallback = assets.NewDiskStore(dir)
		label = "disk"
	}
	assetStore, err := chooseAssetStore(cfg, fallback, label, s3Factory)
	if err != nil {
		return nil, err
	}
	log.Printf("document store: %s", docs.Backend())
	return &studioStores{docs: docs, assets: assetStore}, nil
}

func chooseAssetStore(
	cfg *config.Config,
	fallback assets.Store,
	fallbackLabel string,
	s3Factory func() (assets.Store, error),
) (assets.Store, error) {
	var origin assets.Store
	if cfg.Artifact.CanUseS3() {
		s3Store, err := s3Factory()
		if err != nil {
			return nil, err
		}
		origin = s3Store
	} else {
		if cfg.Artifact.Enabled {
			log.Printf("asset store: using %s fallback (s3 config incomplete)", fallbackLabel)
		}
		origin = fallback
	}
	if origin == nil {
		return nil, fmt.Errorf("asset origin store is nil")
	}
	return assets.NewCachedStore(origin, assets.DefaultCacheConfig()), nil
}
