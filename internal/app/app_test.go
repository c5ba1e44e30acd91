package app

import (
	"bytes"
	"context"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iconstudio/internal/apperr"
	"iconstudio/internal/assets"
	"iconstudio/internal/config"
)

func TestNewRequiresGenerationCredentials(t *testing.T) {
	_, err := New(context.Background(), &config.Config{Port: ":0"})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConfiguration))
}

func TestNewWithFakeGenerationServesAPI(t *testing.T) {
	cfg := &config.Config{
		Port:        ":0",
		DocstoreDir: t.TempDir(),
		AssetDir:    t.TempDir(),
		Generation:  config.GenerationConfig{Fake: true, Retries: 1, Timeout: 5 * time.Second},
		Studio:      config.StudioConfig{PaddingPx: 24},
	}
	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	assert.Equal(t, "file", a.stores.docs.Backend())
	assert.IsType(t, &assets.CachedStore{}, a.stores.assets)

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/documents", strings.NewReader(`{"brief":"A paper plane."}`)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStoresLogCacheMetrics(t *testing.T) {
	cached := assets.NewCachedStore(assets.NewMemoryStore(), assets.DefaultCacheConfig())
	ctx := context.Background()
	require.NoError(t, cached.Put(ctx, "doc-1", "assets/beauty.png", []byte("png")))
	_, err := cached.Get(ctx, "doc-1", "assets/beauty.png")
	require.NoError(t, err)
	_, err = cached.Get(ctx, "doc-1", "assets/seg.png")
	require.Error(t, err)

	var buf bytes.Buffer
	(&studioStores{assets: cached}).logMetrics(log.New(&buf, "", 0))
	assert.Contains(t, buf.String(), "assets cache: blob 1/1")
	assert.Contains(t, buf.String(), "origin reads=1 writes=1 read_err=1 write_err=0")

	buf.Reset()
	(&studioStores{assets: assets.NewMemoryStore()}).logMetrics(log.New(&buf, "", 0))
	assert.Empty(t, buf.String())
}

func TestChooseAssetStoreFallsBack(t *testing.T) {
	cfg := &config.Config{Artifact: config.ArtifactConfig{Enabled: true, Endpoint: "minio:9000"}}
	called := false
	store, err := chooseAssetStore(cfg, assets.NewMemoryStore(), "in-memory", func() (assets.Store, error) {
		called = true
		return nil, nil
	})
	require.NoError(t, err)
	assert.False(t, called)
	assert.NotNil(t, store)
}
