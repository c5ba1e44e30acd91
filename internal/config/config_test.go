package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iconstudio/internal/apperr"
)

var keys = []string{
	"PORT", "APP_ENV", "DATABASE_URL", "DOCSTORE_DIR", "ASSET_DIR",
	"OPENROUTER_API_KEY", "OPENROUTER_MODEL", "OPENROUTER_BASE_URL",
	"GEMINI_API_KEY", "GOOGLE_API_KEY", "GEMINI_IMAGE_MODEL", "GEMINI_TEXT_MODEL",
	"GENERATION_TIMEOUT", "GENERATION_RETRIES", "GENERATION_RPS", "GENERATION_BURST", "FAKE_GENERATION",
	"ARTIFACT_S3_ENDPOINT", "ARTIFACT_MINIO_ENDPOINT", "ARTIFACT_S3_REGION", "ARTIFACT_S3_ACCESS_KEY",
	"ARTIFACT_S3_SECRET_KEY", "ARTIFACT_S3_BUCKET", "ARTIFACT_S3_USE_SSL", "MINIO_ROOT_USER", "MINIO_ROOT_PASSWORD",
	"PATCH_PADDING_PX", "SEG_MIN_AREA", "PATCH_TIMEOUT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Parse(nil)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Port)
	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, 90*time.Second, cfg.Generation.Timeout)
	assert.Equal(t, 3, cfg.Generation.Retries)
	assert.Equal(t, 24, cfg.Studio.PaddingPx)
	assert.False(t, cfg.Artifact.CanUseS3())
	assert.False(t, cfg.Generation.Fake)
}

func TestEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("APP_ENV", "prod")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "g-key")
	t.Setenv("GENERATION_TIMEOUT", "45")
	t.Setenv("GENERATION_RPS", "0.5")
	t.Setenv("FAKE_GENERATION", "true")
	t.Setenv("ARTIFACT_S3_ENDPOINT", "s3.example.com")
	t.Setenv("ARTIFACT_S3_ACCESS_KEY", "ak")
	t.Setenv("ARTIFACT_S3_SECRET_KEY", "sk")

	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Port)
	assert.Equal(t, "g-key", cfg.Generation.GeminiKey)
	assert.Equal(t, 45*time.Second, cfg.Generation.Timeout)
	assert.Equal(t, 0.5, cfg.Generation.RPS)
	assert.True(t, cfg.Generation.Fake)
	assert.True(t, cfg.Artifact.CanUseS3())
	assert.True(t, cfg.Artifact.UseSSL)
	assert.Equal(t, "iconstudio-assets", cfg.Artifact.Bucket)
}

func TestFlagPort(t *testing.T) {
	clearEnv(t)
	cfg, err := Parse([]string{"-port", ":7000"})
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Port)
}

func TestInvalidEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("GENERATION_RETRIES", "many")
	t.Setenv("PATCH_TIMEOUT", "-5s")
	_, err := Parse(nil)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConfiguration))
	assert.Contains(t, err.Error(), "GENERATION_RETRIES")
	assert.Contains(t, err.Error(), "PATCH_TIMEOUT")
}

func TestYAMLOverlay(t *testing.T) {
	clearEnv(t)
	t.Setenv("GENERATION_RETRIES", "5")
	path := filepath.Join(t.TempDir(), "studio.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
generation:
  openrouterModel: google/gemini-2.5-flash-image
  timeout: 2m
studio:
  paddingPx: 0
  segMinArea: 64
`), 0o644))

	cfg, err := Parse([]string{"-config", path})
	require.NoError(t, err)
	assert.Equal(t, "google/gemini-2.5-flash-image", cfg.Generation.OpenRouterModel)
	assert.Equal(t, 2*time.Minute, cfg.Generation.Timeout)
	assert.Equal(t, 5, cfg.Generation.Retries)
	assert.Equal(t, 0, cfg.Studio.PaddingPx)
	assert.Equal(t, 64, cfg.Studio.SegMinArea)

	require.NoError(t, os.WriteFile(path, []byte("studio:\n  padding: 3\n"), 0o644))
	_, err = Parse([]string{"-config", path})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConfiguration))
}
