// Package config loads the studio configuration from .env, flags, the
// environment and an optional YAML overlay, in that order.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"iconstudio/internal/apperr"
)

type Config struct {
	Port        string
	Env         string
	DatabaseURL string
	// DocstoreDir keeps documents as JSON files when no database is set.
	DocstoreDir string
	// AssetDir keeps asset bytes on disk when neither S3 nor a database is set.
	AssetDir   string
	Generation GenerationConfig
	Artifact   ArtifactConfig
	Studio     StudioConfig
}

type GenerationConfig struct {
	OpenRouterKey    string
	OpenRouterModel  string
	OpenRouterURL    string
	GeminiKey        string
	GeminiImageModel string
	GeminiTextModel  string
	Timeout          time.Duration
	Retries          int
	RPS              float64
	Burst            int
	Fake             bool
}

type ArtifactConfig struct {
	Enabled   bool
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// CanUseS3 reports whether enough is configured to reach a bucket.
func (a ArtifactConfig) CanUseS3() bool {
	return a.Enabled && a.Endpoint != "" && a.AccessKey != "" && a.SecretKey != "" && a.Bucket != ""
}

type StudioConfig struct {
	PaddingPx    int
	SegMinArea   int
	PatchTimeout time.Duration
}

// Load reads .env, parses the process flags and resolves the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return Parse(os.Args[1:])
}

// Parse resolves the configuration from args and the current environment.
func Parse(args []string) (*Config, error) {
	const op = "config.Load"
	fs := flag.NewFlagSet("studio", flag.ContinueOnError)
	port := fs.String("port", ":8080", "server port")
	overlay := fs.String("config", "", "optional YAML file with generation and studio tuning")
	if err := fs.Parse(args); err != nil {
		return nil, apperr.Configuration(op, "%v", err)
	}

	if envPort := strings.TrimSpace(os.Getenv("PORT")); envPort != "" {
		if strings.HasPrefix(envPort, ":") {
			*port = envPort
		} else {
			*port = ":" + envPort
		}
	}

	env := firstNonEmpty(strings.TrimSpace(os.Getenv("APP_ENV")), "local")

	var bad []string
	cfg := &Config{
		Port:        *port,
		Env:         env,
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DocstoreDir: strings.TrimSpace(os.Getenv("DOCSTORE_DIR")),
		AssetDir:    strings.TrimSpace(os.Getenv("ASSET_DIR")),
		Generation: GenerationConfig{
			OpenRouterKey:    strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY")),
			OpenRouterModel:  strings.TrimSpace(os.Getenv("OPENROUTER_MODEL")),
			OpenRouterURL:    strings.TrimSpace(os.Getenv("OPENROUTER_BASE_URL")),
			GeminiKey:        firstNonEmpty(strings.TrimSpace(os.Getenv("GEMINI_API_KEY")), strings.TrimSpace(os.Getenv("GOOGLE_API_KEY"))),
			GeminiImageModel: strings.TrimSpace(os.Getenv("GEMINI_IMAGE_MODEL")),
			GeminiTextModel:  strings.TrimSpace(os.Getenv("GEMINI_TEXT_MODEL")),
			Timeout:          envDuration("GENERATION_TIMEOUT", 90*time.Second, &bad),
			Retries:          envInt("GENERATION_RETRIES", 3, &bad),
			RPS:              envFloat("GENERATION_RPS", 0, &bad),
			Burst:            envInt("GENERATION_BURST", 1, &bad),
			Fake:             envBool("FAKE_GENERATION", false, &bad),
		},
		Artifact: loadArtifactConfig(env),
		Studio: StudioConfig{
			PaddingPx:    envInt("PATCH_PADDING_PX", 24, &bad),
			SegMinArea:   envInt("SEG_MIN_AREA", 0, &bad),
			PatchTimeout: envDuration("PATCH_TIMEOUT", 3*time.Minute, &bad),
		},
	}
	if len(bad) > 0 {
		return nil, apperr.Configuration(op, "invalid environment: %s", strings.Join(bad, "; "))
	}
	if *overlay != "" {
		if err := cfg.applyOverlay(*overlay); err != nil {
			return nil, apperr.Configuration(op, "%v", err)
		}
	}
	if cfg.Studio.PaddingPx < 0 {
		return nil, apperr.Configuration(op, "PATCH_PADDING_PX must not be negative")
	}
	return cfg, nil
}

// overlay is the YAML shape. Unset fields keep the environment's value.
type overlay struct {
	Generation struct {
		OpenRouterModel  string  `yaml:"openrouterModel"`
		GeminiImageModel string  `yaml:"geminiImageModel"`
		GeminiTextModel  string  `yaml:"geminiTextModel"`
		Timeout          string  `yaml:"timeout"`
		Retries          int     `yaml:"retries"`
		RPS              float64 `yaml:"rps"`
		Burst            int     `yaml:"burst"`
	} `yaml:"generation"`
	Studio struct {
		PaddingPx    *int   `yaml:"paddingPx"`
		SegMinArea   int    `yaml:"segMinArea"`
		PatchTimeout string `yaml:"patchTimeout"`
	} `yaml:"studio"`
}

func (c *Config) applyOverlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	var o overlay
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&o); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	g := &c.Generation
	g.OpenRouterModel = firstNonEmpty(o.Generation.OpenRouterModel, g.OpenRouterModel)
	g.GeminiImageModel = firstNonEmpty(o.Generation.GeminiImageModel, g.GeminiImageModel)
	g.GeminiTextModel = firstNonEmpty(o.Generation.GeminiTextModel, g.GeminiTextModel)
	if o.Generation.Timeout != "" {
		if g.Timeout, err = parseDuration(o.Generation.Timeout); err != nil {
			return fmt.Errorf("%s: generation.timeout: %w", path, err)
		}
	}
	if o.Generation.Retries > 0 {
		g.Retries = o.Generation.Retries
	}
	if o.Generation.RPS > 0 {
		g.RPS = o.Generation.RPS
	}
	if o.Generation.Burst > 0 {
		g.Burst = o.Generation.Burst
	}

	s := &c.Studio
	if o.Studio.PaddingPx != nil {
		s.PaddingPx = *o.Studio.PaddingPx
	}
	if o.Studio.SegMinArea > 0 {
		s.SegMinArea = o.Studio.SegMinArea
	}
	if o.Studio.PatchTimeout != "" {
		if s.PatchTimeout, err = parseDuration(o.Studio.PatchTimeout); err != nil {
			return fmt.Errorf("%s: studio.patchTimeout: %w", path, err)
		}
	}
	return nil
}

func loadArtifactConfig(env string) ArtifactConfig {
	endpoint := resolveArtifactEndpoint(env)
	return ArtifactConfig{
		Enabled:   endpoint != "",
		Endpoint:  endpoint,
		Region:    firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_REGION")), "us-east-1"),
		AccessKey: firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_ACCESS_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_USER"))),
		SecretKey: firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_SECRET_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_PASSWORD"))),
		Bucket:    firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_BUCKET")), "iconstudio-assets"),
		UseSSL:    resolveArtifactUseSSL(env),
	}
}

// Local runs talk to a MinIO container only when one is named explicitly.
func resolveArtifactEndpoint(env string) string {
	if strings.EqualFold(strings.TrimSpace(env), "local") {
		return strings.TrimSpace(os.Getenv("ARTIFACT_MINIO_ENDPOINT"))
	}
	return firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_ENDPOINT")), strings.TrimSpace(os.Getenv("ARTIFACT_MINIO_ENDPOINT")))
}

func resolveArtifactUseSSL(env string) bool {
	if strings.EqualFold(strings.TrimSpace(env), "local") {
		return false
	}
	raw := strings.TrimSpace(os.Getenv("ARTIFACT_S3_USE_SSL"))
	if raw == "" {
		return true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return true
	}
	return v
}

func envInt(key string, def int, bad *[]string) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		*bad = append(*bad, fmt.Sprintf("%s=%q is not a non-negative integer", key, raw))
		return def
	}
	return v
}

func envFloat(key string, def float64, bad *[]string) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		*bad = append(*bad, fmt.Sprintf("%s=%q is not a non-negative number", key, raw))
		return def
	}
	return v
}

func envBool(key string, def bool, bad *[]string) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		*bad = append(*bad, fmt.Sprintf("%s=%q is not a boolean", key, raw))
		return def
	}
	return v
}

func envDuration(key string, def time.Duration, bad *[]string) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := parseDuration(raw)
	if err != nil {
		*bad = append(*bad, fmt.Sprintf("%s=%q: %v", key, raw, err))
		return def
	}
	return v
}

// parseDuration accepts Go durations ("90s") and bare seconds ("90").
func parseDuration(raw string) (time.Duration, error) {
	if secs, err := strconv.Atoi(raw); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("must not be negative")
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("must not be negative")
	}
	return d, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
