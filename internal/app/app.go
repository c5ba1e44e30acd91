// Package app wires configuration, stores, the generation client and the
// HTTP server together.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"iconstudio/internal/config"
	"iconstudio/internal/genclient"
	"iconstudio/internal/generation"
	"iconstudio/internal/server"
	"iconstudio/internal/studio"
)

type App struct {
	server  *server.Server
	handler http.Handler
	stores  *studioStores
	gen     genclient.Client
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	// Dependencies
	gen, err := newGenerationClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	stores, err := initStores(ctx, cfg)
	if err != nil {
		_ = gen.Close()
		return nil, err
	}
	svc := studio.New(gen, stores.docs, stores.assets, studio.Config{
		SegMinArea:   cfg.Studio.SegMinArea,
		PaddingPx:    cfg.Studio.PaddingPx,
		PatchTimeout: cfg.Studio.PatchTimeout,
	})

	// Routing & Server
	handler := server.NewMux(server.NewHandler(svc, nil), nil)
	return &App{
		server:  server.New(cfg.Port, handler),
		handler: handler,
		stores:  stores,
		gen:     gen,
	}, nil
}

func newGenerationClient(ctx context.Context, cfg *config.Config) (genclient.Client, error) {
	g := cfg.Generation
	inner, err := genclient.New(ctx, genclient.ProviderConfig{
		OpenRouterKey:    g.OpenRouterKey,
		OpenRouterModel:  g.OpenRouterModel,
		OpenRouterURL:    g.OpenRouterURL,
		GeminiKey:        g.GeminiKey,
		GeminiImageModel: g.GeminiImageModel,
		GeminiTextModel:  g.GeminiTextModel,
		Fake:             g.Fake,
	})
	if err != nil {
		return nil, err
	}
	log.Printf("generation: provider=%s timeout=%s retries=%d rps=%g", inner.Name(), g.Timeout, g.Retries, g.RPS)
	return generation.Standard(inner, generation.Options{
		Attempts: g.Retries,
		Timeout:  g.Timeout,
		RPS:      g.RPS,
		Burst:    g.Burst,
	}), nil
}

// Handler returns the routed HTTP handler without starting a listener.
func (a *App) Handler() http.Handler { return a.handler }

func (a *App) Start() error {
	return a.server.Start()
}

func (a *App) Shutdown(ctx context.Context) error {
	return errors.Join(a.server.Shutdown(ctx), a.gen.Close(), a.stores.Close())
}
