package genclient

import (
	"context"
	"errors"
	"log"

	"iconstudio/internal/apperr"
)

// ProviderConfig selects the generation provider.
type ProviderConfig struct {
	OpenRouterKey    string
	OpenRouterModel  string
	OpenRouterURL    string
	GeminiKey        string
	GeminiImageModel string
	GeminiTextModel  string
	// Fake serves deterministic payloads without any credentials.
	Fake bool
}

// New builds the provider chain: OpenRouter when its key is set, falling back
// to Gemini when that key is set too.
func New(ctx context.Context, cfg ProviderConfig) (Client, error) {
	const op = "genclient.New"
	if cfg.Fake {
		return NewFakeClient(), nil
	}
	var chain []Client
	if cfg.OpenRouterKey != "" {
		var opts []OpenRouterOption
		if cfg.OpenRouterURL != "" {
			opts = append(opts, WithBaseURL(cfg.OpenRouterURL))
		}
		c, err := NewOpenRouterClient(cfg.OpenRouterKey, cfg.OpenRouterModel, opts...)
		if err != nil {
			return nil, apperr.Configuration(op, "%v", err)
		}
		chain = append(chain, c)
	}
	if cfg.GeminiKey != "" {
		c, err := NewGeminiClient(ctx, cfg.GeminiKey, cfg.GeminiImageModel, cfg.GeminiTextModel)
		if err != nil {
			return nil, apperr.Configuration(op, "gemini: %v", err)
		}
		chain = append(chain, c)
	}
	switch len(chain) {
	case 0:
		return nil, apperr.Configuration(op, "set OPENROUTER_API_KEY or GEMINI_API_KEY; OpenRouter is used for icon image generation")
	case 1:
		return chain[0], nil
	default:
		return Fallback(chain[0], chain[1]), nil
	}
}

// Fallback tries primary and, when it fails for any reason other than
// cancellation, secondary.
func Fallback(primary, secondary Client) Client {
	return &fallback{primary: primary, secondary: secondary}
}

type fallback struct {
	primary   Client
	secondary Client
}

func (f *fallback) Name() string { return f.primary.Name() + "|" + f.secondary.Name() }

func (f *fallback) Close() error {
	return errors.Join(f.primary.Close(), f.secondary.Close())
}

func (f *fallback) Generate(ctx context.Context, req Request) (*Response, error) {
	resp, err := f.primary.Generate(ctx, req)
	if err == nil {
		return resp, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	log.Printf("generation: %s failed (%v), falling back to %s", f.primary.Name(), err, f.secondary.Name())
	resp, err2 := f.secondary.Generate(ctx, req)
	if err2 != nil {
		return nil, errors.Join(err, err2)
	}
	return resp, nil
}
