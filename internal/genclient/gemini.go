package genclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	genai "google.golang.org/genai"
)

const (
	DefaultGeminiImageModel = "gemini-2.5-flash-image"
	DefaultGeminiTextModel  = "gemini-2.5-flash"
)

// GeminiClient is a thin wrapper around the official genai client.
type GeminiClient struct {
	cli        *genai.Client
	imageModel string
	textModel  string
}

func NewGeminiClient(ctx context.Context, apiKey, imageModel, textModel string) (*GeminiClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini: api key is empty")
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	if imageModel == "" {
		imageModel = DefaultGeminiImageModel
	}
	if textModel == "" {
		textModel = DefaultGeminiTextModel
	}
	return &GeminiClient{cli: cli, imageModel: imageModel, textModel: textModel}, nil
}

func (g *GeminiClient) Name() string { return "Gemini:" + g.imageModel }
func (g *GeminiClient) Close() error { return nil }

func (g *GeminiClient) Generate(ctx context.Context, req Request) (*Response, error) {
	model := g.textModel
	cfg := &genai.GenerateContentConfig{}
	if req.Modality == ModalityImage {
		model = g.imageModel
		cfg.ResponseModalities = []string{string(genai.ModalityText), string(genai.ModalityImage)}
	}
	resp, err := g.cli.Models.GenerateContent(ctx, model,
		[]*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: req.Prompt}}}},
		cfg,
	)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) && apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != http.StatusTooManyRequests {
			return nil, NewPermanentError(fmt.Errorf("gemini: %s", apiErr.Message))
		}
		return nil, err
	}

	out := &Response{}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if p.InlineData != nil && len(out.Data) == 0 && strings.HasPrefix(p.InlineData.MIMEType, "image/") {
				out.Data = p.InlineData.Data
				out.MIMEType = p.InlineData.MIMEType
			}
			if p.Text != "" && out.Text == "" {
				out.Text = strings.TrimSpace(p.Text)
			}
		}
	}
	if req.Modality == ModalityImage && len(out.Data) == 0 {
		return nil, NewPermanentError(fmt.Errorf("gemini returned text only: %w", ErrNoImage))
	}
	return out, nil
}
