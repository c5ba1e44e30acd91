package genclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultOpenRouterURL   = "https://openrouter.ai/api/v1/chat/completions"
	DefaultOpenRouterModel = "google/gemini-2.5-flash-image"
)

// OpenRouterClient calls the OpenRouter Chat Completions API. Image requests
// ask for the image and text modalities and read the first data URL image.
type OpenRouterClient struct {
	http    *http.Client
	apiKey  string
	model   string
	baseURL string
	referer string
}

type OpenRouterOption func(*OpenRouterClient)

// WithBaseURL points the client at another endpoint.
func WithBaseURL(u string) OpenRouterOption { return func(c *OpenRouterClient) { c.baseURL = u } }

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) OpenRouterOption { return func(c *OpenRouterClient) { c.http = h } }

func NewOpenRouterClient(apiKey, model string, opts ...OpenRouterOption) (*OpenRouterClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("openrouter: api key is empty")
	}
	if model == "" {
		model = DefaultOpenRouterModel
	}
	c := &OpenRouterClient{
		http:    &http.Client{Timeout: 120 * time.Second},
		apiKey:  apiKey,
		model:   model,
		baseURL: DefaultOpenRouterURL,
		referer: "https://icon-studio.local",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (o *OpenRouterClient) Name() string { return "OpenRouter:" + o.model }
func (o *OpenRouterClient) Close() error { return nil }

type openRouterReq struct {
	Model      string              `json:"model"`
	Messages   []openRouterMessage `json:"messages"`
	Modalities []string            `json:"modalities,omitempty"`
	MaxTokens  int                 `json:"max_tokens,omitempty"`
}

type openRouterMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openRouterImage struct {
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url"`
	ImageURLCamel *struct {
		URL string `json:"url"`
	} `json:"imageUrl"`
}

type openRouterResp struct {
	Choices []struct {
		Message struct {
			Content json.RawMessage   `json:"content"`
			Images  []openRouterImage `json:"images"`
		} `json:"message"`
		Text string `json:"text"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
	Message string `json:"message"`
}

func (o *OpenRouterClient) Generate(ctx context.Context, req Request) (*Response, error) {
	body := openRouterReq{
		Model:     o.model,
		Messages:  []openRouterMessage{{Role: "user", Content: req.Prompt}},
		MaxTokens: 1024,
	}
	if req.Modality == ModalityImage {
		body.Modalities = []string{"image", "text"}
	}
	b, _ := json.Marshal(body)
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("Authorization", "Bearer "+o.apiKey)
	hreq.Header.Set("HTTP-Referer", o.referer)

	resp, err := o.http.Do(hreq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, err
	}

	var out openRouterResp
	decodeErr := json.Unmarshal(raw, &out)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := resp.Status
		switch {
		case decodeErr == nil && out.Error != nil && out.Error.Message != "":
			msg = out.Error.Message
		case decodeErr == nil && out.Message != "":
			msg = out.Message
		}
		err := fmt.Errorf("openrouter: %s", msg)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, NewPermanentError(err)
		}
		return nil, err
	}
	if decodeErr != nil {
		return nil, NewPermanentError(fmt.Errorf("openrouter: decode response: %w", decodeErr))
	}
	if len(out.Choices) == 0 {
		return nil, NewPermanentError(errors.New("openrouter: response has no choices"))
	}

	choice := out.Choices[0]
	res := &Response{Text: messageText(choice.Message.Content)}
	if res.Text == "" {
		res.Text = strings.TrimSpace(choice.Text)
	}
	if req.Modality != ModalityImage {
		return res, nil
	}
	if len(choice.Message.Images) == 0 {
		return nil, NewPermanentError(fmt.Errorf("openrouter returned no image: %w", ErrNoImage))
	}
	img := choice.Message.Images[0]
	url := ""
	if img.ImageURL != nil {
		url = img.ImageURL.URL
	} else if img.ImageURLCamel != nil {
		url = img.ImageURLCamel.URL
	}
	mime, data, err := decodeDataURL(url)
	if err != nil {
		return nil, NewPermanentError(fmt.Errorf("openrouter: %w", err))
	}
	res.Data = data
	res.MIMEType = mime
	return res, nil
}

// messageText accepts either a string or an array of content parts.
func messageText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var parts []struct {
		Text    string `json:"text"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(raw, &parts); err != nil {
		return ""
	}
	for _, p := range parts {
		t := strings.TrimSpace(p.Text)
		if t == "" {
			t = strings.TrimSpace(p.Content)
		}
		if t != "" {
			return t
		}
	}
	return ""
}

// decodeDataURL parses "data:<mime>;base64,<payload>".
func decodeDataURL(u string) (string, []byte, error) {
	if !strings.HasPrefix(u, "data:") {
		return "", nil, fmt.Errorf("%w: image is not a data URL", ErrNoImage)
	}
	meta, payload, ok := strings.Cut(u[len("data:"):], ",")
	if !ok {
		return "", nil, fmt.Errorf("%w: malformed data URL", ErrNoImage)
	}
	mime, _, _ := strings.Cut(meta, ";")
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrNoImage, err)
	}
	return mime, data, nil
}
