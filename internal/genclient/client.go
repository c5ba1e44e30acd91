// Package genclient talks to the external image and text generation
// collaborators. Clients only make the call; retries, rate limiting, timeouts
// and logging are layered on by internal/generation.
package genclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"strings"
)

// Modality is the output a request asks for.
type Modality string

const (
	ModalityImage Modality = "image"
	ModalityText  Modality = "text"
)

const MIMETypePNG = "image/png"

var (
	// ErrNoImage is returned when an image request yields no image payload.
	ErrNoImage = errors.New("genclient: response carries no image")
	// ErrEmptyText is returned when a text request yields no text.
	ErrEmptyText = errors.New("genclient: response carries no text")
)

type Request struct {
	Prompt   string
	Modality Modality
	// Width and Height are the expected image size, if known.
	Width  int
	Height int
}

type Response struct {
	Data     []byte
	MIMEType string
	Text     string
}

// Client is one generation provider.
type Client interface {
	Name() string
	Close() error
	Generate(ctx context.Context, req Request) (*Response, error)
}

// PermanentError indicates an error that will not resolve with retries.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err should not be retried.
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// CheckImage verifies that resp carries a decodable PNG of the expected size.
// A zero width or height skips the size check.
func CheckImage(resp *Response, width, height int) error {
	if resp == nil || len(resp.Data) == 0 {
		return NewPermanentError(ErrNoImage)
	}
	if resp.MIMEType != "" && !strings.EqualFold(resp.MIMEType, MIMETypePNG) {
		return NewPermanentError(fmt.Errorf("%w: mime type %q", ErrNoImage, resp.MIMEType))
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(resp.Data))
	if err != nil {
		return NewPermanentError(fmt.Errorf("%w: %v", ErrNoImage, err))
	}
	if width > 0 && height > 0 && (cfg.Width != width || cfg.Height != height) {
		return NewPermanentError(fmt.Errorf("genclient: image is %dx%d, want %dx%d", cfg.Width, cfg.Height, width, height))
	}
	return nil
}

// CheckText verifies that resp carries non-empty text.
func CheckText(resp *Response) (string, error) {
	if resp == nil {
		return "", NewPermanentError(ErrEmptyText)
	}
	txt := strings.TrimSpace(resp.Text)
	if txt == "" {
		return "", NewPermanentError(ErrEmptyText)
	}
	return txt, nil
}
