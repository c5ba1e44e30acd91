package canvas

import (
	"fmt"
	"math"
	"strings"
)

const (
	// DefaultRenderPx is the render resolution used for beauty and
	// segmentation renders unless the target size needs more.
	DefaultRenderPx = 1024

	DefaultTargetSize    = 24
	DefaultSafeMarginPct = 0.12
	DefaultBackground    = "#FFFFFF"
)

type BackgroundMode string

const (
	BackgroundTransparent BackgroundMode = "transparent"
	BackgroundSolid       BackgroundMode = "solid"
)

// Config is the single source of truth for size, padding and background
// semantics shared by the beauty render, the segmentation render and every
// layer's geometry.
type Config struct {
	Width           int            `json:"width"`
	Height          int            `json:"height"`
	TargetSize      int            `json:"targetSize"`
	SafeMarginPct   float64        `json:"safeMarginPct"`
	BackgroundMode  BackgroundMode `json:"backgroundMode"`
	BackgroundColor string         `json:"backgroundColor"`
}

// DefaultConfig returns the canvas for a target display size.
func DefaultConfig(targetSize int) Config {
	if targetSize <= 0 {
		targetSize = DefaultTargetSize
	}
	px := RenderResolution(targetSize)
	return Config{
		Width:           px,
		Height:          px,
		TargetSize:      targetSize,
		SafeMarginPct:   DefaultSafeMarginPct,
		BackgroundMode:  BackgroundTransparent,
		BackgroundColor: DefaultBackground,
	}
}

// RenderResolution is the square render size used for a target display size.
// Icons are always rendered at least at DefaultRenderPx and downscaled.
func RenderResolution(targetSize int) int {
	if targetSize <= DefaultRenderPx {
		return DefaultRenderPx
	}
	return targetSize
}

// ComputeSafeBounds returns the centered sub-rectangle of a square canvas of
// size canvasSize that leaves marginPct of the canvas as border on every side.
// marginPct is clamped to [0, 0.5); the result always has positive size when
// canvasSize > 0.
func ComputeSafeBounds(canvasSize int, marginPct float64) Rect {
	if canvasSize <= 0 {
		return Rect{}
	}
	if marginPct < 0 || math.IsNaN(marginPct) {
		marginPct = 0
	}
	margin := int(math.Floor(float64(canvasSize) * marginPct))
	if 2*margin >= canvasSize {
		margin = (canvasSize - 1) / 2
	}
	return Rect{X: margin, Y: margin, W: canvasSize - 2*margin, H: canvasSize - 2*margin}
}

// Bounds is the full canvas rectangle.
func (c Config) Bounds() Rect {
	return Rect{W: c.Width, H: c.Height}
}

// SafeBounds is ComputeSafeBounds applied to this canvas.
func (c Config) SafeBounds() Rect {
	return ComputeSafeBounds(c.Width, c.SafeMarginPct)
}

// PatchRect is the regeneration rectangle for a layer: its bbox grown by
// padding on every side, clamped to the canvas. It is never the full canvas
// unless the bbox itself nearly fills it.
func (c Config) PatchRect(bbox Rect, padding int) Rect {
	if padding < 0 {
		padding = 0
	}
	return bbox.Inset(padding, c.Bounds())
}

// Violations lists every way c breaks the canvas invariants.
func (c Config) Violations() []string {
	var out []string
	if c.Width <= 0 || c.Height <= 0 {
		out = append(out, fmt.Sprintf("canvas: size must be positive, got %dx%d", c.Width, c.Height))
	}
	if c.Width != c.Height {
		out = append(out, fmt.Sprintf("canvas: must be square, got %dx%d", c.Width, c.Height))
	}
	if c.TargetSize <= 0 || c.TargetSize > c.Width {
		out = append(out, fmt.Sprintf("canvas: targetSize %d must be in (0, %d]", c.TargetSize, c.Width))
	}
	if c.SafeMarginPct < 0 || c.SafeMarginPct >= 0.5 || math.IsNaN(c.SafeMarginPct) {
		out = append(out, fmt.Sprintf("canvas: safeMarginPct %v must be in [0, 0.5)", c.SafeMarginPct))
	}
	switch c.BackgroundMode {
	case BackgroundTransparent, BackgroundSolid:
	default:
		out = append(out, fmt.Sprintf("canvas: unknown backgroundMode %q", c.BackgroundMode))
	}
	if c.BackgroundMode == BackgroundSolid && strings.TrimSpace(c.BackgroundColor) == "" {
		out = append(out, "canvas: solid background requires backgroundColor")
	}
	return out
}
